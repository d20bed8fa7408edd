package service

import (
	"context"
	"testing"
	"time"

	"github.com/campusflow/campus-queue/internal/auth"
	"github.com/campusflow/campus-queue/internal/config"
	"github.com/campusflow/campus-queue/internal/domain"
)

func newAuthService(f *fixture) (*AuthService, *auth.MemoryBlacklist) {
	blacklist := auth.NewMemoryBlacklist()
	tokens := auth.NewTokenManager("test-secret", 60)
	return NewAuthService(config.AuthConfig{BcryptCost: 4}, f.deps, tokens, blacklist), blacklist
}

func TestRegisterAndLogin(t *testing.T) {
	f := newFixture(t)
	svc, _ := newAuthService(f)
	ctx := context.Background()

	session, err := svc.Register(ctx, "Ada", "Ada@Campus.edu", "correct horse")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if session.User.Role != domain.RoleStudent || session.User.Email != "ada@campus.edu" || session.Token == "" {
		t.Fatalf("unexpected session %+v", session.User)
	}

	_, err = svc.Register(ctx, "Ada", "ada@campus.edu", "another pass")
	assertCode(t, err, domain.ErrEmailTaken, "EMAIL_TAKEN")
	_, err = svc.Register(ctx, "Bob", "bob@campus.edu", "short")
	assertCode(t, err, auth.ErrPasswordTooShort, "PASSWORD_TOO_SHORT")

	login, err := svc.Login(ctx, "ADA@campus.edu", "correct horse")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	claims, err := svc.TokenManager().ParseToken(login.Token)
	if err != nil {
		t.Fatalf("parse token: %v", err)
	}
	if claims.UserID() != session.User.ID || claims.Role != domain.RoleStudent {
		t.Fatalf("unexpected claims %+v", claims)
	}

	_, err = svc.Login(ctx, "ada@campus.edu", "wrong password")
	assertCode(t, err, domain.ErrInvalidCredential, "INVALID_CREDENTIALS")
	_, err = svc.Login(ctx, "nobody@campus.edu", "whatever1")
	assertCode(t, err, domain.ErrInvalidCredential, "INVALID_CREDENTIALS")
}

func TestLogoutRevokesToken(t *testing.T) {
	f := newFixture(t)
	svc, blacklist := newAuthService(f)
	ctx := context.Background()

	session, err := svc.Register(ctx, "Ada", "ada@campus.edu", "correct horse")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	claims, err := svc.TokenManager().ParseToken(session.Token)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if err := svc.Logout(ctx, domain.UserActor(session.User), claims); err != nil {
		t.Fatalf("logout: %v", err)
	}
	revoked, err := blacklist.IsRevoked(ctx, claims.ID)
	if err != nil || !revoked {
		t.Fatalf("token should be revoked: %v %v", revoked, err)
	}

	err = svc.Logout(ctx, guest("g"), nil)
	assertCode(t, err, domain.ErrForbidden, "FORBIDDEN")
}

func TestStaffLogoutResetsQueue(t *testing.T) {
	f := newFixture(t)
	svc, _ := newAuthService(f)
	ctx := context.Background()
	staff := f.staffOf(f.deptID)

	f.join(t, student(1))
	f.join(t, student(2))
	serving, err := f.queue.CallNext(ctx, staff, f.deptID)
	if err != nil {
		t.Fatalf("call: %v", err)
	}
	req, _ := f.emergency.Request(ctx, student(3), EmergencyInput{DepartmentID: f.deptID, Reason: "r", Proof: "p"})
	if _, err := f.emergency.Approve(ctx, staff, req.ID); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if _, err := f.emergency.Start(ctx, staff, StartInput{}); err != nil {
		t.Fatalf("start: %v", err)
	}

	if err := svc.Logout(ctx, staff, nil); err != nil {
		t.Fatalf("logout: %v", err)
	}

	q := f.getQueue(t, f.deptID)
	if q.IsOpen || q.EmergencyActive || q.CurrentTicketID != nil {
		t.Fatalf("queue not reset: %+v", q)
	}
	done, _ := f.store.GetTicket(ctx, serving.ID)
	if done.State != domain.TicketCompleted {
		t.Fatalf("serving ticket should be completed, got %s", done.State)
	}
	resolved, _ := f.store.GetEmergency(ctx, req.ID)
	if resolved.State != domain.EmergencyResolved {
		t.Fatalf("active emergency should be resolved, got %s", resolved.State)
	}
	f.assertQueueInvariants(t, f.deptID)
}

func TestStaffLoginResetsStaleQueue(t *testing.T) {
	f := newFixture(t)
	svc, _ := newAuthService(f)
	ctx := context.Background()

	user, err := f.staff.CreateStaffMember(ctx, f.admin, "Sam", "sam@campus.edu", "staff password", f.deptID)
	if err != nil {
		t.Fatalf("create staff: %v", err)
	}
	if _, err := svc.Login(ctx, user.Email, "staff password"); err != nil {
		t.Fatalf("fresh login: %v", err)
	}
	if q := f.getQueue(t, f.deptID); !q.IsOpen {
		t.Fatalf("a fresh queue must not be reset")
	}

	f.clock.Advance(13 * time.Hour)
	if _, err := svc.Login(ctx, user.Email, "staff password"); err != nil {
		t.Fatalf("stale login: %v", err)
	}
	if q := f.getQueue(t, f.deptID); q.IsOpen {
		t.Fatalf("a stale queue should be closed on login")
	}
}

func TestStaffLoginResetIgnoresStudentTraffic(t *testing.T) {
	f := newFixture(t)
	svc, _ := newAuthService(f)
	ctx := context.Background()

	user, err := f.staff.CreateStaffMember(ctx, f.admin, "Sam", "sam@campus.edu", "staff password", f.deptID)
	if err != nil {
		t.Fatalf("create staff: %v", err)
	}

	f.clock.Advance(12 * time.Hour)
	f.join(t, student(1))
	if _, err := f.queue.CancelTicket(ctx, student(1)); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	f.clock.Advance(time.Hour)

	if _, err := svc.Login(ctx, user.Email, "staff password"); err != nil {
		t.Fatalf("login: %v", err)
	}
	if q := f.getQueue(t, f.deptID); q.IsOpen {
		t.Fatalf("13h without staff activity should reset the queue despite student joins")
	}
}

func TestStaffActivityKeepsQueueFresh(t *testing.T) {
	f := newFixture(t)
	svc, _ := newAuthService(f)
	ctx := context.Background()

	user, err := f.staff.CreateStaffMember(ctx, f.admin, "Sam", "sam@campus.edu", "staff password", f.deptID)
	if err != nil {
		t.Fatalf("create staff: %v", err)
	}

	f.clock.Advance(11 * time.Hour)
	f.join(t, student(1))
	called, err := f.queue.CallNext(ctx, f.staffOf(f.deptID), f.deptID)
	if err != nil {
		t.Fatalf("call next: %v", err)
	}
	f.clock.Advance(2 * time.Hour)

	if _, err := svc.Login(ctx, user.Email, "staff password"); err != nil {
		t.Fatalf("login: %v", err)
	}
	q := f.getQueue(t, f.deptID)
	if !q.IsOpen || !q.IsCurrent(called.ID) {
		t.Fatalf("queue attended 2h ago must survive login: open=%v current=%v", q.IsOpen, q.CurrentTicketID)
	}
	if !q.LastStaffActivityAt.Equal(f.clock.Now().Add(-2 * time.Hour)) {
		t.Fatalf("last staff activity = %v", q.LastStaffActivityAt)
	}
}

func TestBootstrapAdmin(t *testing.T) {
	f := newFixture(t)
	svc, _ := newAuthService(f)
	ctx := context.Background()

	if err := svc.BootstrapAdmin(ctx, "root@campus.edu", "admin password"); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	if err := svc.BootstrapAdmin(ctx, "root@campus.edu", "admin password"); err != nil {
		t.Fatalf("bootstrap is idempotent: %v", err)
	}
	user, err := f.store.GetUserByEmail(ctx, "root@campus.edu")
	if err != nil || user.Role != domain.RoleAdmin {
		t.Fatalf("admin not created: %+v %v", user, err)
	}
	if err := svc.BootstrapAdmin(ctx, "", ""); err != nil {
		t.Fatalf("empty config should be a no-op: %v", err)
	}
}
