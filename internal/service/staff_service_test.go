package service

import (
	"context"
	"testing"

	"github.com/campusflow/campus-queue/internal/domain"
)

func TestCreateDepartment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	q := f.getQueue(t, f.deptID)
	if !q.IsOpen || q.AverageServiceMinutes != 5 || q.Capacity != nil {
		t.Fatalf("department queue not initialised: %+v", q)
	}

	_, err := f.staff.CreateDepartment(ctx, f.admin, "  registrar ", "")
	assertCode(t, err, domain.ErrDepartmentExists, "DEPARTMENT_EXISTS")
	_, err = f.staff.CreateDepartment(ctx, f.staffOf(f.deptID), "Library", "")
	assertCode(t, err, domain.ErrForbidden, "FORBIDDEN")
	if _, err := f.staff.CreateDepartment(ctx, f.admin, " ", ""); err == nil {
		t.Fatalf("blank name should fail")
	}
}

func TestDeactivateHidesDepartment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.newDepartment(t, "Library")

	if _, err := f.staff.DeactivateDepartment(ctx, f.admin, f.deptID); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	active, err := f.staff.ListDepartments(ctx, false)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(active) != 1 || active[0].Name != "Library" {
		t.Fatalf("unexpected active list %+v", active)
	}
	all, _ := f.staff.ListDepartments(ctx, true)
	if len(all) != 2 {
		t.Fatalf("all departments = %d", len(all))
	}
}

func TestAssignStaff(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	svc, _ := newAuthService(f)

	session, err := svc.Register(ctx, "Lee", "lee@campus.edu", "student password")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	user, err := f.staff.AssignStaff(ctx, f.admin, session.User.ID, f.deptID)
	if err != nil {
		t.Fatalf("assign: %v", err)
	}
	if user.Role != domain.RoleStaff || user.DepartmentID == nil || *user.DepartmentID != f.deptID {
		t.Fatalf("unexpected user %+v", user)
	}

	actor := domain.UserActor(user)
	if _, err := f.queue.ToggleQueue(ctx, actor, f.deptID); err != nil {
		t.Fatalf("assigned staff should operate the queue: %v", err)
	}

	_, err = f.staff.AssignStaff(ctx, f.admin, "missing", f.deptID)
	assertCode(t, err, domain.ErrUserNotFound, "USER_NOT_FOUND")
	_, err = f.staff.AssignStaff(ctx, f.admin, user.ID, "missing")
	assertCode(t, err, domain.ErrDepartmentNotFound, "DEPARTMENT_NOT_FOUND")
}

func TestStaffProfileAndListing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	svc, _ := newAuthService(f)

	sam, err := f.staff.CreateStaffMember(ctx, f.admin, "Sam", "sam@campus.edu", "staff password", f.deptID)
	if err != nil {
		t.Fatalf("create staff: %v", err)
	}
	session, err := svc.Register(ctx, "Ada", "ada@campus.edu", "correct horse")
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	profile, err := f.staff.Profile(ctx, domain.UserActor(sam))
	if err != nil {
		t.Fatalf("profile: %v", err)
	}
	if profile.User.ID != sam.ID || profile.Department == nil || profile.Department.Name != "Registrar" {
		t.Fatalf("unexpected profile %+v", profile)
	}
	_, err = f.staff.Profile(ctx, domain.UserActor(session.User))
	assertCode(t, err, domain.ErrForbidden, "FORBIDDEN")

	me, err := svc.Me(ctx, domain.UserActor(session.User))
	if err != nil {
		t.Fatalf("me: %v", err)
	}
	if me.Email != "ada@campus.edu" {
		t.Fatalf("unexpected me %+v", me)
	}
	_, err = svc.Me(ctx, guest("g-1"))
	assertCode(t, err, domain.ErrForbidden, "FORBIDDEN")

	staff, err := f.staff.ListStaff(ctx, f.admin)
	if err != nil {
		t.Fatalf("list staff: %v", err)
	}
	if len(staff) != 1 || staff[0].ID != sam.ID {
		t.Fatalf("unexpected staff list %+v", staff)
	}
	_, err = f.staff.ListStaff(ctx, domain.UserActor(sam))
	assertCode(t, err, domain.ErrForbidden, "FORBIDDEN")
}
