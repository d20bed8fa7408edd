package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/campusflow/campus-queue/internal/config"
	"github.com/campusflow/campus-queue/internal/domain"
	"github.com/campusflow/campus-queue/internal/events"
	"github.com/campusflow/campus-queue/internal/observability"
	"github.com/campusflow/campus-queue/internal/store"
	"github.com/campusflow/campus-queue/internal/store/memory"
	apperrors "github.com/campusflow/campus-queue/pkg/util"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 3, 3, 8, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fixture struct {
	store     *memory.Store
	events    *events.Recorder
	metrics   *observability.Metrics
	clock     *fakeClock
	deps      Dependencies
	queue     *QueueService
	emergency *EmergencyService
	staff     *StaffService
	admin     domain.Actor
	deptID    string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clock := newFakeClock()
	st := memory.New()
	st.SetClock(clock.Now)
	rec := &events.Recorder{}
	metrics := observability.NewMetrics()

	deps := Dependencies{
		Store:       st,
		Users:       st,
		Broadcaster: rec,
		Logger:      zap.NewNop(),
		Metrics:     metrics,
		Queue: config.QueueConfig{
			TicketPrefix:                 "A",
			StaleAfter:                   12 * time.Hour,
			DefaultAverageServiceMinutes: 5,
		},
		Crowd: config.CrowdConfig{
			YellowAboveMinutes:    10,
			RedAboveMinutes:       25,
			AverageServiceMinutes: 3,
		},
		Clock: clock.Now,
	}

	f := &fixture{
		store:     st,
		events:    rec,
		metrics:   metrics,
		clock:     clock,
		deps:      deps,
		queue:     NewQueueService(deps),
		emergency: NewEmergencyService(deps),
		staff:     NewStaffService(config.AuthConfig{BcryptCost: 4}, deps),
		admin:     domain.Actor{Identity: domain.UserIdentity("admin-1"), Role: domain.RoleAdmin},
	}
	f.deptID = f.newDepartment(t, "Registrar")
	rec.Reset()
	return f
}

func (f *fixture) newDepartment(t *testing.T, name string) string {
	t.Helper()
	dept, err := f.staff.CreateDepartment(context.Background(), f.admin, name, "")
	if err != nil {
		t.Fatalf("create department %s: %v", name, err)
	}
	return dept.ID
}

func (f *fixture) staffOf(departmentID string) domain.Actor {
	id := departmentID
	return domain.Actor{Identity: domain.UserIdentity("staff-" + departmentID), Role: domain.RoleStaff, DepartmentID: &id}
}

func student(n int) domain.Actor {
	return domain.Actor{Identity: domain.UserIdentity(fmt.Sprintf("student-%d", n)), Role: domain.RoleStudent}
}

func guest(token string) domain.Actor {
	return domain.GuestActor(token)
}

func (f *fixture) join(t *testing.T, actor domain.Actor) *TicketView {
	t.Helper()
	view, err := f.queue.JoinQueue(context.Background(), actor, JoinInput{DepartmentID: f.deptID, Origin: domain.OriginApp})
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	return view
}

func (f *fixture) getQueue(t *testing.T, departmentID string) *domain.Queue {
	t.Helper()
	q, err := f.store.GetQueue(context.Background(), departmentID)
	if err != nil {
		t.Fatalf("get queue: %v", err)
	}
	return q
}

// assertQueueInvariants checks that waiting numbers are unique and that the
// serving pointer matches the single serving ticket.
func (f *fixture) assertQueueInvariants(t *testing.T, departmentID string) {
	t.Helper()
	q := f.getQueue(t, departmentID)
	tickets, err := f.store.ListTickets(context.Background(), store.TicketFilter{QueueID: q.ID})
	if err != nil {
		t.Fatalf("list tickets: %v", err)
	}

	seen := map[string]bool{}
	var serving []string
	for _, tk := range tickets {
		switch tk.State {
		case domain.TicketWaiting:
			if seen[tk.Number] {
				t.Fatalf("duplicate waiting number %s", tk.Number)
			}
			seen[tk.Number] = true
		case domain.TicketServing:
			serving = append(serving, tk.ID)
		}
	}

	switch {
	case q.CurrentTicketID == nil && len(serving) != 0:
		t.Fatalf("no current ticket but %d serving", len(serving))
	case q.CurrentTicketID != nil && (len(serving) != 1 || serving[0] != *q.CurrentTicketID):
		t.Fatalf("current ticket %s does not match serving set %v", *q.CurrentTicketID, serving)
	}
}

func assertCode(t *testing.T, err error, target error, code string) {
	t.Helper()
	if !errors.Is(err, target) {
		t.Fatalf("expected %v, got %v", target, err)
	}
	if got := apperrors.CodeOf(err); got != code {
		t.Fatalf("expected code %s, got %s", code, got)
	}
}

func eventTypes(evts []events.Event) []events.EventType {
	out := make([]events.EventType, 0, len(evts))
	for _, e := range evts {
		out = append(out, e.Type)
	}
	return out
}

func intPtr(v int) *int { return &v }
