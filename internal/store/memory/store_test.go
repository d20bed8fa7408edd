package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/campusflow/campus-queue/internal/domain"
	"github.com/campusflow/campus-queue/internal/store"
)

func seedDepartment(t *testing.T, s *Store, name string) (*domain.Department, *domain.Queue) {
	t.Helper()
	dept := &domain.Department{Name: name, IsActive: true}
	queue := domain.NewQueue("")
	err := s.Atomic(context.Background(), func(ctx context.Context, tx store.Tx) error {
		return tx.CreateDepartment(ctx, dept, queue)
	})
	if err != nil {
		t.Fatalf("create department: %v", err)
	}
	return dept, queue
}

func TestAtomicRollsBackOnError(t *testing.T) {
	s := New()
	dept, queue := seedDepartment(t, s, "Registry")
	boom := errors.New("boom")

	err := s.Atomic(context.Background(), func(ctx context.Context, tx store.Tx) error {
		q, err := tx.LockQueue(ctx, dept.ID)
		if err != nil {
			return err
		}
		q.IsOpen = false
		if err := tx.UpdateQueue(ctx, q); err != nil {
			return err
		}
		ticket := &domain.Ticket{QueueID: queue.ID, DepartmentID: dept.ID, Requester: domain.UserIdentity("u1"), State: domain.TicketWaiting}
		if err := tx.InsertTicket(ctx, ticket); err != nil {
			return err
		}
		count, err := tx.CountTickets(ctx, queue.ID, domain.TicketWaiting)
		if err != nil {
			return err
		}
		if count != 1 {
			t.Fatalf("tx should see its own insert, got %d", count)
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	q, err := s.GetQueue(context.Background(), dept.ID)
	if err != nil {
		t.Fatalf("get queue: %v", err)
	}
	if !q.IsOpen {
		t.Fatalf("queue update must be rolled back")
	}
	count, _ := s.CountTickets(context.Background(), queue.ID)
	if count != 0 {
		t.Fatalf("ticket insert must be rolled back, got %d", count)
	}
}

func TestUncommittedWritesAreInvisible(t *testing.T) {
	s := New()
	dept, queue := seedDepartment(t, s, "Library")
	inside := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)

	go func() {
		done <- s.Atomic(context.Background(), func(ctx context.Context, tx store.Tx) error {
			if _, err := tx.LockQueue(ctx, dept.ID); err != nil {
				return err
			}
			ticket := &domain.Ticket{QueueID: queue.ID, DepartmentID: dept.ID, Requester: domain.GuestIdentity("g"), State: domain.TicketWaiting}
			if err := tx.InsertTicket(ctx, ticket); err != nil {
				return err
			}
			close(inside)
			<-release
			return nil
		})
	}()

	<-inside
	if count, _ := s.CountTickets(context.Background(), queue.ID); count != 0 {
		t.Fatalf("dirty read: saw %d tickets before commit", count)
	}
	close(release)
	if err := <-done; err != nil {
		t.Fatalf("atomic: %v", err)
	}
	if count, _ := s.CountTickets(context.Background(), queue.ID); count != 1 {
		t.Fatalf("expected committed ticket, got %d", count)
	}
}

func TestLockQueueSerializesUnits(t *testing.T) {
	s := New()
	dept, _ := seedDepartment(t, s, "Bursar")

	const workers = 20
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.Atomic(context.Background(), func(ctx context.Context, tx store.Tx) error {
				q, err := tx.LockQueue(ctx, dept.ID)
				if err != nil {
					return err
				}
				q.NextSequence++
				return tx.UpdateQueue(ctx, q)
			})
			if err != nil {
				t.Errorf("atomic: %v", err)
			}
		}()
	}
	wg.Wait()

	q, _ := s.GetQueue(context.Background(), dept.ID)
	if q.NextSequence != workers {
		t.Fatalf("lost update: NextSequence=%d want %d", q.NextSequence, workers)
	}
}

func TestLockHonoursContext(t *testing.T) {
	s := New()
	dept, _ := seedDepartment(t, s, "Clinic")
	hold := make(chan struct{})
	held := make(chan struct{})
	go func() {
		_ = s.Atomic(context.Background(), func(ctx context.Context, tx store.Tx) error {
			if _, err := tx.LockQueue(ctx, dept.ID); err != nil {
				return err
			}
			close(held)
			<-hold
			return nil
		})
	}()
	<-held
	defer close(hold)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := s.Atomic(ctx, func(ctx context.Context, tx store.Tx) error {
		_, err := tx.LockQueue(ctx, dept.ID)
		return err
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestDuplicateDepartmentName(t *testing.T) {
	s := New()
	seedDepartment(t, s, "Registry")
	err := s.Atomic(context.Background(), func(ctx context.Context, tx store.Tx) error {
		return tx.CreateDepartment(ctx, &domain.Department{Name: "registry"}, domain.NewQueue(""))
	})
	if !errors.Is(err, domain.ErrDepartmentExists) {
		t.Fatalf("expected ErrDepartmentExists, got %v", err)
	}
}

func TestUsers(t *testing.T) {
	s := New()
	ctx := context.Background()
	user := &domain.User{Name: "Ada", Email: "Ada@Example.com", Role: domain.RoleStudent}
	if err := s.CreateUser(ctx, user); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := s.CreateUser(ctx, &domain.User{Email: "ada@example.com"}); !errors.Is(err, domain.ErrEmailTaken) {
		t.Fatalf("expected ErrEmailTaken, got %v", err)
	}
	got, err := s.GetUserByEmail(ctx, "ada@example.com")
	if err != nil || got.ID != user.ID {
		t.Fatalf("lookup by email: %v %+v", err, got)
	}
	if _, err := s.GetUser(ctx, "missing"); !errors.Is(err, domain.ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestDepartmentQRLookup(t *testing.T) {
	s := New()
	ctx := context.Background()
	dept, _ := seedDepartment(t, s, "Registry")
	now := time.Date(2025, 3, 3, 8, 0, 0, 0, time.UTC)

	expired := &domain.DepartmentQR{DepartmentID: dept.ID, ValidUntil: now.Add(-time.Minute), IsActive: true}
	current := &domain.DepartmentQR{DepartmentID: dept.ID, ValidUntil: now.Add(time.Hour), IsActive: true}
	err := s.Atomic(ctx, func(ctx context.Context, tx store.Tx) error {
		if err := tx.InsertDepartmentQR(ctx, expired); err != nil {
			return err
		}
		if err := tx.InsertDepartmentQR(ctx, current); err != nil {
			return err
		}
		found, err := tx.FindActiveDepartmentQR(ctx, dept.ID, now)
		if err != nil || found.ID != current.ID {
			t.Fatalf("tx should see its own code: %+v %v", found, err)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}

	if got, err := s.GetDepartmentQR(ctx, expired.ID); err != nil || got.DepartmentID != dept.ID {
		t.Fatalf("get by id: %+v %v", got, err)
	}
	if _, err := s.FindActiveDepartmentQR(ctx, "other", now); !errors.Is(err, domain.ErrEntryNotFound) {
		t.Fatalf("expected ErrEntryNotFound, got %v", err)
	}
	if _, err := s.FindActiveDepartmentQR(ctx, dept.ID, now.Add(2*time.Hour)); !errors.Is(err, domain.ErrEntryNotFound) {
		t.Fatalf("all codes expired, got %v", err)
	}
}

func TestFeedbackOnePerTicket(t *testing.T) {
	s := New()
	ctx := context.Background()
	insert := func() error {
		return s.Atomic(ctx, func(ctx context.Context, tx store.Tx) error {
			return tx.InsertFeedback(ctx, &domain.Feedback{TicketID: "t1", StudentID: "u1", Options: []string{"friendly"}})
		})
	}
	if err := insert(); err != nil {
		t.Fatalf("first feedback: %v", err)
	}
	if err := insert(); !errors.Is(err, domain.ErrFeedbackExists) {
		t.Fatalf("expected ErrFeedbackExists, got %v", err)
	}
	fb, err := s.GetFeedbackByTicket(ctx, "t1")
	if err != nil || fb.StudentID != "u1" {
		t.Fatalf("read feedback: %+v %v", fb, err)
	}
	if _, err := s.GetFeedbackByTicket(ctx, "t2"); !errors.Is(err, domain.ErrFeedbackNotFound) {
		t.Fatalf("expected ErrFeedbackNotFound, got %v", err)
	}
}

func TestListUsersByRole(t *testing.T) {
	s := New()
	ctx := context.Background()
	for _, u := range []*domain.User{
		{Name: "Zed", Email: "zed@campus.edu", Role: domain.RoleStaff},
		{Name: "Amy", Email: "amy@campus.edu", Role: domain.RoleStaff},
		{Name: "Bob", Email: "bob@campus.edu", Role: domain.RoleStudent},
	} {
		if err := s.CreateUser(ctx, u); err != nil {
			t.Fatalf("create %s: %v", u.Name, err)
		}
	}
	staff, err := s.ListUsersByRole(ctx, domain.RoleStaff)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(staff) != 2 || staff[0].Name != "Amy" || staff[1].Name != "Zed" {
		t.Fatalf("staff = %+v", staff)
	}
}
