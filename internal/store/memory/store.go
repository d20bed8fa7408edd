// Package memory is an in-process implementation of store.Store used by tests
// and by DSN-less development runs.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/campusflow/campus-queue/internal/domain"
	"github.com/campusflow/campus-queue/internal/store"
)

// Store keeps committed state in maps guarded by mu. Units of work stage their
// writes privately and publish them in one step on commit.
type Store struct {
	mu             sync.RWMutex
	departments    map[string]*domain.Department
	queues         map[string]*domain.Queue // keyed by department ID
	tickets        map[string]*domain.Ticket
	queueTickets   map[string][]string // queue ID -> ticket IDs in insertion order
	emergencies    map[string]*domain.Emergency
	emergencyOrder []string
	departmentQRs  map[string]*domain.DepartmentQR
	qrOrder        []string
	feedback       map[string]*domain.Feedback // keyed by ticket ID
	users          map[string]*domain.User
	usersByEmail   map[string]string

	ticketSeq atomic.Int64
	locks     *keyedLocker
	now       func() time.Time
}

var (
	_ store.Store     = (*Store)(nil)
	_ store.UserStore = (*Store)(nil)
)

// New returns an empty store.
func New() *Store {
	return &Store{
		departments:   make(map[string]*domain.Department),
		queues:        make(map[string]*domain.Queue),
		tickets:       make(map[string]*domain.Ticket),
		queueTickets:  make(map[string][]string),
		emergencies:   make(map[string]*domain.Emergency),
		departmentQRs: make(map[string]*domain.DepartmentQR),
		feedback:      make(map[string]*domain.Feedback),
		users:         make(map[string]*domain.User),
		usersByEmail:  make(map[string]string),
		locks:         newKeyedLocker(),
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// SetClock overrides the timestamp source. Tests only.
func (s *Store) SetClock(now func() time.Time) {
	s.now = now
}

// Atomic runs fn against a private overlay and publishes it only on success.
func (s *Store) Atomic(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	t := newTx(s)
	defer t.releaseLocks()

	if err := fn(ctx, t); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	t.commit()
	return nil
}

// Ping always succeeds; it mirrors the postgres health check.
func (s *Store) Ping(context.Context) error {
	return nil
}

func (s *Store) reader() *reader {
	return &reader{mu: &s.mu, v: committedView{s}}
}

func (s *Store) GetDepartment(ctx context.Context, id string) (*domain.Department, error) {
	return s.reader().GetDepartment(ctx, id)
}

func (s *Store) GetDepartmentByName(ctx context.Context, name string) (*domain.Department, error) {
	return s.reader().GetDepartmentByName(ctx, name)
}

func (s *Store) ListDepartments(ctx context.Context, activeOnly bool) ([]domain.Department, error) {
	return s.reader().ListDepartments(ctx, activeOnly)
}

func (s *Store) GetQueue(ctx context.Context, departmentID string) (*domain.Queue, error) {
	return s.reader().GetQueue(ctx, departmentID)
}

func (s *Store) GetTicket(ctx context.Context, id string) (*domain.Ticket, error) {
	return s.reader().GetTicket(ctx, id)
}

func (s *Store) FindActiveTicket(ctx context.Context, identity domain.Identity) (*domain.Ticket, error) {
	return s.reader().FindActiveTicket(ctx, identity)
}

func (s *Store) ListTickets(ctx context.Context, filter store.TicketFilter) ([]domain.Ticket, error) {
	return s.reader().ListTickets(ctx, filter)
}

func (s *Store) CountTickets(ctx context.Context, queueID string, states ...domain.TicketState) (int, error) {
	return s.reader().CountTickets(ctx, queueID, states...)
}

func (s *Store) CountWaitingAhead(ctx context.Context, queueID string, seq int64) (int, error) {
	return s.reader().CountWaitingAhead(ctx, queueID, seq)
}

func (s *Store) OldestWaiting(ctx context.Context, queueID string) (*domain.Ticket, error) {
	return s.reader().OldestWaiting(ctx, queueID)
}

func (s *Store) GetEmergency(ctx context.Context, id string) (*domain.Emergency, error) {
	return s.reader().GetEmergency(ctx, id)
}

func (s *Store) ListEmergencies(ctx context.Context, filter store.EmergencyFilter) ([]domain.Emergency, error) {
	return s.reader().ListEmergencies(ctx, filter)
}

func (s *Store) GetDepartmentQR(ctx context.Context, id string) (*domain.DepartmentQR, error) {
	return s.reader().GetDepartmentQR(ctx, id)
}

func (s *Store) FindActiveDepartmentQR(ctx context.Context, departmentID string, now time.Time) (*domain.DepartmentQR, error) {
	return s.reader().FindActiveDepartmentQR(ctx, departmentID, now)
}

func (s *Store) GetFeedbackByTicket(ctx context.Context, ticketID string) (*domain.Feedback, error) {
	return s.reader().GetFeedbackByTicket(ctx, ticketID)
}

// CreateUser stores a new account.
func (s *Store) CreateUser(_ context.Context, user *domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	email := strings.ToLower(user.Email)
	if _, exists := s.usersByEmail[email]; exists {
		return domain.ErrEmailTaken
	}
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	now := s.now()
	user.CreatedAt, user.UpdatedAt = now, now
	cp := *user
	s.users[user.ID] = &cp
	s.usersByEmail[email] = user.ID
	return nil
}

// UpdateUser replaces an account.
func (s *Store) UpdateUser(_ context.Context, user *domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[user.ID]; !ok {
		return domain.ErrUserNotFound
	}
	user.UpdatedAt = s.now()
	cp := *user
	s.users[user.ID] = &cp
	return nil
}

// GetUser loads an account by ID.
func (s *Store) GetUser(_ context.Context, id string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	user, ok := s.users[id]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	cp := *user
	return &cp, nil
}

// GetUserByEmail loads an account by email, case-insensitively.
func (s *Store) GetUserByEmail(_ context.Context, email string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.usersByEmail[strings.ToLower(email)]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	cp := *s.users[id]
	return &cp, nil
}

// ListUsersByRole returns the accounts holding role, ordered by name.
func (s *Store) ListUsersByRole(_ context.Context, role domain.Role) ([]domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]domain.User, 0)
	for _, user := range s.users {
		if user.Role == role {
			result = append(result, *user)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Name == result[j].Name {
			return result[i].Email < result[j].Email
		}
		return result[i].Name < result[j].Name
	})
	return result, nil
}

// view resolves entities for a reader. Callers hold the store read lock.
type view interface {
	department(id string) *domain.Department
	departmentIDs() []string
	queue(departmentID string) *domain.Queue
	ticket(id string) *domain.Ticket
	ticketIDs(queueID string) []string
	allTicketIDs() []string
	emergency(id string) *domain.Emergency
	emergencyIDs() []string
	departmentQR(id string) *domain.DepartmentQR
	departmentQRIDs() []string
	feedbackFor(ticketID string) *domain.Feedback
}

type committedView struct{ s *Store }

func (v committedView) department(id string) *domain.Department { return v.s.departments[id] }

func (v committedView) departmentIDs() []string {
	ids := make([]string, 0, len(v.s.departments))
	for id := range v.s.departments {
		ids = append(ids, id)
	}
	return ids
}

func (v committedView) queue(departmentID string) *domain.Queue { return v.s.queues[departmentID] }
func (v committedView) ticket(id string) *domain.Ticket         { return v.s.tickets[id] }
func (v committedView) ticketIDs(queueID string) []string       { return v.s.queueTickets[queueID] }

func (v committedView) allTicketIDs() []string {
	ids := make([]string, 0, len(v.s.tickets))
	for id := range v.s.tickets {
		ids = append(ids, id)
	}
	return ids
}

func (v committedView) emergency(id string) *domain.Emergency { return v.s.emergencies[id] }
func (v committedView) emergencyIDs() []string                { return v.s.emergencyOrder }

func (v committedView) departmentQR(id string) *domain.DepartmentQR {
	return v.s.departmentQRs[id]
}

func (v committedView) departmentQRIDs() []string { return v.s.qrOrder }

func (v committedView) feedbackFor(ticketID string) *domain.Feedback {
	return v.s.feedback[ticketID]
}

// reader implements store.Reader over any view.
type reader struct {
	mu *sync.RWMutex
	v  view
}

func (r *reader) GetDepartment(_ context.Context, id string) (*domain.Department, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	dept := r.v.department(id)
	if dept == nil {
		return nil, domain.ErrDepartmentNotFound
	}
	cp := *dept
	return &cp, nil
}

func (r *reader) GetDepartmentByName(_ context.Context, name string) (*domain.Department, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, id := range r.v.departmentIDs() {
		if dept := r.v.department(id); dept != nil && strings.EqualFold(dept.Name, name) {
			cp := *dept
			return &cp, nil
		}
	}
	return nil, domain.ErrDepartmentNotFound
}

func (r *reader) ListDepartments(_ context.Context, activeOnly bool) ([]domain.Department, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make([]domain.Department, 0)
	for _, id := range r.v.departmentIDs() {
		dept := r.v.department(id)
		if dept == nil || (activeOnly && !dept.IsActive) {
			continue
		}
		result = append(result, *dept)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}

func (r *reader) GetQueue(_ context.Context, departmentID string) (*domain.Queue, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	q := r.v.queue(departmentID)
	if q == nil {
		return nil, domain.ErrQueueNotFound
	}
	return q.Clone(), nil
}

func (r *reader) GetTicket(_ context.Context, id string) (*domain.Ticket, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t := r.v.ticket(id)
	if t == nil {
		return nil, domain.ErrTicketNotFound
	}
	return t.Clone(), nil
}

func (r *reader) FindActiveTicket(_ context.Context, identity domain.Identity) (*domain.Ticket, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	key := identity.Key()
	for _, id := range r.v.allTicketIDs() {
		t := r.v.ticket(id)
		if t != nil && t.State.IsActive() && t.Requester.Key() == key {
			return t.Clone(), nil
		}
	}
	return nil, domain.ErrTicketNotFound
}

func (r *reader) ListTickets(_ context.Context, filter store.TicketFilter) ([]domain.Ticket, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var ids []string
	if filter.QueueID != "" {
		ids = r.v.ticketIDs(filter.QueueID)
	} else {
		ids = r.v.allTicketIDs()
	}
	result := make([]domain.Ticket, 0)
	for _, id := range ids {
		t := r.v.ticket(id)
		if t == nil {
			continue
		}
		if filter.Identity != nil && t.Requester.Key() != filter.Identity.Key() {
			continue
		}
		if len(filter.States) > 0 && !containsState(filter.States, t.State) {
			continue
		}
		result = append(result, *t.Clone())
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Seq < result[j].Seq })
	if filter.Limit > 0 && len(result) > filter.Limit {
		result = result[:filter.Limit]
	}
	return result, nil
}

func (r *reader) CountTickets(_ context.Context, queueID string, states ...domain.TicketState) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	count := 0
	for _, id := range r.v.ticketIDs(queueID) {
		t := r.v.ticket(id)
		if t == nil {
			continue
		}
		if len(states) == 0 || containsState(states, t.State) {
			count++
		}
	}
	return count, nil
}

func (r *reader) CountWaitingAhead(_ context.Context, queueID string, seq int64) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	count := 0
	for _, id := range r.v.ticketIDs(queueID) {
		t := r.v.ticket(id)
		if t != nil && t.State == domain.TicketWaiting && t.Seq < seq {
			count++
		}
	}
	return count, nil
}

func (r *reader) OldestWaiting(_ context.Context, queueID string) (*domain.Ticket, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var oldest *domain.Ticket
	for _, id := range r.v.ticketIDs(queueID) {
		t := r.v.ticket(id)
		if t == nil || t.State != domain.TicketWaiting {
			continue
		}
		if oldest == nil || t.Seq < oldest.Seq {
			oldest = t
		}
	}
	if oldest == nil {
		return nil, domain.ErrTicketNotFound
	}
	return oldest.Clone(), nil
}

func (r *reader) GetEmergency(_ context.Context, id string) (*domain.Emergency, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e := r.v.emergency(id)
	if e == nil {
		return nil, domain.ErrEmergencyNotFound
	}
	return e.Clone(), nil
}

func (r *reader) ListEmergencies(_ context.Context, filter store.EmergencyFilter) ([]domain.Emergency, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make([]domain.Emergency, 0)
	for _, id := range r.v.emergencyIDs() {
		e := r.v.emergency(id)
		if e == nil {
			continue
		}
		if filter.DepartmentID != "" && e.DepartmentID != filter.DepartmentID {
			continue
		}
		if filter.RequesterID != "" && e.RequesterID != filter.RequesterID {
			continue
		}
		if len(filter.States) > 0 && !containsEmergencyState(filter.States, e.State) {
			continue
		}
		result = append(result, *e)
	}
	return result, nil
}

func (r *reader) GetDepartmentQR(_ context.Context, id string) (*domain.DepartmentQR, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	qr := r.v.departmentQR(id)
	if qr == nil {
		return nil, domain.ErrEntryNotFound
	}
	cp := *qr
	return &cp, nil
}

func (r *reader) FindActiveDepartmentQR(_ context.Context, departmentID string, now time.Time) (*domain.DepartmentQR, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := r.v.departmentQRIDs()
	for i := len(ids) - 1; i >= 0; i-- {
		qr := r.v.departmentQR(ids[i])
		if qr != nil && qr.DepartmentID == departmentID && qr.ValidAt(now) {
			cp := *qr
			return &cp, nil
		}
	}
	return nil, domain.ErrEntryNotFound
}

func (r *reader) GetFeedbackByTicket(_ context.Context, ticketID string) (*domain.Feedback, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fb := r.v.feedbackFor(ticketID)
	if fb == nil {
		return nil, domain.ErrFeedbackNotFound
	}
	return fb.Clone(), nil
}

func containsState(states []domain.TicketState, s domain.TicketState) bool {
	for _, candidate := range states {
		if candidate == s {
			return true
		}
	}
	return false
}

func containsEmergencyState(states []domain.EmergencyState, s domain.EmergencyState) bool {
	for _, candidate := range states {
		if candidate == s {
			return true
		}
	}
	return false
}
