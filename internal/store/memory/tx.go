package memory

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/campusflow/campus-queue/internal/domain"
	"github.com/campusflow/campus-queue/internal/store"
)

// tx stages writes in private maps. It is used by a single goroutine.
type tx struct {
	*reader
	s        *Store
	unlocks  []func()
	held     map[string]struct{}
	staged   stagedState
	newDepts []string
}

type stagedState struct {
	departments    map[string]*domain.Department
	queues         map[string]*domain.Queue
	tickets        map[string]*domain.Ticket
	newTickets     map[string][]string
	emergencies    map[string]*domain.Emergency
	newEmergencies []string
	departmentQRs  map[string]*domain.DepartmentQR
	newQRs         []string
	feedback       map[string]*domain.Feedback
}

var _ store.Tx = (*tx)(nil)

func newTx(s *Store) *tx {
	t := &tx{
		s:    s,
		held: make(map[string]struct{}),
		staged: stagedState{
			departments:   make(map[string]*domain.Department),
			queues:        make(map[string]*domain.Queue),
			tickets:       make(map[string]*domain.Ticket),
			newTickets:    make(map[string][]string),
			emergencies:   make(map[string]*domain.Emergency),
			departmentQRs: make(map[string]*domain.DepartmentQR),
			feedback:      make(map[string]*domain.Feedback),
		},
	}
	t.reader = &reader{mu: &s.mu, v: overlayView{t}}
	return t
}

func (t *tx) lock(ctx context.Context, key string) error {
	if _, ok := t.held[key]; ok {
		return nil
	}
	unlock, err := t.s.locks.Lock(ctx, key)
	if err != nil {
		return err
	}
	t.held[key] = struct{}{}
	t.unlocks = append(t.unlocks, unlock)
	return nil
}

func (t *tx) releaseLocks() {
	for i := len(t.unlocks) - 1; i >= 0; i-- {
		t.unlocks[i]()
	}
	t.unlocks = nil
}

func (t *tx) LockQueue(ctx context.Context, departmentID string) (*domain.Queue, error) {
	if err := t.lock(ctx, "queue:"+departmentID); err != nil {
		return nil, err
	}
	return t.GetQueue(ctx, departmentID)
}

func (t *tx) LockIdentity(ctx context.Context, identity domain.Identity) error {
	return t.lock(ctx, "identity:"+identity.Key())
}

func (t *tx) CreateDepartment(_ context.Context, dept *domain.Department, queue *domain.Queue) error {
	t.s.mu.RLock()
	for _, id := range (overlayView{t}).departmentIDs() {
		if existing := (overlayView{t}).department(id); existing != nil && strings.EqualFold(existing.Name, dept.Name) {
			t.s.mu.RUnlock()
			return domain.ErrDepartmentExists
		}
	}
	t.s.mu.RUnlock()

	now := t.s.now()
	if dept.ID == "" {
		dept.ID = uuid.NewString()
	}
	dept.CreatedAt, dept.UpdatedAt = now, now
	if queue.ID == "" {
		queue.ID = uuid.NewString()
	}
	queue.DepartmentID = dept.ID
	queue.CreatedAt, queue.UpdatedAt = now, now
	if queue.LastStaffActivityAt.IsZero() {
		queue.LastStaffActivityAt = now
	}

	d := *dept
	t.staged.departments[dept.ID] = &d
	t.staged.queues[dept.ID] = queue.Clone()
	t.newDepts = append(t.newDepts, dept.ID)
	return nil
}

func (t *tx) UpdateDepartment(ctx context.Context, dept *domain.Department) error {
	if _, err := t.GetDepartment(ctx, dept.ID); err != nil {
		return err
	}
	dept.UpdatedAt = t.s.now()
	d := *dept
	t.staged.departments[dept.ID] = &d
	return nil
}

func (t *tx) UpdateQueue(ctx context.Context, queue *domain.Queue) error {
	if _, err := t.GetQueue(ctx, queue.DepartmentID); err != nil {
		return err
	}
	queue.UpdatedAt = t.s.now()
	t.staged.queues[queue.DepartmentID] = queue.Clone()
	return nil
}

func (t *tx) InsertTicket(_ context.Context, ticket *domain.Ticket) error {
	if ticket.ID == "" {
		ticket.ID = uuid.NewString()
	}
	ticket.Seq = t.s.ticketSeq.Add(1)
	if ticket.CreatedAt.IsZero() {
		ticket.CreatedAt = t.s.now()
	}
	t.staged.tickets[ticket.ID] = ticket.Clone()
	t.staged.newTickets[ticket.QueueID] = append(t.staged.newTickets[ticket.QueueID], ticket.ID)
	return nil
}

func (t *tx) UpdateTicket(ctx context.Context, ticket *domain.Ticket) error {
	if _, err := t.GetTicket(ctx, ticket.ID); err != nil {
		return err
	}
	t.staged.tickets[ticket.ID] = ticket.Clone()
	return nil
}

func (t *tx) InsertEmergency(_ context.Context, emergency *domain.Emergency) error {
	if emergency.ID == "" {
		emergency.ID = uuid.NewString()
	}
	now := t.s.now()
	emergency.CreatedAt, emergency.UpdatedAt = now, now
	t.staged.emergencies[emergency.ID] = emergency.Clone()
	t.staged.newEmergencies = append(t.staged.newEmergencies, emergency.ID)
	return nil
}

func (t *tx) UpdateEmergency(ctx context.Context, emergency *domain.Emergency) error {
	if _, err := t.GetEmergency(ctx, emergency.ID); err != nil {
		return err
	}
	emergency.UpdatedAt = t.s.now()
	t.staged.emergencies[emergency.ID] = emergency.Clone()
	return nil
}

func (t *tx) InsertDepartmentQR(_ context.Context, qr *domain.DepartmentQR) error {
	if qr.ID == "" {
		qr.ID = uuid.NewString()
	}
	qr.CreatedAt = t.s.now()
	cp := *qr
	t.staged.departmentQRs[qr.ID] = &cp
	t.staged.newQRs = append(t.staged.newQRs, qr.ID)
	return nil
}

func (t *tx) InsertFeedback(ctx context.Context, feedback *domain.Feedback) error {
	if _, err := t.GetFeedbackByTicket(ctx, feedback.TicketID); err == nil {
		return domain.ErrFeedbackExists
	}
	if feedback.ID == "" {
		feedback.ID = uuid.NewString()
	}
	feedback.CreatedAt = t.s.now()
	t.staged.feedback[feedback.TicketID] = feedback.Clone()
	return nil
}

func (t *tx) commit() {
	s := t.s
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, dept := range t.staged.departments {
		s.departments[id] = dept
	}
	for id, q := range t.staged.queues {
		s.queues[id] = q
	}
	for id, ticket := range t.staged.tickets {
		s.tickets[id] = ticket
	}
	for queueID, ids := range t.staged.newTickets {
		s.queueTickets[queueID] = append(s.queueTickets[queueID], ids...)
	}
	for id, e := range t.staged.emergencies {
		s.emergencies[id] = e
	}
	s.emergencyOrder = append(s.emergencyOrder, t.staged.newEmergencies...)
	for id, qr := range t.staged.departmentQRs {
		s.departmentQRs[id] = qr
	}
	s.qrOrder = append(s.qrOrder, t.staged.newQRs...)
	for ticketID, fb := range t.staged.feedback {
		s.feedback[ticketID] = fb
	}
}

// overlayView resolves staged entities first, then committed ones.
type overlayView struct{ t *tx }

func (v overlayView) department(id string) *domain.Department {
	if d, ok := v.t.staged.departments[id]; ok {
		return d
	}
	return v.t.s.departments[id]
}

func (v overlayView) departmentIDs() []string {
	ids := committedView{v.t.s}.departmentIDs()
	return append(ids, v.t.newDepts...)
}

func (v overlayView) queue(departmentID string) *domain.Queue {
	if q, ok := v.t.staged.queues[departmentID]; ok {
		return q
	}
	return v.t.s.queues[departmentID]
}

func (v overlayView) ticket(id string) *domain.Ticket {
	if ticket, ok := v.t.staged.tickets[id]; ok {
		return ticket
	}
	return v.t.s.tickets[id]
}

func (v overlayView) ticketIDs(queueID string) []string {
	committed := v.t.s.queueTickets[queueID]
	staged := v.t.staged.newTickets[queueID]
	if len(staged) == 0 {
		return committed
	}
	ids := make([]string, 0, len(committed)+len(staged))
	ids = append(ids, committed...)
	return append(ids, staged...)
}

func (v overlayView) allTicketIDs() []string {
	ids := committedView{v.t.s}.allTicketIDs()
	for _, staged := range v.t.staged.newTickets {
		ids = append(ids, staged...)
	}
	return ids
}

func (v overlayView) emergency(id string) *domain.Emergency {
	if e, ok := v.t.staged.emergencies[id]; ok {
		return e
	}
	return v.t.s.emergencies[id]
}

func (v overlayView) emergencyIDs() []string {
	committed := v.t.s.emergencyOrder
	if len(v.t.staged.newEmergencies) == 0 {
		return committed
	}
	ids := make([]string, 0, len(committed)+len(v.t.staged.newEmergencies))
	ids = append(ids, committed...)
	return append(ids, v.t.staged.newEmergencies...)
}

func (v overlayView) departmentQR(id string) *domain.DepartmentQR {
	if qr, ok := v.t.staged.departmentQRs[id]; ok {
		return qr
	}
	return v.t.s.departmentQRs[id]
}

func (v overlayView) departmentQRIDs() []string {
	committed := v.t.s.qrOrder
	if len(v.t.staged.newQRs) == 0 {
		return committed
	}
	ids := make([]string, 0, len(committed)+len(v.t.staged.newQRs))
	ids = append(ids, committed...)
	return append(ids, v.t.staged.newQRs...)
}

func (v overlayView) feedbackFor(ticketID string) *domain.Feedback {
	if fb, ok := v.t.staged.feedback[ticketID]; ok {
		return fb
	}
	return v.t.s.feedback[ticketID]
}
