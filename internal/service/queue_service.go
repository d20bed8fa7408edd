package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/campusflow/campus-queue/internal/auth"
	"github.com/campusflow/campus-queue/internal/domain"
	"github.com/campusflow/campus-queue/internal/events"
	"github.com/campusflow/campus-queue/internal/store"
	apperrors "github.com/campusflow/campus-queue/pkg/util"
)

// QueueService runs the ticket lifecycle: join, cancel, call next, complete
// and the staff queue controls.
type QueueService struct {
	engine
	sequencer Sequencer
	governor  Governor
	crowd     *CrowdEstimator

	requireEntry  bool
	entryLocation *time.Location
}

// JoinInput describes a join request.
type JoinInput struct {
	DepartmentID string
	Origin       domain.TicketOrigin
	GuestName    string
	GuestPhone   string
	// EntryID is a department QR id. When set the ticket goes to the QR's
	// department.
	EntryID string
}

// TicketView is a ticket plus its live position. Position is 1 for the next
// ticket to be called and 0 while the ticket is being served.
type TicketView struct {
	Ticket               *domain.Ticket
	Position             int
	EstimatedWaitMinutes int
}

// QueueStats summarises a department's queue for staff.
type QueueStats struct {
	DepartmentID     string
	IsOpen           bool
	ClosedByCapacity bool
	Capacity         *int
	EmergencyActive  bool
	EmergencyReason  string
	CurrentNumber    string
	Total            int
	Served           int
	NoShow           int
	Waiting          int
	Remaining        int
}

// CurrentServing is the public view of what a department is serving.
type CurrentServing struct {
	DepartmentID    string
	Number          string
	IsOpen          bool
	EmergencyActive bool
	EmergencyReason string
}

// NewQueueService constructs the service.
func NewQueueService(deps Dependencies) *QueueService {
	return &QueueService{
		engine:    newEngine(deps),
		sequencer: NewSequencer(deps.Queue.TicketPrefix),
		crowd:     NewCrowdEstimator(deps.Store, deps.Crowd),

		requireEntry:  deps.Queue.RequireGuestEntry,
		entryLocation: deps.Queue.EntryLocation,
	}
}

// JoinQueue issues a waiting ticket to the actor. Staff may join on behalf of a
// walk-in guest; the walk-in receives a fresh guest identity.
func (s *QueueService) JoinQueue(ctx context.Context, actor domain.Actor, input JoinInput) (*TicketView, error) {
	view, err := s.joinQueue(ctx, actor, input)
	return view, s.finish("join_queue", err)
}

func (s *QueueService) joinQueue(ctx context.Context, actor domain.Actor, input JoinInput) (*TicketView, error) {
	identity := actor.Identity
	departmentID := strings.TrimSpace(input.DepartmentID)
	entryID := strings.TrimSpace(input.EntryID)
	switch {
	case input.Origin == domain.OriginStaff:
		if err := auth.Authorize(actor, auth.CapWalkIn); err != nil {
			return nil, err
		}
		if err := requireDepartment(actor, input.DepartmentID); err != nil {
			return nil, err
		}
		identity = domain.GuestIdentity(uuid.NewString())
		entryID = ""
	default:
		if err := auth.Authorize(actor, auth.CapJoinQueue); err != nil {
			return nil, err
		}
		if entryID == "" && s.requireEntry && actor.Role == domain.RoleGuest {
			return nil, domain.ErrEntryRequired
		}
	}
	if departmentID == "" && entryID == "" {
		return nil, apperrors.NewValidationError("department_id is required", nil)
	}
	if !input.Origin.Valid() {
		input.Origin = domain.OriginApp
		if entryID != "" {
			input.Origin = domain.OriginQR
		}
	}
	if err := identity.Validate(); err != nil {
		return nil, err
	}

	var (
		ob   outbox
		view TicketView
	)
	err := s.store.Atomic(ctx, func(ctx context.Context, tx store.Tx) error {
		if err := tx.LockIdentity(ctx, identity); err != nil {
			return err
		}
		if _, err := tx.FindActiveTicket(ctx, identity); err == nil {
			return domain.ErrAlreadyInQueue
		} else if !errors.Is(err, domain.ErrTicketNotFound) {
			return err
		}

		if entryID != "" {
			resolved, err := s.entryDepartment(ctx, tx, entryID, departmentID)
			if err != nil {
				return err
			}
			departmentID = resolved
		}
		dept, err := tx.GetDepartment(ctx, departmentID)
		if err != nil {
			return err
		}
		if !dept.IsActive {
			return domain.ErrDepartmentInactive
		}

		queue, err := tx.LockQueue(ctx, dept.ID)
		if err != nil {
			return err
		}
		number, active, err := s.sequencer.Issue(ctx, tx, queue)
		if err != nil {
			return err
		}

		ticket := &domain.Ticket{
			QueueID:      queue.ID,
			DepartmentID: dept.ID,
			Number:       number,
			Requester:    identity,
			GuestName:    strings.TrimSpace(input.GuestName),
			GuestPhone:   strings.TrimSpace(input.GuestPhone),
			Origin:       input.Origin,
			State:        domain.TicketWaiting,
			CreatedAt:    s.now(),
		}
		if err := tx.InsertTicket(ctx, ticket); err != nil {
			return err
		}

		ob.add(events.EventTicketJoined, events.DepartmentScope(dept.ID), ticketPayload(ticket))
		if input.Origin == domain.OriginStaff {
			queue.RecordStaffActivity(s.now())
		}
		if s.governor.AfterJoin(queue, active+1) {
			ob.add(events.EventQueueStatusChanged, events.DepartmentScope(dept.ID), queueStatusPayload(queue, "capacity reached"))
		}
		if err := tx.UpdateQueue(ctx, queue); err != nil {
			return err
		}

		ahead, err := tx.CountWaitingAhead(ctx, queue.ID, ticket.Seq)
		if err != nil {
			return err
		}
		view = TicketView{
			Ticket:               ticket,
			Position:             ahead + 1,
			EstimatedWaitMinutes: ahead * s.crowd.averageServiceMinutes(queue),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("ticket issued",
		zap.String("department_id", view.Ticket.DepartmentID),
		zap.String("number", view.Ticket.Number),
		zap.String("origin", string(view.Ticket.Origin)))
	s.flush(ctx, &ob)
	return &view, nil
}

// CancelTicket moves the actor's active ticket to no-show.
func (s *QueueService) CancelTicket(ctx context.Context, actor domain.Actor) (*domain.Ticket, error) {
	ticket, err := s.cancelTicket(ctx, actor)
	return ticket, s.finish("cancel_ticket", err)
}

func (s *QueueService) cancelTicket(ctx context.Context, actor domain.Actor) (*domain.Ticket, error) {
	if err := auth.Authorize(actor, auth.CapCancelTicket); err != nil {
		return nil, err
	}
	identity := actor.Identity
	if err := identity.Validate(); err != nil {
		return nil, err
	}

	var (
		ob     outbox
		ticket *domain.Ticket
	)
	err := s.store.Atomic(ctx, func(ctx context.Context, tx store.Tx) error {
		if err := tx.LockIdentity(ctx, identity); err != nil {
			return err
		}
		found, err := tx.FindActiveTicket(ctx, identity)
		if errors.Is(err, domain.ErrTicketNotFound) {
			return domain.ErrNotInQueue
		}
		if err != nil {
			return err
		}

		queue, err := tx.LockQueue(ctx, found.DepartmentID)
		if err != nil {
			return err
		}
		// staff may have completed it before the queue lock was taken
		ticket, err = tx.GetTicket(ctx, found.ID)
		if err != nil {
			return err
		}
		if !ticket.State.IsActive() {
			return domain.ErrNotInQueue
		}

		if err := ticket.Apply(domain.ActionCancel, s.now()); err != nil {
			return err
		}
		if queue.IsCurrent(ticket.ID) {
			queue.CurrentTicketID = nil
		}
		if err := tx.UpdateTicket(ctx, ticket); err != nil {
			return err
		}

		active, err := tx.CountTickets(ctx, queue.ID, domain.ActiveTicketStates...)
		if err != nil {
			return err
		}
		ob.add(events.EventTicketCancelled, events.DepartmentScope(queue.DepartmentID), ticketPayload(ticket))
		if s.governor.AfterRelease(queue, active) {
			ob.add(events.EventQueueStatusChanged, events.DepartmentScope(queue.DepartmentID), queueStatusPayload(queue, "capacity available"))
		}
		return tx.UpdateQueue(ctx, queue)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("ticket cancelled", zap.String("department_id", ticket.DepartmentID), zap.String("number", ticket.Number))
	s.flush(ctx, &ob)
	return ticket, nil
}

// CallNext serves the oldest waiting ticket. A ticket still being served is
// completed in the same unit so exactly one ticket is ever serving.
func (s *QueueService) CallNext(ctx context.Context, actor domain.Actor, departmentID string) (*domain.Ticket, error) {
	ticket, err := s.callNext(ctx, actor, departmentID)
	return ticket, s.finish("call_next", err)
}

func (s *QueueService) callNext(ctx context.Context, actor domain.Actor, departmentID string) (*domain.Ticket, error) {
	if err := authorizeStaff(actor, auth.CapOperateQueue, departmentID); err != nil {
		return nil, err
	}

	var (
		ob   outbox
		next *domain.Ticket
	)
	err := s.store.Atomic(ctx, func(ctx context.Context, tx store.Tx) error {
		queue, err := tx.LockQueue(ctx, departmentID)
		if err != nil {
			return err
		}
		if queue.EmergencyActive {
			return domain.ErrEmergencyActive
		}
		if !queue.IsOpen && !queue.ClosedByCapacity {
			return domain.ErrQueueClosed
		}

		next, err = tx.OldestWaiting(ctx, queue.ID)
		if errors.Is(err, domain.ErrTicketNotFound) {
			return domain.ErrNoTicketsWaiting
		}
		if err != nil {
			return err
		}

		released := false
		if queue.CurrentTicketID != nil {
			previous, err := tx.GetTicket(ctx, *queue.CurrentTicketID)
			if err != nil {
				return err
			}
			if previous.State == domain.TicketServing {
				if err := previous.Apply(domain.ActionComplete, s.now()); err != nil {
					return err
				}
				if err := tx.UpdateTicket(ctx, previous); err != nil {
					return err
				}
				ob.add(events.EventTicketCompleted, events.DepartmentScope(departmentID), ticketPayload(previous))
				ob.add(events.EventTicketServed, events.IdentityScope(previous.Requester), ticketPayload(previous))
				released = true
			}
			queue.CurrentTicketID = nil
		}

		if err := next.Apply(domain.ActionCall, s.now()); err != nil {
			return err
		}
		if err := tx.UpdateTicket(ctx, next); err != nil {
			return err
		}
		id := next.ID
		queue.CurrentTicketID = &id
		queue.RecordStaffActivity(s.now())

		if released {
			active, err := tx.CountTickets(ctx, queue.ID, domain.ActiveTicketStates...)
			if err != nil {
				return err
			}
			if s.governor.AfterRelease(queue, active) {
				ob.add(events.EventQueueStatusChanged, events.DepartmentScope(departmentID), queueStatusPayload(queue, "capacity available"))
			}
		}

		ob.add(events.EventTicketCalled, events.DepartmentScope(departmentID), ticketPayload(next))
		ob.add(events.EventTicketYourTurn, events.IdentityScope(next.Requester), ticketPayload(next))
		return tx.UpdateQueue(ctx, queue)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("ticket called", zap.String("department_id", departmentID), zap.String("number", next.Number))
	s.flush(ctx, &ob)
	s.publishCrowd(ctx, departmentID)
	return next, nil
}

// CompleteCurrent completes the ticket the queue is serving.
func (s *QueueService) CompleteCurrent(ctx context.Context, actor domain.Actor, departmentID string) (*domain.Ticket, error) {
	ticket, err := s.completeCurrent(ctx, actor, departmentID)
	return ticket, s.finish("complete_current", err)
}

func (s *QueueService) completeCurrent(ctx context.Context, actor domain.Actor, departmentID string) (*domain.Ticket, error) {
	if err := authorizeStaff(actor, auth.CapOperateQueue, departmentID); err != nil {
		return nil, err
	}

	var (
		ob     outbox
		ticket *domain.Ticket
	)
	err := s.store.Atomic(ctx, func(ctx context.Context, tx store.Tx) error {
		queue, err := tx.LockQueue(ctx, departmentID)
		if err != nil {
			return err
		}
		if queue.EmergencyActive {
			return domain.ErrEmergencyActive
		}
		if queue.CurrentTicketID == nil {
			return domain.ErrNoActiveTicket
		}

		ticket, err = tx.GetTicket(ctx, *queue.CurrentTicketID)
		if err != nil {
			return err
		}
		if err := ticket.Apply(domain.ActionComplete, s.now()); err != nil {
			return err
		}
		if err := tx.UpdateTicket(ctx, ticket); err != nil {
			return err
		}
		queue.CurrentTicketID = nil
		queue.RecordStaffActivity(s.now())

		active, err := tx.CountTickets(ctx, queue.ID, domain.ActiveTicketStates...)
		if err != nil {
			return err
		}
		ob.add(events.EventTicketCompleted, events.DepartmentScope(departmentID), ticketPayload(ticket))
		ob.add(events.EventTicketServed, events.IdentityScope(ticket.Requester), ticketPayload(ticket))
		if s.governor.AfterRelease(queue, active) {
			ob.add(events.EventQueueStatusChanged, events.DepartmentScope(departmentID), queueStatusPayload(queue, "capacity available"))
		}
		return tx.UpdateQueue(ctx, queue)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("ticket completed", zap.String("department_id", departmentID), zap.String("number", ticket.Number))
	s.flush(ctx, &ob)
	s.publishCrowd(ctx, departmentID)
	return ticket, nil
}

// ToggleQueue flips the open flag. A manual toggle always clears the
// capacity-closed marker.
func (s *QueueService) ToggleQueue(ctx context.Context, actor domain.Actor, departmentID string) (*domain.Queue, error) {
	queue, err := s.mutateQueue(ctx, actor, departmentID, "toggle_queue", func(queue *domain.Queue, _ int, ob *outbox) error {
		queue.IsOpen = !queue.IsOpen
		queue.ClosedByCapacity = false
		reason := "closed by staff"
		if queue.IsOpen {
			reason = "opened by staff"
		}
		ob.add(events.EventQueueStatusChanged, events.DepartmentScope(departmentID), queueStatusPayload(queue, reason))
		return nil
	})
	return queue, err
}

// SetCapacity replaces the limit; nil removes it.
func (s *QueueService) SetCapacity(ctx context.Context, actor domain.Actor, departmentID string, capacity *int) (*domain.Queue, error) {
	return s.mutateQueue(ctx, actor, departmentID, "set_capacity", func(queue *domain.Queue, active int, ob *outbox) error {
		changed, err := s.governor.SetLimit(queue, capacity, active)
		if err != nil {
			return err
		}
		ob.add(events.EventQueueLimitUpdated, events.DepartmentScope(departmentID), queueStatusPayload(queue, ""))
		if changed {
			reason := "capacity available"
			if !queue.IsOpen {
				reason = "capacity reached"
			}
			ob.add(events.EventQueueStatusChanged, events.DepartmentScope(departmentID), queueStatusPayload(queue, reason))
		}
		return nil
	})
}

// IncreaseCapacity adds n slots and forces the queue open.
func (s *QueueService) IncreaseCapacity(ctx context.Context, actor domain.Actor, departmentID string, n int) (*domain.Queue, error) {
	return s.mutateQueue(ctx, actor, departmentID, "increase_capacity", func(queue *domain.Queue, _ int, ob *outbox) error {
		if err := s.governor.Increase(queue, n); err != nil {
			return err
		}
		ob.add(events.EventQueueStatusChanged, events.DepartmentScope(departmentID), queueStatusPayload(queue, "capacity increased"))
		return nil
	})
}

func (s *QueueService) mutateQueue(ctx context.Context, actor domain.Actor, departmentID, operation string, mutate func(*domain.Queue, int, *outbox) error) (*domain.Queue, error) {
	if err := authorizeStaff(actor, auth.CapOperateQueue, departmentID); err != nil {
		return nil, s.finish(operation, err)
	}

	var (
		ob     outbox
		result *domain.Queue
	)
	err := s.store.Atomic(ctx, func(ctx context.Context, tx store.Tx) error {
		queue, err := tx.LockQueue(ctx, departmentID)
		if err != nil {
			return err
		}
		active, err := tx.CountTickets(ctx, queue.ID, domain.ActiveTicketStates...)
		if err != nil {
			return err
		}
		if err := mutate(queue, active, &ob); err != nil {
			return err
		}
		queue.RecordStaffActivity(s.now())
		if err := tx.UpdateQueue(ctx, queue); err != nil {
			return err
		}
		result = queue.Clone()
		return nil
	})
	if err != nil {
		return nil, s.finish(operation, err)
	}

	s.logger.Info("queue updated",
		zap.String("operation", operation),
		zap.String("department_id", departmentID),
		zap.Bool("is_open", result.IsOpen),
		zap.Any("capacity", result.Capacity))
	s.flush(ctx, &ob)
	return result, s.finish(operation, nil)
}

// RestoreActiveTicket returns the actor's active ticket with its position, or
// nil when there is none. Clients call it to reconcile after reconnecting.
func (s *QueueService) RestoreActiveTicket(ctx context.Context, actor domain.Actor) (*TicketView, error) {
	view, err := s.restore(ctx, actor)
	return view, s.finish("restore_ticket", err)
}

func (s *QueueService) restore(ctx context.Context, actor domain.Actor) (*TicketView, error) {
	if err := auth.Authorize(actor, auth.CapViewOwnTicket); err != nil {
		return nil, err
	}
	if err := actor.Identity.Validate(); err != nil {
		return nil, err
	}
	ticket, err := s.store.FindActiveTicket(ctx, actor.Identity)
	if errors.Is(err, domain.ErrTicketNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	view := &TicketView{Ticket: ticket}
	if ticket.State == domain.TicketWaiting {
		ahead, err := s.store.CountWaitingAhead(ctx, ticket.QueueID, ticket.Seq)
		if err != nil {
			return nil, err
		}
		queue, err := s.store.GetQueue(ctx, ticket.DepartmentID)
		if err != nil {
			return nil, err
		}
		view.Position = ahead + 1
		view.EstimatedWaitMinutes = ahead * s.crowd.averageServiceMinutes(queue)
	}
	return view, nil
}

// History lists the actor's finished tickets, newest first.
func (s *QueueService) History(ctx context.Context, actor domain.Actor, limit int) ([]domain.Ticket, error) {
	if err := auth.Authorize(actor, auth.CapViewHistory); err != nil {
		return nil, s.finish("ticket_history", err)
	}
	identity := actor.Identity
	tickets, err := s.store.ListTickets(ctx, store.TicketFilter{
		Identity: &identity,
		States:   []domain.TicketState{domain.TicketCompleted, domain.TicketNoShow},
	})
	if err != nil {
		return nil, s.finish("ticket_history", err)
	}
	for i, j := 0, len(tickets)-1; i < j; i, j = i+1, j-1 {
		tickets[i], tickets[j] = tickets[j], tickets[i]
	}
	if limit > 0 && len(tickets) > limit {
		tickets = tickets[:limit]
	}
	return tickets, s.finish("ticket_history", nil)
}

// Stats summarises the staff member's queue.
func (s *QueueService) Stats(ctx context.Context, actor domain.Actor, departmentID string) (*QueueStats, error) {
	if err := authorizeStaff(actor, auth.CapOperateQueue, departmentID); err != nil {
		return nil, s.finish("queue_stats", err)
	}
	stats, err := s.stats(ctx, departmentID)
	return stats, s.finish("queue_stats", err)
}

func (s *QueueService) stats(ctx context.Context, departmentID string) (*QueueStats, error) {
	queue, err := s.store.GetQueue(ctx, departmentID)
	if err != nil {
		return nil, err
	}
	tickets, err := s.store.ListTickets(ctx, store.TicketFilter{QueueID: queue.ID})
	if err != nil {
		return nil, err
	}

	stats := &QueueStats{
		DepartmentID:     departmentID,
		IsOpen:           queue.IsOpen,
		ClosedByCapacity: queue.ClosedByCapacity,
		Capacity:         queue.Capacity,
		EmergencyActive:  queue.EmergencyActive,
		EmergencyReason:  queue.EmergencyReason,
		Total:            len(tickets),
	}
	for _, t := range tickets {
		switch t.State {
		case domain.TicketCompleted:
			stats.Served++
		case domain.TicketNoShow:
			stats.NoShow++
		case domain.TicketWaiting:
			stats.Waiting++
			stats.Remaining++
		case domain.TicketServing:
			stats.Remaining++
			stats.CurrentNumber = t.Number
		}
	}
	return stats, nil
}

// Current returns the number being served in a department, readable by anyone.
func (s *QueueService) Current(ctx context.Context, departmentID string) (*CurrentServing, error) {
	current, err := s.current(ctx, departmentID)
	return current, s.finish("current_serving", err)
}

func (s *QueueService) current(ctx context.Context, departmentID string) (*CurrentServing, error) {
	queue, err := s.store.GetQueue(ctx, departmentID)
	if err != nil {
		return nil, err
	}
	out := &CurrentServing{
		DepartmentID:    departmentID,
		IsOpen:          queue.IsOpen,
		EmergencyActive: queue.EmergencyActive,
		EmergencyReason: queue.EmergencyReason,
	}
	if queue.CurrentTicketID != nil {
		ticket, err := s.store.GetTicket(ctx, *queue.CurrentTicketID)
		if err != nil {
			return nil, err
		}
		out.Number = ticket.Number
	}
	return out, nil
}

// CrowdStatus returns the crowd estimate for a department.
func (s *QueueService) CrowdStatus(ctx context.Context, departmentID string) (CrowdEstimate, error) {
	estimate, err := s.crowd.Estimate(ctx, departmentID)
	return estimate, s.finish("crowd_status", err)
}

func (s *QueueService) publishCrowd(ctx context.Context, departmentID string) {
	estimate, err := s.crowd.Estimate(ctx, departmentID)
	if err != nil {
		s.logger.Warn("crowd estimate failed", zap.String("department_id", departmentID), zap.Error(err))
		return
	}
	s.publish(ctx, events.Event{
		Type:  events.EventQueueCrowdUpdated,
		Scope: events.DepartmentScope(departmentID),
		Payload: events.CrowdPayload{
			DepartmentID:         estimate.DepartmentID,
			QueueLength:          estimate.QueueLength,
			EstimatedWaitMinutes: estimate.EstimatedWaitMinutes,
			Level:                string(estimate.Level),
		},
	})
}

// authorizeStaff checks the capability and that the staff member works for
// departmentID.
func authorizeStaff(actor domain.Actor, capability auth.Capability, departmentID string) error {
	if err := auth.Authorize(actor, capability); err != nil {
		return err
	}
	return requireDepartment(actor, departmentID)
}

func requireDepartment(actor domain.Actor, departmentID string) error {
	assigned, err := actor.StaffDepartment()
	if err != nil {
		return err
	}
	if assigned != departmentID {
		return domain.ErrForbidden
	}
	return nil
}

func ticketPayload(t *domain.Ticket) events.TicketPayload {
	return events.TicketPayload{
		TicketID:     t.ID,
		DepartmentID: t.DepartmentID,
		Number:       t.Number,
		State:        t.State,
		Origin:       t.Origin,
	}
}

func queueStatusPayload(q *domain.Queue, reason string) events.QueueStatusPayload {
	var capacity *int
	if q.Capacity != nil {
		c := *q.Capacity
		capacity = &c
	}
	return events.QueueStatusPayload{
		DepartmentID:     q.DepartmentID,
		IsOpen:           q.IsOpen,
		Capacity:         capacity,
		ClosedByCapacity: q.ClosedByCapacity,
		Reason:           reason,
	}
}
