package service

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/campusflow/campus-queue/internal/auth"
	"github.com/campusflow/campus-queue/internal/domain"
	"github.com/campusflow/campus-queue/internal/events"
	"github.com/campusflow/campus-queue/internal/store"
	apperrors "github.com/campusflow/campus-queue/pkg/util"
)

// EmergencyService runs the priority interrupt workflow.
type EmergencyService struct {
	engine
}

// EmergencyInput is a student's request for priority service.
type EmergencyInput struct {
	DepartmentID string
	Reason       string
	Proof        string
}

// StartInput selects the request to serve. An empty RequestID picks the oldest
// approved request.
type StartInput struct {
	RequestID string
	Note      string
}

// EmergencyStatus is the public emergency view of a department.
type EmergencyStatus struct {
	DepartmentID string
	Active       bool
	Reason       string
}

// NewEmergencyService constructs the service.
func NewEmergencyService(deps Dependencies) *EmergencyService {
	return &EmergencyService{engine: newEngine(deps)}
}

// Request files a pending emergency request for the actor.
func (s *EmergencyService) Request(ctx context.Context, actor domain.Actor, input EmergencyInput) (*domain.Emergency, error) {
	emergency, err := s.request(ctx, actor, input)
	return emergency, s.finish("request_emergency", err)
}

func (s *EmergencyService) request(ctx context.Context, actor domain.Actor, input EmergencyInput) (*domain.Emergency, error) {
	if err := auth.Authorize(actor, auth.CapRequestEmergency); err != nil {
		return nil, err
	}
	reason := strings.TrimSpace(input.Reason)
	proof := strings.TrimSpace(input.Proof)
	if reason == "" || proof == "" {
		return nil, apperrors.NewValidationError("reason and proof are required", map[string]any{
			"reason": reason != "",
			"proof":  proof != "",
		})
	}

	var (
		ob        outbox
		emergency *domain.Emergency
	)
	err := s.store.Atomic(ctx, func(ctx context.Context, tx store.Tx) error {
		if err := tx.LockIdentity(ctx, actor.Identity); err != nil {
			return err
		}
		dept, err := tx.GetDepartment(ctx, input.DepartmentID)
		if err != nil {
			return err
		}
		if !dept.IsActive {
			return domain.ErrDepartmentInactive
		}
		open, err := tx.ListEmergencies(ctx, store.EmergencyFilter{
			DepartmentID: dept.ID,
			RequesterID:  actor.Identity.UserID,
			States:       domain.OpenEmergencyStates,
		})
		if err != nil {
			return err
		}
		if len(open) > 0 {
			return domain.ErrEmergencyAlreadyRequested
		}

		emergency = &domain.Emergency{
			DepartmentID: dept.ID,
			RequesterID:  actor.Identity.UserID,
			Reason:       reason,
			Proof:        proof,
			State:        domain.EmergencyPending,
		}
		if err := tx.InsertEmergency(ctx, emergency); err != nil {
			return err
		}
		ob.add(events.EventEmergencyRequested, events.DepartmentScope(dept.ID), emergencyPayload(emergency))
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("emergency requested",
		zap.String("department_id", emergency.DepartmentID),
		zap.String("request_id", emergency.ID))
	s.flush(ctx, &ob)
	return emergency, nil
}

// Approve moves a pending request of the staff member's department to approved.
func (s *EmergencyService) Approve(ctx context.Context, actor domain.Actor, requestID string) (*domain.Emergency, error) {
	emergency, err := s.review(ctx, actor, requestID, domain.EmergencyApprove, events.EventEmergencyApproved)
	return emergency, s.finish("approve_emergency", err)
}

// Reject moves a pending request of the staff member's department to rejected.
func (s *EmergencyService) Reject(ctx context.Context, actor domain.Actor, requestID string) (*domain.Emergency, error) {
	emergency, err := s.review(ctx, actor, requestID, domain.EmergencyReject, events.EventEmergencyRejected)
	return emergency, s.finish("reject_emergency", err)
}

func (s *EmergencyService) review(ctx context.Context, actor domain.Actor, requestID string, action domain.EmergencyAction, eventType events.EventType) (*domain.Emergency, error) {
	if err := auth.Authorize(actor, auth.CapReviewEmergency); err != nil {
		return nil, err
	}
	departmentID, err := actor.StaffDepartment()
	if err != nil {
		return nil, err
	}

	var (
		ob        outbox
		emergency *domain.Emergency
	)
	err = s.store.Atomic(ctx, func(ctx context.Context, tx store.Tx) error {
		if _, err := tx.LockQueue(ctx, departmentID); err != nil {
			return err
		}
		emergency, err = tx.GetEmergency(ctx, requestID)
		if err != nil {
			return err
		}
		if emergency.DepartmentID != departmentID {
			return domain.ErrEmergencyNotFound
		}
		if err := emergency.Apply(action, s.now()); err != nil {
			return err
		}
		if err := tx.UpdateEmergency(ctx, emergency); err != nil {
			return err
		}
		payload := emergencyPayload(emergency)
		ob.add(eventType, events.UserScope(emergency.RequesterID), payload)
		ob.add(eventType, events.DepartmentScope(departmentID), payload)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("emergency reviewed",
		zap.String("department_id", departmentID),
		zap.String("request_id", emergency.ID),
		zap.String("state", string(emergency.State)))
	s.flush(ctx, &ob)
	return emergency, nil
}

// Start activates an approved request and pauses normal service.
func (s *EmergencyService) Start(ctx context.Context, actor domain.Actor, input StartInput) (*domain.Emergency, error) {
	emergency, err := s.start(ctx, actor, input)
	return emergency, s.finish("start_emergency", err)
}

func (s *EmergencyService) start(ctx context.Context, actor domain.Actor, input StartInput) (*domain.Emergency, error) {
	if err := auth.Authorize(actor, auth.CapRunEmergency); err != nil {
		return nil, err
	}
	departmentID, err := actor.StaffDepartment()
	if err != nil {
		return nil, err
	}

	var (
		ob        outbox
		emergency *domain.Emergency
	)
	err = s.store.Atomic(ctx, func(ctx context.Context, tx store.Tx) error {
		queue, err := tx.LockQueue(ctx, departmentID)
		if err != nil {
			return err
		}
		if queue.EmergencyActive {
			return domain.ErrEmergencyAlreadyActive
		}

		emergency, err = s.pickApproved(ctx, tx, departmentID, strings.TrimSpace(input.RequestID))
		if err != nil {
			return err
		}
		if err := emergency.Apply(domain.EmergencyStart, s.now()); err != nil {
			return err
		}
		note := strings.TrimSpace(input.Note)
		emergency.Note = note
		if err := tx.UpdateEmergency(ctx, emergency); err != nil {
			return err
		}

		queue.EmergencyActive = true
		queue.EmergencyReason = note
		if queue.EmergencyReason == "" {
			queue.EmergencyReason = domain.DefaultEmergencyReason
		}
		queue.RecordStaffActivity(s.now())
		if err := tx.UpdateQueue(ctx, queue); err != nil {
			return err
		}

		payload := emergencyPayload(emergency)
		payload.Reason = queue.EmergencyReason
		ob.add(events.EventEmergencyStarted, events.DepartmentScope(departmentID), payload)
		ob.add(events.EventEmergencyYourTurn, events.UserScope(emergency.RequesterID), payload)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("emergency started",
		zap.String("department_id", departmentID),
		zap.String("request_id", emergency.ID))
	s.flush(ctx, &ob)
	return emergency, nil
}

func (s *EmergencyService) pickApproved(ctx context.Context, tx store.Tx, departmentID, requestID string) (*domain.Emergency, error) {
	if requestID != "" {
		emergency, err := tx.GetEmergency(ctx, requestID)
		if err != nil {
			return nil, err
		}
		if emergency.DepartmentID != departmentID {
			return nil, domain.ErrEmergencyNotFound
		}
		return emergency, nil
	}
	approved, err := tx.ListEmergencies(ctx, store.EmergencyFilter{
		DepartmentID: departmentID,
		States:       []domain.EmergencyState{domain.EmergencyApproved},
	})
	if err != nil {
		return nil, err
	}
	if len(approved) == 0 {
		return nil, domain.ErrNoApprovedEmergency
	}
	return &approved[0], nil
}

// End resolves the active request and resumes normal service.
func (s *EmergencyService) End(ctx context.Context, actor domain.Actor) (*domain.Emergency, error) {
	emergency, err := s.end(ctx, actor)
	return emergency, s.finish("end_emergency", err)
}

func (s *EmergencyService) end(ctx context.Context, actor domain.Actor) (*domain.Emergency, error) {
	if err := auth.Authorize(actor, auth.CapRunEmergency); err != nil {
		return nil, err
	}
	departmentID, err := actor.StaffDepartment()
	if err != nil {
		return nil, err
	}

	var (
		ob       outbox
		resolved *domain.Emergency
	)
	err = s.store.Atomic(ctx, func(ctx context.Context, tx store.Tx) error {
		queue, err := tx.LockQueue(ctx, departmentID)
		if err != nil {
			return err
		}
		if !queue.EmergencyActive {
			return domain.ErrNoActiveEmergency
		}
		queue.RecordStaffActivity(s.now())
		resolved, err = s.resolveActive(ctx, tx, queue, &ob)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("emergency ended", zap.String("department_id", departmentID))
	s.flush(ctx, &ob)
	return resolved, nil
}

// resolveActive resolves every active request of the locked queue's department,
// clears the emergency flag and writes the queue. The returned request is nil
// when the flag was set without one.
func (e engine) resolveActive(ctx context.Context, tx store.Tx, queue *domain.Queue, ob *outbox) (*domain.Emergency, error) {
	active, err := tx.ListEmergencies(ctx, store.EmergencyFilter{
		DepartmentID: queue.DepartmentID,
		States:       []domain.EmergencyState{domain.EmergencyActive},
	})
	if err != nil {
		return nil, err
	}

	var last *domain.Emergency
	for i := range active {
		emergency := &active[i]
		if err := emergency.Apply(domain.EmergencyResolve, e.now()); err != nil {
			return nil, err
		}
		if err := tx.UpdateEmergency(ctx, emergency); err != nil {
			return nil, err
		}
		ob.add(events.EventEmergencyServed, events.UserScope(emergency.RequesterID), emergencyPayload(emergency))
		last = emergency
	}

	queue.EmergencyActive = false
	queue.EmergencyReason = ""
	if err := tx.UpdateQueue(ctx, queue); err != nil {
		return nil, err
	}
	ob.add(events.EventEmergencyEnded, events.DepartmentScope(queue.DepartmentID), events.EmergencyPayload{
		DepartmentID: queue.DepartmentID,
		State:        domain.EmergencyResolved,
	})
	return last, nil
}

// ListPending returns the staff member's pending requests, oldest first.
func (s *EmergencyService) ListPending(ctx context.Context, actor domain.Actor) ([]domain.Emergency, error) {
	pending, err := s.listPending(ctx, actor)
	return pending, s.finish("list_pending_emergencies", err)
}

func (s *EmergencyService) listPending(ctx context.Context, actor domain.Actor) ([]domain.Emergency, error) {
	if err := auth.Authorize(actor, auth.CapReviewEmergency); err != nil {
		return nil, err
	}
	departmentID, err := actor.StaffDepartment()
	if err != nil {
		return nil, err
	}
	return s.store.ListEmergencies(ctx, store.EmergencyFilter{
		DepartmentID: departmentID,
		States:       []domain.EmergencyState{domain.EmergencyPending},
	})
}

// CountPending returns the number of pending requests for the staff member.
func (s *EmergencyService) CountPending(ctx context.Context, actor domain.Actor) (int, error) {
	pending, err := s.listPending(ctx, actor)
	return len(pending), s.finish("count_pending_emergencies", err)
}

// Status reports whether a department is serving an emergency.
func (s *EmergencyService) Status(ctx context.Context, departmentID string) (*EmergencyStatus, error) {
	queue, err := s.store.GetQueue(ctx, departmentID)
	if err != nil {
		return nil, s.finish("emergency_status", err)
	}
	return &EmergencyStatus{
		DepartmentID: departmentID,
		Active:       queue.EmergencyActive,
		Reason:       queue.EmergencyReason,
	}, s.finish("emergency_status", nil)
}

func emergencyPayload(e *domain.Emergency) events.EmergencyPayload {
	return events.EmergencyPayload{
		RequestID:    e.ID,
		DepartmentID: e.DepartmentID,
		RequesterID:  e.RequesterID,
		State:        e.State,
		Reason:       e.Reason,
		Note:         e.Note,
	}
}
