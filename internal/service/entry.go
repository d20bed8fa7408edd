package service

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/campusflow/campus-queue/internal/auth"
	"github.com/campusflow/campus-queue/internal/domain"
	"github.com/campusflow/campus-queue/internal/store"
	apperrors "github.com/campusflow/campus-queue/pkg/util"
)

// EntryView is a department QR together with the department it admits to.
type EntryView struct {
	QR         *domain.DepartmentQR
	Department *domain.Department
}

// FeedbackInput is a student's rating of a finished ticket.
type FeedbackInput struct {
	TicketID string
	Options  []string
	Comment  string
}

// IssueDepartmentQR returns today's entry code for the staff member's
// department. The active code is reused until it expires at the end of the day.
func (s *QueueService) IssueDepartmentQR(ctx context.Context, actor domain.Actor) (*EntryView, error) {
	view, err := s.issueDepartmentQR(ctx, actor)
	return view, s.finish("issue_department_qr", err)
}

func (s *QueueService) issueDepartmentQR(ctx context.Context, actor domain.Actor) (*EntryView, error) {
	if err := auth.Authorize(actor, auth.CapIssueEntry); err != nil {
		return nil, err
	}
	departmentID, err := actor.StaffDepartment()
	if err != nil {
		return nil, err
	}

	var (
		view    EntryView
		created bool
	)
	err = s.store.Atomic(ctx, func(ctx context.Context, tx store.Tx) error {
		// the queue lock keeps two staff members from minting parallel codes
		if _, err := tx.LockQueue(ctx, departmentID); err != nil {
			return err
		}
		dept, err := tx.GetDepartment(ctx, departmentID)
		if err != nil {
			return err
		}
		if !dept.IsActive {
			return domain.ErrDepartmentInactive
		}
		view.Department = dept

		now := s.now()
		qr, err := tx.FindActiveDepartmentQR(ctx, departmentID, now)
		if err == nil {
			view.QR = qr
			return nil
		}
		if !errors.Is(err, domain.ErrEntryNotFound) {
			return err
		}

		qr = &domain.DepartmentQR{
			DepartmentID: departmentID,
			ValidUntil:   domain.EndOfDay(now, s.entryLocation),
			IsActive:     true,
		}
		if err := tx.InsertDepartmentQR(ctx, qr); err != nil {
			return err
		}
		view.QR = qr
		created = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	if created {
		s.logger.Info("department qr issued",
			zap.String("department_id", departmentID),
			zap.String("qr_id", view.QR.ID),
			zap.Time("valid_until", view.QR.ValidUntil))
	}
	return &view, nil
}

// ResolveEntry tells a guest which department a scanned code belongs to.
func (s *QueueService) ResolveEntry(ctx context.Context, qrID string) (*EntryView, error) {
	view, err := s.resolveEntry(ctx, qrID)
	return view, s.finish("resolve_entry", err)
}

func (s *QueueService) resolveEntry(ctx context.Context, qrID string) (*EntryView, error) {
	qrID = strings.TrimSpace(qrID)
	if qrID == "" {
		return nil, apperrors.NewValidationError("qr_id is required", nil)
	}
	qr, err := s.store.GetDepartmentQR(ctx, qrID)
	if err != nil {
		return nil, err
	}
	if !qr.ValidAt(s.now()) {
		return nil, domain.ErrEntryExpired
	}
	dept, err := s.store.GetDepartment(ctx, qr.DepartmentID)
	if err != nil {
		return nil, err
	}
	if !dept.IsActive {
		return nil, domain.ErrDepartmentInactive
	}
	return &EntryView{QR: qr, Department: dept}, nil
}

// entryDepartment maps a QR id onto the department it admits to. A caller that
// also names a department must name the same one.
func (s *QueueService) entryDepartment(ctx context.Context, r store.Reader, entryID, departmentID string) (string, error) {
	qr, err := r.GetDepartmentQR(ctx, entryID)
	if err != nil {
		return "", err
	}
	if !qr.ValidAt(s.now()) {
		return "", domain.ErrEntryExpired
	}
	if departmentID != "" && departmentID != qr.DepartmentID {
		return "", apperrors.NewValidationError("qr_id belongs to another department", map[string]any{
			"qr_id":         entryID,
			"department_id": departmentID,
		})
	}
	return qr.DepartmentID, nil
}

// SubmitFeedback records the student's rating of one of their completed
// tickets. Each ticket takes feedback once.
func (s *QueueService) SubmitFeedback(ctx context.Context, actor domain.Actor, input FeedbackInput) (*domain.Feedback, error) {
	feedback, err := s.submitFeedback(ctx, actor, input)
	return feedback, s.finish("submit_feedback", err)
}

func (s *QueueService) submitFeedback(ctx context.Context, actor domain.Actor, input FeedbackInput) (*domain.Feedback, error) {
	if err := auth.Authorize(actor, auth.CapSubmitFeedback); err != nil {
		return nil, err
	}
	identity := actor.Identity
	if err := identity.Validate(); err != nil {
		return nil, err
	}
	ticketID := strings.TrimSpace(input.TicketID)
	if ticketID == "" {
		return nil, apperrors.NewValidationError("ticket_id is required", nil)
	}
	options := make([]string, 0, len(input.Options))
	for _, o := range input.Options {
		if o = strings.TrimSpace(o); o != "" {
			options = append(options, o)
		}
	}
	if len(options) == 0 {
		return nil, apperrors.NewValidationError("at least one option is required", nil)
	}
	comment := strings.TrimSpace(input.Comment)
	if utf8.RuneCountInString(comment) > domain.MaxFeedbackComment {
		return nil, apperrors.NewValidationError("comment is too long", map[string]any{"max": domain.MaxFeedbackComment})
	}

	feedback := &domain.Feedback{
		TicketID:  ticketID,
		StudentID: identity.UserID,
		Options:   options,
		Comment:   comment,
	}
	err := s.store.Atomic(ctx, func(ctx context.Context, tx store.Tx) error {
		if err := tx.LockIdentity(ctx, identity); err != nil {
			return err
		}
		ticket, err := tx.GetTicket(ctx, ticketID)
		if err != nil {
			return err
		}
		if ticket.Requester != identity {
			return domain.ErrTicketNotFound
		}
		if ticket.State != domain.TicketCompleted {
			return domain.ErrFeedbackNotAllowed
		}
		if _, err := tx.GetFeedbackByTicket(ctx, ticketID); err == nil {
			return domain.ErrFeedbackExists
		} else if !errors.Is(err, domain.ErrFeedbackNotFound) {
			return err
		}
		feedback.DepartmentID = ticket.DepartmentID
		return tx.InsertFeedback(ctx, feedback)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("feedback recorded",
		zap.String("department_id", feedback.DepartmentID),
		zap.String("ticket_id", feedback.TicketID),
		zap.Int("options", len(feedback.Options)))
	return feedback, nil
}
