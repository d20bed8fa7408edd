package service

import (
	"context"
	"errors"
	"net/http"

	"github.com/campusflow/campus-queue/internal/auth"
	"github.com/campusflow/campus-queue/internal/domain"
	apperrors "github.com/campusflow/campus-queue/pkg/util"
)

type errorMapping struct {
	target error
	code   string
	status int
}

// errorCatalogue gives each engine sentinel a stable public code.
var errorCatalogue = []errorMapping{
	{domain.ErrDepartmentNotFound, "DEPARTMENT_NOT_FOUND", http.StatusNotFound},
	{domain.ErrQueueNotFound, "QUEUE_NOT_FOUND", http.StatusNotFound},
	{domain.ErrTicketNotFound, "TICKET_NOT_FOUND", http.StatusNotFound},
	{domain.ErrEmergencyNotFound, "EMERGENCY_NOT_FOUND", http.StatusNotFound},
	{domain.ErrUserNotFound, "USER_NOT_FOUND", http.StatusNotFound},
	{domain.ErrNoApprovedEmergency, "NO_APPROVED_EMERGENCY", http.StatusNotFound},
	{domain.ErrEntryNotFound, "ENTRY_NOT_FOUND", http.StatusNotFound},
	{domain.ErrFeedbackNotFound, "FEEDBACK_NOT_FOUND", http.StatusNotFound},
	{domain.ErrDepartmentInactive, "DEPARTMENT_INACTIVE", http.StatusConflict},
	{domain.ErrDepartmentExists, "DEPARTMENT_EXISTS", http.StatusConflict},
	{domain.ErrQueueClosed, "QUEUE_CLOSED", http.StatusConflict},
	{domain.ErrQueueFull, "QUEUE_FULL", http.StatusConflict},
	{domain.ErrAlreadyInQueue, "ALREADY_IN_QUEUE", http.StatusConflict},
	{domain.ErrNoTicketsWaiting, "NO_TICKETS_WAITING", http.StatusConflict},
	{domain.ErrNoActiveTicket, "NO_ACTIVE_TICKET", http.StatusConflict},
	{domain.ErrNotInQueue, "NOT_IN_QUEUE", http.StatusConflict},
	{domain.ErrInvalidTransition, "INVALID_TRANSITION", http.StatusConflict},
	{domain.ErrEmergencyActive, "EMERGENCY_ACTIVE", http.StatusConflict},
	{domain.ErrEmergencyAlreadyActive, "EMERGENCY_ALREADY_ACTIVE", http.StatusConflict},
	{domain.ErrEmergencyAlreadyRequested, "EMERGENCY_ALREADY_REQUESTED", http.StatusConflict},
	{domain.ErrNoActiveEmergency, "NO_ACTIVE_EMERGENCY", http.StatusConflict},
	{domain.ErrInvalidState, "INVALID_STATE", http.StatusConflict},
	{domain.ErrEmailTaken, "EMAIL_TAKEN", http.StatusConflict},
	{domain.ErrEntryExpired, "ENTRY_EXPIRED", http.StatusConflict},
	{domain.ErrFeedbackExists, "FEEDBACK_EXISTS", http.StatusConflict},
	{domain.ErrFeedbackNotAllowed, "FEEDBACK_NOT_ALLOWED", http.StatusConflict},
	{domain.ErrEntryRequired, "ENTRY_REQUIRED", http.StatusBadRequest},
	{domain.ErrInvalidIdentity, "INVALID_IDENTITY", http.StatusBadRequest},
	{domain.ErrInvalidCapacity, "INVALID_CAPACITY", http.StatusBadRequest},
	{auth.ErrPasswordTooShort, "PASSWORD_TOO_SHORT", http.StatusBadRequest},
	{domain.ErrNotAssigned, "STAFF_NOT_ASSIGNED", http.StatusForbidden},
	{domain.ErrForbidden, "FORBIDDEN", http.StatusForbidden},
	{domain.ErrInvalidCredential, "INVALID_CREDENTIALS", http.StatusUnauthorized},
	{context.DeadlineExceeded, "TIMEOUT", http.StatusGatewayTimeout},
}

func mapError(err error) error {
	if err == nil {
		return nil
	}
	var domainErr *apperrors.DomainError
	if errors.As(err, &domainErr) {
		return domainErr
	}
	for _, m := range errorCatalogue {
		if errors.Is(err, m.target) {
			return apperrors.Wrap(m.code, m.status, err)
		}
	}
	return apperrors.NewInternalError(err)
}
