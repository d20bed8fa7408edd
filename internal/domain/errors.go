package domain

import "errors"

// Engine sentinels. Callers match them with errors.Is.
var (
	ErrDepartmentNotFound = errors.New("department not found")
	ErrDepartmentInactive = errors.New("department not available")
	ErrDepartmentExists   = errors.New("department already exists")
	ErrQueueNotFound      = errors.New("queue not found")
	ErrTicketNotFound     = errors.New("ticket not found")
	ErrEmergencyNotFound  = errors.New("emergency request not found")
	ErrUserNotFound       = errors.New("user not found")
	ErrEntryNotFound      = errors.New("department entry code not found")
	ErrFeedbackNotFound   = errors.New("feedback not found")

	ErrEntryExpired       = errors.New("department entry code expired")
	ErrEntryRequired      = errors.New("guests must join through a department entry code")
	ErrFeedbackExists     = errors.New("feedback already submitted for ticket")
	ErrFeedbackNotAllowed = errors.New("feedback is accepted only for completed tickets")

	ErrQueueClosed       = errors.New("queue is currently closed")
	ErrQueueFull         = errors.New("queue is full")
	ErrAlreadyInQueue    = errors.New("identity already holds an active ticket")
	ErrNoTicketsWaiting  = errors.New("no tickets waiting")
	ErrNoActiveTicket    = errors.New("no active ticket to complete")
	ErrNotInQueue        = errors.New("no active ticket for identity")
	ErrInvalidTransition = errors.New("invalid ticket transition")

	ErrEmergencyActive           = errors.New("emergency in progress")
	ErrEmergencyAlreadyActive    = errors.New("emergency already active")
	ErrEmergencyAlreadyRequested = errors.New("emergency already requested")
	ErrNoApprovedEmergency       = errors.New("no approved emergency available")
	ErrNoActiveEmergency         = errors.New("no active emergency")
	ErrInvalidState              = errors.New("invalid emergency state")

	ErrInvalidIdentity   = errors.New("identity must be exactly one of user or guest")
	ErrNotAssigned       = errors.New("staff not assigned to a department")
	ErrInvalidCapacity   = errors.New("capacity must be positive")
	ErrForbidden         = errors.New("operation not permitted for role")
	ErrInvalidCredential = errors.New("invalid credentials")
	ErrEmailTaken        = errors.New("email already registered")
)
