// Package store defines the narrow persistence contract the queue engine consumes.
// Implementations must make every Atomic unit all-or-nothing and must hold the
// locks taken through Tx until the unit ends.
package store

import (
	"context"
	"time"

	"github.com/campusflow/campus-queue/internal/domain"
)

// TicketFilter narrows ticket listings. Zero fields do not filter.
type TicketFilter struct {
	QueueID  string
	Identity *domain.Identity
	States   []domain.TicketState
	Limit    int
}

// EmergencyFilter narrows emergency listings. Zero fields do not filter.
type EmergencyFilter struct {
	DepartmentID string
	RequesterID  string
	States       []domain.EmergencyState
}

// Reader exposes consistent reads of committed state (or, inside a Tx, of the
// unit's own view).
type Reader interface {
	GetDepartment(ctx context.Context, id string) (*domain.Department, error)
	GetDepartmentByName(ctx context.Context, name string) (*domain.Department, error)
	ListDepartments(ctx context.Context, activeOnly bool) ([]domain.Department, error)
	GetQueue(ctx context.Context, departmentID string) (*domain.Queue, error)
	GetTicket(ctx context.Context, id string) (*domain.Ticket, error)
	FindActiveTicket(ctx context.Context, identity domain.Identity) (*domain.Ticket, error)
	ListTickets(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error)
	CountTickets(ctx context.Context, queueID string, states ...domain.TicketState) (int, error)
	CountWaitingAhead(ctx context.Context, queueID string, seq int64) (int, error)
	OldestWaiting(ctx context.Context, queueID string) (*domain.Ticket, error)
	GetEmergency(ctx context.Context, id string) (*domain.Emergency, error)
	ListEmergencies(ctx context.Context, filter EmergencyFilter) ([]domain.Emergency, error)
	GetDepartmentQR(ctx context.Context, id string) (*domain.DepartmentQR, error)
	// FindActiveDepartmentQR returns the newest code of the department still
	// valid at now.
	FindActiveDepartmentQR(ctx context.Context, departmentID string, now time.Time) (*domain.DepartmentQR, error)
	GetFeedbackByTicket(ctx context.Context, ticketID string) (*domain.Feedback, error)
}

// Tx is one unit of work. LockQueue and LockIdentity serialize competing units
// for the same key until the unit commits or rolls back. Callers always lock an
// identity before a queue.
type Tx interface {
	Reader
	LockQueue(ctx context.Context, departmentID string) (*domain.Queue, error)
	LockIdentity(ctx context.Context, identity domain.Identity) error
	CreateDepartment(ctx context.Context, dept *domain.Department, queue *domain.Queue) error
	UpdateDepartment(ctx context.Context, dept *domain.Department) error
	UpdateQueue(ctx context.Context, queue *domain.Queue) error
	InsertTicket(ctx context.Context, ticket *domain.Ticket) error
	UpdateTicket(ctx context.Context, ticket *domain.Ticket) error
	InsertEmergency(ctx context.Context, emergency *domain.Emergency) error
	UpdateEmergency(ctx context.Context, emergency *domain.Emergency) error
	InsertDepartmentQR(ctx context.Context, qr *domain.DepartmentQR) error
	InsertFeedback(ctx context.Context, feedback *domain.Feedback) error
}

// Store is the single source of truth for departments, queues, tickets and
// emergency requests.
type Store interface {
	Reader
	// Atomic runs fn as one unit of work. Writes commit only when fn returns nil.
	Atomic(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// UserStore persists accounts used by the token verifier.
type UserStore interface {
	CreateUser(ctx context.Context, user *domain.User) error
	UpdateUser(ctx context.Context, user *domain.User) error
	GetUser(ctx context.Context, id string) (*domain.User, error)
	GetUserByEmail(ctx context.Context, email string) (*domain.User, error)
	ListUsersByRole(ctx context.Context, role domain.Role) ([]domain.User, error)
}
