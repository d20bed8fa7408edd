package domain

import "time"

// DefaultAverageServiceMinutes seeds new queues.
const DefaultAverageServiceMinutes = 5

// DefaultEmergencyReason is stored when staff start an emergency without a note.
const DefaultEmergencyReason = "Emergency in progress"

// Queue is the single FIFO line of a department.
type Queue struct {
	ID                    string
	DepartmentID          string
	IsOpen                bool
	Capacity              *int
	ClosedByCapacity      bool
	CurrentTicketID       *string
	AverageServiceMinutes int
	EmergencyActive       bool
	EmergencyReason       string
	NextSequence          int
	// LastStaffActivityAt moves only on staff-driven writes; student and
	// guest traffic leaves it alone.
	LastStaffActivityAt time.Time
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// NewQueue builds the queue created alongside a department.
func NewQueue(departmentID string) *Queue {
	return &Queue{
		DepartmentID:          departmentID,
		IsOpen:                true,
		AverageServiceMinutes: DefaultAverageServiceMinutes,
	}
}

// HasCapacity reports whether a limit is configured.
func (q *Queue) HasCapacity() bool {
	return q.Capacity != nil
}

// AtCapacity reports whether activeCount meets or exceeds the configured limit.
func (q *Queue) AtCapacity(activeCount int) bool {
	return q.Capacity != nil && activeCount >= *q.Capacity
}

// CloseForCapacity closes the queue on behalf of the capacity governor.
func (q *Queue) CloseForCapacity() {
	q.IsOpen = false
	q.ClosedByCapacity = true
}

// Reopen opens the queue and forgets why it was closed.
func (q *Queue) Reopen() {
	q.IsOpen = true
	q.ClosedByCapacity = false
}

// RecordStaffActivity marks the queue as attended at now.
func (q *Queue) RecordStaffActivity(now time.Time) {
	q.LastStaffActivityAt = now
}

// StaffIdleSince returns when staff last acted on the queue, falling back to
// its creation time.
func (q *Queue) StaffIdleSince() time.Time {
	if q.LastStaffActivityAt.IsZero() {
		return q.CreatedAt
	}
	return q.LastStaffActivityAt
}

// IsCurrent reports whether ticketID is the ticket being served.
func (q *Queue) IsCurrent(ticketID string) bool {
	return q.CurrentTicketID != nil && *q.CurrentTicketID == ticketID
}

// Clone returns a deep copy safe to mutate.
func (q *Queue) Clone() *Queue {
	if q == nil {
		return nil
	}
	cp := *q
	if q.Capacity != nil {
		c := *q.Capacity
		cp.Capacity = &c
	}
	if q.CurrentTicketID != nil {
		id := *q.CurrentTicketID
		cp.CurrentTicketID = &id
	}
	return &cp
}
