package domain

import "time"

// MaxFeedbackComment caps the free-text part of a feedback entry, in characters.
const MaxFeedbackComment = 200

// Feedback is a student's rating of a completed ticket. A ticket takes at
// most one.
type Feedback struct {
	ID           string
	TicketID     string
	StudentID    string
	DepartmentID string
	Options      []string
	Comment      string
	CreatedAt    time.Time
}

// Clone returns a deep copy safe to mutate.
func (f *Feedback) Clone() *Feedback {
	if f == nil {
		return nil
	}
	cp := *f
	cp.Options = append([]string(nil), f.Options...)
	return &cp
}
