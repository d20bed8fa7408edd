package domain

import (
	"fmt"
	"time"
)

// TicketState enumerates lifecycle states for tickets.
type TicketState string

const (
	TicketWaiting   TicketState = "waiting"
	TicketServing   TicketState = "serving"
	TicketCompleted TicketState = "completed"
	TicketNoShow    TicketState = "no-show"
)

// ActiveTicketStates are the states that occupy a queue slot.
var ActiveTicketStates = []TicketState{TicketWaiting, TicketServing}

// IsActive reports whether the state counts toward capacity and the
// one-active-ticket rule.
func (s TicketState) IsActive() bool {
	return s == TicketWaiting || s == TicketServing
}

// IsTerminal reports whether the ticket can never change again.
func (s TicketState) IsTerminal() bool {
	return s == TicketCompleted || s == TicketNoShow
}

// Valid reports whether s is one of the known states.
func (s TicketState) Valid() bool {
	switch s {
	case TicketWaiting, TicketServing, TicketCompleted, TicketNoShow:
		return true
	}
	return false
}

// TicketOrigin records how a ticket entered the queue.
type TicketOrigin string

const (
	OriginApp   TicketOrigin = "app"
	OriginQR    TicketOrigin = "qr"
	OriginStaff TicketOrigin = "staff"
)

// Valid reports whether o is a known origin.
func (o TicketOrigin) Valid() bool {
	switch o {
	case OriginApp, OriginQR, OriginStaff:
		return true
	}
	return false
}

// TicketAction names the trigger of a ticket transition.
type TicketAction string

const (
	ActionCall     TicketAction = "call"
	ActionComplete TicketAction = "complete"
	ActionCancel   TicketAction = "cancel"
)

type ticketEdge struct {
	action TicketAction
	from   TicketState
}

var ticketTransitions = map[ticketEdge]TicketState{
	{ActionCall, TicketWaiting}:     TicketServing,
	{ActionComplete, TicketServing}: TicketCompleted,
	{ActionCancel, TicketWaiting}:   TicketNoShow,
	{ActionCancel, TicketServing}:   TicketNoShow,
}

// NextTicketState resolves the target state of action applied in state from.
func NextTicketState(action TicketAction, from TicketState) (TicketState, error) {
	to, ok := ticketTransitions[ticketEdge{action, from}]
	if !ok {
		return "", fmt.Errorf("%w: %s from %s", ErrInvalidTransition, action, from)
	}
	return to, nil
}

// Ticket is a numbered claim on a queue position.
type Ticket struct {
	ID           string
	QueueID      string
	DepartmentID string
	Number       string
	Requester    Identity
	GuestName    string
	GuestPhone   string
	Origin       TicketOrigin
	State        TicketState
	Seq          int64
	CreatedAt    time.Time
	CalledAt     *time.Time
	ServedAt     *time.Time
}

// Apply moves the ticket through the state machine. Terminal transitions stamp
// ServedAt; calling stamps CalledAt.
func (t *Ticket) Apply(action TicketAction, at time.Time) error {
	to, err := NextTicketState(action, t.State)
	if err != nil {
		return err
	}
	t.State = to
	switch {
	case to == TicketServing:
		t.CalledAt = &at
	case to.IsTerminal():
		t.ServedAt = &at
	}
	return nil
}

// Clone returns a deep copy safe to mutate.
func (t *Ticket) Clone() *Ticket {
	if t == nil {
		return nil
	}
	cp := *t
	if t.CalledAt != nil {
		v := *t.CalledAt
		cp.CalledAt = &v
	}
	if t.ServedAt != nil {
		v := *t.ServedAt
		cp.ServedAt = &v
	}
	return &cp
}
