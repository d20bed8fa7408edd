package domain

import (
	"fmt"
	"time"
)

// EmergencyState enumerates lifecycle states for emergency requests.
type EmergencyState string

const (
	EmergencyPending  EmergencyState = "pending"
	EmergencyApproved EmergencyState = "approved"
	EmergencyRejected EmergencyState = "rejected"
	EmergencyActive   EmergencyState = "active"
	EmergencyResolved EmergencyState = "resolved"
)

// OpenEmergencyStates block the requester from filing another request in the
// same department.
var OpenEmergencyStates = []EmergencyState{EmergencyPending, EmergencyApproved, EmergencyActive}

// IsOpen reports whether the request is still in flight.
func (s EmergencyState) IsOpen() bool {
	return s == EmergencyPending || s == EmergencyApproved || s == EmergencyActive
}

// EmergencyAction names the trigger of an emergency transition.
type EmergencyAction string

const (
	EmergencyApprove EmergencyAction = "approve"
	EmergencyReject  EmergencyAction = "reject"
	EmergencyStart   EmergencyAction = "start"
	EmergencyResolve EmergencyAction = "resolve"
)

type emergencyEdge struct {
	action EmergencyAction
	from   EmergencyState
}

var emergencyTransitions = map[emergencyEdge]EmergencyState{
	{EmergencyApprove, EmergencyPending}: EmergencyApproved,
	{EmergencyReject, EmergencyPending}:  EmergencyRejected,
	{EmergencyStart, EmergencyApproved}:  EmergencyActive,
	{EmergencyResolve, EmergencyActive}:  EmergencyResolved,
}

// NextEmergencyState resolves the target state of action applied in state from.
func NextEmergencyState(action EmergencyAction, from EmergencyState) (EmergencyState, error) {
	to, ok := emergencyTransitions[emergencyEdge{action, from}]
	if !ok {
		return "", fmt.Errorf("%w: cannot %s emergency in %q state", ErrInvalidState, action, from)
	}
	return to, nil
}

// Emergency is a requester-initiated priority service workflow.
type Emergency struct {
	ID           string
	DepartmentID string
	RequesterID  string
	Reason       string
	Proof        string
	Note         string
	State        EmergencyState
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Apply moves the request through its state machine.
func (e *Emergency) Apply(action EmergencyAction, at time.Time) error {
	to, err := NextEmergencyState(action, e.State)
	if err != nil {
		return err
	}
	e.State = to
	e.UpdatedAt = at
	return nil
}

// Clone returns a copy safe to mutate.
func (e *Emergency) Clone() *Emergency {
	if e == nil {
		return nil
	}
	cp := *e
	return &cp
}
