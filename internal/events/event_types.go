package events

import (
	"strings"
	"time"

	"github.com/campusflow/campus-queue/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventTicketJoined       EventType = "ticket_joined"
	EventTicketCancelled    EventType = "ticket_cancelled"
	EventTicketCalled       EventType = "ticket_called"
	EventTicketCompleted    EventType = "ticket_completed"
	EventTicketYourTurn     EventType = "ticket_your_turn"
	EventTicketServed       EventType = "ticket_served"
	EventQueueStatusChanged EventType = "queue_status_changed"
	EventQueueLimitUpdated  EventType = "queue_limit_updated"
	EventQueueCrowdUpdated  EventType = "queue_crowd_updated"
	EventEmergencyRequested EventType = "emergency_requested"
	EventEmergencyApproved  EventType = "emergency_approved"
	EventEmergencyRejected  EventType = "emergency_rejected"
	EventEmergencyStarted   EventType = "emergency_started"
	EventEmergencyEnded     EventType = "emergency_ended"
	EventEmergencyYourTurn  EventType = "emergency_your_turn"
	EventEmergencyServed    EventType = "emergency_served"
)

// Scope addresses the audience of an event: everyone watching a department,
// or one requester.
type Scope string

const (
	departmentScopePrefix = "department:"
	identityScopePrefix   = "identity:"
)

// DepartmentScope targets every subscriber of a department.
func DepartmentScope(departmentID string) Scope {
	return Scope(departmentScopePrefix + departmentID)
}

// IdentityScope targets a single user or guest.
func IdentityScope(identity domain.Identity) Scope {
	return Scope(identityScopePrefix + identity.Key())
}

// UserScope targets an authenticated user by ID.
func UserScope(userID string) Scope {
	return IdentityScope(domain.UserIdentity(userID))
}

// IsIdentity reports whether the scope targets a single requester.
func (s Scope) IsIdentity() bool {
	return strings.HasPrefix(string(s), identityScopePrefix)
}

// Event is one realtime notification.
type Event struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	Scope     Scope     `json:"scope"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload"`
}

// TicketPayload describes a ticket change.
type TicketPayload struct {
	TicketID     string              `json:"ticket_id"`
	DepartmentID string              `json:"department_id"`
	Number       string              `json:"number"`
	State        domain.TicketState  `json:"state"`
	Origin       domain.TicketOrigin `json:"origin,omitempty"`
}

// QueueStatusPayload describes an open/close or capacity change.
type QueueStatusPayload struct {
	DepartmentID     string `json:"department_id"`
	IsOpen           bool   `json:"is_open"`
	Capacity         *int   `json:"capacity"`
	ClosedByCapacity bool   `json:"closed_by_capacity"`
	Reason           string `json:"reason,omitempty"`
}

// CrowdPayload carries a crowd estimate.
type CrowdPayload struct {
	DepartmentID         string `json:"department_id"`
	QueueLength          int    `json:"queue_length"`
	EstimatedWaitMinutes int    `json:"estimated_wait_minutes"`
	Level                string `json:"level"`
}

// EmergencyPayload describes an emergency request change.
type EmergencyPayload struct {
	RequestID    string                `json:"request_id,omitempty"`
	DepartmentID string                `json:"department_id"`
	RequesterID  string                `json:"requester_id,omitempty"`
	State        domain.EmergencyState `json:"state,omitempty"`
	Reason       string                `json:"reason,omitempty"`
	Note         string                `json:"note,omitempty"`
}
