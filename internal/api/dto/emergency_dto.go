package dto

import (
	"time"

	"github.com/campusflow/campus-queue/internal/domain"
)

// EmergencyRequest payload. Proof is a reference to an uploaded image.
type EmergencyRequest struct {
	DepartmentID string `json:"department_id"`
	Reason       string `json:"reason"`
	Proof        string `json:"proof"`
}

// StartEmergencyRequest payload. RequestID is optional.
type StartEmergencyRequest struct {
	RequestID string `json:"request_id"`
	Note      string `json:"note"`
}

// EmergencyResponse is the view of an emergency request.
type EmergencyResponse struct {
	ID           string                `json:"id"`
	DepartmentID string                `json:"department_id"`
	RequesterID  string                `json:"requester_id"`
	Reason       string                `json:"reason"`
	Proof        string                `json:"proof"`
	Note         string                `json:"note,omitempty"`
	State        domain.EmergencyState `json:"state"`
	CreatedAt    time.Time             `json:"created_at"`
	UpdatedAt    time.Time             `json:"updated_at"`
}

// EmergencyStatusResponse is the public emergency flag of a department.
type EmergencyStatusResponse struct {
	DepartmentID string `json:"department_id"`
	Active       bool   `json:"active"`
	Reason       string `json:"reason,omitempty"`
}
