package dto

import (
	"time"

	"github.com/campusflow/campus-queue/internal/domain"
)

// JoinRequest payload for students and guests.
type JoinRequest struct {
	DepartmentID string `json:"department_id"`
	GuestName    string `json:"guest_name"`
	GuestPhone   string `json:"guest_phone"`
	QRID         string `json:"qr_id"`
}

// TicketResponse is the public view of a ticket.
type TicketResponse struct {
	ID           string              `json:"id"`
	DepartmentID string              `json:"department_id"`
	Number       string              `json:"number"`
	State        domain.TicketState  `json:"state"`
	Origin       domain.TicketOrigin `json:"origin"`
	GuestName    string              `json:"guest_name,omitempty"`
	CreatedAt    time.Time           `json:"created_at"`
	CalledAt     *time.Time          `json:"called_at,omitempty"`
	ServedAt     *time.Time          `json:"served_at,omitempty"`
}

// TicketViewResponse pairs a ticket with its live position.
type TicketViewResponse struct {
	Ticket               TicketResponse `json:"ticket"`
	Position             int            `json:"position"`
	EstimatedWaitMinutes int            `json:"estimated_wait_minutes"`
	GuestToken           string         `json:"guest_token,omitempty"`
}

// CurrentServingResponse is the public "now serving" view.
type CurrentServingResponse struct {
	DepartmentID    string `json:"department_id"`
	Number          string `json:"number,omitempty"`
	IsOpen          bool   `json:"is_open"`
	EmergencyActive bool   `json:"emergency_active"`
	EmergencyReason string `json:"emergency_reason,omitempty"`
}

// EntryResponse is what a guest sees after scanning a department code.
type EntryResponse struct {
	QRID       string             `json:"qr_id"`
	ValidUntil time.Time          `json:"valid_until"`
	Department DepartmentResponse `json:"department"`
}

// FeedbackRequest rates a completed ticket.
type FeedbackRequest struct {
	TicketID string   `json:"ticket_id"`
	Options  []string `json:"options"`
	Comment  string   `json:"comment"`
}

// FeedbackResponse is the stored feedback entry.
type FeedbackResponse struct {
	ID           string    `json:"id"`
	TicketID     string    `json:"ticket_id"`
	DepartmentID string    `json:"department_id"`
	Options      []string  `json:"options"`
	Comment      string    `json:"comment,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}
