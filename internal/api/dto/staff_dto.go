package dto

import "time"

// CreateDepartmentRequest payload.
type CreateDepartmentRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// DepartmentResponse is the public view of a department.
type DepartmentResponse struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
}

// CreateStaffRequest payload for a new staff account.
type CreateStaffRequest struct {
	Name         string `json:"name"`
	Email        string `json:"email"`
	Password     string `json:"password"`
	DepartmentID string `json:"department_id"`
}

// AssignStaffRequest payload.
type AssignStaffRequest struct {
	UserID       string `json:"user_id"`
	DepartmentID string `json:"department_id"`
}

// SetLimitRequest payload. A null limit removes the cap.
type SetLimitRequest struct {
	Limit *int `json:"limit"`
}

// IncreaseLimitRequest payload.
type IncreaseLimitRequest struct {
	Amount int `json:"amount"`
}

// WalkInRequest payload for a staff-issued ticket.
type WalkInRequest struct {
	GuestName  string `json:"guest_name"`
	GuestPhone string `json:"guest_phone"`
}

// QueueResponse is the staff view of a queue's controls.
type QueueResponse struct {
	DepartmentID     string `json:"department_id"`
	IsOpen           bool   `json:"is_open"`
	Capacity         *int   `json:"capacity"`
	ClosedByCapacity bool   `json:"closed_by_capacity"`
	EmergencyActive  bool   `json:"emergency_active"`
}

// QueueStatsResponse summarises a queue for staff.
type QueueStatsResponse struct {
	DepartmentID     string `json:"department_id"`
	IsOpen           bool   `json:"is_open"`
	ClosedByCapacity bool   `json:"closed_by_capacity"`
	Capacity         *int   `json:"capacity"`
	EmergencyActive  bool   `json:"emergency_active"`
	EmergencyReason  string `json:"emergency_reason,omitempty"`
	CurrentNumber    string `json:"current_number,omitempty"`
	Total            int    `json:"total"`
	Served           int    `json:"served"`
	NoShow           int    `json:"no_show"`
	Waiting          int    `json:"waiting"`
	Remaining        int    `json:"remaining"`
}

// DepartmentQRResponse is the staff view of today's entry code. EntryPath is
// what the printed code should point at.
type DepartmentQRResponse struct {
	QRID         string    `json:"qr_id"`
	DepartmentID string    `json:"department_id"`
	ValidUntil   time.Time `json:"valid_until"`
	EntryPath    string    `json:"entry_path"`
}

// StaffProfileResponse is a staff account with its department.
type StaffProfileResponse struct {
	User       UserResponse        `json:"user"`
	Department *DepartmentResponse `json:"department"`
}
