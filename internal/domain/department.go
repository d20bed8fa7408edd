package domain

import "time"

// Department represents a service point that owns exactly one queue.
type Department struct {
	ID          string
	Name        string
	Description string
	IsActive    bool
	CreatedBy   string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
