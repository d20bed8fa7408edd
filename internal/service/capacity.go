package service

import (
	"github.com/campusflow/campus-queue/internal/domain"
)

// Governor enforces the per-queue limit on active tickets.
type Governor struct{}

// Admit rejects a join on a closed or full queue. A queue closed by the
// governor reports QueueFull rather than QueueClosed.
func (Governor) Admit(queue *domain.Queue, active int) error {
	if !queue.IsOpen && !queue.ClosedByCapacity {
		return domain.ErrQueueClosed
	}
	if queue.AtCapacity(active) {
		return domain.ErrQueueFull
	}
	if !queue.IsOpen {
		return domain.ErrQueueClosed
	}
	return nil
}

// AfterJoin closes the queue when the new active count reaches capacity.
// It reports whether the queue changed.
func (Governor) AfterJoin(queue *domain.Queue, active int) bool {
	if queue.IsOpen && queue.AtCapacity(active) {
		queue.CloseForCapacity()
		return true
	}
	return false
}

// AfterRelease reopens a queue closed only by the governor once the active
// count drops below capacity. Manually closed queues stay closed.
func (Governor) AfterRelease(queue *domain.Queue, active int) bool {
	if queue.ClosedByCapacity && !queue.AtCapacity(active) {
		queue.Reopen()
		return true
	}
	return false
}

// SetLimit replaces the capacity (nil removes it) and re-evaluates the queue.
func (g Governor) SetLimit(queue *domain.Queue, capacity *int, active int) (bool, error) {
	if capacity != nil && *capacity < 1 {
		return false, domain.ErrInvalidCapacity
	}
	if capacity != nil {
		c := *capacity
		capacity = &c
	}
	queue.Capacity = capacity
	if g.AfterJoin(queue, active) {
		return true, nil
	}
	return g.AfterRelease(queue, active), nil
}

// Increase adds n slots (an unbounded queue becomes bounded at n) and forces
// the queue open.
func (Governor) Increase(queue *domain.Queue, n int) error {
	if n <= 0 {
		return domain.ErrInvalidCapacity
	}
	next := n
	if queue.Capacity != nil {
		next = *queue.Capacity + n
	}
	queue.Capacity = &next
	queue.Reopen()
	return nil
}
