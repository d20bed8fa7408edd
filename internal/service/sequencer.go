package service

import (
	"context"
	"fmt"

	"github.com/campusflow/campus-queue/internal/domain"
	"github.com/campusflow/campus-queue/internal/store"
)

const ticketNumberWidth = 3

// Sequencer reserves display numbers. It must run inside a unit of work that
// holds the queue lock, so counting, admission and the counter bump are atomic
// against other joins on the same queue.
type Sequencer struct {
	prefix   string
	governor Governor
}

// NewSequencer builds a sequencer using prefix for every number.
func NewSequencer(prefix string) Sequencer {
	return Sequencer{prefix: prefix}
}

// Issue admits one more ticket to queue and returns its number together with
// the active count before the new ticket. The counter restarts at 1 whenever
// the queue has no active tickets, so numbers never repeat among tickets that
// wait together.
func (s Sequencer) Issue(ctx context.Context, tx store.Tx, queue *domain.Queue) (string, int, error) {
	active, err := tx.CountTickets(ctx, queue.ID, domain.ActiveTicketStates...)
	if err != nil {
		return "", 0, err
	}
	if err := s.governor.Admit(queue, active); err != nil {
		return "", active, err
	}
	if active == 0 {
		queue.NextSequence = 0
	}
	queue.NextSequence++
	return s.Format(queue.NextSequence), active, nil
}

// Format renders a sequence value, e.g. 7 -> "A007".
func (s Sequencer) Format(seq int) string {
	return fmt.Sprintf("%s%0*d", s.prefix, ticketNumberWidth, seq)
}
