package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/campusflow/campus-queue/internal/domain"
	"github.com/campusflow/campus-queue/internal/events"
	"github.com/campusflow/campus-queue/internal/store"
)

// resetQueue puts a department's queue back into a quiet state: closed, no
// emergency and nothing serving. With force unset the reset only applies to a
// queue left open, serving or emergency-active with no staff activity for
// longer than staleAfter. It reports whether the queue changed.
func (e engine) resetQueue(ctx context.Context, departmentID string, staleAfter time.Duration, force bool) (bool, error) {
	var (
		ob      outbox
		changed bool
	)
	err := e.store.Atomic(ctx, func(ctx context.Context, tx store.Tx) error {
		queue, err := tx.LockQueue(ctx, departmentID)
		if err != nil {
			return err
		}
		if !queue.IsOpen && !queue.EmergencyActive && queue.CurrentTicketID == nil {
			return nil
		}
		if !force && !isStale(queue, e.now(), staleAfter) {
			return nil
		}

		if queue.CurrentTicketID != nil {
			ticket, err := tx.GetTicket(ctx, *queue.CurrentTicketID)
			if err != nil {
				return err
			}
			if ticket.State == domain.TicketServing {
				if err := ticket.Apply(domain.ActionComplete, e.now()); err != nil {
					return err
				}
				if err := tx.UpdateTicket(ctx, ticket); err != nil {
					return err
				}
				ob.add(events.EventTicketCompleted, events.DepartmentScope(departmentID), ticketPayload(ticket))
				ob.add(events.EventTicketServed, events.IdentityScope(ticket.Requester), ticketPayload(ticket))
			}
			queue.CurrentTicketID = nil
		}

		if queue.EmergencyActive {
			if _, err := e.resolveActive(ctx, tx, queue, &ob); err != nil {
				return err
			}
		}

		queue.IsOpen = false
		queue.ClosedByCapacity = false
		queue.RecordStaffActivity(e.now())
		if err := tx.UpdateQueue(ctx, queue); err != nil {
			return err
		}
		ob.add(events.EventQueueStatusChanged, events.DepartmentScope(departmentID), queueStatusPayload(queue, "queue reset"))
		changed = true
		return nil
	})
	if err != nil {
		return false, err
	}
	if changed {
		e.logger.Info("queue reset", zap.String("department_id", departmentID), zap.Bool("forced", force))
		e.flush(ctx, &ob)
	}
	return changed, nil
}

func isStale(queue *domain.Queue, now time.Time, staleAfter time.Duration) bool {
	since := queue.StaffIdleSince()
	if staleAfter <= 0 || since.IsZero() {
		return false
	}
	return now.Sub(since) > staleAfter
}
