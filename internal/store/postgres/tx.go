package postgres

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/campusflow/campus-queue/internal/domain"
	"github.com/campusflow/campus-queue/internal/store"
)

type tx struct {
	*reader
	tx pgx.Tx
}

var _ store.Tx = (*tx)(nil)

func (t *tx) LockQueue(ctx context.Context, departmentID string) (*domain.Queue, error) {
	return t.queue(ctx, departmentID, true)
}

func (t *tx) LockIdentity(ctx context.Context, identity domain.Identity) error {
	_, err := t.tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, "identity:"+identity.Key())
	return err
}

func (t *tx) CreateDepartment(ctx context.Context, dept *domain.Department, queue *domain.Queue) error {
	if dept.ID == "" {
		dept.ID = uuid.NewString()
	}
	if queue.ID == "" {
		queue.ID = uuid.NewString()
	}
	queue.DepartmentID = dept.ID

	err := t.tx.QueryRow(ctx, `
		INSERT INTO departments (id, name, description, is_active, created_by)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at, updated_at`,
		dept.ID, dept.Name, dept.Description, dept.IsActive, dept.CreatedBy,
	).Scan(&dept.CreatedAt, &dept.UpdatedAt)
	if err != nil {
		return translate(err)
	}

	err = t.tx.QueryRow(ctx, `
		INSERT INTO queues (id, department_id, is_open, capacity, closed_by_capacity, average_service_minutes,
			emergency_active, emergency_reason, next_sequence)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at, updated_at, last_staff_activity_at`,
		queue.ID, queue.DepartmentID, queue.IsOpen, queue.Capacity, queue.ClosedByCapacity,
		queue.AverageServiceMinutes, queue.EmergencyActive, queue.EmergencyReason, queue.NextSequence,
	).Scan(&queue.CreatedAt, &queue.UpdatedAt, &queue.LastStaffActivityAt)
	return translate(err)
}

func (t *tx) UpdateDepartment(ctx context.Context, dept *domain.Department) error {
	err := t.tx.QueryRow(ctx, `
		UPDATE departments SET name = $1, description = $2, is_active = $3, updated_at = NOW()
		WHERE id = $4
		RETURNING updated_at`,
		dept.Name, dept.Description, dept.IsActive, dept.ID,
	).Scan(&dept.UpdatedAt)
	if err == pgx.ErrNoRows {
		return domain.ErrDepartmentNotFound
	}
	return translate(err)
}

func (t *tx) UpdateQueue(ctx context.Context, queue *domain.Queue) error {
	err := t.tx.QueryRow(ctx, `
		UPDATE queues SET
			is_open = $1,
			capacity = $2,
			closed_by_capacity = $3,
			current_ticket_id = $4,
			average_service_minutes = $5,
			emergency_active = $6,
			emergency_reason = $7,
			next_sequence = $8,
			last_staff_activity_at = COALESCE($9, last_staff_activity_at),
			updated_at = NOW()
		WHERE department_id = $10
		RETURNING updated_at`,
		queue.IsOpen,
		queue.Capacity,
		queue.ClosedByCapacity,
		queue.CurrentTicketID,
		queue.AverageServiceMinutes,
		queue.EmergencyActive,
		queue.EmergencyReason,
		queue.NextSequence,
		nullIfZeroTime(queue.LastStaffActivityAt),
		queue.DepartmentID,
	).Scan(&queue.UpdatedAt)
	if err == pgx.ErrNoRows {
		return domain.ErrQueueNotFound
	}
	return err
}

func (t *tx) InsertTicket(ctx context.Context, ticket *domain.Ticket) error {
	if ticket.ID == "" {
		ticket.ID = uuid.NewString()
	}
	err := t.tx.QueryRow(ctx, `
		INSERT INTO tickets (id, queue_id, department_id, number, user_id, guest_token, identity_key,
			guest_name, guest_phone, origin, state)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING seq, created_at`,
		ticket.ID,
		ticket.QueueID,
		ticket.DepartmentID,
		ticket.Number,
		nullIfEmpty(ticket.Requester.UserID),
		nullIfEmpty(ticket.Requester.GuestToken),
		ticket.Requester.Key(),
		ticket.GuestName,
		ticket.GuestPhone,
		string(ticket.Origin),
		string(ticket.State),
	).Scan(&ticket.Seq, &ticket.CreatedAt)
	return translate(err)
}

func (t *tx) UpdateTicket(ctx context.Context, ticket *domain.Ticket) error {
	cmd, err := t.tx.Exec(ctx, `
		UPDATE tickets SET state = $1, called_at = $2, served_at = $3
		WHERE id = $4`,
		string(ticket.State), ticket.CalledAt, ticket.ServedAt, ticket.ID)
	if err != nil {
		return translate(err)
	}
	if cmd.RowsAffected() == 0 {
		return domain.ErrTicketNotFound
	}
	return nil
}

func (t *tx) InsertEmergency(ctx context.Context, emergency *domain.Emergency) error {
	if emergency.ID == "" {
		emergency.ID = uuid.NewString()
	}
	err := t.tx.QueryRow(ctx, `
		INSERT INTO emergencies (id, department_id, requester_id, reason, proof, note, state)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at`,
		emergency.ID, emergency.DepartmentID, emergency.RequesterID, emergency.Reason,
		emergency.Proof, emergency.Note, string(emergency.State),
	).Scan(&emergency.CreatedAt, &emergency.UpdatedAt)
	return translate(err)
}

func (t *tx) UpdateEmergency(ctx context.Context, emergency *domain.Emergency) error {
	err := t.tx.QueryRow(ctx, `
		UPDATE emergencies SET state = $1, note = $2, updated_at = NOW()
		WHERE id = $3
		RETURNING updated_at`,
		string(emergency.State), emergency.Note, emergency.ID,
	).Scan(&emergency.UpdatedAt)
	if err == pgx.ErrNoRows {
		return domain.ErrEmergencyNotFound
	}
	return translate(err)
}

func (t *tx) InsertDepartmentQR(ctx context.Context, qr *domain.DepartmentQR) error {
	if qr.ID == "" {
		qr.ID = uuid.NewString()
	}
	return t.tx.QueryRow(ctx, `
		INSERT INTO department_qrs (id, department_id, valid_until, is_active)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at`,
		qr.ID, qr.DepartmentID, qr.ValidUntil, qr.IsActive,
	).Scan(&qr.CreatedAt)
}

func (t *tx) InsertFeedback(ctx context.Context, feedback *domain.Feedback) error {
	if feedback.ID == "" {
		feedback.ID = uuid.NewString()
	}
	err := t.tx.QueryRow(ctx, `
		INSERT INTO feedback (id, ticket_id, student_id, department_id, options, comment)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at`,
		feedback.ID, feedback.TicketID, feedback.StudentID, feedback.DepartmentID, feedback.Options, feedback.Comment,
	).Scan(&feedback.CreatedAt)
	return translate(err)
}
