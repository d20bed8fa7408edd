// Package postgres implements store.Store on pgx. Units of work are database
// transactions; queue serialization uses SELECT ... FOR UPDATE on the queue row
// and identity serialization uses transaction-scoped advisory locks.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/campusflow/campus-queue/internal/domain"
	"github.com/campusflow/campus-queue/internal/store"
)

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store is the pgx-backed queue state store.
type Store struct {
	*reader
	pool *pgxpool.Pool
}

var (
	_ store.Store     = (*Store)(nil)
	_ store.UserStore = (*Store)(nil)
)

// NewStore wraps an open pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{reader: &reader{q: pool}, pool: pool}
}

// Atomic runs fn inside one read-committed transaction. Row and advisory locks
// taken by fn are held until commit or rollback.
func (s *Store) Atomic(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) (err error) {
	pgTx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = pgTx.Rollback(ctx)
		}
	}()

	if err = fn(ctx, &tx{reader: &reader{q: pgTx}, tx: pgTx}); err != nil {
		return err
	}
	if err = pgTx.Commit(ctx); err != nil {
		return translate(err)
	}
	return nil
}

// Ping checks the pool.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

const departmentColumns = `id::text, name, description, is_active, created_by, created_at, updated_at`

const queueColumns = `id::text, department_id::text, is_open, capacity, closed_by_capacity,
	current_ticket_id::text, average_service_minutes, emergency_active, emergency_reason,
	next_sequence, last_staff_activity_at, created_at, updated_at`

const ticketColumns = `id::text, queue_id::text, department_id::text, number, user_id, guest_token,
	guest_name, guest_phone, origin, state, seq, created_at, called_at, served_at`

const emergencyColumns = `id::text, department_id::text, requester_id, reason, proof, note, state, created_at, updated_at`

const departmentQRColumns = `id::text, department_id::text, valid_until, is_active, created_at`

const feedbackColumns = `id::text, ticket_id::text, student_id, department_id::text, options, comment, created_at`

type reader struct {
	q querier
}

func (r *reader) GetDepartment(ctx context.Context, id string) (*domain.Department, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, domain.ErrDepartmentNotFound
	}
	row := r.q.QueryRow(ctx, `SELECT `+departmentColumns+` FROM departments WHERE id = $1`, id)
	dept, err := scanDepartment(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrDepartmentNotFound
	}
	return dept, err
}

func (r *reader) GetDepartmentByName(ctx context.Context, name string) (*domain.Department, error) {
	row := r.q.QueryRow(ctx, `SELECT `+departmentColumns+` FROM departments WHERE LOWER(name) = LOWER($1)`, name)
	dept, err := scanDepartment(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrDepartmentNotFound
	}
	return dept, err
}

func (r *reader) ListDepartments(ctx context.Context, activeOnly bool) ([]domain.Department, error) {
	query := `SELECT ` + departmentColumns + ` FROM departments`
	if activeOnly {
		query += ` WHERE is_active = TRUE`
	}
	query += ` ORDER BY name`
	rows, err := r.q.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]domain.Department, 0)
	for rows.Next() {
		dept, err := scanDepartment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *dept)
	}
	return result, rows.Err()
}

func (r *reader) GetQueue(ctx context.Context, departmentID string) (*domain.Queue, error) {
	return r.queue(ctx, departmentID, false)
}

func (r *reader) queue(ctx context.Context, departmentID string, forUpdate bool) (*domain.Queue, error) {
	if _, err := uuid.Parse(departmentID); err != nil {
		return nil, domain.ErrQueueNotFound
	}
	query := `SELECT ` + queueColumns + ` FROM queues WHERE department_id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	q, err := scanQueue(r.q.QueryRow(ctx, query, departmentID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrQueueNotFound
	}
	return q, err
}

func (r *reader) GetTicket(ctx context.Context, id string) (*domain.Ticket, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, domain.ErrTicketNotFound
	}
	t, err := scanTicket(r.q.QueryRow(ctx, `SELECT `+ticketColumns+` FROM tickets WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrTicketNotFound
	}
	return t, err
}

func (r *reader) FindActiveTicket(ctx context.Context, identity domain.Identity) (*domain.Ticket, error) {
	t, err := scanTicket(r.q.QueryRow(ctx, `
		SELECT `+ticketColumns+` FROM tickets
		WHERE identity_key = $1 AND state IN ('waiting', 'serving')
		ORDER BY seq DESC LIMIT 1`, identity.Key()))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrTicketNotFound
	}
	return t, err
}

func (r *reader) ListTickets(ctx context.Context, filter store.TicketFilter) ([]domain.Ticket, error) {
	clauses := []string{"1=1"}
	args := []any{}
	if filter.QueueID != "" {
		args = append(args, filter.QueueID)
		clauses = append(clauses, fmt.Sprintf("queue_id = $%d", len(args)))
	}
	if filter.Identity != nil {
		args = append(args, filter.Identity.Key())
		clauses = append(clauses, fmt.Sprintf("identity_key = $%d", len(args)))
	}
	if len(filter.States) > 0 {
		args = append(args, ticketStateStrings(filter.States))
		clauses = append(clauses, fmt.Sprintf("state = ANY($%d)", len(args)))
	}
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE ` + strings.Join(clauses, " AND ") + ` ORDER BY seq`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]domain.Ticket, 0)
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *t)
	}
	return result, rows.Err()
}

func (r *reader) CountTickets(ctx context.Context, queueID string, states ...domain.TicketState) (int, error) {
	var count int
	var err error
	if len(states) == 0 {
		err = r.q.QueryRow(ctx, `SELECT COUNT(*) FROM tickets WHERE queue_id = $1`, queueID).Scan(&count)
	} else {
		err = r.q.QueryRow(ctx, `SELECT COUNT(*) FROM tickets WHERE queue_id = $1 AND state = ANY($2)`,
			queueID, ticketStateStrings(states)).Scan(&count)
	}
	return count, err
}

func (r *reader) CountWaitingAhead(ctx context.Context, queueID string, seq int64) (int, error) {
	var count int
	err := r.q.QueryRow(ctx, `
		SELECT COUNT(*) FROM tickets
		WHERE queue_id = $1 AND state = 'waiting' AND seq < $2`, queueID, seq).Scan(&count)
	return count, err
}

func (r *reader) OldestWaiting(ctx context.Context, queueID string) (*domain.Ticket, error) {
	t, err := scanTicket(r.q.QueryRow(ctx, `
		SELECT `+ticketColumns+` FROM tickets
		WHERE queue_id = $1 AND state = 'waiting'
		ORDER BY seq LIMIT 1`, queueID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrTicketNotFound
	}
	return t, err
}

func (r *reader) GetEmergency(ctx context.Context, id string) (*domain.Emergency, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, domain.ErrEmergencyNotFound
	}
	e, err := scanEmergency(r.q.QueryRow(ctx, `SELECT `+emergencyColumns+` FROM emergencies WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrEmergencyNotFound
	}
	return e, err
}

func (r *reader) ListEmergencies(ctx context.Context, filter store.EmergencyFilter) ([]domain.Emergency, error) {
	clauses := []string{"1=1"}
	args := []any{}
	if filter.DepartmentID != "" {
		args = append(args, filter.DepartmentID)
		clauses = append(clauses, fmt.Sprintf("department_id = $%d", len(args)))
	}
	if filter.RequesterID != "" {
		args = append(args, filter.RequesterID)
		clauses = append(clauses, fmt.Sprintf("requester_id = $%d", len(args)))
	}
	if len(filter.States) > 0 {
		states := make([]string, len(filter.States))
		for i, s := range filter.States {
			states[i] = string(s)
		}
		args = append(args, states)
		clauses = append(clauses, fmt.Sprintf("state = ANY($%d)", len(args)))
	}
	rows, err := r.q.Query(ctx, `SELECT `+emergencyColumns+` FROM emergencies WHERE `+
		strings.Join(clauses, " AND ")+` ORDER BY created_at, id`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]domain.Emergency, 0)
	for rows.Next() {
		e, err := scanEmergency(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *e)
	}
	return result, rows.Err()
}

func (r *reader) GetDepartmentQR(ctx context.Context, id string) (*domain.DepartmentQR, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, domain.ErrEntryNotFound
	}
	qr, err := scanDepartmentQR(r.q.QueryRow(ctx, `SELECT `+departmentQRColumns+` FROM department_qrs WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrEntryNotFound
	}
	return qr, err
}

func (r *reader) FindActiveDepartmentQR(ctx context.Context, departmentID string, now time.Time) (*domain.DepartmentQR, error) {
	if _, err := uuid.Parse(departmentID); err != nil {
		return nil, domain.ErrEntryNotFound
	}
	qr, err := scanDepartmentQR(r.q.QueryRow(ctx, `
		SELECT `+departmentQRColumns+` FROM department_qrs
		WHERE department_id = $1 AND is_active = TRUE AND valid_until >= $2
		ORDER BY created_at DESC LIMIT 1`, departmentID, now))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrEntryNotFound
	}
	return qr, err
}

func (r *reader) GetFeedbackByTicket(ctx context.Context, ticketID string) (*domain.Feedback, error) {
	if _, err := uuid.Parse(ticketID); err != nil {
		return nil, domain.ErrFeedbackNotFound
	}
	fb, err := scanFeedback(r.q.QueryRow(ctx, `SELECT `+feedbackColumns+` FROM feedback WHERE ticket_id = $1`, ticketID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrFeedbackNotFound
	}
	return fb, err
}

// CreateUser stores a new account.
func (s *Store) CreateUser(ctx context.Context, user *domain.User) error {
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	err := s.pool.QueryRow(ctx, `
		INSERT INTO users (id, name, email, password_hash, role, department_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at`,
		user.ID, user.Name, user.Email, user.PasswordHash, string(user.Role), user.DepartmentID,
	).Scan(&user.CreatedAt, &user.UpdatedAt)
	return translate(err)
}

// UpdateUser replaces an account.
func (s *Store) UpdateUser(ctx context.Context, user *domain.User) error {
	cmd, err := s.pool.Exec(ctx, `
		UPDATE users SET name = $1, email = $2, password_hash = $3, role = $4, department_id = $5, updated_at = NOW()
		WHERE id = $6`,
		user.Name, user.Email, user.PasswordHash, string(user.Role), user.DepartmentID, user.ID)
	if err != nil {
		return translate(err)
	}
	if cmd.RowsAffected() == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}

// GetUser loads an account by ID.
func (s *Store) GetUser(ctx context.Context, id string) (*domain.User, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, domain.ErrUserNotFound
	}
	return s.fetchUser(ctx, `WHERE id = $1`, id)
}

// GetUserByEmail loads an account by email, case-insensitively.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	return s.fetchUser(ctx, `WHERE LOWER(email) = LOWER($1)`, email)
}

// ListUsersByRole returns the accounts holding role, ordered by name.
func (s *Store) ListUsersByRole(ctx context.Context, role domain.Role) ([]domain.User, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+userColumns+`
		FROM users WHERE role = $1 ORDER BY name, email`, string(role))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]domain.User, 0)
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *user)
	}
	return result, rows.Err()
}

const userColumns = `id::text, name, email, password_hash, role, department_id::text, created_at, updated_at`

func (s *Store) fetchUser(ctx context.Context, where string, arg any) (*domain.User, error) {
	user, err := scanUser(s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users `+where, arg))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrUserNotFound
	}
	return user, err
}

func scanUser(row pgx.Row) (*domain.User, error) {
	var user domain.User
	var role string
	if err := row.Scan(&user.ID, &user.Name, &user.Email, &user.PasswordHash, &role, &user.DepartmentID, &user.CreatedAt, &user.UpdatedAt); err != nil {
		return nil, err
	}
	user.Role = domain.Role(role)
	return &user, nil
}

func scanDepartment(row pgx.Row) (*domain.Department, error) {
	var d domain.Department
	if err := row.Scan(&d.ID, &d.Name, &d.Description, &d.IsActive, &d.CreatedBy, &d.CreatedAt, &d.UpdatedAt); err != nil {
		return nil, err
	}
	return &d, nil
}

func scanQueue(row pgx.Row) (*domain.Queue, error) {
	var q domain.Queue
	if err := row.Scan(
		&q.ID,
		&q.DepartmentID,
		&q.IsOpen,
		&q.Capacity,
		&q.ClosedByCapacity,
		&q.CurrentTicketID,
		&q.AverageServiceMinutes,
		&q.EmergencyActive,
		&q.EmergencyReason,
		&q.NextSequence,
		&q.LastStaffActivityAt,
		&q.CreatedAt,
		&q.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &q, nil
}

func scanTicket(row pgx.Row) (*domain.Ticket, error) {
	var t domain.Ticket
	var userID, guestToken *string
	var origin, state string
	if err := row.Scan(
		&t.ID,
		&t.QueueID,
		&t.DepartmentID,
		&t.Number,
		&userID,
		&guestToken,
		&t.GuestName,
		&t.GuestPhone,
		&origin,
		&state,
		&t.Seq,
		&t.CreatedAt,
		&t.CalledAt,
		&t.ServedAt,
	); err != nil {
		return nil, err
	}
	if userID != nil {
		t.Requester.UserID = *userID
	}
	if guestToken != nil {
		t.Requester.GuestToken = *guestToken
	}
	t.Origin = domain.TicketOrigin(origin)
	t.State = domain.TicketState(state)
	return &t, nil
}

func scanEmergency(row pgx.Row) (*domain.Emergency, error) {
	var e domain.Emergency
	var state string
	if err := row.Scan(&e.ID, &e.DepartmentID, &e.RequesterID, &e.Reason, &e.Proof, &e.Note, &state, &e.CreatedAt, &e.UpdatedAt); err != nil {
		return nil, err
	}
	e.State = domain.EmergencyState(state)
	return &e, nil
}

func scanDepartmentQR(row pgx.Row) (*domain.DepartmentQR, error) {
	var qr domain.DepartmentQR
	if err := row.Scan(&qr.ID, &qr.DepartmentID, &qr.ValidUntil, &qr.IsActive, &qr.CreatedAt); err != nil {
		return nil, err
	}
	return &qr, nil
}

func scanFeedback(row pgx.Row) (*domain.Feedback, error) {
	var fb domain.Feedback
	if err := row.Scan(&fb.ID, &fb.TicketID, &fb.StudentID, &fb.DepartmentID, &fb.Options, &fb.Comment, &fb.CreatedAt); err != nil {
		return nil, err
	}
	return &fb, nil
}

func ticketStateStrings(states []domain.TicketState) []string {
	out := make([]string, len(states))
	for i, s := range states {
		out[i] = string(s)
	}
	return out
}

func nullIfEmpty(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullIfZeroTime(value time.Time) any {
	if value.IsZero() {
		return nil
	}
	return value
}

// translate maps constraint violations onto engine sentinels.
func translate(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != "23505" {
		return err
	}
	switch pgErr.ConstraintName {
	case "tickets_one_active_per_identity":
		return domain.ErrAlreadyInQueue
	case "emergencies_one_active_per_department":
		return domain.ErrEmergencyAlreadyActive
	case "departments_name_key":
		return domain.ErrDepartmentExists
	case "users_email_key":
		return domain.ErrEmailTaken
	case "feedback_ticket_key":
		return domain.ErrFeedbackExists
	}
	return err
}
