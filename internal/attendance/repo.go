package attendance

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
)

// uniqueViolation is the Postgres SQLSTATE for a unique constraint violation.
const uniqueViolation = "23505"

// Repository persists attendance data in Postgres. The
// (student_id, date, session_id) uniqueness constraint lives in the database,
// so a race between two near-simultaneous marks resolves to one insert and
// one ErrDuplicate.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Insert writes a new attendance row. A unique violation on the
// (student, date, session) triple maps to ErrDuplicate; every other failure
// is surfaced as-is.
func (r *Repository) Insert(ctx context.Context, rec Record) (Record, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO attendance (id, student_id, session_id, date, status, marked_by, remarks)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		RETURNING created_at
	`, rec.ID, rec.StudentID, rec.SessionID, rec.Date, rec.Status, rec.MarkedBy, rec.Remarks)
	if err := row.Scan(&rec.CreatedAt); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return Record{}, ErrDuplicate
		}
		return Record{}, err
	}
	return rec, nil
}

// UpdateStatus amends the status of an existing record.
func (r *Repository) UpdateStatus(ctx context.Context, id, status string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE attendance SET status = $2 WHERE id = $1`, id, status)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// List returns records matching the filter, most recent first.
func (r *Repository) List(ctx context.Context, f Filter) ([]Record, error) {
	query := `SELECT id, student_id, session_id, date, status, marked_by, remarks, created_at FROM attendance`
	args := []any{}
	clauses := []string{}
	add := func(cond string, val any) {
		args = append(args, val)
		clauses = append(clauses, fmt.Sprintf(cond, len(args)))
	}
	if f.StudentID != "" {
		add("student_id = $%d", f.StudentID)
	}
	if f.SessionID != "" {
		add("session_id = $%d", f.SessionID)
	}
	if f.Status != "" {
		add("status = $%d", f.Status)
	}
	if !f.From.IsZero() {
		add("date >= $%d", f.From)
	}
	if !f.To.IsZero() {
		add("date <= $%d", f.To)
	}
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY date DESC, created_at DESC"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.ID, &rec.StudentID, &rec.SessionID, &rec.Date, &rec.Status, &rec.MarkedBy, &rec.Remarks, &rec.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// CountForSession reports how many attendance rows reference a session.
func (r *Repository) CountForSession(ctx context.Context, sessionID string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM attendance WHERE session_id = $1`, sessionID).Scan(&n)
	return n, err
}

// Audit is the worker's post-commit beacon re-check for a degraded join.
type Audit struct {
	ID           string    `json:"id"`
	AttendanceID string    `json:"attendance_id"`
	SessionID    string    `json:"session_id"`
	StudentID    string    `json:"student_id"`
	Present      bool      `json:"present"`
	RSSI         int       `json:"rssi"`
	Confidence   string    `json:"confidence"`
	CheckedAt    time.Time `json:"checked_at"`
}

// InsertAudit records the outcome of a post-commit verification audit.
func (r *Repository) InsertAudit(ctx context.Context, a Audit) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.CheckedAt.IsZero() {
		a.CheckedAt = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO verification_audits (id, attendance_id, session_id, student_id, present, rssi, confidence, checked_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, a.ID, a.AttendanceID, a.SessionID, a.StudentID, a.Present, a.RSSI, a.Confidence, a.CheckedAt)
	return err
}
