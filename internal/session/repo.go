package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Repository persists sessions in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

const sessionColumns = `id, teacher_id, class, section, subject, topic, date, start_time, end_time, status, center_lat, center_lon, radius_m, created_at`

func scanSession(row interface{ Scan(...any) error }) (Session, error) {
	var s Session
	var lat, lon, radius sql.NullFloat64
	err := row.Scan(&s.ID, &s.TeacherID, &s.Class, &s.Section, &s.Subject, &s.Topic,
		&s.Date, &s.StartTime, &s.EndTime, &s.Status, &lat, &lon, &radius, &s.CreatedAt)
	if err != nil {
		return Session{}, err
	}
	if lat.Valid && lon.Valid {
		s.Geofence = &Geofence{Latitude: lat.Float64, Longitude: lon.Float64}
	}
	if radius.Valid {
		s.RadiusM = radius.Float64
	}
	return s, nil
}

func geofenceArgs(s Session) (lat, lon, radius any) {
	if s.Geofence != nil {
		lat, lon = s.Geofence.Latitude, s.Geofence.Longitude
	}
	if s.RadiusM > 0 {
		radius = s.RadiusM
	}
	return lat, lon, radius
}

// CreateChecked inserts a session after verifying it does not overlap another
// non-cancelled session for the same teacher on the same date. The read and
// the insert run inside one serializable transaction so two concurrent
// overlapping creates cannot both win.
func (r *Repository) CreateChecked(ctx context.Context, s Session) (Session, error) {
	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return Session{}, err
	}
	defer tx.Rollback()

	existing, err := listForTeacherOnDate(ctx, tx, s.TeacherID, s.Date)
	if err != nil {
		return Session{}, err
	}
	if HasConflict(s, existing) {
		return Session{}, ErrConflict
	}

	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	if s.Status == "" {
		s.Status = StatusScheduled
	}
	lat, lon, radius := geofenceArgs(s)
	row := tx.QueryRowContext(ctx, `
		INSERT INTO sessions (id, teacher_id, class, section, subject, topic, date, start_time, end_time, status, center_lat, center_lon, radius_m)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
		RETURNING created_at
	`, s.ID, s.TeacherID, s.Class, s.Section, s.Subject, s.Topic, s.Date, s.StartTime, s.EndTime, s.Status, lat, lon, radius)
	if err := row.Scan(&s.CreatedAt); err != nil {
		return Session{}, err
	}
	return s, tx.Commit()
}

// UpdateChecked updates a session under the same conflict check as creation.
// A session whose stored status is already completed cannot be modified.
func (r *Repository) UpdateChecked(ctx context.Context, s Session) (Session, error) {
	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return Session{}, err
	}
	defer tx.Rollback()

	current, err := scanSession(tx.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE id = $1`, s.ID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Session{}, ErrNotFound
		}
		return Session{}, err
	}
	if current.Status == StatusCompleted {
		return Session{}, ErrCompleted
	}

	// Ownership never changes on update. The conflict check must run against
	// the stored owner's sessions, not whoever issued the request.
	s.TeacherID = current.TeacherID

	existing, err := listForTeacherOnDate(ctx, tx, current.TeacherID, s.Date)
	if err != nil {
		return Session{}, err
	}
	if HasConflict(s, existing) {
		return Session{}, ErrConflict
	}

	lat, lon, radius := geofenceArgs(s)
	_, err = tx.ExecContext(ctx, `
		UPDATE sessions
		SET class = $2, section = $3, subject = $4, topic = $5, date = $6,
		    start_time = $7, end_time = $8, status = $9, center_lat = $10, center_lon = $11, radius_m = $12
		WHERE id = $1
	`, s.ID, s.Class, s.Section, s.Subject, s.Topic, s.Date, s.StartTime, s.EndTime, s.Status, lat, lon, radius)
	if err != nil {
		return Session{}, err
	}
	s.CreatedAt = current.CreatedAt
	return s, tx.Commit()
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func listForTeacherOnDate(ctx context.Context, q querier, teacherID string, date time.Time) ([]Session, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT `+sessionColumns+`
		FROM sessions
		WHERE teacher_id = $1 AND date = $2 AND status <> $3
	`, teacherID, date, StatusCancelled)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Get returns a single session by id.
func (r *Repository) Get(ctx context.Context, id string) (Session, error) {
	s, err := scanSession(r.db.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, ErrNotFound
	}
	return s, err
}

// Delete removes a session. Lifecycle checks happen in the service.
func (r *Repository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// Filter narrows session listings.
type Filter struct {
	TeacherID string
	Class     string
	Section   string
	Status    string
	From      time.Time
	To        time.Time
}

// List returns sessions matching the filter, most recent date first.
func (r *Repository) List(ctx context.Context, f Filter) ([]Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions`
	args := []any{}
	clauses := []string{}
	add := func(cond string, val any) {
		args = append(args, val)
		clauses = append(clauses, fmt.Sprintf(cond, len(args)))
	}
	if f.TeacherID != "" {
		add("teacher_id = $%d", f.TeacherID)
	}
	if f.Class != "" {
		add("class = $%d", f.Class)
	}
	if f.Section != "" {
		add("section = $%d", f.Section)
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
	query += " ORDER BY date DESC, start_time DESC"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
