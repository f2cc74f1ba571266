package session

import (
	"context"
	"strings"
)

// Store is the persistence surface the service needs.
type Store interface {
	CreateChecked(ctx context.Context, s Session) (Session, error)
	UpdateChecked(ctx context.Context, s Session) (Session, error)
	Get(ctx context.Context, id string) (Session, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, f Filter) ([]Session, error)
}

// AttendanceCounter reports how many attendance rows reference a session.
type AttendanceCounter interface {
	CountForSession(ctx context.Context, sessionID string) (int, error)
}

// Service validates and coordinates session writes.
type Service struct {
	store      Store
	attendance AttendanceCounter
}

// NewService creates a service backed by a store.
func NewService(store Store, attendance AttendanceCounter) *Service {
	return &Service{store: store, attendance: attendance}
}

func validate(s Session) error {
	var missing []string
	if s.TeacherID == "" {
		missing = append(missing, "teacher")
	}
	if s.Class == "" {
		missing = append(missing, "class")
	}
	if s.Section == "" {
		missing = append(missing, "section")
	}
	if s.Subject == "" {
		missing = append(missing, "subject")
	}
	if s.Date.IsZero() {
		missing = append(missing, "date")
	}
	if s.StartTime == "" {
		missing = append(missing, "startTime")
	}
	if s.EndTime == "" {
		missing = append(missing, "endTime")
	}
	if len(missing) > 0 {
		return ValidationError{Msg: "please provide all required fields: " + strings.Join(missing, ", ")}
	}
	if err := ValidateClock(s.StartTime); err != nil {
		return ValidationError{Msg: err.Error()}
	}
	if err := ValidateClock(s.EndTime); err != nil {
		return ValidationError{Msg: err.Error()}
	}
	if s.Status != "" && s.Status != StatusScheduled && s.Status != StatusCompleted && s.Status != StatusCancelled {
		return ValidationError{Msg: "invalid status " + s.Status}
	}
	return nil
}

// Create validates a candidate session and inserts it under the conflict
// guard.
func (s *Service) Create(ctx context.Context, in Session) (Session, error) {
	if err := validate(in); err != nil {
		return Session{}, err
	}
	return s.store.CreateChecked(ctx, in)
}

// Update validates changes and applies them under the same conflict guard as
// creation.
func (s *Service) Update(ctx context.Context, in Session) (Session, error) {
	if in.ID == "" {
		return Session{}, ValidationError{Msg: "session id required"}
	}
	if err := validate(in); err != nil {
		return Session{}, err
	}
	return s.store.UpdateChecked(ctx, in)
}

// Delete removes a session. A completed session with attendance records
// attached is immutable and cannot be deleted; it should be cancelled instead.
func (s *Service) Delete(ctx context.Context, id string) error {
	existing, err := s.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if existing.Status == StatusCompleted {
		n, err := s.attendance.CountForSession(ctx, id)
		if err != nil {
			return err
		}
		if n > 0 {
			return ErrHasAttendance
		}
	}
	return s.store.Delete(ctx, id)
}

// Get returns a session by id.
func (s *Service) Get(ctx context.Context, id string) (Session, error) {
	return s.store.Get(ctx, id)
}

// List returns sessions matching the filter.
func (s *Service) List(ctx context.Context, f Filter) ([]Session, error) {
	return s.store.List(ctx, f)
}
