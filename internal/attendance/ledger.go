package attendance

import (
	"context"
	"errors"
	"math"
	"time"
)

// Attendance statuses.
const (
	StatusPresent = "present"
	StatusAbsent  = "absent"
	StatusLeave   = "leave"
	StatusHoliday = "holiday"
)

// ErrDuplicate signals that a row for the same (student, date, session) triple
// already exists. The ledger normalizes it away; it never reaches callers of
// MarkPresent.
var ErrDuplicate = errors.New("attendance already recorded")

// ErrNotFound is returned when an attendance id does not exist.
var ErrNotFound = errors.New("attendance record not found")

// Record is one attendance entry. SessionID is nil for plain daily records
// not tied to a session.
type Record struct {
	ID        string    `json:"id"`
	StudentID string    `json:"student_id"`
	SessionID *string   `json:"session_id,omitempty"`
	Date      time.Time `json:"date"`
	Status    string    `json:"status"`
	MarkedBy  string    `json:"marked_by"`
	Remarks   string    `json:"remarks,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Store is the persistence surface the ledger needs. Insert must rely on the
// storage layer's uniqueness constraint, returning ErrDuplicate on violation;
// an application-level read-then-write check would race.
type Store interface {
	Insert(ctx context.Context, rec Record) (Record, error)
	UpdateStatus(ctx context.Context, id, status string) error
	List(ctx context.Context, f Filter) ([]Record, error)
	CountForSession(ctx context.Context, sessionID string) (int, error)
}

// Filter narrows attendance listings.
type Filter struct {
	StudentID string
	SessionID string
	Status    string
	From      time.Time
	To        time.Time
}

// Ledger records attendance with idempotent marking.
type Ledger struct {
	store Store
}

// NewLedger creates a ledger backed by a store.
func NewLedger(store Store) *Ledger {
	return &Ledger{store: store}
}

// MarkPresent records a present entry for (student, date, session) exactly
// once. A repeat request is an expected retry path, not a fault: it returns
// created=false with no error.
func (l *Ledger) MarkPresent(ctx context.Context, studentID, sessionID string, date time.Time, markedBy, remarks string) (bool, error) {
	if studentID == "" {
		return false, errors.New("student id required")
	}
	rec := Record{
		StudentID: studentID,
		Date:      date,
		Status:    StatusPresent,
		MarkedBy:  markedBy,
		Remarks:   remarks,
	}
	if sessionID != "" {
		rec.SessionID = &sessionID
	}
	_, err := l.store.Insert(ctx, rec)
	if errors.Is(err, ErrDuplicate) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Mark records an entry with an arbitrary status, used by staff marking
// absences, leaves and holidays. Duplicates are normalized the same way as
// MarkPresent; the existing status is never overwritten.
func (l *Ledger) Mark(ctx context.Context, rec Record) (bool, error) {
	if rec.StudentID == "" {
		return false, errors.New("student id required")
	}
	if !validStatus(rec.Status) {
		return false, errors.New("invalid attendance status " + rec.Status)
	}
	_, err := l.store.Insert(ctx, rec)
	if errors.Is(err, ErrDuplicate) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// AmendStatus changes the status of an existing record. It is the only
// mutation the ledger permits and is reserved for staff roles at the API
// layer.
func (l *Ledger) AmendStatus(ctx context.Context, id, status string) error {
	if !validStatus(status) {
		return errors.New("invalid attendance status " + status)
	}
	return l.store.UpdateStatus(ctx, id, status)
}

// List returns records matching the filter.
func (l *Ledger) List(ctx context.Context, f Filter) ([]Record, error) {
	return l.store.List(ctx, f)
}

// CountForSession reports how many records reference a session.
func (l *Ledger) CountForSession(ctx context.Context, sessionID string) (int, error) {
	return l.store.CountForSession(ctx, sessionID)
}

// Stats summarizes a set of records.
type Stats struct {
	Total                int     `json:"total"`
	Present              int     `json:"present"`
	Absent               int     `json:"absent"`
	Leave                int     `json:"leave"`
	AttendancePercentage float64 `json:"attendancePercentage"`
}

// Report is a student's attendance history with derived statistics.
type Report struct {
	Records []Record `json:"records"`
	Stats   Stats    `json:"statistics"`
}

// StudentReport returns a student's records in the given range plus derived
// statistics.
func (l *Ledger) StudentReport(ctx context.Context, studentID string, from, to time.Time) (Report, error) {
	records, err := l.store.List(ctx, Filter{StudentID: studentID, From: from, To: to})
	if err != nil {
		return Report{}, err
	}
	return Report{Records: records, Stats: computeStats(records)}, nil
}

func computeStats(records []Record) Stats {
	st := Stats{Total: len(records)}
	for _, r := range records {
		switch r.Status {
		case StatusPresent:
			st.Present++
		case StatusAbsent:
			st.Absent++
		case StatusLeave:
			st.Leave++
		}
	}
	if st.Total > 0 {
		st.AttendancePercentage = math.Round(float64(st.Present)/float64(st.Total)*10000) / 100
	}
	return st
}

func validStatus(s string) bool {
	switch s {
	case StatusPresent, StatusAbsent, StatusLeave, StatusHoliday:
		return true
	}
	return false
}
