package session

import (
	"context"
	"errors"
	"strings"
	"testing"
)

// fakeStore keeps sessions in memory and mirrors the repository's lifecycle
// and conflict behavior.
type fakeStore struct {
	sessions map[string]Session
	deleted  []string
}

func newFakeStore(existing ...Session) *fakeStore {
	st := &fakeStore{sessions: make(map[string]Session)}
	for _, s := range existing {
		st.sessions[s.ID] = s
	}
	return st
}

func (st *fakeStore) ownersSessions(teacherID string) []Session {
	var out []Session
	for _, s := range st.sessions {
		if s.TeacherID == teacherID && s.Status != StatusCancelled {
			out = append(out, s)
		}
	}
	return out
}

func (st *fakeStore) CreateChecked(_ context.Context, s Session) (Session, error) {
	if HasConflict(s, st.ownersSessions(s.TeacherID)) {
		return Session{}, ErrConflict
	}
	st.sessions[s.ID] = s
	return s, nil
}

func (st *fakeStore) UpdateChecked(_ context.Context, s Session) (Session, error) {
	current, ok := st.sessions[s.ID]
	if !ok {
		return Session{}, ErrNotFound
	}
	if current.Status == StatusCompleted {
		return Session{}, ErrCompleted
	}
	s.TeacherID = current.TeacherID
	if HasConflict(s, st.ownersSessions(current.TeacherID)) {
		return Session{}, ErrConflict
	}
	st.sessions[s.ID] = s
	return s, nil
}

func (st *fakeStore) Get(_ context.Context, id string) (Session, error) {
	s, ok := st.sessions[id]
	if !ok {
		return Session{}, ErrNotFound
	}
	return s, nil
}

func (st *fakeStore) Delete(_ context.Context, id string) error {
	if _, ok := st.sessions[id]; !ok {
		return ErrNotFound
	}
	delete(st.sessions, id)
	st.deleted = append(st.deleted, id)
	return nil
}

func (st *fakeStore) List(context.Context, Filter) ([]Session, error) {
	var out []Session
	for _, s := range st.sessions {
		out = append(out, s)
	}
	return out, nil
}

// fakeCounter reports a fixed attendance count and records whether it was
// consulted.
type fakeCounter struct {
	count  int
	called bool
}

func (f *fakeCounter) CountForSession(context.Context, string) (int, error) {
	f.called = true
	return f.count, nil
}

// filled returns a slot that passes the service's required-field validation.
func filled(id, start, end string) Session {
	s := slot(id, start, end)
	s.Class = "10"
	s.Section = "A"
	s.Subject = "Physics"
	return s
}

func TestServiceCreateRejectsMissingFields(t *testing.T) {
	store := newFakeStore()
	svc := NewService(store, &fakeCounter{})

	s := filled("s1", "09:00", "10:00")
	s.Class = ""
	s.Subject = ""

	_, err := svc.Create(context.Background(), s)
	if !IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
	for _, field := range []string{"class", "subject"} {
		if !strings.Contains(err.Error(), field) {
			t.Fatalf("error must name missing field %q: %v", field, err)
		}
	}
	if len(store.sessions) != 0 {
		t.Fatalf("invalid session must not be stored")
	}
}

func TestServiceCreateRejectsBadClock(t *testing.T) {
	svc := NewService(newFakeStore(), &fakeCounter{})

	s := filled("s1", "24:00", "10:00")
	if _, err := svc.Create(context.Background(), s); !IsValidation(err) {
		t.Fatalf("expected validation error for bad clock, got %v", err)
	}
}

func TestServiceUpdateRequiresID(t *testing.T) {
	svc := NewService(newFakeStore(), &fakeCounter{})

	s := filled("", "09:00", "10:00")
	if _, err := svc.Update(context.Background(), s); !IsValidation(err) {
		t.Fatalf("expected validation error for missing id, got %v", err)
	}
}

func TestServiceUpdateRejectsCompletedSession(t *testing.T) {
	done := filled("s1", "09:00", "10:00")
	done.Status = StatusCompleted
	svc := NewService(newFakeStore(done), &fakeCounter{})

	update := filled("s1", "11:00", "12:00")
	if _, err := svc.Update(context.Background(), update); !errors.Is(err, ErrCompleted) {
		t.Fatalf("expected ErrCompleted, got %v", err)
	}
}

func TestServiceUpdateKeepsConflictScopedToOwner(t *testing.T) {
	// t1 owns both sessions; an update of s1 onto s2's slot must conflict
	// even when the candidate arrives tagged with a different teacher.
	s1 := filled("s1", "09:00", "10:00")
	s2 := filled("s2", "11:00", "12:00")
	store := newFakeStore(s1, s2)
	svc := NewService(store, &fakeCounter{})

	update := filled("s1", "11:30", "12:30")
	update.TeacherID = "admin-1"
	if _, err := svc.Update(context.Background(), update); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected conflict against the owner's sessions, got %v", err)
	}
}

func TestServiceDeleteCompletedWithAttendance(t *testing.T) {
	done := filled("s1", "09:00", "10:00")
	done.Status = StatusCompleted
	store := newFakeStore(done)
	counter := &fakeCounter{count: 3}
	svc := NewService(store, counter)

	err := svc.Delete(context.Background(), "s1")
	if !errors.Is(err, ErrHasAttendance) {
		t.Fatalf("expected ErrHasAttendance, got %v", err)
	}
	if len(store.deleted) != 0 {
		t.Fatalf("session must not be deleted when attendance is attached")
	}
}

func TestServiceDeleteCompletedWithoutAttendance(t *testing.T) {
	done := filled("s1", "09:00", "10:00")
	done.Status = StatusCompleted
	store := newFakeStore(done)
	svc := NewService(store, &fakeCounter{count: 0})

	if err := svc.Delete(context.Background(), "s1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(store.deleted) != 1 || store.deleted[0] != "s1" {
		t.Fatalf("expected s1 deleted, got %v", store.deleted)
	}
}

func TestServiceDeleteScheduledSkipsAttendanceCheck(t *testing.T) {
	store := newFakeStore(filled("s1", "09:00", "10:00"))
	counter := &fakeCounter{count: 5}
	svc := NewService(store, counter)

	if err := svc.Delete(context.Background(), "s1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if counter.called {
		t.Fatalf("attendance count only matters for completed sessions")
	}
}
