package session

import (
	"errors"
	"testing"
	"time"
)

func TestJoinTokenRoundTrip(t *testing.T) {
	s := slot("s1", "09:00", "10:00")
	s.Subject = "Physics"
	// Parsing checks exp against the real clock, so the session must be in
	// the future.
	s.Date = time.Now().AddDate(0, 0, 1)

	start, end, err := Interval(s)
	if err != nil {
		t.Fatalf("interval failed: %v", err)
	}

	token, exp, err := IssueJoinToken(s, "secret", start.Add(15*time.Minute))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !exp.Equal(end) {
		t.Fatalf("expected expiry at session end %v, got %v", end, exp)
	}

	claims, err := ParseJoinToken(token, "secret")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if claims.SessionID != "s1" || claims.Subject != "Physics" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
	if _, err := ParseJoinToken(token, "other-secret"); err == nil {
		t.Fatalf("expected signature failure with wrong key")
	}
}

func TestJoinTokenRejectsEndedSession(t *testing.T) {
	s := slot("s1", "09:00", "10:00")
	_, _, err := IssueJoinToken(s, "secret", at(2026, 1, 20, 10, 1))
	if !errors.Is(err, ErrSessionEnded) {
		t.Fatalf("expected ErrSessionEnded, got %v", err)
	}
}

func TestJoinTokenRejectsClosedSession(t *testing.T) {
	for _, status := range []string{StatusCompleted, StatusCancelled} {
		s := slot("s1", "09:00", "10:00")
		s.Status = status
		_, _, err := IssueJoinToken(s, "secret", at(2026, 1, 20, 9, 0))
		if !errors.Is(err, ErrSessionClosed) {
			t.Fatalf("status %s: expected ErrSessionClosed, got %v", status, err)
		}
	}
}
