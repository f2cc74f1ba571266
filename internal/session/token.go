package session

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrSessionClosed rejects join tokens for completed or cancelled sessions.
	ErrSessionClosed = errors.New("cannot issue join token for a completed or cancelled session")

	// ErrSessionEnded rejects join tokens once the session's end time has passed.
	ErrSessionEnded = errors.New("session has already ended")
)

// JoinClaims is the payload embedded in a session join token. The QR code a
// teacher projects carries one of these, signed, expiring at session end.
type JoinClaims struct {
	SessionID string `json:"session_id"`
	TeacherID string `json:"teacher_id"`
	Class     string `json:"class"`
	Section   string `json:"section"`
	Subject   string `json:"subject"`
	jwt.RegisteredClaims
}

// IssueJoinToken signs a join token for an active session. The token expires
// at the session's end instant, so a stale QR code cannot be replayed after
// class.
func IssueJoinToken(s Session, signingKey string, now time.Time) (string, time.Time, error) {
	if s.Status == StatusCompleted || s.Status == StatusCancelled {
		return "", time.Time{}, ErrSessionClosed
	}
	_, end, err := Interval(s)
	if err != nil {
		return "", time.Time{}, err
	}
	if !end.After(now) {
		return "", time.Time{}, ErrSessionEnded
	}

	claims := JoinClaims{
		SessionID: s.ID,
		TeacherID: s.TeacherID,
		Class:     s.Class,
		Section:   s.Section,
		Subject:   s.Subject,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   s.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(end),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(signingKey))
	if err != nil {
		return "", time.Time{}, err
	}
	return token, end, nil
}

// ParseJoinToken validates a join token and returns its claims.
func ParseJoinToken(tokenStr, signingKey string) (JoinClaims, error) {
	parsed, err := jwt.ParseWithClaims(tokenStr, &JoinClaims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(signingKey), nil
	})
	if err != nil {
		return JoinClaims{}, err
	}
	claims, ok := parsed.Claims.(*JoinClaims)
	if !ok || !parsed.Valid {
		return JoinClaims{}, errors.New("invalid join token")
	}
	return *claims, nil
}
