package session

import "errors"

var (
	// ErrConflict is returned when a candidate session overlaps an existing
	// one for the same teacher. The text is the user-facing message.
	ErrConflict = errors.New("Session time overlaps with an existing session")

	// ErrNotFound is returned when a session id does not exist.
	ErrNotFound = errors.New("session not found")

	// ErrCompleted rejects updates to a session whose stored status is
	// already completed.
	ErrCompleted = errors.New("cannot modify completed session")

	// ErrHasAttendance rejects deleting a completed session that has
	// attendance records attached.
	ErrHasAttendance = errors.New("cannot delete completed session with attendance records")
)

// ValidationError reports missing or malformed input. It is raised before any
// side effect.
type ValidationError struct {
	Msg string
}

func (e ValidationError) Error() string { return e.Msg }

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve ValidationError
	return errors.As(err, &ve)
}
