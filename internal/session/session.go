package session

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// State is the temporal classification of a session relative to a point in
// time. It is always derived from the clock, never stored.
type State string

const (
	StateUpcoming  State = "upcoming"
	StateLive      State = "live"
	StateCompleted State = "completed"
)

// Stored lifecycle status, distinct from the derived State.
const (
	StatusScheduled = "scheduled"
	StatusCompleted = "completed"
	StatusCancelled = "cancelled"
)

// Geofence is an optional circular boundary attached to a session.
type Geofence struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Session is a scheduled teaching block. StartTime and EndTime are local
// wall-clock HH:MM strings; an end time earlier than the start time means the
// session runs past midnight into the next day.
type Session struct {
	ID        string    `json:"id"`
	TeacherID string    `json:"teacher_id"`
	Class     string    `json:"class"`
	Section   string    `json:"section"`
	Subject   string    `json:"subject"`
	Topic     string    `json:"topic"`
	Date      time.Time `json:"date"`
	StartTime string    `json:"start_time"`
	EndTime   string    `json:"end_time"`
	Status    string    `json:"status"`
	Geofence  *Geofence `json:"gps_location,omitempty"`
	RadiusM   float64   `json:"radius_m,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// parseClock parses an HH:MM wall-clock string.
func parseClock(v string) (int, int, error) {
	parts := strings.SplitN(v, ":", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid time %q, want HH:MM", v)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, 0, fmt.Errorf("invalid hour in %q", v)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, 0, fmt.Errorf("invalid minute in %q", v)
	}
	return h, m, nil
}

// ValidateClock rejects malformed HH:MM strings. Sessions are validated at
// creation so that Classify and Overlaps never see bad input.
func ValidateClock(v string) error {
	_, _, err := parseClock(v)
	return err
}

// Interval returns the absolute start and end instants of a session. When the
// end clock is not after the start clock the session spans midnight and the
// end lands on the following day.
func Interval(s Session) (time.Time, time.Time, error) {
	sh, sm, err := parseClock(s.StartTime)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	eh, em, err := parseClock(s.EndTime)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	y, mo, d := s.Date.Date()
	loc := s.Date.Location()
	start := time.Date(y, mo, d, sh, sm, 0, 0, loc)
	end := time.Date(y, mo, d, eh, em, 0, 0, loc)
	if !end.After(start) {
		end = end.AddDate(0, 0, 1)
	}
	return start, end, nil
}

// Classify derives the temporal state of a session at the given instant.
// Times are validated at creation; a session with malformed times is treated
// as already over.
func Classify(s Session, now time.Time) State {
	start, end, err := Interval(s)
	if err != nil {
		return StateCompleted
	}
	switch {
	case now.Before(start):
		return StateUpcoming
	case !now.After(end):
		return StateLive
	default:
		return StateCompleted
	}
}

// Classified groups sessions by derived state. Upcoming sessions are ordered
// by start ascending, completed sessions by start descending.
type Classified struct {
	Live      []Session `json:"live"`
	Upcoming  []Session `json:"upcoming"`
	Completed []Session `json:"completed"`
}

// Partition classifies a collection of sessions at the given instant.
func Partition(sessions []Session, now time.Time) Classified {
	var out Classified
	for _, s := range sessions {
		switch Classify(s, now) {
		case StateLive:
			out.Live = append(out.Live, s)
		case StateUpcoming:
			out.Upcoming = append(out.Upcoming, s)
		default:
			out.Completed = append(out.Completed, s)
		}
	}
	sort.Slice(out.Upcoming, func(i, j int) bool {
		return startOf(out.Upcoming[i]).Before(startOf(out.Upcoming[j]))
	})
	sort.Slice(out.Completed, func(i, j int) bool {
		return startOf(out.Completed[j]).Before(startOf(out.Completed[i]))
	})
	return out
}

func startOf(s Session) time.Time {
	start, _, err := Interval(s)
	if err != nil {
		return time.Time{}
	}
	return start
}
