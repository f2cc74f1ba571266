package session

// Overlaps reports whether two sessions on the same calendar date occupy
// overlapping time windows. Intervals are half-open: a session ending exactly
// when another starts does not overlap it. Overnight spans are normalized
// before comparison so raw HH:MM strings are never compared across midnight.
func Overlaps(a, b Session) bool {
	if a.Date.Format("2006-01-02") != b.Date.Format("2006-01-02") {
		return false
	}
	s1, e1, err := Interval(a)
	if err != nil {
		return false
	}
	s2, e2, err := Interval(b)
	if err != nil {
		return false
	}
	return s1.Before(e2) && s2.Before(e1)
}

// HasConflict reports whether the candidate overlaps any existing session.
// Cancelled sessions and the candidate itself (on update) are skipped. The
// existing slice is expected to hold the same teacher's sessions for the
// candidate's date.
func HasConflict(candidate Session, existing []Session) bool {
	for _, other := range existing {
		if other.Status == StatusCancelled {
			continue
		}
		if candidate.ID != "" && other.ID == candidate.ID {
			continue
		}
		if Overlaps(candidate, other) {
			return true
		}
	}
	return false
}
