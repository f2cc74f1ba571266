package verification

import (
	"errors"

	"classtrack/internal/geo"
)

// Attempt states. An attempt walks the steps strictly in order; Failed is an
// absorbing state reachable from any step.
const (
	StateAwaitingLocation        = "AWAITING_LOCATION"
	StateAwaitingSecondaryFactor = "AWAITING_SECONDARY_FACTOR"
	StateAwaitingConfirmation    = "AWAITING_CONFIRMATION"
	StateCommitted               = "COMMITTED"
	StateFailed                  = "FAILED"
)

// Reason explains why an attempt failed. Reasons are business outcomes, not
// errors.
type Reason string

const (
	ReasonOutOfRange          Reason = "OUT_OF_RANGE"
	ReasonLocationUnavailable Reason = "LOCATION_UNAVAILABLE"
	ReasonSecondaryFactor     Reason = "SECONDARY_FACTOR_FAILED"
	ReasonConfirmation        Reason = "CONFIRMATION_FAILED"
	ReasonNetwork             Reason = "NETWORK_ERROR"
)

// ErrInvalidTransition is returned when a step is applied out of order.
var ErrInvalidTransition = errors.New("invalid verification transition")

// Attempt is the ephemeral state of one join attempt. It is a plain value:
// transitions return a new Attempt instead of mutating shared state, which
// keeps them testable without a UI or store.
type Attempt struct {
	StudentID string `json:"student_id"`
	SessionID string `json:"session_id"`
	State     string `json:"state"`
	Reason    Reason `json:"reason,omitempty"`

	// DistanceMeters is filled by the location step.
	DistanceMeters float64 `json:"distance_meters"`

	// Degraded marks an attempt that advanced past a failed secondary
	// factor. A degraded commit must stay auditable downstream.
	Degraded bool `json:"degraded"`
}

// NewAttempt starts an attempt at the location step.
func NewAttempt(studentID, sessionID string) Attempt {
	return Attempt{StudentID: studentID, SessionID: sessionID, State: StateAwaitingLocation}
}

// Terminal reports whether the attempt has finished.
func (a Attempt) Terminal() bool {
	return a.State == StateCommitted || a.State == StateFailed
}

// ApplyLocation consumes the geofence decision. A denial fails the attempt
// with ReasonOutOfRange.
func (a Attempt) ApplyLocation(d geo.Decision) (Attempt, error) {
	if a.State != StateAwaitingLocation {
		return a, ErrInvalidTransition
	}
	a.DistanceMeters = d.DistanceMeters
	if !d.Allowed {
		a.State = StateFailed
		a.Reason = ReasonOutOfRange
		return a, nil
	}
	a.State = StateAwaitingSecondaryFactor
	return a, nil
}

// ApplySecondaryFactor consumes the proximity check. The factor is a soft
// gate: in degraded mode a failed check still advances, with the attempt
// marked degraded; in strict mode it fails the attempt.
func (a Attempt) ApplySecondaryFactor(present, strict bool) (Attempt, error) {
	if a.State != StateAwaitingSecondaryFactor {
		return a, ErrInvalidTransition
	}
	if !present {
		if strict {
			a.State = StateFailed
			a.Reason = ReasonSecondaryFactor
			return a, nil
		}
		a.Degraded = true
	}
	a.State = StateAwaitingConfirmation
	return a, nil
}

// ApplyConfirmation consumes the identity-confirmation result. This gate is
// always hard: failure never advances, degraded mode or not.
func (a Attempt) ApplyConfirmation(verified bool) (Attempt, error) {
	if a.State != StateAwaitingConfirmation {
		return a, ErrInvalidTransition
	}
	if !verified {
		a.State = StateFailed
		a.Reason = ReasonConfirmation
		return a, nil
	}
	a.State = StateCommitted
	return a, nil
}

// Fail moves a non-terminal attempt to Failed with the given reason, used
// when a collaborator does not answer.
func (a Attempt) Fail(reason Reason) (Attempt, error) {
	if a.Terminal() {
		return a, ErrInvalidTransition
	}
	a.State = StateFailed
	a.Reason = reason
	return a, nil
}
