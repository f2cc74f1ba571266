package verification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"classtrack/internal/geo"
	"classtrack/internal/metrics"
	"classtrack/internal/queue"
	"classtrack/internal/session"
)

// ErrUpstream marks a collaborator that did not answer. It is retryable and
// distinct from a hard denial.
var ErrUpstream = errors.New("verification collaborator unavailable")

// DegradedRemark marks attendance rows committed without a verified
// secondary factor so downstream consumers can audit them.
const DegradedRemark = "degraded: secondary factor unverified"

// VerifiedRemark marks fully verified commits.
const VerifiedRemark = "verified: geofence + proximity + identity"

// AuditMessageType is the queue message type for post-commit audits.
const AuditMessageType = "join.audit"

// AuditMessage is the queue payload published after a degraded commit.
type AuditMessage struct {
	AttendanceID string `json:"attendance_id"`
	SessionID    string `json:"session_id"`
	StudentID    string `json:"student_id"`
}

// SecondaryFactor checks short-range proximity (e.g. a classroom beacon).
type SecondaryFactor interface {
	BeaconPresent(ctx context.Context, sessionID string) (bool, error)
}

// IdentityConfirmer runs the final identity-confirmation step against the
// captured proof (image reference or PIN).
type IdentityConfirmer interface {
	ConfirmIdentity(ctx context.Context, studentID, proof string) (bool, error)
}

// Ledger commits attendance. created=false means the row already existed.
type Ledger interface {
	MarkPresent(ctx context.Context, studentID, sessionID string, date time.Time, markedBy, remarks string) (bool, error)
}

// Orchestrator runs the sequential verification gate in front of the
// attendance ledger: geofence, then proximity, then identity confirmation,
// then commit.
type Orchestrator struct {
	defaultRadiusM float64
	strict         bool
	factor         SecondaryFactor
	confirmer      IdentityConfirmer
	ledger         Ledger
	audits         queue.Queue
}

// NewOrchestrator wires the gate. audits may be nil when no worker consumes
// audit messages; strict controls whether a failed secondary factor blocks
// the attempt instead of degrading it.
func NewOrchestrator(defaultRadiusM float64, strict bool, factor SecondaryFactor, confirmer IdentityConfirmer, ledger Ledger, audits queue.Queue) *Orchestrator {
	if defaultRadiusM <= 0 {
		defaultRadiusM = 50
	}
	return &Orchestrator{
		defaultRadiusM: defaultRadiusM,
		strict:         strict,
		factor:         factor,
		confirmer:      confirmer,
		ledger:         ledger,
		audits:         audits,
	}
}

// JoinRequest carries the student's submitted inputs for one attempt.
// Latitude/Longitude are pointers: absent coordinates mean the location
// collaborator could not answer, which is different from being out of range.
type JoinRequest struct {
	StudentID string
	Session   session.Session
	Latitude  *float64
	Longitude *float64
	Proof     string
}

// JoinResult reports the attempt outcome to the caller with enough detail to
// say why a denied join was denied.
type JoinResult struct {
	State           string  `json:"state"`
	Reason          Reason  `json:"reason,omitempty"`
	DistanceMeters  float64 `json:"distance_meters"`
	Degraded        bool    `json:"degraded"`
	Created         bool    `json:"created"`
	AlreadyRecorded bool    `json:"already_recorded"`
}

// Join runs one attempt end to end. A Failed terminal state is a normal
// result, not an error; errors are reserved for collaborators or storage not
// answering.
func (o *Orchestrator) Join(ctx context.Context, req JoinRequest) (JoinResult, error) {
	attempt := NewAttempt(req.StudentID, req.Session.ID)

	// Location gate.
	if req.Latitude == nil || req.Longitude == nil {
		attempt, _ = attempt.Fail(ReasonLocationUnavailable)
		metrics.JoinAttempts.WithLabelValues("location_unavailable").Inc()
		return result(attempt, false, false), nil
	}
	decision := geo.Decision{Allowed: true}
	if req.Session.Geofence != nil {
		radius := req.Session.RadiusM
		if radius <= 0 {
			radius = o.defaultRadiusM
		}
		decision = geo.Validate(req.Session.Geofence.Latitude, req.Session.Geofence.Longitude,
			*req.Latitude, *req.Longitude, radius)
	}
	attempt, err := attempt.ApplyLocation(decision)
	if err != nil {
		return JoinResult{}, err
	}
	if attempt.State == StateFailed {
		metrics.GeofenceDenials.Inc()
		metrics.JoinAttempts.WithLabelValues("out_of_range").Inc()
		return result(attempt, false, false), nil
	}

	// Secondary-factor gate (soft unless strict).
	present, err := o.factor.BeaconPresent(ctx, req.Session.ID)
	if err != nil {
		if o.strict {
			return JoinResult{}, fmt.Errorf("%w: %v", ErrUpstream, err)
		}
		// Tolerate missing hardware: treat as factor not present.
		present = false
	}
	attempt, err = attempt.ApplySecondaryFactor(present, o.strict)
	if err != nil {
		return JoinResult{}, err
	}
	if attempt.State == StateFailed {
		metrics.JoinAttempts.WithLabelValues("secondary_factor_failed").Inc()
		return result(attempt, false, false), nil
	}

	// Identity confirmation, always a hard gate.
	verified, err := o.confirmer.ConfirmIdentity(ctx, req.StudentID, req.Proof)
	if err != nil {
		return JoinResult{}, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	attempt, err = attempt.ApplyConfirmation(verified)
	if err != nil {
		return JoinResult{}, err
	}
	if attempt.State == StateFailed {
		metrics.JoinAttempts.WithLabelValues("confirmation_failed").Inc()
		return result(attempt, false, false), nil
	}

	// Commit. An already-recorded row is an idempotent success.
	remarks := VerifiedRemark
	if attempt.Degraded {
		remarks = DegradedRemark
	}
	created, err := o.ledger.MarkPresent(ctx, req.StudentID, req.Session.ID, req.Session.Date, req.StudentID, remarks)
	if err != nil {
		return JoinResult{}, err
	}

	if attempt.Degraded {
		metrics.JoinAttempts.WithLabelValues("degraded").Inc()
		o.publishAudit(ctx, req)
	} else {
		metrics.JoinAttempts.WithLabelValues("committed").Inc()
	}
	return result(attempt, created, !created), nil
}

func (o *Orchestrator) publishAudit(ctx context.Context, req JoinRequest) {
	if o.audits == nil {
		return
	}
	body, err := json.Marshal(AuditMessage{
		SessionID: req.Session.ID,
		StudentID: req.StudentID,
	})
	if err != nil {
		return
	}
	if err := o.audits.Publish(ctx, queue.Message{Type: AuditMessageType, Body: body}); err != nil {
		log.Printf("audit publish failed for session %s: %v", req.Session.ID, err)
	}
}

func result(a Attempt, created, already bool) JoinResult {
	return JoinResult{
		State:           a.State,
		Reason:          a.Reason,
		DistanceMeters:  a.DistanceMeters,
		Degraded:        a.Degraded,
		Created:         created,
		AlreadyRecorded: already,
	}
}
