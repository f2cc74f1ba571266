package verification

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"classtrack/internal/geo"
	"classtrack/internal/queue"
	"classtrack/internal/session"
)

type fakeFactor struct {
	present bool
	err     error
	calls   int
}

func (f *fakeFactor) BeaconPresent(context.Context, string) (bool, error) {
	f.calls++
	return f.present, f.err
}

type fakeConfirmer struct {
	verified bool
	err      error
	calls    int
}

func (f *fakeConfirmer) ConfirmIdentity(context.Context, string, string) (bool, error) {
	f.calls++
	return f.verified, f.err
}

type fakeLedger struct {
	created bool
	err     error
	calls   int
	remarks string
}

func (f *fakeLedger) MarkPresent(_ context.Context, _, _ string, _ time.Time, _, remarks string) (bool, error) {
	f.calls++
	f.remarks = remarks
	return f.created, f.err
}

func ptr(v float64) *float64 { return &v }

func liveSession() session.Session {
	return session.Session{
		ID:        "sess-1",
		TeacherID: "t1",
		Date:      time.Date(2026, 1, 20, 0, 0, 0, 0, time.UTC),
		StartTime: "09:00",
		EndTime:   "10:00",
		Status:    session.StatusScheduled,
		Geofence:  &session.Geofence{Latitude: 19.1164, Longitude: 72.90471},
	}
}

func request() JoinRequest {
	return JoinRequest{
		StudentID: "stu-1",
		Session:   liveSession(),
		Latitude:  ptr(19.1164),
		Longitude: ptr(72.90471),
		Proof:     "capture-url",
	}
}

func TestJoinFullyVerified(t *testing.T) {
	ledger := &fakeLedger{created: true}
	o := NewOrchestrator(50, false, &fakeFactor{present: true}, &fakeConfirmer{verified: true}, ledger, nil)

	res, err := o.Join(context.Background(), request())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.State != StateCommitted || !res.Created || res.Degraded {
		t.Fatalf("unexpected result: %+v", res)
	}
	if ledger.remarks != VerifiedRemark {
		t.Fatalf("expected verified remark, got %q", ledger.remarks)
	}
}

func TestJoinOutOfRange(t *testing.T) {
	ledger := &fakeLedger{}
	confirmer := &fakeConfirmer{verified: true}
	o := NewOrchestrator(50, false, &fakeFactor{present: true}, confirmer, ledger, nil)

	req := request()
	// ~1000 meters north of the center.
	req.Latitude = ptr(19.1254)

	res, err := o.Join(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.State != StateFailed || res.Reason != ReasonOutOfRange {
		t.Fatalf("expected out-of-range failure, got %+v", res)
	}
	if res.DistanceMeters < 900 {
		t.Fatalf("expected reported distance, got %f", res.DistanceMeters)
	}
	if confirmer.calls != 0 || ledger.calls != 0 {
		t.Fatalf("later steps must not run after a location failure")
	}
}

func TestJoinMissingCoordinates(t *testing.T) {
	o := NewOrchestrator(50, false, &fakeFactor{present: true}, &fakeConfirmer{verified: true}, &fakeLedger{}, nil)

	req := request()
	req.Latitude = nil

	res, err := o.Join(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.State != StateFailed || res.Reason != ReasonLocationUnavailable {
		t.Fatalf("missing coordinates must fail as unavailable, got %+v", res)
	}
}

func TestJoinDegradedCommit(t *testing.T) {
	ledger := &fakeLedger{created: true}
	audits := queue.NewInMemory(1)
	o := NewOrchestrator(50, false, &fakeFactor{present: false}, &fakeConfirmer{verified: true}, ledger, audits)

	res, err := o.Join(context.Background(), request())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.State != StateCommitted || !res.Degraded || !res.Created {
		t.Fatalf("expected degraded commit, got %+v", res)
	}
	if ledger.remarks != DegradedRemark {
		t.Fatalf("degraded commit must be marked in remarks, got %q", ledger.remarks)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	messages, _ := audits.Consume(ctx)
	select {
	case msg := <-messages:
		if msg.Type != AuditMessageType {
			t.Fatalf("unexpected audit type %q", msg.Type)
		}
		var audit AuditMessage
		if err := json.Unmarshal(msg.Body, &audit); err != nil || audit.SessionID != "sess-1" {
			t.Fatalf("bad audit payload: %s (%v)", msg.Body, err)
		}
	case <-ctx.Done():
		t.Fatalf("expected an audit message for a degraded commit")
	}
}

func TestJoinStrictModeBlocksOnFactor(t *testing.T) {
	ledger := &fakeLedger{}
	o := NewOrchestrator(50, true, &fakeFactor{present: false}, &fakeConfirmer{verified: true}, ledger, nil)

	res, err := o.Join(context.Background(), request())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.State != StateFailed || res.Reason != ReasonSecondaryFactor {
		t.Fatalf("strict mode must fail on the factor, got %+v", res)
	}
	if ledger.calls != 0 {
		t.Fatalf("no commit may happen after a strict factor failure")
	}
}

func TestJoinConfirmationAlwaysHard(t *testing.T) {
	ledger := &fakeLedger{}
	// Secondary factor failed and was degraded past; confirmation failure
	// must still block the commit.
	o := NewOrchestrator(50, false, &fakeFactor{present: false}, &fakeConfirmer{verified: false}, ledger, nil)

	res, err := o.Join(context.Background(), request())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.State != StateFailed || res.Reason != ReasonConfirmation {
		t.Fatalf("expected confirmation failure, got %+v", res)
	}
	if ledger.calls != 0 {
		t.Fatalf("confirmation failure must never commit")
	}
}

func TestJoinIdempotentRejoin(t *testing.T) {
	ledger := &fakeLedger{created: false}
	o := NewOrchestrator(50, false, &fakeFactor{present: true}, &fakeConfirmer{verified: true}, ledger, nil)

	res, err := o.Join(context.Background(), request())
	if err != nil {
		t.Fatalf("rejoin must not error: %v", err)
	}
	if res.State != StateCommitted || res.Created || !res.AlreadyRecorded {
		t.Fatalf("expected already-recorded success, got %+v", res)
	}
}

func TestJoinUpstreamErrors(t *testing.T) {
	o := NewOrchestrator(50, false, &fakeFactor{present: true}, &fakeConfirmer{err: errors.New("timeout")}, &fakeLedger{}, nil)
	_, err := o.Join(context.Background(), request())
	if !errors.Is(err, ErrUpstream) {
		t.Fatalf("confirmer outage must surface ErrUpstream, got %v", err)
	}

	strict := NewOrchestrator(50, true, &fakeFactor{err: errors.New("timeout")}, &fakeConfirmer{verified: true}, &fakeLedger{}, nil)
	if _, err := strict.Join(context.Background(), request()); !errors.Is(err, ErrUpstream) {
		t.Fatalf("strict factor outage must surface ErrUpstream, got %v", err)
	}
}

func TestJoinFactorOutageDegradesWhenNotStrict(t *testing.T) {
	ledger := &fakeLedger{created: true}
	o := NewOrchestrator(50, false, &fakeFactor{err: errors.New("no hardware")}, &fakeConfirmer{verified: true}, ledger, nil)

	res, err := o.Join(context.Background(), request())
	if err != nil {
		t.Fatalf("factor outage must degrade, not error: %v", err)
	}
	if !res.Degraded || res.State != StateCommitted {
		t.Fatalf("expected degraded commit, got %+v", res)
	}
}

func TestJoinNoGeofenceConfigured(t *testing.T) {
	ledger := &fakeLedger{created: true}
	o := NewOrchestrator(50, false, &fakeFactor{present: true}, &fakeConfirmer{verified: true}, ledger, nil)

	req := request()
	req.Session.Geofence = nil

	res, err := o.Join(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.State != StateCommitted {
		t.Fatalf("sessions without a geofence skip the distance check, got %+v", res)
	}
}

func TestAttemptTransitions(t *testing.T) {
	a := NewAttempt("s", "x")

	if _, err := a.ApplyConfirmation(true); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("confirmation before location must be rejected")
	}
	if _, err := a.ApplySecondaryFactor(true, false); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("factor before location must be rejected")
	}

	a, err := a.ApplyLocation(geo.Decision{Allowed: true, DistanceMeters: 3})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	a, err = a.ApplySecondaryFactor(true, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	a, err = a.ApplyConfirmation(true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a.State != StateCommitted || !a.Terminal() {
		t.Fatalf("expected committed terminal attempt, got %+v", a)
	}
	if _, err := a.Fail(ReasonNetwork); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("terminal attempts must not transition again")
	}
}
