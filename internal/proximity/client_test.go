package proximity

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestCheckBeacon(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/bluetooth/verify" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"present": true, "rssi_mode": -58, "threshold": -65, "confidence": "high"}`))
	}))
	defer srv.Close()

	c := New(srv.URL, false)
	res, err := c.CheckBeacon(context.Background(), "sess-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Present || res.RSSI != -58 || res.Confidence != "high" {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestConfirmIdentityNonOK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no face detected", http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	c := New(srv.URL, false)
	if _, err := c.ConfirmIdentity(context.Background(), "stu-1", "url"); err == nil {
		t.Fatalf("expected error on non-200 response")
	}
}

func TestSkipShortCircuits(t *testing.T) {
	c := New("http://unused", true)
	present, err := c.BeaconPresent(context.Background(), "sess-1")
	if err != nil || !present {
		t.Fatalf("skip mode must pass the beacon check: %v %v", present, err)
	}
	verified, err := c.ConfirmIdentity(context.Background(), "stu-1", "")
	if err != nil || !verified {
		t.Fatalf("skip mode must pass identity confirmation: %v %v", verified, err)
	}
	if err := c.Health(context.Background()); err != nil {
		t.Fatalf("skip mode health: %v", err)
	}
}
