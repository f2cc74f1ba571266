package geo

import (
	"math"
	"testing"
)

func TestDistanceSamePoint(t *testing.T) {
	if d := Distance(19.1164, 72.90471, 19.1164, 72.90471); d != 0 {
		t.Fatalf("expected zero distance, got %f", d)
	}
}

func TestDistanceSymmetric(t *testing.T) {
	d1 := Distance(19.1164, 72.90471, 19.0760, 72.8777)
	d2 := Distance(19.0760, 72.8777, 19.1164, 72.90471)
	if math.Abs(d1-d2) > 1e-9 {
		t.Fatalf("distance not symmetric: %f vs %f", d1, d2)
	}
}

func TestDistanceKnownSeparation(t *testing.T) {
	// One degree of latitude is roughly 111.19 km on a 6371 km sphere.
	d := Distance(0, 0, 1, 0)
	if math.Abs(d-111194.9) > 100 {
		t.Fatalf("unexpected distance for 1 degree latitude: %f", d)
	}
}

func TestValidateAtCenter(t *testing.T) {
	dec := Validate(19.1164, 72.90471, 19.1164, 72.90471, 50)
	if !dec.Allowed {
		t.Fatalf("expected allowed at center")
	}
	if dec.DistanceMeters != 0 {
		t.Fatalf("expected zero distance, got %f", dec.DistanceMeters)
	}
}

func TestValidateOutsideRadius(t *testing.T) {
	// ~0.009 degrees of latitude is about 1000 meters.
	dec := Validate(19.1164, 72.90471, 19.1254, 72.90471, 50)
	if dec.Allowed {
		t.Fatalf("expected denied at %.0f meters with radius 50", dec.DistanceMeters)
	}
	if dec.DistanceMeters < 900 || dec.DistanceMeters > 1100 {
		t.Fatalf("expected roughly 1000 meters, got %f", dec.DistanceMeters)
	}
}

func TestValidateBoundaryInclusive(t *testing.T) {
	d := Distance(19.1164, 72.90471, 19.1254, 72.90471)
	dec := Validate(19.1164, 72.90471, 19.1254, 72.90471, d)
	if !dec.Allowed {
		t.Fatalf("point exactly on the radius should be allowed")
	}
}
