package geo

import "math"

// earthRadiusM is the mean Earth radius used by the haversine formula.
const earthRadiusM = 6371000

// Decision is the outcome of a geofence check. A denied decision is a normal
// business result, not an error.
type Decision struct {
	Allowed        bool    `json:"allowed"`
	DistanceMeters float64 `json:"distance"`
}

// Distance returns the great-circle distance in meters between two
// latitude/longitude points.
func Distance(lat1, lon1, lat2, lon2 float64) float64 {
	phi1 := lat1 * math.Pi / 180
	phi2 := lat2 * math.Pi / 180
	deltaPhi := (lat2 - lat1) * math.Pi / 180
	deltaLambda := (lon2 - lon1) * math.Pi / 180

	a := math.Sin(deltaPhi/2)*math.Sin(deltaPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(deltaLambda/2)*math.Sin(deltaLambda/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadiusM * c
}

// Validate reports whether a point falls within radiusMeters of a center.
// It knows nothing about sessions or students and can serve any two-point
// proximity check.
func Validate(centerLat, centerLon, pointLat, pointLon, radiusMeters float64) Decision {
	d := Distance(centerLat, centerLon, pointLat, pointLon)
	return Decision{
		Allowed:        d <= radiusMeters,
		DistanceMeters: d,
	}
}
