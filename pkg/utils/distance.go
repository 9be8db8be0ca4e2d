package utils

import (
	"math"
	"strconv"
)

// EarthRadiusMeters is the mean Earth radius used by HaversineMeters.
const EarthRadiusMeters = 6_371_000.0

// HaversineMeters returns the great-circle distance between two points in
// meters. It is the straight-line lower bound of any road distance.
func HaversineMeters(lat1, lng1, lat2, lng2 float64) float64 {
	lat1Rad := lat1 * math.Pi / 180
	lat2Rad := lat2 * math.Pi / 180
	deltaLat := (lat2 - lat1) * math.Pi / 180
	deltaLng := (lng2 - lng1) * math.Pi / 180

	a := math.Sin(deltaLat/2)*math.Sin(deltaLat/2) +
		math.Cos(lat1Rad)*math.Cos(lat2Rad)*
			math.Sin(deltaLng/2)*math.Sin(deltaLng/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return EarthRadiusMeters * c
}

// FormatDistance renders meters for display: "-" for unusable values,
// whole meters below 1 km ("850m"), one decimal of kilometers above
// ("3.2km").
func FormatDistance(meters float64) string {
	if math.IsNaN(meters) || math.IsInf(meters, 0) || meters < 0 {
		return "-"
	}
	m := math.Round(meters)
	if m >= 1000 {
		return strconv.FormatFloat(m/1000, 'f', 1, 64) + "km"
	}
	return strconv.FormatFloat(m, 'f', 0, 64) + "m"
}
