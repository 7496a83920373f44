package model

import "math"

const earthRadiusM = 6371000

// DistanceMeters is the haversine distance between two coordinates.
func DistanceMeters(a, b Coord) float64 {
	dLat := (b.Latitude - a.Latitude) * math.Pi / 180
	dLng := (b.Longitude - a.Longitude) * math.Pi / 180
	lat1 := a.Latitude * math.Pi / 180
	lat2 := b.Latitude * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Sin(dLng/2)*math.Sin(dLng/2)*math.Cos(lat1)*math.Cos(lat2)
	return 2 * earthRadiusM * math.Asin(math.Sqrt(h))
}
