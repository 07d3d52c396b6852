package geo

import "math"

// EarthRadius is the mean earth radius in meters
const EarthRadius = 6371000.0

// Distance calculates the great-circle distance in meters between two points
func Distance(a, b Coord) float64 {
	if a == b {
		return 0
	}

	lat1Rad := a.Lat * math.Pi / 180
	lat2Rad := b.Lat * math.Pi / 180
	deltaLat := (b.Lat - a.Lat) * math.Pi / 180
	deltaLon := (b.Lon - a.Lon) * math.Pi / 180

	h := math.Sin(deltaLat/2)*math.Sin(deltaLat/2) +
		math.Cos(lat1Rad)*math.Cos(lat2Rad)*
			math.Sin(deltaLon/2)*math.Sin(deltaLon/2)

	// rounding can push h just outside [0, 1] for near-antipodal pairs
	h = clamp(h, 0, 1)

	return 2 * EarthRadius * math.Asin(math.Sqrt(h))
}

// PathLength sums the distances along a path in meters
func PathLength(path []Coord) float64 {
	var total float64
	for i := 1; i < len(path); i++ {
		total += Distance(path[i-1], path[i])
	}
	return total
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
