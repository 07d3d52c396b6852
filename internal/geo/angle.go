package geo

import "math"

// TurnAngle computes the angle at p2 formed by p1->p2->p3 in degrees.
//
// 180 means the three points are colinear, 0 means p3 heads straight back to
// p1. Longitude deltas are scaled by cos(lat of p2) so the vectors are roughly
// isotropic. A zero-length leg is treated as no turn and yields 180.
func TurnAngle(p1, p2, p3 Coord) float64 {
	scale := math.Cos(p2.Lat * math.Pi / 180)

	v1x, v1y := (p1.Lon-p2.Lon)*scale, p1.Lat-p2.Lat
	v2x, v2y := (p3.Lon-p2.Lon)*scale, p3.Lat-p2.Lat

	n1 := math.Hypot(v1x, v1y)
	n2 := math.Hypot(v2x, v2y)
	if n1 == 0 || n2 == 0 {
		return 180
	}

	cos := clamp((v1x*v2x+v1y*v2y)/(n1*n2), -1, 1)
	return math.Acos(cos) * 180 / math.Pi
}
