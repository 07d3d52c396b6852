package geo

import "math"

// Coord is a longitude/latitude pair in decimal degrees
type Coord struct {
	Lon float64
	Lat float64
}

// Shift model constants (Krasovsky 1940 ellipsoid)
const (
	shiftPi      = 3.1415926535897932384626
	shiftAxis    = 6378245.0
	shiftEccSq   = 0.00669342162296594323
	shiftOriginX = 105.0
	shiftOriginY = 35.0
)

// OutOfChina reports whether c lies outside the bounding box where the
// shift model applies
func OutOfChina(c Coord) bool {
	if c.Lon < 72.004 || c.Lon > 137.8347 {
		return true
	}
	return c.Lat < 0.8293 || c.Lat > 55.8271
}

// ToGCJ applies the forward shift to a true-earth coordinate
func ToGCJ(c Coord) Coord {
	dLon, dLat := shiftDelta(c)
	return Coord{Lon: c.Lon + dLon, Lat: c.Lat + dLat}
}

// ToWGS estimates the true-earth coordinate of a shifted one.
//
// The inverse is first order: the shift is evaluated at c itself instead of at
// the unknown true coordinate, leaving a residual of a few meters.
func ToWGS(c Coord) Coord {
	dLon, dLat := shiftDelta(c)
	return Coord{Lon: c.Lon - dLon, Lat: c.Lat - dLat}
}

// shiftDelta returns the forward shift in degrees at c
func shiftDelta(c Coord) (float64, float64) {
	x := c.Lon - shiftOriginX
	y := c.Lat - shiftOriginY

	dLat := shiftLat(x, y)
	dLon := shiftLon(x, y)

	radLat := c.Lat / 180.0 * shiftPi
	magic := math.Sin(radLat)
	magic = 1 - shiftEccSq*magic*magic
	sqrtMagic := math.Sqrt(magic)

	dLat = (dLat * 180.0) / ((shiftAxis * (1 - shiftEccSq)) / (magic * sqrtMagic) * shiftPi)
	dLon = (dLon * 180.0) / (shiftAxis / sqrtMagic * math.Cos(radLat) * shiftPi)
	return dLon, dLat
}

func shiftLat(x, y float64) float64 {
	ret := -100.0 + 2.0*x + 3.0*y + 0.2*y*y + 0.1*x*y + 0.2*math.Sqrt(math.Abs(x))
	ret += (20.0*math.Sin(6.0*x*shiftPi) + 20.0*math.Sin(2.0*x*shiftPi)) * 2.0 / 3.0
	ret += (20.0*math.Sin(y*shiftPi) + 40.0*math.Sin(y/3.0*shiftPi)) * 2.0 / 3.0
	ret += (160.0*math.Sin(y/12.0*shiftPi) + 320*math.Sin(y*shiftPi/30.0)) * 2.0 / 3.0
	return ret
}

func shiftLon(x, y float64) float64 {
	ret := 300.0 + x + 2.0*y + 0.1*x*x + 0.1*x*y + 0.1*math.Sqrt(math.Abs(x))
	ret += (20.0*math.Sin(6.0*x*shiftPi) + 20.0*math.Sin(2.0*x*shiftPi)) * 2.0 / 3.0
	ret += (20.0*math.Sin(x*shiftPi) + 40.0*math.Sin(x/3.0*shiftPi)) * 2.0 / 3.0
	ret += (150.0*math.Sin(x/12.0*shiftPi) + 300.0*math.Sin(x/30.0*shiftPi)) * 2.0 / 3.0
	return ret
}
