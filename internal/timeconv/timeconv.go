// Package timeconv converts between epoch-millisecond geoTime values and
// wall-clock strings at a fixed UTC offset.
package timeconv

import (
	"fmt"
	"math"
	"time"
)

const (
	// Layout is the wall-clock format accepted by Parse
	Layout = "2006-01-02 15:04:05"
	// MilliLayout is the format produced by Format
	MilliLayout = "2006-01-02 15:04:05.000"

	// DefaultOffsetHours is the UTC offset the recording app displays
	DefaultOffsetHours = 2.0
)

// Zone returns a fixed zone for an offset in hours, e.g. 2, -5 or 5.5
func Zone(offsetHours float64) (*time.Location, error) {
	if math.IsNaN(offsetHours) || offsetHours < -14 || offsetHours > 14 {
		return nil, fmt.Errorf("utc offset %v out of range [-14, 14]", offsetHours)
	}
	secs := int(math.Round(offsetHours * 3600))
	return time.FixedZone(zoneName(secs), secs), nil
}

func zoneName(secs int) string {
	sign := '+'
	if secs < 0 {
		sign = '-'
		secs = -secs
	}
	h, m := secs/3600, (secs%3600)/60
	if m == 0 {
		return fmt.Sprintf("UTC%c%d", sign, h)
	}
	return fmt.Sprintf("UTC%c%d:%02d", sign, h, m)
}

// Format renders an epoch-millisecond timestamp in loc with millisecond precision
func Format(millis int64, loc *time.Location) string {
	return time.UnixMilli(millis).In(loc).Format(MilliLayout)
}

// Parse reads a wall-clock string in loc and returns epoch milliseconds
func Parse(s string, loc *time.Location) (int64, error) {
	t, err := time.ParseInLocation(Layout, s, loc)
	if err != nil {
		return 0, fmt.Errorf("parse time %q: %w", s, err)
	}
	return t.UnixMilli(), nil
}

// Window is an inclusive epoch-millisecond range
type Window struct {
	Start int64
	End   int64
}

// Contains reports whether ts falls inside the window
func (w Window) Contains(ts int64) bool {
	return ts >= w.Start && ts <= w.End
}

// ParseWindow parses both bounds in loc
func ParseWindow(start, end string, loc *time.Location) (Window, error) {
	s, err := Parse(start, loc)
	if err != nil {
		return Window{}, fmt.Errorf("window start: %w", err)
	}
	e, err := Parse(end, loc)
	if err != nil {
		return Window{}, fmt.Errorf("window end: %w", err)
	}
	if e < s {
		return Window{}, fmt.Errorf("window end %q is before start %q", end, start)
	}
	return Window{Start: s, End: e}, nil
}
