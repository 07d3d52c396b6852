package track

import (
	"fmt"
	"slices"
	"strconv"
	"time"

	"github.com/planbiir/gcjfix/internal/timeconv"
)

// SliceMode selects how a raw table is cut
type SliceMode string

const (
	SliceNone   SliceMode = ""
	SliceByLine SliceMode = "line"
	SliceByTime SliceMode = "time"
)

// Slice selects a contiguous part of a raw table. Line bounds are 1-based
// file lines with the header on line 1; time bounds are wall-clock strings.
type Slice struct {
	Mode  SliceMode `yaml:"mode" validate:"omitempty,oneof=line time"`
	Start string    `yaml:"start" validate:"required_with=Mode"`
	End   string    `yaml:"end" validate:"required_with=Mode"`
}

// Apply cuts records (header first) according to the slice
func (s Slice) Apply(records [][]string, timeColumn string, loc *time.Location) ([][]string, error) {
	switch s.Mode {
	case SliceNone:
		return records, nil
	case SliceByLine:
		start, err := strconv.Atoi(s.Start)
		if err != nil {
			return nil, fmt.Errorf("line slice start %q: %w", s.Start, err)
		}
		end, err := strconv.Atoi(s.End)
		if err != nil {
			return nil, fmt.Errorf("line slice end %q: %w", s.End, err)
		}
		return SliceLines(records, start, end)
	case SliceByTime:
		w, err := timeconv.ParseWindow(s.Start, s.End, loc)
		if err != nil {
			return nil, err
		}
		return SliceTime(records, timeColumn, w)
	default:
		return nil, fmt.Errorf("unknown slice mode %q", s.Mode)
	}
}

// SliceLines keeps file lines start through end inclusive. The header is
// always kept so the result stays a valid table.
func SliceLines(records [][]string, start, end int) ([][]string, error) {
	if start < 1 || end < start {
		return nil, fmt.Errorf("invalid line range %d-%d", start, end)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%w: empty table", ErrMissingColumn)
	}

	// line n is records[n-1]
	lo := max(start-1, 1)
	hi := min(end, len(records))

	out := [][]string{records[0]}
	if lo < hi {
		out = append(out, records[lo:hi]...)
	}
	return out, nil
}

// SliceTime keeps the header and every row whose timestamp column falls in w.
// Rows with an unparseable timestamp are dropped.
func SliceTime(records [][]string, column string, w timeconv.Window) ([][]string, error) {
	if len(records) == 0 {
		return nil, fmt.Errorf("%w: empty table", ErrMissingColumn)
	}
	ti, err := columnIndex(records[0], column)
	if err != nil {
		return nil, err
	}

	out := [][]string{records[0]}
	for _, rec := range records[1:] {
		if ti >= len(rec) {
			continue
		}
		ts, ok := parseTimestamp(rec[ti])
		if ok && w.Contains(ts) {
			out = append(out, rec)
		}
	}
	return slices.Clip(out), nil
}

// Cut applies the slice to a loaded table. Row i of the table stands for
// file line i+2, as if it had been read from CSV.
func (t *Table) Cut(s Slice, loc *time.Location) error {
	switch s.Mode {
	case SliceNone:
		return nil
	case SliceByLine:
		start, err := strconv.Atoi(s.Start)
		if err != nil {
			return fmt.Errorf("line slice start %q: %w", s.Start, err)
		}
		end, err := strconv.Atoi(s.End)
		if err != nil {
			return fmt.Errorf("line slice end %q: %w", s.End, err)
		}
		if start < 1 || end < start {
			return fmt.Errorf("invalid line range %d-%d", start, end)
		}
		lo := min(max(start-2, 0), len(t.Rows))
		hi := min(max(end-1, 0), len(t.Rows))
		t.Rows = t.Rows[lo:max(lo, hi)]
		return nil
	case SliceByTime:
		w, err := timeconv.ParseWindow(s.Start, s.End, loc)
		if err != nil {
			return err
		}
		t.Rows = slices.DeleteFunc(t.Rows, func(r Row) bool { return !w.Contains(r.Timestamp) })
		return nil
	default:
		return fmt.Errorf("unknown slice mode %q", s.Mode)
	}
}
