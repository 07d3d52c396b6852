package track

import (
	"cmp"
	"slices"
)

// PrepareStats reports what Prepare removed
type PrepareStats struct {
	Input      int  `json:"input"`
	Duplicates int  `json:"duplicates"`
	Output     int  `json:"output"`
	Reordered  bool `json:"reordered"`
}

// Prepare sorts rows by timestamp and drops repeated timestamps, keeping the
// first row in file order. The sort is stable so ties keep file order.
func Prepare(t *Table) PrepareStats {
	stats := PrepareStats{Input: len(t.Rows)}

	byTime := func(a, b Row) int { return cmp.Compare(a.Timestamp, b.Timestamp) }
	if !slices.IsSortedFunc(t.Rows, byTime) {
		slices.SortStableFunc(t.Rows, byTime)
		stats.Reordered = true
	}

	t.Rows = slices.CompactFunc(t.Rows, func(a, b Row) bool {
		return a.Timestamp == b.Timestamp
	})

	stats.Output = len(t.Rows)
	stats.Duplicates = stats.Input - stats.Output
	return stats
}
