package track

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"slices"
	"strconv"
	"strings"

	"github.com/planbiir/gcjfix/internal/geo"
	"github.com/planbiir/gcjfix/internal/repair"
)

// ReadRecords reads every CSV record, header included
func ReadRecords(r io.Reader) ([][]string, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("failed to read CSV: no header row")
	}
	// strip a UTF-8 BOM left by spreadsheet exports
	if h := records[0]; len(h) > 0 {
		h[0] = strings.TrimPrefix(h[0], "\ufeff")
	}
	return records, nil
}

// WriteRecords writes CSV records as-is
func WriteRecords(w io.Writer, records [][]string) error {
	cw := csv.NewWriter(w)
	if err := cw.WriteAll(records); err != nil {
		return fmt.Errorf("failed to write CSV: %w", err)
	}
	return nil
}

// ParseRecords builds a table from CSV records whose first record is the
// header. Rows with a missing or unparseable time or coordinate are skipped.
func ParseRecords(records [][]string, cols Columns) (*Table, error) {
	if len(records) == 0 {
		return nil, fmt.Errorf("%w: empty table", ErrMissingColumn)
	}
	header := records[0]

	ti, err := columnIndex(header, cols.Time)
	if err != nil {
		return nil, err
	}
	xi, err := columnIndex(header, cols.Lon)
	if err != nil {
		return nil, err
	}
	yi, err := columnIndex(header, cols.Lat)
	if err != nil {
		return nil, err
	}

	t := &Table{
		Header:  slices.Clone(header),
		Columns: cols,
		Rows:    make([]Row, 0, len(records)-1),
	}
	for _, rec := range records[1:] {
		p, ok := parsePoint(rec, ti, xi, yi)
		if !ok {
			t.Skipped++
			continue
		}
		t.Rows = append(t.Rows, Row{Point: p, Fields: rec})
	}
	return t, nil
}

func columnIndex(header []string, name string) (int, error) {
	if i := slices.Index(header, name); i >= 0 {
		return i, nil
	}
	return -1, fmt.Errorf("%w: %q", ErrMissingColumn, name)
}

func parsePoint(rec []string, ti, xi, yi int) (repair.Point, bool) {
	if max(ti, xi, yi) >= len(rec) {
		return repair.Point{}, false
	}
	ts, ok := parseTimestamp(rec[ti])
	if !ok {
		return repair.Point{}, false
	}
	lon, err := strconv.ParseFloat(rec[xi], 64)
	if err != nil || math.IsNaN(lon) || math.IsInf(lon, 0) {
		return repair.Point{}, false
	}
	lat, err := strconv.ParseFloat(rec[yi], 64)
	if err != nil || math.IsNaN(lat) || math.IsInf(lat, 0) {
		return repair.Point{}, false
	}
	return repair.Point{Timestamp: ts, Coord: geo.Coord{Lon: lon, Lat: lat}}, true
}

// parseTimestamp accepts integer millis and the "1650072179000.0" form that
// spreadsheet round-trips produce
func parseTimestamp(s string) (int64, bool) {
	if ts, err := strconv.ParseInt(s, 10, 64); err == nil {
		return ts, true
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f != math.Trunc(f) || math.Abs(f) > 1<<53 {
		return 0, false
	}
	return int64(f), true
}

// WriteCSV writes the table with the repaired columns appended. results must
// be the engine output for t.Points().
func WriteCSV(w io.Writer, t *Table, results []repair.Result) error {
	if len(results) != len(t.Rows) {
		return fmt.Errorf("got %d results for %d rows", len(results), len(t.Rows))
	}

	cw := csv.NewWriter(w)

	header := t.Header
	if header == nil {
		header = []string{t.Columns.Time, t.Columns.Lon, t.Columns.Lat}
	}
	// rows wider than the header get unnamed columns so nothing is dropped
	width := len(header)
	for _, row := range t.Rows {
		width = max(width, len(row.Fields))
	}
	out := make([]string, width, width+3)
	copy(out, header)
	out = append(out, ColCleanLon, ColCleanLat, ColNote)
	if err := cw.Write(out); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}

	for i, row := range t.Rows {
		res := results[i]
		fields := row.Fields
		if fields == nil {
			fields = []string{
				strconv.FormatInt(row.Timestamp, 10),
				formatFloat(row.Lon),
				formatFloat(row.Lat),
			}
		}
		// pad short rows so the appended columns line up
		rec := make([]string, width, width+3)
		copy(rec, fields)
		rec = append(rec, formatFloat(res.Coord.Lon), formatFloat(res.Coord.Lat), res.Decision.Note())
		if err := cw.Write(rec); err != nil {
			return fmt.Errorf("failed to write CSV row %d: %w", i, err)
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("failed to flush CSV: %w", err)
	}
	return nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
