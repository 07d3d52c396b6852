// Package track reads and writes trajectory tables: CSV, Parquet and FIT.
package track

import (
	"errors"

	"github.com/planbiir/gcjfix/internal/repair"
)

// ErrMissingColumn is returned when a required column is absent from the header
var ErrMissingColumn = errors.New("missing column")

// Columns names the required input columns
type Columns struct {
	Time string `yaml:"time" validate:"required"`
	Lon  string `yaml:"longitude" validate:"required"`
	Lat  string `yaml:"latitude" validate:"required"`
}

// DefaultColumns returns the column names written by the recording app
func DefaultColumns() Columns {
	return Columns{
		Time: "geoTime",
		Lon:  "longitude",
		Lat:  "latitude",
	}
}

// Output columns appended to every repaired table
const (
	ColCleanLon = "clean_longitude"
	ColCleanLat = "clean_latitude"
	ColNote     = "repair_note"
)

// Row is one input record. Fields holds the original CSV fields and is nil
// for sources without passthrough columns.
type Row struct {
	repair.Point
	Fields []string
}

// Table is a loaded trajectory
type Table struct {
	Header  []string
	Columns Columns
	Rows    []Row

	// Skipped counts rows dropped for a missing or unparseable field
	Skipped int
}

// FromPoints wraps bare points in a table without passthrough columns
func FromPoints(points []repair.Point) *Table {
	t := &Table{Columns: DefaultColumns()}
	t.Rows = make([]Row, len(points))
	for i, p := range points {
		t.Rows[i] = Row{Point: p}
	}
	return t
}

// Points returns the rows as engine input, in table order
func (t *Table) Points() []repair.Point {
	points := make([]repair.Point, len(t.Rows))
	for i, r := range t.Rows {
		points[i] = r.Point
	}
	return points
}

// Len is the number of rows
func (t *Table) Len() int {
	return len(t.Rows)
}
