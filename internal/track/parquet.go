package track

import (
	"fmt"
	"io"

	"github.com/parquet-go/parquet-go"

	"github.com/planbiir/gcjfix/internal/geo"
	"github.com/planbiir/gcjfix/internal/repair"
)

// ParquetPoint is the schema for Parquet input
type ParquetPoint struct {
	GeoTime   int64   `parquet:"geoTime"`
	Longitude float64 `parquet:"longitude"`
	Latitude  float64 `parquet:"latitude"`
}

// ParquetResult is the schema for the repaired Parquet table
type ParquetResult struct {
	GeoTime        int64   `parquet:"geoTime"`
	Longitude      float64 `parquet:"longitude"`
	Latitude       float64 `parquet:"latitude"`
	CleanLongitude float64 `parquet:"clean_longitude"`
	CleanLatitude  float64 `parquet:"clean_latitude"`
	Decision       string  `parquet:"decision"`
	RepairNote     string  `parquet:"repair_note"`
}

// ReadParquet loads a trajectory from a Parquet file with geoTime, longitude
// and latitude columns. Rows with non-finite coordinates are skipped.
func ReadParquet(r io.ReaderAt, size int64) (*Table, error) {
	rows, err := parquet.Read[ParquetPoint](r, size)
	if err != nil {
		return nil, fmt.Errorf("read parquet: %w", err)
	}

	t := &Table{Columns: DefaultColumns(), Rows: make([]Row, 0, len(rows))}
	for _, row := range rows {
		c := geo.Coord{Lon: row.Longitude, Lat: row.Latitude}
		if !finite(c) {
			t.Skipped++
			continue
		}
		t.Rows = append(t.Rows, Row{Point: repair.Point{Timestamp: row.GeoTime, Coord: c}})
	}
	return t, nil
}

// WriteParquet writes the repaired table. Passthrough CSV columns are not
// carried; the schema is fixed.
func WriteParquet(w io.Writer, results []repair.Result) error {
	rows := make([]ParquetResult, len(results))
	for i, res := range results {
		rows[i] = ParquetResult{
			GeoTime:        res.Point.Timestamp,
			Longitude:      res.Point.Lon,
			Latitude:       res.Point.Lat,
			CleanLongitude: res.Coord.Lon,
			CleanLatitude:  res.Coord.Lat,
			Decision:       res.Decision.String(),
			RepairNote:     res.Decision.Note(),
		}
	}

	writer := parquet.NewGenericWriter[ParquetResult](w)
	if _, err := writer.Write(rows); err != nil {
		return fmt.Errorf("write parquet rows: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("close parquet writer: %w", err)
	}
	return nil
}
