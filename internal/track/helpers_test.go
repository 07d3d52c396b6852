package track

import (
	"bytes"
	"io"
	"math"

	"github.com/parquet-go/parquet-go"

	"github.com/planbiir/gcjfix/internal/repair"
)

func readParquetRows[T any](data []byte) ([]T, error) {
	return parquet.Read[T](bytes.NewReader(data), int64(len(data)))
}

func readCSV(r io.Reader, cols Columns) (*Table, error) {
	records, err := ReadRecords(r)
	if err != nil {
		return nil, err
	}
	return ParseRecords(records, cols)
}

// writePoints writes bare points in the input schema
func writePoints(w io.Writer, points []repair.Point) error {
	rows := make([]ParquetPoint, len(points))
	for i, p := range points {
		rows[i] = ParquetPoint{GeoTime: p.Timestamp, Longitude: p.Lon, Latitude: p.Lat}
	}
	writer := parquet.NewGenericWriter[ParquetPoint](w)
	if _, err := writer.Write(rows); err != nil {
		return err
	}
	return writer.Close()
}

func semicircles(deg float64) int32 {
	return int32(math.Round(deg * semicircleConst))
}
