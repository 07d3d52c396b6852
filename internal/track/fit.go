package track

import (
	"fmt"
	"io"
	"math"

	"github.com/muktihari/fit/decoder"
	"github.com/muktihari/fit/profile/mesgdef"
	"github.com/muktihari/fit/profile/typedef"

	"github.com/planbiir/gcjfix/internal/geo"
	"github.com/planbiir/gcjfix/internal/repair"
)

const (
	semicircleConst   = 11930464.7111 // 2^31 / 180
	invalidSemicircle = 0x7FFFFFFF
)

// ReadFIT loads the positioned record messages of a FIT activity. Records
// without a timestamp or a valid position are counted as skipped.
func ReadFIT(r io.Reader) (*Table, error) {
	dec := decoder.New(r)
	t := &Table{Columns: DefaultColumns()}

	for dec.Next() {
		fit, err := dec.Decode()
		if err != nil {
			return nil, fmt.Errorf("failed to decode FIT file: %w", err)
		}

		for _, msg := range fit.Messages {
			if msg.Num != typedef.MesgNumRecord {
				continue
			}
			rec := mesgdef.NewRecord(&msg)
			if rec.Timestamp.IsZero() || rec.PositionLat == invalidSemicircle || rec.PositionLong == invalidSemicircle {
				t.Skipped++
				continue
			}
			t.Rows = append(t.Rows, Row{Point: repair.Point{
				Timestamp: rec.Timestamp.UnixMilli(),
				Coord: geo.Coord{
					Lon: float64(rec.PositionLong) / semicircleConst,
					Lat: float64(rec.PositionLat) / semicircleConst,
				},
			}})
		}
	}
	return t, nil
}

func finite(c geo.Coord) bool {
	return !math.IsNaN(c.Lon) && !math.IsInf(c.Lon, 0) && !math.IsNaN(c.Lat) && !math.IsInf(c.Lat, 0)
}
