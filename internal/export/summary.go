package export

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/twpayne/go-polyline"

	"github.com/planbiir/gcjfix/internal/geo"
	"github.com/planbiir/gcjfix/internal/repair"
)

// Repair describes one moved point
type Repair struct {
	Index    int             `json:"index"`
	GeoTime  int64           `json:"geoTime"`
	Decision repair.Decision `json:"decision"`
	Raw      [2]float64      `json:"raw"`
	Clean    [2]float64      `json:"clean"`
}

// Summary is the compact description of a run
type Summary struct {
	RunID         string       `json:"run_id,omitempty"`
	Input         string       `json:"input,omitempty"`
	Stats         repair.Stats `json:"stats"`
	RawPolyline   string       `json:"raw_polyline"`
	CleanPolyline string       `json:"clean_polyline"`
	Repairs       []Repair     `json:"repairs"`
}

// Polyline encodes a path with the 1e5 precision used by map services
func Polyline(path []geo.Coord) string {
	coords := make([][]float64, len(path))
	for i, c := range path {
		coords[i] = []float64{c.Lat, c.Lon}
	}
	return string(polyline.EncodeCoords(coords))
}

// NewSummary describes report
func NewSummary(runID, input string, report *repair.Report) Summary {
	s := Summary{
		RunID:         runID,
		Input:         input,
		Stats:         report.Stats,
		RawPolyline:   Polyline(report.RawPath()),
		CleanPolyline: Polyline(report.CleanPath()),
		Repairs:       []Repair{},
	}
	for _, res := range report.Results {
		if !res.Decision.IsRepair() {
			continue
		}
		s.Repairs = append(s.Repairs, Repair{
			Index:    res.Index,
			GeoTime:  res.Point.Timestamp,
			Decision: res.Decision,
			Raw:      [2]float64{res.Point.Lon, res.Point.Lat},
			Clean:    [2]float64{res.Coord.Lon, res.Coord.Lat},
		})
	}
	return s
}

// WriteSummary writes s as indented JSON
func WriteSummary(w io.Writer, s Summary) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(s); err != nil {
		return fmt.Errorf("write summary: %w", err)
	}
	return nil
}
