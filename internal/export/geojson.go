// Package export renders a repair report for map viewers: GeoJSON, KML and
// an encoded-polyline summary.
package export

import (
	"fmt"
	"io"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/planbiir/gcjfix/internal/geo"
	"github.com/planbiir/gcjfix/internal/repair"
)

// Path layer names
const (
	LayerRaw   = "raw"
	LayerClean = "clean"
)

func lineString(path []geo.Coord) orb.LineString {
	ls := make(orb.LineString, len(path))
	for i, c := range path {
		ls[i] = orb.Point{c.Lon, c.Lat}
	}
	return ls
}

// GeoJSON builds a collection with the raw and clean paths and one point
// feature per repaired point
func GeoJSON(report *repair.Report) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()

	raw := geojson.NewFeature(lineString(report.RawPath()))
	raw.Properties["layer"] = LayerRaw
	raw.Properties["points"] = len(report.Results)
	fc.Append(raw)

	clean := geojson.NewFeature(lineString(report.CleanPath()))
	clean.Properties["layer"] = LayerClean
	clean.Properties["repaired"] = report.Stats.Repaired
	fc.Append(clean)

	for _, res := range report.Results {
		if !res.Decision.IsRepair() {
			continue
		}
		f := geojson.NewFeature(orb.Point{res.Coord.Lon, res.Coord.Lat})
		f.Properties["index"] = res.Index
		f.Properties["geoTime"] = res.Point.Timestamp
		f.Properties["decision"] = res.Decision.String()
		f.Properties["note"] = res.Decision.Note()
		f.Properties["raw"] = []float64{res.Point.Lon, res.Point.Lat}
		if res.Audit != nil {
			f.Properties["improvement"] = res.Audit.Improvement
		}
		fc.Append(f)
	}
	return fc
}

// WriteGeoJSON encodes the report as a GeoJSON FeatureCollection
func WriteGeoJSON(w io.Writer, report *repair.Report) error {
	data, err := GeoJSON(report).MarshalJSON()
	if err != nil {
		return fmt.Errorf("marshal geojson: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write geojson: %w", err)
	}
	return nil
}
