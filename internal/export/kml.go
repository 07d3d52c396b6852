package export

import (
	"fmt"
	"image/color"
	"io"

	"github.com/twpayne/go-kml"

	"github.com/planbiir/gcjfix/internal/geo"
	"github.com/planbiir/gcjfix/internal/repair"
)

var (
	rawColor   = color.RGBA{R: 220, G: 40, B: 40, A: 200}
	cleanColor = color.RGBA{R: 30, G: 170, B: 60, A: 255}
)

func coordinates(path []geo.Coord) *kml.CoordinatesElement {
	coords := make([]kml.Coordinate, len(path))
	for i, c := range path {
		coords[i] = kml.Coordinate{Lon: c.Lon, Lat: c.Lat}
	}
	return kml.Coordinates(coords...)
}

// KML builds a document with styled raw and clean paths plus start and end
// placemarks on the clean path
func KML(report *repair.Report, name string) *kml.CompoundElement {
	rawStyle := kml.SharedStyle("raw",
		kml.LineStyle(kml.Color(rawColor), kml.Width(2)),
	)
	cleanStyle := kml.SharedStyle("clean",
		kml.LineStyle(kml.Color(cleanColor), kml.Width(4)),
	)

	clean := report.CleanPath()
	doc := kml.Document(
		kml.Name(name),
		rawStyle,
		cleanStyle,
		kml.Placemark(
			kml.Name(LayerRaw),
			kml.StyleURL(rawStyle.URL()),
			kml.LineString(kml.Tessellate(true), coordinates(report.RawPath())),
		),
		kml.Placemark(
			kml.Name(LayerClean),
			kml.Description(fmt.Sprintf("%d of %d points repaired", report.Stats.Repaired, report.Stats.Points)),
			kml.StyleURL(cleanStyle.URL()),
			kml.LineString(kml.Tessellate(true), coordinates(clean)),
		),
	)

	if len(clean) > 0 {
		doc.Add(
			kml.Placemark(kml.Name("start"), kml.Point(coordinates(clean[:1]))),
			kml.Placemark(kml.Name("end"), kml.Point(coordinates(clean[len(clean)-1:]))),
		)
	}
	return kml.KML(doc)
}

// WriteKML writes the report as an indented KML document
func WriteKML(w io.Writer, report *repair.Report, name string) error {
	if err := KML(report, name).WriteIndent(w, "", "  "); err != nil {
		return fmt.Errorf("write kml: %w", err)
	}
	return nil
}
