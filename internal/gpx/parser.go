package gpx

import (
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/planbiir/gcjfix/internal/geo"
	"github.com/planbiir/gcjfix/internal/repair"
)

const creator = "gcjfix"

// Parse reads and parses a GPX file
func Parse(filename string) (*GPX, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	return ParseReader(file)
}

// ParseReader parses GPX from an io.Reader
func ParseReader(r io.Reader) (*GPX, error) {
	decoder := xml.NewDecoder(r)

	var gpxData GPX
	if err := decoder.Decode(&gpxData); err != nil {
		return nil, fmt.Errorf("failed to parse GPX: %w", err)
	}

	// Set default namespaces if missing
	if gpxData.XMLNS == "" {
		gpxData.XMLNS = "http://www.topografix.com/GPX/1/1"
	}
	if gpxData.Version == "" {
		gpxData.Version = "1.1"
	}
	if gpxData.Creator == "" {
		gpxData.Creator = creator
	}

	return &gpxData, nil
}

// Write saves GPX data to a file
func (g *GPX) Write(filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	return g.WriteToWriter(file)
}

// WriteToWriter writes GPX data to an io.Writer
func (g *GPX) WriteToWriter(w io.Writer) error {
	if _, err := io.WriteString(w, xml.Header); err != nil {
		return err
	}

	encoder := xml.NewEncoder(w)
	encoder.Indent("", "  ")

	if err := encoder.Encode(g); err != nil {
		return fmt.Errorf("failed to encode GPX: %w", err)
	}
	return encoder.Close()
}

// each visits every track point in document order
func (g *GPX) each(fn func(p *TrackPoint)) {
	for ti := range g.Tracks {
		for si := range g.Tracks[ti].Segments {
			seg := &g.Tracks[ti].Segments[si]
			for pi := range seg.Points {
				fn(&seg.Points[pi])
			}
		}
	}
}

// Points returns every timed track point as repair input, in document order,
// ignoring segment boundaries. Points without a time are counted as skipped.
func (g *GPX) Points() (points []repair.Point, skipped int) {
	g.each(func(p *TrackPoint) {
		if p.Time == nil || p.Time.IsZero() {
			skipped++
			return
		}
		points = append(points, repair.Point{
			Timestamp: p.Time.UnixMilli(),
			Coord:     geo.Coord{Lon: p.Lon, Lat: p.Lat},
		})
	})
	return points, skipped
}

// ApplyResults moves every track point whose time matches a repaired result
// to the committed coordinate and records the note in its cmt element.
// Duplicate timestamps all receive the committed coordinate. It returns the
// number of points moved.
func (g *GPX) ApplyResults(results []repair.Result) int {
	byTime := make(map[int64]repair.Result, len(results))
	for _, r := range results {
		byTime[r.Point.Timestamp] = r
	}

	moved := 0
	g.each(func(p *TrackPoint) {
		if p.Time == nil {
			return
		}
		r, ok := byTime[p.Time.UnixMilli()]
		if !ok || !r.Decision.IsRepair() {
			return
		}
		p.Lon, p.Lat = r.Coord.Lon, r.Coord.Lat
		p.Comment = r.Decision.Note()
		moved++
	})
	return moved
}

// Stats returns basic statistics about the GPX data. distance is in km.
func (g *GPX) Stats() (pointCount int, trackCount int, segmentCount int, duration time.Duration, distance float64) {
	trackCount = len(g.Tracks)
	for _, track := range g.Tracks {
		segmentCount += len(track.Segments)
	}

	var path []geo.Coord
	var first, last *time.Time
	g.each(func(p *TrackPoint) {
		pointCount++
		path = append(path, geo.Coord{Lon: p.Lon, Lat: p.Lat})
		if p.Time != nil {
			if first == nil {
				first = p.Time
			}
			last = p.Time
		}
	})

	if first != nil {
		duration = last.Sub(*first)
	}
	distance = geo.PathLength(path) / 1000
	return
}
