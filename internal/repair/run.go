package repair

import (
	"context"
	"runtime"
	"time"

	"github.com/planbiir/gcjfix/internal/geo"
)

// Report is the complete output of a repair run
type Report struct {
	Results []Result
	Stats   Stats
}

// Run repairs the whole trajectory. Candidates are precomputed in parallel
// unless supplied with WithCandidates; decisions are committed sequentially.
func Run(ctx context.Context, cfg Config, points []Point, opts ...Option) (*Report, error) {
	startTime := time.Now()

	e, err := New(cfg, points, opts...)
	if err != nil {
		return nil, err
	}
	if e.cands == nil {
		cands, err := Candidates(ctx, points, runtime.GOMAXPROCS(0))
		if err != nil {
			return nil, err
		}
		e.cands = cands
	}

	results := make([]Result, 0, e.Len())
	for _, r := range e.All() {
		results = append(results, r)
	}

	report := &Report{Results: results}
	report.Stats = summarize(results, time.Since(startTime))
	return report, nil
}

// Audits returns the audit trail, one record per decided point
func (r *Report) Audits() []Audit {
	audits := make([]Audit, 0, len(r.Results))
	for _, res := range r.Results {
		if res.Audit != nil {
			audits = append(audits, *res.Audit)
		}
	}
	return audits
}

// RawPath returns the recorded coordinates in order
func (r *Report) RawPath() []geo.Coord {
	path := make([]geo.Coord, len(r.Results))
	for i, res := range r.Results {
		path[i] = res.Point.Coord
	}
	return path
}

// CleanPath returns the committed coordinates in order
func (r *Report) CleanPath() []geo.Coord {
	path := make([]geo.Coord, len(r.Results))
	for i, res := range r.Results {
		path[i] = res.Coord
	}
	return path
}

func summarize(results []Result, elapsed time.Duration) Stats {
	stats := Stats{
		Points:    len(results),
		Decisions: make(map[string]int),
	}

	raw := make([]geo.Coord, len(results))
	clean := make([]geo.Coord, len(results))
	for i, res := range results {
		raw[i] = res.Point.Coord
		clean[i] = res.Coord
		stats.Decisions[res.Decision.String()]++
		if res.Decision.IsRepair() {
			stats.Repaired++
		}
	}

	originalDistance := geo.PathLength(raw)
	finalDistance := geo.PathLength(clean)

	stats.OriginalDistance = originalDistance / 1000 // convert to km
	stats.FinalDistance = finalDistance / 1000
	stats.DistanceReduced = (originalDistance - finalDistance) / 1000
	if originalDistance > 0 {
		stats.DistancePercent = (originalDistance - finalDistance) / originalDistance * 100
	}
	if len(results) > 0 {
		stats.RepairedPercent = float64(stats.Repaired) / float64(len(results)) * 100
	}
	stats.ProcessingTime = elapsed
	return stats
}
