package repair

import (
	"fmt"
	"iter"
	"math"

	"github.com/planbiir/gcjfix/internal/geo"
)

// history holds the two most recently committed coordinates
type history struct {
	committed geo.Coord
	prior     geo.Coord
	hasPrior  bool
}

func (h *history) push(c geo.Coord) {
	h.prior, h.hasPrior = h.committed, true
	h.committed = c
}

// Engine walks a trajectory in time order and commits one decision per point.
// It is not safe for concurrent use.
type Engine struct {
	cfg    Config
	points []Point
	cands  []geo.Coord

	next int
	hist history
}

// Option customizes an Engine
type Option func(*Engine)

// WithCandidates supplies precomputed candidates, one per point
func WithCandidates(cands []geo.Coord) Option {
	return func(e *Engine) {
		e.cands = cands
	}
}

// New validates the config and the input contract and returns an engine
// positioned before the first point.
func New(cfg Config, points []Point, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := validatePoints(points); err != nil {
		return nil, err
	}

	e := &Engine{cfg: cfg, points: points}
	for _, opt := range opts {
		opt(e)
	}
	if e.cands != nil && len(e.cands) != len(points) {
		return nil, fmt.Errorf("got %d candidates for %d points", len(e.cands), len(points))
	}
	return e, nil
}

func validatePoints(points []Point) error {
	if len(points) == 0 {
		return ErrEmptyInput
	}
	for i, p := range points {
		if !finite(p.Lon) || !finite(p.Lat) {
			return &InvalidInputError{Index: i, Timestamp: p.Timestamp, Reason: "non-finite coordinate"}
		}
		if i == 0 {
			continue
		}
		prev := points[i-1].Timestamp
		switch {
		case p.Timestamp == prev:
			return &InvalidInputError{Index: i, Timestamp: p.Timestamp, Reason: "duplicate timestamp"}
		case p.Timestamp < prev:
			return &InvalidInputError{Index: i, Timestamp: p.Timestamp, Reason: "timestamps not ascending"}
		}
	}
	return nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// Len is the number of points the engine will emit
func (e *Engine) Len() int {
	return len(e.points)
}

// Next commits the decision for the next point. It returns false once every
// point has been processed.
func (e *Engine) Next() (Result, bool) {
	if e.next >= len(e.points) {
		return Result{}, false
	}
	i := e.next
	e.next++

	if i == 0 {
		seed := e.points[0]
		e.hist = history{committed: seed.Coord}
		return Result{
			Index:   0,
			Point:   seed,
			Outcome: Outcome{Decision: Start, Coord: seed.Coord},
		}, true
	}

	outcome, audit := e.decide(i)
	e.hist.push(outcome.Coord)

	return Result{
		Index:   i,
		Point:   e.points[i],
		Outcome: outcome,
		Audit:   audit,
	}, true
}

// All ranges over the remaining results in order
func (e *Engine) All() iter.Seq2[int, Result] {
	return func(yield func(int, Result) bool) {
		for {
			r, ok := e.Next()
			if !ok || !yield(r.Index, r) {
				return
			}
		}
	}
}

func (e *Engine) candidate(i int) geo.Coord {
	raw := e.points[i].Coord
	if e.cfg.RegionGate && geo.OutOfChina(raw) {
		return raw
	}
	if e.cands != nil {
		return e.cands[i]
	}
	return geo.ToWGS(raw)
}

// decide evaluates point i against the committed history
func (e *Engine) decide(i int) (Outcome, *Audit) {
	cfg := e.cfg
	raw := e.points[i].Coord
	fix := e.candidate(i)
	last := e.hist.committed

	a := &Audit{
		Index:     i,
		Timestamp: e.points[i].Timestamp,
		Last:      last,
		Prior:     e.hist.prior,
		HasPrior:  e.hist.hasPrior,
		Raw:       raw,
		Fix:       fix,
	}

	a.DistRaw = geo.Distance(last, raw)
	a.DistFix = geo.Distance(last, fix)
	a.Improvement = a.DistRaw - a.DistFix

	// forward: does the fix fold the committed path back on itself?
	if e.hist.hasPrior {
		a.Forward = e.angleCheck(
			geo.TurnAngle(e.hist.prior, last, raw),
			geo.TurnAngle(e.hist.prior, last, fix),
		)
	}
	// backward: does the fix break the path the next raw points take?
	if i+2 < len(e.points) {
		n1, n2 := e.points[i+1].Coord, e.points[i+2].Coord
		a.Backward = e.angleCheck(
			geo.TurnAngle(raw, n1, n2),
			geo.TurnAngle(fix, n1, n2),
		)
	}
	a.Sharp = (a.Forward != nil && a.Forward.Sharp) || (a.Backward != nil && a.Backward.Sharp)

	gain := 1.0
	if a.Sharp {
		gain = cfg.SharpGain
	}
	a.RequiredImprovement = cfg.MinImprovement * gain

	a.Jump = a.DistRaw > cfg.JumpDetectFloor
	a.Smooth = a.DistFix < cfg.SmoothCeiling
	a.Improve = a.Improvement >= a.RequiredImprovement

	var out Outcome
	switch {
	case a.Jump && a.Smooth:
		switch {
		case a.Improve:
			out = Outcome{Decision: Repaired, Coord: fix}
		case a.Sharp:
			out = Outcome{Decision: BlockedByAngle, Coord: raw}
		default:
			out = Outcome{Decision: BlockedByImprovement, Coord: raw}
		}

	case math.Abs(a.Improvement) < cfg.AmbiguousThreshold && i+1 < len(e.points):
		next := e.points[i+1].Coord
		a.LookaheadUsed = true
		a.LookaheadMargin = cfg.LookaheadGain * gain
		a.CostRaw = a.DistRaw + geo.Distance(raw, next)
		a.CostFix = a.DistFix + geo.Distance(fix, next)

		if a.CostFix+a.LookaheadMargin < a.CostRaw {
			out = Outcome{Decision: LookaheadFix, Coord: fix}
		} else {
			out = Outcome{Decision: LookaheadRaw, Coord: raw}
		}

	case a.Improvement <= -cfg.MinImprovement:
		out = Outcome{Decision: Original, Coord: raw}

	default:
		// when unsure, leave the point alone
		out = Outcome{Decision: Reset, Coord: raw}
	}

	a.Decision = out.Decision
	return out, a
}

func (e *Engine) angleCheck(raw, fix float64) *AngleCheck {
	return &AngleCheck{
		Raw:   raw,
		Fix:   fix,
		Sharp: fix < e.cfg.SharpTurnAngle || raw-fix > e.cfg.AngleTolerance,
	}
}
