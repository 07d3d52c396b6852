package repair

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/planbiir/gcjfix/internal/geo"
)

// Point is a single timestamped fix as recorded by the device
type Point struct {
	Timestamp int64 // epoch milliseconds
	geo.Coord
}

// Config holds the decision thresholds
type Config struct {
	// Distance gates (meters)
	JumpDetectFloor    float64 `yaml:"jump_detect_floor" json:"jump_detect_floor" validate:"gte=0"`
	SmoothCeiling      float64 `yaml:"smooth_ceiling" json:"smooth_ceiling" validate:"gt=0"`
	MinImprovement     float64 `yaml:"min_improvement" json:"min_improvement" validate:"gte=0"`
	AmbiguousThreshold float64 `yaml:"ambiguous_threshold" json:"ambiguous_threshold" validate:"gte=0"`
	LookaheadGain      float64 `yaml:"lookahead_gain" json:"lookahead_gain" validate:"gte=0"`

	// Turn guards (degrees)
	SharpTurnAngle float64 `yaml:"sharp_turn_angle" json:"sharp_turn_angle" validate:"gte=0,lte=180"`
	AngleTolerance float64 `yaml:"angle_tolerance" json:"angle_tolerance" validate:"gte=0,lte=180"`

	// SharpGain multiplies MinImprovement and LookaheadGain on sharp turns
	SharpGain float64 `yaml:"sharp_gain" json:"sharp_gain" validate:"gte=1"`

	// RegionGate skips the transform for points outside the shift model's region
	RegionGate bool `yaml:"region_gate" json:"region_gate"`
}

// DefaultConfig returns the thresholds tuned on real phone tracks
func DefaultConfig() Config {
	return Config{
		JumpDetectFloor:    50.0,  // anything shorter is ordinary motion
		SmoothCeiling:      800.0, // repaired hop must still be drivable
		MinImprovement:     4.0,
		AmbiguousThreshold: 120.0,
		LookaheadGain:      20.0,
		SharpTurnAngle:     60.0,
		AngleTolerance:     30.0,
		SharpGain:          150.0, // 600m of evidence to repair through a hairpin
		RegionGate:         false,
	}
}

var configValidate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the thresholds are within range
func (c Config) Validate() error {
	if err := configValidate.Struct(c); err != nil {
		return fmt.Errorf("invalid repair config: %w", err)
	}
	return nil
}

// Decision tags the branch that produced a committed point
type Decision int

const (
	Start Decision = iota
	Repaired
	Original
	LookaheadFix
	LookaheadRaw
	BlockedByAngle
	BlockedByImprovement
	Reset
)

var decisionTags = [...]string{
	Start:                "START",
	Repaired:             "REPAIRED",
	Original:             "ORIGINAL",
	LookaheadFix:         "LOOKAHEAD_FIX",
	LookaheadRaw:         "LOOKAHEAD_RAW",
	BlockedByAngle:       "BLOCKED_BY_ANGLE",
	BlockedByImprovement: "BLOCKED_BY_IMPROVEMENT",
	Reset:                "RESET",
}

var decisionNotes = [...]string{
	Start:                "Start",
	Repaired:             "REPAIRED (GCJ->WGS)",
	Original:             "Original",
	LookaheadFix:         "REPAIRED (via LOOKAHEAD)",
	LookaheadRaw:         "Original (via LOOKAHEAD)",
	BlockedByAngle:       "Original (blocked: sharp turn)",
	BlockedByImprovement: "Original (blocked: low improvement)",
	Reset:                "Reset/Unsure",
}

func (d Decision) String() string {
	if d < 0 || int(d) >= len(decisionTags) {
		return fmt.Sprintf("Decision(%d)", int(d))
	}
	return decisionTags[d]
}

// Note is the human-readable label written to the repair_note column
func (d Decision) Note() string {
	if d < 0 || int(d) >= len(decisionNotes) {
		return d.String()
	}
	return decisionNotes[d]
}

// IsRepair reports whether the candidate coordinate was committed
func (d Decision) IsRepair() bool {
	return d == Repaired || d == LookaheadFix
}

func (d Decision) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Outcome is the committed coordinate together with the branch that chose it
type Outcome struct {
	Decision Decision
	Coord    geo.Coord
}

// AngleCheck is one turning-angle comparison between the raw and fixed paths
type AngleCheck struct {
	Raw   float64 `json:"raw"`
	Fix   float64 `json:"fix"`
	Sharp bool    `json:"sharp"`
}

// Audit captures every intermediate value behind a decision
type Audit struct {
	Index     int   `json:"index"`
	Timestamp int64 `json:"timestamp"`

	Last     geo.Coord `json:"last"`
	Prior    geo.Coord `json:"prior"`
	HasPrior bool      `json:"has_prior"`
	Raw      geo.Coord `json:"raw"`
	Fix      geo.Coord `json:"fix"`

	DistRaw     float64 `json:"dist_raw"`
	DistFix     float64 `json:"dist_fix"`
	Improvement float64 `json:"improvement"`

	Jump    bool `json:"cond_jump"`
	Smooth  bool `json:"cond_smooth"`
	Improve bool `json:"cond_improve"`

	Forward  *AngleCheck `json:"forward,omitempty"`
	Backward *AngleCheck `json:"backward,omitempty"`
	Sharp    bool        `json:"sharp"`

	RequiredImprovement float64 `json:"required_improvement"`

	LookaheadUsed   bool    `json:"lookahead_used"`
	LookaheadMargin float64 `json:"lookahead_margin"`
	CostRaw         float64 `json:"cost_raw"`
	CostFix         float64 `json:"cost_fix"`

	Decision Decision `json:"decision"`
}

// Note mirrors Decision.Note for the audited point
func (a Audit) Note() string {
	return a.Decision.Note()
}

// Result is the engine output for one point; Audit is nil for the seed point
type Result struct {
	Index int
	Point Point
	Outcome
	Audit *Audit
}

// Stats represents repair results and metrics
type Stats struct {
	// Input
	Points           int     `json:"points"`
	OriginalDistance float64 `json:"original_distance_km"`

	// Decisions
	Decisions map[string]int `json:"decisions"`
	Repaired  int            `json:"repaired_points"`

	// Results
	RepairedPercent float64 `json:"repaired_percent"`
	FinalDistance   float64 `json:"final_distance_km"`
	DistanceReduced float64 `json:"distance_reduced_km"`
	DistancePercent float64 `json:"distance_reduced_percent"`

	// Performance
	ProcessingTime time.Duration `json:"processing_time_ns"`
}
