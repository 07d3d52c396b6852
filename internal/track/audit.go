package track

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/parquet-go/parquet-go"

	"github.com/planbiir/gcjfix/internal/repair"
)

// AuditRow is the flat form of one audit record
type AuditRow struct {
	Index   int64 `parquet:"index"`
	GeoTime int64 `parquet:"geoTime"`

	LastLon  float64  `parquet:"last_lon"`
	LastLat  float64  `parquet:"last_lat"`
	PriorLon *float64 `parquet:"prior_lon,optional"`
	PriorLat *float64 `parquet:"prior_lat,optional"`
	RawLon   float64  `parquet:"raw_lon"`
	RawLat   float64  `parquet:"raw_lat"`
	FixLon   float64  `parquet:"fix_lon"`
	FixLat   float64  `parquet:"fix_lat"`

	DistRaw     float64 `parquet:"dist_if_original"`
	DistFix     float64 `parquet:"dist_if_fixed"`
	Improvement float64 `parquet:"improvement"`

	CondJump    bool `parquet:"cond_jump"`
	CondSmooth  bool `parquet:"cond_smooth"`
	CondImprove bool `parquet:"cond_improve"`

	FwdRawAngle *float64 `parquet:"fwd_raw_angle,optional"`
	FwdFixAngle *float64 `parquet:"fwd_fix_angle,optional"`
	FwdSharp    *bool    `parquet:"fwd_sharp,optional"`
	BwdRawAngle *float64 `parquet:"bwd_raw_angle,optional"`
	BwdFixAngle *float64 `parquet:"bwd_fix_angle,optional"`
	BwdSharp    *bool    `parquet:"bwd_sharp,optional"`
	Sharp       bool     `parquet:"sharp"`

	RequiredImprovement float64 `parquet:"required_improvement"`

	LookaheadUsed     bool     `parquet:"lookahead_used"`
	LookaheadDecision string   `parquet:"lookahead_decision"`
	LookaheadMargin   *float64 `parquet:"lookahead_margin,optional"`
	CostRaw           *float64 `parquet:"cost_raw,optional"`
	CostFix           *float64 `parquet:"cost_fix,optional"`

	Decision string `parquet:"decision"`
	Note     string `parquet:"note"`
}

var auditHeader = []string{
	"index", "geoTime",
	"last_lon", "last_lat", "prior_lon", "prior_lat",
	"raw_lon", "raw_lat", "fix_lon", "fix_lat",
	"dist_if_original", "dist_if_fixed", "improvement",
	"cond_jump", "cond_smooth", "cond_improve",
	"fwd_raw_angle", "fwd_fix_angle", "fwd_sharp",
	"bwd_raw_angle", "bwd_fix_angle", "bwd_sharp", "sharp",
	"required_improvement",
	"lookahead_used", "lookahead_decision", "lookahead_margin", "cost_raw", "cost_fix",
	"decision", "note",
}

// NewAuditRow flattens an audit record. Values that were not computed are nil.
func NewAuditRow(a repair.Audit) AuditRow {
	row := AuditRow{
		Index:       int64(a.Index),
		GeoTime:     a.Timestamp,
		LastLon:     a.Last.Lon,
		LastLat:     a.Last.Lat,
		RawLon:      a.Raw.Lon,
		RawLat:      a.Raw.Lat,
		FixLon:      a.Fix.Lon,
		FixLat:      a.Fix.Lat,
		DistRaw:     a.DistRaw,
		DistFix:     a.DistFix,
		Improvement: a.Improvement,
		CondJump:    a.Jump,
		CondSmooth:  a.Smooth,
		CondImprove: a.Improve,
		Sharp:       a.Sharp,

		RequiredImprovement: a.RequiredImprovement,
		LookaheadUsed:       a.LookaheadUsed,

		Decision: a.Decision.String(),
		Note:     a.Note(),
	}
	if a.HasPrior {
		row.PriorLon, row.PriorLat = ptr(a.Prior.Lon), ptr(a.Prior.Lat)
	}
	if f := a.Forward; f != nil {
		row.FwdRawAngle, row.FwdFixAngle, row.FwdSharp = ptr(f.Raw), ptr(f.Fix), ptr(f.Sharp)
	}
	if b := a.Backward; b != nil {
		row.BwdRawAngle, row.BwdFixAngle, row.BwdSharp = ptr(b.Raw), ptr(b.Fix), ptr(b.Sharp)
	}
	if a.LookaheadUsed {
		row.LookaheadMargin, row.CostRaw, row.CostFix = ptr(a.LookaheadMargin), ptr(a.CostRaw), ptr(a.CostFix)
		row.LookaheadDecision = "RAW"
		if a.Decision == repair.LookaheadFix {
			row.LookaheadDecision = "FIX"
		}
	}
	return row
}

// AuditRows flattens a whole audit trail
func AuditRows(audits []repair.Audit) []AuditRow {
	rows := make([]AuditRow, len(audits))
	for i, a := range audits {
		rows[i] = NewAuditRow(a)
	}
	return rows
}

func (r AuditRow) record() []string {
	return []string{
		strconv.FormatInt(r.Index, 10),
		strconv.FormatInt(r.GeoTime, 10),
		formatFloat(r.LastLon), formatFloat(r.LastLat),
		optFloat(r.PriorLon), optFloat(r.PriorLat),
		formatFloat(r.RawLon), formatFloat(r.RawLat),
		formatFloat(r.FixLon), formatFloat(r.FixLat),
		formatFloat(r.DistRaw), formatFloat(r.DistFix), formatFloat(r.Improvement),
		strconv.FormatBool(r.CondJump), strconv.FormatBool(r.CondSmooth), strconv.FormatBool(r.CondImprove),
		optFloat(r.FwdRawAngle), optFloat(r.FwdFixAngle), optBool(r.FwdSharp),
		optFloat(r.BwdRawAngle), optFloat(r.BwdFixAngle), optBool(r.BwdSharp),
		strconv.FormatBool(r.Sharp),
		formatFloat(r.RequiredImprovement),
		strconv.FormatBool(r.LookaheadUsed), r.LookaheadDecision,
		optFloat(r.LookaheadMargin), optFloat(r.CostRaw), optFloat(r.CostFix),
		r.Decision, r.Note,
	}
}

// WriteAuditCSV writes one row per audit record
func WriteAuditCSV(w io.Writer, audits []repair.Audit) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(auditHeader); err != nil {
		return fmt.Errorf("failed to write audit header: %w", err)
	}
	for _, a := range audits {
		if err := cw.Write(NewAuditRow(a).record()); err != nil {
			return fmt.Errorf("failed to write audit row %d: %w", a.Index, err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("failed to flush audit CSV: %w", err)
	}
	return nil
}

// WriteAuditParquet writes the audit trail as a Parquet file
func WriteAuditParquet(w io.Writer, audits []repair.Audit) error {
	writer := parquet.NewGenericWriter[AuditRow](w)
	if _, err := writer.Write(AuditRows(audits)); err != nil {
		return fmt.Errorf("write parquet audit rows: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("close parquet writer: %w", err)
	}
	return nil
}

func ptr[T any](v T) *T {
	return &v
}

func optFloat(v *float64) string {
	if v == nil {
		return ""
	}
	return formatFloat(*v)
}

func optBool(v *bool) string {
	if v == nil {
		return ""
	}
	return strconv.FormatBool(*v)
}
