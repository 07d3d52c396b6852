package main

import (
	"encoding/json"
	"fmt"
	"io"
	"slices"

	"github.com/spf13/cobra"

	"github.com/planbiir/gcjfix/internal/config"
	"github.com/planbiir/gcjfix/internal/pipeline"
	"github.com/planbiir/gcjfix/internal/repair"
	"github.com/planbiir/gcjfix/internal/track"
)

type repairFlags struct {
	input, output, format string
	audit, auditFormat    string
	geojson, kml, summary string
	timeCol, lonCol       string
	latCol                string
	tz                    float64

	sliceMode, start, end string

	archive   bool
	dryRun    bool
	showStats bool
	statsJSON bool

	thresholds repair.Config
}

func newRepairCmd(a *app) *cobra.Command {
	var f repairFlags
	f.thresholds = repair.DefaultConfig()

	cmd := &cobra.Command{
		Use:   "repair",
		Short: "Repair shifted points in a track",
		Example: `  gcjfix repair -i track.csv
  gcjfix repair -i track.parquet -o clean.parquet --audit audit.parquet
  gcjfix repair --format postgres --mode time --start "2022-04-16 00:00:00" --end "2022-04-17 00:00:00"`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := a.cfg
			if err := f.apply(cmd, &cfg); err != nil {
				return err
			}
			return runRepair(cmd, a, cfg, f)
		},
	}

	fl := cmd.Flags()
	fl.StringVarP(&f.input, "input", "i", "", "Input file (csv, parquet, gpx or fit)")
	fl.StringVarP(&f.output, "output", "o", "", "Output file (default: <input>_repaired.<ext>)")
	fl.StringVar(&f.format, "format", "", "Input format: csv, parquet, gpx, fit, postgres (default: from extension)")
	fl.StringVar(&f.audit, "audit", "", "Write the per-point audit trail to this file")
	fl.StringVar(&f.auditFormat, "audit-format", "", "Audit format: csv or parquet")
	fl.StringVar(&f.geojson, "geojson", "", "Write raw and repaired lines as GeoJSON")
	fl.StringVar(&f.kml, "kml", "", "Write raw and repaired lines as KML")
	fl.StringVar(&f.summary, "summary", "", "Write a JSON run summary")
	fl.StringVar(&f.timeCol, "time-column", "", "Timestamp column (epoch ms)")
	fl.StringVar(&f.lonCol, "lon-column", "", "Longitude column")
	fl.StringVar(&f.latCol, "lat-column", "", "Latitude column")
	fl.Float64Var(&f.tz, "tz", 0, "UTC offset in hours for time slicing")

	fl.StringVar(&f.sliceMode, "mode", "", "Slice mode: line or time")
	fl.StringVar(&f.start, "start", "", "Slice start (line number or \"YYYY-MM-DD HH:MM:SS\")")
	fl.StringVar(&f.end, "end", "", "Slice end (line number or \"YYYY-MM-DD HH:MM:SS\")")

	fl.BoolVar(&f.archive, "archive", false, "Upload the artifacts to object storage")
	fl.BoolVar(&f.dryRun, "dry-run", false, "Show statistics without writing output files")
	fl.BoolVar(&f.showStats, "stats", false, "Show detailed statistics")
	fl.BoolVar(&f.statsJSON, "stats-json", false, "Output statistics as JSON")

	t := &f.thresholds
	fl.Float64Var(&t.JumpDetectFloor, "jump-floor", t.JumpDetectFloor, "Minimum raw hop in meters to count as a jump")
	fl.Float64Var(&t.SmoothCeiling, "smooth-ceiling", t.SmoothCeiling, "Maximum repaired hop in meters")
	fl.Float64Var(&t.MinImprovement, "min-improvement", t.MinImprovement, "Meters the repair must save")
	fl.Float64Var(&t.AmbiguousThreshold, "ambiguous", t.AmbiguousThreshold, "Improvement in meters below which lookahead decides")
	fl.Float64Var(&t.LookaheadGain, "lookahead-gain", t.LookaheadGain, "Meters the lookahead repair must save")
	fl.Float64Var(&t.SharpTurnAngle, "sharp-angle", t.SharpTurnAngle, "Turn angle in degrees below which a repair is sharp")
	fl.Float64Var(&t.AngleTolerance, "angle-tolerance", t.AngleTolerance, "Degrees a repair may sharpen a turn")
	fl.Float64Var(&t.SharpGain, "sharp-gain", t.SharpGain, "Evidence multiplier on sharp turns")
	fl.BoolVar(&t.RegionGate, "region-gate", t.RegionGate, "Leave points outside China untouched")

	return cmd
}

// apply lays the flags that were set over the loaded config
func (f *repairFlags) apply(cmd *cobra.Command, cfg *config.Config) error {
	fl := cmd.Flags()
	set := func(name string, dst *string, v string) {
		if fl.Changed(name) {
			*dst = v
		}
	}

	set("input", &cfg.Input.Path, f.input)
	set("format", &cfg.Input.Format, f.format)
	set("output", &cfg.Output.Path, f.output)
	set("audit", &cfg.Output.Audit, f.audit)
	set("audit-format", &cfg.Output.AuditFormat, f.auditFormat)
	set("geojson", &cfg.Output.GeoJSON, f.geojson)
	set("kml", &cfg.Output.KML, f.kml)
	set("summary", &cfg.Output.Summary, f.summary)
	set("time-column", &cfg.Input.Columns.Time, f.timeCol)
	set("lon-column", &cfg.Input.Columns.Lon, f.lonCol)
	set("lat-column", &cfg.Input.Columns.Lat, f.latCol)
	set("start", &cfg.Slice.Start, f.start)
	set("end", &cfg.Slice.End, f.end)
	if fl.Changed("mode") {
		cfg.Slice.Mode = track.SliceMode(f.sliceMode)
	}
	if fl.Changed("tz") {
		cfg.Input.TZOffsetHours = f.tz
	}
	if fl.Changed("archive") {
		cfg.Archive.Enabled = f.archive
	}

	thresholds := map[string]func(){
		"jump-floor":      func() { cfg.Repair.JumpDetectFloor = f.thresholds.JumpDetectFloor },
		"smooth-ceiling":  func() { cfg.Repair.SmoothCeiling = f.thresholds.SmoothCeiling },
		"min-improvement": func() { cfg.Repair.MinImprovement = f.thresholds.MinImprovement },
		"ambiguous":       func() { cfg.Repair.AmbiguousThreshold = f.thresholds.AmbiguousThreshold },
		"lookahead-gain":  func() { cfg.Repair.LookaheadGain = f.thresholds.LookaheadGain },
		"sharp-angle":     func() { cfg.Repair.SharpTurnAngle = f.thresholds.SharpTurnAngle },
		"angle-tolerance": func() { cfg.Repair.AngleTolerance = f.thresholds.AngleTolerance },
		"sharp-gain":      func() { cfg.Repair.SharpGain = f.thresholds.SharpGain },
		"region-gate":     func() { cfg.Repair.RegionGate = f.thresholds.RegionGate },
	}
	for name, fn := range thresholds {
		if fl.Changed(name) {
			fn()
		}
	}

	if cfg.Input.Path == "" && cfg.Input.Format != config.FormatPostgres {
		return usageError{fmt.Errorf("required flag \"input\" not set")}
	}
	if err := cfg.Validate(); err != nil {
		return usageError{err}
	}
	return nil
}

func runRepair(cmd *cobra.Command, a *app, cfg config.Config, f repairFlags) error {
	out := cmd.OutOrStdout()

	runner := pipeline.New(cfg,
		pipeline.WithLogger(a.log),
		pipeline.WithDryRun(f.dryRun),
	)
	defer runner.Close()

	source := cfg.Input.Path
	if source == "" {
		source = cfg.Postgres.Table
	}
	fmt.Fprintf(out, "📖 Reading track: %s\n", source)

	res, err := runner.Run(cmd.Context())
	if err != nil {
		return err
	}

	stats := res.Report.Stats
	fmt.Fprintf(out, "📊 Track: %d points (%d skipped, %d duplicates removed)\n",
		stats.Points, res.Skipped, res.Prepare.Duplicates)

	if f.showStats || f.statsJSON || f.dryRun {
		if f.statsJSON {
			jsonData, err := json.MarshalIndent(stats, "", "  ")
			if err != nil {
				return fmt.Errorf("marshal stats: %w", err)
			}
			fmt.Fprintln(out, string(jsonData))
		} else {
			printStats(out, stats)
		}
	}

	if f.dryRun {
		fmt.Fprintf(out, "🔍 Dry run completed - no files written\n")
		return nil
	}

	for _, path := range res.Artifacts {
		fmt.Fprintf(out, "💾 Wrote %s\n", path)
	}
	if res.Saved > 0 {
		fmt.Fprintf(out, "💾 Saved %d rows to %s\n", res.Saved, cfg.Postgres.ResultsTable)
	}
	for _, key := range res.Archived {
		fmt.Fprintf(out, "☁️  Archived %s\n", key)
	}

	fmt.Fprintf(out, "✅ Track repaired successfully!\n")
	fmt.Fprintf(out, "   %d of %d points repaired (%.1f%%)\n",
		stats.Repaired, stats.Points, stats.RepairedPercent)
	fmt.Fprintf(out, "   %.1f → %.1f km (%.1f%% reduced)\n",
		stats.OriginalDistance, stats.FinalDistance, stats.DistancePercent)
	return nil
}

func printStats(w io.Writer, stats repair.Stats) {
	fmt.Fprintf(w, "\n📊 Repair Statistics:\n")
	fmt.Fprintf(w, "━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n")
	fmt.Fprintf(w, "📍 Points: %d (%d repaired, %.1f%%)\n",
		stats.Points, stats.Repaired, stats.RepairedPercent)
	fmt.Fprintf(w, "📏 Distance: %.2f → %.2f km (%.2f km reduced, %.1f%%)\n",
		stats.OriginalDistance, stats.FinalDistance, stats.DistanceReduced, stats.DistancePercent)
	fmt.Fprintf(w, "🔄 Decisions:\n")
	names := make([]string, 0, len(stats.Decisions))
	for name := range stats.Decisions {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		fmt.Fprintf(w, "   • %s: %d\n", name, stats.Decisions[name])
	}
	fmt.Fprintf(w, "⏱️  Processing Time: %v\n", stats.ProcessingTime)
	fmt.Fprintf(w, "━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n")
}
