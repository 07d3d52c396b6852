// Package pipeline drives a complete repair run: load, slice, prepare,
// repair, write and archive.
package pipeline

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/planbiir/gcjfix/internal/archive"
	"github.com/planbiir/gcjfix/internal/config"
	"github.com/planbiir/gcjfix/internal/export"
	"github.com/planbiir/gcjfix/internal/gpx"
	"github.com/planbiir/gcjfix/internal/pgstore"
	"github.com/planbiir/gcjfix/internal/repair"
	"github.com/planbiir/gcjfix/internal/timeconv"
	"github.com/planbiir/gcjfix/internal/track"
)

// FileUploader archives a local artifact and returns its object key
type FileUploader interface {
	UploadFile(ctx context.Context, runID, filename string, metadata map[string]string) (string, error)
}

// Result describes a finished run
type Result struct {
	RunID   string
	Input   string
	Format  string
	Loaded  int
	Skipped int
	Prepare track.PrepareStats
	Report  *repair.Report

	// Artifacts are the files written, in write order
	Artifacts []string
	// Archived are the object keys uploaded
	Archived []string
	// Saved is the number of rows copied to the results table
	Saved int64
}

// Runner executes runs for one configuration
type Runner struct {
	cfg      config.Config
	log      *slog.Logger
	dryRun   bool
	archive  bool
	uploader FileUploader
	db       pgstore.DB
	pool     *pgxpool.Pool
	newRunID func() string
}

// Option customizes a Runner
type Option func(*Runner)

// WithLogger sets the structured logger
func WithLogger(l *slog.Logger) Option {
	return func(r *Runner) { r.log = l }
}

// WithDryRun repairs without writing anything
func WithDryRun(dryRun bool) Option {
	return func(r *Runner) { r.dryRun = dryRun }
}

// WithArchive forces archival on or off regardless of the config file
func WithArchive(enabled bool) Option {
	return func(r *Runner) { r.archive = enabled }
}

// WithUploader supplies the archive client
func WithUploader(u FileUploader) Option {
	return func(r *Runner) { r.uploader = u }
}

// WithDB supplies the Postgres handle instead of opening a pool
func WithDB(db pgstore.DB) Option {
	return func(r *Runner) { r.db = db }
}

// New returns a runner for cfg
func New(cfg config.Config, opts ...Option) *Runner {
	r := &Runner{
		cfg:      cfg,
		log:      slog.Default(),
		archive:  cfg.Archive.Enabled,
		newRunID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// source is a loaded input; doc is set for GPX inputs so the repaired file
// keeps its structure
type source struct {
	table *track.Table
	doc   *gpx.GPX
}

// Run executes one repair run
func (r *Runner) Run(ctx context.Context) (*Result, error) {
	in := r.cfg.Input
	format := in.Format
	if format == "" {
		format = config.DetectFormat(in.Path)
	}
	if in.Path == "" && format != config.FormatPostgres {
		return nil, errors.New("no input file")
	}

	res := &Result{RunID: r.newRunID(), Input: in.Path, Format: format}
	log := r.log.With("run_id", res.RunID)

	loc, err := timeconv.Zone(in.TZOffsetHours)
	if err != nil {
		return nil, err
	}

	log.Info("loading input", "input", in.Path, "format", format)
	src, err := r.load(ctx, format, loc)
	if err != nil {
		return nil, err
	}
	res.Loaded = src.table.Len()
	res.Skipped = src.table.Skipped
	if res.Skipped > 0 {
		log.Warn("skipped rows without a usable time or position", "dropped", res.Skipped)
	}

	res.Prepare = track.Prepare(src.table)
	log.Info("prepared points",
		"points", res.Prepare.Output,
		"duplicates", res.Prepare.Duplicates,
		"reordered", res.Prepare.Reordered)

	report, err := repair.Run(ctx, r.cfg.Repair, src.table.Points())
	if err != nil {
		return nil, fmt.Errorf("repair: %w", err)
	}
	res.Report = report
	log.Info("repair finished",
		"points", report.Stats.Points,
		"repaired", report.Stats.Repaired,
		"elapsed", report.Stats.ProcessingTime)

	if r.dryRun {
		log.Info("dry run, nothing written")
		return res, nil
	}

	if err := r.write(ctx, res, src); err != nil {
		return nil, err
	}
	if err := r.upload(ctx, res, log); err != nil {
		return nil, err
	}
	return res, nil
}

func (r *Runner) load(ctx context.Context, format string, loc *time.Location) (*source, error) {
	in := r.cfg.Input
	slice := r.cfg.Slice

	switch format {
	case config.FormatCSV:
		f, err := os.Open(in.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to open file: %w", err)
		}
		defer f.Close()

		records, err := track.ReadRecords(f)
		if err != nil {
			return nil, err
		}
		if records, err = slice.Apply(records, in.Columns.Time, loc); err != nil {
			return nil, err
		}
		table, err := track.ParseRecords(records, in.Columns)
		if err != nil {
			return nil, err
		}
		return &source{table: table}, nil

	case config.FormatPostgres:
		return r.loadPostgres(ctx, loc)
	}

	var src source
	switch format {
	case config.FormatParquet:
		f, err := os.Open(in.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to open file: %w", err)
		}
		defer f.Close()
		info, err := f.Stat()
		if err != nil {
			return nil, fmt.Errorf("failed to stat file: %w", err)
		}
		if src.table, err = track.ReadParquet(f, info.Size()); err != nil {
			return nil, err
		}

	case config.FormatGPX:
		doc, err := gpx.Parse(in.Path)
		if err != nil {
			return nil, err
		}
		count, tracks, segments, duration, km := doc.Stats()
		r.log.Info("parsed gpx",
			"points", count,
			"tracks", tracks,
			"segments", segments,
			"duration", duration,
			"distance_km", km)

		points, skipped := doc.Points()
		src.doc = doc
		src.table = track.FromPoints(points)
		src.table.Skipped = skipped

	case config.FormatFIT:
		f, err := os.Open(in.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to open file: %w", err)
		}
		defer f.Close()
		if src.table, err = track.ReadFIT(bufio.NewReader(f)); err != nil {
			return nil, err
		}

	default:
		return nil, fmt.Errorf("unsupported input format %q", format)
	}

	if err := src.table.Cut(slice, loc); err != nil {
		return nil, err
	}
	return &src, nil
}

func (r *Runner) loadPostgres(ctx context.Context, loc *time.Location) (*source, error) {
	db, err := r.database(ctx)
	if err != nil {
		return nil, err
	}

	var window *timeconv.Window
	if r.cfg.Slice.Mode == track.SliceByTime {
		w, err := timeconv.ParseWindow(r.cfg.Slice.Start, r.cfg.Slice.End, loc)
		if err != nil {
			return nil, err
		}
		window = &w
	}

	table, err := pgstore.New(db, r.cfg.Postgres).LoadPoints(ctx, window)
	if err != nil {
		return nil, err
	}
	if r.cfg.Slice.Mode == track.SliceByLine {
		if err := table.Cut(r.cfg.Slice, loc); err != nil {
			return nil, err
		}
	}
	return &source{table: table}, nil
}

func (r *Runner) database(ctx context.Context) (pgstore.DB, error) {
	if r.db != nil {
		return r.db, nil
	}
	pg := r.cfg.Postgres
	r.log.Info("connecting to postgres", "url", pgstore.MaskURL(pg.URL))
	pool, err := pgstore.NewPool(ctx, pg.URL, pg.MaxConns)
	if err != nil {
		return nil, err
	}
	r.db, r.pool = pool, pool
	return pool, nil
}

// Close releases the connection pool opened by a Postgres run
func (r *Runner) Close() {
	if r.pool != nil {
		r.pool.Close()
		r.pool, r.db = nil, nil
	}
}

// DefaultOutputPath derives "<input>_repaired<ext>". FIT inputs are written
// as CSV.
func DefaultOutputPath(input, format string) string {
	ext := filepath.Ext(input)
	base := strings.TrimSuffix(input, ext)
	if format == config.FormatFIT {
		ext = ".csv"
	}
	return base + "_repaired" + ext
}

func (r *Runner) write(ctx context.Context, res *Result, src *source) error {
	out := r.cfg.Output
	report := res.Report

	if res.Format == config.FormatPostgres {
		db, err := r.database(ctx)
		if err != nil {
			return err
		}
		n, err := pgstore.New(db, r.cfg.Postgres).SaveResults(ctx, res.RunID, report.Results)
		if err != nil {
			return err
		}
		res.Saved = n
		r.log.Info("saved results", "run_id", res.RunID, "table", r.cfg.Postgres.ResultsTable, "rows", n)
	}

	path := out.Path
	if path == "" && res.Format != config.FormatPostgres {
		path = DefaultOutputPath(res.Input, res.Format)
	}
	if path != "" {
		err := r.writeFile(res, path, func(w io.Writer) error {
			switch strings.ToLower(filepath.Ext(path)) {
			case ".parquet":
				return track.WriteParquet(w, report.Results)
			case ".gpx":
				if src.doc == nil {
					return errors.New("gpx output needs gpx input")
				}
				src.doc.ApplyResults(report.Results)
				return src.doc.WriteToWriter(w)
			default:
				return track.WriteCSV(w, src.table, report.Results)
			}
		})
		if err != nil {
			return err
		}
	}

	if out.Audit != "" {
		audits := report.Audits()
		err := r.writeFile(res, out.Audit, func(w io.Writer) error {
			if out.AuditFormat == config.FormatParquet || strings.EqualFold(filepath.Ext(out.Audit), ".parquet") {
				return track.WriteAuditParquet(w, audits)
			}
			return track.WriteAuditCSV(w, audits)
		})
		if err != nil {
			return err
		}
	}

	if out.GeoJSON != "" {
		if err := r.writeFile(res, out.GeoJSON, func(w io.Writer) error {
			return export.WriteGeoJSON(w, report)
		}); err != nil {
			return err
		}
	}

	if out.KML != "" {
		name := filepath.Base(res.Input)
		if name == "." {
			name = res.RunID
		}
		if err := r.writeFile(res, out.KML, func(w io.Writer) error {
			return export.WriteKML(w, report, name)
		}); err != nil {
			return err
		}
	}

	if out.Summary != "" {
		if err := r.writeFile(res, out.Summary, func(w io.Writer) error {
			return export.WriteSummary(w, export.NewSummary(res.RunID, res.Input, report))
		}); err != nil {
			return err
		}
	}
	return nil
}

func (r *Runner) writeFile(res *Result, path string, fn func(io.Writer) error) (err error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer func() {
		if cerr := f.Close(); err == nil && cerr != nil {
			err = fmt.Errorf("failed to close %s: %w", path, cerr)
		}
	}()

	bw := bufio.NewWriter(f)
	if err := fn(bw); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}

	res.Artifacts = append(res.Artifacts, path)
	r.log.Debug("wrote artifact", "path", path)
	return nil
}

func (r *Runner) upload(ctx context.Context, res *Result, log *slog.Logger) error {
	if !r.archive || len(res.Artifacts) == 0 {
		return nil
	}

	uploader := r.uploader
	if uploader == nil {
		u, err := archive.New(r.cfg.Archive)
		if errors.Is(err, archive.ErrNotConfigured) {
			log.Warn("archive not configured, skipping upload")
			return nil
		}
		if err != nil {
			return err
		}
		uploader = u
	}

	meta := map[string]string{
		"points":   fmt.Sprint(res.Report.Stats.Points),
		"repaired": fmt.Sprint(res.Report.Stats.Repaired),
	}
	for _, path := range res.Artifacts {
		key, err := uploader.UploadFile(ctx, res.RunID, path, meta)
		if err != nil {
			return err
		}
		res.Archived = append(res.Archived, key)
		log.Info("archived artifact", "key", key)
	}
	return nil
}
