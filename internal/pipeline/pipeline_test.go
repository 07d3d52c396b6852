package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/parquet-go/parquet-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/planbiir/gcjfix/internal/config"
	"github.com/planbiir/gcjfix/internal/geo"
	"github.com/planbiir/gcjfix/internal/repair"
	"github.com/planbiir/gcjfix/internal/track"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

// jumpTrack is 20 points heading east 8m apart with point 10 recorded shifted
func jumpTrack() []repair.Point {
	points := make([]repair.Point, 20)
	for i := range points {
		c := geo.Coord{Lon: 120 + float64(i)*0.00008, Lat: 30}
		if i == 10 {
			c = geo.ToGCJ(c)
		}
		points[i] = repair.Point{Timestamp: 1650072179000 + int64(i)*1000, Coord: c}
	}
	return points
}

func writeCSV(t *testing.T, dir string, points []repair.Point) string {
	t.Helper()
	var b strings.Builder
	b.WriteString("geoTime,longitude,latitude,speed\n")
	for _, p := range points {
		fmt.Fprintf(&b, "%d,%s,%s,1.5\n", p.Timestamp,
			strconv.FormatFloat(p.Lon, 'f', -1, 64),
			strconv.FormatFloat(p.Lat, 'f', -1, 64))
	}
	// a duplicate and a broken row
	fmt.Fprintf(&b, "%d,120,30,0\n", points[3].Timestamp)
	b.WriteString(",,,\n")

	path := filepath.Join(dir, "track.csv")
	require.NoError(t, os.WriteFile(path, []byte(b.String()), 0o644))
	return path
}

func testConfig(input string) config.Config {
	cfg := config.Default()
	cfg.Input.Path = input
	return cfg
}

func fixedID(r *Runner) { r.newRunID = func() string { return "run-1" } }

func TestRunCSV(t *testing.T) {
	dir := t.TempDir()
	input := writeCSV(t, dir, jumpTrack())

	cfg := testConfig(input)
	cfg.Output.Audit = filepath.Join(dir, "out", "audit.csv")
	cfg.Output.GeoJSON = filepath.Join(dir, "out", "track.geojson")
	cfg.Output.KML = filepath.Join(dir, "out", "track.kml")
	cfg.Output.Summary = filepath.Join(dir, "out", "summary.json")

	res, err := New(cfg, WithLogger(quiet), fixedID).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "run-1", res.RunID)
	assert.Equal(t, config.FormatCSV, res.Format)
	assert.Equal(t, 21, res.Loaded)
	assert.Equal(t, 1, res.Skipped)
	assert.Equal(t, 1, res.Prepare.Duplicates)
	assert.Equal(t, 20, res.Report.Stats.Points)
	assert.Equal(t, 1, res.Report.Stats.Repaired)
	assert.Equal(t, repair.Repaired, res.Report.Results[10].Decision)

	output := filepath.Join(dir, "track_repaired.csv")
	assert.Equal(t, []string{output, cfg.Output.Audit, cfg.Output.GeoJSON, cfg.Output.KML, cfg.Output.Summary}, res.Artifacts)
	for _, path := range res.Artifacts {
		assert.FileExists(t, path)
	}

	f, err := os.Open(output)
	require.NoError(t, err)
	defer f.Close()
	records, err := track.ReadRecords(f)
	require.NoError(t, err)
	require.Len(t, records, 21)
	assert.Equal(t, []string{"geoTime", "longitude", "latitude", "speed", "clean_longitude", "clean_latitude", "repair_note"}, records[0])
	assert.Equal(t, "REPAIRED (GCJ->WGS)", records[11][6])
	assert.Equal(t, "1.5", records[11][3])

	audit, err := os.ReadFile(cfg.Output.Audit)
	require.NoError(t, err)
	assert.Equal(t, 20, strings.Count(string(audit), "\n"), "header plus n-1 records")
}

func TestRunDryRun(t *testing.T) {
	dir := t.TempDir()
	input := writeCSV(t, dir, jumpTrack())

	cfg := testConfig(input)
	cfg.Output.Audit = filepath.Join(dir, "audit.csv")

	res, err := New(cfg, WithLogger(quiet), WithDryRun(true)).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Report.Stats.Repaired)
	assert.Empty(t, res.Artifacts)
	assert.NoFileExists(t, filepath.Join(dir, "track_repaired.csv"))
	assert.NoFileExists(t, cfg.Output.Audit)
	assert.NotEmpty(t, res.RunID)
}

func TestRunSliced(t *testing.T) {
	dir := t.TempDir()
	input := writeCSV(t, dir, jumpTrack())

	cfg := testConfig(input)
	cfg.Slice = track.Slice{Mode: track.SliceByLine, Start: "2", End: "6"}
	cfg.Output.Path = filepath.Join(dir, "cut_repaired.parquet")

	res, err := New(cfg, WithLogger(quiet)).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, res.Report.Stats.Points)
	assert.Zero(t, res.Report.Stats.Repaired)
	assert.Equal(t, []string{cfg.Output.Path}, res.Artifacts)
}

func TestRunParquetInput(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "track.parquet")
	f, err := os.Create(input)
	require.NoError(t, err)
	var rows []track.ParquetPoint
	for _, p := range jumpTrack() {
		rows = append(rows, track.ParquetPoint{GeoTime: p.Timestamp, Longitude: p.Lon, Latitude: p.Lat})
	}
	w := parquet.NewGenericWriter[track.ParquetPoint](f)
	_, err = w.Write(rows)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	require.NoError(t, f.Close())

	cfg := testConfig(input)
	cfg.Output.Audit = filepath.Join(dir, "audit.parquet")

	res, err := New(cfg, WithLogger(quiet)).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, config.FormatParquet, res.Format)
	assert.Equal(t, 1, res.Report.Stats.Repaired)
	assert.Equal(t, []string{filepath.Join(dir, "track_repaired.parquet"), cfg.Output.Audit}, res.Artifacts)
}

func TestRunGPX(t *testing.T) {
	dir := t.TempDir()
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?>` + "\n" + `<gpx version="1.1" creator="test"><trk><trkseg>`)
	for _, p := range jumpTrack() {
		fmt.Fprintf(&b, `<trkpt lat="%s" lon="%s"><time>%s</time></trkpt>`,
			strconv.FormatFloat(p.Lat, 'f', -1, 64),
			strconv.FormatFloat(p.Lon, 'f', -1, 64),
			timeRFC3339(p.Timestamp))
	}
	b.WriteString(`</trkseg></trk></gpx>`)
	input := filepath.Join(dir, "ride.gpx")
	require.NoError(t, os.WriteFile(input, []byte(b.String()), 0o644))

	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))

	res, err := New(testConfig(input), WithLogger(logger)).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Report.Stats.Repaired)
	assert.Contains(t, logs.String(), "msg=\"parsed gpx\" points=20 tracks=1 segments=1 duration=19s")

	out, err := os.ReadFile(filepath.Join(dir, "ride_repaired.gpx"))
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(string(out), "<cmt>"))
}

type fakeUploader struct {
	files []string
	err   error
}

func (u *fakeUploader) UploadFile(_ context.Context, runID, filename string, meta map[string]string) (string, error) {
	if u.err != nil {
		return "", u.err
	}
	u.files = append(u.files, filename)
	return "repairs/" + runID + "/" + filepath.Base(filename), nil
}

func TestRunArchive(t *testing.T) {
	dir := t.TempDir()
	input := writeCSV(t, dir, jumpTrack())
	cfg := testConfig(input)
	cfg.Output.Summary = filepath.Join(dir, "summary.json")

	up := &fakeUploader{}
	res, err := New(cfg, WithLogger(quiet), WithArchive(true), WithUploader(up), fixedID).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, res.Artifacts, up.files)
	assert.Equal(t, []string{"repairs/run-1/track_repaired.csv", "repairs/run-1/summary.json"}, res.Archived)

	// archive disabled by default
	up = &fakeUploader{}
	_, err = New(cfg, WithLogger(quiet), WithUploader(up)).Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, up.files)

	_, err = New(cfg, WithLogger(quiet), WithArchive(true), WithUploader(&fakeUploader{err: errors.New("boom")})).Run(context.Background())
	assert.Error(t, err)
}

func TestRunArchiveNotConfigured(t *testing.T) {
	for _, key := range []string{"R2_ENDPOINT", "R2_ACCESS_KEY_ID", "R2_SECRET_ACCESS_KEY", "R2_BUCKET"} {
		t.Setenv(key, "")
	}
	dir := t.TempDir()
	cfg := testConfig(writeCSV(t, dir, jumpTrack()))
	cfg.Archive.Enabled = true

	res, err := New(cfg, WithLogger(quiet)).Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, res.Archived)
}

type pgRows struct {
	points []repair.Point
	pos    int
}

func (r *pgRows) Close()                                       {}
func (r *pgRows) Err() error                                   { return nil }
func (r *pgRows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (r *pgRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *pgRows) Values() ([]any, error)                       { return nil, nil }
func (r *pgRows) RawValues() [][]byte                          { return nil }
func (r *pgRows) Conn() *pgx.Conn                              { return nil }
func (r *pgRows) Next() bool                                   { r.pos++; return r.pos <= len(r.points) }

func (r *pgRows) Scan(dest ...any) error {
	p := r.points[r.pos-1]
	lon, lat := p.Lon, p.Lat
	*dest[0].(*int64) = p.Timestamp
	*dest[1].(**float64) = &lon
	*dest[2].(**float64) = &lat
	return nil
}

type pgDB struct {
	points []repair.Point
	args   []any
	copied int
}

func (db *pgDB) Query(_ context.Context, _ string, args ...any) (pgx.Rows, error) {
	db.args = args
	return &pgRows{points: db.points}, nil
}

func (db *pgDB) CopyFrom(_ context.Context, _ pgx.Identifier, _ []string, src pgx.CopyFromSource) (int64, error) {
	for src.Next() {
		db.copied++
	}
	return int64(db.copied), nil
}

func TestRunPostgres(t *testing.T) {
	db := &pgDB{points: jumpTrack()}

	cfg := config.Default()
	cfg.Input.Format = config.FormatPostgres
	cfg.Slice = track.Slice{Mode: track.SliceByTime, Start: "2022-04-16 03:22:00", End: "2022-04-16 03:30:00"}

	runner := New(cfg, WithLogger(quiet), WithDB(db))
	defer runner.Close()
	res, err := runner.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []any{int64(1650072120000), int64(1650072600000)}, db.args)
	assert.Equal(t, int64(20), res.Saved)
	assert.Equal(t, 20, db.copied)
	assert.Empty(t, res.Artifacts)
	assert.Equal(t, 1, res.Report.Stats.Repaired)
}

func TestRunErrors(t *testing.T) {
	_, err := New(config.Default(), WithLogger(quiet)).Run(context.Background())
	assert.Error(t, err)

	_, err = New(testConfig(filepath.Join(t.TempDir(), "missing.csv")), WithLogger(quiet)).Run(context.Background())
	assert.Error(t, err)

	// unsorted input is fine, the engine only sees prepared points
	dir := t.TempDir()
	points := jumpTrack()
	points[0], points[5] = points[5], points[0]
	_, err = New(testConfig(writeCSV(t, dir, points)), WithLogger(quiet)).Run(context.Background())
	assert.NoError(t, err)

	// a header without the time column
	bad := filepath.Join(dir, "bad.csv")
	require.NoError(t, os.WriteFile(bad, []byte("t,longitude,latitude\n1,2,3\n"), 0o644))
	_, err = New(testConfig(bad), WithLogger(quiet)).Run(context.Background())
	assert.ErrorIs(t, err, track.ErrMissingColumn)

	// every row unusable
	empty := filepath.Join(dir, "empty.csv")
	require.NoError(t, os.WriteFile(empty, []byte("geoTime,longitude,latitude\n,,\n"), 0o644))
	_, err = New(testConfig(empty), WithLogger(quiet)).Run(context.Background())
	assert.ErrorIs(t, err, repair.ErrEmptyInput)
}

func TestDefaultOutputPath(t *testing.T) {
	assert.Equal(t, "data/track_repaired.csv", DefaultOutputPath("data/track.csv", config.FormatCSV))
	assert.Equal(t, "ride_repaired.gpx", DefaultOutputPath("ride.gpx", config.FormatGPX))
	assert.Equal(t, "ride_repaired.csv", DefaultOutputPath("ride.fit", config.FormatFIT))
	assert.Equal(t, "track_repaired", DefaultOutputPath("track", config.FormatCSV))
}
