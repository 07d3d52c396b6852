package track

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/muktihari/fit/encoder"
	"github.com/muktihari/fit/profile/mesgdef"
	"github.com/muktihari/fit/profile/typedef"
	"github.com/muktihari/fit/proto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/planbiir/gcjfix/internal/geo"
	"github.com/planbiir/gcjfix/internal/repair"
	"github.com/planbiir/gcjfix/internal/timeconv"
)

const sampleCSV = `geoTime,longitude,latitude,altitude,course
1650072179000,120.0,30.0,12.5,90
1650072181000,120.0001,30.0,12.7,91
1650072180000,120.00005,30.0,12.6,90
1650072180000,121.0,31.0,99,0
,120.0002,30.0,13,92
1650072182000,abc,30.0,13,92
1650072183000,120.0003,30.0
`

func TestReadCSV(t *testing.T) {
	table, err := readCSV(strings.NewReader(sampleCSV), DefaultColumns())
	require.NoError(t, err)

	assert.Equal(t, []string{"geoTime", "longitude", "latitude", "altitude", "course"}, table.Header)
	assert.Equal(t, 5, table.Len())
	assert.Equal(t, 2, table.Skipped)

	first := table.Rows[0]
	assert.Equal(t, int64(1650072179000), first.Timestamp)
	assert.Equal(t, geo.Coord{Lon: 120.0, Lat: 30.0}, first.Coord)
	assert.Equal(t, "12.5", first.Fields[3])

	// short rows are kept when the required fields are present
	assert.Len(t, table.Rows[4].Fields, 3)
}

func TestReadCSVCustomColumns(t *testing.T) {
	in := "t;x;y\n1000;116.4;39.9\n"
	_, err := readCSV(strings.NewReader(in), DefaultColumns())
	assert.ErrorIs(t, err, ErrMissingColumn)

	in = "t,x,y\n1000,116.4,39.9\n2000.0,116.5,39.8\n"
	table, err := readCSV(strings.NewReader(in), Columns{Time: "t", Lon: "x", Lat: "y"})
	require.NoError(t, err)
	require.Equal(t, 2, table.Len())
	assert.Equal(t, int64(2000), table.Rows[1].Timestamp)
}

func TestReadCSVStripsBOM(t *testing.T) {
	in := "\ufeffgeoTime,longitude,latitude\n1,2,3\n"
	table, err := readCSV(strings.NewReader(in), DefaultColumns())
	require.NoError(t, err)
	assert.Equal(t, "geoTime", table.Header[0])
}

func TestReadCSVRejectsNonFinite(t *testing.T) {
	in := "geoTime,longitude,latitude\n1,NaN,3\n2,Inf,3\n3,1,2\n"
	table, err := readCSV(strings.NewReader(in), DefaultColumns())
	require.NoError(t, err)
	assert.Equal(t, 1, table.Len())
	assert.Equal(t, 2, table.Skipped)
}

func TestPrepare(t *testing.T) {
	table, err := readCSV(strings.NewReader(sampleCSV), DefaultColumns())
	require.NoError(t, err)

	stats := Prepare(table)

	assert.Equal(t, PrepareStats{Input: 5, Duplicates: 1, Output: 4, Reordered: true}, stats)
	var ts []int64
	for _, r := range table.Rows {
		ts = append(ts, r.Timestamp)
	}
	assert.Equal(t, []int64{1650072179000, 1650072180000, 1650072181000, 1650072183000}, ts)

	// keep-first: the 120.00005 row appears before the 121.0 row in the file
	assert.Equal(t, 120.00005, table.Rows[1].Lon)

	again := Prepare(table)
	assert.False(t, again.Reordered)
	assert.Zero(t, again.Duplicates)
}

func TestWriteCSV(t *testing.T) {
	in := "geoTime,longitude,latitude,speed\n1000,120,30,1.5\n2000,120.0001,30\n"
	table, err := readCSV(strings.NewReader(in), DefaultColumns())
	require.NoError(t, err)

	results := []repair.Result{
		{Index: 0, Point: table.Rows[0].Point, Outcome: repair.Outcome{Decision: repair.Start, Coord: table.Rows[0].Coord}},
		{Index: 1, Point: table.Rows[1].Point, Outcome: repair.Outcome{Decision: repair.Repaired, Coord: geo.Coord{Lon: 119.99, Lat: 30.01}}},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, table, results))

	want := "geoTime,longitude,latitude,speed,clean_longitude,clean_latitude,repair_note\n" +
		"1000,120,30,1.5,120,30,Start\n" +
		"2000,120.0001,30,,119.99,30.01,REPAIRED (GCJ->WGS)\n"
	assert.Equal(t, want, buf.String())

	assert.Error(t, WriteCSV(&buf, table, results[:1]))
}

func TestWriteCSVKeepsExtraFields(t *testing.T) {
	in := "geoTime,longitude,latitude\n1000,120,30,a,b\n2000,120.0001,30\n"
	table, err := readCSV(strings.NewReader(in), DefaultColumns())
	require.NoError(t, err)

	results := make([]repair.Result, len(table.Rows))
	for i, row := range table.Rows {
		results[i] = repair.Result{Index: i, Point: row.Point, Outcome: repair.Outcome{Decision: repair.Original, Coord: row.Coord}}
	}

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, table, results))

	want := "geoTime,longitude,latitude,,,clean_longitude,clean_latitude,repair_note\n" +
		"1000,120,30,a,b,120,30,Original\n" +
		"2000,120.0001,30,,,120.0001,30,Original\n"
	assert.Equal(t, want, buf.String())
}

func TestWriteCSVWithoutPassthrough(t *testing.T) {
	table := FromPoints([]repair.Point{{Timestamp: 5, Coord: geo.Coord{Lon: 1.5, Lat: 2.25}}})
	results := []repair.Result{{Point: table.Rows[0].Point, Outcome: repair.Outcome{Decision: repair.Start, Coord: table.Rows[0].Coord}}}

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, table, results))
	assert.Equal(t, "geoTime,longitude,latitude,clean_longitude,clean_latitude,repair_note\n5,1.5,2.25,1.5,2.25,Start\n", buf.String())
}

func TestSliceLines(t *testing.T) {
	records, err := ReadRecords(strings.NewReader("h\n2\n3\n4\n5\n"))
	require.NoError(t, err)

	tests := []struct {
		name       string
		start, end int
		want       []string
	}{
		{"middle", 2, 3, []string{"h", "2", "3"}},
		{"from header", 1, 2, []string{"h", "2"}},
		{"past the end", 4, 100, []string{"h", "4", "5"}},
		{"beyond table", 10, 20, []string{"h"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := SliceLines(records, tt.start, tt.end)
			require.NoError(t, err)
			var got []string
			for _, r := range out {
				got = append(got, r[0])
			}
			assert.Equal(t, tt.want, got)
		})
	}

	_, err = SliceLines(records, 0, 3)
	assert.Error(t, err)
	_, err = SliceLines(records, 3, 2)
	assert.Error(t, err)
}

func TestSliceTime(t *testing.T) {
	records, err := ReadRecords(strings.NewReader(sampleCSV))
	require.NoError(t, err)

	out, err := SliceTime(records, "geoTime", timeconv.Window{Start: 1650072180000, End: 1650072182000})
	require.NoError(t, err)

	require.Len(t, out, 5)
	assert.Equal(t, "geoTime", out[0][0])
	for _, r := range out[1:] {
		assert.Contains(t, []string{"1650072180000", "1650072181000", "1650072182000"}, r[0])
	}

	_, err = SliceTime(records, "time", timeconv.Window{})
	assert.ErrorIs(t, err, ErrMissingColumn)
}

func TestSliceApply(t *testing.T) {
	records, err := ReadRecords(strings.NewReader(sampleCSV))
	require.NoError(t, err)
	loc, err := timeconv.Zone(2)
	require.NoError(t, err)

	out, err := Slice{}.Apply(records, "geoTime", loc)
	require.NoError(t, err)
	assert.Equal(t, records, out)

	out, err = Slice{Mode: SliceByLine, Start: "2", End: "3"}.Apply(records, "geoTime", loc)
	require.NoError(t, err)
	assert.Len(t, out, 3)

	// 1650072179000 is 2022-04-16 03:22:59 at UTC+2
	out, err = Slice{Mode: SliceByTime, Start: "2022-04-16 03:22:59", End: "2022-04-16 03:22:59"}.Apply(records, "geoTime", loc)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "1650072179000", out[1][0])

	_, err = Slice{Mode: SliceByLine, Start: "two", End: "3"}.Apply(records, "geoTime", loc)
	assert.Error(t, err)
	_, err = Slice{Mode: "hours"}.Apply(records, "geoTime", loc)
	assert.Error(t, err)
}

func TestParquetRoundTrip(t *testing.T) {
	points := []repair.Point{
		{Timestamp: 1000, Coord: geo.Coord{Lon: 120, Lat: 30}},
		{Timestamp: 2000, Coord: geo.Coord{Lon: 120.0001, Lat: 30.0001}},
	}

	var buf bytes.Buffer
	require.NoError(t, writePoints(&buf, points))

	table, err := ReadParquet(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	require.NoError(t, err)
	assert.Equal(t, points, table.Points())
	assert.Zero(t, table.Skipped)
}

func TestWriteParquetResults(t *testing.T) {
	report, err := repair.Run(t.Context(), repair.DefaultConfig(), []repair.Point{
		{Timestamp: 1000, Coord: geo.Coord{Lon: 120, Lat: 30}},
		{Timestamp: 2000, Coord: geo.ToGCJ(geo.Coord{Lon: 120.0001, Lat: 30})},
	})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, WriteParquet(&buf, report.Results))

	rows, err := readParquetRows[ParquetResult](buf.Bytes())
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "START", rows[0].Decision)
	assert.Equal(t, "REPAIRED", rows[1].Decision)
	assert.Equal(t, "REPAIRED (GCJ->WGS)", rows[1].RepairNote)
	assert.Equal(t, report.Results[1].Coord.Lon, rows[1].CleanLongitude)
}

func TestAuditWriters(t *testing.T) {
	c := geo.Coord{Lon: 120, Lat: 30}
	points := []repair.Point{
		{Timestamp: 1000, Coord: c},
		{Timestamp: 2000, Coord: geo.Coord{Lon: 120.00005, Lat: 30}},
		{Timestamp: 3000, Coord: geo.Coord{Lon: 120.0001, Lat: 30}},
		{Timestamp: 4000, Coord: geo.Coord{Lon: 120.00015, Lat: 30}},
	}
	report, err := repair.Run(t.Context(), repair.DefaultConfig(), points)
	require.NoError(t, err)
	audits := report.Audits()
	require.Len(t, audits, 3)

	rows := AuditRows(audits)
	assert.Nil(t, rows[0].PriorLon)
	assert.Nil(t, rows[0].FwdRawAngle)
	assert.NotNil(t, rows[0].BwdRawAngle)
	assert.NotNil(t, rows[1].PriorLon)
	assert.NotNil(t, rows[1].FwdFixAngle)
	assert.Nil(t, rows[1].BwdSharp)

	var csvBuf bytes.Buffer
	require.NoError(t, WriteAuditCSV(&csvBuf, audits))
	records, err := ReadRecords(&csvBuf)
	require.NoError(t, err)
	require.Len(t, records, 4)
	assert.Equal(t, auditHeader, records[0])
	for _, rec := range records[1:] {
		assert.Len(t, rec, len(auditHeader))
	}
	assert.Equal(t, "1", records[1][0])
	assert.Equal(t, "2000", records[1][1])
	assert.Empty(t, records[1][4], "prior_lon is blank without a prior")

	var pqBuf bytes.Buffer
	require.NoError(t, WriteAuditParquet(&pqBuf, audits))
	back, err := readParquetRows[AuditRow](pqBuf.Bytes())
	require.NoError(t, err)
	assert.Equal(t, rows, back)
}

func TestNewAuditRowLookahead(t *testing.T) {
	a := repair.Audit{
		Index:           3,
		LookaheadUsed:   true,
		LookaheadMargin: 20,
		CostRaw:         150,
		CostFix:         90,
		Decision:        repair.LookaheadFix,
	}
	row := NewAuditRow(a)
	assert.Equal(t, "FIX", row.LookaheadDecision)
	require.NotNil(t, row.CostFix)
	assert.Equal(t, 90.0, *row.CostFix)
	assert.Equal(t, "REPAIRED (via LOOKAHEAD)", row.Note)

	a.Decision = repair.LookaheadRaw
	assert.Equal(t, "RAW", NewAuditRow(a).LookaheadDecision)

	a.LookaheadUsed = false
	row = NewAuditRow(a)
	assert.Empty(t, row.LookaheadDecision)
	assert.Nil(t, row.CostRaw)
}

func TestReadFIT(t *testing.T) {
	start := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)

	fit := &proto.FIT{Messages: []proto.Message{
		mesgdef.NewFileId(nil).
			SetType(typedef.FileActivity).
			SetManufacturer(typedef.ManufacturerDevelopment).
			SetProduct(1).
			SetTimeCreated(start).
			ToMesg(nil),
	}}
	coords := []geo.Coord{{Lon: 121.47, Lat: 31.23}, {Lon: 121.4701, Lat: 31.2301}}
	for i, c := range coords {
		rec := mesgdef.NewRecord(nil).
			SetTimestamp(start.Add(time.Duration(i) * time.Second)).
			SetPositionLat(semicircles(c.Lat)).
			SetPositionLong(semicircles(c.Lon))
		fit.Messages = append(fit.Messages, rec.ToMesg(nil))
	}
	// a record with no position fix
	fit.Messages = append(fit.Messages, mesgdef.NewRecord(nil).
		SetTimestamp(start.Add(5*time.Second)).
		SetHeartRate(120).
		ToMesg(nil))

	var buf bytes.Buffer
	require.NoError(t, encoder.New(&buf).Encode(fit))

	table, err := ReadFIT(&buf)
	require.NoError(t, err)
	require.Equal(t, 2, table.Len())
	assert.Equal(t, 1, table.Skipped)

	for i, row := range table.Rows {
		assert.Equal(t, start.Add(time.Duration(i)*time.Second).UnixMilli(), row.Timestamp)
		assert.InDelta(t, coords[i].Lon, row.Lon, 1e-6)
		assert.InDelta(t, coords[i].Lat, row.Lat, 1e-6)
	}
}

func TestTableCut(t *testing.T) {
	points := make([]repair.Point, 5)
	for i := range points {
		points[i] = repair.Point{Timestamp: int64(i+1) * 1000, Coord: geo.Coord{Lon: 120, Lat: 30}}
	}
	loc, err := timeconv.Zone(0)
	require.NoError(t, err)

	timestamps := func(tb *Table) []int64 {
		var out []int64
		for _, r := range tb.Rows {
			out = append(out, r.Timestamp)
		}
		return out
	}

	tb := FromPoints(points)
	// lines 3-4 are the second and third data rows
	require.NoError(t, tb.Cut(Slice{Mode: SliceByLine, Start: "3", End: "4"}, loc))
	assert.Equal(t, []int64{2000, 3000}, timestamps(tb))

	tb = FromPoints(points)
	require.NoError(t, tb.Cut(Slice{Mode: SliceByLine, Start: "1", End: "100"}, loc))
	assert.Len(t, tb.Rows, 5)

	tb = FromPoints(points)
	require.NoError(t, tb.Cut(Slice{Mode: SliceByLine, Start: "50", End: "100"}, loc))
	assert.Empty(t, tb.Rows)

	tb = FromPoints(points)
	require.NoError(t, tb.Cut(Slice{Mode: SliceByTime, Start: "1970-01-01 00:00:02", End: "1970-01-01 00:00:04"}, loc))
	assert.Equal(t, []int64{2000, 3000, 4000}, timestamps(tb))

	tb = FromPoints(points)
	assert.Error(t, tb.Cut(Slice{Mode: SliceByLine, Start: "4", End: "3"}, loc))
}
