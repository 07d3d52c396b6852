package main

import (
	"bufio"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/planbiir/gcjfix/internal/timeconv"
	"github.com/planbiir/gcjfix/internal/track"
)

func newCutCmd(a *app) *cobra.Command {
	var (
		input, output string
		timeCol       string
		mode          string
		start, end    string
		tz            float64
	)

	cmd := &cobra.Command{
		Use:   "cut",
		Short: "Cut a CSV track by line numbers or by local time",
		Example: `  gcjfix cut -i track.csv -o part.csv --mode line --start 2 --end 5001
  gcjfix cut -i track.csv -o part.csv --mode time --start "2022-04-16 03:22:00" --end "2022-04-16 04:00:00" --tz 8`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fl := cmd.Flags()
			if !fl.Changed("tz") {
				tz = a.cfg.Input.TZOffsetHours
			}
			if !fl.Changed("time-column") {
				timeCol = a.cfg.Input.Columns.Time
			}
			loc, err := timeconv.Zone(tz)
			if err != nil {
				return usageError{err}
			}
			s := track.Slice{Mode: track.SliceMode(mode), Start: start, End: end}
			if s.Mode != track.SliceByLine && s.Mode != track.SliceByTime {
				return usageError{fmt.Errorf("invalid mode %q, want line or time", mode)}
			}
			return runCut(cmd, input, output, timeCol, s, loc)
		},
	}

	fl := cmd.Flags()
	fl.StringVarP(&input, "input", "i", "", "Input CSV file")
	fl.StringVarP(&output, "output", "o", "", "Output CSV file")
	fl.StringVar(&timeCol, "time-column", "", "Timestamp column (epoch ms)")
	fl.StringVar(&mode, "mode", "", "Slice mode: line or time")
	fl.StringVar(&start, "start", "", "First line number or \"YYYY-MM-DD HH:MM:SS\"")
	fl.StringVar(&end, "end", "", "Last line number or \"YYYY-MM-DD HH:MM:SS\"")
	fl.Float64Var(&tz, "tz", 0, "UTC offset in hours for time bounds")
	for _, name := range []string{"input", "output", "mode", "start", "end"} {
		_ = cmd.MarkFlagRequired(name)
	}
	return cmd
}

func runCut(cmd *cobra.Command, input, output, timeCol string, s track.Slice, loc *time.Location) (err error) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "📖 Reading CSV file: %s\n", input)

	in, err := os.Open(input)
	if err != nil {
		return fmt.Errorf("failed to open file: %w", err)
	}
	defer in.Close()

	records, err := track.ReadRecords(in)
	if err != nil {
		return err
	}
	kept, err := s.Apply(records, timeCol, loc)
	if err != nil {
		return err
	}

	f, err := os.Create(output)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer func() {
		if cerr := f.Close(); err == nil && cerr != nil {
			err = cerr
		}
	}()

	bw := bufio.NewWriter(f)
	if err := track.WriteRecords(bw, kept); err != nil {
		return err
	}
	if err := bw.Flush(); err != nil {
		return err
	}

	fmt.Fprintf(out, "💾 Writing cut track: %s\n", output)
	fmt.Fprintf(out, "✅ Kept %d of %d rows\n", max(len(kept)-1, 0), max(len(records)-1, 0))
	return nil
}
