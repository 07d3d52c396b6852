package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/planbiir/gcjfix/internal/timeconv"
)

func newGeotimeCmd(a *app) *cobra.Command {
	var tz float64

	cmd := &cobra.Command{
		Use:   "geotime",
		Short: "Convert between epoch milliseconds and local wall-clock time",
	}
	cmd.PersistentFlags().Float64Var(&tz, "tz", 0, "UTC offset in hours (default: from config)")

	zone := func(cmd *cobra.Command) (*time.Location, error) {
		if !cmd.Flags().Changed("tz") {
			tz = a.cfg.Input.TZOffsetHours
		}
		loc, err := timeconv.Zone(tz)
		if err != nil {
			return nil, usageError{err}
		}
		return loc, nil
	}

	cmd.AddCommand(&cobra.Command{
		Use:     "format <millis>",
		Short:   "Format epoch milliseconds as local time",
		Example: "  gcjfix geotime format 1650072179000 --tz 8",
		Args:    exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			millis, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return usageError{fmt.Errorf("invalid timestamp %q", args[0])}
			}
			loc, err := zone(cmd)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), timeconv.Format(millis, loc))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:     "parse <YYYY-MM-DD HH:MM:SS>",
		Short:   "Parse local time into epoch milliseconds",
		Example: `  gcjfix geotime parse "2022-04-16 03:22:00"`,
		Args:    exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			loc, err := zone(cmd)
			if err != nil {
				return err
			}
			millis, err := timeconv.Parse(args[0], loc)
			if err != nil {
				return usageError{err}
			}
			fmt.Fprintln(cmd.OutOrStdout(), millis)
			return nil
		},
	})
	return cmd
}
