package cmd

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var (
	tsVoltage float64
	tsSamples int
	tsRunID   string
	tsJSON    bool
)

var timeSeriesCmd = &cobra.Command{
	Use:   "timeseries",
	Short: "Record consecutive sensor readings at a fixed voltage",
	Long: `Verify and initialise both instruments, apply one voltage and take
consecutive sensor readings without a settle wait. The source is commanded
back to 0 V afterwards.

The ramp settings of the configuration file are not used.

Examples:
  ivscan timeseries -c ivscan.yaml -V 1
  ivscan timeseries -c ivscan.yaml -V -50 --samples 200 --json`,
	Args: cobra.NoArgs,
	RunE: runTimeSeries,
}

func init() {
	timeSeriesCmd.Flags().Float64VarP(&tsVoltage, "voltage", "V", 0, "applied voltage")
	timeSeriesCmd.Flags().IntVar(&tsSamples, "samples", 1000, "number of readings")
	timeSeriesCmd.Flags().StringVar(&tsRunID, "run-id", "", "run identifier (default random UUID)")
	timeSeriesCmd.Flags().BoolVar(&tsJSON, "json", false, "print the readings as JSON")
	rootCmd.AddCommand(timeSeriesCmd)
}

func runTimeSeries(cmd *cobra.Command, _ []string) error {
	cfg, l, err := loadConfig()
	if err != nil {
		return err
	}
	plan, err := cfg.Plan.RampPlan()
	if err != nil {
		return err
	}

	s, err := newSession(cmd.Context(), cfg, l, plan, tsRunID)
	if err != nil {
		return err
	}
	defer s.close()

	points, runErr := s.controller.RunTimeSeries(s.ctx, tsVoltage, tsSamples)

	w := cmd.OutOrStdout()
	if tsJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(points); err != nil {
			return err
		}

		return runErr
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TIMESTAMP\tCURRENT (A)")
	for _, p := range points {
		fmt.Fprintf(tw, "%d\t%.6E\n", p.Timestamp, p.Value)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	return runErr
}
