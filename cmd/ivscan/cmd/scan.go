package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/arloliu/go-ivscan/scan"
)

var (
	scanRunID string
	scanJSON  bool
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Run the configured IV scan",
	Long: `Run the ramp plan of the configuration file: verify both instruments,
step the source through the ramp voltages and average the sensor readings of
every stage. A stage at the test voltage runs the stability test instead.

Interrupting the command aborts the run; the source is ramped down when the
plan enables it.

Examples:
  ivscan scan -c ivscan.yaml
  ivscan scan -c ivscan.yaml --sim --json
  ivscan scan -c ivscan.yaml --run-id wafer7-diode3`,
	Args: cobra.NoArgs,
	RunE: runScan,
}

func init() {
	scanCmd.Flags().StringVar(&scanRunID, "run-id", "", "run identifier (default random UUID)")
	scanCmd.Flags().BoolVar(&scanJSON, "json", false, "print the result as JSON")
	rootCmd.AddCommand(scanCmd)
}

func runScan(cmd *cobra.Command, _ []string) error {
	cfg, l, err := loadConfig()
	if err != nil {
		return err
	}
	plan, err := cfg.Plan.RampPlan()
	if err != nil {
		return err
	}

	s, err := newSession(cmd.Context(), cfg, l, plan, scanRunID)
	if err != nil {
		return err
	}
	defer s.close()

	result, runErr := s.controller.Run(s.ctx)
	if result != nil {
		if err := printResult(cmd.OutOrStdout(), result, scanJSON); err != nil {
			return err
		}
	}

	return runErr
}

func printResult(w io.Writer, result *scan.Result, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")

		return enc.Encode(result)
	}

	fmt.Fprintf(w, "Run %s: %s (%d points, %d stability samples)\n",
		result.RunID, result.State, len(result.Points), len(result.Stability))
	if len(result.Points) == 0 {
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "STAGE\tVOLTAGE (V)\tMEAN (A)\tSTDDEV (A)\tSAMPLES")
	for _, p := range result.Points {
		fmt.Fprintf(tw, "%d\t%g\t%.6E\t%.6E\t%d\n", p.Stage, p.Voltage, p.Mean, p.StdDev, p.Samples)
	}

	return tw.Flush()
}
