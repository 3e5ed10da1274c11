package cmd

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

var runsLimit int

var runsCmd = &cobra.Command{
	Use:   "runs [RUN_ID]",
	Short: "List the runs stored in SQLite, or show the points of one run",
	Long: `Read the SQLite output of the configuration file. Without an argument
the most recent runs are listed; with a run id its points are printed.

Examples:
  ivscan runs -c ivscan.yaml
  ivscan runs -c ivscan.yaml 0b9e4c1e-7c55-4a43-8d43-4f4a3bc0a6d9`,
	Args: cobra.MaximumNArgs(1),
	RunE: runRuns,
}

func init() {
	runsCmd.Flags().IntVarP(&runsLimit, "limit", "n", 20, "number of runs listed")
	rootCmd.AddCommand(runsCmd)
}

func runRuns(cmd *cobra.Command, args []string) error {
	cfg, l, err := loadConfig()
	if err != nil {
		return err
	}
	st, err := openStore(cfg, l)
	if err != nil {
		return err
	}
	defer st.Close() //nolint:errcheck

	ctx := cmd.Context()
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)

	if len(args) == 0 {
		runs, err := st.Runs(ctx, runsLimit)
		if err != nil {
			return err
		}
		fmt.Fprintln(tw, "RUN\tSTATE\tSTARTED\tDURATION\tPOINTS")
		for _, r := range runs {
			duration := "-"
			if r.Finished() {
				duration = r.FinishedAt.Sub(r.StartedAt).Round(time.Second).String()
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\n",
				r.ID, r.State, r.StartedAt.Local().Format(time.DateTime), duration, r.Points)
		}

		return tw.Flush()
	}

	run, err := st.Run(ctx, args[0])
	if err != nil {
		return err
	}
	points, err := st.Points(ctx, run.ID)
	if err != nil {
		return err
	}

	fmt.Fprintf(tw, "Run %s: %s\n", run.ID, run.State)
	if run.Error != "" {
		fmt.Fprintf(tw, "Error: %s\n", run.Error)
	}
	fmt.Fprintln(tw, "STAGE\tVOLTAGE (V)\tMEAN (A)\tSTDDEV (A)\tSAMPLES")
	for _, p := range points {
		fmt.Fprintf(tw, "%d\t%g\t%.6E\t%.6E\t%d\n", p.Stage, p.Voltage, p.Mean, p.StdDev, p.Samples)
	}

	return tw.Flush()
}
