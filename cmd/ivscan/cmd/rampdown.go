package cmd

import (
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/arloliu/go-ivscan/device"
	"github.com/arloliu/go-ivscan/messenger"
	"github.com/arloliu/go-ivscan/scan"
)

var (
	rampStep   float64
	rampSettle time.Duration
)

var rampDownCmd = &cobra.Command{
	Use:   "rampdown",
	Short: "Walk a biased source back to 0 V",
	Long: `Read the present level of the configured source and command it toward
0 V in steps of at most --step volts, waiting --settle after each step.

The source is not reset, so a source left biased by an interrupted run is
brought down gradually instead of dropping to 0 V at once.

Examples:
  ivscan rampdown -c ivscan.yaml
  ivscan rampdown -c ivscan.yaml --step 20 --settle 5s`,
	Args: cobra.NoArgs,
	RunE: runRampDown,
}

func init() {
	rampDownCmd.Flags().Float64Var(&rampStep, "step", 50, "largest voltage step")
	rampDownCmd.Flags().DurationVar(&rampSettle, "settle", 2*time.Second, "wait after each step")
	rootCmd.AddCommand(rampDownCmd)
}

func runRampDown(cmd *cobra.Command, _ []string) error {
	cfg, l, err := loadConfig()
	if err != nil {
		return err
	}
	addr, err := cfg.Source.Address.Address()
	if err != nil {
		return err
	}

	b, err := newBus(cfg, l)
	if err != nil {
		return err
	}
	tr, err := b.transport(device.RoleSource)
	if err != nil {
		return err
	}
	opts, err := b.messengerOptions()
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// A messenger rather than a device: opening a device resets the source.
	msg, err := messenger.New(ctx, tr, addr, opts...)
	if err != nil {
		return err
	}
	defer msg.Close() //nolint:errcheck

	levels, err := scan.RampToZero(ctx, msg, rampStep, rampSettle, nil, l)
	for _, v := range levels {
		fmt.Fprintf(cmd.OutOrStdout(), "%g V\n", v)
	}
	if err != nil {
		return err
	}
	if len(levels) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "source already at 0 V")
	}

	return nil
}
