package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/arloliu/go-ivscan/device"
	"github.com/arloliu/go-ivscan/gpib"
	"github.com/arloliu/go-ivscan/scpi"
)

// Address flags shared by probe and query.
var (
	addrPrimary   int
	addrSecondary int
	addrRole      string
)

func addAddressFlags(cmd *cobra.Command) {
	cmd.Flags().IntVar(&addrPrimary, "primary", 0, "GPIB primary address (0-30)")
	cmd.Flags().IntVar(&addrSecondary, "secondary", 0, "GPIB secondary address (0 = none)")
	cmd.Flags().StringVar(&addrRole, "role", string(device.RoleSensor),
		"instrument role, selects the simulated instrument with --sim")
	_ = cmd.MarkFlagRequired("primary")
}

var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Reset one instrument and print its identification and a reading",
	Long: `Open one instrument, reset it, then print the lines answered to *IDN?
and :READ?. Useful to check the wiring and the address before a scan.

Examples:
  ivscan probe --primary 22
  ivscan probe --primary 24 --role source --sim`,
	Args: cobra.NoArgs,
	RunE: runProbe,
}

func init() {
	addAddressFlags(probeCmd)
	rootCmd.AddCommand(probeCmd)
}

// openSingle opens the instrument selected by the address flags.
func openSingle(ctx context.Context) (*device.Device, error) {
	cfg, l, err := loadBusConfig()
	if err != nil {
		return nil, err
	}
	role, err := device.ParseRole(addrRole)
	if err != nil {
		return nil, err
	}
	addr, err := gpib.NewAddress(addrPrimary, addrSecondary)
	if err != nil {
		return nil, err
	}

	b, err := newBus(cfg, l)
	if err != nil {
		return nil, err
	}

	return b.openDevice(ctx, role, addr, device.CommandSet{})
}

func runProbe(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	d, err := openSingle(ctx)
	if err != nil {
		return err
	}
	defer d.Close(ctx) //nolint:errcheck

	w := cmd.OutOrStdout()
	for _, query := range []string{scpi.Identify, scpi.Read} {
		lines, err := d.Fetch(ctx, query)
		if err != nil {
			return err
		}
		for _, line := range lines {
			fmt.Fprintf(w, "%s %s\n", query, line)
		}
	}

	return nil
}
