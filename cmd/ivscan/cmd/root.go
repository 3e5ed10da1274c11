package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	configPath string
	simulate   bool
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "ivscan",
	Short: "ivscan - current-voltage scans over GPIB",
	Long: `ivscan drives a voltage source and a picoammeter through a Prologix GPIB
controller to record current-voltage characteristics.

Examples:
  ivscan scan -c ivscan.yaml               # Full IV scan
  ivscan scan -c ivscan.yaml --sim         # Same plan against the simulated bench
  ivscan timeseries -c ivscan.yaml -V 1    # 1000 readings at 1 V
  ivscan probe --primary 22                # *IDN? and :READ? of one instrument
  ivscan query --primary 24 --type float ":SOUR:VOLT:LEV?"
  ivscan rampdown -c ivscan.yaml --step 50 # Bring a biased source back to 0 V
  ivscan runs -c ivscan.yaml               # Runs stored in SQLite`,
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "",
		"configuration file (default $IVSCAN_CONFIG or ivscan.yaml)")
	rootCmd.PersistentFlags().BoolVar(&simulate, "sim", false,
		"use the simulated bench instead of the configured bus")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false,
		"log every bus transaction")
}
