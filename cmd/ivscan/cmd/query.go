package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/arloliu/go-ivscan/device"
)

var queryType string

var queryCmd = &cobra.Command{
	Use:   "query CMD",
	Short: "Send one query and decode the answer as a typed value",
	Long: `Open one instrument and send CMD, decoding the single answer line with
the typed answer grammar: string, int or float.

Examples:
  ivscan query --primary 24 --type float ":SOUR:VOLT:LEV?"
  ivscan query --primary 22 "*IDN?"`,
	Args: cobra.ExactArgs(1),
	RunE: runQuery,
}

func init() {
	addAddressFlags(queryCmd)
	queryCmd.Flags().StringVarP(&queryType, "type", "t", "string", "answer type: string, int or float")
	rootCmd.AddCommand(queryCmd)
}

func runQuery(cmd *cobra.Command, args []string) error {
	switch queryType {
	case "string", "int", "float":
	default:
		return fmt.Errorf("unknown answer type %q", queryType)
	}

	ctx := cmd.Context()
	d, err := openSingle(ctx)
	if err != nil {
		return err
	}
	defer d.Close(ctx) //nolint:errcheck

	var answer any
	switch queryType {
	case "string":
		answer, err = device.Get[string](ctx, d, args[0])
	case "int":
		answer, err = device.Get[int](ctx, d, args[0])
	case "float":
		answer, err = device.Get[float64](ctx, d, args[0])
	}
	if err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), answer)

	return nil
}
