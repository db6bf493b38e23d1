package cmd

import (
	"context"
	"fmt"
	"strconv"

	"github.com/bitfantasy/nimo-bom/internal/margin"
	"github.com/spf13/cobra"
)

// marginCmd represents the margin command
var marginCmd = &cobra.Command{
	Use:   "margin [bom-id]",
	Short: "Compare BOM cost with the list price of the finished item",
	Long: `Without an id, prints the margin report for every BOM.

The list price is taken from the item whose SKU matches the BOM name.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runMargin,
}

func init() {
	marginCmd.Flags().StringVarP(&outputFormat, "format", "f", "table", "output format (table, json)")
}

func runMargin(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	svc, err := newServices(ctx)
	if err != nil {
		return err
	}
	defer svc.logger.Sync()

	var items []margin.BOMMargin
	if len(args) > 0 {
		id, err := strconv.ParseUint(args[0], 10, 64)
		if err != nil || id == 0 {
			return fmt.Errorf("invalid BOM id: %s", args[0])
		}
		m, err := svc.margin.BOMMargin(ctx, uint(id))
		if err != nil {
			return err
		}
		items = []margin.BOMMargin{*m}
	} else {
		report, err := svc.margin.Report(ctx)
		if err != nil {
			return err
		}
		items = report.Items
	}

	switch outputFormat {
	case "json":
		return printJSON(cmd.OutOrStdout(), items)
	case "table":
		return printMargins(cmd.OutOrStdout(), items)
	default:
		return fmt.Errorf("unknown format: %s", outputFormat)
	}
}
