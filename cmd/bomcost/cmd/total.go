package cmd

import (
	"context"
	"fmt"
	"strconv"

	"github.com/bitfantasy/nimo-bom/internal/costing"
	"github.com/spf13/cobra"
)

// totalCmd represents the total command
var totalCmd = &cobra.Command{
	Use:   "total <bom-id>",
	Short: "Print the total cost of a BOM in the base currency",
	Args:  cobra.ExactArgs(1),
	RunE:  runTotal,
}

func runTotal(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	id, err := strconv.ParseUint(args[0], 10, 64)
	if err != nil || id == 0 {
		return fmt.Errorf("invalid BOM id: %s", args[0])
	}

	svc, err := newServices(ctx)
	if err != nil {
		return err
	}
	defer svc.logger.Sync()

	total, err := svc.costing.ComputeTotalCost(ctx, uint(id))
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s %s\n", total.Total.StringFixed(costing.TotalScale), total.Currency)
	if total.FXDegraded {
		fmt.Fprintln(out, "warning: exchange rates unavailable, total covers base-currency lines only")
	}
	return nil
}
