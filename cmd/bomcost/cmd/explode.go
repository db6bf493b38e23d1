package cmd

import (
	"context"
	"fmt"
	"strconv"

	"github.com/bitfantasy/nimo-bom/internal/costing"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	bomName      string
	depth        int
	aggregate    bool
	outputFormat string
	exportFile   string
)

// explodeCmd represents the explode command
var explodeCmd = &cobra.Command{
	Use:   "explode [bom-id]",
	Short: "Explode a BOM into priced lines",
	Long: `Expand a BOM breadth-first up to --depth levels and price every
leaf line. Sub-assemblies are listed but never priced themselves.

Examples:
  bomcost explode 12
  bomcost explode --name BIKE-01 --depth 2 --aggregate
  bomcost explode 12 --export bike.xlsx`,
	Args: cobra.MaximumNArgs(1),
	RunE: runExplode,
}

func init() {
	explodeCmd.Flags().StringVarP(&bomName, "name", "n", "", "look up the BOM by name (case-insensitive)")
	explodeCmd.Flags().IntVarP(&depth, "depth", "d", 0, "expansion depth (default from config)")
	explodeCmd.Flags().BoolVarP(&aggregate, "aggregate", "a", false, "include per-SKU quantity totals")
	explodeCmd.Flags().StringVarP(&outputFormat, "format", "f", "table", "output format (table, json)")
	explodeCmd.Flags().StringVarP(&exportFile, "export", "o", "", "write the explosion to an xlsx file")
}

func runExplode(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	if (len(args) == 0) == (bomName == "") {
		return fmt.Errorf("specify either a BOM id or --name")
	}

	svc, err := newServices(ctx)
	if err != nil {
		return err
	}
	defer svc.logger.Sync()

	req := costing.ExplodeRequest{
		Name:         bomName,
		Depth:        svc.costing.Settings().DefaultDepth,
		Aggregate:    aggregate,
		BaseCurrency: baseCurrency,
	}
	if cmd.Flags().Changed("depth") {
		req.Depth = depth
	}
	if len(args) > 0 {
		id, err := strconv.ParseUint(args[0], 10, 64)
		if err != nil || id == 0 {
			return fmt.Errorf("invalid BOM id: %s", args[0])
		}
		req.BOMID = uint(id)
	}

	var e *costing.Explosion
	if req.BOMID != 0 {
		e, err = svc.costing.Explode(ctx, req)
	} else {
		e, err = svc.costing.ExplodeByName(ctx, req)
	}
	if err != nil {
		return err
	}

	if exportFile != "" {
		// 导出使用已解析的 ID，避免再次按名称查找
		req.BOMID = e.BOMID
		f, _, err := svc.costing.ExportExplosion(ctx, req)
		if err != nil {
			return err
		}
		defer f.Close()
		if err := f.SaveAs(exportFile); err != nil {
			return fmt.Errorf("failed to write %s: %w", exportFile, err)
		}
		svc.logger.Info("Explosion exported", zap.String("file", exportFile))
	}

	switch outputFormat {
	case "json":
		return printJSON(cmd.OutOrStdout(), e)
	case "table":
		return printExplosion(cmd.OutOrStdout(), e)
	default:
		return fmt.Errorf("unknown format: %s", outputFormat)
	}
}
