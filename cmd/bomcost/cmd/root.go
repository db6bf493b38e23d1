// Package cmd provides the CLI commands for bomcost.
package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/bitfantasy/nimo-bom/internal/bom/repository"
	"github.com/bitfantasy/nimo-bom/internal/config"
	"github.com/bitfantasy/nimo-bom/internal/costing"
	"github.com/bitfantasy/nimo-bom/internal/margin"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	fixtureFile  string
	baseCurrency string
	verbose      bool
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "bomcost",
	Short: "Explode and cost multi-level BOMs",
	Long: `bomcost expands a BOM into its component lines, prices every leaf
from the latest vendor price and rolls the result up into totals in the
base currency.

Data is read from the database configured in configs/config.yaml (or the
DB_* environment variables), or from a JSON fixture with --fixture.

Examples:
  bomcost explode 12 --depth 3 --aggregate
  bomcost explode --name BIKE-01 --format json
  bomcost total 12 --currency EUR
  bomcost margin --fixture configs/fixture.example.json`,
	SilenceUsage: true,
}

// Execute runs the CLI
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&fixtureFile, "fixture", "", "read data from a JSON fixture instead of the database")
	rootCmd.PersistentFlags().StringVarP(&baseCurrency, "currency", "c", "", "base currency (default from config)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")

	rootCmd.AddCommand(explodeCmd)
	rootCmd.AddCommand(totalCmd)
	rootCmd.AddCommand(marginCmd)
}

// services 按 --fixture 或数据库配置组装服务
type services struct {
	costing *costing.Service
	margin  *margin.Service
	logger  *zap.Logger
}

func newServices(ctx context.Context) (*services, error) {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger, err := newLogger()
	if err != nil {
		return nil, fmt.Errorf("failed to init logger: %w", err)
	}

	var (
		repo    costing.Repository
		catalog margin.Catalog
	)
	if fixtureFile != "" {
		store, err := loadFixture(fixtureFile)
		if err != nil {
			return nil, err
		}
		repo, catalog = store, store
		logger.Debug("Using fixture", zap.String("file", fixtureFile))
	} else {
		db, err := repository.Open(ctx, cfg.Database)
		if err != nil {
			return nil, err
		}
		r := repository.NewCostingRepository(db)
		repo, catalog = r, r
	}

	settings := costing.Settings{
		BaseCurrency: cfg.Costing.BaseCurrency,
		DefaultDepth: cfg.Costing.DefaultDepth,
		MaxDepth:     cfg.Costing.MaxDepth,
	}
	if baseCurrency != "" {
		settings.BaseCurrency = baseCurrency
	}

	costSvc := costing.NewService(repo, settings, logger)
	return &services{
		costing: costSvc,
		// CLI 不缓存报表
		margin: margin.NewService(costSvc, catalog, nil, 0, costSvc.Settings().BaseCurrency, logger),
		logger: logger,
	}, nil
}

func loadFixture(path string) (*repository.MemoryStore, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open fixture: %w", err)
	}
	defer f.Close()

	store, err := repository.LoadFixture(f)
	if err != nil {
		return nil, fmt.Errorf("failed to load fixture %s: %w", path, err)
	}
	return store, nil
}

func newLogger() (*zap.Logger, error) {
	zapCfg := zap.NewDevelopmentConfig()
	zapCfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	if verbose {
		zapCfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}
	zapCfg.OutputPaths = []string{"stderr"}
	return zapCfg.Build()
}
