package main

import (
	"context"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/jengzang/fwa-watersheds-go/internal/app"
	"github.com/jengzang/fwa-watersheds-go/internal/config"
	"github.com/jengzang/fwa-watersheds-go/internal/logging"
)

var (
	configPath string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "fwawsd",
	Short: "FWA watershed delineation",
	Long: `fwawsd delineates the watershed upstream of points on the BC Freshwater
Atlas stream network: it references each point onto a stream, assembles the
fundamental watersheds above it, refines the bottom polygon against the stream
or a DEM and extends the result across the provincial border.

Configuration is read from --config, then FWA_ environment variables.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to a YAML config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override logging.level")
}

func loadConfig() (*config.Config, *logrus.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	return cfg, logging.New(cfg.Logging), nil
}

// openApp loads config and opens the store. When wire is set the pipeline
// and service are built as well.
func openApp(ctx context.Context, wire bool) (*app.App, error) {
	cfg, log, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if wire {
		return openWired(ctx, cfg, log)
	}
	return app.Open(ctx, cfg, log)
}

func openWired(ctx context.Context, cfg *config.Config, log *logrus.Logger) (*app.App, error) {
	a, err := app.Open(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	if err := a.Wire(); err != nil {
		a.Close(ctx)
		return nil, err
	}
	return a, nil
}
