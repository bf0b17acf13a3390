package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/jengzang/fwa-watersheds-go/internal/repository"
)

var loadCmd = &cobra.Command{
	Use:   "load-fixture <network.yaml>",
	Short: "Load stream segments, fundamental watersheds and basin units",
	Long: `Load a network file into the store. The file lists waterbodies, stream
segments, fundamental watershed polygons (WKT, EPSG:3005) and the cross-border
basin units. Basin units go to neo4j when graph.uri is configured.`,
	Args: cobra.ExactArgs(1),
	RunE: runLoad,
}

func init() {
	rootCmd.AddCommand(loadCmd)
}

func runLoad(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	f, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer f.Close()

	fixture, err := repository.ReadFixture(f)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", args[0], err)
	}

	a, err := openApp(ctx, false)
	if err != nil {
		return err
	}
	defer a.Close(ctx)

	if err := fixture.Load(ctx, repository.FixtureStores{
		Streams:    a.Streams,
		Watersheds: a.Watersheds,
		Basins:     a.Basins,
	}); err != nil {
		return err
	}
	a.Log.WithFields(logrus.Fields{
		"file":       args[0],
		"streams":    len(fixture.Streams),
		"watersheds": len(fixture.Watersheds),
		"basins":     len(fixture.Basins),
	}).Info("Network loaded")
	return nil
}
