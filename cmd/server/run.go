package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/jengzang/fwa-watersheds-go/internal/models"
	"github.com/jengzang/fwa-watersheds-go/internal/watershed"
)

var (
	runPoints  string
	runWorkers int
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Delineate watersheds for a CSV of points",
	Long: `Run the pipeline over every point in a CSV file with an id,x,y header and
an optional match_code column. Coordinates are EPSG:3005. Results replace any
earlier results for the same point ids; the run report is printed on stdout.

Examples:
  fwawsd run --points stations.csv
  fwawsd run --points - --workers 8 < stations.csv`,
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().StringVarP(&runPoints, "points", "p", "", "CSV file of points, - for stdin")
	runCmd.Flags().IntVar(&runWorkers, "workers", 0, "Override the worker count")
	_ = runCmd.MarkFlagRequired("points")
}

func readPointsFile(path string, stdin io.Reader) ([]models.InputPoint, error) {
	if path == "-" {
		return watershed.ReadPoints(stdin)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return watershed.ReadPoints(f)
}

func runRun(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	pts, err := readPointsFile(runPoints, cmd.InOrStdin())
	if err != nil {
		return fmt.Errorf("failed to read points: %w", err)
	}

	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	if runWorkers > 0 {
		cfg.Workers = runWorkers
	}
	a, err := openWired(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close(ctx)

	report, err := a.Service.ExecuteRun(ctx, pts)
	if report != nil {
		if werr := report.Write(cmd.OutOrStdout()); werr != nil && err == nil {
			err = werr
		}
	}
	return err
}
