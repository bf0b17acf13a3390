package main

import (
	"encoding/json"

	"github.com/spf13/cobra"
)

var exportDissolve bool

var exportCmd = &cobra.Command{
	Use:   "export <point-id>",
	Short: "Write the watershed of a point as GeoJSON",
	Long: `Write the stored watershed fragments of a point to stdout as a GeoJSON
FeatureCollection in EPSG:3005. With --dissolve the fragments are unioned into
a single feature.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openApp(ctx, true)
		if err != nil {
			return err
		}
		defer a.Close(ctx)

		fc, err := a.Service.Watershed(ctx, args[0], exportDissolve)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(fc)
	},
}

func init() {
	rootCmd.AddCommand(exportCmd)
	exportCmd.Flags().BoolVar(&exportDissolve, "dissolve", false, "Union the fragments into one feature")
}
