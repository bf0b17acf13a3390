package main

import (
	"github.com/spf13/cobra"
)

var reportCmd = &cobra.Command{
	Use:   "report <run-id>",
	Short: "Print the report of a stored run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openApp(ctx, true)
		if err != nil {
			return err
		}
		defer a.Close(ctx)

		report, err := a.Service.Report(ctx, args[0])
		if err != nil {
			return err
		}
		return report.Write(cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.AddCommand(reportCmd)
}
