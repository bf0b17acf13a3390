package main

import (
	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or upgrade the database schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context(), false)
		if err != nil {
			return err
		}
		a.Log.WithField("path", a.Config.Database.Path).Info("Database is up to date")
		return a.Close(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
