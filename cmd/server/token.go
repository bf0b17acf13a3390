package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/jengzang/fwa-watersheds-go/internal/middleware"
)

var (
	tokenSubject string
	tokenTTL     time.Duration
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue a bearer token for run submission",
	Long: `Sign a bearer token with server.jwt_secret. POST /api/v1/runs requires one
whenever the secret is set.

Examples:
  fwawsd token --subject ci --ttl 720h`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := loadConfig()
		if err != nil {
			return err
		}
		if cfg.Server.JWTSecret == "" {
			return errors.New("server.jwt_secret is not set")
		}
		tok, err := middleware.IssueToken(cfg.Server.JWTSecret, tokenSubject, tokenTTL)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), tok)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(tokenCmd)
	tokenCmd.Flags().StringVar(&tokenSubject, "subject", "fwawsd", "Token subject")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 24*time.Hour, "Token lifetime")
}
