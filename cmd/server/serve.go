package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

var servePort string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&servePort, "port", "", "Override server.port, e.g. :8080")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	if servePort != "" {
		cfg.Server.Port = servePort
	}
	a, err := openWired(ctx, cfg, log)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              cfg.Server.Port,
		Handler:           a.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	serverErr := make(chan error, 1)
	go func() {
		log.WithField("addr", srv.Addr).Info("Server starting")
		serverErr <- srv.ListenAndServe()
	}()

	select {
	case err = <-serverErr:
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
	case sig := <-shutdown:
		log.WithField("signal", sig.String()).Info("Shutting down")
		sctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		err = srv.Shutdown(sctx)
		cancel()
	}

	// background runs finish before the store closes
	if cerr := a.Close(context.Background()); cerr != nil && err == nil {
		err = cerr
	}
	return err
}
