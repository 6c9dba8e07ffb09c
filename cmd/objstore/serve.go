package main

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/cuemby/objstore/pkg/log"
	"github.com/cuemby/objstore/pkg/metrics"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Open the store and serve Prometheus metrics and health endpoints until interrupted",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().String("metrics-addr", "127.0.0.1:9090", "Address to serve /metrics, /health, /ready and /live on")
}

func runServe(cmd *cobra.Command, args []string) error {
	db, err := openDatabase(dbPath(cmd))
	if err != nil {
		return err
	}
	defer db.Close()

	metricsAddr, _ := cmd.Flags().GetString("metrics-addr")

	collector := metrics.NewCollector(db)
	collector.Start()
	defer collector.Stop()

	metrics.RegisterComponent("kv", true, "ready")
	metrics.RegisterComponent("objdb", true, "ready")

	errCh := make(chan error, 1)
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		mux.Handle("/health", metrics.HealthHandler())
		mux.Handle("/ready", metrics.ReadyHandler())
		mux.Handle("/live", metrics.LivenessHandler())
		if err := http.ListenAndServe(metricsAddr, mux); err != nil {
			errCh <- fmt.Errorf("metrics server: %w", err)
		}
	}()

	cliLog := log.WithComponent("cli")
	cliLog.Info().Str("addr", metricsAddr).Msg("serving metrics and health endpoints")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigCh:
		cliLog.Info().Msg("shutting down")
	case err := <-errCh:
		return err
	}
	return nil
}
