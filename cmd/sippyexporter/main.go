// Command sippyexporter polls a Sippy softswitch account and serves its
// KPIs (active calls, CDR cost/duration/failure aggregates) as Prometheus
// metrics.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"

	"github.com/flowpbx/sippyctl/internal/config"
	"github.com/flowpbx/sippyctl/internal/exporter"
	"github.com/flowpbx/sippyctl/internal/sippy"
)

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	logger := slog.New(cfg.LogHandler(os.Stdout))
	slog.SetDefault(logger)

	slog.Info("starting sippyexporter",
		"listen_port", cfg.ListenPort,
		"account", cfg.AccountID,
		"poll_interval", cfg.PollInterval,
	)

	registry := prometheus.NewRegistry()
	apiMetrics := sippy.NewMetrics(registry)

	creds := sippy.Credentials{
		Username: cfg.Username,
		Password: cfg.Password,
		Host:     cfg.Host,
	}
	opts := []sippy.Option{sippy.WithMetrics(apiMetrics)}
	if cfg.InsecureTLS {
		opts = append(opts, sippy.WithInsecureTLS())
	}
	if cfg.RateLimit > 0 {
		opts = append(opts, sippy.WithRateLimit(rate.Limit(cfg.RateLimit), cfg.RateBurst))
	}

	dashboard, err := sippy.NewDashboardClient(creds, append(opts, sippy.WithTimeout(cfg.DashboardTimeout))...)
	if err != nil {
		slog.Error("failed to create dashboard client", "error", err)
		os.Exit(1)
	}
	calls, err := sippy.NewCallsClient(creds, append(opts, sippy.WithTimeout(cfg.APITimeout))...)
	if err != nil {
		slog.Error("failed to create calls client", "error", err)
		os.Exit(1)
	}

	appCtx, appCancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer appCancel()

	poller := exporter.NewPoller(dashboard, calls, cfg.AccountID, cfg.PollInterval, slog.Default())
	go poller.Run(appCtx)

	registry.MustRegister(exporter.NewCollector(poller, cfg.AccountID, time.Now()))

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.ListenPort),
		Handler: exporter.NewServer(registry, poller),
	}

	go func() {
		<-appCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("http shutdown failed", "error", err)
		}
	}()

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("http server failed", "error", err)
		os.Exit(1)
	}

	slog.Info("sippyexporter stopped")
}
