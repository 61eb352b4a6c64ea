package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/star/satviz/internal/api"
	"github.com/star/satviz/internal/clock"
	"github.com/star/satviz/internal/groundstation"
	"github.com/star/satviz/internal/health"
	"github.com/star/satviz/internal/observability"
	"github.com/star/satviz/internal/stream"
	"github.com/star/satviz/internal/tle"
	"github.com/star/satviz/internal/tracker"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: loadLogLevel(),
	}))

	addr := os.Getenv("SATVIZ_HTTP_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	authCfg, err := loadAuthConfig(logger)
	if err != nil {
		logger.Error("invalid auth configuration", "error", err)
		os.Exit(1)
	}
	trackerCfg, err := loadTrackerConfig(logger)
	if err != nil {
		logger.Error("invalid tracker configuration", "error", err)
		os.Exit(1)
	}
	simCfg, err := loadSimConfig(logger)
	if err != nil {
		logger.Error("invalid simulation configuration", "error", err)
		os.Exit(1)
	}
	tleCfg := loadTLEConfig(logger)
	streamCfg := loadStreamConfig(logger)

	// Graceful shutdown on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.InitTracing(ctx, loadTracingConfig(logger), logger)
	if err != nil {
		logger.Error("tracing setup failed", "error", err)
		os.Exit(1)
	}
	defer observability.ShutdownWithTimeout(context.Background(), shutdownTracing, logger)

	start := time.Now().UTC()
	clk := clock.New(start)
	if err := clk.SetScale(simCfg.TimeScale); err != nil {
		logger.Error("invalid time scale", "error", err)
		os.Exit(1)
	}
	stations := groundstation.NewTable(start, simCfg.StationMode)

	store := tle.NewStore()
	fetcher := tle.NewFetcher(tleCfg.URLTemplate, logger,
		tle.WithRateLimit(tleCfg.RatePerSecond, tleCfg.Burst),
	)

	// The hub joins the notifiers once it exists; nothing notifies before Run.
	notifiers := tracker.Notifiers{tracker.LogNotifier{Logger: logger}}
	trk := tracker.New(trackerCfg, tracker.Deps{
		Source:   fetcher,
		Store:    store,
		Clock:    clk,
		Notifier: &notifiers,
		Logger:   logger,
		Tracer:   otel.Tracer("github.com/star/satviz/internal/tracker"),
	})
	hub := stream.NewHub(trk, streamCfg, logger)
	notifiers = append(notifiers, hub)

	if _, _, err := trk.Select(simCfg.Selection); err != nil {
		logger.Error("initial selection rejected", "error", err)
		os.Exit(1)
	}

	srv := api.NewServer(addr, logger, authCfg, api.Deps{
		Tracker:        trk,
		GroundStations: stations,
		Stream:         hub,
		OrbitSegments:  trackerCfg.OrbitSegments,
		Ready: []health.Check{func() error {
			if trk.Snapshot().Len() > 0 && store.Get() == nil {
				return errors.New("no element sets loaded")
			}
			return nil
		}},
	})

	trackerDone := make(chan struct{})
	go func() {
		defer close(trackerDone)
		trk.Run(ctx)
	}()

	go func() {
		logger.Info("starting server", "addr", addr, "auth_enabled", authCfg.Enabled, "tle_source", fetcher.Source())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server listen error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.HTTPServer().Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}
	<-trackerDone

	logger.Info("server stopped")
}
