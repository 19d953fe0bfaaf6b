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
	_ "time/tzdata" // Zone database for scratch container

	_ "golang.org/x/crypto/x509roots/fallback" // Embed CA certs for scratch container

	httphandler "github.com/ericfisherdev/dsbpanel/internal/adapter/driving/http"
	"github.com/ericfisherdev/dsbpanel/internal/application"
	"github.com/ericfisherdev/dsbpanel/internal/config"
	"github.com/ericfisherdev/dsbpanel/internal/wire"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load configuration (fail fast on malformed env vars).
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel})))
	slog.Info("config loaded",
		"listen_addr", cfg.ListenAddr,
		"db_path", cfg.DBPath,
		"dsb_base_url", cfg.DSBBaseURL,
		"refresh_interval", cfg.RefreshInterval,
		"cache_ttl", cfg.CacheTTL,
		"timezone", cfg.Location.String(),
	)

	// 2. Setup signal-based context (SIGINT, SIGTERM).
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. Open database, run migrations, wire adapters.
	app, err := wire.Build(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := app.Close(); closeErr != nil {
			slog.Error("error closing resources", "error", closeErr)
		}
	}()

	// 4. Restore the previous session or log in with configured credentials.
	app.Bootstrap(ctx)

	// 5. Background refresh. Without it, the API refreshes the session directly.
	var refresher httphandler.Refresher = app.Session
	if cfg.RefreshInterval > 0 {
		scheduler := application.NewRefreshScheduler(app.Session, app.Plans, cfg.RefreshInterval)
		go scheduler.Start(ctx)
		refresher = scheduler
	} else {
		slog.Info("background refresh disabled")
	}

	// 6. HTTP API.
	apiHandler := httphandler.NewHandler(app.Session, refresher, app.Exporter, slog.Default())

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           httphandler.NewServeMux(apiHandler, slog.Default()),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		// Login and forced refresh run a full discovery inside the request;
		// the session cuts that off at DiscoveryTimeout.
		WriteTimeout: cfg.DiscoveryTimeout + 15*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		slog.Info("http server starting", "addr", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http server error", "error", err)
			stop()
		}
	}()

	slog.Info("dsbpanel started",
		"listen_addr", cfg.ListenAddr,
		"authenticated", app.Session.State().IsAuthenticated,
	)

	// 7. Wait for shutdown signal.
	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("http server shutdown error", "error", err)
	}

	slog.Info("shutdown complete")
	return nil
}
