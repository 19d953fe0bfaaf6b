// Package wire assembles the adapters and services shared by the server and
// the CLI from a loaded configuration.
package wire

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ericfisherdev/dsbpanel/internal/adapter/driven/dsb"
	"github.com/ericfisherdev/dsbpanel/internal/adapter/driven/memory"
	"github.com/ericfisherdev/dsbpanel/internal/adapter/driven/rediscache"
	sqliteadapter "github.com/ericfisherdev/dsbpanel/internal/adapter/driven/sqlite"
	"github.com/ericfisherdev/dsbpanel/internal/adapter/driven/untis"
	"github.com/ericfisherdev/dsbpanel/internal/adapter/driving/calendar"
	"github.com/ericfisherdev/dsbpanel/internal/application"
	"github.com/ericfisherdev/dsbpanel/internal/config"
	"github.com/ericfisherdev/dsbpanel/internal/domain/model"
	"github.com/ericfisherdev/dsbpanel/internal/domain/port/driven"
)

// App holds the wired object graph. Close releases the database and the
// Redis connection.
type App struct {
	Config      *config.Config
	DB          *sqliteadapter.DB
	Plans       *sqliteadapter.PlanRepo
	Credentials *sqliteadapter.CredentialRepo
	Cache       driven.SessionCache
	Session     *application.SessionService
	Exporter    *calendar.Exporter

	redis *redis.Client
}

// Build opens the database, runs migrations and wires every adapter. The
// returned App is unauthenticated; call Bootstrap to restore a session.
func Build(ctx context.Context, cfg *config.Config) (*App, error) {
	db, err := sqliteadapter.NewDB(cfg.DBPath)
	if err != nil {
		return nil, err
	}

	if err := sqliteadapter.RunMigrations(db.Writer); err != nil {
		_ = db.Close()
		return nil, err
	}
	slog.Debug("database ready", "path", cfg.DBPath)

	app := &App{
		Config:      cfg,
		DB:          db,
		Plans:       sqliteadapter.NewPlanRepo(db),
		Credentials: sqliteadapter.NewCredentialRepo(db, cfg.SecretKey),
	}

	if cfg.RedisURL != "" {
		client, err := rediscache.Connect(ctx, cfg.RedisURL)
		if err != nil {
			_ = db.Close()
			return nil, err
		}
		app.redis = client
		app.Cache = rediscache.NewSessionCache(client, rediscache.DefaultKey, cfg.CacheTTL, rediscache.WithClock(time.Now))
		slog.Info("session cache: redis")
	} else {
		app.Cache = memory.NewSessionCache()
		slog.Debug("session cache: memory")
	}

	if !app.Credentials.Enabled() {
		slog.Warn("DSBPANEL_SECRET_KEY not set, credentials will not survive a restart")
	}

	app.Session = application.NewSessionService(application.SessionDeps{
		NewSource:   SourceFactory(cfg),
		Parser:      untis.NewParser(untis.WithLocation(cfg.Location)),
		Plans:       app.Plans,
		Credentials: app.Credentials,
		Cache:       app.Cache,
		Provider:    application.NewClientProvider(),
		CacheTTL:    cfg.CacheTTL,
		Location:    cfg.Location,
		Now:         time.Now,

		DiscoveryTimeout: cfg.DiscoveryTimeout,
	})

	app.Exporter = calendar.NewExporter(calendar.PeriodClock{
		FirstStart: cfg.FirstPeriodStart,
		Length:     cfg.PeriodLength,
		Gap:        cfg.PeriodGap,
		Location:   cfg.Location,
	})

	return app, nil
}

// SourceFactory returns a factory that binds a dsb.Client to each login
// using the protocol constants from cfg.
func SourceFactory(cfg *config.Config) application.SourceFactory {
	opts := dsb.DefaultOptions()
	opts.BaseURL = cfg.DSBBaseURL
	opts.Timeout = cfg.DSBTimeout
	if cfg.DSBAppVersion != "" {
		opts.AppVersion = cfg.DSBAppVersion
	}
	if cfg.DSBOSVersion != "" {
		opts.OSVersion = cfg.DSBOSVersion
	}
	if cfg.DSBDevice != "" {
		opts.Device = cfg.DSBDevice
	}
	if cfg.DSBUserAgent != "" {
		opts.UserAgent = cfg.DSBUserAgent
	}

	return func(creds model.Credentials) driven.TimetableSource {
		return dsb.NewClient(creds, opts)
	}
}

// Bootstrap restores stored credentials without network I/O. When nothing is
// stored and bootstrap credentials are configured, it logs in with them.
// Failures are logged and leave the session unauthenticated.
func (a *App) Bootstrap(ctx context.Context) {
	if err := a.Session.Restore(ctx); err != nil && !errors.Is(err, driven.ErrEncryptionKeyNotSet) {
		slog.Warn("stored credentials unreadable", "error", err)
	}

	if a.Session.State().IsAuthenticated || !a.Config.HasBootstrapCredentials() {
		return
	}

	slog.Info("logging in with configured credentials", "identifier", a.Config.DSBUsername)
	if err := a.Session.Authenticate(ctx, a.Config.DSBUsername, a.Config.DSBPassword); err != nil {
		slog.Warn("bootstrap login failed", "error", err, "message", a.Session.State().Error)
	}
}

// Close releases the Redis connection and the database.
func (a *App) Close() error {
	var errs []error
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close redis: %w", err))
		}
	}
	if err := a.DB.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
