// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/holomush/holoauth/internal/auth"
	"github.com/holomush/holoauth/internal/auth/memstore"
	"github.com/holomush/holoauth/internal/auth/postgres"
	"github.com/holomush/holoauth/internal/config"
	"github.com/holomush/holoauth/internal/logging"
	"github.com/holomush/holoauth/internal/observability"
	"github.com/holomush/holoauth/internal/store"
	"github.com/holomush/holoauth/internal/web"
)

// ServeDeps contains injectable dependencies for the serve command.
// Nil fields use their default implementations.
type ServeDeps struct {
	// DirectoryFactory opens the user directory named by cfg.Directory. The
	// returned ready func backs the readiness probe; close releases it.
	// Default: openDirectory
	DirectoryFactory func(ctx context.Context, cfg *config.Config) (dir auth.Directory, ready func() bool, closeFn func(), err error)

	// Signals delivers shutdown signals.
	// Default: SIGINT and SIGTERM via signal.Notify
	Signals <-chan os.Signal

	// OnReady is called with the API and metrics addresses once both
	// listeners are bound. The metrics address is "" when disabled.
	OnReady func(apiAddr, metricsAddr string)

	// LogOutput receives log records.
	// Default: os.Stderr
	LogOutput io.Writer
}

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the auth HTTP API",
		Long: `Start the HTTP API serving /auth/register, /auth/login, /auth/logout
and /auth/me, plus the metrics and health probe listener.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServeWithDeps(cmd.Context(), cmd, nil)
		},
	}

	defaults := config.Default()
	cmd.Flags().String("addr", defaults.Server.Addr, "HTTP API listen address")
	cmd.Flags().String("metrics-addr", defaults.Metrics.Addr, "metrics/health HTTP address (empty = disabled)")
	cmd.Flags().String("log-format", defaults.Log.Format, "log format (json or text)")
	cmd.Flags().String("log-level", defaults.Log.Level, "log level (debug, info, warn, error)")
	cmd.Flags().String("directory", defaults.Directory, "user directory backend (postgres or memory)")
	cmd.Flags().Bool("auto-migrate", defaults.Database.AutoMigrate, "apply pending migrations on startup")
	cmd.Flags().String("database-url", "", "PostgreSQL connection URL")

	return cmd
}

// runServeWithDeps runs the server until a signal arrives, ctx is cancelled
// or a listener fails.
func runServeWithDeps(ctx context.Context, cmd *cobra.Command, deps *ServeDeps) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if deps == nil {
		deps = &ServeDeps{}
	}
	if deps.DirectoryFactory == nil {
		deps.DirectoryFactory = openDirectory
	}
	if deps.Signals == nil {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(sigChan)
		deps.Signals = sigChan
	}
	if deps.LogOutput == nil {
		deps.LogOutput = os.Stderr
	}

	cfg, err := config.Load(configFile, cmd.Flags())
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		return err
	}
	logger := logging.Setup("holoauth", version, cfg.Log.Format, level, deps.LogOutput)
	slog.SetDefault(logger)

	logger.Info("starting holoauth",
		"environment", cfg.Environment,
		"directory", cfg.Directory,
		"addr", cfg.Server.Addr)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	users, ready, closeDirectory, err := deps.DirectoryFactory(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeDirectory()

	var obsServer *observability.Server
	var metrics *observability.Metrics
	if cfg.Metrics.Addr != "" {
		obsServer = observability.NewServer(cfg.Metrics.Addr, ready)
		metrics = obsServer.Metrics()
	} else {
		metrics = observability.NewMetrics(prometheus.NewRegistry())
	}

	service, err := newAuthService(cfg, users, logger, metrics)
	if err != nil {
		return err
	}

	api := web.NewServer(cfg.Server.Addr, web.NewRouter(web.RouterConfig{
		Service:        service,
		AllowedOrigins: cfg.Server.CORSAllowedOrigins,
		Logger:         logger,
		Recorder:       metrics,
	}), cfg.Server.ReadHeaderTimeout)

	apiErrCh, err := api.Start()
	if err != nil {
		return err
	}
	go monitorServerErrors(ctx, cancel, apiErrCh, "api")

	metricsAddr := ""
	if obsServer != nil {
		obsErrCh, err := obsServer.Start()
		if err != nil {
			stopCtx, stopCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
			defer stopCancel()
			if stopErr := api.Stop(stopCtx); stopErr != nil {
				logger.Warn("failed to stop http server during cleanup", "error", stopErr)
			}
			return err
		}
		go monitorServerErrors(ctx, cancel, obsErrCh, "observability")
		metricsAddr = obsServer.Addr()
	}

	cmd.Println("holoauth started")
	logger.Info("holoauth ready", "addr", api.Addr(), "metrics_addr", metricsAddr)
	if deps.OnReady != nil {
		deps.OnReady(api.Addr(), metricsAddr)
	}

	select {
	case sig := <-deps.Signals:
		logger.Info("received shutdown signal", "signal", sig)
	case <-ctx.Done():
		logger.Info("context cancelled, shutting down")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := api.Stop(shutdownCtx); err != nil {
		logger.Warn("error stopping http server", "error", err)
	}
	if obsServer != nil {
		if err := obsServer.Stop(shutdownCtx); err != nil {
			logger.Warn("error stopping observability server", "error", err)
		}
	}

	logger.Info("shutdown complete")
	return nil
}

func newAuthService(cfg *config.Config, users auth.Directory, logger *slog.Logger, rec auth.Recorder) (*auth.Service, error) {
	hasher, err := auth.NewArgon2idHasher(cfg.Auth.Hash)
	if err != nil {
		return nil, err
	}
	tokens, err := auth.NewTokenIssuer([]byte(cfg.Auth.Secret), auth.WithIssuer(cfg.Auth.Issuer))
	if err != nil {
		return nil, err
	}
	return auth.NewService(auth.ServiceConfig{
		Directory:               users,
		Hasher:                  hasher,
		Tokens:                  tokens,
		Carrier:                 auth.NewCarrier(cfg.SecureCookies()),
		SessionTTL:              cfg.Auth.TokenTTL,
		ShortLivedTTL:           cfg.Auth.ShortTokenTTL,
		RegistrationTokenPolicy: auth.RegistrationTokenPolicy(cfg.Auth.RegistrationTokenPolicy),
		Logger:                  logger,
		Recorder:                rec,
	})
}

// openDirectory opens the configured user directory. For postgres it applies
// migrations first when auto_migrate is set.
func openDirectory(ctx context.Context, cfg *config.Config) (auth.Directory, func() bool, func(), error) {
	if cfg.Directory == config.DirectoryMemory {
		slog.Warn("using in-memory user directory; accounts are lost on restart")
		return memstore.NewDirectory(), func() bool { return true }, func() {}, nil
	}

	if cfg.Database.AutoMigrate {
		if err := autoMigrate(cfg.Database.URL); err != nil {
			return nil, nil, nil, err
		}
	}

	pool, err := store.Connect(ctx, cfg.Database.URL, store.ConnectOptions{Attempts: cfg.Database.ConnectAttempts})
	if err != nil {
		return nil, nil, nil, oops.With("operation", "connect to database").Wrap(err)
	}
	slog.Info("connected to database")

	return postgres.NewUserDirectory(pool), poolReady(pool), pool.Close, nil
}

func autoMigrate(databaseURL string) error {
	m, err := newMigrator(databaseURL)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := m.Close(); closeErr != nil {
			slog.Warn("failed to close migrator", "error", closeErr)
		}
	}()

	if err := m.Up(); err != nil {
		return oops.With("operation", "auto-migrate").Wrap(err)
	}
	slog.Info("database migrations applied")
	return nil
}

// poolReady reports readiness by pinging the database.
func poolReady(pool *pgxpool.Pool) func() bool {
	return func() bool {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return pool.Ping(ctx) == nil
	}
}

// monitorServerErrors cancels ctx when a server reports an error. It returns
// when the channel closes or ctx is done.
func monitorServerErrors(ctx context.Context, cancel context.CancelFunc, errCh <-chan error, serverName string) {
	select {
	case err, ok := <-errCh:
		if !ok {
			return
		}
		if err != nil {
			slog.Error("server error, triggering shutdown", "server", serverName, "error", err)
			cancel()
		}
	case <-ctx.Done():
	}
}
