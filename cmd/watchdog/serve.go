package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	_ "github.com/jackc/pgx/v5/stdlib" // Register pgx as database/sql driver
	"github.com/jonboulle/clockwork"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sumitx99/ethical-web-watchdog/internal/api"
	"github.com/sumitx99/ethical-web-watchdog/internal/auth"
	"github.com/sumitx99/ethical-web-watchdog/internal/capture"
	"github.com/sumitx99/ethical-web-watchdog/internal/chread"
	"github.com/sumitx99/ethical-web-watchdog/internal/classifier"
	"github.com/sumitx99/ethical-web-watchdog/internal/config"
	"github.com/sumitx99/ethical-web-watchdog/internal/delivery"
	"github.com/sumitx99/ethical-web-watchdog/internal/interaction"
	"github.com/sumitx99/ethical-web-watchdog/internal/lifecycle"
	"github.com/sumitx99/ethical-web-watchdog/internal/message"
	"github.com/sumitx99/ethical-web-watchdog/internal/query"
	"github.com/sumitx99/ethical-web-watchdog/internal/schedule"
	"github.com/sumitx99/ethical-web-watchdog/internal/settings"
	"github.com/sumitx99/ethical-web-watchdog/internal/storage"
)

// hubBuffer is the per-subscriber SSE queue depth.
const hubBuffer = 32

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the watchdog daemon",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			logger := mustBuildLogger(cfg.Log.Level)
			defer logger.Sync() //nolint:errcheck // best-effort flush
			return runServe(cmd.Context(), cfg, logger)
		},
	}
}

func runServe(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	logger.Info("starting watchdog",
		zap.String("version", version),
		zap.String("http_addr", cfg.Server.HTTPAddr),
		zap.String("transport", cfg.Delivery.Transport),
		zap.Duration("retention", cfg.Interactions.Retention),
		zap.Bool("capture", cfg.Capture.Enabled),
	)

	sched := schedule.New(clockwork.NewRealClock())
	defer sched.Close()

	// Storage: ClickHouse or LogWriter fallback
	var writer storage.EventWriter
	var reader *chread.Reader
	if cfg.ClickHouse.DSN != "" {
		conn, err := openClickHouse(ctx, cfg.ClickHouse.DSN, logger)
		if err != nil {
			logger.Warn("clickhouse connection failed, falling back to log writer", zap.Error(err))
			writer = storage.NewLogWriter(logger)
		} else {
			defer func() { _ = conn.Close() }()
			chWriter, err := storage.NewClickHouseWriter(ctx, conn, logger)
			if err != nil {
				logger.Warn("clickhouse table setup failed, falling back to log writer", zap.Error(err))
				writer = storage.NewLogWriter(logger)
			} else {
				writer = chWriter
				reader = chread.NewReader(conn, logger)
				logger.Info("clickhouse connected")
			}
		}
	} else {
		writer = storage.NewLogWriter(logger)
		logger.Info("no clickhouse.dsn set, using log writer")
	}
	defer writer.Close()

	// Postgres: settings and API keys, or in-memory settings
	var settingsStore settings.Store = settings.NewMemoryStore()
	var keys auth.MultiKeys
	if len(cfg.Auth.APIKeyHashes) > 0 {
		keys = append(keys, auth.StaticKeys(cfg.Auth.APIKeyHashes))
	}
	if cfg.Postgres.DSN != "" {
		db, err := openPostgres(ctx, cfg.Postgres.DSN)
		if err != nil {
			return err
		}
		defer func() { _ = db.Close() }()

		pgSettings := settings.NewPostgresStore(db)
		if err := pgSettings.Migrate(ctx); err != nil {
			return fmt.Errorf("migrate settings: %w", err)
		}
		pgKeys := auth.NewPostgresKeys(db)
		if err := pgKeys.Migrate(ctx); err != nil {
			return fmt.Errorf("migrate api keys: %w", err)
		}
		settingsStore = pgSettings
		keys = append(keys, pgKeys)
		logger.Info("postgres connected")
	} else {
		logger.Info("no postgres.dsn set, settings are kept in memory")
	}

	settingsCache, err := settings.NewCache(ctx, settingsStore, settings.DefaultProfile, logger)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}

	// Delivery transports
	var transports delivery.Multi
	var hub *delivery.Hub
	var observers *delivery.GRPCMessenger
	if cfg.Delivery.SSE() {
		hub = delivery.NewHub(hubBuffer)
		transports = append(transports, hub)
	}
	if cfg.Delivery.GRPC() {
		observers = delivery.NewGRPCMessenger(logger)
		defer func() { _ = observers.Close() }()
		transports = append(transports, observers)
	}
	channel := delivery.NewChannel(transports, sched, delivery.Options{
		Backoff: cfg.Delivery.Backoff,
		Timeout: cfg.Delivery.Timeout,
	}, logger)
	defer channel.Close()

	validator, err := message.NewValidator()
	if err != nil {
		return fmt.Errorf("compile message schemas: %w", err)
	}

	cls := classifier.New()
	store := interaction.NewStore(sched.Clock())
	ctrl := lifecycle.NewController(lifecycle.Dependencies{
		Store:      store,
		Classifier: cls,
		Deliverer:  channel,
		Writer:     writer,
		Policy:     settingsCache,
		Scheduler:  sched,
		Logger:     logger,
	}, lifecycle.Options{
		Retention:     cfg.Interactions.Retention,
		SweepInterval: cfg.Interactions.SweepInterval,
	})
	ctrl.Start(ctx)
	defer ctrl.Stop()

	if cfg.Capture.Enabled {
		src := capture.NewSource(cfg.Capture.DevToolsURL, ctrl, logger)
		go func() {
			if err := src.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("browser capture stopped", zap.Error(err))
			}
		}()
	}

	svc := query.NewService(store)
	deps := &api.Dependencies{
		Controller: ctrl,
		Query:      svc,
		Dispatcher: query.NewDispatcher(svc, cls, validator, logger),
		Hub:        hub,
		Settings:   settingsCache,
		Logger:     logger,
	}
	// Interface fields stay nil rather than holding typed nils.
	if observers != nil {
		deps.Observers = observers
	}
	if reader != nil {
		deps.Reader = reader
	}
	if len(keys) > 0 {
		deps.Verifier = auth.NewVerifier(auth.VerifierConfig{
			Keys:     keys,
			CacheTTL: cfg.Auth.CacheTTL,
			Logger:   logger,
		})
	} else {
		logger.Warn("no api keys configured, HTTP API is unauthenticated")
	}

	httpServer := &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           api.NewRouter(deps),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		logger.Info("http server listening", zap.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", zap.Error(err))
	}
	// Ingest may still be running from capture; later pushes are dropped.
	channel.Close()

	logger.Info("watchdog stopped",
		zap.Int64("delivered", channel.Delivered()),
		zap.Int64("dropped", channel.Dropped()),
	)
	return nil
}

func openClickHouse(ctx context.Context, dsn string, logger *zap.Logger) (driver.Conn, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	conn, err := storage.OpenClickHouse(ctx, dsn)
	if err != nil {
		return nil, err
	}
	logger.Debug("clickhouse ping ok")
	return conn, nil
}

func openPostgres(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}
