package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/authcore"
	"github.com/MrEthical07/authcore/config"
	"github.com/MrEthical07/authcore/internal/audit"
	"github.com/MrEthical07/authcore/internal/observability"
	"github.com/MrEthical07/authcore/metrics/export/prometheus"
	"github.com/MrEthical07/authcore/notify"
	"github.com/MrEthical07/authcore/store/memory"
	"github.com/MrEthical07/authcore/store/postgres"
	"github.com/MrEthical07/authcore/transport/httpapi"
)

const (
	cleanupInterval  = time.Hour
	cleanupRetention = 24 * time.Hour
)

// staleStore is implemented by both stores.
type staleStore interface {
	authcore.Store
	DeleteStale(ctx context.Context, cutoff time.Time) (int64, error)
}

func main() {
	configPath := flag.String("config", "", "optional YAML configuration file")
	envFile := flag.String("env-file", ".env", "optional dotenv file")
	flag.Parse()

	logger := observability.NewLogger()
	if err := run(*configPath, *envFile, logger); err != nil {
		logger.Error("authcore stopped", map[string]any{"error": err.Error()})
		observability.FlushSentry()
		os.Exit(1)
	}
}

func run(configPath, envFile string, logger *observability.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load(configPath, envFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := observability.InitSentry(cfg.Sentry.DSN, cfg.Env); err != nil {
		logger.Warn("sentry disabled", map[string]any{"error": err.Error()})
	}
	defer observability.FlushSentry()

	engineCfg, err := cfg.Engine()
	if err != nil {
		return fmt.Errorf("engine config: %w", err)
	}

	store, ready, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	rdb, closeRedis, err := openRedis(cfg, logger)
	if err != nil {
		return err
	}
	defer closeRedis()

	notifier, err := newNotifier(cfg)
	if err != nil {
		return err
	}

	engine, err := authcore.New().
		WithConfig(engineCfg).
		WithStore(store).
		WithRedis(rdb).
		WithNotifier(notifier).
		WithAuditSink(audit.LoggerSink{Logger: logger}).
		WithWarnLogger(logger.Warnf).
		Build()
	if err != nil {
		return fmt.Errorf("build engine: %w", err)
	}
	defer engine.Close()

	report := engine.SecurityReport()
	logger.Info("engine ready", map[string]any{
		"env":              cfg.Env,
		"kid":              report.KeyID,
		"ephemeral_key":    report.EphemeralSigningKey,
		"access_ttl":       report.AccessTTL.String(),
		"refresh_ttl":      report.RefreshTTL.String(),
		"lockout":          report.LockoutActive,
		"rate_limiting":    report.RateLimitingActive,
		"revoke_on_replay": report.RevokeAllOnReplay,
	})
	if report.EphemeralSigningKey {
		logger.Warn("signing key generated at startup; tokens will not survive a restart", nil)
	}

	go cleanupLoop(ctx, store, logger)

	shutdownTimeout, err := cfg.ShutdownTimeout()
	if err != nil {
		return err
	}

	router := httpapi.NewRouter(engine, httpapi.Options{
		Logger:            logger,
		Metrics:           prometheus.NewExporter(engine).Handler(),
		Ready:             ready,
		TrustForwardedFor: cfg.Server.TrustForwardedFor,
	})
	server := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return runServer(ctx, server, shutdownTimeout, logger)
}

// openStore connects to PostgreSQL and applies migrations. Without a
// database URL outside production it falls back to the in-memory store.
func openStore(ctx context.Context, cfg *config.Config, logger *observability.Logger) (staleStore, func(context.Context) error, func(), error) {
	if cfg.Database.URL == "" {
		if cfg.Production() {
			return nil, nil, nil, errors.New("DATABASE_URL is required in production")
		}
		logger.Warn("DATABASE_URL not set; using in-memory store", nil)
		return memory.New(), nil, func() {}, nil
	}

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	pg, err := postgres.Open(connectCtx, cfg.Database.Driver, cfg.Database.URL)
	if err != nil {
		return nil, nil, nil, err
	}
	if err := pg.Migrate(connectCtx); err != nil {
		_ = pg.Close()
		return nil, nil, nil, fmt.Errorf("migrate: %w", err)
	}
	closeFn := func() {
		if err := pg.Close(); err != nil {
			logger.Warn("close database", map[string]any{"error": err.Error()})
		}
	}
	return pg, pg.Ping, closeFn, nil
}

// openRedis connects to the rate-limit counter store. Without an address
// outside production it starts an embedded miniredis.
func openRedis(cfg *config.Config, logger *observability.Logger) (redis.UniversalClient, func(), error) {
	addr := cfg.Redis.Addr
	if addr == "" {
		if cfg.Production() {
			return nil, nil, errors.New("REDIS_ADDR is required in production")
		}
		mr, err := miniredis.Run()
		if err != nil {
			return nil, nil, fmt.Errorf("start miniredis: %w", err)
		}
		logger.Warn("REDIS_ADDR not set; using embedded miniredis", map[string]any{"addr": mr.Addr()})
		client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{mr.Addr()}})
		return client, func() {
			_ = client.Close()
			mr.Close()
		}, nil
	}

	client := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:        []string{addr},
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  500 * time.Millisecond,
		WriteTimeout: 500 * time.Millisecond,
	})
	return client, func() { _ = client.Close() }, nil
}

func newNotifier(cfg *config.Config) (notify.Notifier, error) {
	if cfg.Webhook.URL == "" {
		if cfg.Production() {
			return nil, errors.New("WEBHOOK_URL is required in production")
		}
		return notify.LogNotifier{Logger: log.New(os.Stderr, "", log.LstdFlags)}, nil
	}
	timeout, err := cfg.WebhookTimeout()
	if err != nil {
		return nil, err
	}
	return notify.NewWebhookNotifier(cfg.Webhook.URL, timeout), nil
}

func cleanupLoop(ctx context.Context, store staleStore, logger *observability.Logger) {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := store.DeleteStale(ctx, time.Now().Add(-cleanupRetention))
			if err != nil {
				logger.Warn("cleanup failed", map[string]any{"error": err.Error()})
				continue
			}
			if n > 0 {
				logger.Info("cleanup", map[string]any{"deleted": n})
			}
		}
	}
}

func runServer(ctx context.Context, server *http.Server, shutdownTimeout time.Duration, logger *observability.Logger) error {
	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("server listening", map[string]any{"addr": server.Addr})
		serverErrors <- server.ListenAndServe()
	}()

	signalChannel := make(chan os.Signal, 1)
	signal.Notify(signalChannel, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server: %w", err)
		}
		return nil
	case sig := <-signalChannel:
		logger.Info("shutdown signal received", map[string]any{"signal": sig.String()})
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(ctx, shutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	logger.Info("server stopped", nil)
	return nil
}
