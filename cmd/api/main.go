package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"karabook/internal/api"
	"karabook/internal/clock"
	"karabook/internal/config"
	"karabook/internal/database"
	"karabook/internal/domain"
	"karabook/internal/events"
	"karabook/internal/logging"
	"karabook/internal/metrics"
	"karabook/internal/notify"
	"karabook/internal/payment"
	"karabook/internal/repository"
	"karabook/internal/service"
	"karabook/internal/worker"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	cfg, logger, closer, err := loadConfigAndLogger()
	if err != nil {
		return err
	}
	if closer != nil {
		defer closer.Close()
	}

	db, err := initDatabase(cfg, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	redisClient := initRedis(cfg, logger)
	if redisClient != nil {
		defer redisClient.Close()
	}

	eventBus := events.NewEventBus()
	notifier := initNotifier(cfg, logger)
	eventCache := initEventCache(redisClient, logger)

	// Intents are minted locally; the real money flow terminates at the
	// provider's webhook.
	provider := payment.NewFakeProvider()

	reservations := service.NewReservationService(db, provider, eventBus, clock.System, logger)
	payments := service.NewPaymentEventService(db, eventCache, eventBus, logger)
	waitlist := service.NewWaitlistService(db, notifier, eventBus, clock.System, cfg.Sweeper.WaitlistTTL, logger)

	redelivery := worker.NewRedeliveryWorker(
		func(ctx context.Context, providerEventID string, reservationID int64, kind, payload string) error {
			_, err := payments.ApplyEvent(ctx, providerEventID, reservationID, kind, payload)
			return err
		},
		redisClient, worker.RetryPolicy{}, logger,
	)

	httpServer := api.NewServer(*cfg, reservations, payments, waitlist, redelivery, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go redelivery.Run(ctx)
	startMetrics(ctx, cfg, logger)

	return startServer(ctx, httpServer, logger)
}

func loadConfigAndLogger() (*config.Config, *zerolog.Logger, io.Closer, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load config: %w", err)
	}

	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("init logger: %w", err)
	}
	logger := logging.Component(baseLogger, "api-main")

	return cfg, &logger, closer, nil
}

func initDatabase(cfg *config.Config, logger *zerolog.Logger) (*database.DB, error) {
	db, err := database.NewDB(cfg.Database.Path, clock.System, logger)
	if err != nil {
		logger.Error().Err(err).Str("db_path", cfg.Database.Path).Msg("init database")
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	for i := range cfg.Rooms {
		if err := db.UpsertRoom(ctx, &cfg.Rooms[i]); err != nil {
			logger.Error().Err(err).Str("room", cfg.Rooms[i].Name).Msg("seed room")
			return nil, err
		}
	}
	return db, nil
}

func initRedis(cfg *config.Config, logger *zerolog.Logger) *redis.Client {
	if cfg.Redis.Address == "" {
		return nil
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Address,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		PoolSize: cfg.Redis.PoolSize,
	})

	if _, err := redisClient.Ping(context.Background()).Result(); err != nil {
		logger.Warn().Err(err).Msg("redis connection failed, continuing without redis")
		return nil
	}

	logger.Info().Str("addr", cfg.Redis.Address).Msg("redis connected")
	return redisClient
}

func initNotifier(cfg *config.Config, logger *zerolog.Logger) domain.Notifier {
	if cfg.Notify.Provider == "telegram" {
		tn, err := notify.NewTelegramNotifier(cfg.Notify.TelegramToken, cfg.Notify.TelegramChat, logger)
		if err != nil {
			logger.Warn().Err(err).Msg("telegram init failed, falling back to log notifier")
			return notify.NewLogNotifier(logger)
		}
		logger.Info().Msg("telegram notifier connected")
		return tn
	}
	return notify.NewLogNotifier(logger)
}

// eventCacheTTL bounds how long a provider event id stays in the fast
// dedup cache. The durable ledger remains the authority past that.
const eventCacheTTL = 24 * time.Hour

func initEventCache(redisClient *redis.Client, logger *zerolog.Logger) domain.EventCache {
	memory := repository.NewMemoryEventCache(eventCacheTTL)
	if redisClient == nil {
		return memory
	}
	primary := repository.NewRedisEventCache(redisClient, eventCacheTTL)
	return repository.NewFailoverEventCache(primary, memory, logger)
}

func startMetrics(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) {
	if !cfg.Monitoring.PrometheusEnabled {
		return
	}

	metrics.Register()
	port := cfg.Monitoring.PrometheusPort
	if port == 0 {
		port = 9090
	}
	go startMetricsServer(ctx, port, logger)
}

func startServer(ctx context.Context, httpServer *api.Server, logger *zerolog.Logger) error {
	go func() {
		if err := httpServer.Start(); err != nil {
			logger.Error().Err(err).Msg("http server stopped")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http server shutdown")
	}

	logger.Info().Msg("API server stopped")
	return nil
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("metrics server error")
	}
}
