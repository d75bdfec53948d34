package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"karabook/internal/clock"
	"karabook/internal/config"
	"karabook/internal/database"
	"karabook/internal/domain"
	"karabook/internal/events"
	"karabook/internal/logging"
	"karabook/internal/metrics"
	"karabook/internal/notify"
	"karabook/internal/service"

	"github.com/rs/zerolog"
)

// The sweeper runs as a cron-style job. Without -interval it performs
// one sweep and exits; with -interval it loops until signalled.
func main() {
	interval := flag.Duration("interval", 0, "run continuously with this period (0 = one shot)")
	flag.Parse()

	if err := run(*interval); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run(interval time.Duration) error {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	if closer != nil {
		defer closer.Close()
	}
	logger := logging.Component(baseLogger, "sweeper")

	db, err := database.NewDB(cfg.Database.Path, clock.System, &logger)
	if err != nil {
		return fmt.Errorf("init database: %w", err)
	}
	defer db.Close()

	if cfg.Monitoring.PrometheusEnabled {
		metrics.Register()
	}

	sweeper := service.NewSweeper(
		db,
		initNotifier(cfg, &logger),
		events.NewEventBus(),
		clock.System,
		cfg.Sweeper.HoldTTL,
		cfg.Sweeper.WaitlistTTL,
		cfg.Sweeper.BatchSize,
		&logger,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if interval <= 0 {
		return sweepOnce(ctx, sweeper, &logger)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if err := sweepOnce(ctx, sweeper, &logger); err != nil {
			logger.Error().Err(err).Msg("sweep failed")
		}
		select {
		case <-ctx.Done():
			logger.Info().Msg("sweeper stopped")
			return nil
		case <-ticker.C:
		}
	}
}

func sweepOnce(ctx context.Context, sweeper *service.Sweeper, logger *zerolog.Logger) error {
	runCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	stats, err := sweeper.Sweep(runCtx)
	if err != nil {
		return err
	}
	logger.Info().
		Int("holds_examined", stats.HoldsExamined).
		Int("holds_cancelled", stats.HoldsCancelled).
		Int("holds_skipped", stats.HoldsSkipped).
		Int("waitlist_examined", stats.WaitlistExamined).
		Int("waitlist_expired", stats.WaitlistExpired).
		Msg("sweep completed")
	return nil
}

func initNotifier(cfg *config.Config, logger *zerolog.Logger) domain.Notifier {
	if cfg.Notify.Provider == "telegram" {
		tn, err := notify.NewTelegramNotifier(cfg.Notify.TelegramToken, cfg.Notify.TelegramChat, logger)
		if err != nil {
			logger.Warn().Err(err).Msg("telegram init failed, falling back to log notifier")
			return notify.NewLogNotifier(logger)
		}
		return tn
	}
	return notify.NewLogNotifier(logger)
}
