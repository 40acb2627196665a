package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/toop9472-lang/Sgr2040-sub001/internal/cache"
	"github.com/toop9472-lang/Sgr2040-sub001/internal/config"
	"github.com/toop9472-lang/Sgr2040-sub001/internal/logging"
	"github.com/toop9472-lang/Sgr2040-sub001/internal/queue"
	"github.com/toop9472-lang/Sgr2040-sub001/pkg/models"
)

// The worker consumes terminal-session events off the bus and keeps
// the Redis-side aggregates current: the weekly leaderboard and the
// service-wide counters. Crediting itself happens synchronously in the
// API; everything here is derived state that can be rebuilt from the
// ledger.
func main() {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logging.NewLogger(logging.Config{Level: cfg.Server.LogLevel, Format: "json", Output: "stdout"})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	redisCache, err := cache.NewCache(cfg.Redis.Host, cfg.Redis.Port, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer redisCache.Close()

	q, err := queue.New(cfg.Queue)
	if err != nil {
		log.Fatalf("Failed to connect to queue: %v", err)
	}
	defer q.Close()

	if err := q.SetupDeadLetterQueue(); err != nil {
		log.Fatalf("Failed to set up dead letter queue: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	handler := func(event *models.RewardEvent) error {
		return handleEvent(ctx, redisCache, log, event)
	}

	if err := q.ConsumeRewardEvents(ctx, handler); err != nil {
		log.Fatalf("Failed to start consumer: %v", err)
	}

	log.Info("Reward worker started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down worker...")
	cancel()
}

func handleEvent(ctx context.Context, c *cache.Cache, log *logging.Logger, event *models.RewardEvent) error {
	switch event.Type {
	case models.EventRewardCredited:
		if err := c.AddLeaderboardPoints(ctx, event.UserID, event.Points, event.OccurredAt); err != nil {
			return fmt.Errorf("failed to update leaderboard: %w", err)
		}
		if err := c.IncrementStat(ctx, "ads_completed", 1); err != nil {
			log.WithError(err).Warn("Failed to bump completion counter")
		}
		if err := c.IncrementStat(ctx, "points_credited", event.Points); err != nil {
			log.WithError(err).Warn("Failed to bump points counter")
		}
		log.WithUserID(event.UserID).WithSessionID(event.SessionID).
			Infof("Leaderboard updated: +%d points", event.Points)

	case models.EventSessionRejected:
		if err := c.IncrementStat(ctx, "ads_rejected", 1); err != nil {
			log.WithError(err).Warn("Failed to bump rejection counter")
		}

	case models.EventSessionExpired:
		if err := c.IncrementStat(ctx, "ads_expired", 1); err != nil {
			log.WithError(err).Warn("Failed to bump expiry counter")
		}

	default:
		log.Warnf("Unknown reward event type: %s", event.Type)
	}

	return nil
}
