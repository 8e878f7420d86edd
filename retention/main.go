package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/TheGoodCatalyst/news-curator/internal/config"
	"github.com/TheGoodCatalyst/news-curator/internal/elasticsearch"
	"github.com/TheGoodCatalyst/news-curator/internal/logger"
)

func main() {
	log := logger.New("retention")
	cfg, err := config.LoadRetention()
	if err != nil {
		log.Error("load config", slog.Any("err", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	esClient, err := connect(ctx, log, cfg)
	if err != nil {
		log.Error("connect to elasticsearch", slog.Any("err", err))
		os.Exit(1)
	}
	log.Info("connected to elasticsearch")

	log.Info("retention job running",
		slog.Duration("interval", cfg.Interval),
		slog.Duration("max_age", cfg.MaxAge),
	)

	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()

	// Run immediately on start so a crashed job catches up quickly.
	sweep(ctx, log, esClient, cfg)

	for {
		select {
		case <-ctx.Done():
			log.Info("shutdown signal received")
			return
		case <-ticker.C:
			sweep(ctx, log, esClient, cfg)
		}
	}
}

// connect dials Elasticsearch with exponential backoff. The cleanup job often
// starts before the cluster is ready, so startup failures are retried rather
// than fatal.
func connect(ctx context.Context, log *slog.Logger, cfg *config.Retention) (*elasticsearch.Client, error) {
	const maxAttempts = 10
	delay := 2 * time.Second

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		esClient, err := elasticsearch.New(cfg.ElasticsearchAddr, cfg.EventIndex, cfg.FailureIndex, log)
		if err == nil {
			pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err = esClient.Ping(pingCtx)
			cancel()
			if err == nil {
				return esClient, nil
			}
		}

		log.Warn("elasticsearch unavailable, retrying",
			slog.Any("err", err),
			slog.Int("attempt", attempt),
			slog.Duration("retry_in", delay),
		)

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		delay *= 2
		if delay > 30*time.Second {
			delay = 30 * time.Second
		}
	}

	return nil, fmt.Errorf("elasticsearch unreachable after %d attempts", maxAttempts)
}

func sweep(ctx context.Context, log *slog.Logger, esClient *elasticsearch.Client, cfg *config.Retention) {
	subCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	deleted, err := esClient.DeleteOlderThan(subCtx, cfg.MaxAge, cfg.BatchSize)
	if err != nil {
		log.Warn("retention sweep failed, will retry on next interval", slog.Any("err", err))
		return
	}

	if deleted > 0 {
		log.Info("retention sweep completed",
			slog.Int64("deleted", deleted),
			slog.Duration("max_age", cfg.MaxAge),
		)
	} else {
		log.Debug("retention sweep completed, no aged documents")
	}
}
