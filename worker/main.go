package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"golang.org/x/sync/errgroup"

	"github.com/TheGoodCatalyst/news-curator/internal/config"
	"github.com/TheGoodCatalyst/news-curator/internal/dedupe"
	"github.com/TheGoodCatalyst/news-curator/internal/elasticsearch"
	"github.com/TheGoodCatalyst/news-curator/internal/inference"
	"github.com/TheGoodCatalyst/news-curator/internal/logger"
	"github.com/TheGoodCatalyst/news-curator/internal/lookup"
	"github.com/TheGoodCatalyst/news-curator/internal/models"
	"github.com/TheGoodCatalyst/news-curator/internal/pipeline"
)

type rawArticle struct {
	ArticleID   string `json:"article_id"`
	Title       string `json:"title"`
	Body        string `json:"body"`
	Source      string `json:"source"`
	PublishedAt string `json:"published_at"`
}

type eventSink interface {
	IndexEvent(ctx context.Context, event models.GraphEvent) error
	IndexFailure(ctx context.Context, record models.FailureRecord) error
}

type publisher interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

type worker struct {
	log   *slog.Logger
	orc   *pipeline.Orchestrator
	cache *dedupe.Cache
	sink  eventSink
	graph publisher
}

func main() {
	log := logger.New("worker")
	cfg, err := config.LoadWorker()
	if err != nil {
		log.Error("load config", slog.Any("err", err))
		os.Exit(1)
	}

	esClient, err := elasticsearch.New(cfg.ElasticsearchAddr, cfg.EventIndex, cfg.FailureIndex, log)
	if err != nil {
		log.Error("init elasticsearch", slog.Any("err", err))
		os.Exit(1)
	}

	generative := inference.NewGenerative(cfg.ModelEndpoint, cfg.ModelName, cfg.ModelAPIKey, cfg.ModelTimeout)
	// One gate for every generative call across all in-flight articles.
	model := inference.Limit(generative, cfg.ModelMaxInFlight)
	tagger := inference.NewTagger(cfg.TaggerAddr, cfg.TaggerTimeout)

	orc := pipeline.NewOrchestrator(
		pipeline.NewExtractor(tagger, model, cfg.TruncateChars, log),
		pipeline.NewFactChecker(
			lookup.NewRegistry(cfg.RegistryAddr, cfg.LookupTimeout),
			lookup.NewKnowledgeBase(cfg.KnowledgeAddr, cfg.LookupTimeout),
			cfg.UnknownPenalty,
			log,
		),
		pipeline.NewCausalMapper(model, cfg.RelationFloor, log),
		pipeline.NewSummarizer(model, cfg.DefaultSeverity, cfg.NoRelationCeiling, log),
		cfg.StageRetries,
		cfg.RetryBackoff,
		generative.Model(),
		log,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.KafkaBrokers,
		Topic:          cfg.RawTopic,
		GroupID:        cfg.ConsumerGroup,
		MinBytes:       1e3,
		MaxBytes:       10e6,
		CommitInterval: 0, // Disable auto-commit; manual commit only
	})
	defer reader.Close()

	graphWriter := kafka.NewWriter(kafka.WriterConfig{
		Brokers:     cfg.KafkaBrokers,
		Topic:       cfg.GraphTopic,
		MaxAttempts: 3,
	})
	defer graphWriter.Close()

	dlqWriter := kafka.NewWriter(kafka.WriterConfig{
		Brokers:     cfg.KafkaBrokers,
		Topic:       cfg.RawTopic + "_dlq",
		MaxAttempts: 3,
	})
	defer dlqWriter.Close()

	w := &worker{
		log:   log,
		orc:   orc,
		cache: dedupe.NewCache(cfg.DedupeCapacity, cfg.DedupeTTL),
		sink:  esClient,
		graph: graphWriter,
	}

	log.Info("worker started",
		slog.String("raw_topic", cfg.RawTopic),
		slog.String("graph_topic", cfg.GraphTopic),
		slog.String("group", cfg.ConsumerGroup),
		slog.Int("concurrency", cfg.Concurrency),
		slog.String("model", cfg.ModelName),
	)

	// Articles are independent units of work: process up to Concurrency of
	// them at once, each owning its strictly sequential pipeline run.
	var pool errgroup.Group
	pool.SetLimit(cfg.Concurrency)

	for {
		msg, err := reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				log.Info("context canceled, stopping")
				break
			}
			log.Error("fetch message", slog.Any("err", err))
			continue
		}

		pool.Go(func() error {
			w.handle(ctx, reader, dlqWriter, msg)
			return nil
		})
	}

	if err := pool.Wait(); err != nil {
		log.Error("worker pool", slog.Any("err", err))
	}
	log.Info("worker stopped")
}

// handle runs one message to a terminal outcome and commits it. A message is
// committed only after it either produced an event, was skipped as a
// duplicate, or was parked in the DLQ; cancellation commits nothing so the
// article is redelivered.
func (w *worker) handle(ctx context.Context, reader *kafka.Reader, dlq publisher, msg kafka.Message) {
	err := w.processMessage(ctx, msg)
	if err != nil {
		if ctx.Err() != nil {
			w.log.Info("processing canceled, leaving message uncommitted",
				slog.Int("partition", msg.Partition),
				slog.Int64("offset", msg.Offset),
			)
			return
		}

		w.log.Warn("process message failed, sending to DLQ",
			slog.Any("err", err),
			slog.Int("partition", msg.Partition),
			slog.Int64("offset", msg.Offset),
		)
		if !w.sendToDLQ(ctx, dlq, msg, err) {
			// Skip the commit so the message is reprocessed on restart.
			return
		}
	}

	// Concurrent tasks commit independently, so offsets within a partition
	// can commit out of order. A crash after a later offset commits while an
	// earlier one is still in flight skips that earlier article on restart
	// without a failure record; the reverse window replays finished articles,
	// which the dedupe cache absorbs. Accepted trade-off of the pooled loop
	// versus per-partition commit tracking.
	if err := reader.CommitMessages(ctx, msg); err != nil {
		w.log.Error("commit message", slog.Any("err", err))
	}
}

// processMessage decodes one raw article and runs it through the pipeline.
// The returned error means the article reached no event: either the payload
// was unusable or the pipeline failed fatally.
func (w *worker) processMessage(ctx context.Context, msg kafka.Message) error {
	var payload rawArticle
	if err := json.Unmarshal(msg.Value, &payload); err != nil {
		w.recordFailure(ctx, models.FailureRecord{
			ID:       uuid.NewString(),
			Stage:    string(pipeline.StageReceived),
			Reason:   "BadMessage",
			Detail:   err.Error(),
			FailedAt: time.Now().UTC(),
		})
		return fmt.Errorf("decode article payload: %w", err)
	}

	article := models.Article{
		ID:          strings.TrimSpace(payload.ArticleID),
		Title:       strings.TrimSpace(payload.Title),
		Body:        payload.Body,
		Source:      strings.TrimSpace(payload.Source),
		PublishedAt: parseTimestamp(payload.PublishedAt),
	}
	if article.ID == "" {
		article.ID = uuid.NewString()
	}
	if article.Source == "" {
		article.Source = "unknown"
	}

	if w.cache.Seen(article.ID) {
		w.log.Debug("duplicate article", slog.String("article_id", article.ID))
		return nil
	}

	event, err := w.orc.Process(ctx, article)
	if err != nil {
		var articleErr *pipeline.ArticleError
		if errors.As(err, &articleErr) && ctx.Err() == nil {
			w.recordFailure(ctx, models.FailureRecord{
				ID:        uuid.NewString(),
				ArticleID: articleErr.ArticleID,
				Source:    article.Source,
				Stage:     string(articleErr.Stage),
				Reason:    articleErr.Reason,
				Detail:    articleErr.Err.Error(),
				FailedAt:  time.Now().UTC(),
			})
		}
		return err
	}

	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal graph event: %w", err)
	}
	if err := w.graph.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.ArticleID),
		Value: body,
	}); err != nil {
		return fmt.Errorf("publish graph event: %w", err)
	}

	// The archive copy is a convenience for the operator API; losing it
	// must not fail an already-published article.
	if err := w.sink.IndexEvent(ctx, *event); err != nil {
		w.log.Warn("index graph event", slog.Any("err", err), slog.String("article_id", event.ArticleID))
	}

	w.cache.Mark(article.ID)
	w.log.Info("graph event published",
		slog.String("article_id", event.ArticleID),
		slog.Int("entities", len(event.Entities)),
		slog.Int("relationships", len(event.Relationships)),
		slog.Bool("degraded", event.Metadata.Degraded),
	)
	return nil
}

func (w *worker) recordFailure(ctx context.Context, record models.FailureRecord) {
	if err := w.sink.IndexFailure(ctx, record); err != nil {
		w.log.Warn("index failure record", slog.Any("err", err), slog.String("article_id", record.ArticleID))
	}
}

// sendToDLQ parks an unprocessable message with error context, retrying the
// write with exponential backoff. Returns false when every attempt failed.
func (w *worker) sendToDLQ(ctx context.Context, dlq publisher, msg kafka.Message, cause error) bool {
	dlqMsg := kafka.Message{
		Value: msg.Value,
		Headers: append(msg.Headers,
			kafka.Header{Key: "original_partition", Value: []byte(fmt.Sprintf("%d", msg.Partition))},
			kafka.Header{Key: "original_offset", Value: []byte(fmt.Sprintf("%d", msg.Offset))},
			kafka.Header{Key: "error", Value: []byte(cause.Error())},
			kafka.Header{Key: "timestamp", Value: []byte(time.Now().UTC().Format(time.RFC3339))},
		),
	}

	for attempt := range 5 {
		if err := dlq.WriteMessages(ctx, dlqMsg); err == nil {
			w.log.Info("message sent to DLQ",
				slog.Int("partition", msg.Partition),
				slog.Int64("offset", msg.Offset),
				slog.Int("attempt", attempt+1),
			)
			return true
		} else {
			backoff := time.Duration(1<<uint(attempt)) * time.Second
			w.log.Warn("DLQ write failed, retrying",
				slog.Any("err", err),
				slog.Int("attempt", attempt+1),
				slog.Duration("backoff", backoff),
			)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return false
			}
		}
	}

	w.log.Error("DLQ write exhausted retries, message may be lost if later messages commit",
		slog.Int("partition", msg.Partition),
		slog.Int64("offset", msg.Offset),
	)
	return false
}

func parseTimestamp(raw string) time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}
	}

	formats := []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02 15:04:05",
	}

	for _, f := range formats {
		if ts, err := time.Parse(f, raw); err == nil {
			return ts
		}
	}

	return time.Time{}
}
