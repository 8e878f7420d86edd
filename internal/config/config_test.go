package config_test

import (
	"testing"
	"time"

	"github.com/TheGoodCatalyst/news-curator/internal/config"
	"github.com/stretchr/testify/require"
)

func TestLoadWorkerDefaults(t *testing.T) {
	t.Setenv("ELASTICSEARCH_ADDR", "")
	t.Setenv("KAFKA_BROKERS", "")
	t.Setenv("KAFKA_TOPIC_RAW", "")
	t.Setenv("KAFKA_TOPIC_GRAPH", "")
	t.Setenv("KAFKA_CONSUMER_GROUP", "")

	cfg, err := config.LoadWorker()
	require.NoError(t, err)

	require.Equal(t, "http://elasticsearch:9200", cfg.ElasticsearchAddr)
	require.Equal(t, "graph_events", cfg.EventIndex)
	require.Equal(t, "pipeline_failures", cfg.FailureIndex)
	require.Len(t, cfg.KafkaBrokers, 1)
	require.Equal(t, "kafka:9092", cfg.KafkaBrokers[0])
	require.Equal(t, "raw_articles", cfg.RawTopic)
	require.Equal(t, "graph_events", cfg.GraphTopic)
	require.Equal(t, "cognitive-worker", cfg.ConsumerGroup)
	require.Equal(t, 8, cfg.Concurrency)
	require.Equal(t, 0.5, cfg.UnknownPenalty)
	require.Equal(t, 0.3, cfg.RelationFloor)
	require.Equal(t, 2, cfg.StageRetries)
	require.Equal(t, 5, cfg.DefaultSeverity)
	require.Equal(t, 4, cfg.NoRelationCeiling)
}

func TestLoadWorkerOverrides(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", "broker-a:29092,broker-b:29093")
	t.Setenv("KAFKA_TOPIC_RAW", "raw_custom")
	t.Setenv("KAFKA_TOPIC_GRAPH", "graph_custom")
	t.Setenv("WORKER_CONCURRENCY", "16")
	t.Setenv("MODEL_MAX_IN_FLIGHT", "2")
	t.Setenv("MODEL_TIMEOUT", "45s")
	t.Setenv("VALIDATION_UNKNOWN_PENALTY", "0.7")
	t.Setenv("RELATION_CONFIDENCE_FLOOR", "0.5")
	t.Setenv("STAGE_RETRIES", "3")
	t.Setenv("STAGE_RETRY_BACKOFF", "250ms")
	t.Setenv("WORKER_DEDUPE_TTL", "48h")

	cfg, err := config.LoadWorker()
	require.NoError(t, err)

	require.Len(t, cfg.KafkaBrokers, 2)
	require.Equal(t, "broker-a:29092", cfg.KafkaBrokers[0])
	require.Equal(t, "raw_custom", cfg.RawTopic)
	require.Equal(t, "graph_custom", cfg.GraphTopic)
	require.Equal(t, 16, cfg.Concurrency)
	require.Equal(t, int64(2), cfg.ModelMaxInFlight)
	require.Equal(t, 45*time.Second, cfg.ModelTimeout)
	require.Equal(t, 0.7, cfg.UnknownPenalty)
	require.Equal(t, 0.5, cfg.RelationFloor)
	require.Equal(t, 3, cfg.StageRetries)
	require.Equal(t, 250*time.Millisecond, cfg.RetryBackoff)
	require.Equal(t, 48*time.Hour, cfg.DedupeTTL)
}

func TestLoadWorkerRejectsInvalid(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{name: "same topics", key: "KAFKA_TOPIC_GRAPH", value: "raw_articles"},
		{name: "zero workers", key: "WORKER_CONCURRENCY", value: "-1"},
		{name: "penalty above one", key: "VALIDATION_UNKNOWN_PENALTY", value: "1.5"},
		{name: "floor above one", key: "RELATION_CONFIDENCE_FLOOR", value: "2"},
		{name: "negative retries", key: "STAGE_RETRIES", value: "-1"},
		{name: "severity out of range", key: "SUMMARY_DEFAULT_SEVERITY", value: "11"},
		{name: "ceiling out of range", key: "SUMMARY_NO_RELATION_CEILING", value: "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			_, err := config.LoadWorker()
			require.Error(t, err)
		})
	}
}

func TestLoadAPIValidation(t *testing.T) {
	t.Setenv("API_PAGE_SIZE", "50")
	t.Setenv("API_MAX_PAGE_SIZE", "20")
	_, err := config.LoadAPI()
	require.Error(t, err)
}

func TestLoadRetentionDefaults(t *testing.T) {
	cfg, err := config.LoadRetention()
	require.NoError(t, err)
	require.Equal(t, 24*time.Hour, cfg.Interval)
	require.Equal(t, 720*time.Hour, cfg.MaxAge)
	require.Equal(t, 500, cfg.BatchSize)
}
