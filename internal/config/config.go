package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Common contains Elasticsearch parameters shared by every service.
type Common struct {
	ElasticsearchAddr string
	EventIndex        string
	FailureIndex      string
}

// Pipeline holds the tunables of the cognitive stages. Every knob is validated
// once at startup; stages receive the struct read-only.
type Pipeline struct {
	// Extraction
	TruncateChars int
	TaggerAddr    string
	TaggerTimeout time.Duration

	// Generative model (OpenAI-compatible endpoint)
	ModelEndpoint    string
	ModelName        string
	ModelAPIKey      string
	ModelTimeout     time.Duration
	ModelMaxInFlight int64

	// Fact checking
	RegistryAddr   string
	KnowledgeAddr  string
	LookupTimeout  time.Duration
	UnknownPenalty float64

	// Causal mapping / summarization
	RelationFloor     float64
	StageRetries      int
	RetryBackoff      time.Duration
	DefaultSeverity   int
	NoRelationCeiling int
}

// Worker holds configuration for the Kafka -> pipeline -> Kafka worker.
type Worker struct {
	Common
	Pipeline
	KafkaBrokers   []string
	RawTopic       string
	GraphTopic     string
	ConsumerGroup  string
	Concurrency    int
	DedupeCapacity int
	DedupeTTL      time.Duration
}

// API describes HTTP-layer configuration.
type API struct {
	Common
	BindAddr    string
	DefaultPage int
	MaxPage     int
}

// Retention configures the cleanup loop.
type Retention struct {
	Common
	Interval  time.Duration
	MaxAge    time.Duration
	BatchSize int
}

// LoadWorker builds a Worker config from environment variables.
func LoadWorker() (*Worker, error) {
	c := &Worker{
		Common:         loadCommon(),
		Pipeline:       loadPipeline(),
		KafkaBrokers:   splitAndTrim(getEnv("KAFKA_BROKERS", "kafka:9092")),
		RawTopic:       getEnv("KAFKA_TOPIC_RAW", "raw_articles"),
		GraphTopic:     getEnv("KAFKA_TOPIC_GRAPH", "graph_events"),
		ConsumerGroup:  getEnv("KAFKA_CONSUMER_GROUP", "cognitive-worker"),
		Concurrency:    getInt("WORKER_CONCURRENCY", 8),
		DedupeCapacity: getInt("WORKER_DEDUPE_CAPACITY", 20000),
		DedupeTTL:      getDuration("WORKER_DEDUPE_TTL", "168h"),
	}

	if len(c.KafkaBrokers) == 0 {
		return nil, fmt.Errorf("KAFKA_BROKERS must contain at least one broker")
	}
	if c.RawTopic == c.GraphTopic {
		return nil, fmt.Errorf("KAFKA_TOPIC_RAW and KAFKA_TOPIC_GRAPH must differ")
	}
	if c.Concurrency <= 0 {
		return nil, fmt.Errorf("WORKER_CONCURRENCY must be positive")
	}
	if c.DedupeCapacity <= 0 {
		return nil, fmt.Errorf("WORKER_DEDUPE_CAPACITY must be positive")
	}
	if err := c.Pipeline.validate(); err != nil {
		return nil, err
	}

	return c, nil
}

// LoadAPI builds an API config from environment variables.
func LoadAPI() (*API, error) {
	c := &API{
		Common:      loadCommon(),
		BindAddr:    getEnv("API_BIND_ADDR", "0.0.0.0:8080"),
		DefaultPage: getInt("API_PAGE_SIZE", 20),
		MaxPage:     getInt("API_MAX_PAGE_SIZE", 100),
	}

	if c.DefaultPage <= 0 {
		return nil, fmt.Errorf("API_PAGE_SIZE must be positive")
	}
	if c.MaxPage <= 0 {
		return nil, fmt.Errorf("API_MAX_PAGE_SIZE must be positive")
	}
	if c.DefaultPage > c.MaxPage {
		return nil, fmt.Errorf("API_PAGE_SIZE cannot exceed API_MAX_PAGE_SIZE")
	}

	return c, nil
}

// LoadRetention builds a Retention config from environment variables.
func LoadRetention() (*Retention, error) {
	c := &Retention{
		Common:    loadCommon(),
		Interval:  getDuration("RETENTION_INTERVAL", "24h"),
		MaxAge:    getDuration("RETENTION_MAX_AGE", "720h"),
		BatchSize: getInt("RETENTION_BATCH_SIZE", 500),
	}

	if c.MaxAge <= 0 {
		return nil, fmt.Errorf("RETENTION_MAX_AGE must be positive")
	}
	if c.Interval <= 0 {
		return nil, fmt.Errorf("RETENTION_INTERVAL must be positive")
	}
	if c.BatchSize <= 0 {
		return nil, fmt.Errorf("RETENTION_BATCH_SIZE must be positive")
	}

	return c, nil
}

func loadCommon() Common {
	return Common{
		ElasticsearchAddr: getEnv("ELASTICSEARCH_ADDR", "http://elasticsearch:9200"),
		EventIndex:        getEnv("ELASTICSEARCH_EVENT_INDEX", "graph_events"),
		FailureIndex:      getEnv("ELASTICSEARCH_FAILURE_INDEX", "pipeline_failures"),
	}
}

func loadPipeline() Pipeline {
	return Pipeline{
		TruncateChars:     getInt("PIPELINE_TRUNCATE_CHARS", 12000),
		TaggerAddr:        getEnv("TAGGER_ADDR", "http://tagger:9090"),
		TaggerTimeout:     getDuration("TAGGER_TIMEOUT", "10s"),
		ModelEndpoint:     getEnv("MODEL_ENDPOINT", "https://api.openai.com/v1/chat/completions"),
		ModelName:         getEnv("MODEL_NAME", "gpt-4-turbo-preview"),
		ModelAPIKey:       getEnv("MODEL_API_KEY", ""),
		ModelTimeout:      getDuration("MODEL_TIMEOUT", "30s"),
		ModelMaxInFlight:  int64(getInt("MODEL_MAX_IN_FLIGHT", 4)),
		RegistryAddr:      getEnv("REGISTRY_ADDR", "https://api.opencorporates.com"),
		KnowledgeAddr:     getEnv("KNOWLEDGE_ADDR", "https://www.wikidata.org/w/api.php"),
		LookupTimeout:     getDuration("LOOKUP_TIMEOUT", "5s"),
		UnknownPenalty:    getFloat("VALIDATION_UNKNOWN_PENALTY", 0.5),
		RelationFloor:     getFloat("RELATION_CONFIDENCE_FLOOR", 0.3),
		StageRetries:      getInt("STAGE_RETRIES", 2),
		RetryBackoff:      getDuration("STAGE_RETRY_BACKOFF", "500ms"),
		DefaultSeverity:   getInt("SUMMARY_DEFAULT_SEVERITY", 5),
		NoRelationCeiling: getInt("SUMMARY_NO_RELATION_CEILING", 4),
	}
}

func (p Pipeline) validate() error {
	if p.TruncateChars <= 0 {
		return fmt.Errorf("PIPELINE_TRUNCATE_CHARS must be positive")
	}
	if p.ModelEndpoint == "" {
		return fmt.Errorf("MODEL_ENDPOINT must not be empty")
	}
	if p.ModelMaxInFlight <= 0 {
		return fmt.Errorf("MODEL_MAX_IN_FLIGHT must be positive")
	}
	if p.UnknownPenalty <= 0 || p.UnknownPenalty > 1 {
		return fmt.Errorf("VALIDATION_UNKNOWN_PENALTY must be in (0,1]")
	}
	if p.RelationFloor < 0 || p.RelationFloor > 1 {
		return fmt.Errorf("RELATION_CONFIDENCE_FLOOR must be in [0,1]")
	}
	if p.StageRetries < 0 {
		return fmt.Errorf("STAGE_RETRIES cannot be negative")
	}
	if p.RetryBackoff <= 0 {
		return fmt.Errorf("STAGE_RETRY_BACKOFF must be positive")
	}
	if p.DefaultSeverity < 1 || p.DefaultSeverity > 10 {
		return fmt.Errorf("SUMMARY_DEFAULT_SEVERITY must be in [1,10]")
	}
	if p.NoRelationCeiling < 1 || p.NoRelationCeiling > 10 {
		return fmt.Errorf("SUMMARY_NO_RELATION_CEILING must be in [1,10]")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			return parsed
		}
	}
	return fallback
}

func getFloat(key string, fallback float64) float64 {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := strconv.ParseFloat(v, 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func getDuration(key, fallback string) time.Duration {
	raw := getEnv(key, fallback)
	d, err := time.ParseDuration(raw)
	if err != nil {
		fd, ferr := time.ParseDuration(fallback)
		if ferr != nil {
			panic(fmt.Sprintf("invalid fallback duration %q: %v", fallback, ferr))
		}
		return fd
	}
	return d
}

func splitAndTrim(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
