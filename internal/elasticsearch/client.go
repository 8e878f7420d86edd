package elasticsearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"github.com/TheGoodCatalyst/news-curator/internal/models"
)

// Client wraps go-elasticsearch with helpers for the two pipeline indexes:
// emitted graph events and failure records.
type Client struct {
	es           *elasticsearch.Client
	eventIndex   string
	failureIndex string
	log          *slog.Logger
}

// EventSearchParams narrow the event search endpoint query.
type EventSearchParams struct {
	ArticleID   string
	Sector      string
	MinSeverity int
	Degraded    *bool
	From        int
	Size        int
	Start       *time.Time
	End         *time.Time
}

// FailureSearchParams narrow the failure search endpoint query.
type FailureSearchParams struct {
	ArticleID string
	Reason    string
	Stage     string
	From      int
	Size      int
}

// EventSearchResult bundles event hits and total count.
type EventSearchResult struct {
	Total int64               `json:"total"`
	Items []models.GraphEvent `json:"items"`
}

// FailureSearchResult bundles failure hits and total count.
type FailureSearchResult struct {
	Total int64                  `json:"total"`
	Items []models.FailureRecord `json:"items"`
}

// New instantiates the Elasticsearch client.
func New(addr, eventIndex, failureIndex string, logger *slog.Logger) (*Client, error) {
	cfg := elasticsearch.Config{
		Addresses: []string{addr},
	}

	es, err := elasticsearch.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("create elasticsearch client: %w", err)
	}

	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &Client{es: es, eventIndex: eventIndex, failureIndex: failureIndex, log: logger}, nil
}

// Ping checks if Elasticsearch is available.
func (c *Client) Ping(ctx context.Context) error {
	res, err := c.es.Ping(c.es.Ping.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("ping elasticsearch: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("elasticsearch ping failed: %s", res.Status())
	}

	return nil
}

// IndexEvent archives an emitted graph event.
func (c *Client) IndexEvent(ctx context.Context, event models.GraphEvent) error {
	return c.index(ctx, c.eventIndex, event.ID, event)
}

// IndexFailure records a dropped article so failures stay countable and
// inspectable without digging through logs.
func (c *Client) IndexFailure(ctx context.Context, record models.FailureRecord) error {
	return c.index(ctx, c.failureIndex, record.ID, record)
}

func (c *Client) index(ctx context.Context, index, id string, doc any) error {
	payload, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal doc: %w", err)
	}

	req := esapi.IndexRequest{
		Index:      index,
		DocumentID: id,
		Body:       bytes.NewReader(payload),
		Refresh:    "false",
	}

	res, err := req.Do(ctx, c.es)
	if err != nil {
		return fmt.Errorf("index doc: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		body, _ := io.ReadAll(res.Body)
		return fmt.Errorf("index doc failed: %s", strings.TrimSpace(string(body)))
	}

	return nil
}

// SearchEvents executes a bool query with optional filters over the event
// index.
func (c *Client) SearchEvents(ctx context.Context, params EventSearchParams) (*EventSearchResult, error) {
	filters := make([]map[string]any, 0, 5)

	if params.ArticleID != "" {
		filters = append(filters, term("article_id", params.ArticleID))
	}
	if params.Sector != "" {
		filters = append(filters, term("impact_summary.affected_sectors", params.Sector))
	}
	if params.MinSeverity > 0 {
		filters = append(filters, map[string]any{
			"range": map[string]any{
				"impact_summary.severity": map[string]any{"gte": params.MinSeverity},
			},
		})
	}
	if params.Degraded != nil {
		filters = append(filters, term("metadata.degraded", *params.Degraded))
	}
	if params.Start != nil || params.End != nil {
		rangeQuery := map[string]any{}
		if params.Start != nil {
			rangeQuery["gte"] = params.Start.UTC().Format(time.RFC3339)
		}
		if params.End != nil {
			rangeQuery["lte"] = params.End.UTC().Format(time.RFC3339)
		}
		filters = append(filters, map[string]any{
			"range": map[string]any{"processed_at": rangeQuery},
		})
	}

	body := searchBody(filters, params.From, params.Size, "processed_at")

	raw, err := c.search(ctx, c.eventIndex, body)
	if err != nil {
		return nil, err
	}

	var parsed struct {
		Hits struct {
			Total struct {
				Value int64 `json:"value"`
			} `json:"total"`
			Hits []struct {
				Source models.GraphEvent `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	items := make([]models.GraphEvent, 0, len(parsed.Hits.Hits))
	for _, hit := range parsed.Hits.Hits {
		items = append(items, hit.Source)
	}
	return &EventSearchResult{Total: parsed.Hits.Total.Value, Items: items}, nil
}

// SearchFailures executes a bool query with optional filters over the
// failure index.
func (c *Client) SearchFailures(ctx context.Context, params FailureSearchParams) (*FailureSearchResult, error) {
	filters := make([]map[string]any, 0, 3)

	if params.ArticleID != "" {
		filters = append(filters, term("article_id", params.ArticleID))
	}
	if params.Reason != "" {
		filters = append(filters, term("reason", params.Reason))
	}
	if params.Stage != "" {
		filters = append(filters, term("stage", params.Stage))
	}

	body := searchBody(filters, params.From, params.Size, "failed_at")

	raw, err := c.search(ctx, c.failureIndex, body)
	if err != nil {
		return nil, err
	}

	var parsed struct {
		Hits struct {
			Total struct {
				Value int64 `json:"value"`
			} `json:"total"`
			Hits []struct {
				Source models.FailureRecord `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	items := make([]models.FailureRecord, 0, len(parsed.Hits.Hits))
	for _, hit := range parsed.Hits.Hits {
		items = append(items, hit.Source)
	}
	return &FailureSearchResult{Total: parsed.Hits.Total.Value, Items: items}, nil
}

func (c *Client) search(ctx context.Context, index string, body map[string]any) (json.RawMessage, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal search body: %w", err)
	}

	res, err := c.es.Search(
		c.es.Search.WithContext(ctx),
		c.es.Search.WithIndex(index),
		c.es.Search.WithBody(bytes.NewReader(payload)),
	)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		data, _ := io.ReadAll(res.Body)
		return nil, fmt.Errorf("search failed: %s", strings.TrimSpace(string(data)))
	}

	raw, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("read search response: %w", err)
	}
	return raw, nil
}

// DeleteOlderThan removes documents older than maxAge from both indexes
// using batched delete-by-query. It loops until a batch deletes fewer
// documents than batchSize.
func (c *Client) DeleteOlderThan(ctx context.Context, maxAge time.Duration, batchSize int) (int64, error) {
	if batchSize <= 0 {
		batchSize = 1000
	}

	cutoff := time.Now().Add(-maxAge).UTC().Format(time.RFC3339)
	total := int64(0)

	targets := []struct {
		index string
		field string
	}{
		{index: c.eventIndex, field: "processed_at"},
		{index: c.failureIndex, field: "failed_at"},
	}

	for _, target := range targets {
		for {
			body := map[string]any{
				"query": map[string]any{
					"range": map[string]any{
						target.field: map[string]any{"lte": cutoff},
					},
				},
			}

			payload, err := json.Marshal(body)
			if err != nil {
				return total, fmt.Errorf("marshal delete body: %w", err)
			}

			res, err := c.es.DeleteByQuery(
				[]string{target.index},
				bytes.NewReader(payload),
				c.es.DeleteByQuery.WithContext(ctx),
				c.es.DeleteByQuery.WithWaitForCompletion(true),
				c.es.DeleteByQuery.WithConflicts("proceed"),
				c.es.DeleteByQuery.WithScrollSize(batchSize),
			)
			if err != nil {
				return total, fmt.Errorf("delete by query: %w", err)
			}

			if res.IsError() {
				data, _ := io.ReadAll(res.Body)
				res.Body.Close()
				return total, fmt.Errorf("delete by query failed: %s", strings.TrimSpace(string(data)))
			}

			var parsed struct {
				Deleted int64 `json:"deleted"`
			}
			if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
				res.Body.Close()
				return total, fmt.Errorf("decode delete response: %w", err)
			}
			res.Body.Close()

			total += parsed.Deleted
			if parsed.Deleted < int64(batchSize) {
				break
			}
		}
	}

	return total, nil
}

// Health pings the cluster to ensure connectivity.
func (c *Client) Health(ctx context.Context) error {
	res, err := c.es.Cluster.Health(c.es.Cluster.Health.WithContext(ctx))
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode >= http.StatusBadRequest {
		data, _ := io.ReadAll(res.Body)
		return fmt.Errorf("cluster health bad: %s", strings.TrimSpace(string(data)))
	}
	return nil
}

func term(field string, value any) map[string]any {
	return map[string]any{
		"term": map[string]any{field: value},
	}
}

func searchBody(filters []map[string]any, from, size int, sortField string) map[string]any {
	if size <= 0 {
		size = 20
	}
	if size > 200 {
		size = 200
	}
	if from < 0 {
		from = 0
	}

	boolQuery := map[string]any{}
	if len(filters) > 0 {
		boolQuery["filter"] = filters
	} else {
		boolQuery["must"] = []map[string]any{
			{"match_all": map[string]any{}},
		}
	}

	return map[string]any{
		"from":             from,
		"size":             size,
		"track_total_hits": true,
		"query":            map[string]any{"bool": boolQuery},
		"sort": []map[string]any{
			{sortField: map[string]any{"order": "desc"}},
		},
	}
}
