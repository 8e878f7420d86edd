package lookup

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/TheGoodCatalyst/news-curator/internal/textutil"
)

// KnowledgeBase validates people and locations against a Wikidata-style
// entity search endpoint.
type KnowledgeBase struct {
	endpoint   string
	timeout    time.Duration
	httpClient *http.Client
}

var _ Source = (*KnowledgeBase)(nil)

// NewKnowledgeBase builds a knowledge-base client for the given endpoint.
func NewKnowledgeBase(endpoint string, timeout time.Duration) *KnowledgeBase {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &KnowledgeBase{
		endpoint:   endpoint,
		timeout:    timeout,
		httpClient: &http.Client{},
	}
}

// Name implements Source.
func (k *KnowledgeBase) Name() string {
	return "knowledge-base"
}

type knowledgeResponse struct {
	Search []struct {
		Label   string   `json:"label"`
		Aliases []string `json:"aliases"`
	} `json:"search"`
}

// Lookup searches the knowledge base for a label or alias matching the name
// case-insensitively.
func (k *KnowledgeBase) Lookup(ctx context.Context, name string) (Verdict, error) {
	ctx, cancel := context.WithTimeout(ctx, k.timeout)
	defer cancel()

	params := url.Values{}
	params.Set("action", "wbsearchentities")
	params.Set("format", "json")
	params.Set("language", "en")
	params.Set("search", name)
	params.Set("limit", "5")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, k.endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return NoMatch, fmt.Errorf("new request: %w", err)
	}

	resp, err := k.httpClient.Do(req)
	if err != nil {
		return NoMatch, fmt.Errorf("knowledge base call: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return NoMatch, fmt.Errorf("knowledge base error: %s", resp.Status)
	}

	var parsed knowledgeResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return NoMatch, fmt.Errorf("decode knowledge response: %w", err)
	}

	want := textutil.CanonicalName(name)
	for _, hit := range parsed.Search {
		if textutil.CanonicalName(hit.Label) == want {
			return Match, nil
		}
		for _, alias := range hit.Aliases {
			if textutil.CanonicalName(alias) == want {
				return Match, nil
			}
		}
	}
	return NoMatch, nil
}
