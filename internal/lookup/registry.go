package lookup

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/TheGoodCatalyst/news-curator/internal/textutil"
)

// Registry validates organization names against an OpenCorporates-style
// company search API.
type Registry struct {
	addr       string
	timeout    time.Duration
	httpClient *http.Client
}

var _ Source = (*Registry)(nil)

// NewRegistry builds a registry client for the given base address.
func NewRegistry(addr string, timeout time.Duration) *Registry {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Registry{
		addr:       strings.TrimRight(addr, "/"),
		timeout:    timeout,
		httpClient: &http.Client{},
	}
}

// Name implements Source.
func (r *Registry) Name() string {
	return "organization-registry"
}

type registryResponse struct {
	Results struct {
		Companies []struct {
			Company struct {
				Name string `json:"name"`
			} `json:"company"`
		} `json:"companies"`
	} `json:"results"`
}

// Lookup searches the registry for an exact, case-insensitive company name.
func (r *Registry) Lookup(ctx context.Context, name string) (Verdict, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	endpoint := r.addr + "/v0.4/companies/search?q=" + url.QueryEscape(name) + "&per_page=5"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return NoMatch, fmt.Errorf("new request: %w", err)
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return NoMatch, fmt.Errorf("registry call: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return NoMatch, fmt.Errorf("registry error: %s", resp.Status)
	}

	var parsed registryResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return NoMatch, fmt.Errorf("decode registry response: %w", err)
	}

	want := textutil.CanonicalName(name)
	for _, hit := range parsed.Results.Companies {
		if textutil.CanonicalName(hit.Company.Name) == want {
			return Match, nil
		}
	}
	return NoMatch, nil
}
