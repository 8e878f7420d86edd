package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Tagger calls a statistical NER service over HTTP. The service accepts raw
// text and returns labeled spans with scores; no prompt or schema handling
// happens on the model side, so Infer ignores everything but the text.
type Tagger struct {
	addr       string
	timeout    time.Duration
	httpClient *http.Client
}

var _ Client = (*Tagger)(nil)

// NewTagger builds a tagger client for the given base address.
func NewTagger(addr string, timeout time.Duration) *Tagger {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Tagger{
		addr:       strings.TrimRight(addr, "/"),
		timeout:    timeout,
		httpClient: &http.Client{},
	}
}

// Infer posts req.Prompt as the text to tag and returns the span list JSON.
func (t *Tagger) Infer(ctx context.Context, req Request) (json.RawMessage, error) {
	if t.addr == "" {
		return nil, fmt.Errorf("tagger client misconfigured")
	}

	body, err := json.Marshal(map[string]string{"text": req.Prompt})
	if err != nil {
		return nil, fmt.Errorf("marshal tagger payload: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, t.addr+"/v1/entities", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := t.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("tagger call: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("tagger error %s: %s", resp.Status, strings.TrimSpace(string(payload)))
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read tagger response: %w", err)
	}
	if !json.Valid(raw) {
		return nil, fmt.Errorf("tagger response is not valid JSON")
	}
	return json.RawMessage(raw), nil
}
