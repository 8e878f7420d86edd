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

// Generative calls an OpenAI-compatible chat-completions endpoint in JSON
// mode. The same client works against the hosted API or a local server
// speaking the same protocol.
type Generative struct {
	endpoint   string
	model      string
	apiKey     string
	timeout    time.Duration
	httpClient *http.Client
}

var _ Client = (*Generative)(nil)

// NewGenerative builds a generative client. Timeout bounds each call.
func NewGenerative(endpoint, model, apiKey string, timeout time.Duration) *Generative {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Generative{
		endpoint:   endpoint,
		model:      model,
		apiKey:     apiKey,
		timeout:    timeout,
		httpClient: &http.Client{},
	}
}

// Model returns the configured model name, recorded in event metadata.
func (g *Generative) Model() string {
	return g.model
}

type chatRequest struct {
	Model          string        `json:"model"`
	Messages       []chatMessage `json:"messages"`
	Temperature    float64       `json:"temperature"`
	ResponseFormat *formatSpec   `json:"response_format,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type formatSpec struct {
	Type string `json:"type"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Infer posts the request and returns the model's JSON content verbatim.
// The caller owns parsing; a response that is not valid JSON is an error
// here so stages can treat it as malformed model output.
func (g *Generative) Infer(ctx context.Context, req Request) (json.RawMessage, error) {
	if g.endpoint == "" || g.model == "" {
		return nil, fmt.Errorf("generative client misconfigured")
	}

	system := req.System
	if req.Schema != "" {
		system += "\n\nRespond with JSON matching this shape:\n" + req.Schema
	}

	body, err := json.Marshal(chatRequest{
		Model: g.model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: req.Prompt},
		},
		Temperature:    0.2,
		ResponseFormat: &formatSpec{Type: "json_object"},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal chat payload: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if g.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+g.apiKey)
	}

	resp, err := g.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("model call: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("model error %s: %s", resp.Status, strings.TrimSpace(string(payload)))
	}

	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode chat response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return nil, fmt.Errorf("model returned no choices")
	}

	content := strings.TrimSpace(parsed.Choices[0].Message.Content)
	if !json.Valid([]byte(content)) {
		return nil, fmt.Errorf("model content is not valid JSON")
	}
	return json.RawMessage(content), nil
}
