// Package inference provides the single-call model contract the pipeline
// stages depend on: hand the backend a prompt (or raw text) plus the JSON
// shape you expect back, get structured output or an error. Both the hosted
// generative API and the local statistical tagger satisfy the same contract.
package inference

import (
	"context"
	"encoding/json"
)

// Request describes one inference call.
type Request struct {
	// System primes the model's role. Ignored by backends without a notion
	// of roles (the tagger).
	System string
	// Prompt is the user prompt, or the raw text for tagging backends.
	Prompt string
	// Schema describes the JSON shape the caller will parse. Backends that
	// support structured output pass it through to the model.
	Schema string
}

// Client is a shared read-only handle; implementations must be safe for
// concurrent use across article tasks.
type Client interface {
	Infer(ctx context.Context, req Request) (json.RawMessage, error)
}
