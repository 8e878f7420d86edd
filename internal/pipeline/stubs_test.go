package pipeline_test

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/TheGoodCatalyst/news-curator/internal/inference"
	"github.com/TheGoodCatalyst/news-curator/internal/lookup"
)

// stubClient satisfies inference.Client with a canned function.
type stubClient struct {
	fn    func(req inference.Request) (json.RawMessage, error)
	calls int
}

func (s *stubClient) Infer(_ context.Context, req inference.Request) (json.RawMessage, error) {
	s.calls++
	return s.fn(req)
}

func fixedJSON(payload string) *stubClient {
	return &stubClient{fn: func(inference.Request) (json.RawMessage, error) {
		return json.RawMessage(payload), nil
	}}
}

func failingClient(msg string) *stubClient {
	return &stubClient{fn: func(inference.Request) (json.RawMessage, error) {
		return nil, errors.New(msg)
	}}
}

// stubSource satisfies lookup.Source from a name -> verdict table; names in
// unreachable report a transport error, everything else not listed in
// matches is a clear no-match unless matchAll is set.
type stubSource struct {
	name        string
	matchAll    bool
	matches     map[string]bool
	unreachable map[string]bool
}

func (s *stubSource) Name() string { return s.name }

func (s *stubSource) Lookup(_ context.Context, name string) (lookup.Verdict, error) {
	key := strings.ToLower(name)
	if s.unreachable[key] {
		return lookup.NoMatch, errors.New("lookup unavailable")
	}
	if s.matchAll || s.matches[key] {
		return lookup.Match, nil
	}
	return lookup.NoMatch, nil
}
