package inference

import (
	"context"
	"encoding/json"
	"fmt"

	"golang.org/x/sync/semaphore"
)

// limited wraps a Client with an admission gate capping in-flight calls.
// The gate is shared by every article task holding the same handle, so a
// slow external dependency is never hit by more than n concurrent calls no
// matter how many articles are in flight.
type limited struct {
	inner Client
	sem   *semaphore.Weighted
}

// Limit caps concurrent Infer calls on c at n.
func Limit(c Client, n int64) Client {
	if n <= 0 {
		n = 1
	}
	return &limited{inner: c, sem: semaphore.NewWeighted(n)}
}

func (l *limited) Infer(ctx context.Context, req Request) (json.RawMessage, error) {
	if err := l.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("admission gate: %w", err)
	}
	defer l.sem.Release(1)
	return l.inner.Infer(ctx, req)
}
