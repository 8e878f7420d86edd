// Package lookup implements the external reference sources entities are
// validated against: a corporate registry for organizations and a general
// knowledge base for people and locations. Both speak the same contract; the
// pipeline treats a transport error identically regardless of which source
// produced it.
package lookup

import "context"

// Verdict is the outcome of one reference lookup.
type Verdict int

const (
	// Match means the source holds a record for the name.
	Match Verdict = iota
	// NoMatch means the source answered and has no such record.
	NoMatch
)

// Source resolves a single name against one reference backend. Both backend
// APIs here are keyed per name, so a batch of entities becomes one call per
// name on a shared client; a failed lookup returns an error for that name
// only and never poisons the rest of the batch.
type Source interface {
	// Name identifies the backend in validation results and logs.
	Name() string
	Lookup(ctx context.Context, name string) (Verdict, error)
}
