package pipeline

import (
	"context"
	"log/slog"
	"sort"

	"github.com/TheGoodCatalyst/news-curator/internal/lookup"
	"github.com/TheGoodCatalyst/news-curator/internal/models"
)

// FactChecker validates extracted entities against external reference
// sources, splitting the set into validated entities and suspected
// hallucinations. It never fails an article: unreachable sources yield
// unknown outcomes that keep the entity at reduced confidence, because
// dropping a real entity is worse than carrying a doubtful one at low
// confidence.
type FactChecker struct {
	registry  lookup.Source
	knowledge lookup.Source
	penalty   float64
	log       *slog.Logger
}

// NewFactChecker wires the two reference sources. penalty multiplies the
// confidence of entities whose lookup errored or timed out.
func NewFactChecker(registry, knowledge lookup.Source, penalty float64, log *slog.Logger) *FactChecker {
	if penalty <= 0 || penalty > 1 {
		penalty = 0.5
	}
	return &FactChecker{registry: registry, knowledge: knowledge, penalty: penalty, log: log}
}

// Validate checks each entity against the source keyed by its type. Events
// are not externally checkable and pass through confirmed at unchanged
// confidence. Generative-origin entities are looked up first since they
// carry the hallucination risk. The returned error is non-nil only when ctx
// is canceled; a source failure is absorbed per entity.
func (f *FactChecker) Validate(ctx context.Context, entities []models.Entity) ([]models.Entity, []models.Entity, []models.ValidationResult, error) {
	ordered := make([]int, len(entities))
	for i := range ordered {
		ordered[i] = i
	}
	sort.SliceStable(ordered, func(a, b int) bool {
		return validationPriority(entities[ordered[a]]) < validationPriority(entities[ordered[b]])
	})

	outcomes := make([]models.ValidationResult, len(entities))
	for _, idx := range ordered {
		if err := ctx.Err(); err != nil {
			return nil, nil, nil, err
		}
		outcomes[idx] = f.validateOne(ctx, entities[idx])
	}

	var validated, hallucinations []models.Entity
	results := make([]models.ValidationResult, 0, len(entities))
	for i, ent := range entities {
		res := outcomes[i]
		results = append(results, res)

		switch res.Outcome {
		case models.OutcomeConfirmed:
			validated = append(validated, ent)
		case models.OutcomeRejected:
			f.log.Warn("entity rejected as hallucination",
				slog.String("entity", ent.Name),
				slog.String("type", string(ent.Type)),
				slog.String("checked_against", res.Source),
			)
			hallucinations = append(hallucinations, ent)
		case models.OutcomeUnknown:
			// Keep it, but it must never silently count as confirmed.
			ent.Confidence *= f.penalty
			validated = append(validated, ent)
		}
	}

	return validated, hallucinations, results, nil
}

func (f *FactChecker) validateOne(ctx context.Context, ent models.Entity) models.ValidationResult {
	res := models.ValidationResult{Entity: ent.Name}

	var src lookup.Source
	switch ent.Type {
	case models.TypeOrganization:
		src = f.registry
	case models.TypePerson, models.TypeLocation:
		src = f.knowledge
	default:
		// Events have no external reference to consult.
		res.Outcome = models.OutcomeConfirmed
		res.Source = "none"
		return res
	}
	res.Source = src.Name()

	verdict, err := src.Lookup(ctx, ent.Name)
	if err != nil {
		f.log.Warn("lookup unavailable, keeping entity at penalty",
			slog.String("entity", ent.Name),
			slog.String("source", res.Source),
			slog.Any("err", err),
		)
		res.Outcome = models.OutcomeUnknown
		return res
	}

	if verdict == lookup.Match {
		res.Outcome = models.OutcomeConfirmed
	} else {
		res.Outcome = models.OutcomeRejected
	}
	return res
}

func validationPriority(ent models.Entity) int {
	if ent.Origin == models.OriginGenerative {
		return 0
	}
	return 1
}
