package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/TheGoodCatalyst/news-curator/internal/inference"
	"github.com/TheGoodCatalyst/news-curator/internal/models"
	"github.com/TheGoodCatalyst/news-curator/internal/textutil"
)

const extractionSystemPrompt = `You are a financial news analyst extracting structured entities from articles.
Identify organizations, people, locations and events explicitly mentioned in the text.
Do not infer or invent entities that are not present. Assign each a confidence in [0,1].`

const extractionSchema = `{"entities":[{"name":"string","type":"organization|person|location|event","domain":"string (optional industry/sector)","confidence":0.0}]}`

// taggerLabels maps NER span labels onto entity types. Unmapped labels are
// dropped.
var taggerLabels = map[string]models.EntityType{
	"ORG":          models.TypeOrganization,
	"ORGANIZATION": models.TypeOrganization,
	"PER":          models.TypePerson,
	"PERSON":       models.TypePerson,
	"LOC":          models.TypeLocation,
	"GPE":          models.TypeLocation,
	"LOCATION":     models.TypeLocation,
	"EVENT":        models.TypeEvent,
}

// Extractor produces a deduplicated entity set from raw text by running the
// statistical tagger and the generative model independently and merging
// their detections.
type Extractor struct {
	tagger     inference.Client
	generative inference.Client
	truncate   int
	log        *slog.Logger
}

// NewExtractor wires the two extraction strategies. truncate is the
// character budget applied before either strategy sees the text.
func NewExtractor(tagger, generative inference.Client, truncate int, log *slog.Logger) *Extractor {
	return &Extractor{tagger: tagger, generative: generative, truncate: truncate, log: log}
}

// Extract runs both strategies over the same (truncated) text and merges the
// results by case-insensitive name equality within a type. Agreement between
// the two independent strategies combines as 1-(1-c1)*(1-c2), so a doubly
// detected entity is never less certain than either detection alone.
//
// One failed strategy degrades the result; both failing returns
// ErrNoEntities.
func (e *Extractor) Extract(ctx context.Context, text string) ([]models.Entity, bool, error) {
	text = textutil.Truncate(textutil.CleanText(text), e.truncate)
	if text == "" {
		return nil, false, fmt.Errorf("%w: empty text", ErrNoEntities)
	}

	type strategyResult struct {
		entities []models.Entity
		err      error
	}

	taggerCh := make(chan strategyResult, 1)
	generativeCh := make(chan strategyResult, 1)

	go func() {
		ents, err := e.extractTagged(ctx, text)
		taggerCh <- strategyResult{entities: ents, err: err}
	}()
	go func() {
		ents, err := e.extractGenerative(ctx, text)
		generativeCh <- strategyResult{entities: ents, err: err}
	}()

	tagged := <-taggerCh
	generated := <-generativeCh

	if tagged.err != nil && generated.err != nil {
		return nil, false, fmt.Errorf("%w: tagger: %v; generative: %v", ErrNoEntities, tagged.err, generated.err)
	}

	degraded := false
	if tagged.err != nil {
		e.log.Warn("tagger strategy failed, continuing degraded", slog.Any("err", tagged.err))
		degraded = true
	}
	if generated.err != nil {
		e.log.Warn("generative strategy failed, continuing degraded", slog.Any("err", generated.err))
		degraded = true
	}

	merged := mergeEntities(tagged.entities, generated.entities)
	e.log.Debug("extraction merged",
		slog.Int("tagger", len(tagged.entities)),
		slog.Int("generative", len(generated.entities)),
		slog.Int("merged", len(merged)),
	)
	return merged, degraded, nil
}

type taggedSpan struct {
	Text  string  `json:"text"`
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

func (e *Extractor) extractTagged(ctx context.Context, text string) ([]models.Entity, error) {
	raw, err := e.tagger.Infer(ctx, inference.Request{Prompt: text})
	if err != nil {
		return nil, err
	}

	var spans []taggedSpan
	if err := json.Unmarshal(raw, &spans); err != nil {
		// Some tagger builds wrap the span list.
		var wrapped struct {
			Entities []taggedSpan `json:"entities"`
		}
		if err := json.Unmarshal(raw, &wrapped); err != nil {
			return nil, fmt.Errorf("parse tagger spans: %w", err)
		}
		spans = wrapped.Entities
	}

	out := make([]models.Entity, 0, len(spans))
	for _, span := range spans {
		typ, ok := taggerLabels[strings.ToUpper(span.Label)]
		if !ok {
			continue
		}
		if span.Text == "" || span.Score < 0 || span.Score > 1 {
			continue
		}
		out = append(out, models.Entity{
			Name:       strings.TrimSpace(span.Text),
			Type:       typ,
			Confidence: span.Score,
			Origin:     models.OriginTagger,
		})
	}
	return out, nil
}

type generativeEntity struct {
	Name       string  `json:"name"`
	Type       string  `json:"type"`
	Domain     string  `json:"domain"`
	Confidence float64 `json:"confidence"`
}

func (e *Extractor) extractGenerative(ctx context.Context, text string) ([]models.Entity, error) {
	raw, err := e.generative.Infer(ctx, inference.Request{
		System: extractionSystemPrompt,
		Prompt: text,
		Schema: extractionSchema,
	})
	if err != nil {
		return nil, err
	}

	var payload struct {
		Entities []generativeEntity `json:"entities"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("parse generative entities: %w", err)
	}

	out := make([]models.Entity, 0, len(payload.Entities))
	for _, ent := range payload.Entities {
		typ := models.EntityType(strings.ToLower(strings.TrimSpace(ent.Type)))
		// Strict parse: malformed entries are rejected, not repaired.
		if ent.Name == "" || !typ.Valid() || ent.Confidence < 0 || ent.Confidence > 1 {
			continue
		}
		out = append(out, models.Entity{
			Name:       strings.TrimSpace(ent.Name),
			Type:       typ,
			Domain:     strings.TrimSpace(ent.Domain),
			Confidence: ent.Confidence,
			Origin:     models.OriginGenerative,
		})
	}
	return out, nil
}

type entityKey struct {
	typ  models.EntityType
	name string
}

// dedupeStrategy collapses repeated detections of one name within a single
// strategy to the highest-confidence one. Repeated mentions are not
// independent evidence: a tagger emits one span per mention, so combining
// them would inflate confidence past anything the strategy reported.
func dedupeStrategy(entities []models.Entity) map[entityKey]models.Entity {
	byKey := make(map[entityKey]models.Entity, len(entities))
	for _, ent := range entities {
		k := entityKey{typ: ent.Type, name: textutil.CanonicalName(ent.Name)}
		existing, ok := byKey[k]
		if !ok {
			byKey[k] = ent
			continue
		}
		if ent.Confidence > existing.Confidence {
			ent.Domain = firstNonEmpty(ent.Domain, existing.Domain)
			byKey[k] = ent
		} else if existing.Domain == "" {
			existing.Domain = ent.Domain
			byKey[k] = existing
		}
	}
	return byKey
}

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}

// mergeEntities deduplicates detections by (type, canonical name). Within one
// strategy, repeats keep the maximum confidence. A name found by both
// strategies keeps the tagger's casing and combines the two confidences as
// independent evidence; a name found by only one keeps its own confidence
// untouched.
func mergeEntities(tagged, generated []models.Entity) []models.Entity {
	taggedByKey := dedupeStrategy(tagged)
	generatedByKey := dedupeStrategy(generated)

	out := make([]models.Entity, 0, len(taggedByKey)+len(generatedByKey))
	for k, ent := range taggedByKey {
		other, ok := generatedByKey[k]
		if !ok {
			out = append(out, ent)
			continue
		}

		combined := 1 - (1-ent.Confidence)*(1-other.Confidence)
		if combined > 1 {
			combined = 1
		}
		ent.Confidence = combined
		ent.Origin = models.OriginBoth
		ent.Domain = firstNonEmpty(ent.Domain, other.Domain)
		out = append(out, ent)
	}
	for k, ent := range generatedByKey {
		if _, ok := taggedByKey[k]; !ok {
			out = append(out, ent)
		}
	}
	// Deterministic output regardless of strategy arrival order.
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Type != out[j].Type {
			return out[i].Type < out[j].Type
		}
		return textutil.CanonicalName(out[i].Name) < textutil.CanonicalName(out[j].Name)
	})
	return out
}
