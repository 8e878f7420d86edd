package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/TheGoodCatalyst/news-curator/internal/inference"
	"github.com/TheGoodCatalyst/news-curator/internal/models"
	"github.com/TheGoodCatalyst/news-curator/internal/textutil"
)

const causalSystemPrompt = `You are an analyst extracting causal relationships from business news.
Extract subject-action-object triples where BOTH subject and object are drawn from the provided entity list.
Sentiment reflects the impact on the object, from -1 (very negative) to +1 (very positive).
Only extract relationships directly stated in the text.`

const causalSchema = `{"relationships":[{"subject":"string","action":"VERB_PHRASE","object":"string","sentiment":-1.0,"confidence":0.0,"reasoning":"string"}]}`

// CausalMapper derives subject-action-object triples between validated
// entities. The model is allowed to speculate; the mapper filters. Any
// triple whose endpoints are not in the validated set is discarded
// silently.
type CausalMapper struct {
	model inference.Client
	floor float64
	log   *slog.Logger
}

// NewCausalMapper builds a mapper dropping triples below the confidence
// floor.
func NewCausalMapper(model inference.Client, floor float64, log *slog.Logger) *CausalMapper {
	return &CausalMapper{model: model, floor: floor, log: log}
}

type rawTriple struct {
	Subject    string  `json:"subject"`
	Action     string  `json:"action"`
	Object     string  `json:"object"`
	Sentiment  float64 `json:"sentiment"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning"`
}

// Map prompts the model with the article text and the closed list of
// validated entity names, then enforces that constraint post-hoc. An Infer
// error is returned for the orchestrator's retry policy; malformed output
// is handled locally and never surfaces as an error.
func (m *CausalMapper) Map(ctx context.Context, text string, validated []models.Entity) ([]models.CausalRelationship, error) {
	if len(validated) < 2 {
		// Not enough entities to form a relationship.
		return nil, nil
	}

	names := make([]string, 0, len(validated))
	canonical := make(map[string]string, len(validated))
	for _, ent := range validated {
		names = append(names, ent.Name)
		canonical[textutil.CanonicalName(ent.Name)] = ent.Name
	}

	prompt := fmt.Sprintf("Entities: %s\n\nArticle:\n%s", strings.Join(names, ", "), text)
	raw, err := m.model.Infer(ctx, inference.Request{
		System: causalSystemPrompt,
		Prompt: prompt,
		Schema: causalSchema,
	})
	if err != nil {
		return nil, fmt.Errorf("causal mapping call: %w", err)
	}

	triples, ok := parseTriples(raw)
	if !ok {
		m.log.Warn("causal model output unparseable, keeping no relationships")
		return nil, nil
	}

	type edge struct {
		subject, action, object string
	}
	seen := make(map[edge]int)

	out := make([]models.CausalRelationship, 0, len(triples))
	for _, t := range triples {
		subject, okS := canonical[textutil.CanonicalName(t.Subject)]
		object, okO := canonical[textutil.CanonicalName(t.Object)]
		if !okS || !okO || subject == object {
			// The model speculated outside the validated set.
			continue
		}

		action := textutil.CanonicalAction(t.Action)
		if action == "" {
			continue
		}
		if t.Confidence < m.floor || t.Confidence > 1 {
			continue
		}

		rel := models.CausalRelationship{
			Subject:    subject,
			Action:     action,
			Object:     object,
			Sentiment:  clamp(t.Sentiment, -1, 1),
			Confidence: t.Confidence,
			Reasoning:  strings.TrimSpace(t.Reasoning),
		}

		k := edge{subject: subject, action: action, object: object}
		if idx, dup := seen[k]; dup {
			if rel.Confidence > out[idx].Confidence {
				out[idx] = rel
			}
			continue
		}
		seen[k] = len(out)
		out = append(out, rel)
	}

	m.log.Debug("causal mapping complete",
		slog.Int("proposed", len(triples)),
		slog.Int("kept", len(out)),
	)
	return out, nil
}

// parseTriples accepts either a bare array or an object wrapping it under
// "relationships".
func parseTriples(raw json.RawMessage) ([]rawTriple, bool) {
	var list []rawTriple
	if err := json.Unmarshal(raw, &list); err == nil {
		return list, true
	}

	var wrapped struct {
		Relationships []rawTriple `json:"relationships"`
	}
	if err := json.Unmarshal(raw, &wrapped); err == nil {
		return wrapped.Relationships, true
	}
	return nil, false
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
