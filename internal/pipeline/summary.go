package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/TheGoodCatalyst/news-curator/internal/inference"
	"github.com/TheGoodCatalyst/news-curator/internal/models"
)

const summarySystemPrompt = `You are an analyst writing executive impact summaries of business news.
Write exactly two sentences describing the business impact, rate severity from 1 (minimal) to 10 (catastrophic),
and list the affected industry sectors.`

const summarySchema = `{"summary":"two sentences","severity":5,"affected_sectors":["string"]}`

// fallbackSummaryText is emitted when the model output is unusable or the
// stage's retries are exhausted.
const fallbackSummaryText = "Moderate, unclassified impact. The article could not be fully scored."

// Summarizer produces the per-article impact readout from the full analysis
// context. Severity is validated rather than trusted: out-of-range values
// are clamped, non-numeric ones replaced by the default.
type Summarizer struct {
	model           inference.Client
	defaultSeverity int
	noRelCeiling    int
	log             *slog.Logger
}

// NewSummarizer builds a summarizer. noRelCeiling caps severity when no
// relationships survived filtering.
func NewSummarizer(model inference.Client, defaultSeverity, noRelCeiling int, log *slog.Logger) *Summarizer {
	return &Summarizer{
		model:           model,
		defaultSeverity: defaultSeverity,
		noRelCeiling:    noRelCeiling,
		log:             log,
	}
}

// Summarize makes one model call with text, entities and relationships. An
// Infer error is returned for the retry policy; a malformed response is
// repaired locally (clamp or default) and never propagated.
func (s *Summarizer) Summarize(ctx context.Context, text string, entities []models.Entity, rels []models.CausalRelationship) (models.ImpactSummary, error) {
	var b strings.Builder
	b.WriteString("Entities:\n")
	for _, ent := range entities {
		fmt.Fprintf(&b, "- %s (%s)\n", ent.Name, ent.Type)
	}
	if len(rels) > 0 {
		b.WriteString("Relationships:\n")
		for _, rel := range rels {
			fmt.Fprintf(&b, "- %s %s %s (sentiment %.2f)\n", rel.Subject, rel.Action, rel.Object, rel.Sentiment)
		}
	}
	b.WriteString("\nArticle:\n")
	b.WriteString(text)

	raw, err := s.model.Infer(ctx, inference.Request{
		System: summarySystemPrompt,
		Prompt: b.String(),
		Schema: summarySchema,
	})
	if err != nil {
		return models.ImpactSummary{}, fmt.Errorf("summary call: %w", err)
	}

	return s.parse(raw, len(rels) == 0), nil
}

// Fallback is the summary used when summarization retries are exhausted.
func (s *Summarizer) Fallback(noRelationships bool) models.ImpactSummary {
	severity := s.defaultSeverity
	if noRelationships && severity > s.noRelCeiling {
		severity = s.noRelCeiling
	}
	return models.ImpactSummary{
		Summary:         fallbackSummaryText,
		Severity:        severity,
		AffectedSectors: []string{},
	}
}

func (s *Summarizer) parse(raw json.RawMessage, noRelationships bool) models.ImpactSummary {
	var payload struct {
		Summary         string      `json:"summary"`
		Severity        json.Number `json:"severity"`
		AffectedSectors []string    `json:"affected_sectors"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil || strings.TrimSpace(payload.Summary) == "" {
		s.log.Warn("summary output unparseable, using fallback")
		return s.Fallback(noRelationships)
	}

	severity := s.defaultSeverity
	if n, err := payload.Severity.Int64(); err == nil {
		severity = clampInt(int(n), 1, 10)
	} else {
		s.log.Warn("non-integer severity in summary output, using default",
			slog.String("severity", payload.Severity.String()),
		)
	}

	// Without surviving relationships the impact claim is weaker; cap it.
	if noRelationships && severity > s.noRelCeiling {
		severity = s.noRelCeiling
	}

	return models.ImpactSummary{
		Summary:         strings.TrimSpace(payload.Summary),
		Severity:        severity,
		AffectedSectors: dedupeSectors(payload.AffectedSectors),
	}
}

// dedupeSectors preserves first-occurrence order while removing repeats and
// blanks.
func dedupeSectors(raw []string) []string {
	seen := make(map[string]struct{}, len(raw))
	out := make([]string, 0, len(raw))
	for _, sector := range raw {
		sector = strings.TrimSpace(sector)
		if sector == "" {
			continue
		}
		key := strings.ToLower(sector)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, sector)
	}
	return out
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
