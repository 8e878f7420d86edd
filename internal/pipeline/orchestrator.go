package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/TheGoodCatalyst/news-curator/internal/models"
)

// Orchestrator sequences the four cognitive stages per article:
//
//	RECEIVED -> EXTRACTING -> VALIDATING -> MAPPING -> SUMMARIZING -> EMITTED
//
// with FAILED terminal from any stage. Stage order within one article is
// strict; concurrency happens across articles, each owning its own Process
// call. Extraction failure is fatal and the article is dropped whole; the
// late stages are enrichments whose exhausted retries downgrade the event
// instead of failing it.
type Orchestrator struct {
	extractor  *Extractor
	checker    *FactChecker
	mapper     *CausalMapper
	summarizer *Summarizer
	retries    int
	backoff    time.Duration
	model      string
	log        *slog.Logger
}

// NewOrchestrator assembles the pipeline. retries is the number of retries
// (not attempts) granted to mapping and summarization; backoff is the first
// retry delay, doubled per retry.
func NewOrchestrator(extractor *Extractor, checker *FactChecker, mapper *CausalMapper, summarizer *Summarizer, retries int, backoff time.Duration, model string, log *slog.Logger) *Orchestrator {
	if backoff <= 0 {
		backoff = 500 * time.Millisecond
	}
	return &Orchestrator{
		extractor:  extractor,
		checker:    checker,
		mapper:     mapper,
		summarizer: summarizer,
		retries:    retries,
		backoff:    backoff,
		model:      model,
		log:        log,
	}
}

// Process runs one article through the pipeline and returns its GraphEvent.
// On fatal failure the returned error is an *ArticleError and no event
// exists; a canceled context before EMITTED likewise produces no event.
func (o *Orchestrator) Process(ctx context.Context, article models.Article) (*models.GraphEvent, error) {
	log := o.log.With(slog.String("article_id", article.ID), slog.String("source", article.Source))
	timings := make(map[string]int64, 4)
	degraded := false

	fail := func(stage Stage, reason string, err error) (*models.GraphEvent, error) {
		return nil, &ArticleError{ArticleID: article.ID, Stage: stage, Reason: reason, Err: err}
	}

	// EXTRACTING
	started := time.Now()
	entities, extDegraded, err := o.extractor.Extract(ctx, article.Body)
	timings[string(StageExtracting)] = time.Since(started).Milliseconds()
	if err != nil {
		if ctx.Err() != nil {
			return fail(StageExtracting, ReasonCanceled, ctx.Err())
		}
		return fail(StageExtracting, ReasonExtractionFailure, err)
	}
	degraded = degraded || extDegraded

	// VALIDATING
	started = time.Now()
	validated, hallucinations, results, err := o.checker.Validate(ctx, entities)
	timings[string(StageValidating)] = time.Since(started).Milliseconds()
	if err != nil {
		return fail(StageValidating, ReasonCanceled, err)
	}
	for _, res := range results {
		if res.Outcome == models.OutcomeUnknown {
			degraded = true
			break
		}
	}

	// MAPPING
	started = time.Now()
	var relationships []models.CausalRelationship
	err = o.withRetry(ctx, StageMapping, func() error {
		var mapErr error
		relationships, mapErr = o.mapper.Map(ctx, article.Body, validated)
		return mapErr
	})
	timings[string(StageMapping)] = time.Since(started).Milliseconds()
	if err != nil {
		if ctx.Err() != nil {
			return fail(StageMapping, ReasonCanceled, ctx.Err())
		}
		log.Warn("causal mapping exhausted retries, emitting without relationships",
			slog.Any("err", err))
		relationships = nil
		degraded = true
	}
	if relationships == nil {
		// Degraded or relationship-free events still carry an empty set, not
		// null, so the outbound JSON shape never varies.
		relationships = []models.CausalRelationship{}
	}

	// SUMMARIZING
	started = time.Now()
	var impact models.ImpactSummary
	err = o.withRetry(ctx, StageSummarizing, func() error {
		var sumErr error
		impact, sumErr = o.summarizer.Summarize(ctx, article.Body, validated, relationships)
		return sumErr
	})
	timings[string(StageSummarizing)] = time.Since(started).Milliseconds()
	if err != nil {
		if ctx.Err() != nil {
			return fail(StageSummarizing, ReasonCanceled, ctx.Err())
		}
		log.Warn("summarization exhausted retries, using fallback summary",
			slog.Any("err", err))
		impact = o.summarizer.Fallback(len(relationships) == 0)
		degraded = true
	}

	// Cancellation before EMITTED must not leak a partial event.
	if err := ctx.Err(); err != nil {
		return fail(StageSummarizing, ReasonCanceled, err)
	}

	event := &models.GraphEvent{
		ID:            uuid.NewString(),
		ArticleID:     article.ID,
		Entities:      validated,
		Relationships: relationships,
		Impact:        impact,
		Metadata: models.EventMetadata{
			Degraded:              degraded,
			HallucinationsFlagged: entityNames(hallucinations),
			StageTimingsMS:        timings,
			Model:                 o.model,
		},
		ProcessedAt: time.Now().UTC(),
	}

	log.Info("article emitted",
		slog.Int("entities", len(event.Entities)),
		slog.Int("relationships", len(event.Relationships)),
		slog.Int("hallucinations", len(hallucinations)),
		slog.Int("severity", event.Impact.Severity),
		slog.Bool("degraded", event.Metadata.Degraded),
	)
	return event, nil
}

// withRetry runs fn up to retries+1 times with doubling backoff. It returns
// immediately on success or on context cancellation.
func (o *Orchestrator) withRetry(ctx context.Context, stage Stage, fn func() error) error {
	backoff := o.backoff
	var err error
	for attempt := 0; attempt <= o.retries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
			backoff *= 2
		}

		if err = fn(); err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		o.log.Warn("stage attempt failed",
			slog.String("stage", string(stage)),
			slog.Int("attempt", attempt+1),
			slog.Any("err", err),
		)
	}
	return err
}

func entityNames(entities []models.Entity) []string {
	names := make([]string, 0, len(entities))
	for _, ent := range entities {
		names = append(names, ent.Name)
	}
	return names
}
