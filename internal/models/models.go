package models

import "time"

// EntityType enumerates the kinds of real-world objects the pipeline extracts.
type EntityType string

const (
	TypeOrganization EntityType = "organization"
	TypePerson       EntityType = "person"
	TypeLocation     EntityType = "location"
	TypeEvent        EntityType = "event"
)

// Valid reports whether t is one of the known entity types.
func (t EntityType) Valid() bool {
	switch t {
	case TypeOrganization, TypePerson, TypeLocation, TypeEvent:
		return true
	}
	return false
}

// Origin records which extraction strategy produced an entity.
type Origin string

const (
	OriginTagger     Origin = "tagger"
	OriginGenerative Origin = "generative"
	OriginBoth       Origin = "both"
)

// Article is the immutable inbound unit of work, one per pipeline run.
type Article struct {
	ID          string    `json:"article_id"`
	Title       string    `json:"title"`
	Body        string    `json:"body"`
	Source      string    `json:"source"`
	PublishedAt time.Time `json:"published_at"`
}

// Entity is a deduplicated, confidence-scored mention of a real-world object.
type Entity struct {
	Name       string     `json:"name"`
	Type       EntityType `json:"type"`
	Domain     string     `json:"domain,omitempty"`
	Confidence float64    `json:"confidence"`
	Origin     Origin     `json:"origin"`
}

// CausalRelationship is a subject-action-object edge between two validated
// entities of the same article.
type CausalRelationship struct {
	Subject    string  `json:"subject"`
	Action     string  `json:"action"`
	Object     string  `json:"object"`
	Sentiment  float64 `json:"sentiment"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning,omitempty"`
}

// Outcome is the result of one external reference lookup.
type Outcome string

const (
	OutcomeConfirmed Outcome = "confirmed"
	OutcomeRejected  Outcome = "rejected"
	OutcomeUnknown   Outcome = "unknown"
)

// ValidationResult records the fact-check verdict for one entity.
type ValidationResult struct {
	Entity  string  `json:"entity"`
	Outcome Outcome `json:"outcome"`
	Source  string  `json:"source"`
}

// ImpactSummary is the per-article business-impact readout. Severity is an
// integer in [1,10]; derived alongside one article, never stored alone.
type ImpactSummary struct {
	Summary         string   `json:"summary"`
	Severity        int      `json:"severity"`
	AffectedSectors []string `json:"affected_sectors"`
}

// EventMetadata carries processing facts about how the event was produced.
type EventMetadata struct {
	Degraded              bool             `json:"degraded"`
	HallucinationsFlagged []string         `json:"hallucinations_flagged"`
	StageTimingsMS        map[string]int64 `json:"stage_timings_ms"`
	Model                 string           `json:"model,omitempty"`
}

// GraphEvent is the pipeline's sole output, one per successfully processed
// article, immutable after creation.
type GraphEvent struct {
	ID            string               `json:"id"`
	ArticleID     string               `json:"article_id"`
	Entities      []Entity             `json:"entities"`
	Relationships []CausalRelationship `json:"relationships"`
	Impact        ImpactSummary        `json:"impact_summary"`
	Metadata      EventMetadata        `json:"metadata"`
	ProcessedAt   time.Time            `json:"processed_at"`
}

// FailureRecord describes an article that was dropped without emitting an
// event. It is indexed so failed articles stay countable and inspectable.
type FailureRecord struct {
	ID        string    `json:"id"`
	ArticleID string    `json:"article_id"`
	Source    string    `json:"source"`
	Stage     string    `json:"stage"`
	Reason    string    `json:"reason"`
	Detail    string    `json:"detail"`
	FailedAt  time.Time `json:"failed_at"`
}
