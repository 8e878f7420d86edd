package pipeline

import (
	"errors"
	"fmt"
)

// Stage names the pipeline state an article was in when something happened.
// They double as keys in the emitted stage-timing metadata.
type Stage string

const (
	StageReceived    Stage = "received"
	StageExtracting  Stage = "extracting"
	StageValidating  Stage = "validating"
	StageMapping     Stage = "mapping"
	StageSummarizing Stage = "summarizing"
	StageEmitted     Stage = "emitted"
	StageFailed      Stage = "failed"
)

// Failure reasons surfaced on dropped articles. Only fatal reasons appear in
// failure records; ValidationUnavailable and the late-stage failures are
// absorbed into a degraded event instead.
const (
	ReasonExtractionFailure     = "ExtractionFailure"
	ReasonValidationUnavailable = "ValidationUnavailable"
	ReasonMappingFailure        = "MappingFailure"
	ReasonSummarizationFailure  = "SummarizationFailure"
	ReasonCanceled              = "Canceled"
)

// ErrNoEntities is returned when both extraction strategies failed.
var ErrNoEntities = errors.New("no entities extractable")

// ArticleError is the structured failure record handed to the orchestrator's
// caller when an article is dropped without an event.
type ArticleError struct {
	ArticleID string
	Stage     Stage
	Reason    string
	Err       error
}

func (e *ArticleError) Error() string {
	return fmt.Sprintf("article %s failed at %s (%s): %v", e.ArticleID, e.Stage, e.Reason, e.Err)
}

func (e *ArticleError) Unwrap() error {
	return e.Err
}
