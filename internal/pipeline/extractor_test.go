package pipeline_test

import (
	"context"
	"testing"

	"github.com/TheGoodCatalyst/news-curator/internal/logger"
	"github.com/TheGoodCatalyst/news-curator/internal/models"
	"github.com/TheGoodCatalyst/news-curator/internal/pipeline"
	"github.com/stretchr/testify/require"
)

func TestExtractMergesDualDetections(t *testing.T) {
	tagger := fixedJSON(`[{"text":"Regulator X","label":"ORG","score":0.7},{"text":"Y","label":"ORG","score":0.6}]`)
	generative := fixedJSON(`{"entities":[{"name":"regulator x","type":"organization","confidence":0.5}]}`)

	ext := pipeline.NewExtractor(tagger, generative, 12000, logger.Discard())
	entities, degraded, err := ext.Extract(context.Background(), "Regulator X rejects Y's housing project")
	require.NoError(t, err)
	require.False(t, degraded)
	require.Len(t, entities, 2)

	byName := map[string]models.Entity{}
	for _, ent := range entities {
		byName[ent.Name] = ent
	}

	// Independent-evidence merge: 1-(1-0.7)*(1-0.5) = 0.85, not the average.
	x := byName["Regulator X"]
	require.InDelta(t, 0.85, x.Confidence, 1e-9)
	require.Equal(t, models.OriginBoth, x.Origin)

	y := byName["Y"]
	require.InDelta(t, 0.6, y.Confidence, 1e-9)
	require.Equal(t, models.OriginTagger, y.Origin)
}

func TestExtractMergeLaw(t *testing.T) {
	tagger := fixedJSON(`[{"text":"Acme","label":"ORG","score":0.6}]`)
	generative := fixedJSON(`{"entities":[{"name":"Acme","type":"organization","confidence":0.5}]}`)

	ext := pipeline.NewExtractor(tagger, generative, 0, logger.Discard())
	entities, _, err := ext.Extract(context.Background(), "Acme did a thing")
	require.NoError(t, err)
	require.Len(t, entities, 1)
	require.InDelta(t, 0.8, entities[0].Confidence, 1e-9)
}

func TestExtractRepeatedMentionKeepsOwnConfidence(t *testing.T) {
	// Two spans for the same entity from one strategy are repeated mentions,
	// not independent evidence: the entity keeps its best single-detection
	// confidence instead of combining past it.
	tagger := fixedJSON(`[{"text":"Acme","label":"ORG","score":0.7},{"text":"Acme","label":"ORG","score":0.7},{"text":"acme","label":"ORG","score":0.4}]`)
	generative := fixedJSON(`{"entities":[]}`)

	ext := pipeline.NewExtractor(tagger, generative, 0, logger.Discard())
	entities, _, err := ext.Extract(context.Background(), "Acme sued Acme over Acme")
	require.NoError(t, err)
	require.Len(t, entities, 1)
	require.InDelta(t, 0.7, entities[0].Confidence, 1e-9)
	require.Equal(t, models.OriginTagger, entities[0].Origin)
}

func TestExtractRepeatedMentionsAcrossStrategiesCombineOnce(t *testing.T) {
	tagger := fixedJSON(`[{"text":"Acme","label":"ORG","score":0.7},{"text":"Acme","label":"ORG","score":0.5}]`)
	generative := fixedJSON(`{"entities":[{"name":"acme","type":"organization","confidence":0.5},{"name":"Acme","type":"organization","confidence":0.3}]}`)

	ext := pipeline.NewExtractor(tagger, generative, 0, logger.Discard())
	entities, _, err := ext.Extract(context.Background(), "Acme everywhere")
	require.NoError(t, err)
	require.Len(t, entities, 1)

	// Max within each strategy (0.7, 0.5), combined once across:
	// 1-(1-0.7)*(1-0.5) = 0.85.
	require.InDelta(t, 0.85, entities[0].Confidence, 1e-9)
	require.Equal(t, models.OriginBoth, entities[0].Origin)
}

func TestExtractSameNameDifferentTypeNotMerged(t *testing.T) {
	tagger := fixedJSON(`[{"text":"Washington","label":"LOC","score":0.8}]`)
	generative := fixedJSON(`{"entities":[{"name":"Washington","type":"person","confidence":0.6}]}`)

	ext := pipeline.NewExtractor(tagger, generative, 0, logger.Discard())
	entities, _, err := ext.Extract(context.Background(), "Washington visited Washington")
	require.NoError(t, err)
	require.Len(t, entities, 2)
}

func TestExtractOneStrategyFailureDegrades(t *testing.T) {
	tagger := failingClient("tagger down")
	generative := fixedJSON(`{"entities":[{"name":"Acme","type":"organization","confidence":0.5}]}`)

	ext := pipeline.NewExtractor(tagger, generative, 0, logger.Discard())
	entities, degraded, err := ext.Extract(context.Background(), "Acme did a thing")
	require.NoError(t, err)
	require.True(t, degraded)
	require.Len(t, entities, 1)
	require.Equal(t, models.OriginGenerative, entities[0].Origin)
}

func TestExtractBothStrategiesFailing(t *testing.T) {
	ext := pipeline.NewExtractor(failingClient("tagger down"), failingClient("model down"), 0, logger.Discard())
	_, _, err := ext.Extract(context.Background(), "some text")
	require.ErrorIs(t, err, pipeline.ErrNoEntities)
}

func TestExtractRejectsMalformedGenerativeEntries(t *testing.T) {
	tagger := fixedJSON(`[]`)
	generative := fixedJSON(`{"entities":[
		{"name":"","type":"organization","confidence":0.9},
		{"name":"Ghost","type":"spaceship","confidence":0.9},
		{"name":"Overconfident","type":"person","confidence":1.7},
		{"name":"Kept","type":"person","confidence":0.4}
	]}`)

	ext := pipeline.NewExtractor(tagger, generative, 0, logger.Discard())
	entities, _, err := ext.Extract(context.Background(), "text")
	require.NoError(t, err)
	require.Len(t, entities, 1)
	require.Equal(t, "Kept", entities[0].Name)
}

func TestExtractConfidencesWithinBounds(t *testing.T) {
	tagger := fixedJSON(`[{"text":"A","label":"ORG","score":0.99},{"text":"B","label":"PER","score":0.95}]`)
	generative := fixedJSON(`{"entities":[{"name":"A","type":"organization","confidence":0.99},{"name":"B","type":"person","confidence":0.95}]}`)

	ext := pipeline.NewExtractor(tagger, generative, 0, logger.Discard())
	entities, _, err := ext.Extract(context.Background(), "A and B")
	require.NoError(t, err)
	for _, ent := range entities {
		require.GreaterOrEqual(t, ent.Confidence, 0.0)
		require.LessOrEqual(t, ent.Confidence, 1.0)
		// Agreement never caps below either individual detection.
		require.Greater(t, ent.Confidence, 0.94)
	}
}

func TestExtractEmptyText(t *testing.T) {
	ext := pipeline.NewExtractor(fixedJSON(`[]`), fixedJSON(`{"entities":[]}`), 0, logger.Discard())
	_, _, err := ext.Extract(context.Background(), "   ")
	require.ErrorIs(t, err, pipeline.ErrNoEntities)
}
