package pipeline_test

import (
	"context"
	"testing"

	"github.com/TheGoodCatalyst/news-curator/internal/logger"
	"github.com/TheGoodCatalyst/news-curator/internal/models"
	"github.com/TheGoodCatalyst/news-curator/internal/pipeline"
	"github.com/stretchr/testify/require"
)

var validatedPair = []models.Entity{
	{Name: "Regulator X", Type: models.TypeOrganization, Confidence: 0.85},
	{Name: "Y", Type: models.TypeOrganization, Confidence: 0.6},
}

func TestMapKeepsOnlyValidatedEndpoints(t *testing.T) {
	model := fixedJSON(`{"relationships":[
		{"subject":"regulator x","action":"rejects","object":"Y","sentiment":-0.8,"confidence":0.9,"reasoning":"stated"},
		{"subject":"Regulator X","action":"warns","object":"Ghost Corp","sentiment":-0.2,"confidence":0.9},
		{"subject":"Nobody","action":"acquires","object":"Y","sentiment":0.5,"confidence":0.9}
	]}`)

	mapper := pipeline.NewCausalMapper(model, 0.3, logger.Discard())
	rels, err := mapper.Map(context.Background(), "Regulator X rejects Y's housing project", validatedPair)
	require.NoError(t, err)
	require.Len(t, rels, 1)
	require.Equal(t, "Regulator X", rels[0].Subject)
	require.Equal(t, "REJECTS", rels[0].Action)
	require.Equal(t, "Y", rels[0].Object)
	require.Less(t, rels[0].Sentiment, 0.0)
}

func TestMapClampsSentiment(t *testing.T) {
	model := fixedJSON(`{"relationships":[
		{"subject":"Regulator X","action":"rejects","object":"Y","sentiment":-3.5,"confidence":0.9}
	]}`)

	mapper := pipeline.NewCausalMapper(model, 0.3, logger.Discard())
	rels, err := mapper.Map(context.Background(), "text", validatedPair)
	require.NoError(t, err)
	require.Len(t, rels, 1)
	require.Equal(t, -1.0, rels[0].Sentiment)
}

func TestMapDropsBelowConfidenceFloor(t *testing.T) {
	model := fixedJSON(`{"relationships":[
		{"subject":"Regulator X","action":"rejects","object":"Y","sentiment":-0.5,"confidence":0.2},
		{"subject":"Regulator X","action":"fines","object":"Y","sentiment":-0.5,"confidence":1.4}
	]}`)

	mapper := pipeline.NewCausalMapper(model, 0.3, logger.Discard())
	rels, err := mapper.Map(context.Background(), "text", validatedPair)
	require.NoError(t, err)
	require.Empty(t, rels)
}

func TestMapFewerThanTwoEntities(t *testing.T) {
	model := failingClient("should not be called")
	mapper := pipeline.NewCausalMapper(model, 0.3, logger.Discard())

	rels, err := mapper.Map(context.Background(), "text", validatedPair[:1])
	require.NoError(t, err)
	require.Empty(t, rels)
	require.Zero(t, model.calls)
}

func TestMapMalformedOutputIsNotAnError(t *testing.T) {
	mapper := pipeline.NewCausalMapper(fixedJSON(`{"oops":true}`), 0.3, logger.Discard())
	rels, err := mapper.Map(context.Background(), "text", validatedPair)
	require.NoError(t, err)
	require.Empty(t, rels)
}

func TestMapAcceptsBareArray(t *testing.T) {
	model := fixedJSON(`[{"subject":"Regulator X","action":"rejects","object":"Y","sentiment":-0.4,"confidence":0.8}]`)
	mapper := pipeline.NewCausalMapper(model, 0.3, logger.Discard())
	rels, err := mapper.Map(context.Background(), "text", validatedPair)
	require.NoError(t, err)
	require.Len(t, rels, 1)
}

func TestMapDeduplicatesRepeatedEdges(t *testing.T) {
	model := fixedJSON(`{"relationships":[
		{"subject":"Regulator X","action":"rejects","object":"Y","sentiment":-0.4,"confidence":0.5},
		{"subject":"Regulator X","action":"REJECTS","object":"y","sentiment":-0.6,"confidence":0.9}
	]}`)

	mapper := pipeline.NewCausalMapper(model, 0.3, logger.Discard())
	rels, err := mapper.Map(context.Background(), "text", validatedPair)
	require.NoError(t, err)
	require.Len(t, rels, 1)
	require.Equal(t, 0.9, rels[0].Confidence)
}

func TestMapModelErrorPropagates(t *testing.T) {
	mapper := pipeline.NewCausalMapper(failingClient("model down"), 0.3, logger.Discard())
	_, err := mapper.Map(context.Background(), "text", validatedPair)
	require.Error(t, err)
}
