package pipeline_test

import (
	"context"
	"testing"

	"github.com/TheGoodCatalyst/news-curator/internal/logger"
	"github.com/TheGoodCatalyst/news-curator/internal/models"
	"github.com/TheGoodCatalyst/news-curator/internal/pipeline"
	"github.com/stretchr/testify/require"
)

var summaryEntities = []models.Entity{
	{Name: "Regulator X", Type: models.TypeOrganization, Confidence: 0.85},
	{Name: "Y", Type: models.TypeOrganization, Confidence: 0.6},
}

var summaryRels = []models.CausalRelationship{
	{Subject: "Regulator X", Action: "REJECTS", Object: "Y", Sentiment: -0.8, Confidence: 0.9},
}

func TestSummarizeParsesStructuredResponse(t *testing.T) {
	model := fixedJSON(`{"summary":"The rejection halts the project. Investors face delays.","severity":7,"affected_sectors":["Real Estate","Housing","real estate"]}`)
	s := pipeline.NewSummarizer(model, 5, 4, logger.Discard())

	impact, err := s.Summarize(context.Background(), "text", summaryEntities, summaryRels)
	require.NoError(t, err)
	require.Equal(t, 7, impact.Severity)
	require.Equal(t, []string{"Real Estate", "Housing"}, impact.AffectedSectors)
	require.NotEmpty(t, impact.Summary)
}

func TestSummarizeClampsOutOfRangeSeverity(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    int
	}{
		{name: "above range", payload: `{"summary":"a. b.","severity":14,"affected_sectors":[]}`, want: 10},
		{name: "below range", payload: `{"summary":"a. b.","severity":0,"affected_sectors":[]}`, want: 1},
		{name: "non-numeric", payload: `{"summary":"a. b.","severity":"high","affected_sectors":[]}`, want: 5},
		{name: "fractional", payload: `{"summary":"a. b.","severity":6.5,"affected_sectors":[]}`, want: 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := pipeline.NewSummarizer(fixedJSON(tt.payload), 5, 4, logger.Discard())
			impact, err := s.Summarize(context.Background(), "text", summaryEntities, summaryRels)
			require.NoError(t, err)
			require.Equal(t, tt.want, impact.Severity)
		})
	}
}

func TestSummarizeCapsSeverityWithoutRelationships(t *testing.T) {
	model := fixedJSON(`{"summary":"Big impact claimed. Very big.","severity":9,"affected_sectors":["Finance"]}`)
	s := pipeline.NewSummarizer(model, 5, 4, logger.Discard())

	impact, err := s.Summarize(context.Background(), "text", summaryEntities, nil)
	require.NoError(t, err)
	require.Equal(t, 4, impact.Severity)
	require.NotEmpty(t, impact.Summary, "summary still produced from entities and text alone")
}

func TestSummarizeMalformedUsesFallback(t *testing.T) {
	s := pipeline.NewSummarizer(fixedJSON(`{"severity":7}`), 5, 4, logger.Discard())
	impact, err := s.Summarize(context.Background(), "text", summaryEntities, summaryRels)
	require.NoError(t, err)
	require.Equal(t, 5, impact.Severity)
	require.NotEmpty(t, impact.Summary)
}

func TestSummarizeModelErrorPropagates(t *testing.T) {
	s := pipeline.NewSummarizer(failingClient("model down"), 5, 4, logger.Discard())
	_, err := s.Summarize(context.Background(), "text", summaryEntities, summaryRels)
	require.Error(t, err)
}

func TestFallback(t *testing.T) {
	s := pipeline.NewSummarizer(failingClient("unused"), 5, 4, logger.Discard())

	withRels := s.Fallback(false)
	require.Equal(t, 5, withRels.Severity)
	require.NotEmpty(t, withRels.Summary)

	withoutRels := s.Fallback(true)
	require.Equal(t, 4, withoutRels.Severity)
}
