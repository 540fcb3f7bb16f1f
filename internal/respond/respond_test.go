package respond

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bluekornchips/gandalf-aggregator/pkg/models"
)

func TestShapeReturnsFullWhenWithinBudget(t *testing.T) {
	env := Shape(Input{
		RequestID:      "req-1",
		Conversations:  []models.ConversationRecord{{ID: "1", Title: "small"}},
		AvailableTools: models.AllSourceTools,
	})
	require.NotNil(t, env.Conversations)
	require.Nil(t, env.Lightweight)
	require.False(t, env.SummaryMode)
}

func TestShapeTruncatesFieldsOnFullTier(t *testing.T) {
	env := Shape(Input{
		RequestID: "req-1b",
		Conversations: []models.ConversationRecord{{
			ID:      strings.Repeat("i", models.IDMax+20),
			Title:   strings.Repeat("t", models.TitleMax+20),
			Snippet: strings.Repeat("s", models.SnippetMax+20),
		}},
		AvailableTools: models.AllSourceTools,
	})
	require.False(t, env.SummaryMode)
	require.Nil(t, env.Lightweight)
	require.Len(t, env.Conversations, 1)
	got := env.Conversations[0]
	require.LessOrEqual(t, len([]rune(got.ID)), models.IDMax)
	require.LessOrEqual(t, len([]rune(got.Title)), models.TitleMax)
	require.LessOrEqual(t, len([]rune(got.Snippet)), models.SnippetMax)
}

func TestShapeDegradesToLightweightWhenFullExceedsBudget(t *testing.T) {
	big := strings.Repeat("x", 2000)
	records := make([]models.ConversationRecord, 20)
	for i := range records {
		// DatabasePath is carried only by the full tier; snippets are
		// truncated on both tiers, so they alone would not overflow it.
		records[i] = models.ConversationRecord{ID: "id", Title: "t", Snippet: big, DatabasePath: big}
	}
	env := Shape(Input{RequestID: "req-2", Conversations: records, MaxBytes: 10_000})
	require.Nil(t, env.Conversations)
	require.NotNil(t, env.Lightweight)
	require.False(t, env.SummaryMode)
	for _, r := range env.Lightweight {
		require.LessOrEqual(t, len([]rune(r.Snippet)), 150)
	}
}

func TestShapeDegradesToSummaryWhenLightweightStillExceedsBudget(t *testing.T) {
	records := make([]models.ConversationRecord, 50)
	for i := range records {
		records[i] = models.ConversationRecord{
			ID: "id", Title: "t", SourceTool: models.SourceCursor,
			RelevanceScore: 0.5, Snippet: strings.Repeat("y", 140),
		}
	}
	env := Shape(Input{RequestID: "req-3", Conversations: records, MaxBytes: 200})
	require.True(t, env.SummaryMode)
	require.Equal(t, 50, env.TotalCount)
	require.Contains(t, env.SummaryTools, string(models.SourceCursor))
	require.Equal(t, 50, env.SummaryTools[string(models.SourceCursor)].Count)
	require.Nil(t, env.Conversations)
	require.Nil(t, env.Lightweight)
}

func TestSummarizeComputesAverageScorePerSource(t *testing.T) {
	full := Envelope{
		Conversations: []models.ConversationRecord{
			{SourceTool: models.SourceCursor, RelevanceScore: 1.0},
			{SourceTool: models.SourceCursor, RelevanceScore: 0.0},
			{SourceTool: models.SourceWindsurf, RelevanceScore: 0.4},
		},
	}
	got := summarize(full)
	require.Equal(t, 0.5, got.SummaryTools[string(models.SourceCursor)].AvgScore)
	require.Equal(t, 0.4, got.SummaryTools[string(models.SourceWindsurf)].AvgScore)
}

func TestShapeCapsContextKeywordsAtTwenty(t *testing.T) {
	kws := make([]string, 30)
	for i := range kws {
		kws[i] = "kw"
	}
	env := Shape(Input{RequestID: "req-4", ContextKeywords: kws})
	require.Len(t, env.ContextKeywords, 20)
}
