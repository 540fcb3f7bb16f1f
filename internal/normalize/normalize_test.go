package normalize

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/bluekornchips/gandalf-aggregator/internal/extract/claudecode"
	"github.com/bluekornchips/gandalf-aggregator/internal/extract/cursor"
	"github.com/bluekornchips/gandalf-aggregator/internal/extract/windsurf"
	"github.com/bluekornchips/gandalf-aggregator/pkg/models"
)

func TestFromCursorDerivesTitleWhenMissing(t *testing.T) {
	rec := cursor.RawRecord{ComposerID: "c1", CreatedAtMs: 1000, UpdatedAtMs: 2000, WorkspaceID: "ws1"}
	got := FromCursor(rec)
	require.Equal(t, "cursor-c1", got.Title)
	require.Equal(t, models.SourceCursor, got.SourceTool)
	require.Equal(t, "c1", got.ID)
	require.Equal(t, "ws1", got.WorkspaceID)
}

func TestFromClaudeCodeUsesFirstUserLineAsTitle(t *testing.T) {
	rec := claudecode.RawRecord{
		SessionID:    "s1",
		MessageCount: 2,
		FirstMsgAt:   time.Now().Add(-time.Hour),
		LastMsgAt:    time.Now(),
		Exchanges: []claudecode.Exchange{
			{UserText: "how do I fix the flaky test\nmore context", AssistantText: "try retries"},
		},
	}
	got := FromClaudeCode(rec)
	require.Equal(t, "how do I fix the flaky test", got.Title)
	require.Equal(t, models.SourceClaudeCode, got.SourceTool)
	require.Equal(t, "s1", got.SessionID)
	require.Equal(t, "s1", got.ID) // no workspace recovered, falls back to the bare session id
}

func TestFromClaudeCodeUsesCompositeKeyWhenWorkspaceKnown(t *testing.T) {
	rec := claudecode.RawRecord{
		SessionID:   "s1",
		ProjectCWD:  "/home/me/proj",
		WorkspaceID: claudecode.ProjectID("/home/me/proj"),
	}
	got := FromClaudeCode(rec)
	require.Equal(t, rec.CompositeKey(), got.ID)
	require.Equal(t, rec.WorkspaceID, got.WorkspaceID)
	require.NotEqual(t, "s1", got.ID)
}

func TestFromWindsurfPreservesMetadataAndDerivesTitle(t *testing.T) {
	rec := windsurf.RawRecord{
		SessionID: "sess1",
		Entry: map[string]interface{}{
			"messages": []interface{}{
				map[string]interface{}{"role": "user", "content": "help me debug this crash"},
			},
		},
		WorkspaceID: "ws2",
	}
	got := FromWindsurf(rec)
	require.Equal(t, "Windsurf session sess1", got.Title)
	require.Equal(t, 1, got.MessageCount)
	require.NotNil(t, got.WindsurfMetadata)
	require.Equal(t, "help me debug this crash", got.Snippet)
}

func TestLightweightProjectionIsIdempotent(t *testing.T) {
	rec := models.ConversationRecord{
		ID: "abc", Title: "Some Title", SourceTool: models.SourceCursor,
		MessageCount: 3, RelevanceScore: 0.456, Snippet: "a snippet",
	}
	once := Lightweight(rec)
	full := models.ConversationRecord{
		ID: once.ID, Title: once.Title, SourceTool: once.SourceTool,
		MessageCount: once.MessageCount, RelevanceScore: once.RelevanceScore,
		CreatedAt: once.CreatedAt, Snippet: once.Snippet,
	}
	twice := Lightweight(full)
	require.Equal(t, once, twice)
}
