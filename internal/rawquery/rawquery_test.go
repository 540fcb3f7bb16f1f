package rawquery

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bluekornchips/gandalf-aggregator/pkg/models"
)

func TestRenderJSONRoundTrips(t *testing.T) {
	records := []models.ConversationRecord{{ID: "1", Title: "hello"}}
	out, err := Render(models.SourceCursor, records, "json")
	require.NoError(t, err)
	require.Contains(t, out, `"hello"`)
}

func TestRenderMarkdownListsTitles(t *testing.T) {
	records := []models.ConversationRecord{{ID: "1", Title: "First"}, {ID: "2", Title: "Second"}}
	out, err := Render(models.SourceWindsurf, records, "markdown")
	require.NoError(t, err)
	require.Contains(t, out, "## First")
	require.Contains(t, out, "## Second")
}

func TestRenderNativeFormatGroupsByWorkspace(t *testing.T) {
	records := []models.ConversationRecord{
		{ID: "1", Title: "A", WorkspaceID: "ws1"},
		{ID: "2", Title: "B", WorkspaceID: "ws1"},
	}
	out, err := Render(models.SourceCursor, records, "cursor")
	require.NoError(t, err)
	require.Contains(t, out, "# Cursor Conversations Export")
	require.Contains(t, out, "Workspace: ws1")
	require.Contains(t, out, "Conversations: 2")
}

func TestRenderRejectsUnknownFormat(t *testing.T) {
	_, err := Render(models.SourceCursor, nil, "yaml")
	require.Error(t, err)
}

func TestValidFormatAcceptsToolNative(t *testing.T) {
	require.True(t, ValidFormat("windsurf", models.SourceWindsurf))
	require.False(t, ValidFormat("windsurf", models.SourceCursor))
	require.True(t, ValidFormat("json", models.SourceCursor))
}
