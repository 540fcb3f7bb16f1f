package models

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSourceToolValid(t *testing.T) {
	require.True(t, SourceCursor.Valid())
	require.True(t, SourceClaudeCode.Valid())
	require.True(t, SourceWindsurf.Valid())
	require.False(t, SourceTool("notebook").Valid())
}

func TestTruncateStringAppendsEllipsisOnlyWhenTruncated(t *testing.T) {
	require.Equal(t, "short", TruncateString("short", 100))
	got := TruncateString(strings.Repeat("a", 10), 5)
	require.Equal(t, "aaaa…", got)
	require.Equal(t, []rune(got), []rune{'a', 'a', 'a', 'a', '…'})
}

func TestLightweightProjectsCappedFields(t *testing.T) {
	r := ConversationRecord{
		ID:             strings.Repeat("x", IDMax+10),
		Title:          strings.Repeat("y", TitleMax+10),
		Snippet:        strings.Repeat("z", SnippetMax+10),
		SourceTool:     SourceCursor,
		MessageCount:   3,
		RelevanceScore: 0.8333,
	}
	lw := r.Lightweight()
	require.LessOrEqual(t, len([]rune(lw.ID)), IDMax)
	require.LessOrEqual(t, len([]rune(lw.Title)), TitleMax)
	require.LessOrEqual(t, len([]rune(lw.Snippet)), SnippetMax)
	require.Equal(t, 0.83, lw.RelevanceScore)
}
