package export

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bluekornchips/gandalf-aggregator/pkg/models"
)

func TestRunWritesOneFilePerConversation(t *testing.T) {
	dir := t.TempDir()
	records := []models.ConversationRecord{
		{ID: "abcdefgh1234", Title: "Fix the flaky test", SourceTool: models.SourceCursor, UpdatedAtEpoch: 1700000000},
		{ID: "zzzzzzzz5678", Title: "Debug crash", SourceTool: models.SourceWindsurf, UpdatedAtEpoch: 1700000001},
	}

	result, err := Run(Request{Conversations: records, OutputDir: dir, Format: "json", Limit: 10})
	require.NoError(t, err)
	require.Equal(t, 2, result.ExportedCount)
	require.Len(t, result.Files, 2)

	for _, f := range result.Files {
		_, err := os.Stat(f)
		require.NoError(t, err)
	}
}

func TestBuildFilenameMatchesConvention(t *testing.T) {
	rec := models.ConversationRecord{ID: "abcdefgh1234", Title: "My / Weird:Name", UpdatedAtEpoch: 1700000000}
	name := buildFilename(rec, "md")
	require.Regexp(t, `^\d{8}_\d{6}_My _ Weird_Name_abcdefgh\.md$`, name)
}

func TestRunRejectsInvalidFormat(t *testing.T) {
	_, err := Run(Request{OutputDir: t.TempDir(), Format: "pdf", Limit: 10})
	require.Error(t, err)
}

func TestRunRejectsOutOfRangeLimit(t *testing.T) {
	_, err := Run(Request{OutputDir: t.TempDir(), Format: "json", Limit: 0})
	require.Error(t, err)
	_, err = Run(Request{OutputDir: t.TempDir(), Format: "json", Limit: 101})
	require.Error(t, err)
}

func TestRunAppliesConversationFilter(t *testing.T) {
	dir := t.TempDir()
	records := []models.ConversationRecord{
		{ID: "1", Title: "Fix login bug", UpdatedAtEpoch: 1},
		{ID: "2", Title: "Unrelated topic", UpdatedAtEpoch: 1},
	}
	result, err := Run(Request{Conversations: records, OutputDir: dir, Format: "txt", Limit: 10, ConversationFilter: "login"})
	require.NoError(t, err)
	require.Equal(t, 1, result.ExportedCount)
}

func TestRunDefaultsOutputDirToGandalfExports(t *testing.T) {
	home := t.TempDir()
	os.Setenv("HOME", home)
	t.Cleanup(func() { os.Unsetenv("HOME") })

	result, err := Run(Request{Format: "json", Limit: 1})
	require.NoError(t, err)
	require.Equal(t, filepath.Join(home, ".gandalf", "exports"), result.OutputDirectory)
}

func TestSanitizeFilenameHandlesEmptyName(t *testing.T) {
	require.Equal(t, "unnamed_conversation", sanitizeFilename("   "))
}
