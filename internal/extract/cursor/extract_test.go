package cursor

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"

	"github.com/bluekornchips/gandalf-aggregator/internal/pool"
)

func setupDB(t *testing.T, rows map[string]string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "state.vscdb")
	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	defer db.Close()

	_, err = db.Exec(`CREATE TABLE ItemTable (key TEXT PRIMARY KEY, value TEXT)`)
	require.NoError(t, err)

	for k, v := range rows {
		_, err := db.Exec(`INSERT INTO ItemTable (key, value) VALUES (?, ?)`, k, v)
		require.NoError(t, err)
	}
	return path
}

func TestExtractReconstructsFromPromptsAndGenerations(t *testing.T) {
	path := setupDB(t, map[string]string{
		"aiService.prompts":     `[{"conversationId":"c1","text":"hi","unixMs":1000}]`,
		"aiService.generations": `[{"conversationId":"c1","text":"hello","unixMs":2000}]`,
	})

	e := New(pool.New(pool.Config{}))
	records, err := e.Extract(context.Background(), path, "ws1")
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, "c1", records[0].ComposerID)
	require.Equal(t, 2, records[0].MessageCount)
	require.Equal(t, int64(1000), records[0].CreatedAtMs)
	require.Equal(t, int64(2000), records[0].UpdatedAtMs)
}

func TestExtractPrefersComposerData(t *testing.T) {
	path := setupDB(t, map[string]string{
		"composer.composerData": `{"allComposers":[{"composerId":"comp1","name":"Session A","createdAt":10,"lastUpdatedAt":20}]}`,
		"aiService.prompts":     `[{"conversationId":"c1","text":"hi","unixMs":1000}]`,
	})

	e := New(pool.New(pool.Config{}))
	records, err := e.Extract(context.Background(), path, "ws1")
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, "comp1", records[0].ComposerID)
	require.Equal(t, "Session A", records[0].Title)
}

func TestExtractReturnsEmptyWhenNoCandidateKeysPresent(t *testing.T) {
	path := setupDB(t, map[string]string{"unrelated.key": "value"})

	e := New(pool.New(pool.Config{}))
	records, err := e.Extract(context.Background(), path, "ws1")
	require.NoError(t, err)
	require.Empty(t, records)
}
