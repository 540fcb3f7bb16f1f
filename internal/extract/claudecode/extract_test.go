package claudecode

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeJSONL(t *testing.T, path string, lines []string) {
	t.Helper()
	content := ""
	for _, l := range lines {
		content += l + "\n"
	}
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestExtractParsesValidLinesAndSkipsMalformed(t *testing.T) {
	root := t.TempDir()
	projectDir := filepath.Join(root, "-home-me-proj")
	require.NoError(t, os.MkdirAll(projectDir, 0o755))

	writeJSONL(t, filepath.Join(projectDir, "session1.jsonl"), []string{
		`{"type":"user","sessionId":"s1","cwd":"/home/me/proj","timestamp":"2024-01-01T00:00:00Z","message":{"role":"user","content":"hi"}}`,
		`not valid json at all`,
		`{"type":"assistant","sessionId":"s1","timestamp":"2024-01-01T00:00:05Z","message":{"role":"assistant","content":"hello"}}`,
	})

	e := New()
	records, err := e.Extract(context.Background(), root, "", 10)
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, "s1", records[0].SessionID)
	require.Equal(t, 2, records[0].MessageCount)
	require.Len(t, records[0].Exchanges, 1)
	require.Equal(t, "hi", records[0].Exchanges[0].UserText)
	require.Equal(t, "hello", records[0].Exchanges[0].AssistantText)
	require.Equal(t, ProjectID("/home/me/proj"), records[0].WorkspaceID)
	require.Equal(t, WorkstationID()+":"+ProjectID("/home/me/proj")+":s1", records[0].CompositeKey())
}

func TestExtractDropsFileWithZeroParsedLines(t *testing.T) {
	root := t.TempDir()
	projectDir := filepath.Join(root, "proj")
	require.NoError(t, os.MkdirAll(projectDir, 0o755))
	writeJSONL(t, filepath.Join(projectDir, "empty.jsonl"), []string{"garbage", "more garbage"})

	e := New()
	records, err := e.Extract(context.Background(), root, "", 10)
	require.NoError(t, err)
	require.Empty(t, records)
}

func TestExtractRespectsLimit(t *testing.T) {
	root := t.TempDir()
	projectDir := filepath.Join(root, "proj")
	require.NoError(t, os.MkdirAll(projectDir, 0o755))
	for i := 0; i < 3; i++ {
		name := filepath.Join(projectDir, string(rune('a'+i))+".jsonl")
		writeJSONL(t, name, []string{
			`{"type":"user","sessionId":"s","timestamp":"2024-01-01T00:00:00Z","message":{"role":"user","content":"hi"}}`,
			`{"type":"assistant","sessionId":"s","timestamp":"2024-01-01T00:00:01Z","message":{"role":"assistant","content":"yo"}}`,
		})
	}

	e := New()
	records, err := e.Extract(context.Background(), root, "", 2)
	require.NoError(t, err)
	require.Len(t, records, 2)
}

func TestExtractContentItemsList(t *testing.T) {
	root := t.TempDir()
	projectDir := filepath.Join(root, "proj")
	require.NoError(t, os.MkdirAll(projectDir, 0o755))
	writeJSONL(t, filepath.Join(projectDir, "s.jsonl"), []string{
		`{"type":"user","sessionId":"s","timestamp":"2024-01-01T00:00:00Z","message":{"role":"user","content":[{"type":"text","text":"part one"}]}}`,
		`{"type":"assistant","sessionId":"s","timestamp":"2024-01-01T00:00:01Z","message":{"role":"assistant","content":[{"type":"text","text":"reply"}]}}`,
	})

	e := New()
	records, err := e.Extract(context.Background(), root, "", 10)
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, "part one", records[0].Exchanges[0].UserText)
}
