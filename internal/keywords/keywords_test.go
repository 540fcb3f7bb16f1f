package keywords

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBuildFromManifestAndExtensions(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "package.json"),
		[]byte(`{"name":"widget-service","keywords":["graphql","caching"]}`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "main.go"), []byte("package main"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "README.md"),
		[]byte("Built with Python and Redis."), 0o644))

	got := Build(Request{ProjectRoot: root})
	require.Contains(t, got, "graphql")
	require.Contains(t, got, "caching")
	require.Contains(t, got, "go")
	require.Contains(t, got, "python")
	require.Contains(t, got, "redis")
}

func TestBuildTokenizesUserPromptAndSearchQuery(t *testing.T) {
	got := Build(Request{UserPrompt: "how do I fix the flaky test in the scheduler", SearchQuery: "scheduler retry logic"})
	require.Contains(t, got, "scheduler")
	require.Contains(t, got, "retry")
	require.Contains(t, got, "logic")
	require.Contains(t, got, "flaky")
	require.NotContains(t, got, "the")
	require.NotContains(t, got, "how")
}

func TestBuildDedupesCaseInsensitively(t *testing.T) {
	got := Build(Request{UserPrompt: "Docker docker DOCKER container"})
	count := 0
	for _, k := range got {
		if k == "docker" {
			count++
		}
	}
	require.Equal(t, 1, count)
}

func TestBuildCapsAtMaxContextKeywords(t *testing.T) {
	prompt := ""
	for i := 0; i < 40; i++ {
		prompt += "uniqueword" + string(rune('a'+i%26)) + " "
	}
	got := Build(Request{UserPrompt: prompt})
	require.LessOrEqual(t, len(got), MaxContextKeywords)
}

func TestBuildHandlesMissingProjectRootGracefully(t *testing.T) {
	got := Build(Request{ProjectRoot: "/does/not/exist", UserPrompt: "test keyword"})
	require.Contains(t, got, "test")
	require.Contains(t, got, "keyword")
}

func TestBoundReadmeTextLeavesShortTextUnchanged(t *testing.T) {
	text := "a small readme mentioning golang and postgres"
	require.Equal(t, text, boundReadmeText(text))
}

func TestBoundReadmeTextShrinksVeryLongReadme(t *testing.T) {
	var sb strings.Builder
	for i := 0; i < 10_000; i++ {
		sb.WriteString("word ")
	}
	out := boundReadmeText(sb.String())
	require.Less(t, len(out), sb.Len())
}
