// Package rawquery implements query_<tool>_conversations: a per-tool
// raw dump of one source's normalized records in json, markdown, or a
// tool-native markdown rendering. Grounded on original_source's
// cursor/query.py (format dispatch) and cursor_chat_query.py
// (format_as_markdown / format_as_cursor_markdown), generalized from
// Cursor-only to any models.SourceTool per SPEC_FULL.md's Supplemented
// Features.
package rawquery

import (
	"fmt"
	"strings"
	"time"

	goccyjson "github.com/goccy/go-json"

	"github.com/bluekornchips/gandalf-aggregator/pkg/models"
)

// ValidFormats lists the raw-dump format values accepted for every
// tool; the tool-native format is the tool's own name ("cursor",
// "claude-code" or "windsurf"), which ValidFormat and Render also accept.
var ValidFormats = map[string]bool{"json": true, "markdown": true}

// ValidFormat reports whether format is "json", "markdown", or equal
// to tool's own name (the tool-native rendering).
func ValidFormat(format string, tool models.SourceTool) bool {
	return ValidFormats[format] || format == string(tool)
}

// Render produces the raw dump for records from a single tool.
func Render(tool models.SourceTool, records []models.ConversationRecord, format string) (string, error) {
	switch {
	case format == "json":
		b, err := goccyjson.MarshalIndent(records, "", "  ")
		if err != nil {
			return "", fmt.Errorf("marshal %s conversations: %w", tool, err)
		}
		return string(b), nil
	case format == "markdown":
		return renderSimpleMarkdown(records), nil
	case format == string(tool):
		return renderNativeMarkdown(tool, records), nil
	default:
		return "", fmt.Errorf("format must be one of: json, markdown, %s", tool)
	}
}

func toolDisplayName(tool models.SourceTool) string {
	switch tool {
	case models.SourceCursor:
		return "Cursor"
	case models.SourceClaudeCode:
		return "Claude Code"
	case models.SourceWindsurf:
		return "Windsurf"
	default:
		return string(tool)
	}
}

func renderSimpleMarkdown(records []models.ConversationRecord) string {
	var b strings.Builder
	b.WriteString("# Conversations Export\n\n")
	for _, r := range records {
		fmt.Fprintf(&b, "## %s\n\n", r.Title)
	}
	return b.String()
}

func renderNativeMarkdown(tool models.SourceTool, records []models.ConversationRecord) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s Conversations Export\n", toolDisplayName(tool))
	fmt.Fprintf(&b, "Generated on: %s\n", time.Now().UTC().Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&b, "Total Conversations: %d\n\n", len(records))

	byWorkspace := map[string][]models.ConversationRecord{}
	var order []string
	for _, r := range records {
		ws := r.WorkspaceID
		if ws == "" {
			ws = "unknown"
		}
		if _, ok := byWorkspace[ws]; !ok {
			order = append(order, ws)
		}
		byWorkspace[ws] = append(byWorkspace[ws], r)
	}

	for _, ws := range order {
		group := byWorkspace[ws]
		fmt.Fprintf(&b, "## Workspace: %s\n", ws)
		fmt.Fprintf(&b, "Conversations: %d\n\n", len(group))
		for _, r := range group {
			fmt.Fprintf(&b, "### %s\n", r.Title)
			fmt.Fprintf(&b, "ID: %s | Messages: %d\n\n", r.ID, r.MessageCount)
			if r.Snippet != "" {
				fmt.Fprintf(&b, "%s\n\n", r.Snippet)
			}
		}
	}
	return b.String()
}
