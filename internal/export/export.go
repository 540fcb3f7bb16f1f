// Package export implements export_individual_conversations: writing
// one file per conversation to an output directory in json/md/txt
// form. Grounded on original_source's export.py
// (sanitize_filename, format_timestamp, handle_export_individual_conversations),
// generalized from Cursor-only conversations to any normalized
// models.ConversationRecord per SPEC_FULL.md's Supplemented Features.
package export

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	goccyjson "github.com/goccy/go-json"

	"github.com/bluekornchips/gandalf-aggregator/pkg/models"
)

// ValidFormats lists the accepted export format values.
var ValidFormats = map[string]bool{"json": true, "md": true, "markdown": true, "txt": true}

const (
	MinLimit = 1
	MaxLimit = 100

	maxNameLen = 100
)

var (
	invalidFilenameChars = regexp.MustCompile(`[<>:"/\\|?*\x00-\x1f]`)
	controlChars         = regexp.MustCompile(`[\x00-\x08\x0b\x0c\x0e-\x1f]`)
)

// Request configures one export run.
type Request struct {
	Conversations      []models.ConversationRecord
	OutputDir          string
	Format             string
	Limit              int
	ConversationFilter string
}

// Result reports what was written.
type Result struct {
	ExportedCount   int      `json:"exported_count"`
	OutputDirectory string   `json:"output_directory"`
	Format          string   `json:"format"`
	Files           []string `json:"files"`
	Errors          []string `json:"errors"`
}

// Run writes one file per matching conversation and returns a summary,
// per spec §6's export_individual_conversations contract.
func Run(req Request) (Result, error) {
	format := req.Format
	if format == "" {
		format = "json"
	}
	if !ValidFormats[format] {
		return Result{}, fmt.Errorf("invalid format %q: must be one of json, md, markdown, txt", format)
	}

	limit := req.Limit
	if limit < MinLimit || limit > MaxLimit {
		return Result{}, fmt.Errorf("limit must be an integer between %d and %d", MinLimit, MaxLimit)
	}

	outDir := req.OutputDir
	if outDir == "" {
		home, _ := os.UserHomeDir()
		outDir = filepath.Join(home, ".gandalf", "exports")
	}
	outDir, err := filepath.Abs(outDir)
	if err != nil {
		return Result{}, fmt.Errorf("resolve output directory: %w", err)
	}

	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return Result{}, fmt.Errorf("create output directory: %w", err)
	}

	normalizedExt := format
	if format == "md" || format == "markdown" {
		normalizedExt = "md"
	}

	result := Result{OutputDirectory: outDir, Format: format, Files: []string{}, Errors: []string{}}

	count := 0
	for _, rec := range req.Conversations {
		if count >= limit {
			break
		}
		if req.ConversationFilter != "" && !strings.Contains(strings.ToLower(rec.Title), strings.ToLower(req.ConversationFilter)) {
			continue
		}

		filename := buildFilename(rec, normalizedExt)
		path := filepath.Join(outDir, filename)

		content, err := render(rec, format)
		if err != nil {
			result.Errors = append(result.Errors, err.Error())
			continue
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			result.Errors = append(result.Errors, err.Error())
			continue
		}
		result.Files = append(result.Files, path)
		count++
	}
	result.ExportedCount = count
	return result, nil
}

// buildFilename implements the <yyyymmdd_hhmmss>_<sanitized_name>_<id8>.<ext>
// convention spec §6 and §8 mandate exactly.
func buildFilename(rec models.ConversationRecord, ext string) string {
	ts := formatTimestamp(rec.UpdatedAtEpoch)
	name := sanitizeFilename(rec.Title)
	id8 := rec.ID
	if len(id8) > 8 {
		id8 = id8[:8]
	}
	return fmt.Sprintf("%s_%s_%s.%s", ts, name, id8, ext)
}

func formatTimestamp(epochSeconds int64) string {
	t := time.Unix(epochSeconds, 0)
	if epochSeconds == 0 {
		t = time.Now()
	}
	return t.UTC().Format("20060102_150405")
}

func sanitizeFilename(name string) string {
	sanitized := invalidFilenameChars.ReplaceAllString(name, "_")
	sanitized = controlChars.ReplaceAllString(sanitized, "")
	sanitized = strings.TrimSpace(sanitized)
	if len(sanitized) > maxNameLen {
		sanitized = sanitized[:maxNameLen]
	}
	if sanitized == "" {
		sanitized = "unnamed_conversation"
	}
	return sanitized
}

func render(rec models.ConversationRecord, format string) (string, error) {
	switch format {
	case "json":
		b, err := goccyjson.MarshalIndent(rec, "", "  ")
		if err != nil {
			return "", fmt.Errorf("marshal conversation %s: %w", rec.ID, err)
		}
		return string(b), nil
	case "md", "markdown":
		return renderMarkdown(rec), nil
	case "txt":
		return renderText(rec), nil
	default:
		return "", fmt.Errorf("unsupported format %q", format)
	}
}

func renderMarkdown(rec models.ConversationRecord) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", rec.Title)
	fmt.Fprintf(&b, "**Source:** %s  \n", rec.SourceTool)
	fmt.Fprintf(&b, "**ID:** %s  \n", rec.ID)
	fmt.Fprintf(&b, "**Message count:** %d  \n", rec.MessageCount)
	fmt.Fprintf(&b, "**Relevance score:** %.2f  \n\n", rec.RelevanceScore)
	if rec.Snippet != "" {
		fmt.Fprintf(&b, "%s\n\n", rec.Snippet)
	}
	if len(rec.KeywordMatches) > 0 {
		fmt.Fprintf(&b, "**Keyword matches:** %s\n", strings.Join(rec.KeywordMatches, ", "))
	}
	return b.String()
}

func renderText(rec models.ConversationRecord) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n", rec.Title)
	fmt.Fprintf(&b, "source: %s | id: %s | messages: %d | score: %.2f\n\n", rec.SourceTool, rec.ID, rec.MessageCount, rec.RelevanceScore)
	b.WriteString(rec.Snippet)
	b.WriteString("\n")
	return b.String()
}
