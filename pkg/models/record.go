// Package models contains the canonical data types shared across the
// conversation aggregator: the source-tool enumeration, the
// conversation-type tags produced by the relevance engine, and the
// normalized conversation record emitted by the normalizer.
package models

import (
	"encoding/json"
)

// SourceTool identifies which coding IDE a conversation record came from.
type SourceTool string

const (
	SourceCursor     SourceTool = "cursor"
	SourceClaudeCode SourceTool = "claude-code"
	SourceWindsurf   SourceTool = "windsurf"
)

// Valid reports whether t is one of the known source tools.
func (t SourceTool) Valid() bool {
	switch t {
	case SourceCursor, SourceClaudeCode, SourceWindsurf:
		return true
	default:
		return false
	}
}

// AllSourceTools lists every supported source in a fixed, stable order.
var AllSourceTools = []SourceTool{SourceCursor, SourceClaudeCode, SourceWindsurf}

// ConversationType is the fixed classification tag attached by the
// relevance engine.
type ConversationType string

const (
	TypeArchitecture   ConversationType = "architecture"
	TypeDebugging      ConversationType = "debugging"
	TypeProblemSolving ConversationType = "problem_solving"
	TypeTechnical      ConversationType = "technical"
	TypeCodeDiscussion ConversationType = "code_discussion"
	TypeGeneral        ConversationType = "general"
)

// AllConversationTypes lists every tag in declaration order, used by the
// classifier to break ties deterministically.
var AllConversationTypes = []ConversationType{
	TypeArchitecture,
	TypeDebugging,
	TypeProblemSolving,
	TypeTechnical,
	TypeCodeDiscussion,
	TypeGeneral,
}

// Display size limits enforced by the Response Shaper (spec §4.10, §3).
const (
	TitleMax   = 100
	SnippetMax = 150
	IDMax      = 50
)

// ConversationRecord is the canonical schema emitted by the normalizer
// and consumed by the aggregator and response shaper. Timestamp fields
// preserve whatever form the source tool produced (millisecond epoch
// integer or ISO-8601 string) — callers needing a comparable value use
// UpdatedAtEpoch (seconds), which the normalizer sets for Cursor and
// Claude Code records; Windsurf records leave it zero.
type ConversationRecord struct {
	ID               string                 `json:"id"`
	SourceTool       SourceTool             `json:"source_tool"`
	Title            string                 `json:"title"`
	CreatedAt        json.RawMessage        `json:"created_at,omitempty"`
	UpdatedAt        json.RawMessage        `json:"updated_at,omitempty"`
	UpdatedAtEpoch   int64                  `json:"-"`
	MessageCount     int                    `json:"message_count"`
	Snippet          string                 `json:"snippet,omitempty"`
	RelevanceScore   float64                `json:"relevance_score"`
	KeywordMatches   []string               `json:"keyword_matches,omitempty"`
	FileReferences   []string               `json:"file_references,omitempty"`
	ConversationType ConversationType       `json:"conversation_type"`
	WorkspaceID      string                 `json:"workspace_id,omitempty"`
	DatabasePath     string                 `json:"database_path,omitempty"`
	SessionID        string                 `json:"session_id,omitempty"`
	SessionData      map[string]interface{} `json:"session_data,omitempty"`
	WindsurfMetadata map[string]interface{} `json:"windsurf_metadata,omitempty"`
	Analysis         *ScoreComponents       `json:"analysis,omitempty"`
}

// ScoreComponents is the detailed relevance-score breakdown, attached
// only when a caller requests detailed analysis.
type ScoreComponents struct {
	KeywordScore float64 `json:"keyword_score"`
	RecencyScore float64 `json:"recency_score"`
	FileScore    float64 `json:"file_score"`
	Total        float64 `json:"total"`
}

// LightweightRecord is the compact 7-field projection used once a
// response exceeds the full-fidelity size budget (spec §4.8, §4.10).
type LightweightRecord struct {
	ID             string     `json:"id"`
	Title          string     `json:"title"`
	SourceTool     SourceTool `json:"source_tool"`
	MessageCount   int        `json:"message_count"`
	RelevanceScore float64    `json:"relevance_score"`
	CreatedAt      json.RawMessage `json:"created_at,omitempty"`
	Snippet        string     `json:"snippet,omitempty"`
}

// Lightweight projects r onto the compact 7-field form.
func (r ConversationRecord) Lightweight() LightweightRecord {
	return LightweightRecord{
		ID:             TruncateString(r.ID, IDMax),
		Title:          TruncateString(r.Title, TitleMax),
		SourceTool:     r.SourceTool,
		MessageCount:   r.MessageCount,
		RelevanceScore: round2(r.RelevanceScore),
		CreatedAt:      r.CreatedAt,
		Snippet:        TruncateString(r.Snippet, SnippetMax),
	}
}

// Truncated caps id/title/snippet at their display size limits. Unlike
// Lightweight, it keeps every other field, so the full-fidelity tier of a
// shaped response still honors spec's id/title/snippet length invariant
// instead of only the lightweight tier.
func (r ConversationRecord) Truncated() ConversationRecord {
	r.ID = TruncateString(r.ID, IDMax)
	r.Title = TruncateString(r.Title, TitleMax)
	r.Snippet = TruncateString(r.Snippet, SnippetMax)
	return r
}

// TruncateString truncates s to at most limit characters, appending an
// ellipsis when truncation occurred, matching the original's
// `_truncate_string_field` behavior.
func TruncateString(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	if limit <= 1 {
		return string(runes[:limit])
	}
	return string(runes[:limit-1]) + "…"
}

func round2(v float64) float64 {
	return float64(int64(v*100+0.5)) / 100
}
