// Package normalize implements the Normalizer (C8): mapping each
// source tool's raw record into the canonical schema of spec §3.
// Grounded on original_source's conversation_aggregator.py
// (_standardize_conversation_format, _create_lightweight_conversation).
// Display-limit truncation (id/title/snippet caps) is deliberately NOT
// performed here — only at the Response Shaper boundary, per spec §4.8;
// the snippet source text is only cut to snippetSourceChars bytes.
package normalize

import (
	"encoding/json"
	"strings"

	"github.com/bluekornchips/gandalf-aggregator/internal/extract/claudecode"
	"github.com/bluekornchips/gandalf-aggregator/internal/extract/cursor"
	"github.com/bluekornchips/gandalf-aggregator/internal/extract/windsurf"
	"github.com/bluekornchips/gandalf-aggregator/pkg/models"
)

const snippetSourceChars = 200

// FromCursor maps a Cursor raw record into the canonical schema.
func FromCursor(rec cursor.RawRecord) models.ConversationRecord {
	title := rec.Title
	if title == "" {
		title = rec.DisplayName()
	}

	var snippetSrc string
	if len(rec.Prompts) > 0 {
		snippetSrc = rec.Prompts[0].Text
	} else if len(rec.Generations) > 0 {
		snippetSrc = rec.Generations[0].Text
	}

	messageCount := rec.MessageCount
	if messageCount == 0 {
		messageCount = len(rec.Prompts) + len(rec.Generations)
	}

	return models.ConversationRecord{
		ID:               rec.ComposerID,
		SourceTool:       models.SourceCursor,
		Title:            title,
		CreatedAt:        epochJSON(rec.CreatedAtMs),
		UpdatedAt:        epochJSON(rec.UpdatedAtMs),
		UpdatedAtEpoch:   rec.UpdatedAtMs / 1000,
		MessageCount:     messageCount,
		Snippet:          snippet(snippetSrc),
		ConversationType: models.TypeGeneral,
		WorkspaceID:      rec.WorkspaceID,
	}
}

// FromClaudeCode maps a Claude Code raw record into the canonical schema.
func FromClaudeCode(rec claudecode.RawRecord) models.ConversationRecord {
	title := ""
	var snippetSrc string
	if len(rec.Exchanges) > 0 {
		snippetSrc = rec.Exchanges[0].UserText
		title = firstLine(rec.Exchanges[0].UserText)
	}
	if title == "" {
		title = "Claude Code session " + rec.SessionID
	}

	id := rec.SessionID
	if rec.WorkspaceID != "" {
		id = rec.CompositeKey()
	}

	return models.ConversationRecord{
		ID:               id,
		SourceTool:       models.SourceClaudeCode,
		Title:            title,
		CreatedAt:        timeJSON(rec.FirstMsgAt),
		UpdatedAt:        timeJSON(rec.LastMsgAt),
		UpdatedAtEpoch:   rec.LastMsgAt.Unix(),
		MessageCount:     rec.MessageCount,
		Snippet:          snippet(snippetSrc),
		ConversationType: models.TypeGeneral,
		WorkspaceID:      rec.WorkspaceID,
		SessionID:        rec.SessionID,
		DatabasePath:     rec.FilePath,
	}
}

// FromWindsurf maps a Windsurf raw record into the canonical schema.
func FromWindsurf(rec windsurf.RawRecord) models.ConversationRecord {
	title, _ := rec.Entry["title"].(string)
	if title == "" {
		title = "Windsurf session " + rec.SessionID
	}

	var snippetSrc string
	if content, ok := rec.Entry["content"].(string); ok {
		snippetSrc = content
	} else if msgs, ok := rec.Entry["messages"].([]interface{}); ok && len(msgs) > 0 {
		if m, ok := msgs[0].(map[string]interface{}); ok {
			if c, ok := m["content"].(string); ok {
				snippetSrc = c
			}
		}
	}

	messageCount := 0
	if msgs, ok := rec.Entry["messages"].([]interface{}); ok {
		messageCount = len(msgs)
	}

	return models.ConversationRecord{
		ID:               rec.SessionID,
		SourceTool:       models.SourceWindsurf,
		Title:            title,
		MessageCount:     messageCount,
		Snippet:          snippet(snippetSrc),
		ConversationType: models.TypeGeneral,
		WorkspaceID:      rec.WorkspaceID,
		SessionID:        rec.SessionID,
		WindsurfMetadata: rec.Entry,
	}
}

// Lightweight produces the compact 7-field subset the Response Shaper
// requests once a response exceeds the full-fidelity size budget.
func Lightweight(rec models.ConversationRecord) models.LightweightRecord {
	return rec.Lightweight()
}

func snippet(text string) string {
	text = strings.TrimSpace(text)
	if len(text) > snippetSourceChars {
		text = text[:snippetSourceChars]
	}
	return text
}

func firstLine(text string) string {
	if idx := strings.IndexByte(text, '\n'); idx >= 0 {
		text = text[:idx]
	}
	return strings.TrimSpace(text)
}

func epochJSON(ms int64) json.RawMessage {
	if ms == 0 {
		return nil
	}
	b, _ := json.Marshal(ms)
	return b
}

func timeJSON(t interface{ Unix() int64 }) json.RawMessage {
	sec := t.Unix()
	if sec <= 0 {
		return nil
	}
	b, _ := json.Marshal(sec * 1000)
	return b
}
