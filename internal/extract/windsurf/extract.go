// Package windsurf implements the Windsurf record extractor (C3.3),
// reading the chat.sessionStore entry (or falling back to a pattern
// scan of the whole ItemTable) and rejecting noise via the Content
// Validator, per spec §4.3.3.
package windsurf

import (
	"context"
	"database/sql"
	"strings"

	gojson "github.com/goccy/go-json"

	"github.com/bluekornchips/gandalf-aggregator/internal/pool"
	"github.com/bluekornchips/gandalf-aggregator/internal/validate"
)

// RawRecord is one Windsurf conversation entry.
type RawRecord struct {
	SessionID   string
	Entry       map[string]interface{}
	WorkspaceID string
}

// fallbackKeyPatterns are substrings checked when chat.sessionStore is
// absent or empty, per spec §4.3.3.
var fallbackKeyPatterns = []string{"chat", "conversation", "session", "message", "cascade"}

// Extractor reads Windsurf's ItemTable via the Connection Pool.
type Extractor struct {
	Pool *pool.Pool
}

// New creates a Windsurf extractor backed by p.
func New(p *pool.Pool) *Extractor { return &Extractor{Pool: p} }

// Extract opens dbPath via the pool and emits every validated entry.
func (e *Extractor) Extract(ctx context.Context, dbPath, workspaceID string) ([]RawRecord, error) {
	var primary string
	var allRows map[string]string

	err := e.Pool.WithConnection(ctx, dbPath, func(db *sql.DB) error {
		row := db.QueryRowContext(ctx, `SELECT value FROM ItemTable WHERE key = 'chat.sessionStore'`)
		_ = row.Scan(&primary) // absence is fine, handled below

		rows, err := db.QueryContext(ctx, `SELECT key, value FROM ItemTable`)
		if err != nil {
			return err
		}
		defer rows.Close()
		allRows = map[string]string{}
		for rows.Next() {
			var k, v string
			if err := rows.Scan(&k, &v); err != nil {
				continue
			}
			allRows[k] = v
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}

	if recs, ok := decodeSessionStore(primary, workspaceID); ok && len(recs) > 0 {
		return recs, nil
	}

	return scanFallbackKeys(allRows, workspaceID), nil
}

func decodeSessionStore(raw, workspaceID string) ([]RawRecord, bool) {
	if raw == "" {
		return nil, false
	}
	var wrapper struct {
		Entries map[string]map[string]interface{} `json:"entries"`
	}
	if err := gojson.Unmarshal([]byte(raw), &wrapper); err != nil || wrapper.Entries == nil {
		return nil, false
	}

	out := make([]RawRecord, 0, len(wrapper.Entries))
	for id, entry := range wrapper.Entries {
		if !validate.IsConversation(entry) {
			continue
		}
		out = append(out, RawRecord{SessionID: id, Entry: entry, WorkspaceID: workspaceID})
	}
	return out, true
}

// scanFallbackKeys decodes every ItemTable value whose key matches one
// of fallbackKeyPatterns and keeps whatever passes the validator,
// recursing one level into dict values shaped like entry collections.
func scanFallbackKeys(rows map[string]string, workspaceID string) []RawRecord {
	var out []RawRecord
	for key, raw := range rows {
		if !matchesAnyPattern(key) {
			continue
		}

		var decoded interface{}
		if err := gojson.Unmarshal([]byte(raw), &decoded); err != nil {
			continue
		}

		switch v := decoded.(type) {
		case map[string]interface{}:
			if validate.IsConversation(v) {
				out = append(out, RawRecord{SessionID: key, Entry: v, WorkspaceID: workspaceID})
				continue
			}
			for nestedID, nested := range v {
				if nm, ok := nested.(map[string]interface{}); ok && validate.IsConversation(nm) {
					out = append(out, RawRecord{SessionID: nestedID, Entry: nm, WorkspaceID: workspaceID})
				}
			}
		case []interface{}:
			if validate.IsConversation(v) {
				out = append(out, RawRecord{SessionID: key, Entry: map[string]interface{}{"items": v}, WorkspaceID: workspaceID})
			}
		}
	}
	return out
}

func matchesAnyPattern(key string) bool {
	lower := strings.ToLower(key)
	for _, p := range fallbackKeyPatterns {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}
