// Package cursor implements the Cursor record extractor (C3.1),
// reconstructing conversations from Cursor's ItemTable key/value
// store, per spec §4.3.1.
package cursor

import (
	"context"
	"database/sql"
	"fmt"
	"sort"

	gojson "github.com/goccy/go-json"

	"github.com/bluekornchips/gandalf-aggregator/internal/aggerr"
	"github.com/bluekornchips/gandalf-aggregator/internal/pool"
)

// RawRecord is one reconstructed or directly-read Cursor conversation.
type RawRecord struct {
	ComposerID   string
	Title        string
	CreatedAtMs  int64
	UpdatedAtMs  int64
	MessageCount int
	WorkspaceID  string
	Prompts      []promptOrGeneration
	Generations  []promptOrGeneration
}

type promptOrGeneration struct {
	ConversationID string `json:"conversationId"`
	Text           string `json:"text"`
	UnixMs         int64  `json:"unixMs"`
}

type composerData struct {
	AllComposers []composer `json:"allComposers"`
}

type composer struct {
	ComposerID string `json:"composerId"`
	Name       string `json:"name"`
	CreatedAt  int64  `json:"createdAt"`
	LastUpdated int64 `json:"lastUpdatedAt"`
}

// candidateKeys are fetched once per database per spec §4.3.1.
var candidateKeys = []string{
	"composer.composerData",
	"aiService.prompts",
	"aiService.generations",
	"workbench.panel.aichat.view.aichat.chatdata",
	"interactive.sessions",
}

// Extractor reads Cursor's ItemTable via the Connection Pool.
type Extractor struct {
	Pool *pool.Pool
}

// New creates a Cursor extractor backed by p.
func New(p *pool.Pool) *Extractor { return &Extractor{Pool: p} }

// Extract opens dbPath via the pool and reconstructs conversation
// records from whichever candidate keys are present.
func (e *Extractor) Extract(ctx context.Context, dbPath, workspaceID string) ([]RawRecord, error) {
	values := make(map[string]string, len(candidateKeys))

	err := e.Pool.WithConnection(ctx, dbPath, func(db *sql.DB) error {
		for _, key := range candidateKeys {
			var v string
			row := db.QueryRowContext(ctx, `SELECT value FROM ItemTable WHERE key = ?`, key)
			if err := row.Scan(&v); err != nil {
				continue // tolerate missing keys
			}
			values[key] = v
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if raw, ok := values["composer.composerData"]; ok {
		if recs, ok := decodeComposerData(raw, workspaceID); ok {
			return recs, nil
		}
	}

	prompts := decodePromptsOrGenerations(values["aiService.prompts"])
	generations := decodePromptsOrGenerations(values["aiService.generations"])
	if len(prompts) == 0 && len(generations) == 0 {
		return nil, nil
	}
	return reconstructFromPromptsAndGenerations(prompts, generations, workspaceID), nil
}

func decodeComposerData(raw, workspaceID string) ([]RawRecord, bool) {
	var cd composerData
	if err := gojson.Unmarshal([]byte(raw), &cd); err != nil {
		return nil, false
	}
	if len(cd.AllComposers) == 0 {
		return nil, false
	}
	out := make([]RawRecord, 0, len(cd.AllComposers))
	for _, c := range cd.AllComposers {
		out = append(out, RawRecord{
			ComposerID:  c.ComposerID,
			Title:       c.Name,
			CreatedAtMs: c.CreatedAt,
			UpdatedAtMs: c.LastUpdated,
			WorkspaceID: workspaceID,
		})
	}
	return out, true
}

func decodePromptsOrGenerations(raw string) []promptOrGeneration {
	if raw == "" {
		return nil
	}
	var items []promptOrGeneration
	if err := gojson.Unmarshal([]byte(raw), &items); err != nil {
		return nil // malformed JSON for this key is dropped, not fatal
	}
	return items
}

// reconstructFromPromptsAndGenerations groups prompts/generations by
// conversationId, sorts each group by unixMs, and synthesizes one
// record per group, per spec §4.3.1.
func reconstructFromPromptsAndGenerations(prompts, generations []promptOrGeneration, workspaceID string) []RawRecord {
	type group struct {
		prompts     []promptOrGeneration
		generations []promptOrGeneration
	}
	byConv := map[string]*group{}
	order := []string{}
	get := func(id string) *group {
		g, ok := byConv[id]
		if !ok {
			g = &group{}
			byConv[id] = g
			order = append(order, id)
		}
		return g
	}
	for _, p := range prompts {
		g := get(p.ConversationID)
		g.prompts = append(g.prompts, p)
	}
	for _, gn := range generations {
		g := get(gn.ConversationID)
		g.generations = append(g.generations, gn)
	}

	sort.Strings(order)

	out := make([]RawRecord, 0, len(order))
	for _, id := range order {
		g := byConv[id]
		sort.Slice(g.prompts, func(i, j int) bool { return g.prompts[i].UnixMs < g.prompts[j].UnixMs })
		sort.Slice(g.generations, func(i, j int) bool { return g.generations[i].UnixMs < g.generations[j].UnixMs })

		all := append(append([]promptOrGeneration{}, g.prompts...), g.generations...)
		sort.Slice(all, func(i, j int) bool { return all[i].UnixMs < all[j].UnixMs })

		rec := RawRecord{
			ComposerID:   id,
			Title:        "Reconstructed Conversation",
			CreatedAtMs:  all[0].UnixMs,
			UpdatedAtMs:  all[len(all)-1].UnixMs,
			MessageCount: len(all),
			WorkspaceID:  workspaceID,
			Prompts:      g.prompts,
			Generations:  g.generations,
		}
		out = append(out, rec)
	}
	return out
}

// DisplayName returns a human label for logging/export filenames.
func (r RawRecord) DisplayName() string {
	if r.Title != "" {
		return r.Title
	}
	return fmt.Sprintf("cursor-%s", r.ComposerID)
}
