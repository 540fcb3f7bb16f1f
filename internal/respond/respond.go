// Package respond implements the Response Shaper (C10): the
// full -> lightweight -> summary degradation cascade that keeps an
// aggregator response within a byte budget. Grounded on
// original_source's conversation_aggregator.py
// (_check_response_size_and_optimize, _create_summary_response), with
// the cascade re-expressed as the normalizer's lightweight projection
// (spec.md §4.10) rather than the original's field-stripping pass.
package respond

import (
	"sort"

	goccyjson "github.com/goccy/go-json"

	"github.com/bluekornchips/gandalf-aggregator/internal/normalize"
	"github.com/bluekornchips/gandalf-aggregator/pkg/models"
)

// MaxResponseBytes is the default size budget a shaped response must
// fit within before falling back to the next degradation tier.
const MaxResponseBytes = 256 * 1024

// Envelope is the shape emitted to callers (MCP tool result / HTTP
// body), covering all three fidelity tiers.
type Envelope struct {
	RequestID       string                      `json:"request_id"`
	Status          string                      `json:"status"`
	Conversations   []models.ConversationRecord `json:"conversations,omitempty"`
	Lightweight     []models.LightweightRecord  `json:"conversations_lightweight,omitempty"`
	AvailableTools  []models.SourceTool         `json:"available_tools"`
	PerTool         []PerToolResult             `json:"per_tool_results,omitempty"`
	ContextKeywords []string                    `json:"context_keywords"`
	Partial         bool                        `json:"partial,omitempty"`
	Cached          bool                        `json:"cached,omitempty"`
	SuccessRate     float64                     `json:"success_rate_percent"`

	SummaryMode  bool             `json:"summary_mode,omitempty"`
	SummaryTools map[string]Tool `json:"tool_summaries,omitempty"`
	TotalCount   int              `json:"total_conversations,omitempty"`
}

// PerToolResult mirrors aggregate.PerToolResult without importing that
// package, keeping respond a leaf dependency of aggregate rather than
// a cyclic peer.
type PerToolResult struct {
	Tool               models.SourceTool `json:"tool"`
	TotalConversations int               `json:"total_conversations"`
	Error              string            `json:"error,omitempty"`
}

// Tool is one source's entry in a summary-mode response.
type Tool struct {
	Count      int     `json:"count"`
	LatestDate string  `json:"latest_date"`
	AvgScore   float64 `json:"avg_score"`
}

// Input bundles what Shape needs from the aggregator's response,
// avoiding any import of the aggregate package.
type Input struct {
	RequestID       string
	Conversations   []models.ConversationRecord
	AvailableTools  []models.SourceTool
	PerTool         []PerToolResult
	ContextKeywords []string
	Partial         bool
	Cached          bool
	SuccessRate     float64
	MaxBytes        int // 0 uses MaxResponseBytes
}

// Shape applies the three-tier degradation cascade and returns the
// envelope that fits, per spec §4.10.
func Shape(in Input) Envelope {
	budget := in.MaxBytes
	if budget <= 0 {
		budget = MaxResponseBytes
	}

	keywords := in.ContextKeywords
	if len(keywords) > 20 {
		keywords = keywords[:20]
	}

	truncated := make([]models.ConversationRecord, len(in.Conversations))
	for i, c := range in.Conversations {
		truncated[i] = c.Truncated()
	}

	full := Envelope{
		RequestID:       in.RequestID,
		Status:          "ok",
		Conversations:   truncated,
		AvailableTools:  in.AvailableTools,
		PerTool:         in.PerTool,
		ContextKeywords: keywords,
		Partial:         in.Partial,
		Cached:          in.Cached,
		SuccessRate:     in.SuccessRate,
	}
	if size(full) <= budget {
		return full
	}

	light := full
	light.Conversations = nil
	light.Lightweight = make([]models.LightweightRecord, 0, len(in.Conversations))
	for _, c := range in.Conversations {
		light.Lightweight = append(light.Lightweight, normalize.Lightweight(c))
	}
	if size(light) <= budget {
		return light
	}

	return summarize(full)
}

// summarize produces the summary-mode tier: per-source count, latest
// timestamp, and average score, with no individual records, per
// spec §4.10 step 4.
func summarize(full Envelope) Envelope {
	bucket := map[models.SourceTool]*Tool{}
	latestEpoch := map[models.SourceTool]int64{}
	totalScore := map[models.SourceTool]float64{}

	for _, c := range full.Conversations {
		t, ok := bucket[c.SourceTool]
		if !ok {
			t = &Tool{}
			bucket[c.SourceTool] = t
		}
		t.Count++
		totalScore[c.SourceTool] += c.RelevanceScore
		if c.UpdatedAtEpoch > latestEpoch[c.SourceTool] {
			latestEpoch[c.SourceTool] = c.UpdatedAtEpoch
			if len(c.UpdatedAt) > 0 {
				t.LatestDate = string(c.UpdatedAt)
			}
		}
	}

	summaries := make(map[string]Tool, len(bucket))
	toolNames := make([]string, 0, len(bucket))
	for tool := range bucket {
		toolNames = append(toolNames, string(tool))
	}
	sort.Strings(toolNames)
	for _, name := range toolNames {
		tool := models.SourceTool(name)
		t := *bucket[tool]
		if t.Count > 0 {
			t.AvgScore = round2(totalScore[tool] / float64(t.Count))
		}
		summaries[name] = t
	}

	return Envelope{
		RequestID:       full.RequestID,
		Status:          full.Status,
		SummaryMode:     true,
		SummaryTools:    summaries,
		TotalCount:      len(full.Conversations),
		AvailableTools:  full.AvailableTools,
		ContextKeywords: full.ContextKeywords,
		Partial:         full.Partial,
		Cached:          full.Cached,
		SuccessRate:     full.SuccessRate,
	}
}

func size(e Envelope) int {
	b, err := goccyjson.Marshal(e)
	if err != nil {
		return 0
	}
	return len(b)
}

func round2(v float64) float64 {
	return float64(int64(v*100+0.5)) / 100
}
