// Package aggregate implements the Aggregator (C9): the recall/search
// entry points that orchestrate source discovery, extraction, scoring,
// normalization, and final ranking. Grounded on original_source's
// conversation_aggregator.py (handle_recall_conversations,
// handle_search_conversations) and aggregation_utils.py
// (merge_conversation_results), with the missing updated_at tie-break
// added per spec §8 and days_lookback/min_relevance_score given the
// stricter per-field hard-error validation conversation_recall.py
// applies (see SPEC_FULL.md's Supplemented Features section).
package aggregate

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/bluekornchips/gandalf-aggregator/internal/aggerr"
	"github.com/bluekornchips/gandalf-aggregator/internal/cache"
	"github.com/bluekornchips/gandalf-aggregator/internal/extract/claudecode"
	"github.com/bluekornchips/gandalf-aggregator/internal/extract/cursor"
	"github.com/bluekornchips/gandalf-aggregator/internal/extract/windsurf"
	"github.com/bluekornchips/gandalf-aggregator/internal/keywords"
	"github.com/bluekornchips/gandalf-aggregator/internal/locate"
	"github.com/bluekornchips/gandalf-aggregator/internal/normalize"
	"github.com/bluekornchips/gandalf-aggregator/internal/observability"
	"github.com/bluekornchips/gandalf-aggregator/internal/pool"
	"github.com/bluekornchips/gandalf-aggregator/internal/relevance"
	"github.com/bluekornchips/gandalf-aggregator/pkg/models"
	"go.opentelemetry.io/otel/attribute"
)

const (
	minDaysLookback = 1
	maxDaysLookback = 60
	minLimit        = 1
	maxLimit        = 100

	// DefaultEarlyTerminationMultiplier scales limit to decide when to
	// stop scoring further records from one source, per spec §4.9.5.
	DefaultEarlyTerminationMultiplier = 3
	// DefaultSourceDeadline bounds one source's extraction+scoring work.
	DefaultSourceDeadline = 10 * time.Second
)

// Request is the recall/search input, pre-validated at the transport
// boundary per spec §6's external-collaborator contract; the
// aggregator still re-validates the numeric fields it owns.
type Request struct {
	ProjectRoot        string
	FastMode           bool
	DaysLookback       int
	Limit              int
	MinScore           float64
	ConversationTypes  []models.ConversationType
	Tools              []models.SourceTool
	UserPrompt         string
	SearchQuery        string
	Query              string // required for Search, prepended to keywords
	IncludeContent     bool
	Detailed           bool
}

// PerToolResult reports one source's outcome, always present even when
// the source failed or was empty, per spec §7's propagation policy.
type PerToolResult struct {
	Tool             models.SourceTool `json:"tool"`
	TotalConversations int             `json:"total_conversations"`
	Error            string            `json:"error,omitempty"`
}

// Response is the aggregator's output, consumed by the Response Shaper.
type Response struct {
	RequestID         string                      `json:"request_id"`
	Conversations     []models.ConversationRecord `json:"conversations"`
	AvailableTools    []models.SourceTool         `json:"available_tools"`
	PerTool           []PerToolResult             `json:"per_tool_results"`
	ContextKeywords   []string                    `json:"context_keywords"`
	Status            string                      `json:"status"`
	Partial           bool                        `json:"partial,omitempty"`
	Cached            bool                        `json:"cached,omitempty"`
	SuccessRatePercent float64                    `json:"success_rate_percent"`
}

// Deps bundles the aggregator's lower-layer collaborators.
type Deps struct {
	Pool     *pool.Pool
	Locator  *locate.Locator
	Cache    *cache.Cache
	Engine   *relevance.Engine
	ListDir  func(root string) []string // project-file lister external collaborator
}

// Aggregator orchestrates C2 -> C3 -> C6 -> C8 per spec §2/§4.9.
type Aggregator struct {
	deps Deps
}

// New creates an Aggregator with deps; nil Engine/Locator default to
// their package constructors.
func New(deps Deps) *Aggregator {
	if deps.Locator == nil {
		deps.Locator = locate.New()
	}
	if deps.Engine == nil {
		deps.Engine = relevance.New(relevance.DefaultConfig())
	}
	return &Aggregator{deps: deps}
}

// Recall implements the recall_conversations operation.
func (a *Aggregator) Recall(ctx context.Context, req Request) (Response, error) {
	return a.run(ctx, req, false)
}

// Search implements the search_conversations operation; query is
// mandatory and prepended to context keywords.
func (a *Aggregator) Search(ctx context.Context, req Request) (Response, error) {
	if strings.TrimSpace(req.Query) == "" {
		return Response{}, aggerr.Validation("search query must not be empty", nil)
	}
	return a.run(ctx, req, true)
}

func (a *Aggregator) run(ctx context.Context, req Request, isSearch bool) (Response, error) {
	req, err := normalizeRequest(req, isSearch)
	if err != nil {
		return Response{}, err
	}

	projectRoot := resolveProjectRoot(req.ProjectRoot)

	kwReq := keywords.Request{ProjectRoot: projectRoot, UserPrompt: req.UserPrompt, SearchQuery: req.SearchQuery}
	if isSearch {
		kwReq.SearchQuery = strings.TrimSpace(req.Query + " " + kwReq.SearchQuery)
	}
	contextKeywords := keywords.Build(kwReq)

	requestID := uuid.NewString()
	tools := resolveTools(req.Tools)

	currentHash := cache.ProjectHash(projectRoot, contextKeywords)
	if a.deps.Cache != nil {
		keep := func(r models.ConversationRecord) bool { return matchesFilters(r, req) }
		if cached, _, ok := a.deps.Cache.Lookup(projectRoot, currentHash, req.Limit, keep); ok {
			return buildResponse(requestID, cached, tools, nil, contextKeywords, true), nil
		}
	}

	perSourceDeadline := DefaultSourceDeadline

	var mu sync.Mutex
	var allRecords []models.ConversationRecord
	perTool := make([]PerToolResult, 0, len(tools))
	partial := false

	g, gctx := errgroup.WithContext(ctx)
	for _, tool := range tools {
		tool := tool
		g.Go(func() error {
			defer func() {
				if r := recover(); r != nil {
					mu.Lock()
					perTool = append(perTool, PerToolResult{Tool: tool, Error: string(aggerr.KindInternal)})
					mu.Unlock()
					log.Error().Interface("panic", r).Str("tool", string(tool)).Msg("source worker panicked during aggregation")
				}
			}()
			sourceCtx, cancel := context.WithTimeout(gctx, perSourceDeadline)
			defer cancel()

			sourceCtx, span := observability.Tracer().Start(sourceCtx, "aggregate.source")
			span.SetAttributes(attribute.String("tool", string(tool)))
			defer span.End()

			records, err := a.scoreSource(sourceCtx, tool, projectRoot, contextKeywords, req)
			if err != nil {
				span.RecordError(err)
			}
			span.SetAttributes(attribute.Int("record_count", len(records)))
			mu.Lock()
			defer mu.Unlock()

			if err != nil {
				kind, _ := aggerr.KindOf(err)
				perTool = append(perTool, PerToolResult{Tool: tool, Error: string(kind)})
				if kind == aggerr.KindSourceTimeout {
					partial = true
				}
				log.Warn().Err(err).Str("tool", string(tool)).Msg("source failed during aggregation")
				return nil // per-source errors never fail the whole request
			}
			perTool = append(perTool, PerToolResult{Tool: tool, TotalConversations: len(records)})
			allRecords = append(allRecords, records...)
			return nil
		})
	}
	_ = g.Wait() // errgroup never actually returns an error here; contained above

	if ctx.Err() != nil {
		partial = true
	}

	sortRecords(allRecords)
	if len(allRecords) > req.Limit {
		allRecords = allRecords[:req.Limit]
	}

	if a.deps.Cache != nil {
		_ = a.deps.Cache.Store(projectRoot, currentHash, allRecords, len(allRecords), 0)
	}

	resp := buildResponse(requestID, allRecords, tools, perTool, contextKeywords, false)
	resp.Partial = partial
	resp.SuccessRatePercent = successRate(perTool)
	return resp, nil
}

func (a *Aggregator) scoreSource(ctx context.Context, tool models.SourceTool, projectRoot string, contextKeywords []string, req Request) ([]models.ConversationRecord, error) {
	paths := a.deps.Locator.Locate(tool)
	if len(paths) == 0 {
		return nil, aggerr.SourceUnavailable(string(tool), "no store found", nil)
	}

	var raw []models.ConversationRecord
	cutoff := time.Now().AddDate(0, 0, -req.DaysLookback)
	earlyTerminationCap := req.Limit * DefaultEarlyTerminationMultiplier

	for _, sp := range paths {
		select {
		case <-ctx.Done():
			return raw, aggerr.SourceTimeout(string(tool), "deadline elapsed", ctx.Err())
		default:
		}

		var recs []models.ConversationRecord
		var err error
		switch tool {
		case models.SourceCursor:
			recs, err = a.extractCursor(ctx, sp)
		case models.SourceWindsurf:
			recs, err = a.extractWindsurf(ctx, sp)
		case models.SourceClaudeCode:
			recs, err = a.extractClaudeCode(ctx, sp, req.Limit)
		}
		if err != nil {
			return raw, err
		}

		for _, rec := range recs {
			if isSearch(req) && !matchesQuery(rec, req.Query) {
				continue
			}
			if !recordUpdatedAt(rec).IsZero() && recordUpdatedAt(rec).Before(cutoff) {
				continue // quick-filter by days_lookback before scoring, per spec §4.9.4
			}
			if req.FastMode {
				// fast_mode skips keyword/recency/file scoring entirely; the
				// collected records still go through run's final sort (score,
				// then updated_at, descending), per SPEC_FULL.md.
				raw = append(raw, rec)
				if len(raw) >= req.Limit {
					return raw, nil
				}
				continue
			}
			score, components, matched, convType := a.deps.Engine.Score(relevance.Params{
				Title:       rec.Title,
				Texts:       []string{rec.Snippet},
				UpdatedAt:   recordUpdatedAt(rec),
				Keywords:    contextKeywords,
				ProjectRoot: projectRoot,
				Detailed:    req.Detailed,
			})
			rec.RelevanceScore = score
			rec.KeywordMatches = matched
			rec.ConversationType = convType
			if req.Detailed {
				rec.Analysis = &components
			}
			if rec.RelevanceScore < req.MinScore {
				continue
			}
			if !typeMatches(rec.ConversationType, req.ConversationTypes) {
				continue
			}
			raw = append(raw, rec)
			if len(raw) >= earlyTerminationCap {
				return raw, nil
			}
		}
	}
	return raw, nil
}

func (a *Aggregator) extractCursor(ctx context.Context, sp locate.StorePath) ([]models.ConversationRecord, error) {
	ex := cursor.New(a.deps.Pool)
	raw, err := ex.Extract(ctx, sp.Path, sp.WorkspaceID)
	if err != nil {
		return nil, err
	}
	out := make([]models.ConversationRecord, 0, len(raw))
	for _, r := range raw {
		out = append(out, normalize.FromCursor(r))
	}
	return out, nil
}

func (a *Aggregator) extractWindsurf(ctx context.Context, sp locate.StorePath) ([]models.ConversationRecord, error) {
	ex := windsurf.New(a.deps.Pool)
	raw, err := ex.Extract(ctx, sp.Path, sp.WorkspaceID)
	if err != nil {
		return nil, err
	}
	out := make([]models.ConversationRecord, 0, len(raw))
	for _, r := range raw {
		out = append(out, normalize.FromWindsurf(r))
	}
	return out, nil
}

func (a *Aggregator) extractClaudeCode(ctx context.Context, sp locate.StorePath, limit int) ([]models.ConversationRecord, error) {
	ex := claudecode.New()
	raw, err := ex.Extract(ctx, sp.Path, "", limit*DefaultEarlyTerminationMultiplier)
	if err != nil {
		return nil, err
	}
	out := make([]models.ConversationRecord, 0, len(raw))
	for _, r := range raw {
		out = append(out, normalize.FromClaudeCode(r))
	}
	return out, nil
}

func isSearch(req Request) bool { return strings.TrimSpace(req.Query) != "" }

func matchesQuery(rec models.ConversationRecord, query string) bool {
	q := strings.ToLower(query)
	return strings.Contains(strings.ToLower(rec.Title), q) || strings.Contains(strings.ToLower(rec.Snippet), q)
}

func matchesFilters(rec models.ConversationRecord, req Request) bool {
	if rec.RelevanceScore < req.MinScore {
		return false
	}
	if !typeMatches(rec.ConversationType, req.ConversationTypes) {
		return false
	}
	cutoff := time.Now().AddDate(0, 0, -req.DaysLookback)
	if !recordUpdatedAt(rec).IsZero() && recordUpdatedAt(rec).Before(cutoff) {
		return false
	}
	return true
}

func typeMatches(t models.ConversationType, allowed []models.ConversationType) bool {
	if len(allowed) == 0 {
		return true
	}
	for _, a := range allowed {
		if a == t {
			return true
		}
	}
	return false
}

func recordUpdatedAt(rec models.ConversationRecord) time.Time {
	if rec.UpdatedAtEpoch == 0 {
		return time.Time{}
	}
	return time.Unix(rec.UpdatedAtEpoch, 0)
}

// sortRecords enforces spec §8's deterministic ordering: score desc,
// then updated_at desc on ties — the tie-break the original's
// merge_conversation_results omits.
func sortRecords(records []models.ConversationRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		if records[i].RelevanceScore != records[j].RelevanceScore {
			return records[i].RelevanceScore > records[j].RelevanceScore
		}
		return records[i].UpdatedAtEpoch > records[j].UpdatedAtEpoch
	})
}

func successRate(results []PerToolResult) float64 {
	if len(results) == 0 {
		return 100
	}
	ok := 0
	for _, r := range results {
		if r.Error == "" {
			ok++
		}
	}
	return float64(ok) / float64(len(results)) * 100
}

func buildResponse(requestID string, records []models.ConversationRecord, tools []models.SourceTool, perTool []PerToolResult, contextKeywords []string, cached bool) Response {
	if len(contextKeywords) > keywords.MaxContextKeywords {
		contextKeywords = contextKeywords[:keywords.MaxContextKeywords]
	}
	return Response{
		RequestID:       requestID,
		Conversations:   records,
		AvailableTools:  tools,
		PerTool:         perTool,
		ContextKeywords: contextKeywords,
		Status:          "ok",
		Cached:          cached,
	}
}

// resolveTools filters requested against the known set, ignoring
// invalid names with a warning rather than failing, per spec §4.9.3.
func resolveTools(requested []models.SourceTool) []models.SourceTool {
	if len(requested) == 0 {
		return models.AllSourceTools
	}
	out := make([]models.SourceTool, 0, len(requested))
	for _, t := range requested {
		if t.Valid() {
			out = append(out, t)
		} else {
			log.Warn().Str("tool", string(t)).Msg("ignoring unknown source tool in request")
		}
	}
	if len(out) == 0 {
		return models.AllSourceTools
	}
	return out
}

// resolveProjectRoot implements spec §4.9.1's precedence: explicit
// field > WORKSPACE_FOLDER_PATHS env-style input > .git-bearing
// ancestor of CWD > CWD.
func resolveProjectRoot(explicit string) string {
	if explicit != "" {
		return explicit
	}
	if env := os.Getenv("WORKSPACE_FOLDER_PATHS"); env != "" {
		first := strings.Split(env, string(os.PathListSeparator))[0]
		if first != "" {
			return first
		}
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "."
	}
	if root := findGitAncestor(cwd); root != "" {
		return root
	}
	return cwd
}

func findGitAncestor(start string) string {
	dir := start
	for {
		if info, err := os.Stat(filepath.Join(dir, ".git")); err == nil && info != nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// normalizeRequest applies spec §4.9's clamp-and-default rule for
// limit (tools are resolved separately by resolveTools), and the
// stricter hard-error rule for days_lookback/min_relevance_score
// carried over from the original's per-tool handlers (see SPEC_FULL.md).
func normalizeRequest(req Request, isSearch bool) (Request, error) {
	// days_lookback=0 is a hard validation error per spec §8 — the
	// aggregator itself never substitutes a default here. The MCP
	// transport applies the documented defaults (7 for recall, 30 for
	// search) before constructing a Request; the HTTP transport passes
	// days_lookback through as sent, so a body that omits it reaches
	// this check as 0 and is rejected.
	if req.DaysLookback < minDaysLookback || req.DaysLookback > maxDaysLookback {
		return req, aggerr.Validation("days_lookback must be in [1, 60]", nil)
	}
	if req.MinScore < 0 {
		return req, aggerr.Validation("min_relevance_score must be >= 0", nil)
	}

	if req.Limit == 0 {
		req.Limit = 20
	}
	if req.Limit < minLimit {
		req.Limit = minLimit
	}
	if req.Limit > maxLimit {
		req.Limit = maxLimit
	}
	return req, nil
}
