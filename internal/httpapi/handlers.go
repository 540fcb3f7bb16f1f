package httpapi

import (
	"context"
	encodingjson "encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/bluekornchips/gandalf-aggregator/internal/aggregate"
	"github.com/bluekornchips/gandalf-aggregator/internal/audit"
	"github.com/bluekornchips/gandalf-aggregator/internal/export"
	"github.com/bluekornchips/gandalf-aggregator/internal/rawquery"
	"github.com/bluekornchips/gandalf-aggregator/internal/respond"
	"github.com/bluekornchips/gandalf-aggregator/pkg/models"
	"github.com/bluekornchips/gandalf-aggregator/docs"
)

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := encodingjson.NewEncoder(w).Encode(data); err != nil {
		log.Error().Err(err).Msg("failed to encode JSON response")
	}
}

func writeAPIError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// handleOpenAPIDoc serves the hand-maintained OpenAPI document
// consumed by the Swagger UI mounted at /docs/.
func (s *Server) handleOpenAPIDoc(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(docs.OpenAPIJSON))
}

// handleHealth reports readiness for load balancer probes.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready", "version": s.version})
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"version": s.version})
}

type recallRequest struct {
	FastMode          *bool    `json:"fast_mode"`
	DaysLookback      int      `json:"days_lookback"`
	Limit             int      `json:"limit"`
	MinScore          float64  `json:"min_score"`
	ConversationTypes []string `json:"conversation_types"`
	Tools             []string `json:"tools"`
	UserPrompt        string   `json:"user_prompt"`
	SearchQuery       string   `json:"search_query"`
	ProjectRoot       string   `json:"project_root"`
}

// handleRecall implements POST /api/recall.
func (s *Server) handleRecall(w http.ResponseWriter, r *http.Request) {
	var body recallRequest
	if r.ContentLength != 0 {
		if err := encodingjson.NewDecoder(r.Body).Decode(&body); err != nil {
			writeAPIError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	req := aggregate.Request{
		ProjectRoot:       body.ProjectRoot,
		FastMode:          boolOr(body.FastMode, true),
		DaysLookback:      body.DaysLookback,
		Limit:             body.Limit,
		MinScore:          body.MinScore,
		ConversationTypes: toConversationTypes(body.ConversationTypes),
		Tools:             toSourceTools(body.Tools),
		UserPrompt:        body.UserPrompt,
		SearchQuery:       body.SearchQuery,
	}

	start := time.Now()
	resp, err := s.aggregator.Recall(r.Context(), req)
	if err != nil {
		writeAPIError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	s.recordAudit(r.Context(), "recall", req.ProjectRoot, req.Tools, resp, time.Since(start), "")
	writeJSON(w, http.StatusOK, shape(resp))
}

type searchRequest struct {
	Query             string   `json:"query"`
	DaysLookback      int      `json:"days_lookback"`
	Limit             int      `json:"limit"`
	MinScore          float64  `json:"min_score"`
	IncludeContent    bool     `json:"include_content"`
	ConversationTypes []string `json:"conversation_types"`
	Tools             []string `json:"tools"`
	ProjectRoot       string   `json:"project_root"`
}

// handleSearch implements POST /api/search.
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var body searchRequest
	if err := encodingjson.NewDecoder(r.Body).Decode(&body); err != nil {
		writeAPIError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	req := aggregate.Request{
		ProjectRoot:       body.ProjectRoot,
		Query:             body.Query,
		DaysLookback:      body.DaysLookback,
		Limit:             body.Limit,
		MinScore:          body.MinScore,
		IncludeContent:    body.IncludeContent,
		ConversationTypes: toConversationTypes(body.ConversationTypes),
		Tools:             toSourceTools(body.Tools),
	}

	start := time.Now()
	resp, err := s.aggregator.Search(r.Context(), req)
	if err != nil {
		writeAPIError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	s.recordAudit(r.Context(), "search", req.ProjectRoot, req.Tools, resp, time.Since(start), req.Query)
	writeJSON(w, http.StatusOK, shape(resp))
}

// handleQuery implements GET /api/query/{tool}?format=&limit=.
func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	tool := models.SourceTool(chi.URLParam(r, "tool"))
	if !tool.Valid() {
		writeAPIError(w, http.StatusBadRequest, "tool must be one of: cursor, claude-code, windsurf")
		return
	}

	format := r.URL.Query().Get("format")
	if format == "" {
		format = string(tool)
	}
	if !rawquery.ValidFormat(format, tool) {
		writeAPIError(w, http.StatusBadRequest, "format must be one of: json, markdown, "+string(tool))
		return
	}

	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			limit = parsed
		}
	}

	resp, err := s.aggregator.Recall(r.Context(), aggregate.Request{
		FastMode:     true,
		DaysLookback: 60, // widest lookback the aggregator allows; records older than 60 days are still dropped
		Limit:        limit,
		Tools:        []models.SourceTool{tool},
	})
	if err != nil {
		writeAPIError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	out, err := rawquery.Render(tool, resp.Conversations, format)
	if err != nil {
		writeAPIError(w, http.StatusBadRequest, err.Error())
		return
	}

	switch format {
	case "json":
		w.Header().Set("Content-Type", "application/json")
	default:
		w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(out))
}

type exportRequest struct {
	Format             string `json:"format"`
	OutputDir          string `json:"output_dir"`
	Limit              int    `json:"limit"`
	ConversationFilter string `json:"conversation_filter"`
}

// handleExport implements POST /api/export.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	var body exportRequest
	if r.ContentLength != 0 {
		if err := encodingjson.NewDecoder(r.Body).Decode(&body); err != nil {
			writeAPIError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	limit := body.Limit
	if limit == 0 {
		limit = 10
	}

	resp, err := s.aggregator.Recall(r.Context(), aggregate.Request{
		FastMode:     true,
		DaysLookback: 60, // widest lookback the aggregator allows; records older than 60 days are still dropped
		Limit:        limit,
	})
	if err != nil {
		writeAPIError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	result, err := export.Run(export.Request{
		Conversations:      resp.Conversations,
		OutputDir:          body.OutputDir,
		Format:             body.Format,
		Limit:              limit,
		ConversationFilter: body.ConversationFilter,
	})
	if err != nil {
		writeAPIError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// handleListAuditRuns implements GET /api/audit/runs?project_root=&limit=.
func (s *Server) handleListAuditRuns(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			limit = parsed
		}
	}

	runs, err := s.auditStore.ListRuns(r.Context(), r.URL.Query().Get("project_root"), limit)
	if err != nil {
		writeAPIError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

func (s *Server) recordAudit(ctx context.Context, op, projectRoot string, tools []models.SourceTool, resp aggregate.Response, dur time.Duration, query string) {
	if !s.auditStore.Enabled() {
		return
	}
	names := make([]string, 0, len(tools))
	for _, t := range tools {
		names = append(names, string(t))
	}
	run := audit.Run{
		RequestID:          resp.RequestID,
		Operation:          op,
		ProjectRoot:        projectRoot,
		Tools:              joinComma(names),
		ResultCount:        len(resp.Conversations),
		SuccessRatePercent: resp.SuccessRatePercent,
		DurationMs:         dur.Milliseconds(),
		Query:              query,
	}
	if err := s.auditStore.RecordRun(ctx, run); err != nil {
		log.Warn().Err(err).Msg("failed to record aggregation audit run")
	}
}

func joinComma(items []string) string {
	out := ""
	for i, it := range items {
		if i > 0 {
			out += ","
		}
		out += it
	}
	return out
}

func shape(resp aggregate.Response) respond.Envelope {
	perTool := make([]respond.PerToolResult, 0, len(resp.PerTool))
	for _, r := range resp.PerTool {
		perTool = append(perTool, respond.PerToolResult{Tool: r.Tool, TotalConversations: r.TotalConversations, Error: r.Error})
	}

	return respond.Shape(respond.Input{
		RequestID:       resp.RequestID,
		Conversations:   resp.Conversations,
		AvailableTools:  resp.AvailableTools,
		PerTool:         perTool,
		ContextKeywords: resp.ContextKeywords,
		Partial:         resp.Partial,
		Cached:          resp.Cached,
		SuccessRate:     resp.SuccessRatePercent,
	})
}

func toConversationTypes(names []string) []models.ConversationType {
	if len(names) == 0 {
		return nil
	}
	out := make([]models.ConversationType, 0, len(names))
	for _, n := range names {
		out = append(out, models.ConversationType(n))
	}
	return out
}

func toSourceTools(names []string) []models.SourceTool {
	if len(names) == 0 {
		return nil
	}
	out := make([]models.SourceTool, 0, len(names))
	for _, n := range names {
		out = append(out, models.SourceTool(n))
	}
	return out
}

// boolOr returns *v, or def when the field was omitted from the request
// body. Mirrors internal/mcp/server.go's boolOr so "fast_mode" defaults
// to true on both transports rather than silently defaulting to false
// via bool's zero value.
func boolOr(v *bool, def bool) bool {
	if v == nil {
		return def
	}
	return *v
}
