// Package mcp provides the MCP (Model Context Protocol) JSON-RPC
// server exposing the four external operations (recall, search,
// per-tool raw dump, export). Grounded on the teacher's
// internal/mcp/server.go: same Request/Response/Error envelope, same
// stdin-scanner + context-cancel Run loop, same
// initialize/tools-list/tools-call dispatch — generalized from the
// teacher's observation-search tool surface to this domain's
// conversation-aggregation tool surface. Per-operation input defaults
// (fast_mode, days_lookback, limit, min_score) are applied here, not
// inside internal/aggregate, per SPEC_FULL.md's transport-boundary
// decision.
package mcp

import (
	"bufio"
	"context"
	encodingjson "encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	goccyjson "github.com/goccy/go-json"
	"github.com/rs/zerolog/log"

	"github.com/bluekornchips/gandalf-aggregator/internal/aggregate"
	"github.com/bluekornchips/gandalf-aggregator/internal/audit"
	"github.com/bluekornchips/gandalf-aggregator/internal/export"
	"github.com/bluekornchips/gandalf-aggregator/internal/rawquery"
	"github.com/bluekornchips/gandalf-aggregator/internal/respond"
	"github.com/bluekornchips/gandalf-aggregator/pkg/models"
)

const (
	defaultRecallDaysLookback = 7
	defaultSearchDaysLookback = 30
	defaultLimit              = 20
	defaultMinScore           = 2.0
	defaultExportLimit        = 10
)

// Server is the MCP server exposing recall/search/query/export.
type Server struct {
	stdin      io.Reader
	stdout     io.Writer
	aggregator *aggregate.Aggregator
	auditStore *audit.Store
	version    string
}

// NewServer creates a new MCP server.
func NewServer(aggregator *aggregate.Aggregator, auditStore *audit.Store, version string) *Server {
	return &Server{
		stdin:      os.Stdin,
		stdout:     os.Stdout,
		aggregator: aggregator,
		auditStore: auditStore,
		version:    version,
	}
}

// Request represents a JSON-RPC request.
type Request struct {
	JSONRPC string                  `json:"jsonrpc"`
	ID      any                     `json:"id"`
	Method  string                  `json:"method"`
	Params  encodingjson.RawMessage `json:"params,omitempty"`
}

// Response represents a JSON-RPC response.
type Response struct {
	ID      any    `json:"id"`
	Result  any    `json:"result,omitempty"`
	Error   *Error `json:"error,omitempty"`
	JSONRPC string `json:"jsonrpc"`
}

// Error represents a JSON-RPC error.
type Error struct {
	Data    any    `json:"data,omitempty"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}

// ToolCallParams represents parameters for tools/call method.
type ToolCallParams struct {
	Name      string                  `json:"name"`
	Arguments encodingjson.RawMessage `json:"arguments"`
}

// Tool represents an MCP tool definition.
type Tool struct {
	InputSchema map[string]any `json:"inputSchema"`
	Name        string         `json:"name"`
	Description string         `json:"description"`
}

// Run starts the MCP server loop: read JSON-RPC requests line by line
// from stdin until ctx is canceled or stdin closes.
func (s *Server) Run(ctx context.Context) error {
	return s.serve(ctx, s.stdin, s.stdout)
}

// Serve runs the same line-delimited JSON-RPC loop as Run, but reads
// from r and writes to w instead of stdin/stdout. Used to expose the
// MCP server over a raw TCP listener alongside the HTTP transports.
func (s *Server) Serve(ctx context.Context, r io.Reader, w io.Writer) error {
	return s.serve(ctx, r, w)
}

func (s *Server) serve(ctx context.Context, r io.Reader, w io.Writer) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	scanDone := make(chan error, 1)

	go func() {
		for scanner.Scan() {
			select {
			case <-ctx.Done():
				scanDone <- ctx.Err()
				return
			default:
			}

			line := scanner.Text()
			if line == "" {
				continue
			}

			var req Request
			if err := goccyjson.Unmarshal([]byte(line), &req); err != nil {
				writeError(w, nil, -32700, "Parse error", err.Error())
				continue
			}

			resp := s.handleRequest(ctx, &req)
			writeResponse(w, resp)
		}
		scanDone <- scanner.Err()
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-scanDone:
		if err != nil {
			return fmt.Errorf("scanner error: %w", err)
		}
		return nil
	}
}

func (s *Server) handleRequest(ctx context.Context, req *Request) *Response {
	switch req.Method {
	case "initialize":
		return s.handleInitialize(req)
	case "tools/list":
		return s.handleToolsList(req)
	case "tools/call":
		return s.handleToolsCall(ctx, req)
	default:
		return &Response{
			JSONRPC: "2.0",
			ID:      req.ID,
			Error:   &Error{Code: -32601, Message: "Method not found"},
		}
	}
}

func (s *Server) handleInitialize(req *Request) *Response {
	return &Response{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: map[string]any{
			"protocolVersion": "2024-11-05",
			"capabilities":    map[string]any{"tools": map[string]any{}},
			"serverInfo":      map[string]any{"name": "gandalf-aggregator", "version": s.version},
		},
	}
}

func (s *Server) handleToolsList(req *Request) *Response {
	convTypeSchema := map[string]any{
		"type": "array",
		"items": map[string]any{
			"type": "string",
			"enum": []string{"architecture", "debugging", "problem_solving", "technical", "code_discussion", "general"},
		},
	}
	toolsSchema := map[string]any{
		"type":  "array",
		"items": map[string]any{"type": "string", "enum": []string{"cursor", "claude-code", "windsurf"}},
	}

	tools := []Tool{
		{
			Name:        "recall_conversations",
			Description: "Recall recent conversations across all configured coding-tool sources, ranked by keyword/recency/file-reference relevance.",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"fast_mode":          map[string]any{"type": "boolean", "default": true},
					"days_lookback":      map[string]any{"type": "integer", "default": defaultRecallDaysLookback, "minimum": 1, "maximum": 60},
					"limit":              map[string]any{"type": "integer", "default": defaultLimit, "minimum": 1, "maximum": 100},
					"min_score":          map[string]any{"type": "number", "default": defaultMinScore, "minimum": 0},
					"conversation_types": convTypeSchema,
					"tools":              toolsSchema,
					"user_prompt":        map[string]any{"type": "string"},
					"search_query":       map[string]any{"type": "string"},
				},
			},
		},
		{
			Name:        "search_conversations",
			Description: "Search conversations across all configured sources by title and message text, ranked by relevance.",
			InputSchema: map[string]any{
				"type":     "object",
				"required": []string{"query"},
				"properties": map[string]any{
					"query":              map[string]any{"type": "string"},
					"days_lookback":      map[string]any{"type": "integer", "default": defaultSearchDaysLookback, "minimum": 1, "maximum": 60},
					"limit":              map[string]any{"type": "integer", "default": defaultLimit, "minimum": 1, "maximum": 100},
					"min_score":          map[string]any{"type": "number", "default": defaultMinScore, "minimum": 0},
					"include_content":    map[string]any{"type": "boolean", "default": false},
					"conversation_types": convTypeSchema,
					"tools":              toolsSchema,
				},
			},
		},
		{
			Name:        "query_cursor_conversations",
			Description: "Raw dump of Cursor conversations in json, markdown, or cursor-native format.",
			InputSchema: queryToolSchema("cursor"),
		},
		{
			Name:        "query_claude_code_conversations",
			Description: "Raw dump of Claude Code conversations in json, markdown, or claude-code-native format.",
			InputSchema: queryToolSchema("claude-code"),
		},
		{
			Name:        "query_windsurf_conversations",
			Description: "Raw dump of Windsurf conversations in json, markdown, or windsurf-native format.",
			InputSchema: queryToolSchema("windsurf"),
		},
		{
			Name:        "export_individual_conversations",
			Description: "Export individual conversations to files (json, md, markdown, or txt), one file per conversation.",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"format":              map[string]any{"type": "string", "enum": []string{"json", "md", "markdown", "txt"}, "default": "json"},
					"output_dir":          map[string]any{"type": "string"},
					"limit":               map[string]any{"type": "integer", "default": defaultExportLimit, "minimum": 1, "maximum": 100},
					"conversation_filter": map[string]any{"type": "string"},
				},
			},
		},
	}

	return &Response{JSONRPC: "2.0", ID: req.ID, Result: map[string]any{"tools": tools}}
}

func queryToolSchema(tool string) map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"format": map[string]any{"type": "string", "enum": []string{"json", "markdown", tool}, "default": tool},
			"limit":  map[string]any{"type": "integer", "default": defaultLimit, "minimum": 1, "maximum": 100},
		},
	}
}

func (s *Server) handleToolsCall(ctx context.Context, req *Request) *Response {
	var params ToolCallParams
	if err := goccyjson.Unmarshal(req.Params, &params); err != nil {
		return &Response{JSONRPC: "2.0", ID: req.ID, Error: &Error{Code: -32602, Message: "Invalid params", Data: err.Error()}}
	}

	result, err := s.callTool(ctx, params.Name, params.Arguments)
	if err != nil {
		return &Response{JSONRPC: "2.0", ID: req.ID, Error: &Error{Code: -32000, Message: "Tool error", Data: err.Error()}}
	}

	return &Response{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: map[string]any{
			"content": []map[string]any{{"type": "text", "text": result}},
		},
	}
}

// callTool dispatches to the appropriate tool handler.
func (s *Server) callTool(ctx context.Context, name string, args encodingjson.RawMessage) (string, error) {
	switch name {
	case "recall_conversations":
		return s.handleRecall(ctx, args)
	case "search_conversations":
		return s.handleSearch(ctx, args)
	case "query_cursor_conversations":
		return s.handleQuery(ctx, models.SourceCursor, args)
	case "query_claude_code_conversations":
		return s.handleQuery(ctx, models.SourceClaudeCode, args)
	case "query_windsurf_conversations":
		return s.handleQuery(ctx, models.SourceWindsurf, args)
	case "export_individual_conversations":
		return s.handleExport(ctx, args)
	default:
		return "", fmt.Errorf("unknown tool: %s", name)
	}
}

type recallParams struct {
	FastMode          *bool    `json:"fast_mode"`
	DaysLookback      *int     `json:"days_lookback"`
	Limit             *int     `json:"limit"`
	MinScore          *float64 `json:"min_score"`
	ConversationTypes []string `json:"conversation_types"`
	Tools             []string `json:"tools"`
	UserPrompt        string   `json:"user_prompt"`
	SearchQuery       string   `json:"search_query"`
}

func (s *Server) handleRecall(ctx context.Context, args encodingjson.RawMessage) (string, error) {
	var p recallParams
	if len(args) > 0 {
		if err := goccyjson.Unmarshal(args, &p); err != nil {
			return "", fmt.Errorf("invalid arguments: %w", err)
		}
	}

	req := aggregate.Request{
		FastMode:          boolOr(p.FastMode, true),
		DaysLookback:      intOr(p.DaysLookback, defaultRecallDaysLookback),
		Limit:             intOr(p.Limit, defaultLimit),
		MinScore:          floatOr(p.MinScore, defaultMinScore),
		ConversationTypes: toConversationTypes(p.ConversationTypes),
		Tools:             toSourceTools(p.Tools),
		UserPrompt:        p.UserPrompt,
		SearchQuery:       p.SearchQuery,
	}

	start := time.Now()
	resp, err := s.aggregator.Recall(ctx, req)
	if err != nil {
		return "", err
	}
	s.recordAudit(ctx, "recall", req.ProjectRoot, req.Tools, resp, time.Since(start), "")
	return s.shapeAndRender(resp)
}

type searchParams struct {
	Query             string   `json:"query"`
	DaysLookback      *int     `json:"days_lookback"`
	Limit             *int     `json:"limit"`
	MinScore          *float64 `json:"min_score"`
	IncludeContent    bool     `json:"include_content"`
	ConversationTypes []string `json:"conversation_types"`
	Tools             []string `json:"tools"`
}

func (s *Server) handleSearch(ctx context.Context, args encodingjson.RawMessage) (string, error) {
	var p searchParams
	if err := goccyjson.Unmarshal(args, &p); err != nil {
		return "", fmt.Errorf("invalid arguments: %w", err)
	}

	req := aggregate.Request{
		Query:             p.Query,
		DaysLookback:      intOr(p.DaysLookback, defaultSearchDaysLookback),
		Limit:             intOr(p.Limit, defaultLimit),
		MinScore:          floatOr(p.MinScore, defaultMinScore),
		IncludeContent:    p.IncludeContent,
		ConversationTypes: toConversationTypes(p.ConversationTypes),
		Tools:             toSourceTools(p.Tools),
	}

	start := time.Now()
	resp, err := s.aggregator.Search(ctx, req)
	if err != nil {
		return "", err
	}
	s.recordAudit(ctx, "search", req.ProjectRoot, req.Tools, resp, time.Since(start), req.Query)
	return s.shapeAndRender(resp)
}

type queryParams struct {
	Format string `json:"format"`
	Limit  *int   `json:"limit"`
}

func (s *Server) handleQuery(ctx context.Context, tool models.SourceTool, args encodingjson.RawMessage) (string, error) {
	var p queryParams
	if len(args) > 0 {
		if err := goccyjson.Unmarshal(args, &p); err != nil {
			return "", fmt.Errorf("invalid arguments: %w", err)
		}
	}
	format := p.Format
	if format == "" {
		format = string(tool)
	}
	if !rawquery.ValidFormat(format, tool) {
		return "", fmt.Errorf("format must be one of: json, markdown, %s", tool)
	}

	limit := intOr(p.Limit, defaultLimit)
	resp, err := s.aggregator.Recall(ctx, aggregate.Request{
		FastMode:     true,
		DaysLookback: 60, // widest lookback the aggregator allows; records older than 60 days are still dropped
		Limit:        limit,
		Tools:        []models.SourceTool{tool},
	})
	if err != nil {
		return "", err
	}

	return rawquery.Render(tool, resp.Conversations, format)
}

type exportParams struct {
	Format             string `json:"format"`
	OutputDir          string `json:"output_dir"`
	Limit              *int   `json:"limit"`
	ConversationFilter string `json:"conversation_filter"`
}

func (s *Server) handleExport(ctx context.Context, args encodingjson.RawMessage) (string, error) {
	var p exportParams
	if len(args) > 0 {
		if err := goccyjson.Unmarshal(args, &p); err != nil {
			return "", fmt.Errorf("invalid arguments: %w", err)
		}
	}

	limit := intOr(p.Limit, defaultExportLimit)

	resp, err := s.aggregator.Recall(ctx, aggregate.Request{
		FastMode:     true,
		DaysLookback: 60, // widest lookback the aggregator allows; records older than 60 days are still dropped
		Limit:        limit,
	})
	if err != nil {
		return "", err
	}

	result, err := export.Run(export.Request{
		Conversations:      resp.Conversations,
		OutputDir:          p.OutputDir,
		Format:             p.Format,
		Limit:              limit,
		ConversationFilter: p.ConversationFilter,
	})
	if err != nil {
		return "", err
	}

	b, err := goccyjson.MarshalIndent(result, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal export result: %w", err)
	}
	return string(b), nil
}

// shapeAndRender applies the Response Shaper (C10) cascade and
// serializes the resulting envelope.
func (s *Server) shapeAndRender(resp aggregate.Response) (string, error) {
	perTool := make([]respond.PerToolResult, 0, len(resp.PerTool))
	for _, r := range resp.PerTool {
		perTool = append(perTool, respond.PerToolResult{Tool: r.Tool, TotalConversations: r.TotalConversations, Error: r.Error})
	}

	env := respond.Shape(respond.Input{
		RequestID:       resp.RequestID,
		Conversations:   resp.Conversations,
		AvailableTools:  resp.AvailableTools,
		PerTool:         perTool,
		ContextKeywords: resp.ContextKeywords,
		Partial:         resp.Partial,
		Cached:          resp.Cached,
		SuccessRate:     resp.SuccessRatePercent,
	})

	b, err := goccyjson.MarshalIndent(env, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal response: %w", err)
	}
	return string(b), nil
}

func (s *Server) recordAudit(ctx context.Context, op, projectRoot string, tools []models.SourceTool, resp aggregate.Response, dur time.Duration, query string) {
	if s.auditStore == nil || !s.auditStore.Enabled() {
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

func (s *Server) sendResponse(resp *Response) {
	writeResponse(s.stdout, resp)
}

func (s *Server) sendError(id any, code int, message string, data any) {
	writeError(s.stdout, id, code, message, data)
}

func writeResponse(w io.Writer, resp *Response) {
	data, err := goccyjson.Marshal(resp)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal response")
		return
	}
	fmt.Fprintln(w, string(data))
}

func writeError(w io.Writer, id any, code int, message string, data any) {
	writeResponse(w, &Response{JSONRPC: "2.0", ID: id, Error: &Error{Code: code, Message: message, Data: data}})
}

func boolOr(v *bool, def bool) bool {
	if v == nil {
		return def
	}
	return *v
}

func intOr(v *int, def int) int {
	if v == nil {
		return def
	}
	return *v
}

func floatOr(v *float64, def float64) float64 {
	if v == nil {
		return def
	}
	return *v
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
