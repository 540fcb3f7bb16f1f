package mcp

import (
	"bytes"
	"context"
	encodingjson "encoding/json"
	"os"
	"strings"
	"testing"

	goccyjson "github.com/goccy/go-json"
	"github.com/stretchr/testify/require"

	"github.com/bluekornchips/gandalf-aggregator/internal/aggregate"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	home := t.TempDir()
	os.Setenv("HOME", home)
	t.Cleanup(func() { os.Unsetenv("HOME") })

	agg := aggregate.New(aggregate.Deps{})
	return NewServer(agg, nil, "test-version")
}

func TestRequestMarshalsJSONRPCEnvelope(t *testing.T) {
	req := Request{JSONRPC: "2.0", ID: 1, Method: "initialize"}
	b, err := goccyjson.Marshal(req)
	require.NoError(t, err)
	require.Contains(t, string(b), `"method":"initialize"`)
}

func TestHandleInitializeReturnsServerInfo(t *testing.T) {
	s := newTestServer(t)
	resp := s.handleInitialize(&Request{ID: 1})
	require.Nil(t, resp.Error)
	result, ok := resp.Result.(map[string]any)
	require.True(t, ok)
	serverInfo, ok := result["serverInfo"].(map[string]any)
	require.True(t, ok)
	require.Equal(t, "test-version", serverInfo["version"])
}

func TestHandleToolsListIncludesAllFourOperations(t *testing.T) {
	s := newTestServer(t)
	resp := s.handleToolsList(&Request{ID: 1})
	result, ok := resp.Result.(map[string]any)
	require.True(t, ok)
	tools, ok := result["tools"].([]Tool)
	require.True(t, ok)

	names := make(map[string]bool)
	for _, tool := range tools {
		names[tool.Name] = true
	}
	require.True(t, names["recall_conversations"])
	require.True(t, names["search_conversations"])
	require.True(t, names["query_cursor_conversations"])
	require.True(t, names["query_claude_code_conversations"])
	require.True(t, names["query_windsurf_conversations"])
	require.True(t, names["export_individual_conversations"])
}

func TestHandleRequestReturnsMethodNotFoundForUnknownMethod(t *testing.T) {
	s := newTestServer(t)
	resp := s.handleRequest(context.Background(), &Request{ID: 1, Method: "bogus"})
	require.NotNil(t, resp.Error)
	require.Equal(t, -32601, resp.Error.Code)
}

func TestHandleSearchRejectsEmptyQuery(t *testing.T) {
	s := newTestServer(t)
	_, err := s.handleSearch(context.Background(), encodingjson.RawMessage(`{"query":""}`))
	require.Error(t, err)
}

func TestHandleToolsCallReturnsToolErrorOnInvalidArguments(t *testing.T) {
	s := newTestServer(t)
	req := &Request{ID: 1, Method: "tools/call", Params: encodingjson.RawMessage(`{"name":"search_conversations","arguments":{"query":""}}`)}
	resp := s.handleToolsCall(context.Background(), req)
	require.NotNil(t, resp.Error)
	require.Equal(t, -32000, resp.Error.Code)
}

func TestHandleToolsCallReturnsInvalidParamsOnMalformedParams(t *testing.T) {
	s := newTestServer(t)
	req := &Request{ID: 1, Method: "tools/call", Params: encodingjson.RawMessage(`not json`)}
	resp := s.handleToolsCall(context.Background(), req)
	require.NotNil(t, resp.Error)
	require.Equal(t, -32602, resp.Error.Code)
}

func TestHandleQueryRejectsInvalidFormat(t *testing.T) {
	s := newTestServer(t)
	_, err := s.handleQuery(context.Background(), "cursor", encodingjson.RawMessage(`{"format":"yaml"}`))
	require.Error(t, err)
}

func TestHandleExportDefaultsLimitWhenOmitted(t *testing.T) {
	s := newTestServer(t)
	out, err := s.handleExport(context.Background(), encodingjson.RawMessage(`{}`))
	require.NoError(t, err)
	require.Contains(t, out, `"exported_count"`)
}

func TestRunProcessesOneLineThenStopsOnEOF(t *testing.T) {
	s := newTestServer(t)
	s.stdin = strings.NewReader(`{"jsonrpc":"2.0","id":1,"method":"initialize"}` + "\n")
	var out bytes.Buffer
	s.stdout = &out

	err := s.Run(context.Background())
	require.NoError(t, err)
	require.Contains(t, out.String(), `"serverInfo"`)
}

func TestRunReturnsParseErrorButContinues(t *testing.T) {
	s := newTestServer(t)
	s.stdin = strings.NewReader("not json\n" + `{"jsonrpc":"2.0","id":2,"method":"tools/list"}` + "\n")
	var out bytes.Buffer
	s.stdout = &out

	err := s.Run(context.Background())
	require.NoError(t, err)
	require.Contains(t, out.String(), "Parse error")
	require.Contains(t, out.String(), `"tools"`)
}

func TestServeReadsFromArbitraryReaderWriter(t *testing.T) {
	s := newTestServer(t)
	in := strings.NewReader(`{"jsonrpc":"2.0","id":1,"method":"tools/list"}` + "\n")
	var out bytes.Buffer

	err := s.Serve(context.Background(), in, &out)
	require.NoError(t, err)
	require.Contains(t, out.String(), `"tools"`)
}

func TestIntOrFallsBackToDefaultWhenNil(t *testing.T) {
	require.Equal(t, 7, intOr(nil, 7))
	v := 42
	require.Equal(t, 42, intOr(&v, 7))
}

func TestJoinCommaJoinsNonEmptyList(t *testing.T) {
	require.Equal(t, "cursor,windsurf", joinComma([]string{"cursor", "windsurf"}))
	require.Equal(t, "", joinComma(nil))
}
