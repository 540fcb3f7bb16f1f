package httpapi

import (
	"bytes"
	encodingjson "encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bluekornchips/gandalf-aggregator/internal/aggregate"
	"github.com/bluekornchips/gandalf-aggregator/internal/audit"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	home := t.TempDir()
	os.Setenv("HOME", home)
	t.Cleanup(func() { os.Unsetenv("HOME") })

	auditStore, err := audit.Open("")
	require.NoError(t, err)

	agg := aggregate.New(aggregate.Deps{})
	return NewServer(agg, auditStore, "test-version")
}

func TestHandleHealthReturnsReady(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	rec := httptest.NewRecorder()

	s.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"ready"`)
}

func TestHandleSearchRejectsEmptyQuery(t *testing.T) {
	s := newTestServer(t)
	body, _ := encodingjson.Marshal(searchRequest{Query: ""})
	req := httptest.NewRequest(http.MethodPost, "/api/search", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	s.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestHandleQueryRejectsInvalidTool(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/query/bogus", nil)
	rec := httptest.NewRecorder()

	s.ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleQueryRejectsInvalidFormat(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/query/cursor?format=yaml", nil)
	rec := httptest.NewRecorder()

	s.ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleExportDefaultsLimitWhenOmitted(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/api/export", nil)
	rec := httptest.NewRecorder()

	s.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "exported_count")
}

func TestHandleOpenAPIDocServesJSON(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/docs/doc.json", nil)
	rec := httptest.NewRecorder()

	s.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"openapi"`)
}

func TestAuditRoutesAbsentWhenStoreDisabled(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/audit/runs", nil)
	rec := httptest.NewRecorder()

	s.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNotFound, rec.Code)
}
