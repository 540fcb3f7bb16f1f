// Package httpapi exposes the aggregator's four operations
// (recall, search, per-tool raw query, export) as a REST surface for
// remote/team deployments, alongside a health/version admin surface
// and a served OpenAPI document. Grounded on the teacher's
// internal/worker/service.go router setup (chi, middleware stack,
// writeJSON helper) and handlers_scoring.go's request-decode/validate/
// respond handler shape, generalized from observation scoring to
// conversation aggregation.
package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	httpSwagger "github.com/swaggo/http-swagger"

	"github.com/bluekornchips/gandalf-aggregator/internal/aggregate"
	"github.com/bluekornchips/gandalf-aggregator/internal/audit"
)

// DefaultRequestTimeout bounds every request route below, matching the
// teacher's DefaultHTTPTimeout constant.
const DefaultRequestTimeout = 30 * time.Second

// Server wires the aggregator into a chi router.
type Server struct {
	aggregator *aggregate.Aggregator
	auditStore *audit.Store
	version    string
	router     chi.Router
}

// NewServer builds the router and registers every route.
func NewServer(aggregator *aggregate.Aggregator, auditStore *audit.Store, version string) *Server {
	s := &Server{aggregator: aggregator, auditStore: auditStore, version: version}
	s.router = chi.NewRouter()
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

// ServeHTTP satisfies http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(requestIDMiddleware)
	s.router.Use(middleware.Timeout(DefaultRequestTimeout))
	s.router.Use(middleware.Compress(5))
}

func (s *Server) setupRoutes() {
	s.router.Get("/api/health", s.handleHealth)
	s.router.Get("/api/version", s.handleVersion)

	s.router.Post("/api/recall", s.handleRecall)
	s.router.Post("/api/search", s.handleSearch)
	s.router.Get("/api/query/{tool}", s.handleQuery)
	s.router.Post("/api/export", s.handleExport)

	if s.auditStore.Enabled() {
		s.router.Get("/api/audit/runs", s.handleListAuditRuns)
	}

	s.router.Get("/docs/*", httpSwagger.Handler(httpSwagger.URL("/docs/doc.json")))
	s.router.Get("/docs/doc.json", s.handleOpenAPIDoc)
}

// requestIDMiddleware threads a per-request correlation ID, using
// google/uuid rather than chi's built-in sequential RequestID, so IDs
// stay globally unique across process restarts and match the
// request_id field already carried in aggregate.Response.
func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		ctx := contextWithRequestID(r.Context(), id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
