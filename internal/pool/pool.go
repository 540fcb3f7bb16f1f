// Package pool implements the Connection Pool (C1): path-keyed,
// health-checked, idle-capped SQLite handles with scoped acquisition.
// Release is guaranteed on every exit path via Go's defer, matching
// the contextmanager discipline of the original ConnectionPool
// (original_source/server/src/utils/database_pool.py) and the pooling
// parameters of the teacher's internal/db/sqlite/store.go.
package pool

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"

	"github.com/bluekornchips/gandalf-aggregator/internal/aggerr"
	"github.com/bluekornchips/gandalf-aggregator/internal/observability"
)

// Config controls how handles are opened and pooled.
type Config struct {
	MaxPerKey    int           // idle handles kept per path, default 5
	BusyTimeout  time.Duration // sqlite busy_timeout, default 2s
	OpTimeout    time.Duration // default 15s; stored only — WithConnection does not apply it, so fn is bounded by the caller's ctx alone
	CheckTimeout time.Duration // Scoped Timeout around structural checks, default 5s
}

// DefaultConfig matches spec §4.1's defaults.
func DefaultConfig() Config {
	return Config{
		MaxPerKey:    5,
		BusyTimeout:  2 * time.Second,
		OpTimeout:    15 * time.Second,
		CheckTimeout: 5 * time.Second,
	}
}

// Pool is a thread-safe, path-keyed SQLite connection pool. The
// Connection Pool is the only shared mutable resource across requests
// (spec §5); everything else in the aggregator is request-scoped.
type Pool struct {
	cfg   Config
	mu    sync.Mutex
	byKey map[string][]*sql.DB
}

// New creates an empty pool using cfg (zero-value fields fall back to
// DefaultConfig's values).
func New(cfg Config) *Pool {
	d := DefaultConfig()
	if cfg.MaxPerKey <= 0 {
		cfg.MaxPerKey = d.MaxPerKey
	}
	if cfg.BusyTimeout <= 0 {
		cfg.BusyTimeout = d.BusyTimeout
	}
	if cfg.OpTimeout <= 0 {
		cfg.OpTimeout = d.OpTimeout
	}
	if cfg.CheckTimeout <= 0 {
		cfg.CheckTimeout = d.CheckTimeout
	}
	return &Pool{cfg: cfg, byKey: make(map[string][]*sql.DB)}
}

func (p *Pool) open(path string) (*sql.DB, error) {
	dsn := fmt.Sprintf(
		"file:%s?_busy_timeout=%d&_journal_mode=WAL&_synchronous=NORMAL&_foreign_keys=on",
		path, p.cfg.BusyTimeout.Milliseconds(),
	)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	return db, nil
}

func healthy(db *sql.DB) bool {
	var one int
	if err := db.QueryRow("SELECT 1").Scan(&one); err != nil {
		return false
	}
	return one == 1
}

// Handle is a borrowed connection; Release must be called exactly
// once, typically via defer immediately after acquisition.
type Handle struct {
	DB  *sql.DB
	pool *Pool
	path string
}

// Release returns the handle to its pool if it is still healthy and
// there is room, or closes it otherwise. Safe to call from any
// exit path, including after a panic recovered by the caller.
func (h *Handle) Release() {
	if h == nil || h.DB == nil {
		return
	}
	h.pool.release(h.path, h.DB)
}

// Acquire returns a pooled or freshly opened handle for path, bounded
// by the package's CheckTimeout for the initial health probe.
func (p *Pool) Acquire(ctx context.Context, path string) (*Handle, error) {
	ctx, span := observability.Tracer().Start(ctx, "pool.acquire")
	span.SetAttributes(attribute.String("path", path))
	defer span.End()

	p.mu.Lock()
	var db *sql.DB
	if handles := p.byKey[path]; len(handles) > 0 {
		db = handles[len(handles)-1]
		p.byKey[path] = handles[:len(handles)-1]
	}
	p.mu.Unlock()

	if db != nil {
		if healthy(db) {
			return &Handle{DB: db, pool: p, path: path}, nil
		}
		_ = db.Close()
		log.Debug().Str("path", path).Msg("discarded unhealthy pooled handle")
	}

	opened, err := p.open(path)
	if err != nil {
		return nil, aggerr.SourceUnavailable("", fmt.Sprintf("open sqlite store %s", path), err)
	}
	if err := pingWithTimeout(ctx, opened, p.cfg.CheckTimeout); err != nil {
		_ = opened.Close()
		return nil, aggerr.SourceUnavailable("", fmt.Sprintf("ping sqlite store %s", path), err)
	}
	return &Handle{DB: opened, pool: p, path: path}, nil
}

func pingWithTimeout(ctx context.Context, db *sql.DB, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return db.PingContext(ctx)
}

func (p *Pool) release(path string, db *sql.DB) {
	if !healthy(db) {
		_ = db.Close()
		return
	}

	p.mu.Lock()
	full := len(p.byKey[path]) >= p.cfg.MaxPerKey
	if !full {
		p.byKey[path] = append(p.byKey[path], db)
	}
	p.mu.Unlock()

	if full {
		_ = db.Close()
	}
}

// WithConnection runs fn with a scoped, released-on-exit handle —
// the Go equivalent of the original's @contextmanager get_connection.
func (p *Pool) WithConnection(ctx context.Context, path string, fn func(*sql.DB) error) error {
	h, err := p.Acquire(ctx, path)
	if err != nil {
		return err
	}
	defer h.Release()
	return fn(h.DB)
}

// Stats returns the number of idle handles held per path, for
// diagnostics — mirrors get_pool_stats in the original.
func (p *Pool) Stats() map[string]int {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[string]int, len(p.byKey))
	for k, v := range p.byKey {
		out[k] = len(v)
	}
	return out
}

// CloseAll closes every idle handle in every pool, for shutdown.
func (p *Pool) CloseAll() {
	p.mu.Lock()
	defer p.mu.Unlock()
	closed := 0
	for key, handles := range p.byKey {
		for _, db := range handles {
			_ = db.Close()
			closed++
		}
		delete(p.byKey, key)
	}
	if closed > 0 {
		log.Debug().Int("closed", closed).Msg("closed pooled sqlite connections")
	}
}
