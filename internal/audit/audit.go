// Package audit implements an optional, shared Postgres audit trail
// of aggregation runs, for fleet/team deployments where several
// machines share one store. Disabled (every method a no-op) when no
// DSN is configured, matching SPEC_FULL.md's domain-stack entry.
// Grounded on internal/db/gorm/store.go (Store/Config/NewStore shape,
// gormigrate migration runner) and internal/sessions/store.go
// (ListSessions/SearchSessions query patterns), generalized from
// session indexing to aggregation-run bookkeeping.
package audit

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/go-gormigrate/gormigrate/v2"
	_ "github.com/lib/pq"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Run records one recall/search invocation.
type Run struct {
	ID                 uint      `gorm:"primaryKey"`
	RequestID          string    `gorm:"size:64;index"`
	Operation          string    `gorm:"size:32;index"` // "recall" | "search"
	ProjectRoot        string    `gorm:"size:1024;index"`
	Tools              string    `gorm:"size:128"` // comma-joined tool names requested
	ResultCount        int
	SuccessRatePercent float64
	DurationMs         int64
	Query              string `gorm:"size:512"`
	CreatedAt          time.Time
}

// Store is the audit trail; the zero value (nil *gorm.DB) is a valid,
// fully inert Store so callers never need a nil check of their own.
type Store struct {
	db    *gorm.DB
	rawDB *sql.DB
}

// Open connects to dsn and migrates the audit schema. An empty dsn
// returns a disabled Store whose methods are no-ops, so the caller
// can wire it unconditionally.
func Open(dsn string) (*Store, error) {
	if dsn == "" {
		return &Store{}, nil
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("open audit postgres: %w", err)
	}

	m := gormigrate.New(db, gormigrate.DefaultOptions, []*gormigrate.Migration{
		{
			ID: "001_aggregation_runs",
			Migrate: func(tx *gorm.DB) error {
				return tx.AutoMigrate(&Run{})
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable("runs")
			},
		},
	})
	if err := m.Migrate(); err != nil {
		return nil, fmt.Errorf("run audit migrations: %w", err)
	}

	// A second, independently-driven *sql.DB for the raw-SQL search
	// path below — GORM's query builder has no native ILIKE/full-text
	// support worth the abstraction, so searches go through
	// database/sql directly, the same split the teacher's
	// internal/sessions/store.go makes against internal/db/gorm.GetRawDB.
	rawDB, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open raw audit postgres connection: %w", err)
	}
	if err := rawDB.Ping(); err != nil {
		return nil, fmt.Errorf("ping raw audit postgres connection: %w", err)
	}

	return &Store{db: db, rawDB: rawDB}, nil
}

// Enabled reports whether this Store is backed by a real connection.
func (s *Store) Enabled() bool { return s != nil && s.db != nil }

// GetRawDB returns the underlying *sql.DB used for raw SQL queries
// GORM's builder doesn't cover, mirroring the teacher's GetRawDB/rawDB
// split between internal/db/gorm and internal/sessions.
func (s *Store) GetRawDB() *sql.DB { return s.rawDB }

// Close releases both the GORM and raw connections. A no-op when
// disabled.
func (s *Store) Close() error {
	if !s.Enabled() {
		return nil
	}
	if sqlDB, err := s.db.DB(); err == nil {
		_ = sqlDB.Close()
	}
	return s.rawDB.Close()
}

// RecordRun persists one aggregation run. A no-op when disabled.
func (s *Store) RecordRun(ctx context.Context, run Run) error {
	if !s.Enabled() {
		return nil
	}
	if err := s.db.WithContext(ctx).Create(&run).Error; err != nil {
		return fmt.Errorf("record aggregation run: %w", err)
	}
	return nil
}

// ListRuns returns the most recent runs for a project root, newest
// first. Returns an empty slice (not an error) when disabled.
func (s *Store) ListRuns(ctx context.Context, projectRoot string, limit int) ([]Run, error) {
	if !s.Enabled() {
		return nil, nil
	}
	if limit <= 0 {
		limit = 20
	}

	query := s.db.WithContext(ctx).Model(&Run{}).Order("created_at DESC").Limit(limit)
	if projectRoot != "" {
		query = query.Where("project_root = ?", projectRoot)
	}

	var runs []Run
	if err := query.Find(&runs).Error; err != nil {
		return nil, fmt.Errorf("list aggregation runs: %w", err)
	}
	return runs, nil
}

// SearchRuns finds runs whose recorded query text contains substr,
// via raw SQL against GetRawDB rather than GORM's query builder.
func (s *Store) SearchRuns(ctx context.Context, substr string, limit int) ([]Run, error) {
	if !s.Enabled() {
		return nil, nil
	}
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.rawDB.QueryContext(ctx, `
		SELECT id, request_id, operation, project_root, tools,
		       result_count, success_rate_percent, duration_ms, query, created_at
		FROM runs
		WHERE query ILIKE $1
		ORDER BY created_at DESC
		LIMIT $2
	`, "%"+substr+"%", limit)
	if err != nil {
		return nil, fmt.Errorf("search aggregation runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		if err := rows.Scan(&r.ID, &r.RequestID, &r.Operation, &r.ProjectRoot, &r.Tools,
			&r.ResultCount, &r.SuccessRatePercent, &r.DurationMs, &r.Query, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan aggregation run row: %w", err)
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate aggregation run rows: %w", err)
	}
	return runs, nil
}
