// Package main provides the MCP server entry point for the
// conversation aggregator.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/bluekornchips/gandalf-aggregator/internal/aggregate"
	"github.com/bluekornchips/gandalf-aggregator/internal/audit"
	"github.com/bluekornchips/gandalf-aggregator/internal/cache"
	"github.com/bluekornchips/gandalf-aggregator/internal/config"
	"github.com/bluekornchips/gandalf-aggregator/internal/locate"
	"github.com/bluekornchips/gandalf-aggregator/internal/mcp"
	"github.com/bluekornchips/gandalf-aggregator/internal/observability"
	"github.com/bluekornchips/gandalf-aggregator/internal/pool"
	"github.com/bluekornchips/gandalf-aggregator/internal/relevance"
)

// Version is set at build time via ldflags.
var Version = "dev"

func main() {
	settingsPath := flag.String("config", "", "Path to settings YAML (default: ~/.gandalf/settings.yaml)")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	// MCP uses stdout for the JSON-RPC wire protocol, so logs go to stderr.
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if *debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, NoColor: true})

	if err := config.EnsureAll(); err != nil {
		log.Fatal().Err(err).Msg("failed to ensure data directories")
	}

	path := *settingsPath
	if path == "" {
		path = config.DataDir() + "/settings.yaml"
	}
	cfg, err := config.Load(path)
	if err != nil {
		log.Warn().Err(err).Msg("failed to load config, using defaults")
		cfg = config.Default()
	}

	shutdownTracing := observability.Init()
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			log.Warn().Err(err).Msg("tracer shutdown failed")
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info().Msg("shutting down MCP server")
		cancel()
	}()

	connPool := pool.New(pool.Config{
		MaxPerKey:    cfg.PoolMaxPerKey,
		BusyTimeout:  cfg.PoolBusyTimeout,
		OpTimeout:    cfg.PoolOpTimeout,
		CheckTimeout: cfg.PoolCheckTimeout,
	})

	diskCache := cache.New(cache.NewDiskBackend(config.CacheDir()), time.Duration(cfg.CacheTTLHours)*time.Hour)

	relevanceCfg := relevance.DefaultConfig()
	relevanceCfg.MaxExtractionChars = cfg.MaxExtractionChars
	engine := relevance.New(relevanceCfg)

	auditStore, err := audit.Open(cfg.AuditPostgresDSN)
	if err != nil {
		log.Warn().Err(err).Msg("audit store unavailable, continuing without it")
		auditStore = &audit.Store{}
	}
	defer auditStore.Close()

	aggregator := aggregate.New(aggregate.Deps{
		Pool:    connPool,
		Locator: locate.New(),
		Cache:   diskCache,
		Engine:  engine,
	})

	server := mcp.NewServer(aggregator, auditStore, Version)
	log.Info().Str("version", Version).Msg("starting MCP server")

	if err := server.Run(ctx); err != nil {
		log.Fatal().Err(err).Msg("MCP server error")
	}
}
