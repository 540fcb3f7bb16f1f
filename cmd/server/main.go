// Package main provides the combined HTTP+TCP server entry point: one
// listener, split by soheilhy/cmux into an HTTP mux (SSE and
// Streamable MCP transports) and a raw line-delimited JSON-RPC TCP
// stream, mirroring the teacher's cmd/mcp-sse/main.go wiring adapted
// to a single shared port.
package main

import (
	"context"
	"flag"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/soheilhy/cmux"

	"github.com/bluekornchips/gandalf-aggregator/internal/aggregate"
	"github.com/bluekornchips/gandalf-aggregator/internal/audit"
	"github.com/bluekornchips/gandalf-aggregator/internal/cache"
	"github.com/bluekornchips/gandalf-aggregator/internal/config"
	"github.com/bluekornchips/gandalf-aggregator/internal/httpapi"
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
	addrFlag := flag.String("addr", "", "Listen address (default: config's server_listen_addr)")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

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

	addr := cfg.ServerListenAddr
	if *addrFlag != "" {
		addr = *addrFlag
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
		log.Info().Msg("shutting down aggregator server")
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

	lis, err := net.Listen("tcp", addr)
	if err != nil {
		log.Fatal().Err(err).Str("addr", addr).Msg("failed to listen")
	}

	m := cmux.New(lis)
	httpLis := m.Match(cmux.HTTP1Fast())
	rpcLis := m.Match(cmux.Any())

	sseHandler := mcp.NewSSEHandler(server)

	mux := http.NewServeMux()
	mux.Handle("/sse", sseHandler)
	mux.Handle("/message", sseHandler)
	mux.Handle("/mcp", mcp.NewStreamableHandler(server))
	mux.Handle("/", httpapi.NewServer(aggregator, auditStore, Version))

	httpServer := &http.Server{Handler: mux}

	go func() {
		if err := httpServer.Serve(httpLis); err != nil && err != http.ErrServerClosed && err != cmux.ErrListenerClosed {
			log.Error().Err(err).Msg("http listener error")
		}
	}()

	go serveRPCConns(ctx, server, rpcLis)

	go func() {
		if err := m.Serve(); err != nil && err != cmux.ErrListenerClosed {
			log.Error().Err(err).Msg("cmux serve error")
		}
	}()

	log.Info().Str("addr", addr).Msg("starting aggregator server (HTTP + raw JSON-RPC on one port)")

	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http server shutdown failed")
	}
	sseHandler.Close()
	_ = lis.Close()
}

// serveRPCConns accepts raw TCP connections carrying line-delimited
// JSON-RPC (the same protocol MCP speaks over stdio) and serves each
// one on its own goroutine until ctx is canceled.
func serveRPCConns(ctx context.Context, server *mcp.Server, lis net.Listener) {
	for {
		conn, err := lis.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Warn().Err(err).Msg("rpc listener accept error")
			return
		}

		go func() {
			defer conn.Close()
			if err := server.Serve(ctx, conn, conn); err != nil && ctx.Err() == nil {
				log.Warn().Err(err).Msg("rpc connection closed")
			}
		}()
	}
}
