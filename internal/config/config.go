// Package config loads and provides runtime configuration for the
// aggregator, following the teacher's singleton-with-override
// approach: a package-level default instance that callers can replace
// wholesale via Load, plus small directory accessors used throughout
// the codebase instead of scattering os.Getenv calls.
package config

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds every tunable named across spec.md's components.
type Config struct {
	DataDirOverride string `yaml:"data_dir,omitempty"`

	// C1 Connection Pool
	PoolMaxPerKey    int           `yaml:"pool_max_per_key"`
	PoolBusyTimeout  time.Duration `yaml:"pool_busy_timeout"`
	PoolOpTimeout    time.Duration `yaml:"pool_op_timeout"`
	PoolCheckTimeout time.Duration `yaml:"pool_check_timeout"`

	// C5/C6
	MaxContextKeywords int `yaml:"max_context_keywords"`
	MaxExtractionChars int `yaml:"max_extraction_chars"`

	// C7 Conversation Cache
	CacheTTLHours int    `yaml:"cache_ttl_hours"`
	CacheMinSize  int    `yaml:"cache_min_size"`
	RedisAddr     string `yaml:"redis_addr,omitempty"`

	// C9 Aggregator
	SourceDeadline             time.Duration `yaml:"source_deadline"`
	RequestDeadline            time.Duration `yaml:"request_deadline"`
	EarlyTerminationMultiplier int           `yaml:"early_termination_multiplier"`

	// C10 Response Shaper
	MaxResponseBytes int `yaml:"max_response_bytes"`

	// Optional shared audit store (internal/audit), disabled when empty.
	AuditPostgresDSN string `yaml:"audit_postgres_dsn,omitempty"`

	// HTTP/cmux surface
	ServerListenAddr string `yaml:"server_listen_addr"`
}

// Default returns the out-of-the-box configuration matching every
// numeric default named in spec.md.
func Default() *Config {
	return &Config{
		PoolMaxPerKey:    5,
		PoolBusyTimeout:  2 * time.Second,
		PoolOpTimeout:    15 * time.Second,
		PoolCheckTimeout: 5 * time.Second,

		MaxContextKeywords: 20,
		MaxExtractionChars: 5000,

		CacheTTLHours: 24,
		CacheMinSize:  5,

		SourceDeadline:             10 * time.Second,
		RequestDeadline:            20 * time.Second,
		EarlyTerminationMultiplier: 3,

		MaxResponseBytes: 256 * 1024,

		ServerListenAddr: "127.0.0.1:8787",
	}
}

var (
	globalConfig *Config
	configOnce   sync.Once
	configMu     sync.RWMutex
)

// Load reads a YAML settings file at path, merging its values over
// Default(), and installs the result as the global config. A missing
// file is not an error — it just leaves defaults in place.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			setGlobal(cfg)
			return cfg, nil
		}
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	setGlobal(cfg)
	return cfg, nil
}

func setGlobal(cfg *Config) {
	configMu.Lock()
	defer configMu.Unlock()
	globalConfig = cfg
}

// Global returns the process-wide config, initializing it to Default()
// on first use if Load was never called.
func Global() *Config {
	configOnce.Do(func() {
		configMu.Lock()
		if globalConfig == nil {
			globalConfig = Default()
		}
		configMu.Unlock()
	})
	configMu.RLock()
	defer configMu.RUnlock()
	return globalConfig
}

// DataDir returns the root directory for all aggregator state
// (cache files, exports), honoring an override and otherwise
// defaulting to ~/.gandalf.
func DataDir() string {
	cfg := Global()
	if cfg.DataDirOverride != "" {
		return cfg.DataDirOverride
	}
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".gandalf")
}

// CacheDir returns the Conversation Cache root.
func CacheDir() string {
	return filepath.Join(DataDir(), "cache")
}

// ExportDir returns the default export_individual_conversations root.
func ExportDir() string {
	return filepath.Join(DataDir(), "exports")
}

// EnsureAll creates every directory the aggregator needs to write to.
func EnsureAll() error {
	for _, dir := range []string{DataDir(), CacheDir(), ExportDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return nil
}
