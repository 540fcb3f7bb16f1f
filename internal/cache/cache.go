// Package cache implements the Conversation Cache (C7): a per-project
// disk cache of prior scored results, skipping re-scoring when neither
// the project nor the request has meaningfully changed. Grounded on
// original_source's conversation_recall.py (get_project_cache_hash,
// is_cache_valid, load_cached_conversations, save_conversations_to_cache),
// with field names corrected to spec §4.7/§6's
// timestamp/context_hash/conversation_count/total_found/processing_time.
package cache

import (
	"crypto/md5"
	"encoding/hex"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	gojson "github.com/goccy/go-json"

	"github.com/bluekornchips/gandalf-aggregator/internal/aggerr"
	"github.com/bluekornchips/gandalf-aggregator/pkg/models"
)

const (
	// DefaultTTLHours is the cache validity window, per spec §4.7.
	DefaultTTLHours = 24
	// MinSize is the minimum result count required to persist a cache
	// entry on miss, per spec §4.7.
	MinSize = 5

	conversationsFile = "conversations.json"
	metadataFile      = "metadata.json"
)

var manifestFiles = []string{"package.json", "pyproject.toml", "requirements.txt", "Cargo.toml"}

// Metadata is the on-disk companion file's shape, using spec §6's field
// names (not the original Python's cached_at/project_hash naming).
type Metadata struct {
	Timestamp         time.Time `json:"timestamp"`
	ContextHash       string    `json:"context_hash"`
	ConversationCount int       `json:"conversation_count"`
	TotalFound        int       `json:"total_found"`
	ProcessingTime    float64   `json:"processing_time"`
}

type payload struct {
	Conversations []models.ConversationRecord `json:"conversations"`
	Metadata      Metadata                    `json:"metadata"`
}

// Backend is the pluggable storage contract; Disk is the default, an
// optional Redis-backed implementation lives in redis.go.
type Backend interface {
	Read(projectRoot string) ([]byte, []byte, error) // conversations.json, metadata.json
	Write(projectRoot string, conversations, metadata []byte) error
}

// Cache is the per-project-root scored-result cache.
type Cache struct {
	backend Backend
	ttl     time.Duration
	mu      sync.Mutex
	locks   map[string]*sync.Mutex
}

// New creates a Cache backed by backend with the given TTL; a zero TTL
// defaults to DefaultTTLHours.
func New(backend Backend, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTLHours * time.Hour
	}
	return &Cache{backend: backend, ttl: ttl, locks: map[string]*sync.Mutex{}}
}

// ProjectHash mixes the resolved project path, sorted context keywords,
// and the mtime of the first manifest file found, per spec §4.7.
func ProjectHash(projectRoot string, keywords []string) string {
	sorted := append([]string{}, keywords...)
	sort.Strings(sorted)

	input := projectRoot + strings.Join(sorted, "")
	for _, name := range manifestFiles {
		info, err := os.Stat(filepath.Join(projectRoot, name))
		if err == nil {
			input += info.ModTime().String()
			break
		}
	}
	sum := md5.Sum([]byte(input))
	return hex.EncodeToString(sum[:])[:16]
}

// lockFor returns the path-keyed lock guarding projectRoot, per spec
// §5's "caches are ... accessed under a path-keyed lock" rule.
func (c *Cache) lockFor(projectRoot string) *sync.Mutex {
	c.mu.Lock()
	defer c.mu.Unlock()
	l, ok := c.locks[projectRoot]
	if !ok {
		l = &sync.Mutex{}
		c.locks[projectRoot] = l
	}
	return l
}

// Lookup returns cached records and metadata when valid for the given
// projectRoot and currentHash, re-filtered against the supplied
// predicate (min_score / days_lookback / conversation_types), plus
// whether the filtered set satisfies requestedLimit.
func (c *Cache) Lookup(projectRoot, currentHash string, requestedLimit int, keep func(models.ConversationRecord) bool) ([]models.ConversationRecord, Metadata, bool) {
	lock := c.lockFor(projectRoot)
	lock.Lock()
	defer lock.Unlock()

	convData, metaData, err := c.backend.Read(projectRoot)
	if err != nil || convData == nil || metaData == nil {
		return nil, Metadata{}, false
	}

	var meta Metadata
	if err := gojson.Unmarshal(metaData, &meta); err != nil {
		return nil, Metadata{}, false
	}
	if time.Since(meta.Timestamp) > c.ttl || meta.ContextHash != currentHash {
		return nil, Metadata{}, false
	}

	var p payload
	if err := gojson.Unmarshal(convData, &p); err != nil {
		return nil, Metadata{}, false
	}

	filtered := make([]models.ConversationRecord, 0, len(p.Conversations))
	for _, rec := range p.Conversations {
		if keep(rec) {
			filtered = append(filtered, rec)
		}
	}
	if len(filtered) < requestedLimit {
		return nil, Metadata{}, false
	}
	return filtered, meta, true
}

// Store persists conversations under projectRoot when the result count
// meets MinSize, per spec §4.7's write-on-miss rule.
func (c *Cache) Store(projectRoot, currentHash string, conversations []models.ConversationRecord, totalFound int, processingTime time.Duration) error {
	if len(conversations) < MinSize {
		return nil
	}

	lock := c.lockFor(projectRoot)
	lock.Lock()
	defer lock.Unlock()

	meta := Metadata{
		Timestamp:         time.Now(),
		ContextHash:       currentHash,
		ConversationCount: len(conversations),
		TotalFound:        totalFound,
		ProcessingTime:    processingTime.Seconds(),
	}
	p := payload{Conversations: conversations, Metadata: meta}

	convBytes, err := gojson.Marshal(p)
	if err != nil {
		return aggerr.Cache("marshal conversations", err)
	}
	metaBytes, err := gojson.Marshal(meta)
	if err != nil {
		return aggerr.Cache("marshal metadata", err)
	}
	if err := c.backend.Write(projectRoot, convBytes, metaBytes); err != nil {
		return aggerr.Cache("write cache", err)
	}
	return nil
}
