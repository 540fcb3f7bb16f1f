// Package relevance implements the Relevance Engine (C6): scoring a
// conversation against context keywords, recency, file references, and
// classifying its conversation type. Config/Params/Components shape
// adapted from the teacher's internal/scoring/relevance.go; the scoring
// rules themselves are grounded on original_source's conversation_recall.py
// (extract_conversation_text_lazy, score_keyword_matches_optimized,
// analyze_conversation_relevance_optimized, score_recency).
package relevance

import (
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/tiktoken-go/tokenizer"

	"github.com/bluekornchips/gandalf-aggregator/pkg/models"
)

// Config holds the tunable limits spec §4.6 names.
type Config struct {
	MaxExtractionChars        int
	MaxExtractionTokens       int
	KeywordCheckLimit         int
	KeywordMatchesLimit       int
	KeywordWeight             float64
	FileReferenceIncrement    float64
	EarlyTerminationThreshold float64
}

// DefaultConfig returns spec §4.6's documented defaults.
func DefaultConfig() Config {
	return Config{
		MaxExtractionChars:        5_000,
		MaxExtractionTokens:       1_200,
		KeywordCheckLimit:         50,
		KeywordMatchesLimit:       10,
		KeywordWeight:             0.1,
		FileReferenceIncrement:    0.1,
		EarlyTerminationThreshold: 0.1,
	}
}

// Params bundles one conversation's scoring inputs.
type Params struct {
	Title       string
	Texts       []string // prompts and generations, in order
	UpdatedAt   time.Time
	Keywords    []string
	ProjectRoot string
	Detailed    bool
}

// Engine scores conversations using a fixed Config.
type Engine struct {
	cfg Config
}

// New creates an Engine with cfg; a zero-value Config is replaced with
// DefaultConfig.
func New(cfg Config) *Engine {
	if cfg.MaxExtractionChars == 0 {
		cfg = DefaultConfig()
	}
	return &Engine{cfg: cfg}
}

var filePathPattern = regexp.MustCompile(`[\w./\\-]+\.[a-zA-Z]{1,10}`)

// Score computes the final relevance score plus component breakdown
// and classification for params.
func (e *Engine) Score(params Params) (float64, models.ScoreComponents, []string, models.ConversationType) {
	text := extractText(params.Title, params.Texts, e.cfg.MaxExtractionChars, e.cfg.MaxExtractionTokens)

	keywordScore, matched := e.scoreKeywords(text, params.Keywords)
	recencyScore := scoreRecency(params.UpdatedAt)

	if keywordScore+recencyScore < e.cfg.EarlyTerminationThreshold && !params.Detailed {
		components := models.ScoreComponents{
			KeywordScore: round2(keywordScore),
			RecencyScore: round2(recencyScore),
			Total:        round2(clamp01(keywordScore + recencyScore)),
		}
		return components.Total, components, matched, models.TypeGeneral
	}

	fileScore := e.scoreFileReferences(text, params.ProjectRoot)
	convType := classify(matched, text)

	total := clamp01(keywordScore + recencyScore + fileScore)
	components := models.ScoreComponents{
		KeywordScore: round2(keywordScore),
		RecencyScore: round2(recencyScore),
		FileScore:    round2(fileScore),
		Total:        round2(total),
	}
	return components.Total, components, matched, convType
}

// extractText concatenates title then texts in order until maxChars is
// reached; sources past the cap are skipped entirely, per spec §4.6.1.
// The result is further bounded to maxTokens under the cl100k_base
// encoding, a tighter and more model-faithful budget than a raw
// character count once text is rich in short/punctuation-heavy tokens.
func extractText(title string, texts []string, maxChars, maxTokens int) string {
	var sb strings.Builder
	sb.WriteString(title)
	for _, t := range texts {
		if sb.Len()+len(t)+1 > maxChars {
			break
		}
		sb.WriteByte(' ')
		sb.WriteString(t)
	}
	out := sb.String()
	if len(out) > maxChars {
		out = out[:maxChars]
	}
	return truncateToTokenBudget(out, maxTokens)
}

var (
	tokenCodecOnce sync.Once
	tokenCodec     tokenizer.Codec
	tokenCodecErr  error
)

func tokenizerCodec() (tokenizer.Codec, error) {
	tokenCodecOnce.Do(func() {
		tokenCodec, tokenCodecErr = tokenizer.Get(tokenizer.Cl100kBase)
	})
	return tokenCodec, tokenCodecErr
}

// truncateToTokenBudget trims text to at most maxTokens tokens under
// cl100k_base, leaving text unchanged if the tokenizer can't be loaded
// or the text is already within budget.
func truncateToTokenBudget(text string, maxTokens int) string {
	if maxTokens <= 0 || text == "" {
		return text
	}
	codec, err := tokenizerCodec()
	if err != nil {
		return text
	}
	ids, _, err := codec.Encode(text)
	if err != nil || len(ids) <= maxTokens {
		return text
	}
	decoded, err := codec.Decode(ids[:maxTokens])
	if err != nil {
		return text
	}
	return decoded
}

// scoreKeywords iterates keywords longest-first (first KeywordCheckLimit
// of them); for each substring hit in text, adds len(keyword) * weight,
// stopping once KeywordMatchesLimit hits have accumulated, clamped to
// 1.0. Returns the matched keywords in the order they fired (length
// descending, per spec §3's keyword_matches ordering rule).
func (e *Engine) scoreKeywords(text string, keywords []string) (float64, []string) {
	lower := strings.ToLower(text)
	sorted := sortKeywordsByLengthDesc(keywords)
	if len(sorted) > e.cfg.KeywordCheckLimit {
		sorted = sorted[:e.cfg.KeywordCheckLimit]
	}

	var score float64
	var matched []string
	for _, kw := range sorted {
		if kw == "" {
			continue
		}
		if !strings.Contains(lower, strings.ToLower(kw)) {
			continue
		}
		matched = append(matched, kw)
		score += float64(len(kw)) * e.cfg.KeywordWeight
		if len(matched) >= e.cfg.KeywordMatchesLimit {
			break
		}
	}
	return clamp01(score), matched
}

func scoreRecency(updatedAt time.Time) float64 {
	if updatedAt.IsZero() {
		return 0
	}
	ageDays := time.Since(updatedAt).Hours() / 24
	switch {
	case ageDays <= 1:
		return 1.0
	case ageDays <= 7:
		return 0.8
	case ageDays <= 30:
		return 0.5
	case ageDays <= 90:
		return 0.2
	default:
		return 0.1
	}
}

// scoreFileReferences extracts path-like tokens from text and adds a
// fixed increment for each that resolves under projectRoot, clamped to
// 1.0. Only project-resident paths count.
func (e *Engine) scoreFileReferences(text, projectRoot string) float64 {
	if projectRoot == "" {
		return 0
	}
	candidates := filePathPattern.FindAllString(text, -1)
	score := 0.0
	seen := map[string]bool{}
	for _, c := range candidates {
		if seen[c] {
			continue
		}
		seen[c] = true
		if residentPath(projectRoot, c) {
			score += e.cfg.FileReferenceIncrement
		}
	}
	return clamp01(score)
}

func residentPath(root, candidate string) bool {
	full := candidate
	if !filepath.IsAbs(candidate) {
		full = filepath.Join(root, candidate)
	}
	rel, err := filepath.Rel(root, full)
	if err != nil {
		return false
	}
	return !strings.HasPrefix(rel, "..")
}

// classificationBuckets maps a conversation type to the keyword tokens
// that imply it. Iterated in models.AllConversationTypes order so tie
// breaking favors the earlier-declared tag, per the surfaced design
// decision recorded in DESIGN.md.
var classificationBuckets = map[models.ConversationType][]string{
	models.TypeArchitecture:   {"architecture", "design", "schema", "topology", "structure", "module"},
	models.TypeDebugging:      {"bug", "error", "crash", "panic", "exception", "fix", "debug", "trace"},
	models.TypeProblemSolving: {"solve", "approach", "strategy", "algorithm", "optimiz"},
	models.TypeTechnical:      {"config", "deploy", "infrastructure", "performance", "latency", "build"},
	models.TypeCodeDiscussion: {"refactor", "review", "implement", "function", "class", "variable"},
}

// classify picks the type whose bucket has the most hits among matched
// keywords plus the extracted text, defaulting to general.
func classify(matched []string, text string) models.ConversationType {
	lower := strings.ToLower(text)
	best := models.TypeGeneral
	bestHits := 0
	for _, t := range models.AllConversationTypes {
		bucket, ok := classificationBuckets[t]
		if !ok {
			continue
		}
		hits := 0
		for _, m := range matched {
			if containsAny(strings.ToLower(m), bucket) {
				hits++
			}
		}
		for _, b := range bucket {
			if strings.Contains(lower, b) {
				hits++
			}
		}
		if hits > bestHits {
			bestHits = hits
			best = t
		}
	}
	return best
}

func containsAny(s string, bucket []string) bool {
	for _, b := range bucket {
		if strings.Contains(s, b) {
			return true
		}
	}
	return false
}

func clamp01(v float64) float64 {
	if v > 1.0 {
		return 1.0
	}
	if v < 0 {
		return 0
	}
	return v
}

func round2(v float64) float64 {
	return float64(int64(v*100+0.5)) / 100
}

// sortKeywordsByLengthDesc returns a copy of keywords sorted longest
// first, matching spec §4.6.2's iteration order.
func sortKeywordsByLengthDesc(keywords []string) []string {
	out := append([]string{}, keywords...)
	sort.SliceStable(out, func(i, j int) bool { return len(out[i]) > len(out[j]) })
	return out
}
