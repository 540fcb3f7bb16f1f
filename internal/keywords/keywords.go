// Package keywords implements the Context Keyword Builder (C5):
// deriving an ordered, deduplicated list of project-specific ranking
// terms from manifest files, extension-to-technology mapping, and
// user-supplied text. Grounded on original_source's conversation_recall.py
// (_get_tech_category_from_extension, _extract_keywords_from_content)
// and aggregation_utils.py's extract_keywords_from_text / stop-word set.
package keywords

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	gojson "github.com/goccy/go-json"
	"github.com/tiktoken-go/tokenizer"
)

// MaxContextKeywords caps the emitted list per spec §4.5.
const MaxContextKeywords = 20

// maxPerFieldTokens caps tokens pulled from a single free-text field
// (user_prompt, search_query) before the overall cap applies.
const maxPerFieldTokens = 20

// maxReadmeTokens bounds how much of a README/CLAUDE.md gets scanned
// for technology indicators, under the cl100k_base encoding — a
// repo-authored README can run tens of thousands of words, and a
// token budget tracks the cost of the substring scan more faithfully
// than a raw byte count would.
const maxReadmeTokens = 2_000

var (
	readmeCodecOnce sync.Once
	readmeCodec     tokenizer.Codec
	readmeCodecErr  error
)

func readmeBudgetCodec() (tokenizer.Codec, error) {
	readmeCodecOnce.Do(func() {
		readmeCodec, readmeCodecErr = tokenizer.Get(tokenizer.Cl100kBase)
	})
	return readmeCodec, readmeCodecErr
}

// boundReadmeText caps text to maxReadmeTokens tokens, returning it
// unchanged if the tokenizer is unavailable or the text already fits.
func boundReadmeText(text string) string {
	codec, err := readmeBudgetCodec()
	if err != nil {
		return text
	}
	ids, _, err := codec.Encode(text)
	if err != nil || len(ids) <= maxReadmeTokens {
		return text
	}
	decoded, err := codec.Decode(ids[:maxReadmeTokens])
	if err != nil {
		return text
	}
	return decoded
}

var tokenPattern = regexp.MustCompile(`[a-zA-Z0-9_+\-\.]{2,}`)

var stopWords = map[string]bool{
	"the": true, "a": true, "an": true, "and": true, "or": true, "but": true,
	"in": true, "on": true, "at": true, "to": true, "for": true, "of": true,
	"with": true, "by": true, "is": true, "are": true, "was": true, "were": true,
	"be": true, "been": true, "being": true, "have": true, "has": true, "had": true,
	"do": true, "does": true, "did": true, "will": true, "would": true, "could": true,
	"should": true, "this": true, "that": true, "these": true, "those": true,
	"it": true, "its": true, "as": true, "from": true, "into": true, "about": true,
	"how": true, "what": true, "why": true, "can": true, "i": true, "you": true,
	"me": true, "my": true, "we": true, "our": true,
}

// extensionTech maps a file extension to a technology token, mirroring
// the teacher pack's per-language detectors.
var extensionTech = map[string]string{
	".py": "python", ".rs": "rust", ".go": "go", ".ts": "typescript",
	".tsx": "typescript", ".js": "javascript", ".jsx": "javascript",
	".rb": "ruby", ".java": "java", ".kt": "kotlin", ".swift": "swift",
	".c": "c", ".h": "c", ".cpp": "cpp", ".hpp": "cpp", ".cs": "csharp",
	".php": "php", ".sh": "shell", ".sql": "sql", ".yaml": "yaml", ".yml": "yaml",
	".tf": "terraform", ".proto": "protobuf",
}

var manifestFiles = []string{"package.json", "pyproject.toml", "requirements.txt", "Cargo.toml", "go.mod"}

// techIndicators is scanned for inside README/CLAUDE.md content.
var techIndicators = []string{
	"python", "rust", "golang", "go", "typescript", "javascript", "react",
	"vue", "django", "flask", "fastapi", "postgres", "redis", "docker",
	"kubernetes", "graphql", "grpc", "kafka",
}

type packageManifest struct {
	Name       string   `json:"name"`
	Keywords   []string `json:"keywords"`
	Dependencies map[string]string `json:"dependencies"`
}

// Request bundles the inputs that feed keyword derivation.
type Request struct {
	ProjectRoot string
	UserPrompt  string
	SearchQuery string
}

// Build derives the capped, ordered, deduplicated keyword list for req.
func Build(req Request) []string {
	var ordered []string
	seen := map[string]bool{}
	add := func(tok string) {
		tok = strings.ToLower(strings.TrimSpace(tok))
		if tok == "" || seen[tok] {
			return
		}
		seen[tok] = true
		ordered = append(ordered, tok)
	}

	if req.ProjectRoot != "" {
		add(filepath.Base(req.ProjectRoot))
		for _, tok := range manifestKeywords(req.ProjectRoot) {
			add(tok)
		}
		for _, tok := range extensionKeywords(req.ProjectRoot) {
			add(tok)
		}
		for _, tok := range readmeKeywords(req.ProjectRoot) {
			add(tok)
		}
	}

	for _, tok := range tokenize(req.SearchQuery, maxPerFieldTokens) {
		add(tok)
	}
	for _, tok := range tokenize(req.UserPrompt, maxPerFieldTokens) {
		add(tok)
	}

	if len(ordered) > MaxContextKeywords {
		ordered = ordered[:MaxContextKeywords]
	}
	return ordered
}

// tokenize strips punctuation, lowercases, removes stop words, and
// returns at most limit tokens in original order.
func tokenize(text string, limit int) []string {
	if text == "" {
		return nil
	}
	matches := tokenPattern.FindAllString(strings.ToLower(text), -1)
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		if stopWords[m] {
			continue
		}
		out = append(out, m)
		if len(out) >= limit {
			break
		}
	}
	return out
}

// manifestKeywords reads the first present manifest file's declared
// name and keywords fields.
func manifestKeywords(root string) []string {
	data, ok := readManifest(root)
	if !ok {
		return nil
	}
	var pm packageManifest
	if err := gojson.Unmarshal(data, &pm); err != nil {
		return nil
	}
	var out []string
	if pm.Name != "" {
		out = append(out, pm.Name)
	}
	out = append(out, pm.Keywords...)
	for dep := range pm.Dependencies {
		out = append(out, dep)
	}
	return out
}

func readManifest(root string) ([]byte, bool) {
	for _, name := range manifestFiles {
		data, err := os.ReadFile(filepath.Join(root, name))
		if err == nil {
			return data, true
		}
	}
	return nil, false
}

// extensionKeywords walks one level of root (non-recursive, bounded)
// collecting technology tokens implied by file extensions present.
func extensionKeywords(root string) []string {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil
	}
	seen := map[string]bool{}
	var out []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if tech, ok := extensionTech[ext]; ok && !seen[tech] {
			seen[tech] = true
			out = append(out, tech)
		}
	}
	return out
}

// readmeKeywords scans README/CLAUDE.md for recognized technology
// indicator tokens.
func readmeKeywords(root string) []string {
	var out []string
	for _, name := range []string{"README.md", "README", "CLAUDE.md"} {
		data, err := os.ReadFile(filepath.Join(root, name))
		if err != nil {
			continue
		}
		lower := strings.ToLower(boundReadmeText(string(data)))
		for _, ind := range techIndicators {
			if strings.Contains(lower, ind) {
				out = append(out, ind)
			}
		}
	}
	return out
}
