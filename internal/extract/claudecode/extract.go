// Package claudecode implements the Claude Code record extractor
// (C3.2): decoding newline-delimited JSON session files into raw
// records. Adapted closely from the teacher's
// internal/sessions/parser.go — the bufio.Scanner buffer sizing,
// per-line malformed-JSON tolerance, and user/assistant pairing are
// all carried over, retargeted at this domain's RawRecord shape
// instead of claude-mnemonic's SessionMeta.
package claudecode

import (
	"bufio"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	gojson "github.com/goccy/go-json"
	"github.com/rs/zerolog/log"

	"github.com/bluekornchips/gandalf-aggregator/internal/aggerr"
)

const maxJSONLLineSize = 1024 * 1024 // 1MB, matches the teacher's maxJSONLLineSize

// Exchange pairs one user turn with the assistant turn that followed it.
type Exchange struct {
	UserText      string
	AssistantText string
	Timestamp     time.Time
}

// RawRecord is one Claude Code session file, parsed into the shape C8
// (Normalizer) consumes.
type RawRecord struct {
	SessionID    string
	ProjectCWD   string
	WorkspaceID  string
	FilePath     string
	FirstMsgAt   time.Time
	LastMsgAt    time.Time
	Exchanges    []Exchange
	MessageCount int
}

// CompositeKey scopes SessionID to the workstation and project it came
// from, guarding against a session ID colliding across machines or
// projects. Adapted from the teacher's sessions/parser.go composite-key
// construction, retargeted at this domain's (workstation, workspace,
// session) triple.
func (rec RawRecord) CompositeKey() string {
	return WorkstationID() + ":" + rec.WorkspaceID + ":" + rec.SessionID
}

type contentItem struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type sessionMessage struct {
	Role    string          `json:"role"`
	Content gojson.RawMessage `json:"content"`
}

type sessionLine struct {
	Type      string         `json:"type"`
	Message   sessionMessage `json:"message"`
	Timestamp string         `json:"timestamp"`
	SessionID string         `json:"sessionId"`
	CWD       string         `json:"cwd"`
}

// Extractor enumerates and parses *.jsonl files under a Claude Code
// projects root.
type Extractor struct{}

// New creates a Claude Code extractor.
func New() *Extractor { return &Extractor{} }

// Extract parses at most limit files (ordered by modification time
// descending) found directly under root's tree, optionally restricted
// to the project whose directory-name encoding matches projectFilter
// (path separators replaced with "-", per spec §4.3.2).
func (e *Extractor) Extract(ctx context.Context, root string, projectFilter string, limit int) ([]RawRecord, error) {
	files, err := e.candidateFiles(root, projectFilter)
	if err != nil {
		return nil, aggerr.SourceUnavailable("claude-code", "list claude code project files", err)
	}
	if limit > 0 && len(files) > limit {
		files = files[:limit]
	}

	out := make([]RawRecord, 0, len(files))
	for _, f := range files {
		select {
		case <-ctx.Done():
			return out, aggerr.SourceTimeout("claude-code", "extraction deadline elapsed", ctx.Err())
		default:
		}
		rec, err := parseSessionFile(f)
		if err != nil {
			log.Warn().Err(err).Str("file", f).Msg("skipping unreadable claude code session file")
			continue
		}
		if rec.MessageCount == 0 {
			continue // a file with zero parsed lines is dropped, per spec §4.3.2
		}
		out = append(out, rec)
	}
	return out, nil
}

func (e *Extractor) candidateFiles(root, projectFilter string) ([]string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, err
	}

	type fileInfo struct {
		path    string
		modTime time.Time
	}
	var candidates []fileInfo

	for _, projectDir := range entries {
		if !projectDir.IsDir() {
			continue
		}
		if projectFilter != "" && projectDir.Name() != encodeProjectDir(projectFilter) {
			continue
		}
		dirPath := filepath.Join(root, projectDir.Name())
		files, err := os.ReadDir(dirPath)
		if err != nil {
			continue
		}
		for _, f := range files {
			if f.IsDir() || filepath.Ext(f.Name()) != ".jsonl" {
				continue
			}
			info, err := f.Info()
			if err != nil {
				continue
			}
			candidates = append(candidates, fileInfo{path: filepath.Join(dirPath, f.Name()), modTime: info.ModTime()})
		}
	}

	sort.Slice(candidates, func(i, j int) bool { return candidates[i].modTime.After(candidates[j].modTime) })

	paths := make([]string, len(candidates))
	for i, c := range candidates {
		paths[i] = c.path
	}
	return paths, nil
}

// encodeProjectDir mirrors Claude Code's own directory-naming
// convention: absolute path separators become hyphens.
func encodeProjectDir(projectRoot string) string {
	out := make([]byte, 0, len(projectRoot))
	for i := 0; i < len(projectRoot); i++ {
		c := projectRoot[i]
		if c == '/' || c == '\\' {
			out = append(out, '-')
		} else {
			out = append(out, c)
		}
	}
	return string(out)
}

func parseSessionFile(path string) (RawRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return RawRecord{}, err
	}
	defer f.Close()
	return parseSessionReader(f, path)
}

func parseSessionReader(r io.Reader, path string) (RawRecord, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, bufio.MaxScanTokenSize), maxJSONLLineSize)

	rec := RawRecord{FilePath: path}
	var pendingUser *string
	var pendingUserTime time.Time

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var sl sessionLine
		if err := gojson.Unmarshal(line, &sl); err != nil {
			continue // a malformed line does not fail the file, per spec §4.3.2
		}

		if rec.SessionID == "" {
			rec.SessionID = sl.SessionID
			rec.ProjectCWD = sl.CWD
		}

		ts := parseTimestamp(sl.Timestamp)
		if rec.FirstMsgAt.IsZero() || (!ts.IsZero() && ts.Before(rec.FirstMsgAt)) {
			if !ts.IsZero() {
				rec.FirstMsgAt = ts
			}
		}
		if ts.After(rec.LastMsgAt) {
			rec.LastMsgAt = ts
		}

		text := extractText(sl.Message.Content)

		switch sl.Message.Role {
		case "user":
			u := text
			pendingUser = &u
			pendingUserTime = ts
			rec.MessageCount++
		case "assistant":
			rec.MessageCount++
			userText := ""
			if pendingUser != nil {
				userText = *pendingUser
			}
			ts2 := pendingUserTime
			if ts2.IsZero() {
				ts2 = ts
			}
			rec.Exchanges = append(rec.Exchanges, Exchange{
				UserText:      userText,
				AssistantText: text,
				Timestamp:     ts2,
			})
			pendingUser = nil
		}
	}
	if err := scanner.Err(); err != nil {
		return rec, fmt.Errorf("scan %s: %w", path, err)
	}
	if rec.ProjectCWD != "" {
		rec.WorkspaceID = ProjectID(rec.ProjectCWD)
	}
	return rec, nil
}

func extractText(raw gojson.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := gojson.Unmarshal(raw, &s); err == nil {
		return s
	}
	var items []contentItem
	if err := gojson.Unmarshal(raw, &items); err == nil {
		out := ""
		for _, it := range items {
			if it.Type == "text" && it.Text != "" {
				if out != "" {
					out += "\n"
				}
				out += it.Text
			}
		}
		return out
	}
	return ""
}

func parseTimestamp(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t
	}
	return time.Time{}
}

// WorkstationID derives a stable 8-hex-char identifier for the local
// machine, used to scope session composite keys. Adapted from the
// teacher's sessions/parser.go WorkstationID.
func WorkstationID() string {
	hostname, _ := os.Hostname()
	sum := sha256.Sum256([]byte(hostname))
	return hex.EncodeToString(sum[:])[:8]
}

// ProjectID derives a stable 8-hex-char identifier for a project path.
func ProjectID(cwdPath string) string {
	sum := sha256.Sum256([]byte(cwdPath))
	return hex.EncodeToString(sum[:])[:8]
}
