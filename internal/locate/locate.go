// Package locate implements the Source Locator (C2): pure,
// platform-aware discovery of per-IDE conversation store paths. It
// never opens a store — only reports candidates that exist and are
// readable, per spec §4.2.
package locate

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/bluekornchips/gandalf-aggregator/pkg/models"
)

// StorePath is one candidate location for a source tool's data.
type StorePath struct {
	Tool models.SourceTool
	Path string
	// WorkspaceID is the coarse workspace identifier (the store's
	// parent directory name), used by the Cursor/Windsurf extractors.
	WorkspaceID string
}

// Locator enumerates candidate store paths. It is pure: construction
// takes no I/O-bearing dependencies, only the information needed to
// resolve $HOME-relative paths.
type Locator struct {
	home string
	// isWSL lets tests force WSL-path probing without faking /proc/version.
	isWSL bool
}

// New creates a Locator rooted at the current user's home directory.
func New() *Locator {
	home, _ := os.UserHomeDir()
	return &Locator{home: home, isWSL: detectWSL()}
}

func detectWSL() bool {
	if runtime.GOOS != "linux" {
		return false
	}
	data, err := os.ReadFile("/proc/version")
	if err != nil {
		return false
	}
	return strings.Contains(strings.ToLower(string(data)), "microsoft")
}

// Locate returns every existing, readable candidate directory for
// tool, across Cursor/Windsurf's many per-workspace store directories
// and Claude Code's single projects root.
func (l *Locator) Locate(tool models.SourceTool) []StorePath {
	switch tool {
	case models.SourceCursor:
		return l.locateWorkspaceDBs(tool, l.cursorBases(), "state.vscdb")
	case models.SourceWindsurf:
		return l.locateWorkspaceDBs(tool, l.windsurfBases(), "state.vscdb")
	case models.SourceClaudeCode:
		return l.locateClaudeCode()
	default:
		return nil
	}
}

// cursorBases returns the fixed, ordered list of base directories that
// may contain per-workspace Cursor stores.
func (l *Locator) cursorBases() []string {
	bases := []string{
		filepath.Join(l.home, ".config", "Cursor", "User", "workspaceStorage"),
		filepath.Join(l.home, ".cursor-server", "data", "User", "workspaceStorage"),
	}
	if runtime.GOOS == "darwin" {
		bases = append(bases, filepath.Join(l.home, "Library", "Application Support", "Cursor", "User", "workspaceStorage"))
	}
	if l.isWSL {
		if winUser := l.windowsUsername(); winUser != "" {
			bases = append(bases, filepath.Join("/mnt/c/Users", winUser, "AppData", "Roaming", "Cursor", "User", "workspaceStorage"))
		}
	}
	return bases
}

func (l *Locator) windsurfBases() []string {
	bases := []string{
		filepath.Join(l.home, ".config", "Windsurf", "User", "workspaceStorage"),
	}
	if runtime.GOOS == "darwin" {
		bases = append(bases, filepath.Join(l.home, "Library", "Application Support", "Windsurf", "User", "workspaceStorage"))
	}
	if l.isWSL {
		if winUser := l.windowsUsername(); winUser != "" {
			bases = append(bases, filepath.Join("/mnt/c/Users", winUser, "AppData", "Roaming", "Windsurf", "User", "workspaceStorage"))
		}
	}
	return bases
}

// windowsUsername resolves the WSL host's Windows username, preferring
// an explicit environment variable and falling back to the first
// non-default entry under /mnt/c/Users, per spec §4.2.
func (l *Locator) windowsUsername() string {
	if u := os.Getenv("WSL_WIN_USERNAME"); u != "" {
		return u
	}
	entries, err := os.ReadDir("/mnt/c/Users")
	if err != nil {
		return ""
	}
	skip := map[string]bool{
		"Public": true, "Default": true, "Default User": true,
		"All Users": true, "desktop.ini": true,
	}
	for _, e := range entries {
		if e.IsDir() && !skip[e.Name()] {
			return e.Name()
		}
	}
	return ""
}

// locateWorkspaceDBs walks each base directory's immediate
// subdirectories (one per workspace) looking for dbName, reporting the
// workspace hash alongside each hit.
func (l *Locator) locateWorkspaceDBs(tool models.SourceTool, bases []string, dbName string) []StorePath {
	var out []StorePath
	for _, base := range bases {
		entries, err := os.ReadDir(base)
		if err != nil {
			continue
		}
		for _, e := range entries {
			if !e.IsDir() {
				continue
			}
			candidate := filepath.Join(base, e.Name(), dbName)
			if readable(candidate) {
				out = append(out, StorePath{Tool: tool, Path: candidate, WorkspaceID: e.Name()})
			}
		}
	}
	return out
}

func (l *Locator) locateClaudeCode() []StorePath {
	bases := []string{filepath.Join(l.home, ".claude", "projects")}
	var out []StorePath
	for _, base := range bases {
		if readableDir(base) {
			out = append(out, StorePath{Tool: models.SourceClaudeCode, Path: base})
		}
	}
	return out
}

func readable(path string) bool {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return false
	}
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	_ = f.Close()
	return true
}

func readableDir(path string) bool {
	info, err := os.Stat(path)
	if err != nil || !info.IsDir() {
		return false
	}
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	_ = f.Close()
	return true
}
