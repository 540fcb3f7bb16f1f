package cache

import (
	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

// ManifestWatcher proactively invalidates a project's cached
// ProjectHash the moment one of its manifest files changes, instead of
// waiting for the next request's stat-based hash comparison to notice.
type ManifestWatcher struct {
	watcher *fsnotify.Watcher
	onWrite func(projectRoot string)
}

// WatchManifests watches projectRoot's manifest files (package.json,
// pyproject.toml, requirements.txt, Cargo.toml) for writes, invoking
// onWrite when one changes. The caller is responsible for calling
// Close when done.
func WatchManifests(projectRoot string, onWrite func(projectRoot string)) (*ManifestWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := w.Add(projectRoot); err != nil {
		_ = w.Close()
		return nil, err
	}

	mw := &ManifestWatcher{watcher: w, onWrite: onWrite}
	go mw.run(projectRoot)
	return mw, nil
}

func (mw *ManifestWatcher) run(projectRoot string) {
	manifestSet := map[string]bool{}
	for _, name := range manifestFiles {
		manifestSet[name] = true
	}

	for {
		select {
		case event, ok := <-mw.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove) == 0 {
				continue
			}
			base := event.Name
			if idx := lastSlash(base); idx >= 0 {
				base = base[idx+1:]
			}
			if manifestSet[base] {
				mw.onWrite(projectRoot)
			}
		case err, ok := <-mw.watcher.Errors:
			if !ok {
				return
			}
			log.Warn().Err(err).Str("project_root", projectRoot).Msg("manifest watcher error")
		}
	}
}

func lastSlash(s string) int {
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] == '/' || s[i] == '\\' {
			return i
		}
	}
	return -1
}

// Close stops the watcher.
func (mw *ManifestWatcher) Close() error {
	return mw.watcher.Close()
}
