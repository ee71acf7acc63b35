package credential

import (
	"context"
	"os"
	"time"

	"relay/internal/logging"
)

// DefaultPollInterval matches spec.md §4.3's "every 5s (configurable)".
const DefaultPollInterval = 5 * time.Second

// FileWatcher polls a credential file's mtime and merges externally
// rewritten keys into a Store. Deliberately polling, not inotify —
// spec.md §9 Design Notes calls this out explicitly as correct and
// portable; "upgrading" it would contradict a stated invariant.
type FileWatcher struct {
	Path         string
	Store        *Store
	PollInterval time.Duration

	lastMtime time.Time
	seen      bool
}

// NewFileWatcher builds a watcher with the default poll interval.
func NewFileWatcher(path string, store *Store) *FileWatcher {
	return &FileWatcher{Path: path, Store: store, PollInterval: DefaultPollInterval}
}

// Run blocks, polling until ctx is cancelled.
func (w *FileWatcher) Run(ctx context.Context) {
	ticker := time.NewTicker(w.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.poll()
		}
	}
}

func (w *FileWatcher) poll() {
	info, err := os.Stat(w.Path)
	if err != nil {
		return
	}
	mtime := info.ModTime()

	if !w.seen {
		// First observation only records mtime: avoids a redundant
		// load at boot (spec.md §4.3).
		w.seen = true
		w.lastMtime = mtime
		return
	}
	if !mtime.After(w.lastMtime) {
		return
	}
	w.lastMtime = mtime

	key, err := LoadFile(w.Path)
	if err != nil {
		logging.Warn("credential file watcher: parse failed, keeping in-memory key", "error", err.Error())
		return
	}
	if key == nil {
		return
	}
	if w.Store.SetIfNewer(*key) {
		logging.Info("credential file watcher: merged newer key from disk")
	}
}
