// Package watcher wraps fsnotify into the recursive directory watch: a
// watched set of directory URLs, a debounce layer that coalesces a burst
// of native events into FilesOp deltas, and a linked map that mirrors
// changes across symlink pairs.
package watcher

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/marcus/ember/internal/cha"
	"github.com/marcus/ember/internal/vfiles"
	"github.com/marcus/ember/internal/vfs"
	"github.com/marcus/ember/internal/vurl"
)

const debounceWindow = 100 * time.Millisecond

// Watcher maintains the watched set and emits FilesOp deltas via OnOp.
type Watcher struct {
	fsw      *fsnotify.Watcher
	provider vfs.Provider

	mu       sync.Mutex
	watched  map[string]struct{}
	linked   map[string]string // watched path -> canonical target path
	pending  map[string]struct{}
	timer    *time.Timer
	debounce time.Duration

	OnOp func(vfiles.FilesOp)

	closeOnce sync.Once
}

// New constructs a Watcher backed by provider (used to stat changed paths
// and canonicalize for linked-path reconciliation).
func New(provider vfs.Provider, onOp func(vfiles.FilesOp)) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &Watcher{
		fsw:      fsw,
		provider: provider,
		watched:  make(map[string]struct{}),
		linked:   make(map[string]string),
		pending:  make(map[string]struct{}),
		debounce: debounceWindow,
		OnOp:     onOp,
	}
	go w.run()
	return w, nil
}

// SetDebounce overrides the default 100ms aggregation window. Must be
// called before the first Watch.
func (w *Watcher) SetDebounce(d time.Duration) {
	if d > 0 {
		w.mu.Lock()
		w.debounce = d
		w.mu.Unlock()
	}
}

// Watch recursively adds dir (and its subdirectories) to the watched set.
func (w *Watcher) Watch(dir vurl.URL) error {
	err := filepath.WalkDir(dir.Path, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			if p == dir.Path {
				return err
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if err := w.fsw.Add(p); err != nil {
			return err
		}
		w.mu.Lock()
		w.watched[p] = struct{}{}
		w.mu.Unlock()
		return nil
	})
	if err != nil {
		return err
	}
	w.reconcileLinked()
	return nil
}

// Unwatch removes dir from the watched set and drops any linked entry
// that referenced it on either side.
func (w *Watcher) Unwatch(dir vurl.URL) {
	w.mu.Lock()
	delete(w.watched, dir.Path)
	delete(w.linked, dir.Path)
	for k, v := range w.linked {
		if v == dir.Path {
			delete(w.linked, k)
		}
	}
	w.mu.Unlock()
	w.fsw.Remove(dir.Path)
}

// Trigger bypasses the notifier, forcing an immediate reconciliation of
// url's parent without waiting for the debounce window.
func (w *Watcher) Trigger(url vurl.URL) {
	w.reconcilePath(url.Path)
}

// reconcileLinked recomputes the linked map: for every watched path whose
// canonical form differs from itself and is also still watched, record
// the mapping. Unwatched targets are left unmapped.
func (w *Watcher) reconcileLinked() {
	w.mu.Lock()
	paths := make([]string, 0, len(w.watched))
	for p := range w.watched {
		paths = append(paths, p)
	}
	w.mu.Unlock()

	for _, p := range paths {
		canon, err := w.provider.Canonicalize(context.Background(), vurl.FromPath(p))
		if err != nil || canon.Path == p {
			continue
		}
		w.mu.Lock()
		if _, stillWatched := w.watched[canon.Path]; stillWatched {
			w.linked[p] = canon.Path
		}
		w.mu.Unlock()
	}
}

func (w *Watcher) run() {
	for {
		select {
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.queue(ev.Name)
			if ev.Op&fsnotify.Create != 0 {
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
					w.Watch(vurl.FromPath(ev.Name))
				}
			}
		case _, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
		}
	}
}

func (w *Watcher) queue(path string) {
	w.mu.Lock()
	w.pending[path] = struct{}{}
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.flush)
	w.mu.Unlock()
}

func (w *Watcher) flush() {
	w.mu.Lock()
	paths := make([]string, 0, len(w.pending))
	for p := range w.pending {
		paths = append(paths, p)
	}
	w.pending = make(map[string]struct{})
	w.mu.Unlock()

	for _, p := range paths {
		w.reconcilePath(p)
	}
}

// reconcilePath emits the FilesOp for a single changed path, then mirrors
// the delta into any linked source folder.
func (w *Watcher) reconcilePath(path string) {
	u := vurl.FromPath(path)
	parent, urn, ok := u.Pair()
	if !ok {
		return
	}

	if info, err := os.Stat(path); err == nil {
		c := cha.FromFileInfo(info, strings.HasPrefix(filepath.Base(path), "."))
		c.MTime = info.ModTime()
		file := vfiles.File{URL: u, Cha: c}
		w.emit(vfiles.FilesOp{Kind: vfiles.OpUpserting, Url: parent, Files: []vfiles.File{file}})
	} else {
		w.emit(vfiles.FilesOp{Kind: vfiles.OpDeleting, Url: parent, Urns: []string{urn}})
	}

	w.mirrorLinked(path)
}

// mirrorLinked emits the same Upserting/Deleting delta reconcilePath does
// for the corresponding path under any linked source whose target is a
// prefix of path.
func (w *Watcher) mirrorLinked(path string) {
	w.mu.Lock()
	type pair struct{ src, target string }
	var matches []pair
	for src, target := range w.linked {
		if within(path, target) {
			matches = append(matches, pair{src, target})
		}
	}
	w.mu.Unlock()

	for _, m := range matches {
		rel, err := filepath.Rel(m.target, path)
		if err != nil {
			continue
		}
		mirrored := filepath.Join(m.src, rel)
		u := vurl.FromPath(mirrored)
		parent, urn, ok := u.Pair()
		if !ok {
			continue
		}
		if info, err := os.Stat(mirrored); err == nil {
			c := cha.FromFileInfo(info, strings.HasPrefix(filepath.Base(mirrored), "."))
			c.MTime = info.ModTime()
			w.emit(vfiles.FilesOp{Kind: vfiles.OpUpserting, Url: parent, Files: []vfiles.File{{URL: u, Cha: c}}})
		} else {
			w.emit(vfiles.FilesOp{Kind: vfiles.OpDeleting, Url: parent, Urns: []string{urn}})
		}
	}
}

func within(path, base string) bool {
	if path == base {
		return true
	}
	return len(path) > len(base) && path[:len(base)+1] == base+string(filepath.Separator)
}

func (w *Watcher) emit(op vfiles.FilesOp) {
	if w.OnOp != nil {
		w.OnOp(op)
	}
}

// Close shuts down the underlying fsnotify watcher.
func (w *Watcher) Close() error {
	var err error
	w.closeOnce.Do(func() { err = w.fsw.Close() })
	return err
}
