// Package manager implements the top of the core state machine: the non-empty tab list, the shared mimetype map, the yank
// register, the watcher handle, and the event-loop dispatch that routes
// every bus event into the right tab/folder. All state mutation happens on
// the goroutine running Run; background work (directory reads, previews,
// precache, file ops) only re-enters through the bus.
package manager

import (
	"context"
	"log/slog"
	"strings"

	"github.com/atotto/clipboard"

	"github.com/marcus/ember/internal/cache"
	"github.com/marcus/ember/internal/config"
	"github.com/marcus/ember/internal/eventbus"
	"github.com/marcus/ember/internal/folder"
	"github.com/marcus/ember/internal/image"
	"github.com/marcus/ember/internal/precache"
	"github.com/marcus/ember/internal/preview"
	"github.com/marcus/ember/internal/tab"
	"github.com/marcus/ember/internal/task"
	"github.com/marcus/ember/internal/vfiles"
	"github.com/marcus/ember/internal/vfs"
	"github.com/marcus/ember/internal/vurl"
	"github.com/marcus/ember/internal/watcher"
)

// Yanked is the global copy/cut register shared across tabs.
type Yanked struct {
	Cut  bool
	Urls []vurl.URL
}

// Contains reports whether u is in the register.
func (y Yanked) Contains(u vurl.URL) bool {
	for _, v := range y.Urls {
		if v.Equal(u) {
			return true
		}
	}
	return false
}

// Progress is the task scheduler's status-bar state.
type Progress struct {
	Percent float64
	Left    int
}

// Collaborators bundles the external surfaces the core deliberately does
// not own: popups, the opener, the keymap executor, and the subprocess
// helpers. Every field is optional; a nil collaborator degrades the
// corresponding command to a no-op (or, for Mimer, to "unknown mime is
// skipped").
type Collaborators struct {
	// Prompt shows the Input popup and blocks until the user submits or
	// cancels. Called from command goroutines, never from the main loop.
	Prompt func(ctx context.Context, title, initial string, cursor int) (string, bool)
	// Confirm shows the Confirm popup.
	Confirm func(ctx context.Context, title string) bool
	// Notify surfaces a non-fatal error to the user.
	Notify func(msg string)
	// Opener hands the resolved targets to the opener subsystem.
	Opener func(ctx context.Context, targets []vurl.URL, opener string, interactive bool)
	// BulkEdit lets the user edit a list of names (bulk rename); returns
	// the edited list, which must have the same length.
	BulkEdit func(ctx context.Context, names []string) ([]string, error)
	// Mimer batch-invokes the external `file` classifier.
	Mimer precache.Mimer
	// SizeOf recursively computes a directory's size.
	SizeOf precache.SizeComputer
	// Thumbnail renders an image-family thumbnail into the cache dir.
	Thumbnail precache.Thumbnailer
	// OnKey routes a key through the external keymap executor, reporting
	// whether any command rendered.
	OnKey func(key string) bool
	// Call dispatches a programmatic command string on a layer.
	Call func(command, layer string) bool
	// OnRender paints one frame from the current snapshot.
	OnRender func()
}

// Manager aggregates the tabs and global registers.
type Manager struct {
	Tabs   []*tab.Tab
	Active int

	// Mimetype maps URL wire form to mimetype, shared across tabs.
	Mimetype map[string]string
	Yanked   Yanked
	Progress Progress

	// CwdFile / ChooserFile are the persisted-state outputs;
	// empty means disabled.
	CwdFile     string
	ChooserFile string

	cfg       *config.Config
	bus       *eventbus.Bus
	log       *slog.Logger
	providers *vfs.Registry
	collab    Collaborators

	watcher *watcher.Watcher
	sched   *task.Scheduler
	img     *image.Adapter

	previews []*preview.Task
	skips    []int // per-tab preview scroll

	mimeQ  *precache.MimeQueue
	sizeQ  *precache.SizeQueue
	imageQ *precache.ImageQueue
	loaded *precache.Loaded

	// pendingHover records a forced-hover url per tab so the cursor snaps
	// to it when the file (re)appears via a later Files op.
	pendingHover map[int]vurl.URL

	// watched tracks which cwd urls this manager asked the watcher for, so
	// tab switches diff rather than re-walk.
	watched map[string]vurl.URL

	ctx context.Context
}

// Options configures New beyond the required collaborators.
type Options struct {
	Config      *config.Config
	Logger      *slog.Logger
	Image       *image.Adapter
	CwdFile     string
	ChooserFile string
}

// New constructs a Manager rooted at cwd with one tab, starts the watcher
// and the precache queues, and wires their outputs onto bus. The returned
// Manager is inert until Run is called.
func New(ctx context.Context, cwd vurl.URL, bus *eventbus.Bus, providers *vfs.Registry, collab Collaborators, opts Options) (*Manager, error) {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.Default()
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}

	m := &Manager{
		Mimetype:     make(map[string]string),
		CwdFile:      opts.CwdFile,
		ChooserFile:  opts.ChooserFile,
		cfg:          cfg,
		bus:          bus,
		log:          log,
		providers:    providers,
		collab:       collab,
		img:          opts.Image,
		loaded:       precache.NewLoaded(cfg.Cache.MaxSize),
		pendingHover: make(map[int]vurl.URL),
		watched:      make(map[string]vurl.URL),
		ctx:          ctx,
	}

	local, ok := providers.For(vurl.URL{Scheme: vurl.Regular})
	if ok {
		w, err := watcher.New(local, func(op vfiles.FilesOp) {
			if err := bus.Emit(ctx, eventbus.Event{Kind: eventbus.KindFiles, Op: op}); err != nil {
				log.Debug("watcher emit dropped", "err", err)
			}
		})
		if err != nil {
			return nil, err
		}
		w.SetDebounce(cfg.Watcher.Debounce)
		m.watcher = w
	}

	m.sched = task.New(ctx, providers, log)
	m.sched.OnProgress = func(percent float64, left int) {
		m.emit(eventbus.Event{Kind: eventbus.KindProgress, Percent: percent, Left: left})
	}
	m.sched.OnError = func(j task.Job, err error) {
		m.notify("failed: " + j.From.Path + ": " + err.Error())
	}
	m.sched.OnDone = func(j task.Job) {
		if m.watcher != nil {
			m.watcher.Trigger(j.To)
			if j.Kind == task.KindMove {
				m.watcher.Trigger(j.From)
			}
		}
	}

	if collab.Mimer != nil {
		m.mimeQ = precache.NewMimeQueue(ctx, collab.Mimer, func(res map[string]string) {
			m.emit(eventbus.Event{Kind: eventbus.KindMimetype, Mimetypes: res})
		})
	}
	if collab.SizeOf != nil {
		m.sizeQ = precache.NewSizeQueue(ctx, collab.SizeOf, func(parent vurl.URL, sizes map[string]uint64) {
			m.emit(eventbus.Event{Kind: eventbus.KindFiles, Op: vfiles.FilesOp{
				Kind: vfiles.OpSize, Url: parent, Sizes: sizes,
			}})
		})
	}
	if collab.Thumbnail != nil {
		thumbs := cache.NewThumbnails(cfg.Cache.MaxSize)
		m.imageQ = precache.NewImageQueue(ctx, thumbs, collab.Thumbnail, func(u vurl.URL, skip int, path string) {
			m.emit(eventbus.Event{Kind: eventbus.KindRender})
		})
	}

	t := m.addTab(cwd)
	m.readDir(t.Current)
	if t.Parent != nil {
		m.readDir(t.Parent)
	}
	m.syncWatched()
	return m, nil
}

// ActiveTab returns the tab commands operate on. The tab list is never
// empty.
func (m *Manager) ActiveTab() *tab.Tab { return m.Tabs[m.Active] }

func (m *Manager) emit(e eventbus.Event) {
	if err := m.bus.Emit(m.ctx, e); err != nil {
		m.log.Debug("event dropped", "kind", e.Kind, "err", err)
	}
}

func (m *Manager) render() { m.emit(eventbus.Event{Kind: eventbus.KindRender}) }

func (m *Manager) notify(msg string) {
	m.log.Warn(msg)
	if m.collab.Notify != nil {
		m.collab.Notify(msg)
	}
}

// addTab appends a new tab rooted at cwd and makes it active.
func (m *Manager) addTab(cwd vurl.URL) *tab.Tab {
	t := tab.New(cwd)
	t.Idx = len(m.Tabs)
	t.ShowHidden = m.cfg.Manager.ShowHidden
	t.Sorter = sorterFromConfig(m.cfg.Sort)
	m.configureFolder(t.Current)
	if pu, ok := cwd.ParentURL(); ok {
		t.Parent = folder.New(pu)
		m.configureFolder(t.Parent)
	}
	t.ApplyFilesAttrs()

	m.Tabs = append(m.Tabs, t)
	m.Active = len(m.Tabs) - 1
	m.previews = append(m.previews, m.newPreviewTask())
	m.skips = append(m.skips, 0)
	return t
}

// TabCreate opens a new tab at cwd, reads it, and re-syncs the watcher.
func (m *Manager) TabCreate(cwd vurl.URL) {
	t := m.addTab(cwd)
	m.readDir(t.Current)
	if t.Parent != nil {
		m.readDir(t.Parent)
	}
	m.syncWatched()
	m.render()
}

// TabSwitch activates tab i; an out-of-range i is ignored.
func (m *Manager) TabSwitch(i int) {
	if i < 0 || i >= len(m.Tabs) || i == m.Active {
		return
	}
	m.Active = i
	m.reissuePreview(m.ActiveTab())
	m.render()
}

// TabClose removes tab i, keeping the list non-empty.
func (m *Manager) TabClose(i int) {
	if len(m.Tabs) <= 1 || i < 0 || i >= len(m.Tabs) {
		return
	}
	m.Tabs = append(m.Tabs[:i], m.Tabs[i+1:]...)
	m.previews = append(m.previews[:i], m.previews[i+1:]...)
	m.skips = append(m.skips[:i], m.skips[i+1:]...)
	for j, t := range m.Tabs {
		t.Idx = j
	}
	if m.Active >= len(m.Tabs) {
		m.Active = len(m.Tabs) - 1
	}
	m.syncWatched()
	m.render()
}

func (m *Manager) configureFolder(f *folder.Folder) {
	f.Scrolloff = m.cfg.Manager.Scrolloff
	if f.Limit <= 0 {
		f.Limit = 30
	}
	f.OnPageChange = func(page int, _ vurl.URL) {
		m.emit(eventbus.Event{Kind: eventbus.KindPages, Page: page})
	}
}

func (m *Manager) newPreviewTask() *preview.Task {
	local, _ := m.providers.For(vurl.URL{Scheme: vurl.Regular})
	deps := preview.Deps{
		Provider:      local,
		Image:         m.img,
		PreviewHeight: 30,
		Style:         m.cfg.Preview.Style,
	}
	return preview.New(deps,
		func(lock tab.Preview) {
			m.emit(eventbus.Event{Kind: eventbus.KindPreview, Lock: &lock})
		},
		func(max int, u vurl.URL) {
			m.emit(eventbus.Event{Kind: eventbus.KindPeek, PeekMax: max, PeekURL: u})
		},
	)
}

func sorterFromConfig(sc config.SortConfig) vfiles.Sorter {
	by := vfiles.SortAlphabetical
	switch sc.By {
	case "none":
		by = vfiles.SortNone
	case "natural":
		by = vfiles.SortNatural
	case "modified":
		by = vfiles.SortModified
	case "created":
		by = vfiles.SortCreated
	case "extension":
		by = vfiles.SortExtension
	case "size":
		by = vfiles.SortSize
	}
	return vfiles.Sorter{By: by, Sensitive: sc.Sensitive, Reverse: sc.Reverse, DirFirst: sc.DirFirst}
}

// syncWatched diffs the set of cwd/parent urls across all tabs against
// what the watcher currently covers: unwatch removed, watch added, then
// the watcher reconciles its linked symlink pairs itself.
func (m *Manager) syncWatched() {
	if m.watcher == nil {
		return
	}
	desired := make(map[string]vurl.URL)
	for _, t := range m.Tabs {
		if t.Current.Cwd.IsRegular() {
			desired[t.Current.Cwd.Path] = t.Current.Cwd
		}
		if t.Parent != nil && t.Parent.Cwd.IsRegular() {
			desired[t.Parent.Cwd.Path] = t.Parent.Cwd
		}
	}
	for p, u := range m.watched {
		if _, keep := desired[p]; !keep {
			m.watcher.Unwatch(u)
			delete(m.watched, p)
		}
	}
	for p, u := range desired {
		if _, have := m.watched[p]; !have {
			if err := m.watcher.Watch(u); err != nil {
				m.log.Debug("watch failed", "path", p, "err", err)
				continue
			}
			m.watched[p] = u
		}
	}
}

// mimeFor returns the known or guessed mimetype for a file: the shared
// map first, then the directory guess
func (m *Manager) mimeFor(t *tab.Tab, f vfiles.File) string {
	if mt, ok := m.Mimetype[f.URL.String()]; ok {
		return mt
	}
	if f.IsDir() || m.guessFolder(t, f.URL) {
		return "inode/directory"
	}
	return ""
}

// guessFolder implements mimetype guessing for a path presumed
// to be a directory: (1) the parent folder's entries contain a dir with a
// matching urn, or (2) one of the tab's history folders knows the path as
// a dir.
func (m *Manager) guessFolder(t *tab.Tab, u vurl.URL) bool {
	if pu, ok := u.ParentURL(); ok {
		var pf *folder.Folder
		if t.Current.Cwd.Equal(pu) {
			pf = t.Current
		} else if t.Parent != nil && t.Parent.Cwd.Equal(pu) {
			pf = t.Parent
		} else if hf, ok := t.History[pu]; ok {
			pf = hf
		}
		if pf != nil {
			if pos, ok := pf.Files.Position(u.Urn()); ok {
				if f, ok := pf.Files.Get(pos); ok {
					return f.IsDir()
				}
			}
		}
	}
	if _, ok := t.History[u]; ok {
		return true
	}
	return false
}

// MergeMimetype folds a Mimetype event into the shared map, queues
// thumbnails for newly-classified image-family entries, and re-issues the
// preview when the hovered file just got classified.
func (m *Manager) MergeMimetype(res map[string]string) {
	hoveredChanged := false
	t := m.ActiveTab()
	hovered, hasHovered := t.Current.Hovered()

	for key, mt := range res {
		m.Mimetype[key] = mt
		if hasHovered && hovered.URL.String() == key {
			hoveredChanged = true
		}
		if m.imageQ != nil {
			kind := preview.ClassifyMime(mt, "")
			if kind.ShowsAsImage() {
				if u, err := vurl.Parse(key); err == nil {
					plugin := int(kind)
					if !m.loaded.Attempted(u, plugin) {
						m.loaded.MarkAttempted(u, plugin)
						m.imageQ.Push(u, 0)
					}
				}
			}
		}
	}

	if hoveredChanged {
		m.reissuePreview(t)
	}
	m.render()
}

// yankToClipboard mirrors the register to the OS clipboard as
// newline-separated paths, best-effort.
func (m *Manager) yankToClipboard() {
	if len(m.Yanked.Urls) == 0 {
		return
	}
	paths := make([]string, 0, len(m.Yanked.Urls))
	for _, u := range m.Yanked.Urls {
		paths = append(paths, u.Path)
	}
	if err := clipboard.WriteAll(strings.Join(paths, "\n")); err != nil {
		m.log.Debug("clipboard write failed", "err", err)
	}
}

// Close tears down the watcher; queues and the scheduler stop with the
// context passed to New.
func (m *Manager) Close() error {
	if m.watcher != nil {
		return m.watcher.Close()
	}
	return nil
}
