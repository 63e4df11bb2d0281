package tab

import (
	"sort"

	"github.com/marcus/ember/internal/folder"
	"github.com/marcus/ember/internal/highlight"
	"github.com/marcus/ember/internal/vfiles"
	"github.com/marcus/ember/internal/vurl"
)

// PreviewData discriminates the preview lock payload: a folder listing,
// highlighted/plain text lines, or an image handle, exactly one of which
// is populated for a given lock.
type PreviewData int

const (
	PreviewNone PreviewData = iota
	PreviewFolder
	PreviewText
	PreviewImage
)

// Preview is the tab's current PreviewLock: the url/mime/skip triple that
// identifies what is being previewed, plus the rendered payload.
type Preview struct {
	Url  vurl.URL
	Mime string
	Skip int
	Data PreviewData

	FolderFiles []vfiles.File
	// TextLines holds unstyled text (archive listings, jq output);
	// StyledLines holds the highlighter's output for text files, whether
	// colored or its plain-mode fallback (unstyled spans). At most one is
	// populated for a PreviewText lock.
	TextLines   []string
	StyledLines []highlight.Line
	ImageHandle any
}

// Finder is the incremental-search state for a tab; the matching
// algorithm itself lives in the command layer, this only tracks position.
type Finder struct {
	Query   string
	Matched []int
	Cursor  int
}

// Tab is one pane's full navigation state: mode, current/parent folders,
// history, backstack, selection, finder, and preview lock.
type Tab struct {
	Idx     int
	Mode    Mode
	Current *folder.Folder
	Parent  *folder.Folder

	Backstack *Backstack
	History   map[vurl.URL]*folder.Folder
	Selected  *Selected

	Preview Preview
	Finder  *Finder

	ShowHidden bool
	Sorter     vfiles.Sorter
}

// New constructs a tab rooted at cwd.
func New(cwd vurl.URL) *Tab {
	return &Tab{
		Mode:      NewMode(),
		Current:   folder.New(cwd),
		Backstack: NewBackstack(),
		History:   make(map[vurl.URL]*folder.Folder),
		Selected:  NewSelected(),
	}
}

// HistoryNew removes and returns the cached Folder for url if present,
// otherwise constructs a fresh empty one.
func (t *Tab) HistoryNew(url vurl.URL) *folder.Folder {
	if f, ok := t.History[url]; ok {
		delete(t.History, url)
		return f
	}
	return folder.New(url)
}

// HoveredFolder returns the cached Folder for the currently hovered entry,
// if it is a directory and has history.
func (t *Tab) HoveredFolder() (*folder.Folder, bool) {
	h, ok := t.Current.Hovered()
	if !ok || !h.IsDir() {
		return nil, false
	}
	f, ok := t.History[h.URL]
	return f, ok
}

// SelectedOrHovered returns the selection if non-empty, otherwise the
// hovered file's url alone: the target set commands like open and yank
// operate on. Selected keeps no insertion order, so the urls come back
// path-sorted.
func (t *Tab) SelectedOrHovered() []vurl.URL {
	if t.Selected.Len() > 0 {
		urls := t.Selected.Urls()
		sort.Slice(urls, func(i, j int) bool { return urls[i].Path < urls[j].Path })
		return urls
	}
	if h, ok := t.Current.Hovered(); ok {
		return []vurl.URL{h.URL}
	}
	return nil
}

// ApplyFilesAttrs pushes the tab's show_hidden/sorter settings down into
// Current and (if loaded) the hovered child's cached Folder, and keeps
// Parent's cursor tracking the current cwd.
func (t *Tab) ApplyFilesAttrs() {
	apply := func(f *folder.Folder) {
		if f.Stage == folder.StageLoading {
			return
		}
		var hovered *vurl.URL
		if h, ok := f.Hovered(); ok && f.Tracing {
			u := h.URL
			hovered = &u
		}
		f.Files.ShowHidden = t.ShowHidden
		f.Files.Sorter = t.Sorter
		f.Files.Resort()
		f.Reposition(hovered)
	}

	apply(t.Current)

	if t.Parent != nil {
		apply(t.Parent)
		t.Parent.Hover(t.Current.Cwd)
		if h, ok := t.Parent.Hovered(); ok {
			t.Parent.Tracing = h.URL.Equal(t.Current.Cwd)
		} else {
			t.Parent.Tracing = false
		}
	}

	if h, ok := t.Current.Hovered(); ok && h.IsDir() {
		if f, ok := t.History[h.URL]; ok {
			apply(f)
		}
	}
}

// Cd pushes the prior cwd onto the backstack and swaps Current for the
// history-backed (or freshly constructed) Folder for target, used as
// given (no normalization). The caller is responsible for triggering the
// directory read.
func (t *Tab) Cd(target vurl.URL) *folder.Folder {
	prev := t.Current.Cwd
	t.Backstack.Push(prev)
	t.History[prev] = t.Current

	next := t.HistoryNew(target)
	t.Current = next
	return next
}

// Escape commits a visual mode's pending range into the selection set
// and returns to Normal; an already-Normal tab is left untouched.
func (t *Tab) Escape() {
	if !t.Mode.IsVisual() {
		return
	}
	for idx := range t.Mode.Pending {
		if f, ok := t.Current.Files.Get(idx); ok {
			if t.Mode.Kind == Unset {
				t.Selected.Remove(f.URL)
			} else {
				t.Selected.Add(f.URL)
			}
		}
	}
	t.Mode = t.Mode.Escape()
}

// Visual enters Visual (or Unset, when unset is true) mode anchored at
// the current cursor.
func (t *Tab) Visual(unset bool) {
	t.Mode = StartVisual(t.Current.Cursor, unset)
}
