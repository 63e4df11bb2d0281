package manager

import (
	"errors"
	"io/fs"
	"strings"

	"github.com/marcus/ember/internal/eventbus"
	"github.com/marcus/ember/internal/folder"
	"github.com/marcus/ember/internal/tab"
	"github.com/marcus/ember/internal/task"
	"github.com/marcus/ember/internal/vfiles"
	"github.com/marcus/ember/internal/vurl"
)

// Cd normalizes target to absolute, pushes the current cwd onto the
// backstack, swaps in the history-backed (or fresh) Folder, and starts a
// directory read. Read failures surface as IOErr on the
// FilesOp bus, not as a return value.
func (m *Manager) Cd(target vurl.URL) {
	p, ok := m.providers.For(target)
	if !ok {
		m.notify("no provider for " + target.String())
		return
	}
	abs, err := p.Absolute(m.ctx, target)
	if err != nil {
		m.emitOp(vfiles.FilesOp{Kind: vfiles.OpIOErr, Url: target, Err: err})
		return
	}
	t := m.ActiveTab()
	if t.Current.Cwd.Equal(abs) {
		return
	}
	m.applyCwd(t, abs, true)
}

// Back and Forward walk the backstack without pushing onto it.
func (m *Manager) Back() {
	t := m.ActiveTab()
	if u, ok := t.Backstack.Back(t.Current.Cwd); ok {
		m.applyCwd(t, u, false)
	}
}

func (m *Manager) Forward() {
	t := m.ActiveTab()
	if u, ok := t.Backstack.Forward(t.Current.Cwd); ok {
		m.applyCwd(t, u, false)
	}
}

// applyCwd is the shared cwd-switch path behind Cd/Back/Forward: stash the
// old folders into history, pull the target out, reconcile the parent,
// and kick off reads for anything not already loaded.
func (m *Manager) applyCwd(t *tab.Tab, target vurl.URL, push bool) {
	if push {
		t.Backstack.Push(t.Current.Cwd)
	}
	t.History[t.Current.Cwd] = t.Current
	if t.Parent != nil {
		t.History[t.Parent.Cwd] = t.Parent
	}

	t.Current = t.HistoryNew(target)
	m.configureFolder(t.Current)
	// Always re-stream the new cwd: a history folder may have gone stale
	// while unwatched, and the stream reconciles deletions on Done.
	m.readDir(t.Current)

	if pu, ok := target.ParentURL(); ok {
		t.Parent = t.HistoryNew(pu)
		m.configureFolder(t.Parent)
		if t.Parent.Stage != folder.StageLoaded {
			m.readDir(t.Parent)
		}
	} else {
		t.Parent = nil
	}

	t.ApplyFilesAttrs()
	delete(m.pendingHover, t.Idx)
	m.skips[t.Idx] = 0
	m.syncWatched()
	m.reissuePreview(t)
	m.render()
}

// Arrow moves the active cursor by step, keeping any visual-mode pending
// range in sync and re-issuing the preview for the newly hovered entry.
func (m *Manager) Arrow(step folder.Step) {
	t := m.ActiveTab()
	if !t.Current.Arrow(step) {
		return
	}
	t.Mode.Update(t.Current.Cursor)
	delete(m.pendingHover, t.Idx)
	t.ApplyFilesAttrs()
	m.reissuePreview(t)
	m.render()
}

// Hover moves the cursor to url's entry if present; if absent, the url is
// recorded so the cursor snaps to it when a later Files op makes it
// appear. A nil url just re-issues the preview.
func (m *Manager) Hover(url *vurl.URL) {
	t := m.ActiveTab()
	if url != nil {
		if _, ok := t.Current.Files.Position(url.Urn()); ok {
			if t.Current.Hover(*url) {
				t.Mode.Update(t.Current.Cursor)
			}
			delete(m.pendingHover, t.Idx)
		} else {
			m.pendingHover[t.Idx] = *url
		}
	}
	m.reissuePreview(t)
	m.render()
}

// Open collects the target set, resolves unknown mimetypes through the
// external classifier, and re-enters the bus as an Open event once every
// target is classified. Targets whose mime cannot be
// resolved are skipped by the open router.
func (m *Manager) Open(hovered, interactive bool, opener string) {
	t := m.ActiveTab()
	var targets []vurl.URL
	if hovered {
		if h, ok := t.Current.Hovered(); ok {
			targets = append(targets, h.URL)
		}
	} else {
		targets = t.SelectedOrHovered()
	}
	if len(targets) == 0 {
		return
	}

	var unknown []vurl.URL
	for _, u := range targets {
		if _, known := m.Mimetype[u.String()]; known {
			continue
		}
		if m.guessFolderURL(t, u) {
			m.Mimetype[u.String()] = "inode/directory"
			continue
		}
		unknown = append(unknown, u)
	}

	open := eventbus.Event{Kind: eventbus.KindOpen, Targets: targets, Opener: opener, Interactive: interactive}
	if len(unknown) > 0 && m.collab.Mimer != nil {
		go func() {
			if res := m.collab.Mimer(m.ctx, unknown); len(res) > 0 {
				m.emit(eventbus.Event{Kind: eventbus.KindMimetype, Mimetypes: res})
			}
			m.emit(open)
		}()
		return
	}
	m.emit(open)
}

// guessFolderURL is guessFolder for a bare url (no File row at hand).
func (m *Manager) guessFolderURL(t *tab.Tab, u vurl.URL) bool {
	return m.guessFolder(t, u)
}

// RenameEmpty selects which part of the name the Input popup starts
// without.
type RenameEmpty string

const (
	RenameEmptyNone RenameEmpty = ""
	RenameEmptyStem RenameEmpty = "stem"
	RenameEmptyExt  RenameEmpty = "ext"
	RenameEmptyAll  RenameEmpty = "all"
)

// Rename prompts for a new name for the hovered entry (or bulk-renames
// the selection when more than one entry is selected and hovered is
// false). Everything interactive or I/O-bound runs on a spawned
// goroutine; results re-enter through Files/Hover events.
func (m *Manager) Rename(hovered, force bool, empty RenameEmpty, cursor int) {
	t := m.ActiveTab()
	if !hovered && t.Selected.Len() > 1 {
		urls := t.SelectedOrHovered()
		go m.bulkRename(urls)
		return
	}
	h, ok := t.Current.Hovered()
	if !ok || m.collab.Prompt == nil {
		return
	}

	name := h.URL.Urn()
	initial, pos := renameInitial(name, empty, cursor)
	go func() {
		newName, ok := m.collab.Prompt(m.ctx, "Rename:", initial, pos)
		if !ok || newName == "" || newName == name {
			return
		}
		m.doRename(h, newName, force)
	}()
}

func renameInitial(name string, empty RenameEmpty, cursor int) (string, int) {
	stem, ext := name, ""
	if i := strings.LastIndexByte(name, '.'); i > 0 {
		stem, ext = name[:i], name[i:]
	}
	switch empty {
	case RenameEmptyAll:
		return "", 0
	case RenameEmptyStem:
		return ext, 0
	case RenameEmptyExt:
		return stem, len(stem)
	default:
		if cursor < 0 || cursor > len(name) {
			cursor = len(name)
		}
		return name, cursor
	}
}

// doRename performs the rename and emits the Deleting/Upserting pair that
// keeps every interested folder coherent without waiting for the watcher.
// Runs off the main loop; only emits events.
func (m *Manager) doRename(h vfiles.File, newName string, force bool) {
	from := h.URL
	fromParent, ok := from.ParentURL()
	if !ok {
		return
	}
	to := fromParent.Join(newName)
	p, ok := m.providers.For(from)
	if !ok {
		return
	}

	overwrote := false
	if _, err := p.Metadata(m.ctx, to); err == nil {
		same := from.Path == to.Path || (p.Casefold() && strings.EqualFold(from.Path, to.Path))
		if !same {
			if !force {
				if m.collab.Confirm == nil || !m.collab.Confirm(m.ctx, "Overwrite "+to.Path+"?") {
					return
				}
			}
			overwrote = true
		}
	}

	if err := p.Rename(m.ctx, from, to); err != nil {
		// A source that vanished under us is tolerated; the watcher's
		// Deleting will catch up.
		if !errors.Is(err, fs.ErrNotExist) {
			m.notify("rename failed: " + err.Error())
		}
		return
	}

	toParent, _ := to.ParentURL()
	renamed := vfiles.File{URL: to, Cha: h.Cha}
	if fromParent.Equal(toParent) {
		urns := []string{from.Urn()}
		if overwrote {
			urns = append(urns, to.Urn())
		}
		m.emitOp(vfiles.FilesOp{Kind: vfiles.OpDeleting, Url: fromParent, Urns: urns})
		m.emitOp(vfiles.FilesOp{Kind: vfiles.OpUpserting, Url: fromParent, Files: []vfiles.File{renamed}})
	} else {
		m.emitOp(vfiles.FilesOp{Kind: vfiles.OpDeleting, Url: fromParent, Urns: []string{from.Urn()}})
		m.emitOp(vfiles.FilesOp{Kind: vfiles.OpUpserting, Url: toParent, Files: []vfiles.File{renamed}})
	}
	m.emit(eventbus.Event{Kind: eventbus.KindHover, HoverURL: &to})
}

// bulkRename hands the selected names to the external editor and applies
// the pairwise renames. Runs off the main loop.
func (m *Manager) bulkRename(urls []vurl.URL) {
	if m.collab.BulkEdit == nil {
		return
	}
	names := make([]string, len(urls))
	for i, u := range urls {
		names[i] = u.Urn()
	}
	edited, err := m.collab.BulkEdit(m.ctx, names)
	if err != nil {
		m.notify("bulk rename aborted: " + err.Error())
		return
	}
	if len(edited) != len(names) {
		m.notify("bulk rename aborted: name count changed")
		return
	}
	for i, u := range urls {
		if edited[i] == names[i] || edited[i] == "" {
			continue
		}
		parent, ok := u.ParentURL()
		if !ok {
			continue
		}
		p, ok := m.providers.For(u)
		if !ok {
			continue
		}
		to := parent.Join(edited[i])
		if err := p.Rename(m.ctx, u, to); err != nil {
			m.notify("rename failed: " + err.Error())
			continue
		}
		m.emitOp(vfiles.FilesOp{Kind: vfiles.OpDeleting, Url: parent, Urns: []string{u.Urn()}})
		meta, merr := p.Metadata(m.ctx, to)
		if merr != nil {
			continue
		}
		m.emitOp(vfiles.FilesOp{Kind: vfiles.OpUpserting, Url: parent, Files: []vfiles.File{{URL: to, Cha: meta}}})
	}
}

// Yank replaces the register with the current target set and mirrors it to the OS clipboard.
func (m *Manager) Yank(cut bool) {
	t := m.ActiveTab()
	urls := t.SelectedOrHovered()
	if len(urls) == 0 {
		return
	}
	m.Yanked = Yanked{Cut: cut, Urls: urls}
	m.yankToClipboard()
	m.render()
}

// Paste schedules a copy (or move, for a cut register) of every yanked
// url into the active cwd. A cut register is consumed; a copy register
// survives for repeated pastes.
func (m *Manager) Paste(force bool) {
	t := m.ActiveTab()
	dest := t.Current.Cwd
	kind := task.KindCopy
	if m.Yanked.Cut {
		kind = task.KindMove
	}
	for _, u := range m.Yanked.Urls {
		to := dest.Join(u.Urn())
		if u.Equal(to) {
			continue
		}
		if !m.sched.Push(task.Job{Kind: kind, From: u, To: to, Force: force}) {
			m.notify("task queue full, skipped " + u.Path)
		}
	}
	if m.Yanked.Cut {
		m.Yanked = Yanked{}
	}
	m.render()
}

// Refresh re-reads the current folder and its parent.
func (m *Manager) Refresh() {
	t := m.ActiveTab()
	m.readDir(t.Current)
	if t.Parent != nil {
		m.readDir(t.Parent)
	}
	if hf, ok := t.HoveredFolder(); ok {
		m.readDir(hf)
	}
}

// Escape unwinds one layer of transient state at a time: visual pending
// range, then finder, then selection, then the yank register.
func (m *Manager) Escape() {
	t := m.ActiveTab()
	switch {
	case t.Mode.IsVisual():
		t.Escape()
	case t.Finder != nil:
		t.Finder = nil
	case t.Selected.Len() > 0:
		t.Selected.Clear()
	default:
		m.Yanked = Yanked{}
	}
	m.render()
}

// Visual enters visual (or unset) mode anchored at the cursor.
func (m *Manager) Visual(unset bool) {
	m.ActiveTab().Visual(unset)
	m.render()
}

// ToggleSelect flips the hovered entry in the selection set.
func (m *Manager) ToggleSelect() {
	t := m.ActiveTab()
	h, ok := t.Current.Hovered()
	if !ok {
		return
	}
	if t.Selected.Contains(h.URL) {
		t.Selected.Remove(h.URL)
	} else {
		t.Selected.Add(h.URL)
	}
	m.render()
}

// SelectAll selects (state true) or deselects (state false) every visible
// entry in the current folder.
func (m *Manager) SelectAll(state bool) {
	t := m.ActiveTab()
	if !state {
		t.Selected.Clear()
		m.render()
		return
	}
	urls := make([]vurl.URL, 0, t.Current.Files.Len())
	for _, f := range t.Current.Files.All() {
		urls = append(urls, f.URL)
	}
	t.Selected.AddMany(urls, true)
	m.render()
}

// SetSorter swaps the active tab's sorter and re-applies it.
func (m *Manager) SetSorter(s vfiles.Sorter) {
	t := m.ActiveTab()
	t.Sorter = s
	t.ApplyFilesAttrs()
	m.render()
}

// ToggleHidden flips show_hidden for the active tab.
func (m *Manager) ToggleHidden() {
	t := m.ActiveTab()
	t.ShowHidden = !t.ShowHidden
	t.ApplyFilesAttrs()
	m.render()
}

// Seek scrolls the preview of the hovered file by delta lines.
func (m *Manager) Seek(delta int) {
	t := m.ActiveTab()
	skip := m.skips[t.Idx] + delta
	if skip < 0 {
		skip = 0
	}
	m.skips[t.Idx] = skip
	m.reissuePreview(t)
}
