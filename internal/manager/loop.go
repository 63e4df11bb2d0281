package manager

import (
	"context"
	"os"

	"github.com/marcus/ember/internal/eventbus"
	"github.com/marcus/ember/internal/folder"
	"github.com/marcus/ember/internal/image"
	"github.com/marcus/ember/internal/tab"
	"github.com/marcus/ember/internal/vfiles"
	"github.com/marcus/ember/internal/vurl"
)

// Run is the main loop: receive one event, dispatch it
// synchronously, drain whatever else is already queued, then collapse all
// Render emissions from that tick into a single frame.
func (m *Manager) Run(ctx context.Context) error {
	for {
		ev, ok := m.bus.Recv(ctx)
		if !ok {
			return ctx.Err()
		}
		if m.Dispatch(ev) {
			m.flushCwd()
			return nil
		}
		for {
			next, ok := m.bus.TryRecv()
			if !ok {
				break
			}
			if m.Dispatch(next) {
				m.flushCwd()
				return nil
			}
		}
		if m.bus.ConsumeRender() && m.collab.OnRender != nil {
			m.collab.OnRender()
		}
	}
}

// Dispatch handles one event on the main goroutine, reporting whether the
// loop should quit. Exported so tests (and an embedding application) can
// drive the state machine one event at a time.
func (m *Manager) Dispatch(ev eventbus.Event) (quit bool) {
	switch ev.Kind {
	case eventbus.KindQuit:
		return true
	case eventbus.KindKey:
		if m.collab.OnKey != nil && m.collab.OnKey(ev.Key) {
			m.render()
		}
	case eventbus.KindPaste:
		// Text paste is routed to the input popup by the widget layer;
		// with no popup visible there is nothing for the core to do.
	case eventbus.KindRender, eventbus.KindRenderPartial:
		// Render never reaches the channel (coalesced in Emit); kept for
		// exhaustiveness.
	case eventbus.KindResize:
		m.resize(ev.Cols, ev.Rows)
	case eventbus.KindStop:
		m.stop(ev.StopSuspend, ev.Ack)
	case eventbus.KindCall:
		if m.collab.Call != nil && m.collab.Call(ev.Command, ev.Layer) {
			m.render()
		}
	case eventbus.KindFiles:
		m.ApplyFiles(ev.Op)
	case eventbus.KindPages:
		m.precachePage(ev.Page)
	case eventbus.KindMimetype:
		m.MergeMimetype(ev.Mimetypes)
	case eventbus.KindHover:
		m.Hover(ev.HoverURL)
	case eventbus.KindPreview:
		m.InstallPreview(ev.Lock)
	case eventbus.KindPeek:
		m.Peek(ev.PeekMax, ev.PeekURL)
	case eventbus.KindSelect, eventbus.KindInput:
		// Popup lifecycle is owned by the widget layer; the core only
		// defines the ack-channel contract (dropping the receiver cancels).
	case eventbus.KindOpen:
		m.routeOpen(ev.Targets, ev.Opener, ev.Interactive)
	case eventbus.KindProgress:
		m.Progress = Progress{Percent: ev.Percent, Left: ev.Left}
		m.render()
	}
	return false
}

// ApplyFiles routes a FilesOp into every folder that shows op.Url, then
// reconciles the cross-cutting state a membership change touches:
// selections, the yank register, the mimetype map, pending forced hovers,
// and the hovered file's preview.
func (m *Manager) ApplyFiles(op vfiles.FilesOp) {
	t := m.ActiveTab()
	var beforeHover *vurl.URL
	if h, ok := t.Current.Hovered(); ok {
		u := h.URL
		beforeHover = &u
	}

	render := false
	for ti, tt := range m.Tabs {
		for _, f := range m.foldersFor(tt, op.Url) {
			changed := f.Update(op)
			if changed && ti == m.Active && (f == tt.Current || f == tt.Parent) {
				render = true
			}
		}
	}

	switch op.Kind {
	case vfiles.OpDeleting:
		for _, urn := range op.Urns {
			u := op.Url.Join(urn)
			for _, tt := range m.Tabs {
				tt.Selected.Remove(u)
			}
			delete(m.Mimetype, u.String())
			m.dropYanked(u)
		}
	case vfiles.OpCreating, vfiles.OpUpserting, vfiles.OpFull, vfiles.OpPart:
		if pending, ok := m.pendingHover[t.Idx]; ok && t.Current.Cwd.Covariant(op.Url) {
			if _, found := t.Current.Files.Position(pending.Urn()); found {
				t.Current.Hover(pending)
				delete(m.pendingHover, t.Idx)
				render = true
			}
		}
	case vfiles.OpDone:
		if m.sizeQ != nil && t.Sorter.By == vfiles.SortSize && t.Current.Cwd.Covariant(op.Url) {
			for _, f := range t.Current.Files.All() {
				if f.IsDir() {
					m.sizeQ.Push(f.URL)
				}
			}
		}
	}

	var afterHover *vurl.URL
	if h, ok := t.Current.Hovered(); ok {
		u := h.URL
		afterHover = &u
	}
	if !urlPtrEqual(beforeHover, afterHover) {
		m.reissuePreview(t)
		render = true
	}

	if render {
		m.render()
	}
}

func urlPtrEqual(a, b *vurl.URL) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}

// foldersFor collects the folders in t that display url: the current
// folder, the parent, and any history folder keyed by it.
func (m *Manager) foldersFor(t *tab.Tab, url vurl.URL) []*folder.Folder {
	var out []*folder.Folder
	if t.Current.Cwd.Covariant(url) {
		out = append(out, t.Current)
	}
	if t.Parent != nil && t.Parent.Cwd.Covariant(url) {
		out = append(out, t.Parent)
	}
	if hf, ok := t.History[url]; ok {
		out = append(out, hf)
	}
	return out
}

func (m *Manager) dropYanked(u vurl.URL) {
	if !m.Yanked.Contains(u) {
		return
	}
	kept := m.Yanked.Urls[:0]
	for _, v := range m.Yanked.Urls {
		if !v.Equal(u) {
			kept = append(kept, v)
		}
	}
	m.Yanked.Urls = kept
}

// reissuePreview starts (or skips, when nothing observable changed) the
// preview task for the active tab's hovered entry.
func (m *Manager) reissuePreview(t *tab.Tab) {
	pt := m.previews[t.Idx]
	h, ok := t.Current.Hovered()
	if !ok {
		m.hidePreviewImage(t)
		t.Preview = tab.Preview{}
		return
	}
	mime := m.mimeFor(t, h)
	if mime == "" {
		if m.mimeQ != nil {
			m.mimeQ.Push([]vurl.URL{h.URL})
		}
		return
	}
	if mime == "inode/directory" {
		// Warm the hovered directory's real listing through the normal
		// streaming read so the history folder is ready when the user
		// enters it; the preview task only renders a snapshot.
		hf, ok := t.History[h.URL]
		if !ok {
			hf = folder.New(h.URL)
			m.configureFolder(hf)
			t.History[h.URL] = hf
		}
		if hf.Stage != folder.StageLoaded && hf.Files.Ticket() == 0 {
			m.readDir(hf)
		}
	}
	skip := m.skips[t.Idx]
	if !t.Preview.Url.Equal(h.URL) {
		skip = 0
		m.skips[t.Idx] = 0
	}
	pt.Go(m.ctx, t.Preview, h.URL, mime, skip, true)
}

func (m *Manager) hidePreviewImage(t *tab.Tab) {
	if t.Preview.Data != tab.PreviewImage || m.img == nil {
		return
	}
	if rect, ok := t.Preview.ImageHandle.(image.Rect); ok {
		m.img.Hide(rect)
	}
}

// InstallPreview installs a completed lock, but only when it still
// matches the tab's current hover; completions may arrive out of order
// relative to navigation.
func (m *Manager) InstallPreview(lock *tab.Preview) {
	if lock == nil {
		return
	}
	t := m.ActiveTab()
	h, ok := t.Current.Hovered()
	if !ok || !h.URL.Covariant(lock.Url) {
		// Stale completion for an entry no longer hovered; if it painted
		// an image, undo it.
		if lock.Data == tab.PreviewImage && m.img != nil {
			if rect, ok := lock.ImageHandle.(image.Rect); ok {
				m.img.Hide(rect)
			}
		}
		return
	}
	t.Preview = *lock
	m.skips[t.Idx] = lock.Skip
	m.render()
}

// Peek handles both forms of the event: Peek(max, url) clamps the scroll
// bound after an Exceed, a bare Peek re-issues the preview at the current
// skip.
func (m *Manager) Peek(max int, url vurl.URL) {
	t := m.ActiveTab()
	if url.Path == "" {
		m.reissuePreview(t)
		return
	}
	h, ok := t.Current.Hovered()
	if !ok || !h.URL.Covariant(url) {
		return
	}
	if max < 0 {
		max = 0
	}
	m.skips[t.Idx] = max
	m.reissuePreview(t)
}

// resize resets every image preview and page index, then re-renders.
// Only the row count feeds the folder viewports; the widget layer owns
// column allocation.
func (m *Manager) resize(_, rows int) {
	if rows <= 0 {
		rows = 1
	}
	for _, t := range m.Tabs {
		m.hidePreviewImage(t)
		if t.Preview.Data == tab.PreviewImage {
			t.Preview = tab.Preview{}
		}
		for _, f := range []*folder.Folder{t.Current, t.Parent} {
			if f == nil {
				continue
			}
			f.Limit = rows
			f.Page = -1
			f.Arrow(0)
		}
	}
	m.reissuePreview(m.ActiveTab())
	m.render()
}

// stop suspends or resumes the terminal; on resume the frame and the
// hover's preview are reissued.
func (m *Manager) stop(suspend bool, ack chan struct{}) {
	if ack != nil {
		close(ack)
	}
	if !suspend {
		m.reissuePreview(m.ActiveTab())
		m.render()
	}
}

// precachePage queues mimetype classification for the entries visible
// around page.
func (m *Manager) precachePage(page int) {
	if m.mimeQ == nil {
		return
	}
	t := m.ActiveTab()
	var missing []vurl.URL
	for _, f := range t.Current.Paginate(page) {
		if f.IsDir() {
			continue
		}
		if _, known := m.Mimetype[f.URL.String()]; !known {
			missing = append(missing, f.URL)
		}
	}
	if len(missing) > 0 {
		m.mimeQ.Push(missing)
	}
}

// routeOpen is the tail of the open command: write the chooser file when
// one was requested, enter a lone directory target, otherwise hand the
// classified targets to the opener. Targets with no resolved mime are
// skipped.
func (m *Manager) routeOpen(targets []vurl.URL, opener string, interactive bool) {
	var resolved []vurl.URL
	for _, u := range targets {
		if _, known := m.Mimetype[u.String()]; known {
			resolved = append(resolved, u)
		}
	}
	if len(resolved) == 0 {
		return
	}

	if m.ChooserFile != "" && !interactive {
		m.writeChooser(resolved)
		m.emit(eventbus.Event{Kind: eventbus.KindQuit})
		return
	}

	if len(resolved) == 1 && m.Mimetype[resolved[0].String()] == "inode/directory" {
		m.Cd(resolved[0])
		return
	}

	if m.collab.Opener != nil {
		go m.collab.Opener(m.ctx, resolved, opener, interactive)
	}
}

func (m *Manager) writeChooser(targets []vurl.URL) {
	buf := make([]byte, 0, 256)
	for _, u := range targets {
		buf = append(buf, u.Path...)
		buf = append(buf, '\n')
	}
	if err := os.WriteFile(m.ChooserFile, buf, 0o644); err != nil {
		m.log.Warn("chooser write failed", "err", err)
	}
}

// flushCwd writes the active tab's final cwd on quit.
func (m *Manager) flushCwd() {
	if m.CwdFile == "" {
		return
	}
	cwd := m.ActiveTab().Current.Cwd.Path
	if err := os.WriteFile(m.CwdFile, []byte(cwd), 0o644); err != nil {
		m.log.Warn("cwd write failed", "err", err)
	}
}
