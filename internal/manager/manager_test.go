package manager

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/marcus/ember/internal/cha"
	"github.com/marcus/ember/internal/eventbus"
	"github.com/marcus/ember/internal/folder"
	"github.com/marcus/ember/internal/vfiles"
	"github.com/marcus/ember/internal/vfs"
	"github.com/marcus/ember/internal/vurl"
)

func newTestManager(t *testing.T, cwd string, collab Collaborators) *Manager {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	bus := eventbus.New(256)
	reg := vfs.NewRegistry()
	reg.Register(vurl.Regular, vfs.NewLocal())

	m, err := New(ctx, vurl.FromPath(cwd), bus, reg, collab, Options{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { m.Close() })
	return m
}

// driveUntil pumps bus events through Dispatch until cond holds or the
// deadline passes.
func driveUntil(t *testing.T, m *Manager, cond func() bool) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	for !cond() {
		ev, ok := m.bus.Recv(ctx)
		if !ok {
			t.Fatalf("timed out driving the event loop")
		}
		m.Dispatch(ev)
	}
}

func waitLoaded(t *testing.T, m *Manager) {
	t.Helper()
	driveUntil(t, m, func() bool {
		return m.ActiveTab().Current.Stage == folder.StageLoaded
	})
}

func write(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return p
}

func TestCdReadsDirectory(t *testing.T) {
	dir := t.TempDir()
	write(t, dir, "a.txt", "a")
	write(t, dir, "b.txt", "b")
	if err := os.Mkdir(filepath.Join(dir, "sub"), 0o755); err != nil {
		t.Fatal(err)
	}

	m := newTestManager(t, dir, Collaborators{})
	waitLoaded(t, m)

	f := m.ActiveTab().Current
	if f.Files.Len() != 3 {
		t.Fatalf("len = %d, want 3", f.Files.Len())
	}
	// dir-first default: sub sorts before the files
	first, _ := f.Files.Get(0)
	if first.Urn() != "sub" {
		t.Fatalf("first = %q, want sub (dir-first)", first.Urn())
	}
}

func TestRenameWithOverwriteConfirmation(t *testing.T) {
	dir := t.TempDir()
	write(t, dir, "x", "xx")
	write(t, dir, "y", "yyyy")

	var confirmed bool
	collab := Collaborators{
		Prompt: func(_ context.Context, _, initial string, _ int) (string, bool) {
			if initial != "x" {
				t.Errorf("prompt initial = %q, want x", initial)
			}
			return "y", true
		},
		Confirm: func(_ context.Context, _ string) bool {
			confirmed = true
			return true
		},
	}
	m := newTestManager(t, dir, collab)
	waitLoaded(t, m)

	hx := vurl.FromPath(filepath.Join(dir, "x"))
	m.Hover(&hx)
	if h, _ := m.ActiveTab().Current.Hovered(); h.Urn() != "x" {
		t.Fatalf("setup: hovered %q, want x", h.Urn())
	}

	var deleting, upserting *vfiles.FilesOp
	m.Rename(true, false, RenameEmptyNone, -1)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	for {
		h, ok := m.ActiveTab().Current.Hovered()
		if ok && h.Urn() == "y" && h.Cha.Len == 2 {
			break
		}
		ev, ok2 := m.bus.Recv(ctx)
		if !ok2 {
			t.Fatalf("timed out waiting for rename events")
		}
		if ev.Kind == eventbus.KindFiles {
			op := ev.Op
			switch op.Kind {
			case vfiles.OpDeleting:
				if deleting == nil {
					deleting = &op
				}
			case vfiles.OpUpserting:
				if upserting == nil {
					upserting = &op
				}
			}
		}
		m.Dispatch(ev)
	}

	if !confirmed {
		t.Fatalf("overwrite must require confirmation when force=false")
	}
	if deleting == nil || !hasUrn(deleting.Urns, "y") {
		t.Fatalf("expected a Deleting op covering the overwritten urn, got %+v", deleting)
	}
	if upserting == nil || len(upserting.Files) != 1 || upserting.Files[0].Urn() != "y" {
		t.Fatalf("expected Upserting of y, got %+v", upserting)
	}
	if upserting.Files[0].Cha.Len != 2 {
		t.Fatalf("upserted file must carry the renamed file's metadata (len 2), got %d", upserting.Files[0].Cha.Len)
	}

	data, err := os.ReadFile(filepath.Join(dir, "y"))
	if err != nil || string(data) != "xx" {
		t.Fatalf("on-disk y = %q/%v, want xx", data, err)
	}
	if _, err := os.Stat(filepath.Join(dir, "x")); !os.IsNotExist(err) {
		t.Fatalf("x should be gone after rename")
	}
}

func hasUrn(urns []string, want string) bool {
	for _, u := range urns {
		if u == want {
			return true
		}
	}
	return false
}

func TestStalePartIsDiscarded(t *testing.T) {
	dir := t.TempDir()
	write(t, dir, "a", "a")

	m := newTestManager(t, dir, Collaborators{})
	waitLoaded(t, m)

	f := m.ActiveTab().Current
	stale := f.Files.Ticket()

	// Refresh allocates a newer ticket on the main goroutine before the
	// stale Part can arrive.
	m.Refresh()
	if f.Files.Ticket() <= stale {
		t.Fatalf("refresh must allocate a newer ticket")
	}

	ghost := vfiles.File{URL: vurl.FromPath(filepath.Join(dir, "ghost")), Cha: cha.Cha{}}
	m.ApplyFiles(vfiles.FilesOp{Kind: vfiles.OpPart, Url: f.Cwd, Files: []vfiles.File{ghost}, Ticket: stale})

	if _, found := f.Files.Position("ghost"); found {
		t.Fatalf("stale Part must be discarded, ghost entry applied")
	}

	waitLoaded(t, m)
	if _, found := f.Files.Position("ghost"); found {
		t.Fatalf("ghost reappeared after the fresh read completed")
	}
}

func TestForcedHoverSnapsWhenFileAppears(t *testing.T) {
	dir := t.TempDir()
	write(t, dir, "a", "a")

	m := newTestManager(t, dir, Collaborators{})
	waitLoaded(t, m)

	target := vurl.FromPath(filepath.Join(dir, "new"))
	m.Hover(&target)
	if h, _ := m.ActiveTab().Current.Hovered(); h.Urn() != "a" {
		t.Fatalf("cursor must stay put while the target is absent")
	}

	m.ApplyFiles(vfiles.FilesOp{
		Kind:  vfiles.OpUpserting,
		Url:   m.ActiveTab().Current.Cwd,
		Files: []vfiles.File{{URL: target, Cha: cha.Cha{Len: 1}}},
	})

	h, ok := m.ActiveTab().Current.Hovered()
	if !ok || h.Urn() != "new" {
		t.Fatalf("cursor must snap to the forced-hover target, hovering %q", h.Urn())
	}
}

func TestDeletingDropsSelectionYankAndMimetype(t *testing.T) {
	dir := t.TempDir()
	write(t, dir, "a", "a")
	write(t, dir, "b", "b")

	m := newTestManager(t, dir, Collaborators{})
	waitLoaded(t, m)

	ua := vurl.FromPath(filepath.Join(dir, "a"))
	m.Hover(&ua)
	m.ToggleSelect()
	m.Yank(false)
	m.Mimetype[ua.String()] = "text/plain"

	if m.ActiveTab().Selected.Len() != 1 || !m.Yanked.Contains(ua) {
		t.Fatalf("setup: selection/yank not recorded")
	}

	m.ApplyFiles(vfiles.FilesOp{Kind: vfiles.OpDeleting, Url: m.ActiveTab().Current.Cwd, Urns: []string{"a"}})

	if m.ActiveTab().Selected.Len() != 0 {
		t.Fatalf("selection must drop a deleted url")
	}
	if m.Yanked.Contains(ua) {
		t.Fatalf("yank register must drop a deleted url")
	}
	if _, ok := m.Mimetype[ua.String()]; ok {
		t.Fatalf("mimetype map must drop a deleted url")
	}
}

func TestPasteCopiesIntoCwd(t *testing.T) {
	src := t.TempDir()
	dst := t.TempDir()
	write(t, src, "f.txt", "payload")

	m := newTestManager(t, src, Collaborators{})
	waitLoaded(t, m)

	uf := vurl.FromPath(filepath.Join(src, "f.txt"))
	m.Hover(&uf)
	m.Yank(false)
	m.Cd(vurl.FromPath(dst))
	m.Paste(false)

	deadline := time.Now().Add(3 * time.Second)
	dest := filepath.Join(dst, "f.txt")
	for {
		if data, err := os.ReadFile(dest); err == nil && string(data) == "payload" {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("pasted file never appeared at %s", dest)
		}
		for {
			ev, ok := m.bus.TryRecv()
			if !ok {
				break
			}
			m.Dispatch(ev)
		}
		time.Sleep(10 * time.Millisecond)
	}

	if _, err := os.Stat(filepath.Join(src, "f.txt")); err != nil {
		t.Fatalf("copy (not cut) must leave the source intact: %v", err)
	}
}

func TestEscapeUnwindsOneLayerAtATime(t *testing.T) {
	dir := t.TempDir()
	write(t, dir, "a", "a")
	write(t, dir, "b", "b")

	m := newTestManager(t, dir, Collaborators{})
	waitLoaded(t, m)
	tb := m.ActiveTab()

	m.Visual(false)
	m.Arrow(1)
	if len(tb.Mode.Pending) != 2 {
		t.Fatalf("pending = %d, want 2", len(tb.Mode.Pending))
	}
	m.Escape()
	if tb.Mode.IsVisual() {
		t.Fatalf("escape must leave visual mode")
	}
	if tb.Selected.Len() != 2 {
		t.Fatalf("escape must commit the pending range, selected = %d", tb.Selected.Len())
	}

	m.Escape()
	if tb.Selected.Len() != 0 {
		t.Fatalf("second escape must clear the selection")
	}

	m.Yank(false)
	if len(m.Yanked.Urls) == 0 {
		t.Fatalf("setup: yank recorded nothing")
	}
	m.Escape()
	if len(m.Yanked.Urls) != 0 {
		t.Fatalf("third escape must clear the yank register")
	}
}

func TestGuessFolderFromParentListing(t *testing.T) {
	dir := t.TempDir()
	write(t, dir, "file", "f")
	if err := os.Mkdir(filepath.Join(dir, "d"), 0o755); err != nil {
		t.Fatal(err)
	}

	m := newTestManager(t, dir, Collaborators{})
	waitLoaded(t, m)
	tb := m.ActiveTab()

	if !m.guessFolder(tb, vurl.FromPath(filepath.Join(dir, "d"))) {
		t.Fatalf("a dir listed in the current folder must guess as a folder")
	}
	if m.guessFolder(tb, vurl.FromPath(filepath.Join(dir, "file"))) {
		t.Fatalf("a plain file must not guess as a folder")
	}
}

func TestOpenWritesChooserFileAndQuits(t *testing.T) {
	dir := t.TempDir()
	fp := write(t, dir, "a.txt", "a")

	m := newTestManager(t, dir, Collaborators{})
	waitLoaded(t, m)

	chooser := filepath.Join(t.TempDir(), "chosen")
	m.ChooserFile = chooser

	ua := vurl.FromPath(fp)
	m.Hover(&ua)
	m.Mimetype[ua.String()] = "text/plain"
	m.Open(true, false, "")

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	for {
		ev, ok := m.bus.Recv(ctx)
		if !ok {
			t.Fatalf("timed out waiting for quit")
		}
		if ev.Kind == eventbus.KindQuit {
			break
		}
		m.Dispatch(ev)
	}

	data, err := os.ReadFile(chooser)
	if err != nil {
		t.Fatalf("chooser file: %v", err)
	}
	if string(data) != fp+"\n" {
		t.Fatalf("chooser = %q, want %q", data, fp+"\n")
	}
}

func TestQuitFlushesCwdFile(t *testing.T) {
	dir := t.TempDir()
	write(t, dir, "a", "a")

	m := newTestManager(t, dir, Collaborators{})
	waitLoaded(t, m)
	m.CwdFile = filepath.Join(t.TempDir(), "cwd")

	done := make(chan error, 1)
	go func() { done <- m.Run(context.Background()) }()
	m.emit(eventbus.Event{Kind: eventbus.KindQuit})

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("Run did not return after Quit")
	}

	data, err := os.ReadFile(m.CwdFile)
	if err != nil || string(data) != dir {
		t.Fatalf("cwd file = %q/%v, want %q", data, err, dir)
	}
}

func TestBackReturnsToPreviousCwd(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "sub")
	if err := os.Mkdir(sub, 0o755); err != nil {
		t.Fatal(err)
	}

	m := newTestManager(t, dir, Collaborators{})
	waitLoaded(t, m)

	m.Cd(vurl.FromPath(sub))
	if m.ActiveTab().Current.Cwd.Path != sub {
		t.Fatalf("cd failed")
	}
	m.Back()
	if m.ActiveTab().Current.Cwd.Path != dir {
		t.Fatalf("back = %q, want %q", m.ActiveTab().Current.Cwd.Path, dir)
	}
	m.Forward()
	if m.ActiveTab().Current.Cwd.Path != sub {
		t.Fatalf("forward = %q, want %q", m.ActiveTab().Current.Cwd.Path, sub)
	}
}
