package tab

import (
	"testing"
	"time"

	"github.com/marcus/ember/internal/cha"
	"github.com/marcus/ember/internal/vfiles"
	"github.com/marcus/ember/internal/vurl"
)

func TestModeVisualTransitionAndEscapeCommits(t *testing.T) {
	tb := New(vurl.FromPath("/d"))
	tb.Current.Files.UpdateFull([]vfiles.File{
		{URL: vurl.FromPath("/d/a"), Cha: cha.Cha{MTime: time.Now()}},
		{URL: vurl.FromPath("/d/b"), Cha: cha.Cha{MTime: time.Now()}},
		{URL: vurl.FromPath("/d/c"), Cha: cha.Cha{MTime: time.Now()}},
	})
	tb.Current.Files.Sorter = vfiles.Sorter{By: vfiles.SortAlphabetical}
	tb.Current.Arrow(0)

	tb.Visual(false)
	if tb.Mode.Kind != Visual {
		t.Fatalf("expected Visual mode after Visual(false)")
	}

	tb.Current.Arrow(2)
	tb.Mode.Update(tb.Current.Cursor)
	if len(tb.Mode.Pending) != 3 {
		t.Fatalf("expected pending range of 3, got %d", len(tb.Mode.Pending))
	}

	tb.Escape()
	if tb.Mode.Kind != Normal {
		t.Fatalf("expected Normal after escape")
	}
	if tb.Selected.Len() != 3 {
		t.Fatalf("expected escape to commit pending range into selection, got %d", tb.Selected.Len())
	}
}

func TestEscapeOnNormalIsNoop(t *testing.T) {
	tb := New(vurl.FromPath("/d"))
	tb.Escape()
	if tb.Mode.Kind != Normal || tb.Selected.Len() != 0 {
		t.Fatalf("escape on Normal must be a no-op")
	}
}

func TestCdPushesBackstackAndSwapsCurrent(t *testing.T) {
	tb := New(vurl.FromPath("/a"))
	tb.Cd(vurl.FromPath("/b"))
	if tb.Current.Cwd.Path != "/b" {
		t.Fatalf("current cwd = %s, want /b", tb.Current.Cwd.Path)
	}
	if !tb.Backstack.CanBack() {
		t.Fatalf("expected backstack to record /a")
	}
	prev, ok := tb.Backstack.Back(tb.Current.Cwd)
	if !ok || prev.Path != "/a" {
		t.Fatalf("backstack.Back() = %v, want /a", prev)
	}
}

func TestHistoryNewReusesCachedFolder(t *testing.T) {
	tb := New(vurl.FromPath("/a"))
	target := vurl.FromPath("/b")
	cached := tb.HistoryNew(target)
	tb.History[target] = cached
	again := tb.HistoryNew(target)
	if again != cached {
		t.Fatalf("expected HistoryNew to reuse the cached Folder instance")
	}
	if _, stillCached := tb.History[target]; stillCached {
		t.Fatalf("HistoryNew must remove the entry once claimed")
	}
}

func TestBackstackForwardRoundTrips(t *testing.T) {
	b := NewBackstack()
	a, c := vurl.FromPath("/a"), vurl.FromPath("/c")
	b.Push(a)
	back, ok := b.Back(c)
	if !ok || back.Path != "/a" {
		t.Fatalf("Back() = %v, want /a", back)
	}
	fwd, ok := b.Forward(back)
	if !ok || fwd.Path != "/c" {
		t.Fatalf("Forward() = %v, want /c", fwd)
	}
}
