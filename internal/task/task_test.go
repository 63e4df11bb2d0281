package task

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/marcus/ember/internal/vfs"
	"github.com/marcus/ember/internal/vurl"
)

func newTestScheduler(t *testing.T) *Scheduler {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	reg := vfs.NewRegistry()
	reg.Register(vurl.Regular, vfs.NewLocal())
	return New(ctx, reg, nil)
}

func waitJob(t *testing.T, done <-chan struct{}) {
	t.Helper()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatalf("job never completed")
	}
}

func TestCopyReportsProgress(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	dst := filepath.Join(dir, "dst")
	if err := os.WriteFile(src, make([]byte, 1<<20), 0o644); err != nil {
		t.Fatal(err)
	}

	s := newTestScheduler(t)
	var progressed atomic.Int64
	s.OnProgress = func(percent float64, left int) { progressed.Add(1) }
	done := make(chan struct{})
	s.OnDone = func(Job) { close(done) }

	if !s.Push(Job{Kind: KindCopy, From: vurl.FromPath(src), To: vurl.FromPath(dst)}) {
		t.Fatalf("push rejected")
	}
	waitJob(t, done)

	info, err := os.Stat(dst)
	if err != nil || info.Size() != 1<<20 {
		t.Fatalf("dst = %v/%v, want 1MiB file", info, err)
	}
	if progressed.Load() == 0 {
		t.Fatalf("expected at least one progress report")
	}
	if _, err := os.Stat(src); err != nil {
		t.Fatalf("copy must leave the source: %v", err)
	}
}

func TestMoveRemovesSource(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	dst := filepath.Join(dir, "dst")
	if err := os.WriteFile(src, []byte("m"), 0o644); err != nil {
		t.Fatal(err)
	}

	s := newTestScheduler(t)
	done := make(chan struct{})
	s.OnDone = func(Job) { close(done) }

	s.Push(Job{Kind: KindMove, From: vurl.FromPath(src), To: vurl.FromPath(dst)})
	waitJob(t, done)

	if _, err := os.Stat(src); !os.IsNotExist(err) {
		t.Fatalf("move must remove the source")
	}
	if data, err := os.ReadFile(dst); err != nil || string(data) != "m" {
		t.Fatalf("dst = %q/%v", data, err)
	}
}

func TestExistingDestinationWithoutForce(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	dst := filepath.Join(dir, "dst")
	os.WriteFile(src, []byte("new"), 0o644)
	os.WriteFile(dst, []byte("old"), 0o644)

	s := newTestScheduler(t)
	errs := make(chan error, 1)
	s.OnError = func(_ Job, err error) { errs <- err }

	s.Push(Job{Kind: KindCopy, From: vurl.FromPath(src), To: vurl.FromPath(dst)})

	select {
	case err := <-errs:
		if !errors.Is(err, ErrExists) {
			t.Fatalf("err = %v, want ErrExists", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("expected an error for an existing destination")
	}

	if data, _ := os.ReadFile(dst); string(data) != "old" {
		t.Fatalf("destination must be untouched, got %q", data)
	}
}

func TestForcedCopyOverwrites(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	dst := filepath.Join(dir, "dst")
	os.WriteFile(src, []byte("new"), 0o644)
	os.WriteFile(dst, []byte("old"), 0o644)

	s := newTestScheduler(t)
	done := make(chan struct{})
	s.OnDone = func(Job) { close(done) }

	s.Push(Job{Kind: KindCopy, From: vurl.FromPath(src), To: vurl.FromPath(dst), Force: true})
	waitJob(t, done)

	if data, _ := os.ReadFile(dst); string(data) != "new" {
		t.Fatalf("forced copy must overwrite, got %q", data)
	}
}

func TestCopyTreeRecursive(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "tree")
	if err := os.MkdirAll(filepath.Join(src, "nested"), 0o755); err != nil {
		t.Fatal(err)
	}
	os.WriteFile(filepath.Join(src, "top.txt"), []byte("t"), 0o644)
	os.WriteFile(filepath.Join(src, "nested", "deep.txt"), []byte("d"), 0o644)

	s := newTestScheduler(t)
	done := make(chan struct{})
	s.OnDone = func(Job) { close(done) }

	dst := filepath.Join(dir, "copy")
	s.Push(Job{Kind: KindCopy, From: vurl.FromPath(src), To: vurl.FromPath(dst)})
	waitJob(t, done)

	if data, err := os.ReadFile(filepath.Join(dst, "nested", "deep.txt")); err != nil || string(data) != "d" {
		t.Fatalf("nested copy = %q/%v", data, err)
	}
}
