package preview

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/marcus/ember/internal/tab"
	"github.com/marcus/ember/internal/vfs"
	"github.com/marcus/ember/internal/vurl"
)

func TestClassifyMime(t *testing.T) {
	cases := []struct {
		mime, ext string
		want      MimeKind
	}{
		{"", "", KindEmpty},
		{"inode/directory", "", KindDir},
		{"image/png", "", KindImage},
		{"video/mp4", "", KindVideo},
		{"application/pdf", "", KindPDF},
		{"application/json", "", KindJSON},
		{"text/plain", "", KindText},
		{"application/zip", "", KindArchive},
		{"application/octet-stream", ".zip", KindArchive},
		{"application/octet-stream", ".bin", KindOthers},
	}
	for _, c := range cases {
		if got := ClassifyMime(c.mime, c.ext); got != c.want {
			t.Errorf("ClassifyMime(%q, %q) = %v, want %v", c.mime, c.ext, got, c.want)
		}
	}
}

func TestShowsAsImage(t *testing.T) {
	for _, k := range []MimeKind{KindImage, KindVideo, KindPDF} {
		if !k.ShowsAsImage() {
			t.Errorf("%v should show as image", k)
		}
	}
	for _, k := range []MimeKind{KindText, KindJSON, KindDir, KindArchive, KindEmpty, KindOthers} {
		if k.ShowsAsImage() {
			t.Errorf("%v should not show as image", k)
		}
	}
}

func TestGoSuppressesImageWhenNotShowing(t *testing.T) {
	task := New(Deps{}, nil, nil)
	started := task.Go(context.Background(), tab.Preview{}, vurl.FromPath("/a.png"), "image/png", 0, false)
	if started {
		t.Fatalf("expected image preview to be suppressed when showImage=false")
	}
}

func TestGoNoopWhenLockUnchanged(t *testing.T) {
	task := New(Deps{}, nil, nil)
	url := vurl.FromPath("/a.txt")
	current := tab.Preview{Url: url, Mime: "text/plain", Skip: 0}
	started := task.Go(context.Background(), current, url, "text/plain", 0, true)
	if started {
		t.Fatalf("expected no-op when (url, mime, skip) match the current lock")
	}
}

func TestGoRendersTextPreview(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "hello.go")
	if err := os.WriteFile(path, []byte("package main\n\nfunc main() {}\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	results := make(chan tab.Preview, 1)
	task := New(Deps{Provider: vfs.NewLocal(), PreviewHeight: 10, Style: "monokai"},
		func(l tab.Preview) { results <- l }, nil)

	started := task.Go(context.Background(), tab.Preview{}, vurl.FromPath(path), "text/x-go", 0, true)
	if !started {
		t.Fatalf("expected Go to start a background render")
	}

	select {
	case lock := <-results:
		if lock.Data != tab.PreviewText {
			t.Fatalf("Data = %v, want PreviewText", lock.Data)
		}
		if len(lock.StyledLines) == 0 {
			t.Fatalf("expected styled lines to be populated")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for preview")
	}
}

func TestGoRendersDirPreview(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "a"), []byte("x"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "b"), []byte("y"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	var dirReadFor vurl.URL
	results := make(chan tab.Preview, 1)
	task := New(Deps{
		Provider:      vfs.NewLocal(),
		PreviewHeight: 10,
		OnDirRead:     func(u vurl.URL) { dirReadFor = u },
	}, func(l tab.Preview) { results <- l }, nil)

	started := task.Go(context.Background(), tab.Preview{}, vurl.FromPath(dir), "inode/directory", 0, true)
	if !started {
		t.Fatalf("expected Go to start a background render")
	}

	select {
	case lock := <-results:
		if lock.Data != tab.PreviewFolder {
			t.Fatalf("Data = %v, want PreviewFolder", lock.Data)
		}
		if len(lock.FolderFiles) != 2 {
			t.Fatalf("FolderFiles = %d, want 2", len(lock.FolderFiles))
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for preview")
	}
	if !dirReadFor.Equal(vurl.FromPath(dir)) {
		t.Fatalf("OnDirRead not called with expected url")
	}
}

func TestGoCancelsPreviousOnNewRequest(t *testing.T) {
	dir := t.TempDir()
	pathA := filepath.Join(dir, "a.txt")
	pathB := filepath.Join(dir, "b.txt")
	os.WriteFile(pathA, []byte("aaa\n"), 0o644)
	os.WriteFile(pathB, []byte("bbb\n"), 0o644)

	results := make(chan tab.Preview, 2)
	task := New(Deps{Provider: vfs.NewLocal(), PreviewHeight: 10}, func(l tab.Preview) { results <- l }, nil)

	task.Go(context.Background(), tab.Preview{}, vurl.FromPath(pathA), "text/plain", 0, true)
	task.Go(context.Background(), tab.Preview{}, vurl.FromPath(pathB), "text/plain", 0, true)

	seenB := false
	timeout := time.After(2 * time.Second)
	for !seenB {
		select {
		case lock := <-results:
			if lock.Url.Equal(vurl.FromPath(pathB)) {
				seenB = true
			}
		case <-timeout:
			t.Fatal("timed out waiting for second preview")
		}
	}
}
