// Package preview implements the per-tab cancellable preview task:
// classify a mime into a MimeKind, short-circuit when the request
// doesn't change anything observable, cancel whatever was previously
// running, and dispatch to the kind-specific renderer. Cancellation is a
// context plus a captured ticket compared at each checkpoint.
package preview

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/marcus/ember/internal/highlight"
	"github.com/marcus/ember/internal/image"
	"github.com/marcus/ember/internal/tab"
	"github.com/marcus/ember/internal/vfiles"
	"github.com/marcus/ember/internal/vfs"
	"github.com/marcus/ember/internal/vurl"
)

// ErrCancelled is returned (and always silently dropped
// Cancelled error kind) when a task observes that a newer request has
// superseded it.
var ErrCancelled = errors.New("preview: cancelled")

// ErrExceed mirrors highlight.ErrExceed for preview kinds (archive, text)
// whose skip ran past the end of the available content.
type ErrExceed struct{ Max int }

func (e ErrExceed) Error() string { return "preview: skip exceeds available content" }

// ArchiveLister lists `limit` entries of an archive starting at `skip`,
// via an external lister (lsar/7z/7zz).
type ArchiveLister func(ctx context.Context, path string, skip, limit int) ([]string, error)

// JSONFormatter pretty-prints JSON via an external `jq`.
type JSONFormatter func(ctx context.Context, path string) (string, error)

// ThumbnailRenderer renders a video frame (skip = second offset) or PDF
// page (skip = page number) into a cache file path, via
// ffmpegthumbnailer/pdftoppm.
type ThumbnailRenderer func(ctx context.Context, path string, skip int) (string, error)

// Deps bundles the external collaborators and shared state the task
// dispatch table needs. All function fields are optional; a nil
// collaborator degrades that MimeKind to "unsupported"
type Deps struct {
	Provider      vfs.Provider
	Image         *image.Adapter
	PreviewHeight int
	Style         string

	ListArchive ArchiveLister
	RunJQ       JSONFormatter
	RenderVideo ThumbnailRenderer
	RenderPDF   ThumbnailRenderer

	// OnDirRead is called to trigger the real directory read that backs a
	// folder preview (Dir: "emit a Files(Read) op"); preview
	// itself only renders a best-effort synchronous listing for display.
	OnDirRead func(u vurl.URL)
}

// Task is the single in-flight (or idle) preview task for one tab.
type Task struct {
	deps Deps

	mu     sync.Mutex
	cancel context.CancelFunc
	ticket atomic.Uint64

	OnPreview func(tab.Preview)
	OnPeek    func(max int, u vurl.URL)

	highlighters map[string]*highlight.Highlighter
	hlMu         sync.Mutex
}

// New constructs an idle Task.
func New(deps Deps, onPreview func(tab.Preview), onPeek func(max int, u vurl.URL)) *Task {
	return &Task{
		deps:         deps,
		OnPreview:    onPreview,
		OnPeek:       onPeek,
		highlighters: make(map[string]*highlight.Highlighter),
	}
}

// Go requests a preview of url. Classification, the no-op check, and
// cancellation of the previous task run synchronously on the caller's
// goroutine (the main loop); the render itself runs in a spawned
// goroutine. It reports whether a new background render was actually
// started.
func (t *Task) Go(ctx context.Context, current tab.Preview, url vurl.URL, mime string, skip int, showImage bool) bool {
	kind := ClassifyMime(mime, url.Ext())

	// Image-family kinds are suppressed when the caller (e.g. a
	// collapsed preview pane) didn't ask for images.
	if !showImage && kind.ShowsAsImage() {
		return false
	}

	// No-op if this is already the installed lock.
	if current.Url.Equal(url) && current.Mime == mime && current.Skip == skip {
		return false
	}

	// Cancel whatever is in flight.
	t.mu.Lock()
	if t.cancel != nil {
		t.cancel()
	}
	myTicket := t.ticket.Add(1)
	taskCtx, cancel := context.WithCancel(ctx)
	t.cancel = cancel
	t.mu.Unlock()

	// Hide any currently-displayed image.
	if t.deps.Image != nil && current.Data == tab.PreviewImage {
		if rect, ok := current.ImageHandle.(image.Rect); ok {
			t.deps.Image.Hide(rect)
		}
	}

	// Reset skip when the target changed.
	if !current.Url.Equal(url) {
		skip = 0
	}

	go t.run(taskCtx, myTicket, url, mime, kind, skip)
	return true
}

func (t *Task) stale(ticket uint64) bool { return t.ticket.Load() != ticket }

func (t *Task) run(ctx context.Context, ticket uint64, url vurl.URL, mime string, kind MimeKind, skip int) {
	lock, err := t.render(ctx, ticket, url, mime, kind, skip)
	if err != nil {
		var exceed ErrExceed
		if errors.As(err, &exceed) {
			if t.OnPeek != nil {
				t.OnPeek(exceed.Max, url)
			}
			return
		}
		// Cancelled and unsupported-mime both degrade to "no observable
		// result"
		return
	}
	if t.OnPreview != nil {
		t.OnPreview(lock)
	}
}

func (t *Task) render(ctx context.Context, ticket uint64, url vurl.URL, mime string, kind MimeKind, skip int) (tab.Preview, error) {
	lock := tab.Preview{Url: url, Mime: mime, Skip: skip}

	switch kind {
	case KindDir:
		return t.renderDir(ctx, lock)
	case KindArchive:
		return t.renderArchive(ctx, ticket, lock)
	case KindImage:
		return t.renderImage(ctx, lock, url.Path)
	case KindVideo:
		return t.renderThumbnail(ctx, lock, t.deps.RenderVideo, url.Path, skip)
	case KindPDF:
		return t.renderThumbnail(ctx, lock, t.deps.RenderPDF, url.Path, skip)
	case KindJSON:
		return t.renderJSON(ctx, lock)
	case KindText:
		return t.renderText(ctx, ticket, lock)
	default: // KindEmpty, KindOthers
		lock.Data = tab.PreviewNone
		return lock, nil
	}
}

func (t *Task) renderDir(ctx context.Context, lock tab.Preview) (tab.Preview, error) {
	if t.deps.OnDirRead != nil {
		t.deps.OnDirRead(lock.Url)
	}
	if t.deps.Provider == nil {
		lock.Data = tab.PreviewFolder
		return lock, nil
	}
	it, err := t.deps.Provider.ReadDir(ctx, lock.Url)
	if err != nil {
		lock.Data = tab.PreviewFolder
		return lock, nil
	}
	defer it.Close()

	var files []vfiles.File
	limit := t.previewHeight()
	for len(files) < limit {
		entry, err := it.Next(ctx)
		if err != nil {
			break
		}
		files = append(files, vfiles.File{URL: lock.Url.Join(entry.Urn), Cha: entry.Cha})
	}
	lock.Data = tab.PreviewFolder
	lock.FolderFiles = files
	return lock, nil
}

func (t *Task) renderArchive(ctx context.Context, ticket uint64, lock tab.Preview) (tab.Preview, error) {
	if t.deps.ListArchive == nil {
		lock.Data = tab.PreviewNone
		return lock, nil
	}
	limit := t.previewHeight()
	lines, err := t.deps.ListArchive(ctx, lock.Url.Path, lock.Skip, limit)
	if err != nil {
		return tab.Preview{}, err
	}
	if t.stale(ticket) {
		return tab.Preview{}, ErrCancelled
	}
	lock.Data = tab.PreviewText
	lock.TextLines = lines
	if lock.Skip > 0 && len(lines) < limit {
		return lock, ErrExceed{Max: lock.Skip + len(lines) - limit}
	}
	return lock, nil
}

func (t *Task) renderImage(ctx context.Context, lock tab.Preview, path string) (tab.Preview, error) {
	if t.deps.Image == nil {
		lock.Data = tab.PreviewNone
		return lock, nil
	}
	rect, err := t.deps.Image.Show(ctx, path, image.Rect{})
	if err != nil {
		return tab.Preview{}, err
	}
	lock.Data = tab.PreviewImage
	lock.ImageHandle = rect
	return lock, nil
}

func (t *Task) renderThumbnail(ctx context.Context, lock tab.Preview, render ThumbnailRenderer, path string, skip int) (tab.Preview, error) {
	if render == nil || t.deps.Image == nil {
		lock.Data = tab.PreviewNone
		return lock, nil
	}
	cachePath, err := render(ctx, path, skip)
	if err != nil {
		return tab.Preview{}, err
	}
	return t.renderImage(ctx, lock, cachePath)
}

func (t *Task) renderJSON(ctx context.Context, lock tab.Preview) (tab.Preview, error) {
	if t.deps.RunJQ == nil {
		lock.Data = tab.PreviewNone
		return lock, nil
	}
	out, err := t.deps.RunJQ(ctx, lock.Url.Path)
	if err != nil {
		return tab.Preview{}, err
	}
	lock.Data = tab.PreviewText
	lock.TextLines = splitLines(out)
	return lock, nil
}

func (t *Task) renderText(ctx context.Context, ticket uint64, lock tab.Preview) (tab.Preview, error) {
	lines, err := t.readLines(ctx, lock.Url)
	if err != nil {
		return tab.Preview{}, err
	}

	h := t.highlighterFor(lock.Url.Path, firstLine(lines))
	limit := t.previewHeight()
	rendered, err := h.Peek(ctx, lines, lock.Skip, limit, func() uint64 { return t.ticket.Load() })
	if err != nil {
		var exceed highlight.ErrExceed
		if errors.As(err, &exceed) {
			lock.Data = tab.PreviewText
			lock.StyledLines = rendered
			return lock, ErrExceed{Max: exceed.Max}
		}
		return tab.Preview{}, err
	}
	if t.stale(ticket) {
		return tab.Preview{}, ErrCancelled
	}
	lock.Data = tab.PreviewText
	lock.StyledLines = rendered
	return lock, nil
}

func (t *Task) highlighterFor(path, firstLn string) *highlight.Highlighter {
	t.hlMu.Lock()
	defer t.hlMu.Unlock()
	if h, ok := t.highlighters[path]; ok {
		return h
	}
	h := highlight.New(path, firstLn, t.deps.Style)
	t.highlighters[path] = h
	return h
}

func (t *Task) readLines(ctx context.Context, u vurl.URL) ([]string, error) {
	if t.deps.Provider == nil {
		return nil, fmt.Errorf("preview: no provider configured for %s", u.String())
	}
	rc, err := t.deps.Provider.Open(ctx, u)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	var lines []string
	scanner := bufio.NewScanner(rc)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		lines = append(lines, scanner.Text())
	}
	return lines, scanner.Err()
}

func (t *Task) previewHeight() int {
	if t.deps.PreviewHeight <= 0 {
		return 30
	}
	return t.deps.PreviewHeight
}

func firstLine(lines []string) string {
	if len(lines) == 0 {
		return ""
	}
	return lines[0]
}

func splitLines(s string) []string {
	var out []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			out = append(out, s[start:i])
			start = i + 1
		}
	}
	if start < len(s) {
		out = append(out, s[start:])
	}
	return out
}
