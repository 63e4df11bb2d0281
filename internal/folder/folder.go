// Package folder implements the cursor/offset/page navigation state for one
// directory listing: a Folder wraps a vfiles.Files collection with the
// arrow-key scrolloff algorithm, page-change notification, and FilesOp
// dispatch.
package folder

import (
	"time"

	"github.com/marcus/ember/internal/vfiles"
	"github.com/marcus/ember/internal/vurl"
)

// Stage tracks whether the last directory read is still streaming,
// finished, or failed.
type Stage int

const (
	StageLoading Stage = iota
	StageLoaded
	StageFailed
)

// Step is a cursor displacement. Positive moves the cursor forward
// (downward), negative moves it backward. A magnitude larger than the
// number of visible rows is legal and simply clamps at either end, which
// is how Home/End and page-up/page-down are expressed by callers.
type Step int

func (s Step) IsPositive() bool { return s > 0 }

// Add returns the raw (unclamped) cursor position after applying the step.
func (s Step) Add(cursor int) int { return cursor + int(s) }

// Folder is one directory's navigation state.
type Folder struct {
	Cwd   vurl.URL
	Files *vfiles.Files
	Mtime time.Time
	Stage Stage

	// Err carries the io error kind when Stage is StageFailed.
	Err error

	Offset int
	Cursor int

	Page     int
	Tracing  bool

	// Limit is the number of visible rows, supplied by the caller's
	// layout; OnPageChange fires whenever the cursor crosses into a new
	// page of that height.
	Limit        int
	Scrolloff    int
	OnPageChange func(page int, cwd vurl.URL)
}

// New constructs an empty Folder rooted at cwd.
func New(cwd vurl.URL) *Folder {
	return &Folder{Cwd: cwd, Files: vfiles.New()}
}

// Update applies a FilesOp, reconciling Stage/Mtime for the ops that carry
// them, then always re-homes the cursor via Arrow(0) in case the
// collection shrank out from under it. It reports whether the visible
// listing actually changed.
func (f *Folder) Update(op vfiles.FilesOp) bool {
	revision := f.Files.Revision()

	switch op.Kind {
	case vfiles.OpFull:
		f.Mtime, f.Stage, f.Err = op.Mtime, StageLoaded, nil
	case vfiles.OpPart:
		if op.Ticket == f.Files.Ticket() {
			f.Stage = StageLoading
		}
	case vfiles.OpDone:
		if op.Ticket == f.Files.Ticket() {
			f.Mtime, f.Stage, f.Err = op.Mtime, StageLoaded, nil
			f.Files.FinishStream()
		}
	case vfiles.OpIOErr:
		f.Stage, f.Err = StageFailed, op.Err
	}

	op.Apply(f.Files)

	f.Arrow(0)
	return f.Files.Revision() != revision
}

// Arrow moves the cursor by step and reports whether cursor or offset
// changed.
func (f *Folder) Arrow(step Step) bool {
	if f.Files.IsEmpty() {
		f.Cursor, f.Offset, f.Tracing = 0, 0, false
		f.syncPage(false)
		return false
	}

	var moved bool
	if step.IsPositive() {
		moved = f.next(step)
	} else {
		moved = f.prev(step)
	}

	f.syncPage(false)
	f.Tracing = f.Tracing || moved
	return moved
}

// Hover moves the cursor to the entry at url, a no-op if it is already
// hovered.
func (f *Folder) Hover(url vurl.URL) bool {
	if h, ok := f.Hovered(); ok && h.URL.Equal(url) {
		return false
	}
	pos, ok := f.Files.Position(url.Urn())
	if !ok {
		pos = f.Cursor
	}
	return f.Arrow(Step(pos - f.Cursor))
}

// Reposition hovers url if present, otherwise re-validates the current
// cursor in place (Arrow(0)).
func (f *Folder) Reposition(url *vurl.URL) bool {
	if url != nil {
		return f.Hover(*url)
	}
	return f.Arrow(0)
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return 1
	}
	return limit
}

func (f *Folder) scrolloff() int {
	limit := clampLimit(f.Limit)
	so := f.Scrolloff
	if limit/2 < so {
		so = limit / 2
	}
	return so
}

func (f *Folder) syncPage(force bool) {
	limit := clampLimit(f.Limit)
	n := f.Cursor / limit
	if n != f.Page || force {
		f.Page = n
		if f.OnPageChange != nil {
			f.OnPageChange(n, f.Cwd)
		}
	}
}

func (f *Folder) next(step Step) bool {
	oldCursor, oldOffset := f.Cursor, f.Offset
	length := f.Files.Len()
	limit := clampLimit(f.Limit)
	scrolloff := f.scrolloff()

	f.Cursor = min(step.Add(f.Cursor), saturatingSub(length, 1))
	if f.Cursor < 0 {
		f.Cursor = 0
	}

	threshold := saturatingSub(min(f.Offset+limit, length), scrolloff)
	if f.Cursor >= threshold {
		f.Offset = min(saturatingSub(length, limit), f.Offset+f.Cursor-oldCursor)
	} else {
		f.Offset = min(f.Offset, saturatingSub(length, 1))
	}

	return (oldCursor != f.Cursor) || (oldOffset != f.Offset)
}

func (f *Folder) prev(step Step) bool {
	oldCursor, oldOffset := f.Cursor, f.Offset
	max := saturatingSub(f.Files.Len(), 1)
	scrolloff := f.scrolloff()

	f.Cursor = min(step.Add(f.Cursor), max)
	if f.Cursor < 0 {
		f.Cursor = 0
	}

	if f.Cursor < f.Offset+scrolloff {
		f.Offset = saturatingSub(f.Offset, oldCursor-f.Cursor)
	} else {
		f.Offset = min(f.Offset, max)
	}

	return (oldCursor != f.Cursor) || (oldOffset != f.Offset)
}

// Hovered returns the file under the cursor, if any.
func (f *Folder) Hovered() (vfiles.File, bool) {
	return f.Files.Get(f.Cursor)
}

// Paginate returns the slice of files visible around page, with one page
// of slack on either side (the render layer's look-ahead window).
func (f *Folder) Paginate(page int) []vfiles.File {
	length := f.Files.Len()
	limit := clampLimit(f.Limit)

	start := min(saturatingSub(page, 1)*limit, saturatingSub(length, 1))
	end := min((page+2)*limit, length)
	if end < start {
		end = start
	}
	all := f.Files.All()
	return all[start:end]
}

func saturatingSub(a, b int) int {
	if a < b {
		return 0
	}
	return a - b
}
