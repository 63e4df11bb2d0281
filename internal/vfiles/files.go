package vfiles

import (
	"sync/atomic"

	"github.com/marcus/ember/internal/cha"
)

// globalTicket makes tickets process-wide monotonic, allocated at the
// start of each new streaming read, so that a Part arriving for a folder
// the user has since navigated away from (and which therefore got a newer
// ticket) is provably stale even if two folders' reads interleave.
var globalTicket uint64

// NextTicket allocates a new globally monotonic ticket.
func NextTicket() uint64 { return atomic.AddUint64(&globalTicket, 1) }

// Stage is a Folder's load state.
type Stage int

const (
	Loading Stage = iota
	Loaded
	Failed
)

// Files is the per-folder collection: a URN-keyed raw
// set, a derived sorted+filtered visible slice, a monotonic revision that
// bumps whenever membership or order changes, and the streaming ticket.
type Files struct {
	raw   map[string]File
	sizes map[string]uint64

	visible []File

	revision uint64
	ticket   uint64

	// streamSeen accumulates the urns delivered by Parts of the current
	// streaming read, so FinishStream can drop entries that no longer
	// exist on disk without blanking the listing mid-read.
	streamSeen map[string]struct{}

	ShowHidden bool
	Sorter     Sorter
	Ignore     func(urn string, isDir bool) bool
}

func New() *Files {
	return &Files{raw: make(map[string]File), sizes: make(map[string]uint64)}
}

func (f *Files) Revision() uint64 { return f.revision }
func (f *Files) Ticket() uint64   { return f.ticket }
func (f *Files) Len() int         { return len(f.visible) }
func (f *Files) IsEmpty() bool    { return len(f.visible) == 0 }

// Get returns the i-th visible file.
func (f *Files) Get(i int) (File, bool) {
	if i < 0 || i >= len(f.visible) {
		return File{}, false
	}
	return f.visible[i], true
}

// All returns the current visible slice. Callers must not mutate it.
func (f *Files) All() []File { return f.visible }

// Position returns the index of urn within the visible slice.
func (f *Files) Position(urn string) (int, bool) {
	for i, file := range f.visible {
		if file.Urn() == urn {
			return i, true
		}
	}
	return -1, false
}

// recompute rebuilds the visible slice from raw: show_hidden is applied
// before the ignore filter, then the sorter runs. The revision only advances when the recomputed slice
// actually differs in membership or order from the previous one.
func (f *Files) recompute() {
	next := make([]File, 0, len(f.raw))
	for _, file := range f.raw {
		if !f.ShowHidden && file.Cha.IsHidden() {
			continue
		}
		if f.Ignore != nil && f.Ignore(file.Urn(), file.IsDir()) {
			continue
		}
		next = append(next, file)
	}
	f.Sorter.sort(next, f.sizes)

	if !sameOrder(f.visible, next) {
		f.revision++
	}
	f.visible = next
}

func sameOrder(a, b []File) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Urn() != b[i].Urn() {
			return false
		}
	}
	return true
}

// Resort rebuilds the visible slice after the caller changed ShowHidden,
// Sorter, or Ignore in place; the revision advances only if the visible
// order actually changed.
func (f *Files) Resort() { f.recompute() }

// UpdateFull replaces the raw set wholesale (a Full op).
func (f *Files) UpdateFull(files []File) {
	f.raw = make(map[string]File, len(files))
	for _, file := range files {
		f.raw[file.Urn()] = file
	}
	f.recompute()
}

// UpdatePart merges a streaming chunk into the raw set unless ticket is
// older than the folder's current ticket; a newer ticket is adopted as the
// current one, and an older (stale) ticket is a no-op.
func (f *Files) UpdatePart(files []File, ticket uint64) bool {
	if ticket < f.ticket {
		return false
	}
	f.ticket = ticket
	for _, file := range files {
		f.raw[file.Urn()] = file
		if f.streamSeen != nil {
			f.streamSeen[file.Urn()] = struct{}{}
		}
	}
	f.recompute()
	return true
}

// BeginStream allocates and stores a new ticket for a fresh streaming
// read, discarding any in-flight one.
func (f *Files) BeginStream() uint64 {
	f.ticket = NextTicket()
	f.streamSeen = make(map[string]struct{})
	return f.ticket
}

// FinishStream reconciles the raw set against what the completed stream
// actually delivered: entries the read never produced are gone from disk
// and are dropped. A no-op when no stream was begun (e.g. a folder only
// ever fed by Full).
func (f *Files) FinishStream() {
	if f.streamSeen == nil {
		return
	}
	for urn := range f.raw {
		if _, seen := f.streamSeen[urn]; !seen {
			delete(f.raw, urn)
			delete(f.sizes, urn)
		}
	}
	f.streamSeen = nil
	f.recompute()
}

// UpdateSize merges computed directory sizes and re-sorts if the active
// sorter is SortSize.
func (f *Files) UpdateSize(sizes map[string]uint64) {
	for urn, n := range sizes {
		f.sizes[urn] = n
	}
	if f.Sorter.By == SortSize {
		f.recompute()
	}
}

// UpdateCreating inserts files that must not already exist.
func (f *Files) UpdateCreating(files []File) {
	for _, file := range files {
		if _, exists := f.raw[file.Urn()]; !exists {
			f.raw[file.Urn()] = file
		}
	}
	f.recompute()
}

// UpdateDeleting removes the given URNs (and their cached sizes).
func (f *Files) UpdateDeleting(urns []string) {
	for _, urn := range urns {
		delete(f.raw, urn)
		delete(f.sizes, urn)
	}
	f.recompute()
}

// UpdateUpdating replaces existing entries only; URNs absent from raw are
// left untouched.
func (f *Files) UpdateUpdating(files []File) bool {
	changed := false
	for _, file := range files {
		if _, exists := f.raw[file.Urn()]; exists {
			f.raw[file.Urn()] = file
			changed = true
		}
	}
	if changed {
		f.recompute()
	}
	return changed
}

// UpdateUpserting inserts or replaces.
func (f *Files) UpdateUpserting(files []File) {
	for _, file := range files {
		f.raw[file.Urn()] = file
	}
	f.recompute()
}

// MarkFailed resets the collection to empty with a dummy Cha, used when a
// directory read reports an I/O error.
func (f *Files) MarkFailed() cha.Cha {
	f.raw = make(map[string]File)
	f.recompute()
	return cha.NewDummy(true)
}
