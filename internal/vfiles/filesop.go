package vfiles

import (
	"time"

	"github.com/marcus/ember/internal/vurl"
)

// OpKind discriminates the FilesOp tagged union.
type OpKind int

const (
	OpFull OpKind = iota
	OpPart
	OpDone
	OpSize
	OpIOErr
	OpCreating
	OpDeleting
	OpUpdating
	OpUpserting
)

// FilesOp is the delta a watcher or directory-read task applies to a
// folder's Files collection. Which payload fields are populated depends
// on Kind, as listed beside each field.
type FilesOp struct {
	Kind OpKind

	Url vurl.URL // folder this op targets

	Files  []File            // Full, Part, Creating, Updating, Upserting
	Ticket uint64            // Part, Done
	Urns   []string          // Deleting
	Sizes  map[string]uint64 // Size
	Mtime  time.Time         // Full, Done: mtime of the directory itself
	Err    error             // IOErr
}

// Apply applies the op to fs, reporting whether the visible ordering or
// membership changed (i.e. whether fs.Revision() advanced).
func (op FilesOp) Apply(fs *Files) bool {
	before := fs.Revision()
	switch op.Kind {
	case OpFull:
		fs.UpdateFull(op.Files)
	case OpPart:
		fs.UpdatePart(op.Files, op.Ticket)
	case OpDone:
		// No membership change; Done only flips the folder's Stage, which
		// is the caller's (internal/folder) responsibility.
	case OpSize:
		fs.UpdateSize(op.Sizes)
	case OpIOErr:
		fs.MarkFailed()
	case OpCreating:
		fs.UpdateCreating(op.Files)
	case OpDeleting:
		fs.UpdateDeleting(op.Urns)
	case OpUpdating:
		fs.UpdateUpdating(op.Files)
	case OpUpserting:
		fs.UpdateUpserting(op.Files)
	}
	return fs.Revision() != before
}
