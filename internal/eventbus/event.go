// Package eventbus implements the single bus every background task and
// every user action funnels through: a bounded channel of
// Event values processed one at a time on the main loop, with Render
// coalescing and a per-source ordering guarantee.
package eventbus

import (
	"github.com/marcus/ember/internal/tab"
	"github.com/marcus/ember/internal/vfiles"
	"github.com/marcus/ember/internal/vurl"
)

// Kind discriminates the Event sum type
type Kind int

const (
	KindQuit Kind = iota
	KindKey
	KindPaste
	KindRender
	KindRenderPartial
	KindResize
	KindStop
	KindCall
	KindFiles
	KindPages
	KindMimetype
	KindHover
	KindPreview
	KindPeek
	KindSelect
	KindInput
	KindOpen
	KindProgress
)

// Event is the tagged union dispatched on the bus. Exactly the fields
// relevant to Kind are populated.
type Event struct {
	Kind Kind

	// Key: the raw key string, interpreted by an external keymap/executor
	// that is out of this module's scope; the bus only ferries it.
	Key string

	// Paste
	Pasted string

	// Resize
	Cols, Rows int

	// Stop
	StopSuspend bool
	Ack         chan struct{}

	// Call
	Command string
	Layer   string

	// Files
	Op vfiles.FilesOp

	// Pages
	Page int

	// Mimetype
	Mimetypes map[string]string

	// Hover
	HoverURL *vurl.URL

	// Preview: the completed lock, installed by the manager only after
	// matching Lock.Url against the tab's current hover.
	Lock *tab.Preview

	// Peek
	PeekMax int
	PeekURL vurl.URL

	// Select / Input
	PopupTx chan string

	// Open
	Targets     []vurl.URL
	Opener      string
	Interactive bool

	// Progress
	Percent float64
	Left    int
}
