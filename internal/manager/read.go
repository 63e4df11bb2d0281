package manager

import (
	"errors"
	"io"
	"time"

	"github.com/marcus/ember/internal/eventbus"
	"github.com/marcus/ember/internal/folder"
	"github.com/marcus/ember/internal/vfiles"
	"github.com/marcus/ember/internal/vurl"
)

// Streaming chunks flush every 500ms or every 10,000 entries,
// whichever comes first.
const (
	readChunkInterval = 500 * time.Millisecond
	readChunkMax      = 10_000
)

// readDir starts a streaming read of f. The ticket is allocated on the
// caller's (main-loop) goroutine so that a later read of the same folder
// provably supersedes this one before the scan goroutine has emitted
// anything; the scan itself only talks back through the bus.
func (m *Manager) readDir(f *folder.Folder) {
	ticket := f.Files.BeginStream()
	f.Stage = folder.StageLoading
	go m.scan(f.Cwd, ticket)
}

func (m *Manager) scan(u vurl.URL, ticket uint64) {
	p, ok := m.providers.For(u)
	if !ok {
		m.emitOp(vfiles.FilesOp{Kind: vfiles.OpIOErr, Url: u, Err: errors.New("no provider")})
		return
	}

	it, err := p.ReadDir(m.ctx, u)
	if err != nil {
		m.emitOp(vfiles.FilesOp{Kind: vfiles.OpIOErr, Url: u, Err: err})
		return
	}
	defer it.Close()

	var chunk []vfiles.File
	last := time.Now()
	flush := func() {
		if len(chunk) == 0 {
			return
		}
		m.emitOp(vfiles.FilesOp{Kind: vfiles.OpPart, Url: u, Files: chunk, Ticket: ticket})
		chunk = nil
		last = time.Now()
	}

	for {
		entry, err := it.Next(m.ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			m.emitOp(vfiles.FilesOp{Kind: vfiles.OpIOErr, Url: u, Err: err})
			return
		}
		chunk = append(chunk, vfiles.File{URL: u.Join(entry.Urn), Cha: entry.Cha})
		if len(chunk) >= readChunkMax || time.Since(last) >= readChunkInterval {
			flush()
		}
	}
	flush()

	mtime := time.Time{}
	if meta, err := p.Metadata(m.ctx, u); err == nil {
		mtime = meta.MTime
	}
	m.emitOp(vfiles.FilesOp{Kind: vfiles.OpDone, Url: u, Ticket: ticket, Mtime: mtime})
}

func (m *Manager) emitOp(op vfiles.FilesOp) {
	m.emit(eventbus.Event{Kind: eventbus.KindFiles, Op: op})
}
