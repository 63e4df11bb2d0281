// Package vfs specifies the filesystem provider surface: every
// filesystem operation the manager core issues goes through this
// interface, whether the backing store is local disk, an archive, or a
// remote SFTP host registered by the embedding application. Capabilities
// are expressed as a bitflag set rather than an inheritance hierarchy.
package vfs

import (
	"context"
	"io"

	"github.com/marcus/ember/internal/cha"
	"github.com/marcus/ember/internal/vurl"
)

// Capability is a bitflag describing an operation a Provider supports.
type Capability uint32

const (
	CapCopy Capability = 1 << iota
	CapSymlink
	CapHardlink
	CapRename
	CapTrash
	CapSetTimes
	CapSetMode
	CapSetOwner
)

func (c Capability) Has(bit Capability) bool { return c&bit != 0 }

// Progress reports incremental copy progress, consumed by the task
// scheduler (internal/task) to drive the bus's Progress event.
type Progress struct {
	CopiedBytes int64
	TotalBytes  int64
}

// DirEntry is one row produced while scanning a directory.
type DirEntry struct {
	Urn string
	Cha cha.Cha
}

// DirIter is a pull-based iterator over directory entries: call Next
// until it returns io.EOF, then Close.
type DirIter interface {
	Next(ctx context.Context) (DirEntry, error)
	Close() error
}

// Provider addresses a filesystem of some scheme. Every operation takes a
// context so long-running backends (SFTP) can honor the 45s connect / 60s
// idle timeouts
type Provider interface {
	Absolute(ctx context.Context, u vurl.URL) (vurl.URL, error)
	Canonicalize(ctx context.Context, u vurl.URL) (vurl.URL, error)
	Capabilities() Capability
	Casefold() bool

	Copy(ctx context.Context, from, to vurl.URL) error
	CopyWithProgress(ctx context.Context, from, to vurl.URL, progress chan<- Progress) error

	Create(ctx context.Context, u vurl.URL) (io.WriteCloser, error)
	CreateDir(ctx context.Context, u vurl.URL) error
	CreateDirAll(ctx context.Context, u vurl.URL) error
	CreateNew(ctx context.Context, u vurl.URL) (io.WriteCloser, error)

	HardLink(ctx context.Context, from, to vurl.URL) error

	Metadata(ctx context.Context, u vurl.URL) (cha.Cha, error)
	SymlinkMetadata(ctx context.Context, u vurl.URL) (cha.Cha, error)

	Open(ctx context.Context, u vurl.URL) (io.ReadCloser, error)
	ReadDir(ctx context.Context, u vurl.URL) (DirIter, error)
	ReadLink(ctx context.Context, u vurl.URL) (string, error)

	RemoveDir(ctx context.Context, u vurl.URL) error
	RemoveDirAll(ctx context.Context, u vurl.URL) error
	RemoveFile(ctx context.Context, u vurl.URL) error

	Rename(ctx context.Context, from, to vurl.URL) error
	SymlinkFile(ctx context.Context, target, link vurl.URL) error
	SymlinkDir(ctx context.Context, target, link vurl.URL) error
	Trash(ctx context.Context, u vurl.URL) error

	Write(ctx context.Context, u vurl.URL, data []byte) error
}

// Registry resolves a vurl.Scheme to the Provider that serves it. Only the
// Local provider is implemented in this module; Sftp backends are an
// external collaborator
type Registry struct {
	byScheme map[vurl.Scheme]Provider
}

func NewRegistry() *Registry {
	return &Registry{byScheme: make(map[vurl.Scheme]Provider)}
}

func (r *Registry) Register(s vurl.Scheme, p Provider) {
	r.byScheme[s] = p
}

func (r *Registry) For(u vurl.URL) (Provider, bool) {
	p, ok := r.byScheme[u.Scheme]
	return p, ok
}
