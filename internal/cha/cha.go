// Package cha holds the normalized file-metadata record ("characteristics")
// shared by every File in the manager core, independent of the backing
// provider (local disk, archive entry, sftp).
package cha

import (
	"io/fs"
	"time"
)

// Kind is a bitmask of file-kind flags.
type Kind uint8

const (
	Dir Kind = 1 << iota
	Hidden
	Link
	Orphan
	Dummy
)

func (k Kind) Has(bit Kind) bool { return k&bit != 0 }

// Cha is the normalized metadata record for a File: kind bits, size, the
// four timestamps, permission mode, ownership, link count, and (for
// symlinks) the link target path.
type Cha struct {
	Kind Kind

	Len uint64

	ATime time.Time
	BTime time.Time
	CTime time.Time
	MTime time.Time

	Mode fs.FileMode
	UID  uint32
	GID  uint32
	NLink uint64

	LinkTo string // empty unless Kind.Has(Link)
}

// IsDir reports whether the entry is a directory.
func (c Cha) IsDir() bool { return c.Kind.Has(Dir) }

// IsHidden reports whether the entry's name begins with a dot.
func (c Cha) IsHidden() bool { return c.Kind.Has(Hidden) }

// IsLink reports whether the entry is a symlink.
func (c Cha) IsLink() bool { return c.Kind.Has(Link) }

// IsOrphan reports whether the entry is a symlink whose target is missing.
func (c Cha) IsOrphan() bool { return c.Kind.Has(Orphan) }

// IsDummy reports whether this Cha is a placeholder used when the real
// metadata failed to load.
func (c Cha) IsDummy() bool { return c.Kind.Has(Dummy) }

// NewDummy constructs a placeholder Cha for a file whose real metadata
// could not be loaded. dir hints whether the caller already knows the
// entry is a directory (e.g. from a stale directory listing).
func NewDummy(dir bool) Cha {
	k := Dummy
	if dir {
		k |= Dir
	}
	return Cha{Kind: k, MTime: time.Now()}
}

// FromFileInfo builds a Cha from a standard library fs.FileInfo, the way a
// local provider's read_dir/metadata implementation would.
func FromFileInfo(info fs.FileInfo, hidden bool) Cha {
	k := Kind(0)
	if info.IsDir() {
		k |= Dir
	}
	if hidden {
		k |= Hidden
	}
	if info.Mode()&fs.ModeSymlink != 0 {
		k |= Link
	}
	return Cha{
		Kind:  k,
		Len:   uint64(info.Size()),
		MTime: info.ModTime(),
		Mode:  info.Mode(),
	}
}

// Stale reports whether a freshly-observed Cha indicates the cached one no
// longer describes the same file (different size, mtime, or kind bits).
func (c Cha) Stale(fresh Cha) bool {
	return c.Len != fresh.Len || !c.MTime.Equal(fresh.MTime) || c.Kind != fresh.Kind
}
