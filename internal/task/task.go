// Package task implements the in-process scheduler behind paste: copy and
// move jobs run on a small worker pool, stream per-file progress, and
// report completion/failure through callbacks the manager wires onto the
// event bus. Errors never escape a worker; a failed job is reported and
// the pool keeps draining.
package task

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/marcus/ember/internal/vfs"
	"github.com/marcus/ember/internal/vurl"
)

// Kind discriminates what a Job does with its source once the copy is
// complete.
type Kind int

const (
	// KindCopy leaves the source in place.
	KindCopy Kind = iota
	// KindMove renames when the provider can, otherwise copies then
	// removes the source.
	KindMove
)

// ErrExists is reported when the destination already exists and the job
// was not forced.
var ErrExists = errors.New("task: destination exists")

// Job is one scheduled copy/move.
type Job struct {
	Kind  Kind
	From  vurl.URL
	To    vurl.URL
	Force bool
}

// Scheduler drains jobs on a CPU-scaled worker pool. All callbacks are
// invoked from worker goroutines; the manager's hooks re-enter the event
// bus rather than touching state directly.
type Scheduler struct {
	providers *vfs.Registry
	log       *slog.Logger

	// OnProgress reports the current job's percentage plus how many jobs
	// remain queued, feeding the bus's Progress event.
	OnProgress func(percent float64, left int)
	// OnDone fires after a job finished successfully.
	OnDone func(j Job)
	// OnError fires after a job failed; the pool continues.
	OnError func(j Job, err error)

	jobs chan Job
	left atomic.Int64
	wg   sync.WaitGroup
}

func workerCount() int {
	n := runtime.NumCPU()
	if n < 2 {
		return 2
	}
	if n > 4 {
		return 4
	}
	return n
}

// New starts the worker pool. Workers exit when ctx is cancelled or Close
// is called.
func New(ctx context.Context, providers *vfs.Registry, log *slog.Logger) *Scheduler {
	if log == nil {
		log = slog.Default()
	}
	s := &Scheduler{providers: providers, log: log, jobs: make(chan Job, 256)}
	for i := 0; i < workerCount(); i++ {
		s.wg.Add(1)
		go s.worker(ctx)
	}
	return s
}

// Push enqueues j, reporting false if the queue is full.
func (s *Scheduler) Push(j Job) bool {
	select {
	case s.jobs <- j:
		s.left.Add(1)
		return true
	default:
		return false
	}
}

// Left returns the number of jobs queued or running.
func (s *Scheduler) Left() int { return int(s.left.Load()) }

// Close stops accepting jobs and waits for in-flight workers to drain.
func (s *Scheduler) Close() {
	close(s.jobs)
	s.wg.Wait()
}

func (s *Scheduler) worker(ctx context.Context) {
	defer s.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case j, ok := <-s.jobs:
			if !ok {
				return
			}
			err := s.run(ctx, j)
			left := int(s.left.Add(-1))
			if err != nil {
				s.log.Warn("file op failed", "from", j.From.Path, "to", j.To.Path, "err", err)
				if s.OnError != nil {
					s.OnError(j, err)
				}
			} else if s.OnDone != nil {
				s.OnDone(j)
			}
			if s.OnProgress != nil {
				s.OnProgress(100, left)
			}
		}
	}
}

func (s *Scheduler) run(ctx context.Context, j Job) error {
	p, ok := s.providers.For(j.From)
	if !ok {
		return fmt.Errorf("task: no provider for scheme %v", j.From.Scheme)
	}

	if _, err := p.Metadata(ctx, j.To); err == nil {
		if !j.Force {
			return ErrExists
		}
	} else if !errors.Is(err, fs.ErrNotExist) {
		return err
	}

	if j.Kind == KindMove && j.From.Scheme == j.To.Scheme && p.Capabilities().Has(vfs.CapRename) {
		if err := p.Rename(ctx, j.From, j.To); err == nil {
			return nil
		}
		// Rename across devices fails with EXDEV; fall through to
		// copy-then-remove.
	}

	meta, err := p.Metadata(ctx, j.From)
	if err != nil {
		return err
	}
	if meta.IsDir() {
		err = s.copyTree(ctx, p, j.From, j.To)
	} else {
		err = s.copyFile(ctx, p, j.From, j.To)
	}
	if err != nil {
		return err
	}

	if j.Kind == KindMove {
		if meta.IsDir() {
			return p.RemoveDirAll(ctx, j.From)
		}
		return p.RemoveFile(ctx, j.From)
	}
	return nil
}

func (s *Scheduler) copyFile(ctx context.Context, p vfs.Provider, from, to vurl.URL) error {
	progress := make(chan vfs.Progress, 16)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for pr := range progress {
			if s.OnProgress != nil && pr.TotalBytes > 0 {
				s.OnProgress(100*float64(pr.CopiedBytes)/float64(pr.TotalBytes), s.Left())
			}
		}
	}()
	err := p.CopyWithProgress(ctx, from, to, progress)
	close(progress)
	<-done
	return err
}

// copyTree copies a directory recursively through provider operations
// only, so the same code path serves any backend that implements ReadDir.
func (s *Scheduler) copyTree(ctx context.Context, p vfs.Provider, from, to vurl.URL) error {
	if err := p.CreateDirAll(ctx, to); err != nil {
		return err
	}
	it, err := p.ReadDir(ctx, from)
	if err != nil {
		return err
	}
	defer it.Close()

	for {
		entry, err := it.Next(ctx)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		src, dst := from.Join(entry.Urn), to.Join(entry.Urn)
		if entry.Cha.IsDir() {
			err = s.copyTree(ctx, p, src, dst)
		} else {
			err = s.copyFile(ctx, p, src, dst)
		}
		if err != nil {
			return err
		}
	}
}
