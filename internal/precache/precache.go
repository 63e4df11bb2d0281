// Package precache implements the three background queues:
// Mime (batch mimetype guessing on page visibility), Size (recursive
// directory size computation, throttled), and Image/Video/PDF (thumbnail
// rendering into the cache directory). Each queue is a bounded channel
// drained by a small CPU-scaled worker pool.
package precache

import (
	"context"
	"runtime"
	"sync"
	"time"

	"github.com/marcus/ember/internal/cache"
	"github.com/marcus/ember/internal/vurl"
)

// workerCount scales with CPU count, clamped to a sane range for
// I/O-bound filesystem/process work.
func workerCount() int {
	n := runtime.NumCPU()
	if n < 2 {
		return 2
	}
	if n > 8 {
		return 8
	}
	return n
}

// Mimer invokes the external `file`-equivalent classifier for a batch of
// URLs, returning a url->mime map. Precache only owns the
// batching/dedup/throttle policy around it.
type Mimer func(ctx context.Context, urls []vurl.URL) map[string]string

// MimeQueue batches mimetype lookups triggered by a page becoming visible
//, deduplicating URLs already known or already
// in-flight.
type MimeQueue struct {
	mimer  Mimer
	onDone func(map[string]string)

	mu      sync.Mutex
	known   map[string]struct{}
	inFlight map[string]struct{}

	jobs chan []vurl.URL
	wg   sync.WaitGroup
}

// NewMimeQueue starts workerCount() goroutines draining the queue.
func NewMimeQueue(ctx context.Context, mimer Mimer, onDone func(map[string]string)) *MimeQueue {
	q := &MimeQueue{
		mimer:    mimer,
		onDone:   onDone,
		known:    make(map[string]struct{}),
		inFlight: make(map[string]struct{}),
		jobs:     make(chan []vurl.URL, 64),
	}
	for i := 0; i < workerCount(); i++ {
		q.wg.Add(1)
		go q.worker(ctx)
	}
	return q
}

// Push enqueues urls missing a mimetype. Already-known or already
// in-flight URLs are dropped.
func (q *MimeQueue) Push(urls []vurl.URL) {
	q.mu.Lock()
	var batch []vurl.URL
	for _, u := range urls {
		key := u.String()
		if _, known := q.known[key]; known {
			continue
		}
		if _, flight := q.inFlight[key]; flight {
			continue
		}
		q.inFlight[key] = struct{}{}
		batch = append(batch, u)
	}
	q.mu.Unlock()

	if len(batch) > 0 {
		select {
		case q.jobs <- batch:
		default:
			// Queue full: drop the batch rather than block the caller; a
			// later Pages event will re-request anything still missing.
			q.mu.Lock()
			for _, u := range batch {
				delete(q.inFlight, u.String())
			}
			q.mu.Unlock()
		}
	}
}

func (q *MimeQueue) worker(ctx context.Context) {
	defer q.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case batch, ok := <-q.jobs:
			if !ok {
				return
			}
			result := q.mimer(ctx, batch)

			q.mu.Lock()
			for _, u := range batch {
				key := u.String()
				delete(q.inFlight, key)
				if _, ok := result[key]; ok {
					q.known[key] = struct{}{}
				}
			}
			q.mu.Unlock()

			if len(result) > 0 && q.onDone != nil {
				q.onDone(result)
			}
		}
	}
}

// Close stops accepting new jobs and waits for in-flight workers to
// drain.
func (q *MimeQueue) Close() {
	close(q.jobs)
	q.wg.Wait()
}

// SizeComputer recurses into a directory and returns the total size in
// bytes; an external collaborator (the local/SFTP provider walks its own
// tree).
type SizeComputer func(ctx context.Context, u vurl.URL) (uint64, error)

// SizeQueue computes subdirectory sizes on completion of a directory read
//, throttled to batches of 50 results per 500ms so a
// folder full of large subtrees doesn't flood the bus with individual
// Size ops. Results are grouped by parent folder so each flush maps
// directly onto one Size op per folder.
type SizeQueue struct {
	compute SizeComputer
	onBatch func(parent vurl.URL, sizes map[string]uint64)

	mu      sync.Mutex
	handing map[string]struct{}

	jobs    chan vurl.URL
	results chan sizeResult
	wg      sync.WaitGroup
}

type sizeResult struct {
	parent vurl.URL
	urn    string
	n      uint64
}

const (
	sizeBatchMax      = 50
	sizeBatchInterval = 500 * time.Millisecond
)

// NewSizeQueue starts the compute workers and the throttled batcher.
func NewSizeQueue(ctx context.Context, compute SizeComputer, onBatch func(parent vurl.URL, sizes map[string]uint64)) *SizeQueue {
	q := &SizeQueue{
		compute: compute,
		onBatch: onBatch,
		handing: make(map[string]struct{}),
		jobs:    make(chan vurl.URL, 256),
		results: make(chan sizeResult, 256),
	}
	for i := 0; i < workerCount(); i++ {
		q.wg.Add(1)
		go q.worker(ctx)
	}
	go q.batcher(ctx)
	return q
}

// Push enqueues u for size computation unless it is already in the
// `size_handing` set.
func (q *SizeQueue) Push(u vurl.URL) {
	q.mu.Lock()
	key := u.String()
	if _, ok := q.handing[key]; ok {
		q.mu.Unlock()
		return
	}
	q.handing[key] = struct{}{}
	q.mu.Unlock()

	select {
	case q.jobs <- u:
	default:
		q.mu.Lock()
		delete(q.handing, key)
		q.mu.Unlock()
	}
}

func (q *SizeQueue) worker(ctx context.Context) {
	defer q.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case u, ok := <-q.jobs:
			if !ok {
				return
			}
			n, err := q.compute(ctx, u)
			q.mu.Lock()
			delete(q.handing, u.String())
			q.mu.Unlock()
			parent, urn, ok := u.Pair()
			if err == nil && ok {
				select {
				case q.results <- sizeResult{parent: parent, urn: urn, n: n}:
				case <-ctx.Done():
					return
				}
			}
		}
	}
}

func (q *SizeQueue) batcher(ctx context.Context) {
	ticker := time.NewTicker(sizeBatchInterval)
	defer ticker.Stop()

	batch := make(map[vurl.URL]map[string]uint64)
	total := 0
	flush := func() {
		if total == 0 || q.onBatch == nil {
			return
		}
		for parent, sizes := range batch {
			q.onBatch(parent, sizes)
		}
		batch = make(map[vurl.URL]map[string]uint64)
		total = 0
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			flush()
		case r := <-q.results:
			if batch[r.parent] == nil {
				batch[r.parent] = make(map[string]uint64)
			}
			batch[r.parent][r.urn] = r.n
			total++
			if total >= sizeBatchMax {
				flush()
			}
		}
	}
}

func (q *SizeQueue) Close() {
	close(q.jobs)
	q.wg.Wait()
}

// Thumbnailer renders a thumbnail for u (image/video/pdf) into the cache
// directory and returns the resulting file path; an external collaborator
// (ffmpegthumbnailer/pdftoppm/the image adapter itself).
type Thumbnailer func(ctx context.Context, u vurl.URL, skip int) (string, error)

// ImageQueue renders thumbnails for image-family mime kinds, keyed by
// ThumbnailKey(path, skip). A thumbnail is skipped only when the in-memory
// Thumbnails LRU still records it; the cache directory on disk is not
// checked, so a file rendered earlier but since evicted (or left by a
// previous run) is rendered again.
type ImageQueue struct {
	render Thumbnailer
	cache  *cache.Thumbnails
	onDone func(u vurl.URL, skip int, path string)

	jobs chan imageJob
	wg   sync.WaitGroup
}

type imageJob struct {
	u    vurl.URL
	skip int
}

// NewImageQueue starts workerCount() rendering goroutines.
func NewImageQueue(ctx context.Context, thumbs *cache.Thumbnails, render Thumbnailer, onDone func(vurl.URL, int, string)) *ImageQueue {
	q := &ImageQueue{render: render, cache: thumbs, onDone: onDone, jobs: make(chan imageJob, 64)}
	for i := 0; i < workerCount(); i++ {
		q.wg.Add(1)
		go q.worker(ctx)
	}
	return q
}

// Push enqueues a thumbnail render for (u, skip) unless the cache already
// has it.
func (q *ImageQueue) Push(u vurl.URL, skip int) {
	if _, ok := q.cache.Lookup(u.Path, skip); ok {
		if q.onDone != nil {
			path, _ := q.cache.Lookup(u.Path, skip)
			q.onDone(u, skip, path)
		}
		return
	}
	select {
	case q.jobs <- imageJob{u: u, skip: skip}:
	default:
	}
}

func (q *ImageQueue) worker(ctx context.Context) {
	defer q.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case job, ok := <-q.jobs:
			if !ok {
				return
			}
			path, err := q.render(ctx, job.u, job.skip)
			if err != nil {
				continue
			}
			q.cache.Remember(job.u.Path, job.skip, path)
			if q.onDone != nil {
				q.onDone(job.u, job.skip, path)
			}
		}
	}
}

func (q *ImageQueue) Close() {
	close(q.jobs)
	q.wg.Wait()
}
