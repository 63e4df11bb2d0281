package cache

import (
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/cespare/xxhash/v2"
)

// ThumbnailKey derives the cache file name for a video frame (skip=second
// offset) or PDF page (skip=page number) thumbnail, hashing the original
// path together with the skip so each frame/page caches separately.
func ThumbnailKey(path string, skip int) string {
	h := xxhash.New()
	h.WriteString(path)
	h.WriteString("\x00")
	h.WriteString(strconv.Itoa(skip))
	return fmt.Sprintf("%016x", h.Sum64())
}

// ThumbnailPath joins a cache directory with the derived key and
// extension (always a flat PNG/JPEG the image adapter can load).
func ThumbnailPath(cacheDir, path string, skip int, ext string) string {
	return filepath.Join(cacheDir, ThumbnailKey(path, skip)+ext)
}

// Thumbnails is a bounded cache of rendered thumbnail file paths, keyed
// by ThumbnailKey, that the precache Image/Video/PDF queue consults
// before re-invoking an external renderer.
type Thumbnails struct {
	*Cache[string]
}

func NewThumbnails(maxSize int) *Thumbnails {
	return &Thumbnails{Cache: New[string](maxSize)}
}

func (t *Thumbnails) Lookup(path string, skip int) (string, bool) {
	return t.Get(ThumbnailKey(path, skip))
}

func (t *Thumbnails) Remember(path string, skip int, cachePath string) {
	t.Set(ThumbnailKey(path, skip), cachePath)
}
