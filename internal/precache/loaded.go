package precache

import (
	"github.com/cespare/xxhash/v2"

	"github.com/marcus/ember/internal/cache"
	"github.com/marcus/ember/internal/vurl"
)

// Loaded is the per-plugin "has this URL already been attempted" bitmap:
// an LRU of URL-hash to a bitmask where bit i means "the
// plugin at index i already attempted this URL", preventing a failing or
// unneeded precache plugin from being re-dispatched on every repeated
// Mimetype event for the same file.
type Loaded struct {
	*cache.Cache[uint32]
}

// NewLoaded constructs a Loaded bitmap bounded to maxSize entries.
func NewLoaded(maxSize int) *Loaded {
	return &Loaded{Cache: cache.New[uint32](maxSize)}
}

func loadedKey(u vurl.URL) string {
	h := xxhash.New()
	h.WriteString(u.String())
	return string(h.Sum(nil))
}

// Attempted reports whether plugin has already been tried against u.
func (l *Loaded) Attempted(u vurl.URL, plugin int) bool {
	bits, ok := l.Get(loadedKey(u))
	if !ok {
		return false
	}
	return bits&(1<<uint(plugin)) != 0
}

// MarkAttempted records that plugin has been tried against u, regardless
// of outcome.
func (l *Loaded) MarkAttempted(u vurl.URL, plugin int) {
	key := loadedKey(u)
	bits, _ := l.Get(key)
	l.Set(key, bits|(1<<uint(plugin)))
}
