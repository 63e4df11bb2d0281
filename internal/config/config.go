// Package config holds the ambient configuration surface the manager core
// reads at startup: scrolloff, preview sizing, debounce window, cache
// directory, and sort defaults.
package config

import "time"

// Config is the root configuration structure for the manager/preview core.
type Config struct {
	Manager ManagerConfig `json:"manager"`
	Preview PreviewConfig `json:"preview"`
	Watcher WatcherConfig `json:"watcher"`
	Cache   CacheConfig   `json:"cache"`
	Sort    SortConfig    `json:"sort"`
}

// ManagerConfig configures tab/folder navigation.
type ManagerConfig struct {
	// Scrolloff is the minimum number of rows kept visible above/below the
	// cursor during arrow navigation, clamped to limit/2 at
	// use site.
	Scrolloff int `json:"scrolloff"`
	ShowHidden bool `json:"showHidden"`
}

// PreviewConfig configures the preview/precache pipeline.
type PreviewConfig struct {
	// TabSize is the number of spaces a literal tab expands to in a text
	// preview. It is loaded and validated only; the preview pipeline does
	// not read it and does not expand tabs.
	TabSize int `json:"tabSize"`
	// MaxLineBytes is the long-line limit for highlighting. It is loaded
	// and validated only; internal/highlight applies its own fixed
	// 6000-byte limit and does not read this field.
	MaxLineBytes int `json:"maxLineBytes"`
	// Style names a chroma style registered in internal/highlight.
	Style string `json:"style"`
	// ImageQuality is a quality setting for lossy image protocols. It is
	// loaded only; the image adapter does not receive it.
	ImageQuality int `json:"imageQuality"`
}

// WatcherConfig configures the filesystem watcher's debounce layer.
type WatcherConfig struct {
	Debounce time.Duration `json:"debounce"`
}

// CacheConfig configures the on-disk thumbnail cache.
type CacheConfig struct {
	Dir     string `json:"dir"`
	MaxSize int    `json:"maxSize"`
}

// SortConfig configures the default Files sorter every new tab starts
// with.
type SortConfig struct {
	By        string `json:"by"` // "none" | "alphabetical" | "natural" | "modified" | "created" | "extension" | "size"
	Sensitive bool   `json:"sensitive"`
	Reverse   bool   `json:"reverse"`
	DirFirst  bool   `json:"dirFirst"`
}

// Default returns the configuration a fresh install starts with.
func Default() *Config {
	return &Config{
		Manager: ManagerConfig{
			Scrolloff:  5,
			ShowHidden: false,
		},
		Preview: PreviewConfig{
			TabSize:      2,
			MaxLineBytes: 6000,
			Style:        "monokai",
			ImageQuality: 90,
		},
		Watcher: WatcherConfig{
			Debounce: 100 * time.Millisecond,
		},
		Cache: CacheConfig{
			Dir:     defaultCacheDir(),
			MaxSize: 2000,
		},
		Sort: SortConfig{
			By:       "alphabetical",
			DirFirst: true,
		},
	}
}

// Validate clamps out-of-range values to sane defaults rather than
// erroring.
func (c *Config) Validate() error {
	if c.Manager.Scrolloff < 0 {
		c.Manager.Scrolloff = 0
	}
	if c.Preview.TabSize <= 0 {
		c.Preview.TabSize = 2
	}
	if c.Preview.MaxLineBytes <= 0 {
		c.Preview.MaxLineBytes = 6000
	}
	if c.Watcher.Debounce <= 0 {
		c.Watcher.Debounce = 100 * time.Millisecond
	}
	if c.Cache.MaxSize <= 0 {
		c.Cache.MaxSize = 2000
	}
	return nil
}
