// Package vfiles implements the per-folder File collection: the ordered,
// URN-keyed set of entries a Folder displays, its monotonic revision and
// streaming ticket, its sorter and hidden/ignore filters, and the FilesOp
// delta application that keeps it coherent under watcher events.
package vfiles

import (
	"github.com/marcus/ember/internal/cha"
	"github.com/marcus/ember/internal/vurl"
)

// File is a URL plus its characteristics.
type File struct {
	URL vurl.URL
	Cha cha.Cha
}

func (f File) Urn() string  { return f.URL.Urn() }
func (f File) IsDir() bool  { return f.Cha.IsDir() }
func (f File) IsLink() bool { return f.Cha.IsLink() }
