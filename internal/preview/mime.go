package preview

import "strings"

// MimeKind discriminates how a mime string is rendered in preview.
type MimeKind int

const (
	KindOthers MimeKind = iota
	KindEmpty
	KindArchive
	KindDir
	KindImage
	KindVideo
	KindJSON
	KindPDF
	KindText
)

var archiveExts = map[string]struct{}{
	".zip": {}, ".tar": {}, ".gz": {}, ".tgz": {}, ".bz2": {}, ".xz": {},
	".7z": {}, ".rar": {}, ".zst": {},
}

// ClassifyMime maps a mime type (and, for the archive fallback, a file
// extension) to a MimeKind. An empty mime classifies as KindEmpty and an
// unrecognized one as KindOthers, so callers can distinguish "nothing to
// show" from "no handler for this kind".
func ClassifyMime(mime, ext string) MimeKind {
	switch {
	case mime == "":
		return KindEmpty
	case mime == "inode/directory":
		return KindDir
	case strings.HasPrefix(mime, "image/"):
		return KindImage
	case strings.HasPrefix(mime, "video/"):
		return KindVideo
	case mime == "application/pdf":
		return KindPDF
	case mime == "application/json":
		return KindJSON
	case strings.HasPrefix(mime, "text/"):
		return KindText
	case isArchiveMime(mime, ext):
		return KindArchive
	default:
		return KindOthers
	}
}

func isArchiveMime(mime, ext string) bool {
	switch mime {
	case "application/zip", "application/x-tar", "application/gzip",
		"application/x-bzip2", "application/x-xz", "application/x-7z-compressed",
		"application/vnd.rar", "application/zstd":
		return true
	}
	_, ok := archiveExts[strings.ToLower(ext)]
	return ok
}

// ShowsAsImage reports whether kind is one of the families that paint
// into the reserved image region.
func (k MimeKind) ShowsAsImage() bool {
	return k == KindImage || k == KindVideo || k == KindPDF
}
