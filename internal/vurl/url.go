// Package vurl implements the addressable-location type shared by every
// folder, file, and selection in the manager core: a scheme-qualified,
// percent-encoded URL with optional tail-suffix markers used to carve a
// path into (base, rest, urn) triples for search results and archive
// entries.
package vurl

import (
	"fmt"
	"net/url"
	"path"
	"strconv"
	"strings"
)

// Scheme identifies which provider a URL addresses.
type Scheme int

const (
	Regular Scheme = iota
	Search
	Archive
	Sftp
)

func (s Scheme) String() string {
	switch s {
	case Search:
		return "search"
	case Archive:
		return "archive"
	case Sftp:
		return "sftp"
	default:
		return "regular"
	}
}

func parseScheme(s string) (Scheme, bool) {
	switch s {
	case "search":
		return Search, true
	case "archive":
		return Archive, true
	case "sftp":
		return Sftp, true
	default:
		return Regular, false
	}
}

// URL is an addressable location: a scheme, an optional domain (the remote
// or search-root identity), a path, and two optional tail-suffix markers
// (uriLen, urnLen) that split Path into (base, rest, urn).
type URL struct {
	Scheme Scheme
	Domain string
	Path   string

	// uriLen is the byte length of the domain-specific tail of Path (the
	// "rest"); urnLen is the byte length of the display tail (the "urn"),
	// nested inside the uri tail. New clamps urnLen to uriLen; Parse keeps
	// the markers as written, and split clamps them when carving Path.
	uriLen int
	urnLen int
}

// FromPath constructs a plain local URL with no domain or tail markers.
func FromPath(p string) URL { return URL{Scheme: Regular, Path: path.Clean(p)} }

// New is the general constructor used by providers that need to set the
// uri/urn tail markers explicitly (e.g. a search or archive result).
func New(scheme Scheme, domain, p string, uriLen, urnLen int) URL {
	if urnLen > uriLen {
		urnLen = uriLen
	}
	return URL{Scheme: scheme, Domain: domain, Path: p, uriLen: uriLen, urnLen: urnLen}
}

// Parse decodes the wire format:
//
//	scheme://[domain][:uri[:urn]]/percent-encoded-path[#fragment]
//
// A trailing '~' on the scheme name means the path segment is already
// percent-decoded and must not be decoded again. The "regular" scheme is
// implicit: a string with no "scheme://" prefix parses as Regular with an
// empty domain.
func Parse(raw string) (URL, error) {
	schemePart, rest, hasScheme := strings.Cut(raw, "://")
	if !hasScheme {
		return URL{Scheme: Regular, Path: path.Clean(raw)}, nil
	}

	decoded := true
	name := schemePart
	if strings.HasSuffix(schemePart, "~") {
		decoded = false
		name = strings.TrimSuffix(schemePart, "~")
	}
	scheme, ok := parseScheme(name)
	if !ok && name != "regular" && name != "" {
		return URL{}, fmt.Errorf("vurl: unknown scheme %q", name)
	}

	domain, uriLen, urnLen := "", 0, 0
	pathPart := rest
	if slash := strings.IndexByte(rest, '/'); slash >= 0 {
		domain, uriLen, urnLen = splitHead(rest[:slash])
		pathPart = rest[slash:]
	} else {
		domain = rest
	}

	if scheme == Search && uriLen != urnLen {
		return URL{}, fmt.Errorf("vurl: search scheme requires uri == urn")
	}

	frag := ""
	if hash := strings.IndexByte(pathPart, '#'); hash >= 0 {
		frag = pathPart[hash+1:]
		pathPart = pathPart[:hash]
	}

	decodedPath := pathPart
	if decoded {
		if d, err := url.PathUnescape(pathPart); err == nil {
			decodedPath = d
		} else {
			return URL{}, fmt.Errorf("vurl: bad percent-encoding: %w", err)
		}
	}

	u := URL{Scheme: scheme, Domain: domain, Path: decodedPath, uriLen: uriLen, urnLen: urnLen}
	if frag != "" {
		u.Path = u.Path + "\x00" + frag
	}
	return u, nil
}

// splitHead separates "domain[:uri:urn]" into its parts. The formatter
// always writes the two markers together, so they are recognized from the
// right: the last two colon-separated fields, when both numeric and
// preceded by at least one domain field. Anything else (including a
// domain that itself contains colons, like "host:22") is all domain.
func splitHead(head string) (string, int, int) {
	fields := strings.Split(head, ":")
	if len(fields) >= 3 {
		uri, uriErr := strconv.Atoi(fields[len(fields)-2])
		urn, urnErr := strconv.Atoi(fields[len(fields)-1])
		if uriErr == nil && urnErr == nil && uri >= 0 && urn >= 0 {
			return strings.Join(fields[:len(fields)-2], ":"), uri, urn
		}
	}
	return head, 0, 0
}

// String formats the URL back into wire form. parse(format(u)) round-trips
// for any URL produced by Parse or New.
func (u URL) String() string {
	if u.Scheme == Regular && u.Domain == "" && u.uriLen == 0 && u.urnLen == 0 {
		return u.Path
	}

	p, frag := u.Path, ""
	if i := strings.IndexByte(p, '\x00'); i >= 0 {
		frag = p[i+1:]
		p = p[:i]
	}

	var b strings.Builder
	b.WriteString(u.Scheme.String())
	b.WriteString("://")
	b.WriteString(u.Domain)
	if u.uriLen != 0 || u.urnLen != 0 {
		fmt.Fprintf(&b, ":%d:%d", u.uriLen, u.urnLen)
	}
	if !strings.HasPrefix(p, "/") {
		b.WriteByte('/')
	}
	b.WriteString(escapePath(p))
	if frag != "" {
		b.WriteByte('#')
		b.WriteString(frag)
	}
	return b.String()
}

// escapePath percent-escapes each path segment while keeping the literal
// separators, so Parse can locate the head/path boundary at the first
// unescaped slash.
func escapePath(p string) string {
	segs := strings.Split(p, "/")
	for i, s := range segs {
		segs[i] = url.PathEscape(s)
	}
	return strings.Join(segs, "/")
}

// split divides Path into (base, rest, urn) using the uri/urn tail markers.
func (u URL) split() (base, rest, urn string) {
	l := len(u.Path)
	uriLen, urnLen := u.uriLen, u.urnLen
	if uriLen > l {
		uriLen = l
	}
	if urnLen > uriLen {
		urnLen = uriLen
	}
	return u.Path[:l-uriLen], u.Path[l-uriLen : l-urnLen], u.Path[l-urnLen:]
}

// Base returns the provider/domain-invariant prefix of the path: for a
// search result this is the search root; for a URL without tail markers
// (such as one from FromPath) it is the whole path.
func (u URL) Base() string {
	base, _, _ := u.split()
	return base
}

// Urn returns the display-name tail of the path. For a regular URL with no
// markers this is simply the final path component.
func (u URL) Urn() string {
	if u.urnLen == 0 {
		return path.Base(u.Path)
	}
	_, _, urn := u.split()
	return strings.TrimPrefix(urn, "/")
}

// Name is an alias of Urn kept for readability at call sites that think in
// terms of "file name" rather than "display suffix".
func (u URL) Name() string { return u.Urn() }

// Ext returns the file extension of Urn(), including the leading dot, or
// "" if there is none.
func (u URL) Ext() string {
	n := u.Urn()
	if i := strings.LastIndexByte(n, '.'); i > 0 {
		return n[i:]
	}
	return ""
}

// ParentURL returns the URL of the containing directory, or false if Path
// has no parent (it is already a root).
func (u URL) ParentURL() (URL, bool) {
	clean := strings.TrimSuffix(u.Path, "/")
	if clean == "" || clean == "/" || clean == "." {
		return URL{}, false
	}
	parent := path.Dir(clean)
	if parent == clean {
		return URL{}, false
	}
	return URL{Scheme: u.Scheme, Domain: u.Domain, Path: parent}, true
}

// Pair returns (parent, urn) the way the watcher's push-files path needs
// to split an incoming change into "which folder" and "which entry".
func (u URL) Pair() (URL, string, bool) {
	parent, ok := u.ParentURL()
	if !ok {
		return URL{}, "", false
	}
	return parent, u.Urn(), true
}

// Join appends a relative path component.
func (u URL) Join(rel string) URL {
	return URL{Scheme: u.Scheme, Domain: u.Domain, Path: path.Join(u.Path, rel)}
}

// StartsWith reports whether u is base or a descendant of base.
func (u URL) StartsWith(base URL) bool {
	if u.Path == base.Path {
		return true
	}
	return strings.HasPrefix(u.Path, strings.TrimSuffix(base.Path, "/")+"/")
}

// Covariant reports whether two URLs address the same logical location,
// ignoring scheme-specific ticket values carried in the domain. Two
// covariant URLs have equal paths and the same scheme.
func (u URL) Covariant(o URL) bool {
	return u.Scheme == o.Scheme && u.Path == o.Path
}

func (u URL) IsRegular() bool { return u.Scheme == Regular }
func (u URL) IsSearch() bool  { return u.Scheme == Search }
func (u URL) IsArchive() bool { return u.Scheme == Archive }
func (u URL) IsSftp() bool    { return u.Scheme == Sftp }

// Equal is strict equality (same scheme, domain, path, and markers),
// distinct from Covariant which ignores ticket-bearing domain content.
func (u URL) Equal(o URL) bool {
	return u.Scheme == o.Scheme && u.Domain == o.Domain && u.Path == o.Path &&
		u.uriLen == o.uriLen && u.urnLen == o.urnLen
}
