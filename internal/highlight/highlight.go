// Package highlight implements the text preview highlighter: resolve a
// chroma lexer by extension/filename/first-line,
// tokenize "before" lines together with the visible window so multi-line
// constructs (block comments, here-docs) keep correct color across the
// window boundary, and fall back to a plain, unstyled copy when no lexer
// matches or a line is too long to be a reasonable highlight target.
// Styled output is a plain Span struct rather than a terminal-specific
// type since this package has no rendering layer to hand styled text to.
package highlight

import (
	"context"
	"errors"
	"strings"

	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/alecthomas/chroma/v2/styles"
)

// maxLineBytes guards against feeding a minified file (a single
// multi-megabyte line) into the tokenizer.
const maxLineBytes = 6000

// ErrExceed signals that skip was non-zero and the window [skip,
// skip+limit) ran past the end of the file; Max is the corrected skip
// (total lines minus limit, possibly negative) the scroller should clamp to.
type ErrExceed struct{ Max int }

func (e ErrExceed) Error() string { return "highlight: skip exceeds file length" }

var ErrCancelled = errors.New("highlight: cancelled")

// Span is one contiguous run of text sharing a style.
type Span struct {
	Text      string
	Color     string // empty if unset
	Bold      bool
	Underline bool
}

// Line is one rendered, possibly-styled source line.
type Line struct {
	Spans []Span
}

// PlainLine wraps raw text as a single unstyled span, the fallback used
// whenever no lexer resolves or a line exceeds maxLineBytes.
func PlainLine(text string) Line { return Line{Spans: []Span{{Text: text}}} }

// Ticket is a cooperative cancellation token. Compare against a captured
// snapshot between lines; if it has advanced, the caller's ticket is
// stale and the highlighter aborts with ErrCancelled.
type Ticket func() uint64

// Highlighter resolves a lexer once per (path, firstLine) pair and reuses
// it across Peek calls against the same file.
type Highlighter struct {
	lexer chroma.Lexer
	style *chroma.Style
}

// New resolves a lexer for path, trying filename match, then extension,
// then the first-line heuristic chroma's lexers.Analyse performs. A nil
// *Highlighter from New is valid and always falls back to PlainLine.
func New(path string, firstLine string, styleName string) *Highlighter {
	lexer := lexers.Match(path)
	if lexer == nil && firstLine != "" {
		lexer = lexers.Analyse(firstLine)
	}
	if lexer == nil {
		return nil
	}

	style := styles.Get(styleName)
	if style == nil {
		style = styles.Fallback
	}
	return &Highlighter{lexer: chroma.Coalesce(lexer), style: style}
}

// Peek renders the window [skip, skip+limit) of lines, returns
// ErrExceed if skip is non-zero and the window runs past the end of the
// file, and ErrCancelled if ticket reports the cancellation counter
// advanced mid-pass.
func (h *Highlighter) Peek(ctx context.Context, lines []string, skip, limit int, ticket Ticket) ([]Line, error) {
	if skip > len(lines) {
		skip = len(lines)
	}
	end := skip + limit
	if end > len(lines) {
		end = len(lines)
	}

	for _, l := range lines[skip:end] {
		if len(l) > maxLineBytes {
			return h.plain(lines[skip:end]), checkExceed(skip, limit, len(lines))
		}
	}

	if h == nil || h.lexer == nil {
		return h.plain(lines[skip:end]), checkExceed(skip, limit, len(lines))
	}

	before := strings.Join(lines[:skip], "\n")
	window := strings.Join(lines[skip:end], "\n")
	combined := before
	if before != "" && window != "" {
		combined += "\n"
	}
	combined += window

	baseTicket := currentTicket(ticket)
	iter, err := h.lexer.Tokenise(nil, combined)
	if err != nil {
		return h.plain(lines[skip:end]), checkExceed(skip, limit, len(lines))
	}

	rendered, err := h.render(ctx, iter, skip, end-skip, ticket, baseTicket)
	if err != nil {
		return nil, err
	}
	return rendered, checkExceed(skip, limit, len(lines))
}

func currentTicket(t Ticket) uint64 {
	if t == nil {
		return 0
	}
	return t()
}

// render walks the token stream, discarding output for the first
// `skipLines` lines (the priming pass) and collecting `limit` lines of
// styled spans after that, checking the cancellation ticket once per
// emitted line.
func (h *Highlighter) render(ctx context.Context, iter chroma.Iterator, skipLines, limit int, ticket Ticket, baseTicket uint64) ([]Line, error) {
	var out []Line
	var cur Line
	lineNo := 0

	flush := func() {
		if lineNo >= skipLines && lineNo < skipLines+limit {
			out = append(out, cur)
		}
		cur = Line{}
		lineNo++
	}

	for _, tok := range iter.Tokens() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if ticket != nil && ticket() != baseTicket {
			return nil, ErrCancelled
		}

		parts := strings.Split(tok.Value, "\n")
		for i, part := range parts {
			if part != "" && lineNo >= skipLines && lineNo < skipLines+limit {
				cur.Spans = append(cur.Spans, h.spanFor(tok.Type, part))
			}
			if i < len(parts)-1 {
				flush()
			}
		}
		if lineNo >= skipLines+limit {
			break
		}
	}
	if len(cur.Spans) > 0 && lineNo >= skipLines && lineNo < skipLines+limit {
		out = append(out, cur)
	}
	return out, nil
}

func (h *Highlighter) spanFor(tt chroma.TokenType, text string) Span {
	entry := h.style.Get(tt)
	s := Span{Text: text}
	if entry.Colour.IsSet() {
		s.Color = entry.Colour.String()
	}
	s.Bold = entry.Bold == chroma.Yes
	s.Underline = entry.Underline == chroma.Yes
	return s
}

func (h *Highlighter) plain(lines []string) []Line {
	out := make([]Line, len(lines))
	for i, l := range lines {
		out[i] = PlainLine(l)
	}
	return out
}

func checkExceed(skip, limit, total int) error {
	if skip > 0 && total < skip+limit {
		return ErrExceed{Max: total - limit}
	}
	return nil
}
