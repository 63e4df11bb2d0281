// Package grid implements the image-collision patch protocol: terminal
// image protocols paint out-of-band, so the text grid under an image must
// be marked "skip" and, once any cell has been skipped, repainted via a
// raw patch pass that bypasses the normal diffing renderer so the
// terminal doesn't get a chance to overwrite the image with stale text.
// Uses charmbracelet/x/ansi for the raw cursor-positioning and SGR reset
// sequences the patch pass writes directly to the terminal.
package grid

import (
	"io"

	"github.com/charmbracelet/x/ansi"
)

// Cell is one terminal character cell: the rune plus whether an image
// protocol currently owns this cell (Skip) and must not be overwritten
// by the normal diffed render path.
type Cell struct {
	Rune rune
	Skip bool
}

// Grid is the render loop's model of the visible terminal area.
type Grid struct {
	w, h  int
	cells []Cell

	// collision latches true once any cell in the current frame had
	// Skip set; it is cleared only when the image region is hidden.
	collision bool
}

func New(w, h int) *Grid {
	return &Grid{w: w, h: h, cells: make([]Cell, w*h)}
}

func (g *Grid) idx(x, y int) int { return y*g.w + x }

func (g *Grid) inBounds(x, y int) bool { return x >= 0 && x < g.w && y >= 0 && y < g.h }

// Reserve marks the cells in [x,y,w,h) as image-owned, latching
// Collision for this frame.
func (g *Grid) Reserve(x, y, w, h int) {
	for yy := y; yy < y+h; yy++ {
		for xx := x; xx < x+w; xx++ {
			if g.inBounds(xx, yy) {
				i := g.idx(xx, yy)
				g.cells[i].Skip = true
				g.collision = true
			}
		}
	}
}

// Release clears the skip bit over [x,y,w,h) and, if no other cell in the
// grid is still marked, clears Collision: the image is hidden first, then
// the collision clears.
func (g *Grid) Release(x, y, w, h int) {
	for yy := y; yy < y+h; yy++ {
		for xx := x; xx < x+w; xx++ {
			if g.inBounds(xx, yy) {
				g.cells[g.idx(xx, yy)].Skip = false
			}
		}
	}
	g.collision = g.anySkipped()
}

func (g *Grid) anySkipped() bool {
	for _, c := range g.cells {
		if c.Skip {
			return true
		}
	}
	return false
}

func (g *Grid) Collision() bool { return g.collision }

// Set writes r into the normally-diffed render path; cells under an image
// silently discard the write so the diffing renderer's idea of "this
// cell changed" never fires for a region the image owns.
func (g *Grid) Set(x, y int, r rune) {
	if !g.inBounds(x, y) {
		return
	}
	i := g.idx(x, y)
	if g.cells[i].Skip {
		return
	}
	g.cells[i].Rune = r
}

// WriteLine sets consecutive cells starting at (x, y) from line, skipping
// ahead by each rune's display width so double-width glyphs (CJK,
// emoji) don't desync the grid from what the terminal actually occupies.
func (g *Grid) WriteLine(x, y int, line string) {
	col := x
	for _, r := range line {
		g.Set(col, y, r)
		col += ansi.StringWidth(string(r))
		if col-x > g.w {
			break
		}
	}
}

// Patch re-emits every Skip cell directly to w using raw CUP cursor
// moves, bypassing the normal diffing renderer entirely, and resets the
// style afterwards so the patch can't bleed attributes into later
// frames.
func (g *Grid) Patch(w io.Writer) error {
	if !g.collision {
		return nil
	}
	for y := 0; y < g.h; y++ {
		for x := 0; x < g.w; x++ {
			c := g.cells[g.idx(x, y)]
			if !c.Skip {
				continue
			}
			if _, err := io.WriteString(w, ansi.CursorPosition(x+1, y+1)); err != nil {
				return err
			}
			if _, err := io.WriteString(w, string(c.Rune)); err != nil {
				return err
			}
		}
	}
	_, err := io.WriteString(w, ansi.ResetStyle)
	return err
}
