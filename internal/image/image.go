// Package image implements the Adapter layer: detecting which
// terminal image protocol is available (Kitty, iTerm2, Sixel, or the
// Chafa ASCII-art fallback) and showing/hiding an image at a computed
// rect. Built on github.com/blacktop/go-termimg, which already implements
// protocol auto-detection and the Kitty/iTerm2/Sixel encoders this module
// would otherwise have to hand-roll; Chafa is invoked as an external
// fallback renderer when no native protocol is available.
package image

import (
	"context"
	"fmt"
	"os/exec"

	termimg "github.com/blacktop/go-termimg"
)

// Protocol identifies which terminal image mechanism Show will use.
type Protocol int

const (
	ProtoNone Protocol = iota
	ProtoKitty
	ProtoITerm2
	ProtoSixel
	ProtoChafa
)

// Rect is the terminal-cell region an image occupies, used both to paint
// it and to reserve the matching cells in internal/grid.
type Rect struct {
	X, Y, W, H int
}

// Adapter detects the active protocol once and reuses it for every Show.
type Adapter struct {
	protocol Protocol
}

// Detect probes the terminal for Kitty/iTerm2/Sixel support via
// go-termimg, falling back to Chafa (an external binary) if none of the
// native protocols are available.
func Detect() *Adapter {
	if termimg.IsKittySupported() {
		return &Adapter{protocol: ProtoKitty}
	}
	if termimg.IsITerm2Supported() {
		return &Adapter{protocol: ProtoITerm2}
	}
	if termimg.IsSixelSupported() {
		return &Adapter{protocol: ProtoSixel}
	}
	if _, err := exec.LookPath("chafa"); err == nil {
		return &Adapter{protocol: ProtoChafa}
	}
	return &Adapter{protocol: ProtoNone}
}

func (a *Adapter) Protocol() Protocol { return a.protocol }

// Show renders path into rect, returning the actual rect painted (some
// protocols snap to character-cell-aligned boundaries, so this may differ
// slightly from the request).
func (a *Adapter) Show(ctx context.Context, path string, rect Rect) (Rect, error) {
	switch a.protocol {
	case ProtoKitty, ProtoITerm2, ProtoSixel:
		img, err := termimg.Open(path)
		if err != nil {
			return Rect{}, err
		}
		img = img.SetPosition(rect.X, rect.Y).SetSize(rect.W, rect.H)
		if err := img.Render(); err != nil {
			return Rect{}, err
		}
		return rect, nil
	case ProtoChafa:
		return a.showChafa(ctx, path, rect)
	default:
		return Rect{}, fmt.Errorf("image: no terminal image protocol available")
	}
}

func (a *Adapter) showChafa(ctx context.Context, path string, rect Rect) (Rect, error) {
	cmd := exec.CommandContext(ctx, "chafa",
		"--size", fmt.Sprintf("%dx%d", rect.W, rect.H),
		path,
	)
	if err := cmd.Run(); err != nil {
		return Rect{}, err
	}
	return rect, nil
}

// Hide clears painted images for the native protocols (Kitty/iTerm2/
// Sixel) through go-termimg's ClearAll, which removes every image it
// painted, not only the one in rect; rect is not used. For Chafa and
// ProtoNone it does nothing.
func (a *Adapter) Hide(rect Rect) {
	if a.protocol == ProtoKitty || a.protocol == ProtoITerm2 || a.protocol == ProtoSixel {
		termimg.ClearAll()
	}
}

// Erase is the area-clearing entry point. It delegates to Hide, so it
// clears every natively painted image rather than only rect.
func (a *Adapter) Erase(rect Rect) {
	a.Hide(rect)
}
