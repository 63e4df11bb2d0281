package tab

import "github.com/marcus/ember/internal/vurl"

// Backstack is the back/forward navigation history `cd` pushes onto. Forward entries are discarded
// whenever a new URL is pushed, the same truncate-on-branch rule a
// browser's history stack follows.
type Backstack struct {
	back    []vurl.URL
	forward []vurl.URL
}

func NewBackstack() *Backstack { return &Backstack{} }

// Push records cur as a back-entry and clears any forward history.
func (b *Backstack) Push(cur vurl.URL) {
	b.back = append(b.back, cur)
	b.forward = nil
}

// Back pops the most recent back-entry, pushing from onto the forward
// stack so Forward can return to it.
func (b *Backstack) Back(from vurl.URL) (vurl.URL, bool) {
	if len(b.back) == 0 {
		return vurl.URL{}, false
	}
	n := len(b.back) - 1
	u := b.back[n]
	b.back = b.back[:n]
	b.forward = append(b.forward, from)
	return u, true
}

// Forward pops the most recent forward-entry, pushing from back onto the
// back stack.
func (b *Backstack) Forward(from vurl.URL) (vurl.URL, bool) {
	if len(b.forward) == 0 {
		return vurl.URL{}, false
	}
	n := len(b.forward) - 1
	u := b.forward[n]
	b.forward = b.forward[:n]
	b.back = append(b.back, from)
	return u, true
}

func (b *Backstack) CanBack() bool    { return len(b.back) > 0 }
func (b *Backstack) CanForward() bool { return len(b.forward) > 0 }
