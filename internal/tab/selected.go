// Package tab implements per-tab navigation state: the selection set with
// ancestor/descendant conflict rejection, the mode state machine, directory
// history, and the back/forward stack.
package tab

import "github.com/marcus/ember/internal/vurl"

// Selected is the set of selected URLs, rejecting any addition that would
// create an ancestor/descendant conflict: you cannot select a directory
// that is already an ancestor of a selected entry, nor an entry that is a
// descendant of an already-selected directory.
type Selected struct {
	inner   map[vurl.URL]struct{}
	parents map[vurl.URL]int
}

func NewSelected() *Selected {
	return &Selected{inner: make(map[vurl.URL]struct{}), parents: make(map[vurl.URL]int)}
}

func (s *Selected) Len() int { return len(s.inner) }

func (s *Selected) Contains(u vurl.URL) bool {
	_, ok := s.inner[u]
	return ok
}

// Urls returns the current selection as a slice, in no particular order.
func (s *Selected) Urls() []vurl.URL {
	out := make([]vurl.URL, 0, len(s.inner))
	for u := range s.inner {
		out = append(out, u)
	}
	return out
}

// Add inserts a single url, returning whether it was accepted.
func (s *Selected) Add(u vurl.URL) bool { return s.addSame([]vurl.URL{u}) == 1 }

// AddMany inserts several urls. When same is true all urls are assumed to
// already share a parent and are processed as a single group (the fast
// path); otherwise they are regrouped by parent before being processed.
func (s *Selected) AddMany(urls []vurl.URL, same bool) int {
	if same {
		return s.addSame(urls)
	}
	groups := groupByParent(urls)
	total := 0
	for _, g := range groups {
		total += s.addSame(g)
	}
	return total
}

func (s *Selected) addSame(urls []vurl.URL) int {
	filtered := make([]vurl.URL, 0, len(urls))
	for _, u := range urls {
		if _, isParent := s.parents[u]; !isParent {
			filtered = append(filtered, u)
		}
	}
	if len(filtered) == 0 {
		return 0
	}

	var parents []vurl.URL
	parent, ok := filtered[0].ParentURL()
	for ok {
		if s.Contains(parent) {
			return 0
		}
		parents = append(parents, parent)
		parent, ok = parent.ParentURL()
	}

	before := len(s.inner)
	for _, u := range filtered {
		s.inner[u] = struct{}{}
	}
	delta := len(s.inner) - before
	for _, p := range parents {
		s.parents[p] += delta
	}
	return len(filtered)
}

// Remove deletes a single url, returning whether it was present.
func (s *Selected) Remove(u vurl.URL) bool { return s.removeSame([]vurl.URL{u}) == 1 }

func (s *Selected) RemoveMany(urls []vurl.URL, same bool) int {
	if same {
		return s.removeSame(urls)
	}
	groups := groupByParent(urls)
	total := 0
	for _, g := range groups {
		total += s.removeSame(g)
	}
	return total
}

func (s *Selected) removeSame(urls []vurl.URL) int {
	count := 0
	for _, u := range urls {
		if _, ok := s.inner[u]; ok {
			delete(s.inner, u)
			count++
		}
	}
	if count == 0 {
		return 0
	}

	parent, ok := urls[0].ParentURL()
	for ok {
		n := s.parents[parent] - count
		if n <= 0 {
			delete(s.parents, parent)
		} else {
			s.parents[parent] = n
		}
		parent, ok = parent.ParentURL()
	}
	return count
}

func (s *Selected) Clear() {
	s.inner = make(map[vurl.URL]struct{})
	s.parents = make(map[vurl.URL]int)
}

func groupByParent(urls []vurl.URL) [][]vurl.URL {
	order := make([]vurl.URL, 0)
	groups := make(map[vurl.URL][]vurl.URL)
	for _, u := range urls {
		p, ok := u.ParentURL()
		if !ok {
			continue
		}
		if _, seen := groups[p]; !seen {
			order = append(order, p)
		}
		groups[p] = append(groups[p], u)
	}
	out := make([][]vurl.URL, 0, len(order))
	for _, p := range order {
		out = append(out, groups[p])
	}
	return out
}
