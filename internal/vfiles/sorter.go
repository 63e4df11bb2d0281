package vfiles

import (
	"sort"
	"strings"
)

// SortBy selects the comparison key: None leaves scan order untouched,
// Natural compares names only (ties keep their prior order), and
// everything else sorts then falls back to Alphabetical on ties.
type SortBy int

const (
	SortNone SortBy = iota
	SortAlphabetical
	SortNatural
	SortModified
	SortCreated
	SortExtension
	SortSize
)

// Sorter configures how Files.recompute orders the visible slice.
type Sorter struct {
	By        SortBy
	Sensitive bool
	Reverse   bool
	DirFirst  bool
}

// sort reorders items in place. sizes supplies the explicitly-computed
// directory sizes used by SortSize, keyed by Urn.
func (s Sorter) sort(items []File, sizes map[string]uint64) {
	if len(items) == 0 || s.By == SortNone {
		return
	}

	alphabetical := func(a, b File) int {
		an, bn := a.Urn(), b.Urn()
		if !s.Sensitive {
			an, bn = strings.ToUpper(an), strings.ToUpper(bn)
		}
		return s.cmpString(an, bn, a, b)
	}

	var less func(a, b File) bool
	switch s.By {
	case SortModified:
		less = func(a, b File) bool {
			if c := s.cmpTime(a.Cha.MTime, b.Cha.MTime, a, b); c != 0 {
				return c < 0
			}
			return alphabetical(a, b) < 0
		}
	case SortCreated:
		less = func(a, b File) bool {
			if c := s.cmpTime(a.Cha.BTime, b.Cha.BTime, a, b); c != 0 {
				return c < 0
			}
			return alphabetical(a, b) < 0
		}
	case SortExtension:
		less = func(a, b File) bool {
			ae, be := a.URL.Ext(), b.URL.Ext()
			if !s.Sensitive {
				ae, be = strings.ToLower(ae), strings.ToLower(be)
			}
			if c := s.cmpString(ae, be, a, b); c != 0 {
				return c < 0
			}
			return alphabetical(a, b) < 0
		}
	case SortSize:
		less = func(a, b File) bool {
			asz, bsz := a.Cha.Len, b.Cha.Len
			if a.IsDir() {
				if v, ok := sizes[a.Urn()]; ok {
					asz = v
				}
			}
			if b.IsDir() {
				if v, ok := sizes[b.Urn()]; ok {
					bsz = v
				}
			}
			if c := s.cmpUint(asz, bsz, a, b); c != 0 {
				return c < 0
			}
			return alphabetical(a, b) < 0
		}
	case SortNatural:
		sortNatural(items, s)
		return
	default: // SortAlphabetical
		less = func(a, b File) bool { return alphabetical(a, b) < 0 }
	}

	sort.SliceStable(items, func(i, j int) bool { return less(items[i], items[j]) })
}

func sortNatural(items []File, s Sorter) {
	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i], items[j]
		if p := s.promote(a, b); p != 0 {
			return p < 0
		}
		an, bn := a.Urn(), b.Urn()
		ord := naturalCompare(an, bn, !s.Sensitive)
		if s.Reverse {
			ord = -ord
		}
		return ord < 0
	})
}

func (s Sorter) promote(a, b File) int {
	if !s.DirFirst {
		return 0
	}
	ad, bd := a.IsDir(), b.IsDir()
	if ad == bd {
		return 0
	}
	if ad {
		return -1
	}
	return 1
}

func (s Sorter) cmpString(a, b string, fa, fb File) int {
	if p := s.promote(fa, fb); p != 0 {
		return p
	}
	c := strings.Compare(a, b)
	if s.Reverse {
		c = -c
	}
	return c
}

func (s Sorter) cmpUint(a, b uint64, fa, fb File) int {
	if p := s.promote(fa, fb); p != 0 {
		return p
	}
	c := 0
	switch {
	case a < b:
		c = -1
	case a > b:
		c = 1
	}
	if s.Reverse {
		c = -c
	}
	return c
}

func (s Sorter) cmpTime(a, b interface{ Unix() int64 }, fa, fb File) int {
	if p := s.promote(fa, fb); p != 0 {
		return p
	}
	c := 0
	switch {
	case a.Unix() < b.Unix():
		c = -1
	case a.Unix() > b.Unix():
		c = 1
	}
	if s.Reverse {
		c = -c
	}
	return c
}

// naturalCompare compares two strings the way a human expects a sequence
// of embedded numbers to compare ("file2" < "file10"). foldCase lowercases
// non-numeric runs before comparing.
func naturalCompare(a, b string, foldCase bool) int {
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		ca, cb := a[i], b[j]
		if isDigit(ca) && isDigit(cb) {
			si, sj := i, j
			for i < len(a) && isDigit(a[i]) {
				i++
			}
			for j < len(b) && isDigit(b[j]) {
				j++
			}
			na, nb := strings.TrimLeft(a[si:i], "0"), strings.TrimLeft(b[sj:j], "0")
			if len(na) != len(nb) {
				if len(na) < len(nb) {
					return -1
				}
				return 1
			}
			if c := strings.Compare(na, nb); c != 0 {
				return c
			}
			continue
		}

		x, y := ca, cb
		if foldCase {
			x, y = foldByte(x), foldByte(y)
		}
		if x != y {
			if x < y {
				return -1
			}
			return 1
		}
		i++
		j++
	}
	switch {
	case len(a)-i < len(b)-j:
		return -1
	case len(a)-i > len(b)-j:
		return 1
	default:
		return 0
	}
}

func isDigit(b byte) bool { return b >= '0' && b <= '9' }

func foldByte(b byte) byte {
	if b >= 'A' && b <= 'Z' {
		return b - 'A' + 'a'
	}
	return b
}
