package tab

import (
	"testing"

	"github.com/marcus/ember/internal/vurl"
)

func u(p string) vurl.URL { return vurl.FromPath(p) }

func TestSelectedInsertNonConflicting(t *testing.T) {
	s := NewSelected()
	if !s.Add(u("/a/b")) || !s.Add(u("/c/d")) {
		t.Fatalf("expected both non-conflicting adds to succeed")
	}
	if s.Len() != 2 {
		t.Fatalf("len = %d, want 2", s.Len())
	}
}

func TestSelectedInsertConflictingParent(t *testing.T) {
	s := NewSelected()
	if !s.Add(u("/a")) {
		t.Fatalf("expected /a to be added")
	}
	if s.Add(u("/a/b")) {
		t.Fatalf("/a/b must be rejected: /a is already a selected ancestor")
	}
}

func TestSelectedInsertConflictingChild(t *testing.T) {
	s := NewSelected()
	if !s.Add(u("/a/b/c")) {
		t.Fatalf("expected /a/b/c to be added")
	}
	if s.Add(u("/a/b")) {
		t.Fatalf("/a/b must be rejected: it is an ancestor of a selected entry")
	}
	if !s.Add(u("/a/b/d")) {
		t.Fatalf("sibling /a/b/d must still be addable")
	}
}

func TestSelectedRemove(t *testing.T) {
	s := NewSelected()
	s.Add(u("/a/b"))
	if s.Remove(u("/a/c")) {
		t.Fatalf("removing an absent url must report false")
	}
	if !s.Remove(u("/a/b")) {
		t.Fatalf("removing a present url must report true")
	}
	if s.Remove(u("/a/b")) {
		t.Fatalf("double-remove must report false")
	}
	if s.Len() != 0 {
		t.Fatalf("expected empty selection")
	}
}

func TestSelectedAddSameManySuccess(t *testing.T) {
	s := NewSelected()
	n := s.addSame([]vurl.URL{u("/parent/child1"), u("/parent/child2"), u("/parent/child3")})
	if n != 3 {
		t.Fatalf("addSame = %d, want 3", n)
	}
}

func TestSelectedAddSameWithExistingParentFails(t *testing.T) {
	s := NewSelected()
	s.Add(u("/parent"))
	n := s.addSame([]vurl.URL{u("/parent/child1"), u("/parent/child2")})
	if n != 0 {
		t.Fatalf("addSame = %d, want 0", n)
	}
}

func TestSelectedAddSameWithExistingChildSucceedsForSiblings(t *testing.T) {
	s := NewSelected()
	s.Add(u("/parent/child1"))
	n := s.addSame([]vurl.URL{u("/parent/child1"), u("/parent/child2")})
	if n != 2 {
		t.Fatalf("addSame = %d, want 2", n)
	}
}

func TestSelectedAddSameEmpty(t *testing.T) {
	s := NewSelected()
	if n := s.addSame(nil); n != 0 {
		t.Fatalf("addSame(nil) = %d, want 0", n)
	}
}

func TestSelectedAddSameParentAsChildOfAnother(t *testing.T) {
	s := NewSelected()
	s.Add(u("/parent/child"))
	n := s.addSame([]vurl.URL{u("/parent/child/child1"), u("/parent/child/child2")})
	if n != 0 {
		t.Fatalf("addSame = %d, want 0", n)
	}
}

func TestSelectedAddSameDirectParentFails(t *testing.T) {
	s := NewSelected()
	s.Add(u("/a"))
	if n := s.addSame([]vurl.URL{u("/a/b")}); n != 0 {
		t.Fatalf("addSame = %d, want 0", n)
	}
}

func TestSelectedAddSameNestedChildFails(t *testing.T) {
	s := NewSelected()
	s.Add(u("/a/b"))
	if n := s.addSame([]vurl.URL{u("/a")}); n != 0 {
		t.Fatalf("addSame = %d, want 0", n)
	}
	if n := s.addSame([]vurl.URL{u("/b"), u("/a")}); n != 1 {
		t.Fatalf("addSame = %d, want 1", n)
	}
}

func TestSelectedAddSameSiblingDirectoriesSuccess(t *testing.T) {
	s := NewSelected()
	if n := s.addSame([]vurl.URL{u("/a/b"), u("/a/c")}); n != 2 {
		t.Fatalf("addSame = %d, want 2", n)
	}
}

func TestSelectedAddSameGrandchildFails(t *testing.T) {
	s := NewSelected()
	s.Add(u("/a/b"))
	if n := s.addSame([]vurl.URL{u("/a/b/c")}); n != 0 {
		t.Fatalf("addSame = %d, want 0", n)
	}
}

func TestSelectedInsertManyWithRemove(t *testing.T) {
	s := NewSelected()
	c1, c2, c3 := u("/parent/child1"), u("/parent/child2"), u("/parent/child3")
	if n := s.addSame([]vurl.URL{c1, c2, c3}); n != 3 {
		t.Fatalf("addSame = %d, want 3", n)
	}

	if !s.Remove(c1) {
		t.Fatalf("expected remove c1 to succeed")
	}
	if s.Len() != 2 {
		t.Fatalf("len = %d, want 2", s.Len())
	}

	s.Remove(c2)
	s.Remove(c3)
	if s.Len() != 0 {
		t.Fatalf("expected empty selection after removing all children")
	}
	if len(s.parents) != 0 {
		t.Fatalf("expected parents map to be empty, got %v", s.parents)
	}
}
