package vurl

import "testing"

func TestParseFormatRoundTrip(t *testing.T) {
	cases := []URL{
		FromPath("/home/user/file.txt"),
		New(Search, "12:12", "/home/user/needle.txt", 12, 12),
		New(Archive, "zip-1", "/tmp/a.zip/inner/file.txt", 16, 9),
		New(Sftp, "host:22", "/srv/data", 0, 0),
	}

	for _, u := range cases {
		s := u.String()
		got, err := Parse(s)
		if err != nil {
			t.Fatalf("Parse(%q): %v", s, err)
		}
		if !got.Equal(u) {
			t.Errorf("round trip: %q -> %+v, want %+v", s, got, u)
		}
		if !got.Covariant(u) {
			t.Errorf("round trip not covariant: %q -> %+v, want %+v", s, got, u)
		}
	}
}

func TestRegularImplicitScheme(t *testing.T) {
	u, err := Parse("/a/b/c")
	if err != nil {
		t.Fatal(err)
	}
	if u.Scheme != Regular || u.Path != "/a/b/c" {
		t.Fatalf("got %+v", u)
	}
}

func TestUrnDefaultsToBasename(t *testing.T) {
	u := FromPath("/a/b/c.txt")
	if got := u.Urn(); got != "c.txt" {
		t.Errorf("Urn() = %q, want c.txt", got)
	}
}

func TestPair(t *testing.T) {
	u := FromPath("/a/b/c.txt")
	parent, urn, ok := u.Pair()
	if !ok || urn != "c.txt" || parent.Path != "/a/b" {
		t.Fatalf("Pair() = (%+v, %q, %v)", parent, urn, ok)
	}
}

func TestParentURLAtRoot(t *testing.T) {
	u := FromPath("/")
	if _, ok := u.ParentURL(); ok {
		t.Error("expected no parent for root")
	}
}

func TestCovarianceIgnoresDomainTicket(t *testing.T) {
	a := New(Search, "ticket-1", "/a/b", 4, 4)
	b := New(Search, "ticket-2", "/a/b", 4, 4)
	if !a.Covariant(b) {
		t.Error("expected covariance across differing domain tickets")
	}
	if a.Equal(b) {
		t.Error("Equal should be strict and differ on domain")
	}
}

func TestStartsWith(t *testing.T) {
	base := FromPath("/a/b")
	if !FromPath("/a/b/c").StartsWith(base) {
		t.Error("expected descendant to start with base")
	}
	if FromPath("/a/bc").StartsWith(base) {
		t.Error("/a/bc should not start with /a/b")
	}
}

func TestSearchRequiresEqualMarkers(t *testing.T) {
	if _, err := Parse("search://dom:4:2/foo"); err == nil {
		t.Error("expected error for search scheme with uri != urn")
	}
}
