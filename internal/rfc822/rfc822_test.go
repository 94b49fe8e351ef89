package rfc822

import "testing"

func TestInternalizeNoQuotingNeeded(t *testing.T) {
	cases := []string{
		"alice@example.com",
		"bob.smith@other.org",
		"postmaster",
		"a@b.org@c.org",
	}
	for _, in := range cases {
		tree := Scan(in)
		if got := Internalize(tree); got != in {
			t.Errorf("Internalize(Scan(%q)) = %q, want %q", in, got, in)
		}
	}
}

func TestExternalizeQuotesSpecials(t *testing.T) {
	tree := Scan(`"john doe"@example.com`)
	if got, want := Internalize(tree), `john doe@example.com`; got != want {
		t.Errorf("Internalize = %q, want %q", got, want)
	}
	if got, want := Externalize(tree), `"john doe"@example.com`; got != want {
		t.Errorf("Externalize = %q, want %q", got, want)
	}
}

func TestScanDropsComments(t *testing.T) {
	tree := Scan("alice(this is a remark)@example.com")
	if got, want := Internalize(tree), "alice@example.com"; got != want {
		t.Errorf("Internalize = %q, want %q", got, want)
	}
}

func TestScanAddrGroup(t *testing.T) {
	tree := Scan("Alice <alice@example.com>")
	first := tree.First(tree.head)
	foundAddr := false
	for h := first; h != nilH; h = tree.Next(h) {
		if tree.Kind(h) == Addr {
			foundAddr = true
			inner := Internalize2(tree, tree.Children(h))
			if inner != "alice@example.com" {
				t.Errorf("Addr children = %q, want alice@example.com", inner)
			}
		}
	}
	if !foundAddr {
		t.Fatal("expected an Addr token for <alice@example.com>")
	}
}

// Internalize2 renders a sub-list starting at head, used by the test
// above to inspect an Addr token's nested content directly.
func Internalize2(t *Tree, head Handle) string {
	return render(t, head, false)
}

func TestIsSingleEmptyQstring(t *testing.T) {
	tree := Scan(`""`)
	if !IsSingleEmptyQstring(tree) {
		t.Error("expected IsSingleEmptyQstring to be true for a bare empty qstring")
	}

	tree2 := Scan(`alice@example.com`)
	if IsSingleEmptyQstring(tree2) {
		t.Error("expected IsSingleEmptyQstring to be false for a normal address")
	}
}

func TestRfindType(t *testing.T) {
	tree := Scan("bob@other.org")
	var last Handle = nilH
	for h := tree.First(tree.head); h != nilH; h = tree.Next(h) {
		last = h
	}
	at := RfindType(tree, last, At)
	if at == nilH || tree.Kind(at) != At {
		t.Fatal("expected to find an '@' token preceding the domain")
	}
}

func TestSubKeepBeforeAndAppend(t *testing.T) {
	tree := Scan("a@b.org@c.org")

	var at2 Handle = nilH
	count := 0
	for h := tree.First(tree.head); h != nilH; h = tree.Next(h) {
		if tree.Kind(h) == At {
			count++
			if count == 2 {
				at2 = h
			}
		}
	}
	if at2 == nilH {
		t.Fatal("expected two '@' tokens in a@b.org@c.org")
	}

	domain := SubKeepBefore(tree, at2)
	if got, want := Internalize(tree), "a@b.org"; got != want {
		t.Errorf("remainder after SubKeepBefore = %q, want %q", got, want)
	}
	if got, want := Internalize(domain), "@c.org"; got != want {
		t.Errorf("detached suffix = %q, want %q", got, want)
	}

	SubAppend(tree, domain)
	if got, want := Internalize(tree), "a@b.org@c.org"; got != want {
		t.Errorf("after SubAppend = %q, want %q", got, want)
	}
}
