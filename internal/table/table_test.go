package table

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/nextmx/resolved/framework/config"
	"github.com/nextmx/resolved/framework/module"
)

func mustInit(t *testing.T, mod interface {
	Init(*config.Map) error
}, block config.Node) {
	t.Helper()
	if err := mod.Init(config.NewMap(nil, block)); err != nil {
		t.Fatalf("Init: %v", err)
	}
}

func TestStaticInlineEntries(t *testing.T) {
	m, err := NewStatic("table.static", "test", nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	s := m.(*Static)
	mustInit(t, s, config.Node{
		Children: []config.Node{
			{Name: "entry", Args: []string{"alice", "alice@example.com"}},
			{Name: "entry", Args: []string{"Bob", "bob@example.com"}},
		},
	})

	v, ok, err := s.Lookup("alice")
	if err != nil || !ok || v != "alice@example.com" {
		t.Fatalf("Lookup(alice) = (%q, %v, %v)", v, ok, err)
	}
	// keys are folded to lowercase
	v, ok, err = s.Lookup("BOB")
	if err != nil || !ok || v != "bob@example.com" {
		t.Fatalf("Lookup(BOB) = (%q, %v, %v)", v, ok, err)
	}

	if _, ok, _ := s.Lookup("carol"); ok {
		t.Fatal("Lookup(carol) should miss")
	}

	if err := s.SetKey("carol", "carol@example.com"); err != nil {
		t.Fatalf("SetKey: %v", err)
	}
	v, ok, err = s.Lookup("carol")
	if err != nil || !ok || v != "carol@example.com" {
		t.Fatalf("Lookup(carol) after SetKey = (%q, %v, %v)", v, ok, err)
	}

	if err := s.RemoveKey("carol"); err != nil {
		t.Fatalf("RemoveKey: %v", err)
	}
	if _, ok, _ := s.Lookup("carol"); ok {
		t.Fatal("Lookup(carol) should miss after RemoveKey")
	}
}

func TestStaticFileBacked(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "aliases")
	if err := os.WriteFile(path, []byte("dave: dave@example.com\n# a comment\n\nerin: erin@example.com\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	m, err := NewStatic("table.static", "test", nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	s := m.(*Static)
	mustInit(t, s, config.Node{
		Children: []config.Node{
			{Name: "files", Args: []string{path}},
		},
	})
	defer s.Close()

	v, ok, err := s.Lookup("dave")
	if err != nil || !ok || v != "dave@example.com" {
		t.Fatalf("Lookup(dave) = (%q, %v, %v)", v, ok, err)
	}
	v, ok, err = s.Lookup("erin")
	if err != nil || !ok || v != "erin@example.com" {
		t.Fatalf("Lookup(erin) = (%q, %v, %v)", v, ok, err)
	}
}

func TestListParentStyle(t *testing.T) {
	m, err := NewList("table.list", "test", nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	l := m.(*List)
	mustInit(t, l, config.Node{
		Children: []config.Node{
			{Name: "entries", Args: []string{"example.com"}},
		},
	})

	for _, name := range []string{"example.com", "a.example.com", "deep.a.example.com"} {
		ok, err := l.Match(name)
		if err != nil || !ok {
			t.Errorf("Match(%q) = (%v, %v), want (true, nil)", name, ok, err)
		}
	}
	if ok, err := l.Match("notexample.com"); err != nil || ok {
		t.Errorf("Match(notexample.com) = (%v, %v), want (false, nil)", ok, err)
	}
}

func TestListExactStyle(t *testing.T) {
	m, err := NewList("table.list", "test", nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	l := m.(*List)
	mustInit(t, l, config.Node{
		Children: []config.Node{
			{Name: "parent_style", Args: []string{"no"}},
			{Name: "entries", Args: []string{"example.com"}},
		},
	})

	if ok, _ := l.Match("example.com"); !ok {
		t.Error("Match(example.com) should hit")
	}
	if ok, _ := l.Match("a.example.com"); ok {
		t.Error("Match(a.example.com) should miss in exact style")
	}
}

func TestChainFeedsEachStepResultToNext(t *testing.T) {
	lower, _ := NewRegexp("table.regexp", "t1", nil, []string{"^(.*)$", "${1}"})
	if err := lower.Init(config.NewMap(nil, config.Node{})); err != nil {
		t.Fatal(err)
	}

	idM, _ := NewIdentity("table.identity", "t2", nil, nil)
	_ = idM.Init(config.NewMap(nil, config.Node{}))

	c := &Chain{
		modName:  "table.chain",
		instName: "test",
		steps:    []module.Table{lower.(module.Table), idM.(module.Table)},
		optional: []bool{false, false},
	}

	v, ok, err := c.Lookup("hello")
	if err != nil || !ok || v != "hello" {
		t.Fatalf("Lookup(hello) = (%q, %v, %v)", v, ok, err)
	}
}

func TestEmailLocalpart(t *testing.T) {
	m, _ := NewEmailLocalpart("table.email_localpart", "t", nil, nil)
	s := m.(*EmailLocalpart)
	mustInit(t, s, config.Node{})

	v, ok, err := s.Lookup("alice@example.com")
	if err != nil || !ok || v != "alice" {
		t.Fatalf("Lookup = (%q, %v, %v)", v, ok, err)
	}
	if _, ok, _ := s.Lookup("not-an-email"); ok {
		t.Fatal("Lookup(not-an-email) should miss for the strict variant")
	}
}

func TestEmailLocalpartOptional(t *testing.T) {
	m, _ := NewEmailLocalpart("table.email_localpart_optional", "t", nil, nil)
	s := m.(*EmailLocalpart)
	mustInit(t, s, config.Node{})

	v, ok, err := s.Lookup("not-an-email")
	if err != nil || !ok || v != "not-an-email" {
		t.Fatalf("Lookup = (%q, %v, %v)", v, ok, err)
	}
}

func TestEmailWithDomain(t *testing.T) {
	m, _ := NewEmailWithDomain("table.email_with_domain", "t", nil, []string{"example.com"})
	s := m.(*EmailWithDomain)
	mustInit(t, s, config.Node{})

	v, ok, err := s.Lookup("alice")
	if err != nil || !ok || v != "alice@example.com" {
		t.Fatalf("Lookup = (%q, %v, %v)", v, ok, err)
	}
}
