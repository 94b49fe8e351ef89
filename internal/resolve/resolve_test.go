package resolve

import (
	"context"
	"errors"
	"testing"

	"github.com/nextmx/resolved/framework/log"
)

var errLookupBroken = errors.New("backing store unavailable")

// staticList is a minimal module.List test double: exact-match against a
// fixed set, with an optional forced error to exercise the FAIL path.
type staticList struct {
	members map[string]bool
	err     error
}

func newList(members ...string) *staticList {
	m := make(map[string]bool, len(members))
	for _, x := range members {
		m[x] = true
	}
	return &staticList{members: m}
}

func (l *staticList) Match(name string) (bool, error) {
	if l.err != nil {
		return false, l.err
	}
	return l.members[name], nil
}

func baseContext() *Context {
	return &Context{
		MyHostname:       "mx.example.com",
		LocalDomains:     newList("example.com"),
		VirtualAlias:     newList(),
		VirtualMailbox:   newList(),
		RelayDomains:     newList(),
		LocalTransport:   "local",
		VirtualTransport: "virtual",
		RelayTransport:   "relay",
		DefaultTransport: "smtp",
		ErrorTransport:   "error",
		ResolveDequoted:  true,
		Log:              log.Logger{Name: "resolve-test"},
	}
}

func TestResolveBarePostmaster(t *testing.T) {
	e := NewEngine(baseContext())
	res := e.Resolve(context.Background(), Recipient, "")

	if res.Recipient != "postmaster@example.com" {
		t.Errorf("recipient = %q, want postmaster@example.com", res.Recipient)
	}
	if res.Channel != "local" || res.Nexthop != "mx.example.com" {
		t.Errorf("channel=%q nexthop=%q", res.Channel, res.Nexthop)
	}
	if res.Flags&Local == 0 {
		t.Errorf("flags = %v, want LOCAL set", res.Flags)
	}
}

func TestResolveLocalDomainStrip(t *testing.T) {
	e := NewEngine(baseContext())
	res := e.Resolve(context.Background(), Recipient, "alice@example.com")

	if res.Recipient != "alice@example.com" {
		t.Errorf("recipient = %q", res.Recipient)
	}
	if res.Channel != "local" || res.Nexthop != "mx.example.com" {
		t.Errorf("channel=%q nexthop=%q", res.Channel, res.Nexthop)
	}
	if res.Flags&Local == 0 {
		t.Errorf("flags = %v, want LOCAL", res.Flags)
	}
}

func TestResolveRemoteDefault(t *testing.T) {
	e := NewEngine(baseContext())
	res := e.Resolve(context.Background(), Recipient, "bob@other.org")

	if res.Recipient != "bob@other.org" {
		t.Errorf("recipient = %q", res.Recipient)
	}
	if res.Channel != "smtp" || res.Nexthop != "other.org" {
		t.Errorf("channel=%q nexthop=%q", res.Channel, res.Nexthop)
	}
	if res.Flags&Default == 0 {
		t.Errorf("flags = %v, want DEFAULT", res.Flags)
	}
}

func TestResolveRelayhostOverride(t *testing.T) {
	ctx := baseContext()
	ctx.Relayhost = "smart.isp.net"
	e := NewEngine(ctx)
	res := e.Resolve(context.Background(), Recipient, "bob@other.org")

	if res.Channel != "smtp" || res.Nexthop != "smart.isp.net" {
		t.Errorf("channel=%q nexthop=%q", res.Channel, res.Nexthop)
	}
	if res.Flags&Default == 0 {
		t.Errorf("flags = %v, want DEFAULT", res.Flags)
	}
}

func TestResolveRelayClassification(t *testing.T) {
	ctx := baseContext()
	ctx.RelayDomains = newList("client.org")
	e := NewEngine(ctx)
	res := e.Resolve(context.Background(), Recipient, "c@client.org")

	if res.Channel != "relay" || res.Nexthop != "client.org" {
		t.Errorf("channel=%q nexthop=%q", res.Channel, res.Nexthop)
	}
	if res.Flags&Relay == 0 {
		t.Errorf("flags = %v, want RELAY", res.Flags)
	}
}

func TestResolveSourceRoutedAttempt(t *testing.T) {
	e := NewEngine(baseContext())
	res := e.Resolve(context.Background(), Recipient, "a@b.org@c.org")

	if res.Recipient != "a@b.org@c.org" {
		t.Errorf("recipient = %q", res.Recipient)
	}
	if res.Flags&Routed == 0 {
		t.Errorf("flags = %v, want ROUTED set", res.Flags)
	}
}

func TestResolveChannelOverrideViaColon(t *testing.T) {
	ctx := baseContext()
	ctx.DefaultTransport = "smtp:relay.isp.net"
	e := NewEngine(ctx)
	res := e.Resolve(context.Background(), Recipient, "bob@other.org")

	if res.Channel != "smtp" || res.Nexthop != "relay.isp.net" {
		t.Errorf("channel=%q nexthop=%q", res.Channel, res.Nexthop)
	}
}

func TestResolveVirtualAliasUnknownUser(t *testing.T) {
	ctx := baseContext()
	ctx.VirtualAlias = newList("aliased.org")
	e := NewEngine(ctx)
	res := e.Resolve(context.Background(), Recipient, "x@aliased.org")

	if res.Channel != "error" || res.Nexthop != "User unknown" {
		t.Errorf("channel=%q nexthop=%q", res.Channel, res.Nexthop)
	}
	if res.Flags&Alias == 0 {
		t.Errorf("flags = %v, want ALIAS", res.Flags)
	}
}

func TestResolveVirtualMailbox(t *testing.T) {
	ctx := baseContext()
	ctx.VirtualMailbox = newList("hosted.org")
	e := NewEngine(ctx)
	res := e.Resolve(context.Background(), Recipient, "y@hosted.org")

	if res.Channel != "virtual" {
		t.Errorf("channel=%q", res.Channel)
	}
	if res.Flags&Virtual == 0 {
		t.Errorf("flags = %v, want VIRTUAL", res.Flags)
	}
}

func TestResolveListLookupErrorSetsFail(t *testing.T) {
	ctx := baseContext()
	ctx.RelayDomains = &staticList{err: errLookupBroken}
	e := NewEngine(ctx)
	res := e.Resolve(context.Background(), Recipient, "bob@other.org")

	if res.Flags&Fail == 0 {
		t.Errorf("flags = %v, want FAIL set on lookup error", res.Flags)
	}
}

func TestResolveInvalidHostnameIsError(t *testing.T) {
	e := NewEngine(baseContext())
	res := e.Resolve(context.Background(), Recipient, "bob@..bad..")

	if res.Flags&Error == 0 {
		t.Errorf("flags = %v, want ERROR for an invalid domain", res.Flags)
	}
}

func TestResolveRelocatedOverride(t *testing.T) {
	ctx := baseContext()
	ctx.Relocated = staticTable{"bob@other.org": "bob@new-employer.com"}
	e := NewEngine(ctx)
	res := e.Resolve(context.Background(), Recipient, "bob@other.org")

	if res.Channel != "error" || res.Nexthop != "user has moved to bob@new-employer.com" {
		t.Errorf("channel=%q nexthop=%q", res.Channel, res.Nexthop)
	}
}

func TestResolveTransportMapOverrideSkipsErrorTransport(t *testing.T) {
	ctx := baseContext()
	ctx.VirtualAlias = newList("aliased.org")
	ctx.TransportMap = staticTable{"x@aliased.org": "smtp:should-not-apply.example"}
	e := NewEngine(ctx)
	res := e.Resolve(context.Background(), Recipient, "x@aliased.org")

	// the error-transport guard (phase 7) means a prior "user unknown"
	// classification must never be reclassified by the transport map.
	if res.Channel != "error" {
		t.Errorf("channel=%q, want error (guard should block the transport map override)", res.Channel)
	}
}

type staticTable map[string]string

func (s staticTable) Lookup(key string) (string, bool, error) {
	v, ok := s[key]
	return v, ok, nil
}
