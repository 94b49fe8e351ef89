package resolve

import (
	"bufio"
	"net"
	"strconv"
	"testing"
	"time"

	hclog "github.com/hashicorp/go-hclog"

	"github.com/nextmx/resolved/framework/log"
	"github.com/nextmx/resolved/internal/attrproto"
	coreresolve "github.com/nextmx/resolved/internal/resolve"
)

type staticList map[string]bool

func (l staticList) Match(name string) (bool, error) { return l[name], nil }

// startTestEndpoint wires a resolve.Engine directly (bypassing config.Map
// parsing, which Init needs only to translate on-disk directives into the
// same Context fields) and starts the C5 accept loop against a loopback
// listener, mirroring internal/rewrite/rewrite_test.go's startEchoRewriter.
func startTestEndpoint(t *testing.T) string {
	t.Helper()

	rctx := &coreresolve.Context{
		MyHostname:       "mx.example.com",
		LocalDomains:     staticList{"example.com": true},
		VirtualAlias:     staticList{},
		VirtualMailbox:   staticList{},
		RelayDomains:     staticList{},
		LocalTransport:   "local",
		DefaultTransport: "smtp",
		ErrorTransport:   "error",
		ResolveDequoted:  true,
		Log:              log.Logger{Name: "resolve-endpoint-test"},
	}

	endp := &Endpoint{
		log:     log.Logger{Name: modName},
		trace:   hclog.NewNullLogger(),
		timeout: time.Second,
		engine:  coreresolve.NewEngine(rctx),
	}

	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	endp.listeners = append(endp.listeners, l)
	endp.listenersWg.Add(1)
	go func() {
		defer endp.listenersWg.Done()
		endp.serve(l)
	}()
	t.Cleanup(func() { endp.Close() })

	return l.Addr().String()
}

func TestEndpointResolvesLocalRecipient(t *testing.T) {
	addr := startTestEndpoint(t)

	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	w := bufio.NewWriter(conn)
	if err := attrproto.WriteRecord(w, attrproto.NewRecord("addr", "alice@example.com")); err != nil {
		t.Fatalf("write request: %v", err)
	}

	rec, err := attrproto.ReadRecord(bufio.NewReader(conn))
	if err != nil {
		t.Fatalf("read reply: %v", err)
	}
	if err := attrproto.Strict(rec, "transport", "nexthop", "recipient", "flags"); err != nil {
		t.Fatalf("reply shape: %v", err)
	}

	transport, _ := rec.Get("transport")
	nexthop, _ := rec.Get("nexthop")
	recipient, _ := rec.Get("recipient")
	flagsStr, _ := rec.Get("flags")

	if transport != "local" || nexthop != "mx.example.com" {
		t.Errorf("transport=%q nexthop=%q", transport, nexthop)
	}
	if recipient != "alice@example.com" {
		t.Errorf("recipient = %q", recipient)
	}
	flags, err := strconv.Atoi(flagsStr)
	if err != nil {
		t.Fatalf("flags not an integer: %q", flagsStr)
	}
	if coreresolve.Flags(flags)&coreresolve.Local == 0 {
		t.Errorf("flags = %v, want LOCAL set", coreresolve.Flags(flags))
	}
}

func TestEndpointServesMultipleRequestsPerConnection(t *testing.T) {
	addr := startTestEndpoint(t)

	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	w := bufio.NewWriter(conn)
	r := bufio.NewReader(conn)

	for _, want := range []string{"alice@example.com", "bob@other.org"} {
		if err := attrproto.WriteRecord(w, attrproto.NewRecord("addr", want)); err != nil {
			t.Fatalf("write request: %v", err)
		}
		rec, err := attrproto.ReadRecord(r)
		if err != nil {
			t.Fatalf("read reply: %v", err)
		}
		recipient, _ := rec.Get("recipient")
		if recipient != want {
			t.Errorf("recipient = %q, want %q", recipient, want)
		}
	}
}

func TestEndpointClosesOnMalformedRequest(t *testing.T) {
	addr := startTestEndpoint(t)

	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	w := bufio.NewWriter(conn)
	// "addr" plus an unknown attribute violates strict parsing (spec §6).
	if err := attrproto.WriteRecord(w, attrproto.NewRecord("addr", "x@example.com", "bogus", "1")); err != nil {
		t.Fatalf("write request: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 1)
	if _, err := conn.Read(buf); err == nil {
		t.Fatalf("expected session to close on malformed request, got a byte instead")
	}
}
