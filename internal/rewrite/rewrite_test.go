package rewrite

import (
	"bufio"
	"context"
	"net"
	"testing"
	"time"

	"github.com/nextmx/resolved/framework/log"
	"github.com/nextmx/resolved/internal/attrproto"
	"github.com/nextmx/resolved/internal/rfc822"
)

// startEchoRewriter runs a one-shot server that answers every request
// with the externalized form of the requested addr, unchanged, so the
// test can focus on wire framing and cache behavior rather than any
// particular rewrite rule's semantics.
func startEchoRewriter(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func() {
				defer conn.Close()
				rec, err := attrproto.ReadRecord(bufio.NewReader(conn))
				if err != nil {
					return
				}
				addr, _ := rec.Get("addr")
				w := bufio.NewWriter(conn)
				attrproto.WriteRecord(w, attrproto.NewRecord("addr", addr))
			}()
		}
	}()
	t.Cleanup(func() { ln.Close() })
	return ln.Addr().String()
}

func TestClientRewriteRoundTrip(t *testing.T) {
	addr := startEchoRewriter(t)

	c := &Client{
		log:     log.Logger{Name: modName},
		network: "tcp",
		addr:    addr,
		timeout: time.Second,
	}

	tree := rfc822.Scan("alice@example.com")
	out, err := c.Rewrite(context.Background(), "canonical", tree)
	if err != nil {
		t.Fatalf("Rewrite: %v", err)
	}
	if got, want := rfc822.Internalize(out), "alice@example.com"; got != want {
		t.Errorf("Internalize(out) = %q, want %q", got, want)
	}
}
