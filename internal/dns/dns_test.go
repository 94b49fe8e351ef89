package dns

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/foxcpp/go-mockdns"
)

func newTestClient(t *testing.T, zones map[string]mockdns.Zone) *Client {
	t.Helper()
	srv, err := mockdns.NewServer(zones, false)
	if err != nil {
		t.Fatalf("mockdns.NewServer: %v", err)
	}
	t.Cleanup(func() { srv.Close() })

	host, port, err := net.SplitHostPort(srv.LocalAddr().String())
	if err != nil {
		t.Fatalf("SplitHostPort: %v", err)
	}

	return NewClientWithPort([]string{host}, port, time.Second)
}

func TestLookupMXReturnsRecordsOrderedAsServed(t *testing.T) {
	c := newTestClient(t, map[string]mockdns.Zone{
		"example.org.": {
			MX: []net.MX{
				{Host: "mx2.example.org.", Pref: 20},
				{Host: "mx1.example.org.", Pref: 10},
			},
		},
	})

	st, recs, diag := c.LookupMX(context.Background(), "example.org")
	if st != OK {
		t.Fatalf("status = %v, diag = %q", st, diag)
	}
	if len(recs) != 2 {
		t.Fatalf("got %d records, want 2", len(recs))
	}
	if recs[0].Data != "mx2.example.org." || recs[0].Pref != 20 {
		t.Errorf("recs[0] = %+v", recs[0])
	}
}

func TestLookupNotFound(t *testing.T) {
	c := newTestClient(t, map[string]mockdns.Zone{})

	st, recs, _ := c.LookupMX(context.Background(), "nowhere.invalid")
	if st != NotFound {
		t.Fatalf("status = %v, want NOT_FOUND", st)
	}
	if recs != nil {
		t.Errorf("recs = %v, want nil", recs)
	}
}

func TestLookupChasesCNAME(t *testing.T) {
	c := newTestClient(t, map[string]mockdns.Zone{
		"alias.example.org.":  {CNAME: "real.example.org."},
		"real.example.org.":   {A: []string{"192.0.2.1"}},
	})

	st, recs, diag := c.LookupA(context.Background(), "alias.example.org")
	if st != OK {
		t.Fatalf("status = %v, diag = %q", st, diag)
	}
	if len(recs) != 1 || recs[0].Data != "192.0.2.1" {
		t.Fatalf("recs = %+v", recs)
	}
}

func TestLookupRetryOnTransportFailure(t *testing.T) {
	// point the client at a port nothing is listening on to force a
	// transport-level failure, which must classify as RETRY rather
	// than propagating a raw network error.
	c := NewClient([]string{"127.0.0.1"}, 50*time.Millisecond)
	c.port = "1" // reserved, nothing listens here

	st, recs, diag := c.LookupA(context.Background(), "example.org")
	if st != Retry {
		t.Fatalf("status = %v, want RETRY, diag = %q", st, diag)
	}
	if recs != nil {
		t.Errorf("recs = %v, want nil", recs)
	}
}
