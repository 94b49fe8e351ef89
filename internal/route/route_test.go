package route

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/foxcpp/go-mockdns"

	"github.com/nextmx/resolved/internal/dns"
)

func newTestEngine(t *testing.T, zones map[string]mockdns.Zone, ownAddrs []net.IP) *Engine {
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
	cl := dns.NewClientWithPort([]string{host}, port, time.Second)
	return NewEngine(cl, ownAddrs)
}

func TestDomainAddrOrdinaryMX(t *testing.T) {
	e := newTestEngine(t, map[string]mockdns.Zone{
		"example.org.": {
			MX: []net.MX{
				{Host: "mx2.example.org.", Pref: 20},
				{Host: "mx1.example.org.", Pref: 10},
			},
		},
		"mx1.example.org.": {A: []string{"192.0.2.1"}},
		"mx2.example.org.": {A: []string{"192.0.2.2"}},
	}, nil)

	st, recs, diag := e.DomainAddr(context.Background(), "example.org")
	if st != dns.OK {
		t.Fatalf("status = %v, diag = %q", st, diag)
	}
	if len(recs) != 2 {
		t.Fatalf("got %d records, want 2: %+v", len(recs), recs)
	}
	if recs[0].Data != "192.0.2.1" || recs[0].Pref != 10 {
		t.Errorf("recs[0] = %+v, want pref-10 mx1 address first", recs[0])
	}
	if recs[1].Data != "192.0.2.2" || recs[1].Pref != 20 {
		t.Errorf("recs[1] = %+v, want pref-20 mx2 address second", recs[1])
	}
}

func TestDomainAddrFallsBackToHostAddr(t *testing.T) {
	e := newTestEngine(t, map[string]mockdns.Zone{
		"noMX.example.org.": {A: []string{"192.0.2.9"}},
	}, nil)

	st, recs, diag := e.DomainAddr(context.Background(), "noMX.example.org")
	if st != dns.OK {
		t.Fatalf("status = %v, diag = %q", st, diag)
	}
	if len(recs) != 1 || recs[0].Data != "192.0.2.9" || recs[0].Pref != 0 {
		t.Fatalf("recs = %+v", recs)
	}
}

func TestDomainAddrSelfTruncationMidList(t *testing.T) {
	e := newTestEngine(t, map[string]mockdns.Zone{
		"t.org.": {
			MX: []net.MX{
				{Host: "mx.example.com.", Pref: 10},
				{Host: "backup.t.org.", Pref: 20},
			},
		},
		"mx.example.com.": {A: []string{"192.0.2.1"}},
		"backup.t.org.":   {A: []string{"192.0.2.100"}},
	}, []net.IP{net.ParseIP("192.0.2.100")})

	st, recs, diag := e.DomainAddr(context.Background(), "t.org")
	if st != dns.OK {
		t.Fatalf("status = %v, diag = %q", st, diag)
	}
	if len(recs) != 1 || recs[0].Data != "192.0.2.1" || recs[0].Pref != 10 {
		t.Fatalf("recs = %+v, want only the pref-10 entry ahead of self", recs)
	}
}

func TestDomainAddrSelfTruncationAtFirstEntryFails(t *testing.T) {
	e := newTestEngine(t, map[string]mockdns.Zone{
		"t.org.": {
			MX: []net.MX{
				{Host: "mx.example.com.", Pref: 10},
			},
		},
		"mx.example.com.": {A: []string{"192.0.2.1"}},
	}, []net.IP{net.ParseIP("192.0.2.1")})

	st, recs, diag := e.DomainAddr(context.Background(), "t.org")
	if st != dns.Fail {
		t.Fatalf("status = %v, want FAIL", st)
	}
	if recs != nil {
		t.Errorf("recs = %+v, want nil", recs)
	}
	if diag != "mail for t.org loops back to myself" {
		t.Errorf("diag = %q", diag)
	}
}

func TestDomainAddrEmptyResultIsRetryOrNotFound(t *testing.T) {
	e := newTestEngine(t, map[string]mockdns.Zone{
		"t.org.": {
			MX: []net.MX{
				{Host: "ghost.t.org.", Pref: 10},
			},
		},
		// ghost.t.org. deliberately has no A record: the MX lookup
		// succeeds but every per-MX A lookup comes back NOT_FOUND.
	}, nil)

	st, recs, _ := e.DomainAddr(context.Background(), "t.org")
	if st != dns.Retry && st != dns.NotFound {
		t.Fatalf("status = %v, want a soft/negative status", st)
	}
	if recs != nil {
		t.Errorf("recs = %+v, want nil", recs)
	}
}

func TestHostAddrDottedQuad(t *testing.T) {
	e := NewEngine(dns.NewClient(nil, time.Second), nil)

	st, recs, diag := e.HostAddr(context.Background(), "192.0.2.1")
	if st != dns.OK {
		t.Fatalf("status = %v, diag = %q", st, diag)
	}
	if len(recs) != 1 || recs[0].Data != "192.0.2.1" || recs[0].Pref != 0 {
		t.Fatalf("recs = %+v", recs)
	}
}
