// Package dns implements the C6 DNS resolver client: a thin miekg/dns
// wrapper that classifies every answer into the resolver's own
// OK/NOT_FOUND/FAIL/RETRY taxonomy instead of miekg/dns's raw RCODEs,
// and follows a bounded chain of CNAME indirections transparently.
//
// Grounded on framework/dns/dnssec.go's ExtResolver, which already wraps
// miekg/dns.Client.ExchangeContext and classifies RCODE into a
// caller-facing error; this package narrows that to the four-way status
// the resolver cascade expects and adds the CNAME chase C7 needs.
package dns

import (
	"context"
	"net"
	"strconv"
	"time"

	"github.com/miekg/dns"
)

// Status is the C6 lookup status taxonomy.
type Status int

const (
	// OK is an authoritative or cached positive answer.
	OK Status = iota
	// NotFound is an authoritative negative (NXDOMAIN, or NOERROR with
	// no records of the queried type).
	NotFound
	// Fail is a permanent lookup rejection (REFUSED, FORMERR, NOTIMP,
	// or malformed response).
	Fail
	// Retry is a soft failure: SERVFAIL, timeout, or network error.
	Retry
)

func (s Status) String() string {
	switch s {
	case OK:
		return "OK"
	case NotFound:
		return "NOT_FOUND"
	case Fail:
		return "FAIL"
	case Retry:
		return "RETRY"
	default:
		return "UNKNOWN"
	}
}

// TypeA re-exports miekg/dns's A-record query type so callers outside
// this package never need to import miekg/dns directly just to stamp a
// synthesized Record's Type field.
const TypeA = dns.TypeA

// Record is a DNS resource record trimmed to the fields the resolver
// cascade and C7 care about. Pref is meaningful only for MX records.
type Record struct {
	Name string
	Type uint16
	TTL  uint32
	Pref uint16
	Data string // IP literal for A, hostname for MX/CNAME
}

// maxCNAMEChase bounds the number of CNAME indirections followed before
// a lookup gives up and reports FAIL, guarding against a indirection
// loop between two misconfigured zones.
const maxCNAMEChase = 8

// Client issues MX/A queries against a configured set of resolvers and
// classifies the result. It holds no mutable state after construction,
// so one Client is safely shared by every concurrent connection C5
// serves.
type Client struct {
	cl      *dns.Client
	servers []string
	port    string
}

// NewClient builds a Client from an explicit list of server addresses
// (host, no port — see NewClientFromConfig for /etc/resolv.conf).
// timeout bounds each individual exchange.
func NewClient(servers []string, timeout time.Duration) *Client {
	return NewClientWithPort(servers, "53", timeout)
}

// NewClientWithPort is NewClient with an explicit server port, for
// resolvers reachable on a non-standard port (test doubles, DNS proxies).
func NewClientWithPort(servers []string, port string, timeout time.Duration) *Client {
	return &Client{
		cl:      &dns.Client{Timeout: timeout, Net: "udp"},
		servers: servers,
		port:    port,
	}
}

// NewClientFromConfig builds a Client from the system's /etc/resolv.conf,
// falling back to a single localhost resolver if it cannot be read.
func NewClientFromConfig(timeout time.Duration) *Client {
	cfg, err := dns.ClientConfigFromFile("/etc/resolv.conf")
	if err != nil || len(cfg.Servers) == 0 {
		return NewClient([]string{"127.0.0.1"}, timeout)
	}
	c := NewClient(cfg.Servers, timeout)
	c.port = cfg.Port
	return c
}

func classifyRcode(rcode int) Status {
	switch rcode {
	case dns.RcodeSuccess:
		return OK
	case dns.RcodeNameError:
		return NotFound
	case dns.RcodeServerFailure:
		return Retry
	default:
		return Fail
	}
}

// exchange tries every configured server in turn, treating a
// transport-level error as a soft failure worth trying the next server,
// and returns the first response actually received.
func (c *Client) exchange(ctx context.Context, msg *dns.Msg) (*dns.Msg, error) {
	var lastErr error
	for _, srv := range c.servers {
		resp, _, err := c.cl.ExchangeContext(ctx, msg, net.JoinHostPort(srv, c.port))
		if err != nil {
			lastErr = err
			continue
		}
		return resp, nil
	}
	if lastErr == nil {
		lastErr = context.DeadlineExceeded
	}
	return nil, lastErr
}

// classifyTransportErr turns a transport-level error (context deadline,
// connection refused, etc.) into the soft-failure RETRY status, since
// C6's contract has no place for "could not even reach a server."
func classifyTransportErr(err error) (Status, string) {
	if err == nil {
		return OK, ""
	}
	if ctxErr, ok := err.(net.Error); ok && ctxErr.Timeout() {
		return Retry, "dns: timeout: " + err.Error()
	}
	return Retry, "dns: " + err.Error()
}

// lookupRaw performs a single, non-CNAME-following query for qtype and
// classifies the response.
func (c *Client) lookupRaw(ctx context.Context, name string, qtype uint16) (Status, *dns.Msg, string) {
	msg := new(dns.Msg)
	msg.SetQuestion(dns.Fqdn(name), qtype)
	msg.RecursionDesired = true

	resp, err := c.exchange(ctx, msg)
	if err != nil {
		st, diag := classifyTransportErr(err)
		return st, nil, diag
	}

	if resp.Rcode == dns.RcodeSuccess && len(answersOfType(resp, qtype)) == 0 && len(answersOfType(resp, dns.TypeCNAME)) == 0 {
		return NotFound, resp, ""
	}

	st := classifyRcode(resp.Rcode)
	if st != OK {
		return st, resp, "dns: rcode " + dns.RcodeToString[resp.Rcode] + " looking up " + name
	}
	return OK, resp, ""
}

func answersOfType(msg *dns.Msg, qtype uint16) []dns.RR {
	var out []dns.RR
	for _, rr := range msg.Answer {
		if rr.Header().Rrtype == qtype {
			out = append(out, rr)
		}
	}
	return out
}

func cnameTarget(msg *dns.Msg) (string, bool) {
	for _, rr := range msg.Answer {
		if c, ok := rr.(*dns.CNAME); ok {
			return c.Target, true
		}
	}
	return "", false
}

// Lookup is C6's capability contract: query name for qtype, transparently
// chasing up to maxCNAMEChase indirections, and classify the outcome
// into OK/NOT_FOUND/FAIL/RETRY plus a human-readable diagnostic.
func (c *Client) Lookup(ctx context.Context, name string, qtype uint16) (Status, []Record, string) {
	cur := name
	for hop := 0; hop < maxCNAMEChase; hop++ {
		st, resp, diag := c.lookupRaw(ctx, cur, qtype)
		if st != OK {
			return st, nil, diag
		}

		if recs := answersOfType(resp, qtype); len(recs) > 0 {
			return OK, toRecords(recs, qtype), ""
		}

		target, ok := cnameTarget(resp)
		if !ok {
			// NOERROR with neither the queried type nor a CNAME: treat
			// as an authoritative negative.
			return NotFound, nil, ""
		}
		cur = target
	}
	return Fail, nil, "dns: CNAME chain exceeds " + strconv.Itoa(maxCNAMEChase) + " hops at " + cur
}

// LookupMX is the MX-specific convenience form C7 calls first.
func (c *Client) LookupMX(ctx context.Context, name string) (Status, []Record, string) {
	return c.Lookup(ctx, name, dns.TypeMX)
}

// LookupA is the A-specific convenience form C7 calls per-MX and for
// host-form resolution.
func (c *Client) LookupA(ctx context.Context, name string) (Status, []Record, string) {
	return c.Lookup(ctx, name, dns.TypeA)
}

func toRecords(rrs []dns.RR, qtype uint16) []Record {
	out := make([]Record, 0, len(rrs))
	for _, rr := range rrs {
		switch qtype {
		case dns.TypeMX:
			mx := rr.(*dns.MX)
			out = append(out, Record{Name: mx.Hdr.Name, Type: qtype, TTL: mx.Hdr.Ttl, Pref: mx.Preference, Data: mx.Mx})
		case dns.TypeA:
			a := rr.(*dns.A)
			out = append(out, Record{Name: a.Hdr.Name, Type: qtype, TTL: a.Hdr.Ttl, Data: a.A.String()})
		case dns.TypeAAAA:
			aaaa := rr.(*dns.AAAA)
			out = append(out, Record{Name: aaaa.Hdr.Name, Type: qtype, TTL: aaaa.Hdr.Ttl, Data: aaaa.AAAA.String()})
		}
	}
	return out
}
