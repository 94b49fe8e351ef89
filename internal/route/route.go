// Package route implements the C7 MX/A lookup engine: given a next-hop
// domain, produce an ordered candidate address list a delivery agent can
// try in sequence, or a host-form address for a literal destination.
//
// Grounded on target/remote/remote.go's lookupAndFilter/lookupMX (MX
// lookup, stable pref-sort, per-MX fallback to A/AAAA when no MX exists)
// adapted onto the C6 dns.Client status taxonomy instead of maddy's
// exterrors.SMTPError wrapping, and extended with the self-truncation
// rule this spec requires that the teacher's MTA-STS/DNSSEC/common-domain
// MX authentication has no equivalent of.
package route

import (
	"context"
	"net"
	"sort"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/nextmx/resolved/internal/dns"
)

var (
	lookupDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "mx_lookup_duration_seconds",
		Help:    "Time spent resolving a next-hop domain to a candidate address list.",
		Buckets: prometheus.DefBuckets,
	})
	lookupStatusTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "mx_lookup_status_total",
		Help: "Next-hop lookups, labeled by the resulting dns.Status.",
	}, []string{"status"})
)

func init() {
	prometheus.MustRegister(lookupDuration, lookupStatusTotal)
}

// Engine resolves next-hop domains to ordered address lists. One Engine
// is shared by every delivery attempt; OwnAddrs is fixed at construction
// time from the process's listening addresses.
type Engine struct {
	cl       *dns.Client
	ownAddrs map[string]struct{}
}

// NewEngine builds an Engine. ownAddrs is the process's own listening
// addresses (spec's own_inet_addr_list), given as IP literals; an A
// record whose address matches one of these marks a mail loop back to
// this host.
func NewEngine(cl *dns.Client, ownAddrs []net.IP) *Engine {
	m := make(map[string]struct{}, len(ownAddrs))
	for _, ip := range ownAddrs {
		m[ip.String()] = struct{}{}
	}
	return &Engine{cl: cl, ownAddrs: m}
}

func (e *Engine) isSelf(addr string) bool {
	ip := net.ParseIP(addr)
	if ip == nil {
		return false
	}
	_, ok := e.ownAddrs[ip.String()]
	return ok
}

// worstStatus combines two non-OK statuses, a being the one seen first:
// FAIL wins if either is FAIL, so a single permanent rejection among
// several soft per-MX failures still reports as FAIL; otherwise a is kept.
func worstStatus(a, b dns.Status) dns.Status {
	if a == dns.Fail || b == dns.Fail {
		return dns.Fail
	}
	return a
}

// DomainAddr resolves name to an ordered candidate address list via
// MX -> A, falling back to A-only resolution of name itself when no MX
// record exists, and truncating the list at the first self-match.
func (e *Engine) DomainAddr(ctx context.Context, name string) (dns.Status, []dns.Record, string) {
	start := time.Now()
	st, recs, diag := e.domainAddr(ctx, name)
	lookupDuration.Observe(time.Since(start).Seconds())
	lookupStatusTotal.WithLabelValues(st.String()).Inc()
	return st, recs, diag
}

func (e *Engine) domainAddr(ctx context.Context, name string) (dns.Status, []dns.Record, string) {
	st, mxs, diag := e.cl.LookupMX(ctx, name)
	switch st {
	case dns.Fail:
		return dns.Fail, nil, diag
	case dns.NotFound:
		return e.hostAddr(ctx, name)
	case dns.OK:
		// fall through
	default:
		return dns.Retry, nil, diag
	}

	sort.SliceStable(mxs, func(i, j int) bool {
		return mxs[i].Pref < mxs[j].Pref
	})

	var (
		result     []dns.Record
		worst      dns.Status
		worstDiag  string
		sawFailure bool
	)
	for _, mx := range mxs {
		// An MX right-hand side that is itself an IP literal needs no
		// further lookup: treat it as a one-element A result.
		if ip := net.ParseIP(mx.Data); ip != nil && ip.To4() != nil {
			result = append(result, dns.Record{Name: mx.Data, Type: dns.TypeA, Data: ip.String(), Pref: mx.Pref})
			continue
		}

		ast, arecs, adiag := e.cl.LookupA(ctx, mx.Data)
		if ast != dns.OK {
			if !sawFailure {
				worst, worstDiag = ast, adiag
				sawFailure = true
			} else {
				worst = worstStatus(worst, ast)
			}
			continue
		}
		for _, a := range arecs {
			a.Pref = mx.Pref
			result = append(result, a)
		}
	}

	if len(result) == 0 {
		if sawFailure {
			return worst, nil, worstDiag
		}
		return dns.Retry, nil, "route: no address found for " + name
	}

	return e.truncateAtSelf(name, result)
}

// HostAddr resolves a host-form next-hop: a dotted-quad literal
// synthesizes a single pref=0 record, everything else is an A-only
// lookup with every record stamped pref=0.
func (e *Engine) HostAddr(ctx context.Context, host string) (dns.Status, []dns.Record, string) {
	start := time.Now()
	st, recs, diag := e.hostAddr(ctx, host)
	lookupDuration.Observe(time.Since(start).Seconds())
	lookupStatusTotal.WithLabelValues(st.String()).Inc()
	return st, recs, diag
}

func (e *Engine) hostAddr(ctx context.Context, host string) (dns.Status, []dns.Record, string) {
	if ip := net.ParseIP(host); ip != nil && ip.To4() != nil {
		return dns.OK, []dns.Record{{Name: host, Type: dns.TypeA, Data: ip.String(), Pref: 0}}, ""
	}

	st, recs, diag := e.cl.LookupA(ctx, host)
	if st != dns.OK {
		return st, nil, diag
	}
	for i := range recs {
		recs[i].Pref = 0
	}
	return e.truncateAtSelf(host, recs)
}

// truncateAtSelf implements the self-truncation rule: the first record
// whose address matches one of the process's own listening addresses is
// "self"; everything from its preference onward is dropped. If self is
// the very first entry, the whole list is dropped and the lookup fails.
func (e *Engine) truncateAtSelf(name string, recs []dns.Record) (dns.Status, []dns.Record, string) {
	selfIdx := -1
	for i, r := range recs {
		if e.isSelf(r.Data) {
			selfIdx = i
			break
		}
	}
	if selfIdx == -1 {
		return dns.OK, recs, ""
	}

	selfPref := recs[selfIdx].Pref
	truncated := make([]dns.Record, 0, selfIdx)
	for _, r := range recs {
		if r.Pref < selfPref {
			truncated = append(truncated, r)
		}
	}
	if len(truncated) == 0 {
		return dns.Fail, nil, "mail for " + name + " loops back to myself"
	}
	return dns.OK, truncated, ""
}
