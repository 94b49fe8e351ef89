// Package resolve implements the C4 resolver engine: the eight-phase
// cascade that turns an internalized RFC 822 recipient into a
// (channel, nexthop, recipient, flags) routing decision, consulting the
// C1 token tree, the C2 canonical rewriter, and C3 match tables along the
// way.
//
// Grounded on target/remote.Target.Init's classification cascade (local
// vs. relay vs. default, relayhost override, channel::nexthop splitting)
// generalized to this spec's full virtual-alias/virtual-mailbox/relocated/
// transport-map phase list, which the teacher's SMTP-only remote target
// never needed.
package resolve

import (
	"context"
	"strings"

	"github.com/nextmx/resolved/framework/address"
	"github.com/nextmx/resolved/framework/log"
	"github.com/nextmx/resolved/framework/module"
	"github.com/nextmx/resolved/internal/rewrite"
	"github.com/nextmx/resolved/internal/rfc822"
)

// Flags is the disjoint classification set plus the orthogonal condition
// bits from spec §3 "Resolution result". Exactly one classification bit
// is set on success.
type Flags uint16

const (
	Local Flags = 1 << iota
	Alias
	Virtual
	Relay
	Default

	Routed
	Error
	Fail
)

func (f Flags) String() string {
	named := []struct {
		bit  Flags
		name string
	}{
		{Local, "LOCAL"}, {Alias, "ALIAS"}, {Virtual, "VIRTUAL"},
		{Relay, "RELAY"}, {Default, "DEFAULT"},
		{Routed, "ROUTED"}, {Error, "ERROR"}, {Fail, "FAIL"},
	}
	var parts []string
	for _, n := range named {
		if f&n.bit != 0 {
			parts = append(parts, n.name)
		}
	}
	if len(parts) == 0 {
		return "NONE"
	}
	return strings.Join(parts, "|")
}

// ResolveKind selects which canonical rewrite rule phase 2 invokes, the
// SPEC_FULL addition generalizing the teacher's sender/recipient
// canonical-map split onto this engine's single rewrite hook.
type ResolveKind int

const (
	Recipient ResolveKind = iota
	Sender
)

// Result is the cascade's output: spec §3's "Resolution result" triple
// plus its flags bitset.
type Result struct {
	Channel   string
	Nexthop   string
	Recipient string
	Flags     Flags
}

// Context is the immutable configuration the cascade consults: spec §3's
// "Resolver context". Built once at service start by
// internal/config/resolvectx.go and shared read-only across every
// concurrent resolution.
type Context struct {
	MyHostname string
	Relayhost  string

	LocalDomains   module.List
	VirtualAlias   module.List
	VirtualMailbox module.List
	RelayDomains   module.List
	Relocated      module.Table
	TransportMap   module.Table

	LocalTransport   string
	VirtualTransport string
	RelayTransport   string
	DefaultTransport string
	ErrorTransport   string

	ResolveDequoted bool
	SwapBangpath    bool
	PercentHack     bool

	Rewriter *rewrite.Client
	Log      log.Logger
}

// Engine runs the cascade against a fixed Context.
type Engine struct {
	ctx *Context
}

func NewEngine(ctx *Context) *Engine {
	return &Engine{ctx: ctx}
}

// splitChannel implements the "channel may embed :nexthop" rule common to
// phases 5-7: if channel contains ':', the prefix is the real channel and
// a non-empty suffix overrides nexthop.
func splitChannel(channel, nexthop string) (string, string) {
	i := strings.IndexByte(channel, ':')
	if i == -1 {
		return channel, nexthop
	}
	suffix := channel[i+1:]
	if suffix != "" {
		nexthop = suffix
	}
	return channel[:i], nexthop
}

// stripTrailingDotAt repeatedly strips a trailing '@' or a dangling
// trailing '.' (never one ending a double dot) from s, per phase 2 step 1.
func stripTrailingDotAt(s string) string {
	for {
		switch {
		case strings.HasSuffix(s, "@"):
			s = s[:len(s)-1]
		case strings.HasSuffix(s, ".") && !strings.HasSuffix(s, ".."):
			s = s[:len(s)-1]
		default:
			return s
		}
	}
}

// Resolve runs the eight-phase cascade (spec §4.4) against addr, an
// internalized or externalized RFC 822 address depending on
// ctx.ResolveDequoted.
func (e *Engine) Resolve(ctx context.Context, kind ResolveKind, addr string) Result {
	c := e.ctx

	// Phase 1 — parse.
	var tree *rfc822.Tree
	if c.ResolveDequoted {
		tree = rfc822.Scan(addr)
	} else {
		tree = rfc822.Scan(rfc822.Externalize(rfc822.Scan(addr)))
	}

	rule := "canonical"
	if kind == Sender {
		rule = "sender_canonical"
	}

	var (
		flags      Flags
		domain     string
		savedDomain string
	)

	// Phase 2 — strip local domains, iterating until no @ remains or the
	// rightmost domain is non-local.
phase2:
	for {
		s := stripTrailingDotAt(rfc822.Internalize(tree))

		// An entirely empty address is the degenerate case of the "single
		// empty quoted string" rule: neither carries a meaningful local
		// part, so both canonicalize to postmaster.
		if s == "" || rfc822.IsSingleEmptyQstring(rfc822.Scan(s)) {
			var err error
			tree, err = e.rewriteTree(ctx, rule, rfc822.Scan("postmaster"))
			if err != nil {
				flags |= Fail
				break phase2
			}
			s = rfc822.Internalize(tree)
		}

		idx := strings.LastIndexByte(s, '@')
		if idx == -1 {
			domain = ""
			tree = rfc822.Scan(s)
			break phase2
		}

		d := s[idx+1:]
		localPart := s[:idx]

		isLocal, err := c.LocalDomains.Match(strings.ToLower(d))
		if err != nil {
			flags |= Fail
			break phase2
		}

		if !isLocal {
			domain = d
			tree = rfc822.Scan(localPart)
			break phase2
		}

		savedDomain = d
		tree = rfc822.Scan(localPart)

		needsRewrite := strings.ContainsRune(localPart, '@') ||
			(c.SwapBangpath && strings.ContainsRune(localPart, '!')) ||
			(c.PercentHack && strings.ContainsRune(localPart, '%'))
		if !needsRewrite {
			domain = ""
			break phase2
		}

		tree, err = e.rewriteTree(ctx, rule, tree)
		if err != nil {
			flags |= Fail
			break phase2
		}
	}

	if flags&Fail != 0 {
		return Result{Flags: flags | Error}
	}

	// Phase 3 — routing-operator detection.
	localPart := rfc822.Internalize(tree)
	if domain != "" && strings.ContainsAny(localPart, "@!%") {
		flags |= Routed
	}

	// Phase 4 — reconstruct recipient.
	var recipient string
	switch {
	case domain != "":
		recipient = localPart + "@" + domain
	case savedDomain != "":
		recipient = localPart + "@" + savedDomain
	default:
		recipient = localPart + "@" + c.MyHostname
	}
	recipient = rfc822.Internalize(rfc822.Scan(recipient))

	result := Result{Recipient: recipient, Flags: flags}

	if domain == "" {
		// Phase 6 — classify (local path).
		return e.classifyLocal(result)
	}

	// Phase 5 — classify (non-local path).
	res, ok := e.classifyNonLocal(result, domain)
	if !ok {
		return res
	}

	// Phase 7 — overrides.
	res = e.applyOverrides(res)

	// Phase 8 — sanity.
	if res.Flags&(Fail|Error) == 0 {
		if res.Channel == "" {
			panic("resolve: phase 8 invariant violated: no channel assigned and neither FAIL nor ERROR set")
		}
		if res.Nexthop == "" {
			panic("resolve: phase 8 invariant violated: empty nexthop with no FAIL/ERROR")
		}
	}
	return res
}

func (e *Engine) classifyLocal(res Result) Result {
	c := e.ctx
	channel, nexthop := splitChannel(c.LocalTransport, c.MyHostname)
	res.Channel, res.Nexthop = channel, nexthop
	res.Flags |= Local

	_, dom, err := address.Split(res.Recipient)
	if err == nil && dom != "" {
		dom = strings.ToLower(dom)
		if inAlias, _ := matchList(c.VirtualAlias, dom); inAlias {
			c.Log.Msg("local recipient domain also listed as virtual-alias", "domain", dom)
		}
		if inMbox, _ := matchList(c.VirtualMailbox, dom); inMbox {
			c.Log.Msg("local recipient domain also listed as virtual-mailbox", "domain", dom)
		}
	}
	return res
}

func (e *Engine) classifyNonLocal(res Result, domain string) (Result, bool) {
	c := e.ctx
	h := strings.ToLower(domain)

	if !isDomainLiteral(h) && !address.ValidDomain(h) {
		res.Flags |= Error
		return res, false
	}

	var channel string
	nexthop := h // nexthop defaults to the domain itself unless overridden below.
	isAlias, err := matchList(c.VirtualAlias, h)
	if err != nil {
		res.Flags |= Fail
		return res, false
	}

	switch {
	case isAlias:
		channel, nexthop = c.ErrorTransport, "User unknown"
		res.Flags |= Alias
		if inMbox, _ := matchList(c.VirtualMailbox, h); inMbox {
			c.Log.Msg("domain listed as both virtual-alias and virtual-mailbox", "domain", h)
		}

	default:
		isMailbox, err := matchList(c.VirtualMailbox, h)
		if err != nil {
			res.Flags |= Fail
			return res, false
		}
		if isMailbox {
			channel = c.VirtualTransport
			res.Flags |= Virtual
			break
		}

		isRelay, err := matchList(c.RelayDomains, h)
		if err != nil {
			res.Flags |= Fail
			return res, false
		}
		if isRelay {
			channel = c.RelayTransport
			res.Flags |= Relay
			break
		}

		channel = c.DefaultTransport
		res.Flags |= Default
	}

	if res.Flags&Alias == 0 && c.Relayhost != "" {
		nexthop = c.Relayhost
	}

	res.Channel, res.Nexthop = splitChannel(channel, nexthop)
	return res, true
}

func matchList(l module.List, name string) (bool, error) {
	if l == nil {
		return false, nil
	}
	return l.Match(name)
}

func (e *Engine) applyOverrides(res Result) Result {
	c := e.ctx

	if c.Relocated != nil {
		newloc, ok, err := c.Relocated.Lookup(res.Recipient)
		if err != nil {
			res.Flags |= Fail
			return res
		}
		if ok {
			res.Channel = c.ErrorTransport
			res.Nexthop = "user has moved to " + newloc
			return res
		}
	}

	if c.TransportMap != nil && res.Channel != c.ErrorTransport {
		v, ok, err := c.TransportMap.Lookup(res.Recipient)
		if err != nil {
			res.Flags |= Fail
			return res
		}
		if ok {
			channel, nexthop := splitChannelOverride(v, res.Channel, res.Nexthop)
			res.Channel, res.Nexthop = channel, nexthop
		}
	}

	return res
}

// splitChannelOverride applies a transport-map value which may be a bare
// channel name or "channel:nexthop".
func splitChannelOverride(v, curChannel, curNexthop string) (string, string) {
	i := strings.IndexByte(v, ':')
	if i == -1 {
		return v, curNexthop
	}
	channel := v[:i]
	if channel == "" {
		channel = curChannel
	}
	nexthop := v[i+1:]
	if nexthop == "" {
		nexthop = curNexthop
	}
	return channel, nexthop
}

func isDomainLiteral(h string) bool {
	return strings.HasPrefix(h, "[") && strings.HasSuffix(h, "]")
}

func (e *Engine) rewriteTree(ctx context.Context, rule string, tree *rfc822.Tree) (*rfc822.Tree, error) {
	if e.ctx.Rewriter == nil {
		return tree, nil
	}
	return e.ctx.Rewriter.Rewrite(ctx, rule, tree)
}
