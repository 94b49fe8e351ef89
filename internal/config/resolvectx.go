// Package config holds the ambient configuration glue that sits above
// framework/config's reflection DSL: turning a parsed main.cf-style block
// into the domain types C4/C5 actually run against, and rendering the
// resolver's own master.cf stanza for inspection tooling.
package config

import (
	fwconfig "github.com/nextmx/resolved/framework/config"
	modconfig "github.com/nextmx/resolved/framework/config/module"
	"github.com/nextmx/resolved/framework/log"
	"github.com/nextmx/resolved/framework/module"
	coreresolve "github.com/nextmx/resolved/internal/resolve"
	"github.com/nextmx/resolved/internal/rewrite"
)

// rewriterDirective wires the "rewriter" directive to a concrete
// *rewrite.Client instance. It can't use modconfig.TableDirective/
// ListDirective (those target the module.Table/module.List interfaces);
// resolve.Context.Rewriter is the concrete client type itself, since
// that's what Engine.Resolve calls Rewrite on directly.
func rewriterDirective(m *fwconfig.Map, node fwconfig.Node) (interface{}, error) {
	var rw *rewrite.Client
	if err := modconfig.ModuleFromNode("rewrite", node.Args, node, m.Globals, &rw); err != nil {
		return nil, err
	}
	return rw, nil
}

// BuildResolveContext registers the directives of spec §3's resolver
// context (mydestination, relay_domains, transport names, the rewriter
// client, the dequoting/bangpath/percent-hack switches, ...) on cfg, a
// config.Map built over a main.cf-style block, the same way
// target/remote.Target.Init registers its own directives before calling
// cfg.Process. It returns the not-yet-populated Context plus a finish
// func; the caller must call cfg.Process (registering any further
// directives of its own first, e.g. internal/endpoint/resolve.Init also
// reads "debug", "timeout" and "config_directory"), then call finish(debug) — after Process,
// so a "debug" directive on the same Map has already taken effect — to
// copy the processed module.List/module.Table/*rewrite.Client values
// onto the Context and attach its Logger.
func BuildResolveContext(cfg *fwconfig.Map, logName string) (rctx *coreresolve.Context, finish func(debug bool)) {
	rctx = &coreresolve.Context{}

	cfg.String("myhostname", false, true, "", &rctx.MyHostname)
	cfg.String("relayhost", false, false, "", &rctx.Relayhost)

	cfg.String("local_transport", false, false, "local", &rctx.LocalTransport)
	cfg.String("default_transport", false, false, "smtp", &rctx.DefaultTransport)
	cfg.String("relay_transport", false, false, "relay", &rctx.RelayTransport)
	cfg.String("virtual_transport", false, false, "virtual", &rctx.VirtualTransport)
	cfg.String("error_transport", false, true, "error", &rctx.ErrorTransport)

	var localDomains, relayDomains, virtualAlias, virtualMailbox module.List
	cfg.Custom("mydestination", false, true, nil, modconfig.ListDirective, &localDomains)
	cfg.Custom("relay_domains", false, false, nil, modconfig.ListDirective, &relayDomains)
	cfg.Custom("virtual_alias_domains", false, false, nil, modconfig.ListDirective, &virtualAlias)
	cfg.Custom("virtual_mailbox_domains", false, false, nil, modconfig.ListDirective, &virtualMailbox)

	var relocated, transportMap module.Table
	cfg.Custom("relocated_maps", false, false, nil, modconfig.TableDirective, &relocated)
	cfg.Custom("transport_maps", false, false, nil, modconfig.TableDirective, &transportMap)

	var rewriter *rewrite.Client
	cfg.Custom("rewriter", false, false, nil, rewriterDirective, &rewriter)

	cfg.Bool("resolve_dequoted_address", false, false, &rctx.ResolveDequoted)
	cfg.Bool("swap_bangpath", false, false, &rctx.SwapBangpath)
	cfg.Bool("allow_percent_hack", false, false, &rctx.PercentHack)

	finish = func(debug bool) {
		rctx.LocalDomains = localDomains
		rctx.RelayDomains = relayDomains
		rctx.VirtualAlias = virtualAlias
		rctx.VirtualMailbox = virtualMailbox
		rctx.Relocated = relocated
		rctx.TransportMap = transportMap
		rctx.Rewriter = rewriter
		rctx.Log = log.Logger{Name: logName, Debug: debug}
	}
	return rctx, finish
}
