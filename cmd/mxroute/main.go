// Command mxroute is the resolver/next-hop lookup daemon's own entry
// point, grounded on cmd/maddy/main.go's flag parsing and
// maddy.moduleMain's config-read/register/init sequence, generalized
// from a single flat flag set to a urfave/cli/v2 command surface with
// one-shot debug subcommands alongside the long-running server.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/nextmx/resolved/framework/config"
	"github.com/nextmx/resolved/framework/hooks"
	"github.com/nextmx/resolved/framework/log"
	"github.com/nextmx/resolved/framework/module"
	rcfg "github.com/nextmx/resolved/internal/config"
	"github.com/nextmx/resolved/internal/dns"
	coreresolve "github.com/nextmx/resolved/internal/resolve"
	"github.com/nextmx/resolved/internal/route"

	// Registers the endpoint and table/rewriter module factories that
	// main.cf "resolve { ... }"/"openmetrics { ... }" blocks and table/
	// rewriter directives reference by name.
	_ "github.com/nextmx/resolved/internal/endpoint/openmetrics"
	_ "github.com/nextmx/resolved/internal/endpoint/resolve"
	_ "github.com/nextmx/resolved/internal/rewrite"
	_ "github.com/nextmx/resolved/internal/table"
)

var version = "go-build"

func main() {
	app := &cli.App{
		Name:    "mxroute",
		Usage:   "Postfix-style address resolver and next-hop lookup daemon",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "config",
				Value: "main.cf",
				Usage: "path to main.cf",
			},
			&cli.BoolFlag{
				Name:  "debug",
				Usage: "enable debug logging early",
			},
		},
		Before: func(c *cli.Context) error {
			log.DefaultLogger.Debug = c.Bool("debug")
			return nil
		},
		Commands: []*cli.Command{
			serveCommand,
			resolveCommand,
			routeCommand,
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// readConfig parses the file at path into the Node tree main.cf's
// directive blocks live in, the way cmd/maddy/main.go opens and reads
// its own Maddyfile.
func readConfig(path string) ([]config.Node, error) {
	absCfg, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve path to config: %w", err)
	}
	f, err := os.Open(absCfg)
	if err != nil {
		return nil, fmt.Errorf("open %q: %w", path, err)
	}
	defer f.Close()

	nodes, err := config.Read(f, absCfg)
	if err != nil {
		return nil, fmt.Errorf("parse %q: %w", path, err)
	}
	return nodes, nil
}

var serveCommand = &cli.Command{
	Name:  "serve",
	Usage: "parse main.cf, start the registered endpoints and block until shutdown",
	Action: func(c *cli.Context) error {
		nodes, err := readConfig(c.String("config"))
		if err != nil {
			return err
		}
		return moduleMain(nodes)
	},
}

// modInfo pairs a registered module instance with the config block it
// was built from, mirroring maddy.ModInfo.
type modInfo struct {
	instance module.Module
	cfg      config.Node
}

// moduleMain registers every module/endpoint block in cfg, initializes
// them, and blocks serving traffic until a termination signal arrives —
// the same register-then-init-then-wait-for-signal shape as
// maddy.moduleMain, narrowed to this daemon's module set (no global
// log/TLS/state-dir directives of its own; the "resolve"/"openmetrics"
// endpoint blocks each read their own directives via config.Map).
func moduleMain(cfg []config.Node) error {
	globals := map[string]interface{}{}

	var endpoints, mods []modInfo
	for _, block := range cfg {
		var instName string
		var aliases []string
		if len(block.Args) == 0 {
			instName = block.Name
		} else {
			instName = block.Args[0]
			aliases = block.Args[1:]
		}
		modName := block.Name

		if factory := module.GetEndpoint(modName); factory != nil {
			inst, err := factory(modName, block.Args)
			if err != nil {
				return err
			}
			endpoints = append(endpoints, modInfo{instance: inst, cfg: block})
			continue
		}

		factory := module.Get(modName)
		if factory == nil {
			return config.NodeErr(block, "unknown module or directive: %s", modName)
		}
		if module.HasInstance(instName) {
			return config.NodeErr(block, "config block named %s already exists", instName)
		}
		inst, err := factory(modName, instName, aliases, nil)
		if err != nil {
			return err
		}

		block := block
		module.RegisterInstance(inst, config.NewMap(globals, block))
		for _, alias := range aliases {
			module.RegisterAlias(alias, instName)
		}
		mods = append(mods, modInfo{instance: inst, cfg: block})
	}

	if len(endpoints) == 0 {
		return fmt.Errorf("main.cf must configure at least one endpoint (resolve, openmetrics, ...)")
	}

	for _, endp := range endpoints {
		if err := endp.instance.Init(config.NewMap(globals, endp.cfg)); err != nil {
			return fmt.Errorf("%s: %w", endp.instance.Name(), err)
		}
		if closer, ok := endp.instance.(io.Closer); ok {
			endp := endp
			hooks.AddHook(hooks.EventShutdown, func() {
				log.Debugf("close %s (%s)", endp.instance.Name(), endp.instance.InstanceName())
				if err := closer.Close(); err != nil {
					log.Printf("module %s close failed: %v", endp.instance.Name(), err)
				}
			})
		}
	}

	for _, m := range mods {
		if !module.Initialized[m.instance.InstanceName()] {
			return fmt.Errorf("unused configuration block at %s:%d - %s (%s)",
				m.cfg.File, m.cfg.Line, m.instance.InstanceName(), m.instance.Name())
		}
	}

	waitForShutdown()
	hooks.RunHooks(hooks.EventShutdown)
	return nil
}

func waitForShutdown() {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig
}

var resolveCommand = &cli.Command{
	Name:      "resolve",
	Usage:     "resolve a single recipient address against main.cf, like postmap -q",
	ArgsUsage: "address",
	Action: func(c *cli.Context) error {
		if c.NArg() != 1 {
			return fmt.Errorf("resolve expects exactly one address argument")
		}
		nodes, err := readConfig(c.String("config"))
		if err != nil {
			return err
		}
		rctx, err := buildResolveContextFromNodes(nodes)
		if err != nil {
			return err
		}

		engine := coreresolve.NewEngine(rctx)
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		res := engine.Resolve(ctx, coreresolve.Recipient, c.Args().Get(0))

		fmt.Printf("transport=%s nexthop=%s recipient=%s flags=%s\n",
			res.Channel, res.Nexthop, res.Recipient, res.Flags)
		return nil
	},
}

// buildResolveContextFromNodes finds the first "resolve" config block in
// nodes and builds the coreresolve.Context it describes, the same
// directive set internal/endpoint/resolve.Init processes, without
// starting any listener.
func buildResolveContextFromNodes(nodes []config.Node) (*coreresolve.Context, error) {
	globals := map[string]interface{}{}
	for _, block := range nodes {
		if block.Name != "resolve" {
			continue
		}
		m := config.NewMap(globals, block)
		rctx, finish := rcfg.BuildResolveContext(m, "mxroute-resolve")
		if _, err := m.Process(); err != nil {
			return nil, err
		}
		finish(log.DefaultLogger.Debug)
		return rctx, nil
	}
	return nil, fmt.Errorf("main.cf has no resolve { ... } block")
}

var routeCommand = &cli.Command{
	Name:      "route",
	Usage:     "resolve a next-hop domain to a candidate address list via MX/A lookup",
	ArgsUsage: "domain",
	Action: func(c *cli.Context) error {
		if c.NArg() != 1 {
			return fmt.Errorf("route expects exactly one domain argument")
		}

		cl := dns.NewClientFromConfig(10 * time.Second)
		engine := route.NewEngine(cl, nil)

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		st, recs, diag := engine.DomainAddr(ctx, c.Args().Get(0))

		if st != dns.OK {
			return fmt.Errorf("%s: %s", st, diag)
		}
		for _, r := range recs {
			fmt.Printf("pref=%d %s\n", r.Pref, r.Data)
		}
		return nil
	},
}
