/*
Maddy Mail Server - Composable all-in-one email server.
Copyright © 2019-2020 Max Mazurov <fox.cpp@disroot.org>, Maddy Mail Server contributors

This program is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

This program is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/

// Package rewrite implements the C2 canonical rewriter client: a
// rule-name-keyed RPC that reduces a token tree to its canonical form by
// asking an out-of-process rewrite service, over the same attribute
// stream format the resolver protocol server speaks.
package rewrite

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/nextmx/resolved/framework/config"
	"github.com/nextmx/resolved/framework/future"
	"github.com/nextmx/resolved/framework/log"
	"github.com/nextmx/resolved/framework/module"
	"github.com/nextmx/resolved/internal/attrproto"
	"github.com/nextmx/resolved/internal/rfc822"
)

const modName = "rewrite.client"

// Client calls a named rewrite rule over an attribute stream connection.
// A single in-flight call is deduplicated across callers sharing the same
// (rule, externalized address) key, per §4.2's "a cache of one entry...
// is sufficient" — it is a latency smoothing measure, not a correctness
// requirement, so it is never consulted once its result has been
// delivered to its original caller.
type Client struct {
	instName string
	log      log.Logger

	network string
	addr    string
	timeout time.Duration

	mu      sync.Mutex
	inFlightKey string
	inFlight    *future.Future
}

func New(_, instName string, _, inlineArgs []string) (module.Module, error) {
	c := &Client{
		instName: instName,
		log:      log.Logger{Name: modName, Debug: log.DefaultLogger.Debug},
		timeout:  5 * time.Second,
	}

	switch len(inlineArgs) {
	case 0:
	case 1:
		c.addr = inlineArgs[0]
	default:
		return nil, fmt.Errorf("%s: one or none arguments needed", modName)
	}

	return c, nil
}

func (c *Client) Name() string         { return modName }
func (c *Client) InstanceName() string { return c.instName }

func (c *Client) Init(cfg *config.Map) error {
	cfg.Bool("debug", true, c.log.Debug, &c.log.Debug)
	cfg.String("endpoint", false, false, c.addr, &c.addr)
	cfg.Duration("timeout", false, false, 5*time.Second, &c.timeout)
	if _, err := cfg.Process(); err != nil {
		return err
	}

	c.network = "tcp"
	if c.addr == "" {
		return fmt.Errorf("%s: endpoint is required", modName)
	}
	if host, _, err := net.SplitHostPort(c.addr); err == nil && host == "" {
		// leave as tcp
	} else if err != nil {
		// not host:port - treat as a unix socket path
		c.network = "unix"
	}

	return nil
}

// Rewrite applies the named rewrite rule to tree's externalized form and
// returns a freshly scanned tree for the result.
func (c *Client) Rewrite(ctx context.Context, rule string, tree *rfc822.Tree) (*rfc822.Tree, error) {
	addr := rfc822.Externalize(tree)
	key := rule + "\x00" + addr

	c.mu.Lock()
	if c.inFlight != nil && c.inFlightKey == key {
		f := c.inFlight
		c.mu.Unlock()
		v, err := f.GetContext(ctx)
		if err != nil {
			return nil, err
		}
		return rfc822.Scan(v.(string)), nil
	}

	f := future.New()
	c.inFlightKey = key
	c.inFlight = f
	c.mu.Unlock()

	out, err := c.call(ctx, rule, addr)
	f.Set(out, err)

	c.mu.Lock()
	if c.inFlight == f {
		c.inFlight = nil
	}
	c.mu.Unlock()

	if err != nil {
		return nil, err
	}
	return rfc822.Scan(out), nil
}

func (c *Client) call(ctx context.Context, rule, addr string) (string, error) {
	dialCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	conn, err := (&net.Dialer{}).DialContext(dialCtx, c.network, c.addr)
	if err != nil {
		return "", fmt.Errorf("%s: %w", modName, err)
	}
	defer conn.Close()

	if dl, ok := ctx.Deadline(); ok {
		conn.SetDeadline(dl)
	} else {
		conn.SetDeadline(time.Now().Add(c.timeout))
	}

	w := bufio.NewWriter(conn)
	req := attrproto.NewRecord("rule", rule, "addr", addr)
	if err := attrproto.WriteRecord(w, req); err != nil {
		return "", fmt.Errorf("%s: write: %w", modName, err)
	}

	rec, err := attrproto.ReadRecord(bufio.NewReader(conn))
	if err != nil {
		return "", fmt.Errorf("%s: read: %w", modName, err)
	}
	if err := attrproto.Strict(rec, "addr"); err != nil {
		return "", fmt.Errorf("%s: %w", modName, err)
	}

	v, _ := rec.Get("addr")
	return v, nil
}

func init() {
	module.Register(modName, New)
}
