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

package table

import (
	"github.com/nextmx/resolved/framework/config"
	modconfig "github.com/nextmx/resolved/framework/config/module"
	"github.com/nextmx/resolved/framework/module"
)

// Chain feeds a key through a sequence of sub-tables, each step's result
// becoming the next step's key. A step declared with optional_step passes
// the key through unchanged on a plain miss; a step declared with step
// aborts the whole chain on a miss. Useful for composing, e.g., a
// relocated_maps lookup that first strips an extension with a regexp
// table and then consults a static table for the canonical form.
type Chain struct {
	modName  string
	instName string

	steps    []module.Table
	optional []bool
}

func NewChain(modName, instName string, _, _ []string) (module.Module, error) {
	return &Chain{
		modName:  modName,
		instName: instName,
	}, nil
}

func (c *Chain) Init(cfg *config.Map) error {
	cfg.Callback("step", func(m *config.Map, node config.Node) error {
		var tbl module.Table
		if err := modconfig.ModuleFromNode("table", node.Args, node, m.Globals, &tbl); err != nil {
			return err
		}
		c.steps = append(c.steps, tbl)
		c.optional = append(c.optional, false)
		return nil
	})
	cfg.Callback("optional_step", func(m *config.Map, node config.Node) error {
		var tbl module.Table
		if err := modconfig.ModuleFromNode("table", node.Args, node, m.Globals, &tbl); err != nil {
			return err
		}
		c.steps = append(c.steps, tbl)
		c.optional = append(c.optional, true)
		return nil
	})

	_, err := cfg.Process()
	return err
}

func (c *Chain) Name() string         { return c.modName }
func (c *Chain) InstanceName() string { return c.instName }

func (c *Chain) Lookup(key string) (string, bool, error) {
	cur := key
	for i, step := range c.steps {
		val, ok, err := step.Lookup(cur)
		if err != nil {
			return "", false, NewLookupError(c.modName, cur, err)
		}
		if !ok {
			if c.optional[i] {
				continue
			}
			return "", false, nil
		}
		cur = val
	}
	return cur, true, nil
}

func init() {
	module.Register("table.chain", NewChain)
}
