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

package module

import (
	"fmt"
	"io"

	"github.com/nextmx/resolved/framework/config"
	"github.com/nextmx/resolved/framework/hooks"
	"github.com/nextmx/resolved/framework/log"
)

var (
	instances = make(map[string]struct {
		mod Module
		cfg *config.Map
	})
	aliases = make(map[string]string)

	// Initialized tracks which instance names have already run Init, so a
	// table referenced from two different maps ("&relocated" used by both
	// the resolver and an inspection tool) is only initialized once.
	Initialized = make(map[string]bool)
)

// RegisterInstance adds a named, not-yet-initialized module instance to the
// global registry. A second RegisterInstance under the same instance name
// replaces the first.
func RegisterInstance(inst Module, cfg *config.Map) {
	instances[inst.InstanceName()] = struct {
		mod Module
		cfg *config.Map
	}{inst, cfg}
}

// RegisterAlias associates an additional name with an existing instance
// name so GetInstance(alias) resolves the same module.
func RegisterAlias(aliasName, instName string) {
	aliases[aliasName] = instName
}

func HasInstance(name string) bool {
	if aliased := aliases[name]; aliased != "" {
		name = aliased
	}
	_, ok := instances[name]
	return ok
}

// GetInstance returns the module instance from the global registry,
// running its Init on first access. Later calls for the same name are
// idempotent — Init runs exactly once per instance name.
func GetInstance(name string) (Module, error) {
	if aliased := aliases[name]; aliased != "" {
		name = aliased
	}

	mod, ok := instances[name]
	if !ok {
		return nil, fmt.Errorf("unknown config block: %s", name)
	}

	if Initialized[name] {
		return mod.mod, nil
	}
	Initialized[name] = true

	if err := mod.mod.Init(mod.cfg); err != nil {
		return mod.mod, err
	}

	if closer, ok := mod.mod.(io.Closer); ok {
		hooks.AddHook(hooks.EventShutdown, func() {
			log.Debugf("close %s (%s)", mod.mod.Name(), mod.mod.InstanceName())
			if err := closer.Close(); err != nil {
				log.Printf("module %s (%s) close failed: %v", mod.mod.Name(), mod.mod.InstanceName(), err)
			}
		})
	}

	return mod.mod, nil
}
