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

import "sync"

var (
	modules     = make(map[string]FuncNewModule)
	endpoints   = make(map[string]FuncNewEndpoint)
	modulesLock sync.RWMutex
)

// Register adds a module factory function to the global registry.
//
// name must be unique. Register panics if a module with the specified name
// is already registered. Call it from func init() of the module package.
func Register(name string, factory FuncNewModule) {
	modulesLock.Lock()
	defer modulesLock.Unlock()

	if _, ok := modules[name]; ok {
		panic("module: duplicate registration for " + name)
	}
	modules[name] = factory
}

// Get returns a module factory from the global registry, or nil if none is
// registered under name. Does not resolve endpoint-type modules; use
// GetEndpoint for those.
func Get(name string) FuncNewModule {
	modulesLock.RLock()
	defer modulesLock.RUnlock()
	return modules[name]
}

// RegisterEndpoint registers an endpoint module (one that owns listeners
// rather than being addressed by instance name).
func RegisterEndpoint(name string, factory FuncNewEndpoint) {
	modulesLock.Lock()
	defer modulesLock.Unlock()

	if _, ok := endpoints[name]; ok {
		panic("module: duplicate endpoint registration for " + name)
	}
	endpoints[name] = factory
}

// GetEndpoint returns an endpoint module factory from the global registry,
// or nil if none is registered under name.
func GetEndpoint(name string) FuncNewEndpoint {
	modulesLock.RLock()
	defer modulesLock.RUnlock()
	return endpoints[name]
}
