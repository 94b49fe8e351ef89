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

package modconfig

import (
	"github.com/nextmx/resolved/framework/config"
	"github.com/nextmx/resolved/framework/module"
)

// TableDirective is a config.Map.Custom callback for directives of the form
// "directive_name mod_name [inst_name] [{ inline_mod_config }]" whose
// resulting module must implement module.Table — used for relocated_maps,
// transport_maps and the like.
func TableDirective(m *config.Map, node config.Node) (interface{}, error) {
	var tbl module.Table
	if err := ModuleFromNode("table", node.Args, node, m.Globals, &tbl); err != nil {
		return nil, err
	}
	return tbl, nil
}

// ListDirective is TableDirective's counterpart for module.List, used for
// virtual_domains/relay_domains-style membership checks.
func ListDirective(m *config.Map, node config.Node) (interface{}, error) {
	var lst module.List
	if err := ModuleFromNode("table", node.Args, node, m.Globals, &lst); err != nil {
		return nil, err
	}
	return lst, nil
}
