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

package config

import (
	"io"

	parser "github.com/nextmx/resolved/framework/cfgparser"
)

// Node is the parsed configuration tree Map.Process walks. It is an alias
// of parser.Node rather than a copy so a file read by cfgparser can be
// handed to a Map without conversion.
type Node = parser.Node

// NodeErr formats an error annotated with the node's source file and line,
// the way the cfgparser lexer itself reports syntax errors.
func NodeErr(node Node, format string, args ...interface{}) error {
	return parser.NodeErr(node, format, args...)
}

// Read parses a configuration file into a tree of Node values.
func Read(r io.Reader, location string) ([]Node, error) {
	return parser.Read(r, location)
}
