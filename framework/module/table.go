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

// Table is implemented by a module that provides string-to-string
// key/value lookup, such as the relocated-addresses map or the transport
// map consulted by the resolver cascade.
//
// Modules implementing this interface are conventionally registered with
// a "table." name prefix. A Table that fails internally (I/O, malformed
// backing file) must return a non-nil error rather than (false, nil) so
// callers can distinguish "not found" from "lookup broken".
type Table interface {
	Lookup(s string) (string, bool, error)
}

// MutableTable extends Table with write access, used by administrative
// tooling to edit a backing map in place.
type MutableTable interface {
	Table
	Keys() ([]string, error)
	RemoveKey(k string) error
	SetKey(k, v string) error
}

// List is implemented by a module that decides membership of a name in a
// named set — a domain list (parent-style: a listed domain also matches
// its subdomains) or a plain string list (exact and wildcard match only).
// Like Table, a broken backing store must be surfaced as an error rather
// than folded into a negative match.
type List interface {
	Match(name string) (bool, error)
}

