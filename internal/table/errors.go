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

// Package table provides the C3 match-table capability: module.Table/
// module.List implementations backed by flat files or SQL, plus the
// LookupError type the resolver cascade threads through every
// match/lookup call instead of consulting a shared dict_errno indicator.
package table

import "fmt"

// LookupError reports that a Table or List implementation's backing
// store failed outright (I/O, malformed file, SQL error) rather than
// simply not containing the queried key. The resolver cascade (C4) must
// distinguish this from a negative match — a LookupError latches FAIL
// and aborts further classification; a plain miss just continues to the
// next rule.
type LookupError struct {
	Table string
	Key   string
	Err   error
}

func (e *LookupError) Error() string {
	return fmt.Sprintf("table %s: lookup %q: %v", e.Table, e.Key, e.Err)
}

func (e *LookupError) Unwrap() error { return e.Err }

// NewLookupError wraps err as a LookupError, or returns nil if err is nil.
func NewLookupError(table, key string, err error) error {
	if err == nil {
		return nil
	}
	return &LookupError{Table: table, Key: key, Err: err}
}
