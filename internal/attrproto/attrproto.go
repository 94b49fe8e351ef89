// Package attrproto implements the attribute-stream wire format shared by
// the resolver protocol server (C5) and the canonical rewriter RPC client
// (C2): a sequence of "name=value" lines terminated by a blank line.
//
// The format is deliberately the simplest thing that satisfies §6 of the
// routing spec this module implements — a length-implicit, line-oriented
// encoding rather than Postfix's own binary attr_scan0 framing — since
// both endpoints of every stream using it are this module.
package attrproto

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Attr is one decoded name=value pair, in the order it appeared on the
// wire.
type Attr struct {
	Name  string
	Value string
}

// Record is an ordered list of attributes read as a single request or
// reply, up to (and not including) the terminating blank line.
type Record []Attr

// Get returns the value of the first attribute named name.
func (r Record) Get(name string) (string, bool) {
	for _, a := range r {
		if a.Name == name {
			return a.Value, true
		}
	}
	return "", false
}

// GetInt parses the named attribute as a decimal integer.
func (r Record) GetInt(name string) (int, bool, error) {
	v, ok := r.Get(name)
	if !ok {
		return 0, false, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, true, fmt.Errorf("attrproto: attribute %q is not an integer: %w", name, err)
	}
	return n, true, nil
}

// ErrMalformedLine is returned by ReadRecord when a non-blank line does
// not contain a "name=value" separator.
var ErrMalformedLine = fmt.Errorf("attrproto: malformed attribute line")

// ReadRecord reads one record (a run of name=value lines) up to and
// including its terminating blank line. io.EOF is returned only if the
// stream ends with no bytes read at all — a stream that ends mid-record
// is reported as io.ErrUnexpectedEOF, since a framing error must
// terminate the session per §4.5.
func ReadRecord(r *bufio.Reader) (Record, error) {
	var rec Record
	sawAny := false

	for {
		line, err := r.ReadString('\n')
		if line == "" && err != nil {
			if err == io.EOF && !sawAny {
				return nil, io.EOF
			}
			if err == io.EOF {
				return nil, io.ErrUnexpectedEOF
			}
			return nil, err
		}

		line = strings.TrimRight(line, "\r\n")
		sawAny = true

		if line == "" {
			return rec, nil
		}

		idx := strings.IndexByte(line, '=')
		if idx < 0 {
			return nil, ErrMalformedLine
		}
		rec = append(rec, Attr{Name: line[:idx], Value: line[idx+1:]})

		if err == io.EOF {
			// Got a final attribute line with no trailing newline and no
			// terminator; the record is incomplete.
			return nil, io.ErrUnexpectedEOF
		}
	}
}

// WriteRecord writes rec as name=value lines followed by a blank
// terminator line, then flushes w.
func WriteRecord(w *bufio.Writer, rec Record) error {
	for _, a := range rec {
		if strings.ContainsAny(a.Name, "=\r\n") || strings.ContainsAny(a.Value, "\r\n") {
			return fmt.Errorf("attrproto: attribute %q contains a reserved byte", a.Name)
		}
		if _, err := fmt.Fprintf(w, "%s=%s\n", a.Name, a.Value); err != nil {
			return err
		}
	}
	if _, err := w.WriteString("\n"); err != nil {
		return err
	}
	return w.Flush()
}

// NewRecord builds a Record from alternating name, value pairs, in order.
func NewRecord(pairs ...string) Record {
	if len(pairs)%2 != 0 {
		panic("attrproto: NewRecord requires an even number of arguments")
	}
	rec := make(Record, 0, len(pairs)/2)
	for i := 0; i < len(pairs); i += 2 {
		rec = append(rec, Attr{Name: pairs[i], Value: pairs[i+1]})
	}
	return rec
}

// Strict verifies rec contains exactly the attribute names in want, in
// that order, rejecting unknown attributes per §6 ("unknown attributes
// abort the request").
func Strict(rec Record, want ...string) error {
	if len(rec) != len(want) {
		return fmt.Errorf("attrproto: expected %d attributes, got %d", len(want), len(rec))
	}
	for i, name := range want {
		if rec[i].Name != name {
			return fmt.Errorf("attrproto: expected attribute %q at position %d, got %q", name, i, rec[i].Name)
		}
	}
	return nil
}
