package config

import (
	"fmt"
	"io"
	"strings"
)

// masterCfColumns are the fixed fold positions from spec §6's master.cf
// line syntax: "service type private unpriv chroot wakeup maxproc command
// [args...]", with -o options folded onto continuation lines at the same
// columns as the command field.
var masterCfColumns = [...]int{0, 11, 17, 25, 33, 41, 49, 57}

// Service is one master.cf stanza (spec §6): a registered endpoint or
// daemon and the fixed fields Postfix's own master process reads to
// decide how to run it. It is rendered, never parsed — the master.cf
// loader itself is the external collaborator spec §1 and §6 name;
// RenderService only produces the resolver's own stanza for maddyctl-style
// inspection tooling.
type Service struct {
	Service string
	Type    string
	Private bool
	Unpriv  bool
	Chroot  bool
	Wakeup  string
	Maxproc string
	Command string
	Args    []string
	// Options holds "-o name=value" overrides, rendered in order after
	// Command and its Args, one per continuation line.
	Options []string
}

func yn(b bool) string {
	if b {
		return "y"
	}
	return "n"
}

// pad appends s to line, then pads with spaces up to the given column
// position (in bytes), unless the line has already passed that column —
// spec §6 folds long lines, it doesn't truncate them.
func pad(line *strings.Builder, s string, col int) {
	line.WriteString(s)
	for line.Len() < col {
		line.WriteByte(' ')
	}
}

// RenderService writes svc's master.cf stanza to w, folding the service/
// type/private/unpriv/chroot/wakeup/maxproc/command fields onto a single
// line at the column positions spec §6 fixes, then one "-o name=value"
// continuation line per entry of Options, indented to the command column.
func RenderService(w io.Writer, svc Service) error {
	var line strings.Builder
	pad(&line, svc.Service, masterCfColumns[1])
	pad(&line, svc.Type, masterCfColumns[2])
	pad(&line, yn(svc.Private), masterCfColumns[3])
	pad(&line, yn(svc.Unpriv), masterCfColumns[4])
	pad(&line, yn(svc.Chroot), masterCfColumns[5])
	pad(&line, svc.Wakeup, masterCfColumns[6])
	pad(&line, svc.Maxproc, masterCfColumns[7])

	line.WriteString(svc.Command)
	for _, arg := range svc.Args {
		line.WriteByte(' ')
		line.WriteString(arg)
	}
	line.WriteByte('\n')
	if _, err := io.WriteString(w, line.String()); err != nil {
		return err
	}

	commandCol := masterCfColumns[7]
	for _, opt := range svc.Options {
		var cont strings.Builder
		for cont.Len() < commandCol {
			cont.WriteByte(' ')
		}
		fmt.Fprintf(&cont, "-o %s\n", opt)
		if _, err := io.WriteString(w, cont.String()); err != nil {
			return err
		}
	}
	return nil
}
