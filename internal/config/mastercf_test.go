package config

import (
	"strings"
	"testing"
)

func TestRenderServiceFoldsColumns(t *testing.T) {
	svc := Service{
		Service: "resolve",
		Type:    "unix",
		Private: true,
		Unpriv:  true,
		Chroot:  false,
		Wakeup:  "-",
		Maxproc: "1",
		Command: "mxroute",
		Args:    []string{"serve", "-config", "main.cf"},
		Options: []string{"timeout=30s"},
	}

	var buf strings.Builder
	if err := RenderService(&buf, svc); err != nil {
		t.Fatalf("RenderService: %v", err)
	}

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2 (stanza + one -o line):\n%s", len(lines), buf.String())
	}

	first := lines[0]
	if len(first) <= masterCfColumns[7] {
		t.Fatalf("stanza line too short to reach the command column: %q", first)
	}
	if !strings.HasPrefix(first[masterCfColumns[7]:], "mxroute serve -config main.cf") {
		t.Errorf("command field misaligned: %q", first)
	}

	opt := lines[1]
	if strings.TrimLeft(opt, " ") != "-o timeout=30s" {
		t.Errorf("option line = %q", opt)
	}
	if len(opt)-len(strings.TrimLeft(opt, " ")) != masterCfColumns[7] {
		t.Errorf("option line indent = %d, want %d", len(opt)-len(strings.TrimLeft(opt, " ")), masterCfColumns[7])
	}
}
