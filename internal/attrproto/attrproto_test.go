package attrproto

import (
	"bufio"
	"bytes"
	"io"
	"strings"
	"testing"
)

func TestWriteReadRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	w := bufio.NewWriter(&buf)
	rec := NewRecord("transport", "smtp", "nexthop", "other.org", "recipient", "bob@other.org", "flags", "8")
	if err := WriteRecord(w, rec); err != nil {
		t.Fatalf("WriteRecord: %v", err)
	}

	got, err := ReadRecord(bufio.NewReader(&buf))
	if err != nil {
		t.Fatalf("ReadRecord: %v", err)
	}
	if len(got) != len(rec) {
		t.Fatalf("got %d attrs, want %d", len(got), len(rec))
	}
	for i := range rec {
		if got[i] != rec[i] {
			t.Errorf("attr %d = %+v, want %+v", i, got[i], rec[i])
		}
	}
}

func TestReadRecordEOFBeforeAny(t *testing.T) {
	_, err := ReadRecord(bufio.NewReader(strings.NewReader("")))
	if err != io.EOF {
		t.Fatalf("err = %v, want io.EOF", err)
	}
}

func TestStrictRejectsUnknown(t *testing.T) {
	rec := NewRecord("addr", "alice@example.com", "bogus", "x")
	if err := Strict(rec, "addr"); err == nil {
		t.Fatal("expected Strict to reject an unexpected extra attribute")
	}
}

func TestGetInt(t *testing.T) {
	rec := NewRecord("flags", "8")
	n, ok, err := rec.GetInt("flags")
	if err != nil || !ok || n != 8 {
		t.Fatalf("GetInt = (%d, %v, %v), want (8, true, nil)", n, ok, err)
	}
}
