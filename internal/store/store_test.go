package store

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestGenNewIDOrdered(t *testing.T) {
	a := GenNewID()
	b := GenNewID()
	if a == b {
		t.Fatal("ids must be unique")
	}
	// v7 ids are time-ordered, useful for index locality.
	if a.Version() != 7 || b.Version() != 7 {
		t.Errorf("versions = %d/%d, want 7", a.Version(), b.Version())
	}
}

func TestTruncateForAudit(t *testing.T) {
	short := "hello"
	if got := TruncateForAudit(short); got != short {
		t.Errorf("short text changed: %q", got)
	}
	long := strings.Repeat("x", 2000)
	got := TruncateForAudit(long)
	if len(got) != auditTextLimit {
		t.Errorf("len = %d, want %d", len(got), auditTextLimit)
	}

	// The limit falls mid-rune: 166×3 bytes = 498, the 167th € spans 498-501.
	multibyte := strings.Repeat("€", 300)
	got = TruncateForAudit(multibyte)
	if !utf8.ValidString(got) {
		t.Errorf("truncation split a rune: %q", got[len(got)-4:])
	}
	if len(got) != 498 {
		t.Errorf("len = %d, want the last whole rune boundary at 498", len(got))
	}
}
