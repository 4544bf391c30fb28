package id

import (
	"encoding/hex"
	"regexp"
	"strings"
	"testing"
	"time"
)

var reHex32 = regexp.MustCompile(`^[a-f0-9]{32}$`)

func TestNewID32_FormatAndDecode(t *testing.T) {
	got := NewID32()

	// length
	if len(got) != 32 {
		t.Fatalf("length = %d, want 32 (got=%q)", len(got), got)
	}
	// lowercase hex only (no separators/prefixes)
	if !reHex32.MatchString(got) {
		t.Fatalf("not 32-char lowercase hex: %q", got)
	}
	// decodes to exactly 16 bytes
	b, err := hex.DecodeString(got)
	if err != nil {
		t.Fatalf("hex.DecodeString error: %v", err)
	}
	if len(b) != 16 {
		t.Fatalf("decoded bytes = %d, want 16", len(b))
	}
}

func TestNewID32_Uniqueness(t *testing.T) {
	const n = 200
	seen := make(map[string]struct{}, n)
	for i := 0; i < n; i++ {
		id := NewID32()
		if _, ok := seen[id]; ok {
			t.Fatalf("duplicate id after %d iterations: %q", i, id)
		}
		seen[id] = struct{}{}
	}
}

func TestNewID32_NoUppercaseOrHyphen(t *testing.T) {
	id := NewID32()
	for _, r := range id {
		if r >= 'A' && r <= 'Z' {
			t.Fatalf("found uppercase letter in id: %q", id)
		}
		if r == '-' {
			t.Fatalf("found hyphen in id: %q", id)
		}
	}
}

var reReference = regexp.MustCompile(`^[a-z]{3}sl00a\.[0-9]{14}\.(L[0-9]{3,}|GEN)$`)

func TestNewReference_Format(t *testing.T) {
	now := time.Date(2025, 6, 28, 14, 30, 22, 0, time.UTC)

	tests := []struct {
		scope, suffix string
	}{
		{"L007", ".20250628143022.L007"},
		{"", ".20250628143022.GEN"},
		{GeneralScope, ".20250628143022.GEN"},
	}
	for _, tc := range tests {
		got := NewReference(tc.scope, now)
		if !reReference.MatchString(got) {
			t.Fatalf("bad reference format: %q", got)
		}
		if !strings.HasSuffix(got, tc.suffix) {
			t.Errorf("NewReference(%q) = %q, want suffix %q", tc.scope, got, tc.suffix)
		}
	}
}

func TestNewReference_UsesUTC(t *testing.T) {
	harare := time.FixedZone("CAT", 2*60*60)
	got := NewReference("L001", time.Date(2025, 1, 1, 1, 0, 0, 0, harare))
	if !strings.Contains(got, ".20241231230000.") {
		t.Fatalf("timestamp not rendered in UTC: %q", got)
	}
}
