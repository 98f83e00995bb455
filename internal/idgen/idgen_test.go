package idgen

import (
	"strings"
	"testing"
)

func TestWithPrefix(t *testing.T) {
	id := WithPrefix("bkg_")
	if !strings.HasPrefix(id, "bkg_") {
		t.Errorf("expected bkg_ prefix, got %q", id)
	}
	if len(id) != len("bkg_")+24 {
		t.Errorf("expected 24 hex chars after prefix, got %q", id)
	}
}

func TestWithPrefix_Unique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := WithPrefix("txn_")
		if seen[id] {
			t.Fatalf("duplicate ID generated: %s", id)
		}
		seen[id] = true
	}
}

func TestHex(t *testing.T) {
	h := Hex(16)
	if len(h) != 32 {
		t.Errorf("expected 32 chars for 16 bytes, got %d", len(h))
	}
}
