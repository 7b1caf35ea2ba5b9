package common

import "testing"

func TestHasAny(t *testing.T) {
	if !HasAny("Table-Ext", "ext") {
		t.Fatalf("expected case-insensitive match")
	}
	if HasAny("array", "tab", "fit") {
		t.Fatalf("unexpected match")
	}
}

func TestParseKeyValue(t *testing.T) {
	k, v, err := ParseKeyValue(" airmass = 1.5 ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if k != "airmass" || v != "1.5" {
		t.Fatalf("got %q=%q", k, v)
	}

	if _, _, err := ParseKeyValue("airmass"); err == nil {
		t.Fatalf("expected error for missing '='")
	}
	if _, _, err := ParseKeyValue("=1"); err == nil {
		t.Fatalf("expected error for empty key")
	}
}
