package main

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestSanitizeNote(t *testing.T) {
	if got := sanitizeNote("  beli gas  "); got != "beli gas" {
		t.Fatalf("trim: got %q", got)
	}
	if got := sanitizeNote("a\x00b\x1fc"); got != "abc" {
		t.Fatalf("control strip: got %q", got)
	}
}

func TestSanitizeNoteTruncatesOnRuneBoundary(t *testing.T) {
	// 3-byte runes: a byte-index cap would cut one in half
	long := strings.Repeat("ongkos kirim — ", 20) // 300 runes
	got := sanitizeNote(long)

	if !utf8.ValidString(got) {
		t.Fatalf("truncation produced invalid UTF-8: %q", got)
	}
	if n := utf8.RuneCountInString(got); n != 200 {
		t.Fatalf("rune count = %d, want 200", n)
	}
}
