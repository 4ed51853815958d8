package ingest

import "testing"

func TestIsPDF(t *testing.T) {
	if !IsPDF([]byte("%PDF-1.7\n...")) {
		t.Fatalf("expected the PDF magic to be recognized")
	}
	if IsPDF([]byte("plain text")) {
		t.Fatalf("plain text must not sniff as PDF")
	}
	if IsPDF(nil) {
		t.Fatalf("empty input must not sniff as PDF")
	}
	if IsPDF([]byte("%PD")) {
		t.Fatalf("truncated magic must not sniff as PDF")
	}
}

func TestCollapseWhitespace(t *testing.T) {
	got := collapseWhitespace("  a\tb\n\nc d  ")
	if got != "a b c d" {
		t.Fatalf("unexpected collapse result: %q", got)
	}
}
