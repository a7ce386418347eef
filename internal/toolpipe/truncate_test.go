package toolpipe

import (
	"strings"
	"testing"
)

func TestTruncateText_ReturnsUnchangedWhenWithinLimit(t *testing.T) {
	in := "hello world"
	if out := TruncateText(in, 50); out != in {
		t.Fatalf("expected unchanged text, got %q", out)
	}
}

func TestTruncateText_CutsAndAnnotatesWhenOverLimit(t *testing.T) {
	in := strings.Repeat("a", 100)
	out := TruncateText(in, 10)
	if !strings.HasPrefix(out, strings.Repeat("a", 10)) {
		t.Fatalf("expected output to start with the first 10 chars, got %q", out)
	}
	if !strings.Contains(out, "truncated") {
		t.Fatalf("expected truncation note, got %q", out)
	}
	if !strings.Contains(out, "90 chars removed") {
		t.Fatalf("expected removed-char count in note, got %q", out)
	}
}

func TestTruncateText_ZeroOrNegativeMaxCharsUsesDefault(t *testing.T) {
	in := strings.Repeat("b", DefaultMaxChars+1)
	out := TruncateText(in, 0)
	if !strings.Contains(out, "truncated") {
		t.Fatalf("expected default limit to kick in and truncate, got len %d", len(out))
	}
}
