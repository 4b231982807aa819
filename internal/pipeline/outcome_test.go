package pipeline

import (
	"strings"
	"testing"
)

func TestTruncateOutputShortPassthrough(t *testing.T) {
	out := "short output"
	if got := truncateOutput(out); got != out {
		t.Errorf("short output should pass through unchanged, got %q", got)
	}
}

func TestTruncateOutputKeepsHeadAndTail(t *testing.T) {
	head := strings.Repeat("H", outputHeadBytes)
	middle := strings.Repeat("M", 100*1024)
	tail := strings.Repeat("T", outputTailBytes)
	out := head + middle + tail

	got := truncateOutput(out)
	if len(got) >= len(out) {
		t.Fatalf("truncation did not shrink output: %d -> %d", len(out), len(got))
	}
	if !strings.HasPrefix(got, head) {
		t.Error("truncated output lost its head")
	}
	if !strings.HasSuffix(got, tail) {
		t.Error("truncated output lost its tail")
	}
	if !strings.Contains(got, "bytes omitted") {
		t.Error("truncated output should mark the omission")
	}
}
