package main

import (
	"bytes"
	"strings"
	"testing"
)

func TestRenderStatusLinePlain(t *testing.T) {
	got := renderStatusLine("Running", statusOK, "yes (pid 7)", false)
	if got != "  Running:           [OK] yes (pid 7)" {
		t.Fatalf("unexpected line %q", got)
	}
	if got := renderStatusLine("Tool", statusInfo, "", false); !strings.HasSuffix(got, "[INFO]") {
		t.Fatalf("expected bare tag, got %q", got)
	}
}

func TestRenderStatusLineColor(t *testing.T) {
	got := renderStatusLine("Phase", statusError, "failed", true)
	if !strings.Contains(got, "\x1b[") || !strings.Contains(got, "[ERROR] failed") {
		t.Fatalf("expected colored error line, got %q", got)
	}
}

func TestShouldColorizeRejectsBuffers(t *testing.T) {
	if shouldColorize(&bytes.Buffer{}) {
		t.Fatal("buffers are never terminals")
	}
}
