package services_test

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"easel/internal/services"
)

func TestWrapIncludesContext(t *testing.T) {
	base := errors.New("boom")
	err := services.Wrap(services.ErrImageResolution, "canvas", "resolve", "fetch pixels", base)
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, services.ErrImageResolution) {
		t.Fatalf("expected marker to be retained, got %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped error to contain base error, got %v", err)
	}
	msg := err.Error()
	for _, fragment := range []string{"canvas", "resolve", "fetch pixels"} {
		if !strings.Contains(msg, fragment) {
			t.Fatalf("expected %q in error string %q", fragment, msg)
		}
	}
}

func TestWrapDefaultsToTransient(t *testing.T) {
	err := services.Wrap(nil, "", "", "", nil)
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected transient marker, got %v", err)
	}
	if !strings.Contains(err.Error(), "service failure") {
		t.Fatalf("expected fallback detail, got %q", err)
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		err  error
		want services.Handling
	}{
		{nil, services.HandlingNone},
		{services.Wrap(services.ErrLayerNotFound, "document", "remove", "", nil), services.HandlingNoop},
		{services.Wrap(services.ErrUnsupportedOperation, "document", "reset", "", nil), services.HandlingNoop},
		{services.ErrStagingBusy, services.HandlingSurface},
		{services.Wrap(services.ErrLayerRender, "compositor", "decode", "", nil), services.HandlingPlaceholder},
		{services.ErrEventDecode, services.HandlingDrop},
		{fmt.Errorf("outer: %w", services.ErrImageResolution), services.HandlingFailItem},
		{services.ErrStaleResult, services.HandlingDiscard},
		{services.Wrap(services.ErrCancelled, "canvas", "submit", "", nil), services.HandlingSurface},
		{errors.New("network down"), services.HandlingSurface},
	}
	for _, tt := range tests {
		if got := services.Classify(tt.err); got != tt.want {
			t.Fatalf("Classify(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}

func TestErrorHintMentionsRemedy(t *testing.T) {
	if hint := services.ErrorHint(services.ErrStagingBusy); !strings.Contains(hint, "cancel") {
		t.Fatalf("unexpected staging hint %q", hint)
	}
	if hint := services.ErrorHint(services.ErrCancelled); !strings.Contains(hint, "submit again") {
		t.Fatalf("unexpected cancel hint %q", hint)
	}
	if hint := services.ErrorHint(errors.New("x")); hint != "check logs for details" {
		t.Fatalf("unexpected default hint %q", hint)
	}
}
