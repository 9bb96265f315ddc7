package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrLayerNotFound        = errors.New("layer not found")
	ErrUnsupportedOperation = errors.New("unsupported operation")
	ErrStagingBusy          = errors.New("staging busy")
	ErrLayerRender          = errors.New("layer render error")
	ErrEventDecode          = errors.New("event decode error")
	ErrImageResolution      = errors.New("image resolution failed")
	ErrStaleResult          = errors.New("stale async result")
	ErrCancelled            = errors.New("cancelled")
	ErrLifecycle            = errors.New("lifecycle violation")
	ErrValidation           = errors.New("validation error")
	ErrConfiguration        = errors.New("configuration error")
	ErrNotFound             = errors.New("not found")
	ErrTimeout              = errors.New("timeout")
	ErrTransient            = errors.New("transient failure")
)

// Wrap builds an error message that includes component context while tagging it
// with the provided marker for later classification. The marker should be one
// of the exported sentinel errors above.
func Wrap(marker error, component, operation, message string, err error) error {
	detail := buildDetail(component, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// Handling describes how a caller recovers from an error.
type Handling string

const (
	// HandlingNone means no error occurred.
	HandlingNone Handling = ""
	// HandlingNoop means the operation was skipped and logged.
	HandlingNoop Handling = "noop"
	// HandlingSurface means the error goes back to the caller so the user can retry.
	HandlingSurface Handling = "surface"
	// HandlingPlaceholder means a placeholder stands in for the failed layer.
	HandlingPlaceholder Handling = "placeholder"
	// HandlingDrop means the inbound event is dropped and ingestion continues.
	HandlingDrop Handling = "drop"
	// HandlingFailItem means the staged item is marked failed; the session continues.
	HandlingFailItem Handling = "fail_item"
	// HandlingDiscard means the result raced a newer state and is silently ignored.
	HandlingDiscard Handling = "discard"
)

// Classify maps an error onto its recovery policy. Nothing classifies as fatal:
// the worst outcome is failing the current item or session.
func Classify(err error) Handling {
	switch {
	case err == nil:
		return HandlingNone
	case errors.Is(err, ErrStaleResult):
		return HandlingDiscard
	case errors.Is(err, ErrLayerNotFound), errors.Is(err, ErrUnsupportedOperation):
		return HandlingNoop
	case errors.Is(err, ErrLayerRender):
		return HandlingPlaceholder
	case errors.Is(err, ErrEventDecode):
		return HandlingDrop
	case errors.Is(err, ErrImageResolution), errors.Is(err, ErrNotFound):
		return HandlingFailItem
	default:
		return HandlingSurface
	}
}

// ErrorHint returns a short operator-facing hint for logging.
func ErrorHint(err error) string {
	switch {
	case errors.Is(err, ErrStagingBusy):
		return "wait for the current generation to finish or cancel it"
	case errors.Is(err, ErrCancelled):
		return "the staging session was cancelled; submit again"
	case errors.Is(err, ErrLayerNotFound):
		return "refresh the layer list; the layer was removed"
	case errors.Is(err, ErrUnsupportedOperation):
		return "this layer kind does not support the operation"
	case errors.Is(err, ErrEventDecode):
		return "check generation service version compatibility"
	case errors.Is(err, ErrImageResolution), errors.Is(err, ErrNotFound):
		return "verify the generation service still has the image"
	case errors.Is(err, ErrConfiguration):
		return "check easel config values"
	case errors.Is(err, ErrLifecycle):
		return "canvas manager used outside initialize/destroy"
	default:
		return "check logs for details"
	}
}

func buildDetail(component, operation, message string) string {
	parts := make([]string, 0, 3)
	if component = strings.TrimSpace(component); component != "" {
		parts = append(parts, component)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
