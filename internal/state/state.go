// Package state holds the shared handle that the canvas manager, event
// ingestor, and staging controller receive at construction.
package state

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"easel/internal/document"
	"easel/internal/execution"
)

// View is the UI tab the user is looking at. Notifications depend on it.
type View string

const (
	ViewGeneration View = "generation"
	ViewCanvas     View = "canvas"
	ViewWorkflows  View = "workflows"
)

// ParseView accepts a view name.
func ParseView(value string) (View, error) {
	switch v := View(strings.ToLower(strings.TrimSpace(value))); v {
	case ViewGeneration, ViewCanvas, ViewWorkflows:
		return v, nil
	default:
		return "", fmt.Errorf("unknown view %q", value)
	}
}

// Preferences are user-controlled presentation settings.
type Preferences struct {
	ShowSendToToasts bool `json:"show_send_to_toasts"`
	ActiveView       View `json:"active_view"`
	ImageViewerOpen  bool `json:"image_viewer_open"`
}

// ProgressEvent is the most recent progress report, kept for the ambient
// progress indicator.
type ProgressEvent struct {
	JobID       string    `json:"job_id"`
	SessionID   string    `json:"session_id,omitempty"`
	SourceID    string    `json:"source_id,omitempty"`
	Destination string    `json:"destination,omitempty"`
	Message     string    `json:"message,omitempty"`
	Percentage  *float64  `json:"percentage,omitempty"`
	At          time.Time `json:"at"`
}

// Handle bundles the state shared by the canvas components. Document and
// Executions are safe for concurrent use on their own.
type Handle struct {
	Document   *document.Document
	Executions *execution.Table

	mu                 sync.RWMutex
	prefs              Preferences
	lastProgress       *ProgressEvent
	lastCanvasProgress *ProgressEvent
}

// New returns a handle over doc and table.
func New(doc *document.Document, table *execution.Table, prefs Preferences) *Handle {
	if table == nil {
		table = execution.NewTable()
	}
	if prefs.ActiveView == "" {
		prefs.ActiveView = ViewCanvas
	}
	return &Handle{Document: doc, Executions: table, prefs: prefs}
}

func (h *Handle) Prefs() Preferences {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.prefs
}

// UpdatePrefs applies fn to the preferences under the handle's lock.
func (h *Handle) UpdatePrefs(fn func(*Preferences)) Preferences {
	h.mu.Lock()
	defer h.mu.Unlock()
	fn(&h.prefs)
	return h.prefs
}

// LastProgress returns the latest progress event of any origin.
func (h *Handle) LastProgress() (ProgressEvent, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.lastProgress == nil {
		return ProgressEvent{}, false
	}
	return *h.lastProgress, true
}

// SetLastProgress records evt; nil clears it.
func (h *Handle) SetLastProgress(evt *ProgressEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.lastProgress = copyEvent(evt)
}

// LastCanvasProgress returns the latest progress event of a canvas job.
func (h *Handle) LastCanvasProgress() (ProgressEvent, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.lastCanvasProgress == nil {
		return ProgressEvent{}, false
	}
	return *h.lastCanvasProgress, true
}

// SetLastCanvasProgress records evt; nil clears it.
func (h *Handle) SetLastCanvasProgress(evt *ProgressEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.lastCanvasProgress = copyEvent(evt)
}

func copyEvent(evt *ProgressEvent) *ProgressEvent {
	if evt == nil {
		return nil
	}
	out := *evt
	if evt.Percentage != nil {
		p := *evt.Percentage
		out.Percentage = &p
	}
	return &out
}
