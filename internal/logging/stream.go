package logging

import (
	"context"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"
)

// LogEvent represents a structured log line published to the streaming hub.
type LogEvent struct {
	Sequence      uint64            `json:"seq"`
	Timestamp     time.Time         `json:"ts"`
	Level         string            `json:"level"`
	Message       string            `json:"msg"`
	Component     string            `json:"component,omitempty"`
	EventType     string            `json:"event_type,omitempty"`
	SessionID     string            `json:"session_id,omitempty"`
	JobID         string            `json:"job_id,omitempty"`
	LayerID       string            `json:"layer_id,omitempty"`
	CorrelationID string            `json:"correlation_id,omitempty"`
	Fields        map[string]string `json:"fields,omitempty"`
}

// StreamHub keeps the most recent session events in a ring and wakes
// followers when new ones arrive. Sequences start at 1 and are contiguous, so
// the ring is indexed by sequence.
type StreamHub struct {
	mu      sync.Mutex
	ring    []LogEvent
	first   uint64
	next    uint64
	changed chan struct{}
}

// NewStreamHub constructs a hub that retains up to capacity events.
func NewStreamHub(capacity int) *StreamHub {
	if capacity <= 0 {
		capacity = 512
	}
	return &StreamHub{
		ring:    make([]LogEvent, capacity),
		first:   1,
		next:    1,
		changed: make(chan struct{}),
	}
}

// Publish assigns the next sequence to evt and stores it, evicting the oldest
// event when the ring is full.
func (h *StreamHub) Publish(evt LogEvent) {
	if h == nil {
		return
	}
	h.mu.Lock()
	evt.Sequence = h.next
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}
	h.ring[h.next%uint64(len(h.ring))] = evt
	h.next++
	if h.next-h.first > uint64(len(h.ring)) {
		h.first = h.next - uint64(len(h.ring))
	}
	close(h.changed)
	h.changed = make(chan struct{})
	h.mu.Unlock()
}

// Fetch returns up to limit events with sequence greater than since, and the
// cursor to pass next time. Events already evicted are skipped. When wait is
// true and nothing is available, Fetch blocks until an event is published or
// ctx ends.
func (h *StreamHub) Fetch(ctx context.Context, since uint64, limit int, wait bool) ([]LogEvent, uint64, error) {
	if h == nil {
		return nil, since, nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	for {
		h.mu.Lock()
		events, cursor := h.rangeLocked(since+1, limit)
		changed := h.changed
		h.mu.Unlock()

		if len(events) > 0 || !wait {
			return events, cursor, nil
		}
		select {
		case <-ctx.Done():
			return nil, cursor, ctx.Err()
		case <-changed:
		}
	}
}

// Tail returns the most recent limit events without blocking.
func (h *StreamHub) Tail(limit int) ([]LogEvent, uint64) {
	if h == nil {
		return nil, 0
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	size := uint64(len(h.ring))
	if limit > 0 && uint64(limit) < size {
		size = uint64(limit)
	}
	from := h.first
	if h.next-from > size {
		from = h.next - size
	}
	return h.rangeLocked(from, int(size))
}

// rangeLocked copies events starting at sequence from. The returned cursor is
// the last sequence handed out, or the newest sequence when nothing was.
func (h *StreamHub) rangeLocked(from uint64, limit int) ([]LogEvent, uint64) {
	from = max(from, h.first)
	if from >= h.next {
		return nil, h.next - 1
	}
	count := h.next - from
	if limit > 0 && uint64(limit) < count {
		count = uint64(limit)
	}
	out := make([]LogEvent, count)
	for i := range out {
		out[i] = h.ring[(from+uint64(i))%uint64(len(h.ring))]
	}
	return out, out[len(out)-1].Sequence
}

// streamHandler mirrors every record the wrapped handler accepts into a hub.
// Attributes inside groups are flattened to dotted keys.
type streamHandler struct {
	next   slog.Handler
	hub    *StreamHub
	prefix string
	attrs  []slog.Attr
}

func newStreamHandler(next slog.Handler, hub *StreamHub) slog.Handler {
	if hub == nil || next == nil {
		return next
	}
	return &streamHandler{next: next, hub: hub}
}

func (h *streamHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *streamHandler) Handle(ctx context.Context, record slog.Record) error {
	evt := LogEvent{
		Timestamp: record.Time,
		Level:     strings.ToUpper(record.Level.String()),
		Message:   strings.TrimSpace(record.Message),
	}
	for _, attr := range h.attrs {
		evt.set(attr.Key, attr.Value)
	}
	record.Attrs(func(attr slog.Attr) bool {
		flatten(h.prefix, attr, evt.set)
		return true
	})
	h.hub.Publish(evt)
	return h.next.Handle(ctx, record)
}

func (h *streamHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := *h
	clone.next = h.next.WithAttrs(attrs)
	clone.attrs = slices.Clip(h.attrs)
	for _, attr := range attrs {
		flatten(h.prefix, attr, func(key string, v slog.Value) {
			clone.attrs = append(clone.attrs, slog.Attr{Key: key, Value: v})
		})
	}
	return &clone
}

func (h *streamHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	clone := *h
	clone.next = h.next.WithGroup(name)
	clone.prefix = h.prefix + name + "."
	return &clone
}

// flatten walks attr, expanding groups into prefixed keys.
func flatten(prefix string, attr slog.Attr, emit func(string, slog.Value)) {
	v := attr.Value.Resolve()
	if v.Kind() == slog.KindGroup {
		inner := prefix
		if attr.Key != "" {
			inner += attr.Key + "."
		}
		for _, child := range v.Group() {
			flatten(inner, child, emit)
		}
		return
	}
	if key := strings.TrimSpace(attr.Key); key != "" {
		emit(prefix+key, v)
	}
}

// set routes the well-known identity keys to their own fields.
func (e *LogEvent) set(key string, v slog.Value) {
	value := attrString(v)
	switch key {
	case FieldComponent:
		e.Component = value
	case FieldEventType:
		e.EventType = value
	case FieldSessionID:
		e.SessionID = value
	case FieldJobID:
		e.JobID = value
	case FieldLayerID:
		e.LayerID = value
	case FieldCorrelationID:
		e.CorrelationID = value
	default:
		if e.Fields == nil {
			e.Fields = make(map[string]string)
		}
		e.Fields[key] = value
	}
}
