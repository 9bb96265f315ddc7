package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"easel/internal/config"
)

const userAgent = "Easel-Go/0.1.0"

// Event names a notification.
type Event string

const (
	EventSentToCanvas  Event = "sent_to_canvas"
	EventSentToGallery Event = "sent_to_gallery"
	EventStagingFailed Event = "staging_failed"
	EventTest          Event = "test"
)

// Payload carries event fields such as "image" and "board".
type Payload map[string]any

// Service defines the notification surface exposed to session components.
type Service interface {
	Publish(ctx context.Context, event Event, payload Payload) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	if cfg == nil {
		return noopService{}
	}
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyService{
		endpoint: topic,
		client:   &http.Client{Timeout: timeout},
		window:   time.Duration(cfg.Notifications.DedupWindowSeconds) * time.Second,
		recent:   make(map[string]time.Time),
		now:      time.Now,
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint string
	client   *http.Client
	window   time.Duration

	mu     sync.Mutex
	recent map[string]time.Time
	now    func() time.Time
}

func (n *ntfyService) Publish(ctx context.Context, event Event, fields Payload) error {
	data, ok := format(event, fields)
	if !ok {
		return nil
	}
	if !n.admit(dedupKey(event, fields)) {
		return nil
	}
	return n.send(ctx, data)
}

func format(event Event, fields Payload) (payload, bool) {
	switch event {
	case EventSentToCanvas:
		return payload{
			title:   "Easel - Sent to Canvas",
			message: fmt.Sprintf("🖼️ Image sent to canvas: %s", fields.text("image", "image")),
			tags:    []string{"easel", "canvas", "staged"},
		}, true
	case EventSentToGallery:
		message := fmt.Sprintf("🗂️ Image sent to gallery: %s", fields.text("image", "image"))
		if board := fields.text("board", ""); board != "" && board != "none" {
			message = fmt.Sprintf("%s\nBoard: %s", message, board)
		}
		return payload{
			title:   "Easel - Sent to Gallery",
			message: message,
			tags:    []string{"easel", "gallery", "added"},
		}, true
	case EventStagingFailed:
		return payload{
			title:    "Easel - Generation Failed",
			message:  fmt.Sprintf("❌ Generation failed: %s", fields.text("error", "unknown error")),
			tags:     []string{"easel", "error", "alert"},
			priority: "high",
		}, true
	case EventTest:
		return payload{
			title:    "Easel - Test",
			message:  "🧪 Notification system test",
			tags:     []string{"easel", "test"},
			priority: "low",
		}, true
	default:
		return payload{}, false
	}
}

func (p Payload) text(key, fallback string) string {
	if p == nil {
		return fallback
	}
	v, ok := p[key]
	if !ok || v == nil {
		return fallback
	}
	s := strings.TrimSpace(fmt.Sprint(v))
	if s == "" {
		return fallback
	}
	return s
}

func dedupKey(event Event, fields Payload) string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	b.WriteString(string(event))
	for _, k := range keys {
		fmt.Fprintf(&b, "|%s=%v", k, fields[k])
	}
	return b.String()
}

// admit reports whether key was not sent within the dedup window.
func (n *ntfyService) admit(key string) bool {
	if n.window <= 0 {
		return true
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	now := n.now()
	for k, at := range n.recent {
		if now.Sub(at) >= n.window {
			delete(n.recent, k)
		}
	}
	if _, seen := n.recent[key]; seen {
		return false
	}
	n.recent[key] = now
	return true
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) Publish(context.Context, Event, Payload) error { return nil }
