package testsupport

import (
	"path/filepath"
	"strings"
	"testing"

	"easel/internal/config"
)

// ConfigOption adjusts a test configuration after the defaults are applied.
type ConfigOption func(*config.Config)

// NewConfig returns a configuration rooted in a fresh temp directory: a small
// canvas, a fast render loop, an ephemeral API port and no notifications.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	root := t.TempDir()
	cfg := config.Default()
	cfg.Paths.StateDir = filepath.Join(root, "state")
	cfg.Paths.LogDir = filepath.Join(root, "logs")
	cfg.Paths.PreviewPath = ""
	cfg.API.Bind = "127.0.0.1:0"
	cfg.Canvas.Width, cfg.Canvas.Height = 64, 64
	cfg.Canvas.RenderIntervalMS = 5
	cfg.Notifications.NtfyTopic = ""

	for _, opt := range opts {
		opt(&cfg)
	}
	return &cfg
}

func WithCanvasSize(width, height int) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Canvas.Width, cfg.Canvas.Height = width, height
	}
}

func WithAutoAccept(enabled bool) ConfigOption {
	return func(cfg *config.Config) { cfg.Staging.AutoAccept = enabled }
}

// WithDevelopment makes lifecycle violations panic.
func WithDevelopment() ConfigOption {
	return func(cfg *config.Config) { cfg.Canvas.Development = true }
}

// WithServiceURL points the REST client at baseURL and the event stream at
// the matching ws:// or wss:// endpoint.
func WithServiceURL(baseURL string) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Service.BaseURL = baseURL
		cfg.Service.EventsURL = "ws" + strings.TrimPrefix(baseURL, "http") + "/ws/events"
	}
}

// BaseDir is the temp directory NewConfig placed the state and log dirs in.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.StateDir)
}
