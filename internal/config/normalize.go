package config

import (
	"fmt"
	"os"
	"strings"
)

const (
	envServiceToken = "EASEL_SERVICE_TOKEN"
	envNtfyTopic    = "EASEL_NTFY_TOPIC"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeCanvas()
	c.normalizeTools()
	c.normalizeStaging()
	c.normalizeService()
	c.normalizeGeneration()
	c.normalizeNotifications()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		c.Paths.StateDir = defaultStateDir
	}
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if c.Paths.PreviewPath, err = expandPath(strings.TrimSpace(c.Paths.PreviewPath)); err != nil {
		return fmt.Errorf("paths.preview_path: %w", err)
	}
	return nil
}

func (c *Config) normalizeCanvas() {
	c.Canvas.Background = strings.TrimSpace(c.Canvas.Background)
	if c.Canvas.Background == "" {
		c.Canvas.Background = defaultCanvasBackground
	}
	if c.Canvas.RenderIntervalMS <= 0 {
		c.Canvas.RenderIntervalMS = defaultRenderIntervalMS
	}
}

func (c *Config) normalizeTools() {
	c.Tools.BrushColor = strings.TrimSpace(c.Tools.BrushColor)
	if c.Tools.BrushColor == "" {
		c.Tools.BrushColor = defaultBrushColor
	}
}

func (c *Config) normalizeStaging() {
	c.Staging.DefaultMode = strings.ToLower(strings.TrimSpace(c.Staging.DefaultMode))
	if c.Staging.DefaultMode == "" {
		c.Staging.DefaultMode = defaultStagingMode
	}
}

func (c *Config) normalizeService() {
	c.Service.BaseURL = strings.TrimRight(strings.TrimSpace(c.Service.BaseURL), "/")
	if c.Service.BaseURL == "" {
		c.Service.BaseURL = defaultServiceBaseURL
	}
	c.Service.EventsURL = strings.TrimSpace(c.Service.EventsURL)
	if c.Service.EventsURL == "" {
		c.Service.EventsURL = deriveEventsURL(c.Service.BaseURL)
	}
	c.Service.Token = strings.TrimSpace(c.Service.Token)
	if c.Service.Token == "" {
		if value, ok := os.LookupEnv(envServiceToken); ok {
			c.Service.Token = strings.TrimSpace(value)
		}
	}
	c.Service.QueueID = strings.TrimSpace(c.Service.QueueID)
	if c.Service.QueueID == "" {
		c.Service.QueueID = defaultServiceQueueID
	}
	if c.Service.RequestTimeout <= 0 {
		c.Service.RequestTimeout = defaultRequestTimeout
	}
	if c.Service.ResolveTimeout <= 0 {
		c.Service.ResolveTimeout = defaultResolveTimeout
	}
}

// deriveEventsURL maps http(s)://host to ws(s)://host/ws/events.
func deriveEventsURL(base string) string {
	switch {
	case strings.HasPrefix(base, "https://"):
		return "wss://" + strings.TrimPrefix(base, "https://") + "/ws/events"
	case strings.HasPrefix(base, "http://"):
		return "ws://" + strings.TrimPrefix(base, "http://") + "/ws/events"
	default:
		return base + "/ws/events"
	}
}

func (c *Config) normalizeGeneration() {
	c.Generation.Model = strings.TrimSpace(c.Generation.Model)
	c.Generation.Scheduler = strings.TrimSpace(c.Generation.Scheduler)
	if c.Generation.Scheduler == "" {
		c.Generation.Scheduler = defaultGenerationScheduler
	}
	if c.Generation.Steps <= 0 {
		c.Generation.Steps = defaultGenerationSteps
	}
	if c.Generation.CFGScale <= 0 {
		c.Generation.CFGScale = defaultGenerationCFGScale
	}
}

func (c *Config) normalizeNotifications() {
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.NtfyTopic == "" {
		if value, ok := os.LookupEnv(envNtfyTopic); ok {
			c.Notifications.NtfyTopic = strings.TrimSpace(value)
		}
	}
	if c.Notifications.RequestTimeout <= 0 {
		c.Notifications.RequestTimeout = defaultNotifyTimeout
	}
	if c.Notifications.DedupWindowSeconds < 0 {
		c.Notifications.DedupWindowSeconds = 0
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
