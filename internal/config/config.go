package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains on-disk locations used by a canvas session.
type Paths struct {
	StateDir    string `toml:"state_dir"`
	LogDir      string `toml:"log_dir"`
	PreviewPath string `toml:"preview_path"`
}

// Canvas contains document frame and render loop settings.
type Canvas struct {
	Width            int    `toml:"width"`
	Height           int    `toml:"height"`
	Background       string `toml:"background"`
	DimDisabled      bool   `toml:"dim_disabled"`
	Development      bool   `toml:"development"`
	RenderIntervalMS int    `toml:"render_interval_ms"`
}

// Tools contains default brush and eraser settings.
type Tools struct {
	BrushColor  string  `toml:"brush_color"`
	BrushWidth  float64 `toml:"brush_width"`
	EraserWidth float64 `toml:"eraser_width"`
}

// Staging controls how generation results land on the canvas.
type Staging struct {
	AutoAccept  bool   `toml:"auto_accept"`
	DefaultMode string `toml:"default_mode"`
}

// Service contains connection settings for the remote generation service.
type Service struct {
	BaseURL        string `toml:"base_url"`
	EventsURL      string `toml:"events_url"`
	Token          string `toml:"token"`
	QueueID        string `toml:"queue_id"`
	RequestTimeout int    `toml:"request_timeout"`
	ResolveTimeout int    `toml:"resolve_timeout"`
}

// Generation holds parameter defaults sent alongside every submission.
type Generation struct {
	Model           string  `toml:"model"`
	Steps           int     `toml:"steps"`
	CFGScale        float64 `toml:"cfg_scale"`
	Scheduler       string  `toml:"scheduler"`
	Img2ImgStrength float64 `toml:"img2img_strength"`
	Seed            *int64  `toml:"seed,omitempty"`
}

// Gallery contains settings for the local gallery index.
type Gallery struct {
	AutoSwitch   bool   `toml:"auto_switch"`
	DefaultBoard string `toml:"default_board"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic          string `toml:"ntfy_topic"`
	SendToToasts       bool   `toml:"send_to_toasts"`
	RequestTimeout     int    `toml:"request_timeout"`
	DedupWindowSeconds int    `toml:"dedup_window_seconds"`
}

// API contains the preview HTTP server settings.
type API struct {
	Bind  string `toml:"bind"`
	Token string `toml:"token"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for Easel.
//
// Configuration sections by subsystem:
//   - Paths: session state, logs, and optional preview file
//   - Canvas: document frame size, background, render cadence
//   - Tools: brush and eraser defaults
//   - Staging: auto-accept and default destination for results
//   - Service: generation service endpoints and credentials
//   - Generation: parameter defaults sent with submissions
//   - Gallery: board selection behaviour for new images
//   - Notifications: ntfy push notification settings
//   - API: preview HTTP bind address
//   - Logging: log format and level
type Config struct {
	Paths         Paths         `toml:"paths"`
	Canvas        Canvas        `toml:"canvas"`
	Tools         Tools         `toml:"tools"`
	Staging       Staging       `toml:"staging"`
	Service       Service       `toml:"service"`
	Generation    Generation    `toml:"generation"`
	Gallery       Gallery       `toml:"gallery"`
	Notifications Notifications `toml:"notifications"`
	API           API           `toml:"api"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/easel/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	loadEnvFiles(resolvedPath)

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

// loadEnvFiles reads .env files beside the config and in the working directory.
// Variables already present in the environment win.
func loadEnvFiles(configPath string) {
	candidates := []string{filepath.Join(filepath.Dir(configPath), ".env"), ".env"}
	for _, candidate := range candidates {
		if info, err := os.Stat(candidate); err != nil || info.IsDir() {
			continue
		}
		_ = godotenv.Load(candidate)
	}
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("easel.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for a canvas session.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.StateDir, c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	if c.Paths.PreviewPath != "" {
		if err := os.MkdirAll(filepath.Dir(c.Paths.PreviewPath), 0o755); err != nil {
			return fmt.Errorf("create preview directory: %w", err)
		}
	}
	return nil
}

// SocketPath returns the IPC socket location for the running session.
func (c *Config) SocketPath() string {
	return filepath.Join(c.Paths.StateDir, "easel.sock")
}

// LockPath returns the single-instance lock file location.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.StateDir, "easel.lock")
}

// GalleryPath returns the gallery database location.
func (c *Config) GalleryPath() string {
	return filepath.Join(c.Paths.StateDir, "gallery.db")
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
