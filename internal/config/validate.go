package config

import (
	"errors"
	"fmt"
	"image/color"
	"net/url"
	"strconv"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateCanvas(); err != nil {
		return err
	}
	if err := c.validateTools(); err != nil {
		return err
	}
	if err := c.validateStaging(); err != nil {
		return err
	}
	if err := c.validateService(); err != nil {
		return err
	}
	if err := c.validateGeneration(); err != nil {
		return err
	}
	if err := c.validateAPI(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateCanvas() error {
	if c.Canvas.Width <= 0 || c.Canvas.Height <= 0 {
		return errors.New("canvas.width and canvas.height must be positive")
	}
	if c.Canvas.Width > 16384 || c.Canvas.Height > 16384 {
		return errors.New("canvas dimensions must not exceed 16384")
	}
	if _, err := ParseColor(c.Canvas.Background); err != nil {
		return fmt.Errorf("canvas.background: %w", err)
	}
	return nil
}

func (c *Config) validateTools() error {
	if _, err := ParseColor(c.Tools.BrushColor); err != nil {
		return fmt.Errorf("tools.brush_color: %w", err)
	}
	if c.Tools.BrushWidth <= 0 {
		return errors.New("tools.brush_width must be positive")
	}
	if c.Tools.EraserWidth <= 0 {
		return errors.New("tools.eraser_width must be positive")
	}
	return nil
}

func (c *Config) validateStaging() error {
	switch c.Staging.DefaultMode {
	case "canvas", "gallery":
		return nil
	default:
		return fmt.Errorf("staging.default_mode must be canvas or gallery, got %q", c.Staging.DefaultMode)
	}
}

func (c *Config) validateService() error {
	for key, raw := range map[string]string{"service.base_url": c.Service.BaseURL, "service.events_url": c.Service.EventsURL} {
		parsed, err := url.Parse(raw)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		if parsed.Scheme == "" || parsed.Host == "" {
			return fmt.Errorf("%s must be an absolute URL, got %q", key, raw)
		}
	}
	return nil
}

func (c *Config) validateGeneration() error {
	if c.Generation.Img2ImgStrength < 0 || c.Generation.Img2ImgStrength > 1 {
		return errors.New("generation.img2img_strength must be between 0 and 1")
	}
	return nil
}

func (c *Config) validateAPI() error {
	bind := strings.TrimSpace(c.API.Bind)
	if bind == "" {
		return nil
	}
	if !strings.Contains(bind, ":") {
		return fmt.Errorf("api.bind must be host:port, got %q", bind)
	}
	return nil
}

// ParseColor parses #rgb, #rrggbb, or #rrggbbaa into a non-premultiplied colour.
func ParseColor(value string) (color.NRGBA, error) {
	hex := strings.TrimPrefix(strings.TrimSpace(value), "#")
	switch len(hex) {
	case 3:
		hex = string([]byte{hex[0], hex[0], hex[1], hex[1], hex[2], hex[2]}) + "ff"
	case 6:
		hex += "ff"
	case 8:
	default:
		return color.NRGBA{}, fmt.Errorf("invalid colour %q", value)
	}
	parsed, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return color.NRGBA{}, fmt.Errorf("invalid colour %q", value)
	}
	return color.NRGBA{
		R: uint8(parsed >> 24),
		G: uint8(parsed >> 16),
		B: uint8(parsed >> 8),
		A: uint8(parsed),
	}, nil
}
