// Package tool turns pointer input into document mutations.
//
// An Engine holds the active tool and at most one stroke session. Samples are
// accumulated while the pointer is down and committed as a single document
// mutation on pointer-up, so history and network consumers see atomic edits.
package tool

import (
	"errors"
	"fmt"
	"image/color"
	"log/slog"
	"math"
	"strings"

	"easel/internal/document"
	"easel/internal/logging"
)

// Tool names the active input mode.
type Tool string

const (
	Brush     Tool = "brush"
	Eraser    Tool = "eraser"
	Move      Tool = "move"
	Transform Tool = "transform"
)

// ErrStrokeActive is returned when the tool changes while the pointer is down.
var ErrStrokeActive = errors.New("tool change during active stroke")

const minScale = 0.05

// ParseTool accepts a tool name.
func ParseTool(value string) (Tool, error) {
	switch t := Tool(strings.ToLower(strings.TrimSpace(value))); t {
	case Brush, Eraser, Move, Transform:
		return t, nil
	default:
		return "", fmt.Errorf("unknown tool %q", value)
	}
}

// Settings holds brush parameters.
type Settings struct {
	BrushColor  color.NRGBA
	BrushWidth  float64
	EraserWidth float64
}

// DefaultSettings mirrors the configuration defaults.
func DefaultSettings() Settings {
	return Settings{BrushColor: color.NRGBA{R: 255, G: 255, B: 255, A: 255}, BrushWidth: 50, EraserWidth: 50}
}

// Preview describes an uncommitted edit for the interactive view.
type Preview struct {
	LayerID   string
	Stroke    *document.Stroke
	Transform *document.Transform
}

type session struct {
	tool      Tool
	layerID   string
	// valid is false when pointer-down landed on nothing editable; the
	// session still absorbs input until pointer-up.
	valid     bool
	start     document.Point
	placement document.Transform
	stroke    document.Stroke
	base      document.Transform
	current   document.Transform
}

// Engine interprets pointer input against the active tool.
type Engine struct {
	doc      *document.Document
	tool     Tool
	settings Settings
	active   *session
	logger   *slog.Logger
}

// NewEngine binds an engine to doc with brush as the initial tool.
func NewEngine(doc *document.Document, settings Settings, logger *slog.Logger) *Engine {
	return &Engine{
		doc:      doc,
		tool:     Brush,
		settings: settings,
		logger:   logging.NewComponentLogger(logger, "tool"),
	}
}

func (e *Engine) Tool() Tool { return e.tool }

// SetTool switches tools. It is rejected while a stroke is active.
func (e *Engine) SetTool(t Tool) error {
	if e.active != nil {
		return ErrStrokeActive
	}
	e.tool = t
	return nil
}

func (e *Engine) Settings() Settings { return e.settings }

func (e *Engine) SetSettings(s Settings) { e.settings = s }

// Active reports whether the pointer is down.
func (e *Engine) Active() bool { return e.active != nil }

// PointerDown begins a stroke session.
func (e *Engine) PointerDown(p document.Point) {
	s := &session{tool: e.tool, start: p}
	switch e.tool {
	case Brush, Eraser:
		e.beginPaint(s, p)
	case Move, Transform:
		e.beginPlacement(s, p)
	}
	e.active = s
}

func (e *Engine) beginPaint(s *session, p document.Point) {
	id, ok := e.doc.Selected()
	if !ok {
		return
	}
	layer, ok := e.doc.Layer(id)
	if !ok || !layer.Kind.Paintable() || !layer.Enabled || layer.Locked {
		e.logger.Debug("stroke ignored", logging.String(logging.FieldLayerID, id), logging.String("tool", string(s.tool)))
		return
	}
	s.layerID = id
	s.valid = true
	s.placement = layer.Transform
	s.stroke = document.Stroke{Mode: document.StrokeBrush, Color: e.settings.BrushColor, Width: e.settings.BrushWidth}
	if s.tool == Eraser {
		s.stroke.Mode = document.StrokeErase
		s.stroke.Width = e.settings.EraserWidth
	}
	// widths are given in document pixels
	if scale := math.Abs(layer.Transform.ScaleX); scale > 0 {
		s.stroke.Width /= scale
	}
	e.appendSample(s, p)
}

func (e *Engine) beginPlacement(s *session, p document.Point) {
	id, ok := e.doc.LayerAt(p)
	if !ok {
		return
	}
	layer, ok := e.doc.Layer(id)
	if !ok || layer.Locked || !layer.Enabled {
		e.logger.Debug("placement ignored", logging.String(logging.FieldLayerID, id), logging.String("tool", string(s.tool)))
		return
	}
	s.layerID = id
	s.valid = true
	s.base = layer.Transform
	s.current = layer.Transform
}

// PointerMove appends a sample or updates the transform delta.
func (e *Engine) PointerMove(p document.Point) {
	s := e.active
	if s == nil || !s.valid {
		return
	}
	switch s.tool {
	case Brush, Eraser:
		e.appendSample(s, p)
	case Move:
		s.current = s.base
		s.current.X += p.X - s.start.X
		s.current.Y += p.Y - s.start.Y
	case Transform:
		s.current = scaleAboutOrigin(s.base, s.start, p)
	}
}

// PointerUp commits the accumulated edit as one document mutation. It reports
// whether anything was written.
func (e *Engine) PointerUp(p document.Point) (bool, error) {
	s := e.active
	if s == nil {
		return false, nil
	}
	e.PointerMove(p)
	e.active = nil
	if !s.valid {
		return false, nil
	}

	var patch document.Patch
	switch s.tool {
	case Brush, Eraser:
		if len(s.stroke.Points) == 0 {
			return false, nil
		}
		patch.Strokes = []document.Stroke{s.stroke}
	case Move, Transform:
		if s.current == s.base {
			return false, nil
		}
		t := s.current
		patch.Transform = &t
	}
	if err := e.doc.MutatePaintData(s.layerID, patch); err != nil {
		return false, err
	}
	return true, nil
}

// Abort drops the active session without committing.
func (e *Engine) Abort() {
	e.active = nil
}

// Preview returns the in-progress edit, if any.
func (e *Engine) Preview() (Preview, bool) {
	s := e.active
	if s == nil || !s.valid {
		return Preview{}, false
	}
	out := Preview{LayerID: s.layerID}
	switch s.tool {
	case Brush, Eraser:
		stroke := s.stroke
		stroke.Points = append([]document.Point(nil), s.stroke.Points...)
		out.Stroke = &stroke
	default:
		t := s.current
		out.Transform = &t
	}
	return out, true
}

func (e *Engine) appendSample(s *session, p document.Point) {
	local, ok := s.placement.Invert(p)
	if !ok {
		return
	}
	if n := len(s.stroke.Points); n > 0 && s.stroke.Points[n-1] == local {
		return
	}
	s.stroke.Points = append(s.stroke.Points, local)
}

// scaleAboutOrigin scales per axis by how far the pointer moved relative to
// the layer origin.
func scaleAboutOrigin(base document.Transform, start, p document.Point) document.Transform {
	out := base
	if dx := start.X - base.X; math.Abs(dx) > 1e-6 {
		out.ScaleX = math.Max(base.ScaleX*(p.X-base.X)/dx, minScale)
	}
	if dy := start.Y - base.Y; math.Abs(dy) > 1e-6 {
		out.ScaleY = math.Max(base.ScaleY*(p.Y-base.Y)/dy, minScale)
	}
	return out
}
