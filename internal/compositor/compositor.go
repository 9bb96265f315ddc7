package compositor

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"log/slog"
	"time"

	"github.com/gogpu/gg"
	"golang.org/x/image/draw"

	"easel/internal/document"
	"easel/internal/services"
	"easel/internal/staging"
)

// Purpose selects which feedback styling a frame may carry.
type Purpose int

const (
	// PurposeInteractive frames may show dimmed disabled layers, mask tints,
	// control images, weight overlays and the staged preview.
	PurposeInteractive Purpose = iota
	// PurposeSubmission frames contain only what a job consumes.
	PurposeSubmission
)

func (p Purpose) String() string {
	if p == PurposeSubmission {
		return "submission"
	}
	return "interactive"
}

// Target selects the bitmap Flatten produces.
type Target int

const (
	TargetComposite Target = iota
	TargetInpaintMask
)

func (t Target) String() string {
	if t == TargetInpaintMask {
		return "inpaint_mask"
	}
	return "composite"
}

// Viewport maps document space onto the output bitmap. X and Y are the
// document coordinates of the top-left output pixel; Scale is output pixels
// per document unit.
type Viewport struct {
	X      float64
	Y      float64
	Width  int
	Height int
	Scale  float64
}

// FullViewport covers the whole document at 1:1.
func FullViewport(doc document.Snapshot) Viewport {
	return Viewport{Width: doc.Width, Height: doc.Height, Scale: 1}
}

func (v Viewport) normalized() Viewport {
	if v.Scale <= 0 {
		v.Scale = 1
	}
	v.Width = max(v.Width, 0)
	v.Height = max(v.Height, 0)
	return v
}

// Options tune a Render call.
type Options struct {
	Purpose Purpose
	// Background fills the frame before any layer is drawn; nil leaves it
	// transparent.
	Background color.Color
	// DimDisabled draws disabled layers faintly in interactive frames.
	DimDisabled bool
	// Now drives time-based overlays. The zero value hides them.
	Now time.Time
	// Pending is the edit still under the pointer.
	Pending *Pending
}

// Pending is an uncommitted edit of one layer: a stroke drawn on top of its
// paint, or a placement replacing its transform.
type Pending struct {
	LayerID   string
	Stroke    *document.Stroke
	Transform *document.Transform
}

// Result is a finished frame. Errors lists layers that were replaced by a
// placeholder. Animating is set while a time-based overlay is still fading, so
// a render loop knows to draw again without a document change.
type Result struct {
	Image     *image.RGBA
	Version   uint64
	Errors    []error
	Animating bool
}

// LayerRenderError reports a layer whose content could not be drawn.
type LayerRenderError struct {
	LayerID string
	Kind    document.Kind
	Err     error
}

func (e *LayerRenderError) Error() string {
	return fmt.Sprintf("render layer %s (%s): %v", e.LayerID, e.Kind, e.Err)
}

func (e *LayerRenderError) Unwrap() []error {
	return []error{services.ErrLayerRender, e.Err}
}

// AsLayerRenderError extracts the layer failure from err.
func AsLayerRenderError(err error) (*LayerRenderError, bool) {
	var target *LayerRenderError
	if errors.As(err, &target) {
		return target, true
	}
	return nil, false
}

const (
	disabledOpacity = 0.3
	maskOpacity     = 0.5
	overlayDuration = time.Second
)

// BindLogger routes the rasteriser's diagnostics to logger.
func BindLogger(logger *slog.Logger) {
	gg.SetLogger(logger)
}

// Render composites doc in draw order and then the selected staged item of st.
func Render(doc document.Snapshot, st staging.Snapshot, viewport Viewport, opts Options) Result {
	vp := viewport.normalized()
	frame := image.NewRGBA(image.Rect(0, 0, vp.Width, vp.Height))
	if opts.Background != nil {
		draw.Draw(frame, frame.Bounds(), image.NewUniform(opts.Background), image.Point{}, draw.Src)
	}
	r := renderer{frame: frame, vp: vp, opts: opts}
	for i := range doc.Layers {
		r.layer(&doc.Layers[i])
	}
	if opts.Purpose == PurposeInteractive {
		r.staged(doc, st)
	}
	return Result{Image: frame, Version: doc.Version, Errors: r.errs, Animating: r.animating}
}

// Flatten produces the bitmap a job consumes: either the raster composite of
// every enabled layer, or the union of enabled inpaint masks.
func Flatten(doc document.Snapshot, viewport Viewport, target Target) Result {
	if target == TargetInpaintMask {
		return flattenMask(doc, viewport)
	}
	return Render(doc, staging.Snapshot{}, viewport, Options{Purpose: PurposeSubmission})
}

// flattenMask draws inpaint coverage as opaque white on a transparent frame.
func flattenMask(doc document.Snapshot, viewport Viewport) Result {
	vp := viewport.normalized()
	frame := image.NewRGBA(image.Rect(0, 0, vp.Width, vp.Height))
	r := renderer{frame: frame, vp: vp, opts: Options{Purpose: PurposeSubmission}}
	for i := range doc.Layers {
		l := &doc.Layers[i]
		if !l.Enabled || l.Kind != document.KindInpaintMask {
			continue
		}
		surface, err := rasterize(l.Paint)
		if err != nil {
			r.fail(l, err)
			continue
		}
		if surface == nil {
			continue
		}
		r.place(tint(surface.img, color.White), surface.origin, l.Transform, 1)
	}
	return Result{Image: frame, Version: doc.Version, Errors: r.errs}
}

type renderer struct {
	frame     *image.RGBA
	vp        Viewport
	opts      Options
	errs      []error
	animating bool
}

func (r *renderer) interactive() bool {
	return r.opts.Purpose == PurposeInteractive
}

func (r *renderer) layer(l *document.Layer) {
	if p := r.opts.Pending; p != nil && p.LayerID == l.ID && p.Transform != nil {
		moved := *l
		moved.Transform = *p.Transform
		l = &moved
	}
	opacity := 1.0
	if !l.Enabled {
		if !r.interactive() || !r.opts.DimDisabled {
			return
		}
		opacity = disabledOpacity
	}

	switch cfg := l.Config.(type) {
	case document.RasterConfig:
		r.pixels(l, opacity*clamp01(cfg.Opacity))
	case document.InitialImageConfig:
		r.pixels(l, opacity)
	case document.RegionalGuidanceConfig:
		if r.interactive() {
			r.mask(l, cfg.MaskColor, opacity*maskOpacity)
		}
	case document.InpaintMaskConfig:
		if r.interactive() {
			r.mask(l, cfg.MaskColor, opacity*maskOpacity)
		}
	case document.ControlAdapterConfig:
		if r.interactive() {
			r.pixels(l, opacity*clamp01(cfg.Weight))
		}
	case document.ReferenceImageConfig:
		if r.interactive() {
			if r.pixels(l, opacity) {
				r.weightOverlay(l, cfg.Weight)
			}
		}
	default:
		r.fail(l, fmt.Errorf("no renderer for config %T", l.Config))
	}
}

// pixels draws the layer content as-is and reports whether anything was drawn.
func (r *renderer) pixels(l *document.Layer, opacity float64) bool {
	surface, ok := r.surface(l)
	if !ok {
		return false
	}
	r.place(surface.img, surface.origin, l.Transform, opacity)
	return true
}

func (r *renderer) mask(l *document.Layer, col color.NRGBA, opacity float64) {
	surface, ok := r.surface(l)
	if !ok {
		return
	}
	r.place(tint(surface.img, col), surface.origin, l.Transform, opacity)
}

// surface rasterises a layer, substituting a placeholder on failure.
func (r *renderer) surface(l *document.Layer) (*layerSurface, bool) {
	paint := l.Paint
	if p := r.opts.Pending; p != nil && p.LayerID == l.ID && p.Stroke != nil {
		paint.Strokes = append(append([]document.Stroke(nil), paint.Strokes...), *p.Stroke)
	}
	surface, err := rasterize(paint)
	if err != nil {
		r.fail(l, err)
		return nil, false
	}
	return surface, surface != nil
}

func (r *renderer) fail(l *document.Layer, err error) {
	r.errs = append(r.errs, &LayerRenderError{LayerID: l.ID, Kind: l.Kind, Err: err})
	w, h := placeholderSize(l)
	r.place(checker(w, h), document.Point{}, l.Transform, 1)
}

func placeholderSize(l *document.Layer) (int, int) {
	var ref *document.ImageRef
	switch cfg := l.Config.(type) {
	case document.ControlAdapterConfig:
		ref = cfg.Image
	case document.InitialImageConfig:
		ref = cfg.Image
	case document.ReferenceImageConfig:
		ref = cfg.Image
	}
	if ref != nil && ref.Width > 0 && ref.Height > 0 {
		return ref.Width, ref.Height
	}
	return placeholderFallback, placeholderFallback
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
