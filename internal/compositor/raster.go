package compositor

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"math"

	"github.com/gogpu/gg"
	"golang.org/x/image/draw"
	"golang.org/x/image/math/f64"

	"easel/internal/document"
)

const (
	placeholderFallback = 64
	checkerCell         = 8
)

var (
	placeholderMagenta = color.NRGBA{R: 0xff, B: 0xff, A: 0xff}
	placeholderBlack   = color.NRGBA{A: 0xff}
)

// layerSurface is layer paint rendered in local space. origin is the local
// coordinate of img's top-left pixel.
type layerSurface struct {
	img    *image.RGBA
	origin document.Point
}

// rasterize renders paint into a local-space bitmap. A nil surface means the
// paint covers nothing.
func rasterize(paint document.PaintData) (*layerSurface, error) {
	base := paint.Bitmap
	if base == nil && len(paint.Encoded) > 0 {
		decoded, _, err := image.Decode(bytes.NewReader(paint.Encoded))
		if err != nil {
			return nil, fmt.Errorf("decode paint: %w", err)
		}
		base = decoded
	}

	bounds := strokeBounds(paint.Strokes)
	if base != nil {
		b := base.Bounds()
		bounds = bounds.Union(document.Rect{
			MinX: float64(b.Min.X), MinY: float64(b.Min.Y),
			MaxX: float64(b.Max.X), MaxY: float64(b.Max.Y),
		})
	}
	if bounds.Empty() {
		return nil, nil
	}

	minX, minY := math.Floor(bounds.MinX), math.Floor(bounds.MinY)
	w := int(math.Ceil(bounds.MaxX) - minX)
	h := int(math.Ceil(bounds.MaxY) - minY)
	surface := &layerSurface{
		img:    image.NewRGBA(image.Rect(0, 0, w, h)),
		origin: document.Point{X: minX, Y: minY},
	}
	if base != nil {
		b := base.Bounds()
		at := image.Pt(b.Min.X-int(minX), b.Min.Y-int(minY))
		draw.Draw(surface.img, image.Rectangle{Min: at, Max: at.Add(b.Size())}, base, b.Min, draw.Src)
	}
	for _, s := range paint.Strokes {
		if err := surface.stroke(s); err != nil {
			return nil, err
		}
	}
	return surface, nil
}

// strokeBounds covers brush strokes only; erasing never grows a layer.
func strokeBounds(strokes []document.Stroke) document.Rect {
	var r document.Rect
	for _, s := range strokes {
		if s.Mode == document.StrokeErase {
			continue
		}
		r = r.Union(s.Bounds())
	}
	return r
}

func (ls *layerSurface) stroke(s document.Stroke) error {
	if len(s.Points) == 0 {
		return nil
	}
	coverage, err := strokeCoverage(s, ls.img.Bounds().Size(), ls.origin)
	if err != nil {
		return err
	}
	b := ls.img.Bounds()
	if s.Mode == document.StrokeErase {
		draw.DrawMask(ls.img, b, image.Transparent, image.Point{}, coverage, image.Point{}, draw.Src)
		return nil
	}
	draw.DrawMask(ls.img, b, image.NewUniform(s.Color), image.Point{}, coverage, image.Point{}, draw.Over)
	return nil
}

// strokeCoverage rasterises the polyline as white on transparent. Only the
// alpha channel is used as a mask.
func strokeCoverage(s document.Stroke, size image.Point, origin document.Point) (image.Image, error) {
	dc := gg.NewContext(size.X, size.Y)
	defer dc.Close()
	dc.SetRGBA(1, 1, 1, 1)

	width := max(s.Width, 1)
	first := s.Points[0]
	if len(s.Points) == 1 {
		dc.DrawCircle(first.X-origin.X, first.Y-origin.Y, width/2)
		if err := dc.Fill(); err != nil {
			return nil, fmt.Errorf("fill stroke dot: %w", err)
		}
		return dc.Image(), nil
	}

	dc.SetLineWidth(width)
	dc.SetLineCap(gg.LineCapRound)
	dc.SetLineJoin(gg.LineJoinRound)
	dc.MoveTo(first.X-origin.X, first.Y-origin.Y)
	for _, p := range s.Points[1:] {
		dc.LineTo(p.X-origin.X, p.Y-origin.Y)
	}
	if err := dc.Stroke(); err != nil {
		return nil, fmt.Errorf("stroke path: %w", err)
	}
	return dc.Image(), nil
}

// tint recolours every covered pixel with col, keeping coverage.
func tint(src *image.RGBA, col color.Color) *image.RGBA {
	out := image.NewRGBA(src.Bounds())
	draw.DrawMask(out, out.Bounds(), image.NewUniform(col), image.Point{}, src, src.Bounds().Min, draw.Src)
	return out
}

func checker(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if (x/checkerCell+y/checkerCell)%2 == 0 {
				img.Set(x, y, placeholderMagenta)
			} else {
				img.Set(x, y, placeholderBlack)
			}
		}
	}
	return img
}

// place draws src, whose pixel (0,0) sits at local coordinate origin, through
// the layer transform and the viewport.
func (r *renderer) place(src *image.RGBA, origin document.Point, t document.Transform, opacity float64) {
	if opacity <= 0 || src.Bounds().Empty() {
		return
	}
	var mask image.Image
	if opacity < 1 {
		mask = image.NewUniform(color.Alpha{A: uint8(math.Round(opacity * 0xff))})
	}

	m := r.matrix(origin, t)
	if m[0] == 1 && m[1] == 0 && m[3] == 0 && m[4] == 1 && m[2] == math.Trunc(m[2]) && m[5] == math.Trunc(m[5]) {
		dr := src.Bounds().Add(image.Pt(int(m[2]), int(m[5])))
		draw.DrawMask(r.frame, dr, src, src.Bounds().Min, mask, image.Point{}, draw.Over)
		return
	}
	opts := &draw.Options{SrcMask: mask}
	draw.BiLinear.Transform(r.frame, m, src, src.Bounds(), draw.Over, opts)
}

// matrix maps src pixel coordinates to frame pixels: local = q + origin,
// document = t(local), frame = (document - viewport) * scale.
func (r *renderer) matrix(origin document.Point, t document.Transform) f64.Aff3 {
	sin, cos := math.Sincos(t.Rotation)
	s := r.vp.Scale
	a, b := t.ScaleX*cos, -t.ScaleY*sin
	d, e := t.ScaleX*sin, t.ScaleY*cos
	return f64.Aff3{
		s * a, s * b, s * (a*origin.X + b*origin.Y + t.X - r.vp.X),
		s * d, s * e, s * (d*origin.X + e*origin.Y + t.Y - r.vp.Y),
	}
}
