package document

import "math"

// Point is a position in document or layer-local space.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Rect is an axis-aligned box. The zero value is empty.
type Rect struct {
	MinX, MinY, MaxX, MaxY float64
}

func (r Rect) Empty() bool {
	return r.MaxX <= r.MinX || r.MaxY <= r.MinY
}

func (r Rect) Contains(p Point) bool {
	return !r.Empty() && p.X >= r.MinX && p.X < r.MaxX && p.Y >= r.MinY && p.Y < r.MaxY
}

func (r Rect) Union(o Rect) Rect {
	if r.Empty() {
		return o
	}
	if o.Empty() {
		return r
	}
	return Rect{
		MinX: math.Min(r.MinX, o.MinX),
		MinY: math.Min(r.MinY, o.MinY),
		MaxX: math.Max(r.MaxX, o.MaxX),
		MaxY: math.Max(r.MaxY, o.MaxY),
	}
}

// Transform places layer-local content in document space: scale, then rotate
// (radians, clockwise in screen coordinates), then translate.
type Transform struct {
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	ScaleX   float64 `json:"scale_x"`
	ScaleY   float64 `json:"scale_y"`
	Rotation float64 `json:"rotation"`
}

// Identity returns the transform that leaves content in place.
func Identity() Transform {
	return Transform{ScaleX: 1, ScaleY: 1}
}

// Translate returns an unscaled transform at (x, y).
func Translate(x, y float64) Transform {
	return Transform{X: x, Y: y, ScaleX: 1, ScaleY: 1}
}

// IsTranslation reports whether the transform only moves content by whole pixels.
func (t Transform) IsTranslation() bool {
	return t.ScaleX == 1 && t.ScaleY == 1 && t.Rotation == 0 &&
		t.X == math.Trunc(t.X) && t.Y == math.Trunc(t.Y)
}

// Apply maps a layer-local point into document space.
func (t Transform) Apply(p Point) Point {
	x := p.X * t.ScaleX
	y := p.Y * t.ScaleY
	if t.Rotation != 0 {
		sin, cos := math.Sincos(t.Rotation)
		x, y = x*cos-y*sin, x*sin+y*cos
	}
	return Point{X: x + t.X, Y: y + t.Y}
}

// Invert maps a document point into layer-local space. It fails for a
// degenerate (zero) scale.
func (t Transform) Invert(p Point) (Point, bool) {
	if t.ScaleX == 0 || t.ScaleY == 0 {
		return Point{}, false
	}
	x := p.X - t.X
	y := p.Y - t.Y
	if t.Rotation != 0 {
		sin, cos := math.Sincos(t.Rotation)
		x, y = x*cos+y*sin, -x*sin+y*cos
	}
	return Point{X: x / t.ScaleX, Y: y / t.ScaleY}, true
}

// ApplyRect maps a local box to the document-space box enclosing its corners.
func (t Transform) ApplyRect(r Rect) Rect {
	if r.Empty() {
		return Rect{}
	}
	corners := [4]Point{
		{r.MinX, r.MinY}, {r.MaxX, r.MinY}, {r.MinX, r.MaxY}, {r.MaxX, r.MaxY},
	}
	out := Rect{MinX: math.Inf(1), MinY: math.Inf(1), MaxX: math.Inf(-1), MaxY: math.Inf(-1)}
	for _, c := range corners {
		p := t.Apply(c)
		out.MinX = math.Min(out.MinX, p.X)
		out.MinY = math.Min(out.MinY, p.Y)
		out.MaxX = math.Max(out.MaxX, p.X)
		out.MaxY = math.Max(out.MaxY, p.Y)
	}
	return out
}
