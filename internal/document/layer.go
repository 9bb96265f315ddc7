package document

import (
	"bytes"
	"image"
	"image/color"
	"time"
)

// StrokeMode selects whether a stroke adds or removes paint.
type StrokeMode string

const (
	StrokeBrush StrokeMode = "brush"
	StrokeErase StrokeMode = "erase"
)

// Stroke is a polyline in layer-local coordinates.
type Stroke struct {
	Mode   StrokeMode  `json:"mode"`
	Color  color.NRGBA `json:"color"`
	Width  float64     `json:"width"`
	Points []Point     `json:"points"`
}

func (s Stroke) clone() Stroke {
	s.Points = append([]Point(nil), s.Points...)
	return s
}

// Bounds covers every sample padded by half the stroke width.
func (s Stroke) Bounds() Rect {
	if len(s.Points) == 0 {
		return Rect{}
	}
	pad := s.Width / 2
	if pad < 0.5 {
		pad = 0.5
	}
	r := Rect{MinX: s.Points[0].X, MinY: s.Points[0].Y, MaxX: s.Points[0].X, MaxY: s.Points[0].Y}
	for _, p := range s.Points[1:] {
		r.MinX = min(r.MinX, p.X)
		r.MinY = min(r.MinY, p.Y)
		r.MaxX = max(r.MaxX, p.X)
		r.MaxY = max(r.MaxY, p.Y)
	}
	return Rect{MinX: r.MinX - pad, MinY: r.MinY - pad, MaxX: r.MaxX + pad, MaxY: r.MaxY + pad}
}

// PaintData is the content of a layer: an optional base bitmap (decoded, or
// still encoded as PNG/JPEG/WebP bytes) followed by vector strokes. Bitmaps
// are treated as immutable once attached.
type PaintData struct {
	Bitmap  image.Image
	Encoded []byte
	Strokes []Stroke
}

func (p PaintData) Empty() bool {
	return p.Bitmap == nil && len(p.Encoded) == 0 && len(p.Strokes) == 0
}

func (p PaintData) clone() PaintData {
	out := PaintData{Bitmap: p.Bitmap}
	if p.Encoded != nil {
		out.Encoded = append([]byte(nil), p.Encoded...)
	}
	if p.Strokes != nil {
		out.Strokes = make([]Stroke, len(p.Strokes))
		for i, s := range p.Strokes {
			out.Strokes[i] = s.clone()
		}
	}
	return out
}

// LocalBounds is the layer-local extent of the paint. Encoded bitmaps are
// measured from their header; undecodable bytes contribute nothing.
func (p PaintData) LocalBounds() Rect {
	var r Rect
	switch {
	case p.Bitmap != nil:
		b := p.Bitmap.Bounds()
		r = Rect{MinX: float64(b.Min.X), MinY: float64(b.Min.Y), MaxX: float64(b.Max.X), MaxY: float64(b.Max.Y)}
	case len(p.Encoded) > 0:
		if cfg, _, err := image.DecodeConfig(bytes.NewReader(p.Encoded)); err == nil {
			r = Rect{MaxX: float64(cfg.Width), MaxY: float64(cfg.Height)}
		}
	}
	for _, s := range p.Strokes {
		if s.Mode == StrokeErase {
			continue
		}
		r = r.Union(s.Bounds())
	}
	return r
}

// Layer is one addressable entity of the document.
type Layer struct {
	ID        string
	Kind      Kind
	Name      string
	Enabled   bool
	Locked    bool
	ZIndex    int
	Transform Transform
	Paint     PaintData
	Config    Config
	// TouchedAt is set on creation, selection, and config changes.
	TouchedAt time.Time

	seq uint64
}

// Clone returns a deep copy that shares no mutable state with l.
func (l *Layer) Clone() Layer {
	out := *l
	out.Paint = l.Paint.clone()
	if l.Config != nil {
		out.Config = l.Config.clone()
	}
	return out
}

// Bounds is the document-space box of the layer's paint.
func (l *Layer) Bounds() Rect {
	return l.Transform.ApplyRect(l.Paint.LocalBounds())
}

// Seq is the insertion ordinal used to break zIndex ties.
func (l *Layer) Seq() uint64 {
	return l.seq
}

// Patch describes one atomic paint mutation. Clear empties paint first; a
// non-nil Bitmap or Encoded replaces the base image; Strokes are appended;
// Transform replaces the placement.
type Patch struct {
	Clear     bool
	Bitmap    image.Image
	Encoded   []byte
	Strokes   []Stroke
	Transform *Transform
}

func (p Patch) IsZero() bool {
	return !p.Clear && p.Bitmap == nil && p.Encoded == nil && len(p.Strokes) == 0 && p.Transform == nil
}

func (p Patch) apply(l *Layer) {
	if p.Clear {
		l.Paint = PaintData{}
	}
	if p.Bitmap != nil {
		l.Paint.Bitmap = p.Bitmap
		l.Paint.Encoded = nil
	}
	if p.Encoded != nil {
		l.Paint.Encoded = append([]byte(nil), p.Encoded...)
		l.Paint.Bitmap = nil
	}
	for _, s := range p.Strokes {
		l.Paint.Strokes = append(l.Paint.Strokes, s.clone())
	}
	if p.Transform != nil {
		l.Transform = *p.Transform
	}
}
