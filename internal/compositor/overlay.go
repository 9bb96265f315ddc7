package compositor

import (
	"fmt"
	"image"
	"image/color"
	"math"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"easel/internal/document"
	"easel/internal/staging"
)

var (
	placeholderFill   = color.NRGBA{R: 0xff, G: 0xff, B: 0xff, A: 0x26}
	placeholderReveal = color.NRGBA{R: 0xff, G: 0xff, B: 0xff, A: 0x4c}
)

// weightOverlay shades the part of a reference image above its weight and
// labels the percentage. Both fade out over the first second after the layer
// was touched.
func (r *renderer) weightOverlay(l *document.Layer, weight float64) {
	if r.opts.Now.IsZero() || l.TouchedAt.IsZero() {
		return
	}
	elapsed := r.opts.Now.Sub(l.TouchedAt)
	if elapsed < 0 || elapsed >= overlayDuration {
		return
	}
	fade := 1 - float64(elapsed)/float64(overlayDuration)
	r.animating = true

	box := r.frameRect(l.Bounds())
	if box.Empty() {
		return
	}
	weight = clamp01(weight)
	band := box
	band.Max.Y = box.Min.Y + int(math.Round(float64(box.Dy())*(1-weight)))
	if !band.Empty() {
		shade := color.NRGBA{A: uint8(math.Round(0x80 * fade))}
		draw.Draw(r.frame, band, image.NewUniform(shade), image.Point{}, draw.Over)
	}

	label := fmt.Sprintf("%d%%", int(math.Round(weight*100)))
	face := basicfont.Face7x13
	d := font.Drawer{
		Dst:  r.frame,
		Src:  image.NewUniform(color.NRGBA{R: 0xff, G: 0xff, B: 0xff, A: uint8(math.Round(0xff * fade))}),
		Face: face,
	}
	width := d.MeasureString(label).Ceil()
	x := box.Min.X + (box.Dx()-width)/2
	y := band.Max.Y - 4
	if y-face.Ascent < box.Min.Y {
		y = box.Min.Y + face.Ascent + 2
	}
	d.Dot = fixed.P(x, y)
	d.DrawString(label)
}

// staged draws the selected item of a canvas-mode session. Unresolved items
// reveal top to bottom in proportion to progress.
func (r *renderer) staged(doc document.Snapshot, st staging.Snapshot) {
	if !st.Active() || st.Mode != staging.ModeCanvas {
		return
	}
	item, ok := st.SelectedItem()
	if !ok || item.Status == staging.ItemFailed {
		return
	}
	at := document.Translate(item.Offset.X, item.Offset.Y)

	if item.Bitmap != nil {
		r.place(toRGBA(item.Bitmap), document.Point{}, at, 1)
		return
	}
	progress := 0.0
	if item.Progress != nil {
		progress = clamp01(*item.Progress)
	}
	if item.Preview != nil {
		if src := reveal(toRGBA(item.Preview), progress); src != nil {
			r.place(src, document.Point{}, at, 1)
		}
		return
	}

	w, h := doc.Width-int(item.Offset.X), doc.Height-int(item.Offset.Y)
	if item.Image != nil && item.Image.Width > 0 && item.Image.Height > 0 {
		w, h = item.Image.Width, item.Image.Height
	}
	if w <= 0 || h <= 0 {
		return
	}
	box := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(box, box.Bounds(), image.NewUniform(placeholderFill), image.Point{}, draw.Src)
	if progress > 0 {
		cut := box.Bounds()
		cut.Max.Y = revealRows(h, progress)
		draw.Draw(box, cut, image.NewUniform(placeholderReveal), image.Point{}, draw.Src)
	}
	r.place(box, document.Point{}, at, 1)
}

// reveal keeps the top rows of src covered by progress.
func reveal(src *image.RGBA, progress float64) *image.RGBA {
	rows := revealRows(src.Bounds().Dy(), progress)
	if rows <= 0 {
		return nil
	}
	cut := src.Bounds()
	cut.Max.Y = cut.Min.Y + rows
	return src.SubImage(cut).(*image.RGBA)
}

func revealRows(height int, progress float64) int {
	return int(math.Floor(float64(height) * clamp01(progress)))
}

// toRGBA copies img into a zero-origin RGBA bitmap.
func toRGBA(img image.Image) *image.RGBA {
	b := img.Bounds()
	if rgba, ok := img.(*image.RGBA); ok && b.Min == (image.Point{}) {
		return rgba
	}
	out := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(out, out.Bounds(), img, b.Min, draw.Src)
	return out
}

// frameRect maps a document box to frame pixels.
func (r *renderer) frameRect(box document.Rect) image.Rectangle {
	if box.Empty() {
		return image.Rectangle{}
	}
	s := r.vp.Scale
	out := image.Rect(
		int(math.Floor((box.MinX-r.vp.X)*s)),
		int(math.Floor((box.MinY-r.vp.Y)*s)),
		int(math.Ceil((box.MaxX-r.vp.X)*s)),
		int(math.Ceil((box.MaxY-r.vp.Y)*s)),
	)
	return out.Intersect(r.frame.Bounds())
}
