package compositor_test

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"testing"
	"time"

	"easel/internal/compositor"
	"easel/internal/document"
	"easel/internal/services"
	"easel/internal/staging"
	"easel/internal/state"
)

var (
	red   = color.RGBA{R: 0xff, A: 0xff}
	blue  = color.RGBA{B: 0xff, A: 0xff}
	green = color.RGBA{G: 0xff, A: 0xff}
	white = color.RGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}
)

func solid(w, h int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func addBitmap(t *testing.T, doc *document.Document, kind document.Kind, img image.Image) string {
	t.Helper()
	id, err := doc.AddLayer(kind, document.WithPaint(document.PaintData{Bitmap: img}))
	if err != nil {
		t.Fatalf("AddLayer: %v", err)
	}
	return id
}

func TestRenderIsDeterministic(t *testing.T) {
	doc := document.New(document.WithSize(16, 16))
	addBitmap(t, doc, document.KindRaster, solid(8, 8, red))
	rg, err := doc.AddLayer(document.KindRegionalGuidance)
	if err != nil {
		t.Fatalf("AddLayer: %v", err)
	}
	stroke := document.Stroke{Mode: document.StrokeBrush, Color: color.NRGBA{A: 0xff}, Width: 3,
		Points: []document.Point{{X: 2, Y: 2}, {X: 12, Y: 12}}}
	if err := doc.MutatePaintData(rg, document.Patch{Strokes: []document.Stroke{stroke}}); err != nil {
		t.Fatalf("MutatePaintData: %v", err)
	}

	snap := doc.Snapshot()
	vp := compositor.FullViewport(snap)
	opts := compositor.Options{Background: color.Black}
	first := compositor.Render(snap, staging.Snapshot{}, vp, opts)
	second := compositor.Render(snap, staging.Snapshot{}, vp, opts)
	if !bytes.Equal(first.Image.Pix, second.Image.Pix) {
		t.Fatal("expected identical frames for identical inputs")
	}
	if first.Version != snap.Version {
		t.Fatalf("expected version %d, got %d", snap.Version, first.Version)
	}
}

func TestRenderFollowsZOrder(t *testing.T) {
	doc := document.New(document.WithSize(4, 4))
	bottom := addBitmap(t, doc, document.KindRaster, solid(4, 4, red))
	addBitmap(t, doc, document.KindRaster, solid(4, 4, blue))

	res := compositor.Flatten(doc.Snapshot(), compositor.FullViewport(doc.Snapshot()), compositor.TargetComposite)
	if got := res.Image.RGBAAt(1, 1); got != blue {
		t.Fatalf("expected top layer blue, got %v", got)
	}

	if err := doc.Reorder(bottom, document.ToFront); err != nil {
		t.Fatalf("Reorder: %v", err)
	}
	res = compositor.Flatten(doc.Snapshot(), compositor.FullViewport(doc.Snapshot()), compositor.TargetComposite)
	if got := res.Image.RGBAAt(1, 1); got != red {
		t.Fatalf("expected red after bring to front, got %v", got)
	}
}

func TestDisabledLayersNeverReachSubmission(t *testing.T) {
	doc := document.New(document.WithSize(4, 4))
	addBitmap(t, doc, document.KindRaster, solid(4, 4, red))
	top := addBitmap(t, doc, document.KindRaster, solid(4, 4, blue))
	if err := doc.SetEnabled(top, false); err != nil {
		t.Fatalf("SetEnabled: %v", err)
	}
	snap := doc.Snapshot()
	vp := compositor.FullViewport(snap)

	flat := compositor.Flatten(snap, vp, compositor.TargetComposite)
	if got := flat.Image.RGBAAt(0, 0); got != red {
		t.Fatalf("expected disabled layer suppressed, got %v", got)
	}

	submission := compositor.Render(snap, staging.Snapshot{}, vp, compositor.Options{
		Purpose:     compositor.PurposeSubmission,
		DimDisabled: true,
	})
	if got := submission.Image.RGBAAt(0, 0); got != red {
		t.Fatalf("expected no dimming in submission frame, got %v", got)
	}

	interactive := compositor.Render(snap, staging.Snapshot{}, vp, compositor.Options{DimDisabled: true})
	got := interactive.Image.RGBAAt(0, 0)
	if got.B == 0 || got.R == 0xff {
		t.Fatalf("expected dimmed disabled layer in interactive frame, got %v", got)
	}

	hidden := compositor.Render(snap, staging.Snapshot{}, vp, compositor.Options{})
	if got := hidden.Image.RGBAAt(0, 0); got != red {
		t.Fatalf("expected disabled layer hidden without dimming, got %v", got)
	}
}

func TestUndecodableLayerRendersPlaceholder(t *testing.T) {
	doc := document.New(document.WithSize(4, 4))
	bad, err := doc.AddLayer(document.KindRaster, document.WithPaint(document.PaintData{Encoded: []byte("not an image")}))
	if err != nil {
		t.Fatalf("AddLayer: %v", err)
	}
	snap := doc.Snapshot()

	res := compositor.Render(snap, staging.Snapshot{}, compositor.FullViewport(snap), compositor.Options{})
	if res.Image == nil {
		t.Fatal("expected a frame despite the failure")
	}
	if len(res.Errors) != 1 {
		t.Fatalf("expected one render error, got %v", res.Errors)
	}
	if !errors.Is(res.Errors[0], services.ErrLayerRender) {
		t.Fatalf("expected ErrLayerRender, got %v", res.Errors[0])
	}
	lre, ok := compositor.AsLayerRenderError(res.Errors[0])
	if !ok || lre.LayerID != bad {
		t.Fatalf("expected layer %s in error, got %+v", bad, lre)
	}
	if got := res.Image.RGBAAt(0, 0); got != (color.RGBA{R: 0xff, B: 0xff, A: 0xff}) {
		t.Fatalf("expected magenta placeholder, got %v", got)
	}
}

func TestStrokesAndEraser(t *testing.T) {
	doc := document.New(document.WithSize(12, 12))
	id, err := doc.AddLayer(document.KindRaster)
	if err != nil {
		t.Fatalf("AddLayer: %v", err)
	}
	line := []document.Point{{X: 0, Y: 6}, {X: 12, Y: 6}}
	brush := document.Stroke{Mode: document.StrokeBrush, Color: color.NRGBA{G: 0xff, A: 0xff}, Width: 4, Points: line}
	if err := doc.MutatePaintData(id, document.Patch{Strokes: []document.Stroke{brush}}); err != nil {
		t.Fatalf("MutatePaintData: %v", err)
	}
	snap := doc.Snapshot()
	res := compositor.Flatten(snap, compositor.FullViewport(snap), compositor.TargetComposite)
	if got := res.Image.RGBAAt(6, 6); got != green {
		t.Fatalf("expected brush coverage, got %v", got)
	}
	if got := res.Image.RGBAAt(6, 0); got.A != 0 {
		t.Fatalf("expected untouched pixel transparent, got %v", got)
	}

	erase := document.Stroke{Mode: document.StrokeErase, Width: 8, Points: line}
	if err := doc.MutatePaintData(id, document.Patch{Strokes: []document.Stroke{erase}}); err != nil {
		t.Fatalf("MutatePaintData: %v", err)
	}
	snap = doc.Snapshot()
	res = compositor.Flatten(snap, compositor.FullViewport(snap), compositor.TargetComposite)
	if got := res.Image.RGBAAt(6, 6); got.A != 0 {
		t.Fatalf("expected erased pixel transparent, got %v", got)
	}
}

func TestTranslatedLayerAndViewport(t *testing.T) {
	doc := document.New(document.WithSize(8, 8))
	id := addBitmap(t, doc, document.KindRaster, solid(2, 2, red))
	placed := document.Translate(4, 4)
	if err := doc.MutatePaintData(id, document.Patch{Transform: &placed}); err != nil {
		t.Fatalf("MutatePaintData: %v", err)
	}
	snap := doc.Snapshot()

	res := compositor.Render(snap, staging.Snapshot{}, compositor.FullViewport(snap), compositor.Options{})
	if got := res.Image.RGBAAt(4, 4); got != red {
		t.Fatalf("expected layer at its translation, got %v", got)
	}
	if got := res.Image.RGBAAt(0, 0); got.A != 0 {
		t.Fatalf("expected origin empty, got %v", got)
	}

	panned := compositor.Viewport{X: 4, Y: 4, Width: 4, Height: 4, Scale: 1}
	res = compositor.Render(snap, staging.Snapshot{}, panned, compositor.Options{})
	if got := res.Image.RGBAAt(0, 0); got != red {
		t.Fatalf("expected panned viewport to start at the layer, got %v", got)
	}
}

func TestMaskLayersOnlyInInteractiveFrames(t *testing.T) {
	doc := document.New(document.WithSize(4, 4))
	addBitmap(t, doc, document.KindRegionalGuidance, solid(4, 4, white))
	snap := doc.Snapshot()
	vp := compositor.FullViewport(snap)

	interactive := compositor.Render(snap, staging.Snapshot{}, vp, compositor.Options{})
	if got := interactive.Image.RGBAAt(0, 0); got.A == 0 || got.A == 0xff {
		t.Fatalf("expected translucent mask tint, got %v", got)
	}
	flat := compositor.Flatten(snap, vp, compositor.TargetComposite)
	if got := flat.Image.RGBAAt(0, 0); got.A != 0 {
		t.Fatalf("expected mask absent from composite, got %v", got)
	}
}

func TestInpaintMaskTarget(t *testing.T) {
	doc := document.New(document.WithSize(4, 4))
	addBitmap(t, doc, document.KindRaster, solid(4, 4, red))
	addBitmap(t, doc, document.KindInpaintMask, solid(2, 2, blue))
	snap := doc.Snapshot()

	res := compositor.Flatten(snap, compositor.FullViewport(snap), compositor.TargetInpaintMask)
	if got := res.Image.RGBAAt(0, 0); got != white {
		t.Fatalf("expected masked pixel white, got %v", got)
	}
	if got := res.Image.RGBAAt(3, 3); got.A != 0 {
		t.Fatalf("expected unmasked pixel transparent, got %v", got)
	}
}

func TestStagedItemRevealsWithProgress(t *testing.T) {
	doc := document.New(document.WithSize(4, 4))
	snap := doc.Snapshot()
	half := 0.5
	st := staging.Snapshot{
		SessionID: "s1",
		JobID:     "j1",
		Mode:      staging.ModeCanvas,
		Phase:     staging.PhaseStreaming,
		Items: []staging.Item{{
			ID:       "i1",
			Status:   staging.ItemStreaming,
			Progress: &half,
			Preview:  solid(4, 4, green),
		}},
		Selected: 0,
	}

	res := compositor.Render(snap, st, compositor.FullViewport(snap), compositor.Options{})
	if got := res.Image.RGBAAt(0, 1); got != green {
		t.Fatalf("expected revealed row, got %v", got)
	}
	if got := res.Image.RGBAAt(0, 2); got.A != 0 {
		t.Fatalf("expected unrevealed row transparent, got %v", got)
	}

	submission := compositor.Render(snap, st, compositor.FullViewport(snap), compositor.Options{Purpose: compositor.PurposeSubmission})
	if got := submission.Image.RGBAAt(0, 0); got.A != 0 {
		t.Fatalf("expected staged preview absent from submission, got %v", got)
	}

	st.Items[0].Bitmap = solid(2, 2, blue)
	st.Items[0].Offset = document.Point{X: 2, Y: 2}
	res = compositor.Render(snap, st, compositor.FullViewport(snap), compositor.Options{})
	if got := res.Image.RGBAAt(3, 3); got != blue {
		t.Fatalf("expected final bitmap at offset, got %v", got)
	}
	if got := res.Image.RGBAAt(0, 0); got.A != 0 {
		t.Fatalf("expected final bitmap to replace preview, got %v", got)
	}
}

func TestControllerProgressDrawsBeforeCompletion(t *testing.T) {
	doc := document.New(document.WithSize(8, 8))
	c := staging.New(state.New(doc, nil, state.Preferences{}))
	sessionID, err := c.Reserve(staging.ModeCanvas)
	if err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	if err := c.Bind(sessionID, "job-1"); err != nil {
		t.Fatalf("Bind: %v", err)
	}
	half := 0.5
	c.Progress("job-1", &half, solid(8, 8, red))

	snap := doc.Snapshot()
	res := compositor.Render(snap, c.Snapshot(), compositor.FullViewport(snap), compositor.Options{})
	if got := res.Image.RGBAAt(0, 0); got != red {
		t.Fatalf("expected streaming preview drawn, got %v", got)
	}
	if got := res.Image.RGBAAt(0, 7); got.A != 0 {
		t.Fatalf("expected rows below progress untouched, got %v", got)
	}
}

func TestReferenceWeightOverlayFades(t *testing.T) {
	touched := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	doc := document.New(document.WithSize(40, 40), document.WithClock(func() time.Time { return touched }))
	_, err := doc.AddLayer(document.KindReferenceImage,
		document.WithConfig(document.ReferenceImageConfig{Weight: 0.5, Method: "full"}),
		document.WithPaint(document.PaintData{Bitmap: solid(40, 40, white)}))
	if err != nil {
		t.Fatalf("AddLayer: %v", err)
	}
	snap := doc.Snapshot()
	vp := compositor.FullViewport(snap)

	fresh := compositor.Render(snap, staging.Snapshot{}, vp, compositor.Options{Now: touched.Add(200 * time.Millisecond)})
	if got := fresh.Image.RGBAAt(0, 0); got == white {
		t.Fatal("expected band above the weight to be shaded")
	}
	if got := fresh.Image.RGBAAt(0, 39); got != white {
		t.Fatalf("expected area below the weight untouched, got %v", got)
	}

	later := compositor.Render(snap, staging.Snapshot{}, vp, compositor.Options{Now: touched.Add(2 * time.Second)})
	if got := later.Image.RGBAAt(0, 0); got != white {
		t.Fatalf("expected overlay hidden after a second, got %v", got)
	}

	flat := compositor.Flatten(snap, vp, compositor.TargetComposite)
	if got := flat.Image.RGBAAt(0, 39); got.A != 0 {
		t.Fatalf("expected reference image absent from composite, got %v", got)
	}
}
