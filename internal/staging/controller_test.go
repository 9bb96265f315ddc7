package staging_test

import (
	"errors"
	"image"
	"testing"

	"easel/internal/document"
	"easel/internal/services"
	"easel/internal/staging"
	"easel/internal/state"
)

func newController(t *testing.T, autoAccept bool) (*staging.Controller, *document.Document) {
	t.Helper()
	doc := document.New()
	return staging.New(state.New(doc, nil, state.Preferences{}), staging.WithAutoAccept(autoAccept)), doc
}

func reserve(t *testing.T, c *staging.Controller, mode staging.Mode, jobID string) string {
	t.Helper()
	sessionID, err := c.Reserve(mode)
	if err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	if err := c.Bind(sessionID, jobID); err != nil {
		t.Fatalf("Bind: %v", err)
	}
	return sessionID
}

func pct(v float64) *float64 { return &v }

func bitmap() image.Image { return image.NewRGBA(image.Rect(0, 0, 8, 8)) }

func TestCanvasJobCommitsRasterLayerAtOffset(t *testing.T) {
	c, doc := newController(t, true)
	reserve(t, c, staging.ModeCanvas, "job-1")

	if !c.Progress("job-1", pct(0.5), nil) {
		t.Fatal("progress should match the live session")
	}
	if snap := c.Snapshot(); snap.Phase != staging.PhaseStreaming || len(snap.Items) != 1 {
		t.Fatalf("unexpected snapshot after progress: %+v", snap)
	}

	req, ok := c.Stage("job-1", document.ImageRef{Name: "a.png"}, document.Point{X: 10, Y: 20})
	if !ok {
		t.Fatal("expected a resolve request")
	}
	if got := len(c.Snapshot().Items); got != 1 {
		t.Fatalf("stage should reuse the placeholder item, got %d items", got)
	}

	commit, err := c.Resolved(req, bitmap())
	if err != nil || commit == nil {
		t.Fatalf("Resolved commit=%v err=%v", commit, err)
	}
	layer, ok := doc.Layer(commit.LayerID)
	if !ok {
		t.Fatal("committed layer missing")
	}
	if layer.Kind != document.KindRaster || layer.Transform.X != 10 || layer.Transform.Y != 20 {
		t.Fatalf("unexpected layer %+v", layer)
	}
	if len(doc.Snapshot().Layers) != 1 {
		t.Fatal("expected exactly one layer")
	}
	if c.Snapshot().Phase != staging.PhaseIdle {
		t.Fatalf("phase = %s, want idle", c.Snapshot().Phase)
	}
}

func TestSecondReserveWhileBusyIsRejected(t *testing.T) {
	c, doc := newController(t, true)
	first := reserve(t, c, staging.ModeCanvas, "job-1")

	if _, err := c.Reserve(staging.ModeCanvas); !errors.Is(err, services.ErrStagingBusy) {
		t.Fatalf("expected ErrStagingBusy, got %v", err)
	}
	snap := c.Snapshot()
	if snap.SessionID != first || snap.JobID != "job-1" || snap.Phase != staging.PhaseAwaiting {
		t.Fatalf("existing session changed: %+v", snap)
	}

	req, ok := c.Stage("job-1", document.ImageRef{Name: "a.png"}, document.Point{})
	if !ok {
		t.Fatal("first job should still stage")
	}
	if _, err := c.Resolved(req, bitmap()); err != nil {
		t.Fatalf("Resolved: %v", err)
	}
	if len(doc.Snapshot().Layers) != 1 {
		t.Fatal("first job should commit normally")
	}
}

func TestProgressIsMonotonic(t *testing.T) {
	c, _ := newController(t, true)
	reserve(t, c, staging.ModeCanvas, "job-1")

	c.Progress("job-1", pct(0.4), nil)
	c.Progress("job-1", pct(0.2), nil)
	c.Progress("job-1", nil, nil)

	item, ok := c.Snapshot().SelectedItem()
	if !ok || item.Status != staging.ItemStreaming {
		t.Fatalf("streaming placeholder should be selected: ok=%v item=%+v", ok, item)
	}
	items := c.Snapshot().Items
	if len(items) != 1 || items[0].Progress == nil || *items[0].Progress != 0.4 {
		t.Fatalf("unexpected items %+v", items)
	}
}

func TestDuplicateStageIsNoop(t *testing.T) {
	c, doc := newController(t, false)
	reserve(t, c, staging.ModeCanvas, "job-1")

	req, _ := c.Stage("job-1", document.ImageRef{Name: "a.png"}, document.Point{})
	if _, ok := c.Stage("job-1", document.ImageRef{Name: "a.png"}, document.Point{}); ok {
		t.Fatal("duplicate stage should be ignored")
	}
	if _, err := c.Resolved(req, bitmap()); err != nil {
		t.Fatalf("Resolved: %v", err)
	}
	if _, ok := c.Stage("job-1", document.ImageRef{Name: "a.png"}, document.Point{}); ok {
		t.Fatal("duplicate after resolve should be ignored")
	}
	if snap := c.Snapshot(); len(snap.Items) != 1 || snap.Phase != staging.PhaseReady {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
	if len(doc.Snapshot().Layers) != 0 {
		t.Fatal("nothing should be committed without accept")
	}

	commit, err := c.Accept()
	if err != nil || commit == nil {
		t.Fatalf("Accept commit=%v err=%v", commit, err)
	}
	if _, ok := c.Stage("job-1", document.ImageRef{Name: "a.png"}, document.Point{}); ok {
		t.Fatal("late duplicate after accept should be ignored")
	}
	if len(doc.Snapshot().Layers) != 1 {
		t.Fatal("expected exactly one committed layer")
	}
}

func TestCancelMakesLateResultsStale(t *testing.T) {
	c, doc := newController(t, true)
	reserve(t, c, staging.ModeCanvas, "job-1")
	req, _ := c.Stage("job-1", document.ImageRef{Name: "a.png"}, document.Point{})

	jobID, ok := c.Cancel()
	if !ok || jobID != "job-1" {
		t.Fatalf("Cancel = %q %v", jobID, ok)
	}
	if _, err := c.Resolved(req, bitmap()); !errors.Is(err, services.ErrStaleResult) {
		t.Fatalf("expected stale result, got %v", err)
	}
	if c.Progress("job-1", pct(0.9), nil) {
		t.Fatal("late progress should not match")
	}
	if len(doc.Snapshot().Layers) != 0 {
		t.Fatal("stale result must not reach the document")
	}
}

func TestFailKeepsOtherItems(t *testing.T) {
	c, _ := newController(t, false)
	reserve(t, c, staging.ModeCanvas, "job-1")
	req, _ := c.Stage("job-1", document.ImageRef{Name: "a.png"}, document.Point{})
	if _, err := c.Resolved(req, bitmap()); err != nil {
		t.Fatalf("Resolved: %v", err)
	}
	c.Progress("job-1", pct(0.1), nil)
	if snap := c.Snapshot(); snap.Phase != staging.PhaseReady {
		t.Fatalf("progress after ready should be ignored, phase %s", snap.Phase)
	}
	if !c.Fail("job-1", "out of memory") {
		t.Fatal("Fail should match")
	}
	snap := c.Snapshot()
	if len(snap.Items) != 2 {
		t.Fatalf("expected ready item plus failed item, got %+v", snap.Items)
	}
	if snap.Items[0].Status != staging.ItemReady || snap.Items[1].Status != staging.ItemFailed {
		t.Fatalf("unexpected statuses %s %s", snap.Items[0].Status, snap.Items[1].Status)
	}
	if snap.Items[1].Error != "out of memory" {
		t.Fatalf("error = %q", snap.Items[1].Error)
	}
}

func TestResolveFailedMarksItemFailed(t *testing.T) {
	c, doc := newController(t, true)
	reserve(t, c, staging.ModeCanvas, "job-1")
	req, _ := c.Stage("job-1", document.ImageRef{Name: "a.png"}, document.Point{})

	if err := c.ResolveFailed(req, services.ErrNotFound); err != nil {
		t.Fatalf("ResolveFailed: %v", err)
	}
	snap := c.Snapshot()
	if snap.Phase != staging.PhaseReady || snap.Items[0].Status != staging.ItemFailed {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
	if _, err := c.Accept(); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("accepting a failed item should fail validation, got %v", err)
	}
	if len(doc.Snapshot().Layers) != 0 {
		t.Fatal("failed item must not be committed")
	}
	if err := c.Discard(); err != nil {
		t.Fatalf("Discard: %v", err)
	}
	if c.Snapshot().Active() {
		t.Fatal("discard should end the session")
	}
}

func TestReserveReplacesUnacceptedResults(t *testing.T) {
	c, doc := newController(t, false)
	reserve(t, c, staging.ModeCanvas, "job-1")
	req, _ := c.Stage("job-1", document.ImageRef{Name: "a.png"}, document.Point{})
	if _, err := c.Resolved(req, bitmap()); err != nil {
		t.Fatalf("Resolved: %v", err)
	}

	reserve(t, c, staging.ModeCanvas, "job-2")
	snap := c.Snapshot()
	if snap.JobID != "job-2" || len(snap.Items) != 0 {
		t.Fatalf("expected fresh session, got %+v", snap)
	}
	if len(doc.Snapshot().Layers) != 0 {
		t.Fatal("replaced results must not be committed")
	}
}

func TestIntermediatePreviewNeverCommits(t *testing.T) {
	c, doc := newController(t, true)
	reserve(t, c, staging.ModeCanvas, "job-1")

	req, ok := c.Preview("job-1", document.ImageRef{Name: "step.png"})
	if !ok || !req.Intermediate {
		t.Fatalf("unexpected preview request %+v ok=%v", req, ok)
	}
	commit, err := c.Resolved(req, bitmap())
	if err != nil || commit != nil {
		t.Fatalf("preview resolution commit=%v err=%v", commit, err)
	}
	snap := c.Snapshot()
	if snap.Phase != staging.PhaseStreaming || snap.Items[0].Preview == nil {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
	if len(doc.Snapshot().Layers) != 0 {
		t.Fatal("intermediate image committed")
	}
}

func TestGalleryModeNeverTouchesDocument(t *testing.T) {
	c, doc := newController(t, true)
	reserve(t, c, staging.ModeGallery, "job-1")
	c.Progress("job-1", pct(0.3), nil)

	if !c.CompleteGallery("job-1") {
		t.Fatal("CompleteGallery should match")
	}
	if c.Snapshot().Active() {
		t.Fatal("gallery session should be cleared")
	}
	if doc.Version() != 0 {
		t.Fatalf("document mutated, version %d", doc.Version())
	}
}

func TestSelectionWraps(t *testing.T) {
	c, _ := newController(t, false)
	reserve(t, c, staging.ModeCanvas, "job-1")
	for _, name := range []string{"a.png", "b.png", "c.png"} {
		req, _ := c.Stage("job-1", document.ImageRef{Name: name}, document.Point{})
		if _, err := c.Resolved(req, bitmap()); err != nil {
			t.Fatalf("Resolved %s: %v", name, err)
		}
	}
	if got := c.SelectPrev(); got != 2 {
		t.Fatalf("SelectPrev from 0 = %d, want 2", got)
	}
	if got := c.SelectNext(); got != 0 {
		t.Fatalf("SelectNext from 2 = %d, want 0", got)
	}
	if err := c.DiscardSelected(); err != nil {
		t.Fatalf("DiscardSelected: %v", err)
	}
	if item, _ := c.Snapshot().SelectedItem(); item.Image.Name != "b.png" {
		t.Fatalf("selected %s after discard", item.Image.Name)
	}
}

func TestAbortReleasesReservation(t *testing.T) {
	c, _ := newController(t, true)
	sessionID, _ := c.Reserve(staging.ModeCanvas)
	c.Abort(sessionID)
	if c.Snapshot().Active() {
		t.Fatal("abort should release the session")
	}
	if err := c.Bind(sessionID, "job-1"); !errors.Is(err, services.ErrStaleResult) {
		t.Fatalf("bind after abort = %v", err)
	}
	if _, err := staging.ParseMode("Gallery"); err != nil {
		t.Fatalf("ParseMode: %v", err)
	}
}
