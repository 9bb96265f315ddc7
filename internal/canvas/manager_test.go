package canvas_test

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"sync"
	"testing"
	"time"

	"easel/internal/api"
	"easel/internal/canvas"
	"easel/internal/compositor"
	"easel/internal/config"
	"easel/internal/document"
	"easel/internal/jobservice"
	"easel/internal/logging"
	"easel/internal/services"
	"easel/internal/staging"
	"easel/internal/testsupport"
	"easel/internal/tool"
)

type stubJobs struct {
	mu        sync.Mutex
	submitted []jobservice.Submission
	cancelled []string
	images    map[string]image.Image
	// gate, when set, holds Resolve until it is closed or the request is
	// cancelled. The image is returned either way.
	gate    chan struct{}
	started chan string
	// submitGate, when set, holds Submit until it is closed. Each held call
	// is announced on entered.
	submitGate chan struct{}
	entered    chan string
}

func newStubJobs() *stubJobs {
	return &stubJobs{images: map[string]image.Image{}, started: make(chan string, 8), entered: make(chan string, 8)}
}

func (s *stubJobs) Submit(_ context.Context, sub jobservice.Submission) (string, error) {
	s.mu.Lock()
	s.submitted = append(s.submitted, sub)
	id := fmt.Sprintf("job-%d", len(s.submitted))
	gate := s.submitGate
	s.mu.Unlock()

	if gate != nil {
		s.entered <- id
		<-gate
	}
	return id, nil
}

func (s *stubJobs) Cancel(_ context.Context, jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelled = append(s.cancelled, jobID)
	return nil
}

func (s *stubJobs) ImageDTO(_ context.Context, name string) (api.ImageDTO, error) {
	return api.ImageDTO{ImageName: name, Width: 8, Height: 8}, nil
}

func (s *stubJobs) Resolve(ctx context.Context, ref document.ImageRef) (image.Image, error) {
	s.started <- ref.Name
	if s.gate != nil {
		select {
		case <-s.gate:
		case <-ctx.Done():
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	img, ok := s.images[ref.Name]
	if !ok {
		return nil, services.Wrap(services.ErrNotFound, "stub", "resolve", ref.Name, nil)
	}
	return img, nil
}

func (s *stubJobs) cancels() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.cancelled...)
}

func (s *stubJobs) submissions() []jobservice.Submission {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]jobservice.Submission(nil), s.submitted...)
}

func newManager(t *testing.T, jobs *stubJobs, opts ...testsupport.ConfigOption) (*canvas.Manager, *config.Config) {
	t.Helper()
	cfg := testsupport.NewConfig(t, opts...)
	m := canvas.New(cfg, canvas.Deps{Jobs: jobs}, logging.NewNop())
	if err := m.Initialize(context.Background(), nil); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	t.Cleanup(func() { _ = m.Destroy() })
	return m, cfg
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func submitCanvas(t *testing.T, m *canvas.Manager) (canvas.SubmitResult, *testsupport.Script) {
	t.Helper()
	res, err := m.Submit(context.Background(), canvas.SubmitRequest{Mode: staging.ModeCanvas, Params: m.DefaultParams()})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	return res, testsupport.NewScript(t, res.JobID, res.SessionID, "canvas")
}

func send(t *testing.T, m *canvas.Manager, frame []byte) {
	t.Helper()
	if err := m.HandleFrame(context.Background(), frame); err != nil {
		t.Fatalf("HandleFrame: %v", err)
	}
}

func layerCount(m *canvas.Manager) int {
	snap, err := m.Snapshot()
	if err != nil {
		return -1
	}
	return len(snap.Layers)
}

func TestCanvasJobCommitsLayerAtOffset(t *testing.T) {
	jobs := newStubJobs()
	jobs.images["a.png"] = testsupport.Solid(8, 8, color.RGBA{R: 0xff, A: 0xff})
	m, _ := newManager(t, jobs, testsupport.WithAutoAccept(true))

	res, script := submitCanvas(t, m)
	if res.JobID != "job-1" {
		t.Fatalf("unexpected job id %q", res.JobID)
	}
	if sub := jobs.submissions()[0]; sub.Destination != "canvas" || sub.SessionID != res.SessionID || sub.Mask != nil {
		t.Fatalf("unexpected submission %+v", sub)
	}

	send(t, m, script.Progress("canvas_output:1", 0.5))
	items := m.Staging().Items
	if len(items) != 1 || items[0].Progress == nil || *items[0].Progress != 0.5 {
		t.Fatalf("expected one item at progress 0.5, got %+v", items)
	}

	send(t, m, script.CanvasOutput("a.png", 10, 20))
	waitFor(t, "staged layer", func() bool { return layerCount(m) == 1 })

	snap, _ := m.Snapshot()
	layer := snap.Layers[0]
	if layer.Kind != document.KindRaster {
		t.Fatalf("expected raster layer, got %s", layer.Kind)
	}
	if layer.Transform.X != 10 || layer.Transform.Y != 20 {
		t.Fatalf("layer placed at (%v, %v), want (10, 20)", layer.Transform.X, layer.Transform.Y)
	}
	if phase := m.Staging().Phase; phase != staging.PhaseIdle {
		t.Fatalf("expected idle staging, got %s", phase)
	}

	send(t, m, script.CanvasOutput("a.png", 10, 20))
	if layerCount(m) != 1 {
		t.Fatal("duplicate completion created another layer")
	}
}

func TestSecondSubmitWhileBusyIsRejected(t *testing.T) {
	jobs := newStubJobs()
	jobs.images["a.png"] = testsupport.Solid(8, 8, color.White)
	m, _ := newManager(t, jobs, testsupport.WithAutoAccept(true))

	first, script := submitCanvas(t, m)
	_, err := m.Submit(context.Background(), canvas.SubmitRequest{Mode: staging.ModeCanvas, Params: m.DefaultParams()})
	if !errors.Is(err, services.ErrStagingBusy) {
		t.Fatalf("expected ErrStagingBusy, got %v", err)
	}
	if len(jobs.submissions()) != 1 {
		t.Fatal("busy submission reached the job service")
	}
	if m.Staging().JobID != first.JobID {
		t.Fatal("busy submission disturbed the live session")
	}

	send(t, m, script.CanvasOutput("a.png", 0, 0))
	waitFor(t, "first job to resolve", func() bool { return layerCount(m) == 1 })
}

func TestDestroyDuringResolveLeavesDocumentUntouched(t *testing.T) {
	jobs := newStubJobs()
	jobs.images["a.png"] = testsupport.Solid(8, 8, color.White)
	jobs.gate = make(chan struct{})
	cfg := testsupport.NewConfig(t, testsupport.WithAutoAccept(true))
	m := canvas.New(cfg, canvas.Deps{Jobs: jobs}, logging.NewNop())
	if err := m.Initialize(context.Background(), nil); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	_, script := submitCanvas(t, m)
	send(t, m, script.CanvasOutput("a.png", 4, 4))
	select {
	case <-jobs.started:
	case <-time.After(2 * time.Second):
		t.Fatal("resolution never started")
	}
	before := m.Status().DocVersion

	if err := m.Destroy(); err != nil {
		t.Fatalf("Destroy: %v", err)
	}
	close(jobs.gate)
	time.Sleep(20 * time.Millisecond)

	status := m.Status()
	if status.DocVersion != before || status.LayerCount != 0 {
		t.Fatalf("document mutated after destroy: version %d -> %d, layers %d", before, status.DocVersion, status.LayerCount)
	}
	if status.Running {
		t.Fatal("status still reports running")
	}
}

func TestLifecycleViolationsReturnErrors(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	m := canvas.New(cfg, canvas.Deps{}, logging.NewNop())

	if err := m.Destroy(); !errors.Is(err, services.ErrLifecycle) {
		t.Fatalf("destroy before initialize: %v", err)
	}
	if err := m.Initialize(context.Background(), nil); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if err := m.Initialize(context.Background(), nil); !errors.Is(err, services.ErrLifecycle) {
		t.Fatalf("second initialize: %v", err)
	}
	if err := m.Destroy(); err != nil {
		t.Fatalf("Destroy: %v", err)
	}
	if err := m.Destroy(); err != nil {
		t.Fatalf("second destroy should be a no-op, got %v", err)
	}
	if _, err := m.AddLayer(document.KindRaster); !errors.Is(err, services.ErrLifecycle) {
		t.Fatalf("add layer after destroy: %v", err)
	}
	if err := m.HandleFrame(context.Background(), []byte(`{}`)); !errors.Is(err, services.ErrLifecycle) {
		t.Fatalf("frame after destroy: %v", err)
	}
}

func TestLifecycleViolationPanicsInDevelopment(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithDevelopment())
	m := canvas.New(cfg, canvas.Deps{}, logging.NewNop())

	defer func() {
		r := recover()
		err, ok := r.(error)
		if !ok || !errors.Is(err, services.ErrLifecycle) {
			t.Fatalf("expected lifecycle panic, got %v", r)
		}
	}()
	_ = m.Destroy()
}

func TestCancelRequestsRemoteCancelAndIgnoresLateEvents(t *testing.T) {
	jobs := newStubJobs()
	m, _ := newManager(t, jobs)

	res, script := submitCanvas(t, m)
	jobID, err := m.Cancel(context.Background())
	if err != nil || jobID != res.JobID {
		t.Fatalf("Cancel = %q, %v", jobID, err)
	}
	if len(jobs.cancelled) != 1 || jobs.cancelled[0] != res.JobID {
		t.Fatalf("remote cancel = %v", jobs.cancelled)
	}

	send(t, m, script.Progress("canvas_output:1", 0.3))
	if snap := m.Staging(); snap.Phase != staging.PhaseIdle || len(snap.Items) != 0 {
		t.Fatalf("late progress changed staging: %+v", snap)
	}
	if jobID, _ := m.Cancel(context.Background()); jobID != "" {
		t.Fatalf("second cancel returned %q", jobID)
	}
}

func TestResolutionFailureMarksItemFailed(t *testing.T) {
	jobs := newStubJobs()
	m, _ := newManager(t, jobs)

	_, script := submitCanvas(t, m)
	send(t, m, script.CanvasOutput("missing.png", 0, 0))
	waitFor(t, "failed item", func() bool {
		snap := m.Staging()
		return len(snap.Items) == 1 && snap.Items[0].Status == staging.ItemFailed
	})
	if m.Staging().Phase != staging.PhaseReady {
		t.Fatalf("expected ready phase, got %s", m.Staging().Phase)
	}
	if layerCount(m) != 0 {
		t.Fatal("failed resolution created a layer")
	}
}

func TestSubmitIncludesMaskForInpaintLayers(t *testing.T) {
	jobs := newStubJobs()
	m, _ := newManager(t, jobs)

	stroke := document.Stroke{Mode: document.StrokeBrush, Color: color.NRGBA{A: 0xff}, Width: 6, Points: []document.Point{{X: 8, Y: 8}, {X: 30, Y: 8}}}
	if _, err := m.AddLayer(document.KindInpaintMask, document.WithPaint(document.PaintData{Strokes: []document.Stroke{stroke}})); err != nil {
		t.Fatalf("AddLayer: %v", err)
	}
	if _, err := m.Submit(context.Background(), canvas.SubmitRequest{Mode: staging.ModeCanvas, Params: m.DefaultParams()}); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	sub := jobs.submissions()[0]
	if sub.Mask == nil {
		t.Fatal("expected an inpaint mask")
	}
	if b := sub.Image.Bounds(); b.Dx() != 64 || b.Dy() != 64 {
		t.Fatalf("composite bounds %v", b)
	}
	if _, _, _, a := sub.Mask.At(16, 8).RGBA(); a == 0 {
		t.Fatal("mask should cover the stroke")
	}
}

func TestDrawCommitsOneStrokeAndRestoresTool(t *testing.T) {
	m, _ := newManager(t, newStubJobs())
	id, err := m.AddLayer(document.KindRaster)
	if err != nil {
		t.Fatalf("AddLayer: %v", err)
	}
	if err := m.SetTool(tool.Move); err != nil {
		t.Fatalf("SetTool: %v", err)
	}

	changed, err := m.Draw(tool.Brush, []document.Point{{X: 1, Y: 1}, {X: 10, Y: 1}, {X: 10, Y: 10}})
	if err != nil || !changed {
		t.Fatalf("Draw changed=%v err=%v", changed, err)
	}
	snap, _ := m.Snapshot()
	layer, _ := snap.Find(id)
	if len(layer.Paint.Strokes) != 1 {
		t.Fatalf("expected one committed stroke, got %d", len(layer.Paint.Strokes))
	}
	if got := m.Status().Tool; got != string(tool.Move) {
		t.Fatalf("tool not restored, got %s", got)
	}
}

type recordingSurface struct {
	frames chan uint64
}

func (s *recordingSurface) Present(frame *image.RGBA, version uint64) {
	select {
	case s.frames <- version:
	default:
	}
}

func TestRenderLoopPresentsAfterMutation(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	m := canvas.New(cfg, canvas.Deps{}, logging.NewNop())
	surface := &recordingSurface{frames: make(chan uint64, 16)}
	if err := m.Initialize(context.Background(), surface); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	defer m.Destroy()

	next := func() uint64 {
		t.Helper()
		select {
		case v := <-surface.frames:
			return v
		case <-time.After(2 * time.Second):
			t.Fatal("no frame presented")
			return 0
		}
	}
	if v := next(); v != 0 {
		t.Fatalf("first frame version %d, want 0", v)
	}
	if _, err := m.AddLayer(document.KindRaster); err != nil {
		t.Fatalf("AddLayer: %v", err)
	}
	for v := next(); v == 0; v = next() {
	}
}

func TestRenderMatchesFlattenForSubmission(t *testing.T) {
	m, _ := newManager(t, newStubJobs())
	if _, err := m.AddLayer(document.KindRaster, document.WithPaint(document.PaintData{Bitmap: testsupport.Solid(4, 4, color.White)})); err != nil {
		t.Fatalf("AddLayer: %v", err)
	}
	disabled, _ := m.AddLayer(document.KindRaster, document.WithPaint(document.PaintData{Bitmap: testsupport.Solid(4, 4, color.Black)}))
	if err := m.SetEnabled(disabled, false); err != nil {
		t.Fatalf("SetEnabled: %v", err)
	}

	res, err := m.Render(m.FullViewport(), compositor.PurposeSubmission)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if got := res.Image.RGBAAt(1, 1); got != (color.RGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}) {
		t.Fatalf("submission frame shows disabled layer: %v", got)
	}
}

type submitOutcome struct {
	res canvas.SubmitResult
	err error
}

// submitHeld starts a submission against a gated stub and waits until the
// stub holds it.
func submitHeld(t *testing.T, m *canvas.Manager, jobs *stubJobs) <-chan submitOutcome {
	t.Helper()
	done := make(chan submitOutcome, 1)
	go func() {
		res, err := m.Submit(context.Background(), canvas.SubmitRequest{Mode: staging.ModeCanvas, Params: m.DefaultParams()})
		done <- submitOutcome{res, err}
	}()
	select {
	case <-jobs.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("submission never reached the job service")
	}
	return done
}

func awaitOutcome(t *testing.T, done <-chan submitOutcome) submitOutcome {
	t.Helper()
	select {
	case out := <-done:
		return out
	case <-time.After(2 * time.Second):
		t.Fatal("submission did not return")
		return submitOutcome{}
	}
}

func TestCancelWhileAwaitingSubmissionCancelsRemoteJob(t *testing.T) {
	jobs := newStubJobs()
	jobs.submitGate = make(chan struct{})
	m, _ := newManager(t, jobs)

	done := submitHeld(t, m, jobs)
	if phase := m.Staging().Phase; phase != staging.PhaseAwaiting {
		t.Fatalf("expected awaiting while enqueueing, got %s", phase)
	}
	jobID, err := m.Cancel(context.Background())
	if err != nil || jobID != "" {
		t.Fatalf("Cancel = %q, %v", jobID, err)
	}
	if phase := m.Staging().Phase; phase != staging.PhaseIdle {
		t.Fatalf("expected idle after cancel, got %s", phase)
	}

	close(jobs.submitGate)
	out := awaitOutcome(t, done)
	if !errors.Is(out.err, services.ErrCancelled) {
		t.Fatalf("expected ErrCancelled, got %v", out.err)
	}
	if got := jobs.cancels(); len(got) != 1 || got[0] != "job-1" {
		t.Fatalf("remote cancels = %v, want [job-1]", got)
	}

	script := testsupport.NewScript(t, "job-1", "", "canvas")
	send(t, m, script.Progress("canvas_output:1", 0.4))
	if snap := m.Staging(); snap.Phase != staging.PhaseIdle || len(snap.Items) != 0 {
		t.Fatalf("events of the cancelled job changed staging: %+v", snap)
	}

	next, err := m.Submit(context.Background(), canvas.SubmitRequest{Mode: staging.ModeCanvas, Params: m.DefaultParams()})
	if err != nil || next.JobID != "job-2" {
		t.Fatalf("resubmit = %+v, %v", next, err)
	}
}

func TestDestroyDuringSubmissionCancelsRemoteJob(t *testing.T) {
	jobs := newStubJobs()
	jobs.submitGate = make(chan struct{})
	m, _ := newManager(t, jobs)

	done := submitHeld(t, m, jobs)
	if err := m.Destroy(); err != nil {
		t.Fatalf("Destroy: %v", err)
	}
	close(jobs.submitGate)

	out := awaitOutcome(t, done)
	if !errors.Is(out.err, services.ErrLifecycle) {
		t.Fatalf("expected ErrLifecycle, got %v", out.err)
	}
	if got := jobs.cancels(); len(got) != 1 || got[0] != "job-1" {
		t.Fatalf("remote cancels = %v, want [job-1]", got)
	}
}

func TestStreamingProgressRevealsPreviewOnRender(t *testing.T) {
	red := color.RGBA{R: 0xff, A: 0xff}
	m, _ := newManager(t, newStubJobs(), testsupport.WithCanvasSize(8, 8))

	_, script := submitCanvas(t, m)
	send(t, m, script.ProgressPreview("canvas_output:1", 0.5, testsupport.Solid(8, 8, red)))

	snap := m.Staging()
	if snap.Phase != staging.PhaseStreaming || snap.Selected != 0 {
		t.Fatalf("expected the streaming item selected, got %+v", snap)
	}
	res, err := m.Render(m.FullViewport(), compositor.PurposeInteractive)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if got := res.Image.RGBAAt(0, 0); got != red {
		t.Fatalf("revealed row = %v, want %v", got, red)
	}
	if got := res.Image.RGBAAt(0, 7); got == red {
		t.Fatal("row below the progress line already revealed")
	}

	send(t, m, script.ProgressPreview("canvas_output:1", 1, testsupport.Solid(8, 8, red)))
	res, _ = m.Render(m.FullViewport(), compositor.PurposeInteractive)
	if got := res.Image.RGBAAt(0, 7); got != red {
		t.Fatalf("fully progressed preview row = %v, want %v", got, red)
	}
}

type countingCloser struct {
	mu     sync.Mutex
	closes int
}

func (c *countingCloser) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closes++
	return nil
}

func (c *countingCloser) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closes
}

func TestAttachStreamReplacesPreviousSubscription(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	m := canvas.New(cfg, canvas.Deps{}, logging.NewNop())
	if err := m.Initialize(context.Background(), nil); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	first, second := &countingCloser{}, &countingCloser{}
	if err := m.AttachStream(first); err != nil {
		t.Fatalf("AttachStream: %v", err)
	}
	if err := m.AttachStream(second); err != nil {
		t.Fatalf("AttachStream: %v", err)
	}
	if first.count() != 1 || second.count() != 0 {
		t.Fatalf("after reattach closes = %d, %d; want 1, 0", first.count(), second.count())
	}

	if err := m.Destroy(); err != nil {
		t.Fatalf("Destroy: %v", err)
	}
	if first.count() != 1 || second.count() != 1 {
		t.Fatalf("after destroy closes = %d, %d; want 1, 1", first.count(), second.count())
	}

	late := &countingCloser{}
	if err := m.AttachStream(late); !errors.Is(err, services.ErrLifecycle) || late.count() != 1 {
		t.Fatalf("attach after destroy: err=%v closes=%d", err, late.count())
	}
}
