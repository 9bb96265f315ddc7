package daemon_test

import (
	"context"
	"encoding/json"
	"errors"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"easel/internal/api"
	"easel/internal/canvas"
	"easel/internal/config"
	"easel/internal/daemon"
	"easel/internal/document"
	"easel/internal/jobservice"
	"easel/internal/logging"
	"easel/internal/services"
	"easel/internal/testsupport"
)

func newDaemon(t *testing.T, cfg *config.Config, deps daemon.Deps, opts ...daemon.Option) *daemon.Daemon {
	t.Helper()
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	if deps.Manager == nil {
		deps.Manager = canvas.New(cfg, canvas.Deps{}, logging.NewNop())
	}
	opts = append([]daemon.Option{daemon.WithoutPreflight(), daemon.WithReconnectDelay(10 * time.Millisecond)}, opts...)
	d, err := daemon.New(cfg, deps, logging.NewNop(), opts...)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(func() {
		_ = d.Close()
	})
	return d
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestDaemonStartStop(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	d := newDaemon(t, cfg, daemon.Deps{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	status := d.Status()
	if !status.Running {
		t.Fatal("expected daemon to report running")
	}
	if status.LockFilePath != cfg.LockPath() {
		t.Fatalf("unexpected lock path %q", status.LockFilePath)
	}
	if status.PreviewAddress == "" {
		t.Fatal("expected preview api address")
	}

	// Second start should fail
	if err := d.Start(ctx); err == nil {
		t.Fatal("expected second start to fail")
	}

	d.Stop()
	status = d.Status()
	if status.Running {
		t.Fatal("expected daemon to be stopped")
	}
	if status.PreviewAddress != "" {
		t.Fatalf("expected preview address cleared, got %q", status.PreviewAddress)
	}
	if _, err := d.Manager().Snapshot(); !errors.Is(err, services.ErrLifecycle) {
		t.Fatalf("expected canvas destroyed after stop, got %v", err)
	}
}

func TestSecondSessionOnSameStateDirIsRejected(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.API.Bind = ""
	first := newDaemon(t, cfg, daemon.Deps{})
	second := newDaemon(t, cfg, daemon.Deps{})

	if err := first.Start(context.Background()); err != nil {
		t.Fatalf("first Start: %v", err)
	}
	err := second.Start(context.Background())
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error for second session, got %v", err)
	}

	first.Stop()
	if err := second.Start(context.Background()); err != nil {
		t.Fatalf("second Start after release: %v", err)
	}
}

func TestPreflightRejectsMissingStateDir(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.API.Bind = ""
	cfg.Service.BaseURL = ""
	d, err := daemon.New(cfg, daemon.Deps{Manager: canvas.New(cfg, canvas.Deps{}, logging.NewNop())}, logging.NewNop())
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	if err := d.Start(context.Background()); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected preflight failure, got %v", err)
	}
	if d.Running() {
		t.Fatal("daemon must not run after preflight failure")
	}
}

func TestPreviewAPIServesSessionState(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithCanvasSize(32, 16))
	cfg.API.Token = "sekrit"
	d := newDaemon(t, cfg, daemon.Deps{})
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	layerID, err := d.Manager().AddLayer(document.KindRaster, document.WithName("Sketch"))
	if err != nil {
		t.Fatalf("AddLayer: %v", err)
	}
	waitFor(t, "first preview frame", func() bool { return d.Preview().Frames() > 0 })

	base := "http://" + d.Status().PreviewAddress
	get := func(path string, authorized bool) *http.Response {
		t.Helper()
		req, err := http.NewRequest(http.MethodGet, base+path, nil)
		if err != nil {
			t.Fatalf("new request: %v", err)
		}
		if authorized {
			req.Header.Set("Authorization", "Bearer sekrit")
		}
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		t.Cleanup(func() { resp.Body.Close() })
		return resp
	}

	if resp := get("/api/status", false); resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", resp.StatusCode)
	}

	resp := get("/api/layers", true)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 for layers, got %d", resp.StatusCode)
	}
	var layers api.LayersResponse
	if err := json.NewDecoder(resp.Body).Decode(&layers); err != nil {
		t.Fatalf("decode layers: %v", err)
	}
	if len(layers.Layers) != 1 || layers.Layers[0].ID != layerID || !layers.Layers[0].Selected {
		t.Fatalf("unexpected layers payload: %+v", layers.Layers)
	}

	if resp := get("/api/layers/"+layerID, true); resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 for layer, got %d", resp.StatusCode)
	}
	if resp := get("/api/layers/missing", true); resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown layer, got %d", resp.StatusCode)
	}

	resp = get("/api/status", true)
	var status api.SessionStatus
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if !status.Running || status.LayerCount != 1 || status.Width != 32 || status.Height != 16 {
		t.Fatalf("unexpected status: %+v", status)
	}

	resp = get("/api/preview.png", true)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 for preview, got %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "image/png" {
		t.Fatalf("unexpected content type %q", ct)
	}
	frame, err := png.Decode(resp.Body)
	if err != nil {
		t.Fatalf("decode preview: %v", err)
	}
	if frame.Bounds().Dx() != 32 || frame.Bounds().Dy() != 16 {
		t.Fatalf("unexpected preview bounds %v", frame.Bounds())
	}

	resp = get("/api/executions", true)
	var execs api.ExecutionsResponse
	if err := json.NewDecoder(resp.Body).Decode(&execs); err != nil {
		t.Fatalf("decode executions: %v", err)
	}
	if len(execs.Executions) != 0 {
		t.Fatalf("expected empty execution table, got %d", len(execs.Executions))
	}
}

func TestPreviewFileMirrorsDocument(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.API.Bind = ""
	cfg.Paths.PreviewPath = testsupport.BaseDir(cfg) + "/preview/frame.png"
	d := newDaemon(t, cfg, daemon.Deps{})
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitFor(t, "preview file", func() bool {
		_, err := os.Stat(cfg.Paths.PreviewPath)
		return err == nil
	})
	f, err := os.Open(cfg.Paths.PreviewPath)
	if err != nil {
		t.Fatalf("open preview: %v", err)
	}
	defer f.Close()
	if _, err := png.Decode(f); err != nil {
		t.Fatalf("preview file is not a PNG: %v", err)
	}
}

func TestEventStreamReconnects(t *testing.T) {
	upgrader := websocket.Upgrader{}
	var connections atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		var join map[string]any
		if err := conn.ReadJSON(&join); err != nil {
			return
		}
		if connections.Add(1) == 1 {
			// Drop the first connection to force a reconnect.
			return
		}
		_, _, _ = conn.ReadMessage()
	}))
	defer srv.Close()

	cfg := testsupport.NewConfig(t, testsupport.WithServiceURL(srv.URL))
	cfg.API.Bind = ""
	client := jobservice.New(cfg, logging.NewNop())
	manager := canvas.New(cfg, canvas.Deps{Jobs: client}, logging.NewNop())
	d := newDaemon(t, cfg, daemon.Deps{Manager: manager, Events: client})

	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitFor(t, "reconnected stream", func() bool {
		return connections.Load() >= 2 && d.Status().Connected
	})

	d.Stop()
	if d.Status().Connected {
		t.Fatal("expected stream detached after stop")
	}
}

func TestNewRequiresManager(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	if _, err := daemon.New(cfg, daemon.Deps{}, nil); err == nil || !strings.Contains(err.Error(), "manager") {
		t.Fatalf("expected missing manager error, got %v", err)
	}
}
