package daemon

import (
	"image"
	"image/png"
	"io"
	"log/slog"
	"sync"

	"easel/internal/fileutil"
	"easel/internal/logging"
)

// PreviewSurface is the headless canvas.Surface a session presents to. It
// keeps the latest frame for the preview API and, when a path is set, mirrors
// each new document version to a PNG file.
type PreviewSurface struct {
	path   string
	logger *slog.Logger

	mu       sync.RWMutex
	frame    *image.RGBA
	version  uint64
	frames   uint64
	written  uint64
	writeErr bool
}

// NewPreviewSurface builds a surface; an empty path disables the file mirror.
func NewPreviewSurface(path string, logger *slog.Logger) *PreviewSurface {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &PreviewSurface{path: path, logger: logger}
}

// Present stores frame as the latest preview.
func (p *PreviewSurface) Present(frame *image.RGBA, version uint64) {
	if frame == nil {
		return
	}
	p.mu.Lock()
	p.frame = frame
	p.version = version
	p.frames++
	mirror := p.path != "" && (p.written != version || p.frames == 1)
	p.mu.Unlock()

	if !mirror {
		return
	}
	err := fileutil.WritePNG(p.path, frame)

	p.mu.Lock()
	defer p.mu.Unlock()
	if err != nil {
		if !p.writeErr {
			logging.WarnWithContext(p.logger, "preview file write failed", "preview_write_failed",
				logging.Error(err),
				logging.String("path", p.path),
				logging.String(logging.FieldErrorHint, "check paths.preview_path permissions"),
				logging.String(logging.FieldImpact, "preview file is stale; the HTTP preview still updates"),
			)
		}
		p.writeErr = true
		return
	}
	p.writeErr = false
	p.written = version
}

// Latest returns the most recent frame and its document version.
func (p *PreviewSurface) Latest() (*image.RGBA, uint64, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.frame, p.version, p.frame != nil
}

// Frames counts presented frames.
func (p *PreviewSurface) Frames() uint64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.frames
}

// EncodePNG writes the latest frame to w and returns its version.
func (p *PreviewSurface) EncodePNG(w io.Writer) (uint64, bool, error) {
	frame, version, ok := p.Latest()
	if !ok {
		return 0, false, nil
	}
	return version, true, png.Encode(w, frame)
}
