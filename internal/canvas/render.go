package canvas

import (
	"context"
	"slices"
	"strings"
	"time"

	"easel/internal/compositor"
	"easel/internal/logging"
	"easel/internal/services"
)

// Render composites the document and staging session into vp.
func (m *Manager) Render(vp compositor.Viewport, purpose compositor.Purpose) (compositor.Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.liveLocked("render"); err != nil {
		return compositor.Result{}, err
	}
	return m.renderLocked(vp, purpose), nil
}

// FullViewport covers the document frame at 1:1.
func (m *Manager) FullViewport() compositor.Viewport {
	w, h := m.doc.Size()
	return compositor.Viewport{Width: w, Height: h, Scale: 1}
}

func (m *Manager) renderLocked(vp compositor.Viewport, purpose compositor.Purpose) compositor.Result {
	opts := compositor.Options{Purpose: purpose}
	if purpose == compositor.PurposeInteractive {
		opts.Background = m.background
		opts.DimDisabled = m.cfg.Canvas.DimDisabled
		opts.Now = m.now()
		if p, ok := m.tools.Preview(); ok {
			opts.Pending = &compositor.Pending{LayerID: p.LayerID, Stroke: p.Stroke, Transform: p.Transform}
		}
	}
	return compositor.Render(m.doc.Snapshot(), m.staging.Snapshot(), vp, opts)
}

// renderLoop presents a frame whenever something was invalidated, and keeps
// presenting while an overlay is fading.
func (m *Manager) renderLoop(ctx context.Context, surface Surface) {
	defer m.wg.Done()

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	var (
		animating bool
		failing   string
	)
	for {
		select {
		case <-ctx.Done():
			return
		case <-m.root.Done():
			return
		case <-ticker.C:
		}
		if !m.dirty.Swap(false) && !animating {
			continue
		}

		m.mu.Lock()
		if m.phase == lifecycleDestroyed {
			m.mu.Unlock()
			return
		}
		res := m.renderLocked(m.FullViewport(), compositor.PurposeInteractive)
		m.mu.Unlock()

		animating = res.Animating
		if key := failingLayers(res.Errors); key != failing {
			failing = key
			for _, err := range res.Errors {
				lre, _ := compositor.AsLayerRenderError(err)
				attrs := []logging.Attr{
					logging.Error(err),
					logging.String(logging.FieldErrorHint, services.ErrorHint(err)),
					logging.String(logging.FieldImpact, "placeholder drawn for layer"),
				}
				if lre != nil {
					attrs = append(attrs, logging.String(logging.FieldLayerID, lre.LayerID), logging.String("kind", string(lre.Kind)))
				}
				logging.WarnWithContext(m.logger, "layer render failed", "layer_render_failed", attrs...)
			}
		}
		surface.Present(res.Image, res.Version)
	}
}

// failingLayers is a stable key for the set of layers that rendered as
// placeholders, so each failure is logged once rather than every frame.
func failingLayers(errs []error) string {
	ids := make([]string, 0, len(errs))
	for _, err := range errs {
		if lre, ok := compositor.AsLayerRenderError(err); ok {
			ids = append(ids, lre.LayerID)
		}
	}
	slices.Sort(ids)
	return strings.Join(ids, ",")
}

// Flatten renders the document exactly as a submission would send it.
func (m *Manager) Flatten(target compositor.Target) (compositor.Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.liveLocked("flatten"); err != nil {
		return compositor.Result{}, err
	}
	snap := m.doc.Snapshot()
	return compositor.Flatten(snap, compositor.FullViewport(snap), target), nil
}
