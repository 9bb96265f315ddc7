package canvas

import (
	"context"
	"errors"
	"image"

	"easel/internal/logging"
	"easel/internal/services"
	"easel/internal/staging"
)

type resolution struct {
	cancel context.CancelFunc
}

// Resolve fetches the pixels of a staged item in the background and reports
// them to the staging controller. A newer request for the same item cancels
// the older one. It is called by the ingestor while the Manager lock is held,
// so it never takes that lock itself.
func (m *Manager) Resolve(req staging.ResolveRequest) {
	m.rmu.Lock()
	if m.root.Err() != nil {
		m.rmu.Unlock()
		return
	}
	key := req.Key()
	if prev, ok := m.pending[key]; ok {
		prev.cancel()
	}
	ctx, cancel := context.WithTimeout(m.root, m.resolveTimeout)
	ctx = services.WithSessionID(services.WithJobID(ctx, req.JobID), req.SessionID)
	r := &resolution{cancel: cancel}
	m.pending[key] = r
	m.wg.Add(1)
	m.rmu.Unlock()

	go m.runResolve(ctx, key, r, req)
}

func (m *Manager) runResolve(ctx context.Context, key string, r *resolution, req staging.ResolveRequest) {
	defer m.wg.Done()
	defer m.release(key, r)

	logger := logging.WithContext(ctx, m.logger)
	if m.jobs == nil {
		m.applyResolution(ctx, req, nil, services.Wrap(services.ErrConfiguration, component, "resolve", "no job service configured", nil))
		return
	}
	bitmap, err := m.jobs.Resolve(ctx, req.Image)
	if errors.Is(ctx.Err(), context.Canceled) {
		logger.Debug("image resolution abandoned", logging.String("image", req.Image.Name))
		return
	}
	m.applyResolution(ctx, req, bitmap, err)
}

func (m *Manager) applyResolution(ctx context.Context, req staging.ResolveRequest, bitmap image.Image, fetchErr error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.phase == lifecycleDestroyed {
		return
	}
	logger := logging.WithContext(ctx, m.logger)
	defer m.invalidate()

	if fetchErr != nil {
		cause := services.Wrap(services.ErrImageResolution, component, "resolve", req.Image.Name, fetchErr)
		if err := m.staging.ResolveFailed(req, cause); err != nil {
			logger.Debug("resolution failure for stale item dropped", logging.String("image", req.Image.Name), logging.Error(err))
		}
		return
	}

	commit, err := m.staging.Resolved(req, bitmap)
	switch {
	case errors.Is(err, services.ErrStaleResult):
		logger.Debug("stale resolution dropped", logging.String("image", req.Image.Name), logging.Error(err))
	case err != nil:
		logging.WarnWithContext(logger, "resolved image not applied", "staging_apply_failed",
			logging.String("image", req.Image.Name),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, services.ErrorHint(err)),
			logging.String(logging.FieldImpact, "staged item left unresolved"),
		)
	case commit != nil:
		logger.Debug("resolution committed",
			logging.String(logging.FieldLayerID, commit.LayerID),
			logging.Uint64(logging.FieldDocVersion, m.doc.Version()),
		)
	}
}

func (m *Manager) release(key string, r *resolution) {
	m.rmu.Lock()
	defer m.rmu.Unlock()
	r.cancel()
	if m.pending[key] == r {
		delete(m.pending, key)
	}
}

// cancelPending abandons every in-flight resolution.
func (m *Manager) cancelPending() int {
	m.rmu.Lock()
	defer m.rmu.Unlock()
	n := len(m.pending)
	for key, r := range m.pending {
		r.cancel()
		delete(m.pending, key)
	}
	return n
}

func (m *Manager) pendingCount() int {
	m.rmu.Lock()
	defer m.rmu.Unlock()
	return len(m.pending)
}
