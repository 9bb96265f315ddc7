package canvas

import (
	"context"
	"image"
	"log/slog"

	"easel/internal/compositor"
	"easel/internal/document"
	"easel/internal/jobservice"
	"easel/internal/logging"
	"easel/internal/services"
	"easel/internal/staging"
)

// SubmitRequest describes one generation job built from the canvas.
type SubmitRequest struct {
	// Mode defaults to staging.default_mode.
	Mode   staging.Mode
	Params jobservice.Params
}

// SubmitResult identifies the submitted job.
type SubmitResult struct {
	SessionID string
	JobID     string
	Mode      staging.Mode
	// RenderErrors lists layers that went out as placeholders.
	RenderErrors []error
}

// DefaultParams returns generation parameters from the configuration.
func (m *Manager) DefaultParams() jobservice.Params {
	return jobservice.DefaultParams(m.cfg)
}

// Submit flattens the document, reserves the staging session and enqueues the
// job. A second submission while a job is outstanding fails with
// services.ErrStagingBusy and leaves the existing session untouched.
func (m *Manager) Submit(ctx context.Context, req SubmitRequest) (SubmitResult, error) {
	mode := req.Mode
	if mode == "" {
		parsed, err := staging.ParseMode(m.cfg.Staging.DefaultMode)
		if err != nil {
			parsed = staging.ModeCanvas
		}
		mode = parsed
	}

	m.mu.Lock()
	if m.phase == lifecycleDestroyed {
		m.mu.Unlock()
		return SubmitResult{}, m.violation("submit", "manager destroyed")
	}
	if m.jobs == nil {
		m.mu.Unlock()
		return SubmitResult{}, services.Wrap(services.ErrConfiguration, component, "submit", "no job service configured", nil)
	}
	sessionID, err := m.staging.Reserve(mode)
	if err != nil {
		m.mu.Unlock()
		return SubmitResult{}, err
	}
	snap := m.doc.Snapshot()
	composite, mask := flatten(snap)
	m.invalidate()
	m.mu.Unlock()

	params := req.Params
	if params.Width <= 0 || params.Height <= 0 {
		params.Width, params.Height = snap.Width, snap.Height
	}
	sub := jobservice.Submission{
		Image:       composite.Image,
		Params:      params,
		Destination: string(mode),
		SessionID:   sessionID,
	}
	if mask != nil {
		sub.Mask = mask
	}
	logger := logging.WithContext(services.WithSessionID(ctx, sessionID), m.logger)
	if len(composite.Errors) > 0 {
		logging.WarnWithContext(logger, "submission contains placeholder layers", "submission_render_degraded",
			logging.Int("failed_layers", len(composite.Errors)),
			logging.Error(composite.Errors[0]),
			logging.String(logging.FieldErrorHint, services.ErrorHint(composite.Errors[0])),
			logging.String(logging.FieldImpact, "job receives a placeholder for undecodable layers"),
		)
	}

	jobID, submitErr := m.jobs.Submit(ctx, sub)

	m.mu.Lock()
	if submitErr != nil {
		if m.phase != lifecycleDestroyed {
			m.staging.Abort(sessionID)
			m.invalidate()
		}
		m.mu.Unlock()
		return SubmitResult{}, submitErr
	}
	// A job that can no longer bind to its session is cancelled remotely.
	var orphaned error
	if m.phase == lifecycleDestroyed {
		orphaned = services.Wrap(services.ErrLifecycle, component, "submit", "manager destroyed during submission", nil)
	} else if err := m.staging.Bind(sessionID, jobID); err != nil {
		orphaned = services.Wrap(services.ErrCancelled, component, "submit", "session cancelled during submission", nil)
	}
	m.mu.Unlock()

	if orphaned != nil {
		jobCtx := services.WithJobID(context.WithoutCancel(ctx), jobID)
		jobLogger := logging.WithContext(services.WithSessionID(jobCtx, sessionID), m.logger)
		jobLogger.Info("submitted job orphaned, cancelling",
			logging.Error(orphaned),
			logging.String(logging.FieldEventType, "job_orphaned"),
		)
		m.cancelRemote(jobCtx, jobLogger, jobID)
		return SubmitResult{}, orphaned
	}
	logger.Info("job submitted",
		logging.String(logging.FieldJobID, jobID),
		logging.String("mode", string(mode)),
		logging.Uint64(logging.FieldDocVersion, snap.Version),
		logging.Bool("mask", mask != nil),
		logging.String(logging.FieldEventType, "job_submitted"),
	)
	return SubmitResult{SessionID: sessionID, JobID: jobID, Mode: mode, RenderErrors: composite.Errors}, nil
}

// flatten renders the submission composite and, when the document has an
// enabled inpaint mask, the mask target.
func flatten(snap document.Snapshot) (compositor.Result, image.Image) {
	vp := compositor.FullViewport(snap)
	composite := compositor.Flatten(snap, vp, compositor.TargetComposite)
	for _, l := range snap.Layers {
		if l.Enabled && l.Kind == document.KindInpaintMask {
			return composite, compositor.Flatten(snap, vp, compositor.TargetInpaintMask).Image
		}
	}
	return composite, nil
}

// Cancel ends the outstanding job locally and asks the service to cancel it.
// The remote cancel is best effort. It returns the cancelled job id, or ""
// when nothing was outstanding.
func (m *Manager) Cancel(ctx context.Context) (string, error) {
	m.mu.Lock()
	if m.phase == lifecycleDestroyed {
		m.mu.Unlock()
		return "", m.violation("cancel", "manager destroyed")
	}
	jobID, ok := m.staging.Cancel()
	abandoned := m.cancelPending()
	m.invalidate()
	m.mu.Unlock()

	if !ok {
		return "", nil
	}
	logger := logging.WithContext(services.WithJobID(ctx, jobID), m.logger)
	logger.Debug("cancel requested", logging.Int("abandoned_resolutions", abandoned))
	m.cancelRemote(ctx, logger, jobID)
	return jobID, nil
}

// cancelRemote asks the service to cancel jobID. Failures are logged only.
func (m *Manager) cancelRemote(ctx context.Context, logger *slog.Logger, jobID string) {
	if m.jobs == nil {
		return
	}
	if err := m.jobs.Cancel(ctx, jobID); err != nil {
		logging.WarnWithContext(logger, "remote cancel failed", "job_cancel_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, services.ErrorHint(err)),
			logging.String(logging.FieldImpact, "job may keep running remotely; its events are ignored"),
		)
	}
}
