package canvas

import (
	"os"

	"easel/internal/api"
	"easel/internal/document"
	"easel/internal/staging"
	"easel/internal/state"
	"easel/internal/tool"
)

// locked runs fn under the Manager lock once the Manager is known to be live,
// and schedules a frame afterwards.
func (m *Manager) locked(operation string, fn func() error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.liveLocked(operation); err != nil {
		return err
	}
	defer m.invalidate()
	return fn()
}

// AddLayer creates a layer on top of the stack and selects it.
func (m *Manager) AddLayer(kind document.Kind, opts ...document.LayerOption) (string, error) {
	var id string
	err := m.locked("add layer", func() error {
		var err error
		id, err = m.doc.AddLayer(kind, opts...)
		return err
	})
	return id, err
}

func (m *Manager) RemoveLayer(id string) error {
	return m.locked("remove layer", func() error { return m.doc.RemoveLayer(id) })
}

func (m *Manager) ResetLayer(id string) error {
	return m.locked("reset layer", func() error { return m.doc.ResetLayer(id) })
}

func (m *Manager) Reorder(id string, dir document.Direction) error {
	return m.locked("reorder", func() error { return m.doc.Reorder(id, dir) })
}

func (m *Manager) SetEnabled(id string, enabled bool) error {
	return m.locked("set enabled", func() error { return m.doc.SetEnabled(id, enabled) })
}

func (m *Manager) SetLocked(id string, locked bool) error {
	return m.locked("set locked", func() error { return m.doc.SetLocked(id, locked) })
}

func (m *Manager) Select(id string) error {
	return m.locked("select", func() error { return m.doc.Select(id) })
}

func (m *Manager) SetConfig(id string, cfg document.Config) error {
	return m.locked("set config", func() error { return m.doc.SetConfig(id, cfg) })
}

func (m *Manager) MutatePaintData(id string, patch document.Patch) error {
	return m.locked("mutate paint", func() error { return m.doc.MutatePaintData(id, patch) })
}

// Clear removes every layer.
func (m *Manager) Clear() error {
	return m.locked("clear", func() error {
		m.tools.Abort()
		m.doc.Clear()
		return nil
	})
}

// Snapshot returns an immutable copy of the document.
func (m *Manager) Snapshot() (document.Snapshot, error) {
	var snap document.Snapshot
	err := m.locked("snapshot", func() error {
		snap = m.doc.Snapshot()
		return nil
	})
	return snap, err
}

// SetTool switches the active tool; it fails while a stroke is in progress.
func (m *Manager) SetTool(t tool.Tool) error {
	return m.locked("set tool", func() error { return m.tools.SetTool(t) })
}

func (m *Manager) PointerDown(p document.Point) error {
	return m.locked("pointer down", func() error {
		m.tools.PointerDown(p)
		return nil
	})
}

func (m *Manager) PointerMove(p document.Point) error {
	return m.locked("pointer move", func() error {
		m.tools.PointerMove(p)
		return nil
	})
}

// PointerUp commits the active stroke and reports whether the document
// changed.
func (m *Manager) PointerUp(p document.Point) (bool, error) {
	var changed bool
	err := m.locked("pointer up", func() error {
		var err error
		changed, err = m.tools.PointerUp(p)
		return err
	})
	return changed, err
}

// AbortStroke drops the active stroke, as when the pointer leaves the surface.
func (m *Manager) AbortStroke() error {
	return m.locked("abort stroke", func() error {
		m.tools.Abort()
		return nil
	})
}

// Draw replays a whole gesture with t: pointer down on the first point, moves
// through the rest, and up on the last. The previous tool is restored.
func (m *Manager) Draw(t tool.Tool, points []document.Point) (bool, error) {
	var changed bool
	err := m.locked("draw", func() error {
		if len(points) == 0 {
			return nil
		}
		previous := m.tools.Tool()
		if err := m.tools.SetTool(t); err != nil {
			return err
		}
		defer func() { _ = m.tools.SetTool(previous) }()

		m.tools.PointerDown(points[0])
		for _, p := range points[1:] {
			m.tools.PointerMove(p)
		}
		var err error
		changed, err = m.tools.PointerUp(points[len(points)-1])
		return err
	})
	return changed, err
}

// Accept commits the selected staged item.
func (m *Manager) Accept() (*staging.Commit, error) {
	var commit *staging.Commit
	err := m.locked("accept", func() error {
		var err error
		commit, err = m.staging.Accept()
		return err
	})
	return commit, err
}

// Discard drops the staging session without touching the document.
func (m *Manager) Discard() error {
	return m.locked("discard", func() error {
		m.cancelPending()
		return m.staging.Discard()
	})
}

// DiscardSelected drops only the selected staged item.
func (m *Manager) DiscardSelected() error {
	return m.locked("discard selected", m.staging.DiscardSelected)
}

func (m *Manager) SelectNext() (int, error) {
	var idx int
	err := m.locked("select next", func() error {
		idx = m.staging.SelectNext()
		return nil
	})
	return idx, err
}

func (m *Manager) SelectPrev() (int, error) {
	var idx int
	err := m.locked("select previous", func() error {
		idx = m.staging.SelectPrev()
		return nil
	})
	return idx, err
}

// Staging returns a copy of the staging session.
func (m *Manager) Staging() staging.Snapshot {
	return m.staging.Snapshot()
}

// UpdatePreferences changes what the user is looking at, which decides
// whether results raise notifications.
func (m *Manager) UpdatePreferences(fn func(*state.Preferences)) state.Preferences {
	return m.st.UpdatePrefs(fn)
}

// Executions returns the workflow execution table.
func (m *Manager) Executions() []api.Execution {
	return api.FromExecutions(m.st.Executions.Snapshot())
}

// Status summarizes the session. It stays readable after Destroy.
func (m *Manager) Status() api.SessionStatus {
	m.mu.Lock()
	running := m.phase == lifecycleRunning
	current := m.tools.Tool()
	m.mu.Unlock()

	snap := m.doc.Snapshot()
	status := api.SessionStatus{
		Running:    running,
		PID:        os.Getpid(),
		DocVersion: snap.Version,
		Width:      snap.Width,
		Height:     snap.Height,
		LayerCount: len(snap.Layers),
		Selected:   snap.Selected,
		Tool:       string(current),
		Staging:    api.FromStaging(m.staging.Snapshot()),
		Connected:  m.connected.Load(),
	}
	if evt, ok := m.st.LastProgress(); ok {
		status.LastProgress = api.FromProgress(evt)
	}
	return status
}
