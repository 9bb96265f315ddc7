// Package execution tracks per-node progress for workflow-origin jobs.
//
// The table is written only by the event ingestor and read by status views. It
// is not part of the rendered document.
package execution

import (
	"encoding/json"
	"sort"
	"sync"
	"time"
)

// Status is the lifecycle state of one workflow node.
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusInProgress Status = "IN_PROGRESS"
	StatusCompleted  Status = "COMPLETED"
	StatusFailed     Status = "FAILED"
)

// Output is one result payload produced by a node.
type Output struct {
	Type      string          `json:"type"`
	ImageName string          `json:"image_name,omitempty"`
	Raw       json.RawMessage `json:"raw,omitempty"`
}

// State is the execution record for a node.
type State struct {
	NodeID    string    `json:"node_id"`
	Status    Status    `json:"status"`
	Progress  *float64  `json:"progress"`
	Outputs   []Output  `json:"outputs"`
	Error     string    `json:"error,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (s State) clone() State {
	if s.Progress != nil {
		p := *s.Progress
		s.Progress = &p
	}
	s.Outputs = append([]Output(nil), s.Outputs...)
	return s
}

// Table holds execution state keyed by node id.
type Table struct {
	mu    sync.RWMutex
	nodes map[string]*State
	now   func() time.Time
}

// NewTable returns an empty table.
func NewTable() *Table {
	return &Table{nodes: make(map[string]*State), now: time.Now}
}

// Prepare registers nodes as pending, replacing any earlier record.
func (t *Table) Prepare(nodeIDs ...string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, id := range nodeIDs {
		t.nodes[id] = &State{NodeID: id, Status: StatusPending, UpdatedAt: t.now()}
	}
}

// Progress marks a node in progress. A nil progress keeps the node
// indeterminate; a lower value than already recorded is ignored.
func (t *Table) Progress(nodeID string, progress *float64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	st, ok := t.nodes[nodeID]
	if !ok {
		st = &State{NodeID: nodeID}
		t.nodes[nodeID] = st
	}
	if st.Status == StatusCompleted || st.Status == StatusFailed {
		return
	}
	st.Status = StatusInProgress
	if progress != nil && (st.Progress == nil || *progress > *st.Progress) {
		p := *progress
		st.Progress = &p
	}
	st.UpdatedAt = t.now()
}

// Complete marks a known node completed and appends output. Progress is
// clamped to 1 only when the node reported determinate progress. Unknown
// nodes are left alone and Complete reports false.
func (t *Table) Complete(nodeID string, output Output) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	st, ok := t.nodes[nodeID]
	if !ok {
		return false
	}
	st.Status = StatusCompleted
	if st.Progress != nil {
		one := 1.0
		st.Progress = &one
	}
	st.Outputs = append(st.Outputs, output)
	st.UpdatedAt = t.now()
	return true
}

// Fail marks a node failed, creating the record if needed.
func (t *Table) Fail(nodeID, message string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	st, ok := t.nodes[nodeID]
	if !ok {
		st = &State{NodeID: nodeID}
		t.nodes[nodeID] = st
	}
	st.Status = StatusFailed
	st.Error = message
	st.UpdatedAt = t.now()
}

// Get returns a copy of one node's state.
func (t *Table) Get(nodeID string) (State, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	st, ok := t.nodes[nodeID]
	if !ok {
		return State{}, false
	}
	return st.clone(), true
}

// Snapshot returns every node ordered by id.
func (t *Table) Snapshot() []State {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]State, 0, len(t.nodes))
	for _, st := range t.nodes {
		out = append(out, st.clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].NodeID < out[j].NodeID })
	return out
}

// Reset drops all records.
func (t *Table) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.nodes = make(map[string]*State)
}
