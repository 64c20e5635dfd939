// Package state holds the client-side mirror of controller state: per-entity
// status, bounded telemetry history, and command lifecycles. Each store is an
// explicit owned object so multiple clients can run side by side and tests
// stay deterministic. All stores are safe for concurrent use.
package state

import (
	"sort"
	"sync"

	"tilewatch/internal/errors"
)

// Status is the remote-reported health of an entity.
type Status string

const (
	StatusOK       Status = "ok"
	StatusDegraded Status = "degraded"
	StatusFailed   Status = "failed"
	StatusSpare    Status = "spare"
	StatusUnknown  Status = "unknown"
)

// ParseStatus maps a remote status string onto the recognized enum.
func ParseStatus(s string) (Status, bool) {
	switch Status(s) {
	case StatusOK, StatusDegraded, StatusFailed, StatusSpare, StatusUnknown:
		return Status(s), true
	}
	return StatusUnknown, false
}

// NormalizeStatus maps any remote status string onto the enum, collapsing
// unrecognized values to StatusUnknown instead of propagating them.
func NormalizeStatus(s string) Status {
	st, _ := ParseStatus(s)
	return st
}

// StatusModel tracks the current remote status per entity plus a local
// highlight overlay. The highlight is a view-layer attribute orthogonal to
// the remote status: at most one entity is highlighted, and highlighting
// never touches any entity's remote status.
type StatusModel struct {
	mu          sync.RWMutex
	statuses    map[string]Status
	highlighted string
}

// NewStatusModel creates an empty status model.
func NewStatusModel() *StatusModel {
	return &StatusModel{
		statuses: make(map[string]Status),
	}
}

// SetStatus records an entity's remote status. Values outside the recognized
// enum are rejected; callers on the message path normalize first.
func (m *StatusModel) SetStatus(id string, s Status) error {
	if _, ok := ParseStatus(string(s)); !ok {
		return errors.New(errors.ErrStatus,
			"Unrecognized status value '"+string(s)+"' for "+id,
			"Normalize remote statuses with NormalizeStatus before applying")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.statuses[id] = s
	return nil
}

// Status returns the entity's current remote status.
// Entities never referenced report StatusUnknown.
func (m *StatusModel) Status(id string) Status {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if s, ok := m.statuses[id]; ok {
		return s
	}
	return StatusUnknown
}

// Highlight marks the entity as the operator's current selection, clearing
// any previous highlight.
func (m *StatusModel) Highlight(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.highlighted = id
}

// ClearHighlight removes the current highlight, if any.
func (m *StatusModel) ClearHighlight() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.highlighted = ""
}

// Highlighted returns the currently highlighted entity, if one is set.
func (m *StatusModel) Highlighted() (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.highlighted, m.highlighted != ""
}

// Entities returns all known entity ids in sorted order.
func (m *StatusModel) Entities() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]string, 0, len(m.statuses))
	for id := range m.statuses {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
