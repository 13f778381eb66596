// Package history keeps snapshot-based undo/redo over a caption list.
package history

import (
	"sync"

	"github.com/MimeLyc/caption-sync/internal/subtitle"
)

// Manager owns the current caption list plus two snapshot stacks.
// Every snapshot is a private copy; nothing handed in or out aliases the
// stored lists.
type Manager struct {
	mu      sync.RWMutex
	past    [][]subtitle.Caption // oldest first
	future  [][]subtitle.Caption // next redo first
	current []subtitle.Caption
}

// New creates a manager whose current list is a copy of initial.
func New(initial []subtitle.Caption) *Manager {
	return &Manager{
		current: subtitle.Clone(initial),
	}
}

// Apply records the current list on the undo stack, drops any redo
// history and makes next the current list.
func (m *Manager) Apply(next []subtitle.Caption) {
	snapshot := subtitle.Clone(next)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.past = append(m.past, m.current)
	m.future = nil
	m.current = snapshot
}

// Undo restores the most recent snapshot. It reports false and changes
// nothing when there is nothing to undo.
func (m *Manager) Undo() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.past) == 0 {
		return false
	}
	last := len(m.past) - 1
	previous := m.past[last]
	m.past[last] = nil
	m.past = m.past[:last]

	m.future = append([][]subtitle.Caption{m.current}, m.future...)
	m.current = previous
	return true
}

// Redo re-applies the most recently undone list. It reports false and
// changes nothing when there is nothing to redo.
func (m *Manager) Redo() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.future) == 0 {
		return false
	}
	next := m.future[0]
	m.future = m.future[1:]

	m.past = append(m.past, m.current)
	m.current = next
	return true
}

// Reset replaces the current list and clears both stacks. Used for bulk
// import and project restart.
func (m *Manager) Reset(captions []subtitle.Caption) {
	snapshot := subtitle.Clone(captions)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.past = nil
	m.future = nil
	m.current = snapshot
}

// Current returns a copy of the current caption list.
func (m *Manager) Current() []subtitle.Caption {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return subtitle.Clone(m.current)
}

// View calls fn with the current list while holding the read lock.
// fn must not retain or modify the slice.
func (m *Manager) View(fn func(captions []subtitle.Caption)) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	fn(m.current)
}

func (m *Manager) CanUndo() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.past) > 0
}

func (m *Manager) CanRedo() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.future) > 0
}

// Depth returns the sizes of the undo and redo stacks.
func (m *Manager) Depth() (undo int, redo int) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.past), len(m.future)
}
