package chart

import "sync"

// HistoryManager tracks the last-active child value per ancestor state so
// history states can restore it later. It is mutated only when an ancestor
// with history children is exited and consulted only when a transition
// targets a history state.
//
// A HistoryManager instance is owned by a single actor's snapshot lineage; it
// is not part of the Snapshot itself. Persistence adapters that need
// restoration across restarts must save its records explicitly alongside the
// snapshot (see Export/Import).
type HistoryManager struct {
	mu      sync.RWMutex
	records map[string]StateValue
}

// NewHistoryManager creates an empty history manager.
func NewHistoryManager() *HistoryManager {
	return &HistoryManager{
		records: make(map[string]StateValue),
	}
}

// Record stores the exited child value under the ancestor's dotted path.
// The recorded value is a full subtree, which naturally satisfies both
// shallow and deep restoration: shallow consumers read only its top id.
func (h *HistoryManager) Record(ancestorPath string, value StateValue) {
	if value == nil {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	h.records[ancestorPath] = value
}

// Lookup returns the recorded child value for the ancestor path, if any.
func (h *HistoryManager) Lookup(ancestorPath string) (StateValue, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	value, ok := h.records[ancestorPath]

	return value, ok
}

// Clear removes the record for the ancestor path.
func (h *HistoryManager) Clear(ancestorPath string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	delete(h.records, ancestorPath)
}

// Export returns a copy of all records, keyed by ancestor path. Used by
// persistence adapters that save history alongside snapshots.
func (h *HistoryManager) Export() map[string]StateValue {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make(map[string]StateValue, len(h.records))
	for path, value := range h.records {
		out[path] = value
	}

	return out
}

// Import replaces all records with the given ones.
func (h *HistoryManager) Import(records map[string]StateValue) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.records = make(map[string]StateValue, len(records))
	for path, value := range records {
		h.records[path] = value
	}
}
