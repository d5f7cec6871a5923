package modelfleet

import (
	"encoding/json"
	"os"
	"strconv"
	"time"
)

// lruRecord is a best-effort per-version usage record persisted at
// LRUPath. It is never authoritative: the filesystem repository remains
// the sole source of truth for which versions exist (spec §1). The
// records are read by usageUnitsFor (the /status EstUsageUnits figure)
// and untrackUsage; evictUntilFits orders candidates by each instance's
// in-memory last-used time and does not consult them. Direct adaptation of the
// teacher's internal/manager/lru_persist.go, generalized from a flat
// model-id key to a (name, version) key.
type lruRecord struct {
	LastUsedUnix  int64 `json:"last_used_unix"`
	EstUsageUnits int   `json:"est_usage_units"`
}

func lruKey(name string, version int) string {
	return name + "@" + strconv.Itoa(version)
}

// trackUsage records the estimated footprint of a newly reserved
// version and stamps its last-used time, then persists the records.
func (m *Manager) trackUsage(name string, version, units int) {
	m.mu.Lock()
	if m.lruMeta == nil {
		m.lruMeta = make(map[string]lruRecord)
	}
	m.lruMeta[lruKey(name, version)] = lruRecord{LastUsedUnix: time.Now().Unix(), EstUsageUnits: units}
	m.mu.Unlock()
	m.saveLRUMetadata()
}

// untrackUsage removes a retired version's usage record and returns
// the units it had reserved, so the caller can release them from the
// running total.
func (m *Manager) untrackUsage(name string, version int) int {
	m.mu.Lock()
	key := lruKey(name, version)
	rec, ok := m.lruMeta[key]
	if ok {
		delete(m.lruMeta, key)
	}
	m.mu.Unlock()
	if ok {
		m.saveLRUMetadata()
	}
	return rec.EstUsageUnits
}

// loadLRUMetadata best-effort restores usage hints from LRUPath. A
// missing or corrupt file is not an error: it just means the usage
// records start empty.
func (m *Manager) loadLRUMetadata() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lruMeta = make(map[string]lruRecord)
	if m.lruPath == "" {
		return
	}
	data, err := os.ReadFile(m.lruPath)
	if err != nil {
		return
	}
	var meta map[string]lruRecord
	if err := json.Unmarshal(data, &meta); err != nil {
		m.log.Warn().Err(err).Str("path", m.lruPath).Msg("discarding corrupt lru metadata")
		return
	}
	m.lruMeta = meta
}

// saveLRUMetadata best-effort persists the current usage hints. Errors
// are logged and swallowed: this file is a hint, not a commit log.
func (m *Manager) saveLRUMetadata() {
	if m.lruPath == "" {
		return
	}
	m.mu.RLock()
	data, err := json.Marshal(m.lruMeta)
	m.mu.RUnlock()
	if err != nil {
		m.log.Warn().Err(err).Msg("failed to marshal lru metadata")
		return
	}
	if err := os.WriteFile(m.lruPath, data, 0o644); err != nil {
		m.log.Warn().Err(err).Str("path", m.lruPath).Msg("failed to persist lru metadata")
	}
}
