package modelfleet

import (
	"context"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/rs/zerolog"

	"github.com/modeld/fleet/internal/backend"
	"github.com/modeld/fleet/pkg/types"
)

// LoadOutcome records the per-version result of an addVersions call
// (spec §4.C: partial success is reported but not rolled back).
type LoadOutcome struct {
	Version int
	Err     error
}

// Model is the set of ModelInstances for one logical model name, plus
// the currently advertised default version (spec §3, §4.C).
type Model struct {
	Name string

	log zerolog.Logger

	mu             sync.RWMutex
	versions       map[int]*Instance
	defaultVersion int
}

func newModel(name string, log zerolog.Logger) *Model {
	return &Model{
		Name:     name,
		log:      log.With().Str("component", "model").Str("model", name).Logger(),
		versions: make(map[int]*Instance),
	}
}

// versionFiles resolves the on-disk file list for one version directory.
// The teacher scans for a single well-known file per version; here we
// pass the whole version directory through to the opaque backend, which
// is free to interpret it as "network description plus weights" per
// spec §1.
func versionFiles(basePath string, version int) []string {
	return []string{filepath.Join(basePath, strconv.Itoa(version))}
}

// AddVersions constructs a fresh ModelInstance for each version in
// newVersions absent from the map and loads it with cfg. Returns
// success iff every load succeeded; a failed load leaves a
// LOADING_FAILED instance in the map for diagnostic visibility (spec
// §4.C — partial success is reported, not rolled back).
func (m *Model) AddVersions(ctx context.Context, newVersions []int, cfg types.ModelConfig, engine backend.Engine) []LoadOutcome {
	outcomes := make([]LoadOutcome, 0, len(newVersions))
	for _, v := range newVersions {
		m.mu.Lock()
		if _, exists := m.versions[v]; exists {
			m.mu.Unlock()
			continue
		}
		inst := newInstance(m.Name, v, m.log)
		m.versions[v] = inst
		m.mu.Unlock()

		err := inst.Load(ctx, cfg, engine, versionFiles(cfg.BasePath, v))
		outcomes = append(outcomes, LoadOutcome{Version: v, Err: err})
	}
	m.mu.Lock()
	m.recomputeDefaultLocked()
	m.mu.Unlock()
	return outcomes
}

// RetireVersions unloads each version in oldVersions present in the
// map. The instance remains in the map in END state until the next
// Sweep (spec §4.C).
func (m *Model) RetireVersions(ctx context.Context, oldVersions []int) {
	for _, v := range oldVersions {
		m.mu.RLock()
		inst, ok := m.versions[v]
		m.mu.RUnlock()
		if !ok {
			continue
		}
		_ = inst.Unload(ctx)
	}
	m.mu.Lock()
	m.recomputeDefaultLocked()
	m.mu.Unlock()
}

// RetireAllVersions unloads every version currently in the map.
// Equivalent to RetireVersions over the full key set (spec §4.C), used
// at shutdown.
func (m *Model) RetireAllVersions(ctx context.Context) {
	m.mu.RLock()
	all := make([]int, 0, len(m.versions))
	for v := range m.versions {
		all = append(all, v)
	}
	m.mu.RUnlock()
	m.RetireVersions(ctx, all)
}

// ReloadVersions invokes Reload on each existing instance named in
// versionsToReload.
func (m *Model) ReloadVersions(ctx context.Context, versionsToReload []int, cfg types.ModelConfig, engine backend.Engine) []LoadOutcome {
	outcomes := make([]LoadOutcome, 0, len(versionsToReload))
	for _, v := range versionsToReload {
		m.mu.RLock()
		inst, ok := m.versions[v]
		m.mu.RUnlock()
		if !ok {
			continue
		}
		err := inst.Reload(ctx, cfg, engine, versionFiles(cfg.BasePath, v))
		outcomes = append(outcomes, LoadOutcome{Version: v, Err: err})
	}
	m.mu.Lock()
	m.recomputeDefaultLocked()
	m.mu.Unlock()
	return outcomes
}

// Sweep removes every instance in the END state from the map, per the
// "next reconciliation sweep" language of spec §4.C.
func (m *Model) Sweep() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for v, inst := range m.versions {
		if inst.State() == StateEnd {
			delete(m.versions, v)
		}
	}
}

// recomputeDefaultLocked recomputes the default version as the
// numerically highest AVAILABLE version. If none exists, the default is
// undefined (0). Caller must hold m.mu for writing.
func (m *Model) recomputeDefaultLocked() {
	best := 0
	for v, inst := range m.versions {
		if inst.State() == StateAvailable && v > best {
			best = v
		}
	}
	m.defaultVersion = best
}

// GetDefaultModelInstance returns the instance backing the current
// default version, or ErrModelVersionMissing if none exists (spec §4.C).
func (m *Model) GetDefaultModelInstance() (*Instance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.defaultVersion == 0 {
		return nil, ErrModelVersionMissing(m.Name)
	}
	inst, ok := m.versions[m.defaultVersion]
	if !ok {
		return nil, ErrModelVersionMissing(m.Name)
	}
	return inst, nil
}

// GetInstanceByVersion returns the instance for an exact version in
// whatever state it is, or ErrVersionNotLoadedYet when v is not in the
// version map. It does not check the instance's state.
func (m *Model) GetInstanceByVersion(v int) (*Instance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	inst, ok := m.versions[v]
	if !ok {
		return nil, ErrVersionNotLoadedYet(m.Name, v)
	}
	return inst, nil
}

// Versions returns the set of version numbers currently tracked
// (including non-AVAILABLE ones), used by reconciliation to compute Cur.
func (m *Model) Versions() []int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]int, 0, len(m.versions))
	for v := range m.versions {
		out = append(out, v)
	}
	return out
}

// InstanceConfig returns the ModelConfig currently in force for v, if
// loaded, used by reconciliation to detect config drift.
func (m *Model) InstanceConfig(v int) (types.ModelConfig, bool) {
	m.mu.RLock()
	inst, ok := m.versions[v]
	m.mu.RUnlock()
	if !ok {
		return types.ModelConfig{}, false
	}
	return inst.Config(), true
}

// Snapshot returns a shallow copy of the version->Instance map for
// status reporting and pipeline validation.
func (m *Model) Snapshot() map[int]*Instance {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[int]*Instance, len(m.versions))
	for v, inst := range m.versions {
		out[v] = inst
	}
	return out
}

// DefaultVersion returns the currently advertised default version, or 0
// if undefined.
func (m *Model) DefaultVersion() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.defaultVersion
}
