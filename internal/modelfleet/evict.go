package modelfleet

import (
	"context"
	"time"

	"github.com/modeld/fleet/pkg/types"
)

// estimateUsageUnits estimates the resource footprint of one version of
// a model from a single stat of cfg.BasePath, in megabyte units. Adapted
// from the teacher's estimateVRAMMB; the files inside the version
// directories are not summed. Returns a conservative minimum of 1 unit
// when the size is under 1 MB or cannot be determined, to avoid
// bypassing budget checks.
func (m *Manager) estimateUsageUnits(cfg types.ModelConfig) int {
	fi, err := m.fs.Stat(cfg.BasePath)
	if err != nil {
		return 1
	}
	mb := int(fi.Size() / (1024 * 1024))
	if mb <= 0 {
		mb = 1
	}
	return mb
}

// reserveUsage/releaseUsage track the manager's running total of
// estimated resource units in use, guarding against negative totals.
func (m *Manager) reserveUsage(name string, version, units int) {
	m.mu.Lock()
	m.usedMB += units
	m.mu.Unlock()
	m.trackUsage(name, version, units)
}

func (m *Manager) releaseUsage(name string, version int) {
	units := m.untrackUsage(name, version)
	m.mu.Lock()
	m.usedMB -= units
	if m.usedMB < 0 {
		m.usedMB = 0
	}
	m.mu.Unlock()
}

// evictUntilFits evicts LRU idle AVAILABLE instances, across every
// model in the fleet except exclude, until requiredMB fits within
// budget+margin, or until no further eviction candidate exists (spec
// §4.D "supplemented feature": LRU eviction under a resource budget).
// exclude is the model whose own reload/add triggered this budget
// check; its other versions are left alone so the operation can't evict
// its own way out of the space it needs. An instance with a live
// LivenessGuard or a non-empty admission-slot pool is never selected,
// mirroring the teacher's evictUntilFits.
func (m *Manager) evictUntilFits(ctx context.Context, exclude *Model, requiredMB int) error {
	deadline := time.Now().Add(1 * time.Second)
	for {
		m.mu.RLock()
		fits := (m.usedMB + requiredMB + m.marginMB) <= m.budgetMB
		m.mu.RUnlock()
		if fits {
			return nil
		}

		var lruModel *Model
		var lruVersion int
		var lruInst *Instance
		m.mu.RLock()
		for _, mdl := range m.models {
			if mdl == exclude {
				continue
			}
			for v, inst := range mdl.Snapshot() {
				if inst.State() != StateAvailable {
					continue
				}
				if inst.InFlight() > 0 || inst.QueueLen() > 0 {
					continue
				}
				if lruInst == nil || inst.LastUsed().Before(lruInst.LastUsed()) {
					lruModel, lruVersion, lruInst = mdl, v, inst
				}
			}
		}
		m.mu.RUnlock()
		if lruInst == nil {
			return nil
		}

		lruModel.RetireVersions(ctx, []int{lruVersion})
		lruModel.Sweep()
		m.releaseUsage(lruModel.Name, lruVersion)
		m.publish(lruModel.Name, lruVersion, "evict", nil)

		if time.Now().After(deadline) {
			return nil
		}
	}
}
