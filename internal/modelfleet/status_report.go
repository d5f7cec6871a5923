package modelfleet

import (
	"github.com/modeld/fleet/pkg/types"
)

// Status projects the manager's current fleet state into the
// /status diagnostic surface (supplemented feature): every model's
// known versions, the resource budget in force, and a summary of
// in-progress warmups/drains. Adapted from the teacher's status
// endpoint handler, generalized from a single instance to the full
// Model/ModelInstance hierarchy.
func (m *Manager) Status() types.StatusResponse {
	m.mu.RLock()
	budget := m.budgetMB
	margin := m.marginMB
	used := m.usedMB
	models := make([]*Model, 0, len(m.models))
	for _, mdl := range m.models {
		models = append(models, mdl)
	}
	m.mu.RUnlock()

	resp := types.StatusResponse{
		BudgetUnits: budget,
		UsedUnits:   used,
		MarginUnits: margin,
		Host:        m.hostInfo,
	}

	for _, mdl := range models {
		resp.Models = append(resp.Models, mdl.Name)
		def := mdl.DefaultVersion()
		for v, inst := range mdl.Snapshot() {
			st := inst.State()
			resp.Instances = append(resp.Instances, types.InstanceStatus{
				ModelName:     mdl.Name,
				Version:       v,
				State:         string(st),
				LastUsedUnix:  inst.LastUsed().Unix(),
				EstUsageUnits: m.usageUnitsFor(mdl.Name, v),
				QueueLen:      inst.QueueLen(),
				Inflight:      int(inst.InFlight()),
				MaxQueueDepth: inst.MaxQueueDepth(),
				IsDefault:     v == def && def != 0,
			})
			switch st {
			case StateLoading:
				resp.WarmupsInProgress++
			case StateUnloading:
				resp.DrainingCount++
			}
		}
	}
	return resp
}

// usageUnitsFor looks up the last recorded estimated footprint for a
// version, returning 0 if none is recorded (e.g. the version failed to
// load, or its usage was already released).
func (m *Manager) usageUnitsFor(name string, version int) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.lruMeta[lruKey(name, version)]
	if !ok {
		return 0
	}
	return rec.EstUsageUnits
}
