package modelfleet

import (
	"context"

	"github.com/modeld/fleet/pkg/types"
)

// ModelSpec is one entry of the configuration document's model list
// (spec §6): a name plus the ModelConfig to load its versions with.
type ModelSpec struct {
	Name   string
	Config types.ModelConfig
}

// Ready reports whether at least one Model has an AVAILABLE default
// instance.
func (m *Manager) Ready() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, mdl := range m.models {
		if mdl.DefaultVersion() != 0 {
			return true
		}
	}
	return false
}

// ListModels returns the names of every model currently registered,
// regardless of whether any version is AVAILABLE.
func (m *Manager) ListModels() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.models))
	for name := range m.models {
		out = append(out, name)
	}
	return out
}

// LookupModel returns the Model registered under name without creating
// one, for read-only introspection by collaborators such as the
// pipeline package's validate() step.
func (m *Manager) LookupModel(name string) (*Model, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	mdl, ok := m.models[name]
	return mdl, ok
}

// getOrCreateModel returns the Model for name, creating an empty one
// under the exclusive lock if it does not yet exist.
func (m *Manager) getOrCreateModel(name string) *Model {
	m.mu.Lock()
	defer m.mu.Unlock()
	mdl, ok := m.models[name]
	if !ok {
		mdl = newModel(name, m.log)
		m.models[name] = mdl
	}
	return mdl
}

// FindModelInstance resolves (name, version|default) to an AVAILABLE
// instance and returns a LivenessGuard held on the caller's behalf
// (spec §4.D). Lock acquisition order here is ModelManager -> Model ->
// ModelInstance, matching spec §5's stated deadlock-avoidance order.
func (m *Manager) FindModelInstance(name string, version int) (*Instance, *LivenessGuard, error) {
	m.mu.RLock()
	mdl, ok := m.models[name]
	m.mu.RUnlock()
	if !ok {
		return nil, nil, ErrModelNameMissing(name)
	}

	var inst *Instance
	var err error
	if version == 0 {
		inst, err = mdl.GetDefaultModelInstance()
	} else {
		inst, err = mdl.GetInstanceByVersion(version)
	}
	if err != nil {
		return nil, nil, err
	}
	guard, ok := inst.AcquireGuard()
	if !ok {
		switch inst.State() {
		case StateEnd, StateUnloading:
			return nil, nil, ErrVersionNotLoadedAnymore(name, inst.Version)
		default:
			return nil, nil, ErrVersionNotLoadedYet(name, inst.Version)
		}
	}
	return inst, guard, nil
}

// Infer resolves modelID/version, admits the request into the
// instance's nireq pool, and executes it against the engine. Mirrors
// the teacher's centralized Infer entry point, generalized from
// NDJSON token streaming to tensor in/tensor out.
func (m *Manager) Infer(ctx context.Context, req types.InferRequest) (types.InferResponse, error) {
	if req.Model == "" {
		return types.InferResponse{}, ErrModelNameMissing("(unspecified)")
	}
	inst, guard, err := m.FindModelInstance(req.Model, req.Version)
	if err != nil {
		return types.InferResponse{}, err
	}
	defer guard.Release()

	outputs, err := inst.Infer(ctx, m.maxWait, req.Inputs, req.Batch, req.Shape)
	if err != nil {
		return types.InferResponse{}, err
	}
	return types.InferResponse{Outputs: outputs}, nil
}

// Stop cancels the watcher (if running) and retires all versions of all
// models. Each drain waits until in-flight requests finish or until ctx
// or the manager's drain timeout expires; every instance then ends in
// END and stays in its model's version map.
func (m *Manager) Stop(ctx context.Context) {
	if m.watchCancel != nil {
		m.watchCancel()
		<-m.watchDone
	}
	m.mu.RLock()
	models := make([]*Model, 0, len(m.models))
	for _, mdl := range m.models {
		models = append(models, mdl)
	}
	m.mu.RUnlock()

	drainCtx, cancel := context.WithTimeout(ctx, m.drainTimeout)
	defer cancel()
	for _, mdl := range models {
		mdl.RetireAllVersions(drainCtx)
	}
	m.saveLRUMetadata()
}
