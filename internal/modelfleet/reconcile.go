package modelfleet

import (
	"context"
	"time"

	"github.com/modeld/fleet/internal/device"
	"github.com/modeld/fleet/pkg/types"
)

// LoadConfig parses a configuration description (here, an already
// materialized list of ModelSpecs — file-format parsing lives in
// internal/config) and idempotently diffs it against current state,
// applying the minimal set of add/retire/reload per Model (spec §4.D).
// Calling LoadConfig twice with the same specs performs no backend
// calls the second time (spec §8 property 6).
func (m *Manager) LoadConfig(ctx context.Context, specs []ModelSpec) error {
	m.mu.Lock()
	for _, spec := range specs {
		m.configs[spec.Name] = spec.Config
	}
	m.mu.Unlock()

	for _, spec := range specs {
		if err := m.reconcileModel(ctx, spec.Name, spec.Config); err != nil {
			m.log.Warn().Err(err).Str("model", spec.Name).Msg("reconcile failed")
		}
	}
	return nil
}

// reconcileModel implements spec §4.D's reconciliation algorithm for a
// single model: On = versions on disk, Cur = versions in the map,
// T = policy.Apply(On), toAdd = T\Cur, toRetire = Cur\T,
// toReload = {v in T∩Cur : config changed}. Applied reload, retire, add.
func (m *Manager) reconcileModel(ctx context.Context, name string, cfg types.ModelConfig) error {
	if !device.Resolve(m.hostInfo, cfg.Device) {
		return ErrDeviceUnavailable(name, cfg.Device)
	}

	mdl := m.getOrCreateModel(name)
	// Instances retired by an earlier pass stay in END until this sweep.
	mdl.Sweep()

	onDisk, err := m.reader.Versions(cfg.BasePath)
	if err != nil {
		return err
	}
	target := cfg.VersionPolicy.Apply(onDisk)
	cur := mdl.Versions()
	curSet := make(map[int]struct{}, len(cur))
	for _, v := range cur {
		curSet[v] = struct{}{}
	}

	var toAdd, toRetire, toReload []int
	for v := range target {
		if _, ok := curSet[v]; !ok {
			toAdd = append(toAdd, v)
		} else if existing, ok := mdl.InstanceConfig(v); ok && !existing.Equivalent(cfg) {
			toReload = append(toReload, v)
		}
	}
	for v := range curSet {
		if _, ok := target[v]; !ok {
			toRetire = append(toRetire, v)
		}
	}

	if len(toReload) > 0 {
		if m.budgetMB > 0 {
			if err := m.evictUntilFits(ctx, mdl, m.estimateUsageUnits(cfg)*len(toReload)); err != nil {
				m.log.Warn().Err(err).Msg("eviction failed ahead of reload")
			}
		}
		for _, outcome := range mdl.ReloadVersions(ctx, toReload, cfg, m.engine) {
			m.publish(name, outcome.Version, "reload", outcome.Err)
		}
	}
	if len(toRetire) > 0 {
		drainCtx, cancel := context.WithTimeout(ctx, m.drainTimeout)
		mdl.RetireVersions(drainCtx, toRetire)
		cancel()
		for _, v := range toRetire {
			m.publish(name, v, "retire", nil)
			m.releaseUsage(name, v)
		}
	}
	if len(toAdd) > 0 {
		if m.budgetMB > 0 {
			if err := m.evictUntilFits(ctx, mdl, m.estimateUsageUnits(cfg)*len(toAdd)); err != nil {
				return err
			}
		}
		for _, outcome := range mdl.AddVersions(ctx, toAdd, cfg, m.engine) {
			m.publish(name, outcome.Version, "add", outcome.Err)
			if outcome.Err == nil {
				m.reserveUsage(name, outcome.Version, m.estimateUsageUnits(cfg))
			}
		}
	}
	return nil
}

// Reconcile runs one reconciliation pass over every configured model,
// matching every disk-scan result against the current fleet state. It
// is the one-shot counterpart to StartWatcher's periodic loop.
func (m *Manager) Reconcile(ctx context.Context) error {
	m.mu.RLock()
	specs := make([]ModelSpec, 0, len(m.configs))
	for name, cfg := range m.configs {
		specs = append(specs, ModelSpec{Name: name, Config: cfg})
	}
	m.mu.RUnlock()
	for _, spec := range specs {
		if err := m.reconcileModel(ctx, spec.Name, spec.Config); err != nil {
			return err
		}
	}
	return nil
}

// StartWatcher spawns a background goroutine that reconciles every
// pollInterval. pollIntervalSeconds=0 disables automatic watching;
// callers may instead invoke Reconcile directly (spec §4.D).
func (m *Manager) StartWatcher(pollIntervalSeconds int) {
	if pollIntervalSeconds <= 0 {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	m.watchCancel = cancel
	m.watchDone = make(chan struct{})
	interval := time.Duration(pollIntervalSeconds) * time.Second
	go func() {
		defer close(m.watchDone)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := m.Reconcile(ctx); err != nil {
					m.log.Warn().Err(err).Msg("periodic reconcile failed")
				}
			}
		}
	}()
}

// TriggerReconcile kicks off an async reconciliation pass and returns
// an operation id immediately; callers can poll Status() to observe
// state transitions. Adapted from the teacher's Switch operation.
func (m *Manager) TriggerReconcile(ctx context.Context) (string, error) {
	op := m.nextOpID()
	go func() {
		if err := m.Reconcile(context.Background()); err != nil {
			m.log.Warn().Err(err).Str("op", op).Msg("triggered reconcile failed")
		}
	}()
	return op, nil
}

func (m *Manager) publish(name string, version int, action string, err error) {
	fields := map[string]any{"action": action}
	if err != nil {
		fields["error"] = err.Error()
	}
	m.publisher.Publish(Event{Name: "reconcile_" + action, ModelName: name, Version: version, Fields: fields})
}
