package modelfleet

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/modeld/fleet/internal/backend"
	"github.com/modeld/fleet/pkg/types"
)

// State is one ModelInstance lifecycle state (spec §4.B).
type State string

const (
	// StateBegin is the zero value: not yet loaded.
	StateBegin         State = ""
	StateLoading       State = "loading"
	StateAvailable     State = "available"
	StateLoadingFailed State = "loading_failed"
	StateUnloading     State = "unloading"
	StateEnd           State = "end"
)

// defaultNIREQ is the slot-pool size used when a ModelConfig's NIREQ is
// zero ("choose automatically from available backend resources"),
// mirroring the teacher's single-slot default but sized for a generic
// concurrent-request pool rather than one in-flight generation.
const defaultNIREQ = 4

// LivenessGuard keeps a ModelInstance from being destroyed for as long
// as it is held. Its zero value is not usable; obtain one via
// Instance.AcquireGuard.
type LivenessGuard struct {
	inst     *Instance
	released atomic.Bool
}

// Release decrements the instance's in-flight counter. Safe to call
// more than once; only the first call has effect.
func (g *LivenessGuard) Release() {
	if g.released.CompareAndSwap(false, true) {
		g.inst.inFlight.Add(-1)
	}
}

// Instance is one loaded version of one model (spec §3, §4.B).
type Instance struct {
	ModelName string
	Version   int

	log zerolog.Logger

	mu     sync.Mutex // guards state, config, network, io, curBatch/curShape below
	state  State
	config types.ModelConfig
	engine backend.Engine
	net    backend.LoadedNetwork
	io     backend.IOSpec

	// curBatch/curShape record the concrete batch size/per-input shape
	// the network is presently configured for. For a non-dynamic
	// instance these just mirror config.Batch.Fixed/config.Shape's fixed
	// values; for a dynamic one they track the outcome of the last
	// self-reshape (spec §4.B).
	curBatch int
	curShape map[string][]int

	lastUsed atomic.Value // time.Time
	inFlight atomic.Int64

	slots chan struct{} // nireq-sized concurrent-request admission pool

	// execMu serializes self-reshape against concurrently executing
	// Infer calls: Infer holds RLock for the duration of admission plus
	// execution, reshapeIfNeeded takes Lock to wait for all of them to
	// finish before reconfiguring the network, then releases it so
	// admission resumes under the new configuration.
	execMu sync.RWMutex

	loadErr string
}

// newInstance constructs an instance in the BEGIN state, ready for
// Load. It is not registered in any Model map until the caller does so.
func newInstance(modelName string, version int, log zerolog.Logger) *Instance {
	inst := &Instance{
		ModelName: modelName,
		Version:   version,
		log:       log.With().Str("component", "instance").Str("model", modelName).Int("version", version).Logger(),
	}
	inst.lastUsed.Store(time.Now())
	return inst
}

func slotCount(nireq int) int {
	if nireq <= 0 {
		return defaultNIREQ
	}
	return nireq
}

func cloneShapeMap(m map[string][]int) map[string][]int {
	if m == nil {
		return nil
	}
	out := make(map[string][]int, len(m))
	for k, v := range m {
		out[k] = append([]int(nil), v...)
	}
	return out
}

func shapeMapEqual(a, b map[string][]int) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		bv, ok := b[k]
		if !ok || len(v) != len(bv) {
			return false
		}
		for i := range v {
			if v[i] != bv[i] {
				return false
			}
		}
	}
	return true
}

// State returns the instance's current lifecycle state.
func (i *Instance) State() State {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.state
}

// IsDynamic reports whether this instance uses an auto batch or shape
// mode, which forbids it from participating in a pipeline DL node
// (spec §4.E FORBIDDEN_MODEL_DYNAMIC_PARAMETER).
func (i *Instance) IsDynamic() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.config.Batch.IsDynamic() || i.config.Shape.IsDynamic()
}

// IO returns the declared input/output tensor maps.
func (i *Instance) IO() backend.IOSpec {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.io
}

// Config returns the ModelConfig this instance was (re)loaded with.
func (i *Instance) Config() types.ModelConfig {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.config
}

// LastUsed returns the last time a LivenessGuard or inference call
// touched this instance.
func (i *Instance) LastUsed() time.Time {
	return i.lastUsed.Load().(time.Time)
}

func (i *Instance) touch() { i.lastUsed.Store(time.Now()) }

// InFlight returns the current LivenessGuard reference count.
func (i *Instance) InFlight() int64 { return i.inFlight.Load() }

// QueueLen returns the number of slots currently checked out of the
// nireq admission pool.
func (i *Instance) QueueLen() int {
	i.mu.Lock()
	s := i.slots
	i.mu.Unlock()
	if s == nil {
		return 0
	}
	return len(s)
}

// MaxQueueDepth returns the configured nireq slot-pool capacity.
func (i *Instance) MaxQueueDepth() int {
	i.mu.Lock()
	s := i.slots
	i.mu.Unlock()
	if s == nil {
		return 0
	}
	return cap(s)
}

// Load transitions BEGIN/LOADING_FAILED -> LOADING -> AVAILABLE|LOADING_FAILED.
func (i *Instance) Load(ctx context.Context, cfg types.ModelConfig, engine backend.Engine, files []string) error {
	i.mu.Lock()
	if i.state != StateBegin && i.state != StateLoadingFailed {
		i.mu.Unlock()
		return ErrNetworkNotLoaded(i.ModelName, i.Version, errAlreadyLoaded)
	}
	i.state = StateLoading
	i.config = cfg
	i.engine = engine
	i.slots = make(chan struct{}, slotCount(cfg.NIREQ))
	i.curBatch = cfg.Batch.Fixed
	i.curShape = cloneShapeMap(cfg.Shape.DictOfFixed)
	i.mu.Unlock()

	net, io, err := engine.LoadNetwork(ctx, backend.LoadSpec{
		Files:          files,
		DeviceSelector: cfg.Device,
		PluginParams:   cfg.PluginConfig,
		ShapeSpec:      toBackendShape(cfg.Shape),
		BatchSpec:      toBackendBatch(cfg.Batch),
	})
	i.mu.Lock()
	defer i.mu.Unlock()
	if err != nil {
		i.state = StateLoadingFailed
		i.loadErr = err.Error()
		i.log.Warn().Err(err).Msg("load failed")
		return ErrNetworkNotLoaded(i.ModelName, i.Version, err)
	}
	i.net = net
	i.io = io
	i.state = StateAvailable
	i.loadErr = ""
	i.touch()
	i.log.Info().Msg("loaded")
	return nil
}

var errAlreadyLoaded = errNotRetryable("instance already loaded or loading")

type errNotRetryable string

func (e errNotRetryable) Error() string { return string(e) }

// Reload swaps the LoadedNetwork for a new one built from cfg. From the
// caller's perspective it is atomic: either the swap succeeds and the
// state becomes AVAILABLE, or the old network is preserved and an error
// is returned (spec §4.B).
func (i *Instance) Reload(ctx context.Context, cfg types.ModelConfig, engine backend.Engine, files []string) error {
	i.mu.Lock()
	if i.state != StateAvailable && i.state != StateLoadingFailed {
		s := i.state
		i.mu.Unlock()
		return ErrNetworkNotLoaded(i.ModelName, i.Version, errNotRetryable("cannot reload from state "+string(s)))
	}
	oldNet := i.net
	i.state = StateLoading
	i.mu.Unlock()

	net, io, err := engine.LoadNetwork(ctx, backend.LoadSpec{
		Files:          files,
		DeviceSelector: cfg.Device,
		PluginParams:   cfg.PluginConfig,
		ShapeSpec:      toBackendShape(cfg.Shape),
		BatchSpec:      toBackendBatch(cfg.Batch),
	})
	i.mu.Lock()
	if err != nil {
		// Preserve the old network; restore prior servable state.
		if oldNet != nil {
			i.state = StateAvailable
		} else {
			i.state = StateLoadingFailed
		}
		i.loadErr = err.Error()
		i.mu.Unlock()
		i.log.Warn().Err(err).Msg("reload failed, old network preserved")
		return ErrNetworkNotLoaded(i.ModelName, i.Version, err)
	}
	i.mu.Unlock()

	// state is still LOADING, so no new LivenessGuard can be acquired;
	// any in-flight requests still running are the ones that captured
	// oldNet before this call started. Wait for them to finish before
	// closing it out from under them (mirrors Unload's drain).
	if oldNet != nil {
		i.drainInFlight(ctx)
		_ = oldNet.Close()
	}

	i.mu.Lock()
	defer i.mu.Unlock()
	i.net = net
	i.io = io
	i.config = cfg
	i.engine = engine
	// admit()'s release closures capture the old slots channel by value,
	// so requests already admitted under it drain into it unaffected;
	// only requests admitted from here on see the resized pool.
	i.slots = make(chan struct{}, slotCount(cfg.NIREQ))
	i.curBatch = cfg.Batch.Fixed
	i.curShape = cloneShapeMap(cfg.Shape.DictOfFixed)
	i.state = StateAvailable
	i.loadErr = ""
	i.touch()
	i.log.Info().Msg("reloaded")
	return nil
}

// drainInFlight polls until no LivenessGuard-backed request remains
// checked in, or ctx is canceled, whichever comes first. Shared by
// Reload (before closing the superseded network) and Unload.
func (i *Instance) drainInFlight(ctx context.Context) {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for i.inFlight.Load() != 0 {
		select {
		case <-ctx.Done():
			i.log.Warn().Msg("drain deadline reached with in-flight requests remaining")
			return
		case <-ticker.C:
		}
	}
}

// Unload transitions to UNLOADING, waits (bounded by ctx) for the
// in-flight LivenessGuard counter to reach zero, then releases the
// LoadedNetwork and enters END (spec §4.B).
func (i *Instance) Unload(ctx context.Context) error {
	i.mu.Lock()
	if i.state == StateEnd {
		i.mu.Unlock()
		return nil
	}
	i.state = StateUnloading
	net := i.net
	i.mu.Unlock()

	i.drainInFlight(ctx)

	i.mu.Lock()
	defer i.mu.Unlock()
	if net != nil {
		_ = net.Close()
	}
	i.net = nil
	i.state = StateEnd
	i.log.Info().Msg("unloaded")
	return nil
}

// AcquireGuard checks the state and increments the in-flight counter
// together under the instance mutex: it returns a guard iff the instance
// is currently AVAILABLE. It blocks while another holder has the mutex,
// so it is not wait-free.
func (i *Instance) AcquireGuard() (*LivenessGuard, bool) {
	i.mu.Lock()
	ok := i.state == StateAvailable
	if ok {
		i.inFlight.Add(1)
	}
	i.mu.Unlock()
	if !ok {
		return nil, false
	}
	i.touch()
	return &LivenessGuard{inst: i}, true
}

// admit reserves one of the nireq concurrent-request slots, blocking
// FIFO until one frees, ctx is canceled, or maxWait elapses.
func (i *Instance) admit(ctx context.Context, maxWait time.Duration) (func(), error) {
	i.mu.Lock()
	slots := i.slots
	i.mu.Unlock()
	if slots == nil {
		return func() {}, ErrNetworkNotLoaded(i.ModelName, i.Version, errNotRetryable("no slot pool"))
	}
	if err := ctx.Err(); err != nil {
		return func() {}, err
	}
	timer := time.NewTimer(maxWait)
	defer timer.Stop()
	select {
	case slots <- struct{}{}:
		i.touch()
		return func() { <-slots }, nil
	case <-ctx.Done():
		return func() {}, ctx.Err()
	case <-timer.C:
		return func() {}, ErrTooBusy(i.ModelName, i.Version)
	}
}

// Infer self-reshapes the network if needed, admits a request into the
// nireq pool, then executes it against the currently loaded network.
// Callers must already hold a LivenessGuard for the duration of this
// call. batch/shape name the batch size/per-input shape this particular
// request needs; both are ignored unless the instance is dynamic.
func (i *Instance) Infer(ctx context.Context, maxWait time.Duration, inputs map[string][]byte, batch int, shape map[string][]int) (map[string][]byte, error) {
	if i.IsDynamic() {
		if err := i.reshapeIfNeeded(ctx, batch, shape); err != nil {
			return nil, err
		}
	}

	i.execMu.RLock()
	defer i.execMu.RUnlock()

	release, err := i.admit(ctx, maxWait)
	if err != nil {
		return nil, err
	}
	defer release()

	i.mu.Lock()
	net := i.net
	engine := i.engine
	i.mu.Unlock()
	if net == nil || engine == nil {
		return nil, ErrNetworkNotLoaded(i.ModelName, i.Version, errNotRetryable("no network loaded"))
	}
	req, err := engine.CreateInferRequest(net)
	if err != nil {
		return nil, err
	}
	return req.Infer(ctx, inputs)
}

// reshapeIfNeeded implements the self-reshape contract for a dynamic
// batch/shape instance (spec §4.B): when a request names a batch size
// or per-input shape that differs from the network's current
// configuration, concurrent requests are serialized behind execMu, the
// network is reconfigured via engine.Reshape, and callers resume
// against the new configuration once the exclusive section ends. A
// zero batch or nil shape means the request has no opinion and the
// current configuration is kept.
func (i *Instance) reshapeIfNeeded(ctx context.Context, batch int, shape map[string][]int) error {
	i.mu.Lock()
	dynBatch := i.config.Batch.Auto
	dynShape := i.config.Shape.Auto
	wantBatch := i.curBatch
	if dynBatch && batch != 0 {
		wantBatch = batch
	}
	wantShape := i.curShape
	if dynShape && shape != nil {
		wantShape = shape
	}
	needsReshape := (dynBatch && wantBatch != i.curBatch) || (dynShape && !shapeMapEqual(wantShape, i.curShape))
	i.mu.Unlock()
	if !needsReshape {
		return nil
	}

	i.execMu.Lock()
	defer i.execMu.Unlock()

	i.mu.Lock()
	stillNeeded := (dynBatch && wantBatch != i.curBatch) || (dynShape && !shapeMapEqual(wantShape, i.curShape))
	net := i.net
	engine := i.engine
	i.mu.Unlock()
	if !stillNeeded {
		return nil
	}

	err := engine.Reshape(ctx, net, backend.ReshapeSpec{
		Batch: backend.BatchSpec{Fixed: wantBatch},
		Shape: backend.ShapeSpec{DictOfFixed: wantShape},
	})
	if err != nil {
		i.log.Warn().Err(err).Msg("self-reshape failed")
		return ErrReshapeFailed(i.ModelName, i.Version, err)
	}
	i.mu.Lock()
	i.curBatch = wantBatch
	i.curShape = wantShape
	i.mu.Unlock()
	i.log.Info().Msg("self-reshaped")
	return nil
}

func toBackendShape(s types.ShapeMode) backend.ShapeSpec {
	return backend.ShapeSpec{Auto: s.Auto, Fixed: s.Fixed, DictOfFixed: s.DictOfFixed}
}

func toBackendBatch(b types.BatchMode) backend.BatchSpec {
	return backend.BatchSpec{Auto: b.Auto, Fixed: b.Fixed}
}
