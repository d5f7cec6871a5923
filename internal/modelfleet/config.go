package modelfleet

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/modeld/fleet/internal/backend"
	"github.com/modeld/fleet/internal/device"
	"github.com/modeld/fleet/internal/fsadapter"
	"github.com/modeld/fleet/internal/versionreader"
	"github.com/modeld/fleet/pkg/types"
)

// Defaults applied when the corresponding ManagerConfig fields are
// unset, mirroring the teacher's internal/manager/config.go.
const (
	defaultMaxWait      = 30 * time.Second
	defaultDrainTimeout = 10 * time.Second
	defaultPollInterval = 30 * time.Second
)

// ManagerConfig encapsulates all tunables for Manager construction.
type ManagerConfig struct {
	// Engine is the InferenceEngine collaborator (spec §6). Defaults to
	// backend.NewStubEngine() when nil.
	Engine backend.Engine
	// FS is the filesystem collaborator. Defaults to fsadapter.NewLocal().
	FS fsadapter.FS
	// Logger is the base structured logger every subcomponent derives
	// from via .With(). Defaults to a disabled logger.
	Logger zerolog.Logger
	// BudgetUnits/MarginUnits bound the total resource footprint the
	// manager will keep loaded before evicting idle instances. Zero
	// disables budget enforcement.
	BudgetUnits int
	MarginUnits int
	// MaxWait bounds how long a caller will queue for an instance's
	// request slot before receiving a too-busy error.
	MaxWait time.Duration
	// DrainTimeout bounds how long RetireVersions waits for in-flight
	// requests to finish before releasing the network regardless.
	DrainTimeout time.Duration
	// LRUPath, if set, persists the per-version usage-unit records across
	// restarts. Never authoritative (spec §1: filesystem repository is
	// sole source of truth); eviction order does not read it.
	LRUPath string
}

// Manager owns the fleet of Models, drives repository reconciliation,
// and dispatches client lookups (spec §4.D).
type Manager struct {
	log zerolog.Logger

	engine backend.Engine
	fs     fsadapter.FS
	reader *versionreader.Reader

	mu       sync.RWMutex
	models   map[string]*Model
	configs  map[string]types.ModelConfig
	usedMB   int
	budgetMB int
	marginMB int

	maxWait      time.Duration
	drainTimeout time.Duration

	hostInfo device.HostInfo

	publisher EventPublisher

	lruPath string
	lruMeta map[string]lruRecord

	watchCancel context.CancelFunc
	watchDone   chan struct{}
}

// NewWithConfig constructs a Manager from ManagerConfig, applying
// defaults exactly as the teacher's NewWithConfig does.
func NewWithConfig(cfg ManagerConfig) *Manager {
	if cfg.Engine == nil {
		cfg.Engine = backend.NewStubEngine()
	}
	if cfg.FS == nil {
		cfg.FS = fsadapter.NewLocal()
	}
	if cfg.MaxWait <= 0 {
		cfg.MaxWait = defaultMaxWait
	}
	if cfg.DrainTimeout <= 0 {
		cfg.DrainTimeout = defaultDrainTimeout
	}
	m := &Manager{
		log:          cfg.Logger.With().Str("component", "modelfleet.manager").Logger(),
		engine:       cfg.Engine,
		fs:           cfg.FS,
		reader:       versionreader.New(cfg.FS, cfg.Logger),
		models:       make(map[string]*Model),
		configs:      make(map[string]types.ModelConfig),
		budgetMB:     cfg.BudgetUnits,
		marginMB:     cfg.MarginUnits,
		maxWait:      cfg.MaxWait,
		drainTimeout: cfg.DrainTimeout,
		hostInfo:     device.Inventory(context.Background()),
		publisher:    noopPublisher{},
		lruPath:      cfg.LRUPath,
	}
	m.loadLRUMetadata()
	return m
}

// SetPublisher installs an EventPublisher for observing reconciliation
// actions (spec §9 background reconciliation, cooperative).
func (m *Manager) SetPublisher(p EventPublisher) {
	if p == nil {
		p = noopPublisher{}
	}
	m.publisher = p
}

// nextOpID mints a new operation id for async reconciliation triggers,
// adapted from the teacher's ops.go counter into a globally unique id
// via google/uuid since op ids now cross the operator-CLI boundary.
func (m *Manager) nextOpID() string { return uuid.NewString() }
