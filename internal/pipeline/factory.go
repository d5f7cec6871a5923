package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/modeld/fleet/internal/modelfleet"
	"github.com/modeld/fleet/pkg/types"
)

// PipelineFactory is a registry of validated PipelineDefinitions keyed
// by name (spec §4.E). Concurrent lookups are shared; inserts are
// exclusive.
type PipelineFactory struct {
	manager *modelfleet.Manager

	mu          sync.RWMutex
	definitions map[string]*PipelineDefinition
}

// NewFactory constructs an empty PipelineFactory bound to manager,
// which every definition's validate() and create() resolves models
// against.
func NewFactory(manager *modelfleet.Manager) *PipelineFactory {
	return &PipelineFactory{manager: manager, definitions: make(map[string]*PipelineDefinition)}
}

// CreateDefinition validates nodes/edges as a new pipeline named name
// and publishes it. Rejects a name already registered with
// PIPELINE_DEFINITION_ALREADY_EXIST; a definition that fails
// validation is never published.
func (f *PipelineFactory) CreateDefinition(name string, nodes []NodeInfo, edges []Edge) error {
	if name == "" {
		return ErrDefinitionNameMissing("")
	}
	f.mu.RLock()
	_, exists := f.definitions[name]
	f.mu.RUnlock()
	if exists {
		return ErrDefinitionAlreadyExists(name)
	}

	def := NewDefinition(name, nodes, edges)
	if err := def.validate(f.manager); err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if _, exists := f.definitions[name]; exists {
		return ErrDefinitionAlreadyExists(name)
	}
	f.definitions[name] = def
	return nil
}

// Names lists every registered pipeline name, used by the /status
// diagnostic surface.
func (f *PipelineFactory) Names() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]string, 0, len(f.definitions))
	for name := range f.definitions {
		out = append(out, name)
	}
	return out
}

// Resolve looks up a registered definition by name, returning
// PIPELINE_DEFINITION_NAME_MISSING if absent (spec §6 lookup surface:
// resolvePipeline).
func (f *PipelineFactory) Resolve(name string) (*PipelineDefinition, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	def, ok := f.definitions[name]
	if !ok {
		return nil, ErrDefinitionNameMissing(name)
	}
	return def, nil
}

// Execute resolves name, instantiates a Pipeline bound to req/resp,
// runs it to completion, and releases every guard it acquired
// regardless of outcome. This is the convenience entry point the
// transport layer calls for req.Pipeline != "".
func (f *PipelineFactory) Execute(ctx context.Context, name string, req types.InferRequest, maxWait time.Duration) (types.InferResponse, error) {
	def, err := f.Resolve(name)
	if err != nil {
		return types.InferResponse{}, err
	}

	var resp types.InferResponse
	p, err := def.create(req.Inputs, &resp.Outputs, f.manager)
	if err != nil {
		return types.InferResponse{}, err
	}
	defer p.Release()

	if err := p.Run(ctx, maxWait); err != nil {
		return types.InferResponse{}, err
	}
	return resp, nil
}
