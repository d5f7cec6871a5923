package httpapi

import (
	"context"
	"time"

	"github.com/modeld/fleet/internal/modelfleet"
	"github.com/modeld/fleet/internal/pipeline"
	"github.com/modeld/fleet/pkg/types"
)

// Service defines the methods required by the HTTP API layer, letting
// tests substitute a mock instead of a real Manager/PipelineFactory
// pair.
type Service interface {
	ListModels() []string
	PipelineNames() []string
	Status() types.StatusResponse
	Ready() bool
	Infer(ctx context.Context, req types.InferRequest) (types.InferResponse, error)
	TriggerReconcile(ctx context.Context) (string, error)
}

// FleetService composes a modelfleet.Manager and a pipeline.PipelineFactory
// into the single Service surface the transport layer talks to, routing
// each request by whether it names a Pipeline or a bare Model (spec §6
// resolveModel/resolvePipeline lookup surface).
type FleetService struct {
	Manager   *modelfleet.Manager
	Pipelines *pipeline.PipelineFactory
	MaxWait   time.Duration
}

func (s *FleetService) ListModels() []string { return s.Manager.ListModels() }

func (s *FleetService) PipelineNames() []string { return s.Pipelines.Names() }

func (s *FleetService) Ready() bool { return s.Manager.Ready() }

func (s *FleetService) Status() types.StatusResponse {
	st := s.Manager.Status()
	st.Pipelines = s.Pipelines.Names()
	return st
}

func (s *FleetService) Infer(ctx context.Context, req types.InferRequest) (types.InferResponse, error) {
	if req.Pipeline != "" {
		return s.Pipelines.Execute(ctx, req.Pipeline, req, s.MaxWait)
	}
	return s.Manager.Infer(ctx, req)
}

func (s *FleetService) TriggerReconcile(ctx context.Context) (string, error) {
	return s.Manager.TriggerReconcile(ctx)
}
