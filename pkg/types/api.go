package types

import "github.com/modeld/fleet/internal/device"

// InferRequest represents an inference request payload accepted by the
// transport layer and passed through to ModelManager.FindModelInstance
// or PipelineFactory.Execute.
type InferRequest struct {
	// Model is the target model name; required unless Pipeline is set.
	// example: detector
	Model string `json:"model,omitempty"`
	// Version pins a specific model version; zero selects the default.
	Version int `json:"version,omitempty"`
	// Pipeline names a PipelineDefinition to route the request through
	// instead of a single model. When set, Model and Version are ignored.
	Pipeline string `json:"pipeline,omitempty"`
	// Inputs maps input tensor name to raw tensor payload bytes. The wire
	// encoding of a tensor is a transport-layer concern; the core treats
	// this as opaque bytes plus the TensorSpec declared by the instance.
	Inputs map[string][]byte `json:"inputs"`
	// Batch requests a specific batch size from a dynamic-batch instance
	// (spec §4.B self-reshape). Zero means "keep whatever batch size is
	// currently configured"; ignored by non-dynamic instances.
	Batch int `json:"batch,omitempty"`
	// Shape requests a specific per-input tensor shape from a
	// dynamic-shape instance. Nil means "keep the current shape";
	// ignored by non-dynamic instances.
	Shape map[string][]int `json:"shape,omitempty"`
}

// InferResponse carries the output tensors produced by a resolved
// ModelInstance or Pipeline.
type InferResponse struct {
	Outputs map[string][]byte `json:"outputs"`
}

// InstanceStatus is the /status projection of one ModelInstance.
type InstanceStatus struct {
	ModelName     string `json:"model_name"`
	Version       int    `json:"version"`
	State         string `json:"state"`
	LastUsedUnix  int64  `json:"last_used_unix"`
	EstUsageUnits int    `json:"est_usage_units"`
	QueueLen      int    `json:"queue_len"`
	Inflight      int    `json:"inflight"`
	MaxQueueDepth int    `json:"max_queue_depth"`
	IsDefault     bool   `json:"is_default"`
}

// StatusResponse is the full /status body.
type StatusResponse struct {
	BudgetUnits       int              `json:"budget_units"`
	UsedUnits         int              `json:"used_units"`
	MarginUnits       int              `json:"margin_units"`
	Models            []string         `json:"models"`
	Instances         []InstanceStatus `json:"instances"`
	WarmupsInProgress int              `json:"warmups_in_progress"`
	DrainingCount     int              `json:"draining_count"`
	Pipelines         []string         `json:"pipelines"`
	Host              device.HostInfo  `json:"host"`
}
