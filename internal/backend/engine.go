// Package backend defines the opaque inference-backend collaborator
// consumed by internal/modelfleet. The core never performs tensor
// arithmetic itself (spec §1 Non-goals); everything below is an
// interface plus reference adapters that talk to an external process.
package backend

import "context"

// LoadedNetwork is an opaque handle to a network loaded into the
// backend. The core never inspects its contents.
type LoadedNetwork interface {
	// Close releases backend resources. Called once the owning
	// ModelInstance has drained to zero in-flight requests or its drain
	// deadline has passed, whichever comes first.
	Close() error
}

// InferRequestHandle is a reusable per-slot request context obtained
// from CreateInferRequest, mirroring spec §6's createInferRequest.
type InferRequestHandle interface {
	// Infer executes one inference call against the bound network and
	// returns the produced output tensors.
	Infer(ctx context.Context, inputs map[string][]byte) (map[string][]byte, error)
}

// Engine is the abstract capability set spec §6 requires of the
// concrete inference backend.
type Engine interface {
	// LoadNetwork loads a serialized network description plus weights
	// from files into a reloadable LoadedNetwork.
	LoadNetwork(ctx context.Context, spec LoadSpec) (LoadedNetwork, IOSpec, error)
	// GetIO returns the declared input/output tensor maps of an already
	// loaded network.
	GetIO(net LoadedNetwork) (IOSpec, error)
	// Reshape reconfigures a loaded network's dynamic shape/batch. Only
	// called on instances configured with an auto shape or batch mode.
	Reshape(ctx context.Context, net LoadedNetwork, spec ReshapeSpec) error
	// CreateInferRequest allocates one request-slot handle bound to net.
	CreateInferRequest(net LoadedNetwork) (InferRequestHandle, error)
}

// LoadSpec bundles the parameters spec §6's loadNetwork takes.
type LoadSpec struct {
	Files          []string
	DeviceSelector string
	PluginParams   map[string]string
	ShapeSpec      ShapeSpec
	BatchSpec      BatchSpec
}

// ShapeSpec mirrors types.ShapeMode without importing pkg/types, keeping
// this package's dependency surface self-contained.
type ShapeSpec struct {
	Auto        bool
	Fixed       []int
	DictOfFixed map[string][]int
}

// BatchSpec mirrors types.BatchMode.
type BatchSpec struct {
	Auto  bool
	Fixed int
}

// ReshapeSpec is the shape a self-reshape transitions a network to.
type ReshapeSpec struct {
	Shape ShapeSpec
	Batch BatchSpec
}

// TensorSpec describes one named tensor's datatype and shape, mirroring
// pkg/types.TensorSpec.
type TensorSpec struct {
	Datatype string
	Shape    []int
}

// IOSpec is the declared input/output tensor map of a loaded network.
type IOSpec struct {
	Inputs  map[string]TensorSpec
	Outputs map[string]TensorSpec
}
