// Package pipeline validates user-declared DAGs of inference steps
// against the live model fleet and materializes per-request Pipeline
// instances that bind request tensors into the graph and surface
// response tensors at the exit (spec module E).
package pipeline

import (
	"github.com/modeld/fleet/internal/modelfleet"
)

// NodeKind tags the variant a NodeInfo carries, per the "tagged variant
// rather than a class hierarchy" design: a single visit/dispatch over
// Kind drives both validation and execution.
type NodeKind string

const (
	NodeKindEntry NodeKind = "entry"
	NodeKindDL    NodeKind = "dl"
	NodeKindExit  NodeKind = "exit"
)

// NodeInfo is one declared node of a PipelineDefinition. ModelName,
// ModelVersion, and OutputAlias are meaningful only for Kind == NodeKindDL.
type NodeInfo struct {
	Name string
	Kind NodeKind

	// ModelName is the DL node's target model. ModelVersion pins a
	// specific version; zero selects the model's default at both
	// validation and construction time.
	ModelName    string
	ModelVersion int

	// OutputAlias maps a locally-declared alias to the model's real
	// output tensor name. A binding's SourceAlias is looked up here
	// first; if absent, the alias is treated as the real name itself
	// (identity fallback).
	OutputAlias map[string]string
}

// Binding names one tensor flowing across an Edge: SourceAlias
// identifies it on the source node's side (after alias expansion for a
// DL source, or a request field name for an Entry source); DestInput
// names the destination's declared input (for a DL destination) or a
// response field name (for an Exit destination).
type Binding struct {
	SourceAlias string
	DestInput   string
}

// Edge connects two nodes by name, carrying one or more tensor bindings.
type Edge struct {
	From     string
	To       string
	Bindings []Binding
}

// resolveAlias implements "alias map wins if the alias key is present,
// falling back to identity otherwise" — the rule spec §9's open
// question adopts for interpreting a DL source's output-alias map.
func resolveAlias(aliases map[string]string, key string) string {
	if real, ok := aliases[key]; ok {
		return real
	}
	return key
}

// runtimeNode is the per-request instantiation of a NodeInfo.
type runtimeNode struct {
	info NodeInfo

	requestInputs map[string][]byte  // Entry only
	response      *map[string][]byte // Exit only: written on execution

	instance *modelfleet.Instance
	guard    *modelfleet.LivenessGuard // DL only
}
