// Package types holds the plain data records shared between the model
// fleet, the pipeline package, and the transport layer. Nothing in this
// package performs I/O; it is pure data plus small value-equality helpers.
package types

// BatchMode selects how a ModelInstance's batch dimension is handled.
type BatchMode struct {
	// Auto requests that the backend choose the batch size at load time
	// and reconfigure itself (self-reshape) as requests arrive.
	Auto bool
	// Fixed is the batch size to load with when Auto is false.
	Fixed int
}

// ShapeMode selects how a ModelInstance's tensor shapes are resolved.
type ShapeMode struct {
	// Auto requests backend-driven reshaping on demand.
	Auto bool
	// Fixed is a single fixed shape, not keyed by input name. Used when
	// neither Auto nor DictOfFixed is set.
	Fixed []int
	// DictOfFixed maps input tensor name to a fixed shape, per input.
	// example: {"input": [1, 3, 224, 224]}
	DictOfFixed map[string][]int
}

// IsDynamic reports whether the batch mode is auto and so requires
// self-reshaping, which the pipeline executor cannot coordinate mid-graph
// (spec §4.E FORBIDDEN_MODEL_DYNAMIC_PARAMETER).
func (b BatchMode) IsDynamic() bool { return b.Auto }

// IsDynamic reports whether the shape mode is auto.
func (s ShapeMode) IsDynamic() bool { return s.Auto }

// VersionPolicyKind enumerates the three version-selection policies a
// model can be configured with.
type VersionPolicyKind string

const (
	// VersionPolicyAll keeps every version found on disk loaded.
	VersionPolicyAll VersionPolicyKind = "all"
	// VersionPolicyLatest keeps only the numerically greatest N versions.
	VersionPolicyLatest VersionPolicyKind = "latest"
	// VersionPolicySpecific keeps exactly the versions named.
	VersionPolicySpecific VersionPolicyKind = "specific"
)

// VersionPolicy governs which on-disk versions of a model are kept loaded.
type VersionPolicy struct {
	Kind     VersionPolicyKind
	Latest   int   // used when Kind == VersionPolicyLatest
	Specific []int // used when Kind == VersionPolicySpecific
}

// Apply computes the target version set given the versions present on
// disk, per spec §4.D reconciliation rules.
func (p VersionPolicy) Apply(onDisk []int) map[int]struct{} {
	target := make(map[int]struct{}, len(onDisk))
	switch p.Kind {
	case VersionPolicyAll:
		for _, v := range onDisk {
			target[v] = struct{}{}
		}
	case VersionPolicyLatest:
		sorted := append([]int(nil), onDisk...)
		sortDescending(sorted)
		n := p.Latest
		if n > len(sorted) {
			n = len(sorted)
		}
		if n < 0 {
			n = 0
		}
		for _, v := range sorted[:n] {
			target[v] = struct{}{}
		}
	case VersionPolicySpecific:
		present := make(map[int]struct{}, len(onDisk))
		for _, v := range onDisk {
			present[v] = struct{}{}
		}
		for _, v := range p.Specific {
			if _, ok := present[v]; ok {
				target[v] = struct{}{}
			}
		}
	}
	return target
}

func sortDescending(s []int) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j-1] < s[j]; j-- {
			s[j-1], s[j] = s[j], s[j-1]
		}
	}
}

// PluginParams are opaque backend-specific key/value parameters passed
// through to the InferenceEngine untouched.
type PluginParams map[string]string

// ModelConfig is the immutable snapshot of parameters needed to load one
// version of a model. Two ModelConfigs are equivalent iff every field is
// equal (spec §3); Equivalent implements that comparison.
type ModelConfig struct {
	// ModelName is the owning model's identifier.
	ModelName string `json:"model_name" yaml:"model_name" toml:"model_name"`
	// BasePath is the directory containing numeric version subdirectories.
	BasePath string `json:"base_path" yaml:"base_path" toml:"base_path"`
	Batch    BatchMode
	Shape    ShapeMode
	// Device is the target device selector, e.g. "CPU", "GPU.0", "AUTO".
	Device string `json:"target_device" yaml:"target_device" toml:"target_device"`
	// NIREQ is the size of the concurrent inference-request queue; 0 means
	// "choose automatically from available backend resources".
	NIREQ         int           `json:"nireq" yaml:"nireq" toml:"nireq"`
	PluginConfig  PluginParams  `json:"plugin_config" yaml:"plugin_config" toml:"plugin_config"`
	VersionPolicy VersionPolicy `json:"model_version_policy" yaml:"model_version_policy" toml:"model_version_policy"`
}

// Equivalent reports whether c and other describe the same load
// parameters, used by reconciliation to decide whether a reload is
// required for a version present in both the current and target sets.
func (c ModelConfig) Equivalent(other ModelConfig) bool {
	if c.ModelName != other.ModelName ||
		c.BasePath != other.BasePath ||
		c.Device != other.Device ||
		c.NIREQ != other.NIREQ ||
		c.Batch != other.Batch {
		return false
	}
	if c.Shape.Auto != other.Shape.Auto {
		return false
	}
	if !intSliceEqual(c.Shape.Fixed, other.Shape.Fixed) {
		return false
	}
	if len(c.Shape.DictOfFixed) != len(other.Shape.DictOfFixed) {
		return false
	}
	for k, v := range c.Shape.DictOfFixed {
		if !intSliceEqual(v, other.Shape.DictOfFixed[k]) {
			return false
		}
	}
	if len(c.PluginConfig) != len(other.PluginConfig) {
		return false
	}
	for k, v := range c.PluginConfig {
		if other.PluginConfig[k] != v {
			return false
		}
	}
	if c.VersionPolicy.Kind != other.VersionPolicy.Kind ||
		c.VersionPolicy.Latest != other.VersionPolicy.Latest ||
		!intSliceEqual(c.VersionPolicy.Specific, other.VersionPolicy.Specific) {
		return false
	}
	return true
}

func intSliceEqual(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// TensorSpec describes one named tensor's datatype and shape.
type TensorSpec struct {
	Datatype string `json:"datatype"`
	Shape    []int  `json:"shape"`
}

// IOMap is a name to TensorSpec mapping, used for both declared inputs
// and declared outputs of a loaded network.
type IOMap map[string]TensorSpec
