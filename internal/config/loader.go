// Package config parses the fleet's configuration document (spec §6):
// per-model load parameters plus an optional list of pipeline
// definitions, in whichever of YAML/JSON/TOML the file extension names.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/modeld/fleet/pkg/types"
)

// ModelEntry is one model's configuration document entry (spec §6):
// name, base_path, optional batch_size/shape/model_version_policy/
// target_device/plugin_config/nireq.
type ModelEntry struct {
	Name          string              `json:"name" yaml:"name" toml:"name"`
	BasePath      string              `json:"base_path" yaml:"base_path" toml:"base_path"`
	Batch         types.BatchMode     `json:"batch_size" yaml:"batch_size" toml:"batch_size"`
	Shape         types.ShapeMode     `json:"shape" yaml:"shape" toml:"shape"`
	VersionPolicy types.VersionPolicy `json:"model_version_policy" yaml:"model_version_policy" toml:"model_version_policy"`
	TargetDevice  string              `json:"target_device" yaml:"target_device" toml:"target_device"`
	PluginConfig  types.PluginParams  `json:"plugin_config" yaml:"plugin_config" toml:"plugin_config"`
	NIREQ         int                 `json:"nireq" yaml:"nireq" toml:"nireq"`
}

// ToModelConfig converts a document entry into the domain type Model
// construction and reconciliation consume.
func (e ModelEntry) ToModelConfig() types.ModelConfig {
	return types.ModelConfig{
		ModelName:     e.Name,
		BasePath:      e.BasePath,
		Batch:         e.Batch,
		Shape:         e.Shape,
		Device:        e.TargetDevice,
		NIREQ:         e.NIREQ,
		PluginConfig:  e.PluginConfig,
		VersionPolicy: e.VersionPolicy,
	}
}

// NodeEntry is one pipeline node as it appears in the configuration
// document, before conversion to internal/pipeline.NodeInfo.
type NodeEntry struct {
	NodeName     string            `json:"node_name" yaml:"node_name" toml:"node_name"`
	Kind         string            `json:"kind" yaml:"kind" toml:"kind"`
	ModelName    string            `json:"model_name,omitempty" yaml:"model_name,omitempty" toml:"model_name,omitempty"`
	ModelVersion int               `json:"model_version,omitempty" yaml:"model_version,omitempty" toml:"model_version,omitempty"`
	Outputs      map[string]string `json:"outputs,omitempty" yaml:"outputs,omitempty" toml:"outputs,omitempty"`
}

// BindingEntry is one (source_output_alias, destination_input_name) pair.
type BindingEntry struct {
	SourceAlias string `json:"source_alias" yaml:"source_alias" toml:"source_alias"`
	DestInput   string `json:"dest_input" yaml:"dest_input" toml:"dest_input"`
}

// ConnectionEntry is one edge in a pipeline's configuration-document DAG.
type ConnectionEntry struct {
	From     string         `json:"from" yaml:"from" toml:"from"`
	To       string         `json:"to" yaml:"to" toml:"to"`
	Bindings []BindingEntry `json:"bindings" yaml:"bindings" toml:"bindings"`
}

// PipelineEntry is one pipeline definition as it appears in the
// configuration document.
type PipelineEntry struct {
	Name        string            `json:"name" yaml:"name" toml:"name"`
	Nodes       []NodeEntry       `json:"nodes" yaml:"nodes" toml:"nodes"`
	Connections []ConnectionEntry `json:"connections" yaml:"connections" toml:"connections"`
}

// Config holds runtime parameters for the service. cmd/modeld/main.go
// replaces a zero PollIntervalS with 30 seconds; zero budget units
// disable budget enforcement. Addr is parsed but cmd/modeld takes its
// listen address from its own -addr flag instead.
type Config struct {
	Addr           string          `json:"addr" yaml:"addr" toml:"addr"`
	BudgetUnits    int             `json:"budget_units" yaml:"budget_units" toml:"budget_units"`
	MarginUnits    int             `json:"margin_units" yaml:"margin_units" toml:"margin_units"`
	PollIntervalS  int             `json:"poll_interval_seconds" yaml:"poll_interval_seconds" toml:"poll_interval_seconds"`
	LRUPath        string          `json:"lru_path" yaml:"lru_path" toml:"lru_path"`
	Models         []ModelEntry    `json:"models" yaml:"models" toml:"models"`
	Pipelines      []PipelineEntry `json:"pipelines" yaml:"pipelines" toml:"pipelines"`
}

// Load reads a configuration file based on its extension.
// Supports: .yaml/.yml, .json, .toml
func Load(path string) (Config, error) {
	var cfg Config
	if path == "" {
		return cfg, fmt.Errorf("empty config path")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".json":
		if err := json.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".toml":
		if err := toml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	default:
		return cfg, fmt.Errorf("unsupported config extension: %s", ext)
	}
	return cfg, nil
}
