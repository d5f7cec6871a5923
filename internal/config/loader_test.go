package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTempFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return p
}

const yamlDoc = `
addr: :9999
budget_units: 123
margin_units: 7
poll_interval_seconds: 30
models:
  - name: detector
    base_path: /models/detector
    nireq: 4
    model_version_policy:
      kind: latest
      latest: 2
pipelines:
  - name: face-pipe
    nodes:
      - node_name: entry
        kind: Entry
      - node_name: detect
        kind: DL
        model_name: detector
        outputs:
          faces: detection_out
      - node_name: exit
        kind: Exit
    connections:
      - from: entry
        to: detect
        bindings:
          - source_alias: req
            dest_input: input
      - from: detect
        to: exit
        bindings:
          - source_alias: faces
            dest_input: response_tensor
`

func TestLoadYAML(t *testing.T) {
	d := t.TempDir()
	p := writeTempFile(t, d, "cfg.yaml", yamlDoc)
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Addr != ":9999" || cfg.BudgetUnits != 123 || cfg.MarginUnits != 7 || cfg.PollIntervalS != 30 {
		t.Fatalf("unexpected cfg: %+v", cfg)
	}
	if len(cfg.Models) != 1 || cfg.Models[0].Name != "detector" || cfg.Models[0].BasePath != "/models/detector" {
		t.Fatalf("unexpected models: %+v", cfg.Models)
	}
	if len(cfg.Pipelines) != 1 || len(cfg.Pipelines[0].Nodes) != 3 || len(cfg.Pipelines[0].Connections) != 2 {
		t.Fatalf("unexpected pipelines: %+v", cfg.Pipelines)
	}
}

const jsonDoc = `{
  "addr": ":7070",
  "budget_units": 42,
  "margin_units": 2,
  "models": [
    {"name": "m2", "base_path": "/m", "nireq": 2, "model_version_policy": {"kind": "all"}}
  ]
}`

func TestLoadJSON(t *testing.T) {
	d := t.TempDir()
	p := writeTempFile(t, d, "cfg.json", jsonDoc)
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Addr != ":7070" || cfg.BudgetUnits != 42 || cfg.MarginUnits != 2 {
		t.Fatalf("unexpected cfg: %+v", cfg)
	}
	if len(cfg.Models) != 1 || cfg.Models[0].Name != "m2" {
		t.Fatalf("unexpected models: %+v", cfg.Models)
	}
}

const tomlDoc = "addr = \":8081\"\nbudget_units = 9\nmargin_units = 1\n\n[[models]]\nname = \"m3\"\nbase_path = \"/x\"\nnireq = 1\n"

func TestLoadTOML(t *testing.T) {
	d := t.TempDir()
	p := writeTempFile(t, d, "cfg.toml", tomlDoc)
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Addr != ":8081" || cfg.BudgetUnits != 9 || cfg.MarginUnits != 1 {
		t.Fatalf("unexpected cfg: %+v", cfg)
	}
	if len(cfg.Models) != 1 || cfg.Models[0].Name != "m3" || cfg.Models[0].BasePath != "/x" {
		t.Fatalf("unexpected models: %+v", cfg.Models)
	}
}

func TestLoadErrors(t *testing.T) {
	if _, err := Load(""); err == nil {
		t.Fatalf("expected error on empty path")
	}
	d := t.TempDir()
	p := writeTempFile(t, d, "cfg.txt", "not supported")
	if _, err := Load(p); err == nil {
		t.Fatalf("expected unsupported extension error")
	}
}

func TestModelEntryToModelConfig(t *testing.T) {
	e := ModelEntry{Name: "a", BasePath: "/a", NIREQ: 4}
	cfg := e.ToModelConfig()
	if cfg.ModelName != "a" || cfg.BasePath != "/a" || cfg.NIREQ != 4 {
		t.Fatalf("unexpected ModelConfig: %+v", cfg)
	}
}
