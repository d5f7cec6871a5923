package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/modeld/fleet/internal/backend"
	"github.com/modeld/fleet/internal/config"
	"github.com/modeld/fleet/internal/fsadapter"
	"github.com/modeld/fleet/internal/modelfleet"
	"github.com/modeld/fleet/internal/pipeline"
	"github.com/modeld/fleet/pkg/types"
)

// cliConfig holds the operator CLI's persistent flags, adapted from the
// teacher's testctl Config-plus-PersistentPreRun wiring pattern.
type cliConfig struct {
	ServerAddr string
	LogLevel   string
}

// buildRootCmd constructs the modelctl command tree: validate (offline,
// against a config file) plus reconcile/status (online, against a
// running modeld instance's HTTP API).
func buildRootCmd() *cobra.Command {
	cfg := &cliConfig{ServerAddr: "http://127.0.0.1:8080", LogLevel: "info"}

	root := &cobra.Command{
		Use:           "modelctl",
		Short:         "Operator CLI for the model fleet daemon",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&cfg.ServerAddr, "server", cfg.ServerAddr, "Base URL of a running modeld instance")
	root.PersistentFlags().StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level: debug|info|warn|error")
	root.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		lvl, err := zerolog.ParseLevel(cfg.LogLevel)
		if err != nil {
			lvl = zerolog.InfoLevel
		}
		zerolog.SetGlobalLevel(lvl)
	}

	validateCmd := &cobra.Command{
		Use:   "validate <config-path>",
		Short: "Validate a configuration document's models and pipeline definitions offline",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return fnValidate(args[0])
		},
	}

	reconcileCmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Trigger an out-of-band repository reconciliation on a running modeld",
		RunE: func(cmd *cobra.Command, args []string) error {
			return fnReconcile(cfg)
		},
	}

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Print the current fleet status from a running modeld",
		RunE: func(cmd *cobra.Command, args []string) error {
			return fnStatus(cfg)
		},
	}

	root.AddCommand(validateCmd, reconcileCmd, statusCmd)
	return root
}

// fnValidate parses the document and replays it through an ephemeral,
// in-process Manager/PipelineFactory pair backed by a stub engine, so
// definition errors (spec §4.B/§4.C: duplicate node names, missing
// entry/exit, cycles, unresolved bindings) surface without a live
// daemon or real inference backend.
func fnValidate(path string) error {
	cfg, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	mgr := modelfleet.NewWithConfig(modelfleet.ManagerConfig{
		Engine: backend.NewStubEngine(),
		FS:     fsadapter.NewLocal(),
	})

	specs := make([]modelfleet.ModelSpec, 0, len(cfg.Models))
	for _, m := range cfg.Models {
		specs = append(specs, modelfleet.ModelSpec{Name: m.Name, Config: m.ToModelConfig()})
	}
	if err := mgr.LoadConfig(context.Background(), specs); err != nil {
		return fmt.Errorf("reconcile models: %w", err)
	}

	factory := pipeline.NewFactory(mgr)
	for _, p := range cfg.Pipelines {
		nodes, edges, err := p.ToNodesAndEdges()
		if err != nil {
			return fmt.Errorf("pipeline %q: %w", p.Name, err)
		}
		if err := factory.CreateDefinition(p.Name, nodes, edges); err != nil {
			return fmt.Errorf("pipeline %q: %w", p.Name, err)
		}
	}

	fmt.Fprintf(os.Stdout, "ok: %d model(s), %d pipeline(s) valid\n", len(cfg.Models), len(cfg.Pipelines))
	return nil
}

func fnReconcile(cfg *cliConfig) error {
	resp, err := httpClient().Post(cfg.ServerAddr+"/reconcile", "application/json", bytes.NewReader(nil))
	if err != nil {
		return fmt.Errorf("reconcile request: %w", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("reconcile failed: %s: %s", resp.Status, string(body))
	}
	var out map[string]string
	if err := json.Unmarshal(body, &out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	fmt.Fprintf(os.Stdout, "reconcile triggered: op_id=%s\n", out["op_id"])
	return nil
}

func fnStatus(cfg *cliConfig) error {
	resp, err := httpClient().Get(cfg.ServerAddr + "/status")
	if err != nil {
		return fmt.Errorf("status request: %w", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status failed: %s: %s", resp.Status, string(body))
	}
	var st types.StatusResponse
	if err := json.Unmarshal(body, &st); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(st)
}

func httpClient() *http.Client {
	return &http.Client{Timeout: 10 * time.Second}
}
