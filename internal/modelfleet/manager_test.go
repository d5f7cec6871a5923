package modelfleet

import (
	"context"
	"testing"

	"github.com/modeld/fleet/internal/backend"
	"github.com/modeld/fleet/pkg/types"
)

func newTestManagerFor(t *testing.T, dirs map[string][]string) *Manager {
	t.Helper()
	return NewWithConfig(ManagerConfig{
		Engine: backend.NewStubEngine(),
		FS:     &fakeFS{dirs: dirs},
	})
}

func TestFindModelInstanceDefaultVersion(t *testing.T) {
	m := newTestManagerFor(t, map[string][]string{"models/a": {"1", "2"}})
	err := m.LoadConfig(context.Background(), []ModelSpec{{
		Name: "a",
		Config: types.ModelConfig{
			ModelName:     "a",
			BasePath:      "models/a",
			VersionPolicy: types.VersionPolicy{Kind: types.VersionPolicyAll},
		},
	}})
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	inst, guard, err := m.FindModelInstance("a", 0)
	if err != nil {
		t.Fatalf("FindModelInstance: %v", err)
	}
	defer guard.Release()
	if inst.Version != 2 {
		t.Fatalf("default version = %d, want 2 (numerically highest AVAILABLE)", inst.Version)
	}
}

func TestFindModelInstanceUnknownModel(t *testing.T) {
	m := newTestManagerFor(t, map[string][]string{})
	_, _, err := m.FindModelInstance("nope", 0)
	if !IsModelNameMissing(err) {
		t.Fatalf("got %v, want MODEL_NAME_MISSING", err)
	}
}

func TestFindModelInstanceRetiredVersion(t *testing.T) {
	m := newTestManagerFor(t, map[string][]string{"models/a": {"1"}})
	if err := m.LoadConfig(context.Background(), []ModelSpec{{
		Name: "a",
		Config: types.ModelConfig{
			ModelName:     "a",
			BasePath:      "models/a",
			VersionPolicy: types.VersionPolicy{Kind: types.VersionPolicyAll},
		},
	}}); err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	mdl, ok := m.LookupModel("a")
	if !ok {
		t.Fatal("model a not registered")
	}
	mdl.RetireVersions(context.Background(), []int{1})

	_, _, err := m.FindModelInstance("a", 1)
	if !IsVersionNotLoadedAnymore(err) {
		t.Fatalf("got %v, want MODEL_VERSION_NOT_LOADED_ANYMORE", err)
	}
}

func TestInferRequiresModelName(t *testing.T) {
	m := newTestManagerFor(t, map[string][]string{})
	_, err := m.Infer(context.Background(), types.InferRequest{})
	if !IsModelNameMissing(err) {
		t.Fatalf("got %v, want MODEL_NAME_MISSING", err)
	}
}

func TestInferRoundTrip(t *testing.T) {
	m := newTestManagerFor(t, map[string][]string{"models/a": {"1"}})
	if err := m.LoadConfig(context.Background(), []ModelSpec{{
		Name: "a",
		Config: types.ModelConfig{
			ModelName:     "a",
			BasePath:      "models/a",
			VersionPolicy: types.VersionPolicy{Kind: types.VersionPolicyAll},
		},
	}}); err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	resp, err := m.Infer(context.Background(), types.InferRequest{
		Model:  "a",
		Inputs: map[string][]byte{"input": []byte("hi")},
	})
	if err != nil {
		t.Fatalf("Infer: %v", err)
	}
	if string(resp.Outputs["output"]) != "hi" {
		t.Fatalf("Outputs[output] = %q, want %q", resp.Outputs["output"], "hi")
	}
}

func TestStopDrainsAllModels(t *testing.T) {
	m := newTestManagerFor(t, map[string][]string{"models/a": {"1"}})
	if err := m.LoadConfig(context.Background(), []ModelSpec{{
		Name: "a",
		Config: types.ModelConfig{
			ModelName:     "a",
			BasePath:      "models/a",
			VersionPolicy: types.VersionPolicy{Kind: types.VersionPolicyAll},
		},
	}}); err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	m.Stop(context.Background())

	mdl, ok := m.LookupModel("a")
	if !ok {
		t.Fatal("model a not registered")
	}
	inst, err := mdl.GetInstanceByVersion(1)
	if err != nil {
		t.Fatalf("GetInstanceByVersion: %v", err)
	}
	if inst.State() != StateEnd {
		t.Fatalf("state after Stop = %v, want END", inst.State())
	}
}

func TestReadyReflectsAvailableDefault(t *testing.T) {
	m := newTestManagerFor(t, map[string][]string{"models/a": {"1"}})
	if m.Ready() {
		t.Fatal("Ready should be false before any model is loaded")
	}
	if err := m.LoadConfig(context.Background(), []ModelSpec{{
		Name: "a",
		Config: types.ModelConfig{
			ModelName:     "a",
			BasePath:      "models/a",
			VersionPolicy: types.VersionPolicy{Kind: types.VersionPolicyAll},
		},
	}}); err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if !m.Ready() {
		t.Fatal("Ready should be true once a version is AVAILABLE")
	}
}
