package modelfleet

import (
	"context"
	"testing"

	"github.com/modeld/fleet/internal/backend"
	"github.com/modeld/fleet/pkg/types"
)

func TestLoadConfigAddsVersionsFromDisk(t *testing.T) {
	m := newTestManagerFor(t, map[string][]string{"models/a": {"1", "2"}})
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
	versions := mdl.Versions()
	if len(versions) != 2 {
		t.Fatalf("versions = %v, want 2 entries", versions)
	}
}

func TestLoadConfigIsIdempotent(t *testing.T) {
	// spec property: calling LoadConfig twice with the same specs
	// performs no additional backend loads the second time.
	dirs := map[string][]string{"models/a": {"1"}}
	engine := backend.NewStubEngine()
	m := NewWithConfig(ManagerConfig{Engine: engine, FS: &fakeFS{dirs: dirs}})
	specs := []ModelSpec{{
		Name: "a",
		Config: types.ModelConfig{
			ModelName:     "a",
			BasePath:      "models/a",
			VersionPolicy: types.VersionPolicy{Kind: types.VersionPolicyAll},
		},
	}}
	if err := m.LoadConfig(context.Background(), specs); err != nil {
		t.Fatalf("first LoadConfig: %v", err)
	}
	mdl, _ := m.LookupModel("a")
	inst, err := mdl.GetInstanceByVersion(1)
	if err != nil {
		t.Fatalf("GetInstanceByVersion: %v", err)
	}
	firstLoad := inst.LastUsed()

	if err := m.LoadConfig(context.Background(), specs); err != nil {
		t.Fatalf("second LoadConfig: %v", err)
	}
	inst2, err := mdl.GetInstanceByVersion(1)
	if err != nil {
		t.Fatalf("GetInstanceByVersion after second call: %v", err)
	}
	if inst2 != inst {
		t.Fatal("second LoadConfig replaced an unchanged instance; should be a no-op")
	}
	if !inst2.LastUsed().Equal(firstLoad) {
		t.Fatal("second LoadConfig touched an unchanged instance; should not reload")
	}
}

func TestLoadConfigRetiresVersionsMissingFromTarget(t *testing.T) {
	dirs := map[string][]string{"models/a": {"1", "2"}}
	m := NewWithConfig(ManagerConfig{Engine: backend.NewStubEngine(), FS: &fakeFS{dirs: dirs}})
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

	// Narrow the policy to just version 2; version 1 should retire.
	if err := m.LoadConfig(context.Background(), []ModelSpec{{
		Name: "a",
		Config: types.ModelConfig{
			ModelName:     "a",
			BasePath:      "models/a",
			VersionPolicy: types.VersionPolicy{Kind: types.VersionPolicySpecific, Specific: []int{2}},
		},
	}}); err != nil {
		t.Fatalf("LoadConfig (narrowed): %v", err)
	}

	mdl, _ := m.LookupModel("a")
	inst1, err := mdl.GetInstanceByVersion(1)
	if err != nil {
		t.Fatalf("GetInstanceByVersion(1): %v", err)
	}
	if inst1.State() != StateEnd {
		t.Fatalf("version 1 state = %v, want END after retirement", inst1.State())
	}
	if mdl.DefaultVersion() != 2 {
		t.Fatalf("default version = %d, want 2", mdl.DefaultVersion())
	}
}

func TestLoadConfigReloadsOnConfigDrift(t *testing.T) {
	dirs := map[string][]string{"models/a": {"1"}}
	m := NewWithConfig(ManagerConfig{Engine: backend.NewStubEngine(), FS: &fakeFS{dirs: dirs}})
	base := types.ModelConfig{
		ModelName:     "a",
		BasePath:      "models/a",
		VersionPolicy: types.VersionPolicy{Kind: types.VersionPolicyAll},
	}
	if err := m.LoadConfig(context.Background(), []ModelSpec{{Name: "a", Config: base}}); err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	mdl, _ := m.LookupModel("a")
	drifted := base
	drifted.NIREQ = 8
	if err := m.LoadConfig(context.Background(), []ModelSpec{{Name: "a", Config: drifted}}); err != nil {
		t.Fatalf("LoadConfig (drifted): %v", err)
	}
	inst2, err := mdl.GetInstanceByVersion(1)
	if err != nil {
		t.Fatalf("GetInstanceByVersion: %v", err)
	}
	if inst2.State() != StateAvailable {
		t.Fatalf("state after reload = %v, want AVAILABLE", inst2.State())
	}
	if got, _ := mdl.InstanceConfig(1); got.NIREQ != 8 {
		t.Fatalf("NIREQ after reload = %d, want 8", got.NIREQ)
	}
	if got := inst2.MaxQueueDepth(); got != 8 {
		t.Fatalf("MaxQueueDepth after reload = %d, want 8 (admission pool must resize with NIREQ)", got)
	}
}

func TestLoadConfigSkipsModelWithUnresolvableDevice(t *testing.T) {
	m := newTestManagerFor(t, map[string][]string{"models/a": {"1"}})
	if err := m.LoadConfig(context.Background(), []ModelSpec{{
		Name: "a",
		Config: types.ModelConfig{
			ModelName:     "a",
			BasePath:      "models/a",
			Device:        "GPU.99",
			VersionPolicy: types.VersionPolicy{Kind: types.VersionPolicyAll},
		},
	}}); err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if mdl, ok := m.LookupModel("a"); ok && len(mdl.Versions()) != 0 {
		t.Fatalf("model a should have no versions loaded when its device selector cannot resolve")
	}
}

func TestReconcileModelReturnsDeviceUnavailable(t *testing.T) {
	m := newTestManagerFor(t, map[string][]string{"models/a": {"1"}})
	cfg := types.ModelConfig{
		ModelName:     "a",
		BasePath:      "models/a",
		Device:        "GPU.99",
		VersionPolicy: types.VersionPolicy{Kind: types.VersionPolicyAll},
	}
	err := m.reconcileModel(context.Background(), "a", cfg)
	if !IsDeviceUnavailable(err) {
		t.Fatalf("reconcileModel error = %v, want DEVICE_UNAVAILABLE", err)
	}
}

func TestTriggerReconcileReturnsOpID(t *testing.T) {
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
	op, err := m.TriggerReconcile(context.Background())
	if err != nil {
		t.Fatalf("TriggerReconcile: %v", err)
	}
	if op == "" {
		t.Fatal("TriggerReconcile returned an empty operation id")
	}
}
