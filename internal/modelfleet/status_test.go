package modelfleet

import (
	"context"
	"testing"
	"time"

	"github.com/modeld/fleet/pkg/types"
)

func TestStatusReportsInstancesAndDefault(t *testing.T) {
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

	resp := m.Status()
	if len(resp.Models) != 1 || resp.Models[0] != "a" {
		t.Fatalf("Models = %v, want [a]", resp.Models)
	}
	if len(resp.Instances) != 2 {
		t.Fatalf("Instances = %v, want 2 entries", resp.Instances)
	}
	var sawDefault bool
	for _, inst := range resp.Instances {
		if inst.IsDefault {
			sawDefault = true
			if inst.Version != 2 {
				t.Fatalf("default instance version = %d, want 2", inst.Version)
			}
		}
		if inst.State != string(StateAvailable) {
			t.Fatalf("instance state = %q, want %q", inst.State, StateAvailable)
		}
	}
	if !sawDefault {
		t.Fatal("no instance marked IsDefault")
	}
}

func TestStatusCountsDrains(t *testing.T) {
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

	mdl, _ := m.LookupModel("a")
	inst, err := mdl.GetInstanceByVersion(1)
	if err != nil {
		t.Fatalf("GetInstanceByVersion: %v", err)
	}
	guard, ok := inst.AcquireGuard()
	if !ok {
		t.Fatal("AcquireGuard failed")
	}
	go func() {
		_ = inst.Unload(context.Background())
	}()
	// Give Unload a moment to flip the state to UNLOADING before we snapshot.
	deadline := time.Now().Add(time.Second)
	for inst.State() != StateUnloading && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	resp := m.Status()
	guard.Release()
	if resp.DrainingCount != 1 {
		t.Fatalf("DrainingCount = %d, want 1", resp.DrainingCount)
	}
}
