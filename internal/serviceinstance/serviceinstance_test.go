package serviceinstance

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/AtosCodex/zoe/internal/state"
	"github.com/AtosCodex/zoe/internal/workspace"
)

func TestBuildCapsResourcesAndSetsLabels(t *testing.T) {
	exec := state.Execution{ID: 1, Name: "exec-1"}
	svc := state.Service{
		ID: 2, Name: "master", UniqueName: "exec-1-master", IsEssential: true,
		ResourceReservation: state.ResourceReservation{
			Memory: state.ResourceBound{Min: 1 << 30, Max: 100 << 30},
			Cores:  state.ResourceBound{Min: 1, Max: 64},
		},
	}
	user := state.User{Username: "alice", FSUid: 1000}
	opts := Options{MaxMemoryLimitBytes: 8 << 30, MaxCoreLimit: 4, OverlayNetworkName: "zoe", DeploymentName: "prod", Owner: "alice"}

	si := Build(exec, svc, nil, user, opts)

	if si.MemoryMax != 8<<30 {
		t.Fatalf("expected memory capped to global max, got %v", si.MemoryMax)
	}
	if si.CoresMax != 4 {
		t.Fatalf("expected cores capped to global max, got %v", si.CoresMax)
	}
	if si.Labels["zoe.type"] != "service_essential" {
		t.Fatalf("expected essential label, got %q", si.Labels["zoe.type"])
	}
	if si.Network != "zoe" {
		t.Fatalf("expected default overlay network, got %q", si.Network)
	}
}

func TestBuildInjectsWorkspaceVolume(t *testing.T) {
	dir := t.TempDir()
	ws := workspace.New(dir, "prod", nil)
	if err := os.MkdirAll(filepath.Join(dir, "prod", "alice"), 0o755); err != nil {
		t.Fatalf("creating workspace dir: %v", err)
	}

	exec := state.Execution{ID: 1, Name: "exec-1"}
	svc := state.Service{ID: 2, Name: "master", UniqueName: "exec-1-master"}
	user := state.User{Username: "alice", FSUid: 1000}
	opts := Options{MaxMemoryLimitBytes: 8 << 30, MaxCoreLimit: 4}

	si := Build(exec, svc, ws, user, opts)

	if len(si.Volumes) != 1 {
		t.Fatalf("expected workspace volume injected, got %d volumes", len(si.Volumes))
	}
	if si.Volumes[0].MountPath != workspace.Mountpoint {
		t.Fatalf("expected mount path %q, got %q", workspace.Mountpoint, si.Volumes[0].MountPath)
	}
}
