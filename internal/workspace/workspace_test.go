package workspace

import (
	"os"
	"path/filepath"
	"testing"
)

func TestGetPathAndExists(t *testing.T) {
	dir := t.TempDir()
	ws := New(dir, "prod", nil)

	if ws.Exists("alice") {
		t.Fatal("expected workspace to not exist yet")
	}

	userDir := filepath.Join(dir, "prod", "alice")
	if err := os.MkdirAll(userDir, 0o755); err != nil {
		t.Fatalf("creating workspace dir: %v", err)
	}

	if !ws.Exists("alice") {
		t.Fatal("expected workspace to exist after creation")
	}

	vol := ws.Get("alice", os.Getuid())
	if vol.Path != userDir {
		t.Fatalf("got path %q want %q", vol.Path, userDir)
	}
	if vol.Name != Mountpoint {
		t.Fatalf("got mount name %q want %q", vol.Name, Mountpoint)
	}
}

func TestGetMissingWorkspaceStillReturnsVolume(t *testing.T) {
	ws := New(t.TempDir(), "prod", nil)
	vol := ws.Get("bob", 1000)
	if vol.Name != Mountpoint {
		t.Fatalf("expected a volume description even when workspace is missing, got %+v", vol)
	}
}
