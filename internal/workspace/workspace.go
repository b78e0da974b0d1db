// Package workspace resolves the host-path volume a user's workspace maps
// to, grounded in the original filesystem workspace backend
// (zoe_master/workspace/filesystem.py).
package workspace

import (
	"log/slog"
	"os"
	"path/filepath"
)

// Mountpoint is the container-side mount name every workspace volume uses.
const Mountpoint = "workspace"

// HostPathVolume is a volume description pointing at a path on the backend
// host's filesystem, mirroring the original's VolumeDescriptionHostPath.
type HostPathVolume struct {
	Path     string
	Name     string
	ReadOnly bool
}

// FSWorkspace resolves per-user workspace directories under a single base
// path, namespaced by deployment.
type FSWorkspace struct {
	basePath string
	logger   *slog.Logger
}

// New builds an FSWorkspace rooted at basePath/deploymentPath.
func New(basePath, deploymentPath string, logger *slog.Logger) *FSWorkspace {
	return &FSWorkspace{
		basePath: filepath.Join(basePath, deploymentPath),
		logger:   logger,
	}
}

// Exists reports whether a user's workspace directory is present on disk.
func (w *FSWorkspace) Exists(username string) bool {
	_, err := os.Stat(w.GetPath(username))
	return err == nil
}

// GetPath returns the host path of a user's workspace directory.
func (w *FSWorkspace) GetPath(username string) string {
	return filepath.Join(w.basePath, username)
}

// CanBeAttached always returns true: the filesystem workspace backend can
// always be mounted, regardless of user or execution state.
func (w *FSWorkspace) CanBeAttached() bool {
	return true
}

// GetMountpoint returns the container-side mount name workspace volumes use.
func (w *FSWorkspace) GetMountpoint() string {
	return Mountpoint
}

// Get resolves the host-path volume for a user. If the workspace directory
// doesn't exist, or its owning uid doesn't match the user's fs_uid, it logs
// a warning but still returns the volume description: a missing or
// mismatched workspace is not fatal to scheduling (it just won't contain
// the expected data until an operator fixes it).
func (w *FSWorkspace) Get(username string, fsUID int) HostPathVolume {
	path := w.GetPath(username)

	info, err := os.Stat(path)
	if err != nil {
		if w.logger != nil {
			w.logger.Warn("workspace directory does not exist", "user", username, "path", path)
		}
		return HostPathVolume{Path: path, Name: Mountpoint, ReadOnly: false}
	}

	if stUID, ok := ownerUID(info); ok && stUID != fsUID {
		if w.logger != nil {
			w.logger.Warn("workspace owner uid mismatch", "user", username, "path", path, "want_uid", fsUID, "found_uid", stUID)
		}
	}

	return HostPathVolume{Path: path, Name: Mountpoint, ReadOnly: false}
}
