// Package backend is the backend abstraction layer (BI): a uniform
// capability set implemented by the Kubernetes and Docker Swarm variants,
// translating a ServiceInstance into backend-native calls (spec §4.3).
package backend

import (
	"context"

	"github.com/AtosCodex/zoe/internal/platformstats"
	"github.com/AtosCodex/zoe/internal/serviceinstance"
	"github.com/AtosCodex/zoe/internal/state"
)

// SpawnResult is the outcome of a successful SpawnService call.
type SpawnResult struct {
	BackendID string
	IPAddress string
	// PortMap maps a service instance's internal port number to the
	// externally reachable port the backend assigned.
	PortMap map[int]int
}

// Backend is the capability set every container platform variant
// implements (spec §4.3): `{spawn_service, terminate_service,
// platform_state, update_service, preload_image, node_list,
// list_available_images}`, plus lifecycle hooks for monitor goroutines.
//
// Error contract for SpawnService: a *zoeerrors.NotEnoughResources means
// retry later; any other error is fatal. TerminateService is idempotent —
// a *zoeerrors.NotFound is not an error from the caller's point of view.
type Backend interface {
	// Init starts any monitor goroutines that observe backend events and
	// keep Service.BackendStatus current in the state store.
	Init(ctx context.Context, store *state.Store) error

	// Shutdown stops monitor goroutines cleanly.
	Shutdown(ctx context.Context) error

	// SpawnService synchronously creates the backend object(s) for one
	// service instance and returns its assigned identity.
	SpawnService(ctx context.Context, si serviceinstance.ServiceInstance) (SpawnResult, error)

	// TerminateService removes the backend object(s) for a service,
	// tolerating the case where they're already gone.
	TerminateService(ctx context.Context, svc state.Service) error

	// PlatformState polls the backend for a fresh cluster snapshot.
	PlatformState(ctx context.Context) (platformstats.ClusterStats, error)

	// UpdateService best-effort adjusts a running service's resource
	// reservation. Backends that don't support this log and no-op.
	UpdateService(ctx context.Context, svc state.Service, cores, memory *float64) error

	// PreloadImage asks the backend to pre-pull an image on every node.
	// Returns ErrNotSupported on backends that can't do this.
	PreloadImage(ctx context.Context, image string) error

	// NodeList returns the names of every node the backend currently
	// knows about.
	NodeList(ctx context.Context) ([]string, error)

	// ListAvailableImages returns the images already present on a node.
	// Returns ErrNotSupported on backends that can't report this.
	ListAvailableImages(ctx context.Context, nodeName string) ([]string, error)
}
