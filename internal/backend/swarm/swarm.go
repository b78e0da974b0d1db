// Package swarm is the Docker Swarm variant of the backend abstraction
// layer: one container per service, with explicit host-config (memory
// limits, port bindings, log driver, network mode, volume binds, labels),
// grounded in zoe_master/backends/old_swarm/{backend.py,api_client.py}.
package swarm

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/events"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/docker/docker/errdefs"
	"github.com/docker/go-connections/nat"

	"github.com/AtosCodex/zoe/internal/backend"
	"github.com/AtosCodex/zoe/internal/platformstats"
	"github.com/AtosCodex/zoe/internal/serviceinstance"
	"github.com/AtosCodex/zoe/internal/state"
	"github.com/AtosCodex/zoe/internal/zoeerrors"
)

// terminateRetries matches the original's fixed retry count for
// terminate/kill calls against a flaky manager (spec §7: "terminate
// retries 5x with short backoff on read-timeout").
const terminateRetries = 5

// Options configures the Swarm backend.
type Options struct {
	ManagerURL  string
	ZKLeaderPath string
	GELFAddress string
}

// Backend implements backend.Backend against a Docker Swarm manager's
// Engine API.
type Backend struct {
	cli         *client.Client
	gelfAddress string
	logger      *slog.Logger

	cancel  context.CancelFunc
	stopped chan struct{}
}

// New resolves the configured manager endpoint (plain URL, zk://, or
// consul://) and builds a Backend around it.
func New(opts Options, logger *slog.Logger) (*Backend, error) {
	managerURL, err := ResolveManager(opts.ManagerURL, opts.ZKLeaderPath)
	if err != nil {
		return nil, fmt.Errorf("resolving swarm manager: %w", err)
	}

	cli, err := client.NewClientWithOpts(
		client.WithHost(managerURL),
		client.WithAPIVersionNegotiation(),
	)
	if err != nil {
		return nil, fmt.Errorf("creating docker client: %w", err)
	}

	return &Backend{cli: cli, gelfAddress: opts.GELFAddress, logger: logger}, nil
}

// Init starts a goroutine consuming the Engine API's event stream, keeping
// Service.BackendStatus current (spec §4.3).
func (b *Backend) Init(ctx context.Context, store *state.Store) error {
	eventCtx, cancel := context.WithCancel(ctx)
	b.cancel = cancel
	b.stopped = make(chan struct{})

	go b.eventListener(eventCtx, store)
	return nil
}

// Shutdown stops the event listener goroutine.
func (b *Backend) Shutdown(ctx context.Context) error {
	if b.cancel == nil {
		return nil
	}
	b.cancel()
	select {
	case <-b.stopped:
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

// eventListener subscribes to the Engine API's event stream and
// re-subscribes on protocol errors, matching api_client.py's
// event_listener loop.
func (b *Backend) eventListener(ctx context.Context, store *state.Store) {
	defer close(b.stopped)

	for {
		msgs, errs := b.cli.Events(ctx, events.ListOptions{
			Filters: filters.NewArgs(filters.Arg("label", "zoe.managed=true")),
		})

		drained := b.drainEvents(ctx, store, msgs, errs)
		if !drained {
			return
		}
	}
}

func (b *Backend) drainEvents(ctx context.Context, store *state.Store, msgs <-chan events.Message, errs <-chan error) bool {
	for {
		select {
		case <-ctx.Done():
			return false
		case err, ok := <-errs:
			if !ok {
				return true
			}
			if err != nil && err != io.EOF {
				if b.logger != nil {
					b.logger.Warn("docker event stream error, resubscribing", "error", err)
				}
				return true
			}
		case msg, ok := <-msgs:
			if !ok {
				return true
			}
			b.handleContainerEvent(ctx, store, msg)
		}
	}
}

func (b *Backend) handleContainerEvent(ctx context.Context, store *state.Store, msg events.Message) {
	serviceIDLabel, ok := msg.Actor.Attributes["zoe.service.id"]
	if !ok {
		return
	}
	var serviceID int64
	if _, err := fmt.Sscanf(serviceIDLabel, "%d", &serviceID); err != nil {
		return
	}

	status := dockerActionToBackendStatus(string(msg.Action))
	if status == state.BackendStatusUndefined {
		return
	}

	if err := store.Services().UpdateBackendStatus(ctx, serviceID, status, msg.Actor.ID, ""); err != nil {
		if b.logger != nil {
			b.logger.Warn("failed to record backend status from docker event", "service_id", serviceID, "error", err)
		}
	}
}

func dockerActionToBackendStatus(action string) state.BackendStatus {
	switch action {
	case "start":
		return state.BackendStatusStarted
	case "create":
		return state.BackendStatusStart
	case "die", "kill", "oom":
		return state.BackendStatusDie
	case "destroy":
		return state.BackendStatusDestroy
	default:
		return state.BackendStatusUndefined
	}
}

// SpawnService creates and starts a container with explicit host-config
// built from the service instance (spec §4.3).
func (b *Backend) SpawnService(ctx context.Context, si serviceinstance.ServiceInstance) (backend.SpawnResult, error) {
	config := b.buildContainerConfig(si)
	hostConfig := b.buildHostConfig(si)
	netConfig := &network.NetworkingConfig{}

	created, err := b.cli.ContainerCreate(ctx, config, hostConfig, netConfig, nil, si.Name)
	if err != nil {
		if isNoResourcesError(err) {
			return backend.SpawnResult{}, &zoeerrors.NotEnoughResources{Reason: err.Error()}
		}
		return backend.SpawnResult{}, &zoeerrors.BackendFatal{Reason: fmt.Sprintf("creating container: %v", err)}
	}

	if err := b.cli.ContainerStart(ctx, created.ID, container.StartOptions{}); err != nil {
		_ = b.cli.ContainerRemove(ctx, created.ID, container.RemoveOptions{Force: true})
		return backend.SpawnResult{}, &zoeerrors.BackendFatal{Reason: fmt.Sprintf("starting container: %v", err)}
	}

	inspect, err := b.cli.ContainerInspect(ctx, created.ID)
	if err != nil {
		return backend.SpawnResult{}, &zoeerrors.BackendFatal{Reason: fmt.Sprintf("inspecting container: %v", err)}
	}

	ports := map[int]int{}
	ipAddress := ""
	if inspect.NetworkSettings != nil {
		for netName, net := range inspect.NetworkSettings.Networks {
			if net.IPAddress != "" {
				ipAddress = net.IPAddress
			}
			_ = netName
		}
		for portSpec, bindings := range inspect.NetworkSettings.Ports {
			if len(bindings) == 0 {
				continue
			}
			var internal int
			fmt.Sscanf(string(portSpec), "%d", &internal)
			var external int
			fmt.Sscanf(bindings[0].HostPort, "%d", &external)
			ports[internal] = external
		}
	}

	return backend.SpawnResult{
		BackendID: created.ID,
		IPAddress: ipAddress,
		PortMap:   ports,
	}, nil
}

func isNoResourcesError(err error) bool {
	return strings.Contains(err.Error(), "no resources available to schedule container")
}

func (b *Backend) buildContainerConfig(si serviceinstance.ServiceInstance) *container.Config {
	env := make([]string, 0, len(si.Environment))
	for _, kv := range si.Environment {
		env = append(env, fmt.Sprintf("%s=%s", kv.Key, kv.Value))
	}

	exposed := nat.PortSet{}
	for _, p := range si.Ports {
		exposed[nat.Port(fmt.Sprintf("%d/%s", p.Number, p.Protocol))] = struct{}{}
	}

	cfg := &container.Config{
		Image:        si.Image,
		Hostname:     si.Hostname,
		Env:          env,
		Labels:       si.Labels,
		ExposedPorts: exposed,
	}
	if si.Command != "" {
		cfg.Cmd = []string{"/bin/sh", "-c", si.Command}
	}
	if si.WorkDir != "" {
		cfg.WorkingDir = si.WorkDir
	}
	return cfg
}

func (b *Backend) buildHostConfig(si serviceinstance.ServiceInstance) *container.HostConfig {
	portBindings := nat.PortMap{}
	for _, p := range si.Ports {
		portBindings[nat.Port(fmt.Sprintf("%d/%s", p.Number, p.Protocol))] = []nat.PortBinding{{}}
	}

	binds := make([]string, 0, len(si.Volumes))
	for _, v := range si.Volumes {
		mode := "rw"
		if v.ReadOnly {
			mode = "ro"
		}
		binds = append(binds, fmt.Sprintf("%s:%s:%s", v.HostPath, v.MountPath, mode))
	}

	logConfig := container.LogConfig{Type: "json-file"}
	if b.gelfAddress != "" {
		labelKeys := make([]string, 0, len(si.Labels))
		for k := range si.Labels {
			labelKeys = append(labelKeys, k)
		}
		logConfig = container.LogConfig{
			Type: "gelf",
			Config: map[string]string{
				"gelf-address": b.gelfAddress,
				"labels":       strings.Join(labelKeys, ","),
			},
		}
	}

	memLimit := int64(si.MemoryMax)

	return &container.HostConfig{
		Binds:         binds,
		PortBindings:  portBindings,
		Memory:        memLimit,
		MemorySwap:    memLimit,
		NetworkMode:   container.NetworkMode(si.Network),
		LogConfig:     logConfig,
		RestartPolicy: container.RestartPolicy{Name: container.RestartPolicyDisabled},
		ShmSize:       si.ShmMB * 1024 * 1024,
	}
}

// TerminateService stops and removes a container by its backend id,
// retrying a fixed number of times and tolerating the already-gone case
// (spec §4.3, §7).
func (b *Backend) TerminateService(ctx context.Context, svc state.Service) error {
	if svc.BackendID == "" {
		return nil
	}

	var lastErr error
	for attempt := 0; attempt < terminateRetries; attempt++ {
		err := b.cli.ContainerRemove(ctx, svc.BackendID, container.RemoveOptions{Force: true})
		if err == nil {
			return nil
		}
		if errdefs.IsNotFound(err) {
			if b.logger != nil {
				b.logger.Debug("cannot remove a non-existent service", "backend_id", svc.BackendID)
			}
			return nil
		}
		lastErr = err
		time.Sleep(100 * time.Millisecond)
	}

	return fmt.Errorf("terminating container %s after %d attempts: %w", svc.BackendID, terminateRetries, lastErr)
}

// PlatformState polls the Swarm manager's Info call and parses its
// SystemStatus table into a ClusterStats snapshot.
func (b *Backend) PlatformState(ctx context.Context) (platformstats.ClusterStats, error) {
	info, err := b.cli.Info(ctx)
	if err != nil {
		return platformstats.ClusterStats{}, &zoeerrors.BackendUnavailable{Reason: err.Error()}
	}

	entries := make([]systemStatusEntry, 0, len(info.SystemStatus))
	for _, kv := range info.SystemStatus {
		if len(kv) < 2 {
			continue
		}
		entries = append(entries, systemStatusEntry{Label: kv[0], Value: kv[1]})
	}

	cluster, err := parseSystemStatus(entries)
	if err != nil {
		return platformstats.ClusterStats{}, fmt.Errorf("parsing swarm system status: %w", err)
	}

	cluster.ContainerCount = info.Containers
	if cluster.CoresTotal == 0 {
		cluster.CoresTotal = float64(info.NCPU)
	}
	if cluster.MemoryTotal == 0 {
		cluster.MemoryTotal = info.MemTotal
	}

	for i := range cluster.Nodes {
		cluster.Nodes[i].MemoryInUse = cluster.Nodes[i].MemoryReserved
		cluster.Nodes[i].CoresInUse = cluster.Nodes[i].CoresReserved
	}

	return cluster, nil
}

// UpdateService is a no-op on Swarm in this implementation: the original
// old_swarm backend has no reservation-update RPC either, so this follows
// the same "log and no-op" contract as the Kubernetes variant (spec §4.3).
func (b *Backend) UpdateService(ctx context.Context, svc state.Service, cores, memory *float64) error {
	if b.logger != nil {
		b.logger.Info("reservation update not implemented in the swarm backend", "service", svc.UniqueName)
	}
	return nil
}

// PreloadImage pulls an image on the manager; Swarm schedules the pull
// across the cluster.
func (b *Backend) PreloadImage(ctx context.Context, imageRef string) error {
	rc, err := b.cli.ImagePull(ctx, imageRef, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("pulling image %s: %w", imageRef, err)
	}
	defer rc.Close()
	_, err = io.Copy(io.Discard, rc)
	return err
}

// NodeList returns node names parsed from the manager's system status
// table.
func (b *Backend) NodeList(ctx context.Context) ([]string, error) {
	cluster, err := b.PlatformState(ctx)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(cluster.Nodes))
	for _, n := range cluster.Nodes {
		names = append(names, n.Name)
	}
	return names, nil
}

// ListAvailableImages is not implemented: the Swarm manager's Info call
// doesn't report per-node image inventory.
func (b *Backend) ListAvailableImages(ctx context.Context, nodeName string) ([]string, error) {
	return nil, backend.ErrNotSupported
}
