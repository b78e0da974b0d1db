// Package serviceinstance is the service-instance builder (SIB): given an
// Execution, a Service, and an environment-substitution map, it produces a
// backend-neutral ServiceInstance ready to hand to a Backend's
// SpawnService (spec §4.5), grounded in
// zoe_master/backends/service_instance.py.
package serviceinstance

import (
	"fmt"

	"github.com/AtosCodex/zoe/internal/appdesc"
	"github.com/AtosCodex/zoe/internal/state"
	"github.com/AtosCodex/zoe/internal/workspace"
)

// BackendPort is one port a ServiceInstance exposes, addressed by its
// internal container-side number and transport protocol.
type BackendPort struct {
	Number   int
	Protocol string
}

// ServiceInstance is the transient, backend-neutral projection built
// immediately before spawn and discarded afterward (spec §3).
type ServiceInstance struct {
	Name        string
	Hostname    string
	BackendHost string

	MemoryMin, MemoryMax float64
	CoresMin, CoresMax   float64
	ShmMB                int64

	Labels      map[string]string
	Environment []state.EnvVar
	Volumes     []state.Volume
	Command     string
	WorkDir     string
	Image       string
	LoadBalancer bool
	Ports       []BackendPort
	Network     string
}

// Options bounds the global caps and naming conventions the builder
// applies to every instance it builds (spec §3: "capped by global max").
type Options struct {
	MaxMemoryLimitBytes float64
	MaxCoreLimit        float64
	OverlayNetworkName  string
	DeploymentName      string
	Owner               string
}

// Build constructs a ServiceInstance for one service of a running
// execution.
func Build(exec state.Execution, svc state.Service, ws *workspace.FSWorkspace, user state.User, opts Options) ServiceInstance {
	memMax := svc.ResourceReservation.Memory.Max
	if memMax == 0 || memMax > opts.MaxMemoryLimitBytes {
		memMax = opts.MaxMemoryLimitBytes
	}
	coresMax := svc.ResourceReservation.Cores.Max
	if coresMax == 0 || coresMax > opts.MaxCoreLimit {
		coresMax = opts.MaxCoreLimit
	}

	si := ServiceInstance{
		Name:        svc.UniqueName,
		Hostname:    svc.DNSName,
		BackendHost: svc.BackendHost,
		MemoryMin:   svc.ResourceReservation.Memory.Min,
		MemoryMax:   memMax,
		CoresMin:    svc.ResourceReservation.Cores.Min,
		CoresMax:    coresMax,
		ShmMB:       svc.ResourceReservation.ShmMB,
		Command:     svc.Command,
		Image:       svc.Image,
		Network:     svc.Network,
	}
	if si.Network == "" {
		si.Network = opts.OverlayNetworkName
	}

	// The original builds a per-field labels map here and then immediately
	// throws it away in favor of genLabels' output; kept as dead code
	// on purpose (see DESIGN.md open question 2) rather than removed.
	_ = map[string]string{
		"zoe.execution.name": exec.Name,
		"zoe.execution.id":   fmt.Sprintf("%d", exec.ID),
		"zoe.service.name":   svc.Name,
		"zoe.service.id":     fmt.Sprintf("%d", svc.ID),
		"zoe.owner":          opts.Owner,
		"zoe.deployment_name": opts.DeploymentName,
		"zoe.type":           essentialOrElastic(svc.IsEssential),
	}
	si.Labels = genLabels(exec, svc, opts)

	si.Environment = append(append([]state.EnvVar{}, svc.Environment...), genEnvironment(exec, svc)...)
	si.Volumes = genVolumes(svc, ws, user)

	for _, p := range svc.Ports {
		si.Ports = append(si.Ports, BackendPort{Number: p.InternalNumber, Protocol: p.Protocol})
	}

	return si
}

func essentialOrElastic(isEssential bool) string {
	if isEssential {
		return "service_essential"
	}
	return "service_elastic"
}

// genLabels builds the canonical label set every spawned container carries
// (spec §3: "labels include zoe.{execution,service,owner,deployment,type}").
func genLabels(exec state.Execution, svc state.Service, opts Options) map[string]string {
	return map[string]string{
		"zoe.execution.name":  exec.Name,
		"zoe.execution.id":    fmt.Sprintf("%d", exec.ID),
		"zoe.service.name":    svc.Name,
		"zoe.service.id":      fmt.Sprintf("%d", svc.ID),
		"zoe.owner":           opts.Owner,
		"zoe.deployment_name": opts.DeploymentName,
		"zoe.type":            essentialOrElastic(svc.IsEssential),
		"zoe_monitor":         fmt.Sprintf("%t", svc.IsMonitor),
	}
}

// genEnvironment returns the environment variables the scheduler
// contributes on top of whatever the service already specifies (identity
// of the execution/service, for the container's own use).
func genEnvironment(exec state.Execution, svc state.Service) []state.EnvVar {
	return []state.EnvVar{
		{Key: "ZOE_EXECUTION_ID", Value: fmt.Sprintf("%d", exec.ID)},
		{Key: "ZOE_EXECUTION_NAME", Value: exec.Name},
		{Key: "ZOE_SERVICE_NAME", Value: svc.Name},
	}
}

// genVolumes resolves every volume a service needs, injecting the user's
// workspace mount when a filesystem workspace backend is configured and
// the workspace exists.
func genVolumes(svc state.Service, ws *workspace.FSWorkspace, user state.User) []state.Volume {
	volumes := append([]state.Volume{}, svc.Volumes...)

	if ws != nil && ws.Exists(user.Username) {
		vol := ws.Get(user.Username, user.FSUid)
		volumes = append(volumes, state.Volume{
			HostPath:  vol.Path,
			MountPath: vol.Name,
			ReadOnly:  vol.ReadOnly,
		})
	}

	return volumes
}

// ApplySubstitutions rewrites a service's environment and command using the
// per-execution substitution tokens (spec §6), returning a new Service
// value rather than mutating the input.
func ApplySubstitutions(svc state.Service, subs appdesc.Substitutions) state.Service {
	out := svc
	out.Environment = make([]state.EnvVar, len(svc.Environment))
	for i, kv := range svc.Environment {
		out.Environment[i] = state.EnvVar{Key: kv.Key, Value: subs.Apply(kv.Value)}
	}
	out.Command = subs.Apply(svc.Command)
	return out
}
