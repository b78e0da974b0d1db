// Package kubernetes is the Kubernetes variant of the backend abstraction
// layer: each service becomes a ReplicationController with one replica
// plus a Service object for NodePort forwarding (spec §4.3, grounded in
// zoe_master/backends/kubernetes/backend.py).
package kubernetes

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/watch"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"

	"github.com/AtosCodex/zoe/internal/backend"
	"github.com/AtosCodex/zoe/internal/platformstats"
	"github.com/AtosCodex/zoe/internal/serviceinstance"
	"github.com/AtosCodex/zoe/internal/state"
	"github.com/AtosCodex/zoe/internal/zoeerrors"
)

// Options configures the Kubernetes backend.
type Options struct {
	APIURL    string
	Token     string
	Namespace string
}

// Backend implements backend.Backend against a Kubernetes API server.
// Unlike the original's module-level globals (spec §9, "encapsulate as
// backend-instance fields"), the monitor goroutine's handle lives on the
// struct.
type Backend struct {
	client    kubernetes.Interface
	namespace string
	logger    *slog.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	stopped chan struct{}
}

// New builds a Kubernetes backend from a REST config. Callers that already
// have a kubernetes.Interface (e.g. tests) should construct Backend
// directly with NewFromClient.
func New(opts Options, logger *slog.Logger) (*Backend, error) {
	cfg := &rest.Config{
		Host:        opts.APIURL,
		BearerToken: opts.Token,
	}
	client, err := kubernetes.NewForConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("building kubernetes client: %w", err)
	}
	return NewFromClient(client, opts.Namespace, logger), nil
}

// NewFromClient builds a Backend around an existing client, primarily for
// tests using a fake clientset.
func NewFromClient(client kubernetes.Interface, namespace string, logger *slog.Logger) *Backend {
	if namespace == "" {
		namespace = "default"
	}
	return &Backend{client: client, namespace: namespace, logger: logger}
}

// Init starts a watch-based monitor goroutine that keeps
// Service.BackendStatus current in the state store (spec §4.3).
func (b *Backend) Init(ctx context.Context, store *state.Store) error {
	watchCtx, cancel := context.WithCancel(ctx)
	b.mu.Lock()
	b.cancel = cancel
	b.stopped = make(chan struct{})
	b.mu.Unlock()

	go b.monitor(watchCtx, store)
	return nil
}

// Shutdown stops the monitor goroutine and waits for it to exit.
func (b *Backend) Shutdown(ctx context.Context) error {
	b.mu.Lock()
	cancel := b.cancel
	stopped := b.stopped
	b.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()

	select {
	case <-stopped:
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

func (b *Backend) monitor(ctx context.Context, store *state.Store) {
	defer close(b.stopped)

	for {
		w, err := b.client.CoreV1().Pods(b.namespace).Watch(ctx, metav1.ListOptions{
			LabelSelector: "zoe.managed=true",
		})
		if err != nil {
			if b.logger != nil {
				b.logger.Warn("kubernetes pod watch failed, retrying", "error", err)
			}
			select {
			case <-ctx.Done():
				return
			default:
				continue
			}
		}

		b.consumeEvents(ctx, w, store)

		select {
		case <-ctx.Done():
			return
		default:
		}
	}
}

func (b *Backend) consumeEvents(ctx context.Context, w watch.Interface, store *state.Store) {
	defer w.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.ResultChan():
			if !ok {
				return
			}
			pod, ok := ev.Object.(*corev1.Pod)
			if !ok {
				continue
			}
			b.handlePodEvent(ctx, store, pod)
		}
	}
}

func (b *Backend) handlePodEvent(ctx context.Context, store *state.Store, pod *corev1.Pod) {
	serviceIDLabel, ok := pod.Labels["zoe.service.id"]
	if !ok {
		return
	}
	var serviceID int64
	if _, err := fmt.Sscanf(serviceIDLabel, "%d", &serviceID); err != nil {
		return
	}

	status := podPhaseToBackendStatus(pod.Status.Phase)
	if err := store.Services().UpdateBackendStatus(ctx, serviceID, status, string(pod.UID), pod.Spec.NodeName); err != nil {
		if b.logger != nil {
			b.logger.Warn("failed to record backend status from pod event", "service_id", serviceID, "error", err)
		}
	}
}

func podPhaseToBackendStatus(phase corev1.PodPhase) state.BackendStatus {
	switch phase {
	case corev1.PodRunning:
		return state.BackendStatusStarted
	case corev1.PodPending:
		return state.BackendStatusStart
	case corev1.PodFailed:
		return state.BackendStatusDie
	case corev1.PodSucceeded:
		return state.BackendStatusDestroy
	default:
		return state.BackendStatusUndefined
	}
}

// SpawnService creates a ReplicationController (1 replica) and a Service
// object for NodePort forwarding.
func (b *Backend) SpawnService(ctx context.Context, si serviceinstance.ServiceInstance) (backend.SpawnResult, error) {
	rc := b.buildReplicationController(si)
	if _, err := b.client.CoreV1().ReplicationControllers(b.namespace).Create(ctx, rc, metav1.CreateOptions{}); err != nil {
		if apierrors.IsForbidden(err) || apierrors.IsConflict(err) {
			return backend.SpawnResult{}, &zoeerrors.NotEnoughResources{Reason: err.Error()}
		}
		return backend.SpawnResult{}, &zoeerrors.BackendFatal{Reason: fmt.Sprintf("creating replication controller: %v", err)}
	}

	svc := b.buildService(si)
	created, err := b.client.CoreV1().Services(b.namespace).Create(ctx, svc, metav1.CreateOptions{})
	if err != nil {
		_ = b.client.CoreV1().ReplicationControllers(b.namespace).Delete(ctx, rc.Name, metav1.DeleteOptions{})
		return backend.SpawnResult{}, &zoeerrors.BackendFatal{Reason: fmt.Sprintf("creating service: %v", err)}
	}

	ports := make(map[int]int, len(created.Spec.Ports))
	for _, p := range created.Spec.Ports {
		ports[int(p.Port)] = int(p.NodePort)
	}

	return backend.SpawnResult{
		BackendID: string(created.UID),
		IPAddress: created.Spec.ClusterIP,
		PortMap:   ports,
	}, nil
}

func (b *Backend) buildReplicationController(si serviceinstance.ServiceInstance) *corev1.ReplicationController {
	replicas := int32(1)
	env := make([]corev1.EnvVar, 0, len(si.Environment))
	for _, kv := range si.Environment {
		env = append(env, corev1.EnvVar{Name: kv.Key, Value: kv.Value})
	}

	container := corev1.Container{
		Name:  si.Name,
		Image: si.Image,
		Env:   env,
	}
	if si.Command != "" {
		container.Command = []string{"/bin/sh", "-c", si.Command}
	}

	return &corev1.ReplicationController{
		ObjectMeta: metav1.ObjectMeta{
			Name:      si.Name,
			Labels:    si.Labels,
			Namespace: b.namespace,
		},
		Spec: corev1.ReplicationControllerSpec{
			Replicas: &replicas,
			Selector: map[string]string{"zoe.service.name": si.Name},
			Template: &corev1.PodTemplateSpec{
				ObjectMeta: metav1.ObjectMeta{
					Labels: mergeLabels(si.Labels, map[string]string{
						"zoe.managed":      "true",
						"zoe.service.name": si.Name,
					}),
				},
				Spec: corev1.PodSpec{
					Containers: []corev1.Container{container},
				},
			},
		},
	}
}

func (b *Backend) buildService(si serviceinstance.ServiceInstance) *corev1.Service {
	ports := make([]corev1.ServicePort, 0, len(si.Ports))
	for i, p := range si.Ports {
		ports = append(ports, corev1.ServicePort{
			Name:     fmt.Sprintf("p%d", i),
			Port:     int32(p.Number),
			Protocol: corev1.Protocol(protoUpper(p.Protocol)),
		})
	}

	return &corev1.Service{
		ObjectMeta: metav1.ObjectMeta{
			Name:      si.Name,
			Namespace: b.namespace,
			Labels:    si.Labels,
		},
		Spec: corev1.ServiceSpec{
			Type:     corev1.ServiceTypeNodePort,
			Selector: map[string]string{"zoe.service.name": si.Name},
			Ports:    ports,
		},
	}
}

func protoUpper(p string) string {
	switch p {
	case "udp", "UDP":
		return "UDP"
	default:
		return "TCP"
	}
}

func mergeLabels(a, b map[string]string) map[string]string {
	out := make(map[string]string, len(a)+len(b))
	for k, v := range a {
		out[k] = v
	}
	for k, v := range b {
		out[k] = v
	}
	return out
}

// TerminateService deletes the ReplicationController and Service for a
// service, tolerating the case where they're already gone.
func (b *Backend) TerminateService(ctx context.Context, svc state.Service) error {
	if err := b.client.CoreV1().ReplicationControllers(b.namespace).Delete(ctx, svc.UniqueName, metav1.DeleteOptions{}); err != nil && !apierrors.IsNotFound(err) {
		return fmt.Errorf("deleting replication controller %s: %w", svc.UniqueName, err)
	}
	if err := b.client.CoreV1().Services(b.namespace).Delete(ctx, svc.UniqueName, metav1.DeleteOptions{}); err != nil && !apierrors.IsNotFound(err) {
		return fmt.Errorf("deleting service %s: %w", svc.UniqueName, err)
	}
	return nil
}

// PlatformState polls node capacity from the Kubernetes API. Like the
// original (which sets memory_in_use = memory_reserved because Kubernetes
// doesn't expose live usage without metrics-server), reservation is used as
// a stand-in for in-use.
func (b *Backend) PlatformState(ctx context.Context) (platformstats.ClusterStats, error) {
	nodes, err := b.client.CoreV1().Nodes().List(ctx, metav1.ListOptions{})
	if err != nil {
		return platformstats.ClusterStats{}, &zoeerrors.BackendUnavailable{Reason: err.Error()}
	}

	pods, err := b.client.CoreV1().Pods(b.namespace).List(ctx, metav1.ListOptions{})
	if err != nil {
		return platformstats.ClusterStats{}, &zoeerrors.BackendUnavailable{Reason: err.Error()}
	}

	reservedByNode := map[string]platformstats.NodeStats{}
	for _, pod := range pods.Items {
		if pod.Spec.NodeName == "" {
			continue
		}
		agg := reservedByNode[pod.Spec.NodeName]
		for _, c := range pod.Spec.Containers {
			if cpu := c.Resources.Requests.Cpu(); cpu != nil {
				agg.CoresReserved += cpu.AsApproximateFloat64()
			}
			if mem := c.Resources.Requests.Memory(); mem != nil {
				agg.MemoryReserved += mem.Value()
			}
		}
		agg.ContainerCount++
		reservedByNode[pod.Spec.NodeName] = agg
	}

	var cluster platformstats.ClusterStats
	for _, n := range nodes.Items {
		stats := platformstats.NodeStats{
			Name:           n.Name,
			Status:         nodeStatus(n),
			CoresTotal:     n.Status.Capacity.Cpu().AsApproximateFloat64(),
			MemoryTotal:    n.Status.Capacity.Memory().Value(),
			ContainerCount: reservedByNode[n.Name].ContainerCount,
			CoresReserved:  reservedByNode[n.Name].CoresReserved,
			MemoryReserved: reservedByNode[n.Name].MemoryReserved,
		}
		stats.CoresInUse = stats.CoresReserved
		stats.MemoryInUse = stats.MemoryReserved

		cluster.Nodes = append(cluster.Nodes, stats)
		cluster.CoresTotal += stats.CoresTotal
		cluster.MemoryTotal += stats.MemoryTotal
		cluster.ContainerCount += stats.ContainerCount
	}

	return cluster, nil
}

func nodeStatus(n corev1.Node) string {
	for _, c := range n.Status.Conditions {
		if c.Type == corev1.NodeReady {
			if c.Status == corev1.ConditionTrue {
				return "ready"
			}
			return "not-ready"
		}
	}
	return "unknown"
}

// UpdateService is a no-op on Kubernetes: reservation changes for a
// running ReplicationController require a pod restart, which the original
// backend explicitly does not attempt (spec §4.3: "backends that do not
// support it must log and no-op without raising").
func (b *Backend) UpdateService(ctx context.Context, svc state.Service, cores, memory *float64) error {
	if b.logger != nil {
		b.logger.Info("reservation update not implemented in the kubernetes backend", "service", svc.UniqueName)
	}
	return nil
}

// PreloadImage is not implemented on this backend.
func (b *Backend) PreloadImage(ctx context.Context, image string) error {
	return backend.ErrNotSupported
}

// NodeList returns the names of every node the cluster currently has.
func (b *Backend) NodeList(ctx context.Context) ([]string, error) {
	nodes, err := b.client.CoreV1().Nodes().List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, &zoeerrors.BackendUnavailable{Reason: err.Error()}
	}
	names := make([]string, 0, len(nodes.Items))
	for _, n := range nodes.Items {
		names = append(names, n.Name)
	}
	return names, nil
}

// ListAvailableImages is not implemented on this backend: Kubernetes
// doesn't expose per-node image inventory through the core API.
func (b *Backend) ListAvailableImages(ctx context.Context, nodeName string) ([]string, error) {
	return nil, backend.ErrNotSupported
}
