// Package scheduler is the elastic scheduler (ES): it holds the pending
// and running execution queues, runs the placement loop, coordinates
// asynchronous terminations, and periodically rebalances per-service core
// limits (spec §4.6), grounded in
// zoe_master/scheduler/elastic_scheduler.py. The original's
// threading.Semaphore/threading.Event/daemon-thread primitives are
// translated to buffered channels, goroutines, and context.Context
// (spec §9).
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/AtosCodex/zoe/internal/backend"
	"github.com/AtosCodex/zoe/internal/platformstats"
	"github.com/AtosCodex/zoe/internal/serviceinstance"
	"github.com/AtosCodex/zoe/internal/simplatform"
	"github.com/AtosCodex/zoe/internal/state"
	"github.com/AtosCodex/zoe/internal/telemetry"
	"github.com/AtosCodex/zoe/internal/workspace"
	"github.com/AtosCodex/zoe/internal/zoeerrors"
)

// Policy selects how the pending queue is ordered before each placement
// pass (spec §4.6).
type Policy string

const (
	PolicyFIFO Policy = "FIFO"
	PolicySIZE Policy = "SIZE"
)

// selfTriggerTimeout is the number of idle one-second wakeups after which
// the loop re-triggers itself, to recover from external resource changes
// the backend monitor didn't surface directly (spec §4.6, "Main loop").
const selfTriggerTimeout = 60

// wakeupInterval is how often the main loop wakes up even without an
// explicit trigger.
const wakeupInterval = time.Second

// entry is one execution tracked by the scheduler, carrying the service
// snapshot and progress bookkeeping alongside the persisted record.
type entry struct {
	exec     state.Execution
	services []state.Service
}

// PlacementImprovementHook lets a caller override or observe the
// aggregate-free-memory "did utilization improve" check in the placement
// loop (spec §9, open question 1). The default hook implements the
// behavior exactly as described: stop the candidate walk the first time a
// candidate fails to strictly decrease aggregated free memory.
type PlacementImprovementHook func(beforeFreeMemory, afterFreeMemory int64) (accept bool)

// DefaultPlacementImprovementHook is the hook used when Options doesn't
// supply one.
func DefaultPlacementImprovementHook(before, after int64) bool {
	return after < before
}

// Options configures a Scheduler.
type Options struct {
	Policy                    Policy
	PlacementImprovementHook  PlacementImprovementHook
	OverlayNetworkName        string
	DeploymentName            string
	MaxMemoryLimitBytes       float64
	MaxCoreLimit              float64
}

// Scheduler is the elastic scheduler. A single goroutine (Run) owns queue
// and queueRunning exclusively; all other access goes through the
// exported methods, which serialize via mu.
type Scheduler struct {
	opts   Options
	store  *state.Store
	be     backend.Backend
	ws     *workspace.FSWorkspace
	logger *slog.Logger

	mu          sync.Mutex
	queue       []*entry
	queueRunning []*entry

	trigger          chan struct{}
	coreLimitTrigger chan struct{}

	terminationWG sync.WaitGroup
}

// New validates the requested policy (fatal at construction per spec §4.6)
// and builds a Scheduler.
func New(opts Options, store *state.Store, be backend.Backend, ws *workspace.FSWorkspace, logger *slog.Logger) (*Scheduler, error) {
	if opts.Policy != PolicyFIFO && opts.Policy != PolicySIZE {
		return nil, &zoeerrors.PolicyUnsupported{Policy: string(opts.Policy)}
	}
	if opts.PlacementImprovementHook == nil {
		opts.PlacementImprovementHook = DefaultPlacementImprovementHook
	}

	return &Scheduler{
		opts:             opts,
		store:            store,
		be:               be,
		ws:               ws,
		logger:           logger,
		trigger:          make(chan struct{}, 1),
		coreLimitTrigger: make(chan struct{}, 1),
	}, nil
}

// Seed reseeds the pending/running queues from whatever the state store
// says was in flight before a restart (grounded in the original's
// __init__, which splits previously-running executions on
// all_services_running).
func (s *Scheduler) Seed(ctx context.Context) error {
	for _, status := range []state.ExecutionStatus{state.ExecutionQueued, state.ExecutionStarting, state.ExecutionRunning} {
		execs, err := s.store.Executions().SelectByStatus(ctx, status)
		if err != nil {
			return fmt.Errorf("seeding from status %s: %w", status, err)
		}
		for _, e := range execs {
			services, err := s.store.Services().SelectByExecution(ctx, e.ID)
			if err != nil {
				return fmt.Errorf("loading services for execution %d: %w", e.ID, err)
			}
			en := &entry{exec: e, services: services}

			s.mu.Lock()
			if state.AllServicesActive(services) {
				s.queueRunning = append(s.queueRunning, en)
			} else {
				s.queue = append(s.queue, en)
			}
			s.mu.Unlock()
		}
	}
	return nil
}

// Incoming enqueues a new execution and triggers the scheduler loop
// (spec §5: "incoming(E) observed before trigger() ensures at most one
// full loop round later E is considered").
func (s *Scheduler) Incoming(exec state.Execution, services []state.Service) {
	s.mu.Lock()
	s.queue = append(s.queue, &entry{exec: exec, services: services})
	s.mu.Unlock()
	s.Trigger()
}

// Trigger wakes the main loop up for an immediate pass.
func (s *Scheduler) Trigger() {
	select {
	case s.trigger <- struct{}{}:
	default:
	}
}

// triggerCoreLimit wakes the core-limit adjuster up.
func (s *Scheduler) triggerCoreLimit() {
	select {
	case s.coreLimitTrigger <- struct{}{}:
	default:
	}
}

// Terminate removes an execution from whichever queue holds it and spawns
// an asynchronous worker that tears down its services under the
// execution's termination lock (spec §4.6, "Termination").
func (s *Scheduler) Terminate(ctx context.Context, executionID int64) {
	s.mu.Lock()
	en := s.removeLocked(executionID)
	s.mu.Unlock()

	if en == nil {
		return
	}

	en.exec.ProgressSequence = nil
	s.triggerCoreLimit()

	s.terminationWG.Add(1)
	telemetry.TerminationThreadsCount.Inc()
	go func() {
		defer s.terminationWG.Done()
		defer telemetry.TerminationThreadsCount.Dec()
		s.asyncTerminate(ctx, en)
	}()
}

func (s *Scheduler) removeLocked(executionID int64) *entry {
	for i, en := range s.queue {
		if en.exec.ID == executionID {
			s.queue = append(s.queue[:i], s.queue[i+1:]...)
			return en
		}
	}
	for i, en := range s.queueRunning {
		if en.exec.ID == executionID {
			s.queueRunning = append(s.queueRunning[:i], s.queueRunning[i+1:]...)
			return en
		}
	}
	return nil
}

func (s *Scheduler) asyncTerminate(ctx context.Context, en *entry) {
	en.exec.TerminationLock.Lock()
	defer en.exec.TerminationLock.Unlock()

	if err := s.store.Executions().UpdateStatus(ctx, en.exec.ID, state.ExecutionCleaningUp); err != nil && s.logger != nil {
		s.logger.Warn("failed to record cleaning_up status", "execution_id", en.exec.ID, "error", err)
	}

	for _, svc := range en.services {
		if err := s.be.TerminateService(ctx, svc); err != nil {
			var notFound *zoeerrors.NotFound
			if !isNotFound(err, &notFound) && s.logger != nil {
				s.logger.Warn("terminate_service failed", "execution_id", en.exec.ID, "service", svc.UniqueName, "error", err)
			}
		}
	}

	if err := s.store.Executions().UpdateStatus(ctx, en.exec.ID, state.ExecutionTerminated); err != nil && s.logger != nil {
		s.logger.Warn("failed to record terminated status", "execution_id", en.exec.ID, "error", err)
	}
	telemetry.ExecutionsTerminatedTotal.WithLabelValues(string(state.ExecutionTerminated)).Inc()

	s.Trigger()
}

func isNotFound(err error, target **zoeerrors.NotFound) bool {
	nf, ok := err.(*zoeerrors.NotFound)
	if ok {
		*target = nf
	}
	return ok
}

// Stats reports the scheduler's current queue sizes and the execution ids
// in each queue (spec §4.6, "stats()"). Stats() does not fill in
// TerminationThreadsCount, which stays zero; the in-flight termination
// count is published only through the telemetry.TerminationThreadsCount
// gauge.
type Stats struct {
	QueueLength             int
	RunningLength           int
	TerminationThreadsCount int
	QueueIDs                []int64
	RunningIDs              []int64
}

// Stats returns a snapshot of the scheduler's current state.
func (s *Scheduler) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Stats{QueueLength: len(s.queue), RunningLength: len(s.queueRunning)}
	for _, en := range s.queue {
		st.QueueIDs = append(st.QueueIDs, en.exec.ID)
	}
	for _, en := range s.queueRunning {
		st.RunningIDs = append(st.RunningIDs, en.exec.ID)
	}
	return st
}

// buildServiceInstance is a small adapter shared by the launch helpers.
func (s *Scheduler) buildServiceInstance(exec state.Execution, svc state.Service, owner state.User) serviceinstance.ServiceInstance {
	return serviceinstance.Build(exec, svc, s.ws, owner, serviceinstance.Options{
		MaxMemoryLimitBytes: s.opts.MaxMemoryLimitBytes,
		MaxCoreLimit:        s.opts.MaxCoreLimit,
		OverlayNetworkName:  s.opts.OverlayNetworkName,
		DeploymentName:      s.opts.DeploymentName,
		Owner:               owner.Username,
	})
}

// sortQueueLocked orders the pending queue per the configured policy.
// Caller must hold mu.
func (s *Scheduler) sortQueueLocked() {
	if s.opts.Policy != PolicySIZE {
		return
	}
	sort.SliceStable(s.queue, func(i, j int) bool {
		return s.queue[i].exec.Size < s.queue[j].exec.Size
	})
}

// nodeOrderedNames returns a cluster's node names in deterministic order,
// matching simplatform's tie-breaking rule.
func nodeOrderedNames(cluster platformstats.ClusterStats) []string {
	names := make([]string, 0, len(cluster.Nodes))
	for _, n := range cluster.Nodes {
		names = append(names, n.Name)
	}
	sort.Strings(names)
	return names
}
