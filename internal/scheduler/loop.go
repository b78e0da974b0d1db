package scheduler

import (
	"context"
	"time"

	"github.com/AtosCodex/zoe/internal/simplatform"
	"github.com/AtosCodex/zoe/internal/state"
	"github.com/AtosCodex/zoe/internal/telemetry"
)

// Run is the main scheduling loop (spec §4.6, "Main loop"). It wakes on an
// explicit Trigger, a one-second ticker, or context cancellation. An empty
// pending queue just recalculates core limits; otherwise it hands off to
// runRound.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(wakeupInterval)
	defer ticker.Stop()

	idleTicks := 0

	for {
		select {
		case <-ctx.Done():
			s.terminationWG.Wait()
			return ctx.Err()
		case <-s.trigger:
			idleTicks = 0
		case <-ticker.C:
			idleTicks++
			if idleTicks < selfTriggerTimeout {
				continue
			}
			idleTicks = 0
		}

		s.mu.Lock()
		empty := len(s.queue) == 0
		s.mu.Unlock()
		if empty {
			s.triggerCoreLimit()
			continue
		}

		s.runRound(ctx)
	}
}

// runRound repeats the batch-placement pass until the pending queue is
// empty or a pass launches nothing (spec §4.6: "inner loop will run until
// no new executions can be started or the queue is empty").
func (s *Scheduler) runRound(ctx context.Context) {
	for {
		start := time.Now()
		launched := s.runBatch(ctx)
		telemetry.SchedulingRoundDuration.Observe(time.Since(start).Seconds())

		s.mu.Lock()
		empty := len(s.queue) == 0
		s.mu.Unlock()

		if empty || !launched {
			return
		}
	}
}

// runBatch pops the entire pending queue, simulates placement for all of
// it against a single platform snapshot, realizes whatever the simulation
// accepted, and returns whether anything was launched this pass
// (spec §4.6b-h).
func (s *Scheduler) runBatch(ctx context.Context) bool {
	now := time.Now()

	s.mu.Lock()
	for _, en := range s.queue {
		refreshSize(en, now)
	}
	s.sortQueueLocked()
	batch := s.queue
	s.queue = nil
	s.mu.Unlock()

	attempt := make([]*entry, 0, len(batch))
	for _, en := range batch {
		if en.exec.TerminationLock.TryLock() {
			attempt = append(attempt, en)
		} else if s.logger != nil {
			s.logger.Debug("dropping execution held by a termination in progress", "execution_id", en.exec.ID)
		}
	}

	if len(attempt) == 0 {
		s.mu.Lock()
		telemetry.QueueLength.Set(float64(len(s.queue)))
		telemetry.RunningLength.Set(float64(len(s.queueRunning)))
		s.mu.Unlock()
		return false
	}

	cluster, err := s.be.PlatformState(ctx)
	if err != nil {
		if s.logger != nil {
			s.logger.Warn("platform_state failed, requeueing batch", "error", err)
		}
		for _, en := range attempt {
			en.exec.TerminationLock.Unlock()
		}
		s.mu.Lock()
		s.queue = append(attempt, s.queue...)
		telemetry.QueueLength.Set(float64(len(s.queue)))
		s.mu.Unlock()
		return false
	}

	sim := simplatform.New(cluster)
	freeResources := sim.AggregatedFreeMemory()

	// Walk candidates in order, accumulating a tentative to-launch list
	// against the same snapshot. Each step clears and reallocates
	// elastics for everyone accepted so far, so the improvement check
	// below sees the batch's aggregate effect rather than one candidate
	// in isolation. The first candidate that fails to improve aggregate
	// free memory is rolled back and the walk stops there.
	var toLaunch []*entry
	for _, candidate := range attempt {
		before := append([]*entry(nil), toLaunch...)

		for _, placed := range toLaunch {
			sim.DeallocateElastic(placed.exec.ID)
		}

		alreadyRunning := state.EssentialServicesRunning(candidate.services)
		canStart := false
		if !alreadyRunning {
			canStart = sim.AllocateEssential(candidate.exec.ID, candidate.services)
		}
		if canStart || alreadyRunning {
			toLaunch = append(toLaunch, candidate)
		}

		for _, placed := range toLaunch {
			sim.AllocateElastic(placed.exec.ID, placed.services)
		}

		currentFree := sim.AggregatedFreeMemory()
		if !s.opts.PlacementImprovementHook(freeResources, currentFree) {
			toLaunch = before
			break
		}
		freeResources = currentFree
	}

	nodeByService := sim.GetServiceAllocation()
	launchedAny := len(toLaunch) > 0

	// remaining tracks every candidate still owed a queue slot and a
	// termination-lock release once the realize step is done with it.
	remaining := make(map[int64]*entry, len(attempt))
	for _, en := range attempt {
		remaining[en.exec.ID] = en
	}

	var promoted []*entry

	for _, candidate := range toLaunch {
		owner, err := s.store.Users().Get(ctx, candidate.exec.OwnerID)
		if err != nil {
			if s.logger != nil {
				s.logger.Warn("failed to load execution owner", "execution_id", candidate.exec.ID, "error", err)
			}
			continue
		}

		if !state.EssentialServicesRunning(candidate.services) {
			outcome := s.startEssential(ctx, candidate, nodeByService, owner)

			switch outcome {
			case launchFatal:
				delete(remaining, candidate.exec.ID)
				candidate.exec.TerminationLock.Unlock()
				if err := s.store.Executions().UpdateStatus(ctx, candidate.exec.ID, state.ExecutionError); err != nil && s.logger != nil {
					s.logger.Warn("failed to record error status", "execution_id", candidate.exec.ID, "error", err)
				}
				continue
			case launchRequeue:
				delete(remaining, candidate.exec.ID)
				candidate.exec.TerminationLock.Unlock()
				s.mu.Lock()
				s.queue = append([]*entry{candidate}, s.queue...)
				s.mu.Unlock()
				continue
			}

			// Essentials are up: the execution is running even though
			// elastics may still be queued (spec §8 scenario A).
			if err := s.store.Executions().UpdateStatus(ctx, candidate.exec.ID, state.ExecutionRunning); err != nil && s.logger != nil {
				s.logger.Warn("failed to record running status", "execution_id", candidate.exec.ID, "error", err)
			}
		}

		s.startElastic(ctx, candidate, nodeByService, owner)

		if err := s.store.Executions().UpdateRunningServicesCount(ctx, candidate.exec.ID, countRunning(candidate.services)); err != nil && s.logger != nil {
			s.logger.Warn("failed to persist running services count", "execution_id", candidate.exec.ID, "error", err)
		}

		if state.AllServicesActive(candidate.services) {
			delete(remaining, candidate.exec.ID)
			candidate.exec.TerminationLock.Unlock()
			promoted = append(promoted, candidate)
		}
	}

	s.triggerCoreLimit()

	// Everything left in remaining (unmatched candidates, plus ones with
	// essentials running but elastics still outstanding) goes back to the
	// head of the pending queue, in its original order, with its lock
	// released.
	leftover := make([]*entry, 0, len(remaining))
	for _, en := range attempt {
		if en, ok := remaining[en.exec.ID]; ok {
			en.exec.TerminationLock.Unlock()
			leftover = append(leftover, en)
		}
	}

	s.mu.Lock()
	s.queueRunning = append(s.queueRunning, promoted...)
	s.queue = append(leftover, s.queue...)
	telemetry.QueueLength.Set(float64(len(s.queue)))
	telemetry.RunningLength.Set(float64(len(s.queueRunning)))
	s.mu.Unlock()

	return launchedAny
}

func countRunning(services []state.Service) int {
	n := 0
	for _, svc := range services {
		if svc.BackendStatus == state.BackendStatusStarted {
			n++
		}
	}
	return n
}
