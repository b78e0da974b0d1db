package scheduler

import (
	"context"

	"github.com/AtosCodex/zoe/internal/state"
	"github.com/AtosCodex/zoe/internal/telemetry"
	"github.com/AtosCodex/zoe/internal/zoeerrors"
)

// launchOutcome is the result of attempting to start an execution's
// essential services (spec §4.6, "start_essential").
type launchOutcome int

const (
	launchOK launchOutcome = iota
	launchRequeue
	launchFatal
)

// startEssential spawns every essential service of an execution that
// hasn't already been spawned, via the backend. Any RetryLater failure
// requeues the whole execution; any other failure is fatal and tears down
// whatever was already spawned for it in this attempt (spec §4.6).
func (s *Scheduler) startEssential(ctx context.Context, en *entry, nodeByService map[int64]string, owner state.User) launchOutcome {
	var spawned []state.Service

	for i := range en.services {
		svc := &en.services[i]
		if !svc.IsEssential || svc.BackendStatus == state.BackendStatusStarted || svc.BackendStatus == state.BackendStatusStart {
			continue
		}

		si := s.buildServiceInstance(en.exec, *svc, owner)
		svc.BackendHost = nodeByService[svc.ID]

		result, err := s.be.SpawnService(ctx, si)
		if err != nil {
			if _, ok := err.(*zoeerrors.NotEnoughResources); ok {
				telemetry.SpawnFailuresTotal.WithLabelValues("retry").Inc()
				s.teardownSpawned(ctx, spawned)
				return launchRequeue
			}
			telemetry.SpawnFailuresTotal.WithLabelValues("fatal").Inc()
			s.teardownSpawned(ctx, spawned)
			s.teardownSpawned(ctx, append([]state.Service{}, en.services...))
			return launchFatal
		}

		svc.BackendID = result.BackendID
		svc.BackendStatus = state.BackendStatusStart
		if err := s.store.Services().UpdateBackendStatus(ctx, svc.ID, svc.BackendStatus, svc.BackendID, svc.BackendHost); err != nil && s.logger != nil {
			s.logger.Warn("failed to persist backend status", "service", svc.UniqueName, "error", err)
		}
		telemetry.ServicesSpawnedTotal.WithLabelValues("essential").Inc()
		spawned = append(spawned, *svc)
	}

	return launchOK
}

// startElastic spawns as many not-yet-spawned elastic services as were
// tentatively placed. Elastic failures never mark the execution fatal;
// the service is left in error state and the loop continues (spec §4.6).
func (s *Scheduler) startElastic(ctx context.Context, en *entry, nodeByService map[int64]string, owner state.User) {
	for i := range en.services {
		svc := &en.services[i]
		if svc.IsEssential || svc.BackendStatus == state.BackendStatusStarted || svc.BackendStatus == state.BackendStatusStart {
			continue
		}

		node, placed := nodeByService[svc.ID]
		if !placed {
			continue
		}

		si := s.buildServiceInstance(en.exec, *svc, owner)
		svc.BackendHost = node

		result, err := s.be.SpawnService(ctx, si)
		if err != nil {
			telemetry.SpawnFailuresTotal.WithLabelValues("elastic").Inc()
			svc.BackendStatus = state.BackendStatusDie
			if uerr := s.store.Services().UpdateBackendStatus(ctx, svc.ID, svc.BackendStatus, "", ""); uerr != nil && s.logger != nil {
				s.logger.Warn("failed to persist elastic service failure", "service", svc.UniqueName, "error", uerr)
			}
			continue
		}

		svc.BackendID = result.BackendID
		svc.BackendStatus = state.BackendStatusStart
		if err := s.store.Services().UpdateBackendStatus(ctx, svc.ID, svc.BackendStatus, svc.BackendID, svc.BackendHost); err != nil && s.logger != nil {
			s.logger.Warn("failed to persist backend status", "service", svc.UniqueName, "error", err)
		}
		telemetry.ServicesSpawnedTotal.WithLabelValues("elastic").Inc()
	}
}

func (s *Scheduler) teardownSpawned(ctx context.Context, spawned []state.Service) {
	for _, svc := range spawned {
		if err := s.be.TerminateService(ctx, svc); err != nil && s.logger != nil {
			s.logger.Warn("failed to tear down sibling service after fatal spawn", "service", svc.UniqueName, "error", err)
		}
	}
}
