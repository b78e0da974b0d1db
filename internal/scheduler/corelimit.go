package scheduler

import (
	"context"

	"github.com/AtosCodex/zoe/internal/state"
	"github.com/AtosCodex/zoe/internal/telemetry"
)

// RunCoreLimitAdjuster blocks on coreLimitTrigger and, on each signal,
// grows the core allotment of every running service on a node whose cores
// aren't fully reserved. The adjustment is purely additive: it only raises
// a service's core minimum, never lowers it below what the service already
// reserved (spec §4.6, "Core-limit adjuster"; see DESIGN.md open question
// 3 on why a decrease path was dropped).
func (s *Scheduler) RunCoreLimitAdjuster(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.coreLimitTrigger:
		}

		s.adjustCoreLimits(ctx)
	}
}

func (s *Scheduler) adjustCoreLimits(ctx context.Context) {
	cluster, err := s.be.PlatformState(ctx)
	if err != nil {
		if s.logger != nil {
			s.logger.Warn("platform_state failed during core-limit pass", "error", err)
		}
		return
	}

	telemetry.CoreLimitAdjustmentsTotal.Inc()

	for _, node := range cluster.Nodes {
		if node.CoresReserved >= node.CoresTotal {
			continue
		}

		services, err := s.store.Services().SelectByBackendHost(ctx, node.Name, state.BackendStatusStarted)
		if err != nil {
			if s.logger != nil {
				s.logger.Warn("failed to list node services for core-limit pass", "node", node.Name, "error", err)
			}
			continue
		}
		if len(services) == 0 {
			continue
		}

		slack := (node.CoresTotal - node.CoresReserved) / float64(len(services))
		if slack <= 0 {
			continue
		}

		for _, svc := range services {
			newCores := svc.ResourceReservation.Cores.Min + slack
			if err := s.be.UpdateService(ctx, svc, &newCores, nil); err != nil && s.logger != nil {
				s.logger.Warn("update_service failed during core-limit pass", "service", svc.UniqueName, "error", err)
			}
		}
	}
}
