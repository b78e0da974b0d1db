// Package simplatform is the simulated platform (SP): an in-memory clone
// of cluster capacity used to test placement decisions before any backend
// mutation happens (spec §4.4).
package simplatform

import (
	"sort"

	"github.com/AtosCodex/zoe/internal/platformstats"
	"github.com/AtosCodex/zoe/internal/state"
)

// nodeResidual tracks one node's capacity as it's tentatively consumed
// within a single scheduling round.
type nodeResidual struct {
	name        string
	freeCores   float64
	freeMemory  int64
}

// placement records which node a tentatively placed service landed on.
type placement struct {
	serviceID int64
	nodeName  string
	cores     float64
	memory    int64
	elastic   bool
	execID    int64
}

// Platform is a thread-local (one scheduler round) simulation of cluster
// residual capacity, built from a ClusterStats snapshot.
type Platform struct {
	nodes      []nodeResidual
	placements []placement
}

// New builds a Platform from a cluster snapshot. Nodes are kept in
// deterministic order (sorted by name) per spec §4.4's tie-breaking rule.
func New(cluster platformstats.ClusterStats) *Platform {
	nodes := make([]nodeResidual, 0, len(cluster.Nodes))
	for _, n := range cluster.Nodes {
		nodes = append(nodes, nodeResidual{
			name:       n.Name,
			freeCores:  n.FreeCores(),
			freeMemory: n.FreeMemory(),
		})
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].name < nodes[j].name })

	return &Platform{nodes: nodes}
}

// AggregatedFreeMemory sums residual free memory across all nodes.
func (p *Platform) AggregatedFreeMemory() int64 {
	var total int64
	for _, n := range p.nodes {
		total += n.freeMemory
	}
	return total
}

// firstFit finds the first node (in deterministic order) with enough
// residual capacity for the given reservation, and reserves it there.
// Returns false if no node fits.
func (p *Platform) firstFit(serviceID, execID int64, cores float64, memory int64, elastic bool) bool {
	for i := range p.nodes {
		n := &p.nodes[i]
		if n.freeCores >= cores && n.freeMemory >= memory {
			n.freeCores -= cores
			n.freeMemory -= memory
			p.placements = append(p.placements, placement{
				serviceID: serviceID,
				nodeName:  n.name,
				cores:     cores,
				memory:    memory,
				elastic:   elastic,
				execID:    execID,
			})
			return true
		}
	}
	return false
}

func (p *Platform) release(pl placement) {
	for i := range p.nodes {
		if p.nodes[i].name == pl.nodeName {
			p.nodes[i].freeCores += pl.cores
			p.nodes[i].freeMemory += pl.memory
			return
		}
	}
}

// AllocateEssential tries to place every essential service of an execution
// atomically: either all of them fit, or none are kept (spec §4.4).
func (p *Platform) AllocateEssential(execID int64, services []state.Service) bool {
	var placed []placement
	ok := true
	for _, svc := range services {
		if !svc.IsEssential {
			continue
		}
		before := len(p.placements)
		if !p.firstFit(svc.ID, execID, svc.ResourceReservation.Cores.Min, int64(svc.ResourceReservation.Memory.Min), false) {
			ok = false
			break
		}
		placed = append(placed, p.placements[before:]...)
	}

	if !ok {
		// Roll back everything placed so far for this execution's essentials.
		for i := len(placed) - 1; i >= 0; i-- {
			p.release(placed[i])
		}
		p.removePlacements(placed)
		return false
	}
	return true
}

// AllocateElastic attempts to place as many elastic services of an
// execution as fit, one at a time; partial success is retained (spec §4.4).
func (p *Platform) AllocateElastic(execID int64, services []state.Service) int {
	placedCount := 0
	for _, svc := range services {
		if svc.IsEssential {
			continue
		}
		if p.firstFit(svc.ID, execID, svc.ResourceReservation.Cores.Min, int64(svc.ResourceReservation.Memory.Min), true) {
			placedCount++
		}
	}
	return placedCount
}

// DeallocateElastic removes every tentative elastic placement belonging to
// an execution, keeping its essential placements intact.
func (p *Platform) DeallocateElastic(execID int64) {
	var kept []placement
	for _, pl := range p.placements {
		if pl.execID == execID && pl.elastic {
			p.release(pl)
			continue
		}
		kept = append(kept, pl)
	}
	p.placements = kept
}

// GetServiceAllocation returns a map of serviceID to the node it's
// tentatively placed on, for every placed service (essential and elastic).
func (p *Platform) GetServiceAllocation() map[int64]string {
	out := make(map[int64]string, len(p.placements))
	for _, pl := range p.placements {
		out[pl.serviceID] = pl.nodeName
	}
	return out
}

func (p *Platform) removePlacements(remove []placement) {
	if len(remove) == 0 {
		return
	}
	toRemove := make(map[int64]bool, len(remove))
	for _, pl := range remove {
		toRemove[pl.serviceID] = true
	}
	var kept []placement
	for _, pl := range p.placements {
		if toRemove[pl.serviceID] {
			continue
		}
		kept = append(kept, pl)
	}
	p.placements = kept
}
