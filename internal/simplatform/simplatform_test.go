package simplatform

import (
	"testing"

	"github.com/AtosCodex/zoe/internal/platformstats"
	"github.com/AtosCodex/zoe/internal/state"
)

func oneNodeCluster(cores float64, memoryBytes int64) platformstats.ClusterStats {
	return platformstats.ClusterStats{
		Nodes: []platformstats.NodeStats{
			{Name: "node-a", CoresTotal: cores, MemoryTotal: memoryBytes},
		},
	}
}

func essential(id int64, cores float64, memory float64) state.Service {
	return state.Service{
		ID:          id,
		IsEssential: true,
		ResourceReservation: state.ResourceReservation{
			Cores:  state.ResourceBound{Min: cores, Max: cores},
			Memory: state.ResourceBound{Min: memory, Max: memory},
		},
	}
}

func elastic(id int64, cores float64, memory float64) state.Service {
	s := essential(id, cores, memory)
	s.IsEssential = false
	return s
}

func TestAllocateEssentialFitsAtomically(t *testing.T) {
	p := New(oneNodeCluster(16, 32<<30))

	services := []state.Service{essential(1, 2, 8<<30), essential(2, 2, 8<<30)}
	if !p.AllocateEssential(100, services) {
		t.Fatal("expected essential allocation to succeed")
	}

	alloc := p.GetServiceAllocation()
	if alloc[1] != "node-a" || alloc[2] != "node-a" {
		t.Fatalf("expected both services placed on node-a, got %v", alloc)
	}
}

func TestAllocateEssentialTooBigLeavesPlatformUnchanged(t *testing.T) {
	p := New(oneNodeCluster(16, 8<<30))
	before := p.AggregatedFreeMemory()

	services := []state.Service{essential(1, 2, 12<<30)}
	if p.AllocateEssential(100, services) {
		t.Fatal("expected essential allocation to fail: service exceeds node capacity")
	}

	if got := p.AggregatedFreeMemory(); got != before {
		t.Fatalf("expected free memory unchanged after failed allocation, got %d want %d", got, before)
	}
	if len(p.GetServiceAllocation()) != 0 {
		t.Fatal("expected no placements recorded after a failed essential allocation")
	}
}

func TestAggregatedFreeMemoryNonIncreasing(t *testing.T) {
	p := New(oneNodeCluster(16, 32<<30))
	free0 := p.AggregatedFreeMemory()

	p.AllocateEssential(1, []state.Service{essential(1, 2, 8<<30)})
	free1 := p.AggregatedFreeMemory()
	if free1 > free0 {
		t.Fatalf("free memory increased after allocation: %d > %d", free1, free0)
	}

	p.AllocateElastic(1, []state.Service{elastic(2, 1, 4<<30)})
	free2 := p.AggregatedFreeMemory()
	if free2 > free1 {
		t.Fatalf("free memory increased after elastic allocation: %d > %d", free2, free1)
	}
}

func TestDeallocateElasticKeepsEssentials(t *testing.T) {
	p := New(oneNodeCluster(16, 32<<30))
	p.AllocateEssential(1, []state.Service{essential(1, 2, 8<<30)})
	p.AllocateElastic(1, []state.Service{elastic(2, 1, 4<<30)})

	p.DeallocateElastic(1)

	alloc := p.GetServiceAllocation()
	if _, ok := alloc[1]; !ok {
		t.Fatal("expected essential service 1 to remain placed")
	}
	if _, ok := alloc[2]; ok {
		t.Fatal("expected elastic service 2 to be deallocated")
	}
}
