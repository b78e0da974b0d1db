// Package platformstats holds the pure value types the backend abstraction
// layer returns to describe the state of the underlying cluster: per-node
// resource accounting and the cluster-wide rollup computed from it.
package platformstats

import "time"

// NodeStats describes one cluster node's resource accounting at a point in
// time, as reported by a backend's PlatformState call.
type NodeStats struct {
	Name   string
	Status string

	CoresTotal    float64
	CoresReserved float64
	CoresInUse    float64

	MemoryTotal    int64
	MemoryReserved int64
	MemoryInUse    int64

	ContainerCount int
	Labels         []string
}

// FreeCores is the portion of this node's cores not yet reserved by a
// placed service.
func (n NodeStats) FreeCores() float64 {
	free := n.CoresTotal - n.CoresReserved
	if free < 0 {
		return 0
	}
	return free
}

// FreeMemory is the portion of this node's memory not yet reserved by a
// placed service.
func (n NodeStats) FreeMemory() int64 {
	free := n.MemoryTotal - n.MemoryReserved
	if free < 0 {
		return 0
	}
	return free
}

// ClusterStats is a full snapshot of a backend's cluster: aggregate counts
// plus the per-node breakdown the scheduler and the simulated platform walk
// to make placement decisions.
type ClusterStats struct {
	Timestamp time.Time

	ContainerCount int
	CoresTotal     float64
	MemoryTotal    int64

	PlacementStrategy string
	ActiveFilters     []string

	Nodes []NodeStats
}

// AggregatedFreeMemory sums FreeMemory across every node of the snapshot.
func (c ClusterStats) AggregatedFreeMemory() int64 {
	var total int64
	for _, n := range c.Nodes {
		total += n.FreeMemory()
	}
	return total
}

// AggregatedFreeCores sums FreeCores across every node.
func (c ClusterStats) AggregatedFreeCores() float64 {
	var total float64
	for _, n := range c.Nodes {
		total += n.FreeCores()
	}
	return total
}

// NodeByName returns the node with the given name, or false if no such node
// exists in this snapshot.
func (c ClusterStats) NodeByName(name string) (NodeStats, bool) {
	for _, n := range c.Nodes {
		if n.Name == name {
			return n, true
		}
	}
	return NodeStats{}, false
}
