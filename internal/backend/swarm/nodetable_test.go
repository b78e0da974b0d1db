package swarm

import "testing"

func TestParseSystemStatusOneNode(t *testing.T) {
	entries := []systemStatusEntry{
		{Label: "Role", Value: "primary"},
		{Label: "Strategy", Value: "spread"},
		{Label: "Filters", Value: "health, port, dependency"},
		{Label: "Nodes", Value: "1"},
		{Label: "node-a", Value: "tcp://10.0.0.1:2375"},
		{Label: "ID", Value: "abc123"},
		{Label: "Status", Value: "Healthy"},
		{Label: "Containers", Value: "3 (2 Running, 1 Paused)"},
		{Label: "CPUs", Value: "2 / 16"},
		{Label: "Memory", Value: "4 GiB / 32 GiB"},
		{Label: "Labels", Value: "storagedriver=overlay2, kernelversion=5.10"},
		{Label: "Last update", Value: "2026-01-01T00:00:00Z"},
		{Label: "Docker version", Value: "24.0.7"},
	}

	cluster, err := parseSystemStatus(entries)
	if err != nil {
		t.Fatalf("parseSystemStatus: %v", err)
	}

	if cluster.PlacementStrategy != "spread" {
		t.Fatalf("expected placement strategy 'spread', got %q", cluster.PlacementStrategy)
	}
	if len(cluster.ActiveFilters) != 3 {
		t.Fatalf("expected 3 active filters, got %v", cluster.ActiveFilters)
	}
	if len(cluster.Nodes) != 1 {
		t.Fatalf("expected 1 node, got %d", len(cluster.Nodes))
	}

	n := cluster.Nodes[0]
	if n.Name != "node-a" {
		t.Fatalf("expected node name 'node-a', got %q", n.Name)
	}
	if n.ContainerCount != 3 {
		t.Fatalf("expected container count 3, got %d", n.ContainerCount)
	}
	if n.CoresReserved != 2 || n.CoresTotal != 16 {
		t.Fatalf("expected cores 2/16, got %v/%v", n.CoresReserved, n.CoresTotal)
	}

	wantReserved := int64(4) * 1024 * 1024 * 1024
	wantTotal := int64(32) * 1024 * 1024 * 1024
	if n.MemoryReserved != wantReserved {
		t.Fatalf("expected reserved memory %d bytes, got %d", wantReserved, n.MemoryReserved)
	}
	if n.MemoryTotal != wantTotal {
		t.Fatalf("expected total memory %d bytes, got %d", wantTotal, n.MemoryTotal)
	}
}
