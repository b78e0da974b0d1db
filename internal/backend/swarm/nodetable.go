package swarm

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/docker/go-units"

	"github.com/AtosCodex/zoe/internal/platformstats"
)

// systemStatusEntry mirrors one [label, value] pair from the Docker Engine
// API's SystemStatus field for a Swarm manager, the same shape
// api_client.py's info() walks by fixed offset.
type systemStatusEntry struct {
	Label string
	Value string
}

// parseSystemStatus walks a Swarm manager's SystemStatus table by fixed
// offset (spec §4.3): index 0 is the manager role, 1 is placement
// strategy, 2 is active filters, 3 is node count, and then 8 fields per
// node starting at index 4 (grounded in
// zoe_master/backends/old_swarm/api_client.py's info()).
func parseSystemStatus(entries []systemStatusEntry) (platformstats.ClusterStats, error) {
	var cluster platformstats.ClusterStats

	if len(entries) < 4 {
		return cluster, fmt.Errorf("swarm system status too short: %d entries", len(entries))
	}

	cluster.PlacementStrategy = strings.TrimSpace(entries[1].Value)
	cluster.ActiveFilters = splitAndTrim(entries[2].Value, ",")

	nodeCount, err := strconv.Atoi(strings.TrimSpace(entries[3].Value))
	if err != nil {
		return cluster, fmt.Errorf("parsing swarm node count %q: %w", entries[3].Value, err)
	}

	idx := 4
	for n := 0; n < nodeCount; n++ {
		if idx+8 > len(entries) {
			return cluster, fmt.Errorf("swarm system status truncated for node %d", n)
		}

		node := platformstats.NodeStats{
			Name: entries[idx].Label,
		}

		statusField := entries[idx+2].Value
		node.Status = strings.TrimSpace(statusField)

		containersField := strings.TrimSpace(entries[idx+3].Value)
		if fields := strings.Fields(containersField); len(fields) > 0 {
			count, err := strconv.Atoi(fields[0])
			if err == nil {
				node.ContainerCount = count
			}
		}

		cpuField := entries[idx+4].Value
		reservedCores, totalCores, err := splitFraction(cpuField)
		if err == nil {
			node.CoresReserved = reservedCores
			node.CoresTotal = totalCores
		}

		memField := entries[idx+5].Value
		reservedMemStr, totalMemStr, err := splitFractionStrings(memField)
		if err == nil {
			reservedBytes, rerr := units.RAMInBytes(reservedMemStr)
			totalBytes, terr := units.RAMInBytes(totalMemStr)
			if rerr == nil && terr == nil {
				node.MemoryReserved = reservedBytes
				node.MemoryTotal = totalBytes
			}
		}

		node.Labels = splitAndTrim(entries[idx+6].Value, ",")

		cluster.Nodes = append(cluster.Nodes, node)
		cluster.CoresTotal += node.CoresTotal
		cluster.MemoryTotal += node.MemoryTotal
		cluster.ContainerCount += node.ContainerCount

		idx += 8
	}

	return cluster, nil
}

// splitFraction parses a "N / M" field into two float64s (used for CPU
// counts: "2 / 16").
func splitFraction(field string) (float64, float64, error) {
	a, b, err := splitFractionStrings(field)
	if err != nil {
		return 0, 0, err
	}
	av, err := strconv.ParseFloat(strings.TrimSpace(a), 64)
	if err != nil {
		return 0, 0, err
	}
	bv, err := strconv.ParseFloat(strings.TrimSpace(b), 64)
	if err != nil {
		return 0, 0, err
	}
	return av, bv, nil
}

func splitFractionStrings(field string) (string, string, error) {
	parts := strings.SplitN(field, " / ", 2)
	if len(parts) != 2 {
		return "", "", fmt.Errorf("expected a %q separated pair, got %q", " / ", field)
	}
	return strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1]), nil
}

func splitAndTrim(s, sep string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, sep) {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
