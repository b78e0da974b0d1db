package scheduler

import (
	"testing"
	"time"

	"github.com/AtosCodex/zoe/internal/state"
)

func TestRefreshSizeIgnoresExecutionsWithoutRunningServices(t *testing.T) {
	en := &entry{exec: state.Execution{Size: 10, ServicesCount: 3, RunningServicesCount: 0}}
	refreshSize(en, time.Now())

	if en.exec.Size != 10 {
		t.Fatalf("expected size unchanged, got %v", en.exec.Size)
	}
}

func TestRefreshSizeDecreasesAsProgressAccumulates(t *testing.T) {
	now := time.Now()
	en := &entry{exec: state.Execution{
		Size:                 100,
		ServicesCount:        2,
		RunningServicesCount: 2,
		LastTimeScheduled:    now,
		OriginalSize:         100,
	}}

	refreshSize(en, now.Add(10*time.Second))
	first := en.exec.Size
	if first >= 100 {
		t.Fatalf("expected size to shrink after a progress tick, got %v", first)
	}

	refreshSize(en, now.Add(20*time.Second))
	second := en.exec.Size
	if second >= first {
		t.Fatalf("expected size to keep shrinking, got %v then %v", first, second)
	}
}

func TestRefreshSizeClampsProgressAtOne(t *testing.T) {
	now := time.Now()
	en := &entry{exec: state.Execution{
		Size:                 100,
		ServicesCount:        1,
		RunningServicesCount: 1,
		LastTimeScheduled:    now,
		OriginalSize:         100,
		ProgressSequence:     []float64{0.9},
	}}

	refreshSize(en, now.Add(1*time.Hour))

	if en.exec.Size < 0 {
		t.Fatalf("size should never go negative, got %v", en.exec.Size)
	}
}
