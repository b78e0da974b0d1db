package scheduler

import (
	"testing"

	"github.com/AtosCodex/zoe/internal/state"
	"github.com/AtosCodex/zoe/internal/zoeerrors"
)

// Full placement/launch rounds require a live Postgres-backed Store and a
// real (or fake network) Backend; these exercise the pure, in-process logic
// that the rest of the package is built on.

func TestNewRejectsUnsupportedPolicy(t *testing.T) {
	_, err := New(Options{Policy: "BOGUS"}, nil, nil, nil, nil)
	var perr *zoeerrors.PolicyUnsupported
	if !asPolicyUnsupported(err, &perr) {
		t.Fatalf("expected *zoeerrors.PolicyUnsupported, got %v", err)
	}
}

func TestNewFillsDefaultPlacementHook(t *testing.T) {
	s, err := New(Options{Policy: PolicyFIFO}, nil, nil, nil, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if s.opts.PlacementImprovementHook == nil {
		t.Fatal("expected default placement hook to be set")
	}
	if !s.opts.PlacementImprovementHook(100, 50) {
		t.Fatal("expected default hook to accept a strict decrease")
	}
	if s.opts.PlacementImprovementHook(100, 100) {
		t.Fatal("expected default hook to reject a non-decrease")
	}
}

func TestSortQueueLockedOrdersBySizeUnderSizePolicy(t *testing.T) {
	s := &Scheduler{opts: Options{Policy: PolicySIZE}}
	s.queue = []*entry{
		{exec: state.Execution{ID: 1, Size: 30}},
		{exec: state.Execution{ID: 2, Size: 10}},
		{exec: state.Execution{ID: 3, Size: 20}},
	}

	s.sortQueueLocked()

	want := []int64{2, 3, 1}
	for i, id := range want {
		if s.queue[i].exec.ID != id {
			t.Fatalf("position %d: expected execution %d, got %d", i, id, s.queue[i].exec.ID)
		}
	}
}

func TestSortQueueLockedLeavesFIFOUntouched(t *testing.T) {
	s := &Scheduler{opts: Options{Policy: PolicyFIFO}}
	s.queue = []*entry{
		{exec: state.Execution{ID: 1, Size: 30}},
		{exec: state.Execution{ID: 2, Size: 10}},
	}

	s.sortQueueLocked()

	if s.queue[0].exec.ID != 1 || s.queue[1].exec.ID != 2 {
		t.Fatal("FIFO policy must not reorder the queue")
	}
}

func TestRemoveLockedFindsExecutionInEitherQueue(t *testing.T) {
	s := &Scheduler{}
	pending := &entry{exec: state.Execution{ID: 1}}
	running := &entry{exec: state.Execution{ID: 2}}
	s.queue = []*entry{pending}
	s.queueRunning = []*entry{running}

	found := s.removeLocked(2)
	if found != running {
		t.Fatalf("expected to find the running entry, got %v", found)
	}
	if len(s.queueRunning) != 0 {
		t.Fatal("expected running queue to shrink")
	}

	found = s.removeLocked(1)
	if found != pending {
		t.Fatalf("expected to find the pending entry, got %v", found)
	}
	if len(s.queue) != 0 {
		t.Fatal("expected pending queue to shrink")
	}

	if s.removeLocked(99) != nil {
		t.Fatal("expected nil for an unknown execution id")
	}
}

func TestStatsReportsQueueShapes(t *testing.T) {
	s := &Scheduler{}
	s.queue = []*entry{{exec: state.Execution{ID: 1}}}
	s.queueRunning = []*entry{{exec: state.Execution{ID: 2}}, {exec: state.Execution{ID: 3}}}

	st := s.Stats()
	if st.QueueLength != 1 || st.RunningLength != 2 {
		t.Fatalf("unexpected stats: %+v", st)
	}
	if len(st.QueueIDs) != 1 || st.QueueIDs[0] != 1 {
		t.Fatalf("unexpected queue ids: %v", st.QueueIDs)
	}
	if len(st.RunningIDs) != 2 {
		t.Fatalf("unexpected running ids: %v", st.RunningIDs)
	}
}

func TestCountRunningCountsOnlyStartedServices(t *testing.T) {
	services := []state.Service{
		{BackendStatus: state.BackendStatusStarted},
		{BackendStatus: state.BackendStatusStart},
		{BackendStatus: state.BackendStatusStarted},
		{BackendStatus: state.BackendStatusDie},
	}
	if n := countRunning(services); n != 2 {
		t.Fatalf("expected 2 started services, got %d", n)
	}
}

func asPolicyUnsupported(err error, target **zoeerrors.PolicyUnsupported) bool {
	pu, ok := err.(*zoeerrors.PolicyUnsupported)
	if ok {
		*target = pu
	}
	return ok
}
