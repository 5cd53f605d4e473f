package sim

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFCFS_HeadOfLineBlocksLaterJobs(t *testing.T) {
	// GIVEN an 8-CPU node fully used until t=100, then J1 (8 CPUs) and J2 (1 CPU)
	running := newTestJob(1, 0, 100, 8)
	j1 := newTestJob(2, 0, 50, 8)
	j2 := newTestJob(3, 0, 10, 1)

	// WHEN simulated under FCFS
	s := runSimulation(t, DefaultPolicyConfig(), uniformNodes(1, 8, 0), running, j1, j2)

	// THEN J2 never overtakes J1, even though it alone would fit first
	assert.Equal(t, int64(0), running.StartTime)
	assert.Equal(t, int64(100), j1.StartTime)
	assert.Equal(t, int64(150), j2.StartTime)
	assert.GreaterOrEqual(t, j2.StartTime, j1.StartTime)
	assert.False(t, j2.Backfilled)
	assert.Equal(t, 3, s.Metrics().Completed)
	assert.NoError(t, s.Orchestrator().Verify())
}

func TestFCFS_BackfillNeverDelaysReservation(t *testing.T) {
	// GIVEN a 4-CPU node with 2 CPUs busy until t=50, A (4 CPUs) and a long B (2 CPUs)
	x := newTestJob(1, 0, 50, 2)
	a := newTestJob(2, 0, 100, 4)
	b := newTestJob(3, 0, 200, 2)

	// WHEN simulated
	runSimulation(t, DefaultPolicyConfig(), uniformNodes(1, 4, 0), x, a, b)

	// THEN A starts exactly at its reservation and B waits for A's window to end
	assert.Equal(t, int64(50), a.StartTime)
	assert.GreaterOrEqual(t, b.StartTime, int64(150))
	assert.False(t, b.Backfilled)
}

func TestFCFS_ShortJobBackfillsAheadOfReservation(t *testing.T) {
	// GIVEN the same cluster but B short enough to finish before A's window
	x := newTestJob(1, 0, 50, 2)
	a := newTestJob(2, 0, 100, 4)
	b := newTestJob(3, 0, 40, 2)

	// WHEN simulated
	s := runSimulation(t, DefaultPolicyConfig(), uniformNodes(1, 4, 0), x, a, b)

	// THEN B starts now in the free CPUs without moving A
	assert.Equal(t, int64(0), b.StartTime)
	assert.True(t, b.Backfilled)
	assert.Equal(t, int64(50), a.StartTime)
	assert.Equal(t, 1, s.Metrics().Backfilled)
}

func TestFCFS_ReservationDepthZero_OnlyBackfillsNow(t *testing.T) {
	// GIVEN no reservation budget
	cfg := DefaultPolicyConfig()
	cfg.ReservationDepth = 0
	x := newTestJob(1, 0, 50, 2)
	a := newTestJob(2, 0, 100, 4)
	b := newTestJob(3, 0, 40, 2)

	// WHEN simulated
	s := runSimulation(t, cfg, uniformNodes(1, 4, 0), x, a, b)

	// THEN nothing is reserved ahead and every job still completes
	assert.Zero(t, s.Metrics().Stats.Reserved)
	assert.Equal(t, 3, s.Metrics().Completed)
	assert.Equal(t, int64(0), b.StartTime)
}

func TestFCFS_Schedule_ReleasesProvisionalReservations(t *testing.T) {
	// GIVEN a blocked job holding a future reservation
	x := newTestJob(1, 0, 50, 4)
	a := newTestJob(2, 0, 100, 4)
	p, events := newTestPolicy(t, DefaultPolicyConfig(), uniformNodes(1, 4, 0), x, a)
	p.Schedule()
	r, ok := p.Table().Reservation(a.ID)
	require.True(t, ok)
	require.Equal(t, int64(50), r.Start)
	assert.Equal(t, JobQueued, a.Status)
	assert.True(t, events.queue.Has(EventSchedule, 50))

	// WHEN the next pass runs
	p.Schedule()

	// THEN the job holds exactly one reservation, re-planned at the same time
	r, ok = p.Table().Reservation(a.ID)
	require.True(t, ok)
	assert.Equal(t, int64(50), r.Start)
	assert.Equal(t, 2, p.Table().Reservations())
	assert.NoError(t, p.Table().Verify())
}

func TestFCFS_KilledPredecessorCancelsSuccessor(t *testing.T) {
	// GIVEN a job that overruns its walltime and a successor depending on it
	pred := NewJob(1, 0, 100, 50, 2)
	succ := newTestJob(2, 0, 10, 2)
	succ.Predecessors = []JobID{1}

	// WHEN simulated
	s := runSimulation(t, DefaultPolicyConfig(), uniformNodes(1, 4, 0), pred, succ)

	// THEN the predecessor is killed at its walltime and the successor never runs
	assert.Equal(t, JobKilled, pred.Status)
	assert.Equal(t, int64(50), pred.FinishTime)
	assert.Equal(t, JobCancelled, succ.Status)
	assert.Equal(t, int64(-1), succ.StartTime)
	m := s.Metrics()
	assert.Equal(t, 1, m.Killed)
	assert.Equal(t, 1, m.Cancelled)
	assert.Zero(t, m.Unfinished)
}

func TestFCFS_WorkflowSuccessorStartsWhenPredecessorCompletes(t *testing.T) {
	pred := newTestJob(1, 0, 100, 4)
	succ := newTestJob(2, 0, 10, 1)
	succ.Predecessors = []JobID{1}
	other := newTestJob(3, 0, 10, 1)

	runSimulation(t, DefaultPolicyConfig(), uniformNodes(1, 8, 0), pred, succ, other)

	assert.Equal(t, int64(100), succ.StartTime)
	// a waiting successor does not block the queue behind it
	assert.Equal(t, int64(0), other.StartTime)
}

func TestFCFS_BestFitPacksSmallNodeFirst(t *testing.T) {
	// GIVEN a large and a small node
	cfg := DefaultPolicyConfig()
	cfg.Selection = SelectBestFit
	nodes := []Node{
		{ID: 0, Partition: "batch", Capacity: Resources{CPUs: 8}},
		{ID: 1, Partition: "batch", Capacity: Resources{CPUs: 2}},
	}
	j := newTestJob(1, 0, 10, 2)

	// WHEN a 2-CPU job runs
	runSimulation(t, cfg, nodes, j)

	// THEN it lands on the small node
	assert.Equal(t, []int{1}, j.Nodes)
	assert.Equal(t, SelectBestFit, j.AllocatedWith)
}

func TestFCFS_ReserveFullNode_NeverSharesNodes(t *testing.T) {
	cfg := DefaultPolicyConfig()
	cfg.ReserveFullNode = true
	a := newTestJob(1, 0, 100, 1)
	b := newTestJob(2, 0, 100, 1)

	runSimulation(t, cfg, uniformNodes(2, 4, 0), a, b)

	assert.Equal(t, []int{0}, a.Nodes)
	assert.Equal(t, []int{1}, b.Nodes)
	assert.Equal(t, int64(0), b.StartTime)
}
