package sim

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

// uniformNodes returns n identical nodes in one partition.
func uniformNodes(n int, cpus, memory int64) []Node {
	nodes := make([]Node, n)
	for i := range nodes {
		nodes[i] = Node{ID: i, Partition: "batch", Capacity: Resources{CPUs: cpus, Memory: memory}}
	}
	return nodes
}

// reserve places a reservation for job exactly at start using first-fit.
func reserve(t *testing.T, table *ReservationTable, job JobID, d Demand, start, length int64) Allocation {
	t.Helper()
	a := table.FindAllocation(d, start, length, nil)
	require.True(t, a.Feasible, "no room for job %d: %v", job, a)
	require.Equal(t, start, a.Start, "job %d could not be placed at %d", job, start)
	a.Shares = NewSelectionStrategy(SelectFirstFit).Select(d, a)
	table.AllocateJob(job, a)
	return a
}

// bucketView is a comparable snapshot of a bucket.
type bucketView struct {
	Start int64
	End   int64
	Free  Resources
	Jobs  map[JobID]Resources
}

// tableLayout snapshots every node's buckets.
func tableLayout(table *ReservationTable) map[int][]bucketView {
	out := make(map[int][]bucketView)
	for _, n := range table.Nodes() {
		for _, b := range table.Buckets(n.ID) {
			v := bucketView{Start: b.Start, End: b.End, Free: b.Free}
			for _, id := range b.Jobs() {
				if v.Jobs == nil {
					v.Jobs = make(map[JobID]Resources)
				}
				v.Jobs[id], _ = b.Holds(id)
			}
			out[n.ID] = append(out[n.ID], v)
		}
	}
	return out
}

// newTestJob returns a job with walltime equal to its runtime.
func newTestJob(id JobID, submit, runTime, processors int64) *Job {
	return NewJob(id, submit, runTime, runTime, processors)
}

// runSimulation runs jobs on nodes under cfg to completion and returns the
// simulation for inspection.
func runSimulation(t *testing.T, cfg PolicyConfig, nodes []Node, jobs ...*Job) *Simulation {
	t.Helper()
	set, err := NewJobSet(jobs)
	require.NoError(t, err)
	s := NewSimulation(DefaultSimConfig(), cfg, nodes, set, nil)
	require.NoError(t, s.Run(context.Background()))
	return s
}
