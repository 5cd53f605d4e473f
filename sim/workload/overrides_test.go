package workload

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hpcsim/hpcsim/sim"
)

func TestOverrides_Apply_PatchesJobs(t *testing.T) {
	// GIVEN two SWF-style jobs and an overrides file
	jobs := []*sim.Job{sim.NewJob(1, 0, 100, 0, 4), sim.NewJob(2, 0, 100, 0, 4)}
	path := writeFile(t, t.TempDir(), "overrides.yaml", `
jobs:
  - id: 1
    malleable: true
    min_processors: 2
    max_processors: 8
  - id: 2
    predecessors: [1]
    continuation: true
    input_time: 10
    output_time: 20
    partition: fat
`)
	o, err := LoadOverrides(path)
	require.NoError(t, err)

	// WHEN applied
	require.NoError(t, o.Apply(jobs))

	// THEN only the named fields change
	assert.True(t, jobs[0].Malleable)
	assert.Equal(t, int64(2), jobs[0].MinProcessors)
	assert.Equal(t, int64(8), jobs[0].MaxProcessors)
	assert.False(t, jobs[0].Continuation)
	assert.Equal(t, []sim.JobID{1}, jobs[1].Predecessors)
	assert.True(t, jobs[1].Continuation)
	assert.Equal(t, int64(10), jobs[1].InputTime)
	assert.Equal(t, int64(20), jobs[1].OutputTime)
	assert.Equal(t, "fat", jobs[1].Partition)
	assert.Equal(t, int64(4), jobs[1].Processors)
}

func TestOverrides_Apply_ReportsEveryProblem(t *testing.T) {
	jobs := []*sim.Job{sim.NewJob(1, 0, 10, 0, 4)}
	bigMin := int64(8)
	input := int64(20)
	o := &Overrides{Jobs: []JobOverride{
		{ID: 99},
		{ID: 1, MinProcessors: &bigMin, Malleable: boolPtr(true), InputTime: &input},
		{ID: 1, Predecessors: []int64{1}},
	}}

	err := o.Apply(jobs)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "no job 99")
	assert.Contains(t, err.Error(), "outside [8, 4]")
	assert.Contains(t, err.Error(), "depends on itself")
	assert.Contains(t, err.Error(), "do not fit runtime 10")
}

func TestLoadOverrides_RejectsUnknownFields(t *testing.T) {
	path := writeFile(t, t.TempDir(), "bad.yaml", "jobs:\n  - id: 1\n    malleabel: true\n")
	_, err := LoadOverrides(path)
	require.Error(t, err)
}

func boolPtr(b bool) *bool { return &b }
