package workload

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSynthetic() *SyntheticSpec {
	return &SyntheticSpec{
		Seed:              42,
		Count:             200,
		Partition:         "batch",
		Arrival:           ArrivalSpec{Process: "poisson", Rate: 120},
		RunTime:           DistSpec{Type: "exponential", Params: map[string]float64{"mean": 600, "max": 7200}},
		Processors:        DistSpec{Type: "power_of_two", Params: map[string]float64{"max_exp": 4}},
		MemoryPerCPU:      &DistSpec{Type: "uniform", Params: map[string]float64{"min": 256, "max": 1024}},
		Overestimate:      1.5,
		MalleableFraction: 0.25,
	}
}

func TestGenerateJobs_Deterministic(t *testing.T) {
	// GIVEN the same spec twice
	a, err := GenerateJobs(testSynthetic(), 1)
	require.NoError(t, err)
	b, err := GenerateJobs(testSynthetic(), 1)
	require.NoError(t, err)

	// THEN the workloads are identical
	require.Len(t, a, 200)
	for i := range a {
		assert.Equal(t, a[i], b[i])
	}
}

func TestGenerateJobs_FieldsWithinBounds(t *testing.T) {
	jobs, err := GenerateJobs(testSynthetic(), 100)
	require.NoError(t, err)

	var prev int64
	malleable := 0
	for i, j := range jobs {
		assert.EqualValues(t, 100+i, j.ID)
		assert.GreaterOrEqual(t, j.SubmitTime, prev, "submit times ascend")
		prev = j.SubmitTime
		assert.True(t, j.RunTime >= 1 && j.RunTime <= 7200)
		assert.GreaterOrEqual(t, j.RequestedTime, j.RunTime)
		assert.Contains(t, []int64{1, 2, 4, 8, 16}, j.Processors)
		assert.True(t, j.MemoryPerCPU >= 256 && j.MemoryPerCPU <= 1024)
		assert.Equal(t, "batch", j.Partition)
		if j.Malleable {
			malleable++
			assert.Equal(t, j.Processors*2, j.MaxProcessors)
			assert.LessOrEqual(t, j.MinProcessors, j.Processors)
		}
	}
	assert.Zero(t, jobs[0].SubmitTime)
	assert.InDelta(t, 50, malleable, 20)
}

func TestWorkloadSpec_BuildJobs_NumbersGeneratedJobsAfterExplicitOnes(t *testing.T) {
	spec := &WorkloadSpec{
		Jobs:      []JobSpec{{ID: 10, RunTime: 5, Processors: 1}},
		Synthetic: testSynthetic(),
	}
	spec.Synthetic.Count = 3

	jobs, err := spec.BuildJobs()

	require.NoError(t, err)
	require.Len(t, jobs, 4)
	assert.EqualValues(t, 11, jobs[1].ID)
	assert.EqualValues(t, 13, jobs[3].ID)
}

func TestGenerateJobs_InvalidSpec(t *testing.T) {
	spec := testSynthetic()
	spec.Count = 0
	_, err := GenerateJobs(spec, 1)
	require.Error(t, err)
}
