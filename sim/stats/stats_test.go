package stats

import (
	"bytes"
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hpcsim/hpcsim/sim"
)

func finishedJob(id sim.JobID, partition string, arrival, start, finish int64) *sim.Job {
	j := sim.NewJob(id, arrival, finish-start, 0, 2)
	j.Partition = partition
	j.ArrivalTime = arrival
	j.StartTime = start
	j.FinishTime = finish
	j.WaitTime = start - arrival
	j.Status = sim.JobCompleted
	j.Slowdown = float64(finish-arrival) / float64(finish-start)
	j.BoundedSlowdown = j.Slowdown
	j.Nodes = []int{0, 3}
	j.NodesUsed = 2
	j.AllocatedWith = sim.SelectFirstFit
	return j
}

func testJobs() []*sim.Job {
	skipped := sim.NewJob(9, 0, 0, 0, 1)
	skipped.Status = sim.JobSkipped
	return []*sim.Job{
		finishedJob(1, "batch", 0, 0, 100),
		finishedJob(2, "batch", 0, 100, 200),
		finishedJob(3, "debug", 10, 40, 50),
		skipped,
	}
}

func TestDescribe(t *testing.T) {
	// GIVEN ten values 1..10
	values := []float64{10, 9, 8, 7, 6, 5, 4, 3, 2, 1}

	// WHEN described
	d := Describe(values)

	// THEN percentiles are empirical and the input is untouched
	assert.Equal(t, 10, d.Count)
	assert.InDelta(t, 5.5, d.Mean, 1e-9)
	assert.Equal(t, 1.0, d.Min)
	assert.Equal(t, 10.0, d.Max)
	assert.Equal(t, 5.0, d.P50)
	assert.Equal(t, 9.0, d.P90)
	assert.Equal(t, 10.0, d.P99)
	assert.Greater(t, d.StdDev, 0.0)
	assert.Equal(t, 10.0, values[0])
}

func TestDescribe_EdgeCases(t *testing.T) {
	assert.Equal(t, Distribution{}, Describe(nil))
	d := Describe([]float64{42})
	assert.Equal(t, 42.0, d.Mean)
	assert.Zero(t, d.StdDev)
	assert.Equal(t, 42.0, d.P99)
}

func TestSummarize_OnlyFinishedJobs(t *testing.T) {
	s := Summarize("fcfs", testJobs())

	assert.Equal(t, 3, s.Jobs)
	assert.InDelta(t, (0+100+30)/3.0, s.Wait.Mean, 1e-9)
	assert.Equal(t, 100.0, s.Wait.Max)
	require.Len(t, s.ByPartition, 2)
	assert.Equal(t, 2, s.ByPartition["batch"].Count)

	var buf bytes.Buffer
	s.Print(&buf)
	assert.Contains(t, buf.String(), "=== Job Distributions (fcfs, 3 jobs) ===")
	assert.Contains(t, buf.String(), "Wait [debug]")
}

func TestWriteJobs_CSV(t *testing.T) {
	// GIVEN three finished jobs and one skipped
	path := filepath.Join(t.TempDir(), "jobs.csv")

	// WHEN written as CSV
	require.NoError(t, WriteJobs(path, Rows("slurm", testJobs())))

	// THEN there is a header and one row per job that arrived
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 4)
	assert.Equal(t, jobColumns, records[0])
	assert.Equal(t, []string{"slurm", "2", "batch", "completed", "0", "0", "100", "200", "100", "100", "100", "2", "2", "0 3", "false", "false", "first-fit", "2.0000", "2.0000"}, records[2])
}

func TestWriteJobs_Parquet(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jobs.parquet")

	require.NoError(t, WriteJobs(path, Rows("fcfs", testJobs())))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Greater(t, len(data), 8)
	assert.Equal(t, "PAR1", string(data[:4]))
	assert.Equal(t, "PAR1", string(data[len(data)-4:]))
}

func TestWriteSamples(t *testing.T) {
	path := filepath.Join(t.TempDir(), "samples.csv")
	samples := []sim.Sample{{Time: 10, Waiting: 1, Running: 2, UsedCPUs: 4, TotalCPUs: 8}}

	require.NoError(t, WriteSamples(path, samples))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "time,waiting,running,used_cpus,total_cpus,utilization\n10,1,2,4,8,0.5000\n", string(data))
}

func TestExporter_ObserveAndWrite(t *testing.T) {
	// GIVEN metrics of one run
	m := sim.NewMetrics("fcfs")
	m.Completed, m.Skipped = 3, 1
	m.FirstStart, m.LastFinish = 0, 200
	m.TotalWait = 130
	m.Stats.Passes = 7
	m.Stats.Shrinks = 2
	e := NewExporter()

	// WHEN observed
	e.Observe(Run{Metrics: m, Jobs: testJobs()})

	// THEN the series carry the run's values
	assert.Equal(t, 3.0, testutil.ToFloat64(e.jobs.WithLabelValues("fcfs", "completed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(e.jobs.WithLabelValues("fcfs", "skipped")))
	assert.Equal(t, 200.0, testutil.ToFloat64(e.makespan.WithLabelValues("fcfs")))
	assert.Equal(t, 7.0, testutil.ToFloat64(e.passes.WithLabelValues("fcfs", "schedule")))
	assert.Equal(t, 2.0, testutil.ToFloat64(e.resizes.WithLabelValues("fcfs", "shrink")))
	assert.Equal(t, 1, testutil.CollectAndCount(e.waitSeconds))

	// AND the text file holds them
	path := filepath.Join(t.TempDir(), "metrics.prom")
	require.NoError(t, e.WriteTextfile(path))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), `hpcsim_makespan_seconds{policy="fcfs"} 200`))
	assert.Contains(t, string(data), `hpcsim_job_wait_seconds_count{policy="fcfs"} 3`)
}
