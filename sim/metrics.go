// Tracks simulation-wide scheduling metrics: job outcomes, waits, slowdowns
// and periodic utilization samples.

package sim

import (
	"fmt"
	"io"
)

// Sample is one COLLECT_STATISTICS observation.
type Sample struct {
	Time      int64
	Waiting   int
	Running   int
	UsedCPUs  int64
	TotalCPUs int64
}

// Utilization returns the fraction of CPUs in use.
func (s Sample) Utilization() float64 {
	if s.TotalCPUs == 0 {
		return 0
	}
	return float64(s.UsedCPUs) / float64(s.TotalCPUs)
}

// Metrics aggregates statistics about one run for final reporting.
type Metrics struct {
	Policy     string
	Submitted  int // jobs loaded as arrivals
	Completed  int
	Killed     int // reached their walltime
	Cancelled  int // a predecessor did not complete
	Skipped    int // zero runtime, no processors, or larger than their partition
	Unfinished int // still waiting or running when the run ended
	Backfilled int

	FirstStart   int64 // -1 until a job starts
	LastFinish   int64
	SimEndedTime int64

	TotalWait            int64
	TotalRun             int64
	MaxWait              int64
	TotalSlowdown        float64
	TotalBoundedSlowdown float64

	Samples []Sample
	Stats   PolicyStats
}

// NewMetrics returns empty metrics for a run of policy.
func NewMetrics(policy string) *Metrics {
	return &Metrics{Policy: policy, FirstStart: -1}
}

func (m *Metrics) recordStart(job *Job) {
	if m.FirstStart < 0 {
		m.FirstStart = job.StartTime
	}
}

func (m *Metrics) recordFinish(job *Job) {
	if job.Killed {
		m.Killed++
	} else {
		m.Completed++
	}
	if job.Backfilled {
		m.Backfilled++
	}
	m.LastFinish = max(m.LastFinish, job.FinishTime)
	m.TotalWait += job.WaitTime
	m.MaxWait = max(m.MaxWait, job.WaitTime)
	m.TotalRun += job.FinishTime - job.StartTime
	m.TotalSlowdown += job.Slowdown
	m.TotalBoundedSlowdown += job.BoundedSlowdown
}

func (m *Metrics) finalize(jobs *JobSet, now int64, stats PolicyStats) {
	m.SimEndedTime = now
	m.Stats = stats
	m.Cancelled, m.Unfinished = 0, 0
	for _, j := range jobs.Jobs() {
		switch j.Status {
		case JobCancelled:
			m.Cancelled++
		case JobQueued, JobScheduled, JobRunning:
			m.Unfinished++
		}
	}
}

// Finished returns the number of jobs that ran to an end.
func (m *Metrics) Finished() int { return m.Completed + m.Killed }

// Makespan is the time from the first start to the last finish.
func (m *Metrics) Makespan() int64 {
	if m.FirstStart < 0 {
		return 0
	}
	return m.LastFinish - m.FirstStart
}

func (m *Metrics) MeanWait() float64 {
	if m.Finished() == 0 {
		return 0
	}
	return float64(m.TotalWait) / float64(m.Finished())
}

func (m *Metrics) MeanSlowdown() float64 {
	if m.Finished() == 0 {
		return 0
	}
	return m.TotalSlowdown / float64(m.Finished())
}

func (m *Metrics) MeanBoundedSlowdown() float64 {
	if m.Finished() == 0 {
		return 0
	}
	return m.TotalBoundedSlowdown / float64(m.Finished())
}

// MeanUtilization averages the collected samples.
func (m *Metrics) MeanUtilization() float64 {
	if len(m.Samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range m.Samples {
		sum += s.Utilization()
	}
	return sum / float64(len(m.Samples))
}

// Print writes the aggregated metrics of the run.
func (m *Metrics) Print(w io.Writer) {
	fmt.Fprintf(w, "=== Simulation Metrics (%s) ===\n", m.Policy)
	fmt.Fprintf(w, "Submitted Jobs       : %d\n", m.Submitted)
	fmt.Fprintf(w, "Completed Jobs       : %d\n", m.Completed)
	fmt.Fprintf(w, "Killed Jobs          : %d\n", m.Killed)
	fmt.Fprintf(w, "Cancelled Jobs       : %d\n", m.Cancelled)
	fmt.Fprintf(w, "Skipped Jobs         : %d\n", m.Skipped)
	if m.Unfinished > 0 {
		fmt.Fprintf(w, "Unfinished Jobs      : %d\n", m.Unfinished)
	}
	fmt.Fprintf(w, "Backfilled Jobs      : %d\n", m.Backfilled)
	if m.Finished() > 0 {
		fmt.Fprintf(w, "Average Wait         : %.2f s\n", m.MeanWait())
		fmt.Fprintf(w, "Max Wait             : %d s\n", m.MaxWait)
		fmt.Fprintf(w, "Average Slowdown     : %.2f\n", m.MeanSlowdown())
		fmt.Fprintf(w, "Average BSLD         : %.2f\n", m.MeanBoundedSlowdown())
		fmt.Fprintf(w, "Makespan             : %d s\n", m.Makespan())
	}
	if len(m.Samples) > 0 {
		fmt.Fprintf(w, "Mean Utilization     : %.2f%%\n", 100*m.MeanUtilization())
	}
	fmt.Fprintf(w, "Scheduling Passes    : %d (backfill %d)\n", m.Stats.Passes, m.Stats.BackfillPasses)
	if m.Stats.Shrinks+m.Stats.Expansions > 0 {
		fmt.Fprintf(w, "Shrinks / Expansions : %d / %d\n", m.Stats.Shrinks, m.Stats.Expansions)
	}
	fmt.Fprintf(w, "Simulation Ended At  : %d s\n", m.SimEndedTime)
}
