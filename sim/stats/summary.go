// Package stats turns finished simulations into summaries, per-job tables
// and Prometheus text files.
package stats

import (
	"fmt"
	"io"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/hpcsim/hpcsim/sim"
)

// Distribution describes a sample of values.
type Distribution struct {
	Count  int
	Mean   float64
	StdDev float64
	Min    float64
	P50    float64
	P90    float64
	P99    float64
	Max    float64
}

// Describe computes the distribution of values. Percentiles are empirical:
// the smallest sample whose CDF reaches the level.
func Describe(values []float64) Distribution {
	if len(values) == 0 {
		return Distribution{}
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	d := Distribution{
		Count: len(sorted),
		Min:   sorted[0],
		Max:   sorted[len(sorted)-1],
		P50:   stat.Quantile(0.50, stat.Empirical, sorted, nil),
		P90:   stat.Quantile(0.90, stat.Empirical, sorted, nil),
		P99:   stat.Quantile(0.99, stat.Empirical, sorted, nil),
	}
	if len(sorted) > 1 {
		d.Mean, d.StdDev = stat.MeanStdDev(sorted, nil)
	} else {
		d.Mean = sorted[0]
	}
	return d
}

// JobSummary gathers the distributions of one policy's finished jobs.
type JobSummary struct {
	Policy          string
	Jobs            int
	Wait            Distribution
	RunTime         Distribution
	Slowdown        Distribution
	BoundedSlowdown Distribution
	// ByPartition holds the wait distribution of each partition.
	ByPartition map[string]Distribution
}

// Summarize describes the jobs that ran to completion or were killed.
func Summarize(policy string, jobs []*sim.Job) JobSummary {
	var wait, run, sld, bsld []float64
	perPartition := make(map[string][]float64)
	for _, j := range jobs {
		if j.Status != sim.JobCompleted && j.Status != sim.JobKilled {
			continue
		}
		wait = append(wait, float64(j.WaitTime))
		run = append(run, float64(j.FinishTime-j.StartTime))
		sld = append(sld, j.Slowdown)
		bsld = append(bsld, j.BoundedSlowdown)
		perPartition[j.Partition] = append(perPartition[j.Partition], float64(j.WaitTime))
	}
	s := JobSummary{
		Policy:          policy,
		Jobs:            len(wait),
		Wait:            Describe(wait),
		RunTime:         Describe(run),
		Slowdown:        Describe(sld),
		BoundedSlowdown: Describe(bsld),
		ByPartition:     make(map[string]Distribution, len(perPartition)),
	}
	for p, w := range perPartition {
		s.ByPartition[p] = Describe(w)
	}
	return s
}

// Print writes the summary as aligned text.
func (s JobSummary) Print(w io.Writer) {
	_, _ = fmt.Fprintf(w, "=== Job Distributions (%s, %d jobs) ===\n", s.Policy, s.Jobs)
	row := func(name string, d Distribution) {
		_, _ = fmt.Fprintf(w, "%-18s mean %10.2f  p50 %10.2f  p90 %10.2f  p99 %10.2f  max %10.2f\n",
			name, d.Mean, d.P50, d.P90, d.P99, d.Max)
	}
	row("Wait (s)", s.Wait)
	row("Run time (s)", s.RunTime)
	row("Slowdown", s.Slowdown)
	row("Bounded slowdown", s.BoundedSlowdown)
	if len(s.ByPartition) > 1 {
		names := make([]string, 0, len(s.ByPartition))
		for p := range s.ByPartition {
			names = append(names, p)
		}
		sort.Strings(names)
		for _, p := range names {
			row("Wait ["+p+"]", s.ByPartition[p])
		}
	}
}
