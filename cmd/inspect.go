package cmd

import (
	"fmt"
	"io"
	"sort"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"

	"github.com/hpcsim/hpcsim/sim"
	"github.com/hpcsim/hpcsim/sim/stats"
	"github.com/hpcsim/hpcsim/sim/workload"
)

// validate loads every input and reports jobs the cluster can never run.
func validate(cfg *Config, out io.Writer) error {
	cluster, nodes, jobs, err := loadInputs(cfg)
	if err != nil {
		return err
	}
	capacity := make(map[string]int64)
	var total int64
	for _, n := range nodes {
		capacity[n.Partition] += n.Capacity.CPUs
		total += n.Capacity.CPUs
	}
	var problems error
	unfit := 0
	for _, j := range jobs.Jobs() {
		limit := total
		if cfg.Scheduler.MultiPartition {
			c, ok := capacity[j.Partition]
			if !ok {
				problems = multierror.Append(problems, fmt.Errorf("job %d: unknown partition %q", j.ID, j.Partition))
				continue
			}
			limit = c
		}
		if j.Processors > limit {
			unfit++
		}
		for _, p := range j.Predecessors {
			if jobs.Get(p) == nil {
				problems = multierror.Append(problems, fmt.Errorf("job %d: unknown predecessor %d", j.ID, p))
			}
		}
	}
	for _, line := range cluster.Summary() {
		_, _ = fmt.Fprintln(out, line)
	}
	_, _ = fmt.Fprintf(out, "%d jobs, %d larger than their partition\n", jobs.Len(), unfit)
	if problems != nil {
		return errors.WithMessage(problems, "workload references")
	}
	return nil
}

// inspect prints the shape of a workload.
func inspect(patterns []string, overrides string, out io.Writer) error {
	jobs, err := workload.Load(patterns, workload.LoadOptions{OverridesPath: overrides})
	if err != nil {
		return err
	}
	var runtimes, procs, walltimes, gaps []float64
	partitions := make(map[string]int)
	var malleable, workflow, continuations int
	submits := make([]int64, 0, len(jobs))
	for _, j := range jobs {
		runtimes = append(runtimes, float64(j.RunTime))
		procs = append(procs, float64(j.Processors))
		walltimes = append(walltimes, float64(j.Walltime()))
		partitions[j.Partition]++
		submits = append(submits, j.SubmitTime)
		if j.Malleable {
			malleable++
		}
		if len(j.Predecessors) > 0 {
			workflow++
		}
		if j.Continuation {
			continuations++
		}
	}
	sort.Slice(submits, func(a, b int) bool { return submits[a] < submits[b] })
	for i := 1; i < len(submits); i++ {
		gaps = append(gaps, float64(submits[i]-submits[i-1]))
	}

	_, _ = fmt.Fprintf(out, "=== Workload (%d jobs) ===\n", len(jobs))
	if len(submits) > 0 {
		_, _ = fmt.Fprintf(out, "Submit span          : %d s\n", submits[len(submits)-1]-submits[0])
	}
	row := func(name string, d stats.Distribution) {
		_, _ = fmt.Fprintf(out, "%-20s : mean %10.2f  p50 %10.0f  p90 %10.0f  max %10.0f\n", name, d.Mean, d.P50, d.P90, d.Max)
	}
	row("Run time (s)", stats.Describe(runtimes))
	row("Walltime (s)", stats.Describe(walltimes))
	row("Processors", stats.Describe(procs))
	row("Inter-arrival (s)", stats.Describe(gaps))
	_, _ = fmt.Fprintf(out, "Malleable            : %d\n", malleable)
	_, _ = fmt.Fprintf(out, "With predecessors    : %d (%d continuations)\n", workflow, continuations)
	names := make([]string, 0, len(partitions))
	for p := range partitions {
		names = append(names, p)
	}
	sort.Strings(names)
	for _, p := range names {
		label := p
		if label == "" {
			label = "(default)"
		}
		_, _ = fmt.Fprintf(out, "Partition %-10s : %d jobs\n", label, partitions[p])
	}
	if _, err := sim.NewJobSet(jobs); err != nil {
		return errors.Wrap(err, "indexing workload")
	}
	return nil
}
