package workload

import (
	"math"

	"github.com/pkg/errors"

	"github.com/hpcsim/hpcsim/sim"
)

// GenerateJobs creates spec.Count jobs with IDs from firstID upwards.
// Deterministic given the same spec; submit times ascend from zero.
func GenerateJobs(spec *SyntheticSpec, firstID int64) ([]*sim.Job, error) {
	if err := spec.validate(); err != nil {
		return nil, errors.WithMessage(err, "invalid synthetic spec")
	}
	rng := sim.NewPartitionedRNG(sim.NewSimulationKey(spec.Seed))
	arrivalRNG := rng.ForSubsystem(sim.SubsystemArrivals)
	runtimeRNG := rng.ForSubsystem(sim.SubsystemRuntimes)
	sizeRNG := rng.ForSubsystem(sim.SubsystemSizes)
	flagRNG := rng.ForSubsystem(sim.SubsystemFlags)

	arrivals := NewArrivalSampler(spec.Arrival)
	runtimes, err := NewSampler(spec.RunTime)
	if err != nil {
		return nil, errors.WithMessage(err, "runtime distribution")
	}
	procs, err := NewSampler(spec.Processors)
	if err != nil {
		return nil, errors.WithMessage(err, "processors distribution")
	}
	var memory Sampler
	if spec.MemoryPerCPU != nil {
		if memory, err = NewSampler(*spec.MemoryPerCPU); err != nil {
			return nil, errors.WithMessage(err, "memory distribution")
		}
	}

	jobs := make([]*sim.Job, 0, spec.Count)
	var submit int64
	for i := 0; i < spec.Count; i++ {
		if i > 0 {
			submit += arrivals.SampleIAT(arrivalRNG)
		}
		run := runtimes.Sample(runtimeRNG)
		var requested int64
		if spec.Overestimate > 0 {
			requested = max(int64(math.Ceil(float64(run)*spec.Overestimate)), 1)
		}
		j := sim.NewJob(sim.JobID(firstID+int64(i)), submit, run, requested, procs.Sample(sizeRNG))
		if memory != nil {
			j.MemoryPerCPU = memory.Sample(sizeRNG)
		}
		j.Partition = spec.Partition
		if spec.MalleableFraction > 0 && flagRNG.Float64() < spec.MalleableFraction {
			j.Malleable = true
			j.MinProcessors = max(j.Processors/2, 1)
			j.MaxProcessors = j.Processors * 2
		}
		jobs = append(jobs, j)
	}
	return jobs, nil
}
