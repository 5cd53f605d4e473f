package workload

import (
	"bytes"
	"fmt"
	"math"
	"os"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/hpcsim/hpcsim/sim"
)

// WorkloadSpec is a YAML workload: an explicit job list, a synthetic
// generator, or both. Loaded from YAML via LoadWorkloadSpec(path).
type WorkloadSpec struct {
	Version   string         `yaml:"version"`
	Jobs      []JobSpec      `yaml:"jobs"`
	Synthetic *SyntheticSpec `yaml:"synthetic,omitempty"`
}

// JobSpec describes one job. Times are in seconds, sizes in MB.
type JobSpec struct {
	ID            int64   `yaml:"id"`
	Submit        int64   `yaml:"submit"`
	RunTime       int64   `yaml:"runtime"`
	Requested     int64   `yaml:"requested,omitempty"` // walltime; 0 = runtime
	Processors    int64   `yaml:"processors"`
	MemoryPerCPU  int64   `yaml:"memory_per_cpu_mb,omitempty"`
	DiskPerCPU    int64   `yaml:"disk_per_cpu_mb,omitempty"`
	Partition     string  `yaml:"partition,omitempty"`
	User          int64   `yaml:"user,omitempty"`
	Group         int64   `yaml:"group,omitempty"`
	Malleable     bool    `yaml:"malleable,omitempty"`
	MinProcessors int64   `yaml:"min_processors,omitempty"`
	MaxProcessors int64   `yaml:"max_processors,omitempty"`
	Predecessors  []int64 `yaml:"predecessors,omitempty"`
	Continuation  bool    `yaml:"continuation,omitempty"`
	InputTime     int64   `yaml:"input_time,omitempty"`
	OutputTime    int64   `yaml:"output_time,omitempty"`
}

// SyntheticSpec generates Count jobs with sampled arrivals, runtimes and sizes.
type SyntheticSpec struct {
	Seed         int64       `yaml:"seed"`
	Count        int         `yaml:"count"`
	FirstID      int64       `yaml:"first_id,omitempty"` // default: after the explicit jobs
	Partition    string      `yaml:"partition,omitempty"`
	Arrival      ArrivalSpec `yaml:"arrival"`
	RunTime      DistSpec    `yaml:"runtime"`
	Processors   DistSpec    `yaml:"processors"`
	MemoryPerCPU *DistSpec   `yaml:"memory_per_cpu_mb,omitempty"`
	// Overestimate scales runtimes into requested walltimes; values below
	// one produce jobs killed at their walltime.
	Overestimate float64 `yaml:"overestimate,omitempty"`
	// MalleableFraction of the generated jobs may shrink to half and grow to
	// double their size.
	MalleableFraction float64 `yaml:"malleable_fraction,omitempty"`
}

// ArrivalSpec configures the inter-arrival time process.
type ArrivalSpec struct {
	Process string   `yaml:"process"`
	Rate    float64  `yaml:"rate"` // jobs per hour
	CV      *float64 `yaml:"cv,omitempty"`
}

// DistSpec parameterizes a positive integer distribution.
type DistSpec struct {
	Type   string             `yaml:"type"`
	Params map[string]float64 `yaml:"params,omitempty"`
}

// Valid value registries.
var (
	validArrivalProcesses = map[string]bool{
		"poisson": true, "gamma": true, "weibull": true, "constant": true,
	}
	validDistTypes = map[string]bool{
		"constant": true, "uniform": true, "exponential": true, "gaussian": true, "lognormal": true, "power_of_two": true, "empirical": true,
	}
)

// LoadWorkloadSpec reads and parses a YAML workload file.
// Uses strict parsing: unrecognized keys (typos) are rejected.
func LoadWorkloadSpec(path string) (*WorkloadSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "reading workload spec")
	}
	var spec WorkloadSpec
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&spec); err != nil {
		return nil, errors.Wrap(err, "parsing workload spec")
	}
	if spec.Version == "" {
		spec.Version = "1"
	}
	return &spec, nil
}

// Validate reports every invalid field at once.
func (s *WorkloadSpec) Validate() error {
	var result error
	if len(s.Jobs) == 0 && s.Synthetic == nil {
		result = multierror.Append(result, fmt.Errorf("at least one job or a synthetic section is required"))
	}
	seen := make(map[int64]bool, len(s.Jobs))
	for i, j := range s.Jobs {
		prefix := fmt.Sprintf("jobs[%d]", i)
		if seen[j.ID] {
			result = multierror.Append(result, fmt.Errorf("%s: duplicate id %d", prefix, j.ID))
		}
		seen[j.ID] = true
		if j.Submit < 0 {
			result = multierror.Append(result, fmt.Errorf("%s: submit must be non-negative, got %d", prefix, j.Submit))
		}
		if j.RunTime <= 0 {
			result = multierror.Append(result, fmt.Errorf("%s: runtime must be positive, got %d", prefix, j.RunTime))
		}
		if j.Processors <= 0 {
			result = multierror.Append(result, fmt.Errorf("%s: processors must be positive, got %d", prefix, j.Processors))
		}
		if j.Malleable && (j.MinProcessors > j.Processors || (j.MaxProcessors > 0 && j.MaxProcessors < j.Processors)) {
			result = multierror.Append(result, fmt.Errorf("%s: processors %d outside [%d, %d]", prefix, j.Processors, j.MinProcessors, j.MaxProcessors))
		}
		if j.InputTime+j.OutputTime > j.RunTime {
			result = multierror.Append(result, fmt.Errorf("%s: input and output phases exceed the runtime", prefix))
		}
	}
	if s.Synthetic != nil {
		if err := s.Synthetic.validate(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result
}

func (s *SyntheticSpec) validate() error {
	var result error
	if s.Count <= 0 {
		result = multierror.Append(result, fmt.Errorf("synthetic.count must be positive, got %d", s.Count))
	}
	if !validArrivalProcesses[s.Arrival.Process] {
		result = multierror.Append(result, fmt.Errorf("synthetic.arrival: unknown process %q; valid: poisson, gamma, weibull, constant", s.Arrival.Process))
	}
	if err := validateFinitePositive("synthetic.arrival.rate", s.Arrival.Rate); err != nil {
		result = multierror.Append(result, err)
	}
	if s.Arrival.CV != nil {
		if err := validateFinitePositive("synthetic.arrival.cv", *s.Arrival.CV); err != nil {
			result = multierror.Append(result, err)
		}
	}
	for name, d := range map[string]*DistSpec{"runtime": &s.RunTime, "processors": &s.Processors, "memory_per_cpu_mb": s.MemoryPerCPU} {
		if d == nil {
			continue
		}
		if err := validateDistSpec("synthetic."+name, d); err != nil {
			result = multierror.Append(result, err)
		}
	}
	if s.Overestimate < 0 || math.IsNaN(s.Overestimate) {
		result = multierror.Append(result, fmt.Errorf("synthetic.overestimate must be non-negative, got %f", s.Overestimate))
	}
	if s.MalleableFraction < 0 || s.MalleableFraction > 1 {
		result = multierror.Append(result, fmt.Errorf("synthetic.malleable_fraction must be in [0, 1], got %f", s.MalleableFraction))
	}
	return result
}

func validateDistSpec(prefix string, d *DistSpec) error {
	if !validDistTypes[d.Type] {
		return fmt.Errorf("%s: unknown distribution type %q; valid: constant, uniform, exponential, gaussian, lognormal, power_of_two, empirical", prefix, d.Type)
	}
	for name, val := range d.Params {
		if math.IsNaN(val) || math.IsInf(val, 0) {
			return fmt.Errorf("%s.params.%s must be a finite number, got %f", prefix, name, val)
		}
	}
	if _, err := NewSampler(*d); err != nil {
		return errors.WithMessage(err, prefix)
	}
	return nil
}

func validateFinitePositive(name string, val float64) error {
	if math.IsNaN(val) || math.IsInf(val, 0) {
		return fmt.Errorf("%s must be a finite number, got %f", name, val)
	}
	if val <= 0 {
		return fmt.Errorf("%s must be positive, got %f", name, val)
	}
	return nil
}

// BuildJobs returns the explicit jobs followed by the generated ones.
func (s *WorkloadSpec) BuildJobs() ([]*sim.Job, error) {
	if err := s.Validate(); err != nil {
		return nil, errors.WithMessage(err, "invalid workload spec")
	}
	jobs := make([]*sim.Job, 0, len(s.Jobs))
	var maxID int64
	for _, js := range s.Jobs {
		jobs = append(jobs, js.job())
		maxID = max(maxID, js.ID)
	}
	if s.Synthetic != nil {
		first := s.Synthetic.FirstID
		if first <= 0 {
			first = maxID + 1
		}
		generated, err := GenerateJobs(s.Synthetic, first)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, generated...)
	}
	return jobs, nil
}

func (js JobSpec) job() *sim.Job {
	j := sim.NewJob(sim.JobID(js.ID), js.Submit, js.RunTime, js.Requested, js.Processors)
	j.MemoryPerCPU = js.MemoryPerCPU
	j.DiskPerCPU = js.DiskPerCPU
	j.Partition = js.Partition
	j.UserID = js.User
	j.GroupID = js.Group
	j.Malleable = js.Malleable
	j.MinProcessors = js.MinProcessors
	j.MaxProcessors = js.MaxProcessors
	if j.Malleable && j.MaxProcessors == 0 {
		j.MaxProcessors = j.Processors
	}
	for _, p := range js.Predecessors {
		j.Predecessors = append(j.Predecessors, sim.JobID(p))
	}
	j.Continuation = js.Continuation
	j.InputTime = js.InputTime
	j.OutputTime = js.OutputTime
	return j
}
