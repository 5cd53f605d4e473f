package workload

import (
	"bytes"
	"fmt"
	"os"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/hpcsim/hpcsim/sim"
)

// Overrides add fields that SWF cannot express to jobs loaded from a trace.
type Overrides struct {
	Jobs []JobOverride `yaml:"jobs"`
}

// JobOverride patches one job. Unset fields leave the job unchanged;
// Predecessors are appended.
type JobOverride struct {
	ID            int64   `yaml:"id"`
	Partition     *string `yaml:"partition,omitempty"`
	Malleable     *bool   `yaml:"malleable,omitempty"`
	MinProcessors *int64  `yaml:"min_processors,omitempty"`
	MaxProcessors *int64  `yaml:"max_processors,omitempty"`
	Predecessors  []int64 `yaml:"predecessors,omitempty"`
	Continuation  *bool   `yaml:"continuation,omitempty"`
	InputTime     *int64  `yaml:"input_time,omitempty"`
	OutputTime    *int64  `yaml:"output_time,omitempty"`
	Requested     *int64  `yaml:"requested,omitempty"`
}

// LoadOverrides reads an overrides file in strict mode.
func LoadOverrides(path string) (*Overrides, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "reading overrides")
	}
	var o Overrides
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&o); err != nil {
		return nil, errors.Wrapf(err, "parsing overrides %s", path)
	}
	return &o, nil
}

// Apply patches the matching jobs in place. Overrides naming unknown jobs and
// patches leaving a job inconsistent are all reported together.
func (o *Overrides) Apply(jobs []*sim.Job) error {
	byID := make(map[sim.JobID]*sim.Job, len(jobs))
	for _, j := range jobs {
		byID[j.ID] = j
	}
	var result error
	for i, ov := range o.Jobs {
		j, ok := byID[sim.JobID(ov.ID)]
		if !ok {
			result = multierror.Append(result, fmt.Errorf("overrides[%d]: no job %d", i, ov.ID))
			continue
		}
		ov.apply(j)
		if err := checkJob(j); err != nil {
			result = multierror.Append(result, fmt.Errorf("overrides[%d]: %w", i, err))
		}
	}
	return result
}

func (ov JobOverride) apply(j *sim.Job) {
	if ov.Partition != nil {
		j.Partition = *ov.Partition
	}
	if ov.Malleable != nil {
		j.Malleable = *ov.Malleable
	}
	if ov.MinProcessors != nil {
		j.MinProcessors = *ov.MinProcessors
	}
	if ov.MaxProcessors != nil {
		j.MaxProcessors = *ov.MaxProcessors
	}
	if j.Malleable && j.MaxProcessors == 0 {
		j.MaxProcessors = j.Processors
	}
	for _, p := range ov.Predecessors {
		j.Predecessors = append(j.Predecessors, sim.JobID(p))
	}
	if ov.Continuation != nil {
		j.Continuation = *ov.Continuation
	}
	if ov.InputTime != nil {
		j.InputTime = *ov.InputTime
	}
	if ov.OutputTime != nil {
		j.OutputTime = *ov.OutputTime
	}
	if ov.Requested != nil {
		j.RequestedTime = *ov.Requested
	}
}

func checkJob(j *sim.Job) error {
	var result error
	if j.Malleable && (j.MinProcessors > j.Processors || j.MaxProcessors < j.Processors) {
		result = multierror.Append(result, fmt.Errorf("job %d: processors %d outside [%d, %d]", j.ID, j.Processors, j.MinProcessors, j.MaxProcessors))
	}
	if j.InputTime < 0 || j.OutputTime < 0 || j.InputTime+j.OutputTime > j.RunTime {
		result = multierror.Append(result, fmt.Errorf("job %d: input %d and output %d do not fit runtime %d", j.ID, j.InputTime, j.OutputTime, j.RunTime))
	}
	for _, p := range j.Predecessors {
		if p == j.ID {
			result = multierror.Append(result, fmt.Errorf("job %d: depends on itself", j.ID))
			break
		}
	}
	return result
}
