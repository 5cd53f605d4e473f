package sim

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	"github.com/hpcsim/hpcsim/sim/trace"
)

// allPartition names the single partition of single-partition mode.
const allPartition = "all"

// Partition is a named group of nodes scheduled by one policy instance.
type Partition struct {
	Name   string
	Nodes  []Node
	Policy Policy
}

// Orchestrator routes jobs to partitions: every job goes to the single
// partition, or, in multi-partition mode, to the partition the job names.
type Orchestrator struct {
	partitions []*Partition
	byName     map[string]*Partition
	multi      bool
	log        *logrus.Entry
}

// NewOrchestrator creates one policy per partition. Partitions are ordered by
// name.
func NewOrchestrator(cfg PolicyConfig, nodes []Node, jobs *JobSet, events EventScheduler, tracer trace.Tracer) *Orchestrator {
	o := &Orchestrator{
		byName: make(map[string]*Partition),
		multi:  cfg.MultiPartition,
		log:    logrus.WithField("component", "orchestrator"),
	}
	groups := make(map[string][]Node)
	for _, n := range nodes {
		name := allPartition
		if o.multi {
			name = n.Partition
		}
		groups[name] = append(groups[name], n)
	}
	names := maps.Keys(groups)
	slices.Sort(names)
	for _, name := range names {
		part := &Partition{Name: name, Nodes: groups[name]}
		part.Policy = NewPolicy(cfg, name, part.Nodes, jobs, events, tracer)
		o.partitions = append(o.partitions, part)
		o.byName[name] = part
		o.log.Debugf("partition %q: %d nodes, policy %s", name, len(part.Nodes), part.Policy.Name())
	}
	return o
}

// Partitions returns the partitions in name order.
func (o *Orchestrator) Partitions() []*Partition { return o.partitions }

// Route returns the partition responsible for job, or nil when none is.
func (o *Orchestrator) Route(job *Job) *Partition {
	if len(o.partitions) == 0 {
		return nil
	}
	if !o.multi {
		return o.partitions[0]
	}
	return o.byName[job.Partition]
}

// Fits reports whether job's partition could ever hold it.
func (o *Orchestrator) Fits(job *Job) bool {
	part := o.Route(job)
	if part == nil {
		return false
	}
	d := job.Demand()
	var usable int64
	for _, n := range part.Nodes {
		usable += d.usableCPUs(n.Capacity)
	}
	return usable >= job.Processors
}

func (o *Orchestrator) policy(job *Job) Policy {
	part := o.Route(job)
	if part == nil {
		panic(fmt.Sprintf("no partition for job %d (partition %q)", job.ID, job.Partition))
	}
	return part.Policy
}

func (o *Orchestrator) Arrive(job *Job)          { o.policy(job).Arrive(job) }
func (o *Orchestrator) JobStart(job *Job)        { o.policy(job).JobStart(job) }
func (o *Orchestrator) JobFinish(job *Job)       { o.policy(job).JobFinish(job) }
func (o *Orchestrator) JobBeginCompute(job *Job) { o.policy(job).JobBeginCompute(job) }
func (o *Orchestrator) JobEndCompute(job *Job)   { o.policy(job).JobEndCompute(job) }

// Schedule runs a pass in every partition.
func (o *Orchestrator) Schedule() {
	for _, p := range o.partitions {
		p.Policy.Schedule()
	}
}

// Backfill runs a backfill pass in every partition.
func (o *Orchestrator) Backfill() {
	for _, p := range o.partitions {
		p.Policy.Backfill()
	}
}

// Advance moves every reservation table to now.
func (o *Orchestrator) Advance(now int64) {
	for _, p := range o.partitions {
		p.Policy.Table().Advance(now)
	}
}

// Stats sums the counters of every partition.
func (o *Orchestrator) Stats() PolicyStats {
	var s PolicyStats
	for _, p := range o.partitions {
		s = s.Add(p.Policy.Stats())
	}
	return s
}

func (o *Orchestrator) Waiting() int {
	n := 0
	for _, p := range o.partitions {
		n += p.Policy.Waiting()
	}
	return n
}

func (o *Orchestrator) Running() int {
	n := 0
	for _, p := range o.partitions {
		n += p.Policy.Running()
	}
	return n
}

// UsedCPUs returns the CPUs reserved at now across partitions.
func (o *Orchestrator) UsedCPUs(now int64) int64 {
	var used int64
	for _, p := range o.partitions {
		used += p.Policy.Table().UsedAt(now).CPUs
	}
	return used
}

// Capacity returns the total capacity across partitions.
func (o *Orchestrator) Capacity() Resources {
	var c Resources
	for _, p := range o.partitions {
		c = c.Add(p.Policy.Table().Capacity())
	}
	return c
}

// Verify checks every reservation table.
func (o *Orchestrator) Verify() error {
	for _, p := range o.partitions {
		if err := p.Policy.Table().Verify(); err != nil {
			return errors.WithMessagef(err, "partition %q", p.Name)
		}
	}
	return nil
}
