package sim

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/hpcsim/hpcsim/sim/trace"
)

// EventScheduler is the part of the engine policies plan events through.
type EventScheduler interface {
	Now() int64
	// Schedule inserts an event at time at, which must not be in the past.
	Schedule(kind EventKind, job *Job, at int64) *Event
	// EnsureScheduled inserts a job-less event unless one of the same kind is
	// already pending at at.
	EnsureScheduled(kind EventKind, at int64)
	// DeleteJobEvents cancels every pending event of the job.
	DeleteJobEvents(id JobID) int
	// DeleteJobFinishEvent cancels the job's pending TERMINATION or
	// ABNORMAL_TERMINATION event.
	DeleteJobFinishEvent(id JobID) bool
	// ProcessingJob returns the job of the event currently being handled.
	ProcessingJob() (JobID, bool)
}

// Policy is the capability every scheduling policy provides. The engine and
// orchestrator only ever talk to policies through it.
type Policy interface {
	Name() string
	Arrive(job *Job)
	Schedule()
	Backfill()
	JobStart(job *Job)
	JobFinish(job *Job)
	JobBeginCompute(job *Job)
	JobEndCompute(job *Job)
	Stats() PolicyStats
	Table() *ReservationTable
	Waiting() int
	Running() int
}

// PolicyStats are the counters a policy keeps for collaborators.
type PolicyStats struct {
	Submitted      int
	Started        int
	Finished       int
	Killed         int
	Cancelled      int
	Backfilled     int
	Reserved       int // future reservations granted
	Passes         int // scheduling passes run
	BackfillPasses int
	Shrinks        int
	Expansions     int

	TotalWait            int64
	TotalRun             int64
	TotalSlowdown        float64
	TotalBoundedSlowdown float64
}

// Add returns the field-wise sum.
func (s PolicyStats) Add(o PolicyStats) PolicyStats {
	return PolicyStats{
		Submitted:            s.Submitted + o.Submitted,
		Started:              s.Started + o.Started,
		Finished:             s.Finished + o.Finished,
		Killed:               s.Killed + o.Killed,
		Cancelled:            s.Cancelled + o.Cancelled,
		Backfilled:           s.Backfilled + o.Backfilled,
		Reserved:             s.Reserved + o.Reserved,
		Passes:               s.Passes + o.Passes,
		BackfillPasses:       s.BackfillPasses + o.BackfillPasses,
		Shrinks:              s.Shrinks + o.Shrinks,
		Expansions:           s.Expansions + o.Expansions,
		TotalWait:            s.TotalWait + o.TotalWait,
		TotalRun:             s.TotalRun + o.TotalRun,
		TotalSlowdown:        s.TotalSlowdown + o.TotalSlowdown,
		TotalBoundedSlowdown: s.TotalBoundedSlowdown + o.TotalBoundedSlowdown,
	}
}

// MeanWait returns the mean wait of finished jobs.
func (s PolicyStats) MeanWait() float64 {
	if s.Finished == 0 {
		return 0
	}
	return float64(s.TotalWait) / float64(s.Finished)
}

// MeanBoundedSlowdown returns the mean bounded slowdown of finished jobs.
func (s PolicyStats) MeanBoundedSlowdown() float64 {
	if s.Finished == 0 {
		return 0
	}
	return s.TotalBoundedSlowdown / float64(s.Finished)
}

// NewPolicy creates the policy named by cfg.Policy over nodes.
// Empty string defaults to FCFS. Panics on unrecognized names.
func NewPolicy(cfg PolicyConfig, partition string, nodes []Node, jobs *JobSet, events EventScheduler, tracer trace.Tracer) Policy {
	switch cfg.Policy {
	case "", PolicyFCFS:
		return &FCFSPolicy{policyBase: newPolicyBase(PolicyFCFS, cfg, partition, nodes, jobs, events, tracer)}
	case PolicySLURM:
		return newSLURMPolicy(newPolicyBase(PolicySLURM, cfg, partition, nodes, jobs, events, tracer))
	default:
		panic(fmt.Sprintf("unknown policy %q", cfg.Policy))
	}
}

// policyBase holds the state and helpers shared by every policy.
type policyBase struct {
	cfg       PolicyConfig
	partition string
	table     *ReservationTable
	events    EventScheduler
	selector  SelectionStrategy
	jobs      *JobSet
	tracer    trace.Tracer
	waiting   *JobQueue
	running   *JobQueue
	stats     PolicyStats
	log       *logrus.Entry
}

func newPolicyBase(name string, cfg PolicyConfig, partition string, nodes []Node, jobs *JobSet, events EventScheduler, tracer trace.Tracer) policyBase {
	if cfg.CPUFactor == 0 {
		cfg.CPUFactor = 1
	}
	if !cfg.Tracing {
		tracer = nil
	}
	return policyBase{
		cfg:       cfg,
		partition: partition,
		table:     NewReservationTable(nodes, events.Now(), cfg.ReserveFullNode),
		events:    events,
		selector:  NewSelectionStrategy(cfg.Selection),
		jobs:      jobs,
		tracer:    tracer,
		waiting:   NewJobQueue(),
		running:   NewJobQueue(),
		log:       logrus.WithFields(logrus.Fields{"policy": name, "partition": partition}),
	}
}

func (p *policyBase) Table() *ReservationTable { return p.table }
func (p *policyBase) Stats() PolicyStats       { return p.stats }
func (p *policyBase) Waiting() int             { return p.waiting.Len() }
func (p *policyBase) Running() int             { return p.running.Len() }

// arrive queues the job, applying the CPU factor on its first arrival.
func (p *policyBase) arrive(job *Job) {
	job.emulate(p.cfg.CPUFactor)
	job.Status = JobQueued
	p.waiting.Enqueue(job)
	p.stats.Submitted++
	p.log.Debugf("arrival of job %d (%d CPUs, walltime %d) at %d", job.ID, job.Processors, job.Walltime(), p.events.Now())
}

type dependencyState int

const (
	dependenciesMet dependencyState = iota
	dependenciesPending
	dependenciesFailed
)

// dependencies inspects the job's workflow predecessors. Predecessors outside
// the workload are ignored.
func (p *policyBase) dependencies(job *Job) dependencyState {
	state := dependenciesMet
	for _, id := range job.Predecessors {
		pred := p.jobs.Get(id)
		if pred == nil {
			continue
		}
		switch pred.Status {
		case JobCompleted:
		case JobKilled, JobCancelled, JobSkipped:
			return dependenciesFailed
		default:
			state = dependenciesPending
		}
	}
	return state
}

// admissible reports whether a waiting job may be placed now. Jobs whose
// predecessors failed are cancelled.
func (p *policyBase) admissible(job *Job) bool {
	switch p.dependencies(job) {
	case dependenciesPending:
		return false
	case dependenciesFailed:
		p.cancel(job)
		return false
	}
	return true
}

func (p *policyBase) cancel(job *Job) {
	p.table.DeallocateJob(job.ID)
	p.waiting.Remove(job.ID)
	job.Status = JobCancelled
	p.stats.Cancelled++
	p.log.Warnf("job %d cancelled: a predecessor did not complete", job.ID)
}

// reserve selects shares for a feasible allocation and commits them.
func (p *policyBase) reserve(job *Job, a Allocation) Allocation {
	if !a.Feasible {
		panic(fmt.Sprintf("reserve: infeasible allocation for job %d: %v", job.ID, a))
	}
	a.Shares = p.selector.Select(job.Demand(), a)
	if len(a.Shares) == 0 {
		panic(fmt.Sprintf("reserve: selection produced no shares for job %d", job.ID))
	}
	p.table.AllocateJob(job.ID, a)
	job.AllocatedWith = p.selector.Name()
	return a
}

// commit reserves a and plans the job's START at a.Start along with its
// TERMINATION, or ABNORMAL_TERMINATION at its walltime when it would overrun.
func (p *policyBase) commit(job *Job, a Allocation, backfilled bool) {
	p.reserve(job, a)
	p.waiting.Remove(job.ID)
	job.Status = JobScheduled
	job.Backfilled = backfilled
	p.events.Schedule(EventStart, job, a.Start)
	if job.RunTime > job.Walltime() {
		p.events.Schedule(EventAbnormalTermination, job, a.Start+job.Walltime())
	} else {
		p.events.Schedule(EventTermination, job, a.Start+job.RunTime)
	}
	p.log.Debugf("job %d committed at %d on nodes %v (backfilled=%t)", job.ID, a.Start, a.Nodes(), backfilled)
}

// tryStart places job at the current time. With allowShrink, a failed attempt
// may shrink running malleable jobs once and retry.
func (p *policyBase) tryStart(job *Job, candidates []int, backfilled, allowShrink bool) (Allocation, bool) {
	now := p.events.Now()
	retried := false
	for {
		a := p.table.FindPossibleAllocation(job.Demand(), now, job.Walltime(), candidates)
		if a.Feasible {
			p.commit(job, a, backfilled)
			return a, true
		}
		if retried || !allowShrink || !p.cfg.MalleableShrink || !p.shrinkRunning(job.Processors-a.Available) {
			return a, false
		}
		retried = true
	}
}

// futureAllocation searches for the first window after an infeasible
// immediate attempt. The result never starts now.
func (p *policyBase) futureAllocation(job *Job, first Allocation, candidates []int) Allocation {
	if first.NextRetry == OpenEnded {
		return first
	}
	a := p.table.FindAllocation(job.Demand(), first.NextRetry, job.Walltime(), candidates)
	if a.Feasible && a.Start == p.events.Now() {
		panic(fmt.Sprintf("futureAllocation: job %d resolved to the current time %d", job.ID, a.Start))
	}
	return a
}

// shrinkRunning frees shortfall CPUs by shrinking running malleable jobs
// toward their minimum, most recently started first. Nothing changes unless
// the whole shortfall can be freed.
func (p *policyBase) shrinkRunning(shortfall int64) bool {
	if shortfall <= 0 {
		return false
	}
	var victims []*Job
	var spare int64
	items := p.running.Items()
	for i := len(items) - 1; i >= 0; i-- {
		j := items[i]
		if s := shrinkable(j); s > 0 {
			victims = append(victims, j)
			spare += s
		}
	}
	if spare < shortfall {
		return false
	}
	remaining := shortfall
	for _, j := range victims {
		if remaining == 0 {
			break
		}
		k := min(shrinkable(j), remaining)
		if !p.table.ShrinkJobAllocation(j.ID, k) {
			panic(fmt.Sprintf("shrinkRunning: job %d cannot release %d of %d CPUs", j.ID, k, j.Processors))
		}
		j.Processors -= k
		remaining -= k
		p.stats.Shrinks++
		p.log.Debugf("job %d shrunk by %d to %d CPUs", j.ID, k, j.Processors)
	}
	return true
}

func shrinkable(j *Job) int64 {
	if !j.Malleable {
		return 0
	}
	return max(j.Processors-max(j.MinProcessors, 1), 0)
}

// expandRunning grows running malleable jobs toward their maximum with
// capacity that stays free until each job's reserved end.
func (p *policyBase) expandRunning() {
	now := p.events.Now()
	for _, j := range p.running.Items() {
		if !j.Malleable || j.MaxProcessors <= j.Processors {
			continue
		}
		r, ok := p.table.Reservation(j.ID)
		if !ok {
			panic(fmt.Sprintf("expandRunning: running job %d has no reservation", j.ID))
		}
		if r.End < now {
			continue
		}
		d := Demand{CPUs: j.MaxProcessors - j.Processors, MemoryPerCPU: j.MemoryPerCPU, DiskPerCPU: j.DiskPerCPU}
		a := p.table.FindPossibleAllocation(d, now, r.End-now+1, nil)
		grow := min(a.Available, d.CPUs)
		if grow <= 0 {
			continue
		}
		d.CPUs = grow
		a.Feasible = true
		if !p.table.ExpandJobAllocation(j.ID, p.selector.Select(d, a)) {
			panic(fmt.Sprintf("expandRunning: job %d lost its reservation", j.ID))
		}
		j.Processors += grow
		p.stats.Expansions++
		p.log.Debugf("job %d expanded by %d to %d CPUs", j.ID, grow, j.Processors)
	}
}

// jobStart moves a scheduled job to running and plans its phase transitions.
func (p *policyBase) jobStart(job *Job) {
	if job.Status != JobScheduled {
		panic(fmt.Sprintf("jobStart: job %d is %s, not scheduled", job.ID, job.Status))
	}
	r, ok := p.table.Reservation(job.ID)
	if !ok {
		panic(fmt.Sprintf("jobStart: job %d has no reservation", job.ID))
	}
	now := p.events.Now()
	job.Status = JobRunning
	job.StartTime = now
	job.WaitTime = now - job.ArrivalTime
	job.Nodes = r.Nodes()
	job.NodesUsed = len(job.Nodes)
	p.running.Enqueue(job)
	p.stats.Started++
	if job.Backfilled {
		p.stats.Backfilled++
	}

	end := now + min(job.RunTime, job.Walltime())
	if job.InputTime > 0 && now+job.InputTime < end {
		p.events.Schedule(EventTransitionToCompute, job, now+job.InputTime)
	}
	if out := now + job.RunTime - job.OutputTime; job.OutputTime > 0 && out > now+job.InputTime && out < end {
		p.events.Schedule(EventTransitionToOutput, job, out)
	}

	if p.tracer != nil {
		p.tracer.JobStart(p.record(job, r))
	}
	p.log.Debugf("job %d started at %d on %d nodes", job.ID, now, job.NodesUsed)
}

// jobFinish releases the job's reservation and accumulates its metrics.
func (p *policyBase) jobFinish(job *Job) {
	if !p.running.Remove(job.ID) {
		panic(fmt.Sprintf("jobFinish: job %d is not running", job.ID))
	}
	r, ok := p.table.Reservation(job.ID)
	if !ok || !p.table.DeallocateJob(job.ID) {
		panic(fmt.Sprintf("jobFinish: job %d has no reservation", job.ID))
	}
	p.stats.Finished++
	if job.Killed {
		p.stats.Killed++
	}
	p.stats.TotalWait += job.WaitTime
	p.stats.TotalRun += job.FinishTime - job.StartTime
	p.stats.TotalSlowdown += job.Slowdown
	p.stats.TotalBoundedSlowdown += job.BoundedSlowdown
	if p.tracer != nil {
		p.tracer.JobEnd(p.record(job, r))
	}
	p.log.Debugf("job %d finished at %d (killed=%t)", job.ID, job.FinishTime, job.Killed)
}

func (p *policyBase) jobBeginCompute(job *Job) {
	if p.tracer != nil {
		p.tracer.JobBeginCompute(trace.PhaseRecord{JobID: int64(job.ID), Clock: p.events.Now()})
	}
}

func (p *policyBase) jobEndCompute(job *Job) {
	if p.tracer != nil {
		p.tracer.JobEndCompute(trace.PhaseRecord{JobID: int64(job.ID), Clock: p.events.Now()})
	}
}

func (p *policyBase) record(job *Job, r Reservation) trace.JobRecord {
	rec := trace.JobRecord{
		JobID:        int64(job.ID),
		Clock:        p.events.Now(),
		Continuation: p.cfg.PersistentMemory && job.Continuation,
		Backfilled:   job.Backfilled,
	}
	for _, n := range r.Nodes() {
		s := r.Shares[n]
		rec.Slices = append(rec.Slices, trace.Slice{
			Node: n, Start: r.Start, End: r.End, CPUs: s.CPUs, Memory: s.Memory, Disk: s.Disk,
		})
	}
	return rec
}
