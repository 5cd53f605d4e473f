package sim

import (
	"sort"

	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// SLURMPolicy places jobs by age priority. Every pass re-plans all jobs that
// have not started yet: the first PriorityWindow jobs get an immediate start
// or a committed future reservation, the jobs beyond the window may only
// start now, and a separate backfill pass places whatever is left.
type SLURMPolicy struct {
	policyBase

	scheduled   *JobQueue // committed, START pending
	windowed    map[JobID]bool
	lastPass    int64
	passed      bool
	backfilling bool
}

func newSLURMPolicy(base policyBase) *SLURMPolicy {
	return &SLURMPolicy{
		policyBase: base,
		scheduled:  NewJobQueue(),
		windowed:   make(map[JobID]bool),
	}
}

func (p *SLURMPolicy) Name() string { return PolicySLURM }

func (p *SLURMPolicy) Arrive(job *Job) { p.arrive(job) }

// Scheduled returns the number of jobs holding a committed plan that have not
// started yet.
func (p *SLURMPolicy) Scheduled() int { return p.scheduled.Len() }

// Schedule runs one priority pass, at most once per SchedulerInterval. A
// throttled call is deferred to the end of the interval.
func (p *SLURMPolicy) Schedule() {
	now := p.events.Now()
	if p.passed && now-p.lastPass < p.cfg.SchedulerInterval {
		p.events.EnsureScheduled(EventSchedule, p.lastPass+p.cfg.SchedulerInterval)
		return
	}
	p.passed = true
	p.lastPass = now
	p.stats.Passes++

	p.unschedule()
	// every job not yet started ages, including the ones just unscheduled
	for _, j := range p.waiting.Items() {
		j.Priority++
	}

	p.windowed = make(map[JobID]bool)
	count := 0
	for _, j := range p.ordered() {
		if !p.admissible(j) {
			continue
		}
		count++
		if p.cfg.PriorityWindow > 0 && count > p.cfg.PriorityWindow {
			if _, ok := p.tryStart(j, p.prepare(j), true, false); !ok {
				break
			}
			p.scheduled.Enqueue(j)
			continue
		}
		p.windowed[j.ID] = true
		p.place(j, false)
	}

	if p.cfg.MalleableExpand {
		p.expandRunning()
	}
	p.events.EnsureScheduled(EventBackfill, now+p.cfg.BackfillDelay)
}

// Backfill places every admissible job outside the last priority window,
// starting it now or reserving its first future window. Nested calls are
// ignored.
func (p *SLURMPolicy) Backfill() {
	if p.backfilling {
		return
	}
	p.backfilling = true
	defer func() { p.backfilling = false }()
	p.stats.BackfillPasses++

	for _, j := range p.ordered() {
		if p.windowed[j.ID] || !p.admissible(j) {
			continue
		}
		p.place(j, true)
	}
}

// unschedule returns every committed but unstarted job to the wait queue,
// cancelling its planned events. The job of the event being processed is
// left alone; its handler emits the follow-up events.
func (p *SLURMPolicy) unschedule() {
	current, processing := p.events.ProcessingJob()
	for _, j := range p.scheduled.Items() {
		if processing && j.ID == current {
			continue
		}
		p.events.DeleteJobEvents(j.ID)
		if !p.table.DeallocateJob(j.ID) {
			panic("unschedule: scheduled job " + j.String() + " holds no reservation")
		}
		p.scheduled.Remove(j.ID)
		j.Status = JobQueued
		j.Backfilled = false
		p.waiting.Enqueue(j)
	}
}

// place starts j now or commits its first future window. Pinned jobs that
// find no window on their predecessors' nodes fall back to the whole
// partition.
func (p *SLURMPolicy) place(j *Job, backfilled bool) bool {
	cands := p.prepare(j)
	first, ok := p.tryStart(j, cands, backfilled, p.cfg.MalleableShrink && !backfilled)
	if ok {
		p.scheduled.Enqueue(j)
		return true
	}
	a := p.futureAllocation(j, first, cands)
	if !a.Feasible && cands != nil {
		if first, ok = p.tryStart(j, nil, backfilled, false); ok {
			p.scheduled.Enqueue(j)
			return true
		}
		a = p.futureAllocation(j, first, nil)
	}
	if !a.Feasible {
		p.log.Debugf("job %d has no window (%s)", j.ID, a.Reason)
		return false
	}
	p.commit(j, a, false)
	p.scheduled.Enqueue(j)
	p.stats.Reserved++
	return true
}

// ordered returns the waiting jobs by priority, then arrival, then ID.
func (p *SLURMPolicy) ordered() []*Job {
	jobs := p.waiting.Items()
	sort.SliceStable(jobs, func(i, k int) bool {
		if jobs[i].Priority != jobs[k].Priority {
			return jobs[i].Priority > jobs[k].Priority
		}
		if jobs[i].ArrivalTime != jobs[k].ArrivalTime {
			return jobs[i].ArrivalTime < jobs[k].ArrivalTime
		}
		return jobs[i].ID < jobs[k].ID
	})
	return jobs
}

// prepare applies persistent-memory handling to a workflow continuation: the
// job is shortened once by the input phase that overlapped its predecessors'
// output, and pinned to the nodes its predecessors ran on. It returns nil
// when the job is not pinned.
func (p *SLURMPolicy) prepare(j *Job) []int {
	if !p.cfg.PersistentMemory || !j.Continuation || len(j.Predecessors) == 0 {
		return nil
	}
	nodes := make(map[int]struct{})
	var overlap int64
	for _, id := range j.Predecessors {
		pred := p.jobs.Get(id)
		if pred == nil {
			continue
		}
		for _, n := range pred.Nodes {
			if p.table.HasNode(n) {
				nodes[n] = struct{}{}
			}
		}
		overlap = max(overlap, min(j.InputTime, pred.OutputTime))
	}
	if !j.shortened {
		j.shortened = true
		if cut := min(overlap, j.RunTime-1); cut > 0 {
			j.RunTime -= cut
			j.InputTime -= cut
			if j.RequestedTime > cut {
				j.RequestedTime -= cut
			}
			p.log.Debugf("continuation %d shortened by %d", j.ID, cut)
		}
	}
	if len(nodes) == 0 {
		return nil
	}
	ids := maps.Keys(nodes)
	slices.Sort(ids)
	return ids
}

// JobStart moves a scheduled job to running.
func (p *SLURMPolicy) JobStart(job *Job) {
	if !p.scheduled.Remove(job.ID) {
		panic("JobStart: job " + job.String() + " is not scheduled")
	}
	p.jobStart(job)
}

func (p *SLURMPolicy) JobFinish(job *Job)       { p.jobFinish(job) }
func (p *SLURMPolicy) JobBeginCompute(job *Job) { p.jobBeginCompute(job) }
func (p *SLURMPolicy) JobEndCompute(job *Job)   { p.jobEndCompute(job) }
