// sim/simulator.go
package sim

import (
	"context"
	"fmt"
	"math"
	"sync/atomic"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/hpcsim/hpcsim/sim/trace"
)

// maxStatsStreak bounds back-to-back COLLECT_STATISTICS events once nothing
// else is left to simulate.
const maxStatsStreak = 5

// Simulation is the core object that holds simulation time, the event queue
// and the orchestrator, and runs the event loop.
type Simulation struct {
	cfg          SimConfig
	jobs         *JobSet
	orchestrator *Orchestrator
	queue        *EventQueue
	metrics      *Metrics

	clock       int64
	current     *Event
	statsStreak int
	ran         bool

	stopped   atomic.Bool
	progClock   atomic.Int64
	progCount   atomic.Int64
	progPending atomic.Int64

	log *logrus.Entry
}

// Progress is a snapshot of a running simulation, safe to read from other
// goroutines.
type Progress struct {
	Clock   int64
	Events  int64
	Pending int64
}

// NewSimulation creates a simulation of jobs on nodes. The job set is mutated
// by the run; clone it to simulate the same workload twice.
func NewSimulation(cfg SimConfig, policy PolicyConfig, nodes []Node, jobs *JobSet, tracer trace.Tracer) *Simulation {
	if cfg.ArrivalFactor <= 0 {
		cfg.ArrivalFactor = 1
	}
	if cfg.BSLDThreshold <= 0 {
		cfg.BSLDThreshold = DefaultBSLDThreshold
	}
	name := policy.Policy
	if name == "" {
		name = PolicyFCFS
	}
	s := &Simulation{
		cfg:     cfg,
		jobs:    jobs,
		queue:   NewEventQueue(),
		metrics: NewMetrics(name),
		log:     logrus.WithField("policy", name),
	}
	s.orchestrator = NewOrchestrator(policy, nodes, jobs, s, tracer)
	return s
}

// Now returns the simulation clock.
func (s *Simulation) Now() int64 { return s.clock }

// Schedule inserts an event. Events in the past are a defect.
func (s *Simulation) Schedule(kind EventKind, job *Job, at int64) *Event {
	if at < s.clock {
		panic(fmt.Sprintf("Schedule: %s at %d is before the clock %d", kind, at, s.clock))
	}
	return s.queue.Push(kind, job, at)
}

// EnsureScheduled inserts a job-less event unless one is already pending at at.
func (s *Simulation) EnsureScheduled(kind EventKind, at int64) {
	if !s.queue.Has(kind, at) {
		s.Schedule(kind, nil, at)
	}
}

// DeleteJobEvents cancels every pending event of the job.
func (s *Simulation) DeleteJobEvents(id JobID) int {
	n := 0
	for _, e := range s.queue.JobEvents(id) {
		if s.queue.Remove(e) {
			n++
		}
	}
	return n
}

// DeleteJobFinishEvent cancels the job's pending termination.
func (s *Simulation) DeleteJobFinishEvent(id JobID) bool {
	for _, e := range s.queue.JobEvents(id) {
		if e.Kind() == EventTermination || e.Kind() == EventAbnormalTermination {
			return s.queue.Remove(e)
		}
	}
	return false
}

// ProcessingJob returns the job of the event being dispatched.
func (s *Simulation) ProcessingJob() (JobID, bool) {
	if s.current == nil || s.current.Job() == nil {
		return 0, false
	}
	return s.current.Job().ID, true
}

// ForceJobFinish moves a running job's termination to the current time. The
// job counts as killed.
func (s *Simulation) ForceJobFinish(job *Job) bool {
	if job.Status != JobRunning || !s.DeleteJobFinishEvent(job.ID) {
		return false
	}
	s.Schedule(EventAbnormalTermination, job, s.clock)
	return true
}

// ForceJobStart handles the job's START event now if it is due at the current
// time, ahead of other events of the same instant.
func (s *Simulation) ForceJobStart(job *Job) bool {
	for _, e := range s.queue.JobEvents(job.ID) {
		if e.Kind() == EventStart && e.Time() == s.clock {
			s.queue.Remove(e)
			s.dispatch(e)
			return true
		}
	}
	return false
}

// RequestStop asks the event loop to stop after the current event. Safe to
// call from any goroutine.
func (s *Simulation) RequestStop() { s.stopped.Store(true) }

// Progress returns the clock, the number of events processed so far and the
// number still queued.
func (s *Simulation) Progress() Progress {
	return Progress{Clock: s.progClock.Load(), Events: s.progCount.Load(), Pending: s.progPending.Load()}
}

func (s *Simulation) Metrics() *Metrics           { return s.metrics }
func (s *Simulation) Orchestrator() *Orchestrator { return s.orchestrator }
func (s *Simulation) Jobs() *JobSet               { return s.jobs }
func (s *Simulation) Pending(kind EventKind) int  { return s.queue.Pending(kind) }

// PendingEvents reads the queue directly; use Progress while Run is in
// progress on another goroutine.
func (s *Simulation) PendingEvents() int { return s.queue.Len() }

// initialize loads every runnable job as an ARRIVAL, one SCHEDULE per
// distinct arrival time, and the first COLLECT_STATISTICS.
func (s *Simulation) initialize() {
	var arrivals []*Job
	for _, j := range s.jobs.Jobs() {
		if j.RunTime <= 0 || j.Processors <= 0 || !s.orchestrator.Fits(j) {
			j.Status = JobSkipped
			s.metrics.Skipped++
			s.log.Debugf("skipping job %d (run %d, procs %d, partition %q)", j.ID, j.RunTime, j.Processors, j.Partition)
			continue
		}
		j.ArrivalTime = max(0, int64(math.Round(float64(j.SubmitTime)*s.cfg.ArrivalFactor)))
		s.Schedule(EventArrival, j, j.ArrivalTime)
		arrivals = append(arrivals, j)
	}
	s.metrics.Submitted = len(arrivals)

	for _, j := range arrivals {
		s.EnsureScheduled(EventSchedule, j.ArrivalTime)
	}
	if s.cfg.StatsInterval > 0 {
		s.Schedule(EventCollectStatistics, nil, s.cfg.StatsInterval)
	}
	s.log.Infof("loaded %d jobs (%d skipped) on %d CPUs", len(arrivals), s.metrics.Skipped, s.orchestrator.Capacity().CPUs)
}

// Run executes the simulation until the queue drains, the horizon passes,
// ctx is cancelled or a stop is requested. It may be called once.
func (s *Simulation) Run(ctx context.Context) error {
	if s.ran {
		panic("Simulation.Run called twice")
	}
	s.ran = true
	s.initialize()
	s.progPending.Store(int64(s.queue.Len()))

	for s.queue.Len() > 0 {
		if ctx.Err() != nil || s.stopped.Load() {
			break
		}
		next := s.queue.Peek()
		if s.cfg.Horizon > 0 && next.Time() > s.cfg.Horizon {
			s.log.Infof("horizon %d reached", s.cfg.Horizon)
			s.clock = s.cfg.Horizon
			break
		}
		e := s.queue.Pop()
		if e.Time() < s.clock {
			panic(fmt.Sprintf("Clock went backwards: %d < %d", e.Time(), s.clock))
		}
		if e.Time() > s.clock {
			s.clock = e.Time()
			s.orchestrator.Advance(s.clock)
		}
		s.dispatch(e)
		s.progClock.Store(s.clock)
		s.progCount.Add(1)
		s.progPending.Store(int64(s.queue.Len()))
	}

	s.finish()
	s.progPending.Store(0)
	if err := ctx.Err(); err != nil {
		return errors.Wrapf(err, "simulation interrupted at t=%d", s.clock)
	}
	return nil
}

func (s *Simulation) dispatch(e *Event) {
	prev := s.current
	s.current = e
	defer func() { s.current = prev }()
	logrus.Tracef("[t=%09d] %s", s.clock, e)

	if e.Kind() != EventCollectStatistics {
		s.statsStreak = 0
	}
	job := e.Job()
	switch e.Kind() {
	case EventArrival:
		s.orchestrator.Arrive(job)
	case EventSchedule:
		s.orchestrator.Schedule()
	case EventBackfill:
		s.orchestrator.Backfill()
	case EventStart:
		s.orchestrator.JobStart(job)
		s.metrics.recordStart(job)
	case EventTermination, EventAbnormalTermination:
		job.finalize(s.clock, e.Kind() == EventAbnormalTermination, s.cfg.BSLDThreshold)
		s.orchestrator.JobFinish(job)
		s.metrics.recordFinish(job)
		s.EnsureScheduled(EventSchedule, s.clock)
	case EventTransitionToCompute:
		s.orchestrator.JobBeginCompute(job)
	case EventTransitionToOutput:
		s.orchestrator.JobEndCompute(job)
	case EventCollectStatistics:
		s.collect()
	default:
		panic(fmt.Sprintf("unknown event kind %s", e.Kind()))
	}
}

// collect samples the system and re-arms itself while other events are
// pending, or for a few more intervals once only statistics remain.
func (s *Simulation) collect() {
	s.statsStreak++
	s.metrics.Samples = append(s.metrics.Samples, Sample{
		Time:      s.clock,
		Waiting:   s.orchestrator.Waiting(),
		Running:   s.orchestrator.Running(),
		UsedCPUs:  s.orchestrator.UsedCPUs(s.clock),
		TotalCPUs: s.orchestrator.Capacity().CPUs,
	})
	if s.statsStreak < maxStatsStreak || s.queue.Len() > s.queue.Pending(EventCollectStatistics) {
		s.EnsureScheduled(EventCollectStatistics, s.clock+s.cfg.StatsInterval)
	}
}

func (s *Simulation) finish() {
	s.metrics.finalize(s.jobs, s.clock, s.orchestrator.Stats())
	s.queue.Clear()
	s.log.Infof("simulation ended at t=%d: %d finished, %d unfinished", s.clock, s.metrics.Finished(), s.metrics.Unfinished)
}
