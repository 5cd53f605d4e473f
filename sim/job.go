// Defines the Job struct that models a batch job from submission to completion,
// and JobSet, the arena that owns every job of a workload.

package sim

import (
	"fmt"
	"math"
	"sort"

	"github.com/pkg/errors"
)

// JobID is the workload-assigned job number.
type JobID int64

// JobStatus represents the lifecycle state of a job.
type JobStatus string

const (
	JobPending   JobStatus = "pending"   // not yet arrived
	JobQueued    JobStatus = "queued"    // waiting in a policy queue
	JobScheduled JobStatus = "scheduled" // committed, START event pending
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobKilled    JobStatus = "killed"    // ran past its requested walltime
	JobCancelled JobStatus = "cancelled" // a predecessor did not complete
	JobSkipped   JobStatus = "skipped"   // can never fit the cluster
)

// DefaultBSLDThreshold is the runtime floor, in seconds, of the bounded slowdown.
const DefaultBSLDThreshold int64 = 10

// Job models a single batch job's lifecycle in the simulation.
type Job struct {
	ID            JobID
	SubmitTime    int64 // seconds, as recorded by the workload
	RequestedTime int64 // walltime the user asked for; <= 0 means "same as RunTime"
	RunTime       int64 // actual runtime
	Processors    int64 // CPUs requested; current CPUs held for malleable jobs
	MemoryPerCPU  int64 // MB
	DiskPerCPU    int64 // MB
	Partition     string
	UserID        int64
	GroupID       int64

	// Malleable jobs may be resized within [MinProcessors, MaxProcessors] while running.
	Malleable     bool
	MinProcessors int64
	MaxProcessors int64

	// Workflow metadata.
	Predecessors []JobID
	Continuation bool  // persistent-memory continuation of its predecessors
	InputTime    int64 // length of the leading input phase
	OutputTime   int64 // length of the trailing output phase

	Status          JobStatus
	ArrivalTime     int64 // submit time after the arrival factor is applied
	StartTime       int64 // -1 until started
	FinishTime      int64 // -1 until finished
	WaitTime        int64
	Slowdown        float64
	BoundedSlowdown float64
	Backfilled      bool   // started ahead of a blocked job
	Killed          bool   // terminated at its walltime
	AllocatedWith   string // node selection strategy that placed the job
	NodesUsed       int
	Nodes           []int // nodes the job ran on, ascending
	Priority        int64 // SLURM age priority

	emulated  bool // CPU factor applied
	shortened bool // persistent-memory overlap applied
}

// NewJob returns a job in the pending state with the given required fields.
func NewJob(id JobID, submit, runTime, requested, processors int64) *Job {
	return &Job{
		ID:            id,
		SubmitTime:    submit,
		RunTime:       runTime,
		RequestedTime: requested,
		Processors:    processors,
		Status:        JobPending,
		StartTime:     -1,
		FinishTime:    -1,
	}
}

func (j *Job) String() string {
	return fmt.Sprintf("Job: (ID: %d, Status: %s, Procs: %d, Submit: %d, Run: %d, Req: %d)",
		j.ID, j.Status, j.Processors, j.SubmitTime, j.RunTime, j.RequestedTime)
}

// Walltime is the length of the window a job reserves.
func (j *Job) Walltime() int64 {
	if j.RequestedTime > 0 {
		return j.RequestedTime
	}
	return j.RunTime
}

// Demand returns the job's current resource demand.
func (j *Job) Demand() Demand {
	return Demand{CPUs: j.Processors, MemoryPerCPU: j.MemoryPerCPU, DiskPerCPU: j.DiskPerCPU}
}

// Finished reports whether the job reached a terminal state.
func (j *Job) Finished() bool {
	switch j.Status {
	case JobCompleted, JobKilled, JobCancelled, JobSkipped:
		return true
	}
	return false
}

// Clone returns a deep copy of the job.
func (j *Job) Clone() *Job {
	c := *j
	c.Predecessors = append([]JobID(nil), j.Predecessors...)
	c.Nodes = append([]int(nil), j.Nodes...)
	return &c
}

// finalize records the end of the job and derives its wait and slowdown.
func (j *Job) finalize(now int64, killed bool, bsldThreshold int64) {
	if j.StartTime < 0 {
		panic(fmt.Sprintf("finalize: job %d finished without starting", j.ID))
	}
	j.FinishTime = now
	j.Killed = killed
	if killed {
		j.Status = JobKilled
	} else {
		j.Status = JobCompleted
	}
	j.WaitTime = j.StartTime - j.ArrivalTime
	run := j.FinishTime - j.StartTime
	j.Slowdown = float64(j.WaitTime+run) / float64(max(run, 1))
	j.BoundedSlowdown = math.Max(1, float64(j.WaitTime+run)/float64(max(run, bsldThreshold, 1)))
}

// emulate scales runtime and walltime by factor once, rounding up.
func (j *Job) emulate(factor float64) {
	if j.emulated {
		return
	}
	j.emulated = true
	if factor == 1 || factor <= 0 {
		return
	}
	j.RunTime = int64(math.Ceil(float64(j.RunTime) * factor))
	if j.RequestedTime > 0 {
		j.RequestedTime = int64(math.Ceil(float64(j.RequestedTime) * factor))
	}
}

// JobSet owns every job of a workload, keyed by job number. Components refer
// to jobs by ID and look them up here.
type JobSet struct {
	jobs map[JobID]*Job
	ids  []JobID
}

// NewJobSet indexes jobs by ID. It fails on duplicate IDs.
func NewJobSet(jobs []*Job) (*JobSet, error) {
	s := &JobSet{jobs: make(map[JobID]*Job, len(jobs))}
	for _, j := range jobs {
		if _, dup := s.jobs[j.ID]; dup {
			return nil, errors.Errorf("duplicate job number %d", j.ID)
		}
		s.jobs[j.ID] = j
		s.ids = append(s.ids, j.ID)
	}
	sort.Slice(s.ids, func(a, b int) bool { return s.ids[a] < s.ids[b] })
	return s, nil
}

// Get returns the job with the given ID, or nil.
func (s *JobSet) Get(id JobID) *Job {
	return s.jobs[id]
}

// Len returns the number of jobs.
func (s *JobSet) Len() int {
	return len(s.ids)
}

// Jobs returns the jobs in job-number order.
func (s *JobSet) Jobs() []*Job {
	out := make([]*Job, len(s.ids))
	for i, id := range s.ids {
		out[i] = s.jobs[id]
	}
	return out
}

// Clone returns an independent deep copy, so several simulations can run the
// same workload concurrently.
func (s *JobSet) Clone() *JobSet {
	c := &JobSet{jobs: make(map[JobID]*Job, len(s.jobs)), ids: append([]JobID(nil), s.ids...)}
	for id, j := range s.jobs {
		c.jobs[id] = j.Clone()
	}
	return c
}
