// Implements the JobQueue, which holds a policy's waiting, scheduled or
// running jobs. Jobs are kept in enqueue order.

package sim

import (
	"fmt"
	"strings"
)

// JobQueue is an ordered set of jobs. Removal keeps the relative order of the
// remaining jobs.
type JobQueue struct {
	queue []*Job
	index map[JobID]struct{}
}

// NewJobQueue creates an empty queue.
func NewJobQueue() *JobQueue {
	return &JobQueue{index: make(map[JobID]struct{})}
}

// Enqueue adds a job to the back of the queue. Enqueuing a job twice is a defect.
func (q *JobQueue) Enqueue(j *Job) {
	if j == nil {
		panic("Enqueue: job must not be nil")
	}
	if _, dup := q.index[j.ID]; dup {
		panic(fmt.Sprintf("Enqueue: job %d already queued", j.ID))
	}
	q.queue = append(q.queue, j)
	q.index[j.ID] = struct{}{}
}

// Remove deletes the job from the queue and reports whether it was present.
func (q *JobQueue) Remove(id JobID) bool {
	if _, ok := q.index[id]; !ok {
		return false
	}
	delete(q.index, id)
	for i, j := range q.queue {
		if j.ID == id {
			q.queue = append(q.queue[:i], q.queue[i+1:]...)
			break
		}
	}
	return true
}

// Contains reports whether the job is queued.
func (q *JobQueue) Contains(id JobID) bool {
	_, ok := q.index[id]
	return ok
}

func (q *JobQueue) String() string {
	var sb strings.Builder
	sb.WriteString("[")
	for i, j := range q.queue {
		fmt.Fprint(&sb, j.ID)
		if i < len(q.queue)-1 {
			sb.WriteString(" ")
		}
	}
	sb.WriteString("]")
	return sb.String()
}

// Len returns the number of queued jobs.
func (q *JobQueue) Len() int {
	return len(q.queue)
}

// Peek returns the job at the front of the queue, or nil.
func (q *JobQueue) Peek() *Job {
	if len(q.queue) == 0 {
		return nil
	}
	return q.queue[0]
}

// Items returns a snapshot of the queue contents. Callers may enqueue and
// remove while iterating the snapshot.
func (q *JobQueue) Items() []*Job {
	return append([]*Job(nil), q.queue...)
}

// Reorder applies fn to the queue contents, allowing in-place reordering.
// fn MUST NOT change the slice length.
func (q *JobQueue) Reorder(fn func([]*Job)) {
	if fn == nil {
		panic("Reorder: fn must not be nil")
	}
	n := len(q.queue)
	fn(q.queue)
	if len(q.queue) != n {
		panic("Reorder: fn changed queue length")
	}
}

// Clear empties the queue.
func (q *JobQueue) Clear() {
	q.queue = nil
	q.index = make(map[JobID]struct{})
}
