package sim

import "container/heap"

// eventHeap implements heap.Interface ordered by time, then event ID.
// Each event tracks its index so pending events can be cancelled in place.
type eventHeap []*Event

// Len implements heap.Interface
func (h eventHeap) Len() int { return len(h) }

// Less implements heap.Interface with deterministic ordering
func (h eventHeap) Less(i, j int) bool {
	if h[i].time != h[j].time {
		return h[i].time < h[j].time
	}
	return h[i].id < h[j].id
}

// Swap implements heap.Interface
func (h eventHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

// Push implements heap.Interface
func (h *eventHeap) Push(x any) {
	e := x.(*Event)
	e.index = len(*h)
	*h = append(*h, e)
}

// Pop implements heap.Interface
func (h *eventHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*h = old[:n-1]
	return e
}

// EventQueue is the simulation's pending event set. Besides the time order it
// indexes events by job so a job's pending events can be cancelled.
type EventQueue struct {
	heap    eventHeap
	byJob   map[JobID]map[uint64]*Event
	pending map[EventKind]int
	slots   map[slot]int
	nextID  uint64
}

type slot struct {
	kind EventKind
	time int64
}

// NewEventQueue creates an empty queue.
func NewEventQueue() *EventQueue {
	return &EventQueue{
		byJob:   make(map[JobID]map[uint64]*Event),
		pending: make(map[EventKind]int),
		slots:   make(map[slot]int),
	}
}

// Len returns the number of pending events.
func (q *EventQueue) Len() int { return q.heap.Len() }

// Pending returns the number of pending events of a kind.
func (q *EventQueue) Pending(kind EventKind) int { return q.pending[kind] }

// Push schedules a new event and returns it. Job events must carry a job.
func (q *EventQueue) Push(kind EventKind, job *Job, at int64) *Event {
	if kind.jobEvent() && job == nil {
		panic("EventQueue.Push: " + kind.String() + " event without a job")
	}
	q.nextID++
	e := &Event{kind: kind, job: job, id: q.nextID, time: at}
	heap.Push(&q.heap, e)
	q.pending[kind]++
	q.slots[slot{kind, at}]++
	if job != nil {
		if q.byJob[job.ID] == nil {
			q.byJob[job.ID] = make(map[uint64]*Event)
		}
		q.byJob[job.ID][e.id] = e
	}
	return e
}

// Pop removes and returns the earliest event, or nil when empty.
func (q *EventQueue) Pop() *Event {
	if q.heap.Len() == 0 {
		return nil
	}
	e := heap.Pop(&q.heap).(*Event)
	q.forget(e)
	return e
}

// Peek returns the earliest event without removing it.
func (q *EventQueue) Peek() *Event {
	if q.heap.Len() == 0 {
		return nil
	}
	return q.heap[0]
}

// Remove cancels a pending event. It returns false if the event already fired
// or was cancelled.
func (q *EventQueue) Remove(e *Event) bool {
	if e == nil || e.index < 0 || e.index >= q.heap.Len() || q.heap[e.index] != e {
		return false
	}
	heap.Remove(&q.heap, e.index)
	q.forget(e)
	return true
}

// JobEvents returns the job's pending events ordered by firing order.
func (q *EventQueue) JobEvents(id JobID) []*Event {
	events := make([]*Event, 0, len(q.byJob[id]))
	for _, e := range q.byJob[id] {
		events = append(events, e)
	}
	h := eventHeap(events)
	for i := 1; i < len(h); i++ {
		for j := i; j > 0 && h.Less(j, j-1); j-- {
			h[j], h[j-1] = h[j-1], h[j]
		}
	}
	return events
}

// Has reports whether an event of kind is pending at exactly time at.
func (q *EventQueue) Has(kind EventKind, at int64) bool {
	return q.slots[slot{kind, at}] > 0
}

// Clear drops every pending event.
func (q *EventQueue) Clear() {
	for _, e := range q.heap {
		e.index = -1
	}
	q.heap = nil
	q.byJob = make(map[JobID]map[uint64]*Event)
	q.pending = make(map[EventKind]int)
	q.slots = make(map[slot]int)
}

func (q *EventQueue) forget(e *Event) {
	q.pending[e.kind]--
	if k := (slot{e.kind, e.time}); q.slots[k] > 1 {
		q.slots[k]--
	} else {
		delete(q.slots, k)
	}
	if e.job == nil {
		return
	}
	if m := q.byJob[e.job.ID]; m != nil {
		delete(m, e.id)
		if len(m) == 0 {
			delete(q.byJob, e.job.ID)
		}
	}
}
