package sim

import "fmt"

// EventKind identifies what an event does when it fires.
type EventKind int

const (
	EventArrival EventKind = iota
	EventStart
	EventTermination
	EventAbnormalTermination
	EventSchedule
	EventBackfill
	EventTransitionToCompute
	EventTransitionToOutput
	EventCollectStatistics
)

var eventKindNames = map[EventKind]string{
	EventArrival:             "ARRIVAL",
	EventStart:               "START",
	EventTermination:         "TERMINATION",
	EventAbnormalTermination: "ABNORMAL_TERMINATION",
	EventSchedule:            "SCHEDULE",
	EventBackfill:            "BACKFILL",
	EventTransitionToCompute: "TRANSITION_TO_COMPUTE",
	EventTransitionToOutput:  "TRANSITION_TO_OUTPUT",
	EventCollectStatistics:   "COLLECT_STATISTICS",
}

func (k EventKind) String() string {
	if name, ok := eventKindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("EventKind(%d)", int(k))
}

// jobEvent reports whether events of this kind always carry a job.
func (k EventKind) jobEvent() bool {
	switch k {
	case EventArrival, EventStart, EventTermination, EventAbnormalTermination,
		EventTransitionToCompute, EventTransitionToOutput:
		return true
	}
	return false
}

// Event is a timestamped occurrence in the simulation. Events are ordered by
// time, then by ID; IDs are assigned in insertion order so simultaneous events
// fire in the order they were created.
type Event struct {
	kind  EventKind
	job   *Job
	id    uint64
	time  int64
	index int // position in the event queue, -1 once removed
}

// Kind returns the event kind.
func (e *Event) Kind() EventKind { return e.kind }

// Job returns the job the event concerns, or nil.
func (e *Event) Job() *Job { return e.job }

// ID returns the event's insertion sequence number.
func (e *Event) ID() uint64 { return e.id }

// Time returns the simulation time at which the event fires.
func (e *Event) Time() int64 { return e.time }

func (e *Event) String() string {
	if e.job == nil {
		return fmt.Sprintf("Event: (%s, ID: %d, Time: %d)", e.kind, e.id, e.time)
	}
	return fmt.Sprintf("Event: (%s, ID: %d, Time: %d, Job: %d)", e.kind, e.id, e.time, e.job.ID)
}
