// Package trace provides job-lifecycle trace recording for schedule analysis.
// This package has no dependencies on sim/; it stores pure data types.
package trace

// Slice is one node's part of a job's reservation.
type Slice struct {
	Node   int
	Start  int64
	End    int64 // inclusive
	CPUs   int64
	Memory int64 // MB
	Disk   int64 // MB
}

// JobRecord captures a job start or end together with the slices it holds.
type JobRecord struct {
	JobID        int64
	Clock        int64
	Slices       []Slice
	Continuation bool // persistent-memory continuation of a workflow predecessor
	Backfilled   bool
}

// PhaseRecord captures a job entering or leaving its compute phase.
type PhaseRecord struct {
	JobID int64
	Clock int64
}
