package sim

import "fmt"

// Reason explains why an allocation search came back infeasible.
type Reason int

const (
	ReasonNone Reason = iota
	// ReasonInsufficientResources: enough CPUs are free but memory or disk
	// per CPU cannot be satisfied.
	ReasonInsufficientResources
	// ReasonInsufficientCPUs: not enough CPUs are free in the window.
	ReasonInsufficientCPUs
	// ReasonCollision: the job is pinned to specific nodes and those nodes are busy.
	ReasonCollision
)

func (r Reason) String() string {
	switch r {
	case ReasonNone:
		return "none"
	case ReasonInsufficientResources:
		return "insufficient-resources"
	case ReasonInsufficientCPUs:
		return "insufficient-cpus"
	case ReasonCollision:
		return "collision"
	}
	return fmt.Sprintf("reason(%d)", int(r))
}

// Candidate is one node's contribution to an allocation search: the minimum
// free resources over the window and how many CPUs of the demand they admit.
type Candidate struct {
	Node   int
	Free   Resources
	Usable int64
}

// Share is the amount a job takes on one node.
type Share struct {
	Node   int
	Amount Resources
}

// Allocation is the result of an allocation search over [Start, End], and,
// once shares are selected, the input of ReservationTable.AllocateJob.
type Allocation struct {
	Start      int64
	End        int64
	Candidates []Candidate // nodes with usable CPUs, ascending by node ID
	Shares     []Share     // filled by node selection
	Available  int64       // usable CPUs summed over Candidates
	Feasible   bool
	Reason     Reason
	NextRetry  int64 // earliest time a retry could succeed; OpenEnded if never
}

func (a Allocation) String() string {
	return fmt.Sprintf("Allocation: ([%d, %d], Feasible: %t, Available: %d, Reason: %s, NextRetry: %d)",
		a.Start, a.End, a.Feasible, a.Available, a.Reason, a.NextRetry)
}

// Nodes returns the node IDs of the selected shares.
func (a Allocation) Nodes() []int {
	nodes := make([]int, len(a.Shares))
	for i, s := range a.Shares {
		nodes[i] = s.Node
	}
	return nodes
}
