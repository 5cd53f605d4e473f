package sim

import (
	"fmt"
	"sort"
)

// SelectionStrategy decides which candidate nodes supply a feasible demand.
type SelectionStrategy interface {
	Name() string
	// Select turns a feasible allocation's candidates into per-node shares
	// covering exactly d.CPUs CPUs.
	Select(d Demand, a Allocation) []Share
}

const (
	SelectFirstFit = "first-fit"
	SelectBestFit  = "best-fit"
)

// validSelectionStrategies is the set of recognized node selection names.
var validSelectionStrategies = map[string]bool{"": true, SelectFirstFit: true, SelectBestFit: true}

// IsValidSelectionStrategy reports whether name is a recognized strategy.
func IsValidSelectionStrategy(name string) bool { return validSelectionStrategies[name] }

// ValidSelectionStrategyNames returns the recognized strategy names, sorted.
func ValidSelectionStrategyNames() []string {
	names := make([]string, 0, len(validSelectionStrategies))
	for n := range validSelectionStrategies {
		if n != "" {
			names = append(names, n)
		}
	}
	sort.Strings(names)
	return names
}

// NewSelectionStrategy creates a SelectionStrategy by name. Empty string
// defaults to first-fit. Panics on unrecognized names.
func NewSelectionStrategy(name string) SelectionStrategy {
	switch name {
	case "", SelectFirstFit:
		return firstFit{}
	case SelectBestFit:
		return bestFit{}
	default:
		panic(fmt.Sprintf("unknown selection strategy %q", name))
	}
}

// firstFit walks nodes in ascending ID order and takes as much as each offers.
type firstFit struct{}

func (firstFit) Name() string { return SelectFirstFit }

func (firstFit) Select(d Demand, a Allocation) []Share {
	return takeShares(d, d.CPUs, a.Candidates)
}

// bestFit prefers the nodes with the fewest usable CPUs, packing jobs into
// fragments and keeping large nodes whole.
type bestFit struct{}

func (bestFit) Name() string { return SelectBestFit }

func (bestFit) Select(d Demand, a Allocation) []Share {
	cands := append([]Candidate(nil), a.Candidates...)
	sort.SliceStable(cands, func(i, j int) bool {
		if cands[i].Usable != cands[j].Usable {
			return cands[i].Usable < cands[j].Usable
		}
		return cands[i].Node < cands[j].Node
	})
	return takeShares(d, d.CPUs, cands)
}

// takeShares takes up to want CPUs from cands in order. Coming up short is a
// defect: callers select only from feasible allocations.
func takeShares(d Demand, want int64, cands []Candidate) []Share {
	var shares []Share
	remaining := want
	for _, c := range cands {
		if remaining == 0 {
			break
		}
		n := min(c.Usable, remaining)
		if n <= 0 {
			continue
		}
		shares = append(shares, Share{Node: c.Node, Amount: d.Scaled(n)})
		remaining -= n
	}
	if remaining > 0 {
		panic(fmt.Sprintf("takeShares: %d CPUs short of %d", remaining, want))
	}
	sort.Slice(shares, func(i, j int) bool { return shares[i].Node < shares[j].Node })
	return shares
}
