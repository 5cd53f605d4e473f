package sim

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewSelectionStrategy_ByName(t *testing.T) {
	assert.Equal(t, SelectFirstFit, NewSelectionStrategy("").Name())
	assert.Equal(t, SelectFirstFit, NewSelectionStrategy(SelectFirstFit).Name())
	assert.Equal(t, SelectBestFit, NewSelectionStrategy(SelectBestFit).Name())
	assert.Panics(t, func() { NewSelectionStrategy("worst-fit") })
	assert.Equal(t, []string{SelectBestFit, SelectFirstFit}, ValidSelectionStrategyNames())
	assert.True(t, IsValidSelectionStrategy(""))
	assert.False(t, IsValidSelectionStrategy("worst-fit"))
}

func TestFirstFit_TakesLowestNodesFirst(t *testing.T) {
	d := Demand{CPUs: 5, MemoryPerCPU: 10}
	a := Allocation{Feasible: true, Candidates: []Candidate{
		{Node: 0, Usable: 4}, {Node: 1, Usable: 1}, {Node: 2, Usable: 8},
	}}

	shares := NewSelectionStrategy(SelectFirstFit).Select(d, a)

	assert.Equal(t, []Share{
		{Node: 0, Amount: Resources{CPUs: 4, Memory: 40}},
		{Node: 1, Amount: Resources{CPUs: 1, Memory: 10}},
	}, shares)
}

func TestBestFit_PrefersSmallestFragments(t *testing.T) {
	d := Demand{CPUs: 5}
	a := Allocation{Feasible: true, Candidates: []Candidate{
		{Node: 0, Usable: 8}, {Node: 1, Usable: 2}, {Node: 2, Usable: 4},
	}}

	shares := NewSelectionStrategy(SelectBestFit).Select(d, a)

	// Node 1 (2) then node 2 (3 of 4); shares are returned by node ID.
	assert.Equal(t, []Share{
		{Node: 1, Amount: Resources{CPUs: 2}},
		{Node: 2, Amount: Resources{CPUs: 3}},
	}, shares)
}

func TestTakeShares_PanicsWhenShort(t *testing.T) {
	assert.Panics(t, func() {
		takeShares(Demand{CPUs: 4}, 4, []Candidate{{Node: 0, Usable: 2}})
	})
}
