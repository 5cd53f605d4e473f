package trace

// TraceSummary aggregates statistics from a SimulationTrace.
type TraceSummary struct {
	Started          int
	Ended            int
	Continuations    int
	Backfilled       int
	UniqueNodes      int
	MeanNodesPerJob  float64
	MaxNodesPerJob   int
	NodeDistribution map[int]int // node ID → count of jobs started on it
}

// Summarize computes aggregate statistics from a SimulationTrace.
// Safe for nil or empty traces (returns zero-value fields).
func Summarize(st *SimulationTrace) *TraceSummary {
	summary := &TraceSummary{
		NodeDistribution: make(map[int]int),
	}
	if st == nil {
		return summary
	}

	summary.Started = len(st.Starts)
	summary.Ended = len(st.Ends)

	totalNodes := 0
	for _, r := range st.Starts {
		if r.Continuation {
			summary.Continuations++
		}
		if r.Backfilled {
			summary.Backfilled++
		}
		nodes := make(map[int]bool)
		for _, s := range r.Slices {
			nodes[s.Node] = true
		}
		for n := range nodes {
			summary.NodeDistribution[n]++
		}
		totalNodes += len(nodes)
		if len(nodes) > summary.MaxNodesPerJob {
			summary.MaxNodesPerJob = len(nodes)
		}
	}
	if summary.Started > 0 {
		summary.MeanNodesPerJob = float64(totalNodes) / float64(summary.Started)
	}

	summary.UniqueNodes = len(summary.NodeDistribution)

	return summary
}
