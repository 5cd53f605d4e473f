package trace

import "testing"

func TestSummarize_EmptyTrace_ZeroValues(t *testing.T) {
	for _, st := range []*SimulationTrace{nil, NewSimulationTrace(TraceConfig{Level: TraceLevelJobs})} {
		summary := Summarize(st)
		if summary.Started != 0 || summary.Ended != 0 {
			t.Errorf("expected zero counts, got %d/%d", summary.Started, summary.Ended)
		}
		if summary.MeanNodesPerJob != 0 {
			t.Errorf("expected zero mean, got %f", summary.MeanNodesPerJob)
		}
		if summary.NodeDistribution == nil {
			t.Error("expected non-nil distribution")
		}
	}
}

func TestSummarize_PopulatedTrace_CorrectCounts(t *testing.T) {
	// GIVEN two jobs, one spanning two nodes and one a backfilled continuation
	st := NewSimulationTrace(TraceConfig{Level: TraceLevelJobs})
	st.JobStart(JobRecord{JobID: 1, Slices: []Slice{{Node: 0, CPUs: 4}, {Node: 1, CPUs: 2}}})
	st.JobStart(JobRecord{JobID: 2, Slices: []Slice{{Node: 1, CPUs: 1}}, Continuation: true, Backfilled: true})
	st.JobEnd(JobRecord{JobID: 1})

	// WHEN summarized
	summary := Summarize(st)

	// THEN counts and node usage match
	if summary.Started != 2 || summary.Ended != 1 {
		t.Errorf("expected 2 started and 1 ended, got %d/%d", summary.Started, summary.Ended)
	}
	if summary.Continuations != 1 || summary.Backfilled != 1 {
		t.Errorf("expected 1 continuation and 1 backfill, got %d/%d", summary.Continuations, summary.Backfilled)
	}
	if summary.UniqueNodes != 2 {
		t.Errorf("expected 2 unique nodes, got %d", summary.UniqueNodes)
	}
	if summary.NodeDistribution[1] != 2 {
		t.Errorf("expected node 1 used by 2 jobs, got %d", summary.NodeDistribution[1])
	}
	if summary.MeanNodesPerJob != 1.5 || summary.MaxNodesPerJob != 2 {
		t.Errorf("expected mean 1.5 max 2, got %f/%d", summary.MeanNodesPerJob, summary.MaxNodesPerJob)
	}
}
