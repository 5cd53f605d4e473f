package workload

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hpcsim/hpcsim/sim"
)

const sampleSWF = `; Version: 2.2
; Computer: Test Cluster
; MaxProcs: 64
; free text with: a colon
1 0 5 100 4 -1 -1 4 200 2048 1 7 3 -1 1 1 -1 -1
2 10 0 50 -1 -1 1024 8 60 -1 1 7 3 -1 1 2 1 -1

3 20.5 0 30 2 -1 -1 -1 -1 -1 0 8 4 -1 1 -1 3 -1
`

func TestReadSWF_ParsesRecordsAndHeader(t *testing.T) {
	// GIVEN a small SWF trace with header comments
	// WHEN parsed with a partition name for SWF partition 2
	trace, err := ReadSWF(strings.NewReader(sampleSWF), SWFOptions{Partitions: map[int]string{2: "gpu"}})

	// THEN every record becomes a job with converted fields
	require.NoError(t, err)
	assert.Equal(t, "2.2", trace.Header["Version"])
	assert.Equal(t, "64", trace.Header["MaxProcs"])
	assert.Len(t, trace.Header, 3)
	require.Len(t, trace.Jobs, 3)

	j1 := trace.Jobs[0]
	assert.Equal(t, sim.JobID(1), j1.ID)
	assert.Equal(t, int64(100), j1.RunTime)
	assert.Equal(t, int64(200), j1.RequestedTime)
	assert.Equal(t, int64(4), j1.Processors)
	assert.Equal(t, int64(2), j1.MemoryPerCPU)
	assert.Equal(t, "1", j1.Partition)
	assert.Equal(t, int64(7), j1.UserID)
	assert.Empty(t, j1.Predecessors)
	assert.Equal(t, sim.JobPending, j1.Status)

	j2 := trace.Jobs[1]
	assert.Equal(t, int64(8), j2.Processors)
	assert.Equal(t, int64(1), j2.MemoryPerCPU, "falls back to used memory")
	assert.Equal(t, "gpu", j2.Partition)
	assert.Equal(t, []sim.JobID{1}, j2.Predecessors)

	j3 := trace.Jobs[2]
	assert.Equal(t, int64(20), j3.SubmitTime)
	assert.Equal(t, int64(2), j3.Processors, "falls back to allocated processors")
	assert.Equal(t, int64(-1), j3.RequestedTime)
	assert.Empty(t, j3.Partition)
	assert.Empty(t, j3.Predecessors, "self reference is not a dependency")
}

func TestReadSWF_MaxJobs(t *testing.T) {
	trace, err := ReadSWF(strings.NewReader(sampleSWF), SWFOptions{MaxJobs: 2})
	require.NoError(t, err)
	assert.Len(t, trace.Jobs, 2)
}

func TestReadSWF_RejectsMalformedRecords(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"too few fields", "1 0 5 100\n", "expected 18 fields"},
		{"not a number", "1 0 5 abc 4 -1 -1 4 200 -1 1 7 3 -1 1 1 -1 -1\n", "field 4"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadSWF(strings.NewReader(tt.input), SWFOptions{})
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
			assert.Contains(t, err.Error(), "line 1")
		})
	}
}

func TestLoadSWF_MissingFile(t *testing.T) {
	_, err := LoadSWF(filepath.Join(t.TempDir(), "none.swf"), SWFOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "opening SWF workload")
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadSWF_FromFile(t *testing.T) {
	path := writeFile(t, t.TempDir(), "trace.swf", sampleSWF)
	trace, err := LoadSWF(path, SWFOptions{})
	require.NoError(t, err)
	assert.Len(t, trace.Jobs, 3)
}
