package arch

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hpcsim/hpcsim/sim"
)

const sampleCluster = `
version: "1"
name: test
partitions:
  - name: batch
    number: 1
    nodes:
      - count: 2
        cpus: 32
        memory: 128GiB
        disk: 1TiB
      - count: 1
        cpus: 64
        memory: "2048"
        network_bandwidth: 10000
  - name: debug
    nodes:
      - count: 1
        cpus: 4
`

func TestParse_ExpandsNodeGroups(t *testing.T) {
	// GIVEN two partitions with three node groups
	c, err := Parse([]byte(sampleCluster))
	require.NoError(t, err)

	// WHEN expanded
	nodes := c.Nodes()

	// THEN IDs are dense in declaration order and sizes are in MB
	require.Len(t, nodes, 4)
	assert.Equal(t, sim.Node{ID: 0, Partition: "batch", Capacity: sim.Resources{CPUs: 32, Memory: 131072, Disk: 1048576}}, nodes[0])
	assert.Equal(t, 1, nodes[1].ID)
	assert.Equal(t, sim.Resources{CPUs: 64, Memory: 2048, NetBW: 10000}, nodes[2].Capacity)
	assert.Equal(t, "debug", nodes[3].Partition)
	assert.Equal(t, map[int]string{1: "batch"}, c.PartitionNumbers())
}

func TestParse_RejectsUnknownFields(t *testing.T) {
	_, err := Parse([]byte("partitions:\n  - name: a\n    nodez: []\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nodez")
}

func TestValidate_ReportsAllProblems(t *testing.T) {
	// GIVEN a description with several mistakes
	c := &Cluster{Partitions: []PartitionSpec{
		{Name: "a", Number: 1, Nodes: []NodeGroup{{Count: 0, CPUs: 0, Memory: "lots"}}},
		{Name: "a", Number: 1},
		{Nodes: []NodeGroup{{Count: 1, CPUs: 1, DiskBW: -1}}},
	}}

	// WHEN validated
	err := c.Validate()

	// THEN each is reported
	require.Error(t, err)
	for _, want := range []string{"count must be positive", "cpus must be positive", "memory:", `duplicate partition "a"`, `number 1 already used by "a"`, "no nodes", "name is required", "bandwidths"} {
		assert.Contains(t, err.Error(), want)
	}
}

func TestParseSizeMB(t *testing.T) {
	tests := []struct {
		in   string
		want int64
	}{
		{"", 0},
		{"512", 512},
		{"1GiB", 1024},
		{"64g", 65536},
		{"2TB", 2 * 1024 * 1024},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseSizeMB(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
	_, err := ParseSizeMB("-5")
	assert.Error(t, err)
}

func TestLoad_FromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cluster.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleCluster), 0o644))

	c, err := Load(path)

	require.NoError(t, err)
	assert.Equal(t, "test", c.Name)
	assert.Equal(t, []string{"batch: 3 nodes, 128 CPUs, 258GiB memory", "debug: 1 nodes, 4 CPUs, 0B memory"}, c.Summary())
}
