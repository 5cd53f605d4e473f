// Package arch loads cluster descriptions: partitions made of groups of
// identical nodes. It produces the static node list the simulator runs on.
package arch

import (
	"bytes"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/docker/go-units"
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/hpcsim/hpcsim/sim"
)

// Cluster is the YAML cluster description.
type Cluster struct {
	Version    string          `yaml:"version"`
	Name       string          `yaml:"name"`
	Partitions []PartitionSpec `yaml:"partitions"`
}

// PartitionSpec is one partition. Number is the partition number SWF traces
// use for it; 0 leaves it unmapped.
type PartitionSpec struct {
	Name   string      `yaml:"name"`
	Number int         `yaml:"number,omitempty"`
	Nodes  []NodeGroup `yaml:"nodes"`
}

// NodeGroup is Count identical nodes. Memory and Disk are human-readable
// sizes ("256GiB", "1TB"); a bare number is taken as MB. Bandwidths are MB/s.
type NodeGroup struct {
	Count    int    `yaml:"count"`
	CPUs     int64  `yaml:"cpus"`
	Memory   string `yaml:"memory,omitempty"`
	Disk     string `yaml:"disk,omitempty"`
	MemoryBW int64  `yaml:"memory_bandwidth,omitempty"`
	DiskBW   int64  `yaml:"disk_bandwidth,omitempty"`
	NetBW    int64  `yaml:"network_bandwidth,omitempty"`
}

// Load reads and validates a cluster description. Unknown keys are rejected.
func Load(path string) (*Cluster, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "reading cluster description")
	}
	return Parse(data)
}

// Parse decodes and validates a cluster description.
func Parse(data []byte) (*Cluster, error) {
	var c Cluster
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&c); err != nil {
		return nil, errors.Wrap(err, "parsing cluster description")
	}
	if err := c.Validate(); err != nil {
		return nil, errors.WithMessage(err, "invalid cluster description")
	}
	return &c, nil
}

// Validate reports every invalid field at once.
func (c *Cluster) Validate() error {
	var result error
	if len(c.Partitions) == 0 {
		result = multierror.Append(result, fmt.Errorf("at least one partition is required"))
	}
	names := make(map[string]bool)
	numbers := make(map[int]string)
	for i, p := range c.Partitions {
		prefix := fmt.Sprintf("partitions[%d]", i)
		if p.Name == "" {
			result = multierror.Append(result, fmt.Errorf("%s: name is required", prefix))
		} else if names[p.Name] {
			result = multierror.Append(result, fmt.Errorf("%s: duplicate partition %q", prefix, p.Name))
		}
		names[p.Name] = true
		if p.Number != 0 {
			if other, dup := numbers[p.Number]; dup {
				result = multierror.Append(result, fmt.Errorf("%s: number %d already used by %q", prefix, p.Number, other))
			}
			numbers[p.Number] = p.Name
		}
		if len(p.Nodes) == 0 {
			result = multierror.Append(result, fmt.Errorf("%s: no nodes", prefix))
		}
		for k, g := range p.Nodes {
			if err := g.validate(fmt.Sprintf("%s.nodes[%d]", prefix, k)); err != nil {
				result = multierror.Append(result, err)
			}
		}
	}
	return result
}

func (g NodeGroup) validate(prefix string) error {
	var result error
	if g.Count <= 0 {
		result = multierror.Append(result, fmt.Errorf("%s: count must be positive, got %d", prefix, g.Count))
	}
	if g.CPUs <= 0 {
		result = multierror.Append(result, fmt.Errorf("%s: cpus must be positive, got %d", prefix, g.CPUs))
	}
	if _, err := ParseSizeMB(g.Memory); err != nil {
		result = multierror.Append(result, fmt.Errorf("%s: memory: %w", prefix, err))
	}
	if _, err := ParseSizeMB(g.Disk); err != nil {
		result = multierror.Append(result, fmt.Errorf("%s: disk: %w", prefix, err))
	}
	if g.MemoryBW < 0 || g.DiskBW < 0 || g.NetBW < 0 {
		result = multierror.Append(result, fmt.Errorf("%s: bandwidths must be non-negative", prefix))
	}
	return result
}

// ParseSizeMB converts a human-readable size to MB. Empty means zero; a bare
// number is already MB.
func ParseSizeMB(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		if n < 0 {
			return 0, errors.Errorf("negative size %q", s)
		}
		return n, nil
	}
	size, err := units.RAMInBytes(s)
	if err != nil {
		return 0, err
	}
	if size < 0 {
		return 0, errors.Errorf("negative size %q", s)
	}
	return size / units.MiB, nil
}

// Nodes expands the description into nodes with dense IDs in declaration
// order. It assumes Validate passed.
func (c *Cluster) Nodes() []sim.Node {
	var nodes []sim.Node
	for _, p := range c.Partitions {
		for _, g := range p.Nodes {
			memory, _ := ParseSizeMB(g.Memory)
			disk, _ := ParseSizeMB(g.Disk)
			capacity := sim.Resources{CPUs: g.CPUs, Memory: memory, Disk: disk, MemBW: g.MemoryBW, DiskBW: g.DiskBW, NetBW: g.NetBW}
			for k := 0; k < g.Count; k++ {
				nodes = append(nodes, sim.Node{ID: len(nodes), Partition: p.Name, Capacity: capacity})
			}
		}
	}
	return nodes
}

// PartitionNumbers maps SWF partition numbers to partition names.
func (c *Cluster) PartitionNumbers() map[int]string {
	m := make(map[int]string)
	for _, p := range c.Partitions {
		if p.Number != 0 {
			m[p.Number] = p.Name
		}
	}
	return m
}

// Summary describes the cluster in one line per partition.
func (c *Cluster) Summary() []string {
	var lines []string
	for _, p := range c.Partitions {
		var nodes int
		var cpus, memory int64
		for _, g := range p.Nodes {
			mb, _ := ParseSizeMB(g.Memory)
			nodes += g.Count
			cpus += int64(g.Count) * g.CPUs
			memory += int64(g.Count) * mb
		}
		lines = append(lines, fmt.Sprintf("%s: %d nodes, %d CPUs, %s memory", p.Name, nodes, cpus, units.BytesSize(float64(memory*units.MiB))))
	}
	return lines
}
