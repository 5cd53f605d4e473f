package sim

import (
	"fmt"
	"math"
)

// OpenEnded marks the end of the last bucket on every node: the table always
// extends to infinity.
const OpenEnded int64 = math.MaxInt64

// Resources is a multi-dimensional resource vector. Memory and disk are in MB,
// bandwidths in MB/s. Bandwidth dimensions are carried for completeness but
// no job may consume them.
type Resources struct {
	CPUs   int64 `yaml:"cpus" json:"cpus"`
	Memory int64 `yaml:"memory" json:"memory"`
	Disk   int64 `yaml:"disk" json:"disk"`
	MemBW  int64 `yaml:"memory_bandwidth" json:"memory_bandwidth"`
	DiskBW int64 `yaml:"disk_bandwidth" json:"disk_bandwidth"`
	NetBW  int64 `yaml:"network_bandwidth" json:"network_bandwidth"`
}

// Add returns the component-wise sum.
func (r Resources) Add(o Resources) Resources {
	return Resources{
		CPUs:   r.CPUs + o.CPUs,
		Memory: r.Memory + o.Memory,
		Disk:   r.Disk + o.Disk,
		MemBW:  r.MemBW + o.MemBW,
		DiskBW: r.DiskBW + o.DiskBW,
		NetBW:  r.NetBW + o.NetBW,
	}
}

// Sub returns the component-wise difference.
func (r Resources) Sub(o Resources) Resources {
	return Resources{
		CPUs:   r.CPUs - o.CPUs,
		Memory: r.Memory - o.Memory,
		Disk:   r.Disk - o.Disk,
		MemBW:  r.MemBW - o.MemBW,
		DiskBW: r.DiskBW - o.DiskBW,
		NetBW:  r.NetBW - o.NetBW,
	}
}

// Min returns the component-wise minimum.
func (r Resources) Min(o Resources) Resources {
	return Resources{
		CPUs:   min(r.CPUs, o.CPUs),
		Memory: min(r.Memory, o.Memory),
		Disk:   min(r.Disk, o.Disk),
		MemBW:  min(r.MemBW, o.MemBW),
		DiskBW: min(r.DiskBW, o.DiskBW),
		NetBW:  min(r.NetBW, o.NetBW),
	}
}

// Covers reports whether every component of r is at least the matching
// component of o.
func (r Resources) Covers(o Resources) bool {
	return r.CPUs >= o.CPUs &&
		r.Memory >= o.Memory &&
		r.Disk >= o.Disk &&
		r.MemBW >= o.MemBW &&
		r.DiskBW >= o.DiskBW &&
		r.NetBW >= o.NetBW
}

// IsZero reports whether all components are zero.
func (r Resources) IsZero() bool {
	return r == Resources{}
}

// UsesBandwidth reports whether any bandwidth dimension is non-zero.
func (r Resources) UsesBandwidth() bool {
	return r.MemBW != 0 || r.DiskBW != 0 || r.NetBW != 0
}

func (r Resources) String() string {
	return fmt.Sprintf("cpus=%d mem=%dMB disk=%dMB", r.CPUs, r.Memory, r.Disk)
}

// Node is a compute node with a fixed capacity. IDs are dense and assigned by
// the cluster loader in declaration order.
type Node struct {
	ID        int
	Partition string
	Capacity  Resources
}

// Demand describes what a job asks for: a CPU count plus per-CPU memory and
// disk. Allocations are always made in whole CPUs, each carrying its memory
// and disk share.
type Demand struct {
	CPUs         int64
	MemoryPerCPU int64
	DiskPerCPU   int64
}

// PerCPU returns the resource vector of a single CPU of this demand.
func (d Demand) PerCPU() Resources {
	return Resources{CPUs: 1, Memory: d.MemoryPerCPU, Disk: d.DiskPerCPU}
}

// Scaled returns the resource vector for n CPUs of this demand.
func (d Demand) Scaled(n int64) Resources {
	return Resources{CPUs: n, Memory: n * d.MemoryPerCPU, Disk: n * d.DiskPerCPU}
}

// Total returns the full resource vector of the demand.
func (d Demand) Total() Resources {
	return d.Scaled(d.CPUs)
}

// usableCPUs returns how many CPUs of this demand fit into free.
func (d Demand) usableCPUs(free Resources) int64 {
	n := free.CPUs
	if d.MemoryPerCPU > 0 {
		n = min(n, free.Memory/d.MemoryPerCPU)
	}
	if d.DiskPerCPU > 0 {
		n = min(n, free.Disk/d.DiskPerCPU)
	}
	return max(n, 0)
}
