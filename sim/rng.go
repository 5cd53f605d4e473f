package sim

import (
	"hash/fnv"
	"math/rand"
)

// SimulationKey identifies a reproducible run. Two runs with the same key
// and configuration produce identical workloads.
type SimulationKey int64

// NewSimulationKey creates a SimulationKey from a seed value.
func NewSimulationKey(seed int64) SimulationKey {
	return SimulationKey(seed)
}

// RNG subsystems of the synthetic workload generator.
const (
	// SubsystemArrivals drives inter-arrival times. Uses the master seed
	// directly.
	SubsystemArrivals = "arrivals"
	// SubsystemRuntimes drives runtimes and walltime estimates.
	SubsystemRuntimes = "runtimes"
	// SubsystemSizes drives processor counts and memory.
	SubsystemSizes = "sizes"
	// SubsystemFlags drives malleability and other per-job coin flips.
	SubsystemFlags = "flags"
)

// PartitionedRNG provides deterministic, isolated RNG instances per subsystem,
// so changing how one property is sampled leaves the others untouched.
//
// Derivation: SubsystemArrivals uses the master seed; every other subsystem
// uses masterSeed XOR fnv1a64(name).
//
// Not safe for concurrent use.
type PartitionedRNG struct {
	key        SimulationKey
	subsystems map[string]*rand.Rand
}

// NewPartitionedRNG creates a PartitionedRNG from a SimulationKey.
func NewPartitionedRNG(key SimulationKey) *PartitionedRNG {
	return &PartitionedRNG{
		key:        key,
		subsystems: make(map[string]*rand.Rand),
	}
}

// ForSubsystem returns the cached RNG of the named subsystem. Never returns nil.
func (p *PartitionedRNG) ForSubsystem(name string) *rand.Rand {
	if rng, ok := p.subsystems[name]; ok {
		return rng
	}
	derivedSeed := int64(p.key)
	if name != SubsystemArrivals {
		derivedSeed ^= fnv1a64(name)
	}
	rng := rand.New(rand.NewSource(derivedSeed))
	p.subsystems[name] = rng
	return rng
}

// Key returns the SimulationKey used to create this PartitionedRNG.
func (p *PartitionedRNG) Key() SimulationKey {
	return p.key
}

func fnv1a64(s string) int64 {
	h := fnv.New64a()
	h.Write([]byte(s))
	return int64(h.Sum64())
}
