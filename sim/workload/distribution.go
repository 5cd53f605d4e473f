package workload

import (
	"fmt"
	"math"
	"math/rand"
	"sort"
)

// Sampler draws positive integers: runtimes in seconds, processor counts, or
// memory sizes.
type Sampler interface {
	// Sample returns a value >= 1.
	Sample(rng *rand.Rand) int64
}

func atLeastOne(v float64) int64 {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 1 {
		return 1
	}
	return int64(math.Round(v))
}

// ConstantSampler always returns the same value.
type ConstantSampler struct {
	value int64
}

func (s *ConstantSampler) Sample(_ *rand.Rand) int64 { return max(s.value, 1) }

// UniformSampler draws uniformly from [min, max].
type UniformSampler struct {
	min, max int64
}

func (s *UniformSampler) Sample(rng *rand.Rand) int64 {
	if s.max <= s.min {
		return max(s.min, 1)
	}
	return max(s.min+rng.Int63n(s.max-s.min+1), 1)
}

// ExponentialSampler draws exponentially distributed values, clamped to max
// when max is set.
type ExponentialSampler struct {
	mean float64
	max  int64
}

func (s *ExponentialSampler) Sample(rng *rand.Rand) int64 {
	v := atLeastOne(rng.ExpFloat64() * s.mean)
	if s.max > 0 {
		v = min(v, s.max)
	}
	return v
}

// GaussianSampler produces clamped Gaussian values.
type GaussianSampler struct {
	mean, stdDev float64
	min, max     int64
}

func (s *GaussianSampler) Sample(rng *rand.Rand) int64 {
	if s.min == s.max {
		return max(s.min, 1)
	}
	val := rng.NormFloat64()*s.stdDev + s.mean
	return atLeastOne(math.Min(float64(s.max), math.Max(float64(s.min), val)))
}

// LogNormalSampler draws exp(mu + sigma*Z), the usual shape of HPC runtimes.
type LogNormalSampler struct {
	mu, sigma float64
	max       int64
}

func (s *LogNormalSampler) Sample(rng *rand.Rand) int64 {
	v := atLeastOne(math.Exp(s.mu + s.sigma*rng.NormFloat64()))
	if s.max > 0 {
		v = min(v, s.max)
	}
	return v
}

// PowerOfTwoSampler draws 2^k with k uniform in [0, max_exp], the typical
// job size mix of batch systems.
type PowerOfTwoSampler struct {
	maxExp int
}

func (s *PowerOfTwoSampler) Sample(rng *rand.Rand) int64 {
	return int64(1) << rng.Intn(s.maxExp+1)
}

// EmpiricalSampler samples from an empirical probability distribution
// using inverse CDF via binary search.
type EmpiricalSampler struct {
	values []int64
	cdf    []float64
}

// NewEmpiricalSampler creates a sampler from a PDF map (value → probability),
// normalizing the probabilities.
func NewEmpiricalSampler(pdf map[int64]float64) *EmpiricalSampler {
	keys := make([]int64, 0, len(pdf))
	var total float64
	for k, p := range pdf {
		if p > 0 {
			keys = append(keys, k)
			total += p
		}
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	s := &EmpiricalSampler{values: keys, cdf: make([]float64, len(keys))}
	var cumulative float64
	for i, k := range keys {
		cumulative += pdf[k] / total
		s.cdf[i] = cumulative
	}
	if len(s.cdf) > 0 {
		s.cdf[len(s.cdf)-1] = 1.0
	}
	return s
}

func (s *EmpiricalSampler) Sample(rng *rand.Rand) int64 {
	if len(s.values) == 0 {
		return 1
	}
	idx := sort.SearchFloat64s(s.cdf, rng.Float64())
	if idx >= len(s.values) {
		idx = len(s.values) - 1
	}
	return max(s.values[idx], 1)
}

// requireParam checks that all required keys exist in a params map.
func requireParam(params map[string]float64, keys ...string) error {
	for _, k := range keys {
		if _, ok := params[k]; !ok {
			return fmt.Errorf("distribution requires parameter %q", k)
		}
	}
	return nil
}

// NewSampler creates a Sampler from a DistSpec.
func NewSampler(spec DistSpec) (Sampler, error) {
	p := spec.Params
	switch spec.Type {
	case "constant":
		if err := requireParam(p, "value"); err != nil {
			return nil, err
		}
		return &ConstantSampler{value: int64(p["value"])}, nil

	case "uniform":
		if err := requireParam(p, "min", "max"); err != nil {
			return nil, err
		}
		return &UniformSampler{min: int64(p["min"]), max: int64(p["max"])}, nil

	case "exponential":
		if err := requireParam(p, "mean"); err != nil {
			return nil, err
		}
		return &ExponentialSampler{mean: p["mean"], max: int64(p["max"])}, nil

	case "gaussian":
		if err := requireParam(p, "mean", "std_dev", "min", "max"); err != nil {
			return nil, err
		}
		return &GaussianSampler{mean: p["mean"], stdDev: p["std_dev"], min: int64(p["min"]), max: int64(p["max"])}, nil

	case "lognormal":
		if err := requireParam(p, "mu", "sigma"); err != nil {
			return nil, err
		}
		return &LogNormalSampler{mu: p["mu"], sigma: p["sigma"], max: int64(p["max"])}, nil

	case "power_of_two":
		if err := requireParam(p, "max_exp"); err != nil {
			return nil, err
		}
		if p["max_exp"] < 0 || p["max_exp"] > 30 {
			return nil, fmt.Errorf("max_exp must be in [0, 30], got %v", p["max_exp"])
		}
		return &PowerOfTwoSampler{maxExp: int(p["max_exp"])}, nil

	case "empirical":
		if len(p) == 0 {
			return nil, fmt.Errorf("empirical distribution requires inline params")
		}
		pdf := make(map[int64]float64, len(p))
		for k, v := range p {
			var value int64
			if _, err := fmt.Sscanf(k, "%d", &value); err != nil {
				return nil, fmt.Errorf("empirical PDF key %q is not an integer: %w", k, err)
			}
			pdf[value] = v
		}
		return NewEmpiricalSampler(pdf), nil

	default:
		return nil, fmt.Errorf("unknown distribution type %q", spec.Type)
	}
}
