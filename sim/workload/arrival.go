package workload

import (
	"math"
	"math/rand"

	"github.com/sirupsen/logrus"
)

// ArrivalSampler generates inter-arrival times of jobs.
type ArrivalSampler interface {
	// SampleIAT returns the next inter-arrival time in seconds, >= 0.
	SampleIAT(rng *rand.Rand) int64
}

// PoissonSampler generates exponentially distributed gaps (CV=1).
type PoissonSampler struct {
	ratePerSecond float64
}

func (s *PoissonSampler) SampleIAT(rng *rand.Rand) int64 {
	return int64(math.Round(rng.ExpFloat64() / s.ratePerSecond))
}

// GammaSampler generates Gamma-distributed gaps; CV > 1 gives bursts of
// submissions like those of parameter sweeps.
type GammaSampler struct {
	shape float64
	scale float64 // seconds
}

func (s *GammaSampler) SampleIAT(rng *rand.Rand) int64 {
	return int64(math.Round(gammaRand(rng, s.shape, s.scale)))
}

// gammaRand samples Gamma(shape, scale) with Marsaglia-Tsang, boosting
// shapes below one through Gamma(a) = Gamma(a+1) * U^(1/a).
func gammaRand(rng *rand.Rand, shape, scale float64) float64 {
	if shape < 1.0 {
		return gammaRand(rng, shape+1.0, scale) * math.Pow(rng.Float64(), 1.0/shape)
	}
	d := shape - 1.0/3.0
	c := 1.0 / math.Sqrt(9.0*d)
	for {
		var x, v float64
		for {
			x = rng.NormFloat64()
			v = 1.0 + c*x
			if v > 0 {
				break
			}
		}
		v = v * v * v
		u := rng.Float64()
		if u < 1.0-0.0331*(x*x)*(x*x) || math.Log(u) < 0.5*x*x+d*(1.0-v+math.Log(v)) {
			return d * v * scale
		}
	}
}

// WeibullSampler generates Weibull-distributed gaps.
type WeibullSampler struct {
	shape float64
	scale float64 // seconds
}

func (s *WeibullSampler) SampleIAT(rng *rand.Rand) int64 {
	u := rng.Float64()
	if u == 0 {
		u = math.SmallestNonzeroFloat64
	}
	return int64(math.Round(s.scale * math.Pow(-math.Log(u), 1.0/s.shape)))
}

// ConstantArrivalSampler submits jobs at a fixed interval.
type ConstantArrivalSampler struct {
	gap int64
}

func (s *ConstantArrivalSampler) SampleIAT(_ *rand.Rand) int64 { return s.gap }

// NewArrivalSampler creates an ArrivalSampler from a spec. The rate is in
// jobs per hour.
func NewArrivalSampler(spec ArrivalSpec) ArrivalSampler {
	rate := max(spec.Rate, 1e-9) / 3600
	cv := 1.0
	if spec.CV != nil && *spec.CV > 0 {
		cv = *spec.CV
	}
	mean := 1.0 / rate
	switch spec.Process {
	case "gamma":
		shape := 1.0 / (cv * cv)
		if shape < 0.01 {
			logrus.Warnf("Gamma shape %.4f (CV=%.1f) is very small; falling back to Poisson", shape, cv)
			return &PoissonSampler{ratePerSecond: rate}
		}
		return &GammaSampler{shape: shape, scale: mean * cv * cv}
	case "weibull":
		k := weibullShapeFromCV(cv)
		return &WeibullSampler{shape: k, scale: mean / math.Gamma(1.0+1.0/k)}
	case "constant":
		return &ConstantArrivalSampler{gap: int64(math.Round(mean))}
	default:
		return &PoissonSampler{ratePerSecond: rate}
	}
}

// weibullShapeFromCV bisects for the shape k with
// CV² = Γ(1+2/k)/Γ(1+1/k)² - 1 over k ∈ [0.1, 100].
func weibullShapeFromCV(targetCV float64) float64 {
	lo, hi := 0.1, 100.0
	for i := 0; i < 100; i++ {
		mid := (lo + hi) / 2.0
		cv := weibullCV(mid)
		if math.Abs(cv-targetCV) < 0.001 {
			return mid
		}
		// CV decreases as k grows
		if cv > targetCV {
			lo = mid
		} else {
			hi = mid
		}
	}
	logrus.Warnf("weibullShapeFromCV: no convergence for CV=%.3f; using k=%.3f", targetCV, (lo+hi)/2.0)
	return (lo + hi) / 2.0
}

func weibullCV(k float64) float64 {
	g1 := math.Gamma(1.0 + 1.0/k)
	g2 := math.Gamma(1.0 + 2.0/k)
	return math.Sqrt(g2/(g1*g1) - 1.0)
}
