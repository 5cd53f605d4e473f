package workload

import (
	"math"
	"math/rand"
	"testing"
)

func meanIAT(s ArrivalSampler, rng *rand.Rand, n int) float64 {
	var sum int64
	for i := 0; i < n; i++ {
		iat := s.SampleIAT(rng)
		if iat < 0 {
			panic("negative inter-arrival time")
		}
		sum += iat
	}
	return float64(sum) / float64(n)
}

func TestArrivalSamplers_MeanMatchesRate(t *testing.T) {
	cv := 2.0
	tests := []struct {
		name string
		spec ArrivalSpec
	}{
		{"poisson", ArrivalSpec{Process: "poisson", Rate: 60}},
		{"gamma", ArrivalSpec{Process: "gamma", Rate: 60, CV: &cv}},
		{"weibull", ArrivalSpec{Process: "weibull", Rate: 60, CV: &cv}},
		{"constant", ArrivalSpec{Process: "constant", Rate: 60}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// 60 jobs per hour is one every 60 seconds
			rng := rand.New(rand.NewSource(42))
			mean := meanIAT(NewArrivalSampler(tt.spec), rng, 50000)
			if math.Abs(mean-60)/60 > 0.05 {
				t.Errorf("mean inter-arrival = %.2f s, want ≈ 60", mean)
			}
		})
	}
}

func TestNewArrivalSampler_SelectsProcess(t *testing.T) {
	cv := 3.0
	if _, ok := NewArrivalSampler(ArrivalSpec{Process: "gamma", Rate: 10, CV: &cv}).(*GammaSampler); !ok {
		t.Error("gamma spec did not produce a GammaSampler")
	}
	if _, ok := NewArrivalSampler(ArrivalSpec{Process: "poisson", Rate: 10}).(*PoissonSampler); !ok {
		t.Error("poisson spec did not produce a PoissonSampler")
	}
	huge := 20.0
	if _, ok := NewArrivalSampler(ArrivalSpec{Process: "gamma", Rate: 10, CV: &huge}).(*PoissonSampler); !ok {
		t.Error("degenerate gamma shape should fall back to Poisson")
	}
}

func TestWeibullShapeFromCV_RecoversCV(t *testing.T) {
	for _, cv := range []float64{0.5, 1.0, 2.0} {
		k := weibullShapeFromCV(cv)
		if got := weibullCV(k); math.Abs(got-cv) > 0.01 {
			t.Errorf("CV %.1f: shape %.3f gives CV %.3f", cv, k, got)
		}
	}
}
