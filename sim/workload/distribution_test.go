package workload

import (
	"math"
	"math/rand"
	"testing"
)

func sampleMean(s Sampler, rng *rand.Rand, n int) float64 {
	var sum int64
	for i := 0; i < n; i++ {
		sum += s.Sample(rng)
	}
	return float64(sum) / float64(n)
}

func TestGaussianSampler_MeanMatchesParam(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	s, err := NewSampler(DistSpec{
		Type:   "gaussian",
		Params: map[string]float64{"mean": 3600, "std_dev": 600, "min": 60, "max": 86400},
	})
	if err != nil {
		t.Fatal(err)
	}
	mean := sampleMean(s, rng, 10000)
	if math.Abs(mean-3600)/3600 > 0.05 {
		t.Errorf("gaussian mean = %.1f, want ≈ 3600 (within 5%%)", mean)
	}
}

func TestGaussianSampler_ClampedToRange(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	s, err := NewSampler(DistSpec{
		Type:   "gaussian",
		Params: map[string]float64{"mean": 512, "std_dev": 1000, "min": 100, "max": 900},
	})
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 10000; i++ {
		v := s.Sample(rng)
		if v < 100 || v > 900 {
			t.Errorf("sample %d: %d outside [100, 900]", i, v)
			break
		}
	}
}

func TestExponentialSampler_MeanAndCap(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	s, err := NewSampler(DistSpec{Type: "exponential", Params: map[string]float64{"mean": 600}})
	if err != nil {
		t.Fatal(err)
	}
	mean := sampleMean(s, rng, 20000)
	if math.Abs(mean-600)/600 > 0.05 {
		t.Errorf("exponential mean = %.1f, want ≈ 600", mean)
	}

	capped, _ := NewSampler(DistSpec{Type: "exponential", Params: map[string]float64{"mean": 600, "max": 100}})
	for i := 0; i < 1000; i++ {
		if v := capped.Sample(rng); v < 1 || v > 100 {
			t.Fatalf("capped sample %d outside [1, 100]", v)
		}
	}
}

func TestLogNormalSampler_MedianNearExpMu(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	s, err := NewSampler(DistSpec{Type: "lognormal", Params: map[string]float64{"mu": math.Log(1000), "sigma": 1}})
	if err != nil {
		t.Fatal(err)
	}
	below := 0
	n := 10000
	for i := 0; i < n; i++ {
		if s.Sample(rng) < 1000 {
			below++
		}
	}
	if frac := float64(below) / float64(n); math.Abs(frac-0.5) > 0.03 {
		t.Errorf("fraction below exp(mu) = %.3f, want ≈ 0.5", frac)
	}
}

func TestPowerOfTwoSampler_OnlyPowersOfTwo(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	s, err := NewSampler(DistSpec{Type: "power_of_two", Params: map[string]float64{"max_exp": 6}})
	if err != nil {
		t.Fatal(err)
	}
	seen := map[int64]bool{}
	for i := 0; i < 2000; i++ {
		v := s.Sample(rng)
		if v < 1 || v > 64 || v&(v-1) != 0 {
			t.Fatalf("sample %d is not a power of two in [1, 64]", v)
		}
		seen[v] = true
	}
	if len(seen) != 7 {
		t.Errorf("saw %d distinct sizes, want 7", len(seen))
	}
}

func TestUniformSampler_Bounds(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	s, _ := NewSampler(DistSpec{Type: "uniform", Params: map[string]float64{"min": 4, "max": 8}})
	for i := 0; i < 1000; i++ {
		if v := s.Sample(rng); v < 4 || v > 8 {
			t.Fatalf("sample %d outside [4, 8]", v)
		}
	}
}

func TestConstantSampler_NeverBelowOne(t *testing.T) {
	s, _ := NewSampler(DistSpec{Type: "constant", Params: map[string]float64{"value": 0}})
	if v := s.Sample(nil); v != 1 {
		t.Errorf("constant 0 sampled %d, want 1", v)
	}
}

func TestEmpiricalSampler_FollowsPDF(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	s, err := NewSampler(DistSpec{Type: "empirical", Params: map[string]float64{"1": 3, "16": 1}})
	if err != nil {
		t.Fatal(err)
	}
	ones := 0
	n := 10000
	for i := 0; i < n; i++ {
		switch s.Sample(rng) {
		case 1:
			ones++
		case 16:
		default:
			t.Fatal("sample outside the PDF support")
		}
	}
	if frac := float64(ones) / float64(n); math.Abs(frac-0.75) > 0.03 {
		t.Errorf("P(1) = %.3f, want ≈ 0.75", frac)
	}
}

func TestNewSampler_Errors(t *testing.T) {
	tests := []struct {
		name string
		spec DistSpec
	}{
		{"missing param", DistSpec{Type: "gaussian", Params: map[string]float64{"mean": 1}}},
		{"unknown type", DistSpec{Type: "zipf"}},
		{"empirical without params", DistSpec{Type: "empirical"}},
		{"empirical bad key", DistSpec{Type: "empirical", Params: map[string]float64{"x": 1}}},
		{"max_exp too large", DistSpec{Type: "power_of_two", Params: map[string]float64{"max_exp": 40}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewSampler(tt.spec); err == nil {
				t.Error("expected an error")
			}
		})
	}
}
