// Package rng provides a seeded, injectable PRNG so the statistical engine
// (Monte-Carlo Bayesian sampling, Thompson allocation) and the variant
// generator are fully deterministic under test: "All
// probabilistic components consume the injected PRNG only; no hidden
// global randomness."
package rng

import (
	"math"
	"math/rand"
)

// Source is the PRNG contract consumed by the statistical and variant
// engines. It deliberately exposes only the operations those components
// need, not the full math/rand.Rand surface.
type Source interface {
	Float64() float64
	Intn(n int) int
	// Beta draws a single sample from a Beta(alpha, beta) distribution.
	Beta(alpha, beta float64) float64
}

// Seeded wraps math/rand.Rand with a fixed seed for reproducible runs.
type Seeded struct {
	r *rand.Rand
}

// New returns a Seeded PRNG initialized from seed.
func New(seed int64) *Seeded {
	return &Seeded{r: rand.New(rand.NewSource(seed))}
}

func (s *Seeded) Float64() float64 { return s.r.Float64() }

func (s *Seeded) Intn(n int) int { return s.r.Intn(n) }

// Beta samples from a Beta(alpha, beta) distribution using the
// gamma-ratio construction: if X ~ Gamma(alpha,1), Y ~ Gamma(beta,1),
// then X/(X+Y) ~ Beta(alpha,beta).
func (s *Seeded) Beta(alpha, beta float64) float64 {
	x := gammaSample(s.r, alpha)
	y := gammaSample(s.r, beta)
	if x+y == 0 {
		return 0
	}
	return x / (x + y)
}

// gammaSample draws from Gamma(shape, 1) using the Marsaglia-Tsang method
// for shape >= 1, and a boost transform for shape < 1.
func gammaSample(r *rand.Rand, shape float64) float64 {
	if shape <= 0 {
		return 0
	}
	if shape < 1 {
		u := r.Float64()
		return gammaSample(r, shape+1) * math.Pow(u, 1/shape)
	}
	d := shape - 1.0/3.0
	c := 1.0 / math.Sqrt(9*d)
	for {
		var x, v float64
		for {
			x = r.NormFloat64()
			v = 1 + c*x
			if v > 0 {
				break
			}
		}
		v = v * v * v
		u := r.Float64()
		if u < 1-0.0331*x*x*x*x {
			return d * v
		}
		if math.Log(u) < 0.5*x*x+d*(1-v+math.Log(v)) {
			return d * v
		}
	}
}
