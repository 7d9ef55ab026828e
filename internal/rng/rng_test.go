package rng

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSeededIsDeterministic(t *testing.T) {
	a := New(42)
	b := New(42)

	for i := 0; i < 50; i++ {
		require.Equal(t, a.Float64(), b.Float64())
	}
}

func TestBetaStaysInUnitInterval(t *testing.T) {
	r := New(7)
	for i := 0; i < 1000; i++ {
		v := r.Beta(3, 5)
		assert.GreaterOrEqual(t, v, 0.0)
		assert.LessOrEqual(t, v, 1.0)
	}
}

func TestBetaMeanApproximatesAlphaOverAlphaPlusBeta(t *testing.T) {
	r := New(123)
	const n = 20000
	sum := 0.0
	for i := 0; i < n; i++ {
		sum += r.Beta(2, 8)
	}
	mean := sum / n
	// E[Beta(2,8)] = 2/10 = 0.2
	assert.InDelta(t, 0.2, mean, 0.02)
}
