package model

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGaussianNLL(t *testing.T) {
	t.Run("matches closed form", func(t *testing.T) {
		y := []float64{1, 2}
		mu := []float64{0.5, 2}
		s := []float64{0.25, 1}
		eps := 1e-6

		want := (0.5*math.Log(0.25+eps) + 0.5*0.25/(0.25+eps) + 0.5*math.Log(1+eps)) / 2
		assert.InDelta(t, want, GaussianNLL(y, mu, s, eps), 1e-12)
	})

	t.Run("stays finite at zero variance", func(t *testing.T) {
		loss := GaussianNLL([]float64{1}, []float64{0}, []float64{0}, 1e-6)
		assert.False(t, math.IsInf(loss, 0))
		assert.False(t, math.IsNaN(loss))
	})

	t.Run("gradients match finite differences", func(t *testing.T) {
		y := []float64{0.3, -1.2, 2.0}
		mu := []float64{0.1, -0.5, 1.0}
		s := []float64{0.4, 1.3, 0.7}
		eps := 1e-6
		h := 1e-6

		_, dMu, dS := gaussianNLL(y, mu, s, eps, true)
		for i := range y {
			mu[i] += h
			up := GaussianNLL(y, mu, s, eps)
			mu[i] -= 2 * h
			down := GaussianNLL(y, mu, s, eps)
			mu[i] += h
			assert.InDelta(t, (up-down)/(2*h), dMu[i], 1e-6, "dMu[%d]", i)

			s[i] += h
			up = GaussianNLL(y, mu, s, eps)
			s[i] -= 2 * h
			down = GaussianNLL(y, mu, s, eps)
			s[i] += h
			assert.InDelta(t, (up-down)/(2*h), dS[i], 1e-6, "dS[%d]", i)
		}
	})
}

func TestSoftplus(t *testing.T) {
	for _, x := range []float64{-800, -50, -1, 0, 1, 50, 800} {
		v := softplus(x)
		assert.GreaterOrEqual(t, v, 0.0, "softplus(%v)", x)
		assert.False(t, math.IsInf(v, 0), "softplus(%v)", x)
	}
	assert.InDelta(t, math.Log(2), softplus(0), 1e-12)
	assert.InDelta(t, 1.0, softplus(softplusInverse(1)), 1e-12)
	assert.InDelta(t, 0.5, sigmoid(0), 1e-12)
}
