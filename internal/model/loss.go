package model

import "math"

// GaussianNLL returns the mean Gaussian negative log-likelihood
//
//	0.5*log(s+eps) + 0.5*(y-mu)^2/(s+eps)
//
// over the batch. eps keeps the loss bounded as s approaches zero.
func GaussianNLL(y, mu, sigmaSq []float64, eps float64) float64 {
	loss, _, _ := gaussianNLL(y, mu, sigmaSq, eps, false)
	return loss
}

// gaussianNLL also returns the per-sample gradients of the mean loss with
// respect to mu and sigmaSq when withGrad is set.
func gaussianNLL(y, mu, sigmaSq []float64, eps float64, withGrad bool) (float64, []float64, []float64) {
	n := len(y)
	var dMu, dS []float64
	if withGrad {
		dMu = make([]float64, n)
		dS = make([]float64, n)
	}
	inv := 1 / float64(n)

	var sum float64
	for i := 0; i < n; i++ {
		v := sigmaSq[i] + eps
		r := y[i] - mu[i]
		sum += 0.5*math.Log(v) + 0.5*r*r/v
		if withGrad {
			dMu[i] = -r / v * inv
			dS[i] = (0.5/v - 0.5*r*r/(v*v)) * inv
		}
	}
	return sum * inv, dMu, dS
}

func softplus(x float64) float64 {
	return math.Max(x, 0) + math.Log1p(math.Exp(-math.Abs(x)))
}

func sigmoid(x float64) float64 {
	if x >= 0 {
		return 1 / (1 + math.Exp(-x))
	}
	e := math.Exp(x)
	return e / (1 + e)
}

// softplusInverse is used to initialise the variance head bias.
func softplusInverse(y float64) float64 {
	return y + math.Log(-math.Expm1(-y))
}

func finite(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}
