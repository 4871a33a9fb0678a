package model

import (
	"math"

	"gonum.org/v1/gonum/mat"

	apperrors "github.com/estately/priceuq/internal/pkg/errors"
)

const (
	varianceRefitSteps = 300
	varianceRefitRate  = 0.01
)

// hidden returns the last hidden representation with dropout off and
// running batch-norm statistics.
func (n *network) hidden(x *mat.Dense) *mat.Dense {
	a := x
	for l := range n.Hidden {
		z := n.Hidden[l].apply(a)
		n.Norms[l].forwardInfer(z)
		r, _ := z.Dims()
		for i := 0; i < r; i++ {
			zr := z.RawRowView(i)
			for j := range zr {
				zr[j] = math.Max(zr[j], 0)
			}
		}
		a = z
	}
	return a
}

// refitVarianceHead retrains only the variance head, full batch, on the
// deterministic representation and the residuals of the deterministic mean.
// During Fit both heads see the trunk through dropout, so the raw head also
// learns the spread dropout adds to mu, which is absent at inference.
func (m *DualHeadRegressor) refitVarianceHead(x *mat.Dense, y []float64) error {
	a := m.net.hidden(x)
	rows, width := a.Dims()
	muOut := m.net.MuHead.apply(a)
	rsq := make([]float64, rows)
	for i := range rsq {
		r := y[i] - muOut.At(i, 0)
		rsq[i] = r * r
	}

	head := m.net.SigmaHead
	params := [][]float64{head.W.RawMatrix().Data, head.B}
	opt := newAdam(varianceRefitRate, params)
	gW := mat.NewDense(width, 1, nil)
	gB := make([]float64, 1)
	dz := mat.NewDense(rows, 1, nil)
	inv := 1 / float64(rows)

	for step := 0; step < varianceRefitSteps; step++ {
		z := head.apply(a)
		for i := 0; i < rows; i++ {
			zi := z.At(i, 0)
			v := softplus(zi) + m.cfg.NLLEpsilon
			dz.Set(i, 0, (0.5/v-0.5*rsq[i]/(v*v))*inv*sigmoid(zi))
		}
		gW.Mul(a.T(), dz)
		gB[0] = mat.Sum(dz)
		opt.step(params, [][]float64{gW.RawMatrix().Data, gB})
	}

	for _, p := range params {
		for _, v := range p {
			if !finite(v) {
				return apperrors.NumericInstability("non-finite variance head after recalibration")
			}
		}
	}
	return nil
}

// calibrateVariance returns the factor c maximising the likelihood of
// N(mu, c*sigma_sq) over deterministic predictions on the given splits.
func (m *DualHeadRegressor) calibrateVariance(xs *mat.Dense, ys []float64, xv *mat.Dense, yv []float64) (float64, error) {
	var sum float64
	n := 0
	for _, split := range []struct {
		x *mat.Dense
		y []float64
	}{{xs, ys}, {xv, yv}} {
		mu, sigmaSq, _ := m.net.forward(split.x, passDeterministic, 0, 0, nil)
		for i, y := range split.y {
			r := y - mu[i]
			sum += r * r / (sigmaSq[i] + m.cfg.NLLEpsilon)
			n++
		}
	}
	c := sum / float64(n)
	if !finite(c) {
		return 0, apperrors.NumericInstability("non-finite variance scale after training")
	}
	if c <= 0 {
		return 1, nil
	}
	return c, nil
}
