package model

import (
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

const bnEpsilon = 1e-5

type passMode int

const (
	passTrain passMode = iota
	passDeterministic
	passStochastic
)

// dense is an affine layer x*W + B with W shaped in x out.
type dense struct {
	W *mat.Dense
	B []float64
}

func newDense(in, out int, scale float64, rng *rand.Rand) dense {
	data := make([]float64, in*out)
	for i := range data {
		data[i] = rng.NormFloat64() * scale
	}
	return dense{W: mat.NewDense(in, out, data), B: make([]float64, out)}
}

func (d dense) apply(x mat.Matrix) *mat.Dense {
	z := &mat.Dense{}
	z.Mul(x, d.W)
	r, _ := z.Dims()
	for i := 0; i < r; i++ {
		floats.Add(z.RawRowView(i), d.B)
	}
	return z
}

func (d dense) clone() dense {
	return dense{W: mat.DenseCopyOf(d.W), B: append([]float64(nil), d.B...)}
}

func (d dense) zerosLike() dense {
	r, c := d.W.Dims()
	return dense{W: mat.NewDense(r, c, nil), B: make([]float64, len(d.B))}
}

// batchNorm normalises each unit over the batch during training and with
// running statistics at inference.
type batchNorm struct {
	Gamma   []float64
	Beta    []float64
	RunMean []float64
	RunVar  []float64
}

func newBatchNorm(width int) batchNorm {
	bn := batchNorm{
		Gamma:   make([]float64, width),
		Beta:    make([]float64, width),
		RunMean: make([]float64, width),
		RunVar:  make([]float64, width),
	}
	for j := range bn.Gamma {
		bn.Gamma[j] = 1
		bn.RunVar[j] = 1
	}
	return bn
}

func (bn batchNorm) clone() batchNorm {
	return batchNorm{
		Gamma:   append([]float64(nil), bn.Gamma...),
		Beta:    append([]float64(nil), bn.Beta...),
		RunMean: append([]float64(nil), bn.RunMean...),
		RunVar:  append([]float64(nil), bn.RunVar...),
	}
}

// forwardTrain normalises z in place with batch statistics and updates the
// running estimates. It returns the normalised values and 1/std per unit.
func (bn *batchNorm) forwardTrain(z *mat.Dense, momentum float64) (*mat.Dense, []float64) {
	n, h := z.Dims()
	mean := make([]float64, h)
	variance := make([]float64, h)
	for i := 0; i < n; i++ {
		floats.Add(mean, z.RawRowView(i))
	}
	floats.Scale(1/float64(n), mean)
	for i := 0; i < n; i++ {
		row := z.RawRowView(i)
		for j, v := range row {
			d := v - mean[j]
			variance[j] += d * d
		}
	}
	floats.Scale(1/float64(n), variance)

	invStd := make([]float64, h)
	for j := range invStd {
		invStd[j] = 1 / math.Sqrt(variance[j]+bnEpsilon)
	}

	xhat := mat.NewDense(n, h, nil)
	for i := 0; i < n; i++ {
		zr := z.RawRowView(i)
		xr := xhat.RawRowView(i)
		for j := range zr {
			xr[j] = (zr[j] - mean[j]) * invStd[j]
			zr[j] = bn.Gamma[j]*xr[j] + bn.Beta[j]
		}
	}

	unbias := float64(n) / float64(n-1)
	for j := 0; j < h; j++ {
		bn.RunMean[j] = (1-momentum)*bn.RunMean[j] + momentum*mean[j]
		bn.RunVar[j] = (1-momentum)*bn.RunVar[j] + momentum*variance[j]*unbias
	}
	return xhat, invStd
}

func (bn *batchNorm) forwardInfer(z *mat.Dense) {
	n, h := z.Dims()
	scale := make([]float64, h)
	for j := range scale {
		scale[j] = bn.Gamma[j] / math.Sqrt(bn.RunVar[j]+bnEpsilon)
	}
	for i := 0; i < n; i++ {
		zr := z.RawRowView(i)
		for j := range zr {
			zr[j] = (zr[j]-bn.RunMean[j])*scale[j] + bn.Beta[j]
		}
	}
}

// backward turns the gradient at the normalised output into the gradient at
// the layer input, writing dGamma and dBeta into grad.
func (bn *batchNorm) backward(grad *batchNorm, dy, xhat *mat.Dense, invStd []float64) *mat.Dense {
	n, h := dy.Dims()
	sumDy := make([]float64, h)
	sumDyXhat := make([]float64, h)
	for i := 0; i < n; i++ {
		dr := dy.RawRowView(i)
		xr := xhat.RawRowView(i)
		for j := 0; j < h; j++ {
			sumDy[j] += dr[j]
			sumDyXhat[j] += dr[j] * xr[j]
		}
	}
	copy(grad.Beta, sumDy)
	copy(grad.Gamma, sumDyXhat)

	fn := float64(n)
	dz := mat.NewDense(n, h, nil)
	for i := 0; i < n; i++ {
		dr := dy.RawRowView(i)
		xr := xhat.RawRowView(i)
		out := dz.RawRowView(i)
		for j := 0; j < h; j++ {
			out[j] = bn.Gamma[j] * invStd[j] / fn * (fn*dr[j] - sumDy[j] - xr[j]*sumDyXhat[j])
		}
	}
	return dz
}

// network is Dense -> BatchNorm -> ReLU -> Dropout repeated, followed by a
// linear mean head and a softplus variance head on the last hidden layer.
type network struct {
	Hidden    []dense
	Norms     []batchNorm
	MuHead    dense
	SigmaHead dense
}

func newNetwork(inputs int, widths []int, rng *rand.Rand) *network {
	n := &network{}
	in := inputs
	for _, w := range widths {
		n.Hidden = append(n.Hidden, newDense(in, w, math.Sqrt(2/float64(in)), rng))
		n.Norms = append(n.Norms, newBatchNorm(w))
		in = w
	}
	headScale := math.Sqrt(1 / float64(in))
	n.MuHead = newDense(in, 1, headScale, rng)
	n.SigmaHead = newDense(in, 1, 0.1*headScale, rng)
	n.SigmaHead.B[0] = softplusInverse(1)
	return n
}

func (n *network) clone() *network {
	c := &network{MuHead: n.MuHead.clone(), SigmaHead: n.SigmaHead.clone()}
	for i := range n.Hidden {
		c.Hidden = append(c.Hidden, n.Hidden[i].clone())
		c.Norms = append(c.Norms, n.Norms[i].clone())
	}
	return c
}

func (n *network) zerosLike() *network {
	g := &network{MuHead: n.MuHead.zerosLike(), SigmaHead: n.SigmaHead.zerosLike()}
	for i := range n.Hidden {
		g.Hidden = append(g.Hidden, n.Hidden[i].zerosLike())
		w := len(n.Norms[i].Gamma)
		g.Norms = append(g.Norms, batchNorm{Gamma: make([]float64, w), Beta: make([]float64, w)})
	}
	return g
}

// tensors lists the trainable parameters as flat views in a fixed order.
func (n *network) tensors() [][]float64 {
	var out [][]float64
	for i := range n.Hidden {
		out = append(out, n.Hidden[i].W.RawMatrix().Data, n.Hidden[i].B)
		out = append(out, n.Norms[i].Gamma, n.Norms[i].Beta)
	}
	out = append(out, n.MuHead.W.RawMatrix().Data, n.MuHead.B)
	out = append(out, n.SigmaHead.W.RawMatrix().Data, n.SigmaHead.B)
	return out
}

func (n *network) allFinite() bool {
	for _, t := range n.tensors() {
		for _, v := range t {
			if !finite(v) {
				return false
			}
		}
	}
	return true
}

type layerCache struct {
	input  *mat.Dense
	xhat   *mat.Dense
	pre    *mat.Dense
	mask   *mat.Dense
	invStd []float64
}

type forwardCache struct {
	layers []layerCache
	last   *mat.Dense
	zSigma []float64
}

// forward runs one pass. passTrain uses batch statistics, applies dropout and
// returns a cache for backward; passStochastic keeps dropout on with masks
// drawn from rng; passDeterministic disables both.
func (n *network) forward(x *mat.Dense, mode passMode, dropout, momentum float64, rng *rand.Rand) ([]float64, []float64, *forwardCache) {
	var cache *forwardCache
	if mode == passTrain {
		cache = &forwardCache{layers: make([]layerCache, len(n.Hidden))}
	}

	a := x
	for l := range n.Hidden {
		z := n.Hidden[l].apply(a)
		var lc layerCache
		if mode == passTrain {
			lc.input = a
			lc.xhat, lc.invStd = n.Norms[l].forwardTrain(z, momentum)
			lc.pre = mat.DenseCopyOf(z)
		} else {
			n.Norms[l].forwardInfer(z)
		}

		rows, cols := z.Dims()
		for i := 0; i < rows; i++ {
			zr := z.RawRowView(i)
			for j := range zr {
				zr[j] = math.Max(zr[j], 0)
			}
		}

		if dropout > 0 && mode != passDeterministic {
			keep := 1 / (1 - dropout)
			mask := mat.NewDense(rows, cols, nil)
			for i := 0; i < rows; i++ {
				mr := mask.RawRowView(i)
				for j := range mr {
					if rng.Float64() >= dropout {
						mr[j] = keep
					}
				}
			}
			z.MulElem(z, mask)
			lc.mask = mask
		}

		if cache != nil {
			cache.layers[l] = lc
		}
		a = z
	}

	muOut := n.MuHead.apply(a)
	sigmaOut := n.SigmaHead.apply(a)
	rows, _ := a.Dims()
	mu := make([]float64, rows)
	sigmaSq := make([]float64, rows)
	zSigma := make([]float64, rows)
	for i := 0; i < rows; i++ {
		mu[i] = muOut.At(i, 0)
		zSigma[i] = sigmaOut.At(i, 0)
		sigmaSq[i] = softplus(zSigma[i])
	}
	if cache != nil {
		cache.last = a
		cache.zSigma = zSigma
	}
	return mu, sigmaSq, cache
}

// backward returns parameter gradients given the loss gradients at the two
// heads.
func (n *network) backward(c *forwardCache, dMu, dSigmaSq []float64) *network {
	g := n.zerosLike()
	rows := len(dMu)

	dzSigma := make([]float64, rows)
	for i := range dzSigma {
		dzSigma[i] = dSigmaSq[i] * sigmoid(c.zSigma[i])
	}
	dMuM := mat.NewDense(rows, 1, append([]float64(nil), dMu...))
	dSigM := mat.NewDense(rows, 1, dzSigma)

	g.MuHead.W.Mul(c.last.T(), dMuM)
	g.MuHead.B[0] = floats.Sum(dMu)
	g.SigmaHead.W.Mul(c.last.T(), dSigM)
	g.SigmaHead.B[0] = floats.Sum(dzSigma)

	da := &mat.Dense{}
	da.Mul(dMuM, n.MuHead.W.T())
	tmp := &mat.Dense{}
	tmp.Mul(dSigM, n.SigmaHead.W.T())
	da.Add(da, tmp)

	for l := len(n.Hidden) - 1; l >= 0; l-- {
		lc := c.layers[l]
		if lc.mask != nil {
			da.MulElem(da, lc.mask)
		}
		r, _ := da.Dims()
		for i := 0; i < r; i++ {
			dr := da.RawRowView(i)
			pr := lc.pre.RawRowView(i)
			for j := range dr {
				if pr[j] <= 0 {
					dr[j] = 0
				}
			}
		}

		dz := n.Norms[l].backward(&g.Norms[l], da, lc.xhat, lc.invStd)

		g.Hidden[l].W.Mul(lc.input.T(), dz)
		for i := 0; i < r; i++ {
			floats.Add(g.Hidden[l].B, dz.RawRowView(i))
		}

		if l > 0 {
			next := &mat.Dense{}
			next.Mul(dz, n.Hidden[l].W.T())
			da = next
		}
	}
	return g
}
