package model

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/estately/priceuq/internal/domain"
	apperrors "github.com/estately/priceuq/internal/pkg/errors"
)

// pcgStream is the fixed second PCG word; the seed supplies the first.
const pcgStream = 0x9e3779b97f4a7c15

// NewRand returns the generator used for a given seed.
func NewRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, pcgStream))
}

// Prediction holds per-sample outputs on the log-price scale
type Prediction struct {
	Mu      []float64
	SigmaSq []float64
}

// EpochFunc observes training progress. It must not block for long.
type EpochFunc func(domain.EpochStats)

type fitOptions struct {
	onEpoch EpochFunc
}

// FitOption configures a call to Fit
type FitOption func(*fitOptions)

// WithEpochCallback registers a per-epoch progress callback
func WithEpochCallback(fn EpochFunc) FitOption {
	return func(o *fitOptions) { o.onEpoch = fn }
}

// DualHeadRegressor predicts a mean and an aleatoric variance for each sample
// from a shared feed-forward trunk.
//
// Parameters are written only by Fit. Predict takes a read lock, so concurrent
// inference is safe once training has returned.
type DualHeadRegressor struct {
	mu sync.RWMutex

	cfg    Config
	schema domain.FeatureSchema
	net    *network
	rng    *rand.Rand

	scaler        Standardizer
	targetMean    float64
	targetStd     float64
	varianceScale float64
	epochs        int
	fitted        bool
}

// New builds an untrained regressor for schema with weights drawn from
// cfg.RandomSeed.
func New(schema domain.FeatureSchema, cfg Config) (*DualHeadRegressor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := schema.Validate(); err != nil {
		return nil, err
	}
	rng := NewRand(cfg.RandomSeed)
	return &DualHeadRegressor{
		cfg:       cfg,
		schema:    append(domain.FeatureSchema(nil), schema...),
		net:       newNetwork(len(schema), cfg.HiddenLayers, rng),
		rng:           rng,
		targetStd:     1,
		varianceScale: 1,
	}, nil
}

// Schema returns the feature schema fixed at construction
func (m *DualHeadRegressor) Schema() domain.FeatureSchema {
	return append(domain.FeatureSchema(nil), m.schema...)
}

// Config returns the training configuration
func (m *DualHeadRegressor) Config() Config {
	return m.cfg
}

// Fitted reports whether at least one epoch has completed
func (m *DualHeadRegressor) Fitted() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.fitted
}

// Fit trains on train, monitoring validation loss on val for early stopping.
// On return the parameters are those of the best validation epoch and the
// variance head is recalibrated against deterministic residuals (see
// refitVarianceHead). A failed or cancelled fit also restores the best
// snapshot seen so far.
func (m *DualHeadRegressor) Fit(ctx context.Context, train, val domain.FeatureFrame, opts ...FitOption) (domain.TrainingReport, error) {
	var o fitOptions
	for _, opt := range opts {
		opt(&o)
	}

	if err := m.checkFitInput("train", train); err != nil {
		return domain.TrainingReport{}, err
	}
	if err := m.checkFitInput("validation", val); err != nil {
		return domain.TrainingReport{}, err
	}
	if train.Len() < 2 {
		return domain.TrainingReport{}, apperrors.InvalidConfig("need at least 2 training samples, got %d", train.Len())
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	start := time.Now()
	m.scaler = fitStandardizer(train.X)
	tMean, tStd := stat.PopMeanStdDev(train.Targets, nil)
	m.targetMean, m.targetStd = tMean, guardStd(tStd)
	m.varianceScale = 1

	xs := m.scaler.transform(train.X)
	ys := m.scaleTargets(train.Targets)
	xv := m.scaler.transform(val.X)
	yv := m.scaleTargets(val.Targets)

	opt := newAdam(m.cfg.LearningRate, m.net.tensors())
	report := domain.TrainingReport{
		TrainSamples: train.Len(),
		ValSamples:   val.Len(),
		BestValLoss:  math.Inf(1),
	}

	var best *network
	wait := 0
	restore := func() {
		if best != nil {
			m.net = best
		}
	}

	for epoch := 1; epoch <= m.cfg.MaxEpochs; epoch++ {
		if err := ctx.Err(); err != nil {
			restore()
			return report, fmt.Errorf("training cancelled at epoch %d: %w", epoch, err)
		}

		trainLoss, err := m.runEpoch(epoch, xs, ys, opt)
		if err != nil {
			restore()
			return report, err
		}

		mu, sigmaSq, _ := m.net.forward(xv, passDeterministic, 0, 0, nil)
		valLoss := GaussianNLL(yv, mu, sigmaSq, m.cfg.NLLEpsilon)
		if !finite(valLoss) {
			restore()
			return report, apperrors.NumericInstability("non-finite validation loss at epoch %d", epoch).
				WithDetail("epoch", fmt.Sprint(epoch))
		}

		m.fitted = true
		m.epochs++

		stats := domain.EpochStats{Epoch: epoch, TrainLoss: trainLoss, ValLoss: valLoss}
		if valLoss < report.BestValLoss {
			report.BestValLoss = valLoss
			report.BestEpoch = epoch
			best = m.net.clone()
			stats.Improved = true
			wait = 0
		} else {
			wait++
		}
		report.History = append(report.History, stats)
		report.EpochsRun = epoch
		report.FinalTrain = trainLoss
		if o.onEpoch != nil {
			o.onEpoch(stats)
		}

		if wait >= m.cfg.EarlyStoppingPatience {
			report.StoppedEarly = true
			break
		}
	}

	restore()
	if err := m.refitVarianceHead(xs, ys); err != nil {
		return report, err
	}
	scale, err := m.calibrateVariance(xs, ys, xv, yv)
	if err != nil {
		return report, err
	}
	m.varianceScale = scale
	report.VarianceScale = scale
	report.Duration = time.Since(start)
	return report, nil
}

// runEpoch performs one shuffled pass of mini-batch updates and returns the
// mean training loss.
func (m *DualHeadRegressor) runEpoch(epoch int, xs *mat.Dense, ys []float64, opt *adam) (float64, error) {
	n, d := xs.Dims()
	perm := m.rng.Perm(n)

	var total float64
	batch := 0
	for startIdx := 0; startIdx < n; startIdx += m.cfg.BatchSize {
		end := min(startIdx+m.cfg.BatchSize, n)
		// batch norm needs two rows; fold a trailing singleton into this batch
		if n-end == 1 {
			end = n
		}
		idx := perm[startIdx:end]

		xb := mat.NewDense(len(idx), d, nil)
		yb := make([]float64, len(idx))
		for k, i := range idx {
			xb.SetRow(k, xs.RawRowView(i))
			yb[k] = ys[i]
		}

		mu, sigmaSq, cache := m.net.forward(xb, passTrain, m.cfg.DropoutRate, m.cfg.BatchNormMomentum, m.rng)
		loss, dMu, dS := gaussianNLL(yb, mu, sigmaSq, m.cfg.NLLEpsilon, true)
		if !finite(loss) {
			return 0, apperrors.NumericInstability("non-finite training loss at epoch %d batch %d", epoch, batch).
				WithDetail("epoch", fmt.Sprint(epoch)).
				WithDetail("batch", fmt.Sprint(batch))
		}

		grads := m.net.backward(cache, dMu, dS)
		opt.step(m.net.tensors(), grads.tensors())
		if !m.net.allFinite() {
			return 0, apperrors.NumericInstability("non-finite parameters after epoch %d batch %d", epoch, batch).
				WithDetail("epoch", fmt.Sprint(epoch)).
				WithDetail("batch", fmt.Sprint(batch))
		}

		total += loss * float64(len(idx))
		batch++
		if end == n {
			break
		}
	}
	return total / float64(n), nil
}

// Predict returns mu and sigma_sq per sample on the log-price scale. With
// stochastic set, dropout stays active and its masks are drawn from rng;
// otherwise the pass is deterministic and rng may be nil.
func (m *DualHeadRegressor) Predict(batch domain.FeatureFrame, stochastic bool, rng *rand.Rand) (Prediction, error) {
	if err := batch.Schema.Check(m.schema); err != nil {
		return Prediction{}, err
	}
	if batch.X == nil {
		return Prediction{}, apperrors.InvalidConfig("empty batch")
	}
	if _, c := batch.X.Dims(); c != len(m.schema) {
		return Prediction{}, apperrors.SchemaMismatch("batch has %d columns, model expects %d", c, len(m.schema))
	}
	if stochastic && rng == nil {
		return Prediction{}, apperrors.InvalidConfig("stochastic prediction requires a random source")
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if !m.fitted {
		return Prediction{}, apperrors.NotFitted("")
	}

	mode := passDeterministic
	if stochastic {
		mode = passStochastic
	}
	x := m.scaler.transform(batch.X)
	mu, sigmaSq, _ := m.net.forward(x, mode, m.cfg.DropoutRate, 0, rng)

	varScale := m.targetStd * m.targetStd * m.varianceScale
	for i := range mu {
		mu[i] = mu[i]*m.targetStd + m.targetMean
		sigmaSq[i] *= varScale
		if !finite(mu[i]) || !finite(sigmaSq[i]) {
			return Prediction{}, apperrors.NumericInstability("non-finite prediction for sample %d", i).
				WithDetail("sample", fmt.Sprint(i))
		}
	}
	return Prediction{Mu: mu, SigmaSq: sigmaSq}, nil
}

func (m *DualHeadRegressor) checkFitInput(name string, f domain.FeatureFrame) error {
	if err := f.Schema.Check(m.schema); err != nil {
		return fmt.Errorf("%s set: %w", name, err)
	}
	if f.Len() == 0 {
		return apperrors.InvalidConfig("%s set is empty", name)
	}
	if !f.HasTargets() {
		return apperrors.InvalidConfig("%s set has no targets", name)
	}
	return f.Validate()
}

func (m *DualHeadRegressor) scaleTargets(y []float64) []float64 {
	out := make([]float64, len(y))
	for i, v := range y {
		out[i] = (v - m.targetMean) / m.targetStd
	}
	return out
}
