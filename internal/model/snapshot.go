package model

import (
	"encoding/json"
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/estately/priceuq/internal/domain"
	apperrors "github.com/estately/priceuq/internal/pkg/errors"
)

// snapshotVersion is bumped whenever the serialized layout changes.
const snapshotVersion = 2

// Snapshot is the serialized state of a fitted regressor
type Snapshot struct {
	Version       int          `json:"version"`
	Schema        []string     `json:"schema"`
	Config        Config       `json:"config"`
	Scaler        Standardizer `json:"scaler"`
	TargetMean    float64      `json:"targetMean"`
	TargetStd     float64      `json:"targetStd"`
	VarianceScale float64      `json:"varianceScale"`
	Epochs        int          `json:"epochs"`
	Hidden        []denseState `json:"hidden"`
	Norms         []normState  `json:"norms"`
	MuHead        denseState   `json:"muHead"`
	SigmaHead     denseState   `json:"sigmaHead"`
}

type denseState struct {
	Rows int       `json:"rows"`
	Cols int       `json:"cols"`
	W    []float64 `json:"w"`
	B    []float64 `json:"b"`
}

type normState struct {
	Gamma   []float64 `json:"gamma"`
	Beta    []float64 `json:"beta"`
	RunMean []float64 `json:"runMean"`
	RunVar  []float64 `json:"runVar"`
}

func (d dense) state() denseState {
	r, c := d.W.Dims()
	return denseState{Rows: r, Cols: c, W: append([]float64(nil), d.W.RawMatrix().Data...), B: append([]float64(nil), d.B...)}
}

func (s denseState) dense() (dense, error) {
	if s.Rows <= 0 || s.Cols <= 0 || len(s.W) != s.Rows*s.Cols || len(s.B) != s.Cols {
		return dense{}, fmt.Errorf("malformed layer %dx%d with %d weights and %d biases", s.Rows, s.Cols, len(s.W), len(s.B))
	}
	return dense{W: mat.NewDense(s.Rows, s.Cols, append([]float64(nil), s.W...)), B: append([]float64(nil), s.B...)}, nil
}

// Snapshot captures the current model state. It fails with NotFitted before
// the first completed epoch.
func (m *DualHeadRegressor) Snapshot() (*Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if !m.fitted {
		return nil, apperrors.NotFitted("")
	}
	s := &Snapshot{
		Version:       snapshotVersion,
		Schema:        append([]string(nil), m.schema...),
		Config:        m.cfg,
		Scaler:        Standardizer{Mean: append([]float64(nil), m.scaler.Mean...), Std: append([]float64(nil), m.scaler.Std...)},
		TargetMean:    m.targetMean,
		TargetStd:     m.targetStd,
		VarianceScale: m.varianceScale,
		Epochs:        m.epochs,
		MuHead:        m.net.MuHead.state(),
		SigmaHead:     m.net.SigmaHead.state(),
	}
	for i := range m.net.Hidden {
		s.Hidden = append(s.Hidden, m.net.Hidden[i].state())
		bn := m.net.Norms[i].clone()
		s.Norms = append(s.Norms, normState{Gamma: bn.Gamma, Beta: bn.Beta, RunMean: bn.RunMean, RunVar: bn.RunVar})
	}
	return s, nil
}

// MarshalSnapshot encodes the model state as JSON
func (m *DualHeadRegressor) MarshalSnapshot() ([]byte, error) {
	s, err := m.Snapshot()
	if err != nil {
		return nil, err
	}
	return json.Marshal(s)
}

// Restore rebuilds a fitted regressor from a snapshot.
func Restore(s *Snapshot) (*DualHeadRegressor, error) {
	if s.Version != snapshotVersion {
		return nil, apperrors.InvalidConfig("unsupported snapshot version %d", s.Version)
	}
	m, err := New(domain.FeatureSchema(s.Schema), s.Config)
	if err != nil {
		return nil, err
	}
	if len(s.Hidden) != len(s.Config.HiddenLayers) || len(s.Norms) != len(s.Hidden) {
		return nil, apperrors.InvalidConfig("snapshot has %d layers, config has %d", len(s.Hidden), len(s.Config.HiddenLayers))
	}
	if len(s.Scaler.Mean) != len(s.Schema) || len(s.Scaler.Std) != len(s.Schema) {
		return nil, apperrors.InvalidConfig("snapshot scaler does not match schema")
	}
	if !(s.VarianceScale > 0) || !finite(s.VarianceScale) {
		return nil, apperrors.InvalidConfig("snapshot variance scale %v must be positive", s.VarianceScale)
	}

	net := &network{}
	in := len(s.Schema)
	for i := range s.Hidden {
		d, err := s.Hidden[i].dense()
		if err != nil {
			return nil, apperrors.InvalidConfig("hidden layer %d: %v", i, err)
		}
		if s.Hidden[i].Rows != in || s.Hidden[i].Cols != s.Config.HiddenLayers[i] {
			return nil, apperrors.InvalidConfig("hidden layer %d is %dx%d, want %dx%d",
				i, s.Hidden[i].Rows, s.Hidden[i].Cols, in, s.Config.HiddenLayers[i])
		}
		w := s.Hidden[i].Cols
		n := s.Norms[i]
		if len(n.Gamma) != w || len(n.Beta) != w || len(n.RunMean) != w || len(n.RunVar) != w {
			return nil, apperrors.InvalidConfig("norm %d does not match layer width %d", i, w)
		}
		net.Hidden = append(net.Hidden, d)
		net.Norms = append(net.Norms, batchNorm{Gamma: n.Gamma, Beta: n.Beta, RunMean: n.RunMean, RunVar: n.RunVar}.clone())
		in = w
	}
	if net.MuHead, err = s.MuHead.dense(); err != nil {
		return nil, apperrors.InvalidConfig("mean head: %v", err)
	}
	if net.SigmaHead, err = s.SigmaHead.dense(); err != nil {
		return nil, apperrors.InvalidConfig("variance head: %v", err)
	}
	for _, head := range []struct {
		name  string
		state denseState
	}{{"mean", s.MuHead}, {"variance", s.SigmaHead}} {
		if head.state.Rows != in || head.state.Cols != 1 {
			return nil, apperrors.InvalidConfig("%s head is %dx%d, want %dx1", head.name, head.state.Rows, head.state.Cols, in)
		}
	}
	if !net.allFinite() {
		return nil, apperrors.NumericInstability("snapshot contains non-finite parameters")
	}

	m.net = net
	m.scaler = s.Scaler
	m.targetMean = s.TargetMean
	m.targetStd = guardStd(s.TargetStd)
	m.varianceScale = s.VarianceScale
	m.epochs = s.Epochs
	m.fitted = s.Epochs > 0
	return m, nil
}

// UnmarshalSnapshot decodes JSON produced by MarshalSnapshot
func UnmarshalSnapshot(data []byte) (*DualHeadRegressor, error) {
	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	return Restore(&s)
}
