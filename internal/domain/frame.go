package domain

import (
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"

	apperrors "github.com/estately/priceuq/internal/pkg/errors"
)

// FeatureSchema is the ordered list of feature names a model is built on.
type FeatureSchema []string

// Validate checks the schema is non-empty with unique names
func (s FeatureSchema) Validate() error {
	if len(s) == 0 {
		return apperrors.InvalidConfig("feature schema is empty")
	}
	seen := make(map[string]struct{}, len(s))
	for i, name := range s {
		if name == "" {
			return apperrors.InvalidConfig("feature %d has an empty name", i)
		}
		if _, dup := seen[name]; dup {
			return apperrors.InvalidConfig("feature %q appears more than once", name)
		}
		seen[name] = struct{}{}
	}
	return nil
}

// Equal reports whether both schemas name the same features in the same order
func (s FeatureSchema) Equal(other FeatureSchema) bool {
	if len(s) != len(other) {
		return false
	}
	for i := range s {
		if s[i] != other[i] {
			return false
		}
	}
	return true
}

// Index returns the position of a feature, or -1
func (s FeatureSchema) Index(name string) int {
	for i, n := range s {
		if n == name {
			return i
		}
	}
	return -1
}

// Check returns SchemaMismatch naming the first disagreement with want.
func (s FeatureSchema) Check(want FeatureSchema) error {
	if len(s) != len(want) {
		return apperrors.SchemaMismatch("batch has %d features, model expects %d", len(s), len(want))
	}
	for i := range want {
		if s[i] != want[i] {
			return apperrors.SchemaMismatch("feature %d is %q, model expects %q", i, s[i], want[i])
		}
	}
	return nil
}

// FeatureFrame is a validated numeric feature matrix with an optional target
// vector of log sale prices. Rows are samples, columns follow Schema.
type FeatureFrame struct {
	Schema  FeatureSchema
	X       *mat.Dense
	Targets []float64
}

// NewFeatureFrame builds a frame from row-major values. targets may be nil.
func NewFeatureFrame(schema FeatureSchema, rows [][]float64, targets []float64) (FeatureFrame, error) {
	if err := schema.Validate(); err != nil {
		return FeatureFrame{}, err
	}
	if len(rows) == 0 {
		return FeatureFrame{}, apperrors.InvalidConfig("feature frame has no rows")
	}
	if targets != nil && len(targets) != len(rows) {
		return FeatureFrame{}, apperrors.InvalidConfig("%d targets for %d rows", len(targets), len(rows))
	}

	d := len(schema)
	data := make([]float64, 0, len(rows)*d)
	for i, row := range rows {
		if len(row) != d {
			return FeatureFrame{}, apperrors.SchemaMismatch("row %d has %d values, schema has %d features", i, len(row), d)
		}
		data = append(data, row...)
	}

	f := FeatureFrame{Schema: schema, X: mat.NewDense(len(rows), d, data)}
	if targets != nil {
		f.Targets = append([]float64(nil), targets...)
	}
	if err := f.Validate(); err != nil {
		return FeatureFrame{}, err
	}
	return f, nil
}

// FrameFromMatrix wraps an existing matrix without copying.
func FrameFromMatrix(schema FeatureSchema, x *mat.Dense, targets []float64) FeatureFrame {
	return FeatureFrame{Schema: schema, X: x, Targets: targets}
}

// Validate checks shape agreement and that every value is finite
func (f FeatureFrame) Validate() error {
	if f.X == nil {
		return apperrors.InvalidConfig("feature frame has no rows")
	}
	r, c := f.X.Dims()
	if c != len(f.Schema) {
		return apperrors.SchemaMismatch("matrix has %d columns, schema has %d features", c, len(f.Schema))
	}
	if f.Targets != nil && len(f.Targets) != r {
		return apperrors.InvalidConfig("%d targets for %d rows", len(f.Targets), r)
	}
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			if v := f.X.At(i, j); math.IsNaN(v) || math.IsInf(v, 0) {
				return apperrors.NumericInstability("non-finite value at row %d feature %q", i, f.Schema[j])
			}
		}
		if f.Targets != nil {
			if t := f.Targets[i]; math.IsNaN(t) || math.IsInf(t, 0) {
				return apperrors.NumericInstability("non-finite target at row %d", i)
			}
		}
	}
	return nil
}

// Len returns the number of samples
func (f FeatureFrame) Len() int {
	if f.X == nil {
		return 0
	}
	r, _ := f.X.Dims()
	return r
}

// HasTargets reports whether the frame carries ground truth
func (f FeatureFrame) HasTargets() bool {
	return f.Targets != nil
}

// Row returns a copy of sample i
func (f FeatureFrame) Row(i int) []float64 {
	return mat.Row(nil, i, f.X)
}

// Subset returns a new frame holding the given rows in order.
func (f FeatureFrame) Subset(indices []int) (FeatureFrame, error) {
	if len(indices) == 0 {
		return FeatureFrame{}, apperrors.InvalidConfig("subset is empty")
	}
	n := f.Len()
	d := len(f.Schema)
	x := mat.NewDense(len(indices), d, nil)
	var targets []float64
	if f.Targets != nil {
		targets = make([]float64, len(indices))
	}
	for k, i := range indices {
		if i < 0 || i >= n {
			return FeatureFrame{}, apperrors.InvalidConfig("row index %d out of range [0,%d)", i, n)
		}
		x.SetRow(k, f.X.RawRowView(i))
		if targets != nil {
			targets[k] = f.Targets[i]
		}
	}
	return FeatureFrame{Schema: f.Schema, X: x, Targets: targets}, nil
}

// Split shuffles rows with rng and returns (train, holdout) where holdout
// receives round(fraction*n) rows. Both sides keep at least one row.
func (f FeatureFrame) Split(fraction float64, rng *rand.Rand) (FeatureFrame, FeatureFrame, error) {
	if fraction <= 0 || fraction >= 1 {
		return FeatureFrame{}, FeatureFrame{}, apperrors.InvalidConfig("split fraction %v outside (0,1)", fraction)
	}
	n := f.Len()
	if n < 2 {
		return FeatureFrame{}, FeatureFrame{}, apperrors.InvalidConfig("cannot split %d rows", n)
	}
	perm := rng.Perm(n)
	k := int(math.Round(fraction * float64(n)))
	k = max(1, min(n-1, k))

	holdout, err := f.Subset(perm[:k])
	if err != nil {
		return FeatureFrame{}, FeatureFrame{}, err
	}
	train, err := f.Subset(perm[k:])
	if err != nil {
		return FeatureFrame{}, FeatureFrame{}, err
	}
	return train, holdout, nil
}

// SampleRows draws min(n, Len) distinct rows with rng.
func (f FeatureFrame) SampleRows(n int, rng *rand.Rand) (FeatureFrame, error) {
	if n <= 0 {
		return FeatureFrame{}, apperrors.InvalidConfig("sample size must be positive, got %d", n)
	}
	total := f.Len()
	if n >= total {
		return f, nil
	}
	return f.Subset(rng.Perm(total)[:n])
}

// Data converts the frame to its transport form.
func (f FeatureFrame) Data() FrameData {
	n := f.Len()
	rows := make([][]float64, n)
	for i := 0; i < n; i++ {
		rows[i] = f.Row(i)
	}
	var targets []float64
	if f.Targets != nil {
		targets = append([]float64(nil), f.Targets...)
	}
	return FrameData{Features: append([]string(nil), f.Schema...), Rows: rows, Targets: targets}
}

// FrameData is the JSON form of a FeatureFrame
type FrameData struct {
	Features []string    `json:"features" validate:"required,min=1,unique,dive,feature_name"`
	Rows     [][]float64 `json:"rows" validate:"required,min=1,dive,dive,finite"`
	Targets  []float64   `json:"targets,omitempty" validate:"omitempty,dive,finite"`
}

// Frame validates and converts to a FeatureFrame
func (d FrameData) Frame() (FeatureFrame, error) {
	return NewFeatureFrame(FeatureSchema(d.Features), d.Rows, d.Targets)
}
