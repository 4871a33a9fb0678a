package domain

import "github.com/google/uuid"

// TargetKind names the scalar function an attribution explains
type TargetKind string

const (
	TargetMean         TargetKind = "mean"
	TargetEpistemicStd TargetKind = "epistemic_std"
	TargetAleatoricStd TargetKind = "aleatoric_std"
)

// IsValid checks if the target kind is valid
func (k TargetKind) IsValid() bool {
	switch k {
	case TargetMean, TargetEpistemicStd, TargetAleatoricStd:
		return true
	}
	return false
}

// AttributionRecord holds the signed contribution of each feature to one
// target function output for one sample. Baseline plus the sum of
// Contributions reconstructs Output.
type AttributionRecord struct {
	QueryIndex    int                `json:"queryIndex"`
	Target        TargetKind         `json:"target"`
	Baseline      float64            `json:"baseline"`
	Output        float64            `json:"output"`
	Contributions map[string]float64 `json:"contributions"`
	Samples       int                `json:"samples"`
}

// Total returns baseline plus all contributions
func (r AttributionRecord) Total() float64 {
	sum := r.Baseline
	for _, v := range r.Contributions {
		sum += v
	}
	return sum
}

// FeatureImportance is one row of a global importance ranking
type FeatureImportance struct {
	Feature    string  `json:"feature"`
	MeanAbs    float64 `json:"meanAbs"`
	MeanSigned float64 `json:"meanSigned"`
	Rank       int     `json:"rank"`
}

// DependencePoint pairs a raw feature value with its contribution
type DependencePoint struct {
	QueryIndex   int     `json:"queryIndex"`
	Value        float64 `json:"value"`
	Contribution float64 `json:"contribution"`
}

// AttributionRow is the flattened storage form of one contribution
type AttributionRow struct {
	RunID      uuid.UUID  `json:"runId"`
	JobID      uuid.UUID  `json:"jobId"`
	QueryIndex int        `json:"queryIndex"`
	Target     TargetKind `json:"target"`
	Feature    string     `json:"feature"`
	Value      float64    `json:"value"`
	Baseline   float64    `json:"baseline"`
	Output     float64    `json:"output"`
}

// Rows flattens a record for storage, ordered by schema.
func (r AttributionRecord) Rows(runID, jobID uuid.UUID, schema FeatureSchema) []AttributionRow {
	rows := make([]AttributionRow, 0, len(schema))
	for _, name := range schema {
		rows = append(rows, AttributionRow{
			RunID:      runID,
			JobID:      jobID,
			QueryIndex: r.QueryIndex,
			Target:     r.Target,
			Feature:    name,
			Value:      r.Contributions[name],
			Baseline:   r.Baseline,
			Output:     r.Output,
		})
	}
	return rows
}
