package domain

// OutlierLabel marks samples whose price and aleatoric noise are both high.
const OutlierLabel = "unpredictable-high-value"

// PredictionRecord is the per-sample output of one inference batch. Log-scale
// fields are in the training target scale; the rest are in currency units.
type PredictionRecord struct {
	Index        int     `json:"index"`
	Mu           float64 `json:"mu"`
	SigmaSq      float64 `json:"sigmaSq"`
	EpistemicStd float64 `json:"epistemicStd"`

	PredictedPrice    float64  `json:"predictedPrice"`
	AleatoricStdPrice float64  `json:"aleatoricStdPrice"`
	EpistemicStdPrice float64  `json:"epistemicStdPrice"`
	TotalStdPrice     float64  `json:"totalStdPrice"`
	IntervalLower     float64  `json:"intervalLower"`
	IntervalUpper     float64  `json:"intervalUpper"`
	ActualPrice       *float64 `json:"actualPrice,omitempty"`
	WithinInterval    *bool    `json:"withinInterval,omitempty"`
	Flags             []string `json:"flags,omitempty"`
}

// Flagged reports whether the record carries the given label
func (r PredictionRecord) Flagged(label string) bool {
	for _, f := range r.Flags {
		if f == label {
			return true
		}
	}
	return false
}

// CoverageReport compares the empirical coverage of the 95% interval with its
// nominal level. It is a diagnostic, not a gate.
type CoverageReport struct {
	Target   float64 `json:"target"`
	Observed float64 `json:"observed"`
	Samples  int     `json:"samples"`
	Covered  int     `json:"covered"`
}

// Gap returns observed minus target coverage
func (c CoverageReport) Gap() float64 {
	return c.Observed - c.Target
}

// CalibrationPoint is the observed coverage of one nominal interval level
type CalibrationPoint struct {
	Nominal  float64 `json:"nominal"`
	Z        float64 `json:"z"`
	Observed float64 `json:"observed"`
}

// OutlierSummary records the empirical thresholds used for flagging
type OutlierSummary struct {
	Label               string  `json:"label"`
	PricePercentile     float64 `json:"pricePercentile"`
	AleatoricPercentile float64 `json:"aleatoricPercentile"`
	PriceThreshold      float64 `json:"priceThreshold"`
	AleatoricThreshold  float64 `json:"aleatoricThreshold"`
	Indices             []int   `json:"indices"`
}

// UncertaintySummary holds batch-level averages in currency units
type UncertaintySummary struct {
	MeanAleatoricStd float64 `json:"meanAleatoricStd"`
	MeanEpistemicStd float64 `json:"meanEpistemicStd"`
	MeanTotalStd     float64 `json:"meanTotalStd"`
	// AleatoricShare is the mean fraction of total variance that is aleatoric.
	AleatoricShare float64 `json:"aleatoricShare"`
}

// UncertaintyReport is the decomposition of one evaluation batch
type UncertaintyReport struct {
	PriceScale  float64            `json:"priceScale"`
	Records     []PredictionRecord `json:"records"`
	Summary     UncertaintySummary `json:"summary"`
	Coverage    *CoverageReport    `json:"coverage,omitempty"`
	Calibration []CalibrationPoint `json:"calibration,omitempty"`
	Outliers    OutlierSummary     `json:"outliers"`
}
