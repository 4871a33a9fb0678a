package domain

import (
	"time"

	"github.com/google/uuid"
)

// RunStatus is the lifecycle state of a training run
type RunStatus string

const (
	RunStatusPending   RunStatus = "pending"
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// IsValid checks if the run status is valid
func (s RunStatus) IsValid() bool {
	switch s {
	case RunStatusPending, RunStatusRunning, RunStatusCompleted, RunStatusFailed:
		return true
	}
	return false
}

// IsTerminal reports whether the run can no longer change
func (s RunStatus) IsTerminal() bool {
	return s == RunStatusCompleted || s == RunStatusFailed
}

// EpochStats is the loss after one training epoch
type EpochStats struct {
	Epoch     int     `json:"epoch"`
	TrainLoss float64 `json:"trainLoss"`
	ValLoss   float64 `json:"valLoss"`
	Improved  bool    `json:"improved"`
}

// TrainingReport summarises a completed fit. VarianceScale is the factor
// applied to the sigma_sq head once the best epoch was restored.
type TrainingReport struct {
	EpochsRun     int           `json:"epochsRun"`
	BestEpoch     int           `json:"bestEpoch"`
	BestValLoss   float64       `json:"bestValLoss"`
	FinalTrain    float64       `json:"finalTrainLoss"`
	StoppedEarly  bool          `json:"stoppedEarly"`
	VarianceScale float64       `json:"varianceScale"`
	History       []EpochStats  `json:"history"`
	Duration      time.Duration `json:"duration"`
	TrainSamples  int           `json:"trainSamples"`
	ValSamples    int           `json:"valSamples"`
}

// TrainingRun is a persisted fit of a model on one dataset
type TrainingRun struct {
	ID          uuid.UUID       `json:"id"`
	Name        string          `json:"name"`
	Status      RunStatus       `json:"status"`
	Features    []string        `json:"features"`
	DatasetKey  string          `json:"datasetKey"`
	DatasetHash string          `json:"datasetHash"`
	SnapshotKey string          `json:"snapshotKey,omitempty"`
	ReportKey   string          `json:"reportKey,omitempty"`
	Config      RunConfig       `json:"config"`
	Report      *TrainingReport `json:"report,omitempty"`
	Metrics     *RunMetrics     `json:"metrics,omitempty"`
	Error       string          `json:"error,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
	CompletedAt *time.Time      `json:"completedAt,omitempty"`
}

// RunConfig is the hyperparameter set recorded with a run
type RunConfig struct {
	LearningRate          float64 `json:"learningRate"`
	MaxEpochs             int     `json:"maxEpochs"`
	EarlyStoppingPatience int     `json:"earlyStoppingPatience"`
	DropoutRate           float64 `json:"dropoutRate"`
	RandomSeed            uint64  `json:"randomSeed"`
	HiddenLayers          []int   `json:"hiddenLayers"`
	BatchSize             int     `json:"batchSize"`
	ValidationFraction    float64 `json:"validationFraction"`
	EpistemicPasses       int     `json:"epistemicPasses"`
	NLLEpsilon            float64 `json:"nllEpsilon"`
	PriceScale            float64 `json:"priceScale"`
}

// RunMetrics are validation diagnostics computed after training
type RunMetrics struct {
	RSquared         float64 `json:"rSquared"`
	RMSE             float64 `json:"rmse"`
	MeanSigmaSq      float64 `json:"meanSigmaSq"`
	MeanEpistemicStd float64 `json:"meanEpistemicStd"`
	CoverageTarget   float64 `json:"coverageTarget"`
	CoverageObserved float64 `json:"coverageObserved"`
	OutlierCount     int     `json:"outlierCount"`
}

// CreateRunInput represents input for starting a training run
type CreateRunInput struct {
	Name    string        `json:"name" validate:"required,max=255"`
	Dataset FrameData     `json:"dataset" validate:"required"`
	Options *RunOverrides `json:"options,omitempty"`
}

// RunOverrides are optional per-run hyperparameter overrides
type RunOverrides struct {
	LearningRate          *float64 `json:"learningRate,omitempty" validate:"omitempty,gt=0"`
	MaxEpochs             *int     `json:"maxEpochs,omitempty" validate:"omitempty,gt=0,lte=5000"`
	EarlyStoppingPatience *int     `json:"earlyStoppingPatience,omitempty" validate:"omitempty,gt=0"`
	DropoutRate           *float64 `json:"dropoutRate,omitempty" validate:"omitempty,gte=0,lt=1"`
	RandomSeed            *uint64  `json:"randomSeed,omitempty"`
	HiddenLayers          []int    `json:"hiddenLayers,omitempty" validate:"omitempty,min=2,dive,gt=0"`
	PriceScale            *float64 `json:"priceScale,omitempty" validate:"omitempty,gt=0"`
}

// RunFilter represents filter options for listing runs
type RunFilter struct {
	Status *RunStatus
	Limit  int
	Offset int
}

// RunList is a page of runs
type RunList struct {
	Runs       []TrainingRun `json:"runs"`
	TotalCount int64         `json:"totalCount"`
	HasMore    bool          `json:"hasMore"`
}

// RunProgressEvent is published while a run trains
type RunProgressEvent struct {
	RunID     uuid.UUID   `json:"runId"`
	Type      string      `json:"type"`
	Status    RunStatus   `json:"status"`
	Epoch     *EpochStats `json:"epoch,omitempty"`
	Message   string      `json:"message,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

const (
	RunEventStatus = "run.status"
	RunEventEpoch  = "run.epoch"
)
