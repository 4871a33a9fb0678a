package dto

import (
	"github.com/estately/priceuq/internal/domain"
)

// CreateRunRequest starts a training run on an inline dataset whose targets
// are log sale prices.
type CreateRunRequest struct {
	Name    string               `json:"name" validate:"required,max=255"`
	Dataset domain.FrameData     `json:"dataset" validate:"required"`
	Options *domain.RunOverrides `json:"options,omitempty"`
}

// ToInput converts the request into a service input
func (r *CreateRunRequest) ToInput() *domain.CreateRunInput {
	return &domain.CreateRunInput{
		Name:    r.Name,
		Dataset: r.Dataset,
		Options: r.Options,
	}
}

// ListRunsQuery holds the list filters
type ListRunsQuery struct {
	Status string `query:"status" validate:"omitempty,oneof=pending running completed failed"`
}

// PredictRequest scores a batch against a completed run. Targets, when
// present, are the observed log prices used for coverage.
type PredictRequest struct {
	Batch   domain.FrameData `json:"batch" validate:"required"`
	Seed    *uint64          `json:"seed,omitempty"`
	Persist bool             `json:"persist"`
}

// ExplainRequest asks for feature attributions of one target
type ExplainRequest struct {
	Target         domain.TargetKind `json:"target" validate:"required,oneof=mean epistemic_std aleatoric_std"`
	Queries        domain.FrameData  `json:"queries" validate:"required"`
	NSamples       int               `json:"nSamples,omitempty" validate:"gte=0,lte=10000"`
	BackgroundSize int               `json:"backgroundSize,omitempty" validate:"gte=0,lte=10000"`
	Seed           *uint64           `json:"seed,omitempty"`
}
