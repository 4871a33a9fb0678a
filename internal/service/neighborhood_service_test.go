package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/estately/priceuq/internal/domain"
	apperrors "github.com/estately/priceuq/internal/pkg/errors"
)

const enrichmentReply = "Here you go:\n```json\n" + `{"mappings": [
	{"original_name": "Williamsburg", "sub_region": "North Brooklyn", "affluence_score": "8"},
	{"original_name": "Astoria", "sub_region": "Queens-ish", "affluence_score": 14}
]}` + "\n```"

func TestNeighborhoodService_Import(t *testing.T) {
	ctx := context.Background()

	t.Run("parses, stores and caches mappings", func(t *testing.T) {
		repo := new(MockNeighborhoodRepository)
		cache := newMemCache()
		svc := NewNeighborhoodService(zap.NewNop(), repo, cache)
		repo.On("Upsert", ctx, mock.Anything).Return(nil)

		result, err := svc.Import(ctx, enrichmentReply)
		require.NoError(t, err)
		require.Equal(t, 2, result.Imported)

		stored := repo.Calls[0].Arguments.Get(1).([]domain.NeighborhoodProfile)
		assert.Equal(t, "Astoria", stored[0].Name)
		assert.Equal(t, domain.SubRegionUnknown, stored[0].SubRegion)
		assert.Equal(t, 10, stored[0].Affluence)
		assert.Equal(t, domain.SubRegionNorthBrooklyn, stored[1].SubRegion)
		assert.Equal(t, 8, stored[1].Affluence)
		assert.False(t, stored[1].UpdatedAt.IsZero())

		_, ok, _ := cache.Get(ctx, "williamsburg")
		assert.True(t, ok)
	})

	t.Run("malformed payload is a validation error", func(t *testing.T) {
		repo := new(MockNeighborhoodRepository)
		svc := NewNeighborhoodService(zap.NewNop(), repo, nil)

		_, err := svc.Import(ctx, "not json")
		assert.True(t, apperrors.IsValidation(err))
		repo.AssertNotCalled(t, "Upsert", mock.Anything, mock.Anything)
	})
}

func TestNeighborhoodService_Lookup(t *testing.T) {
	ctx := context.Background()
	profile := &domain.NeighborhoodProfile{Name: "Harlem", SubRegion: domain.SubRegionUpperManhattan, Affluence: 4}

	t.Run("reads through the cache", func(t *testing.T) {
		repo := new(MockNeighborhoodRepository)
		svc := NewNeighborhoodService(zap.NewNop(), repo, newMemCache())
		repo.On("GetByName", ctx, "Harlem").Return(profile, nil).Once()

		first, err := svc.Lookup(ctx, "Harlem")
		require.NoError(t, err)
		second, err := svc.Lookup(ctx, "Harlem")
		require.NoError(t, err)

		assert.Equal(t, first.SubRegion, second.SubRegion)
		assert.Equal(t, 4, second.Affluence)
		repo.AssertNumberOfCalls(t, "GetByName", 1)
	})

	t.Run("missing name", func(t *testing.T) {
		repo := new(MockNeighborhoodRepository)
		svc := NewNeighborhoodService(zap.NewNop(), repo, nil)
		repo.On("GetByName", ctx, "Atlantis").Return(nil, apperrors.NotFound("neighborhood"))

		_, err := svc.Lookup(ctx, "Atlantis")
		assert.True(t, apperrors.IsNotFound(err))

		_, err = svc.Lookup(ctx, "  ")
		assert.True(t, apperrors.IsValidation(err))
	})
}
