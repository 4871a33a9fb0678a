package service

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/estately/priceuq/internal/domain"
	apperrors "github.com/estately/priceuq/internal/pkg/errors"
)

// NeighborhoodRepository defines neighborhood repository operations
type NeighborhoodRepository interface {
	Upsert(ctx context.Context, profiles []domain.NeighborhoodProfile) error
	GetByName(ctx context.Context, name string) (*domain.NeighborhoodProfile, error)
	List(ctx context.Context) ([]domain.NeighborhoodProfile, error)
}

// ProfileCache is a string cache in front of the repository
type ProfileCache interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	SetMany(ctx context.Context, values map[string]string) error
}

// ImportResult summarises a mapping import
type ImportResult struct {
	Imported int                          `json:"imported"`
	Profiles []domain.NeighborhoodProfile `json:"profiles"`
}

// NeighborhoodService maintains the neighborhood enrichment mapping
type NeighborhoodService struct {
	logger *zap.Logger
	repo   NeighborhoodRepository
	cache  ProfileCache
	now    func() time.Time
}

// NewNeighborhoodService creates a new neighborhood service. cache may be nil.
func NewNeighborhoodService(logger *zap.Logger, repo NeighborhoodRepository, cache ProfileCache) *NeighborhoodService {
	return &NeighborhoodService{logger: logger, repo: repo, cache: cache, now: time.Now}
}

func cacheKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// Import parses an enrichment payload and stores every mapping in it
func (s *NeighborhoodService) Import(ctx context.Context, raw string) (*ImportResult, error) {
	mappings, err := domain.ParseNeighborhoodMappings(raw)
	if err != nil {
		return nil, apperrors.Validation(err.Error())
	}

	now := s.now().UTC()
	profiles := make([]domain.NeighborhoodProfile, 0, len(mappings))
	for _, p := range mappings {
		p.UpdatedAt = now
		profiles = append(profiles, p)
	}
	sort.Slice(profiles, func(i, j int) bool { return profiles[i].Name < profiles[j].Name })

	if err := s.repo.Upsert(ctx, profiles); err != nil {
		return nil, err
	}
	s.warm(ctx, profiles)

	s.logger.Info("neighborhood mappings imported", zap.Int("count", len(profiles)))
	return &ImportResult{Imported: len(profiles), Profiles: profiles}, nil
}

// Lookup returns the profile for name, reading through the cache
func (s *NeighborhoodService) Lookup(ctx context.Context, name string) (*domain.NeighborhoodProfile, error) {
	if strings.TrimSpace(name) == "" {
		return nil, apperrors.Validation("name is required")
	}

	if s.cache != nil {
		val, ok, err := s.cache.Get(ctx, cacheKey(name))
		if err != nil {
			s.logger.Warn("neighborhood cache read failed", zap.Error(err))
		} else if ok {
			var p domain.NeighborhoodProfile
			if err := json.Unmarshal([]byte(val), &p); err == nil {
				return &p, nil
			}
		}
	}

	p, err := s.repo.GetByName(ctx, name)
	if err != nil {
		return nil, err
	}
	s.warm(ctx, []domain.NeighborhoodProfile{*p})
	return p, nil
}

// List returns every stored profile
func (s *NeighborhoodService) List(ctx context.Context) ([]domain.NeighborhoodProfile, error) {
	return s.repo.List(ctx)
}

func (s *NeighborhoodService) warm(ctx context.Context, profiles []domain.NeighborhoodProfile) {
	if s.cache == nil || len(profiles) == 0 {
		return
	}
	values := make(map[string]string, len(profiles))
	for _, p := range profiles {
		data, err := json.Marshal(p)
		if err != nil {
			continue
		}
		values[cacheKey(p.Name)] = string(data)
	}
	if err := s.cache.SetMany(ctx, values); err != nil {
		s.logger.Warn("neighborhood cache write failed", zap.Error(err))
	}
}
