package service

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"

	"github.com/utafrali/mobileshop/internal/domain"
	"github.com/utafrali/mobileshop/internal/repository"
	"github.com/utafrali/mobileshop/internal/store"
	"github.com/utafrali/mobileshop/pkg/validator"
)

// ProfileService reads and edits user profiles.
type ProfileService struct {
	store  store.Store
	logger *slog.Logger
}

// NewProfileService creates a new profile service.
func NewProfileService(st store.Store, logger *slog.Logger) *ProfileService {
	return &ProfileService{store: st, logger: logger}
}

// GetProfile returns the user's profile. Users without one get an empty
// profile.
func (s *ProfileService) GetProfile(ctx context.Context, userID string) (*domain.Profile, error) {
	if err := requireID("user_id", userID); err != nil {
		return nil, err
	}
	p, err := repository.New(s.store).Profile(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get profile: %w", err)
	}
	if p == nil {
		p = &domain.Profile{}
	}
	return p, nil
}

// UpdateProfile applies patch, creating the profile when needed.
func (s *ProfileService) UpdateProfile(ctx context.Context, userID string, patch domain.ProfilePatch) (*domain.Profile, error) {
	if err := requireID("user_id", userID); err != nil {
		return nil, err
	}
	if err := validator.Validate(patch); err != nil {
		return nil, err
	}

	var profile *domain.Profile
	err := s.store.Update(ctx, func(ctx context.Context, tx store.Tx) error {
		repo := repository.New(tx)
		p, err := repo.Profile(ctx, userID)
		if err != nil {
			return err
		}
		if p == nil {
			p = &domain.Profile{}
		}
		p.Apply(patch)
		profile = p
		return repo.PutProfile(ctx, userID, p)
	})
	if err != nil {
		return nil, fmt.Errorf("update profile: %w", err)
	}

	s.logger.InfoContext(ctx, "profile updated",
		slog.String("user_id", userID),
		slog.Any("fields", slices.Sorted(maps.Keys(patch.Fields()))),
	)
	return profile, nil
}
