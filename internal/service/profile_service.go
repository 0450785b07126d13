package service

import (
	"context"
	"strings"

	"taskcal/internal/apperr"
	"taskcal/internal/model"
	"taskcal/internal/repository"
)

// ProfileService reads and edits the public part of an account.
type ProfileService struct {
	users *repository.UserRepository
	pub   Publisher
}

func NewProfileService(users *repository.UserRepository, pub Publisher) *ProfileService {
	if pub == nil {
		pub = nopPublisher{}
	}
	return &ProfileService{users: users, pub: pub}
}

func (s *ProfileService) Get(ctx context.Context, userID string) (*model.Profile, error) {
	profile, err := s.users.GetProfile(ctx, userID)
	if err != nil {
		return nil, storeErr(err, "profile")
	}
	return profile, nil
}

func (s *ProfileService) Update(ctx context.Context, userID string, input model.ProfileInput) (*model.Profile, error) {
	if input.FullName != nil {
		name := strings.TrimSpace(*input.FullName)
		if len(name) > 200 {
			return nil, apperr.New(apperr.Validation, "full_name is too long")
		}
		input.FullName = &name
	}
	profile, err := s.users.GetProfile(ctx, userID)
	if err != nil {
		return nil, storeErr(err, "profile")
	}
	input.Apply(profile)
	if err := s.users.SaveProfile(ctx, profile); err != nil {
		return nil, storeErr(err, "profile")
	}
	s.pub.Publish(userID, model.TableProfiles)
	return profile, nil
}

// Rows returns the profile as a one-element list, the shape pushed to
// realtime subscribers.
func (s *ProfileService) Rows(ctx context.Context, userID string) ([]model.Profile, error) {
	profile, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	return []model.Profile{*profile}, nil
}
