package user

import (
	"context"
	"fmt"

	"github.com/nkiryanov/portalauth/internal/models"
	"github.com/nkiryanov/portalauth/internal/repository"
)

type UserService struct {
	userRepo repository.UserRepo
}

func NewService(userRepo repository.UserRepo) *UserService {
	return &UserService{userRepo: userRepo}
}

func (s *UserService) GetUser(ctx context.Context, email string) (models.User, error) {
	user, err := s.userRepo.GetUserByEmail(ctx, models.NormalizeEmail(email))
	if err != nil {
		return user, fmt.Errorf("can't get user. Err: %w", err)
	}
	return user, nil
}

// ChangeRole sets role on file. Issued access tokens keep the old role until refreshed
func (s *UserService) ChangeRole(ctx context.Context, email string, role string) (models.User, error) {
	parsed, err := models.ParseRole(role)
	if err != nil {
		return models.User{}, err
	}

	user, err := s.userRepo.SetRole(ctx, models.NormalizeEmail(email), parsed)
	if err != nil {
		return user, fmt.Errorf("can't change role. Err: %w", err)
	}

	return user, nil
}
