package service

import (
	"context"
	"fmt"
	"strings"

	"courtbook/internal/domain"
	"courtbook/internal/models"

	"github.com/rs/zerolog"
)

// UserService keeps the contact directory in step with verified identities.
type UserService struct {
	users  domain.UserDirectory
	logger *zerolog.Logger
}

func NewUserService(users domain.UserDirectory, logger *zerolog.Logger) *UserService {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &UserService{users: users, logger: logger}
}

// Touch records the caller's claims and activity time.
func (s *UserService) Touch(ctx context.Context, identity models.Identity) error {
	if identity.UserID <= 0 {
		return domain.ErrInvalidInput.WithMessage("user id must be positive")
	}
	role := identity.Role
	if role != models.RoleAdmin {
		role = models.RoleUser
	}
	u := &models.User{
		ID:    identity.UserID,
		Email: strings.TrimSpace(identity.Email),
		Name:  strings.TrimSpace(identity.Name),
		Role:  role,
	}
	if err := s.users.UpsertUser(ctx, u); err != nil {
		return fmt.Errorf("touch user %d: %w", identity.UserID, err)
	}
	return nil
}

func (s *UserService) GetUser(ctx context.Context, id int64) (*models.User, error) {
	return s.users.GetUser(ctx, id)
}
