// Package auth verifies HTTP Basic credentials against stored users.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/safar/shop-orders/internal/database"
	"github.com/safar/shop-orders/internal/models"
	"github.com/safar/shop-orders/internal/store"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const minPasswordLength = 8

type Service struct {
	users  store.Users
	logger *zap.Logger
	cost   int
}

func NewService(users store.Users, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{users: users, logger: logger, cost: bcrypt.DefaultCost}
}

// Authenticate returns the user for valid credentials. Unknown users and wrong
// passwords both yield ErrInvalidCredentials.
func (s *Service) Authenticate(ctx context.Context, username, password string) (*models.User, error) {
	u, err := s.users.GetUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, database.ErrUserNotFound) {
			return nil, database.ErrInvalidCredentials
		}
		return nil, err
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return nil, database.ErrInvalidCredentials
	}
	return u, nil
}

func (s *Service) CreateUser(ctx context.Context, username, password string, role models.Role) (*models.User, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, fmt.Errorf("username must not be empty: %w", database.ErrInvalidUser)
	}
	if len(password) < minPasswordLength {
		return nil, fmt.Errorf("password must have at least %d characters: %w", minPasswordLength, database.ErrInvalidUser)
	}
	if !role.Valid() {
		return nil, fmt.Errorf("role %q: %w", role, database.ErrInvalidRole)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	u := &models.User{Username: username, PasswordHash: string(hash), Role: role}
	if err := s.users.SaveUser(ctx, u); err != nil {
		return nil, err
	}

	s.logger.Info("User created", zap.String("username", u.Username), zap.String("role", string(u.Role)))
	return u, nil
}

// EnsureAdmin creates an ADMIN user unless username already exists. It
// reports whether a user was created.
func (s *Service) EnsureAdmin(ctx context.Context, username, password string) (bool, error) {
	_, err := s.users.GetUserByUsername(ctx, username)
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, database.ErrUserNotFound) {
		return false, err
	}

	if _, err := s.CreateUser(ctx, username, password, models.RoleAdmin); err != nil {
		if errors.Is(err, database.ErrUserExists) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}
