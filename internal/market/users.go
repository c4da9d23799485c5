package market

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"novy.market/internal/auth"
)

const sessionTTL = 24 * time.Hour

// Registration is the input for Register.
type Registration struct {
	Email    string
	Name     string
	Password string
	Role     string
}

// Register creates a marketplace account. Email is unique; role defaults to
// tenant and admin cannot be self-assigned.
func (s *Service) Register(ctx context.Context, in Registration) (User, error) {
	email := strings.TrimSpace(strings.ToLower(in.Email))
	if !strings.Contains(email, "@") {
		return User{}, fmt.Errorf("%w: valid email is required", ErrValidation)
	}
	if strings.TrimSpace(in.Name) == "" {
		return User{}, fmt.Errorf("%w: name is required", ErrValidation)
	}
	if len(in.Password) < 8 {
		return User{}, fmt.Errorf("%w: password must be at least 8 characters", ErrValidation)
	}

	role := strings.TrimSpace(strings.ToLower(in.Role))
	switch role {
	case "":
		role = RoleTenant
	case RoleTenant, RoleOwner:
	default:
		return User{}, fmt.Errorf("%w: unsupported role %q", ErrValidation, in.Role)
	}

	if _, err := s.store.GetUserByEmail(ctx, email); err == nil {
		return User{}, fmt.Errorf("%w: email already registered", ErrConflict)
	} else if !errors.Is(err, ErrNotFound) {
		return User{}, err
	}

	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return User{}, fmt.Errorf("hash password: %w", err)
	}

	now := s.now().UTC()
	u := User{
		ID:           newID(),
		Email:        email,
		Name:         strings.TrimSpace(in.Name),
		Role:         role,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.store.CreateUser(ctx, &u); err != nil {
		return User{}, err
	}
	return u, nil
}

// Login verifies credentials and issues a signed session token. Bad email
// and bad password are indistinguishable to the caller.
func (s *Service) Login(ctx context.Context, email, password string) (User, string, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	u, err := s.store.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return User{}, "", fmt.Errorf("%w: invalid credentials", ErrForbidden)
		}
		return User{}, "", err
	}
	if err := auth.VerifyPassword(u.PasswordHash, password); err != nil {
		return User{}, "", fmt.Errorf("%w: invalid credentials", ErrForbidden)
	}
	token, err := auth.GenerateToken(u.ID, []string{u.Role}, sessionTTL)
	if err != nil {
		return User{}, "", err
	}
	return u, token, nil
}

// GetUser returns an account by id.
func (s *Service) GetUser(ctx context.Context, id string) (User, error) {
	return s.store.GetUser(ctx, id)
}

// ListUsers returns every account (admin).
func (s *Service) ListUsers(ctx context.Context) ([]User, error) {
	return s.store.ListUsers(ctx)
}

// ListApplications returns every application (admin).
func (s *Service) ListApplications(ctx context.Context) ([]Application, error) {
	return s.store.ListApplications(ctx)
}

// AuditTrail returns the audit entries for a resource (admin).
func (s *Service) AuditTrail(ctx context.Context, resourceType, resourceID string) ([]AuditLog, error) {
	if strings.TrimSpace(resourceType) == "" || strings.TrimSpace(resourceID) == "" {
		return nil, fmt.Errorf("%w: resource type and id are required", ErrValidation)
	}
	return s.store.ListAuditLogs(ctx, resourceType, resourceID)
}

// PlatformStats returns the admin overview.
func (s *Service) PlatformStats(ctx context.Context) (PlatformStats, error) {
	return s.store.PlatformStats(ctx)
}

// DashboardStats returns the per-user overview.
func (s *Service) DashboardStats(ctx context.Context, userID string) (DashboardStats, error) {
	return s.store.DashboardStats(ctx, userID)
}
