package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/KevinKickass/OpenTestBench/internal/config"
	"github.com/KevinKickass/OpenTestBench/internal/storage"
)

type Permission string

const (
	PermOperator Permission = "operator"
	PermAdmin    Permission = "admin"
)

// AuthService authenticates bench operators. Two roles only: operators
// run tests, admins additionally manage accounts and wipe batches.
type AuthService struct {
	storage        *storage.PostgresClient
	jwtHandler     *JWTHandler
	passwordHasher *PasswordHasher
}

func NewAuthService(store *storage.PostgresClient, cfg config.AuthConfig) *AuthService {
	return &AuthService{
		storage:        store,
		jwtHandler:     NewJWTHandler(cfg.GetJWTSecret(), cfg.AccessTokenTTL),
		passwordHasher: NewPasswordHasher(),
	}
}

// Login authenticates an operator and returns an access token.
func (a *AuthService) Login(ctx context.Context, username, password string) (string, error) {
	op, err := a.storage.GetOperatorByUsername(ctx, username)
	if err != nil {
		return "", fmt.Errorf("invalid credentials")
	}

	if op.LockedUntil != nil && time.Now().Before(*op.LockedUntil) {
		return "", fmt.Errorf("account locked until %v", op.LockedUntil)
	}

	valid, err := a.passwordHasher.VerifyPassword(password, op.PasswordHash)
	if err != nil || !valid {
		a.storage.IncrementFailedLoginAttempts(ctx, op.ID)
		return "", fmt.Errorf("invalid credentials")
	}

	a.storage.ResetFailedLoginAttempts(ctx, op.ID)
	a.storage.UpdateLastLogin(ctx, op.ID)

	return a.jwtHandler.GenerateAccessToken(op.ID, op.Username, op.Role)
}

// ValidateToken validates an access token and returns its permissions.
func (a *AuthService) ValidateToken(token string) ([]Permission, *JWTClaims, error) {
	claims, err := a.jwtHandler.ValidateAccessToken(token)
	if err != nil {
		return nil, nil, err
	}
	return a.roleToPermissions(claims.Role), claims, nil
}

// CreateOperator creates a new operator account
func (a *AuthService) CreateOperator(ctx context.Context, username, password, role string) (*storage.Operator, error) {
	if role != "operator" && role != "admin" {
		return nil, fmt.Errorf("unknown role %q", role)
	}

	passwordHash, err := a.passwordHasher.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	return a.storage.CreateOperator(ctx, username, passwordHash, role)
}

func (a *AuthService) roleToPermissions(role string) []Permission {
	if role == "admin" {
		return []Permission{PermOperator, PermAdmin}
	}
	return []Permission{PermOperator}
}
