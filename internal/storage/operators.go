package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Operator is a bench user account. Two roles exist: "operator" runs
// tests, "admin" additionally manages accounts and clears batches.
type Operator struct {
	ID                  uuid.UUID  `json:"id"`
	Username            string     `json:"username"`
	PasswordHash        string     `json:"-"` // Never expose in JSON
	Role                string     `json:"role"`
	CreatedAt           time.Time  `json:"created_at"`
	LastLoginAt         *time.Time `json:"last_login_at"`
	FailedLoginAttempts int        `json:"-"`
	LockedUntil         *time.Time `json:"locked_until,omitempty"`
}

// GetOperatorByUsername retrieves an operator by username
func (p *PostgresClient) GetOperatorByUsername(ctx context.Context, username string) (*Operator, error) {
	var op Operator
	err := p.pool.QueryRow(ctx, `
		SELECT id, username, password_hash, role, created_at, last_login_at,
		       failed_login_attempts, locked_until
		FROM operators
		WHERE username = $1
	`, username).Scan(
		&op.ID, &op.Username, &op.PasswordHash, &op.Role,
		&op.CreatedAt, &op.LastLoginAt, &op.FailedLoginAttempts, &op.LockedUntil,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, fmt.Errorf("operator not found")
		}
		return nil, fmt.Errorf("failed to get operator: %w", err)
	}
	return &op, nil
}

// CreateOperator creates a new operator account
func (p *PostgresClient) CreateOperator(ctx context.Context, username, passwordHash, role string) (*Operator, error) {
	var op Operator
	err := p.pool.QueryRow(ctx, `
		INSERT INTO operators (username, password_hash, role)
		VALUES ($1, $2, $3)
		RETURNING id, username, role, created_at, last_login_at, failed_login_attempts, locked_until
	`, username, passwordHash, role).Scan(
		&op.ID, &op.Username, &op.Role, &op.CreatedAt,
		&op.LastLoginAt, &op.FailedLoginAttempts, &op.LockedUntil,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create operator: %w", err)
	}
	return &op, nil
}

// UpdateLastLogin updates the last login timestamp
func (p *PostgresClient) UpdateLastLogin(ctx context.Context, operatorID uuid.UUID) error {
	_, err := p.pool.Exec(ctx, `
		UPDATE operators SET last_login_at = NOW() WHERE id = $1
	`, operatorID)
	return err
}

// IncrementFailedLoginAttempts increments the failed login counter and
// locks the account after five misses.
func (p *PostgresClient) IncrementFailedLoginAttempts(ctx context.Context, operatorID uuid.UUID) error {
	_, err := p.pool.Exec(ctx, `
		UPDATE operators
		SET failed_login_attempts = failed_login_attempts + 1,
		    locked_until = CASE
		        WHEN failed_login_attempts + 1 >= 5 THEN NOW() + INTERVAL '15 minutes'
		        ELSE locked_until
		    END
		WHERE id = $1
	`, operatorID)
	return err
}

// ResetFailedLoginAttempts resets the failed login counter
func (p *PostgresClient) ResetFailedLoginAttempts(ctx context.Context, operatorID uuid.UUID) error {
	_, err := p.pool.Exec(ctx, `
		UPDATE operators
		SET failed_login_attempts = 0, locked_until = NULL
		WHERE id = $1
	`, operatorID)
	return err
}
