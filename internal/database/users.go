/**
 * Copyright 2025-present Coinbase Global, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"finance-atp/internal/domain"
	"finance-atp/internal/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
)

func (s *Service) GetUserByID(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	var user models.User
	err := s.db.QueryRowContext(ctx, queryGetUserByID, userID).Scan(
		&user.ID, &user.Username, &user.Email, &user.DisplayName,
		&user.IsSystem, &user.IsActive, &user.CreatedAt, &user.UpdatedAt, &user.DeletedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("unable to query user %s: %w", userID, err)
	}
	return &user, nil
}

func (s *Service) IsSystemUser(ctx context.Context, userID uuid.UUID) (bool, error) {
	var isSystem bool
	err := s.db.QueryRowContext(ctx, queryIsSystemUser, userID).Scan(&isSystem)
	if errors.Is(err, sql.ErrNoRows) {
		return false, domain.ErrUserNotFound
	}
	if err != nil {
		return false, fmt.Errorf("unable to query user %s: %w", userID, err)
	}
	return isSystem, nil
}

// GetWalletAccountID resolves a user to its unique user_wallet account. A
// known user without a wallet is a broken invariant, not a client error.
func (s *Service) GetWalletAccountID(ctx context.Context, userID uuid.UUID) (uuid.UUID, error) {
	var accountID uuid.UUID
	err := s.db.QueryRowContext(ctx, queryGetWalletAccountID, userID).Scan(&accountID)
	if errors.Is(err, sql.ErrNoRows) {
		return uuid.Nil, domain.ErrUserNotFound
	}
	if err != nil {
		return uuid.Nil, fmt.Errorf("unable to resolve wallet for user %s: %w", userID, err)
	}
	return accountID, nil
}

// CreateUserProjectionTx inserts the users query row on the caller's
// transaction. A unique violation on username or email surfaces as
// ErrInvalidRequest.
func (s *Service) CreateUserProjectionTx(ctx context.Context, tx *sql.Tx, userID uuid.UUID, username, email, displayName string, createdAt time.Time) error {
	if _, err := tx.ExecContext(ctx, queryInsertUserProjection,
		userID, username, email, displayName, createdAt); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("%w: username or email already exists", domain.ErrInvalidRequest)
		}
		return fmt.Errorf("unable to insert user row: %w", err)
	}
	return nil
}

func (s *Service) UpdateUserProjectionTx(ctx context.Context, tx *sql.Tx, userID uuid.UUID, displayName, email *string, updatedAt time.Time) error {
	if _, err := tx.ExecContext(ctx, queryUpdateUserProjection,
		userID, displayName, email, updatedAt); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("%w: email already exists", domain.ErrInvalidRequest)
		}
		return fmt.Errorf("unable to update user row: %w", err)
	}
	return nil
}

func (s *Service) DeactivateUserProjectionTx(ctx context.Context, tx *sql.Tx, userID uuid.UUID, deletedAt time.Time) error {
	if _, err := tx.ExecContext(ctx, queryDeactivateUserProjection, userID, deletedAt); err != nil {
		return fmt.Errorf("unable to deactivate user row: %w", err)
	}
	return nil
}

func (s *Service) CreateAccountProjectionTx(ctx context.Context, tx *sql.Tx, accountID, userID uuid.UUID, accountType string, createdAt time.Time) error {
	if _, err := tx.ExecContext(ctx, queryInsertAccountProjection,
		accountID, userID, accountType, createdAt); err != nil {
		return fmt.Errorf("unable to insert account row: %w", err)
	}
	return nil
}

// GetAccountIDByType resolves a user to one of its typed accounts. Used for
// the system accounts (mint_source and friends).
func (s *Service) GetAccountIDByType(ctx context.Context, userID uuid.UUID, accountType string) (uuid.UUID, error) {
	var accountID uuid.UUID
	err := s.db.QueryRowContext(ctx, queryGetAccountIDByType, userID, accountType).Scan(&accountID)
	if errors.Is(err, sql.ErrNoRows) {
		return uuid.Nil, domain.ErrAccountNotFound
	}
	if err != nil {
		return uuid.Nil, fmt.Errorf("unable to resolve %s account for user %s: %w", accountType, userID, err)
	}
	return accountID, nil
}
