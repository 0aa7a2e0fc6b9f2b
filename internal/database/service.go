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
	"fmt"
	"time"

	"finance-atp/internal/domain"
	"finance-atp/internal/models"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"
)

type Service struct {
	db *sql.DB
}

func NewService(ctx context.Context, cfg *models.Config) (*Service, error) {
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("database URL cannot be empty")
	}
	if cfg.DatabaseMaxConns <= 0 {
		return nil, fmt.Errorf("max connections must be positive, got %d", cfg.DatabaseMaxConns)
	}

	zap.L().Info("Opening Postgres connection pool")
	db, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("unable to open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.DatabaseMaxConns)
	db.SetMaxIdleConns(cfg.DatabaseMaxConns / 2)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(30 * time.Second)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			zap.L().Warn("Failed to close database connection", zap.Error(closeErr))
		}
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	zap.L().Info("Database service initialized successfully")
	return &Service{db: db}, nil
}

func (s *Service) Close() {
	if err := s.db.Close(); err != nil {
		zap.L().Warn("Failed to close database connection", zap.Error(err))
	}
}

// DB exposes the underlying pool for packages that manage their own
// transactions (event store, projection, handlers).
func (s *Service) DB() *sql.DB {
	return s.db
}

// CheckSchema verifies that every required table exists and that the seeded
// system users and their accounts are present. It returns false (without
// error) when the schema is incomplete, so startup can fail with a clear
// message pointing at the setup tool.
func (s *Service) CheckSchema(ctx context.Context) (bool, error) {
	requiredTables := []string{
		"api_keys",
		"events",
		"event_snapshots",
		"users",
		"accounts",
		"account_balances",
		"ledger_entries",
		"idempotency_keys",
		"audit_logs",
	}

	for _, table := range requiredTables {
		var exists bool
		if err := s.db.QueryRowContext(ctx, queryTableExists, table).Scan(&exists); err != nil {
			return false, fmt.Errorf("unable to check table %s: %w", table, err)
		}
		if !exists {
			zap.L().Error("Required table does not exist", zap.String("table", table))
			return false, nil
		}
	}

	return s.checkSystemUsers(ctx)
}

func (s *Service) checkSystemUsers(ctx context.Context) (bool, error) {
	systemUsers := []struct {
		id   uuid.UUID
		name string
	}{
		{domain.SystemMintUserID, "SYSTEM_MINT"},
		{domain.SystemBurnUserID, "SYSTEM_BURN"},
		{domain.SystemFeeUserID, "SYSTEM_FEE"},
		{domain.SystemReserveUserID, "SYSTEM_RESERVE"},
	}

	for _, su := range systemUsers {
		var userExists bool
		if err := s.db.QueryRowContext(ctx, queryUserExists, su.id).Scan(&userExists); err != nil {
			return false, fmt.Errorf("unable to check system user %s: %w", su.name, err)
		}
		if !userExists {
			zap.L().Error("Required system user does not exist, run the setup tool",
				zap.String("user", su.name), zap.String("id", su.id.String()))
			return false, nil
		}

		var accountExists bool
		if err := s.db.QueryRowContext(ctx, queryAccountExistsForUser, su.id).Scan(&accountExists); err != nil {
			return false, fmt.Errorf("unable to check system account for %s: %w", su.name, err)
		}
		if !accountExists {
			zap.L().Error("Required system account does not exist, run the setup tool",
				zap.String("user", su.name), zap.String("id", su.id.String()))
			return false, nil
		}
	}

	zap.L().Info("System users verified",
		zap.Strings("users", []string{"SYSTEM_MINT", "SYSTEM_BURN", "SYSTEM_FEE", "SYSTEM_RESERVE"}))
	return true, nil
}
