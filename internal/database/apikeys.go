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
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"finance-atp/internal/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// HashAPIKey returns the hex-encoded SHA-256 of a raw API key, the only form
// ever persisted.
func HashAPIKey(rawKey string) string {
	sum := sha256.Sum256([]byte(rawKey))
	return hex.EncodeToString(sum[:])
}

// GetAPIKeyByHash looks up an active API key by the hash of the presented
// raw key. Returns nil when no active key matches.
func (s *Service) GetAPIKeyByHash(ctx context.Context, keyHash string) (*models.APIKey, error) {
	var (
		key             models.APIKey
		permissionsJSON []byte
	)
	err := s.db.QueryRowContext(ctx, queryGetAPIKeyByHash, keyHash).Scan(
		&key.ID, &key.Name, &permissionsJSON, &key.RateLimitPerMinute,
		&key.IsActive, &key.CreatedAt, &key.LastUsedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("unable to query api key: %w", err)
	}
	if err := json.Unmarshal(permissionsJSON, &key.Permissions); err != nil {
		return nil, fmt.Errorf("unable to decode api key permissions: %w", err)
	}
	return &key, nil
}

// TouchAPIKey records key usage. Failures are logged, not surfaced; a stale
// last_used_at never blocks a request.
func (s *Service) TouchAPIKey(ctx context.Context, keyID uuid.UUID) {
	if _, err := s.db.ExecContext(ctx, queryTouchAPIKey, keyID); err != nil {
		zap.L().Warn("Failed to update api key last_used_at",
			zap.String("key_id", keyID.String()), zap.Error(err))
	}
}

// CreateAPIKey persists a new key. The caller supplies the already-hashed
// secret; the raw key never reaches this layer.
func (s *Service) CreateAPIKey(ctx context.Context, id uuid.UUID, name, keyPrefix, keyHash string, permissions []string, rateLimitPerMinute int, createdAt time.Time) error {
	permissionsJSON, err := json.Marshal(permissions)
	if err != nil {
		return fmt.Errorf("unable to encode permissions: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, queryInsertAPIKey,
		id, name, keyPrefix, keyHash, permissionsJSON, rateLimitPerMinute, createdAt); err != nil {
		return fmt.Errorf("unable to insert api key: %w", err)
	}
	return nil
}

func (s *Service) ListAPIKeys(ctx context.Context) ([]models.APIKeyResponse, error) {
	rows, err := s.db.QueryContext(ctx, queryListAPIKeys)
	if err != nil {
		return nil, fmt.Errorf("unable to query api keys: %w", err)
	}
	defer func(rows *sql.Rows) {
		if err := rows.Close(); err != nil {
			zap.L().Warn("Failed to close rows", zap.Error(err))
		}
	}(rows)

	var keys []models.APIKeyResponse
	for rows.Next() {
		key, err := scanAPIKeyResponse(rows)
		if err != nil {
			return nil, err
		}
		keys = append(keys, *key)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating api key rows: %w", err)
	}
	return keys, nil
}

func (s *Service) GetAPIKeyByIDResponse(ctx context.Context, keyID uuid.UUID) (*models.APIKeyResponse, error) {
	row := s.db.QueryRowContext(ctx, queryGetAPIKeyByID, keyID)
	key, err := scanAPIKeyResponse(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return key, nil
}

// UpdateAPIKey applies the non-nil fields and returns the updated row, or
// nil when the key does not exist.
func (s *Service) UpdateAPIKey(ctx context.Context, keyID uuid.UUID, req models.UpdateAPIKeyRequest) (*models.APIKeyResponse, error) {
	var permissionsJSON []byte
	if req.Permissions != nil {
		var err error
		permissionsJSON, err = json.Marshal(*req.Permissions)
		if err != nil {
			return nil, fmt.Errorf("unable to encode permissions: %w", err)
		}
	}

	result, err := s.db.ExecContext(ctx, queryUpdateAPIKey,
		keyID, req.Name, permissionsJSON, req.RateLimitPerMinute, req.IsActive)
	if err != nil {
		return nil, fmt.Errorf("unable to update api key: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("unable to read update result: %w", err)
	}
	if affected == 0 {
		return nil, nil
	}

	return s.GetAPIKeyByIDResponse(ctx, keyID)
}

// DeactivateAPIKey soft-deletes a key. Returns false when the key does not
// exist.
func (s *Service) DeactivateAPIKey(ctx context.Context, keyID uuid.UUID) (bool, error) {
	result, err := s.db.ExecContext(ctx, queryDeactivateAPIKey, keyID)
	if err != nil {
		return false, fmt.Errorf("unable to deactivate api key: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("unable to read deactivate result: %w", err)
	}
	return affected > 0, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAPIKeyResponse(row rowScanner) (*models.APIKeyResponse, error) {
	var (
		key             models.APIKeyResponse
		permissionsJSON []byte
	)
	err := row.Scan(&key.ID, &key.Name, &key.KeyPrefix, &permissionsJSON,
		&key.RateLimitPerMinute, &key.IsActive, &key.CreatedAt, &key.LastUsedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(permissionsJSON, &key.Permissions); err != nil {
		return nil, fmt.Errorf("unable to decode api key permissions: %w", err)
	}
	return &key, nil
}
