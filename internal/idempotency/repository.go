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

// Package idempotency binds one client-supplied key to at most one committed
// outcome. The state machine per key is
//
//	(absent) → processing → completed
//	                      → failed
//
// with a 5 minute stale timeout returning abandoned processing entries to
// failed, and a 24 hour expiry deleting the row.
package idempotency

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// StaleTimeout is how long a key may sit in processing before the sweeper
// (or a competing claim) treats the worker as crashed.
const StaleTimeout = 5 * time.Minute

var (
	// ErrInFlight means another request holds the key and is within the
	// stale timeout.
	ErrInFlight = errors.New("request with this idempotency key is already in flight")

	// ErrHashMismatch means the key was reused with a different request
	// body.
	ErrHashMismatch = errors.New("idempotency key reused with a different request")
)

const (
	queryClaimNew = `
		INSERT INTO idempotency_keys (key, request_hash, processing_status, processing_started_at)
		VALUES ($1, $2, 'processing', now())
		ON CONFLICT (key) DO NOTHING`

	queryGetKey = `
		SELECT request_hash, processing_status, response_status, response_body, processing_started_at
		FROM idempotency_keys
		WHERE key = $1`

	queryReclaim = `
		UPDATE idempotency_keys
		SET processing_status = 'processing', processing_started_at = now()
		WHERE key = $1
		  AND (processing_status IN ('pending', 'failed')
		       OR (processing_status = 'processing' AND processing_started_at < now() - interval '5 minutes'))`

	queryMarkCompleted = `
		UPDATE idempotency_keys
		SET processing_status = 'completed',
		    event_id = $2,
		    response_status = $3,
		    response_body = $4
		WHERE key = $1`

	queryMarkFailed = `
		UPDATE idempotency_keys
		SET processing_status = 'failed'
		WHERE key = $1 AND processing_status <> 'completed'`

	queryResetStale = `
		UPDATE idempotency_keys
		SET processing_status = 'failed'
		WHERE processing_status = 'processing'
		  AND processing_started_at < now() - interval '5 minutes'`

	queryDeleteExpired = `
		DELETE FROM idempotency_keys WHERE expires_at < now()`
)

// Outcome is the result of claiming a key. Fresh means the caller owns the
// key and must finish with MarkCompletedTx or MarkFailed; otherwise the
// cached response is replayed as-is.
type Outcome struct {
	Fresh          bool
	ResponseStatus int
	ResponseBody   json.RawMessage
}

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// ComputeRequestHash canonicalizes a request body for mismatch detection.
func ComputeRequestHash(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}

// Start atomically claims key for this request. The insert-with-conflict
// plus conditional update protocol never leaves a window where two workers
// both believe they own a live key.
func (r *Repository) Start(ctx context.Context, key uuid.UUID, requestHash string) (*Outcome, error) {
	result, err := r.db.ExecContext(ctx, queryClaimNew, key, requestHash)
	if err != nil {
		return nil, fmt.Errorf("unable to claim idempotency key: %w", err)
	}
	inserted, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("unable to read claim result: %w", err)
	}
	if inserted > 0 {
		return &Outcome{Fresh: true}, nil
	}

	var (
		storedHash     string
		status         string
		responseStatus sql.NullInt64
		responseBody   []byte
		startedAt      sql.NullTime
	)
	err = r.db.QueryRowContext(ctx, queryGetKey, key).
		Scan(&storedHash, &status, &responseStatus, &responseBody, &startedAt)
	if errors.Is(err, sql.ErrNoRows) {
		// Deleted by the expiry sweeper between our insert and read; the
		// caller just retries.
		return nil, ErrInFlight
	}
	if err != nil {
		return nil, fmt.Errorf("unable to read idempotency key: %w", err)
	}

	if storedHash != requestHash {
		return nil, ErrHashMismatch
	}

	if status == "completed" {
		zap.L().Info("Replaying cached response for idempotency key",
			zap.String("key", key.String()))
		return &Outcome{
			Fresh:          false,
			ResponseStatus: int(responseStatus.Int64),
			ResponseBody:   responseBody,
		}, nil
	}

	if status == "processing" && startedAt.Valid && time.Since(startedAt.Time) < StaleTimeout {
		return nil, ErrInFlight
	}

	// pending, failed, or stale processing: take the key over.
	result, err = r.db.ExecContext(ctx, queryReclaim, key)
	if err != nil {
		return nil, fmt.Errorf("unable to reclaim idempotency key: %w", err)
	}
	reclaimed, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("unable to read reclaim result: %w", err)
	}
	if reclaimed == 0 {
		// Lost the race to another claimant.
		return nil, ErrInFlight
	}
	return &Outcome{Fresh: true}, nil
}

// MarkCompletedTx records the cached response on the append transaction, so
// completion becomes visible exactly when the events do.
func (r *Repository) MarkCompletedTx(ctx context.Context, tx *sql.Tx, key uuid.UUID, eventID uuid.UUID, status int, body json.RawMessage) error {
	if _, err := tx.ExecContext(ctx, queryMarkCompleted, key, eventID, status, body); err != nil {
		return fmt.Errorf("unable to mark idempotency key completed: %w", err)
	}
	return nil
}

// MarkFailed releases the key after a domain rejection or rollback. Failures
// here are logged only; the stale sweeper is the backstop.
func (r *Repository) MarkFailed(ctx context.Context, key uuid.UUID) {
	if _, err := r.db.ExecContext(ctx, queryMarkFailed, key); err != nil {
		zap.L().Warn("Failed to mark idempotency key failed",
			zap.String("key", key.String()), zap.Error(err))
	}
}

// ResetStale returns abandoned processing keys to failed (crash recovery).
func (r *Repository) ResetStale(ctx context.Context) (int64, error) {
	result, err := r.db.ExecContext(ctx, queryResetStale)
	if err != nil {
		return 0, fmt.Errorf("unable to reset stale idempotency keys: %w", err)
	}
	return result.RowsAffected()
}

// CleanupExpired deletes keys past their 24 hour retention.
func (r *Repository) CleanupExpired(ctx context.Context) (int64, error) {
	result, err := r.db.ExecContext(ctx, queryDeleteExpired)
	if err != nil {
		return 0, fmt.Errorf("unable to delete expired idempotency keys: %w", err)
	}
	return result.RowsAffected()
}
