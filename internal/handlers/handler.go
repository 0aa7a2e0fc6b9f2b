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

// Package handlers orchestrates the write path. Every mutating command runs
// the same pipeline: authorize, claim the idempotency key, load aggregates,
// produce events, then one transaction covering event append, projection
// updates, the audit row, and idempotency completion. The cached response is
// replayed byte-identically on any later call with the same key.
package handlers

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"finance-atp/internal/aggregate"
	"finance-atp/internal/audit"
	"finance-atp/internal/database"
	"finance-atp/internal/eventstore"
	"finance-atp/internal/idempotency"
	"finance-atp/internal/projection"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type Handler struct {
	db          *database.Service
	store       *eventstore.Store
	projection  *projection.Service
	idempotency *idempotency.Repository
	audit       *audit.Service
}

func New(db *database.Service) *Handler {
	pool := db.DB()
	return &Handler{
		db:          db,
		store:       eventstore.NewStore(pool),
		projection:  projection.NewService(pool),
		idempotency: idempotency.NewRepository(pool),
		audit:       audit.NewService(pool),
	}
}

const (
	conflictRetryAttempts = 3
	conflictRetryBackoff  = 50 * time.Millisecond
)

// retryOnConflict re-runs a full load-produce-append cycle when a
// concurrent writer advanced one of the aggregates first. The retry must
// happen at this level: the store cannot retry a version conflict because
// the events it holds were produced against the stale version. Each new
// attempt reloads and sees the committed state; the conflict is surfaced
// only after the attempts are exhausted.
func (h *Handler) retryOnConflict(ctx context.Context, fn func() error) error {
	var lastErr error
	for attempt := 0; attempt < conflictRetryAttempts; attempt++ {
		if attempt > 0 {
			backoff := conflictRetryBackoff << attempt
			zap.L().Debug("Retrying command after version conflict",
				zap.Int("attempt", attempt), zap.Duration("backoff", backoff))
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		err := fn()
		var conflict *eventstore.ConflictError
		if !errors.As(err, &conflict) {
			return err
		}
		lastErr = err
	}
	return lastErr
}

// Result is a finished command response: the HTTP status plus the exact
// bytes to send. Replays of the same idempotency key return the same bytes.
type Result struct {
	Status int
	Body   json.RawMessage
}

func newResult(status int, payload any) (*Result, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &Result{Status: status, Body: body}, nil
}

// claimKey runs the idempotency claim for one command. The request hash
// covers the action name so the same key cannot silently serve two
// different endpoints.
func (h *Handler) claimKey(ctx context.Context, key uuid.UUID, action string, command any) (*idempotency.Outcome, error) {
	body, err := json.Marshal(command)
	if err != nil {
		return nil, err
	}
	hash := idempotency.ComputeRequestHash(append([]byte(action+":"), body...))
	return h.idempotency.Start(ctx, key, hash)
}

func replay(outcome *idempotency.Outcome) *Result {
	status := outcome.ResponseStatus
	if status == 0 {
		status = http.StatusOK
	}
	return &Result{Status: status, Body: outcome.ResponseBody}
}

// releaseKey marks the key failed after a rejected command, logging only.
func (h *Handler) releaseKey(ctx context.Context, key uuid.UUID) {
	h.idempotency.MarkFailed(ctx, key)
}

// saveSnapshots is best effort after commit.
func (h *Handler) saveSnapshots(ctx context.Context, aggs ...aggregate.Aggregate) {
	for _, agg := range aggs {
		if err := h.store.SaveSnapshotIfNeeded(ctx, agg); err != nil {
			zap.L().Warn("Failed to save snapshot",
				zap.String("aggregate_id", agg.ID().String()), zap.Error(err))
		}
	}
}

// completeTx writes the idempotency completion row on the append
// transaction.
func (h *Handler) completeTx(ctx context.Context, tx *sql.Tx, key uuid.UUID, eventID uuid.UUID, result *Result) error {
	return h.idempotency.MarkCompletedTx(ctx, tx, key, eventID, result.Status, result.Body)
}
