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

// Package eventstore implements the append-only event log: atomic
// multi-aggregate append under optimistic concurrency, rehydration from
// snapshot plus tail events, and periodic snapshots.
package eventstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"finance-atp/internal/aggregate"
	"finance-atp/internal/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
)

const (
	maxAttempts    = 3
	backoffBase    = 50 * time.Millisecond
	queryCurrentVersion = `
		SELECT version FROM events
		WHERE aggregate_id = $1
		ORDER BY version DESC
		LIMIT 1`
	queryAdvisoryLockAggregate = `
		SELECT pg_advisory_xact_lock(hashtext($1))`
	queryInsertEvent = `
		INSERT INTO events (id, aggregate_type, aggregate_id, version, event_type, event_data, context, idempotency_key)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	queryGetSnapshot = `
		SELECT version, state FROM event_snapshots
		WHERE aggregate_type = $1 AND aggregate_id = $2`
	queryUpsertSnapshot = `
		INSERT INTO event_snapshots (aggregate_type, aggregate_id, version, state, created_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (aggregate_type, aggregate_id)
		DO UPDATE SET version = EXCLUDED.version, state = EXCLUDED.state, created_at = EXCLUDED.created_at`
	queryEventsAfterVersion = `
		SELECT event_type, version, event_data FROM events
		WHERE aggregate_id = $1 AND version > $2
		ORDER BY version ASC`
)

// ErrIdempotencyKeyConflict is returned when the unique constraint on
// events.idempotency_key rejects an append. It is never retried; the caller
// detects a duplicate submission.
var ErrIdempotencyKeyConflict = errors.New("idempotency key already used")

// ConflictError reports an optimistic concurrency failure: the aggregate
// moved past the version the caller loaded.
type ConflictError struct {
	AggregateID uuid.UUID
	Expected    int64
	Actual      int64
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("concurrency conflict on aggregate %s: expected version %d, actual %d",
		e.AggregateID, e.Expected, e.Actual)
}

// AggregateOperation is one aggregate's contribution to an atomic append.
type AggregateOperation struct {
	AggregateType   string
	AggregateID     uuid.UUID
	ExpectedVersion int64
	Events          []domain.Event
}

type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// AppendAtomic appends the events of every operation in a single
// transaction, then runs inTx (projection updates, audit row, idempotency
// finalization) on the same transaction before committing. eventIDs passed
// to inTx are the assigned event IDs in operation order.
//
// Serialization failures and deadlocks are retried up to three times with
// exponential backoff. A version conflict is surfaced as *ConflictError:
// the events were produced against a stale aggregate, so only the caller
// can reload and retry. An idempotency-key collision is surfaced
// immediately as ErrIdempotencyKeyConflict.
func (s *Store) AppendAtomic(ctx context.Context, ops []AggregateOperation, idempotencyKey *uuid.UUID, opCtx domain.OperationContext, inTx func(tx *sql.Tx, eventIDs []uuid.UUID) error) ([]uuid.UUID, error) {
	if len(ops) == 0 {
		return nil, fmt.Errorf("append requires at least one operation")
	}

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			backoff := backoffBase << attempt
			zap.L().Debug("Retrying append after conflict",
				zap.Int("attempt", attempt), zap.Duration("backoff", backoff))
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		eventIDs, err := s.tryAppend(ctx, ops, idempotencyKey, opCtx, inTx)
		if err == nil {
			return eventIDs, nil
		}
		if !isRetryable(err) {
			return nil, err
		}
		lastErr = err
	}

	return nil, lastErr
}

func (s *Store) tryAppend(ctx context.Context, ops []AggregateOperation, idempotencyKey *uuid.UUID, opCtx domain.OperationContext, inTx func(tx *sql.Tx, eventIDs []uuid.UUID) error) ([]uuid.UUID, error) {
	contextJSON, err := json.Marshal(opCtx)
	if err != nil {
		return nil, fmt.Errorf("unable to serialize operation context: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("unable to begin transaction: %w", err)
	}
	defer func() {
		if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			zap.L().Warn("Failed to rollback append transaction", zap.Error(err))
		}
	}()

	var eventIDs []uuid.UUID
	firstEvent := true
	for _, op := range ops {
		// Serialize writers per aggregate. A row lock on the max-version
		// row cannot do this: a fresh aggregate has no row to lock, and
		// under read committed a waiter's statement snapshot predates the
		// winner's commit, so it would re-read the stale max version and
		// assign the same version twice. The advisory lock makes the
		// version read below a fresh statement after the winner commits.
		if _, err := tx.ExecContext(ctx, queryAdvisoryLockAggregate, op.AggregateID.String()); err != nil {
			return nil, fmt.Errorf("unable to lock aggregate %s: %w", op.AggregateID, err)
		}

		current := aggregate.NoVersion
		err := tx.QueryRowContext(ctx, queryCurrentVersion, op.AggregateID).Scan(&current)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("unable to read current version of %s: %w", op.AggregateID, err)
		}
		if current != op.ExpectedVersion {
			return nil, &ConflictError{
				AggregateID: op.AggregateID,
				Expected:    op.ExpectedVersion,
				Actual:      current,
			}
		}

		for i, event := range op.Events {
			eventID := uuid.New()
			payload, err := json.Marshal(event)
			if err != nil {
				return nil, fmt.Errorf("unable to serialize event %s: %w", event.EventType(), err)
			}

			var keyForRow *uuid.UUID
			if firstEvent {
				keyForRow = idempotencyKey
				firstEvent = false
			}

			if _, err := tx.ExecContext(ctx, queryInsertEvent,
				eventID, op.AggregateType, op.AggregateID,
				op.ExpectedVersion+1+int64(i), event.EventType(),
				payload, contextJSON, keyForRow); err != nil {
				return nil, classifyInsertError(err, op.AggregateID, op.ExpectedVersion)
			}
			eventIDs = append(eventIDs, eventID)
		}
	}

	if inTx != nil {
		if err := inTx(tx, eventIDs); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("unable to commit append: %w", err)
	}
	return eventIDs, nil
}

// LoadAggregate rehydrates agg from its snapshot (if any) and the events
// past it. Returns false when the aggregate has neither snapshot nor events.
func (s *Store) LoadAggregate(ctx context.Context, agg aggregate.Aggregate) (bool, error) {
	var (
		snapshotVersion int64
		snapshotState   []byte
	)
	err := s.db.QueryRowContext(ctx, queryGetSnapshot, agg.AggregateType(), agg.ID()).
		Scan(&snapshotVersion, &snapshotState)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		// Fold from the beginning.
	case err != nil:
		return false, fmt.Errorf("unable to read snapshot for %s: %w", agg.ID(), err)
	default:
		if err := agg.RestoreSnapshot(snapshotVersion, snapshotState); err != nil {
			return false, err
		}
	}

	found := agg.Version() > aggregate.NoVersion

	rows, err := s.db.QueryContext(ctx, queryEventsAfterVersion, agg.ID(), agg.Version())
	if err != nil {
		return false, fmt.Errorf("unable to read events for %s: %w", agg.ID(), err)
	}
	defer func(rows *sql.Rows) {
		if err := rows.Close(); err != nil {
			zap.L().Warn("Failed to close rows", zap.Error(err))
		}
	}(rows)

	for rows.Next() {
		var (
			eventType string
			version   int64
			payload   []byte
		)
		if err := rows.Scan(&eventType, &version, &payload); err != nil {
			return false, fmt.Errorf("unable to scan event row: %w", err)
		}
		if err := agg.ApplyRaw(eventType, version, payload); err != nil {
			return false, fmt.Errorf("unable to apply event %s at version %d: %w", eventType, version, err)
		}
		found = true
	}
	if err := rows.Err(); err != nil {
		return false, fmt.Errorf("error iterating event rows: %w", err)
	}

	return found, nil
}

// SaveSnapshotIfNeeded upserts a snapshot when the aggregate's version has
// crossed the snapshot cadence. Best effort at the call sites: a failed
// snapshot costs rehydration time, never correctness.
func (s *Store) SaveSnapshotIfNeeded(ctx context.Context, agg aggregate.Aggregate) error {
	if !aggregate.ShouldSnapshot(agg.Version()) {
		return nil
	}
	return s.saveSnapshot(ctx, agg)
}

func (s *Store) saveSnapshot(ctx context.Context, agg aggregate.Aggregate) error {
	state, err := agg.SnapshotState()
	if err != nil {
		return fmt.Errorf("unable to serialize snapshot for %s: %w", agg.ID(), err)
	}
	if _, err := s.db.ExecContext(ctx, queryUpsertSnapshot,
		agg.AggregateType(), agg.ID(), agg.Version(), state); err != nil {
		return fmt.Errorf("unable to save snapshot for %s: %w", agg.ID(), err)
	}

	zap.L().Debug("Snapshot saved",
		zap.String("aggregate_id", agg.ID().String()),
		zap.Int64("version", agg.Version()))
	return nil
}

// isRetryable covers transient transaction failures. Opposed-order appends
// (a transfer A->B racing B->A) can deadlock on the per-aggregate advisory
// locks; Postgres aborts one side and a fresh attempt succeeds.
func isRetryable(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// serialization_failure, deadlock_detected
		return pgErr.Code == "40001" || pgErr.Code == "40P01"
	}
	return false
}

// classifyInsertError maps a failed event insert to the store's error
// vocabulary. A unique violation on (aggregate_id, version) is a concurrent
// writer that won the race after our version check, so it retries like any
// version conflict; a violation on idempotency_key is a duplicate
// submission and is final.
func classifyInsertError(err error, aggregateID uuid.UUID, expected int64) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		if strings.Contains(pgErr.ConstraintName, "idempotency_key") {
			return ErrIdempotencyKeyConflict
		}
		return &ConflictError{AggregateID: aggregateID, Expected: expected, Actual: expected + 1}
	}
	return fmt.Errorf("unable to insert event: %w", err)
}
