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

// Package audit writes and verifies the hash-chained log of externally
// visible operations. Chaining happens in a database trigger under a named
// advisory transaction lock; this package supplies the rows and re-walks
// the chain to detect tampering.
package audit

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"finance-atp/internal/domain"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Audit actions.
const (
	ActionUserCreated      = "user.created"
	ActionUserUpdated      = "user.updated"
	ActionUserDeactivated  = "user.deactivated"
	ActionTransferExecuted = "transfer.executed"
	ActionMintExecuted     = "mint.executed"
	ActionBurnExecuted     = "burn.executed"
	ActionAPIKeyCreated    = "api_key.created"
	ActionAPIKeyRevoked    = "api_key.revoked"
	ActionPermissionDenied = "auth.permission_denied"
)

// ZeroHash anchors the chain: the first row's previous_hash.
var ZeroHash = strings.Repeat("0", 64)

const (
	queryInsertEntry = `
		INSERT INTO audit_logs (id, api_key_id, request_user_id, correlation_id, action,
			resource_type, resource_id, before_state, after_state, changed_fields, client_ip)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NULLIF($11, ''))`

	queryChainRows = `
		SELECT id::text, sequence_number::text, action,
		       COALESCE(request_user_id::text, ''),
		       COALESCE(resource_type, ''),
		       COALESCE(resource_id, ''),
		       COALESCE(before_state::text, ''),
		       COALESCE(after_state::text, ''),
		       previous_hash, current_hash
		FROM audit_logs
		ORDER BY sequence_number ASC`

	queryRecentEntries = `
		SELECT id, sequence_number, action, COALESCE(resource_type, ''), COALESCE(resource_id, ''),
		       request_user_id, correlation_id, created_at
		FROM audit_logs
		ORDER BY sequence_number DESC
		LIMIT $1`

	queryEntriesByUser = `
		SELECT id, sequence_number, action, COALESCE(resource_type, ''), COALESCE(resource_id, ''),
		       request_user_id, correlation_id, created_at
		FROM audit_logs
		WHERE request_user_id = $1
		ORDER BY sequence_number DESC
		LIMIT $2`
)

// Entry is one audit row as supplied by a handler. Hashes and the sequence
// number are filled in by the chain trigger at insert.
type Entry struct {
	Action        string
	ResourceType  string
	ResourceID    string
	BeforeState   any
	AfterState    any
	ChangedFields []string
}

type Service struct {
	db *sql.DB
}

func NewService(db *sql.DB) *Service {
	return &Service{db: db}
}

// RecordTx appends one audit row on the caller's transaction, so the audit
// entry commits atomically with the operation it describes.
func (s *Service) RecordTx(ctx context.Context, tx *sql.Tx, opCtx domain.OperationContext, entry Entry) error {
	beforeJSON, err := marshalState(entry.BeforeState)
	if err != nil {
		return fmt.Errorf("unable to serialize before_state: %w", err)
	}
	afterJSON, err := marshalState(entry.AfterState)
	if err != nil {
		return fmt.Errorf("unable to serialize after_state: %w", err)
	}
	var changedJSON []byte
	if len(entry.ChangedFields) > 0 {
		changedJSON, err = json.Marshal(entry.ChangedFields)
		if err != nil {
			return fmt.Errorf("unable to serialize changed_fields: %w", err)
		}
	}

	var resourceType, resourceID *string
	if entry.ResourceType != "" {
		resourceType = &entry.ResourceType
	}
	if entry.ResourceID != "" {
		resourceID = &entry.ResourceID
	}

	id := uuid.New()
	if _, err := tx.ExecContext(ctx, queryInsertEntry,
		id, opCtx.APIKeyID, opCtx.RequestUserID, opCtx.CorrelationID,
		entry.Action, resourceType, resourceID,
		beforeJSON, afterJSON, changedJSON, opCtx.ClientIP); err != nil {
		return fmt.Errorf("unable to insert audit entry: %w", err)
	}

	zap.L().Debug("Audit entry recorded",
		zap.String("id", id.String()),
		zap.String("action", entry.Action))
	return nil
}

func marshalState(state any) ([]byte, error) {
	if state == nil {
		return nil, nil
	}
	return json.Marshal(state)
}

// ChainViolation is one audit row whose recorded hashes disagree with the
// recomputation. Every row after a tampered one is also reported.
type ChainViolation struct {
	SequenceNumber string
	ID             string
	Reason         string
}

// VerifyChain walks the whole log in sequence order, recomputing every link.
func (s *Service) VerifyChain(ctx context.Context) ([]ChainViolation, int, error) {
	rows, err := s.db.QueryContext(ctx, queryChainRows)
	if err != nil {
		return nil, 0, fmt.Errorf("unable to query audit chain: %w", err)
	}
	defer func(rows *sql.Rows) {
		if err := rows.Close(); err != nil {
			zap.L().Warn("Failed to close rows", zap.Error(err))
		}
	}(rows)

	var (
		violations []ChainViolation
		checked    int
		expected   = ZeroHash
	)
	for rows.Next() {
		var id, seq, action, requestUserID, resourceType, resourceID,
			beforeState, afterState, previousHash, currentHash string
		if err := rows.Scan(&id, &seq, &action, &requestUserID, &resourceType,
			&resourceID, &beforeState, &afterState, &previousHash, &currentHash); err != nil {
			return nil, checked, fmt.Errorf("unable to scan audit row: %w", err)
		}
		checked++

		if previousHash != expected {
			violations = append(violations, ChainViolation{
				SequenceNumber: seq,
				ID:             id,
				Reason:         "previous_hash does not match the preceding row",
			})
		}

		recomputed := ComputeEntryHash(id, seq, action, requestUserID,
			resourceType, resourceID, beforeState, afterState, previousHash)
		if recomputed != currentHash {
			violations = append(violations, ChainViolation{
				SequenceNumber: seq,
				ID:             id,
				Reason:         "current_hash does not match recomputation",
			})
		}

		expected = currentHash
	}
	if err := rows.Err(); err != nil {
		return nil, checked, fmt.Errorf("error iterating audit rows: %w", err)
	}

	return violations, checked, nil
}

// LogEntry is the read model for audit queries.
type LogEntry struct {
	ID             uuid.UUID  `json:"id"`
	SequenceNumber int64      `json:"sequence_number"`
	Action         string     `json:"action"`
	ResourceType   string     `json:"resource_type,omitempty"`
	ResourceID     string     `json:"resource_id,omitempty"`
	RequestUserID  *uuid.UUID `json:"request_user_id,omitempty"`
	CorrelationID  *uuid.UUID `json:"correlation_id,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

// GetRecent returns the newest entries, most recent first.
func (s *Service) GetRecent(ctx context.Context, limit int64) ([]LogEntry, error) {
	return s.queryEntries(ctx, queryRecentEntries, limit)
}

// GetByUser returns the newest entries attributed to one acting user.
func (s *Service) GetByUser(ctx context.Context, userID uuid.UUID, limit int64) ([]LogEntry, error) {
	return s.queryEntries(ctx, queryEntriesByUser, userID, limit)
}

func (s *Service) queryEntries(ctx context.Context, query string, args ...any) ([]LogEntry, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("unable to query audit entries: %w", err)
	}
	defer func(rows *sql.Rows) {
		if err := rows.Close(); err != nil {
			zap.L().Warn("Failed to close rows", zap.Error(err))
		}
	}(rows)

	var entries []LogEntry
	for rows.Next() {
		var entry LogEntry
		if err := rows.Scan(&entry.ID, &entry.SequenceNumber, &entry.Action,
			&entry.ResourceType, &entry.ResourceID, &entry.RequestUserID,
			&entry.CorrelationID, &entry.CreatedAt); err != nil {
			return nil, fmt.Errorf("unable to scan audit entry: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating audit entries: %w", err)
	}
	return entries, nil
}

// ComputeEntryHash mirrors the trigger's hash: hex SHA-256 over the
// concatenated fields, NULLs as empty strings.
func ComputeEntryHash(id, sequenceNumber, action, requestUserID, resourceType, resourceID, beforeState, afterState, previousHash string) string {
	sum := sha256.Sum256([]byte(
		id + sequenceNumber + action + requestUserID +
			resourceType + resourceID + beforeState + afterState + previousHash))
	return hex.EncodeToString(sum[:])
}
