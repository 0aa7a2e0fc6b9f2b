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
	"encoding/json"
	"fmt"
	"time"

	"finance-atp/internal/domain"
	"finance-atp/internal/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ListEvents returns a page of the event log for the admin endpoint, newest
// first, optionally filtered by aggregate type and ID.
func (s *Service) ListEvents(ctx context.Context, aggregateType *string, aggregateID *uuid.UUID, limit, offset int64) (*models.EventsListResponse, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 1000 {
		limit = 1000
	}

	rows, err := s.db.QueryContext(ctx, queryListEvents, aggregateType, aggregateID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("unable to query events: %w", err)
	}
	defer func(rows *sql.Rows) {
		if err := rows.Close(); err != nil {
			zap.L().Warn("Failed to close rows", zap.Error(err))
		}
	}(rows)

	events := []models.EventResponse{}
	for rows.Next() {
		var event models.EventResponse
		if err := rows.Scan(&event.ID, &event.AggregateType, &event.AggregateID,
			&event.EventType, &event.Version, &event.CreatedAt); err != nil {
			return nil, fmt.Errorf("unable to scan event row: %w", err)
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating event rows: %w", err)
	}

	var total int64
	if err := s.db.QueryRowContext(ctx, queryCountEvents).Scan(&total); err != nil {
		return nil, fmt.Errorf("unable to count events: %w", err)
	}

	return &models.EventsListResponse{Events: events, Total: total}, nil
}

// GetAccountHistory returns the most recent 100 events of one account,
// newest first, with amount and description lifted out of the payload when
// present.
func (s *Service) GetAccountHistory(ctx context.Context, accountID uuid.UUID) ([]models.HistoryEntry, error) {
	rows, err := s.db.QueryContext(ctx, queryAccountHistory, accountID)
	if err != nil {
		return nil, fmt.Errorf("unable to query account history: %w", err)
	}
	defer func(rows *sql.Rows) {
		if err := rows.Close(); err != nil {
			zap.L().Warn("Failed to close rows", zap.Error(err))
		}
	}(rows)

	entries := []models.HistoryEntry{}
	for rows.Next() {
		var (
			entry   models.HistoryEntry
			payload []byte
		)
		if err := rows.Scan(&entry.EventID, &entry.EventType, &payload, &entry.CreatedAt); err != nil {
			return nil, fmt.Errorf("unable to scan history row: %w", err)
		}

		var fields struct {
			Amount      *decimal.Decimal `json:"amount"`
			Description string           `json:"description"`
		}
		if err := json.Unmarshal(payload, &fields); err == nil {
			entry.Amount = fields.Amount
			entry.Description = fields.Description
		}

		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating history rows: %w", err)
	}
	return entries, nil
}

// GetTransferDetail reconstructs one transfer from its journal. The credit
// entry is the paying account, the debit entry the receiving account.
func (s *Service) GetTransferDetail(ctx context.Context, transferID uuid.UUID) (*models.TransferDetailResponse, error) {
	rows, err := s.db.QueryContext(ctx, queryGetTransferEntries, transferID)
	if err != nil {
		return nil, fmt.Errorf("unable to query transfer %s: %w", transferID, err)
	}
	defer func(rows *sql.Rows) {
		if err := rows.Close(); err != nil {
			zap.L().Warn("Failed to close rows", zap.Error(err))
		}
	}(rows)

	var (
		detail models.TransferDetailResponse
		found  bool
	)
	detail.ID = transferID
	for rows.Next() {
		var (
			accountID   uuid.UUID
			amount      decimal.Decimal
			entryType   string
			description string
			createdAt   time.Time
		)
		if err := rows.Scan(&accountID, &amount, &entryType, &description, &createdAt); err != nil {
			return nil, fmt.Errorf("unable to scan ledger row: %w", err)
		}
		found = true
		detail.Amount = amount
		detail.Description = description
		detail.CreatedAt = createdAt
		switch entryType {
		case models.EntryTypeCredit:
			detail.FromAccountID = accountID
		case models.EntryTypeDebit:
			detail.ToAccountID = accountID
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating ledger rows: %w", err)
	}
	if !found {
		return nil, domain.ErrTransferNotFound
	}
	return &detail, nil
}
