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

package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// StoredEvent is one immutable row of the event log.
type StoredEvent struct {
	ID             uuid.UUID       `db:"id"`
	AggregateType  string          `db:"aggregate_type"`
	AggregateID    uuid.UUID       `db:"aggregate_id"`
	Version        int64           `db:"version"`
	EventType      string          `db:"event_type"`
	EventData      json.RawMessage `db:"event_data"`
	Context        json.RawMessage `db:"context"`
	IdempotencyKey *uuid.UUID      `db:"idempotency_key"`
	CreatedAt      time.Time       `db:"created_at"`
}

// User is the users projection row (query model, not the aggregate).
type User struct {
	ID          uuid.UUID  `db:"id"`
	Username    string     `db:"username"`
	Email       string     `db:"email"`
	DisplayName string     `db:"display_name"`
	IsSystem    bool       `db:"is_system"`
	IsActive    bool       `db:"is_active"`
	CreatedAt   time.Time  `db:"created_at"`
	UpdatedAt   time.Time  `db:"updated_at"`
	DeletedAt   *time.Time `db:"deleted_at"`
}

// Account is the accounts projection row.
type Account struct {
	ID          uuid.UUID `db:"id"`
	UserID      uuid.UUID `db:"user_id"`
	AccountType string    `db:"account_type"`
	IsActive    bool      `db:"is_active"`
	CreatedAt   time.Time `db:"created_at"`
}

// AccountBalance is the current-balance cache row (hot data). Truth lives in
// the event log; this table must be byte-exactly reproducible from it.
type AccountBalance struct {
	AccountID        uuid.UUID       `db:"account_id"`
	Balance          decimal.Decimal `db:"balance"`
	LastEventID      uuid.UUID       `db:"last_event_id"`
	LastEventVersion int64           `db:"last_event_version"`
	UpdatedAt        time.Time       `db:"updated_at"`
}

// LedgerEntry is one side of a double-entry journal. For every journal_id
// the debits and credits sum to the same total, enforced at commit by a
// deferred constraint trigger.
type LedgerEntry struct {
	ID              uuid.UUID       `db:"id"`
	JournalID       uuid.UUID       `db:"journal_id"`
	TransferEventID uuid.UUID       `db:"transfer_event_id"`
	AccountID       uuid.UUID       `db:"account_id"`
	Amount          decimal.Decimal `db:"amount"`
	EntryType       string          `db:"entry_type"`
	CreatedAt       time.Time       `db:"created_at"`
}

// Ledger entry types. A debit increases an asset account, a credit decreases
// it; the mint_source liability account moves the opposite way.
const (
	EntryTypeDebit  = "debit"
	EntryTypeCredit = "credit"
)

// APIKey is an authenticated caller identity, loaded by hash of the
// presented key.
type APIKey struct {
	ID                 uuid.UUID  `db:"id"`
	Name               string     `db:"name"`
	Permissions        []string   `db:"permissions"`
	RateLimitPerMinute int        `db:"rate_limit_per_minute"`
	IsActive           bool       `db:"is_active"`
	CreatedAt          time.Time  `db:"created_at"`
	LastUsedAt         *time.Time `db:"last_used_at"`
}

// HasPermission reports whether the key grants permission; the "admin"
// permission implies everything.
func (k APIKey) HasPermission(permission string) bool {
	for _, p := range k.Permissions {
		if p == permission || p == "admin" {
			return true
		}
	}
	return false
}
