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

package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Aggregate type names as stored in the events table.
const (
	AggregateTypeAccount = "Account"
	AggregateTypeUser    = "User"
)

// Event is a domain event payload. The concrete type determines the
// event_type column; the payload itself is the JSON-marshaled struct.
type Event interface {
	EventType() string
}

// Account events.

type AccountCreated struct {
	AccountID   uuid.UUID `json:"account_id"`
	UserID      uuid.UUID `json:"user_id"`
	AccountType string    `json:"account_type"`
	CreatedAt   time.Time `json:"created_at"`
}

func (AccountCreated) EventType() string { return "AccountCreated" }

type MoneyCredited struct {
	AccountID   uuid.UUID       `json:"account_id"`
	Amount      decimal.Decimal `json:"amount"`
	TransferID  uuid.UUID       `json:"transfer_id"`
	Description string          `json:"description"`
	CreditedAt  time.Time       `json:"credited_at"`
}

func (MoneyCredited) EventType() string { return "MoneyCredited" }

type MoneyDebited struct {
	AccountID   uuid.UUID       `json:"account_id"`
	Amount      decimal.Decimal `json:"amount"`
	TransferID  uuid.UUID       `json:"transfer_id"`
	Description string          `json:"description"`
	DebitedAt   time.Time       `json:"debited_at"`
}

func (MoneyDebited) EventType() string { return "MoneyDebited" }

type AccountFrozen struct {
	AccountID uuid.UUID `json:"account_id"`
	Reason    string    `json:"reason"`
	FrozenAt  time.Time `json:"frozen_at"`
}

func (AccountFrozen) EventType() string { return "AccountFrozen" }

type AccountUnfrozen struct {
	AccountID  uuid.UUID `json:"account_id"`
	UnfrozenAt time.Time `json:"unfrozen_at"`
}

func (AccountUnfrozen) EventType() string { return "AccountUnfrozen" }

// User events.

type UserCreated struct {
	UserID      uuid.UUID `json:"user_id"`
	Username    string    `json:"username"`
	Email       string    `json:"email"`
	DisplayName string    `json:"display_name,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

func (UserCreated) EventType() string { return "UserCreated" }

// UserChanges lists the mutable profile fields of a user. Nil means "leave
// unchanged".
type UserChanges struct {
	DisplayName *string `json:"display_name,omitempty"`
	Email       *string `json:"email,omitempty"`
}

// IsEmpty reports whether no field would change.
func (c UserChanges) IsEmpty() bool {
	return c.DisplayName == nil && c.Email == nil
}

// Fields returns the names of the fields being changed, for audit rows.
func (c UserChanges) Fields() []string {
	var fields []string
	if c.DisplayName != nil {
		fields = append(fields, "display_name")
	}
	if c.Email != nil {
		fields = append(fields, "email")
	}
	return fields
}

type UserUpdated struct {
	UserID    uuid.UUID   `json:"user_id"`
	Changes   UserChanges `json:"changes"`
	UpdatedAt time.Time   `json:"updated_at"`
}

func (UserUpdated) EventType() string { return "UserUpdated" }

type UserDeactivated struct {
	UserID        uuid.UUID `json:"user_id"`
	Reason        string    `json:"reason,omitempty"`
	DeactivatedAt time.Time `json:"deactivated_at"`
}

func (UserDeactivated) EventType() string { return "UserDeactivated" }
