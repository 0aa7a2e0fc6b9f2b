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

package aggregate

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"finance-atp/internal/domain"
)

// Account account types.
const (
	AccountTypeUserWallet    = "user_wallet"
	AccountTypeMintSource    = "mint_source"
	AccountTypeFeeIncome     = "fee_income"
	AccountTypeSystemReserve = "system_reserve"
)

// Account is the consistency boundary for one ATP account. Balance is
// deliberately not part of the state: balance invariants are enforced by the
// projection inside the append transaction, where the authoritative value
// can be locked.
type Account struct {
	AccountID   uuid.UUID  `json:"account_id"`
	UserID      uuid.UUID  `json:"user_id"`
	AccountType string     `json:"account_type"`
	Frozen      bool       `json:"frozen"`
	CreatedAt   *time.Time `json:"created_at,omitempty"`
	AggVersion  int64      `json:"version"`
}

// NewAccount returns a fresh, unloaded account for rehydration.
func NewAccount() *Account {
	return &Account{AggVersion: NoVersion}
}

// CreateAccount validates account creation and returns the applied aggregate
// together with the event to persist (at version 0, expected version -1).
func CreateAccount(accountID, userID uuid.UUID, accountType string) (*Account, domain.AccountCreated) {
	now := time.Now().UTC()
	event := domain.AccountCreated{
		AccountID:   accountID,
		UserID:      userID,
		AccountType: accountType,
		CreatedAt:   now,
	}
	account := &Account{
		AccountID:   accountID,
		UserID:      userID,
		AccountType: accountType,
		CreatedAt:   &now,
		AggVersion:  0,
	}
	return account, event
}

func (a *Account) AggregateType() string { return domain.AggregateTypeAccount }
func (a *Account) ID() uuid.UUID         { return a.AccountID }
func (a *Account) Version() int64        { return a.AggVersion }

func (a *Account) IsUserWallet() bool {
	return a.AccountType == AccountTypeUserWallet
}

// Debit validates a withdrawal command and produces the event. Funds
// coverage is checked by the projection; here only the frozen state gates.
func (a *Account) Debit(amount domain.Amount, transferID uuid.UUID, description string) (domain.MoneyDebited, error) {
	if a.Frozen {
		return domain.MoneyDebited{}, domain.ErrAccountFrozen
	}
	return domain.MoneyDebited{
		AccountID:   a.AccountID,
		Amount:      amount.Value(),
		TransferID:  transferID,
		Description: description,
		DebitedAt:   time.Now().UTC(),
	}, nil
}

// Credit validates a deposit command and produces the event.
func (a *Account) Credit(amount domain.Amount, transferID uuid.UUID, description string) (domain.MoneyCredited, error) {
	if a.Frozen {
		return domain.MoneyCredited{}, domain.ErrAccountFrozen
	}
	return domain.MoneyCredited{
		AccountID:   a.AccountID,
		Amount:      amount.Value(),
		TransferID:  transferID,
		Description: description,
		CreditedAt:  time.Now().UTC(),
	}, nil
}

func (a *Account) Freeze(reason string) (domain.AccountFrozen, error) {
	if a.Frozen {
		return domain.AccountFrozen{}, fmt.Errorf("%w: account is already frozen", domain.ErrInvalidRequest)
	}
	return domain.AccountFrozen{
		AccountID: a.AccountID,
		Reason:    reason,
		FrozenAt:  time.Now().UTC(),
	}, nil
}

func (a *Account) Unfreeze() (domain.AccountUnfrozen, error) {
	if !a.Frozen {
		return domain.AccountUnfrozen{}, fmt.Errorf("%w: account is not frozen", domain.ErrInvalidRequest)
	}
	return domain.AccountUnfrozen{
		AccountID:  a.AccountID,
		UnfrozenAt: time.Now().UTC(),
	}, nil
}

// Apply folds one event into the state and advances the version.
func (a *Account) Apply(event domain.Event, version int64) {
	switch e := event.(type) {
	case domain.AccountCreated:
		a.AccountID = e.AccountID
		a.UserID = e.UserID
		a.AccountType = e.AccountType
		created := e.CreatedAt
		a.CreatedAt = &created
	case domain.MoneyCredited, domain.MoneyDebited:
		// Balance lives in the projection, not here.
	case domain.AccountFrozen:
		a.Frozen = true
	case domain.AccountUnfrozen:
		a.Frozen = false
	}
	a.AggVersion = version
}

func (a *Account) ApplyRaw(eventType string, version int64, payload []byte) error {
	event, err := unmarshalAccountEvent(eventType, payload)
	if err != nil {
		return err
	}
	a.Apply(event, version)
	return nil
}

func unmarshalAccountEvent(eventType string, payload []byte) (domain.Event, error) {
	switch eventType {
	case "AccountCreated":
		var e domain.AccountCreated
		err := json.Unmarshal(payload, &e)
		return e, err
	case "MoneyCredited":
		var e domain.MoneyCredited
		err := json.Unmarshal(payload, &e)
		return e, err
	case "MoneyDebited":
		var e domain.MoneyDebited
		err := json.Unmarshal(payload, &e)
		return e, err
	case "AccountFrozen":
		var e domain.AccountFrozen
		err := json.Unmarshal(payload, &e)
		return e, err
	case "AccountUnfrozen":
		var e domain.AccountUnfrozen
		err := json.Unmarshal(payload, &e)
		return e, err
	default:
		return nil, fmt.Errorf("unknown account event type %q", eventType)
	}
}

func (a *Account) SnapshotState() ([]byte, error) {
	return json.Marshal(a)
}

func (a *Account) RestoreSnapshot(version int64, state []byte) error {
	if err := json.Unmarshal(state, a); err != nil {
		return fmt.Errorf("failed to restore account snapshot: %w", err)
	}
	a.AggVersion = version
	return nil
}
