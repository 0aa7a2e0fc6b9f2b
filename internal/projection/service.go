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

// Package projection maintains the derived tables: account_balances (the
// current-balance cache) and ledger_entries (the double-entry journal). All
// write methods run on the transaction of the event append that produced
// them, so any reader that sees an event also sees its balance effects.
package projection

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"finance-atp/internal/domain"
	"finance-atp/internal/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	queryLockBalance = `
		SELECT ab.balance, a.account_type
		FROM account_balances ab
		JOIN accounts a ON a.id = ab.account_id
		WHERE ab.account_id = $1
		FOR UPDATE OF ab`

	queryAdjustBalance = `
		UPDATE account_balances
		SET balance = balance + $2,
		    last_event_id = $3,
		    last_event_version = $4,
		    updated_at = now()
		WHERE account_id = $1`

	queryInsertLedgerEntry = `
		INSERT INTO ledger_entries (id, journal_id, transfer_event_id, account_id, amount, entry_type, description)
		VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''))`

	queryInsertBalance = `
		INSERT INTO account_balances (account_id, balance, last_event_id, last_event_version)
		VALUES ($1, 0, $2, 0)`

	queryGetUserBalance = `
		SELECT ab.balance
		FROM account_balances ab
		JOIN accounts a ON a.id = ab.account_id
		WHERE a.user_id = $1 AND a.account_type = 'user_wallet'`

	queryGetBalance = `
		SELECT balance FROM account_balances WHERE account_id = $1`

	queryRebuildFromEvents = `
		SELECT e.aggregate_id,
		       COALESCE(SUM(CASE
		           WHEN e.event_type = 'MoneyCredited' THEN (e.event_data->>'amount')::numeric
		           WHEN e.event_type = 'MoneyDebited' THEN -(e.event_data->>'amount')::numeric
		           ELSE 0
		       END), 0)
		FROM events e
		WHERE e.aggregate_type = 'Account'
		GROUP BY e.aggregate_id`
)

type Service struct {
	db *sql.DB
}

func NewService(db *sql.DB) *Service {
	return &Service{db: db}
}

// Movement is one balance move between two accounts, with the event IDs and
// post-append versions that produced each side.
type Movement struct {
	JournalID     uuid.UUID
	FromAccountID uuid.UUID
	ToAccountID   uuid.UUID
	Amount        decimal.Decimal
	Description   string

	// Event ID and resulting aggregate version of the from side (the
	// MoneyDebited event) and the to side (the MoneyCredited event).
	FromEventID   uuid.UUID
	FromVersion   int64
	ToEventID     uuid.UUID
	ToVersion     int64

	// EnforceFunds aborts with ErrInsufficientBalance when the paying
	// account is a user wallet whose locked balance cannot cover Amount.
	// System accounts move without the check and may go negative.
	EnforceFunds bool
}

// ApplyTransferTx applies a user-to-user transfer to the projections.
func (s *Service) ApplyTransferTx(ctx context.Context, tx *sql.Tx, m Movement) error {
	m.EnforceFunds = true
	return s.applyMovement(ctx, tx, m)
}

// ApplyMintTx moves newly issued value from the mint source to a recipient
// wallet. The mint source balance goes negative by the issued amount.
func (s *Service) ApplyMintTx(ctx context.Context, tx *sql.Tx, m Movement) error {
	m.EnforceFunds = false
	return s.applyMovement(ctx, tx, m)
}

// ApplyBurnTx removes value from circulation: wallet back to the mint
// source. The wallet must cover the burned amount.
func (s *Service) ApplyBurnTx(ctx context.Context, tx *sql.Tx, m Movement) error {
	m.EnforceFunds = true
	return s.applyMovement(ctx, tx, m)
}

func (s *Service) applyMovement(ctx context.Context, tx *sql.Tx, m Movement) error {
	// Lock the paying side first, then the receiving side. The lock on the
	// paying balance makes the funds check race-free.
	var (
		fromBalance decimal.Decimal
		accountType string
	)
	err := tx.QueryRowContext(ctx, queryLockBalance, m.FromAccountID).Scan(&fromBalance, &accountType)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ErrAccountNotFound
	}
	if err != nil {
		return fmt.Errorf("unable to lock balance of %s: %w", m.FromAccountID, err)
	}

	if m.EnforceFunds && accountType == "user_wallet" && fromBalance.LessThan(m.Amount) {
		zap.L().Info("Insufficient balance",
			zap.String("account_id", m.FromAccountID.String()),
			zap.String("balance", fromBalance.StringFixed(8)),
			zap.String("amount", m.Amount.StringFixed(8)))
		return domain.ErrInsufficientBalance
	}

	var toBalance decimal.Decimal
	var toType string
	err = tx.QueryRowContext(ctx, queryLockBalance, m.ToAccountID).Scan(&toBalance, &toType)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ErrAccountNotFound
	}
	if err != nil {
		return fmt.Errorf("unable to lock balance of %s: %w", m.ToAccountID, err)
	}

	if _, err := tx.ExecContext(ctx, queryAdjustBalance,
		m.FromAccountID, m.Amount.Neg(), m.FromEventID, m.FromVersion); err != nil {
		return fmt.Errorf("unable to debit balance of %s: %w", m.FromAccountID, err)
	}
	if _, err := tx.ExecContext(ctx, queryAdjustBalance,
		m.ToAccountID, m.Amount, m.ToEventID, m.ToVersion); err != nil {
		return fmt.Errorf("unable to credit balance of %s: %w", m.ToAccountID, err)
	}

	// Double-entry rows: the paying side is the credit entry, the receiving
	// side the debit entry. The deferred trigger re-checks the journal sums
	// at commit.
	if _, err := tx.ExecContext(ctx, queryInsertLedgerEntry,
		uuid.New(), m.JournalID, m.FromEventID, m.FromAccountID,
		m.Amount, models.EntryTypeCredit, m.Description); err != nil {
		return fmt.Errorf("unable to insert credit ledger entry: %w", err)
	}
	if _, err := tx.ExecContext(ctx, queryInsertLedgerEntry,
		uuid.New(), m.JournalID, m.ToEventID, m.ToAccountID,
		m.Amount, models.EntryTypeDebit, m.Description); err != nil {
		return fmt.Errorf("unable to insert debit ledger entry: %w", err)
	}

	return nil
}

// CreateAccountBalanceTx initializes a fresh account's balance row at zero.
// lastEventID is the AccountCreated event.
func (s *Service) CreateAccountBalanceTx(ctx context.Context, tx *sql.Tx, accountID, lastEventID uuid.UUID) error {
	if _, err := tx.ExecContext(ctx, queryInsertBalance, accountID, lastEventID); err != nil {
		return fmt.Errorf("unable to create balance row for %s: %w", accountID, err)
	}
	return nil
}

// GetUserBalance returns the wallet balance of a user, or ErrUserNotFound
// when the user has no wallet.
func (s *Service) GetUserBalance(ctx context.Context, userID uuid.UUID) (decimal.Decimal, error) {
	var balance decimal.Decimal
	err := s.db.QueryRowContext(ctx, queryGetUserBalance, userID).Scan(&balance)
	if errors.Is(err, sql.ErrNoRows) {
		return decimal.Decimal{}, domain.ErrUserNotFound
	}
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("unable to query balance for user %s: %w", userID, err)
	}
	return balance, nil
}

// GetBalance returns one account's cached balance.
func (s *Service) GetBalance(ctx context.Context, accountID uuid.UUID) (decimal.Decimal, error) {
	var balance decimal.Decimal
	err := s.db.QueryRowContext(ctx, queryGetBalance, accountID).Scan(&balance)
	if errors.Is(err, sql.ErrNoRows) {
		return decimal.Decimal{}, domain.ErrAccountNotFound
	}
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("unable to query balance for account %s: %w", accountID, err)
	}
	return balance, nil
}

// BalanceMismatch is one account whose cached balance disagrees with the
// balance recomputed from the event log.
type BalanceMismatch struct {
	AccountID uuid.UUID
	Cached    decimal.Decimal
	Computed  decimal.Decimal
}

// VerifyBalances recomputes every account balance from the event log alone
// and compares it against account_balances. The projection is a cache;
// truth is the log, and the two must agree exactly.
func (s *Service) VerifyBalances(ctx context.Context) ([]BalanceMismatch, error) {
	rows, err := s.db.QueryContext(ctx, queryRebuildFromEvents)
	if err != nil {
		return nil, fmt.Errorf("unable to rebuild balances from events: %w", err)
	}
	defer func(rows *sql.Rows) {
		if err := rows.Close(); err != nil {
			zap.L().Warn("Failed to close rows", zap.Error(err))
		}
	}(rows)

	computed := map[uuid.UUID]decimal.Decimal{}
	for rows.Next() {
		var (
			accountID uuid.UUID
			balance   decimal.Decimal
		)
		if err := rows.Scan(&accountID, &balance); err != nil {
			return nil, fmt.Errorf("unable to scan rebuilt balance: %w", err)
		}
		computed[accountID] = balance
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rebuilt balances: %w", err)
	}

	var mismatches []BalanceMismatch
	for accountID, want := range computed {
		cached, err := s.GetBalance(ctx, accountID)
		if err != nil {
			return nil, err
		}
		if !cached.Equal(want) {
			mismatches = append(mismatches, BalanceMismatch{
				AccountID: accountID,
				Cached:    cached,
				Computed:  want,
			})
		}
	}
	return mismatches, nil
}
