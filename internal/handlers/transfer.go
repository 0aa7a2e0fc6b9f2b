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

package handlers

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"finance-atp/internal/aggregate"
	"finance-atp/internal/audit"
	"finance-atp/internal/domain"
	"finance-atp/internal/eventstore"
	"finance-atp/internal/models"
	"finance-atp/internal/projection"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Transfer moves ATP between two user wallets. The sender must be the
// acting user asserted by the upstream authenticator.
func (h *Handler) Transfer(ctx context.Context, cmd TransferCommand, idempotencyKey uuid.UUID, opCtx domain.OperationContext) (*Result, error) {
	if opCtx.RequestUserID == nil {
		return nil, domain.ErrUnauthorizedTransfer
	}
	if *opCtx.RequestUserID != cmd.FromUserID {
		zap.L().Info("Unauthorized transfer attempt",
			zap.String("request_user_id", opCtx.RequestUserID.String()),
			zap.String("from_user_id", cmd.FromUserID.String()))
		return nil, domain.ErrUnauthorizedTransfer
	}

	amount, err := cmd.Validate()
	if err != nil {
		return nil, err
	}

	outcome, err := h.claimKey(ctx, idempotencyKey, "transfer", cmd)
	if err != nil {
		return nil, err
	}
	if !outcome.Fresh {
		return replay(outcome), nil
	}

	fromAccountID, err := h.db.GetWalletAccountID(ctx, cmd.FromUserID)
	if err != nil {
		h.releaseKey(ctx, idempotencyKey)
		return nil, err
	}
	toAccountID, err := h.db.GetWalletAccountID(ctx, cmd.ToUserID)
	if err != nil {
		h.releaseKey(ctx, idempotencyKey)
		return nil, err
	}

	memo := cmd.Memo
	if memo == "" {
		memo = "Transfer"
	}

	transferID := uuid.New()
	result, err := h.moveFunds(ctx, movement{
		action:         audit.ActionTransferExecuted,
		transferID:     transferID,
		fromAccountID:  fromAccountID,
		toAccountID:    toAccountID,
		amount:         amount,
		description:    memo,
		apply:          h.projection.ApplyTransferTx,
		idempotencyKey: idempotencyKey,
		opCtx:          opCtx,
		response: func(createdAt time.Time) any {
			return models.TransferResponse{
				TransferID: transferID,
				Status:     "completed",
				FromUserID: cmd.FromUserID,
				ToUserID:   cmd.ToUserID,
				Amount:     amount.Value(),
				CreatedAt:  createdAt,
			}
		},
		responseStatus: http.StatusCreated,
	})
	if err != nil {
		return nil, err
	}

	zap.L().Info("Transfer completed",
		zap.String("transfer_id", transferID.String()),
		zap.String("from_user_id", cmd.FromUserID.String()),
		zap.String("to_user_id", cmd.ToUserID.String()),
		zap.String("amount", amount.String()))
	return result, nil
}

// movement is the shared shape of transfer, mint, and burn: debit one
// account, credit another, under one journal.
type movement struct {
	action         string
	transferID     uuid.UUID
	fromAccountID  uuid.UUID
	toAccountID    uuid.UUID
	amount         domain.Amount
	description    string
	apply          func(context.Context, *sql.Tx, projection.Movement) error
	idempotencyKey uuid.UUID
	opCtx          domain.OperationContext
	response       func(createdAt time.Time) any
	responseStatus int
}

// moveFunds runs the common tail of every balance-moving command: load both
// account aggregates, produce the debit/credit event pair, and commit the
// append together with projections, ledger rows, audit, and the idempotency
// completion. A version conflict with a concurrent command restarts the
// whole cycle against the fresh state.
func (h *Handler) moveFunds(ctx context.Context, m movement) (*Result, error) {
	var result *Result
	err := h.retryOnConflict(ctx, func() error {
		var err error
		result, err = h.tryMoveFunds(ctx, m)
		return err
	})
	if err != nil {
		h.releaseKey(ctx, m.idempotencyKey)
		return nil, err
	}
	return result, nil
}

func (h *Handler) tryMoveFunds(ctx context.Context, m movement) (*Result, error) {
	fromAccount := aggregate.NewAccount()
	toAccount := aggregate.NewAccount()
	if err := h.loadAccount(ctx, fromAccount, m.fromAccountID); err != nil {
		return nil, err
	}
	if err := h.loadAccount(ctx, toAccount, m.toAccountID); err != nil {
		return nil, err
	}

	debitEvent, err := fromAccount.Debit(m.amount, m.transferID, m.description)
	if err != nil {
		return nil, err
	}
	creditEvent, err := toAccount.Credit(m.amount, m.transferID, m.description)
	if err != nil {
		return nil, err
	}

	result, err := newResult(m.responseStatus, m.response(debitEvent.DebitedAt))
	if err != nil {
		return nil, err
	}

	ops := []eventstore.AggregateOperation{
		{
			AggregateType:   domain.AggregateTypeAccount,
			AggregateID:     m.fromAccountID,
			ExpectedVersion: fromAccount.Version(),
			Events:          []domain.Event{debitEvent},
		},
		{
			AggregateType:   domain.AggregateTypeAccount,
			AggregateID:     m.toAccountID,
			ExpectedVersion: toAccount.Version(),
			Events:          []domain.Event{creditEvent},
		},
	}

	_, err = h.store.AppendAtomic(ctx, ops, &m.idempotencyKey, m.opCtx, func(tx *sql.Tx, eventIDs []uuid.UUID) error {
		move := projection.Movement{
			JournalID:     m.transferID,
			FromAccountID: m.fromAccountID,
			ToAccountID:   m.toAccountID,
			Amount:        m.amount.Value(),
			Description:   m.description,
			FromEventID:   eventIDs[0],
			FromVersion:   fromAccount.Version() + 1,
			ToEventID:     eventIDs[1],
			ToVersion:     toAccount.Version() + 1,
		}
		if err := m.apply(ctx, tx, move); err != nil {
			return err
		}

		if err := h.audit.RecordTx(ctx, tx, m.opCtx, audit.Entry{
			Action:       m.action,
			ResourceType: "transfer",
			ResourceID:   m.transferID.String(),
			AfterState: map[string]string{
				"from_account_id": m.fromAccountID.String(),
				"to_account_id":   m.toAccountID.String(),
				"amount":          m.amount.String(),
			},
		}); err != nil {
			return err
		}
		return h.completeTx(ctx, tx, m.idempotencyKey, eventIDs[0], result)
	})
	if err != nil {
		return nil, err
	}

	fromAccount.Apply(debitEvent, fromAccount.Version()+1)
	toAccount.Apply(creditEvent, toAccount.Version()+1)
	h.saveSnapshots(ctx, fromAccount, toAccount)

	return result, nil
}

// loadAccount rehydrates one account aggregate; a missing stream is fine
// for seeded system accounts, which start their event history on first use.
func (h *Handler) loadAccount(ctx context.Context, account *aggregate.Account, accountID uuid.UUID) error {
	account.AccountID = accountID
	_, err := h.store.LoadAggregate(ctx, account)
	return err
}
