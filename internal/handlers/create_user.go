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

	"finance-atp/internal/aggregate"
	"finance-atp/internal/audit"
	"finance-atp/internal/domain"
	"finance-atp/internal/eventstore"
	"finance-atp/internal/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// CreateUser creates the user and its wallet account atomically: two
// aggregates, two events, the projection rows, and the audit entry in one
// transaction.
func (h *Handler) CreateUser(ctx context.Context, cmd CreateUserCommand, idempotencyKey uuid.UUID, opCtx domain.OperationContext) (*Result, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	outcome, err := h.claimKey(ctx, idempotencyKey, "create_user", cmd)
	if err != nil {
		return nil, err
	}
	if !outcome.Fresh {
		return replay(outcome), nil
	}

	accountID := uuid.New()
	user, userEvent := aggregate.CreateUser(cmd.UserID, cmd.Username, cmd.Email, cmd.DisplayName)
	account, accountEvent := aggregate.CreateAccount(accountID, cmd.UserID, aggregate.AccountTypeUserWallet)

	result, err := newResult(http.StatusCreated, models.CreateUserResponse{
		UserID:      cmd.UserID,
		Username:    cmd.Username,
		Email:       cmd.Email,
		DisplayName: cmd.DisplayName,
		Balance:     "0.00000000",
		CreatedAt:   userEvent.CreatedAt,
	})
	if err != nil {
		h.releaseKey(ctx, idempotencyKey)
		return nil, err
	}

	ops := []eventstore.AggregateOperation{
		{
			AggregateType:   domain.AggregateTypeUser,
			AggregateID:     cmd.UserID,
			ExpectedVersion: aggregate.NoVersion,
			Events:          []domain.Event{userEvent},
		},
		{
			AggregateType:   domain.AggregateTypeAccount,
			AggregateID:     accountID,
			ExpectedVersion: aggregate.NoVersion,
			Events:          []domain.Event{accountEvent},
		},
	}

	_, err = h.store.AppendAtomic(ctx, ops, &idempotencyKey, opCtx, func(tx *sql.Tx, eventIDs []uuid.UUID) error {
		if err := h.db.CreateUserProjectionTx(ctx, tx, cmd.UserID, cmd.Username, cmd.Email, cmd.DisplayName, userEvent.CreatedAt); err != nil {
			return err
		}
		if err := h.db.CreateAccountProjectionTx(ctx, tx, accountID, cmd.UserID, aggregate.AccountTypeUserWallet, accountEvent.CreatedAt); err != nil {
			return err
		}
		if err := h.projection.CreateAccountBalanceTx(ctx, tx, accountID, eventIDs[1]); err != nil {
			return err
		}
		if err := h.audit.RecordTx(ctx, tx, opCtx, audit.Entry{
			Action:       audit.ActionUserCreated,
			ResourceType: "user",
			ResourceID:   cmd.UserID.String(),
			AfterState:   user,
		}); err != nil {
			return err
		}
		return h.completeTx(ctx, tx, idempotencyKey, eventIDs[0], result)
	})
	if err != nil {
		h.releaseKey(ctx, idempotencyKey)
		return nil, err
	}

	h.saveSnapshots(ctx, user, account)

	zap.L().Info("User created",
		zap.String("user_id", cmd.UserID.String()),
		zap.String("username", cmd.Username),
		zap.String("account_id", accountID.String()))
	return result, nil
}
