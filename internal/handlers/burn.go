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
	"net/http"
	"time"

	"finance-atp/internal/audit"
	"finance-atp/internal/domain"
	"finance-atp/internal/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Burn removes ATP from circulation: the wallet pays the amount back to the
// mint source, shrinking its liability. The wallet must cover the amount.
func (h *Handler) Burn(ctx context.Context, cmd BurnCommand, apiKey *models.APIKey, idempotencyKey uuid.UUID, opCtx domain.OperationContext) (*Result, error) {
	if apiKey == nil || !apiKey.HasPermission("admin:burn") {
		return nil, domain.ErrPermissionDenied
	}

	amount, err := cmd.Validate()
	if err != nil {
		return nil, err
	}

	outcome, err := h.claimKey(ctx, idempotencyKey, "burn", cmd)
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
	mintAccountID, err := h.db.GetAccountIDByType(ctx, domain.SystemMintUserID, "mint_source")
	if err != nil {
		h.releaseKey(ctx, idempotencyKey)
		return nil, err
	}

	burnID := uuid.New()
	result, err := h.moveFunds(ctx, movement{
		action:         audit.ActionBurnExecuted,
		transferID:     burnID,
		fromAccountID:  fromAccountID,
		toAccountID:    mintAccountID,
		amount:         amount,
		description:    "Burn: " + cmd.Reason,
		apply:          h.projection.ApplyBurnTx,
		idempotencyKey: idempotencyKey,
		opCtx:          opCtx,
		response: func(createdAt time.Time) any {
			return models.BurnResponse{
				BurnID:     burnID,
				Status:     "completed",
				FromUserID: cmd.FromUserID,
				Amount:     amount.Value(),
				CreatedAt:  createdAt,
			}
		},
		responseStatus: http.StatusCreated,
	})
	if err != nil {
		return nil, err
	}

	zap.L().Info("Burn completed",
		zap.String("burn_id", burnID.String()),
		zap.String("from_user_id", cmd.FromUserID.String()),
		zap.String("amount", amount.String()),
		zap.String("reason", cmd.Reason))
	return result, nil
}
