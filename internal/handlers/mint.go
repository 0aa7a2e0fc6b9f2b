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

// Mint issues new ATP to a recipient wallet. The issued supply is carried
// as a negative balance on SYSTEM_MINT's mint_source account, so the total
// across all accounts stays zero.
func (h *Handler) Mint(ctx context.Context, cmd MintCommand, apiKey *models.APIKey, idempotencyKey uuid.UUID, opCtx domain.OperationContext) (*Result, error) {
	// The middleware already gates on permissions; handlers re-check so the
	// rule holds even for callers that bypass the HTTP surface.
	if apiKey == nil || !apiKey.HasPermission("admin:mint") {
		return nil, domain.ErrPermissionDenied
	}

	amount, err := cmd.Validate()
	if err != nil {
		return nil, err
	}

	outcome, err := h.claimKey(ctx, idempotencyKey, "mint", cmd)
	if err != nil {
		return nil, err
	}
	if !outcome.Fresh {
		return replay(outcome), nil
	}

	recipientAccountID, err := h.db.GetWalletAccountID(ctx, cmd.RecipientUserID)
	if err != nil {
		h.releaseKey(ctx, idempotencyKey)
		return nil, err
	}
	mintAccountID, err := h.db.GetAccountIDByType(ctx, domain.SystemMintUserID, "mint_source")
	if err != nil {
		h.releaseKey(ctx, idempotencyKey)
		return nil, err
	}

	mintID := uuid.New()
	result, err := h.moveFunds(ctx, movement{
		action:         audit.ActionMintExecuted,
		transferID:     mintID,
		fromAccountID:  mintAccountID,
		toAccountID:    recipientAccountID,
		amount:         amount,
		description:    "Mint: " + cmd.Reason,
		apply:          h.projection.ApplyMintTx,
		idempotencyKey: idempotencyKey,
		opCtx:          opCtx,
		response: func(createdAt time.Time) any {
			return models.MintResponse{
				MintID:    mintID,
				Status:    "completed",
				ToUserID:  cmd.RecipientUserID,
				Amount:    amount.Value(),
				CreatedAt: createdAt,
			}
		},
		responseStatus: http.StatusCreated,
	})
	if err != nil {
		return nil, err
	}

	zap.L().Info("Mint completed",
		zap.String("mint_id", mintID.String()),
		zap.String("recipient_user_id", cmd.RecipientUserID.String()),
		zap.String("amount", amount.String()),
		zap.String("reason", cmd.Reason))
	return result, nil
}
