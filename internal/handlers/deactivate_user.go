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

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DeactivateUser soft-deletes a user. The wallet and its balance survive;
// only mutating commands against the user are blocked afterwards.
func (h *Handler) DeactivateUser(ctx context.Context, cmd DeactivateUserCommand, idempotencyKey uuid.UUID, opCtx domain.OperationContext) (*Result, error) {
	isSystem, err := h.db.IsSystemUser(ctx, cmd.UserID)
	if err != nil {
		return nil, err
	}
	if isSystem {
		return nil, domain.ErrSystemUserProtected
	}

	outcome, err := h.claimKey(ctx, idempotencyKey, "deactivate_user", cmd)
	if err != nil {
		return nil, err
	}
	if !outcome.Fresh {
		return replay(outcome), nil
	}

	reason := cmd.Reason
	if reason == "" {
		reason = "Deactivated via API"
	}
	result := &Result{Status: http.StatusNoContent, Body: nil}

	err = h.retryOnConflict(ctx, func() error {
		user := aggregate.NewUser()
		user.UserID = cmd.UserID
		found, err := h.store.LoadAggregate(ctx, user)
		if err != nil {
			return err
		}
		if !found {
			return domain.ErrUserNotFound
		}
		before := *user

		event, err := user.Deactivate(reason)
		if err != nil {
			return err
		}
		user.Apply(event, user.Version()+1)

		ops := []eventstore.AggregateOperation{{
			AggregateType:   domain.AggregateTypeUser,
			AggregateID:     cmd.UserID,
			ExpectedVersion: before.AggVersion,
			Events:          []domain.Event{event},
		}}

		_, err = h.store.AppendAtomic(ctx, ops, &idempotencyKey, opCtx, func(tx *sql.Tx, eventIDs []uuid.UUID) error {
			if err := h.db.DeactivateUserProjectionTx(ctx, tx, cmd.UserID, event.DeactivatedAt); err != nil {
				return err
			}
			if err := h.audit.RecordTx(ctx, tx, opCtx, audit.Entry{
				Action:       audit.ActionUserDeactivated,
				ResourceType: "user",
				ResourceID:   cmd.UserID.String(),
				BeforeState:  before,
				AfterState:   user,
			}); err != nil {
				return err
			}
			return h.completeTx(ctx, tx, idempotencyKey, eventIDs[0], result)
		})
		if err != nil {
			return err
		}

		h.saveSnapshots(ctx, user)
		return nil
	})
	if err != nil {
		h.releaseKey(ctx, idempotencyKey)
		return nil, err
	}

	zap.L().Info("User deactivated", zap.String("user_id", cmd.UserID.String()))
	return result, nil
}
