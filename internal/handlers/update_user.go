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

// UpdateUser changes profile fields through the event log. System users are
// protected from modification.
func (h *Handler) UpdateUser(ctx context.Context, cmd UpdateUserCommand, idempotencyKey uuid.UUID, opCtx domain.OperationContext) (*Result, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	isSystem, err := h.db.IsSystemUser(ctx, cmd.UserID)
	if err != nil {
		return nil, err
	}
	if isSystem {
		return nil, domain.ErrSystemUserProtected
	}

	outcome, err := h.claimKey(ctx, idempotencyKey, "update_user", cmd)
	if err != nil {
		return nil, err
	}
	if !outcome.Fresh {
		return replay(outcome), nil
	}

	changes := domain.UserChanges{DisplayName: cmd.DisplayName, Email: cmd.Email}

	var result *Result
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

		event, err := user.Update(changes)
		if err != nil {
			return err
		}

		user.Apply(event, user.Version()+1)
		result, err = newResult(http.StatusOK, user)
		if err != nil {
			return err
		}

		ops := []eventstore.AggregateOperation{{
			AggregateType:   domain.AggregateTypeUser,
			AggregateID:     cmd.UserID,
			ExpectedVersion: before.AggVersion,
			Events:          []domain.Event{event},
		}}

		_, err = h.store.AppendAtomic(ctx, ops, &idempotencyKey, opCtx, func(tx *sql.Tx, eventIDs []uuid.UUID) error {
			if err := h.db.UpdateUserProjectionTx(ctx, tx, cmd.UserID, cmd.DisplayName, cmd.Email, event.UpdatedAt); err != nil {
				return err
			}
			if err := h.audit.RecordTx(ctx, tx, opCtx, audit.Entry{
				Action:        audit.ActionUserUpdated,
				ResourceType:  "user",
				ResourceID:    cmd.UserID.String(),
				BeforeState:   before,
				AfterState:    user,
				ChangedFields: changes.Fields(),
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

	zap.L().Info("User updated",
		zap.String("user_id", cmd.UserID.String()),
		zap.Strings("changed_fields", changes.Fields()))
	return result, nil
}
