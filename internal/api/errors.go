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

package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"finance-atp/internal/domain"
	"finance-atp/internal/eventstore"
	"finance-atp/internal/idempotency"
	"finance-atp/internal/models"

	"go.uber.org/zap"
)

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Warn("Failed to encode response", zap.Error(err))
	}
}

// writeRaw sends pre-serialized bytes untouched. Idempotent replays depend
// on the body being byte-identical to the first response.
func writeRaw(w http.ResponseWriter, status int, body json.RawMessage) {
	if len(body) == 0 {
		w.WriteHeader(status)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(body); err != nil {
		zap.L().Warn("Failed to write response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, err error) {
	status, code := classify(err)
	if status >= http.StatusInternalServerError {
		zap.L().Error("Request failed", zap.Error(err))
		// Internal details stay out of the response body.
		writeJSON(w, status, models.ErrorResponse{Error: code, Message: "internal error"})
		return
	}
	writeJSON(w, status, models.ErrorResponse{Error: code, Message: err.Error()})
}

func classify(err error) (int, string) {
	var conflict *eventstore.ConflictError
	switch {
	case errors.Is(err, domain.ErrInsufficientBalance):
		return http.StatusBadRequest, "insufficient_balance"
	case errors.Is(err, domain.ErrAccountFrozen):
		return http.StatusBadRequest, "account_frozen"
	case errors.Is(err, domain.ErrInvalidAmount),
		errors.Is(err, domain.ErrInvalidRequest),
		errors.Is(err, domain.ErrNoChanges),
		errors.Is(err, domain.ErrSameAccountTransfer),
		errors.Is(err, domain.ErrUserDeactivated):
		return http.StatusBadRequest, "invalid_request"
	case errors.Is(err, domain.ErrUserNotFound),
		errors.Is(err, domain.ErrAccountNotFound):
		return http.StatusNotFound, "user_not_found"
	case errors.Is(err, domain.ErrTransferNotFound):
		return http.StatusNotFound, "transfer_not_found"
	case errors.Is(err, domain.ErrUnauthorizedTransfer):
		return http.StatusForbidden, "unauthorized_transfer"
	case errors.Is(err, domain.ErrPermissionDenied),
		errors.Is(err, domain.ErrSystemUserProtected):
		return http.StatusForbidden, "permission_denied"
	case errors.Is(err, idempotency.ErrHashMismatch),
		errors.Is(err, idempotency.ErrInFlight),
		errors.Is(err, eventstore.ErrIdempotencyKeyConflict):
		return http.StatusConflict, "idempotency_conflict"
	case errors.As(err, &conflict):
		return http.StatusConflict, "version_conflict"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}
