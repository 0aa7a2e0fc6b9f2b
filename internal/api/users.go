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
	"net/http"

	"finance-atp/internal/handlers"
	"finance-atp/internal/models"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

func (s *Server) createUser(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.requirePermission(w, r, "write:users"); !ok {
		return
	}
	idempotencyKey, ok := requireIdempotencyKey(w, r)
	if !ok {
		return
	}

	var req models.CreateUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{
			Error: "invalid_request", Message: "malformed JSON body"})
		return
	}

	result, err := s.commands.CreateUser(r.Context(), handlers.CreateUserCommand{
		UserID:      req.UserID,
		Username:    req.Username,
		Email:       req.Email,
		DisplayName: req.DisplayName,
	}, idempotencyKey, operationContext(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	writeRaw(w, result.Status, result.Body)
}

func (s *Server) getUser(w http.ResponseWriter, r *http.Request) {
	userID, ok := parseUUIDParam(w, r, "userID")
	if !ok {
		return
	}

	user, err := s.db.GetUserByID(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, models.UserResponse{
		ID:          user.ID,
		Username:    user.Username,
		Email:       user.Email,
		DisplayName: user.DisplayName,
		IsSystem:    user.IsSystem,
		IsActive:    user.IsActive,
		CreatedAt:   user.CreatedAt,
		UpdatedAt:   user.UpdatedAt,
	})
}

func (s *Server) updateUser(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.requirePermission(w, r, "write:users"); !ok {
		return
	}
	userID, ok := parseUUIDParam(w, r, "userID")
	if !ok {
		return
	}
	idempotencyKey, ok := requireIdempotencyKey(w, r)
	if !ok {
		return
	}

	var req models.UpdateUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{
			Error: "invalid_request", Message: "malformed JSON body"})
		return
	}

	result, err := s.commands.UpdateUser(r.Context(), handlers.UpdateUserCommand{
		UserID:      userID,
		DisplayName: req.DisplayName,
		Email:       req.Email,
	}, idempotencyKey, operationContext(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	writeRaw(w, result.Status, result.Body)
}

func (s *Server) deleteUser(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.requirePermission(w, r, "write:users"); !ok {
		return
	}
	userID, ok := parseUUIDParam(w, r, "userID")
	if !ok {
		return
	}
	idempotencyKey, ok := requireIdempotencyKey(w, r)
	if !ok {
		return
	}

	result, err := s.commands.DeactivateUser(r.Context(), handlers.DeactivateUserCommand{
		UserID: userID,
		Reason: r.URL.Query().Get("reason"),
	}, idempotencyKey, operationContext(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	writeRaw(w, result.Status, result.Body)
}

func (s *Server) getUserBalance(w http.ResponseWriter, r *http.Request) {
	userID, ok := parseUUIDParam(w, r, "userID")
	if !ok {
		return
	}

	balance, err := s.projection.GetUserBalance(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, models.BalanceResponse{UserID: userID, Balance: balance})
}

func (s *Server) getUserHistory(w http.ResponseWriter, r *http.Request) {
	userID, ok := parseUUIDParam(w, r, "userID")
	if !ok {
		return
	}

	accountID, err := s.db.GetWalletAccountID(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	entries, err := s.db.GetAccountHistory(r.Context(), accountID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, models.HistoryResponse{UserID: userID, Entries: entries})
}

func parseUUIDParam(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{
			Error: "invalid_request", Message: name + " must be a UUID"})
		return uuid.Nil, false
	}
	return id, true
}
