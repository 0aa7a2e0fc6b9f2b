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
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"finance-atp/internal/audit"
	"finance-atp/internal/database"
	"finance-atp/internal/handlers"
	"finance-atp/internal/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

func (s *Server) mint(w http.ResponseWriter, r *http.Request) {
	apiKey, ok := s.requirePermission(w, r, "admin:mint")
	if !ok {
		return
	}
	idempotencyKey, ok := requireIdempotencyKey(w, r)
	if !ok {
		return
	}

	var req models.MintRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{
			Error: "invalid_request", Message: "malformed JSON body"})
		return
	}

	result, err := s.commands.Mint(r.Context(), handlers.MintCommand{
		RecipientUserID: req.RecipientUserID,
		Amount:          req.Amount,
		Reason:          req.Reason,
	}, apiKey, idempotencyKey, operationContext(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	writeRaw(w, result.Status, result.Body)
}

func (s *Server) burn(w http.ResponseWriter, r *http.Request) {
	apiKey, ok := s.requirePermission(w, r, "admin:burn")
	if !ok {
		return
	}
	idempotencyKey, ok := requireIdempotencyKey(w, r)
	if !ok {
		return
	}

	var req models.BurnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{
			Error: "invalid_request", Message: "malformed JSON body"})
		return
	}

	result, err := s.commands.Burn(r.Context(), handlers.BurnCommand{
		FromUserID: req.FromUserID,
		Amount:     req.Amount,
		Reason:     req.Reason,
	}, apiKey, idempotencyKey, operationContext(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	writeRaw(w, result.Status, result.Body)
}

func (s *Server) listEvents(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.requirePermission(w, r, "admin:events"); !ok {
		return
	}

	query := r.URL.Query()
	var aggregateType *string
	if raw := query.Get("aggregate_type"); raw != "" {
		aggregateType = &raw
	}
	var aggregateID *uuid.UUID
	if raw := query.Get("aggregate_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, models.ErrorResponse{
				Error: "invalid_request", Message: "aggregate_id must be a UUID"})
			return
		}
		aggregateID = &id
	}
	limit := parseInt64Param(query.Get("limit"), 50)
	offset := parseInt64Param(query.Get("offset"), 0)

	events, err := s.db.ListEvents(r.Context(), aggregateType, aggregateID, limit, offset)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, events)
}

func (s *Server) listAuditLog(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.requirePermission(w, r, "admin:events"); !ok {
		return
	}

	query := r.URL.Query()
	limit := parseInt64Param(query.Get("limit"), 50)
	if limit > 1000 {
		limit = 1000
	}

	var (
		entries []audit.LogEntry
		err     error
	)
	if raw := query.Get("user_id"); raw != "" {
		userID, parseErr := uuid.Parse(raw)
		if parseErr != nil {
			writeJSON(w, http.StatusBadRequest, models.ErrorResponse{
				Error: "invalid_request", Message: "user_id must be a UUID"})
			return
		}
		entries, err = s.audit.GetByUser(r.Context(), userID, limit)
	} else {
		entries, err = s.audit.GetRecent(r.Context(), limit)
	}
	if err != nil {
		writeError(w, err)
		return
	}
	if entries == nil {
		entries = []audit.LogEntry{}
	}
	writeJSON(w, http.StatusOK, auditLogResponse{Entries: entries})
}

type auditLogResponse struct {
	Entries []audit.LogEntry `json:"entries"`
}

func parseInt64Param(raw string, defaultValue int64) int64 {
	if raw == "" {
		return defaultValue
	}
	value, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || value < 0 {
		return defaultValue
	}
	return value
}

// generateAPIKey returns a fresh raw key. Only the hash and the prefix are
// ever persisted.
func generateAPIKey() (string, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return "sk_live_" + hex.EncodeToString(buf), nil
}

func (s *Server) createAPIKey(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.requirePermission(w, r, "admin:api-keys"); !ok {
		return
	}

	var req models.CreateAPIKeyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{
			Error: "invalid_request", Message: "malformed JSON body"})
		return
	}
	if req.Name == "" || len(req.Permissions) == 0 {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{
			Error: "invalid_request", Message: "name and permissions are required"})
		return
	}
	if req.RateLimitPerMinute <= 0 {
		req.RateLimitPerMinute = s.cfg.RateLimitPerMinute
	}

	rawKey, err := generateAPIKey()
	if err != nil {
		writeError(w, err)
		return
	}

	keyID := uuid.New()
	createdAt := time.Now().UTC()
	keyPrefix := rawKey[:8]
	if err := s.db.CreateAPIKey(r.Context(), keyID, req.Name, keyPrefix,
		database.HashAPIKey(rawKey), req.Permissions, req.RateLimitPerMinute, createdAt); err != nil {
		writeError(w, err)
		return
	}

	s.recordAudit(r.Context(), audit.Entry{
		Action:       audit.ActionAPIKeyCreated,
		ResourceType: "api_key",
		ResourceID:   keyID.String(),
		AfterState: map[string]any{
			"name":        req.Name,
			"key_prefix":  keyPrefix,
			"permissions": req.Permissions,
		},
	})

	writeJSON(w, http.StatusCreated, models.CreateAPIKeyResponse{
		ID:                 keyID,
		Name:               req.Name,
		APIKey:             rawKey,
		KeyPrefix:          keyPrefix,
		Permissions:        req.Permissions,
		RateLimitPerMinute: req.RateLimitPerMinute,
		CreatedAt:          createdAt,
	})
}

func (s *Server) listAPIKeys(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.requirePermission(w, r, "admin:api-keys"); !ok {
		return
	}

	keys, err := s.db.ListAPIKeys(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, keys)
}

func (s *Server) updateAPIKey(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.requirePermission(w, r, "admin:api-keys"); !ok {
		return
	}
	keyID, ok := parseUUIDParam(w, r, "keyID")
	if !ok {
		return
	}

	var req models.UpdateAPIKeyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{
			Error: "invalid_request", Message: "malformed JSON body"})
		return
	}

	updated, err := s.db.UpdateAPIKey(r.Context(), keyID, req)
	if err != nil {
		writeError(w, err)
		return
	}
	if updated == nil {
		writeJSON(w, http.StatusNotFound, models.ErrorResponse{
			Error: "not_found", Message: "api key not found"})
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) deleteAPIKey(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.requirePermission(w, r, "admin:api-keys"); !ok {
		return
	}
	keyID, ok := parseUUIDParam(w, r, "keyID")
	if !ok {
		return
	}

	deactivated, err := s.db.DeactivateAPIKey(r.Context(), keyID)
	if err != nil {
		writeError(w, err)
		return
	}
	if !deactivated {
		writeJSON(w, http.StatusNotFound, models.ErrorResponse{
			Error: "not_found", Message: "api key not found"})
		return
	}

	s.recordAudit(r.Context(), audit.Entry{
		Action:       audit.ActionAPIKeyRevoked,
		ResourceType: "api_key",
		ResourceID:   keyID.String(),
	})

	writeJSON(w, http.StatusNoContent, nil)
}

// recordAudit writes an audit row in its own transaction. API key changes
// are not part of an event append, so they get their own commit; failures
// are logged, not surfaced.
func (s *Server) recordAudit(ctx context.Context, entry audit.Entry) {
	opCtx := operationContext(ctx)
	tx, err := s.db.DB().BeginTx(ctx, nil)
	if err != nil {
		zap.L().Warn("Failed to open audit transaction", zap.Error(err))
		return
	}
	if err := s.audit.RecordTx(ctx, tx, opCtx, entry); err != nil {
		_ = tx.Rollback()
		zap.L().Warn("Failed to record audit entry",
			zap.String("action", entry.Action), zap.Error(err))
		return
	}
	if err := tx.Commit(); err != nil {
		zap.L().Warn("Failed to commit audit entry", zap.Error(err))
	}
}
