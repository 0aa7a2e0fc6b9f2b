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
)

func (s *Server) transfer(w http.ResponseWriter, r *http.Request) {
	idempotencyKey, ok := requireIdempotencyKey(w, r)
	if !ok {
		return
	}

	var req models.TransferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{
			Error: "invalid_request", Message: "malformed JSON body"})
		return
	}

	result, err := s.commands.Transfer(r.Context(), handlers.TransferCommand{
		FromUserID: req.FromUserID,
		ToUserID:   req.ToUserID,
		Amount:     req.Amount,
		Memo:       req.Memo,
	}, idempotencyKey, operationContext(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	writeRaw(w, result.Status, result.Body)
}

func (s *Server) getTransfer(w http.ResponseWriter, r *http.Request) {
	transferID, ok := parseUUIDParam(w, r, "transferID")
	if !ok {
		return
	}

	detail, err := s.db.GetTransferDetail(r.Context(), transferID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}
