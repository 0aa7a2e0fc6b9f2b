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
	"net"
	"net/http"
	"sync"
	"time"

	"finance-atp/internal/audit"
	"finance-atp/internal/database"
	"finance-atp/internal/domain"
	"finance-atp/internal/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

type contextKey string

const (
	contextKeyAPIKey    contextKey = "api_key"
	contextKeyOperation contextKey = "operation_context"
)

// MaskAPIKey keeps the first 8 characters of a key for logs.
func MaskAPIKey(key string) string {
	if len(key) <= 8 {
		return "****"
	}
	return key[:8] + "****"
}

func apiKeyFromContext(ctx context.Context) *models.APIKey {
	key, _ := ctx.Value(contextKeyAPIKey).(*models.APIKey)
	return key
}

func operationContext(ctx context.Context) domain.OperationContext {
	opCtx, _ := ctx.Value(contextKeyOperation).(domain.OperationContext)
	return opCtx
}

// authMiddleware authenticates X-API-Key by hash lookup and assembles the
// OperationContext (acting user, correlation id, client IP) carried through
// the whole write path and into event context and audit rows.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rawKey := r.Header.Get("X-API-Key")
		if rawKey == "" {
			writeJSON(w, http.StatusUnauthorized, models.ErrorResponse{
				Error: "invalid_api_key", Message: "X-API-Key header is required"})
			return
		}

		apiKey, err := s.db.GetAPIKeyByHash(r.Context(), database.HashAPIKey(rawKey))
		if err != nil {
			writeError(w, err)
			return
		}
		if apiKey == nil {
			zap.L().Info("Rejected unknown api key", zap.String("key", MaskAPIKey(rawKey)))
			writeJSON(w, http.StatusUnauthorized, models.ErrorResponse{
				Error: "invalid_api_key", Message: "invalid or inactive API key"})
			return
		}
		s.db.TouchAPIKey(r.Context(), apiKey.ID)

		opCtx := domain.NewOperationContext().
			WithAPIKey(apiKey.ID).
			WithClientIP(clientIP(r))

		if rawUser := r.Header.Get("X-Request-User-Id"); rawUser != "" {
			userID, err := uuid.Parse(rawUser)
			if err != nil {
				writeJSON(w, http.StatusBadRequest, models.ErrorResponse{
					Error: "invalid_request", Message: "X-Request-User-Id must be a UUID"})
				return
			}
			opCtx.WithRequestUser(userID)
		}

		if rawCorrelation := r.Header.Get("X-Correlation-Id"); rawCorrelation != "" {
			if correlationID, err := uuid.Parse(rawCorrelation); err == nil {
				opCtx.WithCorrelationID(correlationID)
			}
		}
		opCtx.EnsureCorrelationID()

		ctx := context.WithValue(r.Context(), contextKeyAPIKey, apiKey)
		ctx = context.WithValue(ctx, contextKeyOperation, *opCtx)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		return forwarded
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// rateLimiter keeps one token bucket per API key, sized from the key's
// rate_limit_per_minute column.
type rateLimiter struct {
	mu       sync.Mutex
	limiters map[uuid.UUID]*rate.Limiter
}

func newRateLimiter() *rateLimiter {
	return &rateLimiter{limiters: make(map[uuid.UUID]*rate.Limiter)}
}

func (rl *rateLimiter) allow(keyID uuid.UUID, perMinute int) bool {
	if perMinute <= 0 {
		perMinute = 60
	}
	rl.mu.Lock()
	limiter, ok := rl.limiters[keyID]
	if !ok {
		limiter = rate.NewLimiter(rate.Limit(float64(perMinute)/60.0), perMinute)
		rl.limiters[keyID] = limiter
	}
	rl.mu.Unlock()
	return limiter.Allow()
}

func (s *Server) rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		apiKey := apiKeyFromContext(r.Context())
		if apiKey != nil && !s.limiter.allow(apiKey.ID, apiKey.RateLimitPerMinute) {
			zap.L().Info("Rate limit exceeded",
				zap.String("api_key_id", apiKey.ID.String()))
			writeJSON(w, http.StatusTooManyRequests, models.ErrorResponse{
				Error: "rate_limit_exceeded", Message: "too many requests"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (rec *statusRecorder) WriteHeader(status int) {
	rec.status = status
	rec.ResponseWriter.WriteHeader(status)
}

// requestLogging logs one line per request with the masked key and the
// correlation id.
func (s *Server) requestLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		fields := []zap.Field{
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("duration", time.Since(start)),
			zap.String("api_key", MaskAPIKey(r.Header.Get("X-API-Key"))),
		}
		opCtx := operationContext(r.Context())
		if opCtx.CorrelationID != nil {
			fields = append(fields, zap.String("correlation_id", opCtx.CorrelationID.String()))
		}
		zap.L().Info("Request handled", fields...)
	})
}

// requireIdempotencyKey extracts the mandatory Idempotency-Key header of a
// write request.
func requireIdempotencyKey(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	raw := r.Header.Get("Idempotency-Key")
	if raw == "" {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{
			Error: "invalid_request", Message: "Idempotency-Key header is required"})
		return uuid.Nil, false
	}
	key, err := uuid.Parse(raw)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{
			Error: "invalid_request", Message: "Idempotency-Key must be a UUID"})
		return uuid.Nil, false
	}
	return key, true
}

// requirePermission re-checks the authenticated key's permission set.
// Denials land in the audit trail.
func (s *Server) requirePermission(w http.ResponseWriter, r *http.Request, permission string) (*models.APIKey, bool) {
	apiKey := apiKeyFromContext(r.Context())
	if apiKey == nil || !apiKey.HasPermission(permission) {
		s.recordAudit(r.Context(), audit.Entry{
			Action:       audit.ActionPermissionDenied,
			ResourceType: "permission",
			ResourceID:   permission,
		})
		writeJSON(w, http.StatusForbidden, models.ErrorResponse{
			Error: "permission_denied", Message: permission + " permission required"})
		return nil, false
	}
	return apiKey, true
}
