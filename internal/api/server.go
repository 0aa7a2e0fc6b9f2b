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

// Package api adapts the command handlers and query services to HTTP. All
// business rules live below this layer; routes only decode, dispatch, and
// shape responses.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"finance-atp/internal/audit"
	"finance-atp/internal/database"
	"finance-atp/internal/handlers"
	"finance-atp/internal/models"
	"finance-atp/internal/projection"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type Server struct {
	cfg        *models.Config
	db         *database.Service
	commands   *handlers.Handler
	projection *projection.Service
	audit      *audit.Service
	limiter    *rateLimiter
}

func NewServer(cfg *models.Config, db *database.Service) *Server {
	return &Server{
		cfg:        cfg,
		db:         db,
		commands:   handlers.New(db),
		projection: projection.NewService(db.DB()),
		audit:      audit.NewService(db.DB()),
		limiter:    newRateLimiter(),
	}
}

// Router builds the full route tree: an unauthenticated health probe plus
// the authenticated /api/v1 surface.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/health", s.health)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(s.authMiddleware)
		r.Use(s.rateLimitMiddleware)
		r.Use(s.requestLogging)

		r.Post("/users", s.createUser)
		r.Get("/users/{userID}", s.getUser)
		r.Patch("/users/{userID}", s.updateUser)
		r.Delete("/users/{userID}", s.deleteUser)
		r.Get("/users/{userID}/balance", s.getUserBalance)
		r.Get("/users/{userID}/history", s.getUserHistory)

		r.Post("/transfers", s.transfer)
		r.Get("/transfers/{transferID}", s.getTransfer)

		r.Post("/admin/mint", s.mint)
		r.Post("/admin/burn", s.burn)
		r.Get("/admin/events", s.listEvents)
		r.Get("/admin/audit-log", s.listAuditLog)

		r.Post("/admin/api-keys", s.createAPIKey)
		r.Get("/admin/api-keys", s.listAPIKeys)
		r.Patch("/admin/api-keys/{keyID}", s.updateAPIKey)
		r.Delete("/admin/api-keys/{keyID}", s.deleteAPIKey)
	})

	return r
}

// Run serves until ctx is cancelled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.cfg.Addr(),
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		zap.L().Info("HTTP server listening", zap.String("addr", s.cfg.Addr()))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	zap.L().Info("Shutting down HTTP server")
	return server.Shutdown(shutdownCtx)
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	if err := s.db.DB().PingContext(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, models.HealthResponse{
			Status: "unhealthy", Database: "unreachable"})
		return
	}
	writeJSON(w, http.StatusOK, models.HealthResponse{Status: "ok", Database: "ok"})
}
