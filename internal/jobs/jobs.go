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

// Package jobs runs the periodic maintenance loops: stale idempotency
// reclamation, expired key cleanup, and partition pre-creation.
package jobs

import (
	"context"
	"time"

	"finance-atp/internal/database"
	"finance-atp/internal/idempotency"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	staleResetInterval = time.Minute
	cleanupInterval    = time.Hour
	partitionInterval  = 12 * time.Hour
)

type Runner struct {
	db          *database.Service
	idempotency *idempotency.Repository
}

func NewRunner(db *database.Service) *Runner {
	return &Runner{
		db:          db,
		idempotency: idempotency.NewRepository(db.DB()),
	}
}

// Run blocks until ctx is cancelled. Each loop failure is logged and the
// loop keeps going; maintenance must not take the service down.
func (r *Runner) Run(ctx context.Context) error {
	group, ctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		return r.loop(ctx, staleResetInterval, "stale idempotency reset", func(ctx context.Context) error {
			count, err := r.idempotency.ResetStale(ctx)
			if err != nil {
				return err
			}
			if count > 0 {
				zap.L().Info("Reset stale idempotency keys", zap.Int64("count", count))
			}
			return nil
		})
	})

	group.Go(func() error {
		return r.loop(ctx, cleanupInterval, "expired idempotency cleanup", func(ctx context.Context) error {
			count, err := r.idempotency.CleanupExpired(ctx)
			if err != nil {
				return err
			}
			if count > 0 {
				zap.L().Info("Deleted expired idempotency keys", zap.Int64("count", count))
			}
			return nil
		})
	})

	group.Go(func() error {
		return r.loop(ctx, partitionInterval, "partition maintenance", func(ctx context.Context) error {
			return r.db.EnsurePartitions(ctx, time.Now().UTC())
		})
	})

	return group.Wait()
}

func (r *Runner) loop(ctx context.Context, interval time.Duration, name string, fn func(context.Context) error) error {
	// Run once at startup so a fresh deployment is covered immediately.
	if err := fn(ctx); err != nil {
		zap.L().Warn("Maintenance job failed", zap.String("job", name), zap.Error(err))
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := fn(ctx); err != nil {
				zap.L().Warn("Maintenance job failed", zap.String("job", name), zap.Error(err))
			}
		}
	}
}
