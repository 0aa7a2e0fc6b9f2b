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

package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"finance-atp/internal/api"
	"finance-atp/internal/common"
	"finance-atp/internal/config"
	"finance-atp/internal/database"
	"finance-atp/internal/jobs"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger, _ := zap.NewProduction()
		logger.Fatal("Failed to load configuration", zap.Error(err))
	}

	_, loggerCleanup := common.InitializeLogger(cfg.LogLevel, cfg.IsProduction())
	defer loggerCleanup()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	zap.L().Info("Starting ATP ledger service",
		zap.String("environment", cfg.Environment),
		zap.String("addr", cfg.Addr()))

	db, err := database.NewService(ctx, cfg)
	if err != nil {
		zap.L().Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	ready, err := db.CheckSchema(ctx)
	if err != nil {
		zap.L().Fatal("Failed to check schema", zap.Error(err))
	}
	if !ready {
		zap.L().Fatal("Database schema is missing or incomplete; run the setup tool first")
	}

	server := api.NewServer(cfg, db)
	runner := jobs.NewRunner(db)

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error { return server.Run(ctx) })
	group.Go(func() error { return runner.Run(ctx) })

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		zap.L().Fatal("Service exited with error", zap.Error(err))
	}
	zap.L().Info("Service stopped")
}
