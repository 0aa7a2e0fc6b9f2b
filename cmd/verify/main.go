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

// Command verify re-derives the audit hash chain and every cached balance
// from first principles and reports anything that disagrees. Exit code 1
// means tampering or projection drift.
package main

import (
	"context"
	"flag"
	"os"

	"finance-atp/internal/audit"
	"finance-atp/internal/common"
	"finance-atp/internal/config"
	"finance-atp/internal/database"
	"finance-atp/internal/projection"

	"go.uber.org/zap"
)

func main() {
	skipAudit := flag.Bool("skip-audit", false, "Skip audit chain verification")
	skipBalances := flag.Bool("skip-balances", false, "Skip balance rebuild verification")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logger, _ := zap.NewProduction()
		logger.Fatal("Failed to load configuration", zap.Error(err))
	}

	_, loggerCleanup := common.InitializeLogger(cfg.LogLevel, cfg.IsProduction())
	defer loggerCleanup()

	ctx := context.Background()

	db, err := database.NewService(ctx, cfg)
	if err != nil {
		zap.L().Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	clean := true

	if !*skipAudit {
		violations, checked, err := audit.NewService(db.DB()).VerifyChain(ctx)
		if err != nil {
			zap.L().Fatal("Audit chain verification failed to run", zap.Error(err))
		}
		if len(violations) == 0 {
			zap.L().Info("Audit chain intact", zap.Int("entries_checked", checked))
		} else {
			clean = false
			for _, v := range violations {
				zap.L().Error("Audit chain violation",
					zap.String("entry_id", v.ID),
					zap.String("sequence_number", v.SequenceNumber),
					zap.String("reason", v.Reason))
			}
			zap.L().Error("Audit chain verification failed",
				zap.Int("entries_checked", checked),
				zap.Int("violations", len(violations)))
		}
	}

	if !*skipBalances {
		mismatches, err := projection.NewService(db.DB()).VerifyBalances(ctx)
		if err != nil {
			zap.L().Fatal("Balance verification failed to run", zap.Error(err))
		}
		if len(mismatches) == 0 {
			zap.L().Info("All cached balances match the event history")
		} else {
			clean = false
			for _, m := range mismatches {
				zap.L().Error("Balance mismatch",
					zap.String("account_id", m.AccountID.String()),
					zap.String("cached", m.Cached.String()),
					zap.String("computed", m.Computed.String()))
			}
			zap.L().Error("Balance verification failed", zap.Int("mismatches", len(mismatches)))
		}
	}

	if !clean {
		os.Exit(1)
	}
}
