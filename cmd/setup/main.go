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
	"flag"
	"os"
	"time"

	"finance-atp/internal/common"
	"finance-atp/internal/config"
	"finance-atp/internal/database"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gopkg.in/yaml.v2"
)

// seedKey is one entry in the --keys file. The raw key is supplied by the
// operator; only its hash lands in the database.
type seedKey struct {
	Name               string   `yaml:"name"`
	Key                string   `yaml:"key"`
	Permissions        []string `yaml:"permissions"`
	RateLimitPerMinute int      `yaml:"rate_limit_per_minute"`
}

func seedAPIKeys(ctx context.Context, db *database.Service, path string, defaultRateLimit int) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var keys []seedKey
	if err := yaml.Unmarshal(raw, &keys); err != nil {
		return err
	}

	for _, key := range keys {
		rateLimit := key.RateLimitPerMinute
		if rateLimit <= 0 {
			rateLimit = defaultRateLimit
		}
		prefix := key.Key
		if len(prefix) > 8 {
			prefix = prefix[:8]
		}
		err := db.CreateAPIKey(ctx, uuid.New(), key.Name, prefix,
			database.HashAPIKey(key.Key), key.Permissions, rateLimit, time.Now().UTC())
		if err != nil {
			zap.L().Error("Failed to seed api key",
				zap.String("name", key.Name), zap.Error(err))
			return err
		}
		zap.L().Info("Seeded api key",
			zap.String("name", key.Name),
			zap.Strings("permissions", key.Permissions))
	}
	return nil
}

func main() {
	keysFile := flag.String("keys", "", "Optional path to a YAML file of API keys to seed")
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

	if err := db.InitSchema(ctx); err != nil {
		zap.L().Fatal("Failed to initialize schema", zap.Error(err))
	}

	if *keysFile != "" {
		zap.L().Info("Seeding api keys", zap.String("file", *keysFile))
		if err := seedAPIKeys(ctx, db, *keysFile, cfg.RateLimitPerMinute); err != nil {
			zap.L().Fatal("Failed to seed api keys", zap.Error(err))
		}
	}

	zap.L().Info("Setup complete")
}
