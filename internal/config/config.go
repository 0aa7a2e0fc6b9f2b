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

package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"

	"finance-atp/internal/models"
)

// Load reads configuration from the environment. A .env file in the working
// directory is applied first if present; real environment variables win.
func Load() (*models.Config, error) {
	_ = godotenv.Load()

	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		return nil, fmt.Errorf("missing environment variable: DATABASE_URL")
	}

	maxConns, err := getEnvInt("DATABASE_MAX_CONNECTIONS", 10)
	if err != nil {
		return nil, err
	}

	port, err := getEnvInt("PORT", 3000)
	if err != nil {
		return nil, err
	}

	rateLimit, err := getEnvInt("RATE_LIMIT_PER_MINUTE", 100)
	if err != nil {
		return nil, err
	}

	return &models.Config{
		DatabaseURL:        databaseURL,
		DatabaseMaxConns:   maxConns,
		Host:               getEnvString("HOST", "127.0.0.1"),
		Port:               port,
		Environment:        getEnvString("ENVIRONMENT", "development"),
		LogLevel:           getEnvString("LOG_LEVEL", "info"),
		RateLimitPerMinute: rateLimit,
	}, nil
}

func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) (int, error) {
	if value := os.Getenv(key); value != "" {
		intValue, err := strconv.Atoi(value)
		if err != nil {
			return 0, fmt.Errorf("invalid value for environment variable %s: %q", key, value)
		}
		return intValue, nil
	}
	return defaultValue, nil
}
