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

package database

const (
	// Schema checks
	queryTableExists = `
		SELECT EXISTS (
			SELECT 1 FROM information_schema.tables
			WHERE table_schema = 'public' AND table_name = $1
		)`

	queryUserExists = `
		SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)`

	queryAccountExistsForUser = `
		SELECT EXISTS (SELECT 1 FROM accounts WHERE user_id = $1)`

	// Seeds
	querySeedSystemUser = `
		INSERT INTO users (id, username, email, display_name, is_system)
		VALUES ($1, $2, $3, $4, TRUE)
		ON CONFLICT (id) DO NOTHING`

	querySeedSystemAccount = `
		INSERT INTO accounts (id, user_id, account_type)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO NOTHING`

	querySeedZeroBalance = `
		INSERT INTO account_balances (account_id, balance, last_event_id, last_event_version)
		VALUES ($1, 0, $2, 0)
		ON CONFLICT (account_id) DO NOTHING`

	// User queries
	queryGetUserByID = `
		SELECT id, username, email, COALESCE(display_name, ''), is_system, is_active,
		       created_at, updated_at, deleted_at
		FROM users
		WHERE id = $1`

	queryIsSystemUser = `
		SELECT is_system FROM users WHERE id = $1`

	queryGetWalletAccountID = `
		SELECT id FROM accounts
		WHERE user_id = $1 AND account_type = 'user_wallet'`

	queryGetAccountIDByType = `
		SELECT id FROM accounts
		WHERE user_id = $1 AND account_type = $2`

	queryInsertUserProjection = `
		INSERT INTO users (id, username, email, display_name, is_system, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, NULLIF($4, ''), FALSE, TRUE, $5, $5)`

	queryUpdateUserProjection = `
		UPDATE users
		SET display_name = COALESCE($2, display_name),
		    email = COALESCE($3, email),
		    updated_at = $4
		WHERE id = $1`

	queryDeactivateUserProjection = `
		UPDATE users
		SET is_active = FALSE, deleted_at = $2, updated_at = $2
		WHERE id = $1`

	queryInsertAccountProjection = `
		INSERT INTO accounts (id, user_id, account_type, created_at)
		VALUES ($1, $2, $3, $4)`

	// API key queries
	queryGetAPIKeyByHash = `
		SELECT id, name, permissions, rate_limit_per_minute, is_active, created_at, last_used_at
		FROM api_keys
		WHERE key_hash = $1 AND is_active = TRUE`

	queryTouchAPIKey = `
		UPDATE api_keys SET last_used_at = now() WHERE id = $1`

	queryInsertAPIKey = `
		INSERT INTO api_keys (id, name, key_prefix, key_hash, permissions, rate_limit_per_minute, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	queryListAPIKeys = `
		SELECT id, name, key_prefix, permissions, rate_limit_per_minute, is_active, created_at, last_used_at
		FROM api_keys
		ORDER BY created_at DESC`

	queryGetAPIKeyByID = `
		SELECT id, name, key_prefix, permissions, rate_limit_per_minute, is_active, created_at, last_used_at
		FROM api_keys
		WHERE id = $1`

	queryUpdateAPIKey = `
		UPDATE api_keys
		SET name = COALESCE($2, name),
		    permissions = COALESCE($3, permissions),
		    rate_limit_per_minute = COALESCE($4, rate_limit_per_minute),
		    is_active = COALESCE($5, is_active)
		WHERE id = $1`

	queryDeactivateAPIKey = `
		UPDATE api_keys SET is_active = FALSE WHERE id = $1`

	// Admin event queries
	queryListEvents = `
		SELECT id, aggregate_type, aggregate_id, event_type, version, created_at
		FROM events
		WHERE ($1::text IS NULL OR aggregate_type = $1)
		  AND ($2::uuid IS NULL OR aggregate_id = $2)
		ORDER BY created_at DESC
		LIMIT $3 OFFSET $4`

	queryCountEvents = `
		SELECT COUNT(*) FROM events`

	queryAccountHistory = `
		SELECT id, event_type, event_data, created_at
		FROM events
		WHERE aggregate_id = $1
		ORDER BY created_at DESC
		LIMIT 100`

	// Transfer lookup via the ledger. The credit entry is the paying side,
	// the debit entry the receiving side.
	queryGetTransferEntries = `
		SELECT account_id, amount, entry_type, COALESCE(description, ''), created_at
		FROM ledger_entries
		WHERE journal_id = $1`
)
