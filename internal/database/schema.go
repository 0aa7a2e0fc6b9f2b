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

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"finance-atp/internal/domain"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const baseSchema = `
	CREATE TABLE IF NOT EXISTS users (
		id UUID PRIMARY KEY,
		username TEXT NOT NULL UNIQUE,
		email TEXT NOT NULL UNIQUE,
		display_name TEXT,
		is_system BOOLEAN NOT NULL DEFAULT FALSE,
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		deleted_at TIMESTAMPTZ
	);

	CREATE TABLE IF NOT EXISTS accounts (
		id UUID PRIMARY KEY,
		user_id UUID NOT NULL REFERENCES users(id),
		account_type TEXT NOT NULL CHECK (account_type IN
			('user_wallet', 'mint_source', 'fee_income', 'system_reserve')),
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		UNIQUE (user_id, account_type)
	);

	-- Non-system users may hold only user_wallet accounts.
	CREATE OR REPLACE FUNCTION enforce_account_ownership() RETURNS trigger AS $$
	DECLARE
		owner_is_system BOOLEAN;
	BEGIN
		SELECT is_system INTO owner_is_system FROM users WHERE id = NEW.user_id;
		IF owner_is_system IS NULL THEN
			RAISE EXCEPTION 'account owner % does not exist', NEW.user_id;
		END IF;
		IF NOT owner_is_system AND NEW.account_type <> 'user_wallet' THEN
			RAISE EXCEPTION 'non-system user % may only hold user_wallet accounts', NEW.user_id;
		END IF;
		RETURN NEW;
	END
	$$ LANGUAGE plpgsql;

	DROP TRIGGER IF EXISTS accounts_ownership ON accounts;
	CREATE TRIGGER accounts_ownership
		BEFORE INSERT ON accounts
		FOR EACH ROW EXECUTE FUNCTION enforce_account_ownership();

	CREATE TABLE IF NOT EXISTS events (
		id UUID NOT NULL,
		aggregate_type TEXT NOT NULL,
		aggregate_id UUID NOT NULL,
		version BIGINT NOT NULL CHECK (version >= 0),
		event_type TEXT NOT NULL,
		event_data JSONB NOT NULL,
		context JSONB NOT NULL DEFAULT '{}',
		idempotency_key UUID,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (id, created_at),
		UNIQUE (aggregate_id, version, created_at),
		UNIQUE (idempotency_key, created_at)
	) PARTITION BY RANGE (created_at);

	CREATE INDEX IF NOT EXISTS idx_events_aggregate
		ON events (aggregate_id, version);
	CREATE INDEX IF NOT EXISTS idx_events_type
		ON events (aggregate_type, created_at DESC);

	-- The event log is append-only; any UPDATE or DELETE is a bug.
	CREATE OR REPLACE FUNCTION reject_mutation() RETURNS trigger AS $$
	BEGIN
		RAISE EXCEPTION '% rows are immutable', TG_TABLE_NAME;
	END
	$$ LANGUAGE plpgsql;

	CREATE TABLE IF NOT EXISTS event_snapshots (
		aggregate_type TEXT NOT NULL,
		aggregate_id UUID NOT NULL,
		version BIGINT NOT NULL CHECK (version >= 0),
		state JSONB NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (aggregate_type, aggregate_id)
	);

	CREATE TABLE IF NOT EXISTS account_balances (
		account_id UUID PRIMARY KEY REFERENCES accounts(id),
		balance NUMERIC(20,8) NOT NULL DEFAULT 0 CHECK (
			balance >= -1000000000000 AND balance <= 1000000000000),
		last_event_id UUID NOT NULL,
		last_event_version BIGINT NOT NULL DEFAULT 0,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);

	CREATE TABLE IF NOT EXISTS ledger_entries (
		id UUID NOT NULL,
		journal_id UUID NOT NULL,
		transfer_event_id UUID NOT NULL,
		account_id UUID NOT NULL REFERENCES accounts(id),
		amount NUMERIC(20,8) NOT NULL CHECK (amount > 0),
		entry_type TEXT NOT NULL CHECK (entry_type IN ('debit', 'credit')),
		description TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (id, created_at)
	) PARTITION BY RANGE (created_at);

	CREATE INDEX IF NOT EXISTS idx_ledger_entries_journal
		ON ledger_entries (journal_id);
	CREATE INDEX IF NOT EXISTS idx_ledger_entries_account
		ON ledger_entries (account_id, created_at DESC);

	-- Deferred per-row check: at commit, every journal touched must balance.
	CREATE OR REPLACE FUNCTION enforce_journal_balance() RETURNS trigger AS $$
	DECLARE
		diff NUMERIC;
	BEGIN
		SELECT COALESCE(SUM(CASE WHEN entry_type = 'debit' THEN amount ELSE -amount END), 0)
		INTO diff
		FROM ledger_entries
		WHERE journal_id = NEW.journal_id;
		IF diff <> 0 THEN
			RAISE EXCEPTION 'unbalanced journal %: debit minus credit is %', NEW.journal_id, diff;
		END IF;
		RETURN NULL;
	END
	$$ LANGUAGE plpgsql;

	CREATE TABLE IF NOT EXISTS idempotency_keys (
		key UUID PRIMARY KEY,
		request_hash TEXT NOT NULL,
		event_id UUID,
		response_status INT,
		response_body JSONB,
		processing_status TEXT NOT NULL DEFAULT 'pending' CHECK (
			processing_status IN ('pending', 'processing', 'completed', 'failed')),
		processing_started_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		expires_at TIMESTAMPTZ NOT NULL DEFAULT now() + interval '24 hours'
	);

	CREATE INDEX IF NOT EXISTS idx_idempotency_keys_expires
		ON idempotency_keys (expires_at);

	CREATE TABLE IF NOT EXISTS audit_logs (
		id UUID NOT NULL PRIMARY KEY,
		sequence_number BIGSERIAL NOT NULL UNIQUE,
		api_key_id UUID,
		request_user_id UUID,
		correlation_id UUID,
		action TEXT NOT NULL,
		resource_type TEXT,
		resource_id TEXT,
		before_state JSONB,
		after_state JSONB,
		changed_fields JSONB,
		client_ip TEXT,
		previous_hash TEXT NOT NULL DEFAULT '',
		current_hash TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);

	-- Hash chaining. The advisory transaction lock serializes concurrent
	-- inserts so previous_hash always names the immediately preceding row.
	CREATE OR REPLACE FUNCTION audit_logs_chain() RETURNS trigger AS $$
	DECLARE
		prev TEXT;
	BEGIN
		PERFORM pg_advisory_xact_lock(hashtext('audit_logs_chain'));
		SELECT current_hash INTO prev
		FROM audit_logs
		ORDER BY sequence_number DESC
		LIMIT 1;
		IF prev IS NULL THEN
			prev := repeat('0', 64);
		END IF;
		NEW.previous_hash := prev;
		NEW.current_hash := encode(sha256(convert_to(
			NEW.id::text ||
			NEW.sequence_number::text ||
			NEW.action ||
			COALESCE(NEW.request_user_id::text, '') ||
			COALESCE(NEW.resource_type, '') ||
			COALESCE(NEW.resource_id, '') ||
			COALESCE(NEW.before_state::text, '') ||
			COALESCE(NEW.after_state::text, '') ||
			NEW.previous_hash, 'UTF8')), 'hex');
		RETURN NEW;
	END
	$$ LANGUAGE plpgsql;

	DROP TRIGGER IF EXISTS audit_logs_chain_trigger ON audit_logs;
	CREATE TRIGGER audit_logs_chain_trigger
		BEFORE INSERT ON audit_logs
		FOR EACH ROW EXECUTE FUNCTION audit_logs_chain();

	DROP TRIGGER IF EXISTS audit_logs_immutable ON audit_logs;
	CREATE TRIGGER audit_logs_immutable
		BEFORE UPDATE OR DELETE ON audit_logs
		FOR EACH ROW EXECUTE FUNCTION reject_mutation();

	CREATE TABLE IF NOT EXISTS api_keys (
		id UUID PRIMARY KEY,
		name TEXT NOT NULL,
		key_prefix TEXT NOT NULL,
		key_hash TEXT NOT NULL UNIQUE,
		permissions JSONB NOT NULL DEFAULT '[]',
		rate_limit_per_minute INT NOT NULL DEFAULT 1000,
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		last_used_at TIMESTAMPTZ
	);
`

// InitSchema creates all tables, trigger functions, the partitions for the
// current and next month, and the seeded system users. It is idempotent and
// is invoked by the setup tool, not by the server.
func (s *Service) InitSchema(ctx context.Context) error {
	zap.L().Info("Initializing schema")

	if _, err := s.db.ExecContext(ctx, baseSchema); err != nil {
		return fmt.Errorf("unable to initialize schema: %w", err)
	}

	if err := s.EnsurePartitions(ctx, time.Now().UTC()); err != nil {
		return err
	}

	if err := s.seedSystemUsers(ctx); err != nil {
		return err
	}

	zap.L().Info("Schema initialized successfully")
	return nil
}

// EnsurePartitions makes sure the monthly partitions of events and
// ledger_entries exist for the month containing now and the month after it.
// The partition maintenance job calls this on a schedule so inserts never
// land in a missing partition at month rollover.
func (s *Service) EnsurePartitions(ctx context.Context, now time.Time) error {
	thisMonth := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	for _, start := range []time.Time{thisMonth, thisMonth.AddDate(0, 1, 0)} {
		if err := s.ensureMonthPartition(ctx, "events", start); err != nil {
			return err
		}
		if err := s.ensureMonthPartition(ctx, "ledger_entries", start); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) ensureMonthPartition(ctx context.Context, table string, start time.Time) error {
	end := start.AddDate(0, 1, 0)
	name := fmt.Sprintf("%s_y%04dm%02d", table, start.Year(), int(start.Month()))

	ddl := fmt.Sprintf(
		`CREATE TABLE IF NOT EXISTS %s PARTITION OF %s FOR VALUES FROM ('%s') TO ('%s')`,
		name, table, start.Format("2006-01-02"), end.Format("2006-01-02"))
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("unable to create partition %s: %w", name, err)
	}

	// Row triggers have to live on the leaves: constraint triggers cannot be
	// attached to a partitioned parent.
	var triggers string
	switch table {
	case "events":
		triggers = fmt.Sprintf(`
			DROP TRIGGER IF EXISTS %[1]s_immutable ON %[1]s;
			CREATE TRIGGER %[1]s_immutable
				BEFORE UPDATE OR DELETE ON %[1]s
				FOR EACH ROW EXECUTE FUNCTION reject_mutation();`, name)
	case "ledger_entries":
		triggers = fmt.Sprintf(`
			DROP TRIGGER IF EXISTS %[1]s_immutable ON %[1]s;
			CREATE TRIGGER %[1]s_immutable
				BEFORE UPDATE OR DELETE ON %[1]s
				FOR EACH ROW EXECUTE FUNCTION reject_mutation();
			DROP TRIGGER IF EXISTS %[1]s_balanced ON %[1]s;
			CREATE CONSTRAINT TRIGGER %[1]s_balanced
				AFTER INSERT ON %[1]s
				DEFERRABLE INITIALLY DEFERRED
				FOR EACH ROW EXECUTE FUNCTION enforce_journal_balance();`, name)
	}
	if _, err := s.db.ExecContext(ctx, triggers); err != nil {
		return fmt.Errorf("unable to create triggers on partition %s: %w", name, err)
	}

	zap.L().Debug("Partition ready", zap.String("partition", name))
	return nil
}

func (s *Service) seedSystemUsers(ctx context.Context) error {
	seeds := []struct {
		userID      string
		accountID   string
		username    string
		email       string
		displayName string
		accountType string
	}{
		{domain.SystemMintUserID.String(), domain.SystemMintAccountID.String(),
			"SYSTEM_MINT", "mint@system.internal", "System Mint", "mint_source"},
		{domain.SystemBurnUserID.String(), domain.SystemBurnAccountID.String(),
			"SYSTEM_BURN", "burn@system.internal", "System Burn", "mint_source"},
		{domain.SystemFeeUserID.String(), domain.SystemFeeAccountID.String(),
			"SYSTEM_FEE", "fee@system.internal", "System Fee", "fee_income"},
		{domain.SystemReserveUserID.String(), domain.SystemReserveAccountID.String(),
			"SYSTEM_RESERVE", "reserve@system.internal", "System Reserve", "system_reserve"},
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("unable to begin seed transaction: %w", err)
	}
	defer func() {
		if err := tx.Rollback(); err != nil && err != sql.ErrTxDone {
			zap.L().Warn("Failed to rollback seed transaction", zap.Error(err))
		}
	}()

	for _, seed := range seeds {
		if _, err := tx.ExecContext(ctx, querySeedSystemUser,
			seed.userID, seed.username, seed.email, seed.displayName); err != nil {
			return fmt.Errorf("unable to seed system user %s: %w", seed.username, err)
		}
		if _, err := tx.ExecContext(ctx, querySeedSystemAccount,
			seed.accountID, seed.userID, seed.accountType); err != nil {
			return fmt.Errorf("unable to seed system account for %s: %w", seed.username, err)
		}
		if _, err := tx.ExecContext(ctx, querySeedZeroBalance,
			seed.accountID, uuid.Nil.String()); err != nil {
			return fmt.Errorf("unable to seed balance for %s: %w", seed.username, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("unable to commit seed transaction: %w", err)
	}

	zap.L().Info("System users seeded",
		zap.Strings("users", []string{"SYSTEM_MINT", "SYSTEM_BURN", "SYSTEM_FEE", "SYSTEM_RESERVE"}))
	return nil
}
