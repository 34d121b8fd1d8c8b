package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/lumopay/lumopay/internal/config"
	"github.com/lumopay/lumopay/internal/infra"
	"github.com/lumopay/lumopay/internal/logging"
)

// Statements run in order and are individually idempotent, so re-running the
// migrator against an existing database is safe.
var statements = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id         UUID PRIMARY KEY,
		phone      TEXT NOT NULL UNIQUE,
		verified   BOOLEAN NOT NULL DEFAULT FALSE,
		pin_hash   TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS wallets (
		id         UUID PRIMARY KEY,
		owner_id   UUID NOT NULL UNIQUE,
		balance    BIGINT NOT NULL DEFAULT 0 CHECK (balance >= 0),
		currency   TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS ledger_entries (
		id         UUID PRIMARY KEY,
		wallet_id  UUID NOT NULL,
		kind       TEXT NOT NULL,
		amount     BIGINT NOT NULL,
		status     TEXT NOT NULL,
		metadata   JSONB NOT NULL DEFAULT '{}'::jsonb,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_ledger_entries_wallet
		ON ledger_entries (wallet_id, created_at DESC)`,
	`CREATE TABLE IF NOT EXISTS p2p_transfers (
		id           UUID PRIMARY KEY,
		ledger_tx_id UUID,
		sender_id    UUID NOT NULL,
		recipient_id UUID NOT NULL,
		amount       BIGINT NOT NULL CHECK (amount > 0),
		status       TEXT NOT NULL,
		expires_at   TIMESTAMPTZ,
		completed_at TIMESTAMPTZ,
		created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_p2p_transfers_status
		ON p2p_transfers (status, created_at)`,
	`CREATE TABLE IF NOT EXISTS reward_grants (
		id           UUID PRIMARY KEY,
		user_id      UUID NOT NULL,
		points       BIGINT NOT NULL,
		source_tx_id TEXT,
		merchant_id  TEXT,
		expires_at   TIMESTAMPTZ,
		created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_reward_grants_user
		ON reward_grants (user_id, created_at)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_reward_grants_source
		ON reward_grants (user_id, source_tx_id) WHERE source_tx_id IS NOT NULL AND points > 0`,
	`CREATE INDEX IF NOT EXISTS idx_reward_grants_expiry
		ON reward_grants (expires_at) WHERE expires_at IS NOT NULL`,
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.LogLevel)

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	db, err := infra.NewPostgresPool(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("connect postgres", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	for i, stmt := range statements {
		if _, err := db.Exec(ctx, stmt); err != nil {
			logger.Error("migration failed", "statement", i, "error", err)
			os.Exit(1)
		}
	}

	logger.Info("migration completed", "statements", len(statements))
}
