package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// txBeginner is satisfied by *pgxpool.Pool and by pgxmock pools.
type txBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// telephonyCredentialStmts add the per-account telephony credential columns.
// Each statement is guarded so re-applying the migration is a no-op.
var telephonyCredentialStmts = []string{
	`ALTER TABLE users ADD COLUMN IF NOT EXISTS twilio_account_sid TEXT`,
	`ALTER TABLE users ADD COLUMN IF NOT EXISTS twilio_auth_token TEXT`,
	`ALTER TABLE users ADD COLUMN IF NOT EXISTS twilio_configured BOOLEAN DEFAULT FALSE`,
	// backfill rows that predate the configured flag
	`UPDATE users SET twilio_configured = FALSE WHERE twilio_configured IS NULL`,
}

// MigrateTelephonyCredentials applies the credential-column addition inside a
// single transaction.
func MigrateTelephonyCredentials(ctx context.Context, db txBeginner) error {
	tx, err := db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("db: begin migration: %w", err)
	}
	defer tx.Rollback(ctx)

	for i, stmt := range telephonyCredentialStmts {
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("db: migration statement %d: %w", i+1, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("db: commit migration: %w", err)
	}

	return nil
}
