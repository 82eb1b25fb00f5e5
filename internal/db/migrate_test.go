package db_test

import (
	"context"
	"errors"
	"testing"

	pgxmock "github.com/pashagolub/pgxmock/v3"

	"github.com/voicelinehq/voiceline/internal/db"
)

func expectTelephonyMigration(mock pgxmock.PgxPoolIface) {
	mock.ExpectBegin()
	mock.ExpectExec(`ADD COLUMN IF NOT EXISTS twilio_account_sid`).
		WillReturnResult(pgxmock.NewResult("ALTER", 0))
	mock.ExpectExec(`ADD COLUMN IF NOT EXISTS twilio_auth_token`).
		WillReturnResult(pgxmock.NewResult("ALTER", 0))
	mock.ExpectExec(`ADD COLUMN IF NOT EXISTS twilio_configured`).
		WillReturnResult(pgxmock.NewResult("ALTER", 0))
	mock.ExpectExec(`UPDATE users SET twilio_configured = FALSE`).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectCommit()
}

func TestMigrateTelephonyCredentialsIsRepeatable(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgx mock: %v", err)
	}
	defer mock.Close()

	// the guarded statements run identically on a schema that already has
	// the columns
	expectTelephonyMigration(mock)
	expectTelephonyMigration(mock)

	for run := 1; run <= 2; run++ {
		if err := db.MigrateTelephonyCredentials(context.Background(), mock); err != nil {
			t.Fatalf("run %d returned error: %v", run, err)
		}
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestMigrateTelephonyCredentialsRollsBackOnFailure(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgx mock: %v", err)
	}
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectExec(`ADD COLUMN IF NOT EXISTS twilio_account_sid`).
		WillReturnError(errors.New("permission denied"))
	mock.ExpectRollback()

	if err := db.MigrateTelephonyCredentials(context.Background(), mock); err == nil {
		t.Fatal("expected migration error, got nil")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
