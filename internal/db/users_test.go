package db_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v3"

	"github.com/voicelinehq/voiceline/internal/db"
	"github.com/voicelinehq/voiceline/internal/models"
)

func TestCreateUser(t *testing.T) {
	t.Parallel()

	mock, store := newMockStore(t)

	now := time.Now().UTC()
	mock.ExpectQuery(`INSERT INTO users`).
		WithArgs(pgxmock.AnyArg(), "ada", "ada@example.com", "$2a$10$hash", models.UserRoleUser).
		WillReturnRows(pgxmock.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now))

	user, err := store.CreateUser(context.Background(), models.User{
		Username:     "ada",
		Email:        "ada@example.com",
		PasswordHash: "$2a$10$hash",
	})
	if err != nil {
		t.Fatalf("CreateUser returned error: %v", err)
	}
	if user.ID == "" {
		t.Error("CreateUser did not assign an id")
	}
	if user.Role != models.UserRoleUser {
		t.Errorf("role = %q, want default %q", user.Role, models.UserRoleUser)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestCreateUserDuplicate(t *testing.T) {
	t.Parallel()

	mock, store := newMockStore(t)

	mock.ExpectQuery(`INSERT INTO users`).
		WithArgs(pgxmock.AnyArg(), "ada", "ada@example.com", "$2a$10$hash", models.UserRoleUser).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "users_username_key"})

	_, err := store.CreateUser(context.Background(), models.User{
		Username:     "ada",
		Email:        "ada@example.com",
		PasswordHash: "$2a$10$hash",
	})
	if !errors.Is(err, db.ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestGetUserByIdentifier(t *testing.T) {
	t.Parallel()

	mock, store := newMockStore(t)

	now := time.Now().UTC()
	rows := pgxmock.NewRows([]string{
		"id", "username", "email", "password_hash", "role",
		"twilio_account_sid", "twilio_auth_token", "twilio_configured",
		"created_at", "updated_at",
	}).AddRow("user-1", "ada", "ada@example.com", "$2a$10$hash", models.UserRoleUser, "", "", false, now, now)

	mock.ExpectQuery(`WHERE username = \$1 OR email = \$1`).
		WithArgs("ada@example.com").
		WillReturnRows(rows)

	user, err := store.GetUserByIdentifier(context.Background(), "ada@example.com")
	if err != nil {
		t.Fatalf("GetUserByIdentifier returned error: %v", err)
	}
	if user.ID != "user-1" || user.Username != "ada" {
		t.Errorf("unexpected user: %+v", user)
	}
	if user.TwilioConfigured {
		t.Error("fresh user must default to telephony not configured")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestSetTelephonyCredentials(t *testing.T) {
	t.Parallel()

	mock, store := newMockStore(t)

	mock.ExpectExec(`UPDATE users`).
		WithArgs("user-1", "AC123", "tok-secret").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(`UPDATE users`).
		WithArgs("ghost", "AC123", "tok-secret").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	if err := store.SetTelephonyCredentials(context.Background(), "user-1", "AC123", "tok-secret"); err != nil {
		t.Fatalf("SetTelephonyCredentials returned error: %v", err)
	}

	err := store.SetTelephonyCredentials(context.Background(), "ghost", "AC123", "tok-secret")
	if !errors.Is(err, db.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for missing user, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
