package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/voicelinehq/voiceline/internal/models"
)

const userColumns = `id, username, email, password_hash, role,
	COALESCE(twilio_account_sid, ''), COALESCE(twilio_auth_token, ''), twilio_configured,
	created_at, updated_at`

func scanUser(row pgx.Row) (models.User, error) {
	var u models.User
	err := row.Scan(
		&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.Role,
		&u.TwilioAccountSID, &u.TwilioAuthToken, &u.TwilioConfigured,
		&u.CreatedAt, &u.UpdatedAt,
	)
	return u, err
}

// CreateUser inserts a new account. The id is generated when absent and the
// role defaults to the ordinary user role.
func (s *Store) CreateUser(ctx context.Context, user models.User) (models.User, error) {
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	if user.Role == "" {
		user.Role = models.UserRoleUser
	}

	query := `INSERT INTO users (id, username, email, password_hash, role)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at, updated_at`

	err := s.q.QueryRow(ctx, query, user.ID, user.Username, user.Email, user.PasswordHash, user.Role).
		Scan(&user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return models.User{}, ErrDuplicate
		}
		return models.User{}, fmt.Errorf("db: create user: %w", err)
	}

	return user, nil
}

func (s *Store) GetUserByID(ctx context.Context, id string) (models.User, error) {
	query := fmt.Sprintf("SELECT %s FROM users WHERE id = $1", userColumns)

	user, err := scanUser(s.q.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.User{}, ErrNotFound
		}
		return models.User{}, fmt.Errorf("db: get user: %w", err)
	}

	return user, nil
}

// GetUserByIdentifier resolves a login identifier that may be either the
// username or the email address.
func (s *Store) GetUserByIdentifier(ctx context.Context, identifier string) (models.User, error) {
	query := fmt.Sprintf("SELECT %s FROM users WHERE username = $1 OR email = $1", userColumns)

	user, err := scanUser(s.q.QueryRow(ctx, query, identifier))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.User{}, ErrNotFound
		}
		return models.User{}, fmt.Errorf("db: get user by identifier: %w", err)
	}

	return user, nil
}

// SetTelephonyCredentials stores the per-account telephony credential pair
// and flips the configured flag in one statement.
func (s *Store) SetTelephonyCredentials(ctx context.Context, userID, accountSID, authToken string) error {
	query := `UPDATE users
		SET twilio_account_sid = $2, twilio_auth_token = $3, twilio_configured = TRUE, updated_at = NOW()
		WHERE id = $1`

	tag, err := s.q.Exec(ctx, query, userID, accountSID, authToken)
	if err != nil {
		return fmt.Errorf("db: set telephony credentials: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}
