package db

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/voicelinehq/voiceline/internal/models"
)

const callWithAgentColumns = `c.id, c.user_id, c.agent_id, c.status, c.from_number, c.to_number,
	c.duration_seconds, c.started_at, c.ended_at, c.created_at, c.updated_at,
	a.id, a.name, a.voice`

func scanCallWithAgent(row pgx.Row) (models.CallWithAgent, error) {
	var cw models.CallWithAgent
	err := row.Scan(
		&cw.Call.ID, &cw.Call.UserID, &cw.Call.AgentID, &cw.Call.Status,
		&cw.Call.FromNumber, &cw.Call.ToNumber, &cw.Call.DurationSeconds,
		&cw.Call.StartedAt, &cw.Call.EndedAt, &cw.Call.CreatedAt, &cw.Call.UpdatedAt,
		&cw.Agent.ID, &cw.Agent.Name, &cw.Agent.Voice,
	)
	return cw, err
}

// GetCall fetches one call with its agent projection. The call id and the
// owner id are filtered in the same WHERE clause; looking up by id alone and
// checking ownership afterwards would race ownership changes.
func (s *Store) GetCall(ctx context.Context, callID, ownerID string) (models.CallWithAgent, error) {
	query := fmt.Sprintf(`SELECT %s
		FROM calls c
		JOIN agents a ON a.id = c.agent_id
		WHERE c.id = $1 AND c.user_id = $2`, callWithAgentColumns)

	cw, err := scanCallWithAgent(s.q.QueryRow(ctx, query, callID, ownerID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.CallWithAgent{}, ErrNotFound
		}
		return models.CallWithAgent{}, fmt.Errorf("db: get call: %w", err)
	}

	return cw, nil
}

func (s *Store) ListCalls(ctx context.Context, ownerID string, limit, offset int) ([]models.CallWithAgent, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	query := fmt.Sprintf(`SELECT %s
		FROM calls c
		JOIN agents a ON a.id = c.agent_id
		WHERE c.user_id = $1
		ORDER BY c.created_at DESC
		LIMIT $2 OFFSET $3`, callWithAgentColumns)

	rows, err := s.q.Query(ctx, query, ownerID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("db: list calls: %w", err)
	}
	defer rows.Close()

	return collectCalls(rows)
}

func collectCalls(rows pgx.Rows) ([]models.CallWithAgent, error) {
	calls := make([]models.CallWithAgent, 0)
	for rows.Next() {
		cw, err := scanCallWithAgent(rows)
		if err != nil {
			return nil, fmt.Errorf("db: scan call: %w", err)
		}
		calls = append(calls, cw)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db: list calls: %w", err)
	}

	return calls, nil
}

func (s *Store) CreateCall(ctx context.Context, call models.Call) (models.Call, error) {
	if call.ID == "" {
		call.ID = uuid.NewString()
	}
	if call.Status == "" {
		call.Status = models.CallStatusQueued
	}

	query := `INSERT INTO calls (id, user_id, agent_id, status, from_number, to_number)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at`

	err := s.q.QueryRow(ctx, query,
		call.ID, call.UserID, call.AgentID, call.Status, call.FromNumber, call.ToNumber,
	).Scan(&call.CreatedAt, &call.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return models.Call{}, ErrDuplicate
		}
		return models.Call{}, fmt.Errorf("db: create call: %w", err)
	}

	return call, nil
}

// StartCall marks a call in progress and stamps started_at.
func (s *Store) StartCall(ctx context.Context, callID, ownerID string) error {
	query := `UPDATE calls
		SET status = $3, started_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND user_id = $2`

	tag, err := s.q.Exec(ctx, query, callID, ownerID, models.CallStatusInProgress)
	if err != nil {
		return fmt.Errorf("db: start call: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}

// FinishCall records the terminal status and duration of a call.
func (s *Store) FinishCall(ctx context.Context, callID, ownerID, status string, duration time.Duration) error {
	seconds := int(duration / time.Second)
	if seconds < 0 {
		seconds = 0
	}

	query := `UPDATE calls
		SET status = $3, duration_seconds = $4, ended_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND user_id = $2`

	tag, err := s.q.Exec(ctx, query, callID, ownerID, status, seconds)
	if err != nil {
		return fmt.Errorf("db: finish call: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}

// CountCalls reports how many calls the owner has ever placed, for enforcing
// the free-tier test call allowance.
func (s *Store) CountCalls(ctx context.Context, ownerID string) (int, error) {
	var count int
	err := s.q.QueryRow(ctx, "SELECT COUNT(*) FROM calls WHERE user_id = $1", ownerID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("db: count calls: %w", err)
	}

	return count, nil
}

// CountActiveCalls reports how many of the owner's calls are currently live,
// for enforcing the concurrent-call limit.
func (s *Store) CountActiveCalls(ctx context.Context, ownerID string) (int, error) {
	query := "SELECT COUNT(*) FROM calls WHERE user_id = $1 AND status IN ($2, $3)"

	var count int
	err := s.q.QueryRow(ctx, query, ownerID, models.CallStatusRinging, models.CallStatusInProgress).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("db: count active calls: %w", err)
	}

	return count, nil
}

// CallFilter narrows the admin listing. Zero values mean "any".
type CallFilter struct {
	UserID  string
	AgentID string
	Status  string
	Since   *time.Time
	Until   *time.Time
	Limit   int
	Offset  int
}

// AdminListCalls lists calls across all accounts. Callers must gate this
// behind the administrator role.
func (s *Store) AdminListCalls(ctx context.Context, filter CallFilter) ([]models.CallWithAgent, error) {
	conds := make([]string, 0, 5)
	args := make([]any, 0, 7)

	add := func(cond string, value any) {
		args = append(args, value)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if filter.UserID != "" {
		add("c.user_id = $%d", filter.UserID)
	}
	if filter.AgentID != "" {
		add("c.agent_id = $%d", filter.AgentID)
	}
	if filter.Status != "" {
		add("c.status = $%d", filter.Status)
	}
	if filter.Since != nil {
		add("c.created_at >= $%d", *filter.Since)
	}
	if filter.Until != nil {
		add("c.created_at < $%d", *filter.Until)
	}

	where := ""
	if len(conds) > 0 {
		where = "WHERE " + strings.Join(conds, " AND ")
	}

	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	args = append(args, limit, offset)

	query := fmt.Sprintf(`SELECT %s
		FROM calls c
		JOIN agents a ON a.id = c.agent_id
		%s
		ORDER BY c.created_at DESC
		LIMIT $%d OFFSET $%d`, callWithAgentColumns, where, len(args)-1, len(args))

	rows, err := s.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("db: admin list calls: %w", err)
	}
	defer rows.Close()

	return collectCalls(rows)
}
