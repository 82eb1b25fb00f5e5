package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/voicelinehq/voiceline/internal/models"
)

const agentColumns = "id, user_id, name, voice, system_prompt, greeting, created_at, updated_at"

func scanAgent(row pgx.Row) (models.Agent, error) {
	var a models.Agent
	err := row.Scan(&a.ID, &a.UserID, &a.Name, &a.Voice, &a.SystemPrompt, &a.Greeting, &a.CreatedAt, &a.UpdatedAt)
	return a, err
}

func (s *Store) CreateAgent(ctx context.Context, agent models.Agent) (models.Agent, error) {
	if agent.ID == "" {
		agent.ID = uuid.NewString()
	}

	query := `INSERT INTO agents (id, user_id, name, voice, system_prompt, greeting)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at`

	err := s.q.QueryRow(ctx, query,
		agent.ID, agent.UserID, agent.Name, agent.Voice, agent.SystemPrompt, agent.Greeting,
	).Scan(&agent.CreatedAt, &agent.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return models.Agent{}, ErrDuplicate
		}
		return models.Agent{}, fmt.Errorf("db: create agent: %w", err)
	}

	return agent, nil
}

// GetAgent fetches one agent. Both predicates sit in the same WHERE clause so
// a row owned by someone else is indistinguishable from a missing row.
func (s *Store) GetAgent(ctx context.Context, agentID, ownerID string) (models.Agent, error) {
	query := fmt.Sprintf("SELECT %s FROM agents WHERE id = $1 AND user_id = $2", agentColumns)

	agent, err := scanAgent(s.q.QueryRow(ctx, query, agentID, ownerID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Agent{}, ErrNotFound
		}
		return models.Agent{}, fmt.Errorf("db: get agent: %w", err)
	}

	return agent, nil
}

func (s *Store) ListAgents(ctx context.Context, ownerID string) ([]models.Agent, error) {
	query := fmt.Sprintf("SELECT %s FROM agents WHERE user_id = $1 ORDER BY created_at", agentColumns)

	rows, err := s.q.Query(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("db: list agents: %w", err)
	}
	defer rows.Close()

	agents := make([]models.Agent, 0)
	for rows.Next() {
		agent, err := scanAgent(rows)
		if err != nil {
			return nil, fmt.Errorf("db: scan agent: %w", err)
		}
		agents = append(agents, agent)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db: list agents: %w", err)
	}

	return agents, nil
}

func (s *Store) CountAgents(ctx context.Context, ownerID string) (int, error) {
	var count int
	if err := s.q.QueryRow(ctx, "SELECT COUNT(*) FROM agents WHERE user_id = $1", ownerID).Scan(&count); err != nil {
		return 0, fmt.Errorf("db: count agents: %w", err)
	}

	return count, nil
}

func (s *Store) UpdateAgent(ctx context.Context, agent models.Agent) (models.Agent, error) {
	query := `UPDATE agents
		SET name = $3, voice = $4, system_prompt = $5, greeting = $6, updated_at = NOW()
		WHERE id = $1 AND user_id = $2
		RETURNING created_at, updated_at`

	err := s.q.QueryRow(ctx, query,
		agent.ID, agent.UserID, agent.Name, agent.Voice, agent.SystemPrompt, agent.Greeting,
	).Scan(&agent.CreatedAt, &agent.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Agent{}, ErrNotFound
		}
		return models.Agent{}, fmt.Errorf("db: update agent: %w", err)
	}

	return agent, nil
}

func (s *Store) DeleteAgent(ctx context.Context, agentID, ownerID string) error {
	tag, err := s.q.Exec(ctx, "DELETE FROM agents WHERE id = $1 AND user_id = $2", agentID, ownerID)
	if err != nil {
		return fmt.Errorf("db: delete agent: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}
