package main

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/voicelinehq/voiceline/config"
	"github.com/voicelinehq/voiceline/internal/db"
	"github.com/voicelinehq/voiceline/internal/models"
)

type seedCall struct {
	status   string
	duration time.Duration
	age      time.Duration
}

// Seeds a short call history for the demo account so list views and cost
// summaries have something to show. Run seed_demo_agents first.
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	ctx := context.Background()
	postgres, err := db.NewPostgres(ctx, cfg.Postgres)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer postgres.Close()

	store := db.NewStore(postgres.Pool)

	demo, err := store.GetUserByIdentifier(ctx, "demo")
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			log.Fatal("demo user missing; run seed_demo_agents first")
		}
		log.Fatalf("fetch demo user: %v", err)
	}

	agents, err := store.ListAgents(ctx, demo.ID)
	if err != nil {
		log.Fatalf("list agents: %v", err)
	}
	if len(agents) == 0 {
		log.Fatal("demo user has no agents; run seed_demo_agents first")
	}

	calls := []seedCall{
		{status: models.CallStatusCompleted, duration: 95 * time.Second, age: 26 * time.Hour},
		{status: models.CallStatusCompleted, duration: 48 * time.Second, age: 20 * time.Hour},
		{status: models.CallStatusCompleted, duration: 3 * time.Minute, age: 8 * time.Hour},
		{status: models.CallStatusFailed, duration: 0, age: 5 * time.Hour},
		{status: models.CallStatusCompleted, duration: 31 * time.Second, age: 45 * time.Minute},
	}

	// re-runs replace the demo history
	if _, err := postgres.Pool.Exec(ctx, "DELETE FROM calls WHERE user_id = $1", demo.ID); err != nil {
		log.Fatalf("delete existing demo calls: %v", err)
	}

	const insert = `INSERT INTO calls
		(id, user_id, agent_id, status, from_number, to_number, duration_seconds, started_at, ended_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $10)`

	for i, sc := range calls {
		agent := agents[i%len(agents)]
		created := time.Now().UTC().Add(-sc.age)

		var started, ended *time.Time
		if sc.status == models.CallStatusCompleted {
			s := created.Add(2 * time.Second)
			e := s.Add(sc.duration)
			started, ended = &s, &e
		}

		if _, err := postgres.Pool.Exec(ctx, insert,
			uuid.NewString(), demo.ID, agent.ID, sc.status, "web-client", "test",
			int(sc.duration/time.Second), started, ended, created); err != nil {
			log.Fatalf("insert call %d: %v", i+1, err)
		}
	}

	log.Printf("seeded %d calls for user %s", len(calls), demo.Username)
}
