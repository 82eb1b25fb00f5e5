package main

import (
	"context"
	"errors"
	"log"

	"golang.org/x/crypto/bcrypt"

	"github.com/voicelinehq/voiceline/config"
	"github.com/voicelinehq/voiceline/internal/db"
	"github.com/voicelinehq/voiceline/internal/models"
)

type seedAgent struct {
	name         string
	voice        string
	systemPrompt string
	greeting     string
}

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

	if err := postgres.EnsureSchema(ctx); err != nil {
		log.Fatalf("ensure schema: %v", err)
	}

	store := db.NewStore(postgres.Pool)

	demo, err := ensureDemoUser(ctx, store)
	if err != nil {
		log.Fatalf("ensure demo user: %v", err)
	}

	agents := []seedAgent{
		{
			name:         "Front Desk",
			voice:        "alloy",
			systemPrompt: "You are the friendly front-desk receptionist for a small dental clinic. Answer questions about opening hours, location and services, and offer to book appointments.",
			greeting:     "Thanks for calling Brightside Dental, how can I help you today?",
		},
		{
			name:         "Support Triage",
			voice:        "nova",
			systemPrompt: "You are a first-line support agent for an internet provider. Collect the caller's account number and a short description of the problem, then promise a callback.",
			greeting:     "You've reached technical support. What seems to be the trouble?",
		},
		{
			name:         "Booking Assistant",
			voice:        "rachel",
			systemPrompt: "You take restaurant reservations. Ask for the date, time, party size and a contact name, and confirm the details back before ending the call.",
			greeting:     "Hello! Would you like to make a reservation?",
		},
	}

	names := make([]string, 0, len(agents))
	for _, a := range agents {
		names = append(names, a.name)
	}

	// re-runs replace the demo agents instead of stacking duplicates
	if _, err := postgres.Pool.Exec(ctx,
		"DELETE FROM agents WHERE user_id = $1 AND name = ANY($2)", demo.ID, names); err != nil {
		log.Fatalf("delete existing demo agents: %v", err)
	}

	for _, a := range agents {
		if _, err := store.CreateAgent(ctx, models.Agent{
			UserID:       demo.ID,
			Name:         a.name,
			Voice:        a.voice,
			SystemPrompt: a.systemPrompt,
			Greeting:     a.greeting,
		}); err != nil {
			log.Fatalf("insert agent %s: %v", a.name, err)
		}
	}

	log.Printf("seeded %d agents for user %s", len(agents), demo.Username)
}

func ensureDemoUser(ctx context.Context, store *db.Store) (models.User, error) {
	const username = "demo"

	user, err := store.GetUserByIdentifier(ctx, username)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, db.ErrNotFound) {
		return models.User{}, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte("demo-password"), bcrypt.DefaultCost)
	if err != nil {
		return models.User{}, err
	}

	return store.CreateUser(ctx, models.User{
		Username:     username,
		Email:        "demo@voiceline.local",
		PasswordHash: string(hash),
		Role:         models.UserRoleUser,
	})
}
