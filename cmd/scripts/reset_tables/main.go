package main

import (
	"context"
	"log"

	"github.com/voicelinehq/voiceline/config"
	"github.com/voicelinehq/voiceline/internal/db"
)

// Drops and recreates every application table. Development only.
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

	stmts := []string{
		"DROP TABLE IF EXISTS calls CASCADE",
		"DROP TABLE IF EXISTS agents CASCADE",
		"DROP TABLE IF EXISTS users CASCADE",
	}

	for _, stmt := range stmts {
		if _, err := postgres.Pool.Exec(ctx, stmt); err != nil {
			log.Fatalf("exec stmt %q: %v", stmt, err)
		}
	}

	if err := postgres.EnsureSchema(ctx); err != nil {
		log.Fatalf("recreate schema: %v", err)
	}

	log.Println("tables recreated")
}
