package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/voicelinehq/voiceline/config"
	"github.com/voicelinehq/voiceline/internal/db"
)

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

	if err := db.MigrateTelephonyCredentials(ctx, postgres.Pool); err != nil {
		log.Fatalf("apply migration: %v", err)
	}

	// quick verify
	verify := `SELECT column_name, data_type FROM information_schema.columns WHERE table_schema='public' AND table_name='users' ORDER BY ordinal_position`
	rows, err := postgres.Pool.Query(ctx, verify)
	if err != nil {
		log.Fatalf("verify columns: %v", err)
	}
	defer rows.Close()

	fmt.Println("users columns after migration:")
	for rows.Next() {
		var name, dtype string
		if err := rows.Scan(&name, &dtype); err != nil {
			log.Fatalf("scan: %v", err)
		}
		fmt.Printf("- %s (%s)\n", name, dtype)
	}
	if rows.Err() != nil {
		log.Fatalf("rows: %v", rows.Err())
	}

	fmt.Printf("done at %s\n", time.Now().Format(time.RFC3339))
}
