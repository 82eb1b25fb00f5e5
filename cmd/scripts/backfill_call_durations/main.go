package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/voicelinehq/voiceline/config"
	"github.com/voicelinehq/voiceline/internal/db"
)

// Repairs calls recorded before durations were persisted: any finished call
// with both timestamps but a zero duration gets one computed from them.
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

	const query = `SELECT id, started_at, ended_at FROM calls
		WHERE duration_seconds = 0 AND started_at IS NOT NULL AND ended_at IS NOT NULL`

	rows, err := postgres.Pool.Query(ctx, query)
	if err != nil {
		log.Fatalf("select calls: %v", err)
	}
	defer rows.Close()

	type repair struct {
		id      string
		seconds int
	}

	repairs := make([]repair, 0)
	for rows.Next() {
		var id string
		var started, ended time.Time
		if err := rows.Scan(&id, &started, &ended); err != nil {
			log.Fatalf("scan call: %v", err)
		}

		seconds := int(ended.Sub(started) / time.Second)
		if seconds <= 0 {
			continue
		}
		repairs = append(repairs, repair{id: id, seconds: seconds})
	}
	if rows.Err() != nil {
		log.Fatalf("rows: %v", rows.Err())
	}

	if len(repairs) == 0 {
		log.Println("no calls need a duration backfill")
		return
	}

	tx, err := postgres.Pool.Begin(ctx)
	if err != nil {
		log.Fatalf("begin tx: %v", err)
	}
	defer tx.Rollback(ctx)

	for _, r := range repairs {
		if _, err := tx.Exec(ctx,
			"UPDATE calls SET duration_seconds = $2, updated_at = NOW() WHERE id = $1",
			r.id, r.seconds); err != nil {
			log.Fatalf("update call %s: %v", r.id, err)
		}
		fmt.Printf("- %s -> %ds\n", r.id, r.seconds)
	}

	if err := tx.Commit(ctx); err != nil {
		log.Fatalf("commit tx: %v", err)
	}

	log.Printf("backfilled %d call durations", len(repairs))
}
