package main

import (
	"context"
	"fmt"

	"github.com/voicelinehq/voiceline/config"
	"github.com/voicelinehq/voiceline/internal/db"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	ctx := context.Background()
	postgres, err := db.NewPostgres(ctx, cfg.Postgres)
	if err != nil {
		panic(err)
	}
	defer postgres.Close()

	const query = `SELECT column_name, data_type FROM information_schema.columns WHERE table_schema = 'public' AND table_name = $1 ORDER BY ordinal_position`

	for _, table := range []string{"users", "agents", "calls"} {
		rows, err := postgres.Pool.Query(ctx, query, table)
		if err != nil {
			panic(err)
		}

		fmt.Printf("%s columns:\n", table)
		for rows.Next() {
			var name, dataType string
			if err := rows.Scan(&name, &dataType); err != nil {
				rows.Close()
				panic(err)
			}
			fmt.Printf("- %s (%s)\n", name, dataType)
		}
		if rows.Err() != nil {
			rows.Close()
			panic(rows.Err())
		}
		rows.Close()
	}
}
