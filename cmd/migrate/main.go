package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	"RwaLedger/internal/observability"
	"RwaLedger/internal/persistence"

	_ "github.com/lib/pq"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: migrate <up|down>")
		fmt.Println("  up   - apply all pending migrations")
		fmt.Println("  down - roll back the last migration")
		fmt.Println()
		fmt.Println("Environment:")
		fmt.Println("  RWA_POSTGRES_DSN    - Postgres connection string (required)")
		fmt.Println("  RWA_MIGRATIONS_DIR  - path to migrations directory (default: migrations)")
		os.Exit(1)
	}

	log := observability.NewLogger("migrate")

	dsn := os.Getenv("RWA_POSTGRES_DSN")
	if dsn == "" {
		dsn = "postgres://localhost:5432/rwaledger?sslmode=disable"
	}

	migrationsDir := os.Getenv("RWA_MIGRATIONS_DIR")
	if migrationsDir == "" {
		migrationsDir = "migrations"
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		log.Fatal().Err(err).Msg("open db")
	}
	defer db.Close()

	ctx := context.Background()
	migrator := persistence.NewMigrator(db, migrationsDir, log)

	switch os.Args[1] {
	case "up":
		if err := migrator.Up(ctx); err != nil {
			log.Fatal().Err(err).Msg("migrate up")
		}
		log.Info().Msg("all migrations applied")

	case "down":
		if err := migrator.Down(ctx); err != nil {
			log.Fatal().Err(err).Msg("migrate down")
		}
		log.Info().Msg("last migration rolled back")

	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s (use 'up' or 'down')\n", os.Args[1])
		os.Exit(1)
	}
}
