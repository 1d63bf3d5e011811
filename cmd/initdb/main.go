package main

import (
	"context"
	"log"
	"log/slog"
	"os"

	"github.com/joho/godotenv"

	"github.com/ansoraGROUP/dupaboard/internal/config"
	"github.com/ansoraGROUP/dupaboard/internal/database"
	"github.com/ansoraGROUP/dupaboard/internal/logger"
)

// initdb applies the schema, trigger and row-level security policies to the
// database named by DATABASE_URL. Already-applied migrations are skipped.
// It needs no platform keys, so it reads only the variables it uses.
func main() {
	_ = godotenv.Load()
	logger.Init(os.Getenv("LOG_LEVEL"), os.Getenv("LOG_FORMAT"))

	databaseURL := config.MustGetEnv("DATABASE_URL")

	ctx := context.Background()
	pool, err := database.NewPool(ctx, databaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer pool.Close()

	migrations := database.Migrations()
	slog.Info("Running migrations", "total", len(migrations))
	applied, err := database.RunMigrations(ctx, pool, migrations)
	if err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}
	slog.Info("Database initialized", "applied", applied, "skipped", len(migrations)-applied)
}
