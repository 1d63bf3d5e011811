package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"time"

	"github.com/ansoraGROUP/dupaboard/internal/config"
	"github.com/ansoraGROUP/dupaboard/internal/database"
	"github.com/ansoraGROUP/dupaboard/internal/logger"
	"github.com/ansoraGROUP/dupaboard/internal/repository"
	"github.com/ansoraGROUP/dupaboard/internal/seed"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	logger.Init(cfg.LogLevel, cfg.LogFormat)

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	var (
		users seed.UserCreator
		store repository.Store
	)
	switch cfg.DataBackend {
	case config.BackendPostgres:
		pool, err := database.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		defer pool.Close()
		users = seed.NewDatabaseUsers(pool)
		store = repository.NewPostgresFactory(pool).Privileged()
	default:
		httpClient := &http.Client{Timeout: time.Duration(cfg.PlatformTimeout) * time.Second}
		rest := repository.NewRESTFactory(cfg.SupabaseURL, cfg.AnonKey, cfg.ServiceRoleKey, httpClient)
		users = seed.NewPlatformUsers(rest.Service())
		store = rest.Privileged()
	}

	opts := seed.DefaultOptions()
	res, err := seed.Run(ctx, users, store, opts)
	if err != nil {
		slog.Error("Seeding stopped", "error", err, "user_id", res.UserID, "project_id", res.ProjectID)
		log.Fatalf("Seed failed: %v", err)
	}
	slog.Info("Seed complete", "email", opts.Email, "password", opts.Password,
		"user_id", res.UserID, "project_id", res.ProjectID, "tasks", len(res.TaskIDs))
}
