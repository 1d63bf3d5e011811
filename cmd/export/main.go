package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"time"

	"github.com/ansoraGROUP/dupaboard/internal/config"
	"github.com/ansoraGROUP/dupaboard/internal/database"
	"github.com/ansoraGROUP/dupaboard/internal/export"
	"github.com/ansoraGROUP/dupaboard/internal/logger"
	"github.com/ansoraGROUP/dupaboard/internal/repository"
)

// export writes one snapshot of every project and task to the bucket named
// by EXPORT_S3_BUCKET.
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	logger.Init(cfg.LogLevel, cfg.LogFormat)

	if !cfg.ExportConfigured() {
		log.Fatalf("EXPORT_S3_BUCKET, EXPORT_S3_ACCESS_KEY and EXPORT_S3_SECRET_KEY must be set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	var store repository.Store
	switch cfg.DataBackend {
	case config.BackendPostgres:
		pool, err := database.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		defer pool.Close()
		store = repository.NewPostgresFactory(pool).Privileged()
	default:
		httpClient := &http.Client{Timeout: time.Duration(cfg.PlatformTimeout) * time.Second}
		store = repository.NewRESTFactory(cfg.SupabaseURL, cfg.AnonKey, cfg.ServiceRoleKey, httpClient).Privileged()
	}

	s3Client, err := export.NewS3Client(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to create S3 client: %v", err)
	}

	res, err := export.New(store, s3Client, cfg.ExportS3Bucket, cfg.ExportS3Prefix).Run(ctx)
	if err != nil {
		log.Fatalf("Export failed: %v", err)
	}
	slog.Info("Export complete", "key", res.Key, "bytes", res.Size)
}
