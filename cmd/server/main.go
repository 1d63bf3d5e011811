package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/ansoraGROUP/dupaboard/internal/config"
	"github.com/ansoraGROUP/dupaboard/internal/database"
	"github.com/ansoraGROUP/dupaboard/internal/export"
	"github.com/ansoraGROUP/dupaboard/internal/logger"
	"github.com/ansoraGROUP/dupaboard/internal/middleware"
	"github.com/ansoraGROUP/dupaboard/internal/repository"
	"github.com/ansoraGROUP/dupaboard/internal/server"
	"github.com/ansoraGROUP/dupaboard/internal/session"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	logger.Init(cfg.LogLevel, cfg.LogFormat)

	ctx := context.Background()
	httpClient := &http.Client{Timeout: time.Duration(cfg.PlatformTimeout) * time.Second}
	rest := repository.NewRESTFactory(cfg.SupabaseURL, cfg.AnonKey, cfg.ServiceRoleKey, httpClient)
	platformAuth := session.NewPlatformVerifier(rest.Anon())

	deps := server.Deps{
		Config:    cfg,
		Factory:   rest,
		Verifier:  platformAuth,
		Refresher: platformAuth,
	}

	var pool *pgxpool.Pool
	if cfg.DataBackend == config.BackendPostgres {
		slog.Info("Connecting to database")
		pool, err = database.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		slog.Info("Connected to database")
		deps.Factory = repository.NewPostgresFactory(pool)
		deps.Verifier = session.NewJWTVerifier(cfg.JWTSecret)
	}
	slog.Info("Data backend ready", "backend", cfg.DataBackend, "task_access", cfg.TaskAccess)

	// Rate limiters: Redis when configured, otherwise per-process buckets.
	var memLimiters []*middleware.MemoryLimiter
	var rdb *redis.Client
	if cfg.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		err := rdb.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			log.Fatalf("Failed to connect to redis: %v", err)
		}
		slog.Info("Using redis rate limiter", "addr", cfg.RedisAddr)
		deps.AuthLimiter = middleware.NewRedisLimiter(rdb, cfg.AuthRateLimit, time.Second)
		deps.APILimiter = middleware.NewRedisLimiter(rdb, cfg.APIRateLimit, time.Second)
	} else {
		authLimiter := middleware.NewMemoryLimiter(float64(cfg.AuthRateLimit), cfg.AuthRateLimit*2)
		apiLimiter := middleware.NewMemoryLimiter(float64(cfg.APIRateLimit), cfg.APIRateLimit*2)
		memLimiters = append(memLimiters, authLimiter, apiLimiter)
		deps.AuthLimiter = authLimiter
		deps.APILimiter = apiLimiter
	}

	// Periodic snapshots
	var scheduler *export.Scheduler
	if cfg.ExportInterval > 0 {
		if !cfg.ExportConfigured() {
			log.Fatalf("EXPORT_INTERVAL_MINUTES is set but EXPORT_S3_BUCKET and credentials are not")
		}
		s3Client, err := export.NewS3Client(ctx, cfg)
		if err != nil {
			log.Fatalf("Failed to create S3 client: %v", err)
		}
		exporter := export.New(deps.Factory.Privileged(), s3Client, cfg.ExportS3Bucket, cfg.ExportS3Prefix)
		scheduler = export.NewScheduler(exporter, time.Duration(cfg.ExportInterval)*time.Minute)
		scheduler.Start()
		slog.Info("Export scheduler started", "interval_minutes", cfg.ExportInterval, "bucket", cfg.ExportS3Bucket)
	}

	srv := server.New(deps)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      srv.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		slog.Info("Shutting down")
		if scheduler != nil {
			scheduler.Stop()
		}
		shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		httpServer.Shutdown(shutCtx)
		for _, l := range memLimiters {
			l.Close()
		}
		if rdb != nil {
			rdb.Close()
		}
		if pool != nil {
			pool.Close()
		}
	}()

	slog.Info("Server started", "host", cfg.Host, "port", cfg.Port)

	if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
		log.Fatalf("Server error: %v", err)
	}
}
