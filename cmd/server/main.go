package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"campuscms/internal/config"
	"campuscms/internal/db"
	internalhttp "campuscms/internal/http"
	"campuscms/internal/repository"
	"campuscms/internal/seed"
	"campuscms/internal/upload"
)

func main() {
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db connection failed: %v", err)
	}
	defer pool.Close()

	if _, err := os.Stat("schema.sql"); err == nil {
		if err := db.RunMigrations(ctx, pool, "schema.sql"); err != nil {
			log.Fatalf("migrations failed: %v", err)
		}
	}

	store := repository.NewStore(pool)

	if cfg.SeedPath != "" {
		file, err := seed.Load(cfg.SeedPath)
		if err != nil {
			log.Fatalf("seed load failed: %v", err)
		}
		if err := seed.Apply(ctx, store, file); err != nil {
			log.Fatalf("seed apply failed: %v", err)
		}
	}

	var redisClient *redis.Client
	if cfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		if err := redisClient.Ping(pingCtx).Err(); err != nil {
			cancel()
			log.Fatalf("redis ping failed: %v", err)
		}
		cancel()
		defer func() {
			if err := redisClient.Close(); err != nil {
				log.Printf("redis close error: %v", err)
			}
		}()
	}

	uploads, err := upload.NewStore(cfg.UploadDir, cfg.PublicBaseURL)
	if err != nil {
		log.Fatalf("upload store failed: %v", err)
	}

	server := internalhttp.NewServer(cfg, store, uploads, redisClient)

	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           server.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Printf("campuscms listening on %s", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("http server error: %v", err)
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}
