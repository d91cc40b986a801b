package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"carbonpress/api/internal/app"
	"carbonpress/api/internal/blob"
	"carbonpress/api/internal/config"
	"carbonpress/api/internal/draft"
	"carbonpress/api/internal/draftstore"
	"carbonpress/api/internal/store"
)

func main() {
	cfg := config.Load()
	ctx := context.Background()

	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("database connection failed: %v", err)
	}
	defer db.Close()

	if err := store.ApplyMigrations(ctx, db, cfg.MigrationsDir); err != nil {
		log.Fatalf("migrations failed: %v", err)
	}
	postStore := store.NewPostgresStore(db)

	objectStore, err := blob.New(cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioBucket, cfg.PublicBaseURL, cfg.MinioUseSSL)
	if err != nil {
		log.Fatalf("object store setup failed: %v", err)
	}
	if err := objectStore.EnsureBucket(ctx); err != nil {
		log.Fatalf("bucket setup failed: %v", err)
	}

	snapshotStore, err := draftstore.NewRedisStore(cfg.RedisURL, cfg.MaxStoredDrafts)
	if err != nil {
		log.Fatalf("redis connection failed: %v", err)
	}
	defer snapshotStore.Close()

	manager := draft.NewManager(objectStore, snapshotStore, draft.Options{
		MaxUploadBytes:     cfg.MaxUploadBytes,
		AcceptedMediaTypes: cfg.AcceptedMediaTypes,
		UploadConcurrency:  int64(cfg.UploadConcurrency),
		AutosaveInterval:   cfg.AutosaveInterval,
	})

	service := app.New(cfg, postStore, manager)
	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Printf("Carbonpress API listening on %s", cfg.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}
