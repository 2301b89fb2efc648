package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"dqa360-backend/internal/api"
	"dqa360-backend/internal/config"
	"dqa360-backend/internal/crypto"
	"dqa360-backend/internal/database"
	"dqa360-backend/internal/datastore"
	"dqa360-backend/internal/server"
	"dqa360-backend/internal/services/assessment"
	"dqa360-backend/internal/services/backup"
	"dqa360-backend/internal/services/bootstrap"
	"dqa360-backend/internal/services/metadata"
	"dqa360-backend/internal/services/profiles"
	"dqa360-backend/internal/services/scheduler"
	"dqa360-backend/internal/services/tasks"
	"dqa360-backend/internal/services/toolset"
)

func main() {
	cfg := config.Load()

	if err := crypto.InitEncryption(); err != nil {
		log.Fatalf("FATAL: Encryption initialization failed: %v\nProfiles cannot be saved without encryption.", err)
	}

	db, err := database.Init()
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer database.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	apiClient := api.NewClient(cfg.Dhis2BaseURL, cfg.Dhis2Username, cfg.Dhis2Password)
	store := datastore.NewClient(cfg.Dhis2BaseURL, cfg.Dhis2Username, cfg.Dhis2Password)

	repo := assessment.NewRepository(store, cfg)
	builder := assessment.NewBuilder(cfg)
	factory := metadata.NewService(ctx, apiClient, store, cfg)
	boot := bootstrap.NewService(apiClient)
	toolsetSvc := toolset.NewService(apiClient, factory, boot, repo, cfg)
	backups := backup.NewService(store)
	taskSvc := tasks.NewService(db)
	profileSvc := profiles.NewService(db)

	schedulerSvc := scheduler.NewService(db, ctx, repo, backups, store, cfg.Namespace, cfg.BackupNamespace)
	if err := schedulerSvc.Start(); err != nil {
		log.Fatalf("Failed to start scheduler: %v", err)
	}
	defer schedulerSvc.Stop()

	srv := server.New(cfg, repo, builder, factory, toolsetSvc, backups, taskSvc, profileSvc, schedulerSvc)

	errCh := make(chan error, 1)
	go func() {
		log.Printf("Listening on %s", cfg.ListenAddr)
		errCh <- srv.Run(cfg.ListenAddr)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		log.Fatalf("Server failed: %v", err)
	case sig := <-sigCh:
		log.Printf("Received %s, shutting down", sig)
	}
}
