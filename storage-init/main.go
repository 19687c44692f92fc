package main

import (
	"context"

	log "github.com/sirupsen/logrus"

	"github.com/i-Mobyl/cursor-todo-app/config"
	"github.com/i-Mobyl/cursor-todo-app/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.Debug {
		log.SetLevel(log.DebugLevel)
	}
	log.Info("storage init starting")

	if cfg.StorageConnectionString == "" {
		log.Fatal("missing STORAGE_CONNECTION_STRING")
	}

	ctx := context.Background()
	if err := storage.EnsureTables(ctx, cfg.StorageConnectionString, []string{cfg.TasksTable}); err != nil {
		log.Fatalf("create tables: %v", err)
	}
	if err := storage.EnsureQueues(ctx, cfg.StorageConnectionString, []string{cfg.ChangeQueue}); err != nil {
		log.Fatalf("create queues: %v", err)
	}
	log.Info("storage init complete")
}
