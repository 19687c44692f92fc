package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"github.com/i-Mobyl/cursor-todo-app/changefeed"
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
	log.SetFormatter(&log.JSONFormatter{})
	log.Info("changefeed worker starting")

	if err := cfg.RequireStorage(); err != nil {
		log.Fatal(err)
	}
	if err := cfg.RequireRedis(); err != nil {
		log.Fatal(err)
	}
	redisOpts, err := cfg.RedisOptions()
	if err != nil {
		log.Fatalf("redis: %v", err)
	}
	rc := redis.NewClient(redisOpts)
	defer rc.Close()

	queue, err := changefeed.NewQueue(cfg.StorageConnectionString, cfg.ChangeQueue)
	if err != nil {
		log.Fatalf("queue client: %v", err)
	}
	tables, err := storage.New(cfg.StorageConnectionString, cfg.TasksTable, nil, log.StandardLogger())
	if err != nil {
		log.Fatalf("storage: %v", err)
	}
	cache := storage.NewCache(tables, rc, cfg.CacheTTL)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	changefeed.NewProcessor(queue, cache, rc, cfg.UpdatesChannel).Run(ctx)
	log.Info("changefeed worker stopped")
}
