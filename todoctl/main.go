package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/i-Mobyl/cursor-todo-app/config"
	"github.com/i-Mobyl/cursor-todo-app/domain"
	"github.com/i-Mobyl/cursor-todo-app/listview"
	"github.com/i-Mobyl/cursor-todo-app/memstore"
	"github.com/i-Mobyl/cursor-todo-app/storage"
)

var Version = "dev"

// backend is the store and live query a command works against.
type backend interface {
	listview.Store
	List(ctx context.Context, owner string) ([]domain.Task, error)
}

type connectFunc func(memory bool, logger *log.Logger) (backend, listview.Feed, error)

func main() {
	if err := newRootCmd(connect).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd(connect connectFunc) *cobra.Command {
	a := &app{connect: connect, logger: log.New()}
	a.logger.SetOutput(os.Stderr)
	a.logger.SetLevel(log.WarnLevel)

	rootCmd := &cobra.Command{
		Use:           "todoctl",
		Short:         "Manage a user's task list from the command line",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if a.verbose {
				a.logger.SetLevel(log.DebugLevel)
			}
			if strings.TrimSpace(a.owner) == "" {
				return fmt.Errorf("--owner (or TODO_OWNER) is required")
			}
			return nil
		},
	}
	rootCmd.PersistentFlags().StringVarP(&a.owner, "owner", "o", os.Getenv("TODO_OWNER"), "User whose tasks to manage")
	rootCmd.PersistentFlags().BoolVar(&a.memory, "memory", false, "Use an in-process store instead of Table Storage")
	rootCmd.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "Debug logging")

	rootCmd.AddCommand(listCmd(a))
	rootCmd.AddCommand(addCmd(a))
	rootCmd.AddCommand(toggleCmd(a))
	rootCmd.AddCommand(editCmd(a))
	rootCmd.AddCommand(dueCmd(a))
	rootCmd.AddCommand(deleteCmd(a))
	rootCmd.AddCommand(moveCmd(a))
	rootCmd.AddCommand(renumberCmd(a))
	rootCmd.AddCommand(tokenCmd(a))
	return rootCmd
}

var memory = memstore.New()

// connect wires the table store from the environment. Writes evict the
// Redis cache and announce changes when Redis is configured.
func connect(inMemory bool, logger *log.Logger) (backend, listview.Feed, error) {
	if inMemory {
		return memory, memory, nil
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	if err := cfg.RequireStorage(); err != nil {
		return nil, nil, err
	}

	var rc *redis.Client
	var notifier storage.Notifier
	if cfg.RedisConnectionString != "" {
		opts, err := cfg.RedisOptions()
		if err != nil {
			return nil, nil, err
		}
		rc = redis.NewClient(opts)
	}
	switch {
	case cfg.Notifier == config.NotifyQueue:
		if notifier, err = storage.NewQueueNotifier(cfg.StorageConnectionString, cfg.ChangeQueue); err != nil {
			return nil, nil, err
		}
	case rc != nil:
		notifier = storage.NewRedisNotifier(rc, cfg.UpdatesChannel)
	}

	tables, err := storage.New(cfg.StorageConnectionString, cfg.TasksTable, notifier, logger)
	if err != nil {
		return nil, nil, err
	}
	store := storage.NewCache(tables, rc, cfg.CacheTTL)
	return store, listFeed{store}, nil
}

// listFeed delivers a single snapshot; a command lives for one action.
type listFeed struct {
	store interface {
		List(ctx context.Context, owner string) ([]domain.Task, error)
	}
}

func (f listFeed) Subscribe(ctx context.Context, owner string, fn func([]domain.Task)) (func(), error) {
	tasks, err := f.store.List(ctx, owner)
	if err != nil {
		return nil, err
	}
	fn(tasks)
	return func() {}, nil
}
