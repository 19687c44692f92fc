package storage

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/i-Mobyl/cursor-todo-app/domain"
)

type backend interface {
	List(ctx context.Context, owner string) ([]domain.Task, error)
	Create(ctx context.Context, owner string, nt domain.NewTask) (domain.Task, error)
	Update(ctx context.Context, owner, id string, p domain.Patch) error
	Delete(ctx context.Context, owner, id string) error
	BatchUpdate(ctx context.Context, owner string, changes map[string]domain.Patch) error
}

// Cache wraps a task store with a Redis read-through cache for List.
// Every write through the cache evicts the owner's cached list.
type Cache struct {
	base  backend
	redis *redis.Client
	ttl   time.Duration
}

// NewCache creates a caching wrapper using the provided Redis client and TTL.
// A nil client or zero TTL disables caching.
func NewCache(base backend, client *redis.Client, ttl time.Duration) *Cache {
	if base == nil {
		panic("storage.NewCache: base store is nil")
	}
	if ttl < 0 {
		ttl = 0
	}
	return &Cache{base: base, redis: client, ttl: ttl}
}

func (c *Cache) List(ctx context.Context, owner string) ([]domain.Task, error) {
	if tasks, ok := c.load(ctx, owner); ok {
		return tasks, nil
	}
	tasks, err := c.base.List(ctx, owner)
	if err != nil {
		return nil, err
	}
	c.store(ctx, owner, tasks)
	return tasks, nil
}

func (c *Cache) Create(ctx context.Context, owner string, nt domain.NewTask) (domain.Task, error) {
	t, err := c.base.Create(ctx, owner, nt)
	if err != nil {
		return domain.Task{}, err
	}
	c.Evict(ctx, owner)
	return t, nil
}

func (c *Cache) Update(ctx context.Context, owner, id string, p domain.Patch) error {
	if err := c.base.Update(ctx, owner, id, p); err != nil {
		return err
	}
	c.Evict(ctx, owner)
	return nil
}

func (c *Cache) Delete(ctx context.Context, owner, id string) error {
	if err := c.base.Delete(ctx, owner, id); err != nil {
		return err
	}
	c.Evict(ctx, owner)
	return nil
}

func (c *Cache) BatchUpdate(ctx context.Context, owner string, changes map[string]domain.Patch) error {
	if err := c.base.BatchUpdate(ctx, owner, changes); err != nil {
		return err
	}
	c.Evict(ctx, owner)
	return nil
}

// Evict drops owner's cached list.
func (c *Cache) Evict(ctx context.Context, owner string) {
	if c.redis == nil {
		return
	}
	_ = c.redis.Del(ctx, TasksCacheKey(owner)).Err()
}

func (c *Cache) load(ctx context.Context, owner string) ([]domain.Task, bool) {
	if c.redis == nil {
		return nil, false
	}
	data, err := c.redis.Get(ctx, TasksCacheKey(owner)).Bytes()
	if err != nil {
		if err != redis.Nil {
			// On redis errors fall back to the table without failing.
			_ = c.redis.Del(ctx, TasksCacheKey(owner)).Err()
		}
		return nil, false
	}
	var tasks []domain.Task
	if err := json.Unmarshal(data, &tasks); err != nil {
		_ = c.redis.Del(ctx, TasksCacheKey(owner)).Err()
		return nil, false
	}
	return tasks, true
}

func (c *Cache) store(ctx context.Context, owner string, tasks []domain.Task) {
	if c.redis == nil || c.ttl == 0 {
		return
	}
	data, err := json.Marshal(tasks)
	if err != nil {
		return
	}
	_ = c.redis.Set(ctx, TasksCacheKey(owner), data, c.ttl).Err()
}

// TasksCacheKey is the Redis key holding owner's cached task list.
func TasksCacheKey(owner string) string {
	return "tasks:" + owner
}
