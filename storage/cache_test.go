package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/google/go-cmp/cmp"
	"github.com/redis/go-redis/v9"

	"github.com/i-Mobyl/cursor-todo-app/domain"
)

type stubBackend struct {
	listFn func(ctx context.Context, owner string) ([]domain.Task, error)
	writes int
	fail   error
}

func (s *stubBackend) List(ctx context.Context, owner string) ([]domain.Task, error) {
	if s.listFn == nil {
		return nil, errors.New("unexpected List call")
	}
	return s.listFn(ctx, owner)
}

func (s *stubBackend) Create(ctx context.Context, owner string, nt domain.NewTask) (domain.Task, error) {
	s.writes++
	return domain.Task{ID: "new", Owner: owner, Text: nt.Text}, s.fail
}

func (s *stubBackend) Update(ctx context.Context, owner, id string, p domain.Patch) error {
	s.writes++
	return s.fail
}

func (s *stubBackend) Delete(ctx context.Context, owner, id string) error {
	s.writes++
	return s.fail
}

func (s *stubBackend) BatchUpdate(ctx context.Context, owner string, changes map[string]domain.Patch) error {
	s.writes++
	return s.fail
}

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestCacheListMissThenHit(t *testing.T) {
	mr, client := newRedis(t)
	ctx := context.Background()
	expected := []domain.Task{{ID: "t1", Owner: "alice", Text: "Write code", CreatedAt: time.Unix(10, 0).UTC()}}

	var calls int
	cache := NewCache(&stubBackend{
		listFn: func(ctx context.Context, owner string) ([]domain.Task, error) {
			calls++
			if owner != "alice" {
				t.Fatalf("unexpected owner: %s", owner)
			}
			return domain.CloneAll(expected), nil
		},
	}, client, time.Minute)

	for i := 0; i < 2; i++ {
		tasks, err := cache.List(ctx, "alice")
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		if diff := cmp.Diff(expected, tasks); diff != "" {
			t.Fatalf("unexpected tasks (-want +got):\n%s", diff)
		}
	}
	if calls != 1 {
		t.Fatalf("expected 1 backend call, got %d", calls)
	}
	if ttl := mr.TTL(TasksCacheKey("alice")); ttl <= 0 || ttl > time.Minute {
		t.Fatalf("unexpected TTL: %v", ttl)
	}
}

func TestCacheWritesEvict(t *testing.T) {
	mr, client := newRedis(t)
	ctx := context.Background()
	base := &stubBackend{listFn: func(ctx context.Context, owner string) ([]domain.Task, error) {
		return []domain.Task{}, nil
	}}
	cache := NewCache(base, client, time.Minute)

	writes := []func() error{
		func() error { _, err := cache.Create(ctx, "alice", domain.NewTask{Text: "x"}); return err },
		func() error { return cache.Update(ctx, "alice", "t1", domain.OrderPatch(0)) },
		func() error { return cache.Delete(ctx, "alice", "t1") },
		func() error { return cache.BatchUpdate(ctx, "alice", map[string]domain.Patch{"t1": domain.OrderPatch(0)}) },
	}
	for i, write := range writes {
		if _, err := cache.List(ctx, "alice"); err != nil {
			t.Fatalf("list: %v", err)
		}
		if !mr.Exists(TasksCacheKey("alice")) {
			t.Fatalf("write %d: expected cached list", i)
		}
		if err := write(); err != nil {
			t.Fatalf("write %d: %v", i, err)
		}
		if mr.Exists(TasksCacheKey("alice")) {
			t.Fatalf("write %d: expected eviction", i)
		}
	}
}

func TestCacheFailedWriteKeepsEntry(t *testing.T) {
	mr, client := newRedis(t)
	ctx := context.Background()
	base := &stubBackend{listFn: func(ctx context.Context, owner string) ([]domain.Task, error) {
		return []domain.Task{}, nil
	}}
	cache := NewCache(base, client, time.Minute)
	if _, err := cache.List(ctx, "alice"); err != nil {
		t.Fatalf("list: %v", err)
	}
	base.fail = errors.New("table down")
	if err := cache.Delete(ctx, "alice", "t1"); err == nil {
		t.Fatalf("expected error")
	}
	if !mr.Exists(TasksCacheKey("alice")) {
		t.Fatalf("failed write should not evict")
	}
}

func TestCacheCorruptEntryFallsBack(t *testing.T) {
	mr, client := newRedis(t)
	if err := mr.Set(TasksCacheKey("alice"), "{not json"); err != nil {
		t.Fatalf("seed: %v", err)
	}
	cache := NewCache(&stubBackend{listFn: func(ctx context.Context, owner string) ([]domain.Task, error) {
		return []domain.Task{{ID: "t1"}}, nil
	}}, client, 0)
	tasks, err := cache.List(context.Background(), "alice")
	if err != nil || len(tasks) != 1 {
		t.Fatalf("expected fallback to backend, got %v, %v", tasks, err)
	}
	if mr.Exists(TasksCacheKey("alice")) {
		t.Fatalf("corrupt entry should be removed")
	}
}

func TestCacheWithoutRedis(t *testing.T) {
	var calls int
	cache := NewCache(&stubBackend{listFn: func(ctx context.Context, owner string) ([]domain.Task, error) {
		calls++
		return nil, nil
	}}, nil, time.Minute)
	for i := 0; i < 2; i++ {
		if _, err := cache.List(context.Background(), "alice"); err != nil {
			t.Fatalf("list: %v", err)
		}
	}
	if calls != 2 {
		t.Fatalf("expected every call to reach backend, got %d", calls)
	}
}
