package api

import (
	"context"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/i-Mobyl/cursor-todo-app/memstore"
	"github.com/i-Mobyl/cursor-todo-app/session"
	"github.com/i-Mobyl/cursor-todo-app/subscription"
)

func TestSessionsReuseViews(t *testing.T) {
	store := memstore.New()
	sessions := NewSessions(store, store, nil)
	ctx := context.Background()
	alice, _ := session.New("alice")

	v1, err := sessions.View(ctx, alice)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	v2, err := sessions.View(ctx, alice)
	if err != nil {
		t.Fatalf("open again: %v", err)
	}
	if v1 != v2 || sessions.Len() != 1 {
		t.Fatalf("expected one shared view")
	}

	sessions.Close()
	if _, err := sessions.View(ctx, alice); !errors.Is(err, errShuttingDown) {
		t.Fatalf("expected errShuttingDown, got %v", err)
	}
	if sessions.Len() != 0 {
		t.Fatalf("expected no open views after close")
	}
}

func TestSessionsOpenFailureIsNotCached(t *testing.T) {
	store := memstore.New()
	sessions := NewSessions(store, store, nil)
	if _, err := sessions.View(context.Background(), session.Session{}); !errors.Is(err, session.ErrNoSession) {
		t.Fatalf("expected ErrNoSession, got %v", err)
	}
	if sessions.Len() != 0 {
		t.Fatalf("failed open must not register a view")
	}
}

func TestEvictIdleReleasesSubscriptions(t *testing.T) {
	store := memstore.New()
	m, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	t.Cleanup(m.Close)
	rc := redis.NewClient(&redis.Options{Addr: m.Addr()})
	t.Cleanup(func() { _ = rc.Close() })
	hub := subscription.NewHub(rc, "updates", store, nil)

	sessions := NewSessions(store, hub, nil)
	t.Cleanup(sessions.Close)
	clock := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	sessions.now = func() time.Time { return clock }
	ctx := context.Background()
	alice, _ := session.New("alice")
	bob, _ := session.New("bob")

	if _, err := sessions.View(ctx, alice); err != nil {
		t.Fatalf("open alice: %v", err)
	}
	bobView, err := sessions.View(ctx, bob)
	if err != nil {
		t.Fatalf("open bob: %v", err)
	}
	if hub.Subscribers("alice") != 1 || hub.Subscribers("bob") != 1 {
		t.Fatalf("expected one subscription per owner")
	}

	clock = clock.Add(10 * time.Minute)
	if _, err := sessions.View(ctx, bob); err != nil {
		t.Fatalf("touch bob: %v", err)
	}
	if n := sessions.EvictIdle(5 * time.Minute); n != 1 {
		t.Fatalf("expected alice evicted, closed %d", n)
	}
	if hub.Subscribers("alice") != 0 || hub.Subscribers("bob") != 1 || sessions.Len() != 1 {
		t.Fatalf("unexpected subscriptions alice=%d bob=%d views=%d", hub.Subscribers("alice"), hub.Subscribers("bob"), sessions.Len())
	}

	// an open stream or an unfinished sort keeps the view
	clock = clock.Add(10 * time.Minute)
	ch := bobView.Watch()
	if n := sessions.EvictIdle(5 * time.Minute); n != 0 {
		t.Fatalf("watched view evicted")
	}
	bobView.Unwatch(ch)
	if err := bobView.BeginSort(); err != nil {
		t.Fatalf("begin sort: %v", err)
	}
	if n := sessions.EvictIdle(5 * time.Minute); n != 0 {
		t.Fatalf("sorting view evicted")
	}
	if err := bobView.DoneSorting(ctx); err != nil {
		t.Fatalf("done sorting: %v", err)
	}
	if n := sessions.EvictIdle(5 * time.Minute); n != 1 {
		t.Fatalf("expected bob evicted, closed %d", n)
	}
	if hub.Subscribers("bob") != 0 || sessions.Len() != 0 {
		t.Fatalf("bob's subscription not released")
	}

	reopened, err := sessions.View(ctx, alice)
	if err != nil {
		t.Fatalf("reopen alice: %v", err)
	}
	if reopened.Sorting() || hub.Subscribers("alice") != 1 {
		t.Fatalf("expected a fresh subscription for alice")
	}
}
