// Package subscription serves owner-filtered live task queries on top of the
// Redis updates channel.
package subscription

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"github.com/i-Mobyl/cursor-todo-app/domain"
)

// Lister fetches an owner's tasks.
type Lister interface {
	List(ctx context.Context, owner string) ([]domain.Task, error)
}

type evicter interface {
	Evict(ctx context.Context, owner string)
}

// Hub fans change notices out to per-owner subscribers. Each subscriber
// receives the owner's full list on subscribe and after every change.
type Hub struct {
	redis   *redis.Client
	channel string
	store   Lister
	logger  *log.Logger

	// deliverMu orders the initial delivery of a new subscriber against
	// refreshes triggered by notices.
	deliverMu sync.Mutex

	mu   sync.Mutex
	next int
	subs map[string]map[int]func([]domain.Task)
}

func NewHub(client *redis.Client, channel string, store Lister, logger *log.Logger) *Hub {
	if store == nil {
		panic("subscription.NewHub: store is nil")
	}
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Hub{
		redis:   client,
		channel: channel,
		store:   store,
		logger:  logger,
		subs:    make(map[string]map[int]func([]domain.Task)),
	}
}

// Subscribe registers fn for owner's list and delivers the current list
// before returning. The returned func cancels the subscription.
func (h *Hub) Subscribe(ctx context.Context, owner string, fn func([]domain.Task)) (func(), error) {
	if owner == "" {
		return nil, errors.New("subscription: empty owner")
	}
	h.deliverMu.Lock()
	defer h.deliverMu.Unlock()

	tasks, err := h.store.List(ctx, owner)
	if err != nil {
		return nil, err
	}

	h.mu.Lock()
	id := h.next
	h.next++
	if h.subs[owner] == nil {
		h.subs[owner] = make(map[int]func([]domain.Task))
	}
	h.subs[owner][id] = fn
	h.mu.Unlock()

	fn(domain.CloneAll(tasks))

	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs[owner], id)
			if len(h.subs[owner]) == 0 {
				delete(h.subs, owner)
			}
			h.mu.Unlock()
		})
	}, nil
}

// Subscribers reports how many subscriptions owner has.
func (h *Hub) Subscribers(owner string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[owner])
}

// Run consumes the updates channel until ctx is done, reconnecting when the
// pub/sub channel closes.
func (h *Hub) Run(ctx context.Context) {
	for {
		sub := h.redis.Subscribe(ctx, h.channel)
		ch := sub.Channel()
	recv:
		for {
			select {
			case <-ctx.Done():
				_ = sub.Close()
				return
			case msg, ok := <-ch:
				if !ok {
					break recv
				}
				h.handle(ctx, msg.Payload)
			}
		}
		_ = sub.Close()
		if ctx.Err() != nil {
			return
		}
		h.logger.Error("updates channel closed, reconnecting")
		time.Sleep(time.Second)
	}
}

func (h *Hub) handle(ctx context.Context, payload string) {
	var change domain.Change
	if err := json.Unmarshal([]byte(payload), &change); err != nil {
		h.logger.WithError(err).Warn("unable to parse change notice")
		return
	}
	if change.Owner == "" {
		return
	}
	h.Refresh(ctx, change.Owner)
}

// Refresh refetches owner's list and delivers it to every subscriber of that
// owner. Owners without subscribers are skipped.
func (h *Hub) Refresh(ctx context.Context, owner string) {
	if h.Subscribers(owner) == 0 {
		return
	}
	h.deliverMu.Lock()
	defer h.deliverMu.Unlock()

	if e, ok := h.store.(evicter); ok {
		e.Evict(ctx, owner)
	}
	tasks, err := h.store.List(ctx, owner)
	if err != nil {
		h.logger.WithField("owner", owner).WithError(err).Error("refresh tasks failed")
		return
	}

	h.mu.Lock()
	fns := make([]func([]domain.Task), 0, len(h.subs[owner]))
	for _, fn := range h.subs[owner] {
		fns = append(fns, fn)
	}
	h.mu.Unlock()

	for _, fn := range fns {
		fn(domain.CloneAll(tasks))
	}
}
