package api

import (
	"context"
	"errors"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/i-Mobyl/cursor-todo-app/listview"
	"github.com/i-Mobyl/cursor-todo-app/session"
)

var errShuttingDown = errors.New("server shutting down")

type openView struct {
	view     *listview.View
	lastUsed time.Time
}

// Sessions keeps one open list view per signed-in user until it goes idle.
type Sessions struct {
	store  listview.Store
	feed   listview.Feed
	logger *log.Logger
	now    func() time.Time

	mu     sync.Mutex
	views  map[string]*openView
	closed bool
}

func NewSessions(store listview.Store, feed listview.Feed, logger *log.Logger) *Sessions {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Sessions{
		store:  store,
		feed:   feed,
		logger: logger,
		now:    time.Now,
		views:  make(map[string]*openView),
	}
}

// View returns sess's list view, opening it on first use. The view outlives
// the request that opened it.
func (s *Sessions) View(ctx context.Context, sess session.Session) (*listview.View, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, errShuttingDown
	}
	if ov, ok := s.views[sess.UserID]; ok {
		ov.lastUsed = s.now()
		return ov.view, nil
	}
	v, err := listview.Open(context.WithoutCancel(ctx), sess, s.store, s.feed, s.logger)
	if err != nil {
		return nil, err
	}
	s.views[sess.UserID] = &openView{view: v, lastUsed: s.now()}
	s.logger.WithField("owner", sess.UserID).Debug("list view opened")
	return v, nil
}

// Len reports how many views are open.
func (s *Sessions) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.views)
}

// EvictIdle closes views unused for at least ttl. Views with an open stream
// or an unfinished sort are kept. It returns the number of views closed.
func (s *Sessions) EvictIdle(ttl time.Duration) int {
	s.mu.Lock()
	cutoff := s.now().Add(-ttl)
	var idle []*listview.View
	for owner, ov := range s.views {
		if ov.lastUsed.After(cutoff) || ov.view.Watchers() > 0 || ov.view.Sorting() {
			continue
		}
		delete(s.views, owner)
		idle = append(idle, ov.view)
	}
	s.mu.Unlock()

	for _, v := range idle {
		v.Close()
		s.logger.WithField("owner", v.Owner()).Debug("list view closed")
	}
	return len(idle)
}

// RunEviction calls EvictIdle every interval until ctx is done.
func (s *Sessions) RunEviction(ctx context.Context, ttl, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.EvictIdle(ttl)
		}
	}
}

// Close closes every view and refuses new ones.
func (s *Sessions) Close() {
	s.mu.Lock()
	views := s.views
	s.views = map[string]*openView{}
	s.closed = true
	s.mu.Unlock()
	for _, ov := range views {
		ov.view.Close()
	}
}
