// Package session carries the authenticated identity explicitly instead of
// through ambient global state.
package session

import (
	"context"
	"errors"
	"strings"
)

// ErrNoSession means no authenticated identity is available.
var ErrNoSession = errors.New("no authenticated session")

// Session identifies the authenticated owner of the task list.
type Session struct {
	UserID string
}

// New validates userID and returns a Session for it.
func New(userID string) (Session, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return Session{}, ErrNoSession
	}
	return Session{UserID: userID}, nil
}

type ctxKey struct{}

// NewContext returns a copy of ctx carrying s.
func NewContext(ctx context.Context, s Session) context.Context {
	return context.WithValue(ctx, ctxKey{}, s)
}

// FromContext extracts the session stored by NewContext.
func FromContext(ctx context.Context) (Session, error) {
	s, ok := ctx.Value(ctxKey{}).(Session)
	if !ok || s.UserID == "" {
		return Session{}, ErrNoSession
	}
	return s, nil
}
