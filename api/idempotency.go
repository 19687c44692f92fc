package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"github.com/i-Mobyl/cursor-todo-app/session"
)

// HeaderIdempotencyKey lets clients retry a create without adding the task twice.
const HeaderIdempotencyKey = "Idempotency-Key"

// Deduper records idempotency keys per user.
type Deduper interface {
	Add(ctx context.Context, userID, key string) (bool, error)
	Remove(ctx context.Context, userID, key string) error
}

// RedisDeduper stores seen idempotency keys in Redis so every API instance
// agrees on which creates were already applied.
type RedisDeduper struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisDeduper creates a deduper using the provided Redis client and TTL.
func NewRedisDeduper(client *redis.Client, ttl time.Duration) *RedisDeduper {
	return &RedisDeduper{client: client, ttl: ttl}
}

func (r *RedisDeduper) key(userID, key string) string {
	return fmt.Sprintf("idem:%s:%s", userID, key)
}

// Add records the key if it does not already exist. It returns true when the
// key was newly added.
func (r *RedisDeduper) Add(ctx context.Context, userID, key string) (bool, error) {
	return r.client.SetNX(ctx, r.key(userID, key), 1, r.ttl).Result()
}

// Remove forgets a key so a failed request can be retried.
func (r *RedisDeduper) Remove(ctx context.Context, userID, key string) error {
	return r.client.Del(ctx, r.key(userID, key)).Err()
}

// Idempotent rejects a repeated Idempotency-Key with 409. Keys are released
// again when the wrapped handler does not succeed. Requests without the
// header pass through untouched.
func Idempotent(d Deduper, logger *log.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := c.Request().Header.Get(HeaderIdempotencyKey)
			if d == nil || key == "" {
				return next(c)
			}
			ctx := c.Request().Context()
			sess, err := session.FromContext(ctx)
			if err != nil {
				setErrorStage(c, "auth")
				return c.String(http.StatusUnauthorized, err.Error())
			}
			added, err := d.Add(ctx, sess.UserID, key)
			if err != nil {
				logger.WithError(err).Warn("idempotency check failed")
				return next(c)
			}
			if !added {
				setErrorStage(c, "duplicate")
				return c.String(http.StatusConflict, "duplicate request")
			}
			err = next(c)
			if err != nil || c.Response().Status >= http.StatusBadRequest {
				if rerr := d.Remove(context.WithoutCancel(ctx), sess.UserID, key); rerr != nil {
					logger.WithError(rerr).WithField("key", key).Warn("release idempotency key failed")
				}
			}
			return err
		}
	}
}
