// Package changefeed relays change notices from the durable Azure queue onto
// the Redis updates channel that live subscriptions listen on.
package changefeed

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"github.com/i-Mobyl/cursor-todo-app/domain"
)

// MaxDequeueCount is how often a failing message is retried before it is
// dropped as poison.
const MaxDequeueCount = 5

var errPoison = errors.New("poison message")

// MessageQueue is the durable source of change notices.
type MessageQueue interface {
	Dequeue(ctx context.Context) (*azqueue.DequeuedMessage, error)
	Delete(ctx context.Context, id, receipt string) error
}

// Evicter drops an owner's cached task list.
type Evicter interface {
	Evict(ctx context.Context, owner string)
}

type Processor struct {
	queue   MessageQueue
	cache   Evicter
	redis   *redis.Client
	channel string
	idle    time.Duration
}

// NewProcessor builds a relay. cache may be nil.
func NewProcessor(queue MessageQueue, cache Evicter, client *redis.Client, channel string) *Processor {
	return &Processor{queue: queue, cache: cache, redis: client, channel: channel, idle: time.Second}
}

// Process evicts the owner's cached list and publishes the notice.
func (p *Processor) Process(ctx context.Context, ch domain.Change) error {
	if p.cache != nil {
		p.cache.Evict(ctx, ch.Owner)
	}
	data, err := json.Marshal(ch)
	if err != nil {
		return err
	}
	return p.redis.Publish(ctx, p.channel, data).Err()
}

// Run relays messages until ctx is done.
func (p *Processor) Run(ctx context.Context) {
	for ctx.Err() == nil {
		handled, err := p.Step(ctx)
		if err != nil {
			log.WithError(err).Error("dequeue failed")
		}
		if !handled || err != nil {
			select {
			case <-ctx.Done():
			case <-time.After(p.idle):
			}
		}
	}
}

// Step handles at most one message and reports whether one was found.
// Messages that fail to process stay on the queue for redelivery unless
// they have been dequeued MaxDequeueCount times.
func (p *Processor) Step(ctx context.Context) (bool, error) {
	msg, err := p.queue.Dequeue(ctx)
	if err != nil {
		return false, err
	}
	if msg == nil || msg.MessageID == nil || msg.PopReceipt == nil {
		return false, nil
	}
	entry := log.WithField("message", *msg.MessageID)

	err = p.handle(ctx, msg)
	switch {
	case err == nil:
	case errors.Is(err, errPoison):
		entry.WithError(err).Warn("dropping message")
	case msg.DequeueCount != nil && *msg.DequeueCount >= MaxDequeueCount:
		entry.WithError(err).Error("giving up on message")
	default:
		entry.WithError(err).Error("process message failed")
		return true, nil
	}
	if err := p.queue.Delete(ctx, *msg.MessageID, *msg.PopReceipt); err != nil {
		entry.WithError(err).Error("delete message failed")
	}
	return true, nil
}

func (p *Processor) handle(ctx context.Context, msg *azqueue.DequeuedMessage) error {
	if msg.MessageText == nil {
		return errPoison
	}
	var ch domain.Change
	if err := json.Unmarshal([]byte(*msg.MessageText), &ch); err != nil {
		return errors.Join(errPoison, err)
	}
	if ch.Owner == "" {
		return errPoison
	}
	log.WithFields(log.Fields{"owner": ch.Owner, "type": ch.Type}).Debug("relaying change")
	return p.Process(ctx, ch)
}
