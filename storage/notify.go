package storage

import (
	"context"
	"encoding/json"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue"
	"github.com/redis/go-redis/v9"

	"github.com/i-Mobyl/cursor-todo-app/domain"
)

// RedisNotifier publishes change notices straight onto the updates channel.
type RedisNotifier struct {
	redis   *redis.Client
	channel string
}

func NewRedisNotifier(client *redis.Client, channel string) *RedisNotifier {
	return &RedisNotifier{redis: client, channel: channel}
}

func (n *RedisNotifier) Notify(ctx context.Context, ch domain.Change) error {
	data, err := json.Marshal(ch)
	if err != nil {
		return err
	}
	return n.redis.Publish(ctx, n.channel, data).Err()
}

type changeQueue interface {
	EnqueueMessage(ctx context.Context, content string, o *azqueue.EnqueueMessageOptions) (azqueue.EnqueueMessagesResponse, error)
}

// QueueNotifier enqueues change notices for the changefeed worker.
type QueueNotifier struct {
	queue changeQueue
}

// NewQueueNotifier creates a notifier for the named Azure Storage queue.
func NewQueueNotifier(connStr, queueName string) (*QueueNotifier, error) {
	q, err := azqueue.NewQueueClientFromConnectionString(connStr, queueName, nil)
	if err != nil {
		return nil, err
	}
	return &QueueNotifier{queue: q}, nil
}

func (n *QueueNotifier) Notify(ctx context.Context, ch domain.Change) error {
	data, err := json.Marshal(ch)
	if err != nil {
		return err
	}
	_, err = n.queue.EnqueueMessage(ctx, string(data), nil)
	return err
}
