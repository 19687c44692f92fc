package changefeed

import (
	"context"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue"
)

// Queue wraps the Azure Storage queue carrying change notices.
type Queue struct {
	client *azqueue.QueueClient
}

func NewQueue(connStr, name string) (*Queue, error) {
	client, err := azqueue.NewQueueClientFromConnectionString(connStr, name, nil)
	if err != nil {
		return nil, err
	}
	return &Queue{client: client}, nil
}

// Dequeue retrieves a single message, or nil when the queue is empty.
func (q *Queue) Dequeue(ctx context.Context) (*azqueue.DequeuedMessage, error) {
	resp, err := q.client.DequeueMessage(ctx, nil)
	if err != nil {
		return nil, err
	}
	if len(resp.Messages) == 0 {
		return nil, nil
	}
	return resp.Messages[0], nil
}

// Delete removes a handled message from the queue.
func (q *Queue) Delete(ctx context.Context, id, receipt string) error {
	_, err := q.client.DeleteMessage(ctx, id, receipt, nil)
	return err
}
