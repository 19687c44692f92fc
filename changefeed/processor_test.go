package changefeed

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue"
	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"

	"github.com/i-Mobyl/cursor-todo-app/domain"
)

type fakeQueue struct {
	messages []*azqueue.DequeuedMessage
	deleted  []string
	err      error
}

func (f *fakeQueue) Dequeue(ctx context.Context) (*azqueue.DequeuedMessage, error) {
	if f.err != nil {
		return nil, f.err
	}
	if len(f.messages) == 0 {
		return nil, nil
	}
	msg := f.messages[0]
	f.messages = f.messages[1:]
	return msg, nil
}

func (f *fakeQueue) Delete(ctx context.Context, id, receipt string) error {
	f.deleted = append(f.deleted, id)
	return nil
}

type recordingEvicter struct{ owners []string }

func (r *recordingEvicter) Evict(ctx context.Context, owner string) {
	r.owners = append(r.owners, owner)
}

func message(id, text string, dequeued int64) *azqueue.DequeuedMessage {
	receipt := "r-" + id
	return &azqueue.DequeuedMessage{MessageID: &id, PopReceipt: &receipt, MessageText: &text, DequeueCount: &dequeued}
}

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	m, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	t.Cleanup(m.Close)
	rc := redis.NewClient(&redis.Options{Addr: m.Addr()})
	t.Cleanup(func() { _ = rc.Close() })
	return m, rc
}

func TestStepRelaysChange(t *testing.T) {
	_, rc := newRedis(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	sub := rc.Subscribe(ctx, "updates")
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	payload, _ := json.Marshal(domain.Change{Owner: "alice", Type: domain.TaskUpdated, TaskIDs: []string{"t1"}})
	q := &fakeQueue{messages: []*azqueue.DequeuedMessage{message("m1", string(payload), 1)}}
	cache := &recordingEvicter{}
	p := NewProcessor(q, cache, rc, "updates")

	handled, err := p.Step(ctx)
	if err != nil || !handled {
		t.Fatalf("step: handled=%v err=%v", handled, err)
	}
	msg, err := sub.ReceiveMessage(ctx)
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	var got domain.Change
	if err := json.Unmarshal([]byte(msg.Payload), &got); err != nil || got.Owner != "alice" {
		t.Fatalf("unexpected relay %q (%v)", msg.Payload, err)
	}
	if len(cache.owners) != 1 || cache.owners[0] != "alice" {
		t.Fatalf("expected alice evicted, got %v", cache.owners)
	}
	if len(q.deleted) != 1 || q.deleted[0] != "m1" {
		t.Fatalf("expected message deleted, got %v", q.deleted)
	}
}

func TestStepDropsPoisonMessages(t *testing.T) {
	_, rc := newRedis(t)
	hook := test.NewGlobal()
	defer hook.Reset()

	q := &fakeQueue{messages: []*azqueue.DequeuedMessage{
		message("bad-json", "{", 1),
		message("no-owner", `{"type":"task-created"}`, 1),
	}}
	p := NewProcessor(q, nil, rc, "updates")
	for i := 0; i < 2; i++ {
		if _, err := p.Step(context.Background()); err != nil {
			t.Fatalf("step: %v", err)
		}
	}
	if len(q.deleted) != 2 {
		t.Fatalf("expected poison messages deleted, got %v", q.deleted)
	}
	var warned int
	for _, e := range hook.AllEntries() {
		if e.Level == logrus.WarnLevel && e.Message == "dropping message" {
			warned++
		}
	}
	if warned != 2 {
		t.Fatalf("expected 2 warnings, got %d", warned)
	}
}

func TestStepRetriesThenGivesUp(t *testing.T) {
	m, rc := newRedis(t)
	m.Close()

	payload := `{"owner":"alice","type":"task-created"}`
	q := &fakeQueue{messages: []*azqueue.DequeuedMessage{
		message("retry", payload, 1),
		message("final", payload, MaxDequeueCount),
	}}
	p := NewProcessor(q, nil, rc, "updates")
	ctx := context.Background()

	if _, err := p.Step(ctx); err != nil {
		t.Fatalf("step: %v", err)
	}
	if len(q.deleted) != 0 {
		t.Fatalf("failed message should stay queued, deleted %v", q.deleted)
	}
	if _, err := p.Step(ctx); err != nil {
		t.Fatalf("step: %v", err)
	}
	if len(q.deleted) != 1 || q.deleted[0] != "final" {
		t.Fatalf("expected exhausted message deleted, got %v", q.deleted)
	}
}

func TestStepEmptyQueue(t *testing.T) {
	_, rc := newRedis(t)
	p := NewProcessor(&fakeQueue{}, nil, rc, "updates")
	handled, err := p.Step(context.Background())
	if err != nil || handled {
		t.Fatalf("expected idle step, got handled=%v err=%v", handled, err)
	}

	p = NewProcessor(&fakeQueue{err: errors.New("queue down")}, nil, rc, "updates")
	if _, err := p.Step(context.Background()); err == nil {
		t.Fatalf("expected dequeue error")
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	_, rc := newRedis(t)
	p := NewProcessor(&fakeQueue{}, nil, rc, "updates")
	p.idle = 10 * time.Millisecond
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not exit")
	}
}
