package kafka

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeReader serves queued messages, then blocks until the context ends.
type fakeReader struct {
	mu        sync.Mutex
	queue     []kafka.Message
	committed []int64
	closed    bool
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	if len(r.queue) > 0 {
		msg := r.queue[0]
		r.queue = r.queue[1:]
		r.mu.Unlock()
		return msg, nil
	}
	r.mu.Unlock()
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *fakeReader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

func (r *fakeReader) commits() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int64(nil), r.committed...)
}

func eventMessage(t *testing.T, offset int64, coffeeID string) kafka.Message {
	t.Helper()
	e, err := NewEvent("review.submitted", coffeeID, "coffee", "coffeebox", reviewPayload{CoffeeID: coffeeID, Rating: 5})
	require.NoError(t, err)
	msg, err := BuildMessage(context.Background(), "coffeebox.review.submitted", e)
	require.NoError(t, err)
	msg.Offset = offset
	return msg
}

func runConsumer(t *testing.T, c *Consumer, r *fakeReader, wantCommits int) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Start(ctx) }()

	assert.Eventually(t, func() bool { return len(r.commits()) >= wantCommits }, 2*time.Second, 5*time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("consumer did not stop")
	}
}

func TestConsumer_HandlesAndCommits(t *testing.T) {
	r := &fakeReader{queue: []kafka.Message{eventMessage(t, 1, "shop-1"), eventMessage(t, 2, "shop-2")}}

	var mu sync.Mutex
	var seen []string
	handler := func(_ context.Context, e *Event) error {
		mu.Lock()
		seen = append(seen, e.AggregateID)
		mu.Unlock()
		return nil
	}

	c := NewConsumerWithReader(r, "coffeebox.review.submitted", "coffeebox-reconciler", handler, testLogger())
	runConsumer(t, c, r, 2)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"shop-1", "shop-2"}, seen)
	assert.Equal(t, []int64{1, 2}, r.commits())
	assert.True(t, r.closed)
}

func TestConsumer_UndecodableMessageCommitted(t *testing.T) {
	r := &fakeReader{queue: []kafka.Message{{Offset: 7, Value: []byte("garbage")}}}
	called := false
	c := NewConsumerWithReader(r, "t", "g", func(context.Context, *Event) error {
		called = true
		return nil
	}, testLogger())

	runConsumer(t, c, r, 1)
	assert.False(t, called)
	assert.Equal(t, []int64{7}, r.commits())
}

func TestConsumer_RetriesThenDeadLetters(t *testing.T) {
	r := &fakeReader{queue: []kafka.Message{eventMessage(t, 3, "shop-1")}}
	dlq := &fakeWriter{}

	var mu sync.Mutex
	attempts := 0
	c := NewConsumerWithReader(r, "coffeebox.review.submitted", "g", func(context.Context, *Event) error {
		mu.Lock()
		attempts++
		mu.Unlock()
		return errors.New("store unavailable")
	}, testLogger()).WithDeadLetter(dlq)
	c.backoff = func(int) time.Duration { return 0 }

	runConsumer(t, c, r, 1)

	mu.Lock()
	assert.Equal(t, maxHandlerRetries, attempts)
	mu.Unlock()

	msgs := dlq.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "coffeebox.dlq.coffeebox.review.submitted", msgs[0].Topic)
	assert.Equal(t, "store unavailable", headerValue(msgs[0], "dlq.error"))
	assert.Equal(t, "3", headerValue(msgs[0], "dlq.original_offset"))
	assert.True(t, dlq.closed)
}

func TestConsumer_RecoversOnRetry(t *testing.T) {
	r := &fakeReader{queue: []kafka.Message{eventMessage(t, 4, "shop-1")}}
	dlq := &fakeWriter{}

	var mu sync.Mutex
	attempts := 0
	c := NewConsumerWithReader(r, "t", "g", func(context.Context, *Event) error {
		mu.Lock()
		defer mu.Unlock()
		attempts++
		if attempts == 1 {
			return errors.New("transient")
		}
		return nil
	}, testLogger()).WithDeadLetter(dlq)
	c.backoff = func(int) time.Duration { return 0 }

	runConsumer(t, c, r, 1)

	mu.Lock()
	assert.Equal(t, 2, attempts)
	mu.Unlock()
	assert.Empty(t, dlq.messages())
}
