package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"friendfeed/internal/kafka"
)

type fakeProducer struct {
	topic   string
	key     []byte
	payload []byte
	ctxErr  error
	err     error
}

func (p *fakeProducer) SendMessage(ctx context.Context, topic string, key []byte, payload []byte) error {
	p.topic, p.key, p.payload, p.ctxErr = topic, key, payload, ctx.Err()
	return p.err
}

func (p *fakeProducer) Close() {}

func TestActivityPublisher_SendsEncodedEvent(t *testing.T) {
	producer := &fakeProducer{}
	pub := NewActivityPublisher(producer, "activity")
	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	pub.Publish(t.Context(), kafka.ActivityEvent{Type: kafka.FriendshipAccepted, ActorID: 7, SubjectID: 9, ObjectID: 3, OccurredAt: at})
	pub.Wait()

	assert.Equal(t, "activity", producer.topic)
	assert.Equal(t, []byte("7"), producer.key)
	got, err := kafka.DecodeActivityEvent(producer.payload)
	require.NoError(t, err)
	assert.Equal(t, kafka.FriendshipAccepted, got.Type)
	assert.Equal(t, uint(9), got.SubjectID)
	assert.True(t, at.Equal(got.OccurredAt))
}

func TestActivityPublisher_IgnoresCancelledRequest(t *testing.T) {
	producer := &fakeProducer{err: errors.New("broker down")}
	pub := NewActivityPublisher(producer, "activity")

	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	pub.Publish(ctx, kafka.ActivityEvent{Type: kafka.PostCreated, ActorID: 1, ObjectID: 2})
	pub.Wait()

	assert.NoError(t, producer.ctxErr)
	got, err := kafka.DecodeActivityEvent(producer.payload)
	require.NoError(t, err)
	assert.False(t, got.OccurredAt.IsZero())
}

// stalledProducer holds every send until release is closed, like a broker that never acks.
type stalledProducer struct {
	release chan struct{}
	mu      sync.Mutex
	sent    int
}

func (p *stalledProducer) SendMessage(ctx context.Context, _ string, _ []byte, _ []byte) error {
	select {
	case <-p.release:
	case <-ctx.Done():
		return ctx.Err()
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sent++
	return nil
}

func (p *stalledProducer) Close() {}

func TestActivityPublisher_DoesNotWaitForDelivery(t *testing.T) {
	producer := &stalledProducer{release: make(chan struct{})}
	pub := NewActivityPublisher(producer, "activity")

	returned := make(chan struct{})
	go func() {
		pub.Publish(t.Context(), kafka.ActivityEvent{Type: kafka.PostCreated, ActorID: 1, ObjectID: 2})
		pub.Publish(t.Context(), kafka.ActivityEvent{Type: kafka.PostDeleted, ActorID: 1, ObjectID: 2})
		close(returned)
	}()
	select {
	case <-returned:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on the delivery report")
	}

	close(producer.release)
	pub.Wait()
	assert.Equal(t, 2, producer.sent)
}

func TestActivityPublisher_NilProducer(t *testing.T) {
	pub := NewActivityPublisher(nil, "activity")
	assert.IsType(t, noopPublisher{}, pub)
	pub.Publish(t.Context(), kafka.ActivityEvent{Type: kafka.PostCreated})
	pub.Wait()
}
