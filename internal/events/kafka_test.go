package events

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, nil))
}

type fakeWriter struct {
	mu     sync.Mutex
	msgs   []kafka.Message
	err    error
	closed bool
}

func (f *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

// blockingWriter висит в WriteMessages, пока не закрыт release
type blockingWriter struct {
	started chan struct{}
	release chan struct{}
	once    sync.Once
	writes  int
}

func newBlockingWriter() *blockingWriter {
	return &blockingWriter{started: make(chan struct{}), release: make(chan struct{})}
}

func (b *blockingWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	b.once.Do(func() { close(b.started) })
	<-b.release
	b.writes++
	return nil
}

func (b *blockingWriter) Close() error { return nil }

func TestKafkaPublisher_Publish(t *testing.T) {
	w := &fakeWriter{}
	p := newKafkaPublisherWithWriter(newLogger(), w, time.Second, 8)

	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	evt := New(TypeOrderStatusChanged, "o-1", at, StatusChanged{From: "cancellation_requested", To: "cancelled"})

	require.NoError(t, p.Publish(context.Background(), evt))
	// Close дожидается записи очереди
	require.NoError(t, p.Close())
	assert.True(t, w.closed)
	require.Len(t, w.msgs, 1)

	msg := w.msgs[0]
	assert.Equal(t, "o-1", string(msg.Key))
	assert.Equal(t, at, msg.Time)
	assert.Equal(t, []kafka.Header{
		{Key: "type", Value: []byte(TypeOrderStatusChanged)},
		{Key: "event-id", Value: []byte(evt.ID)},
	}, msg.Headers)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, "order.status_changed", decoded["type"])
	assert.Equal(t, "cancelled", decoded["payload"].(map[string]any)["to"])
}

func TestKafkaPublisher_WriteErrorIsLoggedNotReturned(t *testing.T) {
	w := &fakeWriter{err: errors.New("broker down")}
	p := newKafkaPublisherWithWriter(newLogger(), w, time.Second, 8)

	assert.NoError(t, p.Publish(context.Background(), New(TypeOrderDeleted, "o-2", time.Now(), nil)))
	assert.NoError(t, p.Close())
	assert.Empty(t, w.msgs)
}

func TestKafkaPublisher_PublishDoesNotWaitForBroker(t *testing.T) {
	w := newBlockingWriter()
	p := newKafkaPublisherWithWriter(newLogger(), w, time.Second, 1)

	start := time.Now()
	require.NoError(t, p.Publish(context.Background(), New(TypeOrderCreated, "o-1", time.Now(), nil)))
	<-w.started
	// первое сообщение в записи, второе ждёт в очереди, третье не помещается
	require.NoError(t, p.Publish(context.Background(), New(TypeOrderCreated, "o-2", time.Now(), nil)))
	err := p.Publish(context.Background(), New(TypeOrderCreated, "o-3", time.Now(), nil))
	assert.ErrorIs(t, err, ErrQueueFull)
	assert.Less(t, time.Since(start), 500*time.Millisecond, "publish must not block on a stuck broker")

	close(w.release)
	require.NoError(t, p.Close())
	assert.Equal(t, 2, w.writes)
}

func TestKafkaPublisher_PublishAfterClose(t *testing.T) {
	p := newKafkaPublisherWithWriter(newLogger(), &fakeWriter{}, time.Second, 1)
	require.NoError(t, p.Close())
	require.NoError(t, p.Close())

	err := p.Publish(context.Background(), New(TypeOrderCreated, "o-1", time.Now(), nil))
	assert.ErrorIs(t, err, ErrPublisherClosed)
}

func TestNew_AssignsUniqueIDs(t *testing.T) {
	a := New(TypeOrderCreated, "o-1", time.Now(), nil)
	b := New(TypeOrderCreated, "o-1", time.Now(), nil)
	assert.NotEmpty(t, a.ID)
	assert.NotEqual(t, a.ID, b.ID)
}
