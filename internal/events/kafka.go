package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
)

var (
	ErrPublisherClosed = errors.New("publisher is closed")
	ErrQueueFull       = errors.New("event queue is full")
)

const (
	defaultQueueSize    = 256
	defaultWriteTimeout = 5 * time.Second
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher пишет события в один топик, ключ сообщения - id заказа.
// Publish только ставит сообщение в очередь, запись в брокер идёт в отдельной горутине.
type KafkaPublisher struct {
	log          *slog.Logger
	w            messageWriter
	writeTimeout time.Duration

	mu     sync.RWMutex
	closed bool
	inbox  chan kafka.Message
	done   chan struct{}
}

func NewKafkaPublisher(log *slog.Logger, brokers []string, topic string, writeTimeout time.Duration, queueSize int) *KafkaPublisher {
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		WriteTimeout: writeTimeout,
		// пишем по одному сообщению, ждать добора пачки незачем
		BatchTimeout: 10 * time.Millisecond,
		MaxAttempts:  3,
	}
	return newKafkaPublisherWithWriter(log, w, writeTimeout, queueSize)
}

func newKafkaPublisherWithWriter(log *slog.Logger, w messageWriter, writeTimeout time.Duration, queueSize int) *KafkaPublisher {
	if writeTimeout <= 0 {
		writeTimeout = defaultWriteTimeout
	}
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	p := &KafkaPublisher{
		log:          log,
		w:            w,
		writeTimeout: writeTimeout,
		inbox:        make(chan kafka.Message, queueSize),
		done:         make(chan struct{}),
	}
	go p.run()
	return p
}

func (p *KafkaPublisher) run() {
	defer close(p.done)
	for msg := range p.inbox {
		ctx, cancel := context.WithTimeout(context.Background(), p.writeTimeout)
		err := p.w.WriteMessages(ctx, msg)
		cancel()
		if err != nil {
			p.log.Warn("failed to write event",
				slog.String("key", string(msg.Key)),
				slog.String("type", headerValue(msg, "type")),
				slog.Any("error", err),
			)
		}
	}
}

func headerValue(msg kafka.Message, key string) string {
	for _, h := range msg.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

// Publish не блокируется: при переполненной очереди событие отбрасывается с ErrQueueFull
func (p *KafkaPublisher) Publish(_ context.Context, event Event) error {
	const op = "events.KafkaPublisher.Publish"

	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("%s: failed to encode event: %w", op, err)
	}
	msg := kafka.Message{
		Key:   []byte(event.OrderID),
		Value: value,
		Time:  event.OccurredAt,
		Headers: []kafka.Header{
			{Key: "type", Value: []byte(event.Type)},
			{Key: "event-id", Value: []byte(event.ID)},
		},
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return fmt.Errorf("%s: %w", op, ErrPublisherClosed)
	}
	select {
	case p.inbox <- msg:
		return nil
	default:
		return fmt.Errorf("%s: %w", op, ErrQueueFull)
	}
}

// Close дописывает очередь и закрывает writer
func (p *KafkaPublisher) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.inbox)
	p.mu.Unlock()

	<-p.done
	return p.w.Close()
}
