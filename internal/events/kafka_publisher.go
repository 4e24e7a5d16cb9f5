package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// ErrPublishQueueFull is returned when the outbound buffer has no room left.
var ErrPublishQueueFull = errors.New("kafka publish queue full")

// ErrPublisherClosed is returned for events handed over after Close.
var ErrPublisherClosed = errors.New("kafka publisher closed")

// MessageWriter is the subset of *kafka.Writer the publisher needs.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisherConfig sizes the outbound buffer and bounds each write.
type KafkaPublisherConfig struct {
	BufferSize   int
	WriteTimeout time.Duration
}

// KafkaPublisher streams domain events to a Kafka topic, keyed by ticket type
// so one ticket type's events stay ordered within a partition. Handle only
// enqueues; a single background loop owns the writer, so a slow broker never
// holds up the request that raised the event.
type KafkaPublisher struct {
	writer       MessageWriter
	logger       *zap.Logger
	writeTimeout time.Duration

	mu     sync.RWMutex
	closed bool
	queue  chan kafka.Message
	done   chan struct{}
}

// NewKafkaWriter builds a writer for the configured brokers and topic.
func NewKafkaWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 10 * time.Millisecond,
	}
}

// NewKafkaPublisher wraps writer and starts the delivery loop. Close must be
// called to drain the buffer and release the writer.
func NewKafkaPublisher(writer MessageWriter, logger *zap.Logger, cfg KafkaPublisherConfig) *KafkaPublisher {
	if cfg.BufferSize < 1 {
		cfg.BufferSize = 1
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 5 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &KafkaPublisher{
		writer:       writer,
		logger:       logger,
		writeTimeout: cfg.WriteTimeout,
		queue:        make(chan kafka.Message, cfg.BufferSize),
		done:         make(chan struct{}),
	}
	go p.loop()
	return p
}

// Register subscribes the publisher to every event type.
func (p *KafkaPublisher) Register(d Dispatcher) {
	SubscribeAll(d, p.Handle)
}

// Handle encodes the event as JSON and queues it for delivery. It never waits
// on the brokers.
func (p *KafkaPublisher) Handle(_ context.Context, event Event) error {
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event %s: %w", event.ID, err)
	}
	key := event.TicketTypeID
	if key == "" {
		key = event.ID
	}
	msg := kafka.Message{
		Key:   []byte(key),
		Value: value,
		Time:  event.Timestamp,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.Type)},
		},
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return fmt.Errorf("publish event %s: %w", event.ID, ErrPublisherClosed)
	}
	select {
	case p.queue <- msg:
		return nil
	default:
		p.logger.Warn("kafka publish dropped",
			zap.String("event_id", event.ID),
			zap.String("event_type", string(event.Type)),
			zap.Int("buffer", cap(p.queue)))
		return fmt.Errorf("publish event %s: %w", event.ID, ErrPublishQueueFull)
	}
}

func (p *KafkaPublisher) loop() {
	defer close(p.done)
	for msg := range p.queue {
		p.write(msg)
	}
}

func (p *KafkaPublisher) write(msg kafka.Message) {
	ctx, cancel := context.WithTimeout(context.Background(), p.writeTimeout)
	defer cancel()
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.logger.Warn("kafka publish failed",
			zap.ByteString("key", msg.Key),
			zap.String("event_type", headerValue(msg, "event_type")),
			zap.Error(err))
	}
}

// Close stops accepting events, flushes what is buffered and closes the writer.
func (p *KafkaPublisher) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.queue)
	p.mu.Unlock()

	<-p.done
	return p.writer.Close()
}

func headerValue(msg kafka.Message, key string) string {
	for _, h := range msg.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}
