package eventlog

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"arete/internal/common/mq"
	appErr "arete/pkg/errors"
	"arete/pkg/utils/logger"

	"go.uber.org/zap"
)

// Sink receives a copy of every appended event.
type Sink interface {
	Publish(ctx context.Context, ev Event) error
}

// MQSink publishes events to a message queue topic, keyed by session.
type MQSink struct {
	producer mq.Producer
	topic    string
}

// NewMQSink creates a sink over producer.
func NewMQSink(producer mq.Producer, topic string) *MQSink {
	return &MQSink{producer: producer, topic: topic}
}

// Publish encodes ev as JSON and publishes it.
func (s *MQSink) Publish(ctx context.Context, ev Event) error {
	if s == nil || s.producer == nil {
		return appErr.New(appErr.ServiceUnavailable).WithMessage("event producer is not configured")
	}
	if s.topic == "" {
		return appErr.New(appErr.InvalidParams).WithMessage("event topic is required")
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event failed: %w", err)
	}
	message := mq.NewMessage(payload)
	message.ID = ev.SessionID
	message.Timestamp = ev.Timestamp
	message.SetHeader("event-type", string(ev.Type))
	message.SetHeader("event-priority", string(ev.Priority))
	if err := s.producer.Publish(ctx, s.topic, message); err != nil {
		return appErr.Wrapf(err, appErr.EventPublishFailed, "publish event failed")
	}
	return nil
}

// AsyncSink decouples appenders from a slow sink with a bounded buffer and one
// forwarding goroutine, which keeps events in append order.
// When the buffer is full the event is dropped and the drop is logged.
type AsyncSink struct {
	next    Sink
	timeout time.Duration
	ch      chan Event

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

// NewAsyncSink starts the forwarding goroutine.
func NewAsyncSink(next Sink, buffer int, timeout time.Duration) *AsyncSink {
	if buffer <= 0 {
		buffer = 1024
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	s := &AsyncSink{
		next:    next,
		timeout: timeout,
		ch:      make(chan Event, buffer),
		done:    make(chan struct{}),
	}
	go s.loop()
	return s
}

// Publish enqueues ev without blocking. After Close it reports EventPublishFailed.
func (s *AsyncSink) Publish(ctx context.Context, ev Event) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return appErr.New(appErr.EventPublishFailed).WithMessage("event sink is closed")
	}
	select {
	case s.ch <- ev:
		return nil
	default:
		return appErr.New(appErr.EventPublishFailed).WithMessage("event sink buffer is full")
	}
}

// Close stops accepting events and waits for the buffer to drain.
func (s *AsyncSink) Close() {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
	s.mu.Unlock()
	<-s.done
}

func (s *AsyncSink) loop() {
	defer close(s.done)
	for ev := range s.ch {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		if err := s.next.Publish(ctx, ev); err != nil {
			logger.Warn(logger.WithSession(ctx, ev.SessionID), "event sink publish failed",
				zap.String("type", string(ev.Type)),
				zap.Int64("position", ev.Position),
				zap.Error(err),
			)
		}
		cancel()
	}
}
