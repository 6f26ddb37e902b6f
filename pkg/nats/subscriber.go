package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"filings-rag-be/internal/pkg/logger"
	"filings-rag-be/pkg/events"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// EventHandler processes one event. A returned error naks the message.
type EventHandler func(ctx context.Context, event events.Event) error

// Subscriber handles listening for events from NATS.
type Subscriber struct {
	nc  *nats.Conn
	js  jetstream.JetStream
	log logger.ILogger
	cc  jetstream.ConsumeContext
}

func NewSubscriber(url string, log logger.ILogger) (*Subscriber, error) {
	if log == nil {
		log = logger.NewNopLogger()
	}
	nc, js, err := connect(url)
	if err != nil {
		return nil, err
	}
	return &Subscriber{nc: nc, js: js, log: log}, nil
}

// Subscribe consumes events whose type matches eventType (NATS wildcards
// allowed). An empty durableName creates an ephemeral consumer.
func (s *Subscriber) Subscribe(ctx context.Context, eventType, durableName string, handler EventHandler) error {
	consumer, err := s.js.CreateOrUpdateConsumer(ctx, StreamName, jetstream.ConsumerConfig{
		Durable:       durableName,
		FilterSubject: Subject(eventType),
		AckPolicy:     jetstream.AckExplicitPolicy,
		DeliverPolicy: jetstream.DeliverNewPolicy,
	})
	if err != nil {
		return fmt.Errorf("failed to create consumer: %w", err)
	}

	cc, err := consumer.Consume(func(msg jetstream.Msg) {
		var payload map[string]interface{}
		if err := json.Unmarshal(msg.Data(), &payload); err != nil {
			s.log.Warn(module, "dropping undecodable event", map[string]interface{}{"subject": msg.Subject(), "error": err.Error()})
			_ = msg.Term()
			return
		}

		occurred := time.Now()
		if raw, ok := payload["occurred_at"].(string); ok {
			if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
				occurred = t
			}
		}
		event := events.BaseEvent{
			Type:       strings.TrimPrefix(msg.Subject(), subjectPrefix),
			Data:       payload,
			OccurredAt: occurred,
		}

		if err := handler(ctx, event); err != nil {
			s.log.Warn(module, "event handler failed", map[string]interface{}{"subject": msg.Subject(), "error": err.Error()})
			_ = msg.Nak()
			return
		}
		_ = msg.Ack()
	})
	if err != nil {
		return fmt.Errorf("failed to start consuming: %w", err)
	}
	s.cc = cc

	s.log.Info(module, "subscribed", map[string]interface{}{"subject": Subject(eventType), "durable": durableName})
	return nil
}

func (s *Subscriber) Close() {
	if s.cc != nil {
		s.cc.Stop()
	}
	if s.nc != nil {
		s.nc.Close()
	}
}
