package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"filings-rag-be/internal/pkg/logger"
	"filings-rag-be/pkg/events"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

const (
	module = "nats"

	// StreamName holds every event the backend publishes.
	StreamName    = "RAG_EVENTS"
	subjectPrefix = "rag."
)

// Subject returns the NATS subject an event type is published on.
func Subject(eventType string) string {
	return subjectPrefix + eventType
}

// Publisher handles sending events to the NATS bus.
type Publisher struct {
	nc  *nats.Conn
	js  jetstream.JetStream
	log logger.ILogger
}

func connect(url string) (*nats.Conn, jetstream.JetStream, error) {
	nc, err := nats.Connect(url,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(5),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}
	return nc, js, nil
}

// NewPublisher connects and makes sure the event stream exists. A stream that
// cannot be created is logged; publishing will then fail per call.
func NewPublisher(url string, log logger.ILogger) (*Publisher, error) {
	if log == nil {
		log = logger.NewNopLogger()
	}
	nc, js, err := connect(url)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      StreamName,
		Subjects:  []string{subjectPrefix + ">"},
		Storage:   jetstream.FileStorage,
		Retention: jetstream.LimitsPolicy,
		MaxAge:    7 * 24 * time.Hour,
	})
	if err != nil {
		log.Warn(module, "failed to ensure event stream", map[string]interface{}{"stream": StreamName, "error": err.Error()})
	}

	return &Publisher{nc: nc, js: js, log: log}, nil
}

// Publish sends the event payload as JSON to rag.<event type>.
func (p *Publisher) Publish(ctx context.Context, event events.Event) error {
	data, err := json.Marshal(event.Payload())
	if err != nil {
		return fmt.Errorf("failed to marshal event payload: %w", err)
	}

	subject := Subject(event.EventType())
	if _, err := p.js.Publish(ctx, subject, data); err != nil {
		return fmt.Errorf("failed to publish event to subject %s: %w", subject, err)
	}
	return nil
}

func (p *Publisher) Close() {
	if p.nc != nil {
		p.nc.Close()
	}
}
