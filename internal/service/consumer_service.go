package service

import (
	"context"
	"errors"

	"filings-rag-be/internal/pkg/logger"
	"filings-rag-be/pkg/session"

	"github.com/ThreeDotsLabs/watermill/message"
)

type IConsumerService interface {
	Consume(ctx context.Context) error
}

// consumerService drains the snapshot topic and writes every record to the
// durable persister.
type consumerService struct {
	sub       message.Subscriber
	topicName string
	target    session.Persister
	logger    logger.ILogger
}

func NewConsumerService(
	sub message.Subscriber,
	topicName string,
	target session.Persister,
	log logger.ILogger,
) IConsumerService {
	if topicName == "" {
		topicName = session.SnapshotTopic
	}
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &consumerService{
		sub:       sub,
		topicName: topicName,
		target:    target,
		logger:    log,
	}
}

func (cs *consumerService) Consume(ctx context.Context) error {
	messages, err := cs.sub.Subscribe(ctx, cs.topicName)
	if err != nil {
		return err
	}

	go func() {
		for msg := range messages {
			cs.processMessage(ctx, msg)
		}
	}()

	return nil
}

func (cs *consumerService) processMessage(ctx context.Context, msg *message.Message) {
	rec, err := session.DecodeRecord(msg.Payload)
	if err != nil {
		cs.logger.Error("consumer", "dropping undecodable snapshot", map[string]interface{}{
			"message_id": msg.UUID,
			"error":      err.Error(),
		})
		// Retrying cannot fix a malformed payload.
		msg.Ack()
		return
	}

	if err := cs.target.Save(ctx, rec); err != nil {
		if errors.Is(err, session.ErrInvalidID) {
			msg.Ack()
			return
		}
		cs.logger.Warn("consumer", "snapshot save failed, will retry", map[string]interface{}{
			"session_id": rec.SessionID,
			"error":      err.Error(),
		})
		msg.Nack()
		return
	}

	cs.logger.Debug("consumer", "snapshot persisted", map[string]interface{}{
		"session_id":          rec.SessionID,
		"conversation_length": len(rec.Snapshot.History),
	})
	msg.Ack()
}
