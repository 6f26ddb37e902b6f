package session

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
)

// SnapshotTopic carries records waiting to be persisted.
const SnapshotTopic = "session.snapshot"

// AsyncPersister publishes Save calls to a watermill topic and delegates every
// other operation to the underlying persister. A consumer on the same topic
// performs the actual write.
type AsyncPersister struct {
	Persister
	pub   message.Publisher
	topic string
}

func NewAsyncPersister(next Persister, pub message.Publisher, topic string) *AsyncPersister {
	if topic == "" {
		topic = SnapshotTopic
	}
	return &AsyncPersister{Persister: next, pub: pub, topic: topic}
}

func (p *AsyncPersister) Save(ctx context.Context, rec Record) error {
	if !ValidID(rec.SessionID) {
		return fmt.Errorf("%w: %q", ErrInvalidID, rec.SessionID)
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode session %s: %w", rec.SessionID, err)
	}
	msg := message.NewMessage(watermill.NewUUID(), data)
	msg.Metadata.Set("session_id", rec.SessionID)
	if err := p.pub.Publish(p.topic, msg); err != nil {
		return fmt.Errorf("publish snapshot of %s: %w", rec.SessionID, err)
	}
	return nil
}

// DecodeRecord reads a record published by AsyncPersister.
func DecodeRecord(payload []byte) (Record, error) {
	var rec Record
	if err := json.Unmarshal(payload, &rec); err != nil {
		return Record{}, fmt.Errorf("decode session record: %w", err)
	}
	if !ValidID(rec.SessionID) {
		return Record{}, fmt.Errorf("%w: %q", ErrInvalidID, rec.SessionID)
	}
	return rec, nil
}
