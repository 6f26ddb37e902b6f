package events

import "time"

// Event defines the contract for all system events.
type Event interface {
	// EventType returns the subject suffix for this event (e.g. "query.completed").
	EventType() string

	Payload() map[string]interface{}

	Timestamp() time.Time
}

type BaseEvent struct {
	Type       string
	Data       map[string]interface{}
	OccurredAt time.Time
}

func (e BaseEvent) EventType() string {
	return e.Type
}

func (e BaseEvent) Payload() map[string]interface{} {
	return e.Data
}

func (e BaseEvent) Timestamp() time.Time {
	return e.OccurredAt
}

const (
	TypeQueryCompleted = "query.completed"
	TypeSessionReset   = "session.reset"
)

// QueryCompleted is published after a workflow execution returned an answer.
func QueryCompleted(id, sessionID, route string, documents, retries int, duration time.Duration, at time.Time) BaseEvent {
	return BaseEvent{
		Type: TypeQueryCompleted,
		Data: map[string]interface{}{
			"event_id":    id,
			"session_id":  sessionID,
			"route":       route,
			"documents":   documents,
			"retries":     retries,
			"duration_ms": duration.Milliseconds(),
			"occurred_at": at.Format(time.RFC3339Nano),
		},
		OccurredAt: at,
	}
}

func SessionReset(id, sessionID string, at time.Time) BaseEvent {
	return BaseEvent{
		Type: TypeSessionReset,
		Data: map[string]interface{}{
			"event_id":    id,
			"session_id":  sessionID,
			"occurred_at": at.Format(time.RFC3339Nano),
		},
		OccurredAt: at,
	}
}
