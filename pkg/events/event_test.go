package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestQueryCompletedPayload(t *testing.T) {
	at := time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)
	ev := QueryCompleted("e1", "alice_20250314", "vectorstore", 4, 1, 1500*time.Millisecond, at)

	assert.Equal(t, TypeQueryCompleted, ev.EventType())
	assert.Equal(t, at, ev.Timestamp())
	p := ev.Payload()
	assert.Equal(t, "alice_20250314", p["session_id"])
	assert.Equal(t, int64(1500), p["duration_ms"])
	assert.Equal(t, 4, p["documents"])
}

func TestSessionResetPayload(t *testing.T) {
	ev := SessionReset("e2", "s1", time.Unix(0, 0).UTC())
	assert.Equal(t, TypeSessionReset, ev.EventType())
	assert.Equal(t, "s1", ev.Payload()["session_id"])
}
