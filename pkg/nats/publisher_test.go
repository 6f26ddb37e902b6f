package nats

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"filings-rag-be/pkg/events"
)

func TestSubject(t *testing.T) {
	assert.Equal(t, "rag.query.completed", Subject(events.TypeQueryCompleted))
	assert.Equal(t, "rag.>", Subject(">"))
}
