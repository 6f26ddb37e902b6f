package state

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMerge(t *testing.T) {
	base := New("what was revenue in 2023?", SessionMetadata{SessionID: "s1"}, nil)
	base.Documents = []Document{{Content: "a"}}

	t.Run("append fields grow without touching the original", func(t *testing.T) {
		next := Merge(base, Update{
			AppendDocuments: []Document{{Content: "b"}},
			ToolCalls:       []ToolCall{{Tool: "retrieve"}},
		})
		assert.Len(t, next.Documents, 2)
		assert.Len(t, base.Documents, 1)
		assert.Equal(t, []ToolCall{{Tool: "retrieve"}}, next.ToolCalls)
	})

	t.Run("replace documents", func(t *testing.T) {
		next := Merge(base, Update{Documents: Ref([]Document{})})
		assert.Empty(t, next.Documents)
	})

	t.Run("replace then append in one update", func(t *testing.T) {
		next := Merge(base, Update{
			Documents:       Ref([]Document{{Content: "x"}}),
			AppendDocuments: []Document{{Content: "y"}},
		})
		assert.Equal(t, []Document{{Content: "x"}, {Content: "y"}}, next.Documents)
	})

	t.Run("search flags are sticky", func(t *testing.T) {
		next := Merge(base, Update{WebSearched: true})
		next = Merge(next, Update{})
		assert.True(t, next.WebSearched)
		assert.False(t, next.VectorstoreSearched)
	})

	t.Run("messages move the active question", func(t *testing.T) {
		next := Merge(base, Update{Messages: []Message{{Role: "user", Text: "rewritten"}}})
		assert.Equal(t, "rewritten", next.Question())
		assert.Equal(t, "what was revenue in 2023?", base.Question())
	})

	t.Run("later scalar write wins", func(t *testing.T) {
		next := Merge(base, Update{RetryCount: Ref(1), Generation: Ref("one")})
		next = Merge(next, Update{RetryCount: Ref(2), Generation: Ref("two")})
		assert.Equal(t, 2, next.RetryCount)
		assert.Equal(t, "two", next.Generation)
	})
}

func TestDocumentAccessors(t *testing.T) {
	d := Document{Metadata: map[string]interface{}{"id": "chunk-1", "source_file": "tsla-10k.pdf"}}
	assert.Equal(t, "chunk-1", d.ID())
	assert.Equal(t, "tsla-10k.pdf", d.SourceFile())
	assert.Equal(t, "unknown", Document{}.SourceFile())
	assert.Equal(t, "", Document{}.ID())
}
