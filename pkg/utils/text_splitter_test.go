package utils

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitText(t *testing.T) {
	tests := []struct {
		name  string
		text  string
		size  int
		lap   int
		count int
	}{
		{name: "blank", text: "   ", size: 10, count: 0},
		{name: "fits", text: "Revenue grew.", size: 50, count: 1},
		{name: "no size", text: "Revenue grew.", size: 0, count: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Len(t, SplitText(tt.text, tt.size, tt.lap), tt.count)
		})
	}
}

func TestSplitTextKeepsWordsWhole(t *testing.T) {
	words := strings.Repeat("revenue margin guidance ", 40)
	chunks := SplitText(words, 100, 20)

	require.Greater(t, len(chunks), 1)
	vocab := map[string]bool{"revenue": true, "margin": true, "guidance": true}
	for _, c := range chunks {
		assert.LessOrEqual(t, utf8.RuneCountInString(c), 100)
		for _, w := range strings.Fields(c) {
			assert.True(t, vocab[w], "split word %q", w)
		}
	}
}

func TestSplitTextOverlapAndCoverage(t *testing.T) {
	text := "alpha beta gamma delta epsilon zeta eta theta iota kappa lambda mu"
	chunks := SplitText(text, 24, 8)

	require.Greater(t, len(chunks), 2)
	assert.True(t, strings.HasPrefix(text, chunks[0]))
	assert.True(t, strings.HasSuffix(text, chunks[len(chunks)-1]))
}

func TestSplitTextWithoutWhitespace(t *testing.T) {
	chunks := SplitText(strings.Repeat("x", 25), 10, 0)
	assert.Equal(t, []string{strings.Repeat("x", 10), strings.Repeat("x", 10), strings.Repeat("x", 5)}, chunks)
}
