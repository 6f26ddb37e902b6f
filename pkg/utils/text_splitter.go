package utils

import (
	"strings"
	"unicode"
)

// SplitText cuts text into chunks of at most chunkSize runes, with overlap
// runes repeated at the start of the next chunk. Cuts prefer the last
// whitespace in the second half of a window so words stay whole. Chunks are
// trimmed; blank chunks are dropped.
func SplitText(text string, chunkSize int, overlap int) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if chunkSize <= 0 {
		return []string{text}
	}
	if overlap < 0 || overlap >= chunkSize {
		overlap = 0
	}

	runes := []rune(text)
	if len(runes) <= chunkSize {
		return []string{text}
	}

	var chunks []string
	for start := 0; start < len(runes); {
		end := start + chunkSize
		if end >= len(runes) {
			end = len(runes)
		} else {
			for i := end; i > start+chunkSize/2; i-- {
				if unicode.IsSpace(runes[i]) {
					end = i
					break
				}
			}
		}

		if chunk := strings.TrimSpace(string(runes[start:end])); chunk != "" {
			chunks = append(chunks, chunk)
		}
		if end == len(runes) {
			break
		}

		next := end - overlap
		if next <= start {
			next = end
		}
		// Start the overlap on a word boundary.
		for next < end && !unicode.IsSpace(runes[next-1]) {
			next++
		}
		start = next
	}
	return chunks
}
