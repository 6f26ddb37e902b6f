package memory

import (
	"encoding/binary"
	"encoding/hex"
	"math"
	"strings"

	"golang.org/x/crypto/blake2b"
)

// NormalizeQuery lower-cases and trims the query text used for cache keys.
func NormalizeQuery(q string) string {
	return strings.ToLower(strings.TrimSpace(q))
}

// QueryKey is stable for equal (normalized query, context) pairs.
func QueryKey(query string, context []string) string {
	h, _ := blake2b.New256(nil)
	h.Write([]byte(NormalizeQuery(query)))
	for _, c := range context {
		h.Write([]byte{0})
		h.Write([]byte(c))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// EmbeddingKey hashes the raw vector bytes together with the collection name.
func EmbeddingKey(embedding []float32, collection string) string {
	h, _ := blake2b.New256(nil)
	h.Write([]byte(collection))
	buf := make([]byte, 4)
	for _, v := range embedding {
		binary.LittleEndian.PutUint32(buf, math.Float32bits(v))
		h.Write(buf)
	}
	return hex.EncodeToString(h.Sum(nil))
}
