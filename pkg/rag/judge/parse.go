package judge

import (
	"encoding/json"
	"fmt"
	"strings"

	"filings-rag-be/pkg/rag/port"
)

// decodeJSON reads the first JSON object in raw into v. Models often wrap the
// object in prose or a code fence.
func decodeJSON(raw string, v interface{}) error {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return fmt.Errorf("%w: no json object in %q", port.ErrUnparsable, truncate(raw, 80))
	}
	if err := json.Unmarshal([]byte(raw[start:end+1]), v); err != nil {
		return fmt.Errorf("%w: %v", port.ErrUnparsable, err)
	}
	return nil
}

type binaryScore struct {
	BinaryScore string `json:"binary_score"`
}

// parseBinary accepts {"binary_score":"yes"} or a bare yes/no answer.
func parseBinary(raw string) (bool, error) {
	var s binaryScore
	if err := decodeJSON(raw, &s); err == nil && s.BinaryScore != "" {
		return yesNo(s.BinaryScore)
	}
	return yesNo(raw)
}

func yesNo(raw string) (bool, error) {
	word := strings.ToLower(strings.Trim(strings.TrimSpace(raw), "\"'.!` \n"))
	if i := strings.IndexAny(word, " ,\n"); i > 0 {
		word = word[:i]
	}
	switch word {
	case "yes", "true":
		return true, nil
	case "no", "false":
		return false, nil
	}
	return false, fmt.Errorf("%w: expected yes or no, got %q", port.ErrUnparsable, truncate(raw, 40))
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
