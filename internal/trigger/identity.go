package trigger

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
)

// Identity derives the dedup key for a log entry from its timestamp, content
// and label set. Labels are folded in sorted key order so that label map
// iteration order never changes the result. The hash must stay stable across
// process restarts because identities are persisted and compared across runs.
func Identity(timestamp, content string, labels map[string]string) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s\x00%s\x00", timestamp, content)

	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(h, "%s=%s\x00", k, labels[k])
	}

	return hex.EncodeToString(h.Sum(nil))
}

// DefaultStateKey derives a stable state key from the connection URL and
// query for operators who do not supply one. Watching the same query against
// the same instance resumes the same state across restarts.
func DefaultStateKey(baseURL, query string) string {
	sum := sha256.Sum256([]byte(baseURL + "\x00" + query))
	return "trigger-" + hex.EncodeToString(sum[:6])
}
