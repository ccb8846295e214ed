package lokiapi

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrMalformedResult indicates a result group that declares neither the
// single-value shape nor the value-list shape, or declares both.
var ErrMalformedResult = errors.New("malformed loki result")

// Content field names used when flattening entries. Stream results carry log
// lines; vector and matrix results carry metric sample values.
const (
	FieldLine  = "line"
	FieldValue = "value"
)

// QueryResponse is the wire format of the Loki query API.
type QueryResponse struct {
	Status string       `json:"status"`
	Data   ResponseData `json:"data"`
}

// ResponseData carries the result type tag and the result groups.
type ResponseData struct {
	ResultType string   `json:"resultType"`
	Result     []Result `json:"result"`
}

// Result is one result group. Stream groups label with "stream" and carry a
// list of [timestamp, line] pairs; matrix groups label with "metric" and
// carry a list of [timestamp, value] pairs; vector groups label with
// "metric" and carry a single [timestamp, value] pair.
type Result struct {
	Stream map[string]string `json:"stream"`
	Metric map[string]string `json:"metric"`

	// For streams and matrix responses (array of [timestamp, value] pairs)
	Values [][]string `json:"values"`

	// For vector responses (single [timestamp, value] pair)
	Value []string `json:"value"`
}

// Entry is one flattened query result row. Content is the log line or metric
// value; Field records which of the two it was on the wire.
type Entry struct {
	Timestamp string
	Content   string
	Field     string
	Labels    map[string]string
}

// MarshalJSON emits the entry with its content keyed by "line" or "value",
// matching the result shape it came from.
func (e Entry) MarshalJSON() ([]byte, error) {
	field := e.Field
	if field == "" {
		field = FieldValue
	}
	return json.Marshal(map[string]any{
		"timestamp": e.Timestamp,
		field:       e.Content,
		"labels":    e.Labels,
	})
}

// ParseQueryResponse decodes a raw query API body.
func ParseQueryResponse(body []byte) (*QueryResponse, error) {
	var resp QueryResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode loki response: %w", err)
	}
	return &resp, nil
}

// Normalize flattens the result groups into an ordered list of entries.
// Groups are processed in response order and pairs within a group in given
// order; no re-sorting happens here, the query direction decides ordering.
func (r *QueryResponse) Normalize() ([]Entry, error) {
	var entries []Entry

	for i, result := range r.Data.Result {
		labels := result.Stream
		field := FieldLine
		if labels == nil {
			labels = result.Metric
			field = FieldValue
		}

		switch {
		case result.Value != nil && result.Values != nil:
			return nil, fmt.Errorf("%w: result %d declares both value and values", ErrMalformedResult, i)

		case result.Value != nil:
			if len(result.Value) != 2 {
				return nil, fmt.Errorf("%w: result %d value has %d elements, want 2", ErrMalformedResult, i, len(result.Value))
			}
			entries = append(entries, Entry{
				Timestamp: result.Value[0],
				Content:   result.Value[1],
				Field:     FieldValue,
				Labels:    labels,
			})

		case result.Values != nil:
			for j, pair := range result.Values {
				if len(pair) != 2 {
					return nil, fmt.Errorf("%w: result %d values[%d] has %d elements, want 2", ErrMalformedResult, i, j, len(pair))
				}
				entries = append(entries, Entry{
					Timestamp: pair[0],
					Content:   pair[1],
					Field:     field,
					Labels:    labels,
				})
			}

		default:
			return nil, fmt.Errorf("%w: result %d declares neither value nor values", ErrMalformedResult, i)
		}
	}

	return entries, nil
}
