package lokiapi

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestNormalize_StreamsShape(t *testing.T) {
	body := `{
		"status": "success",
		"data": {
			"resultType": "streams",
			"result": [
				{
					"stream": {"job": "varlogs", "filename": "/var/log/syslog"},
					"values": [
						["1678275600000000000", "First log line"],
						["1678275601000000000", "Second log line"]
					]
				}
			]
		}
	}`

	resp, err := ParseQueryResponse([]byte(body))
	if err != nil {
		t.Fatalf("ParseQueryResponse() unexpected error: %v", err)
	}
	if resp.Data.ResultType != "streams" {
		t.Errorf("resultType = %q, want %q", resp.Data.ResultType, "streams")
	}

	entries, err := resp.Normalize()
	if err != nil {
		t.Fatalf("Normalize() unexpected error: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("Normalize() returned %d entries, want 2", len(entries))
	}

	if entries[0].Timestamp != "1678275600000000000" || entries[0].Content != "First log line" {
		t.Errorf("entry 0 = %q / %q, want first pair in input order", entries[0].Timestamp, entries[0].Content)
	}
	if entries[1].Timestamp != "1678275601000000000" || entries[1].Content != "Second log line" {
		t.Errorf("entry 1 = %q / %q, want second pair in input order", entries[1].Timestamp, entries[1].Content)
	}

	for i, entry := range entries {
		if entry.Field != FieldLine {
			t.Errorf("entry %d field = %q, want %q for stream results", i, entry.Field, FieldLine)
		}
		if entry.Labels["job"] != "varlogs" || entry.Labels["filename"] != "/var/log/syslog" {
			t.Errorf("entry %d labels = %v, want group labels shared across entries", i, entry.Labels)
		}
	}
}

func TestNormalize_VectorShape(t *testing.T) {
	body := `{
		"status": "success",
		"data": {
			"resultType": "vector",
			"result": [
				{
					"metric": {"level": "error"},
					"value": ["1678275600", "42"]
				}
			]
		}
	}`

	resp, err := ParseQueryResponse([]byte(body))
	if err != nil {
		t.Fatalf("ParseQueryResponse() unexpected error: %v", err)
	}

	entries, err := resp.Normalize()
	if err != nil {
		t.Fatalf("Normalize() unexpected error: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("Normalize() returned %d entries, want exactly 1 for a vector group", len(entries))
	}
	if entries[0].Content != "42" {
		t.Errorf("content = %q, want %q", entries[0].Content, "42")
	}
	if entries[0].Field != FieldValue {
		t.Errorf("field = %q, want %q for vector results", entries[0].Field, FieldValue)
	}
	if entries[0].Labels["level"] != "error" {
		t.Errorf("labels = %v, want metric labels", entries[0].Labels)
	}
}

func TestNormalize_MatrixShape(t *testing.T) {
	body := `{
		"status": "success",
		"data": {
			"resultType": "matrix",
			"result": [
				{
					"metric": {"job": "api"},
					"values": [
						["1678275600", "1"],
						["1678275660", "2"],
						["1678275720", "3"]
					]
				}
			]
		}
	}`

	resp, err := ParseQueryResponse([]byte(body))
	if err != nil {
		t.Fatalf("ParseQueryResponse() unexpected error: %v", err)
	}

	entries, err := resp.Normalize()
	if err != nil {
		t.Fatalf("Normalize() unexpected error: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("Normalize() returned %d entries, want 3", len(entries))
	}
	for i, want := range []string{"1", "2", "3"} {
		if entries[i].Content != want {
			t.Errorf("entry %d content = %q, want %q (input order preserved)", i, entries[i].Content, want)
		}
		if entries[i].Field != FieldValue {
			t.Errorf("entry %d field = %q, want %q for matrix results", i, entries[i].Field, FieldValue)
		}
	}
}

func TestNormalize_MultipleGroupsInOrder(t *testing.T) {
	body := `{
		"status": "success",
		"data": {
			"resultType": "streams",
			"result": [
				{"stream": {"job": "a"}, "values": [["100", "a1"]]},
				{"stream": {"job": "b"}, "values": [["101", "b1"], ["102", "b2"]]}
			]
		}
	}`

	resp, err := ParseQueryResponse([]byte(body))
	if err != nil {
		t.Fatalf("ParseQueryResponse() unexpected error: %v", err)
	}

	entries, err := resp.Normalize()
	if err != nil {
		t.Fatalf("Normalize() unexpected error: %v", err)
	}
	got := make([]string, 0, len(entries))
	for _, e := range entries {
		got = append(got, e.Content)
	}
	want := []string{"a1", "b1", "b2"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("entries = %v, want groups processed in response order: %v", got, want)
	}
}

func TestNormalize_MalformedResults(t *testing.T) {
	tests := []struct {
		name   string
		result string
	}{
		{
			name:   "neither value nor values",
			result: `{"stream": {"job": "x"}}`,
		},
		{
			name:   "both value and values",
			result: `{"metric": {"job": "x"}, "value": ["1", "2"], "values": [["1", "2"]]}`,
		},
		{
			name:   "vector pair with wrong arity",
			result: `{"metric": {"job": "x"}, "value": ["1"]}`,
		},
		{
			name:   "stream pair with wrong arity",
			result: `{"stream": {"job": "x"}, "values": [["1", "2", "3"]]}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body := `{"status": "success", "data": {"resultType": "streams", "result": [` + tt.result + `]}}`
			resp, err := ParseQueryResponse([]byte(body))
			if err != nil {
				t.Fatalf("ParseQueryResponse() unexpected error: %v", err)
			}
			if _, err := resp.Normalize(); !errors.Is(err, ErrMalformedResult) {
				t.Errorf("Normalize() error = %v, want ErrMalformedResult", err)
			}
		})
	}
}

func TestNormalize_EmptyResult(t *testing.T) {
	body := `{"status": "success", "data": {"resultType": "streams", "result": []}}`
	resp, err := ParseQueryResponse([]byte(body))
	if err != nil {
		t.Fatalf("ParseQueryResponse() unexpected error: %v", err)
	}
	entries, err := resp.Normalize()
	if err != nil {
		t.Fatalf("Normalize() unexpected error: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("Normalize() returned %d entries, want 0", len(entries))
	}
}

func TestEntryMarshalJSON_ContentField(t *testing.T) {
	tests := []struct {
		name      string
		entry     Entry
		wantKey   string
		absentKey string
	}{
		{
			name:      "stream entry uses line",
			entry:     Entry{Timestamp: "100", Content: "hello", Field: FieldLine, Labels: map[string]string{"job": "x"}},
			wantKey:   "line",
			absentKey: "value",
		},
		{
			name:      "metric entry uses value",
			entry:     Entry{Timestamp: "100", Content: "42", Field: FieldValue, Labels: map[string]string{"job": "x"}},
			wantKey:   "value",
			absentKey: "line",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := json.Marshal(tt.entry)
			if err != nil {
				t.Fatalf("Marshal() unexpected error: %v", err)
			}
			var m map[string]any
			if err := json.Unmarshal(data, &m); err != nil {
				t.Fatalf("Unmarshal() unexpected error: %v", err)
			}
			if _, ok := m[tt.wantKey]; !ok {
				t.Errorf("marshalled entry %s missing %q key", data, tt.wantKey)
			}
			if _, ok := m[tt.absentKey]; ok {
				t.Errorf("marshalled entry %s has unexpected %q key", data, tt.absentKey)
			}
			if m["timestamp"] != "100" {
				t.Errorf("timestamp = %v, want %q", m["timestamp"], "100")
			}
		})
	}
}
