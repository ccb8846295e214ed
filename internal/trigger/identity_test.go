package trigger

import "testing"

func TestIdentity_LabelOrderIrrelevant(t *testing.T) {
	a := Identity("100", "error: boom", map[string]string{"a": "1", "b": "2"})
	b := Identity("100", "error: boom", map[string]string{"b": "2", "a": "1"})
	if a != b {
		t.Errorf("Identity() differs for same label set in different order: %q vs %q", a, b)
	}
}

func TestIdentity_InputSensitivity(t *testing.T) {
	base := Identity("100", "error: boom", map[string]string{"job": "api"})

	tests := []struct {
		name      string
		timestamp string
		content   string
		labels    map[string]string
	}{
		{"different content", "100", "error: bang", map[string]string{"job": "api"}},
		{"different timestamp", "101", "error: boom", map[string]string{"job": "api"}},
		{"different label value", "100", "error: boom", map[string]string{"job": "web"}},
		{"different label key", "100", "error: boom", map[string]string{"app": "api"}},
		{"extra label", "100", "error: boom", map[string]string{"job": "api", "env": "prod"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Identity(tt.timestamp, tt.content, tt.labels); got == base {
				t.Errorf("Identity() collided with base identity for %s", tt.name)
			}
		})
	}
}

func TestIdentity_StableAcrossCalls(t *testing.T) {
	// Identities are persisted and compared across process restarts, so the
	// derivation must not depend on per-process state.
	want := "a: 1, b: 2"
	labels := map[string]string{"job": "api", "level": "error"}
	first := Identity("1678275600000000000", want, labels)
	for i := 0; i < 10; i++ {
		if got := Identity("1678275600000000000", want, labels); got != first {
			t.Fatalf("Identity() not deterministic: %q vs %q", got, first)
		}
	}
}

func TestIdentity_FieldBoundaries(t *testing.T) {
	// Content ending where the label serialization begins must not produce
	// the same identity as the label carrying that text.
	a := Identity("100", "x", map[string]string{"k": "v"})
	b := Identity("100", "xk=v", map[string]string{})
	if a == b {
		t.Error("Identity() failed to separate content from label serialization")
	}
}

func TestDefaultStateKey(t *testing.T) {
	a := DefaultStateKey("http://loki:3100", `{job="api"}`)
	b := DefaultStateKey("http://loki:3100", `{job="api"}`)
	c := DefaultStateKey("http://loki:3100", `{job="web"}`)

	if a != b {
		t.Errorf("DefaultStateKey() not stable: %q vs %q", a, b)
	}
	if a == c {
		t.Error("DefaultStateKey() identical for different queries")
	}
}
