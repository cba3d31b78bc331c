package anthropic

import "testing"

func TestNewDefaultsModelName(t *testing.T) {
	m := New("test-key", "")
	if m.model != DefaultModel {
		t.Errorf("model = %q, want %q", m.model, DefaultModel)
	}
}
