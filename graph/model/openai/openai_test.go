package openai

import "testing"

func TestNewDefaultsModelName(t *testing.T) {
	m, err := New("test-key", "")
	if err != nil {
		t.Fatalf("New with empty model: %v", err)
	}
	if m.model != DefaultModel {
		t.Errorf("model = %q, want %q", m.model, DefaultModel)
	}
}

func TestNewRequiresAPIKey(t *testing.T) {
	if _, err := New("", "gpt-4o"); err == nil {
		t.Error("expected error for empty API key")
	}
}
