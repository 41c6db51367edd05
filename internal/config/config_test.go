package config

import (
	"os"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	os.Unsetenv("ARCHETYPE_BASE_URL")
	os.Unsetenv("ARCHETYPE_BATCH_EVERY")
	cfg := Load()
	if cfg.BaseURL != "http://localhost:8080/api/v1" {
		t.Fatalf("unexpected default base url %q", cfg.BaseURL)
	}
	if cfg.BatchEvery != 10 || cfg.MaxAttempts != 5 {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.DebounceWindow != 2*time.Second {
		t.Fatalf("unexpected debounce default %v", cfg.DebounceWindow)
	}
	if cfg.QuestionCount != 93 {
		t.Fatalf("unexpected question count %d", cfg.QuestionCount)
	}
}

func TestLoadOverrides(t *testing.T) {
	os.Setenv("ARCHETYPE_BASE_URL", "https://api.example.com/v1")
	os.Setenv("ARCHETYPE_BATCH_EVERY", "25")
	os.Setenv("ARCHETYPE_DEBOUNCE_WINDOW", "500ms")
	t.Cleanup(func() {
		os.Unsetenv("ARCHETYPE_BASE_URL")
		os.Unsetenv("ARCHETYPE_BATCH_EVERY")
		os.Unsetenv("ARCHETYPE_DEBOUNCE_WINDOW")
	})
	cfg := Load()
	if cfg.BaseURL != "https://api.example.com/v1" {
		t.Fatalf("override lost: %q", cfg.BaseURL)
	}
	if cfg.BatchEvery != 25 || cfg.DebounceWindow != 500*time.Millisecond {
		t.Fatalf("overrides lost: %+v", cfg)
	}
}
