package infra

import (
	"testing"
	"time"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("COMFY_BASE_URL", "")
	t.Setenv("OLLAMA_BASE_URL", "")
	t.Setenv("HISTORY_POLL_INTERVAL_MS", "")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.ComfyBaseURL != "http://127.0.0.1:8188" {
		t.Fatalf("ComfyBaseURL mismatch: %q", cfg.ComfyBaseURL)
	}
	if cfg.OllamaBaseURL != "http://127.0.0.1:11434" {
		t.Fatalf("OllamaBaseURL mismatch: %q", cfg.OllamaBaseURL)
	}
	if cfg.PollInterval != 1500*time.Millisecond {
		t.Fatalf("PollInterval mismatch: %v", cfg.PollInterval)
	}
	if cfg.PollTimeout != 5*time.Minute {
		t.Fatalf("PollTimeout mismatch: %v", cfg.PollTimeout)
	}
}

func TestLoadConfigHonorsExplicitValues(t *testing.T) {
	t.Setenv("COMFY_BASE_URL", "http://gpu-box:8188")
	t.Setenv("HISTORY_POLL_INTERVAL_MS", "250")
	t.Setenv("ALLOWED_ORIGINS", "http://localhost:3000, https://puzzle.example.com ")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.ComfyBaseURL != "http://gpu-box:8188" {
		t.Fatalf("ComfyBaseURL mismatch: %q", cfg.ComfyBaseURL)
	}
	if cfg.PollInterval != 250*time.Millisecond {
		t.Fatalf("PollInterval mismatch: %v", cfg.PollInterval)
	}
	want := []string{"http://localhost:3000", "https://puzzle.example.com"}
	if len(cfg.AllowedOrigins) != len(want) {
		t.Fatalf("AllowedOrigins mismatch: %#v", cfg.AllowedOrigins)
	}
	for i, origin := range want {
		if cfg.AllowedOrigins[i] != origin {
			t.Fatalf("AllowedOrigins[%d] = %q, want %q", i, cfg.AllowedOrigins[i], origin)
		}
	}
}

func TestLoadConfigRejectsNonPositiveInterval(t *testing.T) {
	t.Setenv("HISTORY_POLL_INTERVAL_MS", "0")

	if _, err := LoadConfig(); err == nil {
		t.Fatalf("expected error for zero poll interval")
	}
}
