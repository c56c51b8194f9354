package infra

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv           string
	Port             string
	ComfyBaseURL     string
	ComfyWSBaseURL   string
	OllamaBaseURL    string
	OllamaModel      string
	TemplatePath     string
	CaptureNodeID    string
	AllowedOrigins   []string
	PollInterval     time.Duration
	PollTimeout      time.Duration
	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		AppEnv:           getEnv("APP_ENV", "development"),
		Port:             getEnv("PORT", "8080"),
		ComfyBaseURL:     getEnv("COMFY_BASE_URL", "http://127.0.0.1:8188"),
		ComfyWSBaseURL:   os.Getenv("COMFY_WS_BASE_URL"),
		OllamaBaseURL:    getEnv("OLLAMA_BASE_URL", "http://127.0.0.1:11434"),
		OllamaModel:      getEnv("OLLAMA_MODEL", "llava"),
		TemplatePath:     getEnv("WORKFLOW_TEMPLATE_PATH", "workflows/puzzle.json"),
		CaptureNodeID:    getEnv("CAPTURE_NODE_ID", "save_image_websocket_node"),
		AllowedOrigins:   splitCSV(getEnv("ALLOWED_ORIGINS", "http://localhost:5173")),
		PollInterval:     time.Millisecond * time.Duration(getEnvInt("HISTORY_POLL_INTERVAL_MS", 1500)),
		PollTimeout:      time.Second * time.Duration(getEnvInt("HISTORY_POLL_TIMEOUT_SECONDS", 300)),
		HTTPReadTimeout:  time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout: time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 600)),
		HTTPIdleTimeout:  time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
	}

	if cfg.PollInterval <= 0 {
		return nil, fmt.Errorf("HISTORY_POLL_INTERVAL_MS must be positive")
	}
	if cfg.PollTimeout <= 0 {
		return nil, fmt.Errorf("HISTORY_POLL_TIMEOUT_SECONDS must be positive")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func splitCSV(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
