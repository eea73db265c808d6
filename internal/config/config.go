// Package config reads service settings from the environment.
package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ewilliams-labs/voicecanvas/internal/audio"
)

const (
	ProviderOpenRouter = "openrouter"
	ProviderOllama     = "ollama"
)

// Config holds every tunable of the service and CLI.
type Config struct {
	Port string

	AnalyzerProvider  string
	OpenRouterAPIKey  string
	OpenRouterBaseURL string
	OllamaHost        string
	DefaultModel      string
	RequestTimeout    time.Duration

	MappingProfile string
	CanvasWidth    int
	CanvasHeight   int
	SnapshotMaxDim int

	AudioSampleRate int
	AudioWindow     int
	AudioTick       time.Duration
	SplatterTTL     time.Duration

	HistoryDB      string
	HistoryWorkers int
	HistoryQueue   int
}

// Load reads the environment. Malformed numbers fall back to their defaults
// with a warning; only semantic conflicts are returned as errors.
func Load() (Config, error) {
	cfg := Config{
		Port:              getEnv("PORT", "8080"),
		AnalyzerProvider:  strings.ToLower(getEnv("ANALYZER_PROVIDER", ProviderOpenRouter)),
		OpenRouterAPIKey:  os.Getenv("OPENROUTER_API_KEY"),
		OpenRouterBaseURL: getEnv("OPENROUTER_BASE_URL", "https://openrouter.ai/api/v1"),
		OllamaHost:        getEnv("OLLAMA_HOST", "http://localhost:11434"),
		DefaultModel:      os.Getenv("DEFAULT_MODEL"),
		RequestTimeout:    getMillis("REQUEST_TIMEOUT_MS", 60000),
		MappingProfile:    getEnv("MAPPING_PROFILE", "vivid"),
		CanvasWidth:       getInt("CANVAS_WIDTH", 800),
		CanvasHeight:      getInt("CANVAS_HEIGHT", 600),
		SnapshotMaxDim:    getInt("SNAPSHOT_MAX_DIM", 0),
		AudioSampleRate:   getInt("AUDIO_SAMPLE_RATE", 44100),
		AudioWindow:       getInt("AUDIO_WINDOW", 2048),
		AudioTick:         getMillis("AUDIO_TICK_MS", 16),
		SplatterTTL:       getMillis("SPLATTER_TTL_MS", 2000),
		HistoryDB:         getEnv("HISTORY_DB", "voicecanvas.db"),
		HistoryWorkers:    getInt("HISTORY_WORKERS", 2),
		HistoryQueue:      getInt("HISTORY_QUEUE", 100),
	}

	switch cfg.AnalyzerProvider {
	case ProviderOpenRouter, ProviderOllama:
	default:
		return Config{}, fmt.Errorf("config: unknown ANALYZER_PROVIDER %q", cfg.AnalyzerProvider)
	}
	if cfg.AudioWindow < audio.MinWindow || cfg.AudioWindow&(cfg.AudioWindow-1) != 0 {
		return Config{}, fmt.Errorf("config: AUDIO_WINDOW must be a power of two >= %d, got %d", audio.MinWindow, cfg.AudioWindow)
	}
	if cfg.AnalyzerProvider == ProviderOpenRouter && cfg.OpenRouterAPIKey == "" {
		log.Printf("WARN config: OPENROUTER_API_KEY is not set, remote analysis will be rejected")
	}

	return cfg, nil
}

// Addr is the listen address for the HTTP server.
func (c Config) Addr() string {
	return ":" + strings.TrimPrefix(c.Port, ":")
}

// getEnv returns environment variable value or default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getInt(key string, defaultValue int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil || parsed <= 0 {
		log.Printf("WARN config: ignoring %s=%q, using %d", key, raw, defaultValue)
		return defaultValue
	}
	return parsed
}

func getMillis(key string, defaultMs int) time.Duration {
	return time.Duration(getInt(key, defaultMs)) * time.Millisecond
}
