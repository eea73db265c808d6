// Package vision picks the configured vision adapter.
package vision

import (
	"github.com/ewilliams-labs/voicecanvas/internal/adapters/ollama"
	"github.com/ewilliams-labs/voicecanvas/internal/adapters/openrouter"
	"github.com/ewilliams-labs/voicecanvas/internal/config"
	"github.com/ewilliams-labs/voicecanvas/internal/core/ports"
)

// Selection is a ready analyzer plus the model ids it can be asked for.
type Selection struct {
	Analyzer     ports.VisionAnalyzer
	Models       []string
	DefaultModel string
}

// FromConfig builds the analyzer named by cfg.AnalyzerProvider. DEFAULT_MODEL
// overrides the provider's default and is listed first if it is not already known.
func FromConfig(cfg config.Config) Selection {
	switch cfg.AnalyzerProvider {
	case config.ProviderOllama:
		model := cfg.DefaultModel
		if model == "" {
			model = ollama.DefaultModel
		}
		return Selection{
			Analyzer:     ollama.NewClient(cfg.OllamaHost),
			Models:       []string{model},
			DefaultModel: model,
		}
	default:
		model := cfg.DefaultModel
		if model == "" {
			model = openrouter.DefaultModel
		}
		return Selection{
			Analyzer:     openrouter.NewClient(cfg.OpenRouterBaseURL, cfg.OpenRouterAPIKey, cfg.RequestTimeout),
			Models:       withModel(openrouter.Models, model),
			DefaultModel: model,
		}
	}
}

func withModel(models []string, model string) []string {
	for _, m := range models {
		if m == model {
			return append([]string(nil), models...)
		}
	}
	return append([]string{model}, models...)
}
