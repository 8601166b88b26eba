package providers

import (
	"log/slog"
	"strings"

	"piiguard/internal/core"
)

// keyConfigured reports whether the API key looks real rather than the
// unedited placeholder value shipped in .env.example.
func keyConfigured(apiKey string) bool {
	return apiKey != "" && !strings.HasPrefix(apiKey, "sk-or-v1-your")
}

// New returns the provider for the given API key: OpenRouter when a real
// key is configured, otherwise the mock provider in demo mode.
func New(apiKey string, opts ...OpenRouterOption) core.Provider {
	if !keyConfigured(apiKey) {
		slog.Warn("no OpenRouter API key configured, running in demo mode with mock provider")
		return NewMock()
	}
	return NewOpenRouter(apiKey, opts...)
}
