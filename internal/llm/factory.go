package llm

import (
	"fmt"
	"sort"
	"strings"

	"github.com/samsaffron/tutor/internal/config"
)

// mockReply is what the "mock" provider answers when no real provider is
// configured, so the server and client can be exercised offline.
const mockReply = "Let's work through this together. What is the first thing you notice about the problem?\n<PROGRESS>0.1</PROGRESS>"

// ParseProviderModel splits "provider:model" (or just "provider") and checks
// that the provider is configured or built in. The model is empty when the
// spec names only a provider.
func ParseProviderModel(spec string, cfg *config.Config) (string, string, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return "", "", fmt.Errorf("empty provider spec")
	}
	provider, model, _ := strings.Cut(spec, ":")
	if !knownProvider(provider, cfg) {
		return "", "", fmt.Errorf("unknown provider: %s (available: %s)", provider, strings.Join(availableProviders(cfg), ", "))
	}
	return provider, model, nil
}

// NewProvider builds the provider named by a "provider:model" spec. The model
// falls back to the provider's configured default.
func NewProvider(spec string, cfg *config.Config) (Provider, error) {
	name, model, err := ParseProviderModel(spec, cfg)
	if err != nil {
		return nil, err
	}

	var pc config.ProviderConfig
	if cfg != nil {
		pc = cfg.Providers[name]
	}
	if model == "" {
		model = pc.Model
	}
	typ := config.InferProviderType(name, pc.Type)

	switch typ {
	case config.ProviderTypeAnthropic:
		if model == "" {
			return nil, fmt.Errorf("provider %s: no model configured", name)
		}
		return NewAnthropicProvider(pc.ResolvedAPIKey, pc.ResolvedBaseURL, model), nil
	case config.ProviderTypeOpenAI:
		if pc.ResolvedAPIKey == "" && pc.ResolvedBaseURL == "" {
			return nil, fmt.Errorf("provider %s: OPENAI_API_KEY or api_key is required", name)
		}
		if model == "" {
			return nil, fmt.Errorf("provider %s: no model configured", name)
		}
		return NewOpenAIProvider(pc.ResolvedAPIKey, pc.ResolvedBaseURL, model), nil
	case config.ProviderTypeGemini:
		if pc.ResolvedAPIKey == "" {
			return nil, fmt.Errorf("provider %s: GEMINI_API_KEY or api_key is required", name)
		}
		if model == "" {
			return nil, fmt.Errorf("provider %s: no model configured", name)
		}
		return NewGeminiProvider(pc.ResolvedAPIKey, model), nil
	case config.ProviderTypeOllama:
		if model == "" {
			return nil, fmt.Errorf("provider %s: no model configured", name)
		}
		return NewOllamaProvider(pc.ResolvedBaseURL, model)
	case config.ProviderTypeMock:
		if model == "" {
			model = "mock-model"
		}
		return NewMockProvider(name).WithModel(model).AddTextResponse(mockReply).Repeating(), nil
	default:
		return nil, fmt.Errorf("provider %s: unsupported type %q", name, typ)
	}
}

func knownProvider(name string, cfg *config.Config) bool {
	if cfg != nil {
		if _, ok := cfg.Providers[name]; ok {
			return true
		}
	}
	switch config.ProviderType(name) {
	case config.ProviderTypeAnthropic, config.ProviderTypeOpenAI, config.ProviderTypeGemini,
		config.ProviderTypeOllama, config.ProviderTypeMock:
		return true
	}
	return false
}

func availableProviders(cfg *config.Config) []string {
	seen := map[string]bool{
		string(config.ProviderTypeAnthropic): true,
		string(config.ProviderTypeOpenAI):    true,
		string(config.ProviderTypeGemini):    true,
		string(config.ProviderTypeOllama):    true,
		string(config.ProviderTypeMock):      true,
	}
	if cfg != nil {
		for name := range cfg.Providers {
			seen[name] = true
		}
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
