package llm

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samsaffron/tutor/internal/config"
)

func testConfig() *config.Config {
	return &config.Config{
		Providers: map[string]config.ProviderConfig{
			"anthropic": {Type: config.ProviderTypeAnthropic, Model: "claude-sonnet-4-5", ResolvedAPIKey: "k"},
			"openai":    {Type: config.ProviderTypeOpenAI, Model: "gpt-5.2", ResolvedAPIKey: "k"},
			"local":     {Type: config.ProviderTypeOllama, Model: "llama3.2", ResolvedBaseURL: "http://localhost:11434"},
			"nokey":     {Type: config.ProviderTypeGemini, Model: "gemini-2.5-flash"},
		},
		Models: config.ModelsConfig{
			Chat: map[string]string{
				"chat-model":           "mock:tutor",
				"chat-model-reasoning": "anthropic:claude-sonnet-4-5-thinking",
			},
			Title: "mock",
		},
	}
}

func TestParseProviderModel(t *testing.T) {
	cfg := testConfig()

	tests := []struct {
		name         string
		input        string
		wantProvider string
		wantModel    string
		wantErr      bool
	}{
		{name: "provider only", input: "anthropic", wantProvider: "anthropic"},
		{name: "provider with model", input: "openai:gpt-4o", wantProvider: "openai", wantModel: "gpt-4o"},
		{name: "custom provider", input: "local:qwen3", wantProvider: "local", wantModel: "qwen3"},
		{name: "builtin without config", input: "mock:x", wantProvider: "mock", wantModel: "x"},
		{name: "model with colon", input: "local:llama3.2:1b", wantProvider: "local", wantModel: "llama3.2:1b"},
		{name: "invalid provider", input: "unknown:model", wantErr: true},
		{name: "empty", input: " ", wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			provider, model, err := ParseProviderModel(tc.input, cfg)
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.wantProvider, provider)
			assert.Equal(t, tc.wantModel, model)
		})
	}
}

func TestNewProvider(t *testing.T) {
	cfg := testConfig()

	p, err := NewProvider("anthropic", cfg)
	require.NoError(t, err)
	assert.IsType(t, &AnthropicProvider{}, p)
	assert.Equal(t, "claude-sonnet-4-5", p.Model())

	p, err = NewProvider("openai:gpt-5.2-high", cfg)
	require.NoError(t, err)
	assert.Equal(t, "gpt-5.2", p.Model())
	assert.Contains(t, p.Name(), "effort=high")

	p, err = NewProvider("local", cfg)
	require.NoError(t, err)
	assert.IsType(t, &OllamaProvider{}, p)

	_, err = NewProvider("nokey", cfg)
	assert.Error(t, err)

	p, err = NewProvider("mock", cfg)
	require.NoError(t, err)
	stream, err := p.Stream(context.Background(), Request{})
	require.NoError(t, err)
	out, err := Collect(stream)
	require.NoError(t, err)
	assert.Contains(t, out.Text, "<PROGRESS>")
}

func TestModelRegistry(t *testing.T) {
	reg := NewModelRegistry(testConfig(), nil)

	assert.Equal(t, []string{"chat-model", "chat-model-reasoning"}, reg.IDs())
	assert.True(t, reg.Has("chat-model"))
	assert.False(t, reg.Has(TitleModelID))
	assert.False(t, reg.Has("nope"))

	e1, err := reg.Engine("chat-model")
	require.NoError(t, err)
	e2, err := reg.Engine("chat-model")
	require.NoError(t, err)
	assert.Same(t, e1, e2)
	assert.Equal(t, "tutor", e1.Provider().Model())

	_, err = reg.Engine(TitleModelID)
	require.NoError(t, err)

	_, err = reg.Engine("nope")
	assert.Error(t, err)

	mock := NewMockProvider("scripted")
	reg.Register("chat-model", mock)
	e3, err := reg.Engine("chat-model")
	require.NoError(t, err)
	assert.Same(t, mock, e3.Provider())
}

func TestIsGatewayActivationError(t *testing.T) {
	assert.False(t, IsGatewayActivationError(nil))
	assert.False(t, IsGatewayActivationError(errors.New("timeout")))
	err := errors.New("403: AI Gateway requires a valid credit card on file to service requests. Please visit ...")
	assert.True(t, IsGatewayActivationError(err))
}
