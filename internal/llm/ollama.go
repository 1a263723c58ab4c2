package llm

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
)

// OllamaProvider streams from a local Ollama server through langchaingo.
type OllamaProvider struct {
	llm   llms.Model
	model string
}

func NewOllamaProvider(baseURL, model string) (*OllamaProvider, error) {
	opts := []ollama.Option{ollama.WithModel(model)}
	if baseURL != "" {
		opts = append(opts, ollama.WithServerURL(baseURL))
	}
	client, err := ollama.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Ollama LLM: %w", err)
	}
	return &OllamaProvider{llm: client, model: model}, nil
}

func (p *OllamaProvider) Name() string {
	return fmt.Sprintf("Ollama (%s)", p.model)
}

func (p *OllamaProvider) Model() string { return p.model }

func (p *OllamaProvider) Stream(ctx context.Context, req Request) (Stream, error) {
	return newEventStream(ctx, func(ctx context.Context, events chan<- Event) error {
		messages := buildLangchainMessages(req.Messages)
		if len(messages) == 0 {
			return fmt.Errorf("no user content provided")
		}

		opts := []llms.CallOption{
			llms.WithStreamingFunc(func(ctx context.Context, chunk []byte) error {
				if len(chunk) == 0 {
					return nil
				}
				return send(ctx, events, Event{Type: EventTextDelta, Text: string(chunk)})
			}),
		}
		if req.Temperature > 0 {
			opts = append(opts, llms.WithTemperature(float64(req.Temperature)))
		}
		if req.MaxOutputTokens > 0 {
			opts = append(opts, llms.WithMaxTokens(req.MaxOutputTokens))
		}

		resp, err := p.llm.GenerateContent(ctx, messages, opts...)
		if err != nil {
			return fmt.Errorf("ollama streaming error: %w", err)
		}
		if usage := ollamaUsage(resp); usage != nil {
			if err := send(ctx, events, Event{Type: EventUsage, Use: usage}); err != nil {
				return err
			}
		}
		return send(ctx, events, Event{Type: EventDone})
	}), nil
}

func buildLangchainMessages(messages []Message) []llms.MessageContent {
	out := make([]llms.MessageContent, 0, len(messages))
	for _, msg := range messages {
		text := msg.Text()
		if text == "" {
			continue
		}
		role := llms.ChatMessageTypeHuman
		switch msg.Role {
		case RoleSystem:
			role = llms.ChatMessageTypeSystem
		case RoleAssistant:
			role = llms.ChatMessageTypeAI
		}
		out = append(out, llms.TextParts(role, text))
	}
	return out
}

func ollamaUsage(resp *llms.ContentResponse) *Usage {
	if resp == nil || len(resp.Choices) == 0 {
		return nil
	}
	info := resp.Choices[0].GenerationInfo
	prompt, okPrompt := info["PromptTokens"].(int)
	completion, okCompletion := info["CompletionTokens"].(int)
	if !okPrompt && !okCompletion {
		return nil
	}
	return &Usage{InputTokens: prompt, OutputTokens: completion}
}
