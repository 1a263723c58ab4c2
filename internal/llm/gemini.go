package llm

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

// GeminiProvider streams from the Gemini API. A "-thinking" model suffix
// asks for thought summaries, surfaced as reasoning deltas.
type GeminiProvider struct {
	apiKey   string
	model    string
	thinking bool
}

func NewGeminiProvider(apiKey, model string) *GeminiProvider {
	actual, thinking := strings.CutSuffix(model, "-thinking")
	return &GeminiProvider{apiKey: apiKey, model: actual, thinking: thinking}
}

func (p *GeminiProvider) Name() string {
	return fmt.Sprintf("Gemini (%s)", p.model)
}

func (p *GeminiProvider) Model() string { return p.model }

func (p *GeminiProvider) Stream(ctx context.Context, req Request) (Stream, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  p.apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini client: %w", err)
	}

	return newEventStream(ctx, func(ctx context.Context, events chan<- Event) error {
		system, conversation := splitSystem(req.Messages)
		contents := buildGeminiContents(conversation)
		if len(contents) == 0 {
			return fmt.Errorf("no user content provided")
		}

		config := &genai.GenerateContentConfig{}
		if system != "" {
			config.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
		}
		if req.Temperature > 0 {
			config.Temperature = genai.Ptr(req.Temperature)
		}
		if req.MaxOutputTokens > 0 {
			config.MaxOutputTokens = int32(req.MaxOutputTokens)
		}
		if p.thinking {
			config.ThinkingConfig = &genai.ThinkingConfig{IncludeThoughts: true}
		}

		var usage *Usage
		for resp, err := range client.Models.GenerateContentStream(ctx, chooseModel(req.Model, p.model), contents, config) {
			if err != nil {
				return fmt.Errorf("gemini streaming error: %w", err)
			}
			if resp.UsageMetadata != nil {
				usage = &Usage{
					InputTokens:       int(resp.UsageMetadata.PromptTokenCount),
					OutputTokens:      int(resp.UsageMetadata.CandidatesTokenCount),
					CachedInputTokens: int(resp.UsageMetadata.CachedContentTokenCount),
					ReasoningTokens:   int(resp.UsageMetadata.ThoughtsTokenCount),
				}
			}
			if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
				continue
			}
			for _, part := range resp.Candidates[0].Content.Parts {
				if part == nil || part.Text == "" {
					continue
				}
				typ := EventTextDelta
				if part.Thought {
					typ = EventReasoningDelta
				}
				if err := send(ctx, events, Event{Type: typ, Text: part.Text}); err != nil {
					return err
				}
			}
		}

		if usage != nil {
			if err := send(ctx, events, Event{Type: EventUsage, Use: usage}); err != nil {
				return err
			}
		}
		return send(ctx, events, Event{Type: EventDone})
	}), nil
}

func buildGeminiContents(messages []Message) []*genai.Content {
	contents := make([]*genai.Content, 0, len(messages))
	for _, msg := range messages {
		text := msg.Text()
		if text == "" {
			continue
		}
		role := genai.Role(genai.RoleUser)
		if msg.Role == RoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(text, role))
	}
	return contents
}
