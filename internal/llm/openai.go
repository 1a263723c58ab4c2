package llm

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/responses"
	"github.com/openai/openai-go/shared"
)

// OpenAIProvider implements Provider using the OpenAI Responses API. A
// base URL turns it into a client for OpenAI-compatible servers.
type OpenAIProvider struct {
	client *openai.Client
	model  string
	effort string // reasoning effort: "low", "medium", "high", "xhigh", or ""
}

// parseModelEffort extracts effort suffix from model name.
// "gpt-5.2-high" -> ("gpt-5.2", "high")
// "gpt-5.2-xhigh" -> ("gpt-5.2", "xhigh")
// "gpt-5.2" -> ("gpt-5.2", "")
func parseModelEffort(model string) (string, string) {
	// Longest first so "-high" does not match "-xhigh".
	suffixes := []string{"xhigh", "medium", "high", "low"}
	for _, effort := range suffixes {
		suffix := "-" + effort
		if strings.HasSuffix(model, suffix) {
			return strings.TrimSuffix(model, suffix), effort
		}
	}
	return model, ""
}

func NewOpenAIProvider(apiKey, baseURL, model string) *OpenAIProvider {
	actualModel, effort := parseModelEffort(model)
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	client := openai.NewClient(opts...)
	return &OpenAIProvider{
		client: &client,
		model:  actualModel,
		effort: effort,
	}
}

func (p *OpenAIProvider) Name() string {
	if p.effort != "" {
		return fmt.Sprintf("OpenAI (%s, effort=%s)", p.model, p.effort)
	}
	return fmt.Sprintf("OpenAI (%s)", p.model)
}

func (p *OpenAIProvider) Model() string { return p.model }

func (p *OpenAIProvider) Stream(ctx context.Context, req Request) (Stream, error) {
	return newEventStream(ctx, func(ctx context.Context, events chan<- Event) error {
		system, inputItems := buildOpenAIInput(req.Messages)
		if len(inputItems) == 0 {
			return fmt.Errorf("no user content provided")
		}

		params := responses.ResponseNewParams{
			Model: shared.ResponsesModel(chooseModel(req.Model, p.model)),
			Input: responses.ResponseNewParamsInputUnion{
				OfInputItemList: inputItems,
			},
		}
		if system != "" {
			params.Instructions = openai.String(system)
		}
		if req.MaxOutputTokens > 0 {
			params.MaxOutputTokens = openai.Int(int64(req.MaxOutputTokens))
		}
		if req.Temperature > 0 {
			params.Temperature = openai.Float(float64(req.Temperature))
		}
		effort := p.effort
		if req.ReasoningEffort != "" {
			effort = req.ReasoningEffort
		}
		if effort != "" {
			params.Reasoning = shared.ReasoningParam{
				Effort:  shared.ReasoningEffort(effort),
				Summary: shared.ReasoningSummaryAuto,
			}
		}

		if req.Debug {
			fmt.Fprintln(os.Stderr, "=== DEBUG: OpenAI Stream Request ===")
			fmt.Fprintf(os.Stderr, "Provider: %s\n", p.Name())
			fmt.Fprintf(os.Stderr, "System: %s\n", truncate(system, 200))
			fmt.Fprintf(os.Stderr, "Input Items: %d\n", len(inputItems))
			fmt.Fprintln(os.Stderr, "===================================")
		}

		var usage *Usage
		stream := p.client.Responses.NewStreaming(ctx, params)
		for stream.Next() {
			event := stream.Current()
			var ev Event
			switch event.Type {
			case "response.output_text.delta":
				ev = Event{Type: EventTextDelta, Text: event.AsResponseOutputTextDelta().Delta}
			case "response.reasoning_summary_text.delta":
				ev = Event{Type: EventReasoningDelta, Text: event.AsResponseReasoningSummaryTextDelta().Delta}
			case "response.completed":
				u := event.AsResponseCompleted().Response.Usage
				usage = &Usage{
					InputTokens:       int(u.InputTokens),
					OutputTokens:      int(u.OutputTokens),
					CachedInputTokens: int(u.InputTokensDetails.CachedTokens),
					ReasoningTokens:   int(u.OutputTokensDetails.ReasoningTokens),
				}
				continue
			default:
				continue
			}
			if ev.Text == "" {
				continue
			}
			if err := send(ctx, events, ev); err != nil {
				return err
			}
		}
		if err := stream.Err(); err != nil {
			return fmt.Errorf("openai streaming error: %w", err)
		}
		if usage != nil {
			if err := send(ctx, events, Event{Type: EventUsage, Use: usage}); err != nil {
				return err
			}
		}
		return send(ctx, events, Event{Type: EventDone})
	}), nil
}

func buildOpenAIInput(messages []Message) (string, responses.ResponseInputParam) {
	var systemParts []string
	inputItems := make(responses.ResponseInputParam, 0, len(messages))

	leading := true
	for _, msg := range messages {
		text := msg.Text()
		if text == "" {
			continue
		}
		switch msg.Role {
		case RoleSystem:
			if leading {
				systemParts = append(systemParts, text)
				continue
			}
			inputItems = append(inputItems, responses.ResponseInputItemParamOfMessage(text, responses.EasyInputMessageRoleSystem))
		case RoleUser:
			inputItems = append(inputItems, responses.ResponseInputItemParamOfMessage(text, responses.EasyInputMessageRoleUser))
		case RoleAssistant:
			inputItems = append(inputItems, responses.ResponseInputItemParamOfMessage(text, responses.EasyInputMessageRoleAssistant))
		}
		leading = false
	}

	return strings.Join(systemParts, "\n\n"), inputItems
}
