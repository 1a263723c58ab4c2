package llm

import (
	"testing"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnthropicBuildParams(t *testing.T) {
	p := NewAnthropicProvider("test-key", "", "claude-sonnet-4-5")
	params := p.buildParams(Request{
		Messages: []Message{
			SystemText("You are a tutor."),
			UserText("hi"),
			AssistantText("hello"),
			UserText("help"),
		},
		Temperature: 0.5,
	})

	assert.Equal(t, anthropic.Model("claude-sonnet-4-5"), params.Model)
	assert.Equal(t, int64(anthropicMaxTokens), params.MaxTokens)
	require.Len(t, params.System, 1)
	assert.Equal(t, "You are a tutor.", params.System[0].Text)
	require.Len(t, params.Messages, 3)
	assert.Equal(t, anthropic.MessageParamRoleUser, params.Messages[0].Role)
	assert.Equal(t, anthropic.MessageParamRoleAssistant, params.Messages[1].Role)
	assert.Nil(t, params.Thinking.OfEnabled)
	assert.True(t, params.Temperature.Valid())
}

func TestAnthropicThinkingSuffix(t *testing.T) {
	p := NewAnthropicProvider("test-key", "", "claude-sonnet-4-5-thinking")
	assert.Equal(t, "claude-sonnet-4-5", p.Model())
	assert.Contains(t, p.Name(), "thinking")

	params := p.buildParams(Request{
		Messages:        []Message{UserText("hi")},
		MaxOutputTokens: 1000,
		Temperature:     0.7,
	})
	require.NotNil(t, params.Thinking.OfEnabled)
	assert.Equal(t, int64(anthropicThinkingBudget), params.Thinking.OfEnabled.BudgetTokens)
	assert.Greater(t, params.MaxTokens, int64(anthropicThinkingBudget))
	// Temperature is not accepted together with extended thinking.
	assert.False(t, params.Temperature.Valid())
}

func TestAnthropicFewShotSeparatorsStayInPlace(t *testing.T) {
	p := NewAnthropicProvider("test-key", "", "claude-haiku-4-5")
	params := p.buildParams(Request{
		Messages: []Message{
			SystemText("prompt"),
			UserText("earlier question"),
			SystemText("Example 1"),
			UserText("example question"),
			AssistantText("example answer"),
			SystemText("Example 2"),
			UserText("new question"),
		},
	})

	require.Len(t, params.System, 1)
	require.Len(t, params.Messages, 3)

	first := params.Messages[0]
	require.Len(t, first.Content, 1)
	assert.Equal(t, "earlier question\n\n<system>Example 1</system>\n\nexample question", first.Content[0].OfText.Text)

	last := params.Messages[2]
	assert.Equal(t, anthropic.MessageParamRoleUser, last.Role)
	assert.Equal(t, "<system>Example 2</system>\n\nnew question", last.Content[0].OfText.Text)
}
