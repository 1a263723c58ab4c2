package tutor

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/samsaffron/tutor/internal/llm"
)

// MaxTitleLength bounds chat titles, in characters.
const MaxTitleLength = 80

const titlePrompt = `- you will generate a short title based on the first message a user begins a conversation with
- ensure it is not more than 80 characters long
- the title should be a summary of the user's message
- do not use quotes or colons`

// Completer runs a request to completion and returns the text.
type Completer interface {
	Complete(ctx context.Context, req llm.Request) (string, error)
}

// GenerateTitle asks the title model to name a chat after its first message.
// Any failure, or an empty answer, falls back to a truncation of the message.
func GenerateTitle(ctx context.Context, c Completer, firstMessage string) string {
	fallback := TruncateTitle(firstMessage)
	if c == nil {
		return fallback
	}
	text, err := c.Complete(ctx, llm.Request{
		Messages: []llm.Message{
			llm.SystemText(titlePrompt),
			llm.UserText(firstMessage),
		},
		MaxOutputTokens: 64,
	})
	if err != nil {
		return fallback
	}
	title := cleanTitle(text)
	if title == "" {
		return fallback
	}
	return TruncateTitle(title)
}

func cleanTitle(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	s = strings.Trim(s, "\"'`*# ")
	s = strings.ReplaceAll(s, ":", "")
	return strings.TrimSpace(s)
}

// TruncateTitle collapses whitespace and cuts s to MaxTitleLength runes,
// preferring a word boundary.
func TruncateTitle(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if utf8.RuneCountInString(s) <= MaxTitleLength {
		if s == "" {
			return "New chat"
		}
		return s
	}
	runes := []rune(s)
	cut := string(runes[:MaxTitleLength-3])
	if i := strings.LastIndexByte(cut, ' '); i > MaxTitleLength/2 {
		cut = cut[:i]
	}
	return cut + "..."
}
