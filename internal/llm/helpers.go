package llm

import (
	"context"
	"strings"
)

func chooseModel(requested, fallback string) string {
	if strings.TrimSpace(requested) != "" {
		return requested
	}
	return fallback
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}

// splitSystem hoists the leading system messages into a single system
// string for providers with a dedicated system field. System messages that
// appear later (few-shot separators) keep their position as user turns
// wrapped in <system> tags, and consecutive turns of the same role are
// merged.
func splitSystem(messages []Message) (string, []Message) {
	var system []string
	i := 0
	for ; i < len(messages) && messages[i].Role == RoleSystem; i++ {
		if text := messages[i].Text(); text != "" {
			system = append(system, text)
		}
	}

	rest := make([]Message, 0, len(messages)-i)
	for _, msg := range messages[i:] {
		if msg.Role == RoleSystem {
			msg = UserText("<system>" + msg.Text() + "</system>")
		}
		if n := len(rest); n > 0 && rest[n-1].Role == msg.Role {
			merged := rest[n-1]
			merged.Parts = append(append([]Part{}, merged.Parts...), Part{Type: PartText, Text: "\n\n"})
			merged.Parts = append(merged.Parts, msg.Parts...)
			rest[n-1] = merged
			continue
		}
		rest = append(rest, msg)
	}
	return strings.Join(system, "\n\n"), rest
}

// send delivers ev unless ctx is cancelled first.
func send(ctx context.Context, ch chan<- Event, ev Event) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case ch <- ev:
		return nil
	}
}
