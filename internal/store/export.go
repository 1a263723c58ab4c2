package store

import (
	"bytes"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/samsaffron/tutor/internal/llm"
	"github.com/samsaffron/tutor/internal/progress"
)

// ExportFormat selects the output of Export.
type ExportFormat string

const (
	FormatMarkdown ExportFormat = "markdown"
	FormatHTML     ExportFormat = "html"
)

// ParseExportFormat accepts "markdown"/"md" or "html".
func ParseExportFormat(s string) (ExportFormat, error) {
	switch strings.ToLower(s) {
	case "", "markdown", "md":
		return FormatMarkdown, nil
	case "html":
		return FormatHTML, nil
	}
	return "", fmt.Errorf("unknown export format %q (want markdown or html)", s)
}

// ExportOptions configures chat export.
type ExportOptions struct {
	Format        ExportFormat
	IncludeSystem bool // Include system messages in export
}

var markdown = goldmark.New(goldmark.WithExtensions(extension.Table))

// Export renders a chat transcript. Progress markers are stripped from the
// text and the final progress appears in the header.
func Export(chat *Chat, messages []Message, opts ExportOptions) (string, error) {
	md := ExportToMarkdown(chat, messages, opts)
	if opts.Format != FormatHTML {
		return md, nil
	}

	var body bytes.Buffer
	if err := markdown.Convert([]byte(md), &body); err != nil {
		return "", fmt.Errorf("render html: %w", err)
	}
	var b strings.Builder
	b.WriteString("<!DOCTYPE html>\n<html>\n<head>\n<meta charset=\"utf-8\">\n")
	fmt.Fprintf(&b, "<title>%s</title>\n", html.EscapeString(chatTitle(chat)))
	b.WriteString("</head>\n<body>\n")
	b.Write(body.Bytes())
	b.WriteString("</body>\n</html>\n")
	return b.String(), nil
}

// escapeTableCell escapes special characters for markdown table cells.
func escapeTableCell(s string) string {
	// Replace pipe characters and newlines which break tables
	s = strings.ReplaceAll(s, "|", "\\|")
	s = strings.ReplaceAll(s, "\n", " ")
	return s
}

func chatTitle(chat *Chat) string {
	if chat.Title != "" {
		return chat.Title
	}
	return chat.ID
}

// ExportToMarkdown renders a chat and its messages as markdown.
func ExportToMarkdown(chat *Chat, messages []Message, opts ExportOptions) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# %s\n\n", escapeTableCell(chatTitle(chat)))

	b.WriteString("| | |\n")
	b.WriteString("|---|---|\n")
	if chat.ProblemType != "" {
		fmt.Fprintf(&b, "| **Problem type** | %s |\n", escapeTableCell(chat.ProblemType))
	}
	fmt.Fprintf(&b, "| **Visibility** | %s |\n", chat.Visibility)
	if chat.Progress != nil {
		fmt.Fprintf(&b, "| **Progress** | %d%% |\n", progress.Percent(*chat.Progress))
	}
	fmt.Fprintf(&b, "| **Created** | %s |\n", chat.CreatedAt.UTC().Format("2006-01-02 15:04 UTC"))

	var thinking time.Duration
	for _, msg := range messages {
		thinking += time.Duration(msg.ThinkMs) * time.Millisecond
	}
	if thinking > 0 {
		fmt.Fprintf(&b, "| **Thinking time** | %s |\n", thinking.Round(time.Second))
	}
	b.WriteString("\n---\n\n")

	for _, msg := range messages {
		switch msg.Role {
		case llm.RoleSystem:
			if !opts.IncludeSystem {
				continue
			}
			b.WriteString("### System\n\n")
		case llm.RoleUser:
			b.WriteString("### Learner\n\n")
			if msg.ThinkMs > 0 {
				fmt.Fprintf(&b, "_Thought for %s_\n\n", (time.Duration(msg.ThinkMs) * time.Millisecond).Round(time.Second))
			}
		case llm.RoleAssistant:
			b.WriteString("### Tutor\n\n")
		default:
			continue
		}

		text := strings.TrimSpace(progress.Strip(msg.ToLLM().Text()))
		b.WriteString(text)
		b.WriteString("\n\n---\n\n")
	}

	return b.String()
}
