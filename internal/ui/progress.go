package ui

import (
	"fmt"
	"strings"
	"time"
)

// StreamingIndicator renders a consistent streaming status line
type StreamingIndicator struct {
	Spinner    string // spinner.View() output
	Phase      string // "Thinking", "Responding", etc.
	Elapsed    time.Duration
	Status     string // optional status (e.g., "reconnecting")
	ShowCancel bool   // show "(esc to cancel)"
}

// Render returns the formatted streaming indicator string
func (s StreamingIndicator) Render(styles *Styles) string {
	var b strings.Builder

	if s.Spinner != "" {
		b.WriteString(s.Spinner)
		b.WriteString(" ")
	}
	b.WriteString(s.Phase)
	b.WriteString("...")

	b.WriteString(fmt.Sprintf(" %.1fs", s.Elapsed.Seconds()))

	if s.Status != "" {
		b.WriteString(" | ")
		b.WriteString(s.Status)
	}

	if s.ShowCancel {
		b.WriteString(" ")
		b.WriteString(styles.Muted.Render("(esc to cancel)"))
	}

	return b.String()
}

// ThinkingBanner renders the countdown shown while submit is held back.
type ThinkingBanner struct {
	Remaining   int
	Instruction string
}

// Render returns the banner, or "" when no countdown is running.
func (t ThinkingBanner) Render(styles *Styles) string {
	if t.Remaining <= 0 {
		return ""
	}
	line := styles.Timer.Render(fmt.Sprintf("Time remaining: %ds", t.Remaining))
	if t.Instruction != "" {
		line += "  " + styles.Muted.Render(t.Instruction)
	}
	return line
}
