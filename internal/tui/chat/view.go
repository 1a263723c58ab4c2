package chat

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/lipgloss"

	"github.com/samsaffron/tutor/internal/chaterr"
	"github.com/samsaffron/tutor/internal/progress"
	"github.com/samsaffron/tutor/internal/tutor"
	"github.com/samsaffron/tutor/internal/ui"
)

func (m *Model) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder
	b.WriteString(m.viewport.View())
	b.WriteString("\n")

	for _, line := range m.statusLines() {
		b.WriteString(line)
		b.WriteString("\n")
	}

	b.WriteString(m.textarea.View())
	b.WriteString("\n")
	b.WriteString(m.renderHelp())
	return b.String()
}

// statusLines renders everything between the conversation and the input.
func (m *Model) statusLines() []string {
	var lines []string

	if v, ok := m.LatestProgress(); ok {
		label := fmt.Sprintf("Progress %3d%%", progress.Percent(v))
		lines = append(lines, m.styles.Muted.Render(label)+" "+m.bar.ViewAs(progress.Clamp(v)))
	}

	snap := m.timer.Snapshot()
	if snap.Active() {
		lines = append(lines, ui.ThinkingBanner{
			Remaining:   snap.Remaining,
			Instruction: tutor.ThinkingInstruction(snap.Remaining),
		}.Render(m.styles))
	}

	if m.encouragement != "" {
		lines = append(lines, m.styles.Highlighted.Render(m.encouragement))
	}

	if m.streaming {
		phase := "Thinking"
		if m.textStarted {
			phase = "Responding"
		}
		lines = append(lines, ui.StreamingIndicator{
			Spinner:    m.spinner.View(),
			Phase:      phase,
			Elapsed:    time.Since(m.streamStarted),
			ShowCancel: true,
		}.Render(m.styles))
	}

	if m.err != nil {
		lines = append(lines, m.styles.Error.Render(ui.FailIcon+" "+errorText(m.err)))
	}
	return lines
}

// errorText prefers the user-facing message of API errors.
func errorText(err error) string {
	if e, ok := chaterr.As(err); ok {
		return e.Message()
	}
	return err.Error()
}

func (m *Model) renderConversation() string {
	width := m.viewport.Width
	if width <= 0 {
		width = 80
	}
	wrap := lipgloss.NewStyle().Width(width - 2)

	var b strings.Builder
	for i, msg := range m.messages {
		if i > 0 {
			b.WriteString("\n")
		}
		switch msg.Role {
		case RoleUser:
			b.WriteString(m.styles.Learner.Render(ui.LearnerIcon + " "))
			b.WriteString(wrap.Render(msg.Content))
			if msg.ThinkSeconds != nil {
				b.WriteString("\n")
				b.WriteString(m.styles.Muted.Render(fmt.Sprintf("  thought for %.1fs", *msg.ThinkSeconds)))
			}
		case RoleAssistant:
			if msg.Reasoning != "" {
				b.WriteString(m.styles.Reasoning.Render(wrap.Render(msg.Reasoning)))
				b.WriteString("\n")
			}
			b.WriteString(m.styles.Tutor.Render(ui.TutorIcon + " "))
			b.WriteString(wrap.Render(msg.Content))
			if msg.Progress.Complete() {
				b.WriteString("\n")
				b.WriteString(m.styles.Success.Render(ui.SuccessIcon + " Problem solved!"))
			}
		}
		b.WriteString("\n")
	}
	return b.String()
}

func (m *Model) renderHelp() string {
	bored := m.keys.Bored.Help()
	if m.boredClicks > 0 {
		bored.Desc = fmt.Sprintf("%s (%d)", bored.Desc, m.boredClicks)
	}
	items := []struct {
		help     key.Help
		disabled bool
	}{
		{m.keys.Send.Help(), !m.CanSubmit()},
		{bored, false},
		{m.keys.Interrupt.Help(), !m.streaming},
		{m.keys.Quit.Help(), false},
	}

	parts := make([]string, 0, len(items))
	for _, item := range items {
		text := item.help.Key + " " + item.help.Desc
		if item.disabled {
			text = m.styles.Subtitle.Faint(true).Render(text)
		}
		parts = append(parts, text)
	}
	return m.styles.Footer.Render(strings.Join(parts, " • "))
}
