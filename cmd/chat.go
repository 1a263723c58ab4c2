package cmd

import (
	"errors"
	"fmt"
	"strconv"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/samsaffron/tutor/internal/client"
	"github.com/samsaffron/tutor/internal/config"
	"github.com/samsaffron/tutor/internal/exitcode"
	"github.com/samsaffron/tutor/internal/thinktimer"
	tuichat "github.com/samsaffron/tutor/internal/tui/chat"
	"github.com/samsaffron/tutor/internal/tutor"
	"github.com/samsaffron/tutor/internal/ui"
	"github.com/spf13/cobra"
)

var (
	chatServer  string
	chatToken   string
	chatDelay   string
	chatProblem string
	chatModel   string
	chatNoSetup bool
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start a tutoring session in the terminal",
	Long: `Start an interactive tutoring session against a tutor server.

After each tutor reply, sending stays disabled for the chosen thinking delay
(0, 5 or 30 seconds) while reflection prompts count down.

Keyboard shortcuts:
  enter   - Send message (once the thinking delay is over)
  ctrl+b  - Show an encouragement
  esc     - Stop the current reply
  ctrl+c  - Quit`,
	Args: cobra.NoArgs,
	RunE: runChat,
}

func init() {
	chatCmd.Flags().StringVar(&chatServer, "server", "", "Tutor server URL (overrides tutor.server)")
	chatCmd.Flags().StringVar(&chatToken, "token", "", "Bearer token; empty chats as a guest")
	chatCmd.Flags().StringVar(&chatDelay, "delay", "", "Thinking delay in seconds: 0, 5 or 30")
	chatCmd.Flags().StringVar(&chatProblem, "problem", "", "Problem type: math or fermi")
	chatCmd.Flags().StringVar(&chatModel, "model", "", "Chat model id")
	chatCmd.Flags().BoolVar(&chatNoSetup, "no-setup", false, "Skip the setup form and use flags and config")
	rootCmd.AddCommand(chatCmd)
}

// sessionDefaults merges config values with explicitly set flags.
func sessionDefaults(tc config.TutorConfig, delayFlag, problemFlag, modelFlag string) (ui.SessionSetup, error) {
	delayValue := strconv.Itoa(tc.ThinkingDelay)
	if delayFlag != "" {
		delayValue = delayFlag
	}
	delay, err := thinktimer.ParseDuration(delayValue)
	if err != nil {
		return ui.SessionSetup{}, exitcode.Usagef("%v", err)
	}

	problemValue := tc.ProblemType
	if problemFlag != "" {
		problemValue = problemFlag
	}
	problem, err := tutor.ParseProblemType(problemValue)
	if err != nil {
		return ui.SessionSetup{}, exitcode.Usagef("%v", err)
	}

	model := tc.Model
	if modelFlag != "" {
		model = modelFlag
	}
	return ui.SessionSetup{Delay: delay, ProblemType: problem, Model: model}, nil
}

func runChat(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	setup, err := sessionDefaults(cfg.Tutor, chatDelay, chatProblem, chatModel)
	if err != nil {
		return err
	}

	// The form is only needed when the session was not fully described.
	skipSetup := chatNoSetup || (chatDelay != "" && chatProblem != "")
	if !skipSetup {
		setup, err = ui.RunSessionSetup(setup, cfg.ChatModelIDs())
		if err != nil {
			if errors.Is(err, huh.ErrUserAborted) {
				return exitcode.Cancel()
			}
			return fmt.Errorf("session setup: %w", err)
		}
	}

	server := cfg.Tutor.Server
	if chatServer != "" {
		server = chatServer
	}
	token := cfg.Tutor.Token
	if chatToken != "" {
		token = chatToken
	}

	model := tuichat.New(tuichat.Options{
		Backend:     tuichat.NewRemoteBackend(client.New(server, token)),
		Delay:       setup.Delay,
		ProblemType: setup.ProblemType,
		ChatModel:   setup.Model,
	})

	// Run the TUI (inline mode - no alt screen)
	p := tea.NewProgram(model)
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("failed to run chat: %w", err)
	}

	if len(model.Messages()) > 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "Chat saved as %s\n", model.ChatID())
	}
	return nil
}
