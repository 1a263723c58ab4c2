package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/samsaffron/tutor/internal/exitcode"
	"github.com/samsaffron/tutor/internal/llm"
	"github.com/samsaffron/tutor/internal/progress"
	"github.com/samsaffron/tutor/internal/store"
	"github.com/samsaffron/tutor/internal/ui"
	"github.com/spf13/cobra"
)

var chatsCmd = &cobra.Command{
	Use:   "chats",
	Short: "Manage stored tutoring chats",
	Long: `List, search, show, delete, and export chats in the server database.

Examples:
  tutor chats                           # List recent chats
  tutor chats list --user alice
  tutor chats search "two digit"
  tutor chats show <id>
  tutor chats delete <id>
  tutor chats export <id> [path.md]
  tutor chats export <id> chat.html --format html`,
	RunE: runChatsList, // Default to list
}

var chatsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List chats",
	RunE:  runChatsList,
}

var chatsSearchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search message text",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runChatsSearch,
}

var chatsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a chat transcript",
	Args:  cobra.ExactArgs(1),
	RunE:  runChatsShow,
}

var chatsDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a chat",
	Args:  cobra.ExactArgs(1),
	RunE:  runChatsDelete,
}

var chatsExportCmd = &cobra.Command{
	Use:   "export <id> [path]",
	Short: "Export a chat as markdown or HTML",
	Args:  cobra.RangeArgs(1, 2),
	RunE:  runChatsExport,
}

// Flags
var (
	chatsUser   string
	chatsLimit  int
	chatsOffset int
	chatsJSON   bool
	chatsFormat string
)

func init() {
	for _, c := range []*cobra.Command{chatsCmd, chatsListCmd} {
		c.Flags().StringVar(&chatsUser, "user", "", "Only chats of this user id")
		c.Flags().IntVar(&chatsLimit, "limit", 20, "Maximum number of chats to list")
		c.Flags().IntVar(&chatsOffset, "offset", 0, "Skip this many chats")
	}
	chatsSearchCmd.Flags().StringVar(&chatsUser, "user", "", "Only chats of this user id")
	chatsShowCmd.Flags().BoolVar(&chatsJSON, "json", false, "Output as JSON")
	chatsExportCmd.Flags().StringVar(&chatsFormat, "format", "markdown", "Export format: markdown or html")

	chatsCmd.AddCommand(chatsListCmd)
	chatsCmd.AddCommand(chatsSearchCmd)
	chatsCmd.AddCommand(chatsShowCmd)
	chatsCmd.AddCommand(chatsDeleteCmd)
	chatsCmd.AddCommand(chatsExportCmd)

	rootCmd.AddCommand(chatsCmd)
}

// withStore opens the configured database for the duration of fn.
func withStore(fn func(st store.Store) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()
	return fn(st)
}

func runChatsList(cmd *cobra.Command, args []string) error {
	return withStore(func(st store.Store) error {
		opts := store.ListOptions{UserID: chatsUser, Limit: chatsLimit, Offset: chatsOffset}
		return listChats(cmd.Context(), cmd.OutOrStdout(), st, opts)
	})
}

func listChats(ctx context.Context, w io.Writer, st store.Store, opts store.ListOptions) error {
	chats, err := st.ListChats(ctx, opts)
	if err != nil {
		return fmt.Errorf("failed to list chats: %w", err)
	}

	if len(chats) == 0 {
		fmt.Fprintln(w, "No chats found.")
		return nil
	}

	fmt.Fprintf(w, "%-36s %-16s %-6s %-8s %-5s %-10s %s\n", "ID", "User", "Type", "Progress", "Msgs", "Created", "Title")
	fmt.Fprintln(w, strings.Repeat("-", 110))

	for _, c := range chats {
		prog := "-"
		if c.Progress != nil {
			prog = fmt.Sprintf("%d%%", progress.Percent(*c.Progress))
		}
		problem := c.ProblemType
		if problem == "" {
			problem = "-"
		}
		fmt.Fprintf(w, "%-36s %-16s %-6s %-8s %-5d %-10s %s\n",
			c.ID, ui.Truncate(c.UserID, 16), problem, prog, c.MessageCount,
			formatRelativeTime(c.CreatedAt), ui.Truncate(c.Title, 40))
	}

	return nil
}

func runChatsSearch(cmd *cobra.Command, args []string) error {
	return withStore(func(st store.Store) error {
		return searchChats(cmd.Context(), cmd.OutOrStdout(), st, chatsUser, strings.Join(args, " "))
	})
}

func searchChats(ctx context.Context, w io.Writer, st store.Store, userID, query string) error {
	results, err := st.SearchMessages(ctx, userID, query, 20)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	if len(results) == 0 {
		fmt.Fprintf(w, "No results found for '%s'\n", query)
		return nil
	}

	fmt.Fprintf(w, "Found %d matches for '%s':\n\n", len(results), query)
	for _, r := range results {
		title := r.Title
		if title == "" {
			title = r.ChatID
		}
		fmt.Fprintf(w, "**%s** (%s)\n", title, r.ChatID)
		fmt.Fprintf(w, "  %s\n\n", progress.Strip(r.Snippet))
	}

	return nil
}

func runChatsShow(cmd *cobra.Command, args []string) error {
	return withStore(func(st store.Store) error {
		return showChat(cmd.Context(), cmd.OutOrStdout(), st, args[0], chatsJSON)
	})
}

func loadChat(ctx context.Context, st store.Store, id string) (*store.Chat, []store.Message, error) {
	chat, err := st.GetChatByID(ctx, id)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get chat: %w", err)
	}
	if chat == nil {
		return nil, nil, exitcode.NotFoundf("chat '%s' not found", id)
	}
	messages, err := st.GetMessagesByChatID(ctx, chat.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get messages: %w", err)
	}
	return chat, messages, nil
}

func showChat(ctx context.Context, w io.Writer, st store.Store, id string, asJSON bool) error {
	chat, messages, err := loadChat(ctx, st, id)
	if err != nil {
		return err
	}

	if asJSON {
		data := struct {
			Chat     *store.Chat     `json:"chat"`
			Messages []store.Message `json:"messages"`
		}{
			Chat:     chat,
			Messages: messages,
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(data)
	}

	// Text output
	fmt.Fprintf(w, "Chat: %s\n", chat.ID)
	if chat.Title != "" {
		fmt.Fprintf(w, "Title: %s\n", chat.Title)
	}
	fmt.Fprintf(w, "User: %s\n", chat.UserID)
	fmt.Fprintf(w, "Visibility: %s\n", chat.Visibility)
	if chat.ProblemType != "" {
		fmt.Fprintf(w, "Problem type: %s\n", chat.ProblemType)
	}
	if chat.Progress != nil {
		fmt.Fprintf(w, "Progress: %d%%\n", progress.Percent(*chat.Progress))
	}
	fmt.Fprintf(w, "Created: %s\n", chat.CreatedAt.Format(time.RFC3339))
	fmt.Fprintf(w, "Messages: %d\n", len(messages))
	fmt.Fprintln(w)

	for _, msg := range messages {
		var role string
		switch msg.Role {
		case llm.RoleUser:
			role = ui.LearnerIcon
		case llm.RoleAssistant:
			role = ui.TutorIcon
		default:
			continue
		}
		content := progress.Strip(msg.TextContent)
		if msg.ThinkMs > 0 {
			content += fmt.Sprintf(" (thought %.1fs)", float64(msg.ThinkMs)/1000)
		}
		fmt.Fprintf(w, "%s %s\n\n", role, ui.Truncate(content, 400))
	}

	return nil
}

func runChatsDelete(cmd *cobra.Command, args []string) error {
	return withStore(func(st store.Store) error {
		chat, err := st.DeleteChatByID(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("failed to delete chat: %w", err)
		}
		if chat == nil {
			return exitcode.NotFoundf("chat '%s' not found", args[0])
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Deleted chat: %s\n", chat.ID)
		return nil
	})
}

func runChatsExport(cmd *cobra.Command, args []string) error {
	format, err := store.ParseExportFormat(chatsFormat)
	if err != nil {
		return exitcode.Usagef("%v", err)
	}
	return withStore(func(st store.Store) error {
		path := ""
		if len(args) > 1 {
			path = args[1]
		}
		return exportChat(cmd.Context(), cmd.OutOrStdout(), st, args[0], path, format)
	})
}

func exportChat(ctx context.Context, w io.Writer, st store.Store, id, path string, format store.ExportFormat) error {
	chat, messages, err := loadChat(ctx, st, id)
	if err != nil {
		return err
	}

	out, err := store.Export(chat, messages, store.ExportOptions{Format: format})
	if err != nil {
		return err
	}

	if path == "" {
		ext := ".md"
		if format == store.FormatHTML {
			ext = ".html"
		}
		path = chat.ID + ext
	}
	if err := os.WriteFile(path, []byte(out), 0644); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}

	fmt.Fprintf(w, "Exported %d messages to %s\n", len(messages), path)
	return nil
}

// formatRelativeTime returns a human-readable relative time string
func formatRelativeTime(t time.Time) string {
	dur := time.Since(t)
	switch {
	case dur < time.Minute:
		return "just now"
	case dur < time.Hour:
		return fmt.Sprintf("%dm ago", int(dur.Minutes()))
	case dur < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(dur.Hours()))
	case dur < 7*24*time.Hour:
		return fmt.Sprintf("%dd ago", int(dur.Hours()/24))
	default:
		return t.Format("Jan 2")
	}
}
