package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/user/bookbot/internal/projector"
	"github.com/user/bookbot/internal/state"
	"github.com/user/bookbot/internal/types"
)

func init() {
	rootCmd.AddCommand(sessionCmd)
	sessionCmd.AddCommand(sessionListCmd, sessionShowCmd, sessionExportCmd, sessionClearCmd)
	sessionExportCmd.Flags().StringP("output", "o", "", "write to file instead of stdout")
}

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Manage saved chats",
}

// withStore opens the configured chat store for the duration of fn.
func withStore(fn func(ctx context.Context, store types.ChatStore, userID string) error) error {
	cfg := loadConfig()
	ctx := context.Background()
	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()
	return fn(ctx, store, cfg.UserID)
}

var sessionListCmd = &cobra.Command{
	Use:   "list",
	Short: "List saved chats",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(func(ctx context.Context, store types.ChatStore, userID string) error {
			chats, err := store.ListChats(ctx, userID)
			if err != nil {
				return fmt.Errorf("list chats: %w", err)
			}
			out := cmd.OutOrStdout()
			if len(chats) == 0 {
				fmt.Fprintln(out, "No chats found.")
				return nil
			}

			w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tTITLE\tMESSAGES\tCREATED")
			for _, c := range chats {
				fmt.Fprintf(w, "%s\t%s\t%d\t%s\n",
					c.ID,
					c.Title,
					len(c.Messages),
					c.CreatedAt.Format("2006-01-02 15:04:05"),
				)
			}
			return w.Flush()
		})
	},
}

var sessionShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a saved chat as the user sees it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(func(ctx context.Context, store types.ChatStore, _ string) error {
			chat, err := getChat(ctx, store, args[0])
			if err != nil {
				return err
			}
			return showChat(cmd.OutOrStdout(), chat)
		})
	},
}

func showChat(out io.Writer, chat *types.Chat) error {
	fmt.Fprintln(out, headerStyle.Render(chat.Title))
	fmt.Fprintln(out, dimStyle.Render(string(chat.ID)+" · "+chat.CreatedAt.Format("2006-01-02 15:04")))
	for _, entry := range projector.Project(chat.Conversation()) {
		rendered, err := renderNode(entry.Display)
		if err != nil {
			return fmt.Errorf("render %s: %w", entry.ID, err)
		}
		if rendered != "" {
			fmt.Fprintln(out, rendered)
		}
	}
	return nil
}

var sessionExportCmd = &cobra.Command{
	Use:   "export <id>",
	Short: "Export a saved chat as YAML",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		output, _ := cmd.Flags().GetString("output")
		return withStore(func(ctx context.Context, store types.ChatStore, _ string) error {
			chat, err := getChat(ctx, store, args[0])
			if err != nil {
				return err
			}
			if output == "" {
				return state.ExportYAML(cmd.OutOrStdout(), chat)
			}
			f, err := os.Create(output)
			if err != nil {
				return fmt.Errorf("create %s: %w", output, err)
			}
			if err := state.ExportYAML(f, chat); err != nil {
				f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Chat %s exported to %s.\n", chat.ID, output)
			return nil
		})
	},
}

var sessionClearCmd = &cobra.Command{
	Use:   "clear <id|all>",
	Short: "Delete a saved chat or all of them",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(func(ctx context.Context, store types.ChatStore, userID string) error {
			out := cmd.OutOrStdout()
			if args[0] != "all" {
				if err := store.DeleteChat(ctx, types.ChatID(args[0])); err != nil {
					if errors.Is(err, types.ErrChatNotFound) {
						return fmt.Errorf("chat not found: %s", args[0])
					}
					return fmt.Errorf("delete chat: %w", err)
				}
				fmt.Fprintf(out, "Chat %s cleared.\n", args[0])
				return nil
			}

			chats, err := store.ListChats(ctx, userID)
			if err != nil {
				return fmt.Errorf("list chats: %w", err)
			}
			for _, c := range chats {
				if err := store.DeleteChat(ctx, c.ID); err != nil {
					return fmt.Errorf("delete chat %s: %w", c.ID, err)
				}
			}
			fmt.Fprintf(out, "%d chats cleared.\n", len(chats))
			return nil
		})
	},
}

func getChat(ctx context.Context, store types.ChatStore, id string) (*types.Chat, error) {
	chat, err := store.GetChat(ctx, types.ChatID(id))
	if errors.Is(err, types.ErrChatNotFound) {
		return nil, fmt.Errorf("chat not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("load chat: %w", err)
	}
	return chat, nil
}
