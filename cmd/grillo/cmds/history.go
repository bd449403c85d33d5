package cmds

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/go-go-golems/grillo/pkg/conversation"
	"github.com/go-go-golems/grillo/pkg/history"
	"github.com/go-go-golems/grillo/pkg/prompt"
)

var HistoryCmd = &cobra.Command{
	Use:   "history",
	Short: "Inspect and manage stored conversations",
}

var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored conversations, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		h, err := store.Load()
		if err != nil {
			return err
		}

		if len(h.Conversations) == 0 {
			fmt.Println("no stored conversations")
			return nil
		}
		for i, c := range h.Conversations {
			fmt.Printf("%3d  %s  %s  %s\n", i+1, c.ID, c.UpdatedAt, c.Summary)
		}
		return nil
	},
}

var historyShowCmd = &cobra.Command{
	Use:   "show <id-or-index>",
	Short: "Print one conversation by id, or by 1-based index with --index",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}

		byIndex, _ := cmd.Flags().GetBool("index")
		c, err := lookupConversation(store, args[0], byIndex)
		if err != nil {
			return err
		}

		render, _ := cmd.Flags().GetBool("render")
		var renderer *glamour.TermRenderer
		if render {
			renderer, err = glamour.NewTermRenderer(
				glamour.WithAutoStyle(),
				glamour.WithWordWrap(100),
			)
			if err != nil {
				return errors.Wrap(err, "could not initialize markdown renderer")
			}
		}

		fmt.Printf("%s (created %s)\n\n", c.ID, c.CreatedAt)
		for _, m := range c.Messages {
			fmt.Printf("[%s] %s\n", m.Timestamp, m.Role)
			content := m.Content
			if renderer != nil && m.Role == conversation.RoleAssistant {
				if rendered, err := renderer.Render(m.Content); err == nil {
					content = strings.TrimRight(rendered, "\n")
				}
			}
			fmt.Printf("%s\n\n", content)
		}

		stats, _ := cmd.Flags().GetBool("stats")
		if stats {
			total, perRole := prompt.NewAssembler().ConversationTokens(c.Messages)
			if total < 0 {
				return errors.New("tokenizer unavailable, cannot compute token stats")
			}
			fmt.Printf("messages: %d\ntokens: %d\n", len(c.Messages), total)
			for _, role := range []conversation.Role{conversation.RoleUser, conversation.RoleAssistant, conversation.RoleError} {
				if n, ok := perRole[role]; ok {
					fmt.Printf("  %s: %d\n", role, n)
				}
			}
		}
		return nil
	},
}

// lookupConversation resolves the show/delete argument, either an id or a
// 1-based, newest-first index.
func lookupConversation(store *history.Store, arg string, byIndex bool) (*conversation.Conversation, error) {
	if byIndex {
		index, err := strconv.Atoi(arg)
		if err != nil {
			return nil, errors.Wrap(err, "index must be a number")
		}
		h, err := store.Load()
		if err != nil {
			return nil, err
		}
		if index < 1 || index > len(h.Conversations) {
			return nil, errors.Errorf("history index %d out of range (1-%d)", index, len(h.Conversations))
		}
		return h.Conversations[index-1], nil
	}

	c, ok := store.GetConversation(arg)
	if !ok {
		return nil, errors.Errorf("conversation %s not found", arg)
	}
	return c, nil
}

var historyDeleteCmd = &cobra.Command{
	Use:   "delete <id-or-index>",
	Short: "Delete one conversation by id, or by 1-based index with --index",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}

		byIndex, _ := cmd.Flags().GetBool("index")
		if byIndex {
			index, err := strconv.Atoi(args[0])
			if err != nil {
				return errors.Wrap(err, "index must be a number")
			}
			return store.DeleteConversationByIndex(index)
		}
		return store.DeleteConversation(args[0])
	},
}

var historyClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete all stored conversations",
	RunE: func(cmd *cobra.Command, args []string) error {
		force, _ := cmd.Flags().GetBool("force")
		if !force {
			return errors.New("refusing to clear history without --force")
		}
		store, err := openStore()
		if err != nil {
			return err
		}
		return store.ClearAll()
	},
}

var historyExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the history as JSON or YAML",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		h, err := store.Load()
		if err != nil {
			return err
		}

		format, _ := cmd.Flags().GetString("format")
		switch format {
		case "json":
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(h)
		case "yaml":
			return yaml.NewEncoder(os.Stdout).Encode(h)
		default:
			return errors.Errorf("unknown format %q, expected json or yaml", format)
		}
	},
}

func openStore() (*history.Store, error) {
	paths, err := DefaultPaths()
	if err != nil {
		return nil, err
	}
	return newHistoryStore(paths), nil
}

func init() {
	historyShowCmd.Flags().Bool("index", false, "Treat the argument as a 1-based index, newest first")
	historyShowCmd.Flags().Bool("stats", false, "Print message and token counts")
	historyShowCmd.Flags().Bool("render", false, "Render assistant messages as markdown")
	historyDeleteCmd.Flags().Bool("index", false, "Treat the argument as a 1-based index, newest first")
	historyClearCmd.Flags().Bool("force", false, "Actually clear the history")
	historyExportCmd.Flags().String("format", "json", "Output format (json, yaml)")

	HistoryCmd.AddCommand(historyListCmd)
	HistoryCmd.AddCommand(historyShowCmd)
	HistoryCmd.AddCommand(historyDeleteCmd)
	HistoryCmd.AddCommand(historyClearCmd)
	HistoryCmd.AddCommand(historyExportCmd)
}
