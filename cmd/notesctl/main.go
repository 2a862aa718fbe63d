package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/xaenox/notekeeper/internal/client"
	"github.com/xaenox/notekeeper/internal/models"
	"github.com/xaenox/notekeeper/pkg/config"
)

func main() {
	if err := newRootCmd(os.Stdout).Execute(); err != nil {
		os.Exit(1)
	}
}

type cli struct {
	out     io.Writer
	baseURL string
	asJSON  bool
	timeout time.Duration
}

func newRootCmd(out io.Writer) *cobra.Command {
	c := &cli{out: out}

	defaultURL := "http://localhost:5000/api"
	if cfg, err := config.LoadConfig(os.Getenv("NOTEKEEPER_CONFIG")); err == nil {
		defaultURL = cfg.API.BaseURL
	}

	rootCmd := &cobra.Command{
		Use:          "notesctl",
		Short:        "Manage notes on a notekeeper server",
		SilenceUsage: true,
	}
	rootCmd.SetOut(out)

	rootCmd.PersistentFlags().StringVar(&c.baseURL, "api", defaultURL, "notes API base URL")
	rootCmd.PersistentFlags().BoolVar(&c.asJSON, "json", false, "print raw JSON")
	rootCmd.PersistentFlags().DurationVar(&c.timeout, "timeout", 10*time.Second, "request timeout")

	rootCmd.AddCommand(c.listCmd())
	rootCmd.AddCommand(c.getCmd())
	rootCmd.AddCommand(c.createCmd())
	rootCmd.AddCommand(c.updateCmd())
	rootCmd.AddCommand(c.deleteCmd())

	return rootCmd
}

func (c *cli) client() *client.Client {
	return client.New(c.baseURL)
}

func (c *cli) context(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return context.WithTimeout(cmd.Context(), c.timeout)
}

func (c *cli) listCmd() *cobra.Command {
	var search, tag string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List notes, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := c.context(cmd)
			defer cancel()

			notes, err := c.client().List(ctx, search, tag)
			if err != nil {
				return err
			}
			if c.asJSON {
				return c.printJSON(notes)
			}

			if len(notes) == 0 {
				if search != "" || tag != "" {
					fmt.Fprintln(c.out, "No notes found")
				} else {
					fmt.Fprintln(c.out, "No notes yet")
				}
				return nil
			}
			for _, n := range notes {
				fmt.Fprintf(c.out, "%s  %s  %s%s\n",
					n.ID, n.CreatedAt.Local().Format("2006-01-02 15:04"), truncate(n.Title, 40), formatTags(n.Tags))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&search, "search", "", "case-insensitive text in title or content")
	cmd.Flags().StringVar(&tag, "tag", "", "exact tag")
	return cmd
}

func (c *cli) getCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Show one note",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := c.context(cmd)
			defer cancel()

			note, err := c.client().Get(ctx, args[0])
			if err != nil {
				return err
			}
			return c.printNote(note)
		},
	}
}

// noteFlags binds the title/content/tag flags shared by create and update.
func noteFlags(cmd *cobra.Command, input *models.NoteInput) {
	cmd.Flags().StringVar(&input.Title, "title", "", "note title")
	cmd.Flags().StringVar(&input.Content, "content", "", "note content")
	cmd.Flags().StringArrayVar(&input.Tags, "tag", nil, "tag (repeatable)")
	_ = cmd.MarkFlagRequired("title")
	_ = cmd.MarkFlagRequired("content")
}

func (c *cli) createCmd() *cobra.Command {
	var input models.NoteInput

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a note",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := c.context(cmd)
			defer cancel()

			note, err := c.client().Create(ctx, input)
			if err != nil {
				return err
			}
			if c.asJSON {
				return c.printJSON(note)
			}
			fmt.Fprintf(c.out, "Created note: %s\n", note.ID)
			return nil
		},
	}

	noteFlags(cmd, &input)
	return cmd
}

func (c *cli) updateCmd() *cobra.Command {
	var input models.NoteInput

	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Replace a note's title, content and tags",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := c.context(cmd)
			defer cancel()

			note, err := c.client().Update(ctx, args[0], input)
			if err != nil {
				return err
			}
			if c.asJSON {
				return c.printJSON(note)
			}
			fmt.Fprintf(c.out, "Updated note: %s\n", note.ID)
			return nil
		},
	}

	noteFlags(cmd, &input)
	return cmd
}

func (c *cli) deleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a note",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := c.context(cmd)
			defer cancel()

			if err := c.client().Delete(ctx, args[0]); err != nil {
				return err
			}
			fmt.Fprintf(c.out, "Deleted note: %s\n", args[0])
			return nil
		},
	}
}

func (c *cli) printNote(n *models.Note) error {
	if c.asJSON {
		return c.printJSON(n)
	}
	fmt.Fprintf(c.out, "ID:      %s\n", n.ID)
	fmt.Fprintf(c.out, "Title:   %s\n", n.Title)
	fmt.Fprintf(c.out, "Created: %s\n", n.CreatedAt.Local().Format(time.RFC1123))
	if len(n.Tags) > 0 {
		fmt.Fprintf(c.out, "Tags:   %s\n", formatTags(n.Tags))
	}
	fmt.Fprintf(c.out, "\n%s\n", n.Content)
	return nil
}

func (c *cli) printJSON(v any) error {
	enc := json.NewEncoder(c.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func formatTags(tags []string) string {
	var sb strings.Builder
	for _, t := range tags {
		sb.WriteString(" #" + t)
	}
	return sb.String()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
