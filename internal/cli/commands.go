package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"ai-docchat-be/internal/dto"
	"ai-docchat-be/pkg/stream"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var version = "0.1.0"

type options struct {
	server string
	token  string
	output string
}

// NewRootCommand builds the docchat CLI. Every command talks to a running server.
func NewRootCommand() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:   "docchat",
		Short: "Chat with your documents from the terminal",
		Long: `A command line client for the document chat service.

Quick Start:
  docchat ask --thread t1 "What does the contract say about renewal?"
  docchat conversations list
  docchat history t1 --output yaml`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			switch opts.output {
			case FormatText, FormatJSON, FormatYAML:
				return nil
			}
			return fmt.Errorf("--output must be one of text, json, yaml")
		},
	}

	root.PersistentFlags().StringVar(&opts.server, "server", envOr("DOCCHAT_SERVER", "http://localhost:8000"), "Base URL of the docchat server")
	root.PersistentFlags().StringVar(&opts.token, "token", os.Getenv("DOCCHAT_TOKEN"), "Bearer token when the server requires auth")
	root.PersistentFlags().StringVarP(&opts.output, "output", "o", FormatText, "Output format: text, json or yaml")
	root.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	root.AddCommand(newAskCommand(opts), newConversationsCommand(opts), newHistoryCommand(opts))
	return root
}

// Execute runs the CLI and exits non-zero on error.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := NewRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render("Error: "+err.Error()))
		os.Exit(1)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func (o *options) client() *Client {
	return NewClient(o.server, o.token)
}

func newAskCommand(opts *options) *cobra.Command {
	var (
		threadID   string
		queryModel string
		k          int
	)

	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Ask a question and stream the answer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := args[0]
			if threadID == "" {
				threadID = uuid.NewString()
			}

			req := dto.ChatRequest{Message: query, ThreadId: threadID}
			if queryModel != "" || k > 0 {
				req.Config = &dto.RunConfig{Configurable: dto.Configurable{K: k, QueryModel: queryModel}}
			}

			out := cmd.OutOrStdout()
			live := opts.output == FormatText
			display := stream.Submit(stream.DisplayState{}, query)
			streamed := ""

			c := opts.client()
			err := c.Ask(cmd.Context(), req, func(ev stream.Event) {
				display = stream.Apply(display, ev)
				if !live {
					return
				}
				// print only what extends the text already on screen
				entry, ok := display.Trailing()
				if !ok || display.Failed || len(entry.Content) <= len(streamed) || !strings.HasPrefix(entry.Content, streamed) {
					return
				}
				if streamed == "" {
					fmt.Fprintln(out, roleLabel(entry.Role))
				}
				fmt.Fprint(out, entry.Content[len(streamed):])
				streamed = entry.Content
			})
			if err != nil {
				return err
			}

			if !live {
				return Encode(out, opts.output, struct {
					ThreadID string `json:"thread_id" yaml:"thread_id"`
					stream.DisplayState `yaml:",inline"`
				}{threadID, display})
			}

			final, _ := display.Trailing()
			complete := streamed != "" && final.Content == streamed
			if streamed != "" {
				fmt.Fprintln(out)
			}
			RenderAnswer(out, display, complete)
			fmt.Fprintln(out, idStyle.Render("thread: "+threadID))
			if c.Malformed > 0 {
				fmt.Fprintln(cmd.ErrOrStderr(), idStyle.Render(fmt.Sprintf("skipped %d malformed frames", c.Malformed)))
			}
			if display.Failed {
				return fmt.Errorf("turn failed")
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&threadID, "thread", "t", "", "Thread id (a new one is generated when empty)")
	cmd.Flags().StringVar(&queryModel, "model", "", `Model override in "provider/model" form`)
	cmd.Flags().IntVarP(&k, "k", "k", 0, "Number of documents to retrieve")
	return cmd
}

func newConversationsCommand(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "conversations",
		Aliases: []string{"conv"},
		Short:   "Manage conversations",
	}

	var limit, offset int
	var deleted bool
	list := &cobra.Command{
		Use:   "list",
		Short: "List conversations, most recently active first",
		RunE: func(cmd *cobra.Command, args []string) error {
			c := opts.client()
			if deleted {
				res, err := c.ListDeleted(cmd.Context())
				if err != nil {
					return err
				}
				if opts.output != FormatText {
					return Encode(cmd.OutOrStdout(), opts.output, res)
				}
				RenderDeleted(cmd.OutOrStdout(), res.Conversations)
				return nil
			}

			res, err := c.ListConversations(cmd.Context(), limit, offset)
			if err != nil {
				return err
			}
			if opts.output != FormatText {
				return Encode(cmd.OutOrStdout(), opts.output, res)
			}
			RenderConversations(cmd.OutOrStdout(), res.Conversations, res.Total)
			return nil
		},
	}
	list.Flags().IntVar(&limit, "limit", 0, "Maximum number of conversations")
	list.Flags().IntVar(&offset, "offset", 0, "Number of conversations to skip")
	list.Flags().BoolVar(&deleted, "deleted", false, "List soft-deleted conversations instead")

	var title string
	create := &cobra.Command{
		Use:   "create",
		Short: "Create an empty conversation",
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := opts.client().CreateConversation(cmd.Context(), title)
			if err != nil {
				return err
			}
			if opts.output != FormatText {
				return Encode(cmd.OutOrStdout(), opts.output, res)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created %s  %s\n", idStyle.Render(res.ThreadId), titleOf(res.Title))
			return nil
		},
	}
	create.Flags().StringVar(&title, "title", "", "Conversation title")

	del := &cobra.Command{
		Use:   "delete <thread-id>",
		Short: "Soft-delete a conversation and its documents",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := opts.client().DeleteConversation(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", idStyle.Render(args[0]))
			return nil
		},
	}

	restore := &cobra.Command{
		Use:   "restore <thread-id>",
		Short: "Restore a soft-deleted conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := opts.client().RestoreConversation(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if opts.output != FormatText {
				return Encode(cmd.OutOrStdout(), opts.output, res)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Restored %s  %s\n", idStyle.Render(res.ThreadId), titleOf(res.Title))
			return nil
		},
	}

	cmd.AddCommand(list, create, del, restore)
	return cmd
}

func newHistoryCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "history <thread-id>",
		Short: "Show the stored messages of a thread",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := opts.client().History(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if opts.output != FormatText {
				return Encode(cmd.OutOrStdout(), opts.output, res)
			}
			RenderHistory(cmd.OutOrStdout(), res)
			return nil
		},
	}
}
