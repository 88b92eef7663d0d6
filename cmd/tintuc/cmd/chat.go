package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/harunnryd/tintuc/pkg/chat"
	"github.com/harunnryd/tintuc/pkg/llm"
	"github.com/harunnryd/tintuc/pkg/tintuc"
	"github.com/spf13/cobra"
)

var (
	chatConversation int64
	chatImages       []string
)

var chatCmd = &cobra.Command{
	Use:   "chat [message]",
	Short: "Chat with the model",
	Long: `Sends one message, or starts an interactive chat when no message is
given. Conversations are stored in chat.database.

Examples:
  tintuc chat "Tóm tắt tin hôm nay"
  tintuc chat --image photo.jpg "Đây là gì?"
  tintuc chat --conversation 3
  tintuc chat list`,
	Args: cobra.ArbitraryArgs,
	RunE: runChat,
}

var chatListCmd = &cobra.Command{
	Use:   "list",
	Short: "List conversations, most recent first",
	Args:  cobra.NoArgs,
	RunE: withChatStore(func(ctx context.Context, store chat.Store, out io.Writer, _ []string) error {
		convs, err := store.ListConversations(ctx)
		if err != nil {
			return err
		}
		for _, c := range convs {
			fmt.Fprintf(out, "%4d  %-40s  %3d msgs  %s\n", c.ID, c.Title, c.MessageCount, c.UpdatedAt.Local().Format("2006-01-02 15:04"))
		}
		return nil
	}),
}

var chatShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Print a conversation's messages",
	Args:  cobra.ExactArgs(1),
	RunE: withChatStore(func(ctx context.Context, store chat.Store, out io.Writer, args []string) error {
		id, err := chat.ParseID(args[0])
		if err != nil {
			return err
		}
		conv, err := store.GetConversation(ctx, id)
		if err != nil {
			return err
		}
		msgs, err := store.Messages(ctx, id)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "# %s\n", conv.Title)
		for _, m := range msgs {
			fmt.Fprintf(out, "[%s] %s\n", m.Sender, m.Text)
			for _, ref := range m.ImageRefs {
				fmt.Fprintf(out, "    image: %s\n", ref)
			}
		}
		return nil
	}),
}

var chatRenameCmd = &cobra.Command{
	Use:   "rename <id> <title>",
	Short: "Rename a conversation",
	Args:  cobra.MinimumNArgs(2),
	RunE: withChatStore(func(ctx context.Context, store chat.Store, _ io.Writer, args []string) error {
		id, err := chat.ParseID(args[0])
		if err != nil {
			return err
		}
		return store.RenameConversation(ctx, id, strings.Join(args[1:], " "))
	}),
}

var chatDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a conversation and its messages",
	Args:  cobra.ExactArgs(1),
	RunE: withChatStore(func(ctx context.Context, store chat.Store, _ io.Writer, args []string) error {
		id, err := chat.ParseID(args[0])
		if err != nil {
			return err
		}
		return store.DeleteConversation(ctx, id)
	}),
}

func init() {
	rootCmd.AddCommand(chatCmd)
	chatCmd.AddCommand(chatListCmd, chatShowCmd, chatRenameCmd, chatDeleteCmd)
	chatCmd.Flags().Int64VarP(&chatConversation, "conversation", "c", 0, "continue conversation id")
	chatCmd.Flags().StringSliceVarP(&chatImages, "image", "i", nil, "attach an image file (repeatable)")
}

func openChatEngine(ctx context.Context) (*tintuc.Engine, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	cfg.Audio.Mock = true
	return tintuc.NewEngine(ctx, tintuc.EngineOptions{
		Config: cfg,
		Logger: slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn})),
	})
}

func withChatStore(fn func(ctx context.Context, store chat.Store, out io.Writer, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext()
		defer cancel()
		engine, err := openChatEngine(ctx)
		if err != nil {
			return err
		}
		defer engine.Drain()
		store, err := engine.ChatStore(ctx)
		if err != nil {
			return err
		}
		return fn(ctx, store, cmd.OutOrStdout(), args)
	}
}

func runChat(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()
	engine, err := openChatEngine(ctx)
	if err != nil {
		return err
	}
	defer engine.Drain()
	svc, err := engine.Chat(ctx)
	if err != nil {
		return err
	}
	attachments, err := loadImages(chatImages)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	if len(args) > 0 {
		_, err := send(ctx, svc, out, chatConversation, strings.Join(args, " "), attachments)
		return err
	}

	fmt.Fprintln(out, "Interactive chat. Empty line or Ctrl-D quits.")
	conv := chatConversation
	scanner := bufio.NewScanner(cmd.InOrStdin())
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			return nil
		}
		id, err := send(ctx, svc, out, conv, line, attachments)
		if err != nil && !errors.Is(err, chat.ErrQuotaExceeded) {
			return err
		}
		if id != 0 {
			conv = id
		}
		attachments = nil
	}
}

func send(ctx context.Context, svc *chat.Service, out io.Writer, conv int64, text string, attachments []chat.Attachment) (int64, error) {
	res, err := svc.Send(ctx, chat.SendRequest{ConversationID: conv, Text: text, Attachments: attachments})
	if errors.Is(err, chat.ErrQuotaExceeded) {
		fmt.Fprintln(out, "The model quota is exhausted. Try again later.")
		return res.Conversation.ID, err
	}
	if err != nil {
		printError("chat", err)
		return res.Conversation.ID, err
	}
	fmt.Fprintf(out, "%s\n(conversation %d)\n", res.Reply.Text, res.Conversation.ID)
	return res.Conversation.ID, nil
}

func loadImages(paths []string) ([]chat.Attachment, error) {
	out := make([]chat.Attachment, 0, len(paths))
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("read image: %w", err)
		}
		mime := http.DetectContentType(data)
		if !strings.HasPrefix(mime, "image/") {
			return nil, fmt.Errorf("%s is not an image (%s)", p, mime)
		}
		ref, err := filepath.Abs(p)
		if err != nil {
			ref = p
		}
		out = append(out, chat.Attachment{Ref: ref, Image: llm.Image{Data: data, MIMEType: mime}})
	}
	return out, nil
}
