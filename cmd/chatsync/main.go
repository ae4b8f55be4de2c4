package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/GetStream/chatsync/chat"
	"github.com/GetStream/chatsync/config"
	"github.com/GetStream/chatsync/postgres"
	"github.com/GetStream/chatsync/redis"
	"github.com/GetStream/chatsync/rest"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func main() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "load .env: %v\n", err)
	}
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var conversation, send string
	cmd := &cobra.Command{
		Use:   "chatsync",
		Short: "Tail a conversation with live updates",
		Long: "chatsync signs in as CHAT_VIEWER_ID, lists the viewer's conversations " +
			"or tails one of them, applying pushed events as they arrive.",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("conversation") {
				conversation = cfg.Conversation
			}
			logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.Level()}))

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return run(ctx, cfg, conversation, send, cmd.OutOrStdout(), logger)
		},
	}
	cmd.Flags().StringVarP(&conversation, "conversation", "c", "",
		"conversation to tail, defaults to CHAT_CONVERSATION")
	cmd.Flags().StringVarP(&send, "send", "s", "",
		"message to send to the conversation after joining")
	return cmd
}

func run(ctx context.Context, cfg *config.Config, conversation, send string, out io.Writer, logger *slog.Logger) error {
	client := rest.New(cfg.APIURL, rest.StaticToken(cfg.APIToken), cfg.RequestTimeout, logger.With("component", "rest"))

	feed, err := redis.Connect(ctx, cfg.RedisAddr)
	if err != nil {
		return fmt.Errorf("connect feed: %w", err)
	}
	defer feed.Close()

	scfg := chat.SessionConfig{
		Logger:   logger,
		ViewerID: cfg.ViewerID,
		Backend:  client,
		Feed:     feed,
	}
	if cfg.UseDatabase() {
		pg, err := postgres.Connect(ctx, cfg.DatabaseURL, cfg.ViewerID)
		if err != nil {
			return fmt.Errorf("connect database: %w", err)
		}
		defer pg.Close()
		scfg.Source = pg
	}

	sess := chat.NewSession(scfg)
	if err := sess.Start(ctx); err != nil {
		return fmt.Errorf("start session: %w", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := sess.Close(closeCtx); err != nil {
			logger.Error("Could not close session", "error", err.Error())
		}
	}()

	go sess.WatchPresence(ctx, cfg.PresenceInterval)

	if conversation == "" {
		listConversations(out, sess)
		return nil
	}
	if err := sess.Select(ctx, conversation); err != nil {
		return fmt.Errorf("select %s: %w", conversation, err)
	}
	if send != "" {
		if err := sess.Send(ctx, send, "", nil); err != nil {
			return fmt.Errorf("send: %w", err)
		}
	}

	tail(ctx, out, sess)
	return nil
}

func listConversations(out io.Writer, sess *chat.Session) {
	store := sess.Store()
	for _, c := range store.Conversations() {
		fmt.Fprintf(out, "%s\t%s\n", c.ID, chat.ConversationTitle(store, c, sess.ViewerID()))
	}
}

// tail prints the timeline of the selected conversation grouped by day, then
// every message appended to it until ctx is done.
func tail(ctx context.Context, out io.Writer, sess *chat.Session) {
	printed := make(map[string]bool)
	lastLabel := ""
	show := func() {
		for _, g := range chat.GroupByDate(sess.Timeline(), time.Now()) {
			for _, m := range g.Messages {
				if printed[m.ID] {
					continue
				}
				if g.Label != lastLabel {
					fmt.Fprintf(out, "--- %s ---\n", g.Label)
					lastLabel = g.Label
				}
				printed[m.ID] = true
				printMessage(out, sess.Store(), m)
			}
		}
	}

	show()
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			show()
		}
	}
}

func printMessage(out io.Writer, store *chat.Store, m chat.Message) {
	author := m.CreatedBy
	if u, ok := store.User(m.CreatedBy); ok && u.Username != "" {
		author = u.Username
	}
	fmt.Fprintf(out, "[%s] %s: %s", m.CreatedAt.Local().Format("15:04"), author, m.Content)
	for _, f := range m.Files {
		fmt.Fprintf(out, " [%s]", f.Name)
	}
	if s, ok := chat.ThreadSummaries(store, m.ConversationID)[m.ID]; ok && s.ReplyCount > 0 {
		fmt.Fprintf(out, " (%d replies)", s.ReplyCount)
	}
	fmt.Fprintln(out)
}
