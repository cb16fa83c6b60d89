package cli

import (
	"context"
	"fmt"
	"io"
	"os/signal"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/soyeahso/flowbridge/internal/config"
	"github.com/soyeahso/flowbridge/internal/domain"
	"github.com/soyeahso/flowbridge/internal/handover"
	"github.com/soyeahso/flowbridge/internal/livechat"
)

func newMessageCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "message",
		Short: "Send messages through the bridge",
	}

	cmd.AddCommand(newMessageSendCmd())
	return cmd
}

func newMessageSendCmd() *cobra.Command {
	var (
		roomID    string
		token     string
		sender    string
		storeName string
	)

	cmd := &cobra.Command{
		Use:   "send [text]",
		Short: "Post a visitor message into a room and print the bot's replies",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text := strings.Join(args, " ")

			cfg, err := config.Load(paths.Config)
			if err != nil {
				return err
			}
			if storeName != "" {
				cfg.Store.Driver = storeName
			}

			a, err := buildApp(cfg, log)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if err := ensureRoom(ctx, a, cfg.Bot.Username, roomID, token); err != nil {
				return err
			}

			msg := domain.InboundMessage{
				ID:             uuid.New().String(),
				RoomID:         roomID,
				Text:           text,
				SenderUsername: sender,
				VisitorToken:   token,
			}
			out, err := a.livechat.HandleMessage(handover.WithCorrelationID(ctx, msg.ID), msg)
			if err != nil {
				return err
			}
			printOutcome(cmd.OutOrStdout(), cmd.ErrOrStderr(), out)
			return nil
		},
	}

	cmd.Flags().StringVar(&roomID, "room", "cli-room", "room id (created if missing)")
	cmd.Flags().StringVar(&token, "token", "cli-visitor", "visitor token")
	cmd.Flags().StringVar(&sender, "sender", "visitor", "sender username")
	cmd.Flags().StringVar(&storeName, "store", "", "override store driver (sqlite, memory)")

	return cmd
}

// ensureRoom creates an open livechat room served by the bot when roomID
// is unknown, along with its visitor.
func ensureRoom(ctx context.Context, a *app, bot, roomID, token string) error {
	if _, err := a.store.GetRoomByID(ctx, roomID); err == nil {
		return nil
	}
	if err := a.store.SaveRoom(ctx, &domain.Room{
		ID:           roomID,
		Type:         domain.RoomTypeLivechat,
		IsOpen:       true,
		ServedBy:     bot,
		VisitorToken: token,
	}); err != nil {
		return err
	}
	return a.store.SaveVisitor(ctx, &domain.Visitor{Token: token})
}

func printOutcome(stdout, stderr io.Writer, out *livechat.Outcome) {
	if out.Skipped != "" {
		fmt.Fprintf(stderr, "message ignored: %s\n", out.Skipped)
		return
	}
	for _, m := range out.Posted {
		fmt.Fprintln(stdout, m.Text)
		for _, opt := range m.Options {
			fmt.Fprintf(stdout, "  [%s]\n", opt.Text)
		}
	}
	if out.Reply != nil && out.Reply.IsFallback {
		fmt.Fprintln(stderr, "(fallback reply)")
	}
	if out.Escalated {
		fmt.Fprintln(stderr, "(room handed over)")
	}
}
