package cli

import (
	"context"
	"fmt"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/soyeahso/jibby/internal/domain"
	"github.com/spf13/cobra"
)

func newMessageCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "message",
		Short: "Send messages through a channel",
	}

	cmd.AddCommand(newMessageSendCmd())
	return cmd
}

func newMessageSendCmd() *cobra.Command {
	var (
		channelName    string
		to             string
		conversationID string
	)

	cmd := &cobra.Command{
		Use:   "send [text]",
		Short: "Send a message to a recipient",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ch, err := domain.ParseChannel(channelName)
			if err != nil {
				return err
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a := newApp(cfg, log)
			adapter, err := a.channels.Lookup(ch)
			if err != nil {
				return fmt.Errorf("%w (is %s enabled?)", err, ch)
			}
			if err := adapter.Start(ctx); err != nil {
				return err
			}
			defer adapter.Stop(context.WithoutCancel(ctx))

			sent, err := a.router.SendMessage(ctx, domain.Message{
				ID:             uuid.New().String(),
				ConversationID: conversationID,
				Sender:         cfg.AI.Identity,
				Recipient:      to,
				Content:        strings.Join(args, " "),
				Channel:        ch,
				Timestamp:      time.Now(),
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "sent %s via %s\n", sent.ID, sent.Channel)
			return nil
		},
	}

	cmd.Flags().StringVar(&channelName, "channel", "", "channel to send through (whatsapp, sms, voice, social, email)")
	cmd.Flags().StringVar(&to, "to", "", "recipient address")
	cmd.Flags().StringVar(&conversationID, "conversation", "", "conversation id to attach the message to")
	cmd.MarkFlagRequired("channel")
	cmd.MarkFlagRequired("to")

	return cmd
}
