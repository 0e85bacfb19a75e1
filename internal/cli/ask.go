package cli

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/soyeahso/jibby/internal/agent"
	"github.com/soyeahso/jibby/internal/domain"
	"github.com/soyeahso/jibby/internal/hooks"
	"github.com/soyeahso/jibby/internal/llm"
	"github.com/spf13/cobra"
)

func newAskCmd() *cobra.Command {
	var (
		model    string
		provider string
	)

	cmd := &cobra.Command{
		Use:   "ask [text]",
		Short: "Ask the AI responder a question and print the reply",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if model != "" {
				cfg.AI.Model = model
			}
			if provider != "" {
				cfg.AI.Provider = provider
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			responder := agent.NewResponder(cfg.AI, llm.DefaultRegistry(log), hooks.Discard, log)
			id := uuid.New().String()
			reply := responder.Process(ctx, domain.Message{
				ID:             id,
				ConversationID: "cli-" + id,
				Sender:         "cli",
				Recipient:      cfg.AI.Identity,
				Content:        strings.Join(args, " "),
				Timestamp:      time.Now(),
			}, nil)

			fmt.Fprintln(cmd.OutOrStdout(), reply.Content)
			if ai := reply.AI; ai != nil {
				if ai.Error != "" {
					return errors.New(ai.Error)
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "\n[provider=%s model=%s tokens=%d+%d]\n",
					ai.Provider, ai.Model, ai.InputTokens, ai.OutputTokens)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&model, "model", "", "override the configured model")
	cmd.Flags().StringVar(&provider, "provider", "", "override the configured provider (openai, anthropic, custom)")

	return cmd
}
