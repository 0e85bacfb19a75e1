package cli

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/soyeahso/jibby/internal/channel"
	"github.com/soyeahso/jibby/internal/config"
	"github.com/soyeahso/jibby/internal/domain"
	"github.com/soyeahso/jibby/internal/store"
	"github.com/spf13/cobra"
)

func newCallCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "call",
		Short: "Place voice calls and inspect call history",
	}

	cmd.AddCommand(newCallMakeCmd())
	cmd.AddCommand(newCallHistoryCmd())
	return cmd
}

func newCallMakeCmd() *cobra.Command {
	var to, from string

	cmd := &cobra.Command{
		Use:   "make",
		Short: "Place an outbound call",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a := newApp(cfg, log)
			adapter, err := a.channels.Lookup(domain.ChannelVoice)
			if err != nil {
				return fmt.Errorf("%w (is voice enabled?)", err)
			}
			d, ok := adapter.(channel.Dialer)
			if !ok {
				return fmt.Errorf("voice adapter cannot place calls")
			}
			if err := adapter.Start(ctx); err != nil {
				return err
			}
			defer adapter.Stop(context.WithoutCancel(ctx))

			call, err := d.MakeCall(ctx, to, from)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "call %s to %s: %s\n", call.Sid, call.To, call.Status)
			return nil
		},
	}

	cmd.Flags().StringVar(&to, "to", "", "number to call (E.164)")
	cmd.Flags().StringVar(&from, "from", "", "caller id (default: configured voice number)")
	cmd.MarkFlagRequired("to")

	return cmd
}

func newCallHistoryCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent calls",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(paths.Config)
			if err != nil {
				return err
			}
			db, err := store.Open(paths.Database(cfg.Store), log)
			if err != nil {
				return err
			}
			defer db.Close()

			logs, err := store.NewCallLogStore(db).Recent(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if len(logs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no calls recorded")
				return nil
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "SID\tDIRECTION\tFROM\tTO\tSTATUS\tDURATION\tCREATED")
			for _, l := range logs {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%ds\t%s\n",
					l.Sid, l.Direction, l.From, l.To, l.Status, l.Duration, l.CreatedAt.Format("2006-01-02 15:04:05"))
			}
			return tw.Flush()
		},
	}

	cmd.Flags().IntVar(&limit, "limit", store.DefaultHistoryLimit, "maximum number of calls to list")
	return cmd
}
