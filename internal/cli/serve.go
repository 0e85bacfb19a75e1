package cli

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/soyeahso/jibby/internal/config"
	"github.com/soyeahso/jibby/internal/gateway"
	"github.com/soyeahso/jibby/internal/hooks"
	"github.com/soyeahso/jibby/internal/metrics"
	"github.com/soyeahso/jibby/internal/plugin"
	"github.com/soyeahso/jibby/internal/store"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func newServeCmd() *cobra.Command {
	var (
		port int
		bind string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the router and gateway server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if port != 0 {
				cfg.Gateway.Port = port
			}
			if bind != "" {
				cfg.Gateway.Bind = bind
			}

			dbPath, err := paths.PrepareDatabase(cfg.Store)
			if err != nil {
				return fmt.Errorf("preparing data directory: %w", err)
			}
			db, err := store.Open(dbPath, log)
			if err != nil {
				return fmt.Errorf("opening database: %w", err)
			}
			defer db.Close()
			calls := store.NewCallLogStore(db)
			integrations := store.NewIntegrationStore(db)
			if in, err := integrations.Get(cmd.Context(), store.ProviderTwilio); err == nil {
				applyTwilio(&cfg, in)
			}

			a := newApp(cfg, log)
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			plugins := plugin.NewRegistry(a.bus, log)
			for _, p := range busPlugins(cfg, calls) {
				if err := plugins.Register(p); err != nil {
					return err
				}
			}
			if err := plugins.InitAll(ctx); err != nil {
				return fmt.Errorf("initializing plugins: %w", err)
			}
			defer plugins.CloseAll()

			srv := gateway.New(cfg, a.router, log,
				gateway.WithHooks(a.bus),
				gateway.WithCallLogs(calls),
				gateway.WithIntegrations(integrations),
			)

			a.router.Wire()
			if err := a.router.Start(ctx); err != nil {
				a.channels.StopAll(context.WithoutCancel(ctx))
				return fmt.Errorf("starting router: %w", err)
			}
			log.Info().Int("channels", a.channels.Count()).Msg("message routing active")

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error { return srv.Start(gctx) })
			g.Go(func() error {
				<-gctx.Done()
				stopCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
				defer cancel()
				return a.router.Stop(stopCtx)
			})
			return g.Wait()
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "override gateway port")
	cmd.Flags().StringVar(&bind, "bind", "", "override bind mode (loopback, lan, custom)")

	return cmd
}

// busPlugins are the extensions serve attaches to the event bus.
func busPlugins(cfg config.Config, calls *store.CallLogStore) []plugin.Plugin {
	fwd := hooks.NewForwarder(cfg.Webhook, log)
	return []plugin.Plugin{
		plugin.New("metrics", func(_ context.Context, api plugin.API) error {
			metrics.Attach(api.Hooks)
			return nil
		}, nil),
		plugin.New("call-log", func(_ context.Context, api plugin.API) error {
			store.NewRecorder(calls, api.Log).Attach(api.Hooks)
			return nil
		}, nil),
		plugin.New("webhook-forwarder", func(_ context.Context, api plugin.API) error {
			fwd.Attach(api.Hooks)
			return nil
		}, func() error {
			fwd.Wait()
			return nil
		}),
	}
}

// applyTwilio fills Twilio credentials the config file leaves empty with the
// ones saved through the integrations API.
func applyTwilio(cfg *config.Config, in *store.Integration) {
	fill := func(dst *string, v string) {
		if *dst == "" {
			*dst = v
		}
	}
	for _, c := range []struct{ sid, token, number *string }{
		{&cfg.WhatsApp.AccountSid, &cfg.WhatsApp.AuthToken, &cfg.WhatsApp.PhoneNumber},
		{&cfg.SMS.AccountSid, &cfg.SMS.AuthToken, &cfg.SMS.PhoneNumber},
		{&cfg.Voice.AccountSid, &cfg.Voice.AuthToken, &cfg.Voice.PhoneNumber},
	} {
		fill(c.sid, in.AccountSid)
		fill(c.token, in.AuthToken)
		fill(c.number, in.PhoneNumber)
	}
}
