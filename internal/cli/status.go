package cli

import (
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/soyeahso/jibby/internal/config"
	"github.com/soyeahso/jibby/internal/gateway"
	"github.com/soyeahso/jibby/internal/version"
	"github.com/spf13/cobra"
)

func newStatusCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show server health and configured channels",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s\n\n", version.Current())
			fmt.Fprintf(out, "Config:   %s\n", paths.Config)
			fmt.Fprintf(out, "Data:     %s\n\n", paths.Data)

			cfg, err := config.Load(paths.Config)
			if err != nil {
				fmt.Fprintf(out, "Config:   error loading: %v\n", err)
				return nil
			}

			if addr == "" {
				addr = "http://" + net.JoinHostPort(statusHost(cfg.Gateway), strconv.Itoa(cfg.Gateway.Port))
			}
			var health gateway.HealthResponse
			resp, err := resty.New().
				SetTimeout(3*time.Second).
				SetHeader("User-Agent", version.UserAgent()).
				R().
				SetResult(&health).
				Get(addr + "/health")
			switch {
			case err != nil:
				fmt.Fprintf(out, "Server:   not reachable at %s\n", addr)
			case resp.IsError():
				fmt.Fprintf(out, "Server:   %s returned %s\n", addr, resp.Status())
			default:
				fmt.Fprintf(out, "Server:   %s at %s\n", health.Status, addr)
			}

			fmt.Fprintf(out, "Gateway:  port=%d bind=%s auth=%s\n", cfg.Gateway.Port, cfg.Gateway.Bind, cfg.Gateway.Auth.Mode)
			fmt.Fprintf(out, "AI:       provider=%s model=%s\n", cfg.AI.Provider, cfg.AI.Model)
			for _, ch := range channelSummary(cfg) {
				fmt.Fprintf(out, "%-9s %s\n", ch.name+":", ch.state)
			}

			if issues := config.Validate(&cfg); len(issues) > 0 {
				fmt.Fprintf(out, "\nValidation issues (%d):\n", len(issues))
				for _, issue := range issues {
					fmt.Fprintf(out, "  - %s\n", issue)
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "server base URL (default from config)")
	return cmd
}

func statusHost(gw config.GatewayConfig) string {
	if gw.Bind == "custom" && gw.Host != "" {
		return gw.Host
	}
	return "127.0.0.1"
}

type channelState struct {
	name  string
	state string
}

func channelSummary(cfg config.Config) []channelState {
	state := func(enabled bool, detail string) string {
		if !enabled {
			return "disabled"
		}
		return "enabled " + detail
	}
	return []channelState{
		{"WhatsApp", state(cfg.WhatsApp.Enabled, cfg.WhatsApp.PhoneNumber)},
		{"SMS", state(cfg.SMS.Enabled, cfg.SMS.PhoneNumber)},
		{"Voice", state(cfg.Voice.Enabled, cfg.Voice.PhoneNumber)},
		{"Social", state(cfg.Social.Enabled, "")},
		{"Email", state(cfg.Email.Enabled, cfg.Email.Address)},
	}
}
