package cli

import (
	"github.com/soyeahso/jibby/internal/agent"
	"github.com/soyeahso/jibby/internal/channel"
	"github.com/soyeahso/jibby/internal/channel/email"
	"github.com/soyeahso/jibby/internal/channel/social"
	"github.com/soyeahso/jibby/internal/channel/twilio"
	"github.com/soyeahso/jibby/internal/config"
	"github.com/soyeahso/jibby/internal/conversation"
	"github.com/soyeahso/jibby/internal/hooks"
	"github.com/soyeahso/jibby/internal/llm"
	"github.com/soyeahso/jibby/internal/logging"
	"github.com/soyeahso/jibby/internal/routing"
)

// app is the wired core shared by serve and the one-shot commands.
type app struct {
	cfg       config.Config
	bus       *hooks.Manager
	channels  *channel.Registry
	responder *agent.Responder
	router    *routing.Router
}

func newApp(cfg config.Config, log *logging.Logger) *app {
	bus := hooks.NewManager(log)
	channels := buildChannels(cfg, bus, log)
	responder := agent.NewResponder(cfg.AI, llm.DefaultRegistry(log), bus, log)
	return &app{
		cfg:       cfg,
		bus:       bus,
		channels:  channels,
		responder: responder,
		router:    routing.New(cfg, channels, conversation.NewStore(log), responder, bus, log),
	}
}

// buildChannels registers an adapter for every enabled channel.
func buildChannels(cfg config.Config, events hooks.Emitter, log *logging.Logger) *channel.Registry {
	reg := channel.NewRegistry(log)
	if cfg.WhatsApp.Enabled {
		reg.Register(twilio.NewWhatsApp(cfg.WhatsApp, events, log))
	}
	if cfg.SMS.Enabled {
		reg.Register(twilio.NewSMS(cfg.SMS, events, log))
	}
	if cfg.Voice.Enabled {
		reg.Register(twilio.NewVoice(cfg.Voice, events, log))
	}
	if cfg.Social.Enabled {
		reg.Register(social.New(cfg.Social, log))
	}
	if cfg.Email.Enabled {
		reg.Register(email.New(cfg.Email, log))
	}
	return reg
}
