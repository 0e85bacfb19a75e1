package twilio

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/soyeahso/jibby/internal/channel"
	"github.com/soyeahso/jibby/internal/config"
	"github.com/soyeahso/jibby/internal/domain"
	"github.com/soyeahso/jibby/internal/hooks"
	"github.com/soyeahso/jibby/internal/logging"
	openapi "github.com/twilio/twilio-go/rest/api/v2010"
)

// ErrInvalidSignature is returned for callbacks whose X-Twilio-Signature does
// not match.
var ErrInvalidSignature = errors.New("twilio: invalid webhook signature")

type account struct {
	AccountSid        string
	AuthToken         string
	PhoneNumber       string
	WebhookURL        string
	ValidateSignature bool
}

func (a account) missing() string {
	switch {
	case a.AccountSid == "":
		return "missing accountSid"
	case a.AuthToken == "":
		return "missing authToken"
	case a.PhoneNumber == "":
		return "missing phoneNumber"
	}
	return ""
}

func whatsappAccount(c config.WhatsAppConfig) account {
	return account{c.AccountSid, c.AuthToken, c.PhoneNumber, c.WebhookURL, c.ValidateSignature}
}

func smsAccount(c config.SMSConfig) account {
	return account{c.AccountSid, c.AuthToken, c.PhoneNumber, c.WebhookURL, c.ValidateSignature}
}

// Messaging is the Twilio Messaging adapter. It serves WhatsApp and SMS,
// which differ only in addressing.
type Messaging struct {
	ch      domain.Channel
	section func(config.Config) account
	opts    options
	events  hooks.Emitter
	log     *logging.Logger

	mu        sync.RWMutex
	acct      account
	api       API
	connected bool
	lastErr   string
	handlers  []func(domain.Message)
}

var (
	_ channel.Adapter         = (*Messaging)(nil)
	_ channel.WebhookReceiver = (*Messaging)(nil)
)

// NewWhatsApp creates the WhatsApp adapter.
func NewWhatsApp(cfg config.WhatsAppConfig, events hooks.Emitter, log *logging.Logger, opts ...Option) *Messaging {
	return newMessaging(domain.ChannelWhatsApp, whatsappAccount(cfg),
		func(c config.Config) account { return whatsappAccount(c.WhatsApp) }, events, log, opts)
}

// NewSMS creates the SMS adapter.
func NewSMS(cfg config.SMSConfig, events hooks.Emitter, log *logging.Logger, opts ...Option) *Messaging {
	return newMessaging(domain.ChannelSMS, smsAccount(cfg),
		func(c config.Config) account { return smsAccount(c.SMS) }, events, log, opts)
}

func newMessaging(ch domain.Channel, acct account, section func(config.Config) account, events hooks.Emitter, log *logging.Logger, opts []Option) *Messaging {
	if events == nil {
		events = hooks.Discard
	}
	return &Messaging{
		ch:      ch,
		section: section,
		opts:    buildOptions(opts),
		events:  events,
		log:     log.Sub(string(ch)),
		acct:    acct,
	}
}

func (m *Messaging) Channel() domain.Channel { return m.ch }

func (m *Messaging) address(number string) string {
	if m.ch == domain.ChannelWhatsApp {
		return WhatsAppAddress(number)
	}
	return NormalizeE164(number)
}

// Start checks credentials and lists the latest message as a round trip.
func (m *Messaging) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if reason := m.acct.missing(); reason != "" {
		m.lastErr = reason
		return &domain.AdapterInitError{Channel: m.ch, Reason: reason}
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	api := m.opts.newAPI(m.acct.AccountSid, m.acct.AuthToken)
	params := &openapi.ListMessageParams{}
	params.SetPageSize(1)
	params.SetLimit(1)
	if _, err := api.ListMessage(params); err != nil {
		err = wrapError(err)
		m.lastErr = err.Error()
		return err
	}

	m.api = api
	m.connected = true
	m.lastErr = ""
	m.log.Info().Str("number", m.acct.PhoneNumber).Msg("connected to Twilio")
	return nil
}

func (m *Messaging) Stop(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connected = false
	m.api = nil
	m.log.Info().Msg("disconnected")
	return nil
}

// Send delivers msg through Twilio Messaging.
func (m *Messaging) Send(ctx context.Context, msg domain.Message) (domain.Message, error) {
	m.mu.RLock()
	api, acct, connected := m.api, m.acct, m.connected
	m.mu.RUnlock()

	if !connected || api == nil {
		return domain.Message{}, &domain.NotConnectedError{Channel: m.ch}
	}
	if err := ctx.Err(); err != nil {
		return domain.Message{}, err
	}

	to := m.address(msg.Recipient)
	from := m.address(acct.PhoneNumber)

	params := &openapi.CreateMessageParams{}
	params.SetTo(to)
	params.SetFrom(from)
	params.SetBody(msg.Content)
	if acct.WebhookURL != "" {
		params.SetStatusCallback(strings.TrimRight(acct.WebhookURL, "/") + "/" + string(m.ch) + "/status")
	}

	resp, err := api.CreateMessage(params)
	if err != nil {
		err = wrapError(err)
		m.log.Error().Err(err).Str("to", to).Msg("send failed")
		return domain.Message{}, err
	}

	sent := msg.Restamp(str(resp.Sid))
	sent.Twilio = &domain.TwilioMeta{MessageSid: str(resp.Sid), From: from, To: to}
	m.log.Debug().Str("sid", sent.ID).Str("to", to).Msg("message sent")
	return sent, nil
}

func (m *Messaging) Status() domain.AdapterStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return domain.AdapterStatus{
		Channel:   m.ch,
		Connected: m.connected,
		Address:   m.acct.PhoneNumber,
		LastError: m.lastErr,
	}
}

func (m *Messaging) OnMessage(handler func(domain.Message)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers = append(m.handlers, handler)
}

// UpdateConfig applies the adapter's section. A connected adapter gets a new
// client when the account credentials changed.
func (m *Messaging) UpdateConfig(cfg config.Config) error {
	next := m.section(cfg)

	m.mu.Lock()
	defer m.mu.Unlock()
	rebuild := next.AccountSid != m.acct.AccountSid || next.AuthToken != m.acct.AuthToken
	m.acct = next
	if rebuild && m.connected {
		if reason := next.missing(); reason != "" {
			m.connected = false
			m.api = nil
			m.lastErr = reason
			return &domain.AdapterInitError{Channel: m.ch, Reason: reason}
		}
		m.api = m.opts.newAPI(next.AccountSid, next.AuthToken)
		m.log.Info().Msg("Twilio client re-initialized")
	}
	return nil
}

// HandleWebhook translates an inbound message or a status callback.
func (m *Messaging) HandleWebhook(ctx context.Context, p channel.WebhookPayload) error {
	m.mu.RLock()
	acct := m.acct
	m.mu.RUnlock()

	if acct.ValidateSignature && !ValidSignature(acct.AuthToken, p.URL, p.Form, p.Signature) {
		return ErrInvalidSignature
	}

	if p.Kind == "status" {
		m.handleStatus(ctx, p)
		return nil
	}

	msg := m.translate(p)
	m.mu.RLock()
	handlers := append([]func(domain.Message){}, m.handlers...)
	m.mu.RUnlock()

	m.log.Debug().Str("sid", msg.ID).Str("from", msg.Sender).Msg("inbound message")
	for _, h := range handlers {
		h(msg)
	}
	return nil
}

func (m *Messaging) translate(p channel.WebhookPayload) domain.Message {
	sid := p.Value("MessageSid")
	conv := p.Value("ConversationSid")
	if conv == "" {
		conv = sid
	}
	numMedia, _ := strconv.Atoi(p.Value("NumMedia"))

	return domain.Message{
		ID:             sid,
		ConversationID: conv,
		Sender:         StripWhatsApp(p.Value("From")),
		Recipient:      StripWhatsApp(p.Value("To")),
		Content:        p.Value("Body"),
		Channel:        m.ch,
		Timestamp:      time.Now(),
		Status:         domain.StatusDelivered,
		Twilio: &domain.TwilioMeta{
			MessageSid:      sid,
			ConversationSid: p.Value("ConversationSid"),
			From:            p.Value("From"),
			To:              p.Value("To"),
			ProfileName:     p.Value("ProfileName"),
			NumMedia:        numMedia,
		},
	}
}

func (m *Messaging) handleStatus(ctx context.Context, p channel.WebhookPayload) {
	raw := p.Value("MessageStatus")
	msg := domain.Message{
		ID:        p.Value("MessageSid"),
		Recipient: StripWhatsApp(p.Value("To")),
		Sender:    StripWhatsApp(p.Value("From")),
		Channel:   m.ch,
		Timestamp: time.Now(),
		Status:    messageStatus(raw),
		Twilio: &domain.TwilioMeta{
			MessageSid: p.Value("MessageSid"),
			ErrorCode:  p.Value("ErrorCode"),
		},
	}
	m.log.Debug().Str("sid", msg.ID).Str("status", raw).Msg("status callback")
	m.events.Emit(ctx, hooks.Event{
		Name:          hooks.EventMessageStatus,
		CorrelationID: msg.ID,
		Message:       &msg,
		Data:          map[string]any{"providerStatus": raw},
	})
}

func messageStatus(s string) domain.MessageStatus {
	switch s {
	case "delivered":
		return domain.StatusDelivered
	case "read":
		return domain.StatusRead
	case "failed", "undelivered":
		return domain.StatusFailed
	}
	return domain.StatusSent
}
