// Package email implements the email channel: IMAP polling for inbound mail
// and SMTP for replies.
package email

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/soyeahso/jibby/internal/channel"
	"github.com/soyeahso/jibby/internal/config"
	"github.com/soyeahso/jibby/internal/domain"
	"github.com/soyeahso/jibby/internal/logging"
)

// SendFunc delivers a composed message over SMTP.
type SendFunc func(cfg config.EmailConfig, from string, to []string, msg []byte) error

// SendSMTP sends with PLAIN auth against the configured SMTP server.
func SendSMTP(cfg config.EmailConfig, from string, to []string, msg []byte) error {
	addr := fmt.Sprintf("%s:%d", cfg.SMTPHost, cfg.SMTPPort)
	auth := smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.SMTPHost)
	return smtp.SendMail(addr, auth, from, to, msg)
}

// Option configures the adapter.
type Option func(*Adapter)

// WithDialer replaces the IMAP dialer.
func WithDialer(d Dialer) Option { return func(a *Adapter) { a.dial = d } }

// WithSender replaces the SMTP sender.
func WithSender(s SendFunc) Option { return func(a *Adapter) { a.send = s } }

// Adapter is the email channel adapter.
type Adapter struct {
	dial Dialer
	send SendFunc
	log  *logging.Logger

	mu        sync.RWMutex
	cfg       config.EmailConfig
	mailbox   Mailbox
	connected bool
	lastErr   string
	handlers  []func(domain.Message)

	cancel context.CancelFunc
	done   chan struct{}
}

var (
	_ channel.Adapter = (*Adapter)(nil)
	_ channel.Poller  = (*Adapter)(nil)
)

// New creates the email adapter.
func New(cfg config.EmailConfig, log *logging.Logger, opts ...Option) *Adapter {
	a := &Adapter{
		dial: DialIMAP,
		send: SendSMTP,
		log:  log.Sub("email"),
		cfg:  cfg,
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

func (a *Adapter) Channel() domain.Channel { return domain.ChannelEmail }

func missing(c config.EmailConfig) string {
	switch {
	case c.IMAPHost == "":
		return "missing imapHost"
	case c.SMTPHost == "":
		return "missing smtpHost"
	case c.Username == "":
		return "missing username"
	case c.Password == "":
		return "missing password"
	}
	return ""
}

func (a *Adapter) from() string {
	if a.cfg.Address != "" {
		return a.cfg.Address
	}
	return a.cfg.Username
}

// Start logs in, selects the mailbox and begins polling for unseen mail.
func (a *Adapter) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.connected {
		return nil
	}
	if reason := missing(a.cfg); reason != "" {
		a.lastErr = reason
		return &domain.AdapterInitError{Channel: domain.ChannelEmail, Reason: reason}
	}

	mb, err := a.dial(ctx, a.cfg)
	if err != nil {
		pe := &domain.ProviderError{Provider: "imap", Err: err}
		a.lastErr = pe.Error()
		return pe
	}

	interval := time.Duration(a.cfg.PollIntervalSeconds) * time.Second
	if interval <= 0 {
		interval = config.DefaultPollIntervalSeconds * time.Second
	}

	pollCtx, cancel := context.WithCancel(context.Background())
	a.mailbox = mb
	a.cancel = cancel
	a.done = make(chan struct{})
	a.connected = true
	a.lastErr = ""

	go a.poll(pollCtx, mb, interval, a.done)

	a.log.Info().Str("host", a.cfg.IMAPHost).Str("mailbox", a.cfg.Mailbox).Dur("interval", interval).Msg("polling mailbox")
	return nil
}

func (a *Adapter) poll(ctx context.Context, mb Mailbox, interval time.Duration, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		a.fetch(ctx, mb)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (a *Adapter) fetch(ctx context.Context, mb Mailbox) {
	raws, err := mb.FetchUnseen(ctx)
	if err != nil && ctx.Err() == nil {
		a.log.Warn().Err(err).Msg("fetch unseen failed")
		a.mu.Lock()
		a.lastErr = err.Error()
		a.mu.Unlock()
	}
	if len(raws) == 0 {
		return
	}

	a.mu.RLock()
	handlers := append([]func(domain.Message){}, a.handlers...)
	a.mu.RUnlock()

	for _, raw := range raws {
		msg, err := Parse(raw)
		if err != nil {
			a.log.Warn().Err(err).Msg("skipping unparseable message")
			continue
		}
		a.log.Debug().Str("messageId", msg.ID).Str("from", msg.Sender).Msg("inbound email")
		for _, h := range handlers {
			h(msg)
		}
	}
}

// StopPolling cancels the poll loop and waits for an in-flight fetch to hand
// its messages to the handlers. Send keeps working until Stop.
func (a *Adapter) StopPolling(ctx context.Context) error {
	a.mu.Lock()
	cancel, done := a.cancel, a.done
	a.cancel = nil
	a.mu.Unlock()
	if cancel == nil {
		return nil
	}

	cancel()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	a.log.Debug().Msg("polling stopped")
	return nil
}

// Stop cancels polling and logs out.
func (a *Adapter) Stop(ctx context.Context) error {
	a.mu.Lock()
	if !a.connected {
		a.mu.Unlock()
		return nil
	}
	mb := a.mailbox
	a.connected = false
	a.mailbox = nil
	a.mu.Unlock()

	if err := a.StopPolling(ctx); err != nil {
		a.log.Warn().Err(err).Msg("poll loop still running at logout")
	}

	if err := mb.Close(); err != nil {
		return &domain.ProviderError{Provider: "imap", Err: err}
	}
	a.log.Info().Msg("logged out")
	return nil
}

// Compose builds the RFC 5322 reply for msg.
func Compose(from string, msg domain.Message, messageID string) []byte {
	subject := "Message from Jibby"
	var inReplyTo string
	var refs []string
	if em := msg.Email; em != nil {
		if em.Subject != "" {
			subject = em.Subject
			if !strings.HasPrefix(strings.ToLower(subject), "re:") {
				subject = "Re: " + subject
			}
		}
		inReplyTo = em.InReplyTo
		refs = em.References
	}

	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", msg.Recipient)
	fmt.Fprintf(&b, "Subject: %s\r\n", subject)
	fmt.Fprintf(&b, "Message-Id: %s\r\n", messageID)
	fmt.Fprintf(&b, "Date: %s\r\n", time.Now().Format(time.RFC1123Z))
	if inReplyTo != "" {
		fmt.Fprintf(&b, "In-Reply-To: %s\r\n", inReplyTo)
	}
	if len(refs) > 0 {
		fmt.Fprintf(&b, "References: %s\r\n", strings.Join(refs, " "))
	}
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(msg.Content)
	return []byte(b.String())
}

// replyMeta threads the outgoing reply after the message it answers. The
// inbound message's own id becomes In-Reply-To and joins References.
func replyMeta(msg domain.Message) *domain.EmailMeta {
	em := msg.Email
	if em == nil {
		return nil
	}
	out := &domain.EmailMeta{Subject: em.Subject, InReplyTo: em.InReplyTo, References: append([]string(nil), em.References...)}
	if em.MessageID != "" {
		out.InReplyTo = em.MessageID
		out.References = append(out.References, em.MessageID)
	}
	return out
}

// Send replies by SMTP. When msg carries email metadata the reply is
// threaded under it.
func (a *Adapter) Send(ctx context.Context, msg domain.Message) (domain.Message, error) {
	a.mu.RLock()
	cfg, connected, from := a.cfg, a.connected, a.from()
	a.mu.RUnlock()

	if !connected {
		return domain.Message{}, &domain.NotConnectedError{Channel: domain.ChannelEmail}
	}
	if err := ctx.Err(); err != nil {
		return domain.Message{}, err
	}

	out := msg
	out.Email = replyMeta(msg)
	host := cfg.SMTPHost
	if at := strings.LastIndex(from, "@"); at >= 0 {
		host = from[at+1:]
	}
	messageID := fmt.Sprintf("<%s@%s>", uuid.New().String(), host)

	if err := a.send(cfg, from, []string{msg.Recipient}, Compose(from, out, messageID)); err != nil {
		a.log.Error().Err(err).Str("to", msg.Recipient).Msg("smtp send failed")
		return domain.Message{}, &domain.ProviderError{Provider: "smtp", Err: err}
	}

	sent := out.Restamp(messageID)
	if sent.Email == nil {
		sent.Email = &domain.EmailMeta{}
	}
	sent.Email.MessageID = messageID
	return sent, nil
}

func (a *Adapter) Status() domain.AdapterStatus {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return domain.AdapterStatus{
		Channel:   domain.ChannelEmail,
		Connected: a.connected,
		Address:   a.from(),
		LastError: a.lastErr,
	}
}

func (a *Adapter) OnMessage(handler func(domain.Message)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.handlers = append(a.handlers, handler)
}

// UpdateConfig applies the email section. A running adapter reconnects when
// the IMAP server or credentials changed.
func (a *Adapter) UpdateConfig(cfg config.Config) error {
	next := cfg.Email

	a.mu.Lock()
	old := a.cfg
	a.cfg = next
	running := a.connected
	a.mu.Unlock()

	reconnect := next.IMAPHost != old.IMAPHost || next.IMAPPort != old.IMAPPort ||
		next.Username != old.Username || next.Password != old.Password || next.Mailbox != old.Mailbox
	if !running || !reconnect {
		return nil
	}

	ctx := context.Background()
	if err := a.Stop(ctx); err != nil {
		a.log.Warn().Err(err).Msg("logout before reconnect failed")
	}
	return a.Start(ctx)
}
