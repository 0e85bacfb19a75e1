package gateway

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"github.com/soyeahso/jibby/internal/channel"
	"github.com/soyeahso/jibby/internal/domain"
	"github.com/soyeahso/jibby/internal/hooks"
)

// Provider signature headers.
const (
	twilioSignatureHeader = "X-Twilio-Signature"
	metaSignatureHeader   = "X-Hub-Signature-256"
)

// WebhookAck is the body of every webhook acknowledgement.
type WebhookAck struct {
	Status string `json:"status"`
}

// handleWebhook acknowledges a provider callback immediately and processes
// it in the background: the payload is published on the bus and handed to
// the matching adapter. Providers always get 200; a body that cannot be read
// in full is reported as an error event instead.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	provider := r.PathValue("provider")
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	if err == nil && len(body) > maxBodyBytes {
		err = fmt.Errorf("webhook body exceeds %d bytes", maxBodyBytes)
	}
	if err != nil {
		s.log.Warn().Err(err).Str("provider", provider).Msg("webhook body unreadable")
		s.webhookFailed(context.WithoutCancel(r.Context()), provider, uuid.NewString(), err)
		writeJSON(w, http.StatusOK, WebhookAck{Status: "received"})
		return
	}

	p := channel.WebhookPayload{
		Kind: r.PathValue("kind"),
		URL:  requestURL(r),
		Body: body,
	}
	switch {
	case r.Header.Get(twilioSignatureHeader) != "":
		p.Signature = r.Header.Get(twilioSignatureHeader)
	case r.Header.Get(metaSignatureHeader) != "":
		p.Signature = r.Header.Get(metaSignatureHeader)
	}
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/x-www-form-urlencoded") {
		p.Form, _ = url.ParseQuery(string(body))
	}

	ctx := context.WithoutCancel(r.Context())
	s.webhooks.Add(1)
	go func() {
		defer s.webhooks.Done()
		s.processWebhook(ctx, provider, p)
	}()

	writeJSON(w, http.StatusOK, WebhookAck{Status: "received"})
}

func (s *Server) processWebhook(ctx context.Context, provider string, p channel.WebhookPayload) {
	if s.hooks != nil {
		data := map[string]any{"kind": p.Kind}
		if p.Form != nil {
			data["form"] = p.Form
		} else if len(p.Body) > 0 {
			data["body"] = string(p.Body)
		}
		s.hooks.Emit(ctx, hooks.Event{Name: hooks.WebhookEvent(provider), Data: data})
	}

	ch, err := domain.ParseChannel(provider)
	if err != nil {
		s.log.Debug().Str("provider", provider).Msg("webhook for unknown provider published only")
		return
	}
	a, ok := s.router.Channels().Get(ch)
	if !ok {
		s.log.Debug().Str("provider", provider).Msg("webhook for unregistered channel")
		return
	}
	recv, ok := a.(channel.WebhookReceiver)
	if !ok {
		return
	}
	if err := recv.HandleWebhook(ctx, p); err != nil {
		s.log.Warn().Err(err).Str("provider", provider).Str("kind", p.Kind).Msg("webhook rejected")
		s.webhookFailed(ctx, provider, correlationID(p), err)
	}
}

func (s *Server) webhookFailed(ctx context.Context, provider, correlationID string, err error) {
	if s.hooks == nil {
		return
	}
	ch, _ := domain.ParseChannel(provider)
	s.hooks.Emit(ctx, hooks.Event{Name: hooks.EventError, Channel: ch, Stage: "webhook", Err: err, CorrelationID: correlationID})
}

// correlationID picks the provider's id for a callback, or a fresh one.
func correlationID(p channel.WebhookPayload) string {
	for _, key := range []string{"MessageSid", "CallSid"} {
		if v := p.Value(key); v != "" {
			return v
		}
	}
	return uuid.New().String()
}

// handleWebhookVerify answers a provider's subscription handshake.
func (s *Server) handleWebhookVerify(w http.ResponseWriter, r *http.Request) {
	ch, err := domain.ParseChannel(r.PathValue("provider"))
	if err != nil {
		writeErr(w, err)
		return
	}
	a, ok := s.router.Channels().Get(ch)
	if !ok {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "channel not configured: "+string(ch), nil)
		return
	}
	v, ok := a.(channel.WebhookVerifier)
	if !ok {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "channel does not verify webhooks: "+string(ch), nil)
		return
	}

	q := r.URL.Query()
	challenge, ok := v.VerifyWebhook(q.Get("hub.mode"), q.Get("hub.verify_token"), q.Get("hub.challenge"))
	if !ok {
		writeError(w, http.StatusForbidden, "FORBIDDEN", "verification failed", nil)
		return
	}
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, challenge)
}

// requestURL reconstructs the absolute URL the provider called, honoring
// reverse proxy headers.
func requestURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if p := r.Header.Get("X-Forwarded-Proto"); p != "" {
		scheme = p
	}
	host := r.Host
	if h := r.Header.Get("X-Forwarded-Host"); h != "" {
		host = h
	}
	return scheme + "://" + host + r.URL.RequestURI()
}
