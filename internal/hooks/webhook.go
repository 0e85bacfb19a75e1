package hooks

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/soyeahso/jibby/internal/config"
	"github.com/soyeahso/jibby/internal/logging"
	"github.com/soyeahso/jibby/internal/version"
)

// SignatureHeader carries the HMAC of the delivered body.
const SignatureHeader = "X-Jibby-Signature"

// Delivery is the body POSTed to the configured webhook URL.
type Delivery struct {
	Event         string    `json:"event"`
	Timestamp     time.Time `json:"timestamp"`
	CorrelationID string    `json:"correlationId,omitempty"`
	Payload       Event     `json:"payload"`
}

// Forwarder delivers bus events to an external HTTP endpoint.
type Forwarder struct {
	cfg    config.WebhookConfig
	client *resty.Client
	log    *logging.Logger
	wg     sync.WaitGroup
}

// NewForwarder creates a forwarder for cfg. It does nothing until Attach.
func NewForwarder(cfg config.WebhookConfig, log *logging.Logger) *Forwarder {
	return &Forwarder{
		cfg: cfg,
		client: resty.New().
			SetTimeout(10*time.Second).
			SetHeader("Content-Type", "application/json").
			SetHeader("User-Agent", version.UserAgent()),
		log: log.Sub("webhook"),
	}
}

// Attach subscribes the forwarder to the allowlisted events, or to every
// event when the allowlist is empty. It is a no-op without a URL.
func (f *Forwarder) Attach(m *Manager) {
	if f.cfg.URL == "" {
		return
	}
	if len(f.cfg.Events) == 0 {
		m.OnAny("webhook-forwarder", f.handle)
		return
	}
	for _, ev := range f.cfg.Events {
		m.On(ev, "webhook-forwarder", f.handle)
	}
}

func (f *Forwarder) handle(_ context.Context, ev Event) error {
	body, err := json.Marshal(Delivery{
		Event:         ev.Name,
		Timestamp:     ev.Timestamp,
		CorrelationID: ev.CorrelationID,
		Payload:       ev,
	})
	if err != nil {
		return fmt.Errorf("encode webhook delivery: %w", err)
	}

	f.wg.Add(1)
	go func() {
		defer f.wg.Done()
		f.deliver(ev.Name, body)
	}()
	return nil
}

func (f *Forwarder) deliver(event string, body []byte) {
	req := f.client.R().SetBody(body)
	if f.cfg.Secret != "" {
		req.SetHeader(SignatureHeader, Sign(f.cfg.Secret, body))
	}

	resp, err := req.Post(f.cfg.URL)
	if err != nil {
		f.log.Warn().Err(err).Str("event", event).Msg("webhook delivery failed")
		return
	}
	if resp.IsError() {
		f.log.Warn().Int("status", resp.StatusCode()).Str("event", event).Msg("webhook endpoint rejected delivery")
		return
	}
	f.log.Debug().Str("event", event).Msg("webhook delivered")
}

// Wait blocks until in-flight deliveries finish.
func (f *Forwarder) Wait() { f.wg.Wait() }

// Sign returns the signature header value for body.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}
