package social

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/soyeahso/jibby/internal/channel"
	"github.com/soyeahso/jibby/internal/domain"
)

// ErrInvalidSignature is returned when X-Hub-Signature-256 does not match.
var ErrInvalidSignature = errors.New("social: invalid webhook signature")

type webhookBody struct {
	Object string  `json:"object"`
	Entry  []entry `json:"entry"`
}

type entry struct {
	ID        string      `json:"id"`
	Time      int64       `json:"time"`
	Messaging []messaging `json:"messaging"`
}

type messaging struct {
	Sender    graphID `json:"sender"`
	Recipient graphID `json:"recipient"`
	Timestamp int64   `json:"timestamp"`
	Message   *struct {
		MID    string `json:"mid"`
		Text   string `json:"text"`
		IsEcho bool   `json:"is_echo"`
	} `json:"message"`
}

// ValidSignature checks a "sha256=<hex>" header against body.
func ValidSignature(appSecret string, body []byte, header string) bool {
	sig, ok := strings.CutPrefix(header, "sha256=")
	if !ok {
		return false
	}
	want, err := hex.DecodeString(sig)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(appSecret))
	mac.Write(body)
	return hmac.Equal(mac.Sum(nil), want)
}

// VerifyWebhook answers the Graph subscription handshake.
func (a *Adapter) VerifyWebhook(mode, token, challenge string) (string, bool) {
	a.mu.RLock()
	verify := a.cfg.VerifyToken
	a.mu.RUnlock()
	if mode != "subscribe" || verify == "" || token != verify {
		return "", false
	}
	return challenge, true
}

// HandleWebhook translates Messenger and Instagram messaging events. Echoes
// and non-text events are skipped.
func (a *Adapter) HandleWebhook(_ context.Context, p channel.WebhookPayload) error {
	a.mu.RLock()
	secret := a.cfg.AppSecret
	handlers := append([]func(domain.Message){}, a.handlers...)
	a.mu.RUnlock()

	if secret != "" && !ValidSignature(secret, p.Body, p.Signature) {
		return ErrInvalidSignature
	}

	msgs, err := Translate(p.Body)
	if err != nil {
		return err
	}
	for _, m := range msgs {
		a.log.Debug().Str("mid", m.ID).Str("platform", m.Graph.Platform).Msg("inbound message")
		for _, h := range handlers {
			h(m)
		}
	}
	return nil
}

// Translate converts a Graph webhook body into messages. Senders carry the
// platform prefix so replies route back to the same platform.
func Translate(body []byte) ([]domain.Message, error) {
	var wb webhookBody
	if err := json.Unmarshal(body, &wb); err != nil {
		return nil, fmt.Errorf("decode graph webhook: %w", err)
	}
	platform := PlatformFacebook
	if wb.Object == "instagram" {
		platform = PlatformInstagram
	}

	var out []domain.Message
	for _, e := range wb.Entry {
		for _, ev := range e.Messaging {
			if ev.Message == nil || ev.Message.IsEcho || ev.Message.Text == "" {
				continue
			}
			ts := time.Now()
			if ev.Timestamp > 0 {
				ts = time.UnixMilli(ev.Timestamp)
			}
			out = append(out, domain.Message{
				ID:             ev.Message.MID,
				ConversationID: ev.Message.MID,
				Sender:         platform + ":" + ev.Sender.ID,
				Recipient:      ev.Recipient.ID,
				Content:        ev.Message.Text,
				Channel:        domain.ChannelSocial,
				Timestamp:      ts,
				Status:         domain.StatusDelivered,
				Graph:          &domain.GraphMeta{Platform: platform, AccountID: e.ID, MID: ev.Message.MID},
			})
		}
	}
	return out, nil
}
