// Package channel defines the adapter contract every messaging channel
// implements and the registry the router dispatches through.
package channel

import (
	"context"
	"net/url"

	"github.com/soyeahso/jibby/internal/config"
	"github.com/soyeahso/jibby/internal/domain"
)

// Adapter connects one channel to its provider.
type Adapter interface {
	Channel() domain.Channel

	// Start validates credentials and performs a cheap round trip with the
	// provider. Missing credentials yield *domain.AdapterInitError.
	Start(ctx context.Context) error
	Stop(ctx context.Context) error

	// Send delivers msg and returns the copy the provider accepted, with the
	// provider id, status sent and a fresh timestamp.
	Send(ctx context.Context, msg domain.Message) (domain.Message, error)

	Status() domain.AdapterStatus

	// OnMessage registers a handler for translated inbound messages.
	OnMessage(handler func(domain.Message))

	// UpdateConfig applies the adapter's section of cfg, re-initializing the
	// provider client when its credentials changed.
	UpdateConfig(cfg config.Config) error
}

// WebhookPayload is a provider callback as received by the gateway.
type WebhookPayload struct {
	// Kind is the path segment after the provider, e.g. "status".
	Kind string
	// URL is the absolute URL the provider called, used for signatures.
	URL       string
	Signature string
	Form      url.Values
	Body      []byte
}

// Value returns the first form value for key.
func (p WebhookPayload) Value(key string) string { return p.Form.Get(key) }

// WebhookReceiver is implemented by adapters that accept provider callbacks.
type WebhookReceiver interface {
	HandleWebhook(ctx context.Context, p WebhookPayload) error
}

// WebhookVerifier is implemented by adapters whose provider performs a GET
// subscription handshake. It returns the challenge to echo back.
type WebhookVerifier interface {
	VerifyWebhook(mode, token, challenge string) (string, bool)
}

// Poller is implemented by adapters that fetch inbound messages on their
// own schedule. StopPolling returns once no more messages will be delivered;
// Send keeps working until Stop.
type Poller interface {
	StopPolling(ctx context.Context) error
}

// CallHandler is implemented by the voice adapter.
type CallHandler interface {
	// OnCall registers a handler for incoming calls.
	OnCall(handler func(domain.CallRecord))
	// HandleCall decides the response to a call.
	HandleCall(ctx context.Context, call domain.CallRecord) (domain.CallResult, error)
}

// Dialer places and ends calls.
type Dialer interface {
	MakeCall(ctx context.Context, to, from string) (domain.CallRecord, error)
	EndCall(ctx context.Context, sid string) error
	ActiveCalls() []domain.CallRecord
}
