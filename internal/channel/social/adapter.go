// Package social implements the Facebook Messenger and Instagram adapter
// over the Meta Graph API.
package social

import (
	"context"
	"strings"
	"sync"

	"github.com/soyeahso/jibby/internal/channel"
	"github.com/soyeahso/jibby/internal/config"
	"github.com/soyeahso/jibby/internal/domain"
	"github.com/soyeahso/jibby/internal/logging"
)

// Platform names used as recipient prefixes.
const (
	PlatformFacebook  = "facebook"
	PlatformInstagram = "instagram"
	PlatformTwitter   = "twitter"
)

// Adapter is the social channel adapter.
type Adapter struct {
	log *logging.Logger

	mu        sync.RWMutex
	cfg       config.SocialConfig
	graph     *graphClient
	connected bool
	lastErr   string
	pageName  string
	handlers  []func(domain.Message)
}

var (
	_ channel.Adapter         = (*Adapter)(nil)
	_ channel.WebhookReceiver = (*Adapter)(nil)
	_ channel.WebhookVerifier = (*Adapter)(nil)
)

// New creates the social adapter.
func New(cfg config.SocialConfig, log *logging.Logger) *Adapter {
	return &Adapter{
		log:   log.Sub("social"),
		cfg:   cfg,
		graph: newGraphClient(cfg.BaseURL, cfg.GraphVersion),
	}
}

func (a *Adapter) Channel() domain.Channel { return domain.ChannelSocial }

// credentials returns the sending id and token for a platform.
func credentials(cfg config.SocialConfig, platform string) (id, token string, ok bool) {
	switch platform {
	case PlatformFacebook:
		if fb := cfg.Platforms.Facebook; fb != nil && fb.PageID != "" && fb.AccessToken != "" {
			return fb.PageID, fb.AccessToken, true
		}
	case PlatformInstagram:
		if ig := cfg.Platforms.Instagram; ig != nil && ig.AccountID != "" && ig.AccessToken != "" {
			return ig.AccountID, ig.AccessToken, true
		}
	}
	return "", "", false
}

// Start verifies every configured Graph platform with a node lookup.
func (a *Adapter) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	var checked int
	for _, p := range []string{PlatformFacebook, PlatformInstagram} {
		id, token, ok := credentials(a.cfg, p)
		if !ok {
			continue
		}
		n, err := a.graph.node(ctx, id, token)
		if err != nil {
			a.lastErr = err.Error()
			return err
		}
		if a.pageName == "" {
			a.pageName = n.Name
		}
		a.log.Info().Str("platform", p).Str("id", n.ID).Str("name", n.Name).Msg("connected to Graph API")
		checked++
	}
	if checked == 0 {
		a.lastErr = "no facebook or instagram credentials"
		return &domain.AdapterInitError{Channel: domain.ChannelSocial, Reason: a.lastErr}
	}
	if a.cfg.Platforms.Twitter != nil {
		a.log.Warn().Msg("twitter is configured but sending is not supported")
	}

	a.connected = true
	a.lastErr = ""
	return nil
}

func (a *Adapter) Stop(context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.connected = false
	return nil
}

// ParseRecipient splits "platform:id". Unprefixed ids are facebook.
func ParseRecipient(r string) (platform, id string) {
	if p, rest, ok := strings.Cut(r, ":"); ok {
		return p, rest
	}
	return PlatformFacebook, r
}

// Send posts msg.Content to the recipient through the Send API.
func (a *Adapter) Send(ctx context.Context, msg domain.Message) (domain.Message, error) {
	a.mu.RLock()
	cfg, graph, connected := a.cfg, a.graph, a.connected
	a.mu.RUnlock()

	if !connected {
		return domain.Message{}, &domain.NotConnectedError{Channel: domain.ChannelSocial}
	}

	platform, recipient := ParseRecipient(msg.Recipient)
	if platform == PlatformTwitter {
		return domain.Message{}, &domain.ProviderError{Provider: "graph", Code: "unsupported_platform", Message: "twitter messaging is not supported"}
	}
	fromID, token, ok := credentials(cfg, platform)
	if !ok {
		return domain.Message{}, &domain.ProviderError{Provider: "graph", Code: "unsupported_platform", Message: "no credentials for " + platform}
	}

	resp, err := graph.send(ctx, fromID, token, recipient, msg.Content)
	if err != nil {
		a.log.Error().Err(err).Str("platform", platform).Str("recipient", recipient).Msg("send failed")
		return domain.Message{}, err
	}

	sent := msg.Restamp(resp.MessageID)
	sent.Graph = &domain.GraphMeta{Platform: platform, AccountID: fromID, MID: resp.MessageID}
	return sent, nil
}

func (a *Adapter) Status() domain.AdapterStatus {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return domain.AdapterStatus{
		Channel:   domain.ChannelSocial,
		Connected: a.connected,
		Address:   a.pageName,
		LastError: a.lastErr,
	}
}

func (a *Adapter) OnMessage(handler func(domain.Message)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.handlers = append(a.handlers, handler)
}

// UpdateConfig applies the social section. The Graph client is rebuilt
// when the base URL or API version changed; tokens are read per request.
func (a *Adapter) UpdateConfig(cfg config.Config) error {
	next := cfg.Social

	a.mu.Lock()
	defer a.mu.Unlock()
	if next.BaseURL != a.cfg.BaseURL || next.GraphVersion != a.cfg.GraphVersion {
		a.graph = newGraphClient(next.BaseURL, next.GraphVersion)
	}
	a.cfg = next
	return nil
}
