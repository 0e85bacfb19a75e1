// Package agent implements the AI responder: it turns an inbound message and
// its conversation history into a reply using the configured LLM provider.
package agent

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/soyeahso/jibby/internal/config"
	"github.com/soyeahso/jibby/internal/domain"
	"github.com/soyeahso/jibby/internal/hooks"
	"github.com/soyeahso/jibby/internal/llm"
	"github.com/soyeahso/jibby/internal/logging"
)

// Fallback reply contents.
const (
	NoResponseContent = "I apologize, but I could not generate a response."
	FailureContent    = "I apologize, but I encountered an error processing your request. Please try again later."
)

// Status reports the responder's provider and cache state.
type Status struct {
	Provider       string `json:"provider"`
	Model          string `json:"model"`
	Ready          bool   `json:"ready"`
	ActiveContexts int    `json:"activeContexts"`
	LastError      string `json:"lastError,omitempty"`
}

// Responder generates AI replies. Process never fails: provider errors are
// turned into a failed reply and an error event.
type Responder struct {
	mu       sync.RWMutex
	cfg      config.AIConfig
	client   llm.Client
	buildErr error

	registry *llm.Registry
	contexts *contextCache
	events   hooks.Emitter
	log      *logging.Logger
}

// NewResponder creates a responder for cfg. A provider that cannot be built
// is logged and every reply fails until UpdateConfig fixes it.
func NewResponder(cfg config.AIConfig, registry *llm.Registry, events hooks.Emitter, log *logging.Logger) *Responder {
	if events == nil {
		events = hooks.Discard
	}
	r := &Responder{
		cfg:      cfg.WithDefaults(),
		registry: registry,
		contexts: newContextCache(),
		events:   events,
		log:      log.Sub("agent"),
	}
	r.client, r.buildErr = registry.Build(r.cfg)
	if r.buildErr != nil {
		r.log.Warn().Err(r.buildErr).Str("provider", r.cfg.Provider).Msg("LLM client unavailable")
	}
	return r
}

func (r *Responder) current() (config.AIConfig, llm.Client, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.cfg, r.client, r.buildErr
}

// Process generates the reply to msg. history is the conversation log before
// msg; when nil, the responder's cached context is used instead.
func (r *Responder) Process(ctx context.Context, msg domain.Message, history []domain.Message) domain.Message {
	cfg, client, buildErr := r.current()
	convID := msg.Key()
	start := time.Now()

	prior := r.contexts.history(convID, history, cfg.ContextWindow)
	req := BuildRequest(cfg, prior, msg)

	if buildErr != nil {
		return r.failure(ctx, cfg, msg, buildErr)
	}
	if client == nil {
		return r.failure(ctx, cfg, msg, errors.New("no LLM client configured"))
	}

	cctx, cancel := context.WithTimeout(ctx, time.Duration(cfg.TimeoutSeconds)*time.Second)
	defer cancel()

	resp, err := client.Complete(cctx, req)
	if err != nil {
		return r.failure(ctx, cfg, msg, err)
	}

	content := strings.TrimSpace(resp.Content)
	if content == "" {
		content = NoResponseContent
	}
	model := resp.Model
	if model == "" {
		model = cfg.Model
	}

	reply := r.reply(cfg, msg, content, domain.StatusSent)
	reply.AI = &domain.AIMeta{
		Provider:     client.Name(),
		Model:        model,
		InputTokens:  resp.Usage.InputTokens,
		OutputTokens: resp.Usage.OutputTokens,
	}

	cc := r.contexts.record(convID, msg, reply, TokenUsage{
		InputTokens:  resp.Usage.InputTokens,
		OutputTokens: resp.Usage.OutputTokens,
	}, cfg.ContextWindow)

	r.log.Conversation(string(msg.Channel), convID).Info().
		Str("model", model).
		Int("promptMessages", len(req.Messages)).
		Int("outputTokens", resp.Usage.OutputTokens).
		Dur("duration", time.Since(start)).
		Msg("response generated")

	r.events.Emit(ctx, hooks.Event{
		Name:          hooks.EventResponseGenerated,
		CorrelationID: msg.ID,
		Message:       &msg,
		Response:      &reply,
	})
	r.events.Emit(ctx, hooks.Event{
		Name:           hooks.EventContextUpdated,
		ConversationID: convID,
		Channel:        msg.Channel,
		Data: map[string]any{
			"messages":  len(cc.History),
			"exchanges": cc.Exchanges,
		},
	})
	return reply
}

func (r *Responder) reply(cfg config.AIConfig, msg domain.Message, content string, status domain.MessageStatus) domain.Message {
	return domain.Message{
		ID:             uuid.New().String(),
		ConversationID: msg.Key(),
		Sender:         cfg.Identity,
		Recipient:      msg.Sender,
		Content:        content,
		Channel:        msg.Channel,
		Timestamp:      time.Now(),
		Status:         status,
	}
}

func (r *Responder) failure(ctx context.Context, cfg config.AIConfig, msg domain.Message, err error) domain.Message {
	r.log.Correlate(msg.ID).Error().Err(err).Str("provider", cfg.Provider).Msg("AI processing failed")

	reply := r.reply(cfg, msg, FailureContent, domain.StatusFailed)
	reply.AI = &domain.AIMeta{Provider: cfg.Provider, Model: cfg.Model, Error: err.Error()}

	r.events.Emit(ctx, hooks.Event{
		Name:          hooks.EventError,
		CorrelationID: msg.ID,
		Stage:         "ai",
		Message:       &msg,
		Err:           err,
	})
	return reply
}

// Context returns a copy of the cached context for a conversation.
func (r *Responder) Context(conversationID string) (ConversationContext, bool) {
	return r.contexts.get(conversationID)
}

// ClearContext drops the cached context for a conversation.
func (r *Responder) ClearContext(ctx context.Context, conversationID string) {
	if !r.contexts.remove(conversationID) {
		return
	}
	r.events.Emit(ctx, hooks.Event{Name: hooks.EventContextCleared, ConversationID: conversationID})
}

// ActiveContexts returns the number of cached conversation contexts.
func (r *Responder) ActiveContexts() int { return r.contexts.len() }

// ContextIDs returns the ids of cached contexts, sorted.
func (r *Responder) ContextIDs() []string { return r.contexts.ids() }

// UpdateConfig replaces the responder settings. The provider client is rebuilt
// when the provider, API key or base URL changed; if that fails nothing is
// changed and the error is returned.
func (r *Responder) UpdateConfig(cfg config.AIConfig) error {
	cfg = cfg.WithDefaults()

	r.mu.RLock()
	old := r.cfg
	r.mu.RUnlock()

	rebuild := cfg.Provider != old.Provider || cfg.APIKey != old.APIKey || cfg.BaseURL != old.BaseURL
	var client llm.Client
	if rebuild {
		c, err := r.registry.Build(cfg)
		if err != nil {
			return err
		}
		client = c
	}

	r.mu.Lock()
	r.cfg = cfg
	if rebuild {
		r.client = client
		r.buildErr = nil
	}
	r.mu.Unlock()

	r.log.Info().Str("provider", cfg.Provider).Str("model", cfg.Model).Bool("clientRebuilt", rebuild).Msg("AI settings updated")
	return nil
}

// Status returns the provider, model and number of cached contexts.
func (r *Responder) Status() Status {
	cfg, client, buildErr := r.current()
	st := Status{
		Provider:       cfg.Provider,
		Model:          cfg.Model,
		Ready:          client != nil && buildErr == nil,
		ActiveContexts: r.contexts.len(),
	}
	if buildErr != nil {
		st.LastError = buildErr.Error()
	}
	return st
}
