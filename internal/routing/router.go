// Package routing connects channel adapters, the conversation store and the
// AI responder.
package routing

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/google/uuid"
	"github.com/soyeahso/jibby/internal/channel"
	"github.com/soyeahso/jibby/internal/config"
	"github.com/soyeahso/jibby/internal/conversation"
	"github.com/soyeahso/jibby/internal/domain"
	"github.com/soyeahso/jibby/internal/hooks"
	"github.com/soyeahso/jibby/internal/logging"
)

// Error stages reported on error events.
const (
	StageAppend = "append"
	StageRoute  = "route"
	StageSend   = "send"
	StageCall   = "call"
	StageStart  = "start"
	StageStop   = "stop"
)

// Responder produces the reply to an inbound message. It never fails.
type Responder interface {
	Process(ctx context.Context, msg domain.Message, history []domain.Message) domain.Message
	UpdateConfig(cfg config.AIConfig) error
}

// Router is the core of the system: inbound messages flow from adapters
// through the router to the responder and back out through the adapters.
type Router struct {
	channels  *channel.Registry
	store     *conversation.Store
	responder Responder
	events    hooks.Emitter
	log       *logging.Logger

	cfgMu sync.RWMutex
	cfg   config.Config

	dispatcher *dispatcher
}

// New creates a router. Call Wire once the adapters are registered, then
// Start.
func New(cfg config.Config, channels *channel.Registry, store *conversation.Store, responder Responder, events hooks.Emitter, log *logging.Logger) *Router {
	if events == nil {
		events = hooks.Discard
	}
	r := &Router{
		channels:  channels,
		store:     store,
		responder: responder,
		events:    events,
		log:       log.Sub("router"),
		cfg:       cfg,
	}
	r.dispatcher = newDispatcher(cfg.Router, r.handle, r.log)
	return r
}

// Wire subscribes the router to every registered adapter's inbound messages
// and, for adapters that handle calls, to incoming calls.
func (r *Router) Wire() {
	for _, a := range r.channels.Adapters() {
		ch := a.Channel()
		q := r.dispatcher.queue(ch)
		a.OnMessage(func(m domain.Message) {
			r.dispatcher.enqueue(q, work{msg: &m})
		})
		if ch, ok := a.(channel.CallHandler); ok {
			ch.OnCall(func(c domain.CallRecord) {
				r.dispatcher.enqueue(q, work{call: &c})
			})
		}
		r.log.Debug().Str("channel", string(ch)).Msg("adapter wired")
	}
}

func (r *Router) handle(ctx context.Context, w work) {
	switch {
	case w.msg != nil:
		r.HandleInbound(ctx, *w.msg)
	case w.call != nil:
		r.HandleCall(ctx, *w.call)
	}
}

// Config returns a copy of the active configuration.
func (r *Router) Config() config.Config {
	r.cfgMu.RLock()
	defer r.cfgMu.RUnlock()
	cfg, _ := config.Clone(r.cfg)
	return cfg
}

// Store returns the conversation store.
func (r *Router) Store() *conversation.Store { return r.store }

// Channels returns the adapter registry.
func (r *Router) Channels() *channel.Registry { return r.channels }

// Start starts every adapter concurrently and then the inbound dispatcher.
// The first adapter error is returned after every adapter was attempted.
func (r *Router) Start(ctx context.Context) error {
	if err := r.channels.StartAll(ctx); err != nil {
		r.emitError(ctx, uuid.NewString(), StageStart, nil, err)
		return err
	}
	if err := r.dispatcher.start(ctx); err != nil {
		return err
	}
	r.log.Info().Int("adapters", r.channels.Count()).Msg("router started")
	r.events.Emit(ctx, hooks.Event{Name: hooks.EventStarted, Data: map[string]any{"channels": r.channels.List()}})
	return nil
}

// Stop halts polling adapters, drains the inbound work already queued so
// its replies still go out, and then stops every adapter.
func (r *Router) Stop(ctx context.Context) error {
	pollErr := r.channels.StopPolling(ctx)
	r.dispatcher.stop(ctx)
	if err := errors.Join(pollErr, r.channels.StopAll(ctx)); err != nil {
		r.emitError(ctx, uuid.NewString(), StageStop, nil, err)
		return err
	}
	r.log.Info().Msg("router stopped")
	r.events.Emit(ctx, hooks.Event{Name: hooks.EventStopped})
	return nil
}

// SendMessage delivers msg through the adapter for its channel and emits
// messageSent with the provider-stamped copy. A failure is both emitted as an
// error event and returned.
func (r *Router) SendMessage(ctx context.Context, msg domain.Message) (domain.Message, error) {
	sent, stage, err := r.send(ctx, msg)
	if err != nil {
		id := msg.ID
		if id == "" {
			id = uuid.NewString()
		}
		r.emitError(ctx, id, stage, &msg, err)
		return domain.Message{}, err
	}
	return sent, nil
}

// send is SendMessage without the error event; callers report failures
// against their own correlation id.
func (r *Router) send(ctx context.Context, msg domain.Message) (domain.Message, string, error) {
	if !msg.Channel.Valid() {
		return domain.Message{}, StageRoute, &domain.UnsupportedChannelError{Channel: string(msg.Channel)}
	}
	a, err := r.channels.Lookup(msg.Channel)
	if err != nil {
		return domain.Message{}, StageRoute, err
	}

	sent, err := a.Send(ctx, msg)
	if err != nil {
		return domain.Message{}, StageSend, fmt.Errorf("send via %s: %w", msg.Channel, err)
	}

	r.log.Conversation(string(sent.Channel), sent.ConversationID).Info().
		Str("id", sent.ID).
		Msg("message sent")
	r.events.Emit(ctx, hooks.Event{Name: hooks.EventMessageSent, CorrelationID: sent.ID, Message: &sent})
	return sent, "", nil
}

// ConversationHistory returns a snapshot of a conversation.
func (r *Router) ConversationHistory(id string) (domain.ConversationHistory, error) {
	return r.store.History(id)
}

// HandleInbound appends msg to its conversation, generates the reply, sends
// it back to the sender and appends the sent reply. Failures are logged and
// emitted as error events; nothing is returned.
func (r *Router) HandleInbound(ctx context.Context, msg domain.Message) {
	convID := msg.Key()
	msg.ConversationID = convID

	r.log.Conversation(string(msg.Channel), convID).Info().
		Str("from", msg.Sender).
		Msg("routing inbound message")
	r.events.Emit(ctx, hooks.Event{Name: hooks.EventMessage, CorrelationID: msg.ID, Message: &msg})

	unlock := r.store.Lock(convID)
	conv := r.store.GetOrCreate(convID)
	prior := slices.Clone(conv.Messages)
	if prior == nil {
		prior = []domain.Message{}
	}
	conv.AppendLocked(msg)
	unlock()

	reply := r.responder.Process(ctx, msg, prior)
	reply.ConversationID = convID
	reply.Channel = msg.Channel
	reply.Recipient = msg.Sender
	if reply.Email == nil && msg.Email != nil {
		reply.Email = msg.Email
	}

	sent, stage, err := r.send(ctx, reply)
	if err != nil {
		r.emitError(ctx, msg.ID, stage, &msg, err)
		return
	}

	if err := r.store.Append(convID, sent); err != nil {
		r.emitError(ctx, msg.ID, StageAppend, &msg, err)
		return
	}

	r.events.Emit(ctx, hooks.Event{
		Name:          hooks.EventMessageProcessed,
		CorrelationID: msg.ID,
		Message:       &msg,
		Response:      &sent,
	})
}

// HandleCall asks the voice adapter how to answer a call and emits
// callHandled with the result.
func (r *Router) HandleCall(ctx context.Context, call domain.CallRecord) {
	a, err := r.channels.Lookup(domain.ChannelVoice)
	if err != nil {
		r.emitError(ctx, call.Sid, StageCall, nil, err)
		return
	}
	h, ok := a.(channel.CallHandler)
	if !ok {
		r.emitError(ctx, call.Sid, StageCall, nil, errors.New("voice adapter does not handle calls"))
		return
	}

	res, err := h.HandleCall(ctx, call)
	if err != nil {
		r.emitError(ctx, call.Sid, StageCall, nil, err)
		return
	}
	r.log.Info().Str("sid", call.Sid).Str("action", res.Action).Msg("call handled")
	r.events.Emit(ctx, hooks.Event{
		Name:          hooks.EventCallHandled,
		CorrelationID: call.Sid,
		Channel:       domain.ChannelVoice,
		Call:          &call,
		Result:        &res,
	})
}

// UpdateConfig merges a JSON patch into the active configuration and
// forwards the result to the adapters and responder whose sections changed.
// A merge or validation failure leaves the configuration unchanged.
func (r *Router) UpdateConfig(ctx context.Context, patch []byte) (config.Config, error) {
	r.cfgMu.Lock()
	base := r.cfg
	merged, changed, err := config.Merge(base, patch)
	if err != nil {
		r.cfgMu.Unlock()
		return config.Config{}, err
	}
	if issues := config.Validate(&merged); len(issues) > 0 {
		r.cfgMu.Unlock()
		return config.Config{}, &config.ValidationError{Issues: issues}
	}
	r.cfg = merged
	r.cfgMu.Unlock()

	var errs []error
	for _, section := range changed {
		switch section {
		case config.SectionAI:
			if r.responder != nil {
				if err := r.responder.UpdateConfig(merged.AI); err != nil {
					errs = append(errs, fmt.Errorf("ai: %w", err))
				}
			}
		default:
			ch, ok := sectionChannel(section)
			if !ok {
				continue
			}
			a, found := r.channels.Get(ch)
			if !found {
				continue
			}
			if err := a.UpdateConfig(merged); err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", ch, err))
			}
		}
	}

	r.log.Info().Strs("sections", changed).Msg("configuration updated")
	r.events.Emit(ctx, hooks.Event{Name: hooks.EventConfigUpdated, Data: map[string]any{"sections": changed}})
	out, _ := config.Clone(merged)
	return out, errors.Join(errs...)
}

func sectionChannel(section string) (domain.Channel, bool) {
	switch section {
	case config.SectionWhatsApp:
		return domain.ChannelWhatsApp, true
	case config.SectionSMS:
		return domain.ChannelSMS, true
	case config.SectionVoice:
		return domain.ChannelVoice, true
	case config.SectionSocial:
		return domain.ChannelSocial, true
	case config.SectionEmail:
		return domain.ChannelEmail, true
	}
	return "", false
}

func (r *Router) emitError(ctx context.Context, correlationID, stage string, msg *domain.Message, err error) {
	r.log.Correlate(correlationID).Error().Err(err).Str("stage", stage).Msg("router error")
	r.events.Emit(ctx, hooks.Event{
		Name:          hooks.EventError,
		CorrelationID: correlationID,
		Stage:         stage,
		Message:       msg,
		Err:           err,
	})
}
