package twilio

import (
	"context"
	"net/url"
	"sort"
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
	"github.com/twilio/twilio-go/twiml"
)

// CallFunc produces the response to a call.
type CallFunc func(ctx context.Context, call domain.CallRecord) (domain.CallResult, error)

// Voice is the Twilio Programmable Voice adapter.
type Voice struct {
	opts   options
	events hooks.Emitter
	log    *logging.Logger

	mu        sync.RWMutex
	cfg       config.VoiceConfig
	api       API
	connected bool
	lastErr   string
	calls     map[string]domain.CallRecord
	onCall    []func(domain.CallRecord)
	onMessage []func(domain.Message)
	byDir     map[domain.CallDirection]CallFunc
}

var (
	_ channel.Adapter         = (*Voice)(nil)
	_ channel.WebhookReceiver = (*Voice)(nil)
	_ channel.CallHandler     = (*Voice)(nil)
	_ channel.Dialer          = (*Voice)(nil)
)

// NewVoice creates the voice adapter.
func NewVoice(cfg config.VoiceConfig, events hooks.Emitter, log *logging.Logger, opts ...Option) *Voice {
	if events == nil {
		events = hooks.Discard
	}
	return &Voice{
		opts:   buildOptions(opts),
		events: events,
		log:    log.Sub("voice"),
		cfg:    cfg,
		calls:  make(map[string]domain.CallRecord),
		byDir:  make(map[domain.CallDirection]CallFunc),
	}
}

func (v *Voice) Channel() domain.Channel { return domain.ChannelVoice }

func voiceMissing(c config.VoiceConfig) string {
	switch {
	case c.AccountSid == "":
		return "missing accountSid"
	case c.AuthToken == "":
		return "missing authToken"
	case c.PhoneNumber == "":
		return "missing phoneNumber"
	}
	return ""
}

// Start checks credentials and lists the latest call as a round trip.
func (v *Voice) Start(ctx context.Context) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if reason := voiceMissing(v.cfg); reason != "" {
		v.lastErr = reason
		return &domain.AdapterInitError{Channel: domain.ChannelVoice, Reason: reason}
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	api := v.opts.newAPI(v.cfg.AccountSid, v.cfg.AuthToken)
	params := &openapi.ListCallParams{}
	params.SetPageSize(1)
	params.SetLimit(1)
	if _, err := api.ListCall(params); err != nil {
		err = wrapError(err)
		v.lastErr = err.Error()
		return err
	}

	v.api = api
	v.connected = true
	v.lastErr = ""
	v.log.Info().Str("number", v.cfg.PhoneNumber).Msg("voice ready")
	return nil
}

// Stop disconnects and forgets all active calls.
func (v *Voice) Stop(context.Context) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.connected = false
	v.api = nil
	v.calls = make(map[string]domain.CallRecord)
	v.log.Info().Msg("voice stopped")
	return nil
}

func (v *Voice) client() (API, config.VoiceConfig, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	if !v.connected || v.api == nil {
		return nil, v.cfg, &domain.NotConnectedError{Channel: domain.ChannelVoice}
	}
	return v.api, v.cfg, nil
}

// Say renders TwiML that speaks text with the configured voice.
func (v *Voice) Say(text string) (string, error) {
	v.mu.RLock()
	cfg := v.cfg
	v.mu.RUnlock()
	return twiml.Voice([]twiml.Element{
		&twiml.VoiceSay{Message: text, Voice: cfg.Voice, Language: cfg.Language},
	})
}

func (v *Voice) track(rec domain.CallRecord) {
	v.mu.Lock()
	v.calls[rec.Sid] = rec
	v.mu.Unlock()
}

// statusCallback is where Twilio reports call progress, or "" when no
// webhook URL is configured.
func statusCallback(cfg config.VoiceConfig) string {
	if cfg.WebhookURL == "" {
		return ""
	}
	return strings.TrimRight(cfg.WebhookURL, "/") + "/voice/status"
}

// MakeCall places an outbound call. Twilio fetches instructions from the
// configured webhook URL; without one the greeting is spoken inline.
func (v *Voice) MakeCall(ctx context.Context, to, from string) (domain.CallRecord, error) {
	api, cfg, err := v.client()
	if err != nil {
		return domain.CallRecord{}, err
	}
	if err := ctx.Err(); err != nil {
		return domain.CallRecord{}, err
	}
	if from == "" {
		from = cfg.PhoneNumber
	}
	to, from = NormalizeE164(to), NormalizeE164(from)

	params := &openapi.CreateCallParams{}
	params.SetTo(to)
	params.SetFrom(from)
	if cfg.WebhookURL != "" {
		params.SetUrl(cfg.WebhookURL)
		params.SetStatusCallback(statusCallback(cfg))
	} else {
		twimlDoc, err := v.Say(cfg.Greeting)
		if err != nil {
			return domain.CallRecord{}, err
		}
		params.SetTwiml(twimlDoc)
	}

	resp, err := api.CreateCall(params)
	if err != nil {
		err = wrapError(err)
		v.log.Error().Err(err).Str("to", to).Msg("failed to initiate call")
		return domain.CallRecord{}, err
	}

	rec := domain.CallRecord{
		Sid:       str(resp.Sid),
		From:      from,
		To:        to,
		Direction: domain.CallOutbound,
		Status:    domain.CallQueued,
		Timestamp: time.Now(),
	}
	if s := str(resp.Status); s != "" {
		rec.Status = domain.CallStatus(s)
	}
	v.track(rec)

	v.log.Info().Str("sid", rec.Sid).Str("to", to).Msg("outgoing call initiated")
	v.events.Emit(ctx, hooks.Event{Name: hooks.EventCallInitiated, CorrelationID: rec.Sid, Call: &rec, Channel: domain.ChannelVoice})
	return rec, nil
}

// EndCall hangs up a call and stops tracking it.
func (v *Voice) EndCall(ctx context.Context, sid string) error {
	api, _, err := v.client()
	if err != nil {
		return err
	}
	params := &openapi.UpdateCallParams{}
	params.SetStatus(string(domain.CallCompleted))
	if _, err := api.UpdateCall(sid, params); err != nil {
		err = wrapError(err)
		v.log.Error().Err(err).Str("sid", sid).Msg("failed to end call")
		return err
	}

	v.mu.Lock()
	rec, ok := v.calls[sid]
	delete(v.calls, sid)
	v.mu.Unlock()
	if !ok {
		rec = domain.CallRecord{Sid: sid}
	}
	rec.Status = domain.CallCompleted
	rec.Timestamp = time.Now()

	v.log.Info().Str("sid", sid).Msg("call ended")
	v.events.Emit(ctx, hooks.Event{Name: hooks.EventCallEnded, CorrelationID: sid, Call: &rec, Channel: domain.ChannelVoice})
	return nil
}

// ActiveCalls returns the tracked calls ordered by sid.
func (v *Voice) ActiveCalls() []domain.CallRecord {
	v.mu.RLock()
	defer v.mu.RUnlock()
	out := make([]domain.CallRecord, 0, len(v.calls))
	for _, c := range v.calls {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Sid < out[j].Sid })
	return out
}

// Call returns a tracked call.
func (v *Voice) Call(sid string) (domain.CallRecord, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	c, ok := v.calls[sid]
	return c, ok
}

func flatten(form url.Values) map[string]string {
	out := make(map[string]string, len(form))
	for k := range form {
		out[k] = form.Get(k)
	}
	return out
}

// HandleIncomingCall tracks an inbound call and notifies call handlers.
func (v *Voice) HandleIncomingCall(ctx context.Context, form url.Values) domain.CallRecord {
	rec := domain.CallRecord{
		Sid:       form.Get("CallSid"),
		From:      form.Get("From"),
		To:        form.Get("To"),
		Direction: domain.CallInbound,
		Status:    domain.CallInProgress,
		Timestamp: time.Now(),
		Raw:       flatten(form),
	}
	v.track(rec)

	v.mu.RLock()
	handlers := append([]func(domain.CallRecord){}, v.onCall...)
	v.mu.RUnlock()

	v.log.Info().Str("sid", rec.Sid).Str("from", rec.From).Msg("incoming call")
	v.events.Emit(ctx, hooks.Event{Name: hooks.EventCall, CorrelationID: rec.Sid, Call: &rec, Channel: domain.ChannelVoice})
	for _, h := range handlers {
		h(rec)
	}
	return rec
}

// HandleStatusUpdate applies a call status callback and emits callStatus.
// Terminal statuses also stop tracking the call and emit callEnded.
func (v *Voice) HandleStatusUpdate(ctx context.Context, form url.Values) domain.CallRecord {
	sid := form.Get("CallSid")
	status := domain.CallStatus(form.Get("CallStatus"))
	duration, _ := strconv.Atoi(form.Get("CallDuration"))

	v.mu.Lock()
	rec, ok := v.calls[sid]
	if !ok {
		rec = domain.CallRecord{Sid: sid, From: form.Get("From"), To: form.Get("To")}
	}
	rec.Status = status
	rec.Timestamp = time.Now()
	if duration > 0 {
		rec.Duration = duration
	}
	rec.Raw = flatten(form)
	if status.Terminal() {
		delete(v.calls, sid)
	} else if ok {
		v.calls[sid] = rec
	}
	v.mu.Unlock()

	v.log.Debug().Str("sid", sid).Str("status", string(status)).Msg("call status update")
	v.events.Emit(ctx, hooks.Event{Name: hooks.EventCallStatus, CorrelationID: sid, Call: &rec, Channel: domain.ChannelVoice})
	if status.Terminal() {
		ended := rec
		v.events.Emit(ctx, hooks.Event{Name: hooks.EventCallEnded, CorrelationID: sid, Call: &ended, Channel: domain.ChannelVoice})
	}
	return rec
}

// HandleWebhook dispatches voice callbacks: "status" for status updates,
// anything else for an incoming call.
func (v *Voice) HandleWebhook(ctx context.Context, p channel.WebhookPayload) error {
	v.mu.RLock()
	cfg := v.cfg
	v.mu.RUnlock()

	if cfg.ValidateSignature && !ValidSignature(cfg.AuthToken, p.URL, p.Form, p.Signature) {
		return ErrInvalidSignature
	}
	if p.Kind == "status" {
		v.HandleStatusUpdate(ctx, p.Form)
		return nil
	}
	v.HandleIncomingCall(ctx, p.Form)
	return nil
}

// OnCall registers a handler invoked for every incoming call.
func (v *Voice) OnCall(handler func(domain.CallRecord)) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.onCall = append(v.onCall, handler)
}

// RegisterCallHandler sets the responder for calls in one direction.
func (v *Voice) RegisterCallHandler(dir domain.CallDirection, fn CallFunc) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.byDir[dir] = fn
	v.log.Debug().Str("direction", string(dir)).Msg("call handler registered")
}

// HandleCall runs the handler registered for the call's direction, falling
// back to speaking the configured greeting.
func (v *Voice) HandleCall(ctx context.Context, call domain.CallRecord) (domain.CallResult, error) {
	v.mu.RLock()
	fn := v.byDir[call.Direction]
	greeting := v.cfg.Greeting
	v.mu.RUnlock()

	if fn != nil {
		return fn(ctx, call)
	}
	doc, err := v.Say(greeting)
	if err != nil {
		return domain.CallResult{}, err
	}
	return domain.CallResult{Sid: call.Sid, Action: "greeting", TwiML: doc}, nil
}

// Send speaks msg.Content to the recipient by placing a call with inline
// TwiML. The returned message id is the call sid. The call is tracked as
// active only when a status callback will report its end.
func (v *Voice) Send(ctx context.Context, msg domain.Message) (domain.Message, error) {
	api, cfg, err := v.client()
	if err != nil {
		return domain.Message{}, err
	}
	if err := ctx.Err(); err != nil {
		return domain.Message{}, err
	}
	doc, err := v.Say(msg.Content)
	if err != nil {
		return domain.Message{}, err
	}

	to, from := NormalizeE164(msg.Recipient), NormalizeE164(cfg.PhoneNumber)
	params := &openapi.CreateCallParams{}
	params.SetTo(to)
	params.SetFrom(from)
	params.SetTwiml(doc)
	callback := statusCallback(cfg)
	if callback != "" {
		params.SetStatusCallback(callback)
	}

	resp, err := api.CreateCall(params)
	if err != nil {
		err = wrapError(err)
		v.log.Error().Err(err).Str("to", to).Msg("voice message failed")
		return domain.Message{}, err
	}

	sid := str(resp.Sid)
	if callback == "" {
		return msg.Restamp(sid), nil
	}
	v.track(domain.CallRecord{Sid: sid, From: from, To: to, Direction: domain.CallOutbound, Status: domain.CallQueued, Timestamp: time.Now()})
	return msg.Restamp(sid), nil
}

func (v *Voice) Status() domain.AdapterStatus {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return domain.AdapterStatus{
		Channel:     domain.ChannelVoice,
		Connected:   v.connected,
		Address:     v.cfg.PhoneNumber,
		ActiveCalls: len(v.calls),
		LastError:   v.lastErr,
	}
}

// OnMessage registers a message handler. Voice produces calls rather than
// messages, so handlers are kept only to satisfy the adapter contract.
func (v *Voice) OnMessage(handler func(domain.Message)) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.onMessage = append(v.onMessage, handler)
}

// UpdateConfig applies the voice section, rebuilding the client when the
// account credentials changed.
func (v *Voice) UpdateConfig(cfg config.Config) error {
	next := cfg.Voice

	v.mu.Lock()
	defer v.mu.Unlock()
	rebuild := next.AccountSid != v.cfg.AccountSid || next.AuthToken != v.cfg.AuthToken
	v.cfg = next
	if rebuild && v.connected {
		if reason := voiceMissing(next); reason != "" {
			v.connected = false
			v.api = nil
			v.lastErr = reason
			return &domain.AdapterInitError{Channel: domain.ChannelVoice, Reason: reason}
		}
		v.api = v.opts.newAPI(next.AccountSid, next.AuthToken)
		v.log.Info().Msg("Twilio client re-initialized")
	}
	return nil
}
