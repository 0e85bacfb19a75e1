package routing

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/soyeahso/jibby/internal/agent"
	"github.com/soyeahso/jibby/internal/channel"
	"github.com/soyeahso/jibby/internal/channel/channeltest"
	"github.com/soyeahso/jibby/internal/config"
	"github.com/soyeahso/jibby/internal/conversation"
	"github.com/soyeahso/jibby/internal/domain"
	"github.com/soyeahso/jibby/internal/hooks"
	"github.com/soyeahso/jibby/internal/llm"
	"github.com/soyeahso/jibby/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *logging.Logger {
	return logging.New(nil, "silent")
}

type recorder struct {
	mu     sync.Mutex
	events []hooks.Event
}

func (r *recorder) Emit(_ context.Context, ev hooks.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) named(name string) []hooks.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []hooks.Event
	for _, ev := range r.events {
		if ev.Name == name {
			out = append(out, ev)
		}
	}
	return out
}

// stubResponder records config updates and echoes the inbound content.
type stubResponder struct {
	mu      sync.Mutex
	updates []config.AIConfig
	err     error
}

func (s *stubResponder) Process(_ context.Context, msg domain.Message, _ []domain.Message) domain.Message {
	return domain.Message{ID: "r-" + msg.ID, Sender: "jibby-ai", Content: "echo: " + msg.Content, Status: domain.StatusSent}
}

func (s *stubResponder) UpdateConfig(cfg config.AIConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updates = append(s.updates, cfg)
	return s.err
}

type harness struct {
	router *Router
	store  *conversation.Store
	events *recorder
	mock   *llm.MockClient
	fakes  map[domain.Channel]*channeltest.Adapter
}

func newHarness(t *testing.T, mock *llm.MockClient, channels ...domain.Channel) *harness {
	t.Helper()
	log := testLogger()

	reg := channel.NewRegistry(log)
	fakes := make(map[domain.Channel]*channeltest.Adapter)
	for _, ch := range channels {
		f := channeltest.New(ch)
		fakes[ch] = f
		reg.Register(f)
	}

	if mock == nil {
		mock = &llm.MockClient{}
	}
	llms := llm.NewRegistry(log)
	llms.Register("mock", func(config.AIConfig) (llm.Client, error) { return mock, nil })

	events := &recorder{}
	store := conversation.NewStore(log)
	responder := agent.NewResponder(config.AIConfig{Provider: "mock", SystemPrompt: "You are Jibby."}, llms, events, log)
	r := New(config.Defaults(), reg, store, responder, events, log)
	return &harness{router: r, store: store, events: events, mock: mock, fakes: fakes}
}

func (h *harness) start(t *testing.T) {
	t.Helper()
	h.router.Wire()
	require.NoError(t, h.router.Start(context.Background()))
	t.Cleanup(func() { _ = h.router.Stop(context.Background()) })
}

func waMessage(id, conv, content string) domain.Message {
	return domain.Message{
		ID:             id,
		ConversationID: conv,
		Sender:         "+15551234567",
		Recipient:      "+15550000000",
		Content:        content,
		Channel:        domain.ChannelWhatsApp,
		Timestamp:      time.Now(),
		Status:         domain.StatusDelivered,
	}
}

func TestHandleInbound_FirstMessage(t *testing.T) {
	mock := &llm.MockClient{
		CompleteFunc: func(_ context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
			return &llm.CompletionResponse{Content: "Hello! How can I help?", Model: req.Model}, nil
		},
	}
	h := newHarness(t, mock, domain.ChannelWhatsApp)
	h.start(t)

	h.router.HandleInbound(context.Background(), waMessage("m1", "c1", "hi"))

	reqs := mock.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "You are Jibby.", reqs[0].System)
	require.Len(t, reqs[0].Messages, 1)
	assert.Equal(t, "hi", reqs[0].Messages[0].Content)

	sent := h.fakes[domain.ChannelWhatsApp].Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "+15551234567", sent[0].Recipient)
	assert.Equal(t, "Hello! How can I help?", sent[0].Content)
	assert.Equal(t, "c1", sent[0].ConversationID)

	hist, err := h.router.ConversationHistory("c1")
	require.NoError(t, err)
	require.Len(t, hist.Messages, 2)
	assert.Equal(t, "m1", hist.Messages[0].ID)
	assert.Equal(t, "whatsapp-1", hist.Messages[1].ID)
	assert.Equal(t, domain.StatusSent, hist.Messages[1].Status)

	sentEvents := h.events.named(hooks.EventMessageSent)
	require.Len(t, sentEvents, 1)
	assert.Equal(t, domain.ChannelWhatsApp, sentEvents[0].Message.Channel)

	processed := h.events.named(hooks.EventMessageProcessed)
	require.Len(t, processed, 1)
	assert.Equal(t, "m1", processed[0].CorrelationID)
	assert.Equal(t, "whatsapp-1", processed[0].Response.ID)
}

func TestHandleInbound_HistoryExcludesCurrentMessage(t *testing.T) {
	h := newHarness(t, nil, domain.ChannelWhatsApp)
	h.start(t)

	ctx := context.Background()
	h.router.HandleInbound(ctx, waMessage("m1", "c1", "first"))
	h.router.HandleInbound(ctx, waMessage("m2", "c1", "second"))

	reqs := h.mock.Requests()
	require.Len(t, reqs, 2)
	// first, reply, second
	require.Len(t, reqs[1].Messages, 3)
	assert.Equal(t, "first", reqs[1].Messages[0].Content)
	assert.Equal(t, "second", reqs[1].Messages[2].Content)

	hist, err := h.router.ConversationHistory("c1")
	require.NoError(t, err)
	assert.Len(t, hist.Messages, 4)
}

func TestHandleInbound_SendFailure(t *testing.T) {
	h := newHarness(t, nil, domain.ChannelWhatsApp)
	h.start(t)
	h.fakes[domain.ChannelWhatsApp].SendErr = &domain.ProviderError{Provider: "twilio", Code: "21211", Message: "invalid To"}

	h.router.HandleInbound(context.Background(), waMessage("m1", "c1", "hi"))

	assert.Empty(t, h.events.named(hooks.EventMessageSent))
	assert.Empty(t, h.events.named(hooks.EventMessageProcessed))

	errs := h.events.named(hooks.EventError)
	require.Len(t, errs, 1)
	assert.Equal(t, StageSend, errs[0].Stage)
	assert.Equal(t, "m1", errs[0].CorrelationID)
	assert.ErrorIs(t, errs[0].Err, domain.ErrProvider)

	hist, err := h.router.ConversationHistory("c1")
	require.NoError(t, err)
	require.Len(t, hist.Messages, 1)
	assert.Equal(t, "m1", hist.Messages[0].ID)
}

func TestHandleInbound_ProviderFailureStillReplies(t *testing.T) {
	mock := &llm.MockClient{
		CompleteFunc: func(context.Context, llm.CompletionRequest) (*llm.CompletionResponse, error) {
			return nil, errors.New("rate limited")
		},
	}
	h := newHarness(t, mock, domain.ChannelWhatsApp)
	h.start(t)

	h.router.HandleInbound(context.Background(), waMessage("m1", "c1", "hi"))

	hist, err := h.router.ConversationHistory("c1")
	require.NoError(t, err)
	require.Len(t, hist.Messages, 2)
	assert.Equal(t, agent.FailureContent, hist.Messages[1].Content)

	aiErrs := h.events.named(hooks.EventError)
	require.Len(t, aiErrs, 1)
	assert.Equal(t, "ai", aiErrs[0].Stage)
}

func TestHandleInbound_KeysByMessageID(t *testing.T) {
	h := newHarness(t, nil, domain.ChannelSMS)
	h.start(t)

	msg := waMessage("SM9", "", "hello")
	msg.Channel = domain.ChannelSMS
	h.router.HandleInbound(context.Background(), msg)

	hist, err := h.router.ConversationHistory("SM9")
	require.NoError(t, err)
	assert.Len(t, hist.Messages, 2)
	assert.Equal(t, "SM9", h.fakes[domain.ChannelSMS].Sent()[0].ConversationID)
}

func TestHandleInbound_ConversationsIsolated(t *testing.T) {
	h := newHarness(t, nil, domain.ChannelWhatsApp)
	h.start(t)

	ctx := context.Background()
	h.router.HandleInbound(ctx, waMessage("a1", "A", "for A"))
	h.router.HandleInbound(ctx, waMessage("b1", "B", "for B"))

	a, err := h.router.ConversationHistory("A")
	require.NoError(t, err)
	b, err := h.router.ConversationHistory("B")
	require.NoError(t, err)
	assert.Len(t, a.Messages, 2)
	assert.Len(t, b.Messages, 2)
	assert.Equal(t, "for A", a.Messages[0].Content)
	assert.Equal(t, "for B", b.Messages[0].Content)
}

func TestSendMessage_UnsupportedChannel(t *testing.T) {
	h := newHarness(t, nil, domain.ChannelWhatsApp)
	h.start(t)

	_, err := h.router.SendMessage(context.Background(), domain.Message{ID: "out-1", Channel: "fax", Content: "x"})
	assert.ErrorIs(t, err, domain.ErrUnsupportedChannel)

	_, err = h.router.SendMessage(context.Background(), domain.Message{Channel: domain.ChannelEmail, Content: "x"})
	assert.ErrorIs(t, err, domain.ErrUnsupportedChannel)
	assert.Empty(t, h.events.named(hooks.EventMessageSent))

	errs := h.events.named(hooks.EventError)
	require.Len(t, errs, 2)
	for _, ev := range errs {
		assert.Equal(t, StageRoute, ev.Stage)
		assert.ErrorIs(t, ev.Err, domain.ErrUnsupportedChannel)
		require.NotNil(t, ev.Message)
	}
	assert.Equal(t, "out-1", errs[0].CorrelationID)
	assert.NotEmpty(t, errs[1].CorrelationID)
}

func TestSendMessage_AdapterFailureEmitsAndReturns(t *testing.T) {
	h := newHarness(t, nil, domain.ChannelSMS)
	h.start(t)
	h.fakes[domain.ChannelSMS].SendErr = &domain.ProviderError{Provider: "twilio", Code: "21211", Message: "invalid To"}

	_, err := h.router.SendMessage(context.Background(), domain.Message{
		ID: "out-7", Channel: domain.ChannelSMS, Recipient: "+1555", Content: "ping",
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrProvider)

	errs := h.events.named(hooks.EventError)
	require.Len(t, errs, 1)
	assert.Equal(t, "out-7", errs[0].CorrelationID)
	assert.Equal(t, StageSend, errs[0].Stage)
	assert.ErrorIs(t, errs[0].Err, domain.ErrProvider)
	require.NotNil(t, errs[0].Message)
	assert.Equal(t, "ping", errs[0].Message.Content)
	assert.Empty(t, h.events.named(hooks.EventMessageSent))
}

func TestSendMessage_ReturnsStampedCopy(t *testing.T) {
	h := newHarness(t, nil, domain.ChannelSMS)
	h.start(t)

	sent, err := h.router.SendMessage(context.Background(), domain.Message{
		ID: "local", Channel: domain.ChannelSMS, Recipient: "+15551234567", Content: "ping",
	})
	require.NoError(t, err)
	assert.Equal(t, "sms-1", sent.ID)
	assert.Equal(t, domain.StatusSent, sent.Status)
}

func TestConversationHistory_NotFound(t *testing.T) {
	h := newHarness(t, nil)
	_, err := h.router.ConversationHistory("missing")
	assert.ErrorIs(t, err, domain.ErrConversationNotFound)
}

func TestStart_AttemptsAllAdapters(t *testing.T) {
	h := newHarness(t, nil, domain.ChannelWhatsApp, domain.ChannelSMS, domain.ChannelEmail)
	h.fakes[domain.ChannelSMS].StartErr = &domain.AdapterInitError{Channel: domain.ChannelSMS, Reason: "missing authToken"}
	h.router.Wire()

	err := h.router.Start(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrAdapterInit)
	for _, f := range h.fakes {
		assert.Equal(t, 1, f.Started())
	}
	assert.Empty(t, h.events.named(hooks.EventStarted))
	errs := h.events.named(hooks.EventError)
	require.Len(t, errs, 1)
	assert.Equal(t, StageStart, errs[0].Stage)
	assert.NotEmpty(t, errs[0].CorrelationID)
}

func TestStartStopEvents(t *testing.T) {
	h := newHarness(t, nil, domain.ChannelWhatsApp)
	h.router.Wire()
	ctx := context.Background()

	require.NoError(t, h.router.Start(ctx))
	assert.Error(t, h.router.Start(ctx))
	require.NoError(t, h.router.Stop(ctx))

	assert.Len(t, h.events.named(hooks.EventStarted), 1)
	assert.Len(t, h.events.named(hooks.EventStopped), 1)
	assert.Equal(t, 1, h.fakes[domain.ChannelWhatsApp].Stopped())

	// restartable
	require.NoError(t, h.router.Start(ctx))
	require.NoError(t, h.router.Stop(ctx))
}

func TestWire_DispatchesDeliveredMessages(t *testing.T) {
	h := newHarness(t, nil, domain.ChannelWhatsApp, domain.ChannelSMS)
	h.start(t)

	wa := h.fakes[domain.ChannelWhatsApp]
	sms := h.fakes[domain.ChannelSMS]
	for i, content := range []string{"one", "two", "three"} {
		wa.Deliver(waMessage("w"+string(rune('1'+i)), "wa-conv", content))
	}
	smsMsg := waMessage("s1", "sms-conv", "hey")
	smsMsg.Channel = domain.ChannelSMS
	sms.Deliver(smsMsg)

	require.Eventually(t, func() bool {
		return len(wa.Sent()) == 3 && len(sms.Sent()) == 1
	}, 2*time.Second, 10*time.Millisecond)

	hist, err := h.router.ConversationHistory("wa-conv")
	require.NoError(t, err)
	require.Len(t, hist.Messages, 6)
	// per-conversation order is preserved: inbound, reply, inbound, reply...
	assert.Equal(t, "one", hist.Messages[0].Content)
	assert.Equal(t, "two", hist.Messages[2].Content)
	assert.Equal(t, "three", hist.Messages[4].Content)
}

func TestStop_DrainsQueuedMessages(t *testing.T) {
	h := newHarness(t, nil, domain.ChannelWhatsApp)
	h.router.Wire()
	ctx := context.Background()
	require.NoError(t, h.router.Start(ctx))

	wa := h.fakes[domain.ChannelWhatsApp]
	wa.Deliver(waMessage("m1", "c1", "hi"))
	wa.Deliver(waMessage("m2", "c1", "again"))

	require.NoError(t, h.router.Stop(ctx))
	hist, err := h.router.ConversationHistory("c1")
	require.NoError(t, err)
	assert.Len(t, hist.Messages, 4)
	assert.Len(t, wa.Sent(), 2)
	assert.Empty(t, h.events.named(hooks.EventError))

	// delivered after stop: dropped
	wa.Deliver(waMessage("m3", "c1", "late"))
	hist, err = h.router.ConversationHistory("c1")
	require.NoError(t, err)
	assert.Len(t, hist.Messages, 4)
}

// pollingAdapter hands over one last message while it stops polling, the
// way a mail poller finishes an in-flight fetch.
type pollingAdapter struct {
	*channeltest.Adapter
	last   domain.Message
	sendable bool
}

func (p *pollingAdapter) StopPolling(context.Context) error {
	p.Deliver(p.last)
	p.sendable = p.Status().Connected
	return nil
}

func TestStop_DeliversMessagesFromFinalPoll(t *testing.T) {
	log := testLogger()
	reg := channel.NewRegistry(log)
	poller := &pollingAdapter{Adapter: channeltest.New(domain.ChannelWhatsApp), last: waMessage("m2", "c1", "final poll")}
	reg.Register(poller)
	events := &recorder{}
	r := New(config.Defaults(), reg, conversation.NewStore(log), &stubResponder{}, events, log)
	r.Wire()
	ctx := context.Background()
	require.NoError(t, r.Start(ctx))

	poller.Deliver(waMessage("m1", "c1", "hi"))
	require.NoError(t, r.Stop(ctx))

	assert.True(t, poller.sendable)
	assert.Equal(t, 1, poller.Stopped())
	hist, err := r.ConversationHistory("c1")
	require.NoError(t, err)
	require.Len(t, hist.Messages, 4)
	assert.Equal(t, "final poll", hist.Messages[2].Content)
	assert.Equal(t, "echo: final poll", hist.Messages[3].Content)
	assert.Len(t, poller.Sent(), 2)
	assert.Empty(t, events.named(hooks.EventError))
}

func TestStop_ErrorEventCarriesCorrelationID(t *testing.T) {
	h := newHarness(t, nil, domain.ChannelWhatsApp)
	h.router.Wire()
	ctx := context.Background()
	require.NoError(t, h.router.Start(ctx))
	h.fakes[domain.ChannelWhatsApp].StopErr = errors.New("logout failed")

	require.EqualError(t, h.router.Stop(ctx), "logout failed")
	errs := h.events.named(hooks.EventError)
	require.Len(t, errs, 1)
	assert.Equal(t, StageStop, errs[0].Stage)
	assert.NotEmpty(t, errs[0].CorrelationID)
	assert.Empty(t, h.events.named(hooks.EventStopped))
}

type fakeVoice struct {
	*channeltest.Adapter
	onCall []func(domain.CallRecord)
	result domain.CallResult
	err    error
}

func (v *fakeVoice) OnCall(h func(domain.CallRecord)) { v.onCall = append(v.onCall, h) }

func (v *fakeVoice) HandleCall(_ context.Context, call domain.CallRecord) (domain.CallResult, error) {
	if v.err != nil {
		return domain.CallResult{}, v.err
	}
	res := v.result
	res.Sid = call.Sid
	return res, nil
}

func TestHandleCall(t *testing.T) {
	log := testLogger()
	reg := channel.NewRegistry(log)
	voice := &fakeVoice{Adapter: channeltest.New(domain.ChannelVoice), result: domain.CallResult{Action: "greeting", TwiML: "<Response/>"}}
	reg.Register(voice)
	events := &recorder{}
	r := New(config.Defaults(), reg, conversation.NewStore(log), &stubResponder{}, events, log)
	r.Wire()
	require.NoError(t, r.Start(context.Background()))
	defer r.Stop(context.Background())

	require.Len(t, voice.onCall, 1)
	voice.onCall[0](domain.CallRecord{Sid: "CA1", From: "+15551234567", Direction: domain.CallInbound, Status: domain.CallInProgress})

	require.Eventually(t, func() bool { return len(events.named(hooks.EventCallHandled)) == 1 }, 2*time.Second, 10*time.Millisecond)
	ev := events.named(hooks.EventCallHandled)[0]
	assert.Equal(t, "CA1", ev.CorrelationID)
	assert.Equal(t, "greeting", ev.Result.Action)
	assert.Equal(t, "CA1", ev.Result.Sid)

	voice.err = errors.New("boom")
	r.HandleCall(context.Background(), domain.CallRecord{Sid: "CA2"})
	errs := events.named(hooks.EventError)
	require.Len(t, errs, 1)
	assert.Equal(t, StageCall, errs[0].Stage)
}

func TestHandleCall_NoVoiceAdapter(t *testing.T) {
	h := newHarness(t, nil, domain.ChannelWhatsApp)
	h.router.HandleCall(context.Background(), domain.CallRecord{Sid: "CA1"})
	errs := h.events.named(hooks.EventError)
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0].Err, domain.ErrUnsupportedChannel)
}

func TestUpdateConfig_ForwardsChangedSections(t *testing.T) {
	log := testLogger()
	reg := channel.NewRegistry(log)
	wa := channeltest.New(domain.ChannelWhatsApp)
	email := channeltest.New(domain.ChannelEmail)
	reg.Register(wa)
	reg.Register(email)
	resp := &stubResponder{}
	events := &recorder{}
	r := New(config.Defaults(), reg, conversation.NewStore(log), resp, events, log)

	cfg, err := r.UpdateConfig(context.Background(), []byte(`{"ai":{"model":"gpt-4o"},"whatsapp":{"phoneNumber":"+15550000000"}}`))
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o", cfg.AI.Model)
	assert.Equal(t, "gpt-4o", r.Config().AI.Model)

	require.Len(t, resp.updates, 1)
	assert.Equal(t, "gpt-4o", resp.updates[0].Model)
	require.Len(t, wa.Configs(), 1)
	assert.Equal(t, "+15550000000", wa.Configs()[0].WhatsApp.PhoneNumber)
	assert.Empty(t, email.Configs())

	updated := events.named(hooks.EventConfigUpdated)
	require.Len(t, updated, 1)
	assert.Equal(t, []string{config.SectionWhatsApp, config.SectionAI}, updated[0].Data["sections"])
}

func TestUpdateConfig_InvalidLeavesConfig(t *testing.T) {
	log := testLogger()
	reg := channel.NewRegistry(log)
	resp := &stubResponder{}
	r := New(config.Defaults(), reg, conversation.NewStore(log), resp, &recorder{}, log)
	before := r.Config()

	_, err := r.UpdateConfig(context.Background(), []byte(`{"ai":{"provider":"skynet"}}`))
	var verr *config.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, before, r.Config())
	assert.Empty(t, resp.updates)

	_, err = r.UpdateConfig(context.Background(), []byte(`{"nope":{}}`))
	assert.Error(t, err)
	_, err = r.UpdateConfig(context.Background(), []byte(`not json`))
	assert.Error(t, err)
	assert.Equal(t, before, r.Config())
}

func TestUpdateConfig_AdapterErrorJoined(t *testing.T) {
	log := testLogger()
	reg := channel.NewRegistry(log)
	sms := channeltest.New(domain.ChannelSMS)
	sms.UpdateErr = errors.New("reconnect failed")
	reg.Register(sms)
	r := New(config.Defaults(), reg, conversation.NewStore(log), &stubResponder{}, &recorder{}, log)

	cfg, err := r.UpdateConfig(context.Background(), []byte(`{"sms":{"phoneNumber":"+15550000001"}}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reconnect failed")
	assert.Equal(t, "+15550000001", cfg.SMS.PhoneNumber)
	assert.Equal(t, "+15550000001", r.Config().SMS.PhoneNumber)
}

func TestShardForStable(t *testing.T) {
	for _, key := range []string{"c1", "c2", "+15551234567", ""} {
		a := shardFor(key, 8)
		assert.Equal(t, a, shardFor(key, 8))
		assert.GreaterOrEqual(t, a, 0)
		assert.Less(t, a, 8)
	}
}
