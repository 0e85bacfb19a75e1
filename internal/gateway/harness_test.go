package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/soyeahso/jibby/internal/channel"
	"github.com/soyeahso/jibby/internal/channel/channeltest"
	"github.com/soyeahso/jibby/internal/config"
	"github.com/soyeahso/jibby/internal/conversation"
	"github.com/soyeahso/jibby/internal/domain"
	"github.com/soyeahso/jibby/internal/hooks"
	"github.com/soyeahso/jibby/internal/logging"
	"github.com/soyeahso/jibby/internal/routing"
	"github.com/soyeahso/jibby/internal/store"
	"github.com/stretchr/testify/require"
)

const testToken = "test-token-123"

func testLog() *logging.Logger {
	return logging.New(io.Discard, "silent")
}

// echoResponder answers every message with its content.
type echoResponder struct{}

func (echoResponder) Process(_ context.Context, msg domain.Message, _ []domain.Message) domain.Message {
	return domain.Message{ID: "r-" + msg.ID, Sender: "jibby-ai", Content: "echo: " + msg.Content}
}

func (echoResponder) UpdateConfig(config.AIConfig) error { return nil }

// fakeVoice is a voice adapter that records dialer calls and webhooks.
type fakeVoice struct {
	*channeltest.Adapter

	mu       sync.Mutex
	active   []domain.CallRecord
	ended    []string
	payloads []channel.WebhookPayload
	callErr  error
}

func newFakeVoice() *fakeVoice {
	return &fakeVoice{Adapter: channeltest.New(domain.ChannelVoice)}
}

func (v *fakeVoice) MakeCall(_ context.Context, to, from string) (domain.CallRecord, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.callErr != nil {
		return domain.CallRecord{}, v.callErr
	}
	if from == "" {
		from = "+15550000000"
	}
	rec := domain.CallRecord{Sid: "CA1", To: to, From: from, Direction: domain.CallOutbound, Status: domain.CallQueued, Timestamp: time.Now()}
	v.active = append(v.active, rec)
	return rec, nil
}

func (v *fakeVoice) EndCall(_ context.Context, sid string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.ended = append(v.ended, sid)
	return nil
}

func (v *fakeVoice) ActiveCalls() []domain.CallRecord {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]domain.CallRecord(nil), v.active...)
}

func (v *fakeVoice) HandleWebhook(_ context.Context, p channel.WebhookPayload) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.payloads = append(v.payloads, p)
	return nil
}

func (v *fakeVoice) webhooks() []channel.WebhookPayload {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]channel.WebhookPayload(nil), v.payloads...)
}

// fakeSocial verifies subscriptions with a fixed token.
type fakeSocial struct {
	*channeltest.Adapter
}

func (fakeSocial) VerifyWebhook(mode, token, challenge string) (string, bool) {
	if mode != "subscribe" || token != "verify-me" {
		return "", false
	}
	return challenge, true
}

type testEnv struct {
	srv          *Server
	ts           *httptest.Server
	router       *routing.Router
	bus          *hooks.Manager
	calls        *store.CallLogStore
	integrations *store.IntegrationStore
	whatsapp     *channeltest.Adapter
	sms          *channeltest.Adapter
	voice        *fakeVoice
}

func newTestEnv(t *testing.T, mutate ...func(*config.Config)) *testEnv {
	t.Helper()
	log := testLog()

	cfg := config.Defaults()
	cfg.Gateway.Auth = config.GatewayAuth{Mode: AuthToken, Token: testToken}
	for _, m := range mutate {
		m(&cfg)
	}

	reg := channel.NewRegistry(log)
	env := &testEnv{
		whatsapp: channeltest.New(domain.ChannelWhatsApp),
		sms:      channeltest.New(domain.ChannelSMS),
		voice:    newFakeVoice(),
	}
	reg.Register(env.whatsapp)
	reg.Register(env.sms)
	reg.Register(env.voice)
	reg.Register(fakeSocial{channeltest.New(domain.ChannelSocial)})

	env.bus = hooks.NewManager(log)
	env.router = routing.New(cfg, reg, conversation.NewStore(log), echoResponder{}, env.bus, log)
	env.router.Wire()
	require.NoError(t, env.router.Start(context.Background()))
	t.Cleanup(func() { env.router.Stop(context.Background()) })

	db, err := store.Open(":memory:", log)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	env.calls = store.NewCallLogStore(db)
	env.integrations = store.NewIntegrationStore(db)

	env.srv = New(cfg, env.router, log,
		WithHooks(env.bus),
		WithCallLogs(env.calls),
		WithIntegrations(env.integrations),
	)
	env.ts = httptest.NewServer(env.srv.Handler())
	t.Cleanup(env.ts.Close)
	return env
}

// do sends an authenticated request and decodes the envelope.
func (e *testEnv) do(t *testing.T, method, path string, body any) (int, Envelope) {
	t.Helper()
	var rdr io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		rdr = strings.NewReader(b)
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		rdr = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, e.ts.URL+path, rdr)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+testToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var env Envelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	return resp.StatusCode, env
}

// dataField decodes one key of an envelope's data object.
func dataField(t *testing.T, env Envelope, key string, dst any) {
	t.Helper()
	data, ok := env.Data.(map[string]any)
	require.True(t, ok, "data is not an object: %#v", env.Data)
	raw, err := json.Marshal(data[key])
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, dst))
}

// dialWS connects and completes the handshake.
func (e *testEnv) dialWS(t *testing.T, token string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(e.ts.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	var challenge Frame
	require.NoError(t, conn.ReadJSON(&challenge))
	require.Equal(t, "connect.challenge", challenge.Event)

	req, err := NewRequest("c1", MethodConnect, ConnectParams{
		Client: ClientInfo{ID: "test-client"},
		Auth:   &ConnectAuth{Token: token},
	})
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(req))

	var hello Frame
	require.NoError(t, conn.ReadJSON(&hello))
	require.Equal(t, FrameTypeResponse, hello.Type)
	require.NotNil(t, hello.OK)
	require.True(t, *hello.OK, "handshake rejected: %+v", hello.Error)

	// the client is registered once the server starts reading requests
	res, _ := call(t, conn, "sync", MethodHealth, nil)
	require.True(t, *res.OK)
	return conn
}

// call sends a request frame and returns the matching response, collecting
// any event frames received first.
func call(t *testing.T, conn *websocket.Conn, id, method string, params any) (Frame, []Frame) {
	t.Helper()
	req, err := NewRequest(id, method, params)
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(req))

	var events []Frame
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	defer conn.SetReadDeadline(time.Time{})
	for {
		var f Frame
		require.NoError(t, conn.ReadJSON(&f))
		if f.Type == FrameTypeResponse && f.ID == id {
			return f, events
		}
		events = append(events, f)
	}
}
