package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"
	"github.com/soyeahso/jibby/internal/config"
	"github.com/soyeahso/jibby/internal/domain"
	"github.com/soyeahso/jibby/internal/hooks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func wsURL(env *testEnv) string {
	return "ws" + strings.TrimPrefix(env.ts.URL, "http") + "/ws"
}

func TestWebSocket_Handshake(t *testing.T) {
	env := newTestEnv(t)
	conn := env.dialWS(t, testToken)

	res, _ := call(t, conn, "h1", MethodHealth, nil)
	require.True(t, *res.OK)

	var health HealthResponse
	require.NoError(t, json.Unmarshal(res.Payload, &health))
	assert.Equal(t, "ok", health.Status)
	assert.Equal(t, 1, health.Clients)
}

func TestWebSocket_RejectsBadToken(t *testing.T) {
	env := newTestEnv(t)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(env), nil)
	require.NoError(t, err)
	defer conn.Close()

	var challenge Frame
	require.NoError(t, conn.ReadJSON(&challenge))

	req, err := NewRequest("c1", MethodConnect, ConnectParams{Auth: &ConnectAuth{Token: "wrong"}})
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(req))

	var res Frame
	require.NoError(t, conn.ReadJSON(&res))
	require.NotNil(t, res.OK)
	assert.False(t, *res.OK)
	require.NotNil(t, res.Error)
	assert.Equal(t, "unauthorized", res.Error.Code)
}

func TestWebSocket_FailedHandshakesAreRateLimited(t *testing.T) {
	env := newTestEnv(t)

	fail := func() {
		conn, _, err := websocket.DefaultDialer.Dial(wsURL(env), nil)
		require.NoError(t, err)
		defer conn.Close()
		var challenge Frame
		require.NoError(t, conn.ReadJSON(&challenge))
		req, _ := NewRequest("c1", MethodConnect, ConnectParams{})
		require.NoError(t, conn.WriteJSON(req))
		var res Frame
		conn.ReadJSON(&res)
	}
	for i := 0; i < 10; i++ {
		fail()
	}

	require.Eventually(t, func() bool {
		_, resp, err := websocket.DefaultDialer.Dial(wsURL(env), nil)
		return err != nil && resp != nil && resp.StatusCode == http.StatusTooManyRequests
	}, 2*time.Second, 20*time.Millisecond)
}

func TestWebSocket_JWT(t *testing.T) {
	const secret = "jwt-secret"
	env := newTestEnv(t, func(cfg *config.Config) {
		cfg.Gateway.Auth = config.GatewayAuth{Mode: AuthJWT, JWTSecret: secret}
	})

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "dashboard",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString([]byte(secret))
	require.NoError(t, err)

	conn := env.dialWS(t, token)
	res, _ := call(t, conn, "s1", MethodChannels, nil)
	assert.True(t, *res.OK)
}

func TestWebSocket_UnknownMethod(t *testing.T) {
	env := newTestEnv(t)
	conn := env.dialWS(t, testToken)

	res, _ := call(t, conn, "x1", "nope", nil)
	assert.False(t, *res.OK)
	require.NotNil(t, res.Error)
	assert.Equal(t, "method_not_found", res.Error.Code)
}

func TestWebSocket_JoinLeave(t *testing.T) {
	env := newTestEnv(t)
	conn := env.dialWS(t, testToken)

	res, _ := call(t, conn, "j1", MethodJoin, RoomParams{ConversationID: "c1"})
	require.True(t, *res.OK)
	var rooms struct{ Rooms []string }
	require.NoError(t, json.Unmarshal(res.Payload, &rooms))
	assert.Equal(t, []string{"c1"}, rooms.Rooms)

	res, _ = call(t, conn, "j2", MethodJoin, RoomParams{})
	assert.False(t, *res.OK)

	res, _ = call(t, conn, "l1", MethodLeave, RoomParams{ConversationID: "c1"})
	require.True(t, *res.OK)
	require.NoError(t, json.Unmarshal(res.Payload, &rooms))
	assert.Empty(t, rooms.Rooms)
}

func TestWebSocket_SendMessageBroadcastsToRoom(t *testing.T) {
	env := newTestEnv(t)
	sender := env.dialWS(t, testToken)
	watcher := env.dialWS(t, testToken)
	outsider := env.dialWS(t, testToken)

	for _, c := range []*websocket.Conn{sender, watcher} {
		res, _ := call(t, c, "j", MethodJoin, RoomParams{ConversationID: "room-1"})
		require.True(t, *res.OK)
	}

	res, events := call(t, sender, "m1", MethodSendMessage, SendMessageParams{Message: domain.Message{
		ConversationID: "room-1",
		Recipient:      "+1555",
		Content:        "hello room",
		Channel:        domain.ChannelSMS,
	}})
	require.True(t, *res.OK, "%s", res.Payload)

	var ack Ack
	require.NoError(t, json.Unmarshal(res.Payload, &ack))
	assert.Equal(t, "ok", ack.Status)

	var got []string
	for _, ev := range events {
		got = append(got, ev.Event)
	}
	assert.Contains(t, got, EventNewMessage)

	watcher.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		var f Frame
		require.NoError(t, watcher.ReadJSON(&f))
		if f.Event != EventNewMessage {
			continue
		}
		var msg domain.Message
		require.NoError(t, json.Unmarshal(f.Payload, &msg))
		assert.Equal(t, "hello room", msg.Content)
		assert.Equal(t, "sms-1", msg.ID)
		break
	}

	// outsider only sees the forwarded messageSent event
	outsider.SetReadDeadline(time.Now().Add(2 * time.Second))
	var f Frame
	require.NoError(t, outsider.ReadJSON(&f))
	assert.Equal(t, hooks.EventMessageSent, f.Event)
}

func TestWebSocket_SendMessageFailureAck(t *testing.T) {
	env := newTestEnv(t)
	conn := env.dialWS(t, testToken)

	res, _ := call(t, conn, "m1", MethodSendMessage, SendMessageParams{Message: domain.Message{
		Recipient: "a@example.com", Content: "hi", Channel: domain.ChannelEmail,
	}})
	require.NotNil(t, res.OK)
	assert.False(t, *res.OK)

	var ack Ack
	require.NoError(t, json.Unmarshal(res.Payload, &ack))
	assert.Equal(t, "error", ack.Status)
	assert.Contains(t, ack.Message, "unsupported channel")

	res, _ = call(t, conn, "m2", MethodSendMessage, SendMessageParams{})
	assert.False(t, *res.OK)
	require.NoError(t, json.Unmarshal(res.Payload, &ack))
	assert.Contains(t, ack.Message, "invalid message")
}

func TestWebSocket_ForwardsBusEvents(t *testing.T) {
	env := newTestEnv(t)
	conn := env.dialWS(t, testToken)

	env.bus.Emit(context.Background(), hooks.Event{Name: hooks.EventMessageProcessed, CorrelationID: "SM1"})
	env.bus.Emit(context.Background(), hooks.Event{Name: hooks.EventConfigUpdated})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var f Frame
	require.NoError(t, conn.ReadJSON(&f))
	assert.Equal(t, FrameTypeEvent, f.Type)
	assert.Equal(t, hooks.EventMessageProcessed, f.Event)
	assert.Positive(t, f.Seq)

	var ev hooks.Event
	require.NoError(t, json.Unmarshal(f.Payload, &ev))
	assert.Equal(t, "SM1", ev.CorrelationID)
}

func TestResolveBindAddr(t *testing.T) {
	tests := []struct {
		gw   config.GatewayConfig
		want string
	}{
		{config.GatewayConfig{Port: 3000}, "127.0.0.1:3000"},
		{config.GatewayConfig{Port: 3000, Bind: "loopback"}, "127.0.0.1:3000"},
		{config.GatewayConfig{Port: 3000, Bind: "lan"}, "0.0.0.0:3000"},
		{config.GatewayConfig{Port: 8080, Bind: "custom", Host: "10.0.0.5"}, "10.0.0.5:8080"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, resolveBindAddr(tt.gw), "%+v", tt.gw)
	}
}

func TestServer_StartAndShutdown(t *testing.T) {
	env := newTestEnv(t, func(cfg *config.Config) {
		cfg.Gateway.Port = 0
	})

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- env.srv.Start(ctx) }()

	cancel()
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
