package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/soyeahso/jibby/internal/channel"
	"github.com/soyeahso/jibby/internal/config"
	"github.com/soyeahso/jibby/internal/domain"
	"github.com/soyeahso/jibby/internal/metrics"
	"github.com/soyeahso/jibby/internal/store"
)

// registerHTTPRoutes sets up all HTTP routes on mux.
func (s *Server) registerHTTPRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /metrics", metrics.Handler())
	mux.HandleFunc("GET /ws", s.handleWebSocket)

	mux.HandleFunc("POST /webhook/{provider}", s.handleWebhook)
	mux.HandleFunc("POST /webhook/{provider}/{kind}", s.handleWebhook)
	mux.HandleFunc("GET /webhook/{provider}", s.handleWebhookVerify)

	api := func(pattern string, h http.HandlerFunc) {
		mux.Handle(pattern, rateLimitMiddleware(authMiddleware(h, s.auth), s.apiLimiter))
	}
	api("POST /api/v1/messages", s.handleSendMessage)
	api("GET /api/v1/conversations/{id}", s.handleConversation)
	api("GET /api/v1/channels", s.handleChannels)
	api("GET /api/v1/config", s.handleConfigGet)
	api("PATCH /api/v1/config", s.handleConfigPatch)
	api("GET /api/v1/calls", s.handleActiveCalls)
	api("POST /api/v1/calls", s.handleMakeCall)
	api("DELETE /api/v1/calls/{sid}", s.handleEndCall)
	api("GET /api/v1/calls/history", s.handleCallHistory)
	api("GET /api/v1/integrations/twilio", s.handleTwilioGet)
	api("POST /api/v1/integrations/twilio", s.handleTwilioSave)

	mux.HandleFunc("/", handleNotFound)
}

// registerRPCHandlers sets up the WebSocket methods.
func (s *Server) registerRPCHandlers() {
	s.Handle(MethodHealth, s.rpcHealth)
	s.Handle(MethodChannels, s.rpcChannelsStatus)
	s.Handle(MethodJoin, s.rpcJoin)
	s.Handle(MethodLeave, s.rpcLeave)
	s.Handle(MethodSendMessage, s.rpcSendMessage)
}

// --- REST ---

// SendResult is the data of a successful send.
type SendResult struct {
	Message string         `json:"message"`
	Sent    domain.Message `json:"sent"`
}

func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	var msg domain.Message
	if err := s.decode(r, &msg); err != nil {
		writeErr(w, err)
		return
	}
	sent, err := s.send(r.Context(), msg)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeData(w, http.StatusOK, SendResult{Message: "Message sent successfully", Sent: sent})
}

// send delivers msg through the router and broadcasts it to the
// conversation's room.
func (s *Server) send(ctx context.Context, msg domain.Message) (domain.Message, error) {
	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	sent, err := s.router.SendMessage(ctx, msg)
	if err != nil {
		return domain.Message{}, err
	}
	if room := sent.ConversationID; room != "" {
		s.clients.BroadcastRoom(room, EventNewMessage, sent, s.eventSeq.Add(1))
	}
	return sent, nil
}

func (s *Server) handleConversation(w http.ResponseWriter, r *http.Request) {
	hist, err := s.router.ConversationHistory(r.PathValue("id"))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeData(w, http.StatusOK, map[string]any{"conversation": hist})
}

func (s *Server) handleChannels(w http.ResponseWriter, r *http.Request) {
	writeData(w, http.StatusOK, map[string]any{"channels": s.router.Channels().Status()})
}

func (s *Server) handleConfigGet(w http.ResponseWriter, r *http.Request) {
	writeData(w, http.StatusOK, map[string]any{"config": config.Redacted(s.router.Config())})
}

func (s *Server) handleConfigPatch(w http.ResponseWriter, r *http.Request) {
	var patch json.RawMessage
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&patch); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "invalid JSON: "+err.Error(), nil)
		return
	}
	s.applyConfig(r.Context(), w, patch)
}

// applyConfig merges patch into the router config. Adapter re-init failures
// do not roll the config back; they are reported alongside it.
func (s *Server) applyConfig(ctx context.Context, w http.ResponseWriter, patch []byte) {
	cfg, err := s.router.UpdateConfig(ctx, patch)
	var verr *config.ValidationError
	var cerr *config.ConfigError
	if errors.As(err, &verr) || errors.As(err, &cerr) {
		writeErr(w, err)
		return
	}
	data := map[string]any{"config": config.Redacted(cfg)}
	if err != nil {
		s.log.Warn().Err(err).Msg("config applied with adapter errors")
		data["warnings"] = err.Error()
	}
	writeData(w, http.StatusOK, data)
}

func (s *Server) dialer() (channel.Dialer, error) {
	a, err := s.router.Channels().Lookup(domain.ChannelVoice)
	if err != nil {
		return nil, err
	}
	d, ok := a.(channel.Dialer)
	if !ok {
		return nil, &domain.UnsupportedChannelError{Channel: string(domain.ChannelVoice)}
	}
	return d, nil
}

func (s *Server) handleActiveCalls(w http.ResponseWriter, r *http.Request) {
	d, err := s.dialer()
	if err != nil {
		writeErr(w, err)
		return
	}
	writeData(w, http.StatusOK, map[string]any{"calls": d.ActiveCalls()})
}

// CallRequest places an outbound call.
type CallRequest struct {
	To   string `json:"to" validate:"required,max=32"`
	From string `json:"from,omitempty" validate:"omitempty,max=32"`
}

func (s *Server) handleMakeCall(w http.ResponseWriter, r *http.Request) {
	var req CallRequest
	if err := s.decode(r, &req); err != nil {
		writeErr(w, err)
		return
	}
	d, err := s.dialer()
	if err != nil {
		writeErr(w, err)
		return
	}
	call, err := d.MakeCall(r.Context(), req.To, req.From)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeData(w, http.StatusOK, map[string]any{"message": "Call initiated", "call": call})
}

func (s *Server) handleEndCall(w http.ResponseWriter, r *http.Request) {
	d, err := s.dialer()
	if err != nil {
		writeErr(w, err)
		return
	}
	sid := r.PathValue("sid")
	if err := d.EndCall(r.Context(), sid); err != nil {
		writeErr(w, err)
		return
	}
	writeData(w, http.StatusOK, map[string]any{"message": "Call ended", "sid": sid})
}

func (s *Server) handleCallHistory(w http.ResponseWriter, r *http.Request) {
	if s.calls == nil {
		writeError(w, http.StatusServiceUnavailable, "STORE_UNAVAILABLE", "call history is not enabled", nil)
		return
	}
	logs, err := s.calls.Recent(r.Context(), store.DefaultHistoryLimit)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeData(w, http.StatusOK, map[string]any{"calls": logs})
}

// TwilioIntegrationRequest saves Twilio credentials.
type TwilioIntegrationRequest struct {
	AccountSid  string `json:"accountSid" validate:"required,startswith=AC"`
	AuthToken   string `json:"authToken" validate:"required"`
	PhoneNumber string `json:"phoneNumber,omitempty" validate:"omitempty,e164"`
}

func (s *Server) handleTwilioGet(w http.ResponseWriter, r *http.Request) {
	if s.integrations == nil {
		writeError(w, http.StatusServiceUnavailable, "STORE_UNAVAILABLE", "integrations are not enabled", nil)
		return
	}
	in, err := s.integrations.Get(r.Context(), store.ProviderTwilio)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeData(w, http.StatusOK, map[string]any{"integration": in})
}

// handleTwilioSave stores the credentials and pushes them into every
// Twilio-backed channel.
func (s *Server) handleTwilioSave(w http.ResponseWriter, r *http.Request) {
	if s.integrations == nil {
		writeError(w, http.StatusServiceUnavailable, "STORE_UNAVAILABLE", "integrations are not enabled", nil)
		return
	}
	var req TwilioIntegrationRequest
	if err := s.decode(r, &req); err != nil {
		writeErr(w, err)
		return
	}
	in, err := s.integrations.Upsert(r.Context(), store.Integration{
		Provider:    store.ProviderTwilio,
		AccountSid:  req.AccountSid,
		AuthToken:   req.AuthToken,
		PhoneNumber: req.PhoneNumber,
	})
	if err != nil {
		writeErr(w, err)
		return
	}

	creds := map[string]string{"accountSid": req.AccountSid, "authToken": req.AuthToken}
	if req.PhoneNumber != "" {
		creds["phoneNumber"] = req.PhoneNumber
	}
	patch, _ := json.Marshal(map[string]any{
		config.SectionWhatsApp: creds,
		config.SectionSMS:      creds,
		config.SectionVoice:    creds,
	})
	if _, err := s.router.UpdateConfig(r.Context(), patch); err != nil {
		s.log.Warn().Err(err).Msg("twilio credentials saved but not fully applied")
		writeData(w, http.StatusOK, map[string]any{"integration": in, "warnings": err.Error()})
		return
	}
	writeData(w, http.StatusOK, map[string]any{"integration": in})
}

// --- WebSocket methods ---

func (s *Server) rpcHealth(rc *RequestContext) {
	rc.Respond(HealthResponse{Status: "ok", Version: s.version, Clients: s.clients.Count()})
}

func (s *Server) rpcChannelsStatus(rc *RequestContext) {
	rc.Respond(map[string]any{"channels": s.router.Channels().Status()})
}

func (s *Server) rpcJoin(rc *RequestContext) {
	var p RoomParams
	if err := rc.Params(&p); err != nil {
		rc.RespondError("invalid_params", "conversationId is required")
		return
	}
	s.clients.Join(rc.Client, p.ConversationID)
	rc.Respond(map[string]any{"rooms": rc.Client.Rooms()})
}

func (s *Server) rpcLeave(rc *RequestContext) {
	var p RoomParams
	if err := rc.Params(&p); err != nil {
		rc.RespondError("invalid_params", "conversationId is required")
		return
	}
	s.clients.Leave(rc.Client, p.ConversationID)
	rc.Respond(map[string]any{"rooms": rc.Client.Rooms()})
}

// rpcSendMessage answers with an in-band acknowledgement: ok=true and
// status "ok", or ok=false and status "error" with the failure message.
func (s *Server) rpcSendMessage(rc *RequestContext) {
	var p SendMessageParams
	if err := rc.Params(&p); err != nil {
		rc.Client.Reject(rc.Frame.ID, Ack{Status: "error", Message: fmt.Sprintf("invalid message: %v", err)})
		return
	}
	if _, err := s.send(rc.Ctx, p.Message); err != nil {
		rc.Client.Reject(rc.Frame.ID, Ack{Status: "error", Message: err.Error()})
		return
	}
	rc.Respond(Ack{Status: "ok"})
}
