package gateway

import (
	"encoding/json"

	"github.com/soyeahso/jibby/internal/domain"
)

// Frame types for the WebSocket protocol.
const (
	FrameTypeRequest  = "req"
	FrameTypeResponse = "res"
	FrameTypeEvent    = "event"
)

// WebSocket methods.
const (
	MethodConnect     = "connect"
	MethodJoin        = "join"
	MethodLeave       = "leave"
	MethodSendMessage = "sendMessage"
	MethodHealth      = "health"
	MethodChannels    = "channels.status"
)

// EventNewMessage is broadcast to a conversation room when a message is sent
// through the gateway.
const EventNewMessage = "newMessage"

// Frame is the envelope for all WebSocket messages. Type discriminates
// between request, response and event frames.
type Frame struct {
	Type string `json:"type"`

	// Request fields
	ID     string          `json:"id,omitempty"`
	Method string          `json:"method,omitempty"`
	Params json.RawMessage `json:"params,omitempty"`

	// Response fields
	OK      *bool           `json:"ok,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`

	// Event fields
	Event string `json:"event,omitempty"`
	Seq   int64  `json:"seq,omitempty"`

	Error *ErrorShape `json:"error,omitempty"`
}

// ErrorShape is the error format in response frames and REST envelopes.
type ErrorShape struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// Envelope wraps every REST response body.
type Envelope struct {
	Success bool        `json:"success"`
	Data    any         `json:"data,omitempty"`
	Error   *ErrorShape `json:"error,omitempty"`
}

// ConnectParams are sent by the client in the initial "connect" request.
type ConnectParams struct {
	Client ClientInfo   `json:"client"`
	Auth   *ConnectAuth `json:"auth,omitempty"`
}

// ClientInfo identifies the connecting client.
type ClientInfo struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName,omitempty"`
	Version     string `json:"version,omitempty"`
}

// ConnectAuth carries credentials in the connect request. Token is the
// shared token or a signed JWT, depending on the auth mode.
type ConnectAuth struct {
	Token string `json:"token,omitempty"`
}

// HelloOK is the server's response payload after successful authentication.
type HelloOK struct {
	Protocol int        `json:"protocol"`
	Server   ServerInfo `json:"server"`
	Features Features   `json:"features"`
}

// ServerInfo identifies the gateway server.
type ServerInfo struct {
	Version string `json:"version"`
	Commit  string `json:"commit,omitempty"`
	ConnID  string `json:"connId"`
}

// Features advertises available methods and events.
type Features struct {
	Methods []string `json:"methods"`
	Events  []string `json:"events"`
}

// RoomParams select a conversation room.
type RoomParams struct {
	ConversationID string `json:"conversationId" validate:"required"`
}

// SendMessageParams wrap a message sent over the socket.
type SendMessageParams struct {
	Message domain.Message `json:"message"`
}

// Ack is the callback payload of a sendMessage request.
type Ack struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// NewRequest creates a request frame.
func NewRequest(id, method string, params any) (Frame, error) {
	raw, err := json.Marshal(params)
	if err != nil {
		return Frame{}, err
	}
	return Frame{Type: FrameTypeRequest, ID: id, Method: method, Params: raw}, nil
}

// NewResponse creates a response frame with ok=true.
func NewResponse(id string, payload any) (Frame, error) {
	return newResponse(id, true, payload)
}

func newResponse(id string, ok bool, payload any) (Frame, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Frame{}, err
	}
	return Frame{Type: FrameTypeResponse, ID: id, OK: &ok, Payload: raw}, nil
}

// NewErrorResponse creates an error response frame.
func NewErrorResponse(id string, errShape ErrorShape) Frame {
	ok := false
	return Frame{Type: FrameTypeResponse, ID: id, OK: &ok, Error: &errShape}
}

// NewEvent creates an event frame.
func NewEvent(event string, payload any, seq int64) (Frame, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Frame{}, err
	}
	return Frame{Type: FrameTypeEvent, Event: event, Payload: raw, Seq: seq}, nil
}

// ProtocolVersion is the WebSocket protocol version.
const ProtocolVersion = 1
