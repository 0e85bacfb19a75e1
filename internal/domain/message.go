package domain

import (
	"fmt"
	"time"
)

// Channel identifies the transport a message travels over.
type Channel string

const (
	ChannelWhatsApp Channel = "whatsapp"
	ChannelVoice    Channel = "voice"
	ChannelSocial   Channel = "social"
	ChannelEmail    Channel = "email"
	ChannelSMS      Channel = "sms"
)

// Channels lists every supported channel in a stable order.
var Channels = []Channel{
	ChannelWhatsApp,
	ChannelVoice,
	ChannelSocial,
	ChannelEmail,
	ChannelSMS,
}

// Valid reports whether c is one of the known channels.
func (c Channel) Valid() bool {
	switch c {
	case ChannelWhatsApp, ChannelVoice, ChannelSocial, ChannelEmail, ChannelSMS:
		return true
	}
	return false
}

func (c Channel) String() string { return string(c) }

// ParseChannel converts s into a Channel, rejecting unknown values.
func ParseChannel(s string) (Channel, error) {
	c := Channel(s)
	if !c.Valid() {
		return "", &UnsupportedChannelError{Channel: s}
	}
	return c, nil
}

// MessageStatus is the delivery state of a message.
type MessageStatus string

const (
	StatusSent      MessageStatus = "sent"
	StatusDelivered MessageStatus = "delivered"
	StatusRead      MessageStatus = "read"
	StatusFailed    MessageStatus = "failed"
)

// Message is the canonical unit exchanged between adapters, the router and
// the AI responder. A status change produces a new Message; existing records
// are never rewritten.
type Message struct {
	ID             string         `json:"id" validate:"omitempty,max=128"`
	ConversationID string         `json:"conversationId" validate:"omitempty,max=256"`
	Sender         string         `json:"sender" validate:"omitempty,max=256"`
	Recipient      string         `json:"recipient" validate:"required,max=256"`
	Content        string         `json:"content" validate:"required,max=8000"`
	Channel        Channel        `json:"channel" validate:"required"`
	Timestamp      time.Time      `json:"timestamp"`
	Status         MessageStatus  `json:"status,omitempty" validate:"omitempty,oneof=sent delivered read failed"`
	Metadata       map[string]any `json:"metadata,omitempty"`

	Twilio *TwilioMeta `json:"twilio,omitempty"`
	Graph  *GraphMeta  `json:"graph,omitempty"`
	Email  *EmailMeta  `json:"email,omitempty"`
	AI     *AIMeta     `json:"ai,omitempty"`
}

// TwilioMeta carries Twilio Messaging fields for whatsapp and sms messages.
type TwilioMeta struct {
	MessageSid      string `json:"messageSid,omitempty"`
	ConversationSid string `json:"conversationSid,omitempty"`
	From            string `json:"from,omitempty"`
	To              string `json:"to,omitempty"`
	ProfileName     string `json:"profileName,omitempty"`
	NumMedia        int    `json:"numMedia,omitempty"`
	ErrorCode       string `json:"errorCode,omitempty"`
}

// GraphMeta carries Meta Graph API fields for social messages.
type GraphMeta struct {
	Platform  string `json:"platform"`
	AccountID string `json:"accountId,omitempty"`
	MID       string `json:"mid,omitempty"`
}

// EmailMeta carries RFC 5322 threading headers.
type EmailMeta struct {
	Subject    string   `json:"subject,omitempty"`
	MessageID  string   `json:"messageId,omitempty"`
	InReplyTo  string   `json:"inReplyTo,omitempty"`
	References []string `json:"references,omitempty"`
}

// AIMeta describes how an AI reply was produced.
type AIMeta struct {
	Provider     string `json:"provider,omitempty"`
	Model        string `json:"model,omitempty"`
	InputTokens  int    `json:"inputTokens,omitempty"`
	OutputTokens int    `json:"outputTokens,omitempty"`
	Error        string `json:"error,omitempty"`
}

// Restamp returns a copy of m as accepted by a provider: new id, status sent
// and a fresh timestamp.
func (m Message) Restamp(providerID string) Message {
	out := m
	if providerID != "" {
		out.ID = providerID
	}
	out.Status = StatusSent
	out.Timestamp = time.Now()
	return out
}

// Key returns the value used to shard work for this message.
func (m Message) Key() string {
	if m.ConversationID != "" {
		return m.ConversationID
	}
	return m.ID
}

func (m Message) String() string {
	return fmt.Sprintf("%s[%s] %s -> %s", m.Channel, m.ID, m.Sender, m.Recipient)
}
