package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseChannel(t *testing.T) {
	tests := []struct {
		in      string
		want    Channel
		wantErr bool
	}{
		{in: "whatsapp", want: ChannelWhatsApp},
		{in: "voice", want: ChannelVoice},
		{in: "social", want: ChannelSocial},
		{in: "email", want: ChannelEmail},
		{in: "sms", want: ChannelSMS},
		{in: "fax", wantErr: true},
		{in: "", wantErr: true},
		{in: "WhatsApp", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseChannel(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrUnsupportedChannel)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestChannelsAreValid(t *testing.T) {
	assert.Len(t, Channels, 5)
	for _, c := range Channels {
		assert.True(t, c.Valid(), c)
	}
}

func TestMessageRestamp(t *testing.T) {
	orig := Message{
		ID:             "m1",
		ConversationID: "c1",
		Sender:         "jibby-ai",
		Recipient:      "+1555",
		Content:        "hello",
		Channel:        ChannelWhatsApp,
		Timestamp:      time.Now().Add(-time.Hour),
		Status:         StatusFailed,
	}

	got := orig.Restamp("SM123")
	assert.Equal(t, "SM123", got.ID)
	assert.Equal(t, StatusSent, got.Status)
	assert.True(t, got.Timestamp.After(orig.Timestamp))
	assert.Equal(t, "c1", got.ConversationID)

	// original untouched
	assert.Equal(t, "m1", orig.ID)
	assert.Equal(t, StatusFailed, orig.Status)

	kept := orig.Restamp("")
	assert.Equal(t, "m1", kept.ID)
}

func TestMessageKey(t *testing.T) {
	assert.Equal(t, "c1", Message{ID: "m1", ConversationID: "c1"}.Key())
	assert.Equal(t, "m1", Message{ID: "m1"}.Key())
}

func TestMessageJSON(t *testing.T) {
	msg := Message{
		ID:        "m1",
		Recipient: "+1555",
		Content:   "hi",
		Channel:   ChannelSMS,
		Twilio:    &TwilioMeta{MessageSid: "SM1"},
	}

	data, err := json.Marshal(msg)
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, "sms", raw["channel"])
	assert.Contains(t, raw, "twilio")
	assert.NotContains(t, raw, "graph")
	assert.NotContains(t, raw, "ai")
}

func TestConversationAppendTracksParticipants(t *testing.T) {
	c := NewConversation("c1")
	created := c.UpdatedAt

	c.Lock()
	c.AppendLocked(Message{ID: "1", Sender: "+1555", Recipient: "jibby"})
	c.AppendLocked(Message{ID: "2", Sender: "jibby", Recipient: "+1555"})
	snap := c.SnapshotLocked()
	c.Unlock()

	assert.Len(t, snap.Messages, 2)
	assert.Equal(t, []string{"+1555", "jibby"}, snap.Participants)
	assert.False(t, snap.UpdatedAt.Before(created))
}

func TestConversationSnapshotIsCopy(t *testing.T) {
	c := NewConversation("c1")
	c.Lock()
	c.AppendLocked(Message{ID: "1"})
	snap := c.SnapshotLocked()
	c.Unlock()

	snap.Messages[0].ID = "mutated"
	snap.Metadata["x"] = 1

	assert.Equal(t, "1", c.Messages[0].ID)
	assert.NotContains(t, c.Metadata, "x")
}

func TestCallStatusTerminal(t *testing.T) {
	terminal := []CallStatus{CallCompleted, CallFailed, CallBusy, CallNoAnswer, CallCanceled}
	for _, s := range terminal {
		assert.True(t, s.Terminal(), s)
	}
	for _, s := range []CallStatus{CallQueued, CallRinging, CallInProgress} {
		assert.False(t, s.Terminal(), s)
	}
}

func TestErrorTaxonomy(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		sentinel error
		text     string
	}{
		{"adapter init", &AdapterInitError{Channel: ChannelVoice, Reason: "missing accountSid"}, ErrAdapterInit, "voice: initialization failed: missing accountSid"},
		{"not connected", &NotConnectedError{Channel: ChannelSMS}, ErrNotConnected, "sms: not connected"},
		{"unsupported", &UnsupportedChannelError{Channel: "fax"}, ErrUnsupportedChannel, "unsupported channel: fax"},
		{"not found", &ConversationNotFoundError{ID: "x"}, ErrConversationNotFound, "conversation not found: x"},
		{"provider", &ProviderError{Provider: "twilio", Code: "21211", Message: "invalid To"}, ErrProvider, "twilio: invalid To (code 21211)"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wrapped := fmt.Errorf("outer: %w", tt.err)
			assert.ErrorIs(t, wrapped, tt.sentinel)
			assert.Equal(t, tt.text, tt.err.Error())
		})
	}
}

func TestProviderErrorUnwrap(t *testing.T) {
	inner := errors.New("dial tcp: timeout")
	err := &ProviderError{Provider: "graph", Err: inner}

	assert.ErrorIs(t, err, inner)
	assert.Equal(t, "graph: dial tcp: timeout", err.Error())

	var pe *ProviderError
	require.True(t, errors.As(fmt.Errorf("send: %w", err), &pe))
	assert.Equal(t, "graph", pe.Provider)
}
