package domain

import (
	"errors"
	"fmt"
)

// Sentinels for errors.Is checks against the typed errors below.
var (
	ErrAdapterInit          = errors.New("adapter init failed")
	ErrNotConnected         = errors.New("adapter not connected")
	ErrUnsupportedChannel   = errors.New("unsupported channel")
	ErrConversationNotFound = errors.New("conversation not found")
	ErrProvider             = errors.New("provider error")
)

// AdapterInitError reports missing or invalid adapter credentials.
type AdapterInitError struct {
	Channel Channel
	Reason  string
}

func (e *AdapterInitError) Error() string {
	return fmt.Sprintf("%s: initialization failed: %s", e.Channel, e.Reason)
}

func (e *AdapterInitError) Is(target error) bool { return target == ErrAdapterInit }

// NotConnectedError is returned when an adapter is used before Start.
type NotConnectedError struct {
	Channel Channel
}

func (e *NotConnectedError) Error() string {
	return fmt.Sprintf("%s: not connected", e.Channel)
}

func (e *NotConnectedError) Is(target error) bool { return target == ErrNotConnected }

// UnsupportedChannelError is returned when no adapter serves a channel.
type UnsupportedChannelError struct {
	Channel string
}

func (e *UnsupportedChannelError) Error() string {
	return fmt.Sprintf("unsupported channel: %s", e.Channel)
}

func (e *UnsupportedChannelError) Is(target error) bool { return target == ErrUnsupportedChannel }

// ConversationNotFoundError is returned for history requests on unknown ids.
type ConversationNotFoundError struct {
	ID string
}

func (e *ConversationNotFoundError) Error() string {
	return fmt.Sprintf("conversation not found: %s", e.ID)
}

func (e *ConversationNotFoundError) Is(target error) bool { return target == ErrConversationNotFound }

// ProviderError wraps a failure reported by an upstream SDK or API.
type ProviderError struct {
	Provider string
	Code     string
	Status   int
	Message  string
	Err      error
}

func (e *ProviderError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Code != "" {
		return fmt.Sprintf("%s: %s (code %s)", e.Provider, msg, e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Provider, msg)
}

func (e *ProviderError) Unwrap() error { return e.Err }

func (e *ProviderError) Is(target error) bool { return target == ErrProvider }
