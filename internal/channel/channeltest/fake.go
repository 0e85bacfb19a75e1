// Package channeltest provides an in-memory channel adapter for tests.
package channeltest

import (
	"context"
	"fmt"
	"sync"

	"github.com/soyeahso/jibby/internal/config"
	"github.com/soyeahso/jibby/internal/domain"
)

// Adapter is a scriptable channel adapter. The zero value is not usable;
// create one with New.
type Adapter struct {
	ch domain.Channel

	mu        sync.Mutex
	connected bool
	started   int
	stopped   int
	sent      []domain.Message
	handlers  []func(domain.Message)
	configs   []config.Config
	seq       int

	StartErr  error
	StopErr   error
	SendErr   error
	UpdateErr error
}

// New returns a fake adapter for ch.
func New(ch domain.Channel) *Adapter {
	return &Adapter{ch: ch}
}

func (a *Adapter) Channel() domain.Channel { return a.ch }

func (a *Adapter) Start(context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.started++
	if a.StartErr != nil {
		return a.StartErr
	}
	a.connected = true
	return nil
}

func (a *Adapter) Stop(context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stopped++
	a.connected = false
	return a.StopErr
}

// Send records msg and returns it re-stamped with a sequential provider id.
func (a *Adapter) Send(_ context.Context, msg domain.Message) (domain.Message, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.SendErr != nil {
		return domain.Message{}, a.SendErr
	}
	if !a.connected {
		return domain.Message{}, &domain.NotConnectedError{Channel: a.ch}
	}
	a.seq++
	sent := msg.Restamp(fmt.Sprintf("%s-%d", a.ch, a.seq))
	a.sent = append(a.sent, sent)
	return sent, nil
}

func (a *Adapter) Status() domain.AdapterStatus {
	a.mu.Lock()
	defer a.mu.Unlock()
	return domain.AdapterStatus{Channel: a.ch, Connected: a.connected}
}

func (a *Adapter) OnMessage(h func(domain.Message)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.handlers = append(a.handlers, h)
}

func (a *Adapter) UpdateConfig(cfg config.Config) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.configs = append(a.configs, cfg)
	return a.UpdateErr
}

// Deliver simulates an inbound message from the provider.
func (a *Adapter) Deliver(msg domain.Message) {
	a.mu.Lock()
	handlers := append([]func(domain.Message){}, a.handlers...)
	a.mu.Unlock()
	for _, h := range handlers {
		h(msg)
	}
}

// Sent returns the messages sent so far.
func (a *Adapter) Sent() []domain.Message {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]domain.Message(nil), a.sent...)
}

// Configs returns the configs passed to UpdateConfig.
func (a *Adapter) Configs() []config.Config {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]config.Config(nil), a.configs...)
}

// Started returns how many times Start was called.
func (a *Adapter) Started() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.started
}

// Stopped returns how many times Stop was called.
func (a *Adapter) Stopped() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.stopped
}
