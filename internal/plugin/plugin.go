// Package plugin manages the optional extensions that observe the event bus:
// metrics, call logging and outbound webhooks.
package plugin

import (
	"context"

	"github.com/soyeahso/jibby/internal/hooks"
	"github.com/soyeahso/jibby/internal/logging"
)

// Plugin subscribes to bus events in Init and releases resources in Close.
type Plugin interface {
	Name() string
	Init(ctx context.Context, api API) error
	Close() error
}

// API is what a plugin gets to work with.
type API struct {
	Hooks *hooks.Manager
	Log   *logging.Logger
}

// Func adapts a pair of functions into a Plugin. Either may be nil.
type Func struct {
	ID      string
	OnInit  func(ctx context.Context, api API) error
	OnClose func() error
}

// New returns a Func plugin.
func New(name string, init func(ctx context.Context, api API) error, closeFn func() error) *Func {
	return &Func{ID: name, OnInit: init, OnClose: closeFn}
}

func (f *Func) Name() string { return f.ID }

func (f *Func) Init(ctx context.Context, api API) error {
	if f.OnInit == nil {
		return nil
	}
	return f.OnInit(ctx, api)
}

func (f *Func) Close() error {
	if f.OnClose == nil {
		return nil
	}
	return f.OnClose()
}
