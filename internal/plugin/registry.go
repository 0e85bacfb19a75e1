package plugin

import (
	"context"
	"fmt"
	"sync"

	"github.com/soyeahso/jibby/internal/hooks"
	"github.com/soyeahso/jibby/internal/logging"
)

// Registry initializes plugins in registration order and closes them in
// reverse.
type Registry struct {
	mu      sync.Mutex
	plugins map[string]Plugin
	order   []string
	started []string
	hooks   *hooks.Manager
	log     *logging.Logger
}

// NewRegistry creates a plugin registry bound to the event bus.
func NewRegistry(hm *hooks.Manager, log *logging.Logger) *Registry {
	return &Registry{
		plugins: make(map[string]Plugin),
		hooks:   hm,
		log:     log.Sub("plugins"),
	}
}

// Register adds a plugin without initializing it.
func (r *Registry) Register(p Plugin) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.plugins[p.Name()]; exists {
		return fmt.Errorf("plugin already registered: %s", p.Name())
	}
	r.plugins[p.Name()] = p
	r.order = append(r.order, p.Name())
	r.log.Debug().Str("plugin", p.Name()).Msg("plugin registered")
	return nil
}

// InitAll initializes every plugin. When one fails, the plugins already
// initialized are closed again and the error is returned.
func (r *Registry) InitAll(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, name := range r.order {
		api := API{Hooks: r.hooks, Log: r.log.Sub(name)}
		if err := r.plugins[name].Init(ctx, api); err != nil {
			r.closeLocked()
			return fmt.Errorf("init plugin %s: %w", name, err)
		}
		r.started = append(r.started, name)
		r.log.Info().Str("plugin", name).Msg("plugin initialized")
	}
	return nil
}

// CloseAll closes the initialized plugins in reverse order.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closeLocked()
}

func (r *Registry) closeLocked() {
	for i := len(r.started) - 1; i >= 0; i-- {
		name := r.started[i]
		if err := r.plugins[name].Close(); err != nil {
			r.log.Error().Err(err).Str("plugin", name).Msg("plugin close error")
		}
	}
	r.started = nil
}

// List returns the registered plugin names in registration order.
func (r *Registry) List() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.order...)
}
