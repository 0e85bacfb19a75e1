package channel

import (
	"context"
	"sync"

	"github.com/soyeahso/jibby/internal/domain"
	"github.com/soyeahso/jibby/internal/logging"
	"golang.org/x/sync/errgroup"
)

// Registry maps each channel to the adapter serving it.
type Registry struct {
	mu       sync.RWMutex
	adapters map[domain.Channel]Adapter
	log      *logging.Logger
}

// NewRegistry creates an empty adapter registry.
func NewRegistry(log *logging.Logger) *Registry {
	return &Registry{
		adapters: make(map[domain.Channel]Adapter),
		log:      log.Sub("channels"),
	}
}

// Register adds an adapter, replacing any previous one for its channel.
func (r *Registry) Register(a Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[a.Channel()] = a
	r.log.Info().Str("channel", string(a.Channel())).Msg("adapter registered")
}

// Get returns the adapter for ch.
func (r *Registry) Get(ch domain.Channel) (Adapter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[ch]
	return a, ok
}

// Lookup is Get with an *domain.UnsupportedChannelError for missing channels.
func (r *Registry) Lookup(ch domain.Channel) (Adapter, error) {
	a, ok := r.Get(ch)
	if !ok {
		return nil, &domain.UnsupportedChannelError{Channel: string(ch)}
	}
	return a, nil
}

// List returns the registered channels in declaration order.
func (r *Registry) List() []domain.Channel {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.Channel, 0, len(r.adapters))
	for _, ch := range domain.Channels {
		if _, ok := r.adapters[ch]; ok {
			out = append(out, ch)
		}
	}
	return out
}

// Adapters returns the registered adapters in declaration order.
func (r *Registry) Adapters() []Adapter {
	chs := r.List()
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Adapter, 0, len(chs))
	for _, ch := range chs {
		out = append(out, r.adapters[ch])
	}
	return out
}

// Status returns the status of every registered adapter.
func (r *Registry) Status() []domain.AdapterStatus {
	adapters := r.Adapters()
	out := make([]domain.AdapterStatus, 0, len(adapters))
	for _, a := range adapters {
		out = append(out, a.Status())
	}
	return out
}

// StartAll starts every adapter concurrently. Each adapter attempts its own
// start; the first error is returned.
func (r *Registry) StartAll(ctx context.Context) error {
	return r.each(ctx, "start", func(ctx context.Context, a Adapter) error { return a.Start(ctx) })
}

// StopAll stops every adapter concurrently and returns the first error.
func (r *Registry) StopAll(ctx context.Context) error {
	return r.each(ctx, "stop", func(ctx context.Context, a Adapter) error { return a.Stop(ctx) })
}

// StopPolling stops every Poller from delivering further inbound messages.
func (r *Registry) StopPolling(ctx context.Context) error {
	return r.each(ctx, "stop polling", func(ctx context.Context, a Adapter) error {
		if p, ok := a.(Poller); ok {
			return p.StopPolling(ctx)
		}
		return nil
	})
}

func (r *Registry) each(ctx context.Context, op string, fn func(context.Context, Adapter) error) error {
	var g errgroup.Group
	for _, a := range r.Adapters() {
		g.Go(func() error {
			r.log.Debug().Str("channel", string(a.Channel())).Str("op", op).Msg("adapter lifecycle")
			if err := fn(ctx, a); err != nil {
				r.log.Error().Err(err).Str("channel", string(a.Channel())).Msgf("failed to %s adapter", op)
				return err
			}
			return nil
		})
	}
	return g.Wait()
}

// Count returns the number of registered adapters.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.adapters)
}
