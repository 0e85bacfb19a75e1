package llm

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/soyeahso/jibby/internal/config"
	"github.com/soyeahso/jibby/internal/domain"
	"github.com/soyeahso/jibby/internal/logging"
)

// Factory builds a Client from AI settings.
type Factory func(cfg config.AIConfig) (Client, error)

// Registry maps provider names to client factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
	log       *logging.Logger
}

// NewRegistry creates an empty provider registry.
func NewRegistry(log *logging.Logger) *Registry {
	return &Registry{
		factories: make(map[string]Factory),
		log:       log.Sub("llm.registry"),
	}
}

// DefaultRegistry returns a registry with the built-in providers:
// "openai", "anthropic" and "custom" (any OpenAI-compatible endpoint).
func DefaultRegistry(log *logging.Logger) *Registry {
	r := NewRegistry(log)
	r.Register("openai", func(cfg config.AIConfig) (Client, error) {
		if cfg.APIKey == "" {
			return nil, missingKey("openai")
		}
		return NewOpenAIClient("openai", cfg.APIKey, cfg.BaseURL), nil
	})
	r.Register("anthropic", func(cfg config.AIConfig) (Client, error) {
		if cfg.APIKey == "" {
			return nil, missingKey("anthropic")
		}
		return NewAnthropicClient(cfg.APIKey, cfg.BaseURL, time.Duration(cfg.TimeoutSeconds)*time.Second), nil
	})
	r.Register("custom", func(cfg config.AIConfig) (Client, error) {
		if cfg.BaseURL == "" {
			return nil, &domain.ProviderError{Provider: "custom", Code: "missing_base_url", Message: "baseUrl is required"}
		}
		return NewOpenAIClient("custom", cfg.APIKey, cfg.BaseURL), nil
	})
	return r
}

func missingKey(provider string) error {
	return &domain.ProviderError{Provider: provider, Code: "missing_api_key", Message: "apiKey is required"}
}

// Register adds or replaces the factory for a provider name.
func (r *Registry) Register(name string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = f
	r.log.Debug().Str("provider", name).Msg("registered LLM provider")
}

// Build constructs a client for cfg.Provider.
func (r *Registry) Build(cfg config.AIConfig) (Client, error) {
	r.mu.RLock()
	f, ok := r.factories[cfg.Provider]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("no LLM provider %q", cfg.Provider)
	}
	c, err := f(cfg)
	if err != nil {
		return nil, err
	}
	r.log.Info().Str("provider", cfg.Provider).Str("model", cfg.Model).Msg("LLM client ready")
	return c, nil
}

// List returns all registered provider names in sorted order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for n := range r.factories {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
