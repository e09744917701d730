package ai

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/headline-ai/headline-server/internal/config"
)

// ProviderFactory builds a provider for a model name. An empty model selects
// the factory's default.
type ProviderFactory func(ctx context.Context, model string) (Provider, error)

// Registry resolves provider names ("ollama", "openrouter") to factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]ProviderFactory
}

func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]ProviderFactory)}
}

// NewRegistryFromConfig returns a registry with the ollama and openrouter
// factories wired from config. Each factory falls back to its configured
// default model when none is requested.
func NewRegistryFromConfig(cfg config.Config) *Registry {
	r := NewRegistry()
	r.Register("ollama", func(_ context.Context, model string) (Provider, error) {
		if model == "" {
			model = cfg.OllamaModel
		}
		return NewOllamaProvider(cfg.OllamaBaseURL, model), nil
	})
	r.Register("openrouter", func(_ context.Context, model string) (Provider, error) {
		if model == "" {
			model = cfg.OpenRouterModel
		}
		return NewOpenRouterProvider(cfg.OpenRouterBaseURL, cfg.OpenRouterAPIKey, model, cfg.OpenRouterSiteURL, cfg.OpenRouterAppName), nil
	})
	return r
}

func (r *Registry) Register(name string, f ProviderFactory) {
	name = strings.ToLower(strings.TrimSpace(name))
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = f
}

func (r *Registry) Get(ctx context.Context, name string, model string) (Provider, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	r.mu.RLock()
	f, ok := r.factories[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown ai provider: %s", name)
	}
	return f(ctx, model)
}
