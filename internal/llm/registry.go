package llm

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/soyeahso/baogate/internal/config"
	"github.com/soyeahso/baogate/internal/logging"
)

// ProviderError is returned when a conversation model provider fails.
type ProviderError struct {
	Provider string
	Message  string
	Code     int // HTTP status from the provider (401, 429, 500, ...), 0 if none
}

func (e *ProviderError) Error() string {
	if e.Code > 0 {
		return fmt.Sprintf("%s: %d %s", e.Provider, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Provider, e.Message)
}

// Registry manages provider clients and resolves model references to clients.
type Registry struct {
	mu       sync.RWMutex
	clients  map[string]Client // provider name → client
	aliases  map[string]string // model name → provider name
	fallback string
	log      *logging.Logger
}

// NewRegistry creates an empty provider registry.
func NewRegistry(log *logging.Logger) *Registry {
	return &Registry{
		clients: make(map[string]Client),
		aliases: make(map[string]string),
		log:     log.Sub("llm.registry"),
	}
}

// Register adds a client under the given provider name.
func (r *Registry) Register(name string, client Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients[name] = client
	r.log.Info().Str("provider", name).Msg("registered model provider")
}

// Alias maps a model name to a provider, e.g. Alias("gemini-2.0-flash", "gemini").
func (r *Registry) Alias(model, provider string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.aliases[model] = provider
}

// SetFallback sets the provider used when nothing else matches.
func (r *Registry) SetFallback(provider string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fallback = provider
}

// Resolve returns the Client for a model reference.
// Resolution order: exact provider name → alias → fallback.
func (r *Registry) Resolve(model string) (Client, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if c, ok := r.clients[model]; ok {
		return c, nil
	}
	if provider, ok := r.aliases[model]; ok {
		if c, ok := r.clients[provider]; ok {
			return c, nil
		}
	}
	if r.fallback != "" {
		if c, ok := r.clients[r.fallback]; ok {
			return c, nil
		}
	}
	return nil, fmt.Errorf("no model provider for %q", model)
}

// List returns registered provider names in sorted order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.clients))
	for n := range r.clients {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// NewRegistryFromConfig builds a Registry holding the configured provider,
// aliased under its model name and set as the fallback.
func NewRegistryFromConfig(cfg config.ProviderConfig, log *logging.Logger) (*Registry, error) {
	reg := NewRegistry(log)

	apiCfg := APIClientConfig{
		APIKey:   cfg.APIKey,
		Model:    cfg.Model,
		Endpoint: cfg.Endpoint,
		Timeout:  time.Duration(cfg.TimeoutSeconds) * time.Second,
	}

	var client Client
	switch cfg.Name {
	case "gemini":
		if cfg.APIKey == "" {
			return nil, &config.ConfigError{Message: "gemini provider requires an API key"}
		}
		client = NewGeminiAPIClient(apiCfg)
	case "ollama":
		if len(cfg.Tools) > 0 {
			reg.log.Warn().Strs("tools", cfg.Tools).Msg("ollama has no provider-side tools; ignoring")
		}
		client = NewOllamaAPIClient(apiCfg)
	default:
		return nil, &config.ConfigError{Message: fmt.Sprintf("unknown provider %q", cfg.Name)}
	}

	reg.Register(cfg.Name, client)
	reg.Alias(cfg.Model, cfg.Name)
	reg.SetFallback(cfg.Name)
	return reg, nil
}
