// Package providers manages the set of configured provider adapters. The
// registry validates credentials locally at initialization, constructs one
// adapter per usable provider, and hands them out to the gateway manager.
package providers

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"lingogate/config"
	"lingogate/internal/core"
	"lingogate/internal/providers/deepl"
	"lingogate/internal/providers/google"
	"lingogate/internal/providers/openai"
)

// settingKeyForProvider maps a provider to its credential setting key.
var settingKeyForProvider = map[core.Provider]string{
	core.ProviderOpenAI: config.KeyOpenAIAPIKey,
	core.ProviderGoogle: config.KeyGoogleAPIKey,
	core.ProviderDeepL:  config.KeyDeepLAPIKey,
}

// Registry holds the initialized adapters. Safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	clients  map[core.Provider]core.Adapter
	settings *config.Service
}

// NewRegistry creates an empty registry bound to a settings source.
func NewRegistry(settings *config.Service) *Registry {
	return &Registry{
		clients:  make(map[core.Provider]core.Adapter),
		settings: settings,
	}
}

// NewAdapter constructs an adapter for the given provider and key without
// registering it. The models manager uses this for temporary-key lookups
// that must bypass the registry and its cache.
func (r *Registry) NewAdapter(provider core.Provider, apiKey string) (core.Adapter, error) {
	timeout := time.Duration(r.settings.GetInt(config.KeyAPITimeout, 30)) * time.Second
	switch provider {
	case core.ProviderOpenAI:
		return openai.New(apiKey, timeout), nil
	case core.ProviderGoogle:
		return google.New(apiKey, timeout), nil
	case core.ProviderDeepL:
		plan := r.settings.GetString(config.KeyDeepLPlan, "free")
		return deepl.New(apiKey, plan, timeout), nil
	default:
		return nil, fmt.Errorf("unknown provider %q", provider)
	}
}

// InitializeAll builds adapters for every provider with a usable credential.
// Providers without a key are skipped silently; providers with a malformed
// key are skipped with a warning. No network calls are made here, so a
// registered adapter means "configured", not "verified".
func (r *Registry) InitializeAll() {
	clients := make(map[core.Provider]core.Adapter)

	for _, provider := range core.AllProviders {
		apiKey := r.settings.GetString(settingKeyForProvider[provider], "")
		if apiKey == "" {
			slog.Debug("provider not configured", "provider", provider)
			continue
		}
		if !config.ValidateAPIKeyFormat(apiKey, provider.String()) {
			slog.Warn("skipping provider with malformed api key", "provider", provider)
			continue
		}
		adapter, err := r.NewAdapter(provider, apiKey)
		if err != nil {
			slog.Warn("failed to construct provider adapter", "provider", provider, "error", err)
			continue
		}
		clients[provider] = adapter
		slog.Info("provider initialized", "provider", provider)
	}

	r.mu.Lock()
	r.clients = clients
	r.mu.Unlock()
}

// GetClient returns the adapter for a provider, or false when the provider
// was not initialized.
func (r *Registry) GetClient(provider core.Provider) (core.Adapter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	adapter, ok := r.clients[provider]
	return adapter, ok
}

// IsProviderAvailable reports whether the provider has an initialized adapter.
func (r *Registry) IsProviderAvailable(provider core.Provider) bool {
	_, ok := r.GetClient(provider)
	return ok
}

// HasAnyClients reports whether at least one provider initialized.
func (r *Registry) HasAnyClients() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients) > 0
}

// All returns the initialized providers in a stable order.
func (r *Registry) All() []core.Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]core.Provider, 0, len(r.clients))
	for p := range r.clients {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Register installs an adapter directly. Tests use it to inject fakes and
// httptest-backed adapters.
func (r *Registry) Register(provider core.Provider, adapter core.Adapter) {
	r.mu.Lock()
	r.clients[provider] = adapter
	r.mu.Unlock()
}

// Clear drops all adapters. Called on shutdown and before reinitialization.
func (r *Registry) Clear() {
	r.mu.Lock()
	r.clients = make(map[core.Provider]core.Adapter)
	r.mu.Unlock()
}
