// Package models resolves the model list for each provider: cache first,
// live API second, static fallbacks when everything else fails. It also owns
// the filtering and ranking rules that turn a raw provider catalog into the
// ordered list presented to callers.
package models

import (
	"context"
	"log/slog"
	"sort"
	"strings"

	"lingogate/config"
	"lingogate/internal/core"
	"lingogate/internal/modelcache"
	"lingogate/internal/providers"
	"lingogate/internal/providers/deepl"
)

// defaultGPTModels is the preferred OpenAI model order when the operator has
// not configured one.
var defaultGPTModels = []string{"gpt-5-mini", "gpt-5-nano"}

// fallbackModels are the static per-provider lists served when neither the
// cache nor the live API can produce anything.
var fallbackModels = map[core.Provider][]string{
	core.ProviderOpenAI: {"gpt-5-mini", "gpt-5-nano", "gpt-4o-mini"},
	core.ProviderGoogle: {"gemini-2.5-flash", "gemini-2.5-flash-lite", "gemini-2.5-pro"},
	core.ProviderDeepL:  {deepl.ModelID},
}

// ListOptions modify a model-list request.
type ListOptions struct {
	// TempAPIKey routes the fetch through an ad-hoc adapter and bypasses
	// the cache entirely, in both directions. Used by settings dialogs to
	// preview a key before saving it.
	TempAPIKey string

	// ForceRefresh skips the cache read; a successful fetch still updates it.
	ForceRefresh bool
}

// Manager resolves, filters and ranks model lists.
type Manager struct {
	registry *providers.Registry
	cache    *modelcache.Cache
	settings *config.Service

	// newAdapter builds the ad-hoc adapter for temporary-key lookups.
	// Tests replace it; production code uses the registry factory.
	newAdapter func(core.Provider, string) (core.Adapter, error)
}

// NewManager wires the model resolver to its registry, cache and settings.
func NewManager(registry *providers.Registry, cache *modelcache.Cache, settings *config.Service) *Manager {
	return &Manager{
		registry:   registry,
		cache:      cache,
		settings:   settings,
		newAdapter: registry.NewAdapter,
	}
}

// GetAvailableModels resolves the model list for a provider and reports
// where it came from. Resolution order: temporary key (cache bypassed),
// unconfigured short-circuit, cache, live API with cache write-through. A
// failed live fetch invalidates the provider's cache entry and reports an
// empty error result; callers that need a usable list regardless fall back
// to GetFallbackModels explicitly.
func (m *Manager) GetAvailableModels(ctx context.Context, provider core.Provider, opts ListOptions) ([]string, core.ModelSource, error) {
	if opts.TempAPIKey != "" {
		adapter, err := m.newAdapter(provider, opts.TempAPIKey)
		if err != nil {
			return nil, core.SourceError, err
		}
		models, err := adapter.ListModels(ctx)
		if err != nil {
			slog.Warn("model fetch with temporary key failed", "provider", provider, "error", err)
			return nil, core.SourceError, err
		}
		return m.ApplyFilters(provider, models), core.SourceAPITempKey, nil
	}

	adapter, ok := m.registry.GetClient(provider)
	if !ok {
		return nil, core.SourceUnconfigured, nil
	}

	if !opts.ForceRefresh {
		if cached, _, ok := m.cache.Get(provider.String()); ok {
			return m.ApplyFilters(provider, cached), core.SourceCache, nil
		}
	}

	models, err := adapter.ListModels(ctx)
	if err != nil {
		slog.Warn("live model fetch failed", "provider", provider, "error", err)
		// Drop any stale cached entry so the failure is not papered over
		// on the next lookup.
		if cerr := m.cache.ClearProvider(ctx, provider.String()); cerr != nil {
			slog.Warn("failed to invalidate model cache", "provider", provider, "error", cerr)
		}
		return nil, core.SourceError, err
	}

	if err := m.cache.CacheModelsAndPersist(ctx, provider.String(), models); err != nil {
		// A cache write failure never fails the request.
		slog.Warn("failed to cache model list", "provider", provider, "error", err)
	}
	return m.ApplyFilters(provider, models), core.SourceAPI, nil
}

// InvalidateProvider drops the cached model list for one provider, forcing
// the next lookup to hit the API.
func (m *Manager) InvalidateProvider(ctx context.Context, provider core.Provider) error {
	return m.cache.ClearProvider(ctx, provider.String())
}

// ApplyFilters removes excluded models, deduplicates, and ranks the rest.
func (m *Manager) ApplyFilters(provider core.Provider, models []string) []string {
	excludes := m.excludesFor(provider)

	seen := make(map[string]struct{}, len(models))
	kept := make([]string, 0, len(models))
	for _, model := range models {
		model = strings.TrimSpace(model)
		if model == "" {
			continue
		}
		if _, dup := seen[model]; dup {
			continue
		}
		if matchesAny(model, excludes) {
			continue
		}
		seen[model] = struct{}{}
		kept = append(kept, model)
	}

	m.rank(provider, kept)
	return kept
}

func (m *Manager) excludesFor(provider core.Provider) []string {
	switch provider {
	case core.ProviderOpenAI:
		return m.settings.OpenAIModelExcludes()
	case core.ProviderGoogle:
		return m.settings.GoogleModelExcludes()
	}
	return nil
}

func matchesAny(model string, fragments []string) bool {
	lower := strings.ToLower(model)
	for _, f := range fragments {
		if f != "" && strings.Contains(lower, strings.ToLower(f)) {
			return true
		}
	}
	return false
}

// rank orders models in place: operator-configured default_models first, in
// their configured order, then the per-provider heuristic tiers,
// alphabetical within each tier. Built-in defaults do not pre-empt the
// heuristics; only an explicit operator list does.
func (m *Manager) rank(provider core.Provider, models []string) {
	configured := m.settings.GetStringSlice(config.KeyDefaultModels)
	preferred := make(map[string]int, len(configured))
	for i, model := range configured {
		preferred[model] = i
	}

	tier := heuristicTier(provider)
	sort.SliceStable(models, func(i, j int) bool {
		pi, iPreferred := preferred[models[i]]
		pj, jPreferred := preferred[models[j]]
		switch {
		case iPreferred && jPreferred:
			return pi < pj
		case iPreferred != jPreferred:
			return iPreferred
		}
		ti, tj := tier(models[i]), tier(models[j])
		if ti != tj {
			return ti < tj
		}
		return models[i] < models[j]
	})
}

// heuristicTier returns the tier function for a provider. Lower is better.
func heuristicTier(provider core.Provider) func(string) int {
	switch provider {
	case core.ProviderOpenAI:
		return openAITier
	case core.ProviderGoogle:
		return googleTier
	}
	return func(string) int { return 0 }
}

// openAITier prefers the gpt-5 family (nano, then mini, then the rest),
// then other current models, then the gpt-4 family, with date-pinned
// "-latest" aliases last.
func openAITier(model string) int {
	m := strings.ToLower(model)
	switch {
	case strings.Contains(m, "-latest"):
		return 5
	case strings.HasPrefix(m, "gpt-5-nano"):
		return 0
	case strings.HasPrefix(m, "gpt-5-mini"):
		return 1
	case strings.HasPrefix(m, "gpt-5"):
		return 2
	case strings.HasPrefix(m, "gpt-4"):
		return 4
	}
	return 3
}

// googleTier prefers flash variants, then pro, then everything else, with
// "-latest" aliases last.
func googleTier(model string) int {
	m := strings.ToLower(model)
	switch {
	case strings.Contains(m, "-latest"):
		return 3
	case strings.Contains(m, "flash"):
		return 0
	case strings.Contains(m, "pro"):
		return 1
	}
	return 2
}

// GetDefaultModels returns the preferred model order for a provider: the
// operator's default_models setting when present, otherwise the built-in
// per-provider defaults.
func (m *Manager) GetDefaultModels(provider core.Provider) []string {
	if configured := m.settings.GetStringSlice(config.KeyDefaultModels); len(configured) > 0 {
		return configured
	}
	switch provider {
	case core.ProviderOpenAI:
		return append([]string(nil), defaultGPTModels...)
	case core.ProviderGoogle:
		return []string{m.settings.GetString(config.KeyGoogleModel, "gemini-2.5-flash")}
	case core.ProviderDeepL:
		return []string{deepl.ModelID}
	}
	return nil
}

// GetFallbackModels returns the static list for a provider and persists it,
// so the next lookup is a cache hit instead of a repeat of a failing fetch.
// The result is a copy; callers may reorder it.
func (m *Manager) GetFallbackModels(ctx context.Context, provider core.Provider) []string {
	models := append([]string(nil), fallbackModels[provider]...)
	if err := m.cache.CacheModelsAndPersist(ctx, provider.String(), models); err != nil {
		slog.Warn("failed to persist fallback model list", "provider", provider, "error", err)
	}
	return models
}
