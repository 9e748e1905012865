package models

import (
	"context"
	"errors"
	"testing"

	"lingogate/config"
	"lingogate/internal/core"
	"lingogate/internal/modelcache"
	"lingogate/internal/providers"
	"lingogate/internal/providers/deepl"
)

// fakeAdapter serves a canned model list and counts fetches.
type fakeAdapter struct {
	models []string
	err    error
	calls  int
}

func (f *fakeAdapter) CreateCompletion(ctx context.Context, params *core.ResolvedParams) (*core.Response, error) {
	return core.NewTextResponse(core.ProviderOpenAI, params.Model, "ok", core.Usage{}), nil
}

func (f *fakeAdapter) ListModels(ctx context.Context) ([]string, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return append([]string(nil), f.models...), nil
}

func newTestManager(t *testing.T) (*Manager, *providers.Registry, *config.Service) {
	t.Helper()
	settings, err := config.Load(t.TempDir())
	if err != nil {
		t.Fatalf("config.Load: %v", err)
	}
	registry := providers.NewRegistry(settings)
	cache := modelcache.New(modelcache.NewFileBackend(t.TempDir()))
	cache.InitializeSafely(context.Background())
	return NewManager(registry, cache, settings), registry, settings
}

func TestUnconfiguredProviderReportsEmpty(t *testing.T) {
	m, _, _ := newTestManager(t)

	models, source, err := m.GetAvailableModels(context.Background(), core.ProviderOpenAI, ListOptions{})
	if err != nil {
		t.Fatalf("GetAvailableModels: %v", err)
	}
	if source != core.SourceUnconfigured {
		t.Errorf("source = %v, want %v", source, core.SourceUnconfigured)
	}
	if len(models) != 0 {
		t.Errorf("models = %v, unconfigured provider must report an empty list", models)
	}
}

func TestAPIThenCache(t *testing.T) {
	m, registry, _ := newTestManager(t)
	adapter := &fakeAdapter{models: []string{"gpt-5-nano", "gpt-4o-mini"}}
	registry.Register(core.ProviderOpenAI, adapter)

	models, source, err := m.GetAvailableModels(context.Background(), core.ProviderOpenAI, ListOptions{})
	if err != nil {
		t.Fatalf("first call: %v", err)
	}
	if source != core.SourceAPI {
		t.Errorf("first source = %v, want %v", source, core.SourceAPI)
	}
	if len(models) != 2 {
		t.Errorf("models = %v", models)
	}

	_, source, err = m.GetAvailableModels(context.Background(), core.ProviderOpenAI, ListOptions{})
	if err != nil {
		t.Fatalf("second call: %v", err)
	}
	if source != core.SourceCache {
		t.Errorf("second source = %v, want %v", source, core.SourceCache)
	}
	if adapter.calls != 1 {
		t.Errorf("adapter calls = %d, want 1 (second call served from cache)", adapter.calls)
	}
}

func TestForceRefreshSkipsCacheRead(t *testing.T) {
	m, registry, _ := newTestManager(t)
	adapter := &fakeAdapter{models: []string{"gpt-5-nano"}}
	registry.Register(core.ProviderOpenAI, adapter)

	if _, _, err := m.GetAvailableModels(context.Background(), core.ProviderOpenAI, ListOptions{}); err != nil {
		t.Fatalf("warm-up: %v", err)
	}
	_, source, err := m.GetAvailableModels(context.Background(), core.ProviderOpenAI, ListOptions{ForceRefresh: true})
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if source != core.SourceAPI {
		t.Errorf("source = %v, want %v", source, core.SourceAPI)
	}
	if adapter.calls != 2 {
		t.Errorf("adapter calls = %d, want 2", adapter.calls)
	}
}

func TestFetchFailureInvalidatesCacheAndReportsError(t *testing.T) {
	m, registry, _ := newTestManager(t)
	adapter := &fakeAdapter{models: []string{"gemini-2.5-flash"}}
	registry.Register(core.ProviderGoogle, adapter)

	// Warm the cache, then break the adapter and force a refresh.
	if _, _, err := m.GetAvailableModels(context.Background(), core.ProviderGoogle, ListOptions{}); err != nil {
		t.Fatalf("warm-up: %v", err)
	}
	adapter.err = errors.New("connection refused")

	models, source, err := m.GetAvailableModels(context.Background(), core.ProviderGoogle, ListOptions{ForceRefresh: true})
	if err == nil {
		t.Fatal("expected error")
	}
	if source != core.SourceError {
		t.Errorf("source = %v, want %v", source, core.SourceError)
	}
	if len(models) != 0 {
		t.Errorf("models = %v, a failed fetch must not serve a list", models)
	}
	if _, _, cached := m.cache.Get(core.ProviderGoogle.String()); cached {
		t.Error("stale cache entry must not survive a failed fetch")
	}
}

func TestFallbackModelsArePersisted(t *testing.T) {
	m, _, _ := newTestManager(t)

	models := m.GetFallbackModels(context.Background(), core.ProviderOpenAI)
	if len(models) == 0 {
		t.Fatal("fallback list must be non-empty")
	}

	cached, _, ok := m.cache.Get(core.ProviderOpenAI.String())
	if !ok {
		t.Fatal("fallback list must be cached")
	}
	if len(cached) != len(models) || cached[0] != models[0] {
		t.Errorf("cached = %v, want %v", cached, models)
	}
}

func TestTempKeyBypassesCache(t *testing.T) {
	m, registry, _ := newTestManager(t)
	registered := &fakeAdapter{models: []string{"gpt-5-nano"}}
	registry.Register(core.ProviderOpenAI, registered)

	// Warm the cache through the registered adapter.
	if _, _, err := m.GetAvailableModels(context.Background(), core.ProviderOpenAI, ListOptions{}); err != nil {
		t.Fatalf("warm-up: %v", err)
	}

	temp := &fakeAdapter{models: []string{"gpt-5-mini", "gpt-5"}}
	m.newAdapter = func(p core.Provider, key string) (core.Adapter, error) {
		if key != "sk-candidate-key-12345678901234" {
			t.Errorf("temp key = %q", key)
		}
		return temp, nil
	}

	models, source, err := m.GetAvailableModels(context.Background(), core.ProviderOpenAI,
		ListOptions{TempAPIKey: "sk-candidate-key-12345678901234"})
	if err != nil {
		t.Fatalf("temp-key call: %v", err)
	}
	if source != core.SourceAPITempKey {
		t.Errorf("source = %v, want %v", source, core.SourceAPITempKey)
	}
	if temp.calls != 1 {
		t.Errorf("temp adapter calls = %d, want 1", temp.calls)
	}
	if len(models) != 2 {
		t.Errorf("models = %v", models)
	}

	// The cached list must still be the registered adapter's.
	cached, source, err := m.GetAvailableModels(context.Background(), core.ProviderOpenAI, ListOptions{})
	if err != nil {
		t.Fatalf("cache read: %v", err)
	}
	if source != core.SourceCache {
		t.Errorf("source = %v, want %v", source, core.SourceCache)
	}
	if len(cached) != 1 || cached[0] != "gpt-5-nano" {
		t.Errorf("cached = %v, temp-key fetch must not overwrite the cache", cached)
	}
}

func TestTempKeyFetchFailure(t *testing.T) {
	m, _, _ := newTestManager(t)
	m.newAdapter = func(core.Provider, string) (core.Adapter, error) {
		return &fakeAdapter{err: errors.New("invalid api key")}, nil
	}

	_, source, err := m.GetAvailableModels(context.Background(), core.ProviderOpenAI,
		ListOptions{TempAPIKey: "sk-bad-key-1234567890123456789"})
	if err == nil {
		t.Fatal("expected error")
	}
	if source != core.SourceError {
		t.Errorf("source = %v, want %v", source, core.SourceError)
	}
}

func TestApplyFiltersExcludesAndDedupes(t *testing.T) {
	m, _, _ := newTestManager(t)

	models := m.ApplyFilters(core.ProviderOpenAI, []string{
		"gpt-4o-mini",
		"gpt-4o-audio-preview",
		"gpt-4o-mini", // duplicate
		"gpt-4o-mini-tts",
		"whisper-large",
		" ",
		"gpt-5-nano",
	})

	want := map[string]bool{"gpt-4o-mini": true, "gpt-5-nano": true}
	if len(models) != len(want) {
		t.Fatalf("models = %v", models)
	}
	for _, model := range models {
		if !want[model] {
			t.Errorf("unexpected model %q in %v", model, models)
		}
	}
}

func TestOpenAIRanking(t *testing.T) {
	m, _, settings := newTestManager(t)
	settings.SetSetting(config.KeyOpenAIExcludes, []string{"none-matches"})

	models := m.ApplyFilters(core.ProviderOpenAI, []string{
		"chatgpt-4o-latest",
		"gpt-4.1",
		"gpt-5",
		"gpt-5-mini",
		"gpt-4o",
		"gpt-5-nano",
	})

	// Heuristic tiers apply when no default_models setting is configured:
	// gpt-5 nano before mini before standard, then the rest, the gpt-4
	// family second to last, -latest aliases last.
	want := []string{"gpt-5-nano", "gpt-5-mini", "gpt-5", "gpt-4.1", "gpt-4o", "chatgpt-4o-latest"}
	for i := range want {
		if models[i] != want[i] {
			t.Fatalf("models = %v, want %v", models, want)
		}
	}
}

func TestGoogleRanking(t *testing.T) {
	m, _, settings := newTestManager(t)
	settings.SetSetting(config.KeyGoogleExcludes, []string{"none-matches"})

	models := m.ApplyFilters(core.ProviderGoogle, []string{
		"gemini-flash-latest",
		"gemini-2.5-pro",
		"gemini-2.0-nano",
		"gemini-2.5-flash",
	})

	// Flash before pro before other, with -latest aliases last.
	want := []string{"gemini-2.5-flash", "gemini-2.5-pro", "gemini-2.0-nano", "gemini-flash-latest"}
	for i := range want {
		if models[i] != want[i] {
			t.Fatalf("models = %v, want %v", models, want)
		}
	}
}

func TestConfiguredDefaultsRankFirst(t *testing.T) {
	m, _, settings := newTestManager(t)
	settings.SetSetting(config.KeyDefaultModels, []string{"gpt-4o", "gpt-4.1"})
	settings.SetSetting(config.KeyOpenAIExcludes, []string{"none-matches"})

	models := m.ApplyFilters(core.ProviderOpenAI, []string{
		"gpt-5-nano", "gpt-4.1", "gpt-4o",
	})
	want := []string{"gpt-4o", "gpt-4.1", "gpt-5-nano"}
	for i := range want {
		if models[i] != want[i] {
			t.Fatalf("models = %v, want %v", models, want)
		}
	}
}

func TestGetDefaultModels(t *testing.T) {
	m, _, settings := newTestManager(t)

	got := m.GetDefaultModels(core.ProviderOpenAI)
	if len(got) != 2 || got[0] != "gpt-5-mini" || got[1] != "gpt-5-nano" {
		t.Errorf("openai defaults = %v", got)
	}
	if got := m.GetDefaultModels(core.ProviderDeepL); len(got) != 1 || got[0] != deepl.ModelID {
		t.Errorf("deepl defaults = %v", got)
	}

	settings.SetSetting(config.KeyDefaultModels, []string{"gpt-custom"})
	if got := m.GetDefaultModels(core.ProviderOpenAI); len(got) != 1 || got[0] != "gpt-custom" {
		t.Errorf("configured defaults = %v", got)
	}
}
