// Package manager is the gateway façade. It owns the initialization state
// machine, resolves the provider and model for every call, executes requests
// with one bounded retry, and keeps per-provider usage statistics.
package manager

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/tidwall/gjson"

	"lingogate/config"
	"lingogate/internal/core"
	"lingogate/internal/modelcache"
	"lingogate/internal/models"
	"lingogate/internal/observability"
	"lingogate/internal/providers"
	"lingogate/internal/request"
	"lingogate/internal/translationcache"
	"lingogate/internal/usage"
)

// State is the manager lifecycle phase.
type State int32

const (
	StateUninitialized State = iota
	StateInitialized
	StateShutDown
)

func (s State) String() string {
	switch s {
	case StateInitialized:
		return "initialized"
	case StateShutDown:
		return "shut_down"
	}
	return "uninitialized"
}

// Rate-limit pressure window: a provider with more than rateLimitThreshold
// hits inside rateLimitWindow is reported as rate limited.
const (
	rateLimitWindow    = 5 * time.Minute
	rateLimitThreshold = 5
)

// retryBaseDelay is the pause before the single retry when the provider gave
// no Retry-After hint; retryMaxDelay caps the hint.
const (
	retryBaseDelay = 1 * time.Second
	retryMaxDelay  = 10 * time.Second
)

// Options wires the manager's collaborators. Settings is required; every
// other field has a working default.
type Options struct {
	Settings *config.Service

	// Registry overrides the default credential-driven registry. Tests
	// inject one pre-loaded with fakes.
	Registry *providers.Registry

	// CacheBackend overrides the model-cache backend, which defaults to a
	// JSON file in the configuration directory.
	CacheBackend modelcache.Backend

	// Usage receives per-attempt accounting entries. Defaults to a noop.
	Usage usage.Recorder

	// Metrics receives Prometheus observations. Nil records nothing.
	Metrics *observability.Metrics
}

// TranslationRequest is one translation call.
type TranslationRequest struct {
	Text       string
	SourceLang string
	TargetLang string

	// Provider and Model are optional; configuration supplies defaults.
	Provider string
	Model    string

	Temperature  *float64
	SystemPrompt string

	// NoCache bypasses the translation memo in both directions.
	NoCache bool
}

// VisionRequest is one image-description call.
type VisionRequest struct {
	ImageURL string // https:// or data: URL
	Prompt   string

	Provider string
	Model    string

	Temperature *float64
}

// Result is a completed translation or vision call.
type Result struct {
	Text     string
	Provider core.Provider
	Model    string
	Usage    core.Usage
	Cached   bool
}

// APIManager coordinates registry, model resolution, parameter building and
// request execution behind one concurrency-safe façade.
type APIManager struct {
	settings *config.Service
	registry *providers.Registry
	models   *models.Manager
	cache    *modelcache.Cache
	builder  *request.Builder
	memo     *translationcache.Cache
	usageLog usage.Recorder
	metrics  *observability.Metrics

	mu            sync.RWMutex
	state         State
	usageStats    map[core.Provider]*core.ProviderUsage
	rateLimitHits map[core.Provider][]time.Time

	now   func() time.Time
	sleep func(context.Context, time.Duration)
}

// New builds an uninitialized manager. Call Initialize before use.
func New(opts Options) (*APIManager, error) {
	if opts.Settings == nil {
		return nil, fmt.Errorf("settings are required")
	}

	registry := opts.Registry
	if registry == nil {
		registry = providers.NewRegistry(opts.Settings)
	}

	backend := opts.CacheBackend
	if backend == nil {
		backend = modelcache.NewFileBackend(opts.Settings.ConfigDir())
	}
	ttl := time.Duration(opts.Settings.GetInt(config.KeyModelCacheTTL, 1209600)) * time.Second
	cache := modelcache.New(backend, modelcache.WithTTL(ttl))

	memo, err := translationcache.New(opts.Settings.GetInt(config.KeyMaxCacheSize, translationcache.DefaultSize))
	if err != nil {
		return nil, fmt.Errorf("failed to build translation cache: %w", err)
	}

	usageLog := opts.Usage
	if usageLog == nil {
		usageLog = usage.NoopRecorder{}
	}

	return &APIManager{
		settings:      opts.Settings,
		registry:      registry,
		models:        models.NewManager(registry, cache, opts.Settings),
		cache:         cache,
		builder:       request.NewBuilder(opts.Settings),
		memo:          memo,
		usageLog:      usageLog,
		metrics:       opts.Metrics,
		usageStats:    make(map[core.Provider]*core.ProviderUsage),
		rateLimitHits: make(map[core.Provider][]time.Time),
		now:           time.Now,
		sleep:         sleepCtx,
	}, nil
}

func sleepCtx(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

// State returns the current lifecycle phase.
func (m *APIManager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Initialize builds provider adapters from configured credentials and loads
// the model cache. Initializing succeeds even when no provider has a usable
// key; individual requests then fail with a classified error.
func (m *APIManager) Initialize(ctx context.Context) error {
	m.mu.Lock()
	if m.state == StateInitialized {
		m.mu.Unlock()
		return nil
	}
	m.mu.Unlock()

	m.registry.InitializeAll()
	m.cache.InitializeSafely(ctx)

	if !m.registry.HasAnyClients() {
		slog.Warn("no provider credentials configured, requests will fail")
	}

	m.mu.Lock()
	m.state = StateInitialized
	m.mu.Unlock()

	slog.Info("api manager initialized", "providers", m.registry.All())
	return nil
}

// Shutdown releases adapters, persists the model cache and closes the usage
// log. The manager refuses requests afterwards.
func (m *APIManager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	if m.state == StateShutDown {
		m.mu.Unlock()
		return nil
	}
	m.state = StateShutDown
	m.mu.Unlock()

	if err := m.cache.SaveToDisk(ctx); err != nil {
		slog.Warn("failed to persist model cache on shutdown", "error", err)
	}
	m.registry.Clear()
	if err := m.usageLog.Close(); err != nil {
		slog.Warn("failed to close usage log", "error", err)
	}
	slog.Info("api manager shut down")
	return nil
}

// Reinitialize rebuilds adapters from the current settings. Used after the
// operator changes credentials or the DeepL plan.
func (m *APIManager) Reinitialize(ctx context.Context) error {
	if err := m.settings.Reload(); err != nil {
		return err
	}
	m.registry.Clear()
	m.memo.Clear()

	m.mu.Lock()
	m.state = StateUninitialized
	m.mu.Unlock()

	return m.Initialize(ctx)
}

// requireInit gates every request-path method.
func (m *APIManager) requireInit() error {
	if m.State() != StateInitialized {
		return core.ErrNotInitialized
	}
	return nil
}

// Models resolves the model list for a provider.
func (m *APIManager) Models(ctx context.Context, provider core.Provider, opts models.ListOptions) ([]string, core.ModelSource, error) {
	if err := m.requireInit(); err != nil {
		return nil, core.SourceError, err
	}
	return m.models.GetAvailableModels(ctx, provider, opts)
}

// FallbackModels returns and persists the static model list for a provider.
// Callers use it when Models reports an error result and they still need a
// usable list to present.
func (m *APIManager) FallbackModels(ctx context.Context, provider core.Provider) []string {
	return m.models.GetFallbackModels(ctx, provider)
}

// AvailableProviders lists the providers with initialized adapters.
func (m *APIManager) AvailableProviders() []core.Provider {
	return m.registry.All()
}

// MakeTranslationRequest translates text through the resolved provider,
// consulting the memo cache first and retrying once on transient failures.
func (m *APIManager) MakeTranslationRequest(ctx context.Context, req TranslationRequest) (*Result, error) {
	if err := m.requireInit(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.Text) == "" {
		return nil, core.NewAPIError(core.ErrorInvalidRequest, "", 0, "text is required", nil)
	}
	if strings.TrimSpace(req.TargetLang) == "" {
		return nil, core.NewAPIError(core.ErrorInvalidRequest, "", 0, "target language is required", nil)
	}

	provider, err := m.resolveProvider(req.Provider, false)
	if err != nil {
		return nil, err
	}
	model := m.resolveModel(provider, req.Model)

	useMemo := !req.NoCache && m.settings.GetBool(config.KeyCacheEnabled, true)
	if useMemo {
		if text, ok := m.memo.Get(req.Text, req.SourceLang, req.TargetLang, model); ok {
			m.metrics.ObserveCache("translation", true)
			return &Result{Text: text, Provider: provider, Model: model, Cached: true}, nil
		}
		m.metrics.ObserveCache("translation", false)
	}

	var params *core.ResolvedParams
	if provider == core.ProviderDeepL {
		params = m.builder.BuildDeepLParams(req.Text, req.SourceLang, req.TargetLang)
	} else {
		messages := translationMessages(req)
		params = m.builder.BuildLLMParams(model, messages, request.TaskTranslation, req.Temperature)
	}

	resp, err := m.execute(ctx, provider, model, string(request.TaskTranslation), params)
	if err != nil {
		return nil, err
	}

	text, err := ExtractTextFromResponse(resp)
	if err != nil {
		return nil, err
	}
	if useMemo {
		m.memo.Put(req.Text, req.SourceLang, req.TargetLang, model, text)
	}
	return &Result{Text: text, Provider: provider, Model: resp.Model, Usage: resp.Usage}, nil
}

// MakeVisionRequest describes or extracts text from an image through a
// vision-capable provider.
func (m *APIManager) MakeVisionRequest(ctx context.Context, req VisionRequest) (*Result, error) {
	if err := m.requireInit(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.ImageURL) == "" {
		return nil, core.NewAPIError(core.ErrorInvalidRequest, "", 0, "image is required", nil)
	}

	provider, err := m.resolveProvider(req.Provider, true)
	if err != nil {
		return nil, err
	}
	model := m.resolveModel(provider, req.Model)

	prompt := req.Prompt
	if prompt == "" {
		prompt = "Extract all readable text from this image. Output only the text."
	}
	messages := []core.Message{{
		Role: "user",
		Parts: []core.ContentPart{
			{Type: "text", Text: prompt},
			{Type: "image_url", ImageURL: req.ImageURL},
		},
	}}
	params := m.builder.BuildLLMParams(model, messages, request.TaskVision, req.Temperature)

	resp, err := m.execute(ctx, provider, model, string(request.TaskVision), params)
	if err != nil {
		return nil, err
	}
	text, err := ExtractTextFromResponse(resp)
	if err != nil {
		return nil, err
	}
	return &Result{Text: text, Provider: provider, Model: resp.Model, Usage: resp.Usage}, nil
}

// translationMessages builds the chat conversation for an LLM translation.
func translationMessages(req TranslationRequest) []core.Message {
	system := req.SystemPrompt
	if system == "" {
		source := req.SourceLang
		if source == "" || strings.EqualFold(source, "auto") {
			source = "the detected language"
		}
		system = fmt.Sprintf(
			"You are a translation engine. Translate the user's text from %s to %s. Respond with the translation only, no explanations.",
			source, req.TargetLang)
	}
	return []core.Message{
		{Role: "system", Content: system},
		{Role: "user", Content: req.Text},
	}
}

// resolveProvider picks the provider for a call: the explicit request wins,
// then the configured preference; an unavailable choice is substituted with
// the first available (vision-capable, when required) provider.
func (m *APIManager) resolveProvider(requested string, needVision bool) (core.Provider, error) {
	name := strings.TrimSpace(requested)
	explicit := name != ""
	if !explicit {
		name = m.settings.GetString(config.KeyAPIProvider, "openai")
	}

	preferred, ok := core.ParseProvider(name)
	if !ok {
		if explicit {
			return "", core.NewAPIError(core.ErrorInvalidRequest, "", 0,
				fmt.Sprintf("unknown provider %q", name), nil)
		}
		slog.Warn("configured provider is unknown, using openai", "provider", name)
		preferred = core.ProviderOpenAI
	}

	usable := func(p core.Provider) bool {
		if needVision && !p.SupportsVision() {
			return false
		}
		return m.registry.IsProviderAvailable(p)
	}

	if usable(preferred) {
		return preferred, nil
	}
	for _, p := range m.registry.All() {
		if usable(p) {
			slog.Info("preferred provider unavailable, substituting",
				"preferred", preferred, "substitute", p)
			return p, nil
		}
	}

	return "", core.NewAPIError(core.ErrorAuthentication, preferred, 0,
		"no usable provider is configured", nil)
}

// resolveModel picks the model for a call. A requested model from another
// provider's family is replaced with the provider default rather than sent
// to an API that would reject it.
func (m *APIManager) resolveModel(provider core.Provider, requested string) string {
	requested = strings.TrimSpace(requested)
	if requested != "" {
		if modelBelongsTo(provider, requested) {
			return requested
		}
		slog.Info("requested model belongs to another provider, using default",
			"provider", provider, "model", requested)
	}
	return m.defaultModelFor(provider)
}

func (m *APIManager) defaultModelFor(provider core.Provider) string {
	switch provider {
	case core.ProviderOpenAI:
		if configured := m.settings.GetString(config.KeyOpenAIModel, ""); configured != "" {
			return configured
		}
	case core.ProviderGoogle:
		if configured := m.settings.GetString(config.KeyGoogleModel, ""); configured != "" {
			return configured
		}
	}
	if defaults := m.models.GetDefaultModels(provider); len(defaults) > 0 {
		return defaults[0]
	}
	return ""
}

// modelBelongsTo reports whether a model name plausibly belongs to the
// provider's family.
func modelBelongsTo(provider core.Provider, model string) bool {
	lower := strings.ToLower(model)
	switch provider {
	case core.ProviderOpenAI:
		return strings.HasPrefix(lower, "gpt-") || strings.HasPrefix(lower, "chatgpt-") ||
			strings.HasPrefix(lower, "o1") || strings.HasPrefix(lower, "o3") || strings.HasPrefix(lower, "o4")
	case core.ProviderGoogle:
		return strings.HasPrefix(lower, "gemini-")
	case core.ProviderDeepL:
		return strings.HasPrefix(lower, "deepl")
	}
	return false
}

// execute performs one provider call with at most one retry: transient
// failures retry after a bounded delay, and an unsupported-temperature
// rejection retries immediately with the parameter removed. Every attempt is
// recorded in the usage statistics.
func (m *APIManager) execute(ctx context.Context, provider core.Provider, model, task string, params *core.ResolvedParams) (*core.Response, error) {
	adapter, ok := m.registry.GetClient(provider)
	if !ok {
		return nil, core.NewAPIError(core.ErrorAuthentication, provider, 0,
			"provider is not configured", nil)
	}

	resp, err := m.attempt(ctx, adapter, provider, model, task, params)
	if err == nil {
		return resp, nil
	}

	apiErr := core.Classify(err)
	switch {
	case core.IsUnsupportedTemperature(apiErr):
		retryParams := params.Clone()
		retryParams.Temperature = nil
		slog.Info("temperature rejected, retrying without it", "provider", provider, "model", model)
		resp, err = m.attempt(ctx, adapter, provider, model, task, retryParams)

	case apiErr.Retryable():
		delay := retryBaseDelay
		if apiErr.RetryAfter > 0 {
			delay = min(apiErr.RetryAfter, retryMaxDelay)
		}
		slog.Info("transient failure, retrying once",
			"provider", provider, "error_type", apiErr.Type, "delay", delay)
		m.sleep(ctx, delay)
		if ctx.Err() != nil {
			return nil, core.Classify(ctx.Err())
		}
		resp, err = m.attempt(ctx, adapter, provider, model, task, params)

	default:
		return nil, apiErr
	}

	if err != nil {
		return nil, core.Classify(err)
	}
	return resp, nil
}

// attempt is one wire call plus its accounting.
func (m *APIManager) attempt(ctx context.Context, adapter core.Adapter, provider core.Provider, model, task string, params *core.ResolvedParams) (*core.Response, error) {
	start := m.now()
	resp, err := adapter.CreateCompletion(ctx, params)
	elapsed := m.now().Sub(start)

	m.recordAttempt(provider, model, task, resp, err, elapsed)
	return resp, err
}

func (m *APIManager) recordAttempt(provider core.Provider, model, task string, resp *core.Response, err error, elapsed time.Duration) {
	entry := usage.NewEntry(provider, model, task)
	entry.LatencyMS = elapsed.Milliseconds()

	outcome := "success"

	m.mu.Lock()
	stats := m.usageStats[provider]
	if stats == nil {
		stats = &core.ProviderUsage{}
		m.usageStats[provider] = stats
	}
	stats.RequestsCount++
	now := m.now()
	stats.LastRequestTime = &now

	if err != nil {
		apiErr := core.Classify(err)
		stats.FailedRequests++
		stats.LastError = apiErr.Error()
		if apiErr.Type == core.ErrorRateLimit {
			stats.RateLimitHits++
			m.rateLimitHits[provider] = append(m.rateLimitHits[provider], now)
		}
		entry.ErrorType = string(apiErr.Type)
		outcome = string(apiErr.Type)
	} else {
		stats.SuccessfulRequests++
		stats.TokensUsed += resp.Usage.TotalTokens
		entry.Success = true
		entry.InputTokens = resp.Usage.PromptTokens
		entry.OutputTokens = resp.Usage.CompletionTokens
		entry.TotalTokens = resp.Usage.TotalTokens
	}
	m.mu.Unlock()

	m.usageLog.Write(entry)
	m.metrics.ObserveRequest(provider, task, outcome, elapsed)
	if err == nil {
		m.metrics.ObserveTokens(provider, resp.Usage)
	}
}

// IsRateLimited reports whether a provider accumulated enough recent
// rate-limit hits to be considered saturated.
func (m *APIManager) IsRateLimited(provider core.Provider) bool {
	cutoff := m.now().Add(-rateLimitWindow)

	m.mu.Lock()
	defer m.mu.Unlock()
	hits := m.rateLimitHits[provider]
	recent := hits[:0]
	for _, hit := range hits {
		if hit.After(cutoff) {
			recent = append(recent, hit)
		}
	}
	m.rateLimitHits[provider] = recent
	return len(recent) > rateLimitThreshold
}

// GetUsageStats returns a copy of the per-provider statistics.
func (m *APIManager) GetUsageStats() map[core.Provider]core.ProviderUsage {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[core.Provider]core.ProviderUsage, len(m.usageStats))
	for provider, stats := range m.usageStats {
		out[provider] = *stats
	}
	return out
}

// TranslationCacheStats reports memo cache hit counters.
func (m *APIManager) TranslationCacheStats() (hits, misses int64) {
	return m.memo.Stats()
}

// extractionPaths are tried in order against the raw response body when the
// typed fields are empty.
var extractionPaths = []string{
	"choices.0.message.content",
	"translations.0.text",
	"candidates.0.content.parts.0.text",
}

// ExtractTextFromResponse pulls the result text out of a normalized
// response: chat choices first, then translations, then path-based lookup in
// the raw body for shapes the adapters did not anticipate.
func ExtractTextFromResponse(resp *core.Response) (string, error) {
	if resp == nil {
		return "", core.NewAPIError(core.ErrorUnknown, "", 0, "empty response", nil)
	}
	if len(resp.Choices) > 0 {
		if text := strings.TrimSpace(resp.Choices[0].Message.Content); text != "" {
			return text, nil
		}
	}
	if len(resp.Translations) > 0 {
		if text := strings.TrimSpace(resp.Translations[0].Text); text != "" {
			return text, nil
		}
	}
	if len(resp.Raw) > 0 {
		for _, path := range extractionPaths {
			if value := gjson.GetBytes(resp.Raw, path); value.Exists() {
				if text := strings.TrimSpace(value.String()); text != "" {
					return text, nil
				}
			}
		}
	}
	return "", core.NewAPIError(core.ErrorUnknown, resp.Provider, 0,
		"response contained no text", nil)
}
