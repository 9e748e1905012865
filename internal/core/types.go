// Package core provides the shared types, interfaces and error taxonomy for
// the translation/vision gateway. Every other package speaks these types;
// provider adapters translate them to and from their own wire formats.
package core

import (
	"encoding/json"
	"time"
)

// Provider identifies one external translation/chat/vision backend.
// The set is closed for the lifetime of the process.
type Provider string

const (
	ProviderOpenAI Provider = "openai"
	ProviderGoogle Provider = "google"
	ProviderDeepL  Provider = "deepl"
)

// AllProviders lists every known provider in registry initialization order.
var AllProviders = []Provider{ProviderOpenAI, ProviderGoogle, ProviderDeepL}

// ParseProvider returns the Provider for a configured name, or false when the
// name is not one of the known backends.
func ParseProvider(name string) (Provider, bool) {
	switch Provider(name) {
	case ProviderOpenAI, ProviderGoogle, ProviderDeepL:
		return Provider(name), true
	}
	return "", false
}

// String returns the provider key used in configuration and cache files.
func (p Provider) String() string { return string(p) }

// IsLLM reports whether the provider is a chat/vision LLM backend, as opposed
// to a translation-only service with no temperature or token budget.
func (p Provider) IsLLM() bool { return p != ProviderDeepL }

// SupportsVision reports whether the provider accepts multimodal requests.
func (p Provider) SupportsVision() bool {
	return p == ProviderOpenAI || p == ProviderGoogle
}

// ModelSource describes where a model list came from.
type ModelSource string

const (
	SourceCache        ModelSource = "cache"
	SourceAPI          ModelSource = "api"
	SourceAPITempKey   ModelSource = "api_temp_key"
	SourceUnconfigured ModelSource = "unconfigured"
	SourceFallback     ModelSource = "fallback"
	SourceError        ModelSource = "error"
)

// ContentPart is one piece of a multimodal message. Type is "text" or
// "image_url"; exactly one of Text or ImageURL is set.
type ContentPart struct {
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	ImageURL string `json:"image_url,omitempty"`
}

// Message is a single conversation message in the gateway's normalized shape.
// Parts takes precedence over Content when non-empty (vision requests).
type Message struct {
	Role    string        `json:"role"`
	Content string        `json:"content,omitempty"`
	Parts   []ContentPart `json:"parts,omitempty"`
}

// HasImage reports whether the message carries at least one image part.
func (m Message) HasImage() bool {
	for _, p := range m.Parts {
		if p.Type == "image_url" && p.ImageURL != "" {
			return true
		}
	}
	return false
}

// ResolvedParams is the ephemeral, per-call request record produced by the
// request builder. It is computed fresh for every call and never reused:
// model, provider and configuration may all change between calls.
type ResolvedParams struct {
	Model    string
	Messages []Message

	// Temperature is nil when the parameter must be omitted from the wire
	// request (reasoning models, or the retry after an unsupported-value
	// rejection). DeepL requests never carry it.
	Temperature *float64

	// MaxCompletionTokens is the dynamic output-token budget. Zero means
	// the field is omitted (translation-only providers).
	MaxCompletionTokens int

	// Extra carries provider-specific fields such as target_lang and
	// source_lang for DeepL or reasoning_effort for gpt-5 models.
	Extra map[string]any
}

// Clone returns a shallow copy with its own Extra map, so a retry can mutate
// parameters without racing the original.
func (p *ResolvedParams) Clone() *ResolvedParams {
	out := *p
	if p.Temperature != nil {
		t := *p.Temperature
		out.Temperature = &t
	}
	if p.Extra != nil {
		out.Extra = make(map[string]any, len(p.Extra))
		for k, v := range p.Extra {
			out.Extra[k] = v
		}
	}
	return &out
}

// Usage holds normalized token counts from a provider response.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Choice is one chat-completion choice in the normalized response.
type Choice struct {
	Message struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"message"`
	FinishReason string `json:"finish_reason,omitempty"`
}

// Translation is one translation-style result (DeepL shape).
type Translation struct {
	Text                   string `json:"text"`
	DetectedSourceLanguage string `json:"detected_source_language,omitempty"`
}

// Response is the normalized provider response. Chat-completion providers
// populate Choices; translation providers populate Translations. Raw keeps
// the unparsed body so callers can fall back to path-based extraction when a
// provider returns a shape the adapter did not anticipate.
type Response struct {
	ID           string          `json:"id,omitempty"`
	Provider     Provider        `json:"provider,omitempty"`
	Model        string          `json:"model,omitempty"`
	Choices      []Choice        `json:"choices,omitempty"`
	Translations []Translation   `json:"translations,omitempty"`
	Usage        Usage           `json:"usage"`
	Raw          json.RawMessage `json:"-"`
}

// NewTextResponse builds a minimal choices-shaped response. Adapters for
// providers without a native chat shape use it to normalize their output.
func NewTextResponse(provider Provider, model, text string, usage Usage) *Response {
	resp := &Response{Provider: provider, Model: model, Usage: usage}
	var c Choice
	c.Message.Role = "assistant"
	c.Message.Content = text
	resp.Choices = []Choice{c}
	return resp
}

// ProviderUsage accumulates per-provider request statistics for the life of
// a manager instance. Mutated only by the manager under its own lock.
type ProviderUsage struct {
	RequestsCount      int        `json:"requests_count"`
	SuccessfulRequests int        `json:"successful_requests"`
	FailedRequests     int        `json:"failed_requests"`
	TokensUsed         int        `json:"tokens_used"`
	RateLimitHits      int        `json:"rate_limit_hits"`
	LastRequestTime    *time.Time `json:"last_request_time,omitempty"`
	LastError          string     `json:"last_error,omitempty"`
}

// SuccessRate returns the percentage of successful requests, or 0 when no
// request has completed yet.
func (u ProviderUsage) SuccessRate() float64 {
	if u.RequestsCount == 0 {
		return 0
	}
	return float64(u.SuccessfulRequests) / float64(u.RequestsCount) * 100
}
