// Package google adapts the gateway's normalized requests to the Gemini API.
// Chat and vision go through the OpenAI-compatible endpoint; the model list
// comes from the native endpoint, which exposes supported generation methods.
package google

import (
	"context"
	"net/http"
	"sort"
	"strings"
	"time"

	"lingogate/internal/core"
	"lingogate/internal/llmclient"
)

const defaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// Adapter implements core.Adapter for Google Gemini.
type Adapter struct {
	client *llmclient.Client
	apiKey string
}

// New creates a Gemini adapter. A zero timeout uses the client default.
func New(apiKey string, timeout time.Duration) *Adapter {
	a := &Adapter{apiKey: apiKey}
	a.client = llmclient.New(llmclient.Config{
		Provider: core.ProviderGoogle,
		BaseURL:  defaultBaseURL,
		Timeout:  timeout,
	}, a.setHeaders)
	return a
}

// NewWithHTTPClient creates an adapter around a caller-supplied http.Client.
func NewWithHTTPClient(apiKey string, httpClient *http.Client, timeout time.Duration) *Adapter {
	a := &Adapter{apiKey: apiKey}
	a.client = llmclient.NewWithHTTPClient(httpClient, llmclient.Config{
		Provider: core.ProviderGoogle,
		BaseURL:  defaultBaseURL,
		Timeout:  timeout,
	}, a.setHeaders)
	return a
}

// SetBaseURL overrides the API base URL. Tests point it at a local server.
func (a *Adapter) SetBaseURL(url string) { a.client.SetBaseURL(url) }

// setHeaders authenticates both endpoint families: the OpenAI-compatible
// surface reads the Bearer token, the native surface reads x-goog-api-key.
func (a *Adapter) setHeaders(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+a.apiKey)
	req.Header.Set("x-goog-api-key", a.apiKey)
}

type wirePart struct {
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	ImageURL *struct {
		URL string `json:"url"`
	} `json:"image_url,omitempty"`
}

type wireMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

func toWireMessages(messages []core.Message) []wireMessage {
	out := make([]wireMessage, 0, len(messages))
	for _, m := range messages {
		if len(m.Parts) == 0 {
			out = append(out, wireMessage{Role: m.Role, Content: m.Content})
			continue
		}
		parts := make([]wirePart, 0, len(m.Parts))
		for _, p := range m.Parts {
			switch p.Type {
			case "image_url":
				wp := wirePart{Type: "image_url"}
				wp.ImageURL = &struct {
					URL string `json:"url"`
				}{URL: p.ImageURL}
				parts = append(parts, wp)
			default:
				parts = append(parts, wirePart{Type: "text", Text: p.Text})
			}
		}
		out = append(out, wireMessage{Role: m.Role, Content: parts})
	}
	return out
}

func buildBody(params *core.ResolvedParams) map[string]any {
	body := map[string]any{
		"model":    params.Model,
		"messages": toWireMessages(params.Messages),
	}
	if params.Temperature != nil {
		body["temperature"] = *params.Temperature
	}
	if params.MaxCompletionTokens > 0 {
		body["max_completion_tokens"] = params.MaxCompletionTokens
	}
	for k, v := range params.Extra {
		body[k] = v
	}
	return body
}

// CreateCompletion sends a chat completion request through the
// OpenAI-compatible endpoint.
func (a *Adapter) CreateCompletion(ctx context.Context, params *core.ResolvedParams) (*core.Response, error) {
	var resp core.Response
	raw, err := a.client.DoJSON(ctx, llmclient.Request{
		Method:   http.MethodPost,
		Endpoint: "/openai/chat/completions",
		Body:     buildBody(params),
	}, &resp)
	if err != nil {
		return nil, err
	}
	resp.Provider = core.ProviderGoogle
	if resp.Model == "" {
		resp.Model = params.Model
	}
	resp.Raw = raw
	return &resp, nil
}

// nativeModel is one entry from the native models endpoint. Names arrive
// as "models/gemini-2.5-flash".
type nativeModel struct {
	Name                       string   `json:"name"`
	SupportedGenerationMethods []string `json:"supportedGenerationMethods"`
}

func (m nativeModel) id() string {
	return strings.TrimPrefix(m.Name, "models/")
}

// usable keeps gemini chat models: the endpoint also lists embedding and
// media models that reject generateContent.
func (m nativeModel) usable() bool {
	if !strings.HasPrefix(m.id(), "gemini-") {
		return false
	}
	for _, method := range m.SupportedGenerationMethods {
		if method == "generateContent" {
			return true
		}
	}
	return false
}

// ListModels retrieves chat-capable Gemini model identifiers, sorted.
func (a *Adapter) ListModels(ctx context.Context) ([]string, error) {
	var resp struct {
		Models []nativeModel `json:"models"`
	}
	if _, err := a.client.DoJSON(ctx, llmclient.Request{
		Method:   http.MethodGet,
		Endpoint: "/models",
	}, &resp); err != nil {
		return nil, err
	}

	models := make([]string, 0, len(resp.Models))
	for _, m := range resp.Models {
		if m.usable() {
			models = append(models, m.id())
		}
	}
	sort.Strings(models)
	return models, nil
}
