// Package openai adapts the gateway's normalized requests to the OpenAI
// chat completions API.
package openai

import (
	"context"
	"net/http"
	"sort"
	"strings"
	"time"

	"lingogate/internal/core"
	"lingogate/internal/llmclient"
)

const defaultBaseURL = "https://api.openai.com/v1"

// Adapter implements core.Adapter for OpenAI.
type Adapter struct {
	client *llmclient.Client
	apiKey string
}

// New creates an OpenAI adapter. A zero timeout uses the client default.
func New(apiKey string, timeout time.Duration) *Adapter {
	a := &Adapter{apiKey: apiKey}
	a.client = llmclient.New(llmclient.Config{
		Provider: core.ProviderOpenAI,
		BaseURL:  defaultBaseURL,
		Timeout:  timeout,
	}, a.setHeaders)
	return a
}

// NewWithHTTPClient creates an adapter around a caller-supplied http.Client.
func NewWithHTTPClient(apiKey string, httpClient *http.Client, timeout time.Duration) *Adapter {
	a := &Adapter{apiKey: apiKey}
	a.client = llmclient.NewWithHTTPClient(httpClient, llmclient.Config{
		Provider: core.ProviderOpenAI,
		BaseURL:  defaultBaseURL,
		Timeout:  timeout,
	}, a.setHeaders)
	return a
}

// SetBaseURL overrides the API base URL. Tests point it at a local server.
func (a *Adapter) SetBaseURL(url string) { a.client.SetBaseURL(url) }

func (a *Adapter) setHeaders(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+a.apiKey)
}

// wirePart is the OpenAI multimodal content element.
type wirePart struct {
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	ImageURL *struct {
		URL string `json:"url"`
	} `json:"image_url,omitempty"`
}

// wireMessage carries either a plain string content or a multimodal array.
type wireMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

// toWireMessages converts normalized messages to the OpenAI shape. Messages
// with parts become content arrays; plain messages stay strings.
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

// buildBody assembles the request body. Temperature is omitted when nil,
// max_completion_tokens when zero, and Extra fields such as reasoning_effort
// are merged in last.
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

// CreateCompletion sends a chat completion request.
func (a *Adapter) CreateCompletion(ctx context.Context, params *core.ResolvedParams) (*core.Response, error) {
	var resp core.Response
	raw, err := a.client.DoJSON(ctx, llmclient.Request{
		Method:   http.MethodPost,
		Endpoint: "/chat/completions",
		Body:     buildBody(params),
	}, &resp)
	if err != nil {
		return nil, err
	}
	resp.Provider = core.ProviderOpenAI
	if resp.Model == "" {
		resp.Model = params.Model
	}
	resp.Raw = raw
	return &resp, nil
}

// isChatModel keeps only chat-capable model families. The /models endpoint
// also lists embedding, audio and image models under other prefixes.
func isChatModel(id string) bool {
	return strings.HasPrefix(id, "gpt-") || strings.HasPrefix(id, "chatgpt-")
}

// ListModels retrieves chat-capable model identifiers, sorted.
func (a *Adapter) ListModels(ctx context.Context) ([]string, error) {
	var resp struct {
		Data []struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if _, err := a.client.DoJSON(ctx, llmclient.Request{
		Method:   http.MethodGet,
		Endpoint: "/models",
	}, &resp); err != nil {
		return nil, err
	}

	models := make([]string, 0, len(resp.Data))
	for _, m := range resp.Data {
		if isChatModel(m.ID) {
			models = append(models, m.ID)
		}
	}
	sort.Strings(models)
	return models, nil
}
