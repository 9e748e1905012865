// Package deepl adapts the gateway's normalized requests to the DeepL
// translation API. DeepL is translation-only: no temperature, no token
// budgets, and no real model list.
package deepl

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"lingogate/internal/core"
	"lingogate/internal/llmclient"
)

// ModelID is the virtual model identifier reported for DeepL, which has no
// model catalog of its own.
const ModelID = "deepl-translate"

// Base URLs by subscription plan. The plan is resolved once at adapter
// construction, never per request.
const (
	freeBaseURL = "https://api-free.deepl.com"
	proBaseURL  = "https://api.deepl.com"
)

// BaseURLForPlan maps a configured plan name to the API base URL. Anything
// other than "pro" is treated as the free tier.
func BaseURLForPlan(plan string) string {
	if strings.EqualFold(strings.TrimSpace(plan), "pro") {
		return proBaseURL
	}
	return freeBaseURL
}

// Adapter implements core.Adapter for DeepL.
type Adapter struct {
	client *llmclient.Client
	apiKey string
}

// New creates a DeepL adapter for the given subscription plan.
func New(apiKey, plan string, timeout time.Duration) *Adapter {
	a := &Adapter{apiKey: apiKey}
	a.client = llmclient.New(llmclient.Config{
		Provider: core.ProviderDeepL,
		BaseURL:  BaseURLForPlan(plan),
		Timeout:  timeout,
	}, a.setHeaders)
	return a
}

// NewWithHTTPClient creates an adapter around a caller-supplied http.Client.
func NewWithHTTPClient(apiKey string, httpClient *http.Client, timeout time.Duration) *Adapter {
	a := &Adapter{apiKey: apiKey}
	a.client = llmclient.NewWithHTTPClient(httpClient, llmclient.Config{
		Provider: core.ProviderDeepL,
		BaseURL:  freeBaseURL,
		Timeout:  timeout,
	}, a.setHeaders)
	return a
}

// SetBaseURL overrides the API base URL. Tests point it at a local server.
func (a *Adapter) SetBaseURL(url string) { a.client.SetBaseURL(url) }

func (a *Adapter) setHeaders(req *http.Request) {
	req.Header.Set("Authorization", "DeepL-Auth-Key "+a.apiKey)
}

// NormalizeLang maps a gateway language code to DeepL's expectations:
// upper-case, with the legacy "ua" spelling corrected to "UK". Empty and
// "auto" mean autodetection and return "".
func NormalizeLang(code string) string {
	code = strings.TrimSpace(code)
	if code == "" || strings.EqualFold(code, "auto") {
		return ""
	}
	upper := strings.ToUpper(code)
	if upper == "UA" {
		return "UK"
	}
	return upper
}

// textFromParams returns the text to translate: the builder places it in
// Extra["text"], with the last user message content as a fallback.
func textFromParams(params *core.ResolvedParams) string {
	if text, ok := params.Extra["text"].(string); ok && text != "" {
		return text
	}
	for i := len(params.Messages) - 1; i >= 0; i-- {
		if params.Messages[i].Role == "user" && params.Messages[i].Content != "" {
			return params.Messages[i].Content
		}
	}
	return ""
}

// CreateCompletion translates the request text and normalizes the result
// into the shared response shape. Temperature and token budgets are ignored.
func (a *Adapter) CreateCompletion(ctx context.Context, params *core.ResolvedParams) (*core.Response, error) {
	text := textFromParams(params)
	if text == "" {
		return nil, core.NewAPIError(core.ErrorInvalidRequest, core.ProviderDeepL, 0,
			"no text to translate", nil)
	}
	target, _ := params.Extra["target_lang"].(string)
	target = NormalizeLang(target)
	if target == "" {
		return nil, core.NewAPIError(core.ErrorInvalidRequest, core.ProviderDeepL, 0,
			"target language is required", nil)
	}

	form := url.Values{}
	form.Set("text", text)
	form.Set("target_lang", target)
	if source, _ := params.Extra["source_lang"].(string); NormalizeLang(source) != "" {
		form.Set("source_lang", NormalizeLang(source))
	}

	var resp core.Response
	raw, err := a.client.DoJSON(ctx, llmclient.Request{
		Method:   http.MethodPost,
		Endpoint: "/v2/translate",
		Form:     form,
	}, &resp)
	if err != nil {
		return nil, err
	}
	resp.Provider = core.ProviderDeepL
	resp.Model = ModelID
	resp.Raw = raw
	return &resp, nil
}

// ListModels reports the single virtual model. The result is static, so the
// call always succeeds and never reaches the network.
func (a *Adapter) ListModels(ctx context.Context) ([]string, error) {
	return []string{ModelID}, nil
}
