// Package llmclient provides the base HTTP client shared by all provider
// adapters: request marshaling, header injection, per-call timeouts, and
// standardized parsing of provider error bodies into the classified
// taxonomy. It contains no retry loop; the gateway's single bounded retry
// lives in the manager, on the caller's thread.
package llmclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"lingogate/internal/core"
)

// Config holds per-provider client configuration.
type Config struct {
	// Provider identifies the backend for error classification.
	Provider core.Provider

	// BaseURL is the API base URL, without a trailing slash.
	BaseURL string

	// Timeout bounds each call. Zero means DefaultTimeout.
	Timeout time.Duration
}

// DefaultTimeout bounds a call when no timeout is configured.
const DefaultTimeout = 30 * time.Second

// HeaderSetter injects provider credentials and headers into a request.
type HeaderSetter func(req *http.Request)

// Client is the shared HTTP client for provider adapters.
type Client struct {
	httpClient *http.Client
	config     Config
	setHeaders HeaderSetter
}

// New creates a client with a pooled transport.
func New(cfg Config, setHeaders HeaderSetter) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Client{
		httpClient: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 100,
			},
		},
		config:     cfg,
		setHeaders: setHeaders,
	}
}

// NewWithHTTPClient creates a client around a caller-supplied http.Client.
// Used by tests with httptest servers. A nil httpClient falls back to
// http.DefaultClient.
func NewWithHTTPClient(httpClient *http.Client, cfg Config, setHeaders HeaderSetter) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Client{httpClient: httpClient, config: cfg, setHeaders: setHeaders}
}

// SetBaseURL updates the base URL. DeepL's plan switch resolves the base URL
// once at registry initialization, never per request.
func (c *Client) SetBaseURL(url string) { c.config.BaseURL = url }

// BaseURL returns the current base URL.
func (c *Client) BaseURL() string { return c.config.BaseURL }

// Request describes one HTTP call.
type Request struct {
	Method   string
	Endpoint string // path joined to BaseURL, e.g. "/chat/completions"
	Body     any    // JSON-marshaled when non-nil and Form is empty
	Form     url.Values
	Headers  map[string]string
}

// DoJSON executes a request and unmarshals the JSON response into result.
// The raw body is returned alongside so callers can keep it for path-based
// text extraction.
func (c *Client) DoJSON(ctx context.Context, req Request, result any) (json.RawMessage, error) {
	body, err := c.do(ctx, req)
	if err != nil {
		return nil, err
	}
	if result != nil {
		if err := json.Unmarshal(body, result); err != nil {
			return nil, core.NewAPIError(core.ErrorServerError, c.config.Provider, http.StatusBadGateway,
				"failed to decode response: "+err.Error(), err)
		}
	}
	return body, nil
}

func (c *Client) do(ctx context.Context, req Request) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	var reqBody io.Reader
	contentType := ""
	switch {
	case len(req.Form) > 0:
		reqBody = bytes.NewBufferString(req.Form.Encode())
		contentType = "application/x-www-form-urlencoded"
	case req.Body != nil:
		data, err := json.Marshal(req.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		reqBody = bytes.NewReader(data)
		contentType = "application/json"
	}

	fullURL := c.config.BaseURL + req.Endpoint
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, fullURL, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if contentType != "" {
		httpReq.Header.Set("Content-Type", contentType)
	}
	if c.setHeaders != nil {
		c.setHeaders(httpReq)
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		classified := core.Classify(err)
		classified.Provider = c.config.Provider
		if classified.Type == core.ErrorNetwork || classified.Type == core.ErrorTimeout {
			core.LogNetworkDiagnostics(fullURL, err)
		}
		return nil, classified
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, core.NewAPIError(core.ErrorNetwork, c.config.Provider, 0,
			"failed to read response: "+err.Error(), err)
	}

	if resp.StatusCode >= 400 {
		return nil, ParseErrorResponse(c.config.Provider, resp, body)
	}

	return body, nil
}

// ParseErrorResponse turns a non-2xx provider response into a classified
// error. It extracts the provider's error message when the body carries the
// common {"error": {"message": ...}} or {"message": ...} shapes, and honors
// Retry-After on 429 responses.
func ParseErrorResponse(provider core.Provider, resp *http.Response, body []byte) *core.APIError {
	message := string(body)

	var envelope struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil {
		if envelope.Error.Message != "" {
			message = envelope.Error.Message
		} else if envelope.Message != "" {
			message = envelope.Message
		}
	}

	errType := typeForStatus(resp.StatusCode, message)
	apiErr := core.NewAPIError(errType, provider, resp.StatusCode, message, nil)

	if seconds, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil && seconds > 0 {
		apiErr.RetryAfter = time.Duration(seconds) * time.Second
	}
	return apiErr
}

func typeForStatus(status int, message string) core.APIErrorType {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return core.ErrorAuthentication
	case status == http.StatusTooManyRequests:
		return core.ErrorRateLimit
	case status == http.StatusPaymentRequired:
		return core.ErrorQuotaExceeded
	case status >= 500:
		return core.ErrorServerError
	case status >= 400:
		// Quota exhaustion often arrives as a 400/403-family error with
		// billing phrasing rather than a dedicated status.
		if e := core.Classify(fmt.Errorf("%s", message)); e.Type == core.ErrorQuotaExceeded {
			return core.ErrorQuotaExceeded
		}
		return core.ErrorInvalidRequest
	default:
		return core.ErrorUnknown
	}
}
