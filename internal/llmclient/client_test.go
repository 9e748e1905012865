package llmclient

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"lingogate/internal/core"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewWithHTTPClient(server.Client(), Config{
		Provider: core.ProviderOpenAI,
		BaseURL:  server.URL,
	}, func(req *http.Request) {
		req.Header.Set("Authorization", "Bearer test")
	})
}

func TestDoJSONReturnsRawBody(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer test" {
			t.Errorf("auth header missing")
		}
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("content type = %q", r.Header.Get("Content-Type"))
		}
		io.WriteString(w, `{"id":"x","extra_field":42}`)
	})

	var result struct {
		ID string `json:"id"`
	}
	raw, err := c.DoJSON(context.Background(), Request{
		Method:   http.MethodPost,
		Endpoint: "/test",
		Body:     map[string]string{"k": "v"},
	}, &result)
	if err != nil {
		t.Fatalf("DoJSON: %v", err)
	}
	if result.ID != "x" {
		t.Errorf("id = %q", result.ID)
	}
	// The raw body keeps fields the typed result does not model.
	if string(raw) != `{"id":"x","extra_field":42}` {
		t.Errorf("raw = %s", raw)
	}
}

func TestFormEncoding(t *testing.T) {
	var gotContentType, gotBody string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotContentType = r.Header.Get("Content-Type")
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)
		io.WriteString(w, `{}`)
	})

	form := url.Values{}
	form.Set("text", "hello world")
	form.Set("target_lang", "DE")
	if _, err := c.DoJSON(context.Background(), Request{
		Method:   http.MethodPost,
		Endpoint: "/v2/translate",
		Form:     form,
	}, nil); err != nil {
		t.Fatalf("DoJSON: %v", err)
	}

	if gotContentType != "application/x-www-form-urlencoded" {
		t.Errorf("content type = %q", gotContentType)
	}
	if gotBody != "target_lang=DE&text=hello+world" {
		t.Errorf("body = %q", gotBody)
	}
}

func TestErrorEnvelopeParsing(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		io.WriteString(w, `{"error":{"message":"model not found"}}`)
	})

	_, err := c.DoJSON(context.Background(), Request{Method: http.MethodGet, Endpoint: "/x"}, nil)
	apiErr, ok := err.(*core.APIError)
	if !ok {
		t.Fatalf("error type = %T", err)
	}
	if apiErr.Type != core.ErrorInvalidRequest {
		t.Errorf("type = %v", apiErr.Type)
	}
	if apiErr.Message != "model not found" {
		t.Errorf("message = %q, want the envelope message", apiErr.Message)
	}
	if apiErr.Provider != core.ProviderOpenAI {
		t.Errorf("provider = %v", apiErr.Provider)
	}
}

func TestRetryAfterParsed(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "12")
		w.WriteHeader(http.StatusTooManyRequests)
		io.WriteString(w, `{"message":"too many requests"}`)
	})

	_, err := c.DoJSON(context.Background(), Request{Method: http.MethodGet, Endpoint: "/x"}, nil)
	apiErr, ok := err.(*core.APIError)
	if !ok {
		t.Fatalf("error type = %T", err)
	}
	if apiErr.Type != core.ErrorRateLimit || apiErr.RetryAfter != 12*time.Second {
		t.Errorf("got %v retry after %v", apiErr.Type, apiErr.RetryAfter)
	}
}

func TestTypeForStatus(t *testing.T) {
	tests := []struct {
		status  int
		message string
		want    core.APIErrorType
	}{
		{401, "bad key", core.ErrorAuthentication},
		{403, "forbidden", core.ErrorAuthentication},
		{429, "slow down", core.ErrorRateLimit},
		{402, "payment required", core.ErrorQuotaExceeded},
		{500, "boom", core.ErrorServerError},
		{503, "unavailable", core.ErrorServerError},
		{400, "malformed body", core.ErrorInvalidRequest},
		{456, "quota for this billing period exceeded", core.ErrorQuotaExceeded},
	}
	for _, tt := range tests {
		if got := typeForStatus(tt.status, tt.message); got != tt.want {
			t.Errorf("typeForStatus(%d, %q) = %v, want %v", tt.status, tt.message, got, tt.want)
		}
	}
}

func TestTimeoutClassified(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		io.WriteString(w, `{}`)
	})
	c.config.Timeout = 20 * time.Millisecond

	_, err := c.DoJSON(context.Background(), Request{Method: http.MethodGet, Endpoint: "/slow"}, nil)
	apiErr, ok := err.(*core.APIError)
	if !ok {
		t.Fatalf("error type = %T: %v", err, err)
	}
	if apiErr.Type != core.ErrorTimeout && apiErr.Type != core.ErrorNetwork {
		t.Errorf("type = %v, want timeout or network", apiErr.Type)
	}
}
