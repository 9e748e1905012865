// Package server exposes the gateway over HTTP for local tooling: translate
// and vision endpoints, model listings, usage statistics and health.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"lingogate/internal/core"
	"lingogate/internal/manager"
	"lingogate/internal/models"
)

// Config holds server options.
type Config struct {
	// MetricsEnabled exposes Prometheus metrics at /metrics.
	MetricsEnabled bool

	// BodyLimit caps request bodies; vision requests carry inline images.
	// Empty uses "8M".
	BodyLimit string
}

// Server wraps the Echo instance.
type Server struct {
	echo *echo.Echo
	mgr  *manager.APIManager
}

// New builds the HTTP surface around an initialized manager.
func New(mgr *manager.APIManager, cfg Config) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus: true,
		LogURI:    true,
		LogMethod: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			slog.Info("http request",
				"method", v.Method, "uri", v.URI, "status", v.Status)
			return nil
		},
	}))
	limit := cfg.BodyLimit
	if limit == "" {
		limit = "8M"
	}
	e.Use(middleware.BodyLimit(limit))

	s := &Server{echo: e, mgr: mgr}

	e.GET("/healthz", s.health)
	if cfg.MetricsEnabled {
		e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	}

	e.POST("/v1/translate", s.translate)
	e.POST("/v1/vision", s.vision)
	e.GET("/v1/models/:provider", s.listModels)
	e.GET("/v1/stats", s.stats)

	return s
}

// Start serves on addr until Shutdown.
func (s *Server) Start(addr string) error { return s.echo.Start(addr) }

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error { return s.echo.Shutdown(ctx) }

// ServeHTTP lets tests drive the server without a listener.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}

type translateRequest struct {
	Text        string   `json:"text"`
	SourceLang  string   `json:"source_lang"`
	TargetLang  string   `json:"target_lang"`
	Provider    string   `json:"provider"`
	Model       string   `json:"model"`
	Temperature *float64 `json:"temperature"`
	NoCache     bool     `json:"no_cache"`
}

type visionRequest struct {
	ImageURL    string   `json:"image_url"`
	Prompt      string   `json:"prompt"`
	Provider    string   `json:"provider"`
	Model       string   `json:"model"`
	Temperature *float64 `json:"temperature"`
}

type resultResponse struct {
	Text     string        `json:"text"`
	Provider core.Provider `json:"provider"`
	Model    string        `json:"model"`
	Cached   bool          `json:"cached"`
	Usage    core.Usage    `json:"usage"`
}

type errorResponse struct {
	Error string `json:"error"`
	Type  string `json:"type"`
}

func (s *Server) translate(c echo.Context) error {
	var req translateRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "malformed request body", Type: string(core.ErrorInvalidRequest)})
	}

	result, err := s.mgr.MakeTranslationRequest(c.Request().Context(), manager.TranslationRequest{
		Text:        req.Text,
		SourceLang:  req.SourceLang,
		TargetLang:  req.TargetLang,
		Provider:    req.Provider,
		Model:       req.Model,
		Temperature: req.Temperature,
		NoCache:     req.NoCache,
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, toResult(result))
}

func (s *Server) vision(c echo.Context) error {
	var req visionRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "malformed request body", Type: string(core.ErrorInvalidRequest)})
	}

	result, err := s.mgr.MakeVisionRequest(c.Request().Context(), manager.VisionRequest{
		ImageURL:    req.ImageURL,
		Prompt:      req.Prompt,
		Provider:    req.Provider,
		Model:       req.Model,
		Temperature: req.Temperature,
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, toResult(result))
}

func toResult(r *manager.Result) resultResponse {
	return resultResponse{
		Text:     r.Text,
		Provider: r.Provider,
		Model:    r.Model,
		Cached:   r.Cached,
		Usage:    r.Usage,
	}
}

type modelsResponse struct {
	Provider core.Provider    `json:"provider"`
	Source   core.ModelSource `json:"source"`
	Models   []string         `json:"models"`
}

func (s *Server) listModels(c echo.Context) error {
	provider, ok := core.ParseProvider(c.Param("provider"))
	if !ok {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "unknown provider", Type: string(core.ErrorInvalidRequest)})
	}
	opts := models.ListOptions{
		ForceRefresh: c.QueryParam("refresh") == "true",
		TempAPIKey:   c.Request().Header.Get("X-Temp-API-Key"),
	}
	list, source, err := s.mgr.Models(c.Request().Context(), provider, opts)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, modelsResponse{Provider: provider, Source: source, Models: list})
}

func (s *Server) stats(c echo.Context) error {
	hits, misses := s.mgr.TranslationCacheStats()
	return c.JSON(http.StatusOK, map[string]any{
		"providers": s.mgr.GetUsageStats(),
		"translation_cache": map[string]int64{
			"hits":   hits,
			"misses": misses,
		},
	})
}

func (s *Server) health(c echo.Context) error {
	status := "ok"
	code := http.StatusOK
	if s.mgr.State() != manager.StateInitialized {
		status = "not_initialized"
		code = http.StatusServiceUnavailable
	}
	return c.JSON(code, map[string]any{
		"status":    status,
		"providers": s.mgr.AvailableProviders(),
	})
}

// writeError maps a classified failure to an HTTP response. Upstream
// failures surface as gateway errors, not client errors.
func writeError(c echo.Context, err error) error {
	if errors.Is(err, core.ErrNotInitialized) {
		return c.JSON(http.StatusServiceUnavailable, errorResponse{Error: err.Error(), Type: "not_initialized"})
	}

	apiErr := core.Classify(err)
	status := http.StatusInternalServerError
	switch apiErr.Type {
	case core.ErrorInvalidRequest:
		status = http.StatusBadRequest
	case core.ErrorRateLimit:
		status = http.StatusTooManyRequests
		if apiErr.RetryAfter > 0 {
			seconds := int(apiErr.RetryAfter / time.Second)
			c.Response().Header().Set("Retry-After", strconv.Itoa(seconds))
		}
	case core.ErrorQuotaExceeded:
		status = http.StatusPaymentRequired
	case core.ErrorTimeout:
		status = http.StatusGatewayTimeout
	case core.ErrorAuthentication, core.ErrorNetwork, core.ErrorServerError:
		status = http.StatusBadGateway
	}
	return c.JSON(status, errorResponse{Error: apiErr.Message, Type: string(apiErr.Type)})
}
