// Package main is the entry point for the translation gateway.
//
// Default mode reads text from stdin, translates it and prints the result.
// With -serve it exposes the HTTP API instead.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"lingogate/config"
	"lingogate/internal/core"
	"lingogate/internal/logging"
	"lingogate/internal/manager"
	"lingogate/internal/modelcache"
	"lingogate/internal/models"
	"lingogate/internal/observability"
	"lingogate/internal/server"
	"lingogate/internal/usage"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	var (
		versionFlag = flag.Bool("version", false, "print version and exit")
		configDir   = flag.String("config", "", "configuration directory (default ~/.lingogate)")
		serve       = flag.Bool("serve", false, "run the HTTP server instead of translating stdin")
		addr        = flag.String("addr", "", "listen address for -serve (default from configuration)")
		listModels  = flag.String("list-models", "", "list available models for a provider and exit")
		source      = flag.String("source", "auto", "source language for stdin translation")
		target      = flag.String("target", "en", "target language for stdin translation")
		providerArg = flag.String("provider", "", "provider override (openai, google, deepl)")
		modelArg    = flag.String("model", "", "model override")
	)
	flag.Parse()

	if *versionFlag {
		fmt.Println("lingogate " + version)
		return
	}

	settings, err := config.Load(*configDir)
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to load configuration:", err)
		os.Exit(1)
	}

	logging.Setup(os.Stderr, logging.ParseLevel(settings.GetString(config.KeyLogLevel, "info")))
	slog.Info("starting lingogate", "version", version)

	opts := manager.Options{Settings: settings}

	if redisURL := settings.GetString(config.KeyRedisURL, ""); redisURL != "" {
		backend, err := modelcache.NewRedisBackend(modelcache.RedisConfig{
			URL: redisURL,
			TTL: time.Duration(settings.GetInt(config.KeyModelCacheTTL, 1209600)) * time.Second,
		})
		if err != nil {
			slog.Error("failed to connect redis model cache", "error", err)
			os.Exit(1)
		}
		defer backend.Close()
		opts.CacheBackend = backend
		slog.Info("model cache backed by redis")
	}

	if settings.GetBool(config.KeyUsageLogEnabled, false) {
		dbPath := settings.GetString(config.KeyUsageDBPath,
			filepath.Join(settings.ConfigDir(), "usage.db"))
		store, err := usage.OpenSQLiteStore(dbPath)
		if err != nil {
			slog.Error("failed to open usage database", "error", err)
			os.Exit(1)
		}
		opts.Usage = usage.NewLogger(store)
		slog.Info("usage logging enabled", "path", dbPath)
	}

	metricsEnabled := settings.GetBool(config.KeyMetricsEnabled, false)
	if metricsEnabled {
		opts.Metrics = observability.NewMetrics(prometheus.DefaultRegisterer)
	}

	ctx := context.Background()
	mgr, err := manager.InitAPIManager(ctx, opts)
	if err != nil {
		slog.Error("failed to initialize api manager", "error", err)
		os.Exit(1)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := mgr.Shutdown(shutdownCtx); err != nil {
			slog.Warn("shutdown error", "error", err)
		}
	}()

	switch {
	case *listModels != "":
		if err := runListModels(ctx, mgr, *listModels); err != nil {
			slog.Error("failed to list models", "error", err)
			os.Exit(1)
		}
	case *serve:
		listenAddr := *addr
		if listenAddr == "" {
			listenAddr = settings.GetString(config.KeyServerAddr, "127.0.0.1:8790")
		}
		if err := runServer(mgr, listenAddr, metricsEnabled); err != nil {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	default:
		if err := runTranslate(ctx, mgr, *source, *target, *providerArg, *modelArg); err != nil {
			fmt.Fprintln(os.Stderr, "translation failed:", err)
			os.Exit(1)
		}
	}
}

func runListModels(ctx context.Context, mgr *manager.APIManager, providerName string) error {
	provider, ok := core.ParseProvider(providerName)
	if !ok {
		return fmt.Errorf("unknown provider %q", providerName)
	}
	list, modelSource, err := mgr.Models(ctx, provider, models.ListOptions{})
	if err != nil {
		slog.Warn("model fetch failed, using fallback list", "provider", provider, "error", err)
		list = mgr.FallbackModels(ctx, provider)
		modelSource = core.SourceFallback
	}
	fmt.Printf("%s models (%s):\n", provider, modelSource)
	for _, model := range list {
		fmt.Println("  " + model)
	}
	return nil
}

func runTranslate(ctx context.Context, mgr *manager.APIManager, source, target, providerName, model string) error {
	text, err := io.ReadAll(os.Stdin)
	if err != nil {
		return fmt.Errorf("failed to read stdin: %w", err)
	}
	if strings.TrimSpace(string(text)) == "" {
		return errors.New("no input text")
	}

	result, err := mgr.MakeTranslationRequest(ctx, manager.TranslationRequest{
		Text:       strings.TrimSpace(string(text)),
		SourceLang: source,
		TargetLang: target,
		Provider:   providerName,
		Model:      model,
	})
	if err != nil {
		return err
	}

	fmt.Println(result.Text)
	slog.Debug("translation complete",
		"provider", result.Provider, "model", result.Model, "cached", result.Cached)
	return nil
}

func runServer(mgr *manager.APIManager, addr string, metricsEnabled bool) error {
	srv := server.New(mgr, server.Config{MetricsEnabled: metricsEnabled})

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit

		slog.Info("shutting down server")
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	slog.Info("listening", "addr", addr)
	if err := srv.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
