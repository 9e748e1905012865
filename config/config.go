// Package config provides configuration management for the gateway: a YAML
// settings file in the user's configuration directory, a .env file for
// local development, and environment-variable overrides for credentials.
// Settings are exposed both as typed accessors and through the generic
// GetSetting contract the gateway components consume.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// SettingsFileName is the YAML document holding operator settings.
const SettingsFileName = "settings.yaml"

// Setting keys consumed by the gateway. Components address configuration
// through these rather than hardcoded strings.
const (
	KeyAPIProvider     = "api_provider"
	KeyOpenAIAPIKey    = "openai_api_key"
	KeyGoogleAPIKey    = "google_api_key"
	KeyDeepLAPIKey     = "deepl_api_key"
	KeyDeepLPlan       = "deepl_plan"
	KeyAPITimeout      = "api_timeout"
	KeyOpenAIModel     = "openai_model"
	KeyGoogleModel     = "google_model"
	KeyDefaultModels   = "default_models"
	KeyOpenAIExcludes  = "openai_model_excludes"
	KeyGoogleExcludes  = "google_model_excludes"
	KeyTempTranslation = "llm_temperature_translation"
	KeyTempVision      = "llm_temperature_vision"
	KeyCacheEnabled    = "cache_enabled"
	KeyMaxCacheSize    = "max_cache_size"
	KeyModelCacheTTL   = "model_cache_ttl"
	KeyRedisURL        = "redis_url"
	KeyUsageLogEnabled = "usage_log_enabled"
	KeyUsageDBPath     = "usage_db_path"
	KeyMetricsEnabled  = "metrics_enabled"
	KeyServerAddr      = "server_addr"
	KeyLogLevel        = "log_level"
)

// envOverrides maps environment variables onto setting keys. Env values
// always win over YAML values.
var envOverrides = map[string]string{
	"OPENAI_API_KEY":    KeyOpenAIAPIKey,
	"GOOGLE_API_KEY":    KeyGoogleAPIKey,
	"GEMINI_API_KEY":    KeyGoogleAPIKey,
	"DEEPL_API_KEY":     KeyDeepLAPIKey,
	"DEEPL_PLAN":        KeyDeepLPlan,
	"LINGOGATE_REDIS":   KeyRedisURL,
	"LINGOGATE_ADDR":    KeyServerAddr,
	"LINGOGATE_USAGE":   KeyUsageDBPath,
	"LINGOGATE_LOG":     KeyLogLevel,
	"LINGOGATE_TIMEOUT": KeyAPITimeout,
}

// defaults are the built-in values for every known key.
func defaults() map[string]any {
	return map[string]any{
		KeyAPIProvider:     "openai",
		KeyAPITimeout:      30,
		KeyOpenAIModel:     "gpt-5-nano",
		KeyGoogleModel:     "gemini-2.5-flash",
		KeyDeepLPlan:       "free",
		KeyTempTranslation: 1.0,
		KeyTempVision:      0.0,
		KeyCacheEnabled:    true,
		KeyMaxCacheSize:    100,
		KeyModelCacheTTL:   1209600, // two weeks, seconds
		KeyUsageLogEnabled: false,
		KeyMetricsEnabled:  false,
		KeyServerAddr:      "127.0.0.1:8790",
		KeyLogLevel:        "info",
	}
}

// defaultOpenAIExcludes lists OpenAI model-name fragments that are not chat
// completion models: audio, embedding, image and moderation variants all
// share the gpt- prefix but reject chat requests.
var defaultOpenAIExcludes = []string{
	"audio", "realtime", "transcribe", "tts", "whisper",
	"embedding", "moderation", "image", "dall-e",
	"davinci", "babbage", "instruct", "search", "codex",
}

// defaultGoogleExcludes lists Gemini variants irrelevant to chat/vision.
var defaultGoogleExcludes = []string{
	"embedding", "aqa", "imagen", "veo", "tts", "audio",
	"learnlm", "thinking", "image", "live", "exp",
}

// Service is the gateway's configuration source. Safe for concurrent use;
// Reload replaces the whole value map atomically under the lock.
type Service struct {
	mu     sync.RWMutex
	values map[string]any
	dir    string
}

// Load builds a Service from the configuration directory, layering
// defaults, settings.yaml, a .env file and process environment variables.
// A missing settings file or .env is not an error.
func Load(dir string) (*Service, error) {
	if dir == "" {
		var err error
		dir, err = EnsureConfigDir()
		if err != nil {
			return nil, err
		}
	}

	// Optional; local development convenience.
	_ = godotenv.Load()

	s := &Service{dir: dir}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// Reload re-reads settings.yaml and the environment. Existing readers keep
// seeing the old values until the swap completes.
func (s *Service) Reload() error {
	values := defaults()

	path := filepath.Join(s.dir, SettingsFileName)
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		var fromFile map[string]any
		if err := yaml.Unmarshal(data, &fromFile); err != nil {
			return fmt.Errorf("failed to parse %s: %w", path, err)
		}
		for k, v := range fromFile {
			values[k] = v
		}
	case os.IsNotExist(err):
		// First run; defaults plus environment are enough.
	default:
		return fmt.Errorf("failed to read settings: %w", err)
	}

	for env, key := range envOverrides {
		if v := os.Getenv(env); v != "" {
			values[key] = v
		}
	}

	s.mu.Lock()
	s.values = values
	s.mu.Unlock()
	return nil
}

// ConfigDir returns the directory settings and caches live in.
func (s *Service) ConfigDir() string { return s.dir }

// GetSetting returns the raw configured value for key, or nil when unset.
func (s *Service) GetSetting(key string) any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.values[key]
}

// SetSetting overrides a value in memory. Used by tests and by the
// reinitialize path when the embedding application pushes fresh settings.
func (s *Service) SetSetting(key string, value any) {
	s.mu.Lock()
	s.values[key] = value
	s.mu.Unlock()
}

// GetString returns a setting as a trimmed string, or fallback.
func (s *Service) GetString(key, fallback string) string {
	v := s.GetSetting(key)
	if v == nil {
		return fallback
	}
	str := strings.TrimSpace(fmt.Sprintf("%v", v))
	if str == "" {
		return fallback
	}
	return str
}

// GetInt returns a setting as an int; malformed values log a warning and
// fall back.
func (s *Service) GetInt(key string, fallback int) int {
	switch v := s.GetSetting(key).(type) {
	case nil:
		return fallback
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			slog.Warn("malformed integer setting", "key", key, "value", v, "fallback", fallback)
			return fallback
		}
		return n
	default:
		slog.Warn("unexpected setting type", "key", key, "value", v)
		return fallback
	}
}

// GetFloat returns a setting as a float64; malformed values log a warning
// and fall back.
func (s *Service) GetFloat(key string, fallback float64) float64 {
	switch v := s.GetSetting(key).(type) {
	case nil:
		return fallback
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			slog.Warn("malformed float setting", "key", key, "value", v, "fallback", fallback)
			return fallback
		}
		return f
	default:
		slog.Warn("unexpected setting type", "key", key, "value", v)
		return fallback
	}
}

// GetBool returns a setting as a bool, accepting YAML bools and common
// string spellings.
func (s *Service) GetBool(key string, fallback bool) bool {
	switch v := s.GetSetting(key).(type) {
	case nil:
		return fallback
	case bool:
		return v
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return fallback
		}
		return b
	default:
		return fallback
	}
}

// GetStringSlice returns a list-valued setting, or nil when unset or not a
// list of strings.
func (s *Service) GetStringSlice(key string) []string {
	switch v := s.GetSetting(key).(type) {
	case []string:
		out := make([]string, len(v))
		copy(out, v)
		return out
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			str, ok := item.(string)
			if !ok {
				return nil
			}
			out = append(out, str)
		}
		return out
	default:
		return nil
	}
}

// OpenAIModelExcludes returns the operator-configured exclude list for
// OpenAI, or the built-in default.
func (s *Service) OpenAIModelExcludes() []string {
	if list := s.GetStringSlice(KeyOpenAIExcludes); len(list) > 0 {
		return list
	}
	return append([]string(nil), defaultOpenAIExcludes...)
}

// GoogleModelExcludes returns the operator-configured exclude list for
// Google, or the built-in default.
func (s *Service) GoogleModelExcludes() []string {
	if list := s.GetStringSlice(KeyGoogleExcludes); len(list) > 0 {
		return list
	}
	return append([]string(nil), defaultGoogleExcludes...)
}

// GetConfigPath returns the per-user configuration directory.
func GetConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve home directory: %w", err)
	}
	return filepath.Join(home, ".lingogate"), nil
}

// EnsureConfigDir creates the configuration directory if needed.
func EnsureConfigDir() (string, error) {
	dir, err := GetConfigPath()
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create config directory: %w", err)
	}
	return dir, nil
}

var (
	openAIKeyPattern = regexp.MustCompile(`^sk-[A-Za-z0-9_-]{20,}$`)
	googleKeyPattern = regexp.MustCompile(`^AIza[0-9A-Za-z_-]{35,}$`)
)

// ValidateAPIKeyFormat checks a credential's shape locally, with no network
// call, so obviously broken keys are skipped at registry initialization:
//   - openai: "sk-" followed by 20+ URL-safe characters
//   - google: "AIza" followed by 35+ URL-safe characters
//   - anything else: minimum length only (DeepL keys have no stable prefix)
func ValidateAPIKeyFormat(apiKey, provider string) bool {
	if apiKey == "" {
		return false
	}
	switch strings.ToLower(provider) {
	case "openai":
		return openAIKeyPattern.MatchString(apiKey)
	case "google":
		return googleKeyPattern.MatchString(apiKey)
	default:
		return len(apiKey) >= 16
	}
}
