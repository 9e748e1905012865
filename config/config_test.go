package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeSettings(t *testing.T, dir, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, SettingsFileName), []byte(content), 0o644); err != nil {
		t.Fatalf("write settings: %v", err)
	}
}

func TestLoadDefaults(t *testing.T) {
	svc, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := svc.GetString(KeyAPIProvider, ""); got != "openai" {
		t.Errorf("default provider = %q, want openai", got)
	}
	if got := svc.GetInt(KeyAPITimeout, 0); got != 30 {
		t.Errorf("default timeout = %d, want 30", got)
	}
	if !svc.GetBool(KeyCacheEnabled, false) {
		t.Error("cache should be enabled by default")
	}
}

func TestYAMLOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	writeSettings(t, dir, `
api_provider: google
api_timeout: 60
default_models:
  - gpt-5-mini
  - gpt-5-nano
`)
	svc, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := svc.GetString(KeyAPIProvider, ""); got != "google" {
		t.Errorf("provider = %q, want google", got)
	}
	if got := svc.GetInt(KeyAPITimeout, 0); got != 60 {
		t.Errorf("timeout = %d, want 60", got)
	}
	models := svc.GetStringSlice(KeyDefaultModels)
	if len(models) != 2 || models[0] != "gpt-5-mini" || models[1] != "gpt-5-nano" {
		t.Errorf("default_models = %v", models)
	}
}

func TestEnvOverridesYAML(t *testing.T) {
	dir := t.TempDir()
	writeSettings(t, dir, "deepl_plan: free\n")
	t.Setenv("DEEPL_PLAN", "pro")
	svc, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := svc.GetString(KeyDeepLPlan, ""); got != "pro" {
		t.Errorf("deepl_plan = %q, want pro (env wins)", got)
	}
}

func TestMalformedSettingsFile(t *testing.T) {
	dir := t.TempDir()
	writeSettings(t, dir, "api_provider: [unclosed")
	if _, err := Load(dir); err == nil {
		t.Error("expected error for malformed YAML")
	}
}

func TestGetIntMalformed(t *testing.T) {
	svc, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	svc.SetSetting(KeyAPITimeout, "not-a-number")
	if got := svc.GetInt(KeyAPITimeout, 30); got != 30 {
		t.Errorf("GetInt on malformed value = %d, want fallback 30", got)
	}
}

func TestExcludeDefaults(t *testing.T) {
	svc, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(svc.OpenAIModelExcludes()) == 0 {
		t.Error("built-in openai excludes should be non-empty")
	}
	svc.SetSetting(KeyOpenAIExcludes, []string{"custom"})
	got := svc.OpenAIModelExcludes()
	if len(got) != 1 || got[0] != "custom" {
		t.Errorf("configured excludes = %v, want [custom]", got)
	}
}

func TestValidateAPIKeyFormat(t *testing.T) {
	tests := []struct {
		name     string
		key      string
		provider string
		want     bool
	}{
		{"openai valid", "sk-" + strings.Repeat("a", 24), "openai", true},
		{"openai project key", "sk-proj-" + strings.Repeat("b", 20), "openai", true},
		{"openai too short", "sk-short", "openai", false},
		{"openai wrong prefix", "pk-" + strings.Repeat("a", 24), "openai", false},
		{"google valid", "AIza" + strings.Repeat("c", 35), "google", true},
		{"google too short", "AIza" + strings.Repeat("c", 10), "google", false},
		{"google wrong prefix", "BIza" + strings.Repeat("c", 35), "google", false},
		{"deepl long enough", strings.Repeat("d", 20) + ":fx", "deepl", true},
		{"deepl too short", "short", "deepl", false},
		{"empty", "", "openai", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ValidateAPIKeyFormat(tt.key, tt.provider); got != tt.want {
				t.Errorf("ValidateAPIKeyFormat(%q, %q) = %v, want %v", tt.key, tt.provider, got, tt.want)
			}
		})
	}
}
