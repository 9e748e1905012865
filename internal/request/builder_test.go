package request

import (
	"testing"

	"lingogate/config"
	"lingogate/internal/core"
)

func newTestBuilder(t *testing.T) (*Builder, *config.Service) {
	t.Helper()
	settings, err := config.Load(t.TempDir())
	if err != nil {
		t.Fatalf("config.Load: %v", err)
	}
	return NewBuilder(settings), settings
}

func TestModelSupportsTemperature(t *testing.T) {
	tests := []struct {
		model string
		want  bool
	}{
		{"gpt-4o-mini", true},
		{"gpt-4.1", true},
		{"gemini-2.5-flash", true},
		{"gpt-5", false},
		{"gpt-5-nano", false},
		{"GPT-5-MINI", false},
		{"o1-preview", false},
		{"o3-mini", false},
		{"o4-mini", true}, // only o1 and o3 families are restricted
		{"chatgpt-4o-latest", true},
	}
	for _, tt := range tests {
		if got := ModelSupportsTemperature(tt.model); got != tt.want {
			t.Errorf("ModelSupportsTemperature(%q) = %v, want %v", tt.model, got, tt.want)
		}
	}
}

func TestAdjustTemperatureForModel(t *testing.T) {
	temp := 0.7
	if got := AdjustTemperatureForModel("gpt-4o-mini", &temp); got == nil || *got != 0.7 {
		t.Errorf("supported model: got %v", got)
	}
	if got := AdjustTemperatureForModel("gpt-5-nano", &temp); got == nil || *got != 1.0 {
		t.Errorf("restricted model: got %v, want forced 1.0", got)
	}
	if temp != 0.7 {
		t.Errorf("caller's value mutated to %v", temp)
	}
	if got := AdjustTemperatureForModel("gpt-5-nano", nil); got != nil {
		t.Errorf("nil in: got %v, want nil", got)
	}
}

func TestResolveTemperaturePrecedence(t *testing.T) {
	b, settings := newTestBuilder(t)

	// Built-in defaults.
	if got := b.ResolveTemperature(TaskTranslation, nil); got != 1.0 {
		t.Errorf("translation default = %v, want 1.0", got)
	}
	if got := b.ResolveTemperature(TaskVision, nil); got != 0.0 {
		t.Errorf("vision default = %v, want 0.0", got)
	}

	// Configured values win over defaults.
	settings.SetSetting(config.KeyTempTranslation, 0.3)
	if got := b.ResolveTemperature(TaskTranslation, nil); got != 0.3 {
		t.Errorf("configured = %v, want 0.3", got)
	}

	// An explicit override wins over everything.
	override := 0.9
	if got := b.ResolveTemperature(TaskTranslation, &override); got != 0.9 {
		t.Errorf("override = %v, want 0.9", got)
	}

	// Malformed configuration falls back to the default.
	settings.SetSetting(config.KeyTempTranslation, "warm")
	if got := b.ResolveTemperature(TaskTranslation, nil); got != 1.0 {
		t.Errorf("malformed = %v, want default 1.0", got)
	}
}

func TestResolveCompletionTokens(t *testing.T) {
	b, _ := newTestBuilder(t)

	// Known model: budget is bounded by the model limit and the floor.
	budget := b.ResolveCompletionTokens("gpt-4o-mini")
	if budget < 2048 || budget > 16384 {
		t.Errorf("budget = %d, want within [2048, 16384]", budget)
	}

	// Empty model name cannot be budgeted; the static default applies.
	if got := b.ResolveCompletionTokens(""); got != 4096 {
		t.Errorf("empty model budget = %d, want 4096", got)
	}
}

func TestBuildLLMParams(t *testing.T) {
	b, _ := newTestBuilder(t)
	messages := []core.Message{{Role: "user", Content: "hello"}}

	params := b.BuildLLMParams("gpt-4o-mini", messages, TaskTranslation, nil)
	if params.Model != "gpt-4o-mini" {
		t.Errorf("model = %q", params.Model)
	}
	if params.Temperature == nil || *params.Temperature != 1.0 {
		t.Errorf("temperature = %v", params.Temperature)
	}
	if params.MaxCompletionTokens <= 0 {
		t.Errorf("token budget = %d", params.MaxCompletionTokens)
	}
	if params.Extra != nil {
		t.Errorf("non-gpt-5 model must carry no extra fields: %v", params.Extra)
	}
}

func TestBuildLLMParamsGPT5(t *testing.T) {
	b, _ := newTestBuilder(t)

	params := b.BuildLLMParams("gpt-5-nano", []core.Message{{Role: "user", Content: "hi"}}, TaskTranslation, nil)
	if params.Temperature == nil || *params.Temperature != 1.0 {
		t.Errorf("gpt-5 temperature = %v, want the forced neutral 1.0", params.Temperature)
	}
	if params.Extra["reasoning_effort"] != "minimal" || params.Extra["verbosity"] != "low" {
		t.Errorf("gpt-5 extra = %v", params.Extra)
	}
}

func TestBuildDeepLParams(t *testing.T) {
	b, _ := newTestBuilder(t)

	params := b.BuildDeepLParams("Hello", "en", "de")
	if params.Temperature != nil || params.MaxCompletionTokens != 0 {
		t.Errorf("deepl params must carry no llm knobs: %+v", params)
	}
	if params.Extra["text"] != "Hello" || params.Extra["source_lang"] != "en" || params.Extra["target_lang"] != "de" {
		t.Errorf("extra = %v", params.Extra)
	}
}
