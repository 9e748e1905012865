// Package request builds the per-call parameter record sent to provider
// adapters. Parameters are resolved fresh for every call: model, temperature
// policy and configuration may all change between requests.
package request

import (
	"log/slog"
	"strings"
	"sync"

	"lingogate/config"
	"lingogate/internal/core"
	"lingogate/internal/providers/deepl"
	"lingogate/internal/tokenlimits"
)

// Task selects which configured temperature applies.
type Task string

const (
	TaskTranslation Task = "translation"
	TaskVision      Task = "vision"
)

// Built-in temperatures when the operator configured none. Translation
// wants natural phrasing; vision wants determinism.
const (
	defaultTranslationTemperature = 1.0
	defaultVisionTemperature      = 0.0
)

// restrictedPrefixes lists model families that reject the temperature
// parameter outright.
var restrictedPrefixes = []string{"o1-", "o3-", "gpt-5"}

// ModelSupportsTemperature reports whether the model accepts an explicit
// temperature. Reasoning families reject any value other than their default.
func ModelSupportsTemperature(model string) bool {
	m := strings.ToLower(strings.TrimSpace(model))
	for _, prefix := range restrictedPrefixes {
		if strings.HasPrefix(m, prefix) {
			return false
		}
	}
	return true
}

// neutralTemperature is the only value restricted models accept.
const neutralTemperature = 1.0

var tempForceWarned sync.Map

// AdjustTemperatureForModel forces the neutral temperature for models that
// reject custom values, logging the override once per model name.
func AdjustTemperatureForModel(model string, temperature *float64) *float64 {
	if temperature == nil || ModelSupportsTemperature(model) {
		return temperature
	}
	if *temperature != neutralTemperature {
		if _, warned := tempForceWarned.LoadOrStore(model, struct{}{}); !warned {
			slog.Info("model accepts only the neutral temperature, overriding",
				"model", model, "requested", *temperature, "forced", neutralTemperature)
		}
	}
	neutral := neutralTemperature
	return &neutral
}

// Builder resolves request parameters from configuration.
type Builder struct {
	settings *config.Service
}

// NewBuilder creates a parameter builder bound to a settings source.
func NewBuilder(settings *config.Service) *Builder {
	return &Builder{settings: settings}
}

// ResolveTemperature picks the effective temperature: an explicit override
// wins over the configured per-task value, which wins over the built-in
// default. The result may still be overridden later for restricted models.
func (b *Builder) ResolveTemperature(task Task, override *float64) float64 {
	if override != nil {
		return *override
	}
	switch task {
	case TaskVision:
		return b.settings.GetFloat(config.KeyTempVision, defaultVisionTemperature)
	default:
		return b.settings.GetFloat(config.KeyTempTranslation, defaultTranslationTemperature)
	}
}

// ResolveCompletionTokens computes the dynamic output-token budget for a
// model. A budget calculation failure logs and falls back to the model's
// static limit.
func (b *Builder) ResolveCompletionTokens(model string) int {
	budget, err := tokenlimits.CalculateDynamicCompletionTokens(
		model, tokenlimits.DefaultMinOutputTokens, tokenlimits.DefaultSafetyMargin)
	if err != nil {
		limit := tokenlimits.MaxCompletionTokens(model)
		slog.Warn("dynamic token budget failed, using model limit",
			"model", model, "limit", limit, "error", err)
		return limit
	}
	return budget
}

// gpt5Extra returns the extra body fields the gpt-5 family requires for
// low-latency translation work.
func gpt5Extra(model string) map[string]any {
	if !strings.HasPrefix(strings.ToLower(model), "gpt-5") {
		return nil
	}
	return map[string]any{
		"reasoning_effort": "minimal",
		"verbosity":        "low",
	}
}

// BuildLLMParams assembles the parameter record for a chat or vision call.
func (b *Builder) BuildLLMParams(model string, messages []core.Message, task Task, tempOverride *float64) *core.ResolvedParams {
	temp := b.ResolveTemperature(task, tempOverride)
	return &core.ResolvedParams{
		Model:               model,
		Messages:            messages,
		Temperature:         AdjustTemperatureForModel(model, &temp),
		MaxCompletionTokens: b.ResolveCompletionTokens(model),
		Extra:               gpt5Extra(model),
	}
}

// BuildDeepLParams assembles the parameter record for a DeepL translation.
// No temperature, no token budget; the adapter normalizes language codes.
func (b *Builder) BuildDeepLParams(text, sourceLang, targetLang string) *core.ResolvedParams {
	return &core.ResolvedParams{
		Model: deepl.ModelID,
		Extra: map[string]any{
			"text":        text,
			"source_lang": sourceLang,
			"target_lang": targetLang,
		},
	}
}
