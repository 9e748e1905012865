// Package tokenlimits holds the static registry of per-model output-token
// ceilings and the dynamic budget calculator. Sending a max_completion_tokens
// above a model's hard cap makes providers reject the whole request with a
// 400, so every outgoing budget is derived from this table.
package tokenlimits

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
)

// modelTokenLimits maps model names (or name prefixes) to hard output-token
// ceilings per official provider documentation. Context windows are much
// larger; these are completion caps only.
var modelTokenLimits = map[string]int{
	// OpenAI
	"gpt-4o-mini":         16384,
	"gpt-4o":              16384,
	"gpt-4-turbo":         4096,
	"gpt-4-turbo-preview": 4096,
	"gpt-4":               4096,
	"gpt-4-32k":           4096,
	"o1-":                 100000,
	"o3-":                 100000,
	"gpt-5":               128000,
	"gpt-5-mini":          128000,
	"gpt-5-nano":          32768,
	"gpt-5.2":             128000,

	// Google Gemini
	"gemini-1.5-flash":    8192,
	"gemini-1.5-pro":      8192,
	"gemini-1.5-flash-8b": 8192,
	"gemini-2.0-flash":    8192,
	"gemini-2.5-flash":    65536,
	"gemini-2.5-pro":      65536,
	"gemini-pro":          2048,
	"gemini-pro-vision":   2048,
	"gemini-3":            65536,
	"gemini-3-flash":      65536,
	"gemini-3-pro":        65536,
	"gemini-3-ultra":      65536,
}

const (
	// DefaultMaxCompletionTokens is the conservative ceiling used for
	// models absent from the registry.
	DefaultMaxCompletionTokens = 4096

	// DefaultMinOutputTokens is the floor reserved for a meaningful
	// response.
	DefaultMinOutputTokens = 2048

	// DefaultSafetyMargin reserves a share of the output ceiling for
	// provider-side accounting variance.
	DefaultSafetyMargin = 0.1
)

// prefixesByLength caches registry keys sorted longest-first, so prefix
// resolution always prefers the most specific match (gpt-5-mini over gpt-5).
var prefixesByLength = func() []string {
	keys := make([]string, 0, len(modelTokenLimits))
	for k := range modelTokenLimits {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if len(keys[i]) != len(keys[j]) {
			return len(keys[i]) > len(keys[j])
		}
		return keys[i] < keys[j]
	})
	return keys
}()

var unknownWarned sync.Map

// MaxCompletionTokens returns the hard output ceiling for a model. Lookups
// are case-insensitive and whitespace-trimmed; exact match wins, then the
// longest registered prefix, then the global default. Unknown models warn
// once per name rather than failing.
func MaxCompletionTokens(model string) int {
	return maxCompletionTokensIn(modelTokenLimits, prefixesByLength, model)
}

// maxCompletionTokensIn resolves against an explicit table; split out so the
// prefix-precedence behavior is testable with fixture limits.
func maxCompletionTokensIn(limits map[string]int, ordered []string, model string) int {
	m := strings.ToLower(strings.TrimSpace(model))
	if m == "" {
		return DefaultMaxCompletionTokens
	}

	if limit, ok := limits[m]; ok {
		return limit
	}

	for _, prefix := range ordered {
		if strings.HasPrefix(m, strings.ToLower(prefix)) {
			return limits[prefix]
		}
	}

	if _, logged := unknownWarned.LoadOrStore(m, struct{}{}); !logged {
		slog.Warn("unknown model, using default completion token limit",
			"model", model,
			"default", DefaultMaxCompletionTokens,
		)
	}
	return DefaultMaxCompletionTokens
}

// CalculateDynamicCompletionTokens computes the output-token budget for a
// request: the model's hard ceiling minus the safety margin, floored at
// minOutputTokens and clamped to the ceiling.
func CalculateDynamicCompletionTokens(model string, minOutputTokens int, safetyMargin float64) (int, error) {
	return calculateIn(modelTokenLimits, prefixesByLength, model, minOutputTokens, safetyMargin)
}

func calculateIn(limits map[string]int, ordered []string, model string, minOutputTokens int, safetyMargin float64) (int, error) {
	if strings.TrimSpace(model) == "" {
		return 0, fmt.Errorf("model must be a non-empty string")
	}
	if safetyMargin < 0 || safetyMargin >= 1 {
		return 0, fmt.Errorf("safety margin must be in [0, 1), got %v", safetyMargin)
	}

	maxModelOutput := maxCompletionTokensIn(limits, ordered, model)

	if minOutputTokens <= 0 {
		return 0, fmt.Errorf("min output tokens must be positive, got %d", minOutputTokens)
	}
	if minOutputTokens > maxModelOutput {
		return 0, fmt.Errorf("min output tokens (%d) exceeds model output limit (%d for %q)",
			minOutputTokens, maxModelOutput, model)
	}

	available := int(float64(maxModelOutput) * (1.0 - safetyMargin))
	budget := max(minOutputTokens, available)
	budget = min(budget, maxModelOutput)

	slog.Debug("resolved completion token budget",
		"model", model,
		"limit", maxModelOutput,
		"available", available,
		"budget", budget,
	)
	return budget, nil
}
