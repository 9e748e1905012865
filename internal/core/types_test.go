package core

import "testing"

func TestParseProvider(t *testing.T) {
	for _, name := range []string{"openai", "google", "deepl"} {
		p, ok := ParseProvider(name)
		if !ok || p.String() != name {
			t.Errorf("ParseProvider(%q) = %v, %v", name, p, ok)
		}
	}
	if _, ok := ParseProvider("cohere"); ok {
		t.Error("unknown provider must not parse")
	}
	if _, ok := ParseProvider(""); ok {
		t.Error("empty provider must not parse")
	}
}

func TestProviderCapabilities(t *testing.T) {
	if !ProviderOpenAI.IsLLM() || !ProviderGoogle.IsLLM() || ProviderDeepL.IsLLM() {
		t.Error("llm capability wrong")
	}
	if !ProviderOpenAI.SupportsVision() || !ProviderGoogle.SupportsVision() || ProviderDeepL.SupportsVision() {
		t.Error("vision capability wrong")
	}
}

func TestResolvedParamsClone(t *testing.T) {
	temp := 0.5
	orig := &ResolvedParams{
		Model:       "gpt-5-nano",
		Temperature: &temp,
		Extra:       map[string]any{"verbosity": "low"},
	}
	clone := orig.Clone()

	clone.Temperature = nil
	clone.Extra["verbosity"] = "high"

	if orig.Temperature == nil || *orig.Temperature != 0.5 {
		t.Error("clone mutation leaked into original temperature")
	}
	if orig.Extra["verbosity"] != "low" {
		t.Error("clone mutation leaked into original extra map")
	}
}

func TestMessageHasImage(t *testing.T) {
	plain := Message{Role: "user", Content: "hi"}
	if plain.HasImage() {
		t.Error("plain message has no image")
	}
	withImage := Message{Role: "user", Parts: []ContentPart{
		{Type: "text", Text: "what is this"},
		{Type: "image_url", ImageURL: "data:image/png;base64,AAAA"},
	}}
	if !withImage.HasImage() {
		t.Error("image part not detected")
	}
}

func TestNewTextResponse(t *testing.T) {
	resp := NewTextResponse(ProviderGoogle, "gemini-2.5-flash", "bonjour", Usage{TotalTokens: 3})
	if len(resp.Choices) != 1 || resp.Choices[0].Message.Content != "bonjour" {
		t.Errorf("choices = %+v", resp.Choices)
	}
	if resp.Choices[0].Message.Role != "assistant" {
		t.Errorf("role = %q", resp.Choices[0].Message.Role)
	}
}

func TestSuccessRate(t *testing.T) {
	var u ProviderUsage
	if u.SuccessRate() != 0 {
		t.Error("empty usage must report 0")
	}
	u.RequestsCount = 4
	u.SuccessfulRequests = 3
	if got := u.SuccessRate(); got != 75 {
		t.Errorf("rate = %v, want 75", got)
	}
}
