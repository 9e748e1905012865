package modelcache

import (
	"context"
	"testing"
	"time"
)

func TestNewRedisBackendRejectsBadURL(t *testing.T) {
	if _, err := NewRedisBackend(RedisConfig{URL: "localhost:6379"}); err == nil {
		t.Fatal("expected error for URL without scheme")
	}
}

// memBackend stands in for an external store behind the Backend seam,
// mirroring how RedisBackend plugs in.
type memBackend struct {
	entries map[string]Entry
	saves   int
}

func (b *memBackend) Load(context.Context) (map[string]Entry, error) {
	out := make(map[string]Entry, len(b.entries))
	for k, v := range b.entries {
		out[k] = v
	}
	return out, nil
}

func (b *memBackend) Save(_ context.Context, entries map[string]Entry) error {
	b.saves++
	b.entries = make(map[string]Entry, len(entries))
	for k, v := range entries {
		b.entries[k] = v
	}
	return nil
}

func (b *memBackend) Cleanup(context.Context, time.Duration) error { return nil }

func TestCustomBackendRoundTrip(t *testing.T) {
	ctx := context.Background()
	backend := &memBackend{}

	first := New(backend)
	first.InitializeSafely(ctx)
	if err := first.CacheModelsAndPersist(ctx, "openai", []string{"gpt-5-nano"}); err != nil {
		t.Fatalf("CacheModelsAndPersist: %v", err)
	}
	if backend.saves != 1 {
		t.Errorf("saves = %d, want 1", backend.saves)
	}

	// A second cache over the same backend sees the persisted entry.
	second := New(backend)
	second.InitializeSafely(ctx)
	models, _, ok := second.Get("openai")
	if !ok || len(models) != 1 || models[0] != "gpt-5-nano" {
		t.Errorf("got %v (hit=%v), want the persisted list", models, ok)
	}
}
