package llm

import (
	"context"
	"sync"
	"testing"
)

type memoryCache struct {
	mu   sync.Mutex
	data map[string]string
}

func (m *memoryCache) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *memoryCache) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

type countingGenerator struct {
	calls int
	text  string
}

func (g *countingGenerator) Generate(_ context.Context, req Request) (Response, error) {
	g.calls++
	return Complete(req, g.text)
}

func TestCachedGeneratorMemoizesDeterministic(t *testing.T) {
	next := &countingGenerator{text: `{"a": "1"}`}
	cache := &memoryCache{data: map[string]string{}}
	gen := NewCachedGenerator(next, cache)
	req := Request{Model: "m", Prompt: "p", Deterministic: true, Structured: true}

	for i := 0; i < 3; i++ {
		resp, err := gen.Generate(context.Background(), req)
		if err != nil || resp.Object["a"] != "1" {
			t.Fatalf("unexpected %+v, %v", resp, err)
		}
	}
	if next.calls != 1 {
		t.Fatalf("expected a single upstream call, got %d", next.calls)
	}
}

func TestCachedGeneratorSkipsFailures(t *testing.T) {
	next := &countingGenerator{text: "sem json"}
	cache := &memoryCache{data: map[string]string{}}
	gen := NewCachedGenerator(next, cache)
	req := Request{Prompt: "p", Deterministic: true, Structured: true}

	_, _ = gen.Generate(context.Background(), req)
	_, _ = gen.Generate(context.Background(), req)
	if next.calls != 2 || len(cache.data) != 0 {
		t.Fatalf("expected failures to bypass the cache, calls=%d cached=%d", next.calls, len(cache.data))
	}
}

func TestCachedGeneratorIgnoresNonDeterministic(t *testing.T) {
	next := &countingGenerator{text: "x"}
	gen := NewCachedGenerator(next, &memoryCache{data: map[string]string{}})
	_, _ = gen.Generate(context.Background(), Request{Prompt: "p"})
	_, _ = gen.Generate(context.Background(), Request{Prompt: "p"})
	if next.calls != 2 {
		t.Fatalf("expected 2 calls, got %d", next.calls)
	}
}
